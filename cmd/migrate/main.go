package main

import (
	"database/sql"
	"log"
	"os"

	_ "github.com/go-sql-driver/mysql"

	"github.com/okmart/ordercore/internal/adapter/storage"
)

func main() {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/ordercore?parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		log.Fatalf("failed to open mysql: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("failed to ping mysql: %v", err)
	}

	for i, stmt := range storage.Schema {
		if _, err := db.Exec(stmt); err != nil {
			log.Fatalf("statement %d failed: %v", i, err)
		}
	}
	log.Printf("applied %d schema statements", len(storage.Schema))
}
