package logging

import (
	"encoding/json"
	"log"
	"time"
)

type Fields struct {
	Component string `json:"component"`
	OrderID   string `json:"order_id,omitempty"`
	StoreID   string `json:"store_id,omitempty"`
	RefundID  string `json:"refund_id,omitempty"`
	Step      string `json:"step,omitempty"`
	Status    string `json:"status,omitempty"`
	Message   string `json:"message,omitempty"`
	Err       string `json:"error,omitempty"`
}

// Log emits one JSON line on the standard logger.
func Log(fields Fields) {
	payload := map[string]any{
		"component": fields.Component,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if fields.OrderID != "" {
		payload["order_id"] = fields.OrderID
	}
	if fields.StoreID != "" {
		payload["store_id"] = fields.StoreID
	}
	if fields.RefundID != "" {
		payload["refund_id"] = fields.RefundID
	}
	if fields.Step != "" {
		payload["step"] = fields.Step
	}
	if fields.Status != "" {
		payload["status"] = fields.Status
	}
	if fields.Message != "" {
		payload["message"] = fields.Message
	}
	if fields.Err != "" {
		payload["error"] = fields.Err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("{\"component\":%q,\"status\":\"log_error\",\"error\":%q}", fields.Component, err.Error())
		return
	}
	log.Print(string(data))
}
