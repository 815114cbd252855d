package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okmart/ordercore/internal/core/domain"
	"github.com/okmart/ordercore/internal/core/service"
	"github.com/okmart/ordercore/internal/port"
)

type HTTPHandler struct {
	orderService  *service.OrderService
	refundService *service.RefundService
	ledger        port.InventoryLedger
}

func NewHTTPHandler(orderService *service.OrderService, refundService *service.RefundService, ledger port.InventoryLedger) *HTTPHandler {
	return &HTTPHandler{
		orderService:  orderService,
		refundService: refundService,
		ledger:        ledger,
	}
}

// Routes wires every endpoint onto a fresh mux.
func (h *HTTPHandler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /orders", h.PlaceOrder)
	mux.HandleFunc("GET /orders", h.ListOrders)
	mux.HandleFunc("POST /orders/{id}/status", h.UpdateOrderStatus)
	mux.HandleFunc("POST /orders/{id}/payment", h.ConfirmPayment)
	mux.HandleFunc("POST /refunds/{id}/approve", h.ApproveRefund)
	mux.HandleFunc("POST /refunds/{id}/reject", h.RejectRefund)
	mux.HandleFunc("POST /refunds/{id}/pending", h.MarkRefundPending)
	mux.HandleFunc("POST /stock/availability", h.CheckAvailability)
	mux.HandleFunc("GET /health", h.HealthCheck)
	return mux
}

type orderLineRequest struct {
	ProductID    string  `json:"product_id"`
	Quantity     int     `json:"quantity"`
	UnitPrice    int64   `json:"unit_price"`
	DiscountRate float64 `json:"discount_rate"`
}

type placeOrderRequest struct {
	RequestID       string             `json:"request_id"`
	StoreID         string             `json:"store_id"`
	UserID          string             `json:"user_id"`
	OrderType       string             `json:"order_type"`
	PaymentMethod   string             `json:"payment_method"`
	Items           []orderLineRequest `json:"items"`
	AppliedCouponID *string            `json:"applied_coupon_id,omitempty"`
	PointsUsed      int64              `json:"points_used"`
	SubmittedTotal  int64              `json:"submitted_total"`
}

type orderResponse struct {
	ID             string `json:"id"`
	OrderNumber    string `json:"order_number"`
	Status         string `json:"status"`
	PaymentStatus  string `json:"payment_status"`
	Subtotal       int64  `json:"subtotal"`
	TaxAmount      int64  `json:"tax_amount"`
	DeliveryFee    int64  `json:"delivery_fee"`
	CouponDiscount int64  `json:"coupon_discount"`
	PointsUsed     int64  `json:"points_used"`
	TotalAmount    int64  `json:"total_amount"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Detail  any    `json:"detail,omitempty"`
}

func toOrderResponse(o *domain.Order) orderResponse {
	return orderResponse{
		ID:             o.ID,
		OrderNumber:    o.OrderNumber,
		Status:         string(o.Status),
		PaymentStatus:  string(o.PaymentStatus),
		Subtotal:       o.Subtotal,
		TaxAmount:      o.TaxAmount,
		DeliveryFee:    o.DeliveryFee,
		CouponDiscount: o.CouponDiscount,
		PointsUsed:     o.PointsUsed,
		TotalAmount:    o.TotalAmount,
	}
}

func (h *HTTPHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}

	items := make([]service.OrderLine, len(req.Items))
	for i, it := range req.Items {
		items[i] = service.OrderLine{
			ProductID:    it.ProductID,
			Quantity:     it.Quantity,
			UnitPrice:    it.UnitPrice,
			DiscountRate: it.DiscountRate,
		}
	}

	order, err := h.orderService.PlaceOrder(r.Context(), service.PlaceOrderInput{
		RequestID:       req.RequestID,
		StoreID:         req.StoreID,
		UserID:          req.UserID,
		OrderType:       domain.OrderType(req.OrderType),
		PaymentMethod:   req.PaymentMethod,
		Items:           items,
		AppliedCouponID: req.AppliedCouponID,
		PointsUsed:      req.PointsUsed,
		SubmittedTotal:  req.SubmittedTotal,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *HTTPHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	storeID := r.URL.Query().Get("store_id")
	if storeID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "store_id is required"})
		return
	}
	status := domain.OrderStatus(r.URL.Query().Get("status"))

	orders, err := h.orderService.ListOrders(r.Context(), storeID, status)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	out := make([]orderResponse, len(orders))
	for i := range orders {
		out[i] = toOrderResponse(&orders[i])
	}
	writeJSON(w, http.StatusOK, out)
}

type updateStatusRequest struct {
	Status      string `json:"status"`
	ActorUserID string `json:"actor_user_id"`
}

func (h *HTTPHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}

	err := h.orderService.UpdateStatus(r.Context(), r.PathValue("id"), domain.OrderStatus(req.Status), req.ActorUserID)
	if err != nil {
		var partial *service.PartialReversalError
		if errors.As(err, &partial) {
			// The status change committed; report the incomplete compensation.
			writeJSON(w, http.StatusOK, errorResponse{
				Success: true,
				Message: "status updated; compensation incomplete",
				Detail:  partial.Error(),
			})
			return
		}
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, errorResponse{Success: true, Message: "status updated"})
}

type confirmPaymentRequest struct {
	Amount int64  `json:"amount"`
	Status string `json:"status"`
}

func (h *HTTPHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req confirmPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}

	err := h.orderService.ConfirmPayment(r.Context(), r.PathValue("id"), req.Amount, domain.PaymentStatus(req.Status))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, errorResponse{Success: true, Message: "payment recorded"})
}

type refundDecisionRequest struct {
	ActorUserID    string `json:"actor_user_id"`
	ApprovedAmount *int64 `json:"approved_amount,omitempty"`
	AdminNotes     string `json:"admin_notes"`
}

func (h *HTTPHandler) ApproveRefund(w http.ResponseWriter, r *http.Request) {
	var req refundDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}

	refund, err := h.refundService.ApproveRefund(r.Context(), r.PathValue("id"), req.ActorUserID, req.ApprovedAmount, req.AdminNotes)
	if err != nil {
		var partial *service.PartialReversalError
		if errors.As(err, &partial) {
			writeJSON(w, http.StatusOK, errorResponse{
				Success: true,
				Message: "refund approved; compensation incomplete",
				Detail:  partial.Error(),
			})
			return
		}
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":              refund.ID,
		"status":          string(refund.Status),
		"approved_amount": refund.ApprovedAmount,
	})
}

func (h *HTTPHandler) RejectRefund(w http.ResponseWriter, r *http.Request) {
	var req refundDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}

	if err := h.refundService.RejectRefund(r.Context(), r.PathValue("id"), req.ActorUserID, req.AdminNotes); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, errorResponse{Success: true, Message: "refund rejected"})
}

func (h *HTTPHandler) MarkRefundPending(w http.ResponseWriter, r *http.Request) {
	var req refundDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}

	if err := h.refundService.MarkPending(r.Context(), r.PathValue("id"), req.ActorUserID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, errorResponse{Success: true, Message: "refund returned to review"})
}

type availabilityRequest struct {
	StoreID string `json:"store_id"`
	Items   []struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
	} `json:"items"`
}

type availabilityItemResponse struct {
	ProductID string `json:"product_id"`
	Available int    `json:"available"`
	LowStock  bool   `json:"low_stock"`
}

func (h *HTTPHandler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	var req availabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}
	if req.StoreID == "" || len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "store_id and items are required"})
		return
	}

	items := make([]domain.DeductionItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = domain.DeductionItem{ProductID: it.ProductID, Quantity: it.Quantity}
	}

	result, err := h.ledger.ValidateAvailability(r.Context(), req.StoreID, items)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Message: "storage unavailable"})
		return
	}

	stock := make([]availabilityItemResponse, 0, len(result.Stock))
	for _, s := range result.Stock {
		stock = append(stock, availabilityItemResponse{
			ProductID: s.ProductID,
			Available: s.Available,
			LowStock:  s.LowStock,
		})
	}
	errs := make([]string, len(result.Errors))
	for i, e := range result.Errors {
		errs[i] = e.String()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"is_valid": result.IsValid,
		"stock":    stock,
		"errors":   errs,
	})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var (
		validationErr *service.ValidationError
		mismatchErr   *service.AmountMismatchError
		stockErr      *service.StockInsufficientError
		policyErr     *service.PolicyViolationError
		transitionErr *service.InvalidTransitionError
		storageErr    *service.StorageError
	)

	switch {
	case errors.Is(err, service.ErrDuplicateRequest):
		writeJSON(w, http.StatusConflict, errorResponse{Message: "duplicate request"})
	case errors.Is(err, service.ErrOrderNotFound), errors.Is(err, service.ErrRefundNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Message: err.Error()})
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: validationErr.Error()})
	case errors.As(err, &mismatchErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Message: mismatchErr.Error()})
	case errors.As(err, &policyErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Message: policyErr.Error()})
	case errors.As(err, &stockErr):
		detail := make([]string, len(stockErr.Items))
		for i, it := range stockErr.Items {
			detail[i] = it.String()
		}
		writeJSON(w, http.StatusConflict, errorResponse{Message: "insufficient stock", Detail: detail})
	case errors.As(err, &transitionErr):
		writeJSON(w, http.StatusConflict, errorResponse{Message: transitionErr.Error()})
	case errors.As(err, &storageErr):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Message: "storage unavailable"})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
