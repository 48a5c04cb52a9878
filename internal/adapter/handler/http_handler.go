package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/trgiang/fulfillment/internal/core/domain"
	"github.com/trgiang/fulfillment/internal/core/service"
)

// HTTPHandler is the thin transport surface over the core. Identity
// comes from the X-User-ID and X-Admin headers, standing in for the
// authentication middleware that fronts this service.
type HTTPHandler struct {
	fulfillment *service.FulfillmentService
	carts       *service.CartService
}

func NewHTTPHandler(fulfillment *service.FulfillmentService, carts *service.CartService) *HTTPHandler {
	return &HTTPHandler{fulfillment: fulfillment, carts: carts}
}

func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.HealthCheck)
	mux.HandleFunc("/api/cart", h.GetCart)
	mux.HandleFunc("/api/cart/items", h.CartLine)
	mux.HandleFunc("/api/cart/items/remove", h.RemoveCartLine)
	mux.HandleFunc("/api/cart/clear", h.ClearCart)
	mux.HandleFunc("/api/checkout", h.Checkout)
	mux.HandleFunc("/api/orders", h.GetOrder)
	mux.HandleFunc("/api/orders/cancel", h.CancelOrder)
	mux.HandleFunc("/api/orders/status", h.TransitionStatus)
}

type cartLineRequest struct {
	ProductRef string `json:"product_ref"`
	Quantity   int    `json:"quantity"`
}

type checkoutRequest struct {
	RequestID        string         `json:"request_id"`
	PaymentMethodRef string         `json:"payment_method"`
	ShippingAddress  domain.Address `json:"shipping_address"`
}

type orderRequest struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *HTTPHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	owner := r.Header.Get("X-User-ID")
	if owner == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing identity"})
		return
	}
	cart, err := h.carts.GetOrCreate(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

// CartLine handles both mutations of a single cart line: POST merges
// the quantity into an existing line, PUT overwrites it.
func (h *HTTPHandler) CartLine(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	owner := r.Header.Get("X-User-ID")
	var req cartLineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if owner == "" || req.ProductRef == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing required fields"})
		return
	}

	var cart *domain.Cart
	var err error
	if r.Method == http.MethodPut {
		cart, err = h.carts.SetLineQuantity(r.Context(), owner, req.ProductRef, req.Quantity)
	} else {
		cart, err = h.carts.AddLine(r.Context(), owner, req.ProductRef, req.Quantity)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

func (h *HTTPHandler) RemoveCartLine(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	owner := r.Header.Get("X-User-ID")
	var req cartLineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if owner == "" || req.ProductRef == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing required fields"})
		return
	}
	cart, err := h.carts.RemoveLine(r.Context(), owner, req.ProductRef)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

func (h *HTTPHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	owner := r.Header.Get("X-User-ID")
	if owner == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing identity"})
		return
	}
	if err := h.carts.Clear(r.Context(), owner); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (h *HTTPHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	owner := r.Header.Get("X-User-ID")
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if owner == "" || req.PaymentMethodRef == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing required fields"})
		return
	}

	order, err := h.fulfillment.PlaceOrder(r.Context(), service.PlaceOrderInput{
		Owner:            owner,
		PaymentMethodRef: req.PaymentMethodRef,
		ShippingAddress:  req.ShippingAddress,
		RequestID:        req.RequestID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	requester := requesterFrom(r)
	id := r.URL.Query().Get("id")
	if requester.ID == "" || id == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing required fields"})
		return
	}
	order, err := h.fulfillment.GetOrder(r.Context(), id, requester)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *HTTPHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	requester := requesterFrom(r)
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if requester.ID == "" || req.OrderID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing required fields"})
		return
	}
	order, err := h.fulfillment.CancelOrder(r.Context(), req.OrderID, requester)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *HTTPHandler) TransitionStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	requester := requesterFrom(r)
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if requester.ID == "" || req.OrderID == "" || req.Status == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing required fields"})
		return
	}
	order, err := h.fulfillment.TransitionStatus(r.Context(), req.OrderID, requester, domain.OrderStatus(req.Status))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func requesterFrom(r *http.Request) domain.Actor {
	return domain.Actor{
		ID:    r.Header.Get("X-User-ID"),
		Admin: r.Header.Get("X-Admin") == "true",
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	// A CompensationError can wrap the triggering failure, so it has to
	// win over the kind checks below.
	var compErr *domain.CompensationError
	switch {
	case errors.As(err, &compErr):
		status = http.StatusBadGateway
	case errors.Is(err, domain.ErrEmptyCart), errors.Is(err, domain.ErrInvalidQuantity):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrPaymentFailed):
		status = http.StatusPaymentRequired
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrDuplicateRequest),
		errors.Is(err, domain.ErrInvalidTransition):
		status = http.StatusConflict
	}

	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
