package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trgiang/fulfillment/internal/core/domain"
	"github.com/trgiang/fulfillment/internal/port"
)

const defaultTimeout = 10 * time.Second

// GatewayClient talks to the external payment processor over HTTP. Every
// failure mode (transport, timeout, decline, 5xx) comes back as a typed
// domain.PaymentError so the orchestrator can branch on kind.
type GatewayClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewGatewayClient(baseURL, apiKey string, timeout time.Duration) *GatewayClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &GatewayClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type chargePayload struct {
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	PaymentMethod string `json:"payment_method"`
}

type refundPayload struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type gatewayResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error"`
}

func (g *GatewayClient) ChargeAndConfirm(ctx context.Context, req port.ChargeRequest) (port.Charge, error) {
	payload := chargePayload{
		Amount:        req.Amount.StringFixed(2),
		Currency:      req.Currency,
		PaymentMethod: req.PaymentMethodRef,
	}

	resp, err := g.post(ctx, g.baseURL+"/v1/charges", req.IdempotencyKey, payload)
	if err != nil {
		return port.Charge{}, err
	}
	if resp.Status != "succeeded" {
		reason := resp.Status
		if reason == "" {
			reason = "declined"
		}
		return port.Charge{}, &domain.PaymentError{Reason: reason}
	}
	return port.Charge{ID: resp.ID, Status: resp.Status}, nil
}

func (g *GatewayClient) Refund(ctx context.Context, chargeID string, amount decimal.Decimal, currency string) (port.Refund, error) {
	payload := refundPayload{
		Amount:   amount.StringFixed(2),
		Currency: currency,
	}

	url := fmt.Sprintf("%s/v1/charges/%s/refunds", g.baseURL, chargeID)
	resp, err := g.post(ctx, url, "", payload)
	if err != nil {
		return port.Refund{}, err
	}
	if resp.Status != "succeeded" && resp.Status != "pending" {
		reason := resp.Status
		if reason == "" {
			reason = "refund rejected"
		}
		return port.Refund{}, &domain.PaymentError{Reason: reason}
	}
	return port.Refund{ID: resp.ID, Status: resp.Status}, nil
}

func (g *GatewayClient) post(ctx context.Context, url, idempotencyKey string, payload any) (*gatewayResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &domain.PaymentError{Reason: "encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &domain.PaymentError{Reason: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	httpResp, err := g.client.Do(req)
	if err != nil {
		return nil, &domain.PaymentError{Reason: "gateway unreachable", Err: err}
	}
	defer httpResp.Body.Close()

	var resp gatewayResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, &domain.PaymentError{
			Reason: fmt.Sprintf("malformed gateway response (http %d)", httpResp.StatusCode),
			Err:    err,
		}
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		reason := resp.Error
		if reason == "" {
			reason = fmt.Sprintf("gateway returned http %d", httpResp.StatusCode)
		}
		return nil, &domain.PaymentError{Reason: reason}
	}
	return &resp, nil
}
