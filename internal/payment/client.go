// Package payment calls the serverless Stripe functions that create
// checkout sessions and invoices for accepted sync proposals.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrPayment wraps every failure talking to the payment functions.
var ErrPayment = errors.New("payment request failed")

const (
	invoiceFunction  = "stripe-invoice"
	checkoutFunction = "stripe-checkout"
)

type Config struct {
	FunctionsURL string
	FunctionsKey string
	PriceID      string
	Timeout      time.Duration
}

type Client struct {
	BaseURL string
	APIKey  string
	PriceID string

	HTTPClient *http.Client
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(cfg.FunctionsURL, "/"),
		APIKey:  strings.TrimSpace(cfg.FunctionsKey),
		PriceID: strings.TrimSpace(cfg.PriceID),
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type InvoiceRequest struct {
	ProposalID   string            `json:"proposal_id"`
	Amount       int64             `json:"amount"`
	ClientUserID string            `json:"client_user_id"`
	PaymentTerms string            `json:"payment_terms"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// InvoiceResult is either a hosted URL or an invoice description.
type InvoiceResult struct {
	URL          string `json:"url"`
	Type         string `json:"type"`
	InvoiceURL   string `json:"invoiceUrl"`
	Amount       int64  `json:"amount"`
	PaymentTerms string `json:"payment_terms"`
	DueDate      string `json:"dueDate"`
}

// RedirectURL is where the client is sent to pay.
func (r InvoiceResult) RedirectURL() string {
	if r.URL != "" {
		return r.URL
	}
	return r.InvoiceURL
}

// Due parses DueDate; nil when absent or unparsable.
func (r InvoiceResult) Due() *time.Time {
	value := strings.TrimSpace(r.DueDate)
	if value == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return &parsed
		}
	}
	return nil
}

type CheckoutRequest struct {
	PriceID    string            `json:"price_id"`
	Mode       string            `json:"mode"`
	SuccessURL string            `json:"success_url"`
	CancelURL  string            `json:"cancel_url"`
	Amount     int64             `json:"amount"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type CheckoutResult struct {
	URL       string `json:"url"`
	SessionID string `json:"sessionId,omitempty"`
}

func (c *Client) CreateInvoice(ctx context.Context, req InvoiceRequest) (InvoiceResult, error) {
	if req.Amount <= 0 {
		return InvoiceResult{}, fmt.Errorf("%w: amount must be positive", ErrPayment)
	}
	var out InvoiceResult
	if err := c.post(ctx, invoiceFunction, req, &out); err != nil {
		return InvoiceResult{}, err
	}
	if out.RedirectURL() == "" {
		return InvoiceResult{}, fmt.Errorf("%w: %s returned no url", ErrPayment, invoiceFunction)
	}
	return out, nil
}

// CreateCheckout opens a one-off payment session. PriceID and Mode default
// to the configured sync price and "payment".
func (c *Client) CreateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutResult, error) {
	if req.Amount <= 0 {
		return CheckoutResult{}, fmt.Errorf("%w: amount must be positive", ErrPayment)
	}
	if req.PriceID == "" {
		req.PriceID = c.PriceID
	}
	if req.Mode == "" {
		req.Mode = "payment"
	}
	var out CheckoutResult
	if err := c.post(ctx, checkoutFunction, req, &out); err != nil {
		return CheckoutResult{}, err
	}
	if strings.TrimSpace(out.URL) == "" {
		return CheckoutResult{}, fmt.Errorf("%w: %s returned no url", ErrPayment, checkoutFunction)
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, function string, payload, out any) error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: FUNCTIONS_URL is not configured", ErrPayment)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: encode %s request: %v", ErrPayment, function, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/"+function, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build %s request: %v", ErrPayment, function, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
		req.Header.Set("apikey", c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPayment, function, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s status=%d body=%s", ErrPayment, function, resp.StatusCode, errorMessage(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", ErrPayment, function, err)
	}
	return nil
}

// errorMessage pulls {"error": "..."} out of a function response.
func errorMessage(raw []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(raw))
}
