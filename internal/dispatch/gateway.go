// Package dispatch sends composed notifications to device tokens through the
// external push gateway, in provider-capped batches with per-message receipts.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Message is one wire message in a batch request to the push gateway.
type Message struct {
	To       string            `json:"to"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
	Sound    string            `json:"sound,omitempty"`
	Priority string            `json:"priority,omitempty"`
	TTL      int               `json:"ttl,omitempty"`
}

// Receipt is the gateway's per-message outcome, parallel to the request batch.
type Receipt struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Details struct {
		Error string `json:"error,omitempty"`
	} `json:"details,omitempty"`
}

const (
	receiptStatusOK = "ok"

	// ErrDeviceNotRegistered is the provider error code for a token whose
	// device uninstalled the app. Such tokens are deactivated on sight.
	ErrDeviceNotRegistered = "DeviceNotRegistered"
)

// OK reports whether the message was accepted by the gateway.
func (r Receipt) OK() bool {
	return r.Status == receiptStatusOK
}

// Gateway is the push provider surface. Implemented by HTTPGateway; tests
// substitute a fake.
type Gateway interface {
	// SendBatch posts one batch and returns one receipt per message, in
	// request order. A non-nil error means the whole batch failed.
	SendBatch(ctx context.Context, messages []Message) ([]Receipt, error)
}

// HTTPGateway speaks the push provider's batched JSON protocol.
type HTTPGateway struct {
	url         string
	accessToken string
	client      *http.Client
}

// NewHTTPGateway creates a gateway client for the given endpoint.
func NewHTTPGateway(url, accessToken string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		url:         url,
		accessToken: accessToken,
		client:      &http.Client{Timeout: timeout},
	}
}

var _ Gateway = (*HTTPGateway)(nil)

// batchResponse is the gateway's envelope: receipts under "data", with
// request-level problems reported under "errors".
type batchResponse struct {
	Data   []Receipt `json:"data"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// SendBatch posts the messages and decodes per-message receipts.
func (g *HTTPGateway) SendBatch(ctx context.Context, messages []Message) ([]Receipt, error) {
	payload, err := json.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("encode push batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if g.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+g.accessToken)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("push gateway request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read push gateway response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("push gateway returned %d: %s", resp.StatusCode, truncate(body, 256))
	}

	var decoded batchResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode push gateway response: %w", err)
	}
	if len(decoded.Errors) > 0 {
		return nil, fmt.Errorf("push gateway rejected batch: %s: %s",
			decoded.Errors[0].Code, decoded.Errors[0].Message)
	}
	if len(decoded.Data) != len(messages) {
		return nil, fmt.Errorf("push gateway returned %d receipts for %d messages",
			len(decoded.Data), len(messages))
	}
	return decoded.Data, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
