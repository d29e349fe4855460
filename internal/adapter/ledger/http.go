package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bluecarbon-registry/internal/core/domain"
	"bluecarbon-registry/internal/core/ports"

	"github.com/google/uuid"
)

const (
	headerAPIKey    = "X-Api-Key"
	headerTimestamp = "X-Timestamp"
	headerNonce     = "X-Nonce"
	headerSignature = "X-Signature"

	maxResponseBytes = 1 << 20
)

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Signer signs outbound gateway requests.
type Signer interface {
	Sign(method, path string, timestamp int64, nonce string, body []byte) string
}

// GatewayError is a non-transport rejection from the ledger gateway.
type GatewayError struct {
	StatusCode int
	Message    string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("ledger gateway returned %d: %s", e.StatusCode, e.Message)
}

// HTTP talks to a ledger gateway:
//
//	POST /v1/transactions          {"payload": base64}  -> {"tx_ref": "..."}
//	GET  /v1/transactions/{txRef}                       -> {"status": "pending|confirmed|failed"}
//
// Network errors, 429 and 5xx responses wrap ports.ErrLedgerTransport.
type HTTP struct {
	base   *url.URL
	client HTTPClient
	apiKey string
	signer Signer
	now    func() time.Time
}

// NewHTTP creates a gateway client. signer may be nil for unsigned requests.
func NewHTTP(endpoint, apiKey string, client HTTPClient, signer Signer) (*HTTP, error) {
	base, err := url.Parse(strings.TrimRight(endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing ledger endpoint: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("ledger endpoint must be http or https, got %q", endpoint)
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTP{base: base, client: client, apiKey: apiKey, signer: signer, now: time.Now}, nil
}

type submitRequest struct {
	Payload []byte `json:"payload"`
}

type submitResponse struct {
	TxRef string `json:"tx_ref"`
}

type statusResponse struct {
	Status string `json:"status"`
}

func (h *HTTP) Submit(ctx context.Context, payload []byte) (string, error) {
	body, err := json.Marshal(submitRequest{Payload: payload})
	if err != nil {
		return "", fmt.Errorf("encoding ledger request: %w", err)
	}

	var out submitResponse
	if err := h.do(ctx, http.MethodPost, "/v1/transactions", body, &out); err != nil {
		return "", err
	}
	if out.TxRef == "" {
		return "", errors.New("ledger gateway returned no transaction reference")
	}
	return out.TxRef, nil
}

func (h *HTTP) Status(ctx context.Context, txRef string) (domain.LedgerTxStatus, error) {
	var out statusResponse
	if err := h.do(ctx, http.MethodGet, "/v1/transactions/"+url.PathEscape(txRef), nil, &out); err != nil {
		return "", err
	}

	switch s := domain.LedgerTxStatus(out.Status); s {
	case domain.LedgerTxPending, domain.LedgerTxConfirmed, domain.LedgerTxFailed:
		return s, nil
	}
	return "", fmt.Errorf("ledger gateway returned unknown status %q", out.Status)
}

// Ping implements ports.HealthChecker.
func (h *HTTP) Ping(ctx context.Context) error {
	return h.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (h *HTTP) Name() string { return "ledger" }

func (h *HTTP) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, h.base.String()+path, reader)
	if err != nil {
		return fmt.Errorf("building ledger request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if h.apiKey != "" {
		req.Header.Set(headerAPIKey, h.apiKey)
	}
	if h.signer != nil {
		ts := h.now().Unix()
		nonce := uuid.NewString()
		req.Header.Set(headerTimestamp, strconv.FormatInt(ts, 10))
		req.Header.Set(headerNonce, nonce)
		req.Header.Set(headerSignature, h.signer.Sign(method, req.URL.EscapedPath(), ts, nonce, body))
	}

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s %s: %v: %w", method, path, err, ports.ErrLedgerTransport)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("reading ledger response: %v: %w", err, ports.ErrLedgerTransport)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%s %s returned %d: %w", method, path, resp.StatusCode, ports.ErrLedgerTransport)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return &GatewayError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding ledger response: %w", err)
	}
	return nil
}
