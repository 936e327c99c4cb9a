// Package expo is a minimal client for the Expo push API, the platform's
// single push-gateway binding. It covers the two calls the notification
// core needs: sending message chunks (which yields tickets) and redeeming
// ticket ids for delivery receipts.
package expo

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is Expo's production push endpoint host.
	DefaultBaseURL = "https://exp.host"

	sendPath     = "/--/api/v2/push/send"
	receiptsPath = "/--/api/v2/push/getReceipts"

	// SendChunkLimit is the gateway's maximum batch size for a send call.
	SendChunkLimit = 100
	// ReceiptChunkLimit is the gateway's maximum batch size for a receipt
	// lookup call.
	ReceiptChunkLimit = 300
)

// Receipt/ticket statuses as reported by the gateway.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Gateway error codes. The permanent set means the token will never again
// be deliverable; anything else is ambiguous and must not invalidate a
// token.
const (
	ErrCodeDeviceNotRegistered = "DeviceNotRegistered"
	ErrCodeInvalidCredentials  = "InvalidCredentials"
	ErrCodeInvalidDeviceToken  = "InvalidDeviceToken"
	ErrCodeUnregistered        = "Unregistered"
	ErrCodeMessageTooBig       = "MessageTooBig"
	ErrCodeMessageRateExceeded = "MessageRateExceeded"
)

var permanentErrorCodes = map[string]bool{
	ErrCodeDeviceNotRegistered: true,
	ErrCodeInvalidCredentials:  true,
	ErrCodeInvalidDeviceToken:  true,
	ErrCodeUnregistered:        true,
}

// IsPermanentError reports whether a gateway error code means the token is
// permanently undeliverable.
func IsPermanentError(code string) bool {
	return permanentErrorCodes[code]
}

// IsExpoPushToken reports whether a token string has the gateway's expected
// format. Anything else is rejected before a send is attempted.
func IsExpoPushToken(token string) bool {
	return (strings.HasPrefix(token, "ExponentPushToken[") ||
		strings.HasPrefix(token, "ExpoPushToken[")) &&
		strings.HasSuffix(token, "]")
}

// PushMessage is one notification addressed to one token
type PushMessage struct {
	To        string            `json:"to"`
	Title     string            `json:"title,omitempty"`
	Body      string            `json:"body,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
	Sound     string            `json:"sound,omitempty"`
	Priority  string            `json:"priority,omitempty"`
	Badge     *int              `json:"badge,omitempty"`
	ChannelID string            `json:"channelId,omitempty"`
	TTL       int               `json:"ttl,omitempty"`
}

// ErrorDetails carries the gateway's machine-readable error code
type ErrorDetails struct {
	Error string `json:"error,omitempty"`
}

// PushTicket is the gateway's immediate per-message response: either an id
// redeemable later for a receipt, or an inline error.
type PushTicket struct {
	ID      string        `json:"id,omitempty"`
	Status  string        `json:"status"`
	Message string        `json:"message,omitempty"`
	Details *ErrorDetails `json:"details,omitempty"`
}

// ErrorCode returns the machine-readable error code, if any
func (t PushTicket) ErrorCode() string {
	if t.Details == nil {
		return ""
	}
	return t.Details.Error
}

// PushReceipt is the delayed, authoritative outcome of a ticket
type PushReceipt struct {
	Status  string        `json:"status"`
	Message string        `json:"message,omitempty"`
	Details *ErrorDetails `json:"details,omitempty"`
}

// ErrorCode returns the machine-readable error code, if any
func (r PushReceipt) ErrorCode() string {
	if r.Details == nil {
		return ""
	}
	return r.Details.Error
}

// Gateway is the push-gateway surface consumed by the dispatcher and the
// receipt worker. Tests substitute a fake.
type Gateway interface {
	SendMessages(ctx context.Context, messages []PushMessage) ([]PushTicket, error)
	GetReceipts(ctx context.Context, ticketIDs []string) (map[string]PushReceipt, error)
}

// Config configures a Client
type Config struct {
	BaseURL     string
	AccessToken string  // optional Expo access token
	RatePerSec  float64 // outbound request rate limit, 0 = unlimited
}

// Client talks to the Expo push API over HTTP
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	limiter     *rate.Limiter
}

// NewClient creates a push gateway client
func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: cfg.AccessToken,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		limiter:     limiter,
	}
}

type sendResponse struct {
	Data   []PushTicket     `json:"data"`
	Errors []map[string]any `json:"errors"`
}

type receiptsRequest struct {
	IDs []string `json:"ids"`
}

type receiptsResponse struct {
	Data   map[string]PushReceipt `json:"data"`
	Errors []map[string]any       `json:"errors"`
}

// SendMessages submits one chunk of messages and returns one ticket per
// message, in order. The caller is responsible for chunking to
// SendChunkLimit.
func (c *Client) SendMessages(ctx context.Context, messages []PushMessage) ([]PushTicket, error) {
	if len(messages) == 0 {
		return nil, nil
	}
	if len(messages) > SendChunkLimit {
		return nil, fmt.Errorf("expo: chunk of %d exceeds send limit %d", len(messages), SendChunkLimit)
	}

	var resp sendResponse
	if err := c.post(ctx, sendPath, messages, &resp); err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("expo: send rejected: %v", resp.Errors[0])
	}
	if len(resp.Data) != len(messages) {
		return nil, fmt.Errorf("expo: got %d tickets for %d messages", len(resp.Data), len(messages))
	}
	return resp.Data, nil
}

// GetReceipts redeems ticket ids for receipts. Tickets the gateway has not
// resolved yet are simply absent from the result.
func (c *Client) GetReceipts(ctx context.Context, ticketIDs []string) (map[string]PushReceipt, error) {
	if len(ticketIDs) == 0 {
		return map[string]PushReceipt{}, nil
	}
	if len(ticketIDs) > ReceiptChunkLimit {
		return nil, fmt.Errorf("expo: chunk of %d exceeds receipt limit %d", len(ticketIDs), ReceiptChunkLimit)
	}

	var resp receiptsResponse
	if err := c.post(ctx, receiptsPath, receiptsRequest{IDs: ticketIDs}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("expo: receipt lookup rejected: %v", resp.Errors[0])
	}
	if resp.Data == nil {
		resp.Data = map[string]PushReceipt{}
	}
	return resp.Data, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("expo: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("expo: %s: %w", path, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("expo: read response: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("expo: %s returned %d: %s", path, res.StatusCode, truncate(raw, 200))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("expo: decode response: %w", err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// ChunkMessages splits messages into gateway-sized batches
func ChunkMessages(messages []PushMessage, size int) [][]PushMessage {
	if size <= 0 {
		size = SendChunkLimit
	}
	var chunks [][]PushMessage
	for start := 0; start < len(messages); start += size {
		end := start + size
		if end > len(messages) {
			end = len(messages)
		}
		chunks = append(chunks, messages[start:end])
	}
	return chunks
}

// ChunkIDs splits ticket ids into gateway-sized batches
func ChunkIDs(ids []string, size int) [][]string {
	if size <= 0 {
		size = ReceiptChunkLimit
	}
	var chunks [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
