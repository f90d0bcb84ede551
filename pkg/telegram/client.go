// Package telegram delivers reports through the Telegram Bot API.
package telegram

import (
	"context"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/jingkaihe/dbrain/pkg/logger"
	"github.com/jingkaihe/dbrain/pkg/version"
)

const (
	DefaultBaseURL = "https://api.telegram.org"
	DefaultTimeout = 30 * time.Second

	// MaxMessageLength is the sendMessage limit in characters.
	MaxMessageLength = 4096

	ParseModeHTML = "HTML"
)

// APIResponse is the part of a Bot API response the delivery logic looks at.
type APIResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

// Sender sends one message. *Client implements it.
type Sender interface {
	SendMessage(ctx context.Context, chatID, text, parseMode string) (*APIResponse, error)
}

// Client is a minimal Bot API client.
type Client struct {
	http  *resty.Client
	token string
}

var _ Sender = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL points the client at another API host, e.g. a local Bot API
// server or an httptest stub.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		if url != "" {
			c.http.SetBaseURL(strings.TrimRight(url, "/"))
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.http.SetTimeout(d)
		}
	}
}

// NewClient creates a client authenticated with the bot token.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		http: resty.New().
			SetBaseURL(DefaultBaseURL).
			SetTimeout(DefaultTimeout).
			SetHeader("User-Agent", version.UserAgent()).
			SetLogger(logger.L),
		token: token,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendMessage posts text to chatID. parseMode may be empty for plain text.
//
// A returned error means the request did not complete (network, timeout).
// Any response that reached the API is returned as an APIResponse; a body
// that is not a Bot API envelope is reported as not ok with the HTTP status.
func (c *Client) SendMessage(ctx context.Context, chatID, text, parseMode string) (*APIResponse, error) {
	form := map[string]string{
		"chat_id": chatID,
		"text":    Truncate(text, MaxMessageLength),
	}
	if parseMode != "" {
		form["parse_mode"] = parseMode
	}

	var out APIResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(form).
		ForceContentType("application/json").
		SetResult(&out).
		SetError(&out).
		Post("/bot" + c.token + "/sendMessage")
	if err != nil && (resp == nil || resp.RawResponse == nil) {
		return nil, errors.Wrap(redact(err, c.token), "telegram sendMessage")
	}

	if err != nil || (!out.OK && out.ErrorCode == 0 && out.Description == "") {
		return &APIResponse{
			ErrorCode:   resp.StatusCode(),
			Description: resp.String(),
		}, nil
	}
	if !out.OK && out.ErrorCode == 0 && resp.StatusCode() != http.StatusOK {
		out.ErrorCode = resp.StatusCode()
	}
	return &out, nil
}

// Truncate shortens text to at most limit runes, ending with an ellipsis
// when anything was cut.
func Truncate(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit-1]) + "…"
}

// redact keeps the bot token out of error messages, which embed the URL.
func redact(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), token, "<redacted>"))
}
