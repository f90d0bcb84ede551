package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	Path      string
	ChatID    string
	Text      string
	ParseMode string
}

// stubAPI is a fake Bot API that answers with the queued bodies in order,
// repeating the last one.
type stubAPI struct {
	mu        sync.Mutex
	responses []string
	status    int
	requests  []sentMessage
}

func (s *stubAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, sentMessage{
		Path:      r.URL.Path,
		ChatID:    r.PostForm.Get("chat_id"),
		Text:      r.PostForm.Get("text"),
		ParseMode: r.PostForm.Get("parse_mode"),
	})
	body := `{"ok":true,"result":{}}`
	if len(s.responses) > 0 {
		idx := len(s.requests) - 1
		if idx >= len(s.responses) {
			idx = len(s.responses) - 1
		}
		body = s.responses[idx]
	}
	w.Header().Set("Content-Type", "application/json")
	if s.status != 0 {
		w.WriteHeader(s.status)
	}
	_, _ = w.Write([]byte(body))
}

func (s *stubAPI) calls() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMessage(nil), s.requests...)
}

func newStub(t *testing.T, responses ...string) (*stubAPI, *Client) {
	t.Helper()
	stub := &stubAPI{responses: responses}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)
	return stub, NewClient("123:abc", WithBaseURL(srv.URL))
}

func TestSendMessage(t *testing.T) {
	stub, client := newStub(t)

	resp, err := client.SendMessage(context.Background(), "42", "<b>hi</b>", ParseModeHTML)
	require.NoError(t, err)
	assert.True(t, resp.OK)

	calls := stub.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "/bot123:abc/sendMessage", calls[0].Path)
	assert.Equal(t, "42", calls[0].ChatID)
	assert.Equal(t, "<b>hi</b>", calls[0].Text)
	assert.Equal(t, "HTML", calls[0].ParseMode)
}

func TestSendMessagePlainOmitsParseMode(t *testing.T) {
	stub, client := newStub(t)

	_, err := client.SendMessage(context.Background(), "42", "hi", "")
	require.NoError(t, err)
	assert.Empty(t, stub.calls()[0].ParseMode)
}

func TestSendMessageNotOK(t *testing.T) {
	stub, client := newStub(t, `{"ok":false,"error_code":400,"description":"Bad Request: can't parse entities"}`)
	stub.status = http.StatusBadRequest

	resp, err := client.SendMessage(context.Background(), "42", "<b>broken", ParseModeHTML)
	require.NoError(t, err)
	assert.False(t, resp.OK)
	assert.Equal(t, 400, resp.ErrorCode)
	assert.Contains(t, resp.Description, "can't parse entities")
}

func TestSendMessageNonJSONBody(t *testing.T) {
	stub, client := newStub(t, `<html>bad gateway</html>`)
	stub.status = http.StatusBadGateway

	resp, err := client.SendMessage(context.Background(), "42", "hi", "")
	require.NoError(t, err)
	assert.False(t, resp.OK)
	assert.Equal(t, http.StatusBadGateway, resp.ErrorCode)
}

func TestSendMessageDecodesWithoutJSONContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: message is too long"}`))
	}))
	defer srv.Close()

	resp, err := NewClient("123:abc", WithBaseURL(srv.URL)).SendMessage(context.Background(), "42", "hi", "")
	require.NoError(t, err)
	assert.Equal(t, &APIResponse{ErrorCode: 400, Description: "Bad Request: message is too long"}, resp)
}

func TestSendMessageEmptyErrorBody(t *testing.T) {
	stub, client := newStub(t, ``)
	stub.status = http.StatusInternalServerError

	resp, err := client.SendMessage(context.Background(), "42", "hi", "")
	require.NoError(t, err)
	assert.False(t, resp.OK)
	assert.Equal(t, http.StatusInternalServerError, resp.ErrorCode)
}

func TestSendMessageTransportErrorHidesToken(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewClient("999:secret-token", WithBaseURL(url))
	_, err := client.SendMessage(context.Background(), "42", "hi", "")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret-token")
}

func TestSendMessageTruncatesLongText(t *testing.T) {
	stub, client := newStub(t)

	_, err := client.SendMessage(context.Background(), "42", strings.Repeat("я", 5000), "")
	require.NoError(t, err)
	sent := stub.calls()[0].Text
	assert.Equal(t, MaxMessageLength, utf8.RuneCountInString(sent))
	assert.True(t, strings.HasSuffix(sent, "…"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcd…", Truncate("abcdefgh", 5))
	assert.Equal(t, "abc", Truncate("abc", 0))
}
