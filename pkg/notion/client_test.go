package notion

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pagesJSON = `{
  "results": [
    {"properties": {
      "Task": {"title": [{"plain_text": "Write "}, {"plain_text": "report"}]},
      "Status": {"status": {"name": "In progress"}},
      "Due": {"date": {"start": "2026-03-14"}}
    }},
    {"properties": {
      "Task": {"title": []},
      "Status": {"status": {"name": "Not started"}}
    }},
    {"properties": {
      "Task": {"title": [{"plain_text": "Call bank"}]},
      "Status": {"status": null},
      "Due": {"date": null}
    }}
  ],
  "has_more": false
}`

var fixedNow = time.Date(2026, 3, 14, 7, 30, 0, 0, time.UTC)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("secret", "db-123",
		WithBaseURL(srv.URL),
		WithLocation(time.UTC),
		WithClock(func() time.Time { return fixedNow }),
		WithRetry(3, time.Millisecond),
	)
}

func TestQueryTasks(t *testing.T) {
	var got map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/databases/db-123/query", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, APIVersion, r.Header.Get("Notion-Version"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(pagesJSON))
	})

	tasks, err := client.QueryTasks(context.Background(), Overdue, 20)
	require.NoError(t, err)

	assert.Equal(t, []Task{
		{Name: "Write report", Status: "In progress", DueDate: "2026-03-14"},
		{Name: "Call bank"},
	}, tasks)

	assert.Equal(t, float64(20), got["page_size"])
	assert.Equal(t, []any{map[string]any{"property": "Due", "direction": "ascending"}}, got["sorts"])
	assert.Equal(t, map[string]any{"and": []any{
		map[string]any{"property": "Due", "date": map[string]any{"before": "2026-03-14"}},
		map[string]any{"property": "Status", "status": map[string]any{"does_not_equal": "Done"}},
	}}, got["filter"])
}

func TestFilters(t *testing.T) {
	c := NewClient("t", "db", WithLocation(time.UTC), WithClock(func() time.Time { return fixedNow }))

	assert.Equal(t, map[string]any{"property": "Due", "date": map[string]any{"equals": "2026-03-14"}}, c.filter(Today))
	assert.Equal(t, map[string]any{"property": "Due", "date": map[string]any{"equals": "2026-03-15"}}, c.filter(Tomorrow))
	assert.Equal(t, map[string]any{"property": "Status", "status": map[string]any{"equals": "In progress"}}, c.filter(InProgress))
	assert.Equal(t, map[string]any{"property": "Status", "status": map[string]any{"does_not_equal": "Done"}}, c.filter(All))
}

func TestFilterCustomProperties(t *testing.T) {
	c := NewClient("t", "db",
		WithProperties(Properties{Title: "Name", Due: "Deadline", Status: "State", DoneStatus: "Closed", InProgressStatus: "Doing"}),
		WithLocation(time.UTC),
		WithClock(func() time.Time { return fixedNow }),
	)
	assert.Equal(t, map[string]any{"property": "State", "status": map[string]any{"equals": "Doing"}}, c.filter(InProgress))
}

func TestQueryTasksLimits(t *testing.T) {
	var sizes []float64
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		sizes = append(sizes, body["page_size"].(float64))
		_, _ = w.Write([]byte(`{"results": []}`))
	})

	_, err := client.QueryTasks(context.Background(), All, 0)
	require.NoError(t, err)
	_, err = client.QueryTasks(context.Background(), All, 500)
	require.NoError(t, err)
	assert.Equal(t, []float64{DefaultLimit, MaxPageSize}, sizes)
}

func TestQueryTasksRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"object":"error","status":503,"code":"service_unavailable","message":"try later"}`))
			return
		}
		_, _ = w.Write([]byte(pagesJSON))
	})

	tasks, err := client.QueryTasks(context.Background(), All, 10)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
	assert.Equal(t, int32(3), calls.Load())
}

func TestQueryTasksFailsFastOnClientErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"object":"error","status":400,"code":"validation_error","message":"bad filter"}`))
	})

	_, err := client.QueryTasks(context.Background(), All, 10)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "validation_error", apiErr.Code)
	assert.Contains(t, err.Error(), "bad filter")
}

func TestQueryTasksGivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.QueryTasks(context.Background(), Today, 10)
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestQueryTasksUndecodableBodyIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	})

	_, err := client.QueryTasks(context.Background(), All, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode notion response")
	assert.Equal(t, int32(1), calls.Load())
}

func TestQueryTasksRequiresDatabase(t *testing.T) {
	_, err := NewClient("t", "").QueryTasks(context.Background(), All, 10)
	assert.Error(t, err)
}

func TestCreateTask(t *testing.T) {
	var got map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/pages", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"object":"page","id":"page-1","url":"https://www.notion.so/page-1"}`))
	})

	created, err := client.CreateTask(context.Background(), NewTask{Title: "  Call bank ", DueDate: "2026-03-15", Project: "Admin"})
	require.NoError(t, err)
	assert.Equal(t, &CreatedTask{ID: "page-1", URL: "https://www.notion.so/page-1"}, created)

	assert.Equal(t, map[string]any{"database_id": "db-123"}, got["parent"])
	assert.Equal(t, map[string]any{
		"Task":    map[string]any{"title": []any{map[string]any{"text": map[string]any{"content": "Call bank"}}}},
		"Status":  map[string]any{"status": map[string]any{"name": "Not started"}},
		"Due":     map[string]any{"date": map[string]any{"start": "2026-03-15"}},
		"Project": map[string]any{"multi_select": []any{map[string]any{"name": "Admin"}}},
	}, got["properties"])
}

func TestCreateTaskOmitsOptionalProperties(t *testing.T) {
	var got map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"id":"page-2","url":""}`))
	})

	_, err := client.CreateTask(context.Background(), NewTask{Title: "Buy milk"})
	require.NoError(t, err)

	props, ok := got["properties"].(map[string]any)
	require.True(t, ok)
	assert.Len(t, props, 2)
	assert.NotContains(t, props, "Due")
	assert.NotContains(t, props, "Project")
}

func TestCreateTaskRetriesOnlyRateLimits(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"object":"error","status":429,"code":"rate_limited","message":"slow down"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"page-3","url":"https://www.notion.so/page-3"}`))
	})

	created, err := client.CreateTask(context.Background(), NewTask{Title: "Buy milk"})
	require.NoError(t, err)
	assert.Equal(t, "page-3", created.ID)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCreateTaskDoesNotRetryServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.CreateTask(context.Background(), NewTask{Title: "Buy milk"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create task")
	assert.Equal(t, int32(1), calls.Load())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
}

func TestCreateTaskValidation(t *testing.T) {
	_, err := NewClient("t", "db").CreateTask(context.Background(), NewTask{Title: "   "})
	assert.ErrorIs(t, err, ErrEmptyTitle)

	_, err = NewClient("t", "").CreateTask(context.Background(), NewTask{Title: "x"})
	assert.Error(t, err)
}

func TestResolveDue(t *testing.T) {
	c := NewClient("t", "db", WithLocation(time.UTC), WithClock(func() time.Time { return fixedNow }))

	for in, want := range map[string]string{
		"":           "",
		"today":      "2026-03-14",
		" Tomorrow ": "2026-03-15",
		"2026-04-01": "2026-04-01",
	} {
		got, err := c.ResolveDue(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := c.ResolveDue("next week")
	assert.ErrorContains(t, err, "invalid due date")
	_, err = c.ResolveDue("2026-02-30")
	assert.Error(t, err)
}
