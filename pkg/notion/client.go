// Package notion queries the task database directly, without going through
// the agent. It backs the tasks command.
package notion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/jingkaihe/dbrain/pkg/logger"
	"github.com/jingkaihe/dbrain/pkg/version"
)

const (
	DefaultBaseURL = "https://api.notion.com"
	APIVersion     = "2025-02-13"
	DefaultLimit   = 50
	// MaxPageSize is the largest page_size the API accepts.
	MaxPageSize = 100
)

// Properties names the task-database properties the queries use.
type Properties struct {
	Title            string
	Due              string
	Status           string
	DoneStatus       string
	InProgressStatus string
	// NewStatus is the status given to created tasks. Empty leaves it unset.
	NewStatus string
	Project   string
}

var DefaultProperties = Properties{
	Title:            "Task",
	Due:              "Due",
	Status:           "Status",
	DoneStatus:       "Done",
	InProgressStatus: "In progress",
	NewStatus:        "Not started",
	Project:          "Project",
}

// Task is a simplified task row.
type Task struct {
	Name    string `json:"name"`
	Status  string `json:"status,omitempty"`
	DueDate string `json:"due_date,omitempty"`
}

// APIError is a non-success response from the API.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("notion api returned %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("notion api returned %d", e.StatusCode)
}

// Temporary reports whether repeating the request may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client is a thin task-database client.
type Client struct {
	http       *resty.Client
	databaseID string
	props      Properties
	location   *time.Location
	now        func() time.Time
	attempts   uint
	delay      time.Duration
}

type Option func(*Client)

func WithBaseURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.http.SetBaseURL(strings.TrimRight(url, "/"))
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.SetTimeout(d)
		}
	}
}

func WithProperties(p Properties) Option {
	return func(c *Client) {
		if p != (Properties{}) {
			c.props = p
		}
	}
}

// WithLocation sets the zone "today" is computed in.
func WithLocation(loc *time.Location) Option {
	return func(c *Client) {
		if loc != nil {
			c.location = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithRetry sets the number of attempts for transient failures and the
// initial backoff delay.
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(c *Client) {
		// retry-go treats zero attempts as unlimited.
		c.attempts = max(attempts, 1)
		c.delay = delay
	}
}

// NewClient creates a client for the task database databaseID.
func NewClient(token, databaseID string, opts ...Option) *Client {
	c := &Client{
		http: resty.New().
			SetBaseURL(DefaultBaseURL).
			SetTimeout(10*time.Second).
			SetAuthToken(token).
			SetHeader("Notion-Version", APIVersion).
			SetHeader("Content-Type", "application/json").
			SetHeader("User-Agent", version.UserAgent()).
			SetLogger(logger.L),
		databaseID: databaseID,
		props:      DefaultProperties,
		location:   time.Local,
		now:        time.Now,
		attempts:   3,
		delay:      time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type queryRequest struct {
	Filter   any              `json:"filter"`
	Sorts    []map[string]any `json:"sorts"`
	PageSize int              `json:"page_size"`
}

type queryResponse struct {
	Results []page `json:"results"`
	HasMore bool   `json:"has_more"`
}

type page struct {
	Properties map[string]json.RawMessage `json:"properties"`
}

// QueryTasks returns up to limit tasks matching q, ordered by due date.
func (c *Client) QueryTasks(ctx context.Context, q QueryType, limit int) ([]Task, error) {
	if c.databaseID == "" {
		return nil, errors.New("notion tasks database id is not configured")
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	body := queryRequest{
		Filter:   c.filter(q),
		Sorts:    []map[string]any{{"property": c.props.Due, "direction": "ascending"}},
		PageSize: limit,
	}

	var out queryResponse
	err := retry.Do(
		func() error {
			return c.post(ctx, "/v1/databases/"+c.databaseID+"/query", body, &out)
		},
		retry.RetryIf(isRetryable),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			logger.G(ctx).WithError(err).WithField("attempt", n+1).Warn("retrying notion query")
		}),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query %s tasks", q)
	}

	tasks := make([]Task, 0, len(out.Results))
	for _, p := range out.Results {
		t := c.extract(p)
		if t.Name == "" {
			continue
		}
		tasks = append(tasks, t)
	}
	logger.G(ctx).WithField("query", q).WithField("count", len(tasks)).WithField("has_more", out.HasMore).Debug("queried tasks")
	return tasks, nil
}

// NewTask is a task to create.
type NewTask struct {
	Title   string
	DueDate string
	Project string
}

// CreatedTask identifies a page made by CreateTask.
type CreatedTask struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

var ErrEmptyTitle = errors.New("task title is empty")

// CreateTask adds a page to the task database. Only rate limiting is
// retried: any other failure may already have created the page.
func (c *Client) CreateTask(ctx context.Context, task NewTask) (*CreatedTask, error) {
	if c.databaseID == "" {
		return nil, errors.New("notion tasks database id is not configured")
	}
	title := strings.TrimSpace(task.Title)
	if title == "" {
		return nil, ErrEmptyTitle
	}

	props := map[string]any{
		c.props.Title: map[string]any{
			"title": []any{map[string]any{"text": map[string]any{"content": title}}},
		},
	}
	if c.props.NewStatus != "" {
		props[c.props.Status] = map[string]any{"status": map[string]any{"name": c.props.NewStatus}}
	}
	if task.DueDate != "" {
		props[c.props.Due] = map[string]any{"date": map[string]any{"start": task.DueDate}}
	}
	if project := strings.TrimSpace(task.Project); project != "" && c.props.Project != "" {
		props[c.props.Project] = map[string]any{"multi_select": []any{map[string]any{"name": project}}}
	}
	body := map[string]any{
		"parent":     map[string]any{"database_id": c.databaseID},
		"properties": props,
	}

	var out CreatedTask
	err := retry.Do(
		func() error {
			return c.post(ctx, "/v1/pages", body, &out)
		},
		retry.RetryIf(isRateLimited),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			logger.G(ctx).WithError(err).WithField("attempt", n+1).Warn("retrying notion task creation")
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create task")
	}
	logger.G(ctx).WithField("page_id", out.ID).Debug("created task")
	return &out, nil
}

// ResolveDue turns "today", "tomorrow" or a YYYY-MM-DD date into the date
// stored on a task. Empty stays empty.
func (c *Client) ResolveDue(s string) (string, error) {
	now := c.now().In(c.location)
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "":
		return "", nil
	case "today":
		return now.Format("2006-01-02"), nil
	case "tomorrow":
		return now.AddDate(0, 0, 1).Format("2006-01-02"), nil
	default:
		d, err := time.ParseInLocation("2006-01-02", v, c.location)
		if err != nil {
			return "", errors.Errorf("invalid due date %q (expected today, tomorrow or YYYY-MM-DD)", s)
		}
		return d.Format("2006-01-02"), nil
	}
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	apiErr := &APIError{}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		ForceContentType("application/json").
		SetResult(result).
		SetError(apiErr).
		Post(path)
	if err != nil && (resp == nil || resp.RawResponse == nil) {
		return errors.Wrap(err, "notion request failed")
	}
	if !resp.IsSuccess() {
		apiErr.StatusCode = resp.StatusCode()
		return apiErr
	}
	if err != nil {
		return retry.Unrecoverable(errors.Wrap(err, "failed to decode notion response"))
	}
	return nil
}

func isRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return true
}

func isRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}

func (c *Client) filter(q QueryType) any {
	now := c.now().In(c.location)
	today := now.Format("2006-01-02")
	tomorrow := now.AddDate(0, 0, 1).Format("2006-01-02")
	notDone := map[string]any{
		"property": c.props.Status,
		"status":   map[string]any{"does_not_equal": c.props.DoneStatus},
	}

	switch q {
	case Overdue:
		return map[string]any{"and": []any{
			map[string]any{"property": c.props.Due, "date": map[string]any{"before": today}},
			notDone,
		}}
	case Today:
		return map[string]any{"property": c.props.Due, "date": map[string]any{"equals": today}}
	case Tomorrow:
		return map[string]any{"property": c.props.Due, "date": map[string]any{"equals": tomorrow}}
	case InProgress:
		return map[string]any{"property": c.props.Status, "status": map[string]any{"equals": c.props.InProgressStatus}}
	default:
		return notDone
	}
}

type titleProperty struct {
	Title []struct {
		PlainText string `json:"plain_text"`
	} `json:"title"`
}

type statusProperty struct {
	Status *struct {
		Name string `json:"name"`
	} `json:"status"`
}

type dateProperty struct {
	Date *struct {
		Start string `json:"start"`
	} `json:"date"`
}

func (c *Client) extract(p page) Task {
	var t Task

	var title titleProperty
	if raw, ok := p.Properties[c.props.Title]; ok && json.Unmarshal(raw, &title) == nil {
		var sb strings.Builder
		for _, part := range title.Title {
			sb.WriteString(part.PlainText)
		}
		t.Name = strings.TrimSpace(sb.String())
	}

	var status statusProperty
	if raw, ok := p.Properties[c.props.Status]; ok && json.Unmarshal(raw, &status) == nil && status.Status != nil {
		t.Status = status.Status.Name
	}

	var due dateProperty
	if raw, ok := p.Properties[c.props.Due]; ok && json.Unmarshal(raw, &due) == nil && due.Date != nil {
		t.DueDate = due.Date.Start
	}
	return t
}
