package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"prism-tasks/domain"
)

const (
	tracerName       = "prism-tasks/gateway"
	maxErrorBodySize = 4 * 1024
	headerRequestID  = "X-Request-ID"
)

var errEmptyBody = errors.New("response carried no canonical record")

// Credentials supplies the bearer token for each call.
type Credentials interface {
	Bearer() (string, error)
}

// clearer is implemented by credentials that can drop a token the remote
// store rejected, so later calls fail before reaching the network.
type clearer interface {
	Clear()
}

// Client talks to the remote task store over its REST API.
type Client struct {
	baseURL string
	creds   Credentials
	http    *http.Client
	logger  *log.Logger
	tracer  trace.Tracer
}

var _ domain.Gateway = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTracerProvider sets the provider spans are recorded with.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		if tp != nil {
			c.tracer = tp.Tracer(tracerName)
		}
	}
}

// NewClient creates a REST gateway client rooted at baseURL.
func NewClient(baseURL string, creds Credentials, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		http:    &http.Client{},
		logger:  log.StandardLogger(),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func taskPath(id string) string       { return "/api/tasks/" + url.PathEscape(id) + "/" }
func subtaskPath(id string) string    { return "/api/subtasks/" + url.PathEscape(id) + "/" }
func attachmentPath(id string) string { return "/api/attachments/" + url.PathEscape(id) + "/" }

// ListTasks returns every task of the signed-in user.
func (c *Client) ListTasks(ctx context.Context) ([]domain.Task, error) {
	var out []wireTask
	if err := c.doJSON(ctx, "list_tasks", http.MethodGet, "/api/tasks/", nil, &out); err != nil {
		return nil, err
	}
	tasks := make([]domain.Task, 0, len(out))
	for _, w := range out {
		tasks = append(tasks, w.toDomain())
	}
	return tasks, nil
}

// GetTask fetches one task including subtasks and attachments.
func (c *Client) GetTask(ctx context.Context, id string) (domain.Task, error) {
	var out wireTask
	if err := c.doJSON(ctx, "get_task", http.MethodGet, taskPath(id), nil, &out); err != nil {
		return domain.Task{}, err
	}
	return c.canonicalTask("get_task", out)
}

// CreateTask creates a task and returns the stored record.
func (c *Client) CreateTask(ctx context.Context, t domain.NewTask) (domain.Task, error) {
	var out wireTask
	if err := c.doJSON(ctx, "create_task", http.MethodPost, "/api/tasks/", t, &out); err != nil {
		return domain.Task{}, err
	}
	return c.canonicalTask("create_task", out)
}

// UpdateTask sends a partial update.
func (c *Client) UpdateTask(ctx context.Context, id string, p domain.Patch) (domain.Task, error) {
	var out wireTask
	if err := c.doJSON(ctx, "update_task", http.MethodPatch, taskPath(id), p, &out); err != nil {
		return domain.Task{}, err
	}
	return c.canonicalTask("update_task", out)
}

// DeleteTask removes a task; the remote store cascades its sub-records.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.doJSON(ctx, "delete_task", http.MethodDelete, taskPath(id), nil, nil)
}

// CreateSubtask adds a subtask to a task.
func (c *Client) CreateSubtask(ctx context.Context, taskID, title string) (domain.Subtask, error) {
	var out wireSubtask
	body := newSubtaskRequest{Task: taskID, Title: title}
	if err := c.doJSON(ctx, "create_subtask", http.MethodPost, "/api/subtasks/", body, &out); err != nil {
		return domain.Subtask{}, err
	}
	if out.ID == "" {
		return domain.Subtask{}, &domain.GatewayError{Op: "create_subtask", Status: http.StatusOK, Err: errEmptyBody}
	}
	return out.toDomain(), nil
}

// UpdateSubtask sends a partial subtask update.
func (c *Client) UpdateSubtask(ctx context.Context, id string, p domain.SubtaskPatch) (domain.Subtask, error) {
	var out wireSubtask
	if err := c.doJSON(ctx, "update_subtask", http.MethodPatch, subtaskPath(id), p, &out); err != nil {
		return domain.Subtask{}, err
	}
	if out.ID == "" {
		return domain.Subtask{}, &domain.GatewayError{Op: "update_subtask", Status: http.StatusOK, Err: errEmptyBody}
	}
	return out.toDomain(), nil
}

// DeleteSubtask removes a subtask.
func (c *Client) DeleteSubtask(ctx context.Context, id string) error {
	return c.doJSON(ctx, "delete_subtask", http.MethodDelete, subtaskPath(id), nil, nil)
}

// CreateAttachment uploads a file as multipart form data.
func (c *Client) CreateAttachment(ctx context.Context, taskID string, u domain.Upload) (domain.Attachment, error) {
	if u.Body == nil {
		return domain.Attachment{}, &domain.ValidationError{Field: "file", Reason: "must not be empty"}
	}
	buf := new(bytes.Buffer)
	mw := multipart.NewWriter(buf)
	if err := mw.WriteField("task", taskID); err != nil {
		return domain.Attachment{}, err
	}
	name := u.Filename
	if name == "" {
		name = "upload"
	}
	ct := u.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	h.Set("Content-Type", ct)
	part, err := mw.CreatePart(h)
	if err != nil {
		return domain.Attachment{}, err
	}
	if _, err := io.Copy(part, u.Body); err != nil {
		return domain.Attachment{}, fmt.Errorf("read upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return domain.Attachment{}, err
	}

	var out wireAttachment
	if err := c.do(ctx, "create_attachment", http.MethodPost, "/api/attachments/", buf, mw.FormDataContentType(), &out); err != nil {
		return domain.Attachment{}, err
	}
	if out.ID == "" {
		return domain.Attachment{}, &domain.GatewayError{Op: "create_attachment", Status: http.StatusOK, Err: errEmptyBody}
	}
	return out.toDomain(), nil
}

// DeleteAttachment removes an attachment.
func (c *Client) DeleteAttachment(ctx context.Context, id string) error {
	return c.doJSON(ctx, "delete_attachment", http.MethodDelete, attachmentPath(id), nil, nil)
}

// Profile fetches the signed-in user's profile.
func (c *Client) Profile(ctx context.Context) (domain.Profile, error) {
	var out wireProfile
	if err := c.doJSON(ctx, "profile", http.MethodGet, "/api/profile/", nil, &out); err != nil {
		return domain.Profile{}, err
	}
	return out.toDomain(), nil
}

func (c *Client) canonicalTask(op string, w wireTask) (domain.Task, error) {
	if w.ID == "" {
		return domain.Task{}, &domain.GatewayError{Op: op, Status: http.StatusOK, Err: errEmptyBody}
	}
	return w.toDomain(), nil
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := sonic.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", op, err)
		}
		r = bytes.NewReader(data)
	}
	ct := ""
	if r != nil {
		ct = "application/json"
	}
	return c.do(ctx, op, method, path, r, ct, out)
}

func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, contentType string, out any) (err error) {
	bearer, err := c.creds.Bearer()
	if err != nil {
		return fmt.Errorf("gateway %s: %w", op, err)
	}

	ctx, span := c.tracer.Start(ctx, "gateway."+op, trace.WithSpanKind(trace.SpanKindClient))
	start := time.Now()
	status := 0
	defer func() {
		span.SetAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
			attribute.Int("http.response.status_code", status),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		c.logger.WithFields(log.Fields{
			"op":          op,
			"status":      status,
			"duration_ms": float64(time.Since(start)) / float64(time.Millisecond),
		}).Debug("gateway.request")
	}()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &domain.GatewayError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(headerRequestID, uuid.NewString())
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &domain.GatewayError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	if err := mapStatus(op, resp); err != nil {
		if resp.StatusCode == http.StatusUnauthorized {
			if cl, ok := c.creds.(clearer); ok {
				cl.Clear()
			}
		}
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.GatewayError{Op: op, Status: status, Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return &domain.GatewayError{Op: op, Status: status, Err: errEmptyBody}
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return &domain.GatewayError{Op: op, Status: status, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// mapStatus turns non-2xx responses into domain errors.
func mapStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("gateway %s: %w", op, domain.ErrUnauthorized)
	case http.StatusNotFound:
		return &domain.GatewayError{Op: op, Status: resp.StatusCode, Err: domain.ErrNotFound}
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	text := strings.TrimSpace(string(msg))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return &domain.GatewayError{Op: op, Status: resp.StatusCode, Err: errors.New(text)}
}
