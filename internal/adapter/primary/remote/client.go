// Package remote drives a running alarm-manager server over its HTTP API.
package remote

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"alarm-manager/internal/adapter/primary/web"
	"alarm-manager/internal/domain"
	"alarm-manager/internal/usecase"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return e.Message
}

// Unwrap exposes the matching domain error so callers can use errors.Is.
func (e *APIError) Unwrap() error {
	return web.ErrorForCode(e.Code)
}

// Client implements the alarm commands against a remote server.
type Client struct {
	http   *resty.Client
	stream *resty.Client
	log    *zap.Logger
}

var _ usecase.AlarmCommands = (*Client)(nil)

// NewClient creates a client for the server at baseURL, e.g. http://127.0.0.1:8787.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json"),
		// Event streams stay open indefinitely.
		stream: resty.New().
			SetBaseURL(baseURL).
			SetHeader("Accept", "text/event-stream"),
		log: logger,
	}
}

func (c *Client) Create(at time.Time, ringtoneRef string) (domain.Alarm, error) {
	return c.alarmCall(c.http.R().SetBody(web.CreateRequest{Time: at, Ringtone: ringtoneRef}), http.MethodPost, "/api/alarms")
}

func (c *Client) Reschedule(id string, at time.Time) (domain.Alarm, error) {
	return c.alarmCall(c.http.R().SetPathParam("id", id).SetBody(web.UpdateRequest{Time: &at}), http.MethodPut, "/api/alarms/{id}")
}

func (c *Client) SetRingtone(id, ringtoneRef string) (domain.Alarm, error) {
	return c.alarmCall(c.http.R().SetPathParam("id", id).SetBody(web.UpdateRequest{Ringtone: &ringtoneRef}), http.MethodPut, "/api/alarms/{id}")
}

func (c *Client) Toggle(id string) (domain.Alarm, error) {
	return c.alarmCall(c.http.R().SetPathParam("id", id), http.MethodPost, "/api/alarms/{id}/toggle")
}

func (c *Client) Snooze(id string, delay time.Duration) (domain.Alarm, error) {
	req := c.http.R().SetPathParam("id", id).SetBody(web.SnoozeRequest{DelaySeconds: int(delay / time.Second)})
	return c.alarmCall(req, http.MethodPost, "/api/alarms/{id}/snooze")
}

func (c *Client) CancelFiring(id string) error {
	_, err := c.alarmCall(c.http.R().SetPathParam("id", id), http.MethodPost, "/api/alarms/{id}/stop")
	return err
}

func (c *Client) Delete(id string) error {
	resp, err := c.http.R().
		SetPathParam("id", id).
		SetError(&web.ErrorResponse{}).
		Delete("/api/alarms/{id}")
	if err != nil {
		return fmt.Errorf("delete alarm: %w", err)
	}
	if resp.IsError() {
		return apiError(resp)
	}
	return nil
}

func (c *Client) Get(id string) (domain.Alarm, error) {
	view, err := c.view(id)
	if err != nil {
		return domain.Alarm{}, err
	}
	return view.Alarm(), nil
}

// State reads the lifecycle state the server reports for id.
func (c *Client) State(id string) (domain.AlarmState, error) {
	view, err := c.view(id)
	if err != nil {
		return "", err
	}
	return domain.AlarmState(view.State), nil
}

func (c *Client) List() ([]domain.Alarm, error) {
	var views []web.AlarmView
	resp, err := c.http.R().
		SetResult(&views).
		SetError(&web.ErrorResponse{}).
		Get("/api/alarms")
	if err != nil {
		return nil, fmt.Errorf("list alarms: %w", err)
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	alarms := make([]domain.Alarm, 0, len(views))
	for _, v := range views {
		alarms = append(alarms, v.Alarm())
	}
	return alarms, nil
}

// Watch calls handle for every change the server streams until ctx is done
// or the server closes the stream.
func (c *Client) Watch(ctx context.Context, handle func(domain.Change)) error {
	resp, err := c.stream.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get("/api/events")
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("open event stream: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		return &APIError{Status: resp.StatusCode(), Message: fmt.Sprintf("event stream returned %d", resp.StatusCode())}
	}

	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var view web.ChangeView
		if err := json.Unmarshal([]byte(data), &view); err != nil {
			c.log.Warn("skip malformed event", zap.Error(err))
			continue
		}
		handle(view.Change())
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("read event stream: %w", err)
	}
	return nil
}

func (c *Client) view(id string) (web.AlarmView, error) {
	var view web.AlarmView
	resp, err := c.http.R().
		SetPathParam("id", id).
		SetResult(&view).
		SetError(&web.ErrorResponse{}).
		Get("/api/alarms/{id}")
	if err != nil {
		return view, fmt.Errorf("get alarm: %w", err)
	}
	if resp.IsError() {
		return view, apiError(resp)
	}
	return view, nil
}

func (c *Client) alarmCall(req *resty.Request, method, path string) (domain.Alarm, error) {
	var view web.AlarmView
	resp, err := req.
		SetResult(&view).
		SetError(&web.ErrorResponse{}).
		Execute(method, path)
	if err != nil {
		c.log.Debug("request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return domain.Alarm{}, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if !resp.IsError() {
		return view.Alarm(), nil
	}

	apiErr := apiError(resp)
	if body, ok := resp.Error().(*web.ErrorResponse); ok && body.Code == web.CodeTimerUnavailable && body.Alarm != nil {
		return body.Alarm.Alarm(), &domain.TimerUnavailableError{AlarmID: body.Alarm.ID, Err: apiErr}
	}
	return domain.Alarm{}, apiErr
}

func apiError(resp *resty.Response) error {
	e := &APIError{Status: resp.StatusCode()}
	if body, ok := resp.Error().(*web.ErrorResponse); ok && body != nil {
		e.Code = body.Code
		e.Message = body.Error
	}
	if e.Message == "" {
		e.Message = strings.TrimSpace(resp.String())
	}
	if e.Message == "" {
		e.Message = http.StatusText(resp.StatusCode())
	}
	return e
}

// IsUnreachable reports whether err means the server could not be contacted.
func IsUnreachable(err error) bool {
	var apiErr *APIError
	return err != nil && !errors.As(err, &apiErr)
}
