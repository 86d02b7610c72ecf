package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"alarm-manager/internal/domain"
	"alarm-manager/internal/usecase"
)

// Server is a primary adapter that exposes the HTTP API and a status page.
// It depends on the use case (primary port).
type Server struct {
	usecase usecase.AlarmUseCase
	server  *http.Server
	log     *zap.Logger
}

// NewServer creates the HTTP server bound to addr.
func NewServer(uc usecase.AlarmUseCase, addr string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := &Server{usecase: uc, log: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/alarms", srv.handleList)
	mux.HandleFunc("POST /api/alarms", srv.handleCreate)
	mux.HandleFunc("GET /api/alarms/{id}", srv.handleGet)
	mux.HandleFunc("PUT /api/alarms/{id}", srv.handleUpdate)
	mux.HandleFunc("DELETE /api/alarms/{id}", srv.handleDelete)
	mux.HandleFunc("POST /api/alarms/{id}/toggle", srv.handleToggle)
	mux.HandleFunc("POST /api/alarms/{id}/snooze", srv.handleSnooze)
	mux.HandleFunc("POST /api/alarms/{id}/stop", srv.handleStop)
	mux.HandleFunc("GET /api/events", srv.handleEvents)
	mux.HandleFunc("GET /{$}", srv.handleRoot)

	srv.server = &http.Server{
		Addr:              addr,
		Handler:           loggingMiddleware(logger, mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start blocks and serves HTTP traffic.
func (s *Server) Start() error {
	s.log.Info("http server listening", zap.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta http-equiv="refresh" content="10">
    <title>Alarms</title>
    <style>
        body { font-family: sans-serif; max-width: 640px; margin: 50px auto; padding: 20px; }
        h1 { color: #333; }
        table { width: 100%; border-collapse: collapse; }
        td, th { padding: 8px; border-bottom: 1px solid #ddd; text-align: left; }
        .off { color: #999; }
        .firing { color: #c00; font-weight: bold; }
    </style>
</head>
<body>
    <h1>Alarms</h1>
    {{if .}}
    <table>
        <tr><th>Time</th><th>Date</th><th>Ringtone</th><th>State</th></tr>
        {{range .}}
        <tr class="{{if not .Enabled}}off{{else if eq .State "firing"}}firing{{end}}">
            <td>{{.Clock}}</td>
            <td>{{.Time.Format "Mon Jan 2"}}</td>
            <td>{{.Ringtone}}</td>
            <td>{{.State}}</td>
        </tr>
        {{end}}
    </table>
    {{else}}
    <p>No alarms.</p>
    {{end}}
</body>
</html>`))

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	views, err := s.views()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTmpl.Execute(w, views); err != nil {
		s.log.Warn("render page", zap.Error(err))
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	views, err := s.views()
	if err != nil {
		s.respondError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, views)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	alarm, err := s.usecase.Get(r.PathValue("id"))
	if err != nil {
		s.respondError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, s.view(alarm))
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := decodeBody(r, &req, false); err != nil {
		respondBadRequest(w, err)
		return
	}
	alarm, err := s.usecase.Create(req.Time, req.Ringtone)
	s.respondAlarm(w, http.StatusCreated, alarm, err)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req UpdateRequest
	if err := decodeBody(r, &req, false); err != nil {
		respondBadRequest(w, err)
		return
	}
	if req.Time == nil && req.Ringtone == nil {
		respondBadRequest(w, errors.New("nothing to update"))
		return
	}

	var (
		alarm domain.Alarm
		err   error
	)
	if req.Time != nil {
		alarm, err = s.usecase.Reschedule(id, *req.Time)
		if err != nil {
			s.respondAlarm(w, http.StatusOK, alarm, err)
			return
		}
	}
	if req.Ringtone != nil {
		alarm, err = s.usecase.SetRingtone(id, *req.Ringtone)
	}
	s.respondAlarm(w, http.StatusOK, alarm, err)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.usecase.Delete(r.PathValue("id")); err != nil {
		s.respondError(w, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	alarm, err := s.usecase.Toggle(r.PathValue("id"))
	s.respondAlarm(w, http.StatusOK, alarm, err)
}

func (s *Server) handleSnooze(w http.ResponseWriter, r *http.Request) {
	var req SnoozeRequest
	if err := decodeBody(r, &req, true); err != nil {
		respondBadRequest(w, err)
		return
	}
	if req.DelaySeconds < 0 || req.DelaySeconds > int(domain.MaxSnoozeDelay/time.Second) {
		s.respondError(w, domain.ErrInvalidDelay, nil)
		return
	}
	alarm, err := s.usecase.Snooze(r.PathValue("id"), time.Duration(req.DelaySeconds)*time.Second)
	s.respondAlarm(w, http.StatusOK, alarm, err)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.usecase.CancelFiring(id); err != nil {
		s.respondError(w, err, nil)
		return
	}
	alarm, err := s.usecase.Get(id)
	s.respondAlarm(w, http.StatusOK, alarm, err)
}

// handleEvents streams changes as server-sent events until the client leaves.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	changes := s.usecase.Subscribe(r.Context())

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	if err := rc.Flush(); err != nil {
		s.log.Warn("event stream cannot flush", zap.Error(err))
		return
	}

	for change := range changes {
		data, err := json.Marshal(NewChangeView(change))
		if err != nil {
			s.log.Warn("encode change", zap.Error(err))
			continue
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", change.Type, data); err != nil {
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func (s *Server) views() ([]AlarmView, error) {
	alarms, err := s.usecase.List()
	if err != nil {
		return nil, err
	}
	views := make([]AlarmView, 0, len(alarms))
	for _, a := range alarms {
		views = append(views, s.view(a))
	}
	return views, nil
}

func (s *Server) view(a domain.Alarm) AlarmView {
	state, err := s.usecase.State(a.ID)
	if err != nil {
		state = ""
	}
	return NewAlarmView(a, state)
}

// respondAlarm writes alarm on success. A timer failure still carries the
// stored record.
func (s *Server) respondAlarm(w http.ResponseWriter, status int, alarm domain.Alarm, err error) {
	if err == nil {
		respondJSON(w, status, s.view(alarm))
		return
	}
	var unavailable *domain.TimerUnavailableError
	if errors.As(err, &unavailable) && alarm.ID != "" {
		v := s.view(alarm)
		s.respondError(w, err, &v)
		return
	}
	s.respondError(w, err, nil)
}

func (s *Server) respondError(w http.ResponseWriter, err error, alarm *AlarmView) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.Error(err))
	}
	respondJSON(w, status, ErrorResponse{Error: err.Error(), Code: code, Alarm: alarm})
}

func respondBadRequest(w http.ResponseWriter, err error) {
	respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: CodeBadRequest})
}

// decodeBody reads a JSON body. allowEmpty accepts a missing body.
func decodeBody(r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Warn("encode JSON", zap.Error(err))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func loggingMiddleware(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)))
	})
}
