package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/iota-uz/sheet-importer/modules/imports/domain/entities/importjob"
	"github.com/iota-uz/sheet-importer/modules/imports/services"
	"github.com/iota-uz/sheet-importer/pkg/application"
	"github.com/iota-uz/sheet-importer/pkg/composables"
	"github.com/iota-uz/sheet-importer/pkg/serrors"
)

const DefaultKeepAlive = 15 * time.Second

type JobsController struct {
	jobs      *services.JobService
	uploads   UploadOptions
	basePath  string
	keepAlive time.Duration
	upgrader  websocket.Upgrader
}

func NewJobsController(app application.Application, uploads UploadOptions) application.Controller {
	return &JobsController{
		jobs:      app.Service(services.JobService{}).(*services.JobService),
		uploads:   uploads,
		basePath:  "/api/imports/jobs",
		keepAlive: DefaultKeepAlive,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Cross-origin policy is enforced by the CORS middleware.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (c *JobsController) Key() string {
	return c.basePath
}

func (c *JobsController) Register(r *mux.Router) {
	router := r.PathPrefix(c.basePath).Subrouter()
	router.HandleFunc("/start", c.Start).Methods(http.MethodPost)
	router.HandleFunc("/{id}/cancel", c.Cancel).Methods(http.MethodPost)
	router.HandleFunc("/{id}/events", c.Events).Methods(http.MethodGet)
	router.HandleFunc("/{id}/ws", c.Socket).Methods(http.MethodGet)
	router.HandleFunc("/{id}", c.Get).Methods(http.MethodGet)
}

type startResponse struct {
	OK             bool      `json:"ok"`
	JobID          uuid.UUID `json:"jobId"`
	TableName      string    `json:"tableName"`
	SourceFileName string    `json:"sourceFileName"`
}

func (c *JobsController) Start(w http.ResponseWriter, r *http.Request) {
	up, err := saveUpload(w, r, c.uploads)
	if err != nil {
		writeError(w, r, err)
		return
	}
	job, err := c.jobs.Create(r.Context(), r.FormValue("importType"), up.OriginalName)
	if err != nil {
		_ = os.Remove(up.Path)
		writeError(w, r, err)
		return
	}
	if _, err := c.jobs.Start(r.Context(), job.ID, up.Path); err != nil {
		writeError(w, r, err)
		return
	}
	composables.UseLogger(r.Context()).
		WithField("job_id", job.ID.String()).
		WithField("report_kind", job.ReportKind).
		Info("import job started")
	writeJSON(w, r, startResponse{
		OK:             true,
		JobID:          job.ID,
		TableName:      job.TableName,
		SourceFileName: job.SourceFileName,
	})
}

func (c *JobsController) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := jobID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := c.jobs.RequestCancel(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, map[string]bool{"ok": true})
}

func (c *JobsController) Get(w http.ResponseWriter, r *http.Request) {
	id, err := jobID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	job, err := c.jobs.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, map[string]any{"ok": true, "job": job})
}

// Events streams the job's events as server-sent events until a final event
// or client disconnect.
func (c *JobsController) Events(w http.ResponseWriter, r *http.Request) {
	events, job, unsubscribe, err := c.subscribe(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer unsubscribe()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, fmt.Errorf("streaming unsupported by %T", w))
		return
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	send := func(ev importjob.Event) bool {
		data, err := json.Marshal(ev)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !send(connectedEvent(job)) || job.Status.IsTerminal() {
		return
	}

	ticker := time.NewTicker(c.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
			if c.settled(r.Context(), job.ID, events, send) {
				return
			}
		case ev, ok := <-events:
			if !ok || !send(ev) || ev.Type.IsFinal() {
				return
			}
		}
	}
}

// Socket delivers the same events as Events over a websocket.
func (c *JobsController) Socket(w http.ResponseWriter, r *http.Request) {
	events, job, unsubscribe, err := c.subscribe(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer unsubscribe()

	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		composables.UseLogger(r.Context()).WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// Reading is required to process close and pong frames.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	write := func(ev importjob.Event) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(c.keepAlive))
		return conn.WriteJSON(ev) == nil
	}
	closeNormal := func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	}

	if !write(connectedEvent(job)) {
		return
	}
	if job.Status.IsTerminal() {
		closeNormal()
		return
	}

	ticker := time.NewTicker(c.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				return
			}
			if c.settled(ctx, job.ID, events, write) {
				closeNormal()
				return
			}
		case ev, ok := <-events:
			if !ok || !write(ev) {
				return
			}
			if ev.Type.IsFinal() {
				closeNormal()
				return
			}
		}
	}
}

// subscribe registers for events before reading the job so a final event
// published in between is not lost.
func (c *JobsController) subscribe(r *http.Request) (<-chan importjob.Event, *importjob.ImportJob, func(), error) {
	id, err := jobID(r)
	if err != nil {
		return nil, nil, nil, err
	}
	events, unsubscribe := c.jobs.Subscribe(id)
	job, err := c.jobs.Get(r.Context(), id)
	if err != nil {
		unsubscribe()
		return nil, nil, nil, err
	}
	return events, job, unsubscribe, nil
}

// settled reports whether the job has finished even though its final event
// has not come through events. Buffered events are delivered first; when none
// of them is final, one is rebuilt from the stored job.
func (c *JobsController) settled(ctx context.Context, id uuid.UUID, events <-chan importjob.Event, deliver func(importjob.Event) bool) bool {
	job, err := c.jobs.Get(ctx, id)
	if err != nil || !job.Status.IsTerminal() {
		return false
	}
	for {
		select {
		case ev, ok := <-events:
			if !ok || !deliver(ev) || ev.Type.IsFinal() {
				return true
			}
		default:
			if final, ok := importjob.FinalEvent(job); ok {
				deliver(final)
			}
			return true
		}
	}
}

func connectedEvent(job *importjob.ImportJob) importjob.Event {
	ev := importjob.Event{
		Type:   importjob.EventConnected,
		JobID:  job.ID,
		Status: job.Status,
		Result: job.Result,
		At:     time.Now(),
	}
	if job.ErrorMessage != nil {
		ev.Message = *job.ErrorMessage
	}
	return ev
}

func jobID(r *http.Request) (uuid.UUID, error) {
	raw := mux.Vars(r)["id"]
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, serrors.Validation("invalid job id %q", raw)
	}
	return id, nil
}
