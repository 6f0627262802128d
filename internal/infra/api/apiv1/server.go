package apiv1

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"event-companion-sync/internal/domain/model"
	"event-companion-sync/internal/infra/api"
	"event-companion-sync/internal/infra/scheduler"
	"event-companion-sync/internal/usecase"
)

const maxBodyBytes = 1 << 20

// Trigger starts a real sync run against the content source.
type Trigger interface {
	Trigger(ctx context.Context, objectType model.ObjectType, src model.SyncSource) (*model.SyncJob, error)
}

// ScheduleLister reports the configured periodic syncs.
type ScheduleLister interface {
	Entries() []scheduler.Entry
}

// Server exposes the sync monitor API over a SyncUseCase.
type Server struct {
	uc                usecase.SyncUseCase
	trigger           Trigger
	schedules         ScheduleLister
	defaultMaxRetries int
	log               *zerolog.Logger
	now               func() time.Time
}

func NewServer(uc usecase.SyncUseCase, defaultMaxRetries int, logger *zerolog.Logger) *Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Server{uc: uc, defaultMaxRetries: defaultMaxRetries, log: logger, now: time.Now}
}

// WithTrigger mounts POST /trigger. Without it jobs can only be created
// and driven by external workers.
func (s *Server) WithTrigger(t Trigger) *Server {
	s.trigger = t
	return s
}

func (s *Server) WithSchedules(l ScheduleLister) *Server {
	s.schedules = l
	return s
}

// RegisterAPIV1 mounts the sync routes under /api/v1/sync.
func RegisterAPIV1(r chi.Router, s *Server) {
	r.Route("/api/v1/sync", func(r chi.Router) {
		r.Get("/summary", s.summary)
		if s.trigger != nil {
			r.Post("/trigger", s.triggerSync)
		}
		if s.schedules != nil {
			r.Get("/schedules", s.listSchedules)
		}
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.listJobs)
			r.Post("/", s.createJob)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getJob)
				r.Post("/events", s.postEvent)
				r.Post("/requeue", s.requeue)
				r.Get("/logs", s.listLogs)
				r.Post("/logs", s.appendLog)
			})
		})
	})
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f model.JobFilter
	if v := q.Get("status"); v != "" {
		st, err := model.ParseSyncStatus(v)
		if err != nil {
			badRequest(w, "unknown status "+v)
			return
		}
		f.Status = st
	}
	if v := q.Get("object_type"); v != "" {
		ot, err := model.ParseObjectType(v)
		if err != nil {
			badRequest(w, "unknown object_type "+v)
			return
		}
		f.ObjectType = ot
	}
	f.Query = q.Get("q")

	now := s.now()
	items := make([]Job, 0)
	for j, err := range s.uc.ListJobs(r.Context(), f) {
		if err != nil {
			writeError(w, r, s.log, err)
			return
		}
		items = append(items, toJob(j, now))
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if !decode(w, r, &req) {
		return
	}
	ot, err := model.ParseObjectType(req.ObjectType)
	if err != nil {
		badRequest(w, "unknown object_type "+req.ObjectType)
		return
	}
	src := model.SyncSourceManual
	if req.Source != "" {
		if src, err = model.ParseSyncSource(req.Source); err != nil {
			badRequest(w, "unknown source "+req.Source)
			return
		}
	}
	maxRetries := s.defaultMaxRetries
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}

	job, err := s.uc.CreateJob(r.Context(), usecase.CreateJobInput{
		ObjectType:   ot,
		Source:       src,
		RecordsTotal: req.RecordsTotal,
		MaxRetries:   maxRetries,
	})
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	w.Header().Set("Location", "/api/v1/sync/jobs/"+job.ID)
	api.WriteJSON(w, http.StatusCreated, toJob(job, s.now()))
}

func (s *Server) triggerSync(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if !decode(w, r, &req) {
		return
	}
	ot, err := model.ParseObjectType(req.ObjectType)
	if err != nil {
		badRequest(w, "unknown object_type "+req.ObjectType)
		return
	}
	job, err := s.trigger.Trigger(r.Context(), ot, model.SyncSourceManual)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	w.Header().Set("Location", "/api/v1/sync/jobs/"+job.ID)
	api.WriteJSON(w, http.StatusAccepted, toJob(job, s.now()))
}

func (s *Server) listSchedules(w http.ResponseWriter, _ *http.Request) {
	items := make([]Schedule, 0)
	for _, e := range s.schedules.Entries() {
		sc := Schedule{ObjectType: string(e.ObjectType), Spec: e.Spec}
		if !e.Next.IsZero() {
			next := e.Next.UTC()
			sc.Next = &next
		}
		items = append(items, sc)
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.uc.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, toJob(job, s.now()))
}

// postEvent passes the event type through unparsed; unknown types are
// rejected by the use case as invalid transitions.
func (s *Server) postEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if !decode(w, r, &req) {
		return
	}
	ev := model.Event{Type: model.EventType(req.Type), Records: req.Records, Message: req.Message}
	job, err := s.uc.Transition(r.Context(), chi.URLParam(r, "id"), ev)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, toJob(job, s.now()))
}

func (s *Server) requeue(w http.ResponseWriter, r *http.Request) {
	job, err := s.uc.Requeue(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, toJob(job, s.now()))
}

func (s *Server) listLogs(w http.ResponseWriter, r *http.Request) {
	items := make([]LogEntry, 0)
	for e, err := range s.uc.ListLogs(r.Context(), chi.URLParam(r, "id")) {
		if err != nil {
			writeError(w, r, s.log, err)
			return
		}
		items = append(items, toLogEntry(e))
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) appendLog(w http.ResponseWriter, r *http.Request) {
	var req appendLogRequest
	if !decode(w, r, &req) {
		return
	}
	level := model.LogLevelInfo
	if req.Level != "" {
		lv, err := model.ParseLogLevel(req.Level)
		if err != nil {
			badRequest(w, "unknown level "+req.Level)
			return
		}
		level = lv
	}
	entry, err := s.uc.AppendLog(r.Context(), chi.URLParam(r, "id"), level, req.Message, req.Details)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, toLogEntry(entry))
}

func (s *Server) summary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.uc.Summary(r.Context())
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	out := Summary{Total: sum.Total, ByStatus: make(map[string]int, len(sum.ByStatus))}
	for st, n := range sum.ByStatus {
		out.ByStatus[string(st)] = n
	}
	api.WriteJSON(w, http.StatusOK, out)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.Body == http.NoBody {
		badRequest(w, "missing body")
		return false
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		badRequest(w, "invalid json: "+err.Error())
		return false
	}
	return true
}
