package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/contec/internal/auth"
	"github.com/kalambet/contec/internal/conversation"
	"github.com/kalambet/contec/internal/dialog"
	"github.com/kalambet/contec/internal/knowledge"
	"github.com/kalambet/contec/internal/training"
)

const maxRequestBodySize = 64 << 10 // 64KB

// Session limits used when Deps leaves them zero.
const (
	DefaultSessionIdle = 30 * time.Minute
	DefaultMaxSessions = 1000
)

// Deps holds what the HTTP layer needs.
type Deps struct {
	Controller *conversation.Controller
	Gate       *auth.Gate
	Store      knowledge.Store

	// SessionIdle is how long a session may go unused before it is dropped.
	SessionIdle time.Duration
	// MaxSessions caps live sessions; creating one more evicts the least
	// recently used.
	MaxSessions int
}

// registry keeps live sessions in memory. Each entry carries its own mutex
// so turns on one session are serialized while different sessions proceed
// in parallel. Idle sessions are swept lazily on create and get.
type registry struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry
	idle     time.Duration
	max      int
	now      func() time.Time
	// evicted is called, without r.mu held, for every session dropped by
	// expiry or the cap.
	evicted func(id string)
}

type sessionEntry struct {
	mu       sync.Mutex
	sess     *dialog.Session
	lastUsed time.Time
}

func newRegistry(idle time.Duration, maxSessions int, evicted func(id string)) *registry {
	if idle <= 0 {
		idle = DefaultSessionIdle
	}
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	return &registry{
		sessions: make(map[string]*sessionEntry),
		idle:     idle,
		max:      maxSessions,
		now:      time.Now,
		evicted:  evicted,
	}
}

func (r *registry) create() *sessionEntry {
	now := r.now()
	e := &sessionEntry{sess: dialog.New(), lastUsed: now}

	r.mu.Lock()
	dropped := r.sweepLocked(now)
	for len(r.sessions) >= r.max {
		dropped = append(dropped, r.evictOldestLocked())
	}
	r.sessions[e.sess.ID] = e
	r.mu.Unlock()

	r.notify(dropped)
	return e
}

func (r *registry) get(id string) (*sessionEntry, bool) {
	now := r.now()
	r.mu.Lock()
	dropped := r.sweepLocked(now)
	e, ok := r.sessions[id]
	if ok {
		e.lastUsed = now
	}
	r.mu.Unlock()

	r.notify(dropped)
	return e, ok
}

func (r *registry) remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

func (r *registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// sweepLocked drops sessions idle for longer than r.idle.
func (r *registry) sweepLocked(now time.Time) []string {
	var dropped []string
	for id, e := range r.sessions {
		if now.Sub(e.lastUsed) > r.idle {
			delete(r.sessions, id)
			dropped = append(dropped, id)
		}
	}
	return dropped
}

func (r *registry) evictOldestLocked() string {
	var (
		oldest string
		at     time.Time
	)
	for id, e := range r.sessions {
		if oldest == "" || e.lastUsed.Before(at) {
			oldest, at = id, e.lastUsed
		}
	}
	delete(r.sessions, oldest)
	return oldest
}

func (r *registry) notify(ids []string) {
	for _, id := range ids {
		slog.Debug("session expired", "session", id)
		if r.evicted != nil {
			r.evicted(id)
		}
	}
}

type messageRequest struct {
	Text string `json:"text"`
}

type loginRequest struct {
	Password string `json:"password"`
}

type trainRequest struct {
	Answer string `json:"answer"`
}

// sessionView is a session as seen by one client.
type sessionView struct {
	Session        *dialog.Session `json:"session"`
	Authorized     bool            `json:"authorized"`
	TrainingPrompt string          `json:"training_prompt,omitempty"`
}

type turnResponse struct {
	Replies []dialog.Message `json:"replies"`
	sessionView
	Warning string `json:"warning,omitempty"`
}

type trainResponse struct {
	Status  training.Status  `json:"status"`
	Entry   *knowledge.Entry `json:"entry,omitempty"`
	Replies []dialog.Message `json:"replies"`
	sessionView
	Warning string `json:"warning,omitempty"`
}

// NewHandler returns the chat API:
//
//	GET    /health
//	POST   /v1/sessions
//	GET    /v1/sessions/{id}
//	DELETE /v1/sessions/{id}
//	POST   /v1/sessions/{id}/messages
//	POST   /v1/sessions/{id}/login
//	DELETE /v1/sessions/{id}/login
//	POST   /v1/sessions/{id}/training
//	POST   /v1/sessions/{id}/training/cancel
//	GET    /v1/knowledge            (bearer trainer password)
func NewHandler(deps Deps) http.Handler {
	reg := newRegistry(deps.SessionIdle, deps.MaxSessions, deps.Gate.Logout)

	r := chi.NewRouter()
	r.Get("/health", handleHealth)

	r.Route("/v1/sessions", func(r chi.Router) {
		r.Post("/", handleCreateSession(reg, deps))
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", withSession(reg, handleGetSession(deps)))
			r.Delete("/", handleDeleteSession(reg, deps))
			r.Post("/messages", withSession(reg, handleMessage(deps)))
			r.Post("/login", withSession(reg, handleLogin(deps)))
			r.Delete("/login", withSession(reg, handleLogout(deps)))
			r.Post("/training", withSession(reg, handleTrain(deps)))
			r.Post("/training/cancel", withSession(reg, handleCancel(deps)))
		})
	})

	r.With(TrainerAuth(deps.Gate)).Get("/v1/knowledge", handleListKnowledge(deps))

	return r
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *dialog.Session)

// withSession resolves {id} and holds the session's lock for the request.
func withSession(reg *registry, h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		e, ok := reg.get(id)
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "session %q not found", id)
			return
		}
		e.mu.Lock()
		defer e.mu.Unlock()
		h(w, r, e.sess)
	}
}

func view(deps Deps, sess *dialog.Session) sessionView {
	v := sessionView{Session: sess, Authorized: deps.Gate.Authorized(sess.ID)}
	if q, ok := sess.PendingQuestion(); ok && v.Authorized {
		v.TrainingPrompt = dialog.TrainingPrompt(q)
	}
	return v
}

func handleCreateSession(reg *registry, deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e := reg.create()
		slog.Debug("session created", "session", e.sess.ID)
		writeJSON(w, http.StatusCreated, view(deps, e.sess))
	}
}

func handleGetSession(deps Deps) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, sess *dialog.Session) {
		writeJSON(w, http.StatusOK, view(deps, sess))
	}
}

func handleDeleteSession(reg *registry, deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !reg.remove(id) {
			httpError(w, http.StatusNotFound, "not_found", "session %q not found", id)
			return
		}
		deps.Gate.Logout(id)
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleMessage(deps Deps) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, sess *dialog.Session) {
		var req messageRequest
		if !decodeBody(w, r, &req) {
			return
		}

		turn, err := deps.Controller.HandleInput(r.Context(), sess, req.Text)
		if errors.Is(err, conversation.ErrSessionEnded) {
			httpError(w, http.StatusConflict, "session_ended", "%v", err)
			return
		}
		if err != nil {
			slog.Error("handling message", "session", sess.ID, "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "handling message: %v", err)
			return
		}

		resp := turnResponse{Replies: turn.Replies, sessionView: view(deps, sess)}
		if resp.Replies == nil {
			resp.Replies = []dialog.Message{}
		}
		if turn.Warning != nil {
			resp.Warning = turn.Warning.Error()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleLogin(deps Deps) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, sess *dialog.Session) {
		var req loginRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := deps.Gate.Authenticate(sess.ID, req.Password); err != nil {
			slog.Info("trainer login failed", "session", sess.ID, "error", err)
			httpError(w, http.StatusUnauthorized, "authentication_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, view(deps, sess))
	}
}

func handleLogout(deps Deps) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, sess *dialog.Session) {
		deps.Gate.Logout(sess.ID)
		deps.Controller.Logout(sess)
		writeJSON(w, http.StatusOK, view(deps, sess))
	}
}

func handleTrain(deps Deps) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, sess *dialog.Session) {
		var req trainRequest
		if !decodeBody(w, r, &req) {
			return
		}
		mark := len(sess.Transcript)
		res, err := deps.Controller.Train(r.Context(), sess, req.Answer, deps.Gate.Authorized(sess.ID))
		if errors.Is(err, conversation.ErrSessionEnded) {
			httpError(w, http.StatusConflict, "session_ended", "%v", err)
			return
		}
		if err != nil {
			slog.Error("training failed", "session", sess.ID, "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		writeTrainResult(w, deps, sess, mark, res)
	}
}

func handleCancel(deps Deps) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, sess *dialog.Session) {
		mark := len(sess.Transcript)
		res, err := deps.Controller.Cancel(sess, deps.Gate.Authorized(sess.ID))
		if errors.Is(err, conversation.ErrSessionEnded) {
			httpError(w, http.StatusConflict, "session_ended", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		writeTrainResult(w, deps, sess, mark, res)
	}
}

func trainStatusCode(s training.Status) int {
	switch s {
	case training.Committed, training.Cancelled:
		return http.StatusOK
	case training.Unauthorized:
		return http.StatusUnauthorized
	case training.NothingPending:
		return http.StatusConflict
	case training.EmptyAnswer:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeTrainResult(w http.ResponseWriter, deps Deps, sess *dialog.Session, mark int, res training.Result) {
	resp := trainResponse{
		Status:      res.Status,
		Replies:     sess.Since(mark),
		sessionView: view(deps, sess),
	}
	if res.Status == training.Committed {
		entry := res.Entry
		resp.Entry = &entry
	}
	if res.Warning != nil {
		resp.Warning = res.Warning.Error()
	}
	writeJSON(w, trainStatusCode(res.Status), resp)
}

func handleListKnowledge(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kb, err := deps.Store.Load(r.Context())
		if errors.Is(err, knowledge.ErrCorrupt) {
			httpError(w, http.StatusInternalServerError, "corrupt_store", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading knowledge base: %v", err)
			return
		}
		if kb.Questions == nil {
			kb.Questions = []knowledge.Entry{}
		}
		writeJSON(w, http.StatusOK, kb)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("writing response", "error", err)
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
