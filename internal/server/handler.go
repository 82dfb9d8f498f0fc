package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"repolens/internal/apperr"
	"repolens/internal/artifact"
	"repolens/internal/chat"
	"repolens/internal/pipeline"
)

// userHeader carries the caller's user id. Browsers cannot set headers on a
// websocket handshake, so the user_id query parameter is accepted too.
const userHeader = "X-User-Id"

const maxBodyBytes = 1 << 20

type Options struct {
	MaxSessions int
	SessionTTL  time.Duration
}

type Handler struct {
	orch     *pipeline.Orchestrator
	chat     *chat.Service
	sessions *sessionTable
}

func NewHandler(orch *pipeline.Orchestrator, chatSvc *chat.Service, opts Options) *Handler {
	return &Handler{
		orch:     orch,
		chat:     chatSvc,
		sessions: newSessionTable(orch, opts.MaxSessions, opts.SessionTTL),
	}
}

type startRequest struct {
	RepoURL string `json:"repoUrl"`
	Role    string `json:"role,omitempty"`
	UserID  string `json:"userId,omitempty"`
	Refresh bool   `json:"refresh,omitempty"`
}

type sessionView struct {
	ID         string                 `json:"id"`
	Repository artifact.RepositoryRef `json:"repository"`
	Role       string                 `json:"role,omitempty"`
	FromCache  bool                   `json:"fromCache"`
	Closed     bool                   `json:"closed"`
	StartedAt  time.Time              `json:"startedAt"`
	Tasks      []pipeline.TaskResult  `json:"tasks"`
}

type finalizeView struct {
	Analysis     artifact.CompositeAnalysis `json:"analysis"`
	Persisted    bool                       `json:"persisted"`
	PersistError string                     `json:"persistError,omitempty"`
}

func userOf(r *http.Request) string {
	if u := strings.TrimSpace(r.Header.Get(userHeader)); u != "" {
		return u
	}
	return strings.TrimSpace(r.URL.Query().Get("user_id"))
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return apperr.Wrap(apperr.CodeInvalidArgument, "invalid json body", err)
	}
	return nil
}

func (h *Handler) view(s *pipeline.Session) sessionView {
	snap := s.Snapshot()
	tasks := make([]pipeline.TaskResult, 0, len(snap))
	for _, name := range h.orch.Registry().Tasks() {
		if r, ok := snap[name]; ok {
			tasks = append(tasks, r)
		}
	}
	return sessionView{
		ID:         s.ID,
		Repository: s.Ref,
		Role:       s.Role,
		FromCache:  s.FromCache,
		Closed:     s.Closed(),
		StartedAt:  s.StartedAt,
		Tasks:      tasks,
	}
}

func (h *Handler) pipelineRequest(r *http.Request) (pipeline.Request, error) {
	var in startRequest
	if err := decodeBody(r, &in); err != nil {
		return pipeline.Request{}, err
	}
	user := strings.TrimSpace(in.UserID)
	if user == "" {
		user = userOf(r)
	}
	return pipeline.Request{
		RepoURL: in.RepoURL,
		Role:    strings.TrimSpace(in.Role),
		UserID:  user,
		Refresh: in.Refresh,
	}, nil
}

func (h *Handler) HandleStartSession(w http.ResponseWriter, r *http.Request) {
	req, err := h.pipelineRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	s, err := h.orch.StartSession(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	h.sessions.add(s)
	writeJSON(w, http.StatusCreated, h.view(s))
}

func (h *Handler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.get(r.PathValue("id"), userOf(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(s))
}

func (h *Handler) HandleAbandon(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.get(r.PathValue("id"), userOf(r))
	if err != nil {
		writeError(w, err)
		return
	}
	h.sessions.remove(s.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleRunTask(w http.ResponseWriter, r *http.Request) {
	h.handleTask(w, r, h.orch.RunTask)
}

func (h *Handler) HandleRegenerateTask(w http.ResponseWriter, r *http.Request) {
	h.handleTask(w, r, h.orch.RegenerateTask)
}

func (h *Handler) handleTask(w http.ResponseWriter, r *http.Request, run func(ctx context.Context, s *pipeline.Session, task pipeline.TaskName) error) {
	s, err := h.sessions.get(r.PathValue("id"), userOf(r))
	if err != nil {
		writeError(w, err)
		return
	}
	task, err := pipeline.ParseTaskName(r.PathValue("task"))
	if err != nil {
		writeError(w, apperr.Wrap(apperr.CodeInvalidArgument, err.Error(), err))
		return
	}
	if err := run(r.Context(), s, task); err != nil {
		writeError(w, err)
		return
	}
	res, _ := s.Result(task)
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) HandleFinalize(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.get(r.PathValue("id"), userOf(r))
	if err != nil {
		writeError(w, err)
		return
	}
	out := h.orch.Finalize(r.Context(), s)
	h.sessions.remove(s.ID)
	if apperr.CodeOf(out.PersistErr) == apperr.CodeSessionClosed {
		writeError(w, out.PersistErr)
		return
	}
	writeJSON(w, http.StatusOK, toFinalizeView(out))
}

func (h *Handler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	req, err := h.pipelineRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	_, out, err := h.orch.Run(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFinalizeView(out))
}

func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var q chat.Question
	if err := decodeBody(r, &q); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(q.UserID) == "" {
		q.UserID = userOf(r)
	}
	ans, err := h.chat.Ask(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"sessions": h.sessions.len(),
	})
}

func toFinalizeView(out pipeline.Finalized) finalizeView {
	v := finalizeView{Analysis: out.Analysis, Persisted: out.Persisted}
	if out.PersistErr != nil {
		v.PersistError = out.PersistErr.Error()
	}
	return v
}
