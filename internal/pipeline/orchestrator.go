package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"repolens/internal/apperr"
	"repolens/internal/artifact"
	"repolens/internal/source"
	"repolens/internal/store"
)

type Config struct {
	TreeDepth    int
	ChangedLimit int
	SampleCount  int
}

func DefaultConfig() Config {
	return Config{
		TreeDepth:    source.DefaultTreeDepth,
		ChangedLimit: source.DefaultChangedLimit,
		SampleCount:  source.DefaultSampleCount,
	}
}

// Request asks for an analysis of one repository on behalf of one user.
type Request struct {
	RepoURL string
	Role    string
	UserID  string
	Refresh bool // skip the result store and recompute
}

// Finalized is the outcome of Finalize. A persistence failure never discards
// the analysis; it is reported in PersistErr.
type Finalized struct {
	Analysis   artifact.CompositeAnalysis
	Persisted  bool
	PersistErr error
}

// Orchestrator runs sessions against one fetcher, one registry and one
// result store. It is safe for concurrent use by many sessions.
type Orchestrator struct {
	fetcher  source.Fetcher
	docs     store.DocumentStore
	registry *Registry
	cfg      Config
}

func New(fetcher source.Fetcher, docs store.DocumentStore, registry *Registry, cfg Config) *Orchestrator {
	def := DefaultConfig()
	if cfg.TreeDepth <= 0 {
		cfg.TreeDepth = def.TreeDepth
	}
	if cfg.ChangedLimit <= 0 {
		cfg.ChangedLimit = def.ChangedLimit
	}
	if cfg.SampleCount <= 0 {
		cfg.SampleCount = def.SampleCount
	}
	return &Orchestrator{fetcher: fetcher, docs: docs, registry: registry, cfg: cfg}
}

func (o *Orchestrator) Registry() *Registry { return o.registry }

// StartSession parses the repository URL and either serves the persisted
// analysis or starts every task whose dependencies are met. It returns without
// waiting for any task.
func (o *Orchestrator) StartSession(ctx context.Context, req Request) (*Session, error) {
	ref, err := source.ParseRepositoryRef(req.RepoURL)
	if err != nil {
		return nil, err
	}
	role := strings.TrimSpace(req.Role)
	userID := strings.TrimSpace(req.UserID)
	s := newSession(uuid.NewString(), ref, role, userID, o.registry.Tasks(), newSourceInputs(o.fetcher, ref, o.cfg))

	if !req.Refresh && o.docs != nil {
		doc, err := o.docs.Get(ctx, ref.CanonicalURL, userID)
		switch {
		case err == nil:
			o.seedFromCache(s, doc)
			log.Printf("pipeline: session %s served %s from result store", s.ID, ref.FullName())
			return s, nil
		case !apperr.IsNotFound(err):
			log.Printf("pipeline: result store lookup for %s failed, recomputing: %v", ref.FullName(), err)
		}
	}

	s.mu.Lock()
	o.scheduleLocked(s)
	s.mu.Unlock()
	log.Printf("pipeline: session %s started for %s", s.ID, ref.FullName())
	return s, nil
}

// seedFromCache marks cached payloads Succeeded. Tasks absent from the
// document are Failed; those whose own dependency is absent are also Blocked
// so they resume once that dependency is regenerated.
func (o *Orchestrator) seedFromCache(s *Session, doc artifact.CompositeAnalysis) {
	s.FromCache = true
	s.cachedAt = doc.GeneratedAt
	if doc.Metadata != nil {
		s.inputs.seed(InputMetadata, *doc.Metadata)
	}
	values := decompose(doc)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range o.registry.Tasks() {
		r := s.results[name]
		if v, ok := values[name]; ok {
			r.succeed(v, doc.GeneratedAt)
			continue
		}
		if err := o.depErrorLocked(s, name); err != nil {
			r.fail(apperr.Wrap(apperr.CodeDependencyFailed, fmt.Sprintf("%s missing from cached analysis", name), err), true, doc.GeneratedAt)
			continue
		}
		r.fail(apperr.Newf(apperr.CodeNotFound, "%s missing from cached analysis", name), false, doc.GeneratedAt)
	}
}

// RunTask runs task once its dependencies have succeeded and waits for it.
// A succeeded task is not run again and a failed one reports its recorded
// error; RegenerateTask is the way to retry.
func (o *Orchestrator) RunTask(ctx context.Context, s *Session, task TaskName) error {
	if _, ok := o.registry.Get(task); !ok {
		return apperr.Newf(apperr.CodeNotFound, "unknown task %q", task)
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errSessionClosed(s)
	}
	r := s.results[task]
	switch {
	case r.Status == Succeeded:
		s.mu.Unlock()
		return nil
	case r.Status == Running:
		s.mu.Unlock()
		res, err := s.waitTask(ctx, task)
		if err != nil {
			return err
		}
		if s.Closed() {
			return errSessionClosed(s)
		}
		return res.Err
	case r.Status == Failed && !r.Blocked:
		err := r.Err
		s.mu.Unlock()
		return err
	}
	return o.runLocked(ctx, s, task, false)
}

// RegenerateTask executes task again whatever its status, reading the
// succeeded outputs of its dependencies and the session's memoized source
// inputs. Dependents keep their results. If a succeeded task fails to
// regenerate, its previous value is kept and the error is returned.
func (o *Orchestrator) RegenerateTask(ctx context.Context, s *Session, task TaskName) error {
	if _, ok := o.registry.Get(task); !ok {
		return apperr.Newf(apperr.CodeNotFound, "unknown task %q", task)
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errSessionClosed(s)
	}
	if s.results[task].Status == Running {
		s.mu.Unlock()
		return apperr.Newf(apperr.CodeTaskRunning, "task %s is already running", task)
	}
	return o.runLocked(ctx, s, task, true)
}

// runLocked is entered with s.mu held and releases it before waiting.
func (o *Orchestrator) runLocked(ctx context.Context, s *Session, task TaskName, regenerate bool) error {
	if err := o.depErrorLocked(s, task); err != nil {
		s.mu.Unlock()
		return err
	}
	runCtx, cancel := context.WithCancel(s.ctx)
	stop := context.AfterFunc(ctx, cancel)
	defer func() {
		stop()
		cancel()
	}()

	done := make(chan error, 1)
	o.launchLocked(runCtx, s, task, regenerate, done)
	s.mu.Unlock()

	err := <-done
	if s.Closed() {
		return errSessionClosed(s)
	}
	return err
}

// Finalize waits for running tasks (bounded by ctx), assembles the composite
// from succeeded tasks, persists it and closes the session. A session served
// from the store and left untouched is not written back.
func (o *Orchestrator) Finalize(ctx context.Context, s *Session) Finalized {
	if err := s.Wait(ctx); err != nil {
		log.Printf("pipeline: session %s finalized before tasks settled: %v", s.ID, err)
	}
	md, mdErr := s.inputs.metadata(ctx)

	s.mu.Lock()
	if s.closed {
		// The in-memory document stays readable after close.
		doc := s.compositeLocked()
		s.mu.Unlock()
		return Finalized{Analysis: doc, PersistErr: errSessionClosed(s)}
	}
	doc := s.compositeLocked()
	dirty := s.dirty
	s.closeLocked()
	s.mu.Unlock()

	if mdErr == nil {
		doc.Metadata = &md
	} else {
		log.Printf("pipeline: session %s: metadata unavailable: %v", s.ID, mdErr)
	}
	out := Finalized{Analysis: doc}
	if !dirty || o.docs == nil {
		return out
	}
	if err := o.docs.Put(ctx, s.Ref.CanonicalURL, s.UserID, doc); err != nil {
		log.Printf("pipeline: session %s: persist %s failed: %v", s.ID, s.Ref.FullName(), err)
		out.PersistErr = apperr.Wrap(apperr.CodeInternal, "persist analysis", err)
		return out
	}
	out.Persisted = true
	log.Printf("pipeline: session %s: persisted %s", s.ID, s.Ref.FullName())
	return out
}

// Abandon cancels the session. Results of tasks still running are dropped.
func (o *Orchestrator) Abandon(s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closeLocked()
	log.Printf("pipeline: session %s abandoned", s.ID)
}

// Run is StartSession, Wait and Finalize in one call.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Session, Finalized, error) {
	s, err := o.StartSession(ctx, req)
	if err != nil {
		return nil, Finalized{}, err
	}
	if err := s.Wait(ctx); err != nil {
		o.Abandon(s)
		return s, Finalized{}, err
	}
	return s, o.Finalize(ctx, s), nil
}

// depErrorLocked reports why task cannot run yet, or nil when every
// dependency has succeeded.
func (o *Orchestrator) depErrorLocked(s *Session, task TaskName) error {
	spec, _ := o.registry.Get(task)
	var pending []string
	for _, req := range spec.Requires {
		r := s.results[req]
		switch r.Status {
		case Succeeded:
		case Failed:
			return apperr.Wrap(apperr.CodeDependencyFailed, fmt.Sprintf("%s depends on %s, which failed", task, req), r.Err)
		default:
			pending = append(pending, string(req))
		}
	}
	if len(pending) > 0 {
		return apperr.Newf(apperr.CodeDependencyNotReady, "%s waits for %s", task, strings.Join(pending, ", "))
	}
	return nil
}

// scheduleLocked starts every task that has not run, or was blocked, and
// whose dependencies have all succeeded.
func (o *Orchestrator) scheduleLocked(s *Session) {
	for _, name := range o.registry.Tasks() {
		r := s.results[name]
		eligible := r.Status == NotStarted || (r.Status == Failed && r.Blocked)
		if !eligible || o.depErrorLocked(s, name) != nil {
			continue
		}
		o.launchLocked(s.ctx, s, name, false, nil)
	}
}

// launchLocked claims the task slot and runs it in its own goroutine.
func (o *Orchestrator) launchLocked(ctx context.Context, s *Session, task TaskName, regenerate bool, done chan<- error) {
	spec, _ := o.registry.Get(task)
	r := s.results[task]
	prev := *r

	outputs := make(map[TaskName]any, len(spec.Requires))
	for _, req := range spec.Requires {
		outputs[req] = s.results[req].Value
	}
	allowed := make(map[Input]bool, len(spec.Inputs))
	for _, in := range spec.Inputs {
		allowed[in] = true
	}
	deps := &depsImpl{task: task, ref: s.Ref, role: s.Role, inputs: s.inputs, outputs: outputs, allowed: allowed}

	r.Status = Running
	r.Value = nil
	r.Err = nil
	r.Error = ""
	r.Blocked = false
	r.Attempts++
	r.StartedAt = time.Now().UTC()
	r.FinishedAt = time.Time{}
	s.dirty = true
	s.notifyLocked(task)

	go func() {
		v, err := execute(ctx, spec, deps)
		o.complete(s, task, prev, regenerate, v, err)
		if done != nil {
			done <- err
		}
	}()
}

func execute(ctx context.Context, spec TaskSpec, deps Deps) (v any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task %s panicked: %v", spec.Name, p)
		}
	}()
	in, err := spec.BuildInput(ctx, deps)
	if err != nil {
		return nil, err
	}
	return spec.Run(ctx, in)
}

func (o *Orchestrator) complete(s *Session, task TaskName, prev TaskResult, regenerate bool, v any, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	r := s.results[task]
	now := time.Now().UTC()
	switch {
	case err == nil:
		r.succeed(v, now)
		s.notifyLocked(task)
		log.Printf("pipeline: session %s: %s succeeded (attempt %d, %s)", s.ID, task, r.Attempts, now.Sub(r.StartedAt).Round(time.Millisecond))
		o.scheduleLocked(s)
	case errors.Is(err, context.Canceled) && s.ctx.Err() == nil:
		// The caller gave up, not the task: restore the slot so it can run later.
		attempts := r.Attempts
		*r = prev
		r.Attempts = attempts
		s.notifyLocked(task)
		log.Printf("pipeline: session %s: %s cancelled by caller", s.ID, task)
	case regenerate && prev.Status == Succeeded:
		attempts := r.Attempts
		*r = prev
		r.Attempts = attempts
		s.notifyLocked(task)
		log.Printf("pipeline: session %s: regenerating %s failed, keeping previous result: %v", s.ID, task, err)
	default:
		r.fail(err, false, now)
		s.notifyLocked(task)
		log.Printf("pipeline: session %s: %s failed: %v", s.ID, task, err)
		o.blockDependentsLocked(s, task, err, now)
	}
}

func (o *Orchestrator) blockDependentsLocked(s *Session, task TaskName, cause error, at time.Time) {
	for _, d := range o.registry.Dependents(task) {
		r := s.results[d]
		if r.Status != NotStarted && !(r.Status == Failed && r.Blocked) {
			continue
		}
		r.fail(apperr.Wrap(apperr.CodeDependencyFailed, fmt.Sprintf("%s blocked: %s failed", d, task), cause), true, at)
		s.notifyLocked(d)
	}
}

// Composite returns the document the session would persist now.
func (s *Session) Composite() artifact.CompositeAnalysis {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compositeLocked()
}

func (s *Session) compositeLocked() artifact.CompositeAnalysis {
	doc := artifact.CompositeAnalysis{
		Repository:  s.Ref,
		Role:        s.Role,
		GeneratedAt: time.Now().UTC(),
	}
	if !s.dirty && s.FromCache {
		doc.GeneratedAt = s.cachedAt
	}
	if v, ok := s.inputs.cached(InputMetadata); ok {
		md := v.(artifact.RepoMetadata)
		doc.Metadata = &md
	}
	for name, r := range s.results {
		if r.Status == Succeeded {
			compose(&doc, name, r.Value)
		}
	}
	return doc
}

func errSessionClosed(s *Session) error {
	return apperr.Newf(apperr.CodeSessionClosed, "session %s is closed", s.ID)
}
