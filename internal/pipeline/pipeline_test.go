package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repolens/internal/apperr"
	"repolens/internal/artifact"
	"repolens/internal/llm"
	"repolens/internal/store"
)

const widgetsURL = "https://github.com/acme/widgets"

// spyFetcher serves a fixed repository and counts every call.
type spyFetcher struct {
	mu         sync.Mutex
	calls      map[string]int
	changedErr error
	treeGate   chan struct{}
}

// holdTree makes GetTree wait until the returned channel is closed.
func (f *spyFetcher) holdTree() chan struct{} {
	ch := make(chan struct{})
	f.mu.Lock()
	f.treeGate = ch
	f.mu.Unlock()
	return ch
}

func newSpyFetcher() *spyFetcher {
	return &spyFetcher{calls: map[string]int{}}
}

func (f *spyFetcher) hit(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *spyFetcher) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *spyFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *spyFetcher) GetMetadata(ctx context.Context, ref artifact.RepositoryRef) (artifact.RepoMetadata, error) {
	f.hit("metadata")
	return artifact.RepoMetadata{Name: ref.Name, FullName: ref.FullName(), DefaultBranch: "main", Description: "Widgets"}, nil
}

func (f *spyFetcher) GetTree(ctx context.Context, ref artifact.RepositoryRef, path string, maxDepth int) ([]artifact.TreeNode, error) {
	f.hit("tree")
	f.mu.Lock()
	gate := f.treeGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return []artifact.TreeNode{
		{Path: "src", Name: "src", Type: artifact.NodeDir, Children: []artifact.TreeNode{
			{Path: "src/a.ts", Name: "a.ts", Type: artifact.NodeFile},
			{Path: "src/b.ts", Name: "b.ts", Type: artifact.NodeFile},
		}},
		{Path: "node_modules", Name: "node_modules", Type: artifact.NodeSummary},
	}, nil
}

func (f *spyFetcher) GetChangedFiles(ctx context.Context, ref artifact.RepositoryRef, limit int) ([]artifact.ChangedFile, error) {
	f.hit("changed")
	f.mu.Lock()
	err := f.changedErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return []artifact.ChangedFile{{Path: "src/a.ts", ChangeCount: 5}, {Path: "src/b.ts", ChangeCount: 2}}, nil
}

func (f *spyFetcher) GetFileContent(ctx context.Context, ref artifact.RepositoryRef, path string) (string, error) {
	f.hit("content")
	switch path {
	case "src/a.ts":
		return "import React from 'react'\nimport { b } from './b'\nexport function A() {\n  if (b) { return 1 }\n  return 0\n}\n", nil
	case "src/b.ts":
		return "export const b = true\n", nil
	}
	return "", apperr.New(apperr.CodeNotFound, path)
}

// phaseGen answers by task phase; gates hold a phase until released.
type phaseGen struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
	gates map[string]chan struct{}
}

func newPhaseGen() *phaseGen {
	return &phaseGen{calls: map[string]int{}, fail: map[string]error{}, gates: map[string]chan struct{}{}}
}

func (g *phaseGen) setFail(phase string, err error) {
	g.mu.Lock()
	g.fail[phase] = err
	g.mu.Unlock()
}

func (g *phaseGen) gate(phase string) chan struct{} {
	ch := make(chan struct{})
	g.mu.Lock()
	g.gates[phase] = ch
	g.mu.Unlock()
	return ch
}

func (g *phaseGen) count(phase string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[phase]
}

func (g *phaseGen) Generate(ctx context.Context, prompt string) (string, error) {
	phase := llm.PhaseFrom(ctx)
	g.mu.Lock()
	g.calls[phase]++
	err := g.fail[phase]
	gate := g.gates[phase]
	g.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	switch phase {
	case "structure":
		return "```json\n{\"architecture\":\"single-page app\",\"summary\":\"widgets\"}\n```", nil
	case "criticalPaths":
		return `{"criticalPaths":[{"name":"render","files":["src/a.ts"],"importance":"high"}]}`, nil
	case "tutorial":
		return `{"title":"Widgets","steps":[{"title":"Read a.ts","files":["src/a.ts"]}]}`, nil
	}
	return "no json here", nil
}

type harness struct {
	fetcher *spyFetcher
	gen     *phaseGen
	docs    *store.MemoryStore
	orch    *Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{fetcher: newSpyFetcher(), gen: newPhaseGen(), docs: store.NewMemoryStore()}
	h.orch = New(h.fetcher, h.docs, MustDefaultRegistry(h.gen), Config{})
	return h
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func statusOf(s *Session, task TaskName) Status {
	r, _ := s.Result(task)
	return r.Status
}

func TestRegistryValidation(t *testing.T) {
	noop := func(context.Context, Deps) (any, error) { return nil, nil }
	run := func(context.Context, any) (any, error) { return nil, nil }

	_, err := NewRegistry(
		TaskSpec{Name: "a", Requires: []TaskName{"b"}, BuildInput: noop, Run: run},
		TaskSpec{Name: "b", Requires: []TaskName{"a"}, BuildInput: noop, Run: run},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cyclic")

	_, err = NewRegistry(TaskSpec{Name: "a", Requires: []TaskName{"ghost"}, BuildInput: noop, Run: run})
	assert.Error(t, err)

	_, err = NewRegistry(TaskSpec{Name: "a", BuildInput: noop, Run: run}, TaskSpec{Name: "a", BuildInput: noop, Run: run})
	assert.Error(t, err)
}

func TestDefaultRegistryShape(t *testing.T) {
	r := MustDefaultRegistry(newPhaseGen())
	order := r.Tasks()
	require.Len(t, order, 5)
	pos := map[TaskName]int{}
	for i, n := range order {
		pos[n] = i
	}
	assert.Less(t, pos[TaskCodeFacts], pos[TaskCriticalPaths])
	assert.Less(t, pos[TaskCodeFacts], pos[TaskDependencyGraph])
	assert.Less(t, pos[TaskCriticalPaths], pos[TaskTutorial])

	cf, _ := r.Get(TaskCodeFacts)
	assert.Equal(t, []TaskName{TaskCriticalPaths, TaskDependencyGraph}, cf.Downstream)
	assert.ElementsMatch(t, []TaskName{TaskCriticalPaths, TaskDependencyGraph, TaskTutorial}, r.Dependents(TaskCodeFacts))
}

func TestStartSessionRejectsBadURL(t *testing.T) {
	h := newHarness(t)
	_, err := h.orch.StartSession(context.Background(), Request{RepoURL: "https://gitlab.com/acme/widgets"})
	assert.ErrorIs(t, err, apperr.ErrInvalidRepositoryRef)
	assert.Zero(t, h.fetcher.total())
}

func TestSessionRunsEveryTask(t *testing.T) {
	h := newHarness(t)
	ctx := waitCtx(t)
	s, err := h.orch.StartSession(ctx, Request{RepoURL: widgetsURL + ".git", UserID: "u1", Role: "frontend engineer"})
	require.NoError(t, err)
	require.NoError(t, s.Wait(ctx))

	for task, r := range s.Snapshot() {
		assert.Equal(t, Succeeded, r.Status, "task %s: %s", task, r.Error)
		assert.Equal(t, 1, r.Attempts, task)
	}
	assert.Equal(t, 1, h.fetcher.count("tree"), "tree is fetched once and shared")
	assert.Equal(t, 1, h.fetcher.count("changed"))
	assert.Equal(t, 2, h.fetcher.count("content"))

	facts, _ := s.Result(TaskCodeFacts)
	assert.Equal(t, []string{"react"}, facts.Value.(artifact.CodeFacts).ExternalDependencies())

	fin := h.orch.Finalize(ctx, s)
	require.NoError(t, fin.PersistErr)
	assert.True(t, fin.Persisted)
	assert.Equal(t, "frontend engineer", fin.Analysis.Role)
	require.NotNil(t, fin.Analysis.Metadata)
	assert.Equal(t, "acme/widgets", fin.Analysis.Metadata.FullName)
	assert.Equal(t, "single-page app", fin.Analysis.Structure.Architecture)
	require.NotNil(t, fin.Analysis.Tutorial)
	assert.Equal(t, "frontend engineer", fin.Analysis.Tutorial.Audience, "a missing audience falls back to the role")
	assert.True(t, s.Closed())

	_, err = h.docs.Get(ctx, widgetsURL, "u1")
	assert.NoError(t, err)
}

func TestStructureExhaustedThenServedFromCache(t *testing.T) {
	h := newHarness(t)
	ctx := waitCtx(t)
	h.gen.setFail("structure", apperr.New(apperr.CodeGatewayExhausted, "all credentials rate limited"))

	s, err := h.orch.StartSession(ctx, Request{RepoURL: widgetsURL, UserID: "u1"})
	require.NoError(t, err)
	require.NoError(t, s.Wait(ctx))

	st, _ := s.Result(TaskStructure)
	assert.Equal(t, Failed, st.Status)
	assert.ErrorIs(t, st.Err, apperr.ErrGatewayExhausted)
	assert.Equal(t, Succeeded, statusOf(s, TaskCodeFacts))

	fin := h.orch.Finalize(ctx, s)
	require.NoError(t, fin.PersistErr)
	raw, err := json.Marshal(fin.Analysis)
	require.NoError(t, err)
	var keys map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &keys))
	assert.Contains(t, keys, "codeFacts")
	assert.NotContains(t, keys, "structure")

	fetches := h.fetcher.total()
	again, err := h.orch.StartSession(ctx, Request{RepoURL: widgetsURL, UserID: "u1"})
	require.NoError(t, err)
	assert.True(t, again.FromCache)
	require.NoError(t, again.Wait(ctx))

	cf, _ := again.Result(TaskCodeFacts)
	assert.Equal(t, Succeeded, cf.Status)
	assert.Zero(t, cf.Attempts, "codeFacts is not analysed again")
	assert.Equal(t, fetches, h.fetcher.total(), "a cached session makes no source calls")

	missing, _ := again.Result(TaskStructure)
	assert.Equal(t, Failed, missing.Status)
	assert.Contains(t, missing.Error, "missing from cached analysis")
	assert.False(t, missing.Blocked)

	cached := h.orch.Finalize(ctx, again)
	assert.False(t, cached.Persisted, "an untouched cached session is not written back")
	assert.Equal(t, fin.Analysis.GeneratedAt, cached.Analysis.GeneratedAt)
}

func TestRegenerateReusesDependenciesAndInputs(t *testing.T) {
	h := newHarness(t)
	ctx := waitCtx(t)
	s, err := h.orch.StartSession(ctx, Request{RepoURL: widgetsURL, UserID: "u1"})
	require.NoError(t, err)
	require.NoError(t, s.Wait(ctx))

	fetches := h.fetcher.total()
	structureCalls := h.gen.count("structure")

	require.NoError(t, h.orch.RegenerateTask(ctx, s, TaskCriticalPaths))
	require.NoError(t, s.Wait(ctx))

	assert.Equal(t, fetches, h.fetcher.total(), "no source data is fetched again")
	assert.Equal(t, structureCalls, h.gen.count("structure"))
	assert.Equal(t, 2, h.gen.count("criticalPaths"))
	assert.Equal(t, 1, h.gen.count("tutorial"), "dependents keep their results")

	cf, _ := s.Result(TaskCodeFacts)
	assert.Equal(t, 1, cf.Attempts)
	cp, _ := s.Result(TaskCriticalPaths)
	assert.Equal(t, 2, cp.Attempts)
	assert.Equal(t, Succeeded, cp.Status)
}

func TestRunTaskRunsAtMostOnce(t *testing.T) {
	h := newHarness(t)
	ctx := waitCtx(t)
	s, err := h.orch.StartSession(ctx, Request{RepoURL: widgetsURL})
	require.NoError(t, err)

	require.NoError(t, h.orch.RunTask(ctx, s, TaskStructure), "waits for the running task")
	require.NoError(t, s.Wait(ctx))
	require.NoError(t, h.orch.RunTask(ctx, s, TaskStructure))
	assert.Equal(t, 1, h.gen.count("structure"))

	err = h.orch.RunTask(ctx, s, TaskName("summary"))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDependencyNotReady(t *testing.T) {
	h := newHarness(t)
	ctx := waitCtx(t)
	release := h.gen.gate("criticalPaths")

	s, err := h.orch.StartSession(ctx, Request{RepoURL: widgetsURL})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return statusOf(s, TaskCriticalPaths) == Running }, 5*time.Second, 5*time.Millisecond)

	err = h.orch.RunTask(ctx, s, TaskTutorial)
	assert.ErrorIs(t, err, apperr.ErrDependencyNotReady)
	err = h.orch.RegenerateTask(ctx, s, TaskCriticalPaths)
	assert.ErrorIs(t, err, apperr.ErrTaskRunning)

	close(release)
	require.NoError(t, s.Wait(ctx))
	assert.Equal(t, Succeeded, statusOf(s, TaskTutorial))
}

func TestFailedDependencyBlocksUntilRegenerated(t *testing.T) {
	h := newHarness(t)
	ctx := waitCtx(t)
	h.fetcher.changedErr = errors.New("github: 502 bad gateway")

	s, err := h.orch.StartSession(ctx, Request{RepoURL: widgetsURL})
	require.NoError(t, err)
	require.NoError(t, s.Wait(ctx))

	snap := s.Snapshot()
	assert.Equal(t, Failed, snap[TaskStructure].Status)
	assert.Equal(t, Failed, snap[TaskCodeFacts].Status)
	for _, blocked := range []TaskName{TaskCriticalPaths, TaskDependencyGraph, TaskTutorial} {
		assert.Equal(t, Failed, snap[blocked].Status, blocked)
		assert.True(t, snap[blocked].Blocked, blocked)
		assert.Zero(t, snap[blocked].Attempts, blocked)
	}

	err = h.orch.RunTask(ctx, s, TaskCriticalPaths)
	assert.ErrorIs(t, err, apperr.ErrDependencyFailed)
	err = h.orch.RunTask(ctx, s, TaskCodeFacts)
	assert.Error(t, err, "a failed task reports its error and is not retried")
	assert.Equal(t, 1, s.Snapshot()[TaskCodeFacts].Attempts)

	h.fetcher.mu.Lock()
	h.fetcher.changedErr = nil
	h.fetcher.mu.Unlock()

	require.NoError(t, h.orch.RegenerateTask(ctx, s, TaskCodeFacts))
	require.NoError(t, s.Wait(ctx))

	snap = s.Snapshot()
	assert.Equal(t, Succeeded, snap[TaskCodeFacts].Status)
	assert.Equal(t, Succeeded, snap[TaskCriticalPaths].Status)
	assert.Equal(t, Succeeded, snap[TaskDependencyGraph].Status)
	assert.Equal(t, Succeeded, snap[TaskTutorial].Status)
	assert.Equal(t, Failed, snap[TaskStructure].Status, "unrelated failures stay until regenerated")
}

func TestRegenerateFailureKeepsPreviousResult(t *testing.T) {
	h := newHarness(t)
	ctx := waitCtx(t)
	s, err := h.orch.StartSession(ctx, Request{RepoURL: widgetsURL})
	require.NoError(t, err)
	require.NoError(t, s.Wait(ctx))
	before, _ := s.Result(TaskStructure)

	h.gen.setFail("structure", apperr.New(apperr.CodeGatewayExhausted, "exhausted"))
	err = h.orch.RegenerateTask(ctx, s, TaskStructure)
	assert.ErrorIs(t, err, apperr.ErrGatewayExhausted)

	after, _ := s.Result(TaskStructure)
	assert.Equal(t, Succeeded, after.Status)
	assert.Equal(t, before.Value, after.Value)
	assert.Equal(t, 2, after.Attempts)
}

func TestAbandonDropsLateResults(t *testing.T) {
	h := newHarness(t)
	ctx := waitCtx(t)
	h.gen.gate("structure")

	s, err := h.orch.StartSession(ctx, Request{RepoURL: widgetsURL, UserID: "u1"})
	require.NoError(t, err)
	events, cancel := s.Subscribe()
	defer cancel()
	require.Eventually(t, func() bool { return statusOf(s, TaskStructure) == Running }, 5*time.Second, 5*time.Millisecond)

	h.orch.Abandon(s)
	for range events {
	}
	time.Sleep(20 * time.Millisecond)
	assert.NotEqual(t, Succeeded, statusOf(s, TaskStructure))

	assert.ErrorIs(t, h.orch.RunTask(ctx, s, TaskStructure), apperr.ErrSessionClosed)
	fin := h.orch.Finalize(ctx, s)
	assert.ErrorIs(t, fin.PersistErr, apperr.ErrSessionClosed)
	_, err = h.docs.Get(ctx, widgetsURL, "u1")
	assert.True(t, apperr.IsNotFound(err))
}

func TestCallerCancelDoesNotPoisonTask(t *testing.T) {
	h := newHarness(t)
	ctx := waitCtx(t)
	s, err := h.orch.StartSession(ctx, Request{RepoURL: widgetsURL})
	require.NoError(t, err)
	require.NoError(t, s.Wait(ctx))

	release := h.gen.gate("tutorial")
	callCtx, cancel := context.WithCancel(ctx)
	go func() {
		for statusOf(s, TaskTutorial) != Running {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()
	err = h.orch.RegenerateTask(callCtx, s, TaskTutorial)
	assert.ErrorIs(t, err, context.Canceled)
	close(release)

	r, _ := s.Result(TaskTutorial)
	assert.Equal(t, Succeeded, r.Status, "the previous result is restored")
}

func TestCallerCancelDoesNotFailSharedInput(t *testing.T) {
	h := newHarness(t)
	ctx := waitCtx(t)
	exhausted := apperr.New(apperr.CodeGatewayExhausted, "all credentials rate limited")
	h.gen.setFail("structure", exhausted)
	h.gen.setFail("dependencyGraph", exhausted)
	first, err := h.orch.StartSession(ctx, Request{RepoURL: widgetsURL, UserID: "u1"})
	require.NoError(t, err)
	require.NoError(t, first.Wait(ctx))
	require.NoError(t, h.orch.Finalize(ctx, first).PersistErr)

	h.gen.setFail("structure", nil)
	h.gen.setFail("dependencyGraph", nil)
	release := h.fetcher.holdTree()
	s, err := h.orch.StartSession(ctx, Request{RepoURL: widgetsURL, UserID: "u1"})
	require.NoError(t, err)
	require.True(t, s.FromCache)
	require.NoError(t, s.Wait(ctx))
	trees := h.fetcher.count("tree")

	callerCtx, cancelCaller := context.WithCancel(ctx)
	callerErr := make(chan error, 1)
	go func() { callerErr <- h.orch.RegenerateTask(callerCtx, s, TaskStructure) }()
	require.Eventually(t, func() bool { return h.fetcher.count("tree") == trees+1 }, 5*time.Second, time.Millisecond)

	otherErr := make(chan error, 1)
	go func() { otherErr <- h.orch.RegenerateTask(ctx, s, TaskDependencyGraph) }()
	require.Eventually(t, func() bool { return statusOf(s, TaskDependencyGraph) == Running }, 5*time.Second, time.Millisecond)

	cancelCaller()
	assert.ErrorIs(t, <-callerErr, context.Canceled)
	close(release)
	require.NoError(t, <-otherErr, "a live caller is not failed by another caller's cancel")

	assert.Equal(t, Succeeded, statusOf(s, TaskDependencyGraph))
	assert.Equal(t, trees+1, h.fetcher.count("tree"), "the tree is fetched once for both callers")

	require.NoError(t, h.orch.RegenerateTask(ctx, s, TaskStructure))
	assert.Equal(t, Succeeded, statusOf(s, TaskStructure))
	assert.Equal(t, trees+1, h.fetcher.count("tree"), "the shared fetch was kept")
}

func TestFinalizeTwiceKeepsAnalysis(t *testing.T) {
	h := newHarness(t)
	ctx := waitCtx(t)
	s, err := h.orch.StartSession(ctx, Request{RepoURL: widgetsURL, UserID: "u1"})
	require.NoError(t, err)
	require.NoError(t, s.Wait(ctx))

	fin := h.orch.Finalize(ctx, s)
	require.NoError(t, fin.PersistErr)

	again := h.orch.Finalize(ctx, s)
	assert.ErrorIs(t, again.PersistErr, apperr.ErrSessionClosed)
	assert.False(t, again.Persisted)
	require.NotNil(t, again.Analysis.CodeFacts)
	assert.Equal(t, fin.Analysis.CodeFacts, again.Analysis.CodeFacts)
	assert.Equal(t, fin.Analysis.Structure, again.Analysis.Structure)
}

func TestSubscribeReceivesTaskEvents(t *testing.T) {
	h := newHarness(t)
	ctx := waitCtx(t)
	release := h.gen.gate("structure")
	s, err := h.orch.StartSession(ctx, Request{RepoURL: widgetsURL})
	require.NoError(t, err)
	events, cancel := s.Subscribe()
	defer cancel()
	close(release)

	seen := map[string]bool{}
	timeout := time.After(5 * time.Second)
	for !seen[fmt.Sprintf("%s/%s", TaskStructure, Succeeded)] {
		select {
		case ev := <-events:
			assert.Equal(t, s.ID, ev.SessionID)
			seen[fmt.Sprintf("%s/%s", ev.Task, ev.Status)] = true
		case <-timeout:
			t.Fatalf("no structure success event, saw %v", seen)
		}
	}
}

func TestPersistFailureIsReported(t *testing.T) {
	h := newHarness(t)
	ctx := waitCtx(t)
	h.orch.docs = failingDocs{}
	s, err := h.orch.StartSession(ctx, Request{RepoURL: widgetsURL})
	require.NoError(t, err)
	fin := h.orch.Finalize(ctx, s)
	assert.Error(t, fin.PersistErr)
	assert.False(t, fin.Persisted)
	assert.NotNil(t, fin.Analysis.CodeFacts)
}

type failingDocs struct{}

func (failingDocs) Get(context.Context, string, string) (artifact.CompositeAnalysis, error) {
	return artifact.CompositeAnalysis{}, apperr.New(apperr.CodeNotFound, "empty")
}

func (failingDocs) Put(context.Context, string, string, artifact.CompositeAnalysis) error {
	return errors.New("disk full")
}
