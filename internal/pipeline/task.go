// Package pipeline runs the analysis tasks of one repository as a dependency
// graph. Each task runs at most once per session unless it is explicitly
// regenerated, and a failed task only blocks the tasks that need its output.
package pipeline

import (
	"fmt"
	"strings"
	"time"
)

type TaskName string

const (
	TaskStructure       TaskName = "structure"
	TaskCodeFacts       TaskName = "codeFacts"
	TaskCriticalPaths   TaskName = "criticalPaths"
	TaskDependencyGraph TaskName = "dependencyGraph"
	TaskTutorial        TaskName = "tutorial"
)

// ParseTaskName accepts a task name in any case.
func ParseTaskName(s string) (TaskName, error) {
	for _, t := range []TaskName{TaskStructure, TaskCodeFacts, TaskCriticalPaths, TaskDependencyGraph, TaskTutorial} {
		if strings.EqualFold(strings.TrimSpace(s), string(t)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown task %q", s)
}

type Status int

const (
	NotStarted Status = iota
	Running
	Succeeded
	Failed
)

func (s Status) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	for _, c := range []Status{NotStarted, Running, Succeeded, Failed} {
		if c.String() == string(b) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", b)
}

// TaskResult is the state of one task in one session. Value is set only when
// Status is Succeeded and is the payload embedded in the composite document.
type TaskResult struct {
	Name       TaskName  `json:"name"`
	Status     Status    `json:"status"`
	Value      any       `json:"value,omitempty"`
	Err        error     `json:"-"`
	Error      string    `json:"error,omitempty"`
	Blocked    bool      `json:"blocked,omitempty"` // failed because a dependency failed
	Attempts   int       `json:"attempts"`
	StartedAt  time.Time `json:"startedAt,omitempty"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
}

func (r *TaskResult) fail(err error, blocked bool, at time.Time) {
	r.Status = Failed
	r.Value = nil
	r.Err = err
	r.Error = err.Error()
	r.Blocked = blocked
	r.FinishedAt = at
}

func (r *TaskResult) succeed(v any, at time.Time) {
	r.Status = Succeeded
	r.Value = v
	r.Err = nil
	r.Error = ""
	r.Blocked = false
	r.FinishedAt = at
}
