// Package summary accumulates per-task run metrics and serializes them into
// the run summary document.
package summary

import (
	"encoding/json"
	"sync"
)

// Terminal task statuses. A task has exactly one of these per run.
const (
	StatusSuccess      = "success"
	StatusFailedIgnore = "failed_ignored"
	StatusFailedAbort  = "failed_abort"
	StatusSkipped      = "skipped"
)

// TaskMetrics records one task's outcome for a single run.
type TaskMetrics struct {
	Name         string  `json:"name"`
	Attempts     int     `json:"attempts"`
	Status       string  `json:"status"`
	DurationSecs float64 `json:"duration_secs"`
	Error        *string `json:"error"`
}

// Summary accumulates TaskMetrics in the order tasks first transition out of
// pending, guarded by a mutex since multiple tasks within a layer finish
// concurrently.
type Summary struct {
	mu    sync.Mutex
	tasks []TaskMetrics
}

// New returns an empty Summary.
func New() *Summary {
	return &Summary{}
}

// Record appends one task's terminal metrics. Safe for concurrent use.
func (s *Summary) Record(m TaskMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, m)
}

// Tasks returns a copy of the accumulated metrics in recording order.
func (s *Summary) Tasks() []TaskMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskMetrics, len(s.tasks))
	copy(out, s.tasks)
	return out
}

// document is the wire shape of the run summary: {"tasks": [...]}.
type document struct {
	Tasks []TaskMetrics `json:"tasks"`
}

// MarshalJSON renders the summary as {"tasks": [...]}, matching the exact
// field names of the run-summary document.
func (s *Summary) MarshalJSON() ([]byte, error) {
	return json.Marshal(document{Tasks: s.Tasks()})
}

// ErrString converts an error into the *string representation TaskMetrics
// expects: nil for no error, otherwise the error's message.
func ErrString(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	return &msg
}
