package importjob

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/dmitrymomot/printforge/pkg/statemachine"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusProcessing  Status = "processing"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// Name lets Status act as both state and event of the job lifecycle: firing
// a status moves the job to it.
func (s Status) Name() string { return string(s) }

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusDownloading, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether the lifecycle defines a move from s to next.
// Steps may be skipped, never repeated or reversed. Field guards are not
// checked here.
func (s Status) CanTransition(next Status) bool {
	return lifecycle.Defined(s, next)
}

// change is the data a lifecycle transition guards on and applies.
type change struct {
	job   *Job
	extra Extra
}

func changeOf(data any) *change {
	c, _ := data.(*change)
	if c == nil {
		return &change{job: &Job{}}
	}
	return c
}

// A file path belongs to completed jobs only, an error message to failed ones.
func withFile(_ context.Context, _ statemachine.State, _ statemachine.Event, data any) bool {
	c := changeOf(data)
	return c.extra.FilePath != "" && c.extra.Error == ""
}

func withoutFile(_ context.Context, _ statemachine.State, _ statemachine.Event, data any) bool {
	return changeOf(data).extra.FilePath == ""
}

func withoutError(_ context.Context, _ statemachine.State, _ statemachine.Event, data any) bool {
	return changeOf(data).extra.Error == ""
}

func setFile(_ context.Context, _, _ statemachine.State, _ statemachine.Event, data any) error {
	c := changeOf(data)
	c.job.FilePath = c.extra.FilePath
	return nil
}

func setError(_ context.Context, _, _ statemachine.State, _ statemachine.Event, data any) error {
	c := changeOf(data)
	c.job.Error = cmp.Or(c.extra.Error, "import failed")
	return nil
}

var lifecycle = statemachine.MustNewTable(statemachine.WithTransitions(lifecycleTransitions()))

func lifecycleTransitions() []statemachine.TransitionDef {
	steps := []Status{StatusPending, StatusDownloading, StatusProcessing}

	var defs []statemachine.TransitionDef
	for i, from := range steps {
		for _, to := range steps[i+1:] {
			defs = append(defs, statemachine.TransitionDef{
				From: from, To: to, Event: to,
				Guards: []statemachine.Guard{withoutFile, withoutError},
			})
		}
		defs = append(defs,
			statemachine.TransitionDef{
				From: from, To: StatusCompleted, Event: StatusCompleted,
				Guards:  []statemachine.Guard{withFile},
				Actions: []statemachine.Action{setFile},
			},
			statemachine.TransitionDef{
				From: from, To: StatusFailed, Event: StatusFailed,
				Guards:  []statemachine.Guard{withoutFile},
				Actions: []statemachine.Action{setError},
			},
		)
	}
	return defs
}

// apply fires the move to next on j, filling FilePath or Error.
func apply(ctx context.Context, j *Job, next Status, extra Extra) error {
	if err := lifecycle.Machine(j.Status).Fire(ctx, next, &change{job: j, extra: extra}); err != nil {
		return fmt.Errorf("%w: %s to %s: %w", ErrInvalidTransition, j.Status, next, err)
	}
	j.Status = next
	return nil
}

// Transition records one status change.
type Transition struct {
	Status Status    `json:"status"`
	At     time.Time `json:"at"`
}

// Job is one import. FilePath is set only once completed, Error only once failed.
type Job struct {
	ID         string         `json:"id"`
	Status     Status         `json:"status"`
	Source     string         `json:"source"`
	FileName   string         `json:"fileName"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	FilePath   string         `json:"filePath,omitempty"`
	Error      string         `json:"error,omitempty"`
	History    []Transition   `json:"history"`
	ImportedAt time.Time      `json:"importedAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// SourceUpload marks jobs created from a direct upload.
const SourceUpload = "upload"

// Seq is the number of transitions so far, the initial status included.
func (j Job) Seq() int {
	return len(j.History)
}

func (j Job) clone() Job {
	j.Metadata = maps.Clone(j.Metadata)
	j.History = append([]Transition(nil), j.History...)
	return j
}

// Extra carries fields merged into the job by Advance.
type Extra struct {
	FilePath string
	Error    string
	Metadata map[string]any
}

// EventType distinguishes per-transition events from the terminal notification.
type EventType string

const (
	EventStatus    EventType = "status"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
)

// Event is published on the job channel for every transition.
type Event struct {
	Type     EventType      `json:"type"`
	JobID    string         `json:"jobId"`
	Status   Status         `json:"status"`
	Seq      int            `json:"seq"`
	FilePath string         `json:"filePath,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	At       time.Time      `json:"at"`
}

// Channel returns the pub/sub channel of a job.
func Channel(jobID string) string {
	return "job:" + jobID
}

// events builds what a transition to j.Status publishes.
func events(j Job) []Event {
	ev := Event{
		Type:   EventStatus,
		JobID:  j.ID,
		Status: j.Status,
		Seq:    j.Seq(),
		At:     j.UpdatedAt,
	}
	if !j.Status.Terminal() {
		return []Event{ev}
	}

	ev.FilePath = j.FilePath
	ev.Error = j.Error
	ev.Metadata = j.Metadata

	terminal := ev
	terminal.Type = EventCompleted
	if j.Status == StatusFailed {
		terminal.Type = EventFailed
	}
	return []Event{ev, terminal}
}
