package pipeline

import (
	"context"

	"clipstitch/internal/cutter"
	"clipstitch/internal/journal"
	"clipstitch/internal/sourcecache"
	"clipstitch/internal/timecode"
)

// State is a request's position in the per-request state machine.
type State string

const (
	StatePending   State = "pending"
	StateResolving State = "resolving"
	StateFetching  State = "fetching"
	StateCutting   State = "cutting"
	StateProduced  State = "produced"
	StateSkipped   State = "skipped"
)

// Terminal reports whether no further transitions follow.
func (s State) Terminal() bool {
	return s == StateProduced || s == StateSkipped
}

// Reason explains why a request was skipped.
type Reason string

const (
	ReasonInvalidRange     Reason = "invalid_range"
	ReasonInvalidReference Reason = "invalid_reference"
	ReasonDownloadError    Reason = "download_error"
	ReasonCutError         Reason = "cut_error"
)

// Outcome is the terminal state of one request.
type Outcome struct {
	Index     int          `json:"index"`
	SourceRef string       `json:"source_ref"`
	SourceID  string       `json:"source_id,omitempty"`
	State     State        `json:"state"`
	Reason    Reason       `json:"reason,omitempty"`
	Err       error        `json:"-"`
	Clip      *cutter.Clip `json:"clip,omitempty"`
}

// Error returns the skip cause as text, or "" for produced requests.
func (o Outcome) Error() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Result summarises a run.
type Result struct {
	RunID             string    `json:"run_id"`
	OutputPath        string    `json:"output_path"`
	ProducedClipCount int       `json:"produced_clip_count"`
	SkippedCount      int       `json:"skipped_count"`
	Outcomes          []Outcome `json:"outcomes"`
}

// Empty reports that no clip was produced, so no output was written.
func (r Result) Empty() bool {
	return r.ProducedClipCount == 0
}

// Event is emitted on every state transition of a request.
type Event struct {
	Index     int
	Total     int
	SourceRef string
	SourceID  string
	State     State
	Reason    Reason
	Err       error
}

// Observer receives transition events. It is called from the run goroutine.
type Observer func(Event)

// Fetcher resolves references and guarantees cached sources.
type Fetcher interface {
	Resolve(ref string) (string, error)
	Cached(id string) bool
	EnsureID(ctx context.Context, id string) (sourcecache.Entry, error)
}

// Cutter extracts a clip from a cached source.
type Cutter interface {
	Cut(ctx context.Context, source sourcecache.Entry, ordinal int, start, end timecode.Timecode) (cutter.Clip, error)
}

// Merger concatenates clips into the output.
type Merger interface {
	Merge(ctx context.Context, clips []cutter.Clip, outputPath string) error
}

// Recorder persists run history. *journal.Store satisfies it.
type Recorder interface {
	BeginRun(ctx context.Context, run journal.Run) error
	RecordOutcome(ctx context.Context, outcome journal.Outcome) error
	FinishRun(ctx context.Context, id string, status journal.RunStatus, produced, skipped int, runErr error) error
}
