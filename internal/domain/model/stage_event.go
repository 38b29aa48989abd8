package model

import (
	"encoding/json"
	"time"
)

// StageStep names a progress tick emitted by the research pipeline.
type StageStep string

const (
	// StepPartialInputAnalysis carries one completed per-page analysis.
	StepPartialInputAnalysis StageStep = "partial_input_analysis"
	// StepIdentifiedCompetitors carries the synthesis phase's competitor batch.
	StepIdentifiedCompetitors StageStep = "identified_competitors_batch"
	// StepOverallSummary carries the synthesis phase's cross-page summary.
	StepOverallSummary StageStep = "overall_summary"
	// StepDone signals the pipeline reached a completed state.
	StepDone StageStep = "done"
	// StepError signals a transport-level pipeline failure.
	StepError StageStep = "error"
)

// StageEvent is an incremental progress notification. It is published for
// live subscribers and appended to the persisted timeline so clients that
// reconnect can replay missed ticks; the persisted row is the source of
// truth, the pub/sub channel a liveness optimization.
type StageEvent struct {
	JobID     string          `json:"job_id"            db:"job_id"`
	Step      StageStep       `json:"step"              db:"step"`
	Note      string          `json:"note,omitempty"    db:"note"`
	Payload   json.RawMessage `json:"payload,omitempty" db:"payload"`
	Timestamp time.Time       `json:"timestamp"         db:"created_at"`
}
