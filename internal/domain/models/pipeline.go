package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrCycleBusy             = errors.New("a pipeline cycle is already running")
	ErrSourceUnavailable     = errors.New("price source unavailable")
	ErrSummarizerUnavailable = errors.New("narrative summarizer unavailable")
)

// CycleState is the position of a cycle in COLLECTING → ANALYZING → SUMMARIZING → DONE.
// ABORTED is reachable only from COLLECTING.
type CycleState string

const (
	StateCollecting  CycleState = "COLLECTING"
	StateAnalyzing   CycleState = "ANALYZING"
	StateSummarizing CycleState = "SUMMARIZING"
	StateDone        CycleState = "DONE"
	StateAborted     CycleState = "ABORTED"
)

type Stage string

const (
	StageCollecting  Stage = "collecting"
	StageAnalyzing   Stage = "analyzing"
	StageSummarizing Stage = "summarizing"
)

// Outputs a cycle may have produced, listed in PipelineRun.StageOutputsPresent.
const (
	OutputObservation = "observation"
	OutputStatistics  = "statistics"
	OutputTrend       = "trend"
	OutputAnomalies   = "anomalies"
	OutputNarrative   = "narrative"
)

// StageError records a failure inside one stage.
type StageError struct {
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func NewStageError(stage Stage, err error) StageError {
	return StageError{Stage: stage, Message: err.Error(), Err: err}
}

func (e StageError) Error() string {
	return fmt.Sprintf("%s: %s", e.Stage, e.Message)
}

func (e StageError) Unwrap() error { return e.Err }

// PipelineRun is the result of one cycle. Returned to callers and broadcast, not stored.
type PipelineRun struct {
	ID                  uuid.UUID           `json:"id"`
	StartedAt           time.Time           `json:"started_at"`
	FinishedAt          time.Time           `json:"finished_at"`
	Success             bool                `json:"success"`
	State               CycleState          `json:"state"`
	Trigger             string              `json:"trigger"`
	StageErrors         []StageError        `json:"stage_errors"`
	StageOutputsPresent []string            `json:"stage_outputs_present"`
	Observation         *Observation        `json:"observation,omitempty"`
	Statistics          *StatisticsSnapshot `json:"statistics,omitempty"`
	Trend               *TrendSignal        `json:"trend,omitempty"`
	Anomalies           []AnomalyRecord     `json:"anomalies,omitempty"`
	Narrative           *NarrativeSummary   `json:"narrative,omitempty"`
}

// NewPipelineRun starts a run in COLLECTING.
func NewPipelineRun(trigger string, now time.Time) *PipelineRun {
	return &PipelineRun{
		ID:                  uuid.New(),
		StartedAt:           now,
		State:               StateCollecting,
		Trigger:             trigger,
		StageErrors:         []StageError{},
		StageOutputsPresent: []string{},
	}
}

func (r *PipelineRun) AddError(stage Stage, err error) {
	r.StageErrors = append(r.StageErrors, NewStageError(stage, err))
}

func (r *PipelineRun) MarkPresent(output string) {
	r.StageOutputsPresent = append(r.StageOutputsPresent, output)
}

func (r *PipelineRun) HasOutput(output string) bool {
	for _, o := range r.StageOutputsPresent {
		if o == output {
			return true
		}
	}
	return false
}

// Duration of the run, zero while still in flight.
func (r *PipelineRun) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
