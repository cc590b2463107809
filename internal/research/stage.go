package research

import (
	"errors"
	"fmt"
)

// Stage is a step of the research state machine
type Stage string

// Research stages in execution order
const (
	StageValidating Stage = "validating"
	StageCacheCheck Stage = "cache_check"
	StageGenerating Stage = "generating"
	StageMeasuring  Stage = "measuring"
	StageScoring    Stage = "scoring"
	StageFinalizing Stage = "finalizing"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

var (
	// ErrNoKeywords is returned when no candidate survives measurement
	ErrNoKeywords = errors.New("no keywords could be measured")
	// ErrNoCandidates is returned when generation yields nothing
	ErrNoCandidates = errors.New("no keyword candidates generated")
)

// StageError reports the stage a research run failed in
type StageError struct {
	Stage Stage
	Cause error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("research failed in %s stage: %v", e.Stage, e.Cause)
}

func (e *StageError) Unwrap() error {
	return e.Cause
}
