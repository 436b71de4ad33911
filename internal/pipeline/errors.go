package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput means the run could not start: the recording is
	// missing or its name cannot be mapped to storage.
	ErrInvalidInput = errors.New("invalid pipeline input")

	// ErrCompositionFailed means the blur pass failed and the run was aborted.
	ErrCompositionFailed = errors.New("composition failed")

	// ErrFinalizeFailed means the output could not be moved into place.
	ErrFinalizeFailed = errors.New("finalize failed")
)

// Stage names a step of a run.
type Stage string

const (
	StageSetup       Stage = "setup"
	StageSampling    Stage = "sampling"
	StageScanning    Stage = "scanning"
	StageMerging     Stage = "merging"
	StageCompositing Stage = "compositing"
	StageSanitizing  Stage = "sanitizing"
	StageFinalizing  Stage = "finalizing"
	StageCleanup     Stage = "cleanup"
)

// RunError is the error returned by a failed run. When it is returned the
// final output path does not exist.
type RunError struct {
	Stage Stage
	RunID string
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run %s failed at %s: %v", e.RunID, e.Stage, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// DegradationKind classifies a non-fatal problem.
type DegradationKind string

const (
	ExtractionDegraded   DegradationKind = "extraction_degraded"
	ScanDegraded         DegradationKind = "scan_degraded"
	SanitizationDegraded DegradationKind = "sanitization_degraded"
	CleanupFailed        DegradationKind = "cleanup_failed"
)

// Degradation records a condition the run absorbed instead of failing.
type Degradation struct {
	Kind   DegradationKind `json:"kind"`
	Detail string          `json:"detail"`
}
