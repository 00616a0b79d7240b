package provision

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/lilyenv/pkg/activation"
	"github.com/matzehuels/lilyenv/pkg/observability"
	"github.com/matzehuels/lilyenv/pkg/registry"
	"github.com/matzehuels/lilyenv/pkg/version"
)

// State is a step of the provisioning chain.
type State string

const (
	Requested        State = "requested"
	Resolved         State = "resolved"
	InterpreterReady State = "interpreter-ready"
	VirtualenvReady  State = "virtualenv-ready"
	Activated        State = "activated"

	ResolutionFailed   State = "resolution-failed"
	DownloadFailed     State = "download-failed"
	VenvCreationFailed State = "venv-creation-failed"
)

// Failed reports whether s is a terminal failure state.
func (s State) Failed() bool {
	return s == ResolutionFailed || s == DownloadFailed || s == VenvCreationFailed
}

// stage names the work that leads out of a failure state.
func (s State) stage() string {
	switch s {
	case ResolutionFailed:
		return "resolve"
	case DownloadFailed:
		return "install interpreter"
	case VenvCreationFailed:
		return "create virtualenv"
	default:
		return string(s)
	}
}

// StageError records which stage of a run failed.
type StageError struct {
	State State
	Err   error
}

func (e *StageError) Error() string { return e.State.stage() + ": " + e.Err.Error() }
func (e *StageError) Unwrap() error { return e.Err }

// Stage returns a short human name of the failed stage.
func (e *StageError) Stage() string { return e.State.stage() }

// Run is the outcome of one provisioning request.
type Run struct {
	Project string
	Spec    version.Spec

	// Trace lists the states reached, in order, ending in a terminal state
	// on failure.
	Trace []State

	Build       version.BuildID
	Interpreter registry.Interpreter
	Virtualenv  registry.Virtualenv
	Descriptor  *activation.Descriptor

	// Installed and Created report whether this run downloaded the
	// interpreter or created the virtualenv.
	Installed bool
	Created   bool
}

// State returns the last state reached.
func (r *Run) State() State {
	if len(r.Trace) == 0 {
		return ""
	}
	return r.Trace[len(r.Trace)-1]
}

func (r *Run) to(ctx context.Context, logger *log.Logger, s State) {
	from := r.State()
	r.Trace = append(r.Trace, s)
	observability.Provision().OnTransition(ctx, string(from), string(s))
	logger.Debug("transition", "from", from, "to", s)
}

// fail moves r into the failure state s and wraps err with it.
func (r *Run) fail(ctx context.Context, logger *log.Logger, s State, err error) error {
	r.to(ctx, logger, s)
	return &StageError{State: s, Err: err}
}

func (r *Run) String() string {
	return fmt.Sprintf("%s %s: %v", r.Project, r.Spec, r.Trace)
}
