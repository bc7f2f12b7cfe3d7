package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// StateCode is the numeric state code used by the status service.
type StateCode int

const (
	// StateQueued is the implicit initial state.
	StateQueued StateCode = 0
	// StateProcessing marks a job that a worker picked up.
	StateProcessing StateCode = 1
	// StateCompleted marks a job whose artifact was rendered and routed.
	StateCompleted StateCode = 2
	// StateFailed marks a job that could not produce an artifact.
	StateFailed StateCode = 3
)

var stateNames = map[StateCode]string{
	StateQueued:     "Queued",
	StateProcessing: "Processing",
	StateCompleted:  "Completed",
	StateFailed:     "Failed",
}

// String returns the state name.
func (c StateCode) String() string {
	if name, ok := stateNames[c]; ok {
		return name
	}
	return fmt.Sprintf("StateCode(%d)", int(c))
}

// Valid reports whether the code is one of the four known states.
func (c StateCode) Valid() bool {
	_, ok := stateNames[c]
	return ok
}

// Terminal reports whether no further transition may follow this state.
func (c StateCode) Terminal() bool {
	return c == StateCompleted || c == StateFailed
}

// ParseStateCode resolves a state name (case-insensitive).
func ParseStateCode(name string) (StateCode, error) {
	for code, n := range stateNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return code, nil
		}
	}
	return 0, fmt.Errorf("unknown job state: %q", name)
}

// State is the tagged union of job lifecycle states. Each variant carries only the
// fields that are meaningful for it, so a terminal state can never hold a process id.
type State interface {
	Code() StateCode
	isState()
}

// Queued is the initial state; it is never pushed by this process.
type Queued struct{}

// Processing records which worker process picked the job up.
type Processing struct {
	Start  time.Time
	Worker string
	PID    int
}

// Completed records a successful run.
type Completed struct {
	Start  time.Time
	End    time.Time
	Worker string
}

// Failed records an unsuccessful run and why.
type Failed struct {
	Start  time.Time
	End    time.Time
	Worker string
	Reason string
}

func (Queued) Code() StateCode     { return StateQueued }
func (Processing) Code() StateCode { return StateProcessing }
func (Completed) Code() StateCode  { return StateCompleted }
func (Failed) Code() StateCode     { return StateFailed }

func (Queued) isState()     {}
func (Processing) isState() {}
func (Completed) isState()  {}
func (Failed) isState()     {}

// WorkerOf returns the worker host recorded by s, if any.
func WorkerOf(s State) string {
	switch v := s.(type) {
	case Processing:
		return v.Worker
	case Completed:
		return v.Worker
	case Failed:
		return v.Worker
	default:
		return ""
	}
}

// StartTime returns the processing start time carried by s, if any.
func StartTime(s State) time.Time {
	switch v := s.(type) {
	case Processing:
		return v.Start
	case Completed:
		return v.Start
	case Failed:
		return v.Start
	default:
		return time.Time{}
	}
}

// StatusSnapshot is the full record the status service stores for a job.
type StatusSnapshot struct {
	ID        uuid.UUID
	State     State
	Filename  string
	Requestor string
}

// ErrInvalidTransition is returned when a status change would move a job backwards
// or out of a terminal state.
var ErrInvalidTransition = errors.New("invalid job state transition")

// CanTransition reports whether moving from one state code to another respects the
// monotonic Queued → Processing → {Completed | Failed} order. Queued → Failed is
// allowed for jobs that fail before processing starts.
func CanTransition(from, to StateCode) bool {
	switch from {
	case StateQueued:
		return to == StateProcessing || to == StateFailed
	case StateProcessing:
		return to == StateCompleted || to == StateFailed
	default:
		return false
	}
}
