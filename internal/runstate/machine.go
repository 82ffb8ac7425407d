package runstate

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
)

// Event is a named transition of the task state machine
type Event string

const (
	EventPromote  Event = "promote"  // Pending -> Ready, all upstreams succeeded
	EventDispatch Event = "dispatch" // Ready -> Running
	EventSucceed  Event = "succeed"  // Running -> Succeeded
	EventFail     Event = "fail"     // Running -> Failed
	EventRetry    Event = "retry"    // Running -> Ready, retriable failure with attempts left
	EventBlock    Event = "block"    // Pending -> UpstreamFailed
	EventSkip     Event = "skip"     // Pending|Ready -> Skipped
)

var transitions = fsm.Events{
	{Name: string(EventPromote), Src: []string{string(StatusPending)}, Dst: string(StatusReady)},
	{Name: string(EventDispatch), Src: []string{string(StatusReady)}, Dst: string(StatusRunning)},
	{Name: string(EventSucceed), Src: []string{string(StatusRunning)}, Dst: string(StatusSucceeded)},
	{Name: string(EventFail), Src: []string{string(StatusRunning)}, Dst: string(StatusFailed)},
	{Name: string(EventRetry), Src: []string{string(StatusRunning)}, Dst: string(StatusReady)},
	{Name: string(EventBlock), Src: []string{string(StatusPending)}, Dst: string(StatusUpstreamFailed)},
	{Name: string(EventSkip), Src: []string{string(StatusPending), string(StatusReady)}, Dst: string(StatusSkipped)},
}

// Machine guards the status of a single task instance. It is not safe for
// concurrent use; the engine serialises access under its own lock.
type Machine struct {
	fsm *fsm.FSM
}

// NewMachine creates a machine in the Pending state
func NewMachine() *Machine {
	return &Machine{fsm: fsm.NewFSM(string(StatusPending), transitions, fsm.Callbacks{})}
}

// Status returns the current status
func (m *Machine) Status() Status {
	return Status(m.fsm.Current())
}

// Can reports whether the event is allowed from the current status
func (m *Machine) Can(event Event) bool {
	return m.fsm.Can(string(event))
}

// Fire applies the event and returns the new status
func (m *Machine) Fire(ctx context.Context, event Event) (Status, error) {
	from := m.Status()
	if err := m.fsm.Event(ctx, string(event)); err != nil {
		return from, fmt.Errorf("invalid transition %s from %s: %w", event, from, err)
	}
	return m.Status(), nil
}
