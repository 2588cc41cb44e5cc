package turn

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"
)

// Event names.
const (
	EventAutoFill = "autofill"
	EventConfirm  = "confirm"
	EventSucceed  = "succeed"
	EventFail     = "fail"
)

// classifyEvents moves a fresh machine out of extracted.
var classifyEvents = map[State]statekit.EventType{
	StateBlockedMissingID:     "to_missing_id",
	StateBlockedClarification: "to_clarification",
	StateBlockedMissingFields: "to_missing_fields",
	StateReady:                "to_ready",
}

// Context is the data guards see.
type Context struct {
	NeedsClarification bool
}

// Machine tracks one turn. Blocked missing-id and clarification states are
// terminal; confirm is guarded so a clarification request can never execute.
type Machine struct {
	interpreter *statekit.Interpreter[Context]
}

// NewMachine builds the lifecycle machine and advances it to the state c
// classified the intent into.
func NewMachine(c Classification, needsClarification bool) (*Machine, error) {
	builder := statekit.NewMachine[Context]("turn").
		WithInitial(statekit.StateID(StateExtracted)).
		WithContext(Context{NeedsClarification: needsClarification}).
		WithGuard("noClarification", func(ctx Context, e statekit.Event) bool {
			return !ctx.NeedsClarification
		})

	builder.State(statekit.StateID(StateExtracted)).
		On(classifyEvents[StateBlockedMissingID]).Target(statekit.StateID(StateBlockedMissingID)).
		On(classifyEvents[StateBlockedClarification]).Target(statekit.StateID(StateBlockedClarification)).
		On(classifyEvents[StateBlockedMissingFields]).Target(statekit.StateID(StateBlockedMissingFields)).Guard("noClarification").
		On(classifyEvents[StateReady]).Target(statekit.StateID(StateReady)).Guard("noClarification").
		Done()

	builder.State(statekit.StateID(StateBlockedMissingID)).Done()
	builder.State(statekit.StateID(StateBlockedClarification)).Done()

	builder.State(statekit.StateID(StateBlockedMissingFields)).
		On(EventAutoFill).Target(statekit.StateID(StateReady)).
		Done()

	builder.State(statekit.StateID(StateReady)).
		On(EventConfirm).Target(statekit.StateID(StateExecuting)).Guard("noClarification").
		Done()

	builder.State(statekit.StateID(StateExecuting)).
		On(EventSucceed).Target(statekit.StateID(StateCompleted)).
		On(EventFail).Target(statekit.StateID(StateFailed)).
		Done()

	builder.State(statekit.StateID(StateCompleted)).Done()
	builder.State(statekit.StateID(StateFailed)).Done()

	machine, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("build turn machine: %w", err)
	}
	interpreter := statekit.NewInterpreter(machine)
	interpreter.Start()

	m := &Machine{interpreter: interpreter}
	if evt, ok := classifyEvents[c.State]; ok {
		if err := m.send(evt); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// State returns the current state.
func (m *Machine) State() State {
	return State(m.interpreter.State().Value)
}

// AutoFill records that missing fields were filled.
func (m *Machine) AutoFill() error { return m.send(EventAutoFill) }

// Confirm moves a ready turn into execution.
func (m *Machine) Confirm() error { return m.send(EventConfirm) }

// Succeed marks execution as committed.
func (m *Machine) Succeed() error { return m.send(EventSucceed) }

// Fail marks execution as failed.
func (m *Machine) Fail() error { return m.send(EventFail) }

func (m *Machine) send(event statekit.EventType) error {
	before := m.State()
	m.interpreter.Send(statekit.Event{Type: event})
	if m.State() == before {
		return fmt.Errorf("%s is not allowed while the turn is %s", event, before)
	}
	return nil
}
