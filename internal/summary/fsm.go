package summary

import "github.com/qmuntal/stateless"

// FSM states for one session's summarization lifecycle.
type State stateless.State

var (
	StateIdle        State = "Idle"
	StateTriggered   State = "Triggered"
	StateSummarizing State = "Summarizing"
	StateCommitted   State = "Committed"
)

// FSM triggers.
type Trigger stateless.Trigger

var (
	TriggerSchedule Trigger = "Schedule"
	TriggerBegin    Trigger = "Begin"
	TriggerCommit   Trigger = "Commit"
	TriggerFail     Trigger = "Fail"
	TriggerReset    Trigger = "Reset"
)

// newSessionFSM builds the per-session state machine. Firing Schedule on
// anything but Idle fails, which is how a session already in flight rejects
// a second concurrent run.
func newSessionFSM() *stateless.StateMachine {
	fsm := stateless.NewStateMachine(StateIdle)

	fsm.Configure(StateIdle).
		Permit(TriggerSchedule, StateTriggered)

	fsm.Configure(StateTriggered).
		Permit(TriggerBegin, StateSummarizing).
		Permit(TriggerReset, StateIdle)

	fsm.Configure(StateSummarizing).
		Permit(TriggerCommit, StateCommitted).
		Permit(TriggerFail, StateIdle)

	fsm.Configure(StateCommitted).
		Permit(TriggerReset, StateIdle)

	return fsm
}
