package lifecycle

import "time"

// IntentKind names a side effect the state machine wants performed.
type IntentKind string

const (
	// IntentNotifyOwner asks for an owner notice about the new state.
	IntentNotifyOwner IntentKind = "notify_owner"

	// IntentSchedule asks for a deletion trigger at FireAt.
	IntentSchedule IntentKind = "schedule_deletion"

	// IntentCancelSchedule asks for cancellation of the trigger identified
	// by Token. Best-effort: the timer may still fire, and the safety gate
	// remains the authoritative cancellation check.
	IntentCancelSchedule IntentKind = "cancel_schedule"
)

// Intent is a side effect to dispatch after the record write succeeds.
type Intent struct {
	Kind   IntentKind
	Reason string
	FireAt time.Time
	Token  string
}
