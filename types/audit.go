package types

import (
	"fmt"
	"time"
)

// AuditEvent records one lifecycle transition. Events are append-only and
// never mutated; the engine produces them but does not manage their storage
// lifetime.
type AuditEvent struct {
	ResourceID string         `json:"resource_id"`
	From       LifecycleState `json:"from"`
	To         LifecycleState `json:"to"`
	Reason     string         `json:"reason"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Validate ensures the event describes a real transition.
func (e *AuditEvent) Validate() error {
	if e.ResourceID == "" {
		return fmt.Errorf("audit event has no resource ID")
	}
	if !e.From.Valid() || !e.To.Valid() {
		return fmt.Errorf("audit event %s has invalid states %q -> %q", e.ResourceID, e.From, e.To)
	}
	if e.From == e.To {
		return fmt.Errorf("audit event %s is not a transition (%s -> %s)", e.ResourceID, e.From, e.To)
	}
	if e.Reason == "" {
		return fmt.Errorf("audit event %s has no reason", e.ResourceID)
	}
	return nil
}
