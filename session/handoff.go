package session

import "fmt"

// Handoff is one queued request to transfer main-agent status. At most one
// is outstanding per session; a later request overwrites an earlier one.
type Handoff struct {
	Prev   string
	Target string
	Reason string
}

// Notice synthesizes the message delivered to the target agent when the
// hand-off commits.
func (h *Handoff) Notice() string {
	return fmt.Sprintf(
		"The %s handed off the user to you! Do your best. This was its reason: %s",
		h.Prev, h.Reason,
	)
}
