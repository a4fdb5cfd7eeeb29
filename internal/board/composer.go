package board

import (
	"strings"
	"time"
)

// SentAckWindow is how long the sent acknowledgment stays up after an
// accepted wish, during which repeated submission is disabled.
const SentAckWindow = 3 * time.Second

// Composer tracks a guest's submission state: whether a send
// acknowledgment is pending and, with it, whether a new submission is
// currently allowed. Duplicate rapid submits are prevented here rather
// than in the data model.
type Composer struct {
	now       func() time.Time
	sentUntil time.Time
}

// NewComposer creates a composer using now as its clock. A nil now
// defaults to time.Now.
func NewComposer(now func() time.Time) *Composer {
	if now == nil {
		now = time.Now
	}
	return &Composer{now: now}
}

// Pending reports whether a sent acknowledgment is still showing.
func (c *Composer) Pending() bool {
	return c.now().Before(c.sentUntil)
}

// CanSend reports whether a new wish may be submitted.
func (c *Composer) CanSend() bool {
	return !c.Pending()
}

// MarkSent starts the acknowledgment window after an accepted
// submission. It clears on its own once SentAckWindow elapses.
func (c *Composer) MarkSent() {
	c.sentUntil = c.now().Add(SentAckWindow)
}

// ValidWish trims a draft and reports whether anything is left to
// submit. Empty or whitespace-only drafts are a no-op, not an error.
func ValidWish(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	return trimmed, trimmed != ""
}
