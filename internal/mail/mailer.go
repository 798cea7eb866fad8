package mail

import (
	"context"
	"time"
)

// Inbound is a received email reduced to what the grading pipeline needs.
type Inbound struct {
	ID       string
	ThreadID string
	// From is the raw header value ("Name <addr>"); Sender is the parsed,
	// normalized address.
	From            string
	Sender          string
	Subject         string
	MessageIDHeader string
	Body            string
}

// Outgoing is a new email sent from the bot mailbox.
type Outgoing struct {
	FromName string
	To       string
	Subject  string
	Body     string
	HTML     string
}

// Mailer is the mail-transport collaborator. The Gmail implementation lives
// in this package; tests substitute fakes.
type Mailer interface {
	Send(ctx context.Context, msg Outgoing) error
	// Reply threads a plain-text reply onto the original message. Best
	// effort from the caller's perspective: a committed grading result must
	// not be rolled back because the reply failed.
	Reply(ctx context.Context, original *Inbound, body string) error
	// HistorySince returns messages added to the inbox since the given
	// history cursor.
	HistorySince(ctx context.Context, historyID uint64) ([]*Inbound, error)
	// Latest returns the single most recent inbox message, or nil when the
	// mailbox is empty. Fallback for notifications whose history window has
	// already expired.
	Latest(ctx context.Context) (*Inbound, error)
	// Watch (re-)registers the push subscription and returns its expiry.
	Watch(ctx context.Context) (time.Time, error)
}
