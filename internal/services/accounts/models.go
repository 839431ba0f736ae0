package accounts

import (
	"maps"
	"time"
)

// User is the identity handle the manager operates on. Only UserID is
// required; richer handles may also implement DisplayNamer and Emailer so the
// default record can be seeded from them.
type User interface {
	UserID() string
}

// DisplayNamer is implemented by users that carry a display name.
type DisplayNamer interface {
	DisplayName() string
}

// Emailer is implemented by users that carry an email address.
type Emailer interface {
	EMailAddress() string
}

// Identity is the concrete User used by the HTTP and CLI surfaces.
type Identity struct {
	ID    string
	Name  string
	Email string
}

func (i Identity) UserID() string { return i.ID }
func (i Identity) DisplayName() string { return i.Name }
func (i Identity) EMailAddress() string { return i.Email }

// Fields holds a user's account attributes. Values are JSON compatible.
// Key order carries no meaning.
type Fields map[string]any

// Clone returns a shallow copy; a nil receiver yields an empty map.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	maps.Copy(out, f)
	return out
}

// Record is an immutable snapshot of one user's account data.
type Record struct {
	UserID string `json:"userId"`
	Fields Fields `json:"fields"`
}

// Event is delivered to the Notifier after every successful update.
// ID and OccurredAt are stamped by the notifier.
type Event struct {
	ID         string    `json:"id,omitempty"`
	Name       string    `json:"name"`
	User       User      `json:"-"`
	UserID     string    `json:"userId"`
	Fields     Fields    `json:"fields"`
	OccurredAt time.Time `json:"occurredAt"`
}
