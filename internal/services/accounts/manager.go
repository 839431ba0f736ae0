package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/asad/accountd/internal/logging"
	"github.com/asad/accountd/internal/recordstore"
)

// EventUserUpdated names the event emitted after a user's account data changes.
const EventUserUpdated = "accounts.user_updated"

// ErrEmptyUserID is returned for user handles without an identifier.
var ErrEmptyUserID = errors.New("user id is required")

// Notifier receives change events. Delivery is fire-and-forget: Notify must
// not block on subscribers and has no way to fail the update.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, event Event)

func (f NotifierFunc) Notify(ctx context.Context, event Event) { f(ctx, event) }

// Manager implements get-or-create and update-with-notify over a record store.
// It does no locking of its own; each read or write is as atomic as the store
// makes it, and concurrent updates to one user are last-writer-wins.
type Manager struct {
	store    recordstore.Store
	notifier Notifier
	defaults DefaultBuilder
	logger   logging.Logger
}

// NewManager creates a manager. A nil defaults builder materializes empty records.
func NewManager(store recordstore.Store, notifier Notifier, defaults DefaultBuilder, logger logging.Logger) *Manager {
	if defaults == nil {
		defaults = EmptyDefaults
	}
	return &Manager{
		store:    store,
		notifier: notifier,
		defaults: defaults,
		logger:   logger,
	}
}

// GetRecord returns the user's account data, creating and persisting the
// default record on first access. Only the not-found path writes.
func (m *Manager) GetRecord(ctx context.Context, user User) (Record, error) {
	uid, err := userID(user)
	if err != nil {
		return Record{}, err
	}

	record, err := m.readExisting(ctx, uid)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, recordstore.ErrNotFound) {
		return Record{}, err
	}

	// Round-trip through the codec so this call and later reads agree exactly.
	blob, err := EncodeFields(m.defaults(user))
	if err != nil {
		return Record{}, err
	}
	fields, err := DecodeFields(blob)
	if err != nil {
		return Record{}, err
	}

	if err := m.insertNewUser(ctx, user, fields); err != nil {
		if !errors.Is(err, recordstore.ErrDuplicateKey) {
			return Record{}, err
		}
		// A concurrent caller materialized the row first.
		m.logger.Debug("default record already created",
			logging.String("user_id", uid),
		)
		return m.readExisting(ctx, uid)
	}

	m.logger.Debug("default record created",
		logging.String("user_id", uid),
		logging.Int("fields", len(fields)),
	)
	return Record{UserID: uid, Fields: fields.Clone()}, nil
}

// UpdateRecord replaces the user's account data with fields, inserting the row
// if it does not exist, and then emits exactly one EventUserUpdated. Nothing
// is emitted when the write fails.
func (m *Manager) UpdateRecord(ctx context.Context, user User, fields Fields) error {
	uid, err := userID(user)
	if err != nil {
		return err
	}

	// snapshot is a deep copy of fields for the event.
	blob, err := EncodeFields(fields)
	if err != nil {
		return err
	}
	snapshot, err := DecodeFields(blob)
	if err != nil {
		return err
	}

	exists, err := m.store.Exists(ctx, uid)
	if err != nil {
		return fmt.Errorf("check account %q: %w", uid, err)
	}

	created := false
	if exists {
		err = m.updateExistingUser(ctx, user, fields)
	} else {
		err = m.insertNewUser(ctx, user, fields)
		created = err == nil
		if errors.Is(err, recordstore.ErrDuplicateKey) {
			m.logger.Debug("account created concurrently, overwriting",
				logging.String("user_id", uid),
			)
			err = m.updateExistingUser(ctx, user, fields)
		}
	}
	if err != nil {
		return err
	}

	m.logger.Info("account updated",
		logging.String("user_id", uid),
		logging.Bool("created", created),
	)

	if m.notifier != nil {
		m.notifier.Notify(ctx, Event{
			Name:   EventUserUpdated,
			User:   user,
			UserID: uid,
			Fields: snapshot,
		})
	}
	return nil
}

// insertNewUser writes a fresh row and fails with recordstore.ErrDuplicateKey
// if the user already has one.
func (m *Manager) insertNewUser(ctx context.Context, user User, fields Fields) error {
	blob, err := EncodeFields(fields)
	if err != nil {
		return err
	}
	if err := m.store.Insert(ctx, user.UserID(), blob); err != nil {
		return fmt.Errorf("insert account %q: %w", user.UserID(), err)
	}
	return nil
}

// updateExistingUser overwrites the row and fails with recordstore.ErrNotFound
// if there is none.
func (m *Manager) updateExistingUser(ctx context.Context, user User, fields Fields) error {
	blob, err := EncodeFields(fields)
	if err != nil {
		return err
	}
	if err := m.store.Update(ctx, user.UserID(), blob); err != nil {
		return fmt.Errorf("update account %q: %w", user.UserID(), err)
	}
	return nil
}

func (m *Manager) readExisting(ctx context.Context, uid string) (Record, error) {
	blob, err := m.store.Get(ctx, uid)
	if err != nil {
		if errors.Is(err, recordstore.ErrNotFound) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("get account %q: %w", uid, err)
	}

	fields, err := DecodeFields(blob)
	if err != nil {
		m.logger.Error("stored account data is corrupt",
			logging.String("user_id", uid),
			logging.ErrorField(err),
		)
		return Record{}, fmt.Errorf("account %q: %w", uid, err)
	}
	return Record{UserID: uid, Fields: fields}, nil
}

func userID(user User) (string, error) {
	if user == nil || user.UserID() == "" {
		return "", ErrEmptyUserID
	}
	return user.UserID(), nil
}
