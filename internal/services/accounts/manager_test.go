package accounts

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/asad/accountd/internal/logging"
	"github.com/asad/accountd/internal/recordstore"
)

// countingStore wraps a MemoryStore, counts writes and lets tests inject failures.
type countingStore struct {
	*recordstore.MemoryStore

	mu      sync.Mutex
	inserts int
	updates int

	getErr    error
	insertErr error
	updateErr error
	// beforeInsert runs ahead of the real insert; used to simulate a racing writer.
	beforeInsert func()
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: recordstore.NewMemoryStore()}
}

func (s *countingStore) Get(ctx context.Context, userID string) ([]byte, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.MemoryStore.Get(ctx, userID)
}

func (s *countingStore) Insert(ctx context.Context, userID string, blob []byte) error {
	s.mu.Lock()
	s.inserts++
	hook := s.beforeInsert
	s.beforeInsert = nil
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	if s.insertErr != nil {
		return s.insertErr
	}
	return s.MemoryStore.Insert(ctx, userID, blob)
}

func (s *countingStore) Update(ctx context.Context, userID string, blob []byte) error {
	s.mu.Lock()
	s.updates++
	s.mu.Unlock()

	if s.updateErr != nil {
		return s.updateErr
	}
	return s.MemoryStore.Update(ctx, userID, blob)
}

func (s *countingStore) seed(t *testing.T, uid string, fields Fields) {
	t.Helper()
	blob, err := EncodeFields(fields)
	require.NoError(t, err)
	require.NoError(t, s.MemoryStore.Insert(context.Background(), uid, blob))
}

func (s *countingStore) stored(t *testing.T, uid string) Fields {
	t.Helper()
	blob, err := s.MemoryStore.Get(context.Background(), uid)
	require.NoError(t, err)
	fields, err := DecodeFields(blob)
	require.NoError(t, err)
	return fields
}

// recordingNotifier collects events synchronously.
type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Notify(_ context.Context, event Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) all() []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Event(nil), n.events...)
}

// stubDefaults returns fixed fields and counts invocations.
type stubDefaults struct {
	mu     sync.Mutex
	fields Fields
	calls  []User
}

func (d *stubDefaults) build(user User) Fields {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, user)
	return d.fields.Clone()
}

func setupManager(t *testing.T, defaults Fields) (*Manager, *countingStore, *recordingNotifier, *stubDefaults) {
	t.Helper()
	store := newCountingStore()
	notifier := &recordingNotifier{}
	builder := &stubDefaults{fields: defaults}
	return NewManager(store, notifier, builder.build, logging.NewNop()), store, notifier, builder
}

func TestGetRecord(t *testing.T) {
	tests := []struct {
		name         string
		askUser      string
		expected     Fields
		alreadyExist bool
	}{
		{name: "existing user", askUser: "user1", expected: Fields{"key": "value"}, alreadyExist: true},
		{name: "unknown user", askUser: "user2", expected: Fields{}, alreadyExist: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			manager, store, notifier, builder := setupManager(t, Fields{})
			store.seed(t, "user1", Fields{"key": "value"})

			record, err := manager.GetRecord(context.Background(), Identity{ID: tc.askUser})
			require.NoError(t, err)
			assert.Equal(t, tc.askUser, record.UserID)
			assert.Equal(t, tc.expected, record.Fields)

			if tc.alreadyExist {
				assert.Empty(t, builder.calls)
				assert.Equal(t, 0, store.inserts)
			} else {
				require.Len(t, builder.calls, 1)
				assert.Equal(t, tc.askUser, builder.calls[0].UserID())
				assert.Equal(t, 1, store.inserts)
				assert.Equal(t, tc.expected, store.stored(t, tc.askUser))
			}

			// Other rows are untouched either way.
			assert.Equal(t, Fields{"key": "value"}, store.stored(t, "user1"))
			assert.Empty(t, notifier.all())
		})
	}
}

func TestGetRecord_IsIdempotent(t *testing.T) {
	defaults := Fields{"displayname": "Alice", "flags": map[string]any{"verified": "0"}}
	manager, store, notifier, builder := setupManager(t, defaults)
	user := Identity{ID: "alice"}

	first, err := manager.GetRecord(context.Background(), user)
	require.NoError(t, err)
	second, err := manager.GetRecord(context.Background(), user)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, defaults, first.Fields)
	assert.Equal(t, 1, store.inserts)
	assert.Len(t, builder.calls, 1)
	assert.Empty(t, notifier.all())
}

func TestGetRecord_NormalizesDefaultsThroughCodec(t *testing.T) {
	manager, _, _, _ := setupManager(t, Fields{"count": 3})
	user := Identity{ID: "u"}

	first, err := manager.GetRecord(context.Background(), user)
	require.NoError(t, err)
	second, err := manager.GetRecord(context.Background(), user)
	require.NoError(t, err)

	assert.Equal(t, first.Fields, second.Fields)
	assert.Equal(t, float64(3), first.Fields["count"])
}

func TestGetRecord_DefaultMaterialization(t *testing.T) {
	store := newCountingStore()
	manager := NewManager(store, nil, BuildDefaultRecord, logging.NewNop())
	user := Identity{ID: "alice", Name: "Alice", Email: "alice@example.com"}

	record, err := manager.GetRecord(context.Background(), user)
	require.NoError(t, err)

	assert.Equal(t, BuildDefaultRecord(user), record.Fields)
	assert.Equal(t, record.Fields, store.stored(t, "alice"))
}

func TestGetRecord_CorruptBlob(t *testing.T) {
	manager, store, _, builder := setupManager(t, Fields{})
	require.NoError(t, store.MemoryStore.Insert(context.Background(), "uid", []byte("{not json")))

	_, err := manager.GetRecord(context.Background(), Identity{ID: "uid"})
	require.ErrorIs(t, err, ErrSerialization)
	assert.Empty(t, builder.calls)
	assert.Equal(t, 0, store.inserts)
}

func TestGetRecord_StoreUnavailable(t *testing.T) {
	manager, store, _, builder := setupManager(t, Fields{})
	store.getErr = recordstore.ErrUnavailable

	_, err := manager.GetRecord(context.Background(), Identity{ID: "uid"})
	require.ErrorIs(t, err, recordstore.ErrUnavailable)
	assert.Empty(t, builder.calls)
}

func TestGetRecord_InsertFails(t *testing.T) {
	manager, store, _, _ := setupManager(t, Fields{})
	store.insertErr = recordstore.ErrUnavailable

	_, err := manager.GetRecord(context.Background(), Identity{ID: "uid"})
	require.ErrorIs(t, err, recordstore.ErrUnavailable)
}

func TestGetRecord_LosesCreateRace(t *testing.T) {
	manager, store, _, _ := setupManager(t, Fields{"from": "loser"})
	store.beforeInsert = func() {
		store.seed(t, "uid", Fields{"from": "winner"})
	}

	record, err := manager.GetRecord(context.Background(), Identity{ID: "uid"})
	require.NoError(t, err)
	assert.Equal(t, Fields{"from": "winner"}, record.Fields)
}

func TestGetRecord_ConcurrentCallersAgree(t *testing.T) {
	manager, store, _, _ := setupManager(t, Fields{"k": "v"})

	const callers = 10
	var wg sync.WaitGroup
	results := make([]Record, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = manager.GetRecord(context.Background(), Identity{ID: "uid"})
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, Fields{"k": "v"}, results[i].Fields)
	}
	assert.Equal(t, Fields{"k": "v"}, store.stored(t, "uid"))
}

func TestGetRecord_EmptyUserID(t *testing.T) {
	manager, _, _, _ := setupManager(t, Fields{})

	_, err := manager.GetRecord(context.Background(), Identity{ID: ""})
	require.ErrorIs(t, err, ErrEmptyUserID)
	_, err = manager.GetRecord(context.Background(), nil)
	require.ErrorIs(t, err, ErrEmptyUserID)
	err = manager.UpdateRecord(context.Background(), Identity{ID: ""}, Fields{})
	require.ErrorIs(t, err, ErrEmptyUserID)
}

func TestGetRecord_OpaqueUserID(t *testing.T) {
	manager, store, _, _ := setupManager(t, Fields{"k": "v"})

	record, err := manager.GetRecord(context.Background(), Identity{ID: " "})
	require.NoError(t, err)
	assert.Equal(t, " ", record.UserID)
	assert.Equal(t, Fields{"k": "v"}, store.stored(t, " "))
}

func TestUpdateRecord(t *testing.T) {
	for _, alreadyExists := range []bool{true, false} {
		name := "insert path"
		if alreadyExists {
			name = "update path"
		}
		t.Run(name, func(t *testing.T) {
			manager, store, notifier, builder := setupManager(t, Fields{"default": "x"})
			user := Identity{ID: "uid"}
			if alreadyExists {
				store.seed(t, "uid", Fields{"key": "value"})
			}

			data := Fields{"newKey": "newValue"}
			require.NoError(t, manager.UpdateRecord(context.Background(), user, data))

			if alreadyExists {
				assert.Equal(t, 1, store.updates)
				assert.Equal(t, 0, store.inserts)
			} else {
				assert.Equal(t, 0, store.updates)
				assert.Equal(t, 1, store.inserts)
			}
			assert.Empty(t, builder.calls)
			assert.Equal(t, data, store.stored(t, "uid"))

			events := notifier.all()
			require.Len(t, events, 1)
			assert.Equal(t, EventUserUpdated, events[0].Name)
			assert.Equal(t, "uid", events[0].UserID)
			assert.Equal(t, user, events[0].User)
			assert.Equal(t, data, events[0].Fields)
		})
	}
}

func TestUpdateRecord_ReplacesNotMerges(t *testing.T) {
	manager, store, _, _ := setupManager(t, Fields{})
	store.seed(t, "uid", Fields{"key": "value"})

	require.NoError(t, manager.UpdateRecord(context.Background(), Identity{ID: "uid"}, Fields{"newKey": "newValue"}))

	stored := store.stored(t, "uid")
	assert.Equal(t, Fields{"newKey": "newValue"}, stored)
	assert.NotContains(t, stored, "key")
}

func TestUpdateRecord_EmptyFields(t *testing.T) {
	manager, store, notifier, _ := setupManager(t, Fields{})
	store.seed(t, "uid", Fields{"key": "value"})

	require.NoError(t, manager.UpdateRecord(context.Background(), Identity{ID: "uid"}, nil))

	assert.Equal(t, Fields{}, store.stored(t, "uid"))
	require.Len(t, notifier.all(), 1)
	assert.Equal(t, Fields{}, notifier.all()[0].Fields)
}

func TestUpdateRecord_WriteFailureSuppressesNotification(t *testing.T) {
	for _, alreadyExists := range []bool{true, false} {
		manager, store, notifier, _ := setupManager(t, Fields{})
		if alreadyExists {
			store.seed(t, "uid", Fields{"key": "value"})
		}
		store.insertErr = recordstore.ErrUnavailable
		store.updateErr = recordstore.ErrUnavailable

		err := manager.UpdateRecord(context.Background(), Identity{ID: "uid"}, Fields{"a": "b"})
		require.ErrorIs(t, err, recordstore.ErrUnavailable)
		assert.Empty(t, notifier.all())
	}
}

func TestUpdateRecord_UnencodableFields(t *testing.T) {
	manager, store, notifier, _ := setupManager(t, Fields{})

	err := manager.UpdateRecord(context.Background(), Identity{ID: "uid"}, Fields{"bad": make(chan int)})
	require.ErrorIs(t, err, ErrSerialization)
	assert.Equal(t, 0, store.inserts)
	assert.Empty(t, notifier.all())
}

func TestUpdateRecord_InsertRaceFallsBackToUpdate(t *testing.T) {
	manager, store, notifier, _ := setupManager(t, Fields{})
	store.beforeInsert = func() {
		store.seed(t, "uid", Fields{"from": "other writer"})
	}

	data := Fields{"from": "caller"}
	require.NoError(t, manager.UpdateRecord(context.Background(), Identity{ID: "uid"}, data))

	assert.Equal(t, 1, store.inserts)
	assert.Equal(t, 1, store.updates)
	assert.Equal(t, data, store.stored(t, "uid"))
	assert.Len(t, notifier.all(), 1)
}

func TestUpdateRecord_NotifiedFieldsAreSnapshots(t *testing.T) {
	manager, _, notifier, _ := setupManager(t, Fields{})

	email := map[string]any{"value": "a@example.com", "scope": "contacts"}
	data := Fields{"k": "v", "email": email}
	require.NoError(t, manager.UpdateRecord(context.Background(), Identity{ID: "uid"}, data))
	data["k"] = "mutated"
	email["value"] = "mutated"

	got := notifier.all()[0].Fields
	assert.Equal(t, "v", got["k"])
	assert.Equal(t, map[string]any{"value": "a@example.com", "scope": "contacts"}, got["email"])
}

func TestUpdateRecord_LogsWritePathTaken(t *testing.T) {
	tests := []struct {
		name        string
		seeded      bool
		racingWrite bool
		wantCreated bool
	}{
		{name: "insert", wantCreated: true},
		{name: "update", seeded: true, wantCreated: false},
		{name: "insert lost race", racingWrite: true, wantCreated: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			zcore, logs := observer.New(zapcore.InfoLevel)
			store := newCountingStore()
			manager := NewManager(store, nil, EmptyDefaults, logging.New(zap.New(zcore)))
			if tc.seeded {
				store.seed(t, "uid", Fields{})
			}
			if tc.racingWrite {
				store.beforeInsert = func() { store.seed(t, "uid", Fields{}) }
			}

			require.NoError(t, manager.UpdateRecord(context.Background(), Identity{ID: "uid"}, Fields{"k": "v"}))

			entries := logs.FilterMessage("account updated").All()
			require.Len(t, entries, 1)
			assert.Equal(t, tc.wantCreated, entries[0].ContextMap()["created"])
		})
	}
}

func TestInsertNewUser(t *testing.T) {
	manager, store, _, _ := setupManager(t, Fields{})
	ctx := context.Background()

	_, err := store.MemoryStore.Get(ctx, "uid")
	require.ErrorIs(t, err, recordstore.ErrNotFound)

	require.NoError(t, manager.insertNewUser(ctx, Identity{ID: "uid"}, Fields{"key": "value"}))
	assert.Equal(t, Fields{"key": "value"}, store.stored(t, "uid"))

	err = manager.insertNewUser(ctx, Identity{ID: "uid"}, Fields{})
	require.ErrorIs(t, err, recordstore.ErrDuplicateKey)
}

func TestUpdateExistingUser(t *testing.T) {
	manager, store, _, _ := setupManager(t, Fields{})
	ctx := context.Background()

	err := manager.updateExistingUser(ctx, Identity{ID: "uid"}, Fields{})
	require.ErrorIs(t, err, recordstore.ErrNotFound)

	store.seed(t, "uid", Fields{"key": "value"})
	require.NoError(t, manager.updateExistingUser(ctx, Identity{ID: "uid"}, Fields{"newKey": "newValue"}))
	assert.Equal(t, Fields{"newKey": "newValue"}, store.stored(t, "uid"))
}

func TestNotifierFunc(t *testing.T) {
	var got Event
	n := NotifierFunc(func(_ context.Context, e Event) { got = e })
	n.Notify(context.Background(), Event{Name: EventUserUpdated})
	assert.Equal(t, EventUserUpdated, got.Name)
}

func TestUpdateRecord_ExistsProbeFails(t *testing.T) {
	store := &failingExistsStore{Store: recordstore.NewMemoryStore()}
	notifier := &recordingNotifier{}
	manager := NewManager(store, notifier, nil, logging.NewNop())

	err := manager.UpdateRecord(context.Background(), Identity{ID: "uid"}, Fields{})
	require.True(t, errors.Is(err, recordstore.ErrUnavailable))
	assert.Empty(t, notifier.all())
}

type failingExistsStore struct {
	recordstore.Store
}

func (s *failingExistsStore) Exists(context.Context, string) (bool, error) {
	return false, recordstore.ErrUnavailable
}
