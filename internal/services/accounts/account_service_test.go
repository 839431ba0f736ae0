package accounts

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asad/accountd/internal/logging"
	"github.com/asad/accountd/internal/recordstore"
)

// setupTestService creates an account service over a fresh store.
func setupTestService(t *testing.T) (http.Handler, *countingStore, *recordingNotifier) {
	store := newCountingStore()
	notifier := &recordingNotifier{}

	manager := NewManager(store, notifier, BuildDefaultRecord, logging.NewNop())
	service := NewAccountService(manager, logging.NewNop())

	router := chi.NewRouter()
	service.RegisterRoutes(router)
	return router, store, notifier
}

func TestAccountService_Name(t *testing.T) {
	assert.Equal(t, "accounts", NewAccountService(nil, logging.NewNop()).Name())
}

func TestAccountService_GetCreatesDefault(t *testing.T) {
	router, store, notifier := setupTestService(t)

	req := httptest.NewRequest("GET", "/alice", nil)
	req.Header.Set(HeaderDisplayName, "Alice")
	req.Header.Set(HeaderEmail, "alice@example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var record Record
	require.NoError(t, json.NewDecoder(w.Body).Decode(&record))
	assert.Equal(t, "alice", record.UserID)
	assert.Equal(t, "Alice", record.Fields[PropertyDisplayName].(map[string]any)["value"])
	assert.Equal(t, record.Fields, store.stored(t, "alice"))
	assert.Empty(t, notifier.all())
}

func TestAccountService_GetExisting(t *testing.T) {
	router, store, _ := setupTestService(t)
	store.seed(t, "user1", Fields{"key": "value"})

	req := httptest.NewRequest("GET", "/user1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"userId":"user1","fields":{"key":"value"}}`, w.Body.String())
	assert.Equal(t, 0, store.inserts)
}

func TestAccountService_PutReplaces(t *testing.T) {
	router, store, notifier := setupTestService(t)
	store.seed(t, "uid", Fields{"key": "value"})

	req := httptest.NewRequest("PUT", "/uid", strings.NewReader(`{"newKey":"newValue"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, Fields{"newKey": "newValue"}, store.stored(t, "uid"))

	events := notifier.all()
	require.Len(t, events, 1)
	assert.Equal(t, EventUserUpdated, events[0].Name)
	assert.Equal(t, "uid", events[0].UserID)
}

func TestAccountService_PutRejectsNonObject(t *testing.T) {
	router, store, notifier := setupTestService(t)

	for _, body := range []string{`not json`, `["a"]`, `null`} {
		req := httptest.NewRequest("PUT", "/uid", strings.NewReader(body))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code, "body %q", body)
	}
	assert.Equal(t, 0, store.inserts)
	assert.Empty(t, notifier.all())
}

func TestAccountService_PutTooLarge(t *testing.T) {
	router, _, _ := setupTestService(t)

	body := bytes.Repeat([]byte("a"), maxBodyBytes+10)
	req := httptest.NewRequest("PUT", "/uid", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestAccountService_ErrorMapping(t *testing.T) {
	router, store, _ := setupTestService(t)
	require.NoError(t, store.MemoryStore.Insert(context.Background(), "corrupt", []byte("{oops")))

	req := httptest.NewRequest("GET", "/corrupt", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "CorruptRecord")

	store.getErr = recordstore.ErrUnavailable
	req = httptest.NewRequest("GET", "/anyone", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "StoreUnavailable")
}

func TestAccountService_UserIDIsOpaque(t *testing.T) {
	router, _, _ := setupTestService(t)

	req := httptest.NewRequest("GET", "/%20", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"userId":" "`)
}
