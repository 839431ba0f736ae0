package accounts

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/asad/accountd/internal/core"
	"github.com/asad/accountd/internal/logging"
	"github.com/asad/accountd/internal/recordstore"
)

// maxBodyBytes caps the size of an account data upload.
const maxBodyBytes = 1 << 20

// Headers that seed the default record on first access.
const (
	HeaderDisplayName = "X-Display-Name"
	HeaderEmail       = "X-Email"
)

// AccountService exposes the account manager over HTTP.
type AccountService struct {
	manager *Manager
	logger  logging.Logger
}

// NewAccountService creates a new account service instance.
func NewAccountService(manager *Manager, logger logging.Logger) *AccountService {
	return &AccountService{
		manager: manager,
		logger:  logger,
	}
}

// Name returns the service identifier.
func (s *AccountService) Name() string {
	return "accounts"
}

// RegisterRoutes sets up HTTP routes for account operations:
//   - GET /{userID} - Get (or create) account data
//   - PUT /{userID} - Replace account data
func (s *AccountService) RegisterRoutes(router chi.Router) {
	router.Get("/{userID}", s.handleGetRecord)
	router.Put("/{userID}", s.handleUpdateRecord)
}

func (s *AccountService) identity(r *http.Request) Identity {
	return Identity{
		ID:    chi.URLParam(r, "userID"),
		Name:  r.Header.Get(HeaderDisplayName),
		Email: r.Header.Get(HeaderEmail),
	}
}

// handleGetRecord handles GET /{userID}.
func (s *AccountService) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	user := s.identity(r)

	record, err := s.manager.GetRecord(r.Context(), user)
	if err != nil {
		s.writeManagerError(w, "get", user.ID, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(record); err != nil {
		s.logger.Error("failed to encode response",
			logging.ErrorField(err),
		)
	}
}

// handleUpdateRecord handles PUT /{userID}. The body replaces the stored fields.
func (s *AccountService) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	user := s.identity(r)
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "InvalidRequest", "Failed to read request body")
		return
	}
	if len(body) > maxBodyBytes {
		s.writeError(w, http.StatusRequestEntityTooLarge, "RequestTooLarge", "Account data exceeds 1MiB")
		return
	}

	fields, err := DecodeFields(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "InvalidRequest", "Body must be a JSON object")
		return
	}

	if err := s.manager.UpdateRecord(r.Context(), user, fields); err != nil {
		s.writeManagerError(w, "update", user.ID, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *AccountService) writeManagerError(w http.ResponseWriter, op, uid string, err error) {
	switch {
	case errors.Is(err, ErrEmptyUserID):
		s.writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	case errors.Is(err, ErrSerialization):
		s.logger.Error("corrupt account data",
			logging.String("op", op),
			logging.String("user_id", uid),
			logging.ErrorField(err),
		)
		s.writeError(w, http.StatusInternalServerError, "CorruptRecord", "Stored account data could not be decoded")
		return
	case recordstore.IsUnavailable(err):
		s.logger.Error("record store unavailable",
			logging.String("op", op),
			logging.String("user_id", uid),
			logging.ErrorField(err),
		)
		s.writeError(w, http.StatusServiceUnavailable, "StoreUnavailable", "Account store is unavailable")
		return
	}

	s.logger.Error("account operation failed",
		logging.String("op", op),
		logging.String("user_id", uid),
		logging.ErrorField(err),
	)
	s.writeError(w, http.StatusInternalServerError, "InternalError", "Account operation failed")
}

// writeError writes an error response in a consistent format.
func (s *AccountService) writeError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

// Ensure AccountService implements the Service interface.
var _ core.Service = (*AccountService)(nil)
