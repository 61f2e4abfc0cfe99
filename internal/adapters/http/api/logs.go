package api

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/okian/posture/internal/adapters/repository"
	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/pkg/logger"
)

const maxLogBodyBytes = 64 << 10

// logRequest mirrors the OpenAPI schema for POST /api/log.
type logRequest struct {
	Timestamp *int64 `json:"timestamp" validate:"required,gt=0"`
	Message   string `json:"message" validate:"required"`
	Type      string `json:"type" validate:"omitempty,oneof=bad_posture"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (r logRequest) validate() error {
	r.Message = strings.TrimSpace(r.Message)
	err := validate.Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", fe.Field())
	case "oneof":
		return fmt.Errorf("%s must be one of [%s]", fe.Field(), fe.Param())
	default:
		return fmt.Errorf("%s is invalid", fe.Field())
	}
}

func (r logRequest) submission() model.Submission {
	t := model.EntryType(r.Type)
	if t == "" {
		t = model.EntryBadPosture
	}
	return model.Submission{Timestamp: *r.Timestamp, Message: r.Message, Type: t}
}

// LogsHandler serves the log store contract.
type LogsHandler struct {
	store  LogStore
	logger logger.Logger
}

// NewLogsHandler creates a new logs handler.
func NewLogsHandler(store LogStore, l logger.Logger) *LogsHandler {
	return &LogsHandler{store: store, logger: l}
}

// HandlePostLog handles POST /api/log requests.
func (h *LogsHandler) HandlePostLog(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_log"
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var req logRequest
	body := http.MaxBytesReader(w, r.Body, maxLogBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		h.reject(r, WrapKind(op, ErrBadRequest, err))
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := req.validate(); err != nil {
		h.reject(r, WrapKind(op, ErrBadRequest, err))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.store.Append(r.Context(), req.submission()); err != nil {
		if errors.Is(err, repository.ErrInvalidEntry) {
			h.reject(r, WrapKind(op, ErrBadRequest, err))
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error(r.Context(), "failed to store log entry", logger.Error(WrapKind(op, ErrStoreFailure, err)))
		writeError(w, http.StatusInternalServerError, "failed to store log entry")
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// HandleListLogs handles GET /api/logs requests.
func (h *LogsHandler) HandleListLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	entries := h.store.List(r.Context())
	if entries == nil {
		entries = []model.LogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *LogsHandler) reject(r *http.Request, err error) {
	h.logger.Debug(r.Context(), "log submission rejected", logger.Error(err))
}
