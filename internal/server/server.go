// Package server exposes the planning session over a local HTTP API for a
// browser front end.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/iwvelando/trade-route/internal/apperrors"
	"github.com/iwvelando/trade-route/internal/client"
	"github.com/iwvelando/trade-route/internal/config"
	"github.com/iwvelando/trade-route/internal/form"
	"github.com/iwvelando/trade-route/internal/session"
	"github.com/iwvelando/trade-route/internal/settings"
	"github.com/iwvelando/trade-route/pkg/constants"
	"github.com/iwvelando/trade-route/pkg/output"
	"go.uber.org/zap"
)

// Form collection names used in entry routes.
const (
	kindCommodities  = "commodities"
	kindLocations    = "locations"
	kindRestrictions = "restrictions"
)

type handler struct {
	logger        *zap.Logger
	coord         *session.Coordinator
	maxUploadSize int64
	version       string
}

// NewHandler constructs the console API router.
func NewHandler(coord *session.Coordinator, cfg *Config, logger *zap.Logger, version string) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		cfg, _ = NewConfig(config.ConsoleConfig{})
	}

	trimmedVersion := strings.TrimSpace(version)
	if trimmedVersion == "" {
		trimmedVersion = "dev"
	}

	h := &handler{
		logger:        logger,
		coord:         coord,
		maxUploadSize: cfg.UploadSizeBytes(),
		version:       trimmedVersion,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.handleHealth)
		r.Get("/state", h.handleState)
		r.Put("/form", h.handleUpdateForm)
		r.Post("/form/{kind}", h.handleAddEntry)
		r.Put("/form/{kind}/{id}", h.handleUpdateEntry)
		r.Delete("/form/{kind}/{id}", h.handleRemoveEntry)
		r.Post("/blacklist", h.handleBlacklist)
		r.Post("/submit", h.handleSubmit)
		r.Get("/settings", h.handleExportSettings)
		r.Post("/settings", h.handleImportSettings)
		r.Delete("/notification", h.handleDismissNotification)
		r.Get("/report.xlsx", h.handleReportWorkbook)
	})

	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("request served",
				zap.String("op", "server.requestLogger"),
				zap.String("requestID", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.version,
	})
}

func (h *handler) handleState(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.coord.State())
}

type formUpdate struct {
	Range  *int    `json:"range"`
	Stops  *int    `json:"stops"`
	Cargo  *int64  `json:"cargo"`
	Filter *string `json:"filter"`
}

func (h *handler) handleUpdateForm(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleUpdateForm"
	var update formUpdate
	if err := h.decodeBody(w, r, &update); err != nil {
		h.respondErrorWithOp(w, http.StatusBadRequest, fmt.Sprintf("invalid form update: %v", err), op)
		return
	}

	f := h.coord.Form()
	if update.Range != nil {
		f.SetRange(*update.Range)
	}
	if update.Stops != nil {
		f.SetStops(*update.Stops)
	}
	if update.Cargo != nil {
		f.SetCargo(*update.Cargo)
	}
	if update.Filter != nil {
		if err := h.coord.SetFilter(r.Context(), *update.Filter); err != nil {
			h.respondErrorWithOp(w, http.StatusBadGateway, err.Error(), op)
			return
		}
	}
	h.writeJSON(w, http.StatusOK, h.coord.State())
}

// entryPayload carries the editable fields of any form entry; each kind
// reads only its own fields.
type entryPayload struct {
	Name      string `json:"name"`
	Amount    int    `json:"amount"`
	Commodity string `json:"commodity"`
	Location  string `json:"location"`
	Value     int    `json:"value"`
}

func (h *handler) handleAddEntry(w http.ResponseWriter, r *http.Request) {
	f := h.coord.Form()
	var id uuid.UUID
	switch chi.URLParam(r, "kind") {
	case kindCommodities:
		id = f.AddCommodity()
	case kindLocations:
		id = f.AddLocation()
	case kindRestrictions:
		id = f.AddRestriction()
	default:
		h.respondErr(w, apperrors.ErrUnknownEntryKind, "server.handleAddEntry")
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{"id": id.String()})
}

func (h *handler) handleUpdateEntry(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleUpdateEntry"
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.respondErrorWithOp(w, http.StatusBadRequest, "invalid entry id", op)
		return
	}
	var p entryPayload
	if err := h.decodeBody(w, r, &p); err != nil {
		h.respondErrorWithOp(w, http.StatusBadRequest, fmt.Sprintf("invalid entry: %v", err), op)
		return
	}

	f := h.coord.Form()
	switch chi.URLParam(r, "kind") {
	case kindCommodities:
		err = f.UpdateCommodity(id, p.Name, p.Amount)
	case kindLocations:
		err = f.UpdateLocation(id, p.Name)
	case kindRestrictions:
		err = f.UpdateRestriction(id, p.Commodity, p.Location, p.Value)
	default:
		err = apperrors.ErrUnknownEntryKind
	}
	if err != nil {
		h.respondErr(w, err, op)
		return
	}
	h.writeJSON(w, http.StatusOK, h.coord.State())
}

func (h *handler) handleRemoveEntry(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleRemoveEntry"
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.respondErrorWithOp(w, http.StatusBadRequest, "invalid entry id", op)
		return
	}

	f := h.coord.Form()
	switch chi.URLParam(r, "kind") {
	case kindCommodities:
		err = f.RemoveCommodity(id)
	case kindLocations:
		err = f.RemoveLocation(id)
	case kindRestrictions:
		err = f.RemoveRestriction(id)
	default:
		err = apperrors.ErrUnknownEntryKind
	}
	if err != nil {
		h.respondErr(w, err, op)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) handleBlacklist(w http.ResponseWriter, r *http.Request) {
	added, err := h.coord.Blacklist()
	if err != nil {
		h.respondErr(w, err, "server.handleBlacklist")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"added": added})
}

type validationResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

func (h *handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	rep, err := h.coord.Submit(r.Context())
	if err != nil {
		h.respondErr(w, err, "server.handleSubmit")
		return
	}
	h.writeJSON(w, http.StatusOK, rep)
}

func (h *handler) handleExportSettings(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleExportSettings"
	format, filename := settings.JSON, constants.SettingsFileName
	if r.URL.Query().Get("format") == string(settings.YAML) {
		format = settings.YAML
		filename = strings.TrimSuffix(filename, ".json") + ".yaml"
	}

	data, err := h.coord.ExportSettings(format)
	if err != nil {
		h.respondErrorWithOp(w, http.StatusInternalServerError, fmt.Sprintf("failed to export settings: %v", err), op)
		return
	}

	contentType := "application/json"
	if format == settings.YAML {
		contentType = "application/yaml"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Warn("failed to write settings download",
			zap.String("op", op),
			zap.Error(err),
		)
	}
}

func (h *handler) handleImportSettings(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleImportSettings"
	format := settings.JSON
	if r.URL.Query().Get("format") == string(settings.YAML) {
		format = settings.YAML
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	err := h.coord.LoadSettings(r.Context(), func() (io.ReadCloser, error) { return r.Body, nil }, format)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.respondErrorWithOp(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds limit of %d bytes", h.maxUploadSize), op)
			return
		}
		h.respondErrorWithOp(w, http.StatusBadRequest, err.Error(), op)
		return
	}
	h.writeJSON(w, http.StatusOK, h.coord.State())
}

func (h *handler) handleDismissNotification(w http.ResponseWriter, r *http.Request) {
	h.coord.DismissNotification()
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) handleReportWorkbook(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleReportWorkbook"
	rep := h.coord.Report()
	if rep == nil {
		h.respondErr(w, apperrors.ErrNoPlan, op)
		return
	}

	f, err := output.Workbook(rep)
	if err != nil {
		h.respondErrorWithOp(w, http.StatusInternalServerError, fmt.Sprintf("failed to build workbook: %v", err), op)
		return
	}
	defer func() { _ = f.Close() }()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="trade-route.xlsx"`)
	if err := f.Write(w); err != nil {
		h.logger.Error("failed to write workbook",
			zap.String("op", op),
			zap.Error(err),
		)
	}
}

func (h *handler) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// respondErr maps domain errors onto HTTP statuses.
func (h *handler) respondErr(w http.ResponseWriter, err error, op string) {
	var verr *form.ValidationError
	var apiErr *client.APIError
	switch {
	case errors.As(err, &verr):
		h.logger.Debug("submission rejected",
			zap.String("op", op),
			zap.Int("fields", len(verr.Fields)),
		)
		h.writeJSON(w, http.StatusUnprocessableEntity, validationResponse{Error: apperrors.ErrValidation.Error(), Fields: verr.Fields})
	case errors.Is(err, apperrors.ErrEntryNotFound), errors.Is(err, apperrors.ErrUnknownEntryKind):
		h.respondErrorWithOp(w, http.StatusNotFound, err.Error(), op)
	case errors.Is(err, apperrors.ErrSubmissionInFlight), errors.Is(err, apperrors.ErrNoPlan):
		h.respondErrorWithOp(w, http.StatusConflict, err.Error(), op)
	case errors.As(err, &apiErr):
		h.respondErrorWithOp(w, http.StatusBadGateway, apiErr.Message, op)
	default:
		h.respondErrorWithOp(w, http.StatusBadGateway, err.Error(), op)
	}
}

func (h *handler) respondErrorWithOp(w http.ResponseWriter, status int, msg string, op string) {
	h.logger.Warn("console request failed",
		zap.String("op", op),
		zap.Int("status", status),
		zap.String("error", msg),
	)
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}
