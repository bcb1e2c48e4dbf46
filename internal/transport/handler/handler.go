package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/trunov/thumbnailer/internal/entities"
	"github.com/trunov/thumbnailer/internal/logger"
)

const maxBodyBytes = 64 << 10

type UseCase interface {
	RequestThumbnail(ctx context.Context, req entities.ThumbnailRequest) (bool, error)
	RemoveThumbnails(ctx context.Context, obj entities.ObjectRef) (int, error)
	Health(ctx context.Context) error
}

type Handler struct {
	useCase   UseCase
	validator *validator.Validate
	log       *slog.Logger
}

func New(useCase UseCase, log *slog.Logger) *Handler {
	return &Handler{
		useCase:   useCase,
		validator: validator.New(),
		log:       log.With(logger.Scope("http")),
	}
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.useCase.Health(r.Context()); err != nil {
		h.log.Warn("health check failed", logger.Error(err))
		writeJSONError(w, "queue database unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSONError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		writeJSON(w, validationErrorsToMap(err), http.StatusBadRequest)
		return false
	}
	return true
}

// RequestThumbnail queues a thumbnail request by hand. Responds 201 when a
// record was created and 200 when the same thumbnail was already pending.
func (h *Handler) RequestThumbnail(w http.ResponseWriter, r *http.Request) {
	var params RequestThumbnailParams
	if !h.decode(w, r, &params) {
		return
	}

	created, err := h.useCase.RequestThumbnail(r.Context(), entities.ThumbnailRequest{
		Workspace:   params.Workspace,
		ObjectID:    params.ObjectID,
		ObjectClass: params.ObjectClass,
		ThumbnailID: params.ThumbnailID,
	})
	if err != nil {
		h.log.Error("failed to enqueue thumbnail request",
			slog.String("workspace", params.Workspace),
			slog.String("object_id", params.ObjectID),
			logger.Error(err))
		writeJSONError(w, "failed to enqueue request", http.StatusInternalServerError)
		return
	}

	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	writeJSON(w, RequestThumbnailResponse{Created: created}, code)
}

// RemoveThumbnails drops the preview blobs of a deleted object.
func (h *Handler) RemoveThumbnails(w http.ResponseWriter, r *http.Request) {
	var params RemoveThumbnailsParams
	if !h.decode(w, r, &params) {
		return
	}

	removed, err := h.useCase.RemoveThumbnails(r.Context(), entities.ObjectRef{
		Workspace:   params.Workspace,
		ObjectID:    params.ObjectID,
		ObjectClass: params.ObjectClass,
	})
	if err != nil {
		h.log.Error("failed to remove thumbnails",
			slog.String("workspace", params.Workspace),
			slog.String("object_id", params.ObjectID),
			logger.Error(err))
		writeJSONError(w, "failed to remove thumbnails", http.StatusInternalServerError)
		return
	}

	writeJSON(w, RemoveThumbnailsResponse{Removed: removed}, http.StatusOK)
}
