package api

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/dignitatesocial/dignitatevideo/internal/models"
)

// Inbound job documents are small; anything bigger is hostile.
const maxJobBodyBytes = 10 << 20

// JobQueue is the handed-off side of the render queue.
type JobQueue interface {
	Enqueue(ctx context.Context, job *models.RenderJob) (uuid.UUID, error)
	Length(ctx context.Context) (int64, error)
}

type Handler struct {
	queue JobQueue
}

func NewHandler(q JobQueue) *Handler {
	return &Handler{queue: q}
}

// SubmitJob handles POST /v1/jobs. The body may be a bare job document or a
// wrapped envelope; both are accepted.
func (h *Handler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxJobBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	job, err := models.DecodeJob(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := job.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.queue.Enqueue(r.Context(), job)
	if err != nil {
		log.Printf("[API] Enqueue failed: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	log.Printf("[API] Job accepted: %s (%q, chat=%s)", id, job.Title, job.ChatID)
	respondJSON(w, http.StatusAccepted, map[string]any{
		"id":     id,
		"status": "queued",
		"title":  job.Title,
		"chatId": job.ChatID,
	})
}

// QueueDepth handles GET /v1/queue.
func (h *Handler) QueueDepth(w http.ResponseWriter, r *http.Request) {
	length, err := h.queue.Length(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to read queue length")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"length": length})
}

// Health handles GET /health and /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[API] Failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
