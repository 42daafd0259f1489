package api

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/phrazzld/printflow-api/internal/domain"
	"github.com/phrazzld/printflow-api/internal/upload"
)

// maxChunkBytes bounds one chunk body.
const maxChunkBytes = 16 << 20

// BeginSessionRequest represents the request body for opening an upload
// session.
type BeginSessionRequest struct {
	Email         string `json:"email"`
	PurchaseOrder string `json:"purchase_order,omitempty"`
	Items         []struct {
		Filename string `json:"filename"`
		Quantity int    `json:"quantity"`
	} `json:"items"`
}

// BeginSessionResponse returns the session handle the client uses for every
// subsequent call.
type BeginSessionResponse struct {
	SessionID   string    `json:"session_id"`
	OrderNumber string    `json:"order_number"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ChunkResponse reports session progress after one accepted chunk.
type ChunkResponse struct {
	FileComplete bool `json:"file_complete"`
	OrderReady   bool `json:"order_ready"`
}

// UploadHandler handles upload-session HTTP requests.
type UploadHandler struct {
	manager *upload.Manager
}

// NewUploadHandler creates a new UploadHandler.
func NewUploadHandler(manager *upload.Manager) *UploadHandler {
	return &UploadHandler{manager: manager}
}

// BeginSession handles POST /api/uploads requests.
func (h *UploadHandler) BeginSession(w http.ResponseWriter, r *http.Request) {
	var req BeginSessionRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	draft := domain.OrderDraft{
		Email:         req.Email,
		PurchaseOrder: req.PurchaseOrder,
	}
	for _, item := range req.Items {
		draft.Items = append(draft.Items, domain.DraftItem{
			Filename: item.Filename,
			Quantity: item.Quantity,
		})
	}

	session, err := h.manager.BeginSession(r.Context(), draft)
	if err != nil {
		respondWithMappedError(w, r, err)
		return
	}

	RespondWithJSON(w, r, http.StatusCreated, BeginSessionResponse{
		SessionID:   session.ID.String(),
		OrderNumber: session.OrderNumber,
		ExpiresAt:   session.ExpiresAt,
	})
}

// AcceptChunk handles PUT /api/uploads/{sessionID}/files/{filename}/chunks/{index}
// requests. The chunk bytes are the raw request body; total_chunks comes
// from the query string.
func (h *UploadHandler) AcceptChunk(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "Invalid session ID", err)
		return
	}
	filename := chi.URLParam(r, "filename")

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "Invalid chunk index", err)
		return
	}
	total, err := strconv.Atoi(r.URL.Query().Get("total_chunks"))
	if err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "Invalid total_chunks", err)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxChunkBytes))
	if err != nil {
		RespondWithError(w, r, http.StatusRequestEntityTooLarge, "Chunk too large", err)
		return
	}

	result, err := h.manager.AcceptChunk(r.Context(), sessionID, filename, index, total, data)
	if err != nil {
		respondWithMappedError(w, r, err)
		return
	}

	RespondWithJSON(w, r, http.StatusOK, ChunkResponse{
		FileComplete: result.FileComplete,
		OrderReady:   result.OrderReady,
	})
}

// CommitSession handles POST /api/uploads/{sessionID}/commit requests.
func (h *UploadHandler) CommitSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "Invalid session ID", err)
		return
	}

	order, err := h.manager.CommitSession(r.Context(), sessionID)
	if err != nil {
		respondWithMappedError(w, r, err)
		return
	}

	RespondWithJSON(w, r, http.StatusCreated, orderToResponse(order))
}
