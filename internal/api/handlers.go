package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/vaultlinks/internal/worker"
)

// Handler holds worker control route handlers.
type Handler struct {
	w *worker.Worker
}

// NewHandler creates a new Handler.
func NewHandler(w *worker.Worker) *Handler {
	return &Handler{w: w}
}

// State handles GET /__worker/state.
//
//	@Summary		Worker lifecycle state and live caches
//	@Tags			worker
//	@Produce		json
//	@Success		200	{object}	StateResponse
//	@Security		BearerAuth
//	@Router			/__worker/state [get]
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	info, err := h.w.Info(r.Context())
	if err != nil {
		slog.Error("worker state failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// Message handles POST /__worker/message.
//
//	@Summary		Send a control message (SKIP_WAITING, GET_VERSION)
//	@Tags			worker
//	@Accept			json
//	@Produce		json
//	@Param			body	body		MessageRequest	true	"Message"
//	@Success		200		{object}	MessageResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/__worker/message [post]
func (h *Handler) Message(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	reply, err := h.w.Message(r.Context(), worker.Message{Type: req.Type})
	if err != nil {
		if errors.Is(err, worker.ErrUnknownMessage) {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		slog.Error("worker message failed", slog.String("type", req.Type), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Version: reply.Version})
}

// Sync handles POST /__worker/sync.
//
//	@Summary		Trigger a background sync for a tag
//	@Tags			worker
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SyncRequest	true	"Sync tag"
//	@Success		202		{object}	SyncResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/__worker/sync [post]
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	h.w.Sync(r.Context(), req.Tag)
	writeJSON(w, http.StatusAccepted, SyncResponse{Tag: req.Tag})
}

// Push handles POST /__worker/push.
//
//	@Summary		Deliver a push message and publish its notification
//	@Tags			worker
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PushRequest	false	"Push payload"
//	@Success		200		{object}	Notification
//	@Security		BearerAuth
//	@Router			/__worker/push [post]
func (h *Handler) Push(w http.ResponseWriter, r *http.Request) {
	var req PushRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	writeJSON(w, http.StatusOK, h.w.Push(req.Data))
}

// NotificationClick handles POST /__worker/notificationclick.
//
//	@Summary		Handle a notification action click
//	@Tags			worker
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ClickRequest	true	"Action"
//	@Success		200		{object}	ClickResponse
//	@Security		BearerAuth
//	@Router			/__worker/notificationclick [post]
func (h *Handler) NotificationClick(w http.ResponseWriter, r *http.Request) {
	var req ClickRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	u, ok := h.w.NotificationClick(req.Action)
	writeJSON(w, http.StatusOK, ClickResponse{Open: ok, URL: u})
}
