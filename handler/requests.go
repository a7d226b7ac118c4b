package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/homegamesio/homedome/audit"
	"github.com/homegamesio/homedome/hub"
	"github.com/homegamesio/homedome/model"
	"github.com/homegamesio/homedome/store"
)

type submitRequest struct {
	GameID         string `json:"gameId"`
	RepoOwner      string `json:"repoOwner"`
	RepoName       string `json:"repoName"`
	CommitHash     string `json:"commitHash"`
	AssetID        string `json:"assetId"`
	SourceInfoHash string `json:"sourceInfoHash"`
	Requester      string `json:"requester"`
}

// SubmitRequest registers a new publish request and queues it for
// verification. The response returns immediately; progress is observable via
// the events endpoint and the websocket feed.
func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.GameID == "" || req.RepoOwner == "" || req.RepoName == "" {
		writeError(w, http.StatusBadRequest, "gameId, repoOwner and repoName are required")
		return
	}
	if !validIDRe.MatchString(req.RepoOwner) || !validIDRe.MatchString(req.RepoName) {
		writeError(w, http.StatusBadRequest, "invalid repo owner or name")
		return
	}

	pr := &model.PublishRequest{
		RequestID:      uuid.New().String(),
		GameID:         req.GameID,
		AssetID:        req.AssetID,
		SourceInfoHash: req.SourceInfoHash,
		RepoOwner:      req.RepoOwner,
		RepoName:       req.RepoName,
		CommitHash:     req.CommitHash,
		Requester:      req.Requester,
		Status:         model.StatusSubmitted,
		Created:        time.Now(),
	}
	if err := h.db.InsertRequest(r.Context(), pr); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	body, err := json.Marshal(model.PublishMessage{
		RequestID:      pr.RequestID,
		GameID:         pr.GameID,
		AssetID:        pr.AssetID,
		UserID:         pr.Requester,
		SourceInfoHash: pr.SourceInfoHash,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if _, err := h.queue.Enqueue(r.Context(), body); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.broadcast(hub.Event{Type: "publish.submitted", RequestID: pr.RequestID})
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, pr)
}

func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pr, err := h.db.GetRequest(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "request not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, pr)
}

// ListEvents returns the audit trail for a request, oldest first.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	events, err := h.events.ListByRequest(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	writeJSON(w, events)
}
