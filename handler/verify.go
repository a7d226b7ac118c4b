package handler

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/homegamesio/homedome/audit"
	"github.com/homegamesio/homedome/hub"
	"github.com/homegamesio/homedome/model"
	"github.com/homegamesio/homedome/store"
)

// VerifyPublishRequest is the link target from the confirmation email. It is
// browser-facing and unauthenticated; the single-use code is the credential.
func (h *Handler) VerifyPublishRequest(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	requestID := r.URL.Query().Get("requestId")
	if code == "" || requestID == "" {
		http.Error(w, "missing code or requestId", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	pr, err := h.db.GetRequest(ctx, requestID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "unknown publish request", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "something went wrong", http.StatusInternalServerError)
		return
	}
	if pr.Status != model.StatusPendingConfirmation {
		http.Error(w, fmt.Sprintf("request is %s, not awaiting confirmation", pr.Status), http.StatusConflict)
		return
	}

	// Code consumption, both status transitions and the publish stamp are
	// one transaction: a failure part-way never spends the code.
	used, err := h.db.ConfirmPublish(ctx, requestID, code, time.Now())
	if err != nil {
		log.Printf("verify: confirm %s: %v", requestID, err)
		http.Error(w, "something went wrong", http.StatusInternalServerError)
		return
	}
	if !used {
		http.Error(w, "invalid or already used verification code", http.StatusForbidden)
		return
	}

	trail := audit.NewTrail(h.events, requestID)
	if err := trail.Emit(ctx, audit.EventSuccess, "Confirmed by repository owner"); err != nil {
		log.Printf("verify: audit %s: %v", requestID, err)
	}
	h.broadcast(hub.Event{Type: "publish.published", RequestID: requestID})

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "Thanks! Your game has been published.")
}
