package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"

	"github.com/homegamesio/homedome/audit"
	"github.com/homegamesio/homedome/config"
	"github.com/homegamesio/homedome/hub"
	"github.com/homegamesio/homedome/storage"
	"github.com/homegamesio/homedome/store"
)

var validIDRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Enqueuer hands a submission to the intake queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, body []byte) (string, error)
}

type Handler struct {
	db     *store.DB
	events audit.Store
	queue  Enqueuer
	ws     *hub.Hub
	s3     *storage.Client
	cfg    *config.Config
}

func New(db *store.DB, events audit.Store, q Enqueuer, ws *hub.Hub, s3 *storage.Client, cfg *config.Config) *Handler {
	return &Handler{
		db:     db,
		events: events,
		queue:  q,
		ws:     ws,
		s3:     s3,
		cfg:    cfg,
	}
}

func (h *Handler) broadcast(evt hub.Event) {
	if h.ws != nil {
		h.ws.Broadcast(evt)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
