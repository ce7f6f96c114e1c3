// Package httpapi exposes the REST and websocket surface of the credit
// engine.
package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	app "github.com/shf-platform/credit_layer/internal/app"
	"github.com/shf-platform/credit_layer/internal/app/domain/badge"
	"github.com/shf-platform/credit_layer/internal/app/domain/event"
	"github.com/shf-platform/credit_layer/internal/app/domain/wallet"
	"github.com/shf-platform/credit_layer/pkg/logger"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application
	hub *Hub
}

// NewHandler returns a router exposing the REST API and wires the websocket
// hub into the notification paths.
func NewHandler(application *app.Application, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	hub := NewHub(log)
	application.Rewards.WithPublisher(hub)
	application.Events.Subscribe(hub)

	h := &handler{app: application, hub: hub}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.HandleFunc("/ws", hub.handleWS).Methods(http.MethodGet)

	r.HandleFunc("/users/{id}/events", h.appendEvent).Methods(http.MethodPost)
	r.HandleFunc("/users/{id}/events", h.listEvents).Methods(http.MethodGet)
	r.HandleFunc("/users/{id}/events", h.clearEvents).Methods(http.MethodDelete)
	r.HandleFunc("/users/{id}/score", h.score).Methods(http.MethodGet)

	r.HandleFunc("/users/{id}/tasks", h.taskFeed).Methods(http.MethodGet)
	r.HandleFunc("/users/{id}/tasks/{taskID}/complete", h.completeTask).Methods(http.MethodPost)

	r.HandleFunc("/users/{id}/wallet", h.walletBalances).Methods(http.MethodGet)
	r.HandleFunc("/users/{id}/wallet/entries", h.walletEntries).Methods(http.MethodGet)
	r.HandleFunc("/users/{id}/wallet/earn", h.walletEarn).Methods(http.MethodPost)
	r.HandleFunc("/users/{id}/wallet/spend", h.walletSpend).Methods(http.MethodPost)
	r.HandleFunc("/users/{id}/wallet/convert", h.walletConvert).Methods(http.MethodPost)
	r.HandleFunc("/users/{id}/market/quote", h.marketQuote).Methods(http.MethodGet)
	r.HandleFunc("/wallet/stats", h.walletStats).Methods(http.MethodGet)

	r.HandleFunc("/scopes/{scope}/badges", h.listBadges).Methods(http.MethodGet)
	r.HandleFunc("/scopes/{scope}/badges/{badgeID}/award", h.awardBadge).Methods(http.MethodPost)

	r.HandleFunc("/export/events.json", h.exportJSON).Methods(http.MethodGet)
	r.HandleFunc("/export/events.csv", h.exportCSV).Methods(http.MethodGet)
	r.HandleFunc("/export/rollup.json", h.exportRollup).Methods(http.MethodGet)

	return r
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// appendEvent accepts a raw event for the user. Unknown event keys are a
// silent no-op: the response reports accepted=false with no error status.
func (h *handler) appendEvent(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]

	var payload event.Event
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ev, st, ok := h.app.Events.Append(r.Context(), userID, payload)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"accepted": false})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"accepted": true,
		"event":    ev,
		"state":    st,
	})
}

func (h *handler) listEvents(w http.ResponseWriter, r *http.Request) {
	events := h.app.Events.List(r.Context(), mux.Vars(r)["id"])
	if events == nil {
		events = []event.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *handler) clearEvents(w http.ResponseWriter, r *http.Request) {
	h.app.Events.Clear(r.Context(), mux.Vars(r)["id"])
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) score(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Events.Score(r.Context(), mux.Vars(r)["id"]))
}

func (h *handler) taskFeed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Tasks.Feed(r.Context(), mux.Vars(r)["id"]))
}

func (h *handler) completeTask(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	res, err := h.app.Tasks.Complete(r.Context(), vars["id"], vars["taskID"])
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) walletBalances(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Wallet.Balances(r.Context(), mux.Vars(r)["id"]))
}

func (h *handler) walletEntries(w http.ResponseWriter, r *http.Request) {
	entries := h.app.Wallet.Entries(r.Context(), mux.Vars(r)["id"])
	if entries == nil {
		entries = []wallet.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *handler) walletEarn(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Credits int            `json:"credits"`
		Tokens  map[string]int `json:"tokens"`
		Meta    map[string]any `json:"meta"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	entry, err := h.app.Wallet.Earn(r.Context(), mux.Vars(r)["id"], payload.Credits, payload.Tokens, payload.Meta)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// walletSpend always answers 200: an insufficient balance is a domain
// outcome carried in the body, not a transport error.
func (h *handler) walletSpend(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Amount int            `json:"amount"`
		Meta   map[string]any `json:"meta"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, h.app.Wallet.Spend(r.Context(), mux.Vars(r)["id"], payload.Amount, payload.Meta))
}

func (h *handler) walletConvert(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Token string `json:"token"`
		Count int    `json:"count"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	entry, err := h.app.Wallet.Convert(r.Context(), mux.Vars(r)["id"], payload.Token, payload.Count)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *handler) marketQuote(w http.ResponseWriter, r *http.Request) {
	usd, err := strconv.ParseFloat(r.URL.Query().Get("usd"), 64)
	if err != nil || usd < 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("usd query parameter must be a non-negative number"))
		return
	}
	writeJSON(w, http.StatusOK, h.app.Wallet.Quote(r.Context(), mux.Vars(r)["id"], usd))
}

func (h *handler) walletStats(w http.ResponseWriter, r *http.Request) {
	sinceDays := 30
	if raw := r.URL.Query().Get("sinceDays"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("sinceDays must be a positive integer"))
			return
		}
		sinceDays = n
	}
	writeJSON(w, http.StatusOK, h.app.Wallet.Stats(r.Context(), sinceDays))
}

func (h *handler) listBadges(w http.ResponseWriter, r *http.Request) {
	scope := badge.Scope(mux.Vars(r)["scope"])
	if !badge.KnownScope(scope) {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown scope %q", scope))
		return
	}
	userID := r.URL.Query().Get("user")
	writeJSON(w, http.StatusOK, h.app.Rewards.List(r.Context(), scope, userID))
}

func (h *handler) awardBadge(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var payload struct {
		User string         `json:"user"`
		Meta map[string]any `json:"meta"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if payload.User == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("user is required"))
		return
	}

	awarded, err := h.app.Rewards.Award(r.Context(), badge.Scope(vars["scope"]), payload.User, vars["badgeID"], payload.Meta)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"awarded": awarded})
}

func (h *handler) exportJSON(w http.ResponseWriter, r *http.Request) {
	out, err := h.app.Export.EventsJSON(r.Context(), r.URL.Query().Get("user"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="events.json"`)
	_, _ = w.Write(out)
}

func (h *handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="events.csv"`)
	_, _ = w.Write(h.app.Export.EventsCSV(r.Context(), r.URL.Query().Get("user")))
}

func (h *handler) exportRollup(w http.ResponseWriter, r *http.Request) {
	out, err := h.app.Export.RollupJSON(r.Context(), r.URL.Query().Get("user"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(out)
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
