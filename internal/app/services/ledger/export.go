// Package ledger renders the scored event log into downloadable exports and
// runs the periodic ledger maintenance jobs.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shf-platform/credit_layer/internal/app/domain/score"
	"github.com/shf-platform/credit_layer/internal/app/services/events"
	"github.com/shf-platform/credit_layer/pkg/logger"
)

// Row is one flat export record. App is the namespace prefix of the event
// key; Amount is the points delta the event actually earned.
type Row struct {
	ID        string   `json:"id"`
	Actor     string   `json:"actor"`
	App       string   `json:"app"`
	Type      string   `json:"type"`
	Amount    int      `json:"amount"`
	Tags      []string `json:"tags"`
	Timestamp int64    `json:"timestamp"`
}

// Rollup summarises exported rows.
type Rollup struct {
	Total int            `json:"total"`
	ByApp map[string]int `json:"byApp"`
	ByTag map[string]int `json:"byTag"`
	Count int            `json:"count"`
}

// Service renders a user's scored log as JSON, CSV, and rollup views.
type Service struct {
	events *events.Service
	log    *logger.Logger
}

// New builds the export service over the events pipeline.
func New(ev *events.Service, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("ledger-service")
	}
	return &Service{events: ev, log: log}
}

// Rows flattens the user's scored log into export records, oldest first.
func (s *Service) Rows(ctx context.Context, userID string) []Row {
	st := s.events.Score(ctx, userID)
	rows := make([]Row, 0, len(st.Log))
	for _, entry := range st.Log {
		rows = append(rows, rowFor(entry, userID))
	}
	return rows
}

func rowFor(entry score.LogEntry, userID string) Row {
	actor := entry.UserID
	if actor == "" {
		actor = userID
	}

	tags := make([]string, 0, 2)
	if entry.Source != "" {
		tags = append(tags, entry.Source)
	}
	if entry.Reason != "" && entry.Reason != "ok" {
		tags = append(tags, entry.Reason)
	}

	return Row{
		ID:        entry.ID,
		Actor:     actor,
		App:       appOf(string(entry.Key)),
		Type:      string(entry.Key),
		Amount:    entry.Delta,
		Tags:      tags,
		Timestamp: entry.TS,
	}
}

// appOf returns the namespace prefix of an event key ("edu.grade.posted" →
// "edu"; a bare key is its own namespace).
func appOf(key string) string {
	if i := strings.IndexByte(key, '.'); i > 0 {
		return key[:i]
	}
	return key
}

// EventsJSON renders the rows as indented JSON.
func (s *Service) EventsJSON(ctx context.Context, userID string) ([]byte, error) {
	return json.MarshalIndent(s.Rows(ctx, userID), "", "  ")
}

// EventsCSV renders the rows as CSV with a header line. Fields containing a
// quote, comma, or newline are quoted with internal quotes doubled; tags are
// joined with "|".
func (s *Service) EventsCSV(ctx context.Context, userID string) []byte {
	var buf bytes.Buffer
	buf.WriteString("id,actor,app,type,amount,tags,timestamp\n")
	for _, r := range s.Rows(ctx, userID) {
		fields := []string{
			r.ID,
			r.Actor,
			r.App,
			r.Type,
			strconv.Itoa(r.Amount),
			strings.Join(r.Tags, "|"),
			strconv.FormatInt(r.Timestamp, 10),
		}
		for i, f := range fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString(csvField(f))
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func csvField(v string) string {
	if !strings.ContainsAny(v, "\",\n") {
		return v
	}
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}

// RollupFor aggregates the user's rows.
func (s *Service) RollupFor(ctx context.Context, userID string) Rollup {
	out := Rollup{ByApp: map[string]int{}, ByTag: map[string]int{}}
	for _, r := range s.Rows(ctx, userID) {
		out.Total += r.Amount
		out.ByApp[r.App] += r.Amount
		for _, tag := range r.Tags {
			out.ByTag[tag]++
		}
		out.Count++
	}
	return out
}

// RollupJSON renders the rollup as indented JSON.
func (s *Service) RollupJSON(ctx context.Context, userID string) ([]byte, error) {
	return json.MarshalIndent(s.RollupFor(ctx, userID), "", "  ")
}
