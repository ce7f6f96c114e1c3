package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/shf-platform/credit_layer/internal/app/domain/event"
	"github.com/shf-platform/credit_layer/internal/app/metrics"
	"github.com/shf-platform/credit_layer/pkg/logger"
)

// Mirror forwards normalized events to a backend endpoint with
// fire-and-forget semantics: failures are logged, never retried, and never
// surfaced to callers. The local log stays authoritative regardless.
type Mirror struct {
	client   *http.Client
	endpoint string
	log      *logger.Logger
	wg       sync.WaitGroup
}

// NewMirror validates the endpoint and builds a mirror. A nil client gets a
// 10 second timeout default.
func NewMirror(client *http.Client, endpoint string, log *logger.Logger) (*Mirror, error) {
	if log == nil {
		log = logger.NewDefault("event-mirror")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid mirror endpoint %q", endpoint)
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Mirror{client: client, endpoint: endpoint, log: log}, nil
}

// Forward posts the event in a background goroutine and returns immediately.
func (m *Mirror) Forward(ev event.Event) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.post(ev)
	}()
}

// Wait blocks until in-flight forwards drain. Intended for shutdown and
// tests.
func (m *Mirror) Wait() {
	m.wg.Wait()
}

func (m *Mirror) post(ev event.Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		m.log.WithError(err).Warn("encode mirrored event")
		metrics.RecordMirrorFailure()
		return
	}
	resp, err := m.client.Post(m.endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		m.log.WithError(err).WithField("event", ev.ID).Warn("mirror event")
		metrics.RecordMirrorFailure()
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		m.log.WithField("event", ev.ID).WithField("status", resp.StatusCode).Warn("mirror event rejected")
		metrics.RecordMirrorFailure()
	}
}
