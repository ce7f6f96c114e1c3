package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	app "github.com/shf-platform/credit_layer/internal/app"
	"github.com/shf-platform/credit_layer/pkg/logger"
)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	application, err := app.New(app.Stores{}, app.Options{}, logger.NewDefault("test"))
	if err != nil {
		t.Fatalf("app: %v", err)
	}
	return NewHandler(application, nil)
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	rec := doJSON(t, newTestHandler(t), http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAppendAndScoreRoundTrip(t *testing.T) {
	h := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/users/u1/events",
		`{"key":"lesson.complete","meta":{"scoreDelta":6}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("append status = %d: %s", rec.Code, rec.Body)
	}

	var appended struct {
		Accepted bool `json:"accepted"`
		State    struct {
			Points int `json:"points"`
		} `json:"state"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &appended); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !appended.Accepted || appended.State.Points != 6 {
		t.Fatalf("append response = %s", rec.Body)
	}

	rec = doJSON(t, h, http.MethodGet, "/users/u1/score", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("score status = %d", rec.Code)
	}
	var state struct {
		Points int `json:"points"`
		Score  int `json:"score"`
		Tier   struct {
			Name string `json:"name"`
		} `json:"tier"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if state.Points != 6 || state.Tier.Name != "Foundation" {
		t.Fatalf("state = %s", rec.Body)
	}
}

func TestUnknownEventKeyIsSilentNoop(t *testing.T) {
	h := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/users/u1/events", `{"key":"made.up"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"accepted":false`) {
		t.Fatalf("body = %s", rec.Body)
	}

	rec = doJSON(t, h, http.MethodGet, "/users/u1/events", "")
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("events = %s", rec.Body)
	}
}

func TestClearEvents(t *testing.T) {
	h := newTestHandler(t)
	doJSON(t, h, http.MethodPost, "/users/u1/events", `{"key":"lesson.complete","meta":{"scoreDelta":6}}`)

	rec := doJSON(t, h, http.MethodDelete, "/users/u1/events", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/users/u1/events", "")
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("events after clear = %s", rec.Body)
	}
}

func TestTaskCompleteEndpoint(t *testing.T) {
	h := newTestHandler(t)

	rec := doJSON(t, h, http.MethodGet, "/users/u1/tasks", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "finish-lesson") {
		t.Fatalf("feed = %d %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, h, http.MethodPost, "/users/u1/tasks/finish-lesson/complete", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("complete status = %d: %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), `"applied":true`) {
		t.Fatalf("complete body = %s", rec.Body)
	}

	rec = doJSON(t, h, http.MethodPost, "/users/u1/tasks/no-such-task/complete", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown task status = %d", rec.Code)
	}
}

func TestWalletSpendReturnsStructuredFailure(t *testing.T) {
	h := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/users/u1/wallet/earn", `{"credits":5}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("earn status = %d: %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, h, http.MethodPost, "/users/u1/wallet/spend", `{"amount":10}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("spend status = %d", rec.Code)
	}
	var res struct {
		OK      bool   `json:"ok"`
		Error   string `json:"error"`
		Balance int    `json:"balance"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.OK || res.Error == "" || res.Balance != 5 {
		t.Fatalf("spend result = %s", rec.Body)
	}
}

func TestMarketQuoteEndpoint(t *testing.T) {
	h := newTestHandler(t)
	doJSON(t, h, http.MethodPost, "/users/u1/wallet/earn", `{"credits":1000}`)

	rec := doJSON(t, h, http.MethodGet, "/users/u1/market/quote?usd=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("quote status = %d: %s", rec.Code, rec.Body)
	}
	var q struct {
		SpendSHFc  int `json:"spendSHFc"`
		NeededSHFc int `json:"neededSHFc"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &q); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// no tier discount at Foundation; $5 = 500 shf fully covered by balance
	if q.SpendSHFc != 500 || q.NeededSHFc != 500 {
		t.Fatalf("quote = %s", rec.Body)
	}

	rec = doJSON(t, h, http.MethodGet, "/users/u1/market/quote?usd=abc", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad usd status = %d", rec.Code)
	}
}

func TestBadgeEndpoints(t *testing.T) {
	h := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/scopes/civic/badges/first_reflection/award", `{"user":"u1"}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"awarded":true`) {
		t.Fatalf("award = %d %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, h, http.MethodPost, "/scopes/civic/badges/first_reflection/award", `{"user":"u1"}`)
	if !strings.Contains(rec.Body.String(), `"awarded":false`) {
		t.Fatalf("repeat award = %s", rec.Body)
	}

	rec = doJSON(t, h, http.MethodGet, "/scopes/civic/badges?user=u1", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "first_reflection") {
		t.Fatalf("list = %d %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, h, http.MethodGet, "/scopes/galaxy/badges?user=u1", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown scope status = %d", rec.Code)
	}
}

func TestExportEndpoints(t *testing.T) {
	h := newTestHandler(t)
	doJSON(t, h, http.MethodPost, "/users/u1/events", `{"key":"lesson.complete","meta":{"scoreDelta":6},"source":"task"}`)

	rec := doJSON(t, h, http.MethodGet, "/export/events.csv?user=u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("csv status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/csv" {
		t.Fatalf("content type = %q", got)
	}
	if !strings.HasPrefix(rec.Body.String(), "id,actor,app,type,amount,tags,timestamp\n") {
		t.Fatalf("csv = %s", rec.Body)
	}

	rec = doJSON(t, h, http.MethodGet, "/export/rollup.json?user=u1", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"total": 6`) {
		t.Fatalf("rollup = %d %s", rec.Code, rec.Body)
	}
}

func TestWebsocketReceivesScoreUpdates(t *testing.T) {
	h := newTestHandler(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	resp, err := http.Post(srv.URL+"/users/u1/events", "application/json",
		strings.NewReader(`{"key":"lesson.complete","meta":{"scoreDelta":6}}`))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	resp.Body.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame Notification
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if frame.Topic != "credit:score:updated" {
		t.Fatalf("topic = %q", frame.Topic)
	}
}
