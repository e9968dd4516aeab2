package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/hamonitor/internal/audit"
	"github.com/nerrad567/hamonitor/internal/balance"
	"github.com/nerrad567/hamonitor/internal/history"
	"github.com/nerrad567/hamonitor/internal/infrastructure/config"
	"github.com/nerrad567/hamonitor/internal/infrastructure/logging"
	"github.com/nerrad567/hamonitor/internal/monitor"
	"github.com/nerrad567/hamonitor/internal/offline"
	"github.com/nerrad567/hamonitor/internal/todo"
	"github.com/nerrad567/hamonitor/internal/updates"
)

const testSecret = "test-secret-that-is-long-enough-for-hs256"

// ============================================================
// Fakes
// ============================================================

type fakeMonitor struct {
	mu        sync.Mutex
	snap      *monitor.Snapshot
	refreshes int
	subs      map[int]monitor.Subscriber
	nextID    int
}

func newFakeMonitor(snap *monitor.Snapshot) *fakeMonitor {
	return &fakeMonitor{snap: snap, subs: make(map[int]monitor.Subscriber)}
}

func (m *fakeMonitor) Current() *monitor.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

func (m *fakeMonitor) Refresh() {
	m.mu.Lock()
	m.refreshes++
	m.mu.Unlock()
}

func (m *fakeMonitor) Subscribe(sub monitor.Subscriber) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.subs[id] = sub
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

func (m *fakeMonitor) SubscriberCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

func (m *fakeMonitor) refreshCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshes
}

// publish stores snap and notifies subscribers like the poller does.
func (m *fakeMonitor) publish(snap *monitor.Snapshot) {
	m.mu.Lock()
	m.snap = snap
	subs := make([]monitor.Subscriber, 0, len(m.subs))
	for _, s := range m.subs {
		subs = append(subs, s)
	}
	m.mu.Unlock()
	for _, s := range subs {
		s.OnSnapshot(snap)
	}
}

type updateCall struct {
	action   string
	entityID string
	backup   bool
}

type fakeUpdates struct {
	mu    sync.Mutex
	calls []updateCall
	err   error
}

func (f *fakeUpdates) record(c updateCall) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.err
}

func (f *fakeUpdates) Install(_ context.Context, id string, backup bool) error {
	return f.record(updateCall{action: "install", entityID: id, backup: backup})
}

func (f *fakeUpdates) Skip(_ context.Context, id string) error {
	return f.record(updateCall{action: "skip", entityID: id})
}

func (f *fakeUpdates) ClearSkipped(_ context.Context, id string) error {
	return f.record(updateCall{action: "clear_skipped", entityID: id})
}

type fakeTodo struct {
	items   []todo.Item
	err     error
	added   []todo.NewItem
	updated map[string]todo.Change
	removed []string
}

func (f *fakeTodo) Entities() []string { return []string{"todo.shopping"} }

func (f *fakeTodo) List(_ context.Context, entityID string) ([]todo.Item, error) {
	if entityID != "todo.shopping" {
		return nil, fmt.Errorf("%w: %s", todo.ErrEntityNotAllowed, entityID)
	}
	return f.items, f.err
}

func (f *fakeTodo) Add(_ context.Context, _ string, item todo.NewItem) error {
	if f.err != nil {
		return f.err
	}
	f.added = append(f.added, item)
	return nil
}

func (f *fakeTodo) Update(_ context.Context, _, item string, change todo.Change) error {
	if f.err != nil {
		return f.err
	}
	if f.updated == nil {
		f.updated = make(map[string]todo.Change)
	}
	f.updated[item] = change
	return nil
}

func (f *fakeTodo) Remove(_ context.Context, _, item string) error {
	if f.err != nil {
		return f.err
	}
	f.removed = append(f.removed, item)
	return nil
}

type fakeHistory struct {
	since     map[string]time.Time
	records   []history.PollRecord
	lastLimit int
}

func (f *fakeHistory) Recent(_ context.Context, limit int) ([]history.PollRecord, error) {
	f.lastLimit = limit
	return f.records, nil
}

func (f *fakeHistory) FirstSeenOffline(_ context.Context, kind history.Kind, id string) (time.Time, error) {
	t, ok := f.since[string(kind)+":"+id]
	if !ok {
		return time.Time{}, history.ErrNotFound
	}
	return t, nil
}

type fakeAudit struct {
	mu         sync.Mutex
	entries    []audit.Entry
	lastFilter audit.Filter
}

func (f *fakeAudit) Create(_ context.Context, e *audit.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, *e)
	return nil
}

func (f *fakeAudit) List(_ context.Context, filter audit.Filter) (*audit.ListResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = filter
	return &audit.ListResult{Entries: f.entries, Total: len(f.entries), Limit: filter.Limit}, nil
}

type fakeChecker struct{ err error }

func (f fakeChecker) HealthCheck(context.Context) error { return f.err }

// ============================================================
// Helpers
// ============================================================

var testTakenAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testSnapshot() *monitor.Snapshot {
	skipped := "2026.2.0"
	return &monitor.Snapshot{
		ID:      "poll-1",
		Seq:     7,
		TakenAt: testTakenAt,
		Known:   true,
		Offline: offline.Result{
			Known: true,
			Devices: []offline.OfflineDevice{
				{DeviceID: "dev1", Name: "Hall sensor", Icon: "mdi:devices"},
			},
			Entities: []offline.OfflineEntity{
				{EntityID: "light.porch", Name: "Porch", State: "unavailable"},
			},
		},
		Updates: updates.Buckets{
			Core: []updates.UpdateRecord{
				{EntityID: "update.home_assistant_core_update", Name: "Home Assistant Core", InstalledVersion: "2026.1.0", LatestVersion: "2026.2.0", SkippedVersion: &skipped, Category: updates.CategoryCore},
			},
		},
		Balance: []balance.Reading{
			{EntityID: "sensor.power_balance", Name: "Power", Value: 3.5, Unit: "CNY", Available: true, Low: true},
		},
	}
}

type testDeps struct {
	monitor *fakeMonitor
	updates *fakeUpdates
	todo    *fakeTodo
	history *fakeHistory
	audit   *fakeAudit
}

func newTestServer(t *testing.T, mutate ...func(*Deps)) (*Server, testDeps) {
	t.Helper()

	td := testDeps{
		monitor: newFakeMonitor(testSnapshot()),
		updates: &fakeUpdates{},
		todo:    &fakeTodo{},
		history: &fakeHistory{since: map[string]time.Time{}},
		audit:   &fakeAudit{},
	}
	deps := Deps{
		Config:   config.APIConfig{Host: "127.0.0.1", Port: 0},
		WS:       config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Security: config.SecurityConfig{JWT: config.JWTConfig{Secret: testSecret, TokenTTL: 60}},
		Cards: config.CardsConfig{
			Theme: config.ThemeDark,
			Todo:  config.TodoCardConfig{Language: "en"},
			Balance: config.BalanceCardConfig{
				Entities: []config.BalanceEntityConfig{{EntityID: "sensor.power_balance"}},
			},
		},
		Logger:  logging.Discard(),
		Monitor: td.monitor,
		Updates: td.updates,
		Todo:    td.todo,
		History: td.history,
		Audit:   td.audit,
		Version: "test",
	}
	for _, m := range mutate {
		m(&deps)
	}

	s, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s, td
}

func testToken(t *testing.T) string {
	t.Helper()
	tok, err := IssueToken(testSecret, "dashboard", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	return tok
}

func doRequest(t *testing.T, s *Server, method, path, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+testToken(t))
	}
	rec := httptest.NewRecorder()
	s.buildRouter().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
}

// ============================================================
// Construction
// ============================================================

func TestNew_RequiresDependencies(t *testing.T) {
	base := Deps{
		Logger:   logging.Discard(),
		Monitor:  newFakeMonitor(nil),
		Security: config.SecurityConfig{JWT: config.JWTConfig{Secret: testSecret}},
	}

	tests := []struct {
		name   string
		mutate func(*Deps)
	}{
		{"missing logger", func(d *Deps) { d.Logger = nil }},
		{"missing monitor", func(d *Deps) { d.Monitor = nil }},
		{"missing secret", func(d *Deps) { d.Security.JWT.Secret = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := base
			tt.mutate(&d)
			if _, err := New(d); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}

	if _, err := New(base); err != nil {
		t.Errorf("New(valid) error = %v", err)
	}
}

func TestServer_StartAndClose(t *testing.T) {
	s, _ := newTestServer(t)
	if err := s.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start = nil, want error")
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if s.Addr() == nil {
		t.Fatal("Addr() = nil after Start")
	}

	resp, err := http.Get("http://" + s.Addr().String() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}

	if err := s.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

// ============================================================
// Health and auth
// ============================================================

func TestHealth_Public(t *testing.T) {
	s, _ := newTestServer(t, func(d *Deps) {
		d.Checks = map[string]HealthChecker{
			"homeassistant": fakeChecker{},
			"mqtt":          fakeChecker{err: errors.New("not connected")},
		}
	})

	rec := doRequest(t, s, http.MethodGet, "/api/v1/health", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp healthResponse
	decode(t, rec, &resp)
	if resp.Status != "degraded" {
		t.Errorf("status = %q, want degraded", resp.Status)
	}
	if resp.Checks["homeassistant"] != "ok" {
		t.Errorf("homeassistant check = %q", resp.Checks["homeassistant"])
	}
	if resp.Checks["mqtt"] != "not connected" {
		t.Errorf("mqtt check = %q", resp.Checks["mqtt"])
	}
	if resp.LastPoll == nil || resp.LastPoll.PollID != "poll-1" {
		t.Errorf("last_poll = %+v", resp.LastPoll)
	}
}

func TestAuth_Rejections(t *testing.T) {
	s, _ := newTestServer(t)

	now := time.Now()
	expired, err := IssueToken(testSecret, "dashboard", time.Minute, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	foreign, err := IssueToken("another-secret", "dashboard", time.Hour, now)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"wrong scheme", "Basic " + testToken(t)},
		{"garbage", "Bearer not-a-jwt"},
		{"expired", "Bearer " + expired},
		{"wrong secret", "Bearer " + foreign},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/snapshot", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			s.buildRouter().ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestParseToken(t *testing.T) {
	tok, err := IssueToken(testSecret, "cli", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	claims, err := ParseToken(testSecret, tok)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "cli" || claims.Issuer != tokenIssuer {
		t.Errorf("claims = %+v", claims.RegisteredClaims)
	}

	if _, err := ParseToken(testSecret, tok+"x"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("ParseToken(tampered) error = %v, want ErrInvalidToken", err)
	}
	if _, err := IssueToken(testSecret, "cli", 0, time.Now()); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("IssueToken(ttl=0) error = %v, want ErrInvalidToken", err)
	}
}

// ============================================================
// Middleware
// ============================================================

func TestRequestID(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/health", "", false)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID not generated")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = httptest.NewRecorder()
	s.buildRouter().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q, want abc-123", got)
	}
}

func TestCORS(t *testing.T) {
	s, _ := newTestServer(t, func(d *Deps) {
		d.Config.CORS.AllowedOrigins = []string{"http://ha.local:8123"}
	})

	tests := []struct {
		origin    string
		wantAllow string
	}{
		{"http://ha.local:8123", "http://ha.local:8123"},
		{"http://evil.example", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/snapshot", nil)
		req.Header.Set("Origin", tt.origin)
		rec := httptest.NewRecorder()
		s.buildRouter().ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Errorf("preflight %s status = %d, want 204", tt.origin, rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
			t.Errorf("preflight %s allow-origin = %q, want %q", tt.origin, got, tt.wantAllow)
		}
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

// ============================================================
// Read endpoints
// ============================================================

func TestSnapshot(t *testing.T) {
	s, td := newTestServer(t)

	td.monitor.publish(nil)
	rec := doRequest(t, s, http.MethodGet, "/api/v1/snapshot", "", true)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status before first poll = %d, want 503", rec.Code)
	}

	td.monitor.publish(testSnapshot())
	rec = doRequest(t, s, http.MethodGet, "/api/v1/snapshot", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var snap monitor.Snapshot
	decode(t, rec, &snap)
	if snap.ID != "poll-1" || len(snap.Offline.Devices) != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestSummary(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/summary", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got map[string]any
	decode(t, rec, &got)

	want := map[string]any{
		"poll_id":             "poll-1",
		"known":               true,
		"offline_devices":     float64(1),
		"offline_entities":    float64(1),
		"core_updates":        float64(1),
		"third_party_updates": float64(0),
		"low_balances":        float64(1),
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
}

func TestOffline_AnnotatesOfflineSince(t *testing.T) {
	since := testTakenAt.Add(-2 * time.Hour)
	s, td := newTestServer(t)
	td.history.since["device:dev1"] = since

	rec := doRequest(t, s, http.MethodGet, "/api/v1/offline", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Known   bool `json:"known"`
		Devices []struct {
			DeviceID     string     `json:"device_id"`
			OfflineSince *time.Time `json:"offline_since"`
		} `json:"devices"`
		Entities []struct {
			EntityID     string     `json:"entity_id"`
			OfflineSince *time.Time `json:"offline_since"`
		} `json:"entities"`
	}
	decode(t, rec, &resp)

	if !resp.Known || len(resp.Devices) != 1 || len(resp.Entities) != 1 {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Devices[0].OfflineSince == nil || !resp.Devices[0].OfflineSince.Equal(since) {
		t.Errorf("device offline_since = %v, want %v", resp.Devices[0].OfflineSince, since)
	}
	if resp.Entities[0].OfflineSince != nil {
		t.Errorf("entity offline_since = %v, want absent", resp.Entities[0].OfflineSince)
	}
}

func TestOffline_WithoutHistory(t *testing.T) {
	s, _ := newTestServer(t, func(d *Deps) { d.History = nil })

	rec := doRequest(t, s, http.MethodGet, "/api/v1/offline", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "offline_since") {
		t.Errorf("body mentions offline_since without history: %s", rec.Body.String())
	}

	rec = doRequest(t, s, http.MethodGet, "/api/v1/history", "", true)
	if rec.Code != http.StatusNotFound {
		t.Errorf("history status = %d, want 404", rec.Code)
	}
}

func TestBalance(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/balance", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Readings []balance.Reading `json:"readings"`
		Low      int               `json:"low"`
	}
	decode(t, rec, &resp)
	if len(resp.Readings) != 1 || resp.Low != 1 {
		t.Errorf("response = %+v", resp)
	}
}

func TestConfigEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/config", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp configResponse
	decode(t, rec, &resp)
	if resp.Theme != "dark" || resp.TodoLanguage != "en" {
		t.Errorf("response = %+v", resp)
	}
	if len(resp.TodoEntities) != 1 || resp.TodoEntities[0] != "todo.shopping" {
		t.Errorf("todo_entities = %v", resp.TodoEntities)
	}
	if len(resp.Balance) != 1 || resp.Balance[0] != "sensor.power_balance" {
		t.Errorf("balance_entities = %v", resp.Balance)
	}
}

func TestSystemEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/system", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp SystemStatus
	decode(t, rec, &resp)
	if resp.Version != "test" || resp.Poller.LastPollSeq != 7 || !resp.Poller.LastKnown {
		t.Errorf("response = %+v", resp)
	}
}

func TestHistory(t *testing.T) {
	s, td := newTestServer(t)
	td.history.records = []history.PollRecord{{ID: "poll-1", Seq: 7, TakenAt: testTakenAt}}

	tests := []struct {
		query     string
		wantCode  int
		wantLimit int
	}{
		{"", http.StatusOK, 0},
		{"?limit=5", http.StatusOK, 5},
		{"?limit=0", http.StatusBadRequest, -1},
		{"?limit=abc", http.StatusBadRequest, -1},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			td.history.lastLimit = -1
			rec := doRequest(t, s, http.MethodGet, "/api/v1/history"+tt.query, "", true)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if td.history.lastLimit != tt.wantLimit {
				t.Errorf("limit passed = %d, want %d", td.history.lastLimit, tt.wantLimit)
			}
		})
	}
}

func TestRefresh(t *testing.T) {
	s, td := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/refresh", "", true)
	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", rec.Code)
	}
	if td.monitor.refreshCount() != 1 {
		t.Errorf("refreshes = %d, want 1", td.monitor.refreshCount())
	}
}

// ============================================================
// Updates
// ============================================================

func TestUpdates_List(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/updates", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Total      int                    `json:"total"`
		Core       []updates.UpdateRecord `json:"core"`
		ThirdParty []updates.UpdateRecord `json:"third_party"`
	}
	decode(t, rec, &resp)
	if resp.Total != 1 || len(resp.Core) != 1 {
		t.Errorf("response = %+v", resp)
	}
	if resp.ThirdParty == nil {
		t.Error("third_party = null, want []")
	}
}

func TestUpdates_Actions(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		body     string
		wantCall updateCall
	}{
		{
			name:     "install with backup",
			path:     "/api/v1/updates/update.hacs/install",
			body:     `{"backup":true}`,
			wantCall: updateCall{action: "install", entityID: "update.hacs", backup: true},
		},
		{
			name:     "install without body",
			path:     "/api/v1/updates/update.hacs/install",
			wantCall: updateCall{action: "install", entityID: "update.hacs"},
		},
		{
			name:     "skip",
			path:     "/api/v1/updates/update.hacs/skip",
			wantCall: updateCall{action: "skip", entityID: "update.hacs"},
		},
		{
			name:     "clear skipped",
			path:     "/api/v1/updates/update.hacs/clear-skipped",
			wantCall: updateCall{action: "clear_skipped", entityID: "update.hacs"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, td := newTestServer(t)

			rec := doRequest(t, s, http.MethodPost, tt.path, tt.body, true)
			if rec.Code != http.StatusAccepted {
				t.Fatalf("status = %d, want 202 (%s)", rec.Code, rec.Body.String())
			}
			if len(td.updates.calls) != 1 || td.updates.calls[0] != tt.wantCall {
				t.Errorf("calls = %+v, want [%+v]", td.updates.calls, tt.wantCall)
			}
			if td.monitor.refreshCount() != 1 {
				t.Errorf("refreshes = %d, want 1", td.monitor.refreshCount())
			}
		})
	}
}

func TestUpdates_ActionErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		body     string
		wantCode int
	}{
		{"invalid entity", fmt.Errorf("%w: light.x", updates.ErrInvalidEntity), "", http.StatusBadRequest},
		{"upstream failure", fmt.Errorf("%w: boom", updates.ErrActionFailed), "", http.StatusBadGateway},
		{"timeout", context.DeadlineExceeded, "", http.StatusGatewayTimeout},
		{"bad body", nil, "{", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, td := newTestServer(t)
			td.updates.err = tt.err

			rec := doRequest(t, s, http.MethodPost, "/api/v1/updates/update.hacs/install", tt.body, true)
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if td.monitor.refreshCount() != 0 {
				t.Errorf("refreshes = %d, want 0 after failure", td.monitor.refreshCount())
			}
		})
	}
}

func TestUpdates_Disabled(t *testing.T) {
	s, _ := newTestServer(t, func(d *Deps) { d.Updates = nil })

	rec := doRequest(t, s, http.MethodPost, "/api/v1/updates/update.hacs/skip", "", true)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

// ============================================================
// To-do
// ============================================================

func TestTodo_ListItems(t *testing.T) {
	s, td := newTestServer(t)
	td.todo.items = []todo.Item{{UID: "1", Summary: "Milk", Status: "needs_action", DueLabel: "today"}}

	rec := doRequest(t, s, http.MethodGet, "/api/v1/todo/todo.shopping/items", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		EntityID string      `json:"entity_id"`
		Items    []todo.Item `json:"items"`
	}
	decode(t, rec, &resp)
	if resp.EntityID != "todo.shopping" || len(resp.Items) != 1 || resp.Items[0].DueLabel != "today" {
		t.Errorf("response = %+v", resp)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/v1/todo/todo.secret/items", "", true)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unlisted entity status = %d, want 404", rec.Code)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/v1/todo", "", true)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "todo.shopping") {
		t.Errorf("entities = %d %s", rec.Code, rec.Body.String())
	}
}

func TestTodo_Mutations(t *testing.T) {
	s, td := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/todo/todo.shopping/items",
		`{"summary":"Eggs","due":"2026-03-02"}`, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add status = %d, want 201", rec.Code)
	}
	if len(td.todo.added) != 1 || td.todo.added[0].Summary != "Eggs" || *td.todo.added[0].Due != "2026-03-02" {
		t.Errorf("added = %+v", td.todo.added)
	}

	rec = doRequest(t, s, http.MethodPatch, "/api/v1/todo/todo.shopping/items/Milk%2FEggs",
		`{"status":"completed"}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, want 200", rec.Code)
	}
	change, ok := td.todo.updated["Milk/Eggs"]
	if !ok || change.Status == nil || *change.Status != "completed" {
		t.Errorf("updated = %+v", td.todo.updated)
	}

	rec = doRequest(t, s, http.MethodDelete, "/api/v1/todo/todo.shopping/items/Buy%20milk", "", true)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("remove status = %d, want 204", rec.Code)
	}
	if len(td.todo.removed) != 1 || td.todo.removed[0] != "Buy milk" {
		t.Errorf("removed = %v", td.todo.removed)
	}
}

func TestTodo_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		body     string
		wantCode int
	}{
		{"empty summary", todo.ErrEmptySummary, `{"summary":""}`, http.StatusBadRequest},
		{"invalid due", fmt.Errorf("%w: tomorrow-ish", todo.ErrInvalidDue), `{"summary":"x"}`, http.StatusBadRequest},
		{"not allowed", todo.ErrEntityNotAllowed, `{"summary":"x"}`, http.StatusNotFound},
		{"unknown failure", errors.New("kaboom"), `{"summary":"x"}`, http.StatusInternalServerError},
		{"malformed body", nil, `not json`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, td := newTestServer(t)
			td.todo.err = tt.err

			rec := doRequest(t, s, http.MethodPost, "/api/v1/todo/todo.shopping/items", tt.body, true)
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
		})
	}
}

func TestTodo_Disabled(t *testing.T) {
	s, _ := newTestServer(t, func(d *Deps) { d.Todo = nil })

	rec := doRequest(t, s, http.MethodGet, "/api/v1/todo/todo.shopping/items", "", true)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

// ============================================================
// Audit
// ============================================================

func TestAudit_RecordsActions(t *testing.T) {
	s, td := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/updates/update.hacs/install", `{"backup":true}`, true)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("install status = %d", rec.Code)
	}

	td.todo.err = todo.ErrEmptySummary
	rec = doRequest(t, s, http.MethodPost, "/api/v1/todo/todo.shopping/items", `{"summary":""}`, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("add status = %d", rec.Code)
	}

	if len(td.audit.entries) != 2 {
		t.Fatalf("entries = %+v, want 2", td.audit.entries)
	}
	install := td.audit.entries[0]
	if install.Action != audit.ActionUpdateInstall || install.EntityID != "update.hacs" ||
		install.Subject != "dashboard" || install.Details["backup"] != true || install.Error != "" {
		t.Errorf("install entry = %+v", install)
	}
	add := td.audit.entries[1]
	if add.Action != audit.ActionTodoAdd || add.Error == "" || add.Source != audit.SourceAPI {
		t.Errorf("add entry = %+v", add)
	}
}

func TestAudit_List(t *testing.T) {
	s, td := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/audit?action=update.install&entity_id=update.hacs&limit=5&offset=10", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	want := audit.Filter{Action: "update.install", EntityID: "update.hacs", Limit: 5, Offset: 10}
	if td.audit.lastFilter != want {
		t.Errorf("filter = %+v, want %+v", td.audit.lastFilter, want)
	}

	for _, q := range []string{"?limit=-1", "?offset=x"} {
		rec = doRequest(t, s, http.MethodGet, "/api/v1/audit"+q, "", true)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s status = %d, want 400", q, rec.Code)
		}
	}
}

func TestAudit_Disabled(t *testing.T) {
	s, _ := newTestServer(t, func(d *Deps) { d.Audit = nil })

	rec := doRequest(t, s, http.MethodGet, "/api/v1/audit", "", true)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	rec = doRequest(t, s, http.MethodPost, "/api/v1/updates/update.hacs/skip", "", true)
	if rec.Code != http.StatusAccepted {
		t.Errorf("skip without audit status = %d, want 202", rec.Code)
	}
}

// ============================================================
// Metrics
// ============================================================

func TestMetricsRoute(t *testing.T) {
	s, _ := newTestServer(t, func(d *Deps) {
		d.Metrics = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			io.WriteString(w, "hamonitor_poll_known 1\n") //nolint:errcheck // test handler
		})
	})

	rec := doRequest(t, s, http.MethodGet, "/metrics", "", false)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "hamonitor_poll_known") {
		t.Errorf("metrics = %d %q", rec.Code, rec.Body.String())
	}
}

// ============================================================
// WebSocket tickets
// ============================================================

func TestTicketStore(t *testing.T) {
	ts := newTicketStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ts.now = func() time.Time { return now }

	ticket := ts.issue("dashboard")
	if ts.count() != 1 {
		t.Fatalf("count() = %d, want 1", ts.count())
	}

	entry, ok := ts.redeem(ticket)
	if !ok || entry.subject != "dashboard" {
		t.Errorf("redeem() = %+v, %v", entry, ok)
	}
	if _, ok := ts.redeem(ticket); ok {
		t.Error("second redeem() succeeded, want single use")
	}

	expired := ts.issue("dashboard")
	now = now.Add(ticketTTL + time.Second)
	if _, ok := ts.redeem(expired); ok {
		t.Error("redeem() of expired ticket succeeded")
	}

	ts.issue("dashboard")
	now = now.Add(ticketTTL + time.Second)
	ts.cleanExpired()
	if ts.count() != 0 {
		t.Errorf("count() after cleanExpired = %d, want 0", ts.count())
	}
}

func TestWSTicketEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/auth/ws-ticket", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Ticket    string `json:"ticket"`
		ExpiresIn int    `json:"expires_in"`
	}
	decode(t, rec, &resp)
	if len(resp.Ticket) != 2*ticketBytes || resp.ExpiresIn != 60 {
		t.Errorf("response = %+v", resp)
	}
	if entry, ok := s.tickets.redeem(resp.Ticket); !ok || entry.subject != "dashboard" {
		t.Errorf("issued ticket not redeemable: %+v %v", entry, ok)
	}
}

// ============================================================
// WebSocket
// ============================================================

func wsURL(srv *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws" + query
}

func readWS(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return msg
}

func TestWebSocket_RequiresAuth(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.buildRouter())
	defer srv.Close()

	for _, q := range []string{"", "?ticket=bogus"} {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, q), nil)
		if err == nil {
			t.Fatalf("Dial(%q) succeeded, want failure", q)
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("Dial(%q) response = %v, want 401", q, resp)
		}
	}
}

func TestWebSocket_SubscribeAndReceive(t *testing.T) {
	s, td := newTestServer(t)
	srv := httptest.NewServer(s.buildRouter())
	defer srv.Close()

	ticket := s.tickets.issue("dashboard")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "?ticket="+ticket), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}

	err = conn.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: []string{ChannelSummary}},
	})
	if err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	if msg := readWS(t, conn); msg.Type != WSTypeResponse || msg.ID != "sub-1" {
		t.Fatalf("first message = %+v, want subscribe response", msg)
	}

	// The current snapshot is pushed straight after subscribing.
	msg := readWS(t, conn)
	if msg.Type != WSTypeEvent || msg.EventType != ChannelSummary {
		t.Fatalf("second message = %+v, want summary event", msg)
	}
	payload, _ := msg.Payload.(map[string]any) //nolint:errcheck // checked below
	if payload["poll_id"] != "poll-1" {
		t.Errorf("payload = %v", msg.Payload)
	}

	if s.Hub().ClientCount() != 1 || td.monitor.SubscriberCount() != 1 {
		t.Errorf("clients = %d, subscribers = %d, want 1/1", s.Hub().ClientCount(), td.monitor.SubscriberCount())
	}

	next := testSnapshot()
	next.ID = "poll-2"
	next.Offline.Devices = nil
	td.monitor.publish(next)

	msg = readWS(t, conn)
	payload, _ = msg.Payload.(map[string]any) //nolint:errcheck // checked below
	if msg.EventType != ChannelSummary || payload["poll_id"] != "poll-2" || payload["offline_devices"] != float64(0) {
		t.Errorf("pushed event = %+v", msg)
	}

	conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for td.monitor.SubscriberCount() != 0 || s.Hub().ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client not detached: clients = %d, subscribers = %d",
				s.Hub().ClientCount(), td.monitor.SubscriberCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebSocket_BearerAndErrors(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.buildRouter())
	defer srv.Close()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+testToken(t))
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), header)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	tests := []struct {
		name     string
		msg      any
		wantType string
	}{
		{"ping", WSMessage{Type: WSTypePing, ID: "p"}, WSTypePong},
		{"unknown type", WSMessage{Type: "dance", ID: "d"}, WSTypeError},
		{"unknown channel", WSMessage{
			Type:    WSTypeSubscribe,
			ID:      "s",
			Payload: WSSubscribePayload{Channels: []string{"weather"}},
		}, WSTypeError},
		{"unsubscribe", WSMessage{
			Type:    WSTypeUnsubscribe,
			ID:      "u",
			Payload: WSSubscribePayload{Channels: []string{ChannelOffline}},
		}, WSTypeResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := conn.WriteJSON(tt.msg); err != nil {
				t.Fatalf("WriteJSON() error = %v", err)
			}
			if got := readWS(t, conn); got.Type != tt.wantType {
				t.Errorf("reply = %+v, want type %s", got, tt.wantType)
			}
		})
	}
}

func TestChannelPayload(t *testing.T) {
	snap := testSnapshot()

	tests := []struct {
		channel string
		check   func(any) bool
	}{
		{ChannelSnapshot, func(v any) bool { return v == snap }},
		{ChannelSummary, func(v any) bool { return v.(summaryResponse).OfflineDevices == 1 }},
		{ChannelOffline, func(v any) bool { return len(v.(offlineResponse).Entities) == 1 }},
		{ChannelUpdates, func(v any) bool { return v.(updatesResponse).Total == 1 }},
		{ChannelBalance, func(v any) bool { return v.(balanceResponse).Low == 1 }},
	}
	for _, tt := range tests {
		if !tt.check(channelPayload(tt.channel, snap)) {
			t.Errorf("channelPayload(%s) unexpected", tt.channel)
		}
	}
}

func TestHub_CloseAll(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, logging.Discard())
	if hub.cfg.PingInterval != defaultWSPingInterval || hub.cfg.MaxMessageSize != defaultWSMaxMessageSize {
		t.Errorf("defaults not applied: %+v", hub.cfg)
	}

	unsubscribed := false
	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, 1),
		subscriptions: map[string]struct{}{},
		unsubscribe:   func() { unsubscribed = true },
	}
	hub.Register(client)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	if hub.ClientCount() != 0 || !unsubscribed {
		t.Errorf("after Run exit: clients = %d, unsubscribed = %v", hub.ClientCount(), unsubscribed)
	}
	// Unregister after closeAll must not close the channel twice.
	hub.Unregister(client)
	client.trySend([]byte("late"))
}

func TestWSClient_OnSnapshotSubscribedOnly(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, logging.Discard())
	client := &WSClient{
		hub:  hub,
		send: make(chan []byte, len(channelOrder)),
		subscriptions: map[string]struct{}{
			ChannelBalance: {},
			ChannelSummary: {},
		},
	}
	if !client.isSubscribed(ChannelSummary) || client.isSubscribed(ChannelOffline) {
		t.Fatalf("subscriptions = %v", client.subscriptions)
	}

	client.OnSnapshot(&monitor.Snapshot{ID: "p1", Known: true})
	close(client.send)

	var got []string
	for data := range client.send {
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if msg.Type != WSTypeEvent {
			t.Errorf("type = %q, want %q", msg.Type, WSTypeEvent)
		}
		got = append(got, msg.EventType)
	}
	if len(got) != 2 || got[0] != ChannelSummary || got[1] != ChannelBalance {
		t.Errorf("events = %v, want [summary balance]", got)
	}
}
