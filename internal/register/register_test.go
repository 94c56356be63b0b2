package register

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hytaleone/hyquery/internal/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// captureLog redirects the global logger into a buffer for the rest of the test.
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf).Level(zerolog.TraceLevel)
	t.Cleanup(func() { log.Logger = prev })

	return &buf
}

// logEntries decodes every JSON line written to buf.
func logEntries(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("log line is not JSON: %q", line)
		}
		entries = append(entries, entry)
	}
	return entries
}

func hasEntry(entries []map[string]any, level, msg string) bool {
	for _, e := range entries {
		if e["level"] == level && e["message"] == msg {
			return true
		}
	}
	return false
}

// events records the order of persistence and network calls.
type events struct {
	mu   sync.Mutex
	list []string
}

func (e *events) add(s string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.list = append(e.list, s)
}

func (e *events) get() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.list...)
}

type memStore struct {
	ev      *events
	id      string
	saveErr error
	history []models.Registration
}

func (m *memStore) ServerID() (string, error) { return m.id, nil }

func (m *memStore) SaveServerID(id string) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.ev.add("save")
	m.id = id
	return nil
}

func (m *memStore) RecordRegistration(reg models.Registration) error {
	m.history = append(m.history, reg)
	return nil
}

type staticSource models.Snapshot

func (s staticSource) Snapshot() models.Snapshot { return models.Snapshot(s) }

var snapshot = staticSource{
	ServerName:      "Orbis",
	MOTD:            "hello",
	MaxPlayers:      100,
	CurrentPlayers:  3,
	Version:         "2026.01.13",
	ProtocolVersion: 7,
}

var idPattern = regexp.MustCompile(`^` + IDPrefix + `[0-9a-f]{32}$`)

func TestNewServerID(t *testing.T) {
	a, err := NewServerID()
	if err != nil {
		t.Fatalf("NewServerID: %v", err)
	}
	b, _ := NewServerID()
	if !idPattern.MatchString(a) || a == b {
		t.Fatalf("unexpected ids %q %q", a, b)
	}
}

func TestEnsureServerID(t *testing.T) {
	ev := &events{}

	t.Run("config wins", func(t *testing.T) {
		store := &memStore{ev: ev, id: "stored"}
		cfg := &Config{ServerID: "configured"}
		id, err := New(store, snapshot).EnsureServerID(cfg)
		if err != nil || id != "configured" {
			t.Fatalf("EnsureServerID = %q, %v", id, err)
		}
	})

	t.Run("stored", func(t *testing.T) {
		store := &memStore{ev: ev, id: "stored"}
		cfg := &Config{ServerID: "   "}
		id, err := New(store, snapshot).EnsureServerID(cfg)
		if err != nil || id != "stored" || cfg.ServerID != "stored" {
			t.Fatalf("EnsureServerID = %q, %v (cfg %q)", id, err, cfg.ServerID)
		}
	})

	t.Run("generated once", func(t *testing.T) {
		store := &memStore{ev: ev}
		r := New(store, snapshot)
		cfg := &Config{}
		id, err := r.EnsureServerID(cfg)
		if err != nil || !idPattern.MatchString(id) || store.id != id || cfg.ServerID != id {
			t.Fatalf("EnsureServerID = %q, %v (stored %q)", id, err, store.id)
		}
		again, _ := r.EnsureServerID(&Config{})
		if again != id {
			t.Fatalf("second call generated %q, want %q", again, id)
		}
	})

	t.Run("save failure", func(t *testing.T) {
		store := &memStore{ev: ev, saveErr: errors.New("disk full")}
		cfg := &Config{}
		if _, err := New(store, snapshot).EnsureServerID(cfg); err == nil {
			t.Fatalf("expected error")
		}
		if cfg.ServerID != "" {
			t.Fatalf("cfg assigned %q despite failed save", cfg.ServerID)
		}
	})
}

func TestStartPersistsBeforeRequest(t *testing.T) {
	ev := &events{}
	payloads := make(chan models.RegistrationRequest, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ev.add("request")
		if r.Header.Get("Content-Type") != "application/json" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.Header.Get("Content-Type"))
		}
		var req models.RegistrationRequest
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &req)
		payloads <- req
		_, _ = w.Write([]byte(`{"url":"https://x/z"}`))
	}))
	defer srv.Close()

	store := &memStore{ev: ev}
	r := New(store, snapshot,
		WithEndpoint(srv.URL),
		WithHistory(store),
		WithAddrResolver(func() (*net.UDPAddr, error) {
			return &net.UDPAddr{IP: net.IPv4(203, 0, 113, 7), Port: 5521}, nil
		}),
	)

	cfg := &Config{AutoRegister: true}
	r.Start(cfg)
	r.Wait()

	if order := ev.get(); len(order) != 2 || order[0] != "save" || order[1] != "request" {
		t.Fatalf("call order = %v, want [save request]", order)
	}
	got := <-payloads
	if got.ServerID != cfg.ServerID || got.ServerName != "Orbis" || got.CurrentPlayers != 3 {
		t.Fatalf("unexpected payload %+v", got)
	}
	if got.Host == nil || *got.Host != "203.0.113.7" || got.Port != 5521 {
		t.Fatalf("unexpected host/port %v:%d", got.Host, got.Port)
	}
	if len(store.history) != 1 || store.history[0].Outcome != "unclaimed" {
		t.Fatalf("unexpected history %+v", store.history)
	}
}

func TestStartReturnsBeforeResponse(t *testing.T) {
	arrived := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		close(arrived)
		<-release
		_, _ = w.Write([]byte(`{"claimed":true}`))
	}))
	defer srv.Close()

	store := &memStore{ev: &events{}}
	r := New(store, snapshot, WithEndpoint(srv.URL), WithHistory(store))

	returned := make(chan struct{})
	go func() {
		r.Start(&Config{AutoRegister: true})
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		close(release)
		t.Fatalf("Start blocked on the registration request")
	}

	select {
	case <-arrived:
	case <-time.After(5 * time.Second):
		t.Fatalf("registration request was never sent")
	}

	close(release)
	r.Wait()

	if len(store.history) != 1 || store.history[0].Outcome != "claimed" {
		t.Fatalf("unexpected history %+v", store.history)
	}
}

func TestStartDisabled(t *testing.T) {
	buf := captureLog(t)

	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		requests.Add(1)
	}))
	defer srv.Close()

	ev := &events{}
	store := &memStore{ev: ev}
	r := New(store, snapshot, WithEndpoint(srv.URL))
	r.Start(&Config{})
	r.Wait()

	if requests.Load() != 0 || len(ev.get()) != 0 || store.id != "" {
		t.Fatalf("disabled registration touched state: requests=%d events=%v id=%q",
			requests.Load(), ev.get(), store.id)
	}
	if !hasEntry(logEntries(t, buf), "info", "Server list registration is disabled") {
		t.Fatalf("missing disabled notice in %q", buf.String())
	}
}

func TestPayloadWithoutAddress(t *testing.T) {
	r := New(&memStore{ev: &events{}}, snapshot,
		WithAddrResolver(func() (*net.UDPAddr, error) { return nil, errors.New("no interface") }))

	b, err := json.Marshal(r.payload("hyone_x"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var doc map[string]any
	_ = json.Unmarshal(b, &doc)

	for _, key := range []string{"serverId", "serverName", "motd", "host", "port", "maxPlayers", "currentPlayers", "version", "protocolVersion"} {
		if _, ok := doc[key]; !ok {
			t.Fatalf("payload missing %q: %s", key, b)
		}
	}
	if doc["host"] != nil || doc["port"] != float64(models.DefaultPort) {
		t.Fatalf("host/port = %v/%v, want null/%d", doc["host"], doc["port"], models.DefaultPort)
	}
}

func TestRegisterTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	buf := captureLog(t)
	store := &memStore{ev: &events{}}
	r := New(store, snapshot, WithEndpoint(srv.URL), WithTimeout(50*time.Millisecond), WithHistory(store))

	res := r.Register(testContext(t), "hyone_0123456789abcdef0123456789abcdef")
	if res.Outcome != OutcomeFailed || res.Err == nil {
		t.Fatalf("result = %+v, want failed with error", res)
	}
	if len(store.history) != 1 || store.history[0].Error == "" {
		t.Fatalf("failed attempt not recorded: %+v", store.history)
	}
	if !hasEntry(logEntries(t, buf), "warn", "Server list registration failed") {
		t.Fatalf("missing failure warning in %q", buf.String())
	}
}

func TestRegisterStatus(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		outcome Outcome
		url     string
	}{
		{"claimed", 200, `{"claimed":true,"url":"https://x/y"}`, OutcomeClaimed, "https://x/y"},
		{"claimed without url", 201, `{"claimed":true}`, OutcomeClaimed, ""},
		{"unclaimed", 200, `{"url":"https://x/z"}`, OutcomeUnclaimed, "https://x/z"},
		{"claimed false", 200, `{"claimed":false,"url":"https://x/z"}`, OutcomeUnclaimed, "https://x/z"},
		{"blank url", 200, `{"url":"  "}`, OutcomeUnknown, ""},
		{"truthy claimed", 200, `{"claimed":1,"url":"https://x/y"}`, OutcomeClaimed, "https://x/y"},
		{"non-string url", 200, `{"url":42}`, OutcomeUnknown, ""},
		{"unparseable", 200, `<html>ok</html>`, OutcomeUnknown, ""},
		{"empty", 204, ``, OutcomeUnknown, ""},
		{"server error", 503, `{"claimed":true}`, OutcomeFailed, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			r := New(&memStore{ev: &events{}}, snapshot, WithEndpoint(srv.URL))
			res := r.Register(testContext(t), "hyone_x")
			if res.Outcome != tt.outcome || res.URL != tt.url {
				t.Fatalf("result = %+v, want %v %q", res, tt.outcome, tt.url)
			}
			if res.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", res.StatusCode, tt.status)
			}
		})
	}
}

func TestRegisterConnectionRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	_ = l.Close()

	r := New(&memStore{ev: &events{}}, snapshot, WithEndpoint("http://"+addr), WithTimeout(time.Second))
	if res := r.Register(testContext(t), "hyone_x"); res.Outcome != OutcomeFailed || res.Err == nil {
		t.Fatalf("result = %+v, want transport failure", res)
	}
}

// testContext mirrors testing.T.Context (Go 1.24+): a context canceled when the test finishes.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
