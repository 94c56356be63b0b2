package maintenance

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/hytaleone/hyquery/internal/config"
	"github.com/hytaleone/hyquery/internal/models"
	"github.com/hytaleone/hyquery/internal/register"
	"github.com/hytaleone/hyquery/internal/status"
	"github.com/hytaleone/hyquery/internal/storage"
)

func openStore(t *testing.T) *storage.Repository {
	t.Helper()
	store, err := storage.New(filepath.Join(t.TempDir(), "hyquery.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRegisterNowThenShowIdentity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"claimed":true,"url":"https://x/y"}`))
	}))
	defer srv.Close()

	store := openStore(t)
	source := status.New(models.Snapshot{ServerName: "Orbis"})
	reg := register.New(store, source, register.WithEndpoint(srv.URL), register.WithHistory(store))

	cfg := &config.Config{}
	cfg.Register.Now = true
	cfg.Register.Timeout = 5 * time.Second

	if !Run(cfg, store, reg) {
		t.Fatalf("register-now task not run")
	}

	var buf bytes.Buffer
	if err := ShowIdentity(&buf, store); err != nil {
		t.Fatalf("ShowIdentity: %v", err)
	}

	var report Identity
	if err := json.Unmarshal(buf.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.ServerID == "" || len(report.Registrations) != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if got := report.Registrations[0]; got.Outcome != "claimed" || got.URL != "https://x/y" || got.ServerID != report.ServerID {
		t.Fatalf("unexpected registration %+v", got)
	}
}

func TestRunWithoutTask(t *testing.T) {
	store := openStore(t)
	if Run(&config.Config{}, store, nil) {
		t.Fatalf("Run reported a task without flags")
	}
}
