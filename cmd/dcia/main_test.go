package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/dcia/internal/config"
	"github.com/hyperjump/dcia/internal/models"
	"go.uber.org/zap"
)

func TestArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after question are moved first",
			args:     []string{"where are browser artifacts", "-output", "json"},
			expected: []string{"-output", "json", "where are browser artifacts"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-output", "json", "where are browser artifacts"},
			expected: []string{"-output", "json", "where are browser artifacts"},
		},
		{
			name:     "question only returns unchanged",
			args:     []string{"phishing"},
			expected: []string{"phishing"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"one", "two", "-limit", "5"},
			expected: []string{"-limit", "5", "one", "two"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("argsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"ransomware"}, "ransomware"},
		{"multiple words", []string{"what", "is", "phishing"}, "what is phishing"},
		{"single quoted phrase", []string{"what is phishing"}, "what is phishing"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildQuery(tt.args)
			if got != tt.expected {
				t.Errorf("buildQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
store:
  backend: memory
embedding:
  provider: mock
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	chdir(t, dir)

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_environmentOnly(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("DCIA_STORE", "memory")
	t.Setenv("DCIA_EMBEDDING_PROVIDER", "mock")

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != "" {
		t.Errorf("resolved path = %q, want empty", resolved)
	}
	if cfg.Store.Backend != "memory" || cfg.Server.Port != 8000 {
		t.Errorf("unexpected config: backend=%s port=%d", cfg.Store.Backend, cfg.Server.Port)
	}
}

func TestLoadConfig_explicitPathMustExist(t *testing.T) {
	_, _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	var cfg config.Config
	config.ApplyDefaults(&cfg)
	cfg.Store.Backend = "memory"
	cfg.Embedding.Provider = "mock"
	cfg.Metrics.Enabled = true
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	return &cfg
}

func TestInitializeComponents_importRefreshAsk(t *testing.T) {
	ctx := context.Background()
	c, err := initializeComponents(ctx, memoryConfig(t), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if c.Metrics == nil {
		t.Fatal("metrics should be initialized when enabled")
	}

	stats, err := c.Indexer.Import(ctx, &models.Catalog{CrimeSubtypes: []models.CatalogSubtype{{
		Name:        "Phishing",
		Description: "Fraudulent messages that trick victims into revealing credentials.",
		Evidence: []models.CatalogEvidence{{
			Name:        "Browser History",
			Description: "Record of visited pages.",
			Locations: map[models.Device][]string{
				models.DeviceWindows: {`C:\Users\<user>\AppData\Local\Google\Chrome\User Data\Default\History`},
			},
		}},
	}}})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Subtypes != 1 || stats.Evidence != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	before := collectStatus(ctx, c)
	if !before.Reachable || before.Pending == 0 || before.Embedded != 0 {
		t.Fatalf("unexpected status before refresh: %+v", before)
	}

	summary := c.Job.Run(ctx)
	if summary.Err != "" || summary.Failed != 0 || summary.Embedded != before.Pending {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	after := collectStatus(ctx, c)
	if after.Pending != 0 || after.Embedded != summary.Embedded || after.Subtypes != 1 {
		t.Errorf("unexpected status after refresh: %+v", after)
	}
	if !after.VectorIndex || after.LastRefresh == nil {
		t.Errorf("vector index and last refresh should be reported: %+v", after)
	}

	resp, err := c.QA.Ask(ctx, "Fraudulent messages that trick victims into revealing credentials.")
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Sources) == 0 || resp.Sources[0].Name != "Phishing" {
		t.Errorf("expected Phishing as first source, got %+v", resp.Sources)
	}

	deps := c.serverDeps()
	if deps.Keyword == nil || deps.MetricsHandler == nil {
		t.Error("keyword searcher and metrics handler should be wired")
	}
}

func TestAskViaHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ask" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var req models.AskRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		if strings.TrimSpace(req.Question) == "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"detail":"Question cannot be empty"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(models.AskResponse{Answer: "answer to " + req.Question})
	}))
	defer srv.Close()

	resp, err := askViaHTTP(srv.URL+"/", "what is phishing")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Answer != "answer to what is phishing" {
		t.Errorf("answer = %q", resp.Answer)
	}

	_, err = askViaHTTP(srv.URL, " ")
	if err == nil || !strings.Contains(err.Error(), "Question cannot be empty") {
		t.Errorf("expected detail in error, got %v", err)
	}
}

func TestSearchViaHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("q") != "browser history" || q.Get("limit") != "3" || q.Get("fuzzy") != "true" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"detail":"bad query"}`))
			return
		}
		_, _ = w.Write([]byte(`{"query":"browser history","hits":[{"node":{"id":"1","labels":["Evidence"],"name":"Browser History","embedded":false},"score":1.5}]}`))
	}))
	defer srv.Close()

	res, err := searchViaHTTP(srv.URL, "browser history", 3, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Hits) != 1 || res.Hits[0].Node.Name != "Browser History" {
		t.Errorf("unexpected hits: %+v", res.Hits)
	}

	if _, err := searchViaHTTP(srv.URL, "browser history", 3, false); err == nil {
		t.Error("expected error for rejected query")
	}
}

func TestPrepareStore(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig(t)
	path := filepath.Join(t.TempDir(), "kb.yaml")
	content := `
crime_subtypes:
  - name: Phishing
    description: Fraudulent messages that trick victims into revealing credentials
    evidence:
      - name: Browser History
        description: Record of visited pages
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg.Catalog.Files = []string{path}

	c, err := initializeComponents(ctx, cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	prepareStore(ctx, c, zap.NewNop())
	c.Job.Wait()

	exists, err := c.Store.VectorIndexExists(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Error("vector index should exist before any refresh is requested")
	}
	count, err := c.Keyword.DocCount()
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("keyword documents = %d, want 2", count)
	}
	status := collectStatus(ctx, c)
	if status.Subtypes != 1 || status.Pending != 0 {
		t.Errorf("unexpected status after startup import: %+v", status)
	}
}
