// Package main is the dcia CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/dcia/internal/answer"
	"github.com/hyperjump/dcia/internal/cli"
	"github.com/hyperjump/dcia/internal/config"
	"github.com/hyperjump/dcia/internal/embedding"
	"github.com/hyperjump/dcia/internal/evidence"
	"github.com/hyperjump/dcia/internal/indexer"
	"github.com/hyperjump/dcia/internal/keyword"
	"github.com/hyperjump/dcia/internal/maintenance"
	"github.com/hyperjump/dcia/internal/metrics"
	"github.com/hyperjump/dcia/internal/models"
	"github.com/hyperjump/dcia/internal/qa"
	"github.com/hyperjump/dcia/internal/retrieval"
	"github.com/hyperjump/dcia/internal/server"
	"github.com/hyperjump/dcia/internal/store"
	"github.com/hyperjump/dcia/internal/watcher"
	"github.com/hyperjump/dcia/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/dcia/config.yaml"
	defaultServerURL  = "http://localhost:8000"
)

// loadConfig loads config from path. When path is the default, config.yaml in the
// current directory wins if present; when neither file exists the config is built from
// defaults and the environment alone. Returns the config and the path that was loaded
// ("" for environment-only).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			cfg, err := config.Default()
			if err != nil {
				return nil, "", err
			}
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	config.LoadDotEnv()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ask":
		runAsk()
	case "search":
		runSearch()
	case "refresh":
		runRefresh()
	case "import":
		runImport()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("dcia version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads config, creates the logger and initializes components for a subcommand.
func setup(ctx context.Context, configPath string, debug bool) (*Components, *zap.Logger) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded",
		zap.String("config_path", resolved),
		zap.String("store", cfg.Store.Backend),
		zap.String("embedding", cfg.Embedding.Provider),
	)
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return components, logger
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	ctx := context.Background()
	components, logger := setup(ctx, *configPath, *debug)
	defer logger.Sync()
	defer components.Close()
	cfg := components.Config

	prepareStore(ctx, components, logger)

	watchCtx, watchCancel := context.WithCancel(ctx)
	defer watchCancel()
	if cfg.Catalog.Watch && len(cfg.Catalog.Files) > 0 {
		idx := components.Indexer
		w, err := watcher.New(cfg.Catalog.Files, func(path string) {
			report, err := idx.ImportFile(watchCtx, path)
			if err != nil {
				logger.Warn("catalog reimport failed", zap.String("path", path), zap.Error(err))
				return
			}
			if !report.Unchanged {
				logger.Info("catalog reimported",
					zap.String("path", path),
					zap.Int("invalidated", report.Stats.Invalidated),
				)
			}
		}, watcher.WithLogger(logger))
		if err != nil {
			logger.Fatal("Failed to create watcher", zap.Error(err))
		}
		if err := w.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer w.Stop()
	}

	srv := server.NewServer(components.serverDeps(), &cfg.Server, cfg.Metrics, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(stopCtx)
	components.Job.Wait()
}

// prepareStore runs before the server accepts requests. It creates the vector index
// if it is missing and marks nodes embedded by an earlier deployment. Then it imports
// the configured catalogs, or rebuilds the keyword index from the store when there
// are none.
func prepareStore(ctx context.Context, c *Components, logger *zap.Logger) {
	cfg := c.Config
	if ensured, err := c.Job.EnsureVectorIndex(ctx); err != nil {
		logger.Warn("vector index check failed", zap.Error(err))
	} else if ensured {
		logger.Info("vector index created", zap.String("index", cfg.Index.Name))
	}

	if len(cfg.Catalog.Files) == 0 {
		if err := c.Indexer.RebuildKeyword(ctx); err != nil {
			logger.Warn("keyword index rebuild failed", zap.Error(err))
		}
		return
	}
	reports, err := c.Indexer.ImportFiles(ctx, cfg.Catalog.Files)
	if err != nil {
		logger.Warn("catalog import failed", zap.Error(err))
	}
	for _, r := range reports {
		logger.Info("catalog imported",
			zap.String("path", r.Path),
			zap.Bool("unchanged", r.Unchanged),
			zap.Int("subtypes", r.Stats.Subtypes),
			zap.Int("evidence", r.Stats.Evidence),
		)
	}
}

// buildQuery joins all positional args with spaces so multi-word questions work the
// same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves flags that appear after the positional arguments to the front so
// that flag.Parse sees them; the flag package stops at the first non-flag argument.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func parseFormatOrExit(s string) cli.OutputFormat {
	format, err := cli.ParseFormat(s)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return format
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = answer directly against the store)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	question := buildQuery(fs.Args())
	if question == "" {
		fmt.Fprintln(os.Stderr, "Usage: dcia ask [flags] <question>")
		os.Exit(1)
	}
	format := parseFormatOrExit(*outputFormat)

	var resp *models.AskResponse
	if *serverURL != "" {
		var err error
		resp, err = askViaHTTP(*serverURL, question)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		ctx := context.Background()
		components, logger := setup(ctx, *configPath, false)
		defer logger.Sync()
		defer components.Close()
		var err error
		resp, err = components.QA.Ask(ctx, question)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
			os.Exit(1)
		}
	}
	if err := cli.WriteAnswer(os.Stdout, resp, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// apiError decodes the {"detail": ...} body of a failed API call.
func apiError(resp *http.Response) error {
	b, _ := io.ReadAll(resp.Body)
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(b, &body); err == nil && body.Detail != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, body.Detail)
	}
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
}

func askViaHTTP(serverURL, question string) (*models.AskResponse, error) {
	body, err := json.Marshal(models.AskRequest{Question: question})
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(strings.TrimRight(serverURL, "/")+"/ask", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}
	var out models.AskResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = search the store directly)")
	limit := fs.Int("limit", 10, "number of results")
	fuzzy := fs.Bool("fuzzy", false, "enable fuzzy matching for typo tolerance")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	query := buildQuery(fs.Args())
	if query == "" {
		fmt.Fprintln(os.Stderr, "Usage: dcia search [flags] <query>")
		os.Exit(1)
	}
	format := parseFormatOrExit(*outputFormat)

	var res *keyword.Results
	if *serverURL != "" {
		var err error
		res, err = searchViaHTTP(*serverURL, query, *limit, *fuzzy)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		ctx := context.Background()
		components, logger := setup(ctx, *configPath, false)
		defer logger.Sync()
		defer components.Close()
		if err := components.Indexer.RebuildKeyword(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
		var err error
		res, err = components.Keyword.Search(ctx, query, *limit, &keyword.SearchOptions{Fuzzy: *fuzzy})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
	}
	if err := cli.WriteKeywordResults(os.Stdout, res, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func searchViaHTTP(serverURL, query string, limit int, fuzzy bool) (*keyword.Results, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))
	if fuzzy {
		params.Set("fuzzy", "true")
	}
	resp, err := http.Get(strings.TrimRight(serverURL, "/") + "/search?" + params.Encode())
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}
	var out keyword.Results
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

func runRefresh() {
	fs := flag.NewFlagSet("refresh", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := parseFormatOrExit(*outputFormat)

	ctx := context.Background()
	components, logger := setup(ctx, *configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	summary := components.Job.Run(ctx)
	if err := cli.WriteSummary(os.Stdout, summary, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
	if summary.Err != "" {
		os.Exit(1)
	}
}

func runImport() {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	refresh := fs.Bool("refresh", true, "embed new and changed nodes after importing")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: dcia import [flags] <catalog-file>...")
		os.Exit(1)
	}
	format := parseFormatOrExit(*outputFormat)

	ctx := context.Background()
	components, logger := setup(ctx, *configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	// Refresh runs in the foreground below instead of being triggered per file.
	idx := indexer.New(components.Store,
		indexer.WithLogger(logger),
		indexer.WithRecorder(components.Recorder),
	)
	reports, err := idx.ImportFiles(ctx, fs.Args())
	if werr := cli.WriteImportReports(os.Stdout, reports, format); werr != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", werr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Import failed: %v\n", err)
		os.Exit(1)
	}
	if *refresh {
		summary := components.Job.Run(ctx)
		if err := cli.WriteSummary(os.Stdout, summary, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := parseFormatOrExit(*outputFormat)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()
	var status *cli.Status
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		status = &cli.Status{Backend: cfg.Store.Backend, Error: err.Error()}
	} else {
		defer components.Close()
		status = collectStatus(ctx, components)
	}
	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
	if !status.Reachable {
		os.Exit(1)
	}
}

// collectStatus reports node and embedding counts from the store.
func collectStatus(ctx context.Context, c *Components) *cli.Status {
	cfg := c.Config
	status := &cli.Status{
		Backend:    cfg.Store.Backend,
		IndexName:  cfg.Index.Name,
		Dimensions: cfg.Index.Dimensions,
	}
	if err := c.Store.Ping(ctx); err != nil {
		status.Error = err.Error()
		return status
	}
	status.Reachable = true

	nodes, err := c.Store.Nodes(ctx)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.Nodes = len(nodes)
	for _, n := range nodes {
		if n.Embedded {
			status.Embedded++
		}
	}
	candidates, err := c.Job.Candidates(ctx)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.Pending = len(candidates)
	subtypes, err := c.Store.CrimeSubtypes(ctx)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.Subtypes = len(subtypes)
	if status.VectorIndex, err = c.Store.VectorIndexExists(ctx); err != nil {
		status.Error = err.Error()
	}
	if sized, ok := c.Store.(interface{ SizeBytes() (int64, error) }); ok {
		if size, err := sized.SizeBytes(); err == nil {
			status.DiskUsageBytes = &size
		}
	}
	if last, ok := c.Job.Last(); ok {
		status.LastRefresh = &last
	}
	return status
}

// Components holds initialized services.
type Components struct {
	Config    *config.Config
	Store     store.Store
	Embedder  embedding.Embedder
	Job       *maintenance.Job
	Retrieval *retrieval.Service
	QA        *qa.Orchestrator
	Evidence  *evidence.Service
	Keyword   *keyword.Index
	Indexer   *indexer.Indexer
	Recorder  metrics.Recorder
	// Metrics is nil when the metrics endpoint is disabled.
	Metrics   *metrics.Prometheus
}

func (c *Components) Close() {
	if c.Keyword != nil {
		_ = c.Keyword.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

// serverDeps wires components into the HTTP layer.
func (c *Components) serverDeps() server.Deps {
	deps := server.Deps{
		Store:    c.Store,
		QA:       c.QA,
		Refresh:  c.Job,
		Vectors:  c.Retrieval,
		Evidence: c.Evidence,
		Recorder: c.Recorder,
	}
	if c.Keyword != nil {
		deps.Keyword = c.Keyword
	}
	if c.Metrics != nil {
		deps.MetricsHandler = c.Metrics.Handler()
	}
	return deps
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{Config: cfg, Recorder: metrics.Nop()}
	if cfg.Metrics.Enabled {
		c.Metrics = metrics.NewPrometheus()
		c.Recorder = c.Metrics
	}

	st, err := store.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	c.Store = st

	emb, err := embedding.New(cfg.Embedding, cfg.Index.Dimensions, logger, c.Recorder)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c.Embedder = emb

	gen, err := answer.New(cfg.Answer, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize answer generator: %w", err)
	}

	c.Job = maintenance.New(st, emb,
		maintenance.WithLogger(logger),
		maintenance.WithConcurrency(cfg.Maintenance.Concurrency),
		maintenance.WithRecorder(c.Recorder),
	)
	c.Retrieval = retrieval.NewService(st, cfg.Index.Dimensions, logger, c.Recorder)
	c.QA = qa.New(emb, c.Retrieval, gen,
		qa.WithTopK(cfg.Retrieval.TopK),
		qa.WithLogger(logger),
		qa.WithRecorder(c.Recorder),
	)
	c.Evidence = evidence.NewService(st, logger)

	kw, err := keyword.NewIndex(logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}
	c.Keyword = kw
	c.Indexer = indexer.New(st,
		indexer.WithLogger(logger),
		indexer.WithKeywordIndex(kw),
		indexer.WithRefresher(c.Job),
		indexer.WithRecorder(c.Recorder),
	)
	return c, nil
}

func printUsage() {
	fmt.Println(`dcia - Digital Crime Investigative Assistant

Usage:
  dcia server [flags]                Start the HTTP API
  dcia ask [flags] <question>        Ask a question about digital evidence
  dcia search [flags] <query>        Keyword search over node names and descriptions
  dcia refresh [flags]               Embed every node that lacks an embedding
  dcia import [flags] <file>...      Import catalog files (.yaml, .json, .xlsx)
  dcia status [flags]                Show store, embedding and index status
  dcia version                       Show version
  dcia help                          Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/dcia/config.yaml,
                     then ./config.yaml, then defaults plus environment)
  --debug            Enable debug logging (server, refresh, import)
  --output string    Output format: text or json (ask, search, refresh, import, status)

Ask / Search Flags:
  --server string    Server URL (default: http://localhost:8000). Use --server "" to
                     work directly against the store without a running server.
  --limit int        Number of keyword results (search, default: 10)
  --fuzzy            Typo-tolerant keyword matching (search)

Import Flags:
  --refresh          Embed new and changed nodes after importing (default: true)

Environment:
  NEO4J_URI, NEO4J_USER, NEO4J_PASSWORD, NEO4J_DATABASE, OLLAMA_HOST,
  DCIA_STORE, DCIA_SQLITE_PATH, DCIA_EMBEDDING_PROVIDER, DCIA_DEBUG
  Values are also read from a .env file in the current directory.`)
}
