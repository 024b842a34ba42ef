// Package indexer imports knowledge catalogs into the store and keeps the keyword index
// and embeddings in step with them.
package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/dcia/internal/catalog"
	"github.com/hyperjump/dcia/internal/keyword"
	"github.com/hyperjump/dcia/internal/maintenance"
	"github.com/hyperjump/dcia/internal/metrics"
	"github.com/hyperjump/dcia/internal/models"
	"github.com/hyperjump/dcia/internal/store"
)

// Refresher starts an embedding refresh in the background.
type Refresher interface {
	Trigger(ctx context.Context) (maintenance.Ticket, error)
}

// Report describes one catalog file import.
type Report struct {
	Path string `json:"path"`
	// Unchanged is set when the file content matched the previous import and nothing was written.
	Unchanged bool                `json:"unchanged"`
	Stats     models.ImportStats  `json:"stats"`
	Refresh   *maintenance.Ticket `json:"refresh,omitempty"`
}

// Indexer imports catalogs into a store.
type Indexer struct {
	store     store.Store
	keyword   *keyword.Index
	refresher Refresher
	logger    *zap.Logger
	recorder  metrics.Recorder

	mu     sync.Mutex
	hashes map[string]string // absolute path -> content hash of the last import
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) Option {
	return func(idx *Indexer) {
		if l != nil {
			idx.logger = l
		}
	}
}

// WithKeywordIndex rebuilds kw from the store after each import.
func WithKeywordIndex(kw *keyword.Index) Option {
	return func(idx *Indexer) { idx.keyword = kw }
}

// WithRefresher triggers r after each import that wrote to the store.
func WithRefresher(r Refresher) Option {
	return func(idx *Indexer) { idx.refresher = r }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(idx *Indexer) { idx.recorder = metrics.OrNop(r) }
}

// New creates an indexer over st.
func New(st store.Store, opts ...Option) *Indexer {
	idx := &Indexer{
		store:    st,
		logger:   zap.NewNop(),
		recorder: metrics.Nop(),
		hashes:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// ImportFile loads the catalog at path and upserts it. Re-importing identical content
// is skipped. After a write the keyword index is rebuilt and a refresh is triggered.
// The content hash is recorded only after both succeed.
func (idx *Indexer) ImportFile(ctx context.Context, path string) (*Report, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	if !catalog.Supported(absPath) {
		return nil, fmt.Errorf("unsupported catalog file %q", filepath.Base(absPath))
	}
	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	report := &Report{Path: absPath}
	hash := contentHash(content)

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.hashes[absPath] == hash {
		idx.logger.Debug("catalog unchanged, skipping", zap.String("path", absPath))
		report.Unchanged = true
		return report, nil
	}

	c, err := catalog.LoadBytes(content, strings.ToLower(filepath.Ext(absPath)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	stats, err := idx.Import(ctx, c)
	if err != nil {
		return nil, err
	}
	report.Stats = stats
	idx.logger.Info("catalog imported",
		zap.String("path", absPath),
		zap.Int("subtypes", stats.Subtypes),
		zap.Int("evidence", stats.Evidence),
		zap.Int("locations", stats.Locations),
		zap.Int("invalidated", stats.Invalidated),
	)

	if idx.keyword != nil {
		if err := idx.RebuildKeyword(ctx); err != nil {
			return report, err
		}
	}
	if idx.refresher != nil {
		ticket, err := idx.refresher.Trigger(ctx)
		if err != nil {
			return report, fmt.Errorf("trigger refresh: %w", err)
		}
		report.Refresh = &ticket
	}
	idx.hashes[absPath] = hash
	return report, nil
}

// ImportFiles imports each path in order and stops at the first error.
func (idx *Indexer) ImportFiles(ctx context.Context, paths []string) ([]*Report, error) {
	reports := make([]*Report, 0, len(paths))
	for _, p := range paths {
		r, err := idx.ImportFile(ctx, p)
		if err != nil {
			return reports, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// Import upserts an already loaded catalog.
func (idx *Indexer) Import(ctx context.Context, c *models.Catalog) (models.ImportStats, error) {
	done := metrics.TimeOp(idx.recorder, metrics.OpImport)
	stats, err := idx.store.Import(ctx, c)
	done(err == nil)
	if err != nil {
		return stats, fmt.Errorf("import catalog: %w", err)
	}
	return stats, nil
}

// RebuildKeyword reloads the keyword index from every node in the store.
func (idx *Indexer) RebuildKeyword(ctx context.Context) error {
	if idx.keyword == nil {
		return nil
	}
	nodes, err := idx.store.Nodes(ctx)
	if err != nil {
		return fmt.Errorf("list nodes: %w", err)
	}
	if err := idx.keyword.Rebuild(ctx, nodes); err != nil {
		return fmt.Errorf("rebuild keyword index: %w", err)
	}
	return nil
}

// Forget drops the remembered hash for path so the next import always writes.
func (idx *Indexer) Forget(path string) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return
	}
	idx.mu.Lock()
	delete(idx.hashes, absPath)
	idx.mu.Unlock()
}

func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
