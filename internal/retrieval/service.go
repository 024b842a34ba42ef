// Package retrieval runs nearest-neighbor queries against the store's vector index.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/hyperjump/dcia/internal/metrics"
	"github.com/hyperjump/dcia/internal/models"
	"github.com/hyperjump/dcia/internal/store"
	"github.com/hyperjump/dcia/pkg/utils"
)

var (
	// ErrInvalidLimit is returned for a non-positive limit.
	ErrInvalidLimit = errors.New("limit must be positive")
	// ErrInvalidVector is returned when the query vector does not match the index dimensions.
	ErrInvalidVector = errors.New("query vector does not match index dimensions")
)

// Service searches embedded nodes by vector similarity.
type Service struct {
	store      store.Store
	dimensions int
	logger     *zap.Logger
	recorder   metrics.Recorder
}

// NewService creates a retrieval service for an index of the given dimensions.
func NewService(st store.Store, dimensions int, logger *zap.Logger, rec metrics.Recorder) *Service {
	return &Service{store: st, dimensions: dimensions, logger: utils.OrNop(logger), recorder: metrics.OrNop(rec)}
}

// Search returns up to limit nodes nearest to vec, highest score first. Ties keep the
// store's order. A missing vector index yields no results rather than an error.
func (s *Service) Search(ctx context.Context, vec []float32, limit int) ([]models.RetrievalResult, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if len(vec) != s.dimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidVector, len(vec), s.dimensions)
	}

	done := metrics.TimeOp(s.recorder, metrics.OpVectorQuery)
	results, err := s.store.QueryNodes(ctx, vec, limit)
	if errors.Is(err, store.ErrNoVectorIndex) {
		done(true)
		s.logger.Warn("vector index missing; run an embedding refresh", zap.Error(err))
		return []models.RetrievalResult{}, nil
	}
	done(err == nil)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	if results == nil {
		results = []models.RetrievalResult{}
	}
	s.logger.Debug("vector search returned results", zap.Int("count", len(results)))
	return results, nil
}
