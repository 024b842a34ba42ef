// Package evidence looks up where evidence for a crime subtype lives on a device.
package evidence

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/dcia/internal/models"
	"github.com/hyperjump/dcia/internal/store"
	"github.com/hyperjump/dcia/pkg/utils"
)

// ErrInvalidDevice is returned for a device other than android or windows.
var ErrInvalidDevice = errors.New("device must be 'android' or 'windows'")

// Service resolves crime subtypes and lists their evidence.
type Service struct {
	store  store.Store
	logger *zap.Logger
}

// NewService creates an evidence lookup over st.
func NewService(st store.Store, logger *zap.Logger) *Service {
	return &Service{store: st, logger: utils.OrNop(logger)}
}

// ResolveExact reports whether a subtype named exactly name exists.
func (s *Service) ResolveExact(ctx context.Context, name string) (string, bool, error) {
	n, err := s.store.CountSubtypes(ctx, name)
	if err != nil {
		return "", false, err
	}
	return name, n > 0, nil
}

// ResolveFold finds a subtype whose name matches name ignoring case and returns its stored name.
func (s *Service) ResolveFold(ctx context.Context, name string) (string, bool, error) {
	return s.store.FindSubtypeFold(ctx, name)
}

// Resolve tries an exact match, then a case-insensitive one.
func (s *Service) Resolve(ctx context.Context, name string) (string, bool, error) {
	canonical, ok, err := s.ResolveExact(ctx, name)
	if err != nil || ok {
		return canonical, ok, err
	}
	canonical, ok, err = s.ResolveFold(ctx, name)
	if err != nil {
		return "", false, err
	}
	if ok {
		s.logger.Info("resolved crime subtype ignoring case", zap.String("requested", name), zap.String("name", canonical))
	}
	return canonical, ok, nil
}

// Lookup returns the evidence for subtype on device. device is matched case-insensitively.
// An unknown subtype yields an empty list.
func (s *Service) Lookup(ctx context.Context, subtype, device string) ([]models.EvidenceItem, error) {
	d, ok := models.ParseDevice(device)
	if !ok {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidDevice, device)
	}
	canonical, found, err := s.Resolve(ctx, subtype)
	if err != nil {
		return nil, err
	}
	if !found {
		s.logger.Warn("no crime subtype found", zap.String("subtype", subtype))
		return []models.EvidenceItem{}, nil
	}
	items, err := s.store.Evidence(ctx, canonical, d)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("fetched evidence",
		zap.String("subtype", canonical),
		zap.String("relationship", d.Relationship()),
		zap.Int("items", len(items)))
	return items, nil
}

// Subtypes lists all crime subtype names in ascending order.
func (s *Service) Subtypes(ctx context.Context) ([]string, error) {
	return s.store.CrimeSubtypes(ctx)
}
