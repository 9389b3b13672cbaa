package rulestore

import (
	"context"

	"github.com/sirupsen/logrus"

	"go_niceurl/internal/model"
)

// Invalidator drops cached conversions of one rule.
type Invalidator interface {
	InvalidateRule(ctx context.Context, ruleID int) (int, error)
}

// Service pairs every rule mutation that can change conversion results with
// a cache invalidation.
type Service struct {
	store       *Store
	invalidator Invalidator
	logger      *logrus.Entry
}

// NewService creates a rule service
func NewService(store *Store, invalidator Invalidator, logger *logrus.Entry) *Service {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{
		store:       store,
		invalidator: invalidator,
		logger:      logger.WithField("component", "rule-service"),
	}
}

// Store exposes the underlying store for read paths.
func (s *Service) Store() *Store {
	return s.store
}

// Create inserts a rule. New rules cannot have cached entries yet.
func (s *Service) Create(ctx context.Context, r *model.URLRule) error {
	return s.store.Create(ctx, r)
}

// Update saves r and invalidates what the old version produced.
func (s *Service) Update(ctx context.Context, r *model.URLRule) error {
	if err := s.store.Update(ctx, r); err != nil {
		return err
	}
	s.invalidate(ctx, r.ID)
	return nil
}

// SetEnabled toggles a rule and invalidates its entries.
func (s *Service) SetEnabled(ctx context.Context, id int, enabled bool) error {
	if err := s.store.SetEnabled(ctx, id, enabled); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// Delete removes rules and invalidates each of them.
func (s *Service) Delete(ctx context.Context, ids []int) (int64, error) {
	n, err := s.store.Delete(ctx, ids)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.invalidate(ctx, id)
	}
	return n, nil
}

func (s *Service) invalidate(ctx context.Context, id int) {
	if s.invalidator == nil {
		return
	}
	if _, err := s.invalidator.InvalidateRule(ctx, id); err != nil {
		s.logger.WithError(err).WithField("rule_id", id).Error("failed to invalidate rule cache")
	}
}
