package rulestore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"go_niceurl/internal/model"
)

// ErrRuleNotFound is returned when a rule id does not exist.
var ErrRuleNotFound = errors.New("url rule not found")

// Store reads and writes url_rules through gorm.
type Store struct {
	db *gorm.DB
}

// NewStore creates a rule store
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// ListEnabled returns enabled rules in evaluation order.
func (s *Store) ListEnabled(ctx context.Context) ([]model.URLRule, error) {
	var rules []model.URLRule
	err := s.db.WithContext(ctx).
		Where("enabled = ?", true).
		Order("priority DESC").
		Order("id ASC").
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled rules: %w", err)
	}
	return rules, nil
}

// List returns one page of all rules, enabled or not, in evaluation order.
func (s *Store) List(ctx context.Context, page, pageSize int) ([]model.URLRule, int64, error) {
	query := s.db.WithContext(ctx).Model(&model.URLRule{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count rules: %w", err)
	}

	var rules []model.URLRule
	err := query.
		Order("priority DESC").
		Order("id ASC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&rules).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list rules: %w", err)
	}
	return rules, total, nil
}

// Get loads one rule by id.
func (s *Store) Get(ctx context.Context, id int) (*model.URLRule, error) {
	var r model.URLRule
	if err := s.db.WithContext(ctx).First(&r, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRuleNotFound
		}
		return nil, fmt.Errorf("failed to get rule %d: %w", id, err)
	}
	return &r, nil
}

// Create inserts r and fills its id.
func (s *Store) Create(ctx context.Context, r *model.URLRule) error {
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}
	return nil
}

// Update saves every field of r.
func (s *Store) Update(ctx context.Context, r *model.URLRule) error {
	res := s.db.WithContext(ctx).Model(&model.URLRule{}).Where("id = ?", r.ID).
		Select("type", "pattern", "readable", "template", "forward_params", "inverse_params", "enabled", "priority", "updated_at").
		Updates(r)
	if res.Error != nil {
		return fmt.Errorf("failed to update rule %d: %w", r.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// SetEnabled flips the enabled flag of one rule.
func (s *Store) SetEnabled(ctx context.Context, id int, enabled bool) error {
	res := s.db.WithContext(ctx).Model(&model.URLRule{}).Where("id = ?", id).Update("enabled", enabled)
	if res.Error != nil {
		return fmt.Errorf("failed to toggle rule %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// Delete removes the given rules and reports how many existed.
func (s *Store) Delete(ctx context.Context, ids []int) (int64, error) {
	res := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&model.URLRule{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete rules: %w", res.Error)
	}
	return res.RowsAffected, nil
}
