package converter

import (
	"context"
	"fmt"
	"regexp"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// DBStrategy looks a value up in a table: args are [table, inputField, outputField].
type DBStrategy struct {
	db *gorm.DB
}

// NewDBStrategy creates the "db" strategy
func NewDBStrategy(db *gorm.DB) *DBStrategy {
	return &DBStrategy{db: db}
}

// Convert returns outputField of the first row where inputField = value.
func (s *DBStrategy) Convert(ctx context.Context, value string, args []string) (string, error) {
	if len(args) != 3 {
		return "", fmt.Errorf("db: want 3 args, got %d: %w", len(args), ErrNoResult)
	}
	table, input, output := args[0], args[1], args[2]
	for _, ident := range args {
		if !identifierRe.MatchString(ident) {
			return "", fmt.Errorf("db: invalid identifier %q: %w", ident, ErrNoResult)
		}
	}

	var values []string
	err := s.db.WithContext(ctx).
		Table(table).
		Where(clause.Eq{Column: clause.Column{Name: input}, Value: value}).
		Limit(1).
		Pluck(output, &values).Error
	if err != nil {
		return "", fmt.Errorf("db: lookup %s.%s: %w", table, input, err)
	}

	if len(values) == 0 || values[0] == "" {
		return "", fmt.Errorf("db: no %s row with %s=%q: %w", table, input, value, ErrNoResult)
	}
	return values[0], nil
}
