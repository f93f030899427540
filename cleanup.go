package schemapool

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/yuku/schemapool/internal/bootstrap"
	"github.com/yuku/schemapool/internal/pgconst"
	"go.uber.org/zap"
)

// DropSchemas drops the given schemas and everything in them, last first, so
// the instance can be provisioned again. Missing schemas are skipped. Every
// schema is attempted; the returned error joins all failures.
func DropSchemas(ctx context.Context, b bootstrap.Borrower, specs []SchemaSpec, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, s := range specs {
		if !pgconst.IsValidIdentifier(s.Name) {
			return fmt.Errorf("%w: invalid schema name %q", ErrInvalidSpec, s.Name)
		}
	}

	h, err := b.Borrow(ctx)
	if err != nil {
		return fmt.Errorf("failed to borrow connection: %w", err)
	}
	defer h.Release()

	var errs []error
	for i := len(specs) - 1; i >= 0; i-- {
		name := pgconst.FoldIdentifier(specs[i].Name)
		query := "DROP SCHEMA IF EXISTS " + pgx.Identifier{name}.Sanitize() + " CASCADE"
		if _, err := h.Exec(ctx, query); err != nil {
			logger.Error("failed to drop schema", zap.String("schema", specs[i].Name), zap.Error(err))
			errs = append(errs, fmt.Errorf("failed to drop schema %s: %w", specs[i].Name, err))
			continue
		}
		logger.Info("dropped schema", zap.String("schema", specs[i].Name))
	}

	return errors.Join(errs...)
}
