package bootstrap

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/iskim1407-claw/makeit/internal/repository"
)

// SchemaEnsurer is implemented by stores that own DDL.
type SchemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}

// EnsureSchema creates the tokens table on start when the credential store
// is backed by a database. Stores without a schema are skipped.
func EnsureSchema(lc fx.Lifecycle, repo repository.CredentialRepository, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return ensureSchema(ctx, repo, logger)
		},
	})
}

func ensureSchema(ctx context.Context, repo repository.CredentialRepository, logger *zap.Logger) error {
	ensurer, ok := repo.(SchemaEnsurer)
	if !ok {
		logger.Info("credential store has no schema to bootstrap")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := ensurer.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("bootstrap schema: %w", err)
	}
	logger.Info("tokens schema ensured")
	return nil
}
