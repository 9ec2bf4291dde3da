package cmd

import (
	"context"

	"github.com/netlens/netlens/internal/config"
	"github.com/netlens/netlens/internal/core/snapstore"
)

// openStore loads configuration and opens the configured snapshot backend.
func openStore(ctx context.Context) (snapstore.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return snapstore.Open(ctx, cfg.Store)
}
