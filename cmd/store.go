package main

import (
	"context"

	"github.com/sells-group/popdensity/internal/store"
)

// initStore opens the configured result store and applies its schema.
func initStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("runs"); err != nil {
		return nil, err
	}
	return store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
}
