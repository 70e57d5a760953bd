// Package twin assembles the storefront twin: a local stand-in for the
// commerce API, the guest-identity API and the payment gateway.
package twin

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/wondertwin-ai/storefront/internal/twin/admin"
	"github.com/wondertwin-ai/storefront/internal/twin/api"
	"github.com/wondertwin-ai/storefront/internal/twin/core"
	"github.com/wondertwin-ai/storefront/internal/twin/store"
)

// New builds a ready-to-serve twin. When cfg.SeedFile is set it replaces
// the demo catalog.
func New(cfg *core.Config, logger *zap.Logger) (*core.Twin, *store.State, error) {
	var seed *store.Snapshot
	if cfg.SeedFile != "" {
		data, err := os.ReadFile(cfg.SeedFile)
		if err != nil {
			return nil, nil, fmt.Errorf("reading seed file: %w", err)
		}
		seed, err = store.ParseSnapshot(data)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing seed file %s: %w", cfg.SeedFile, err)
		}
	}

	tw := core.New(cfg, logger)
	state := store.New(seed)
	api.NewHandler(state, tw.Middleware(), tw.Config, tw.Logger).Routes(tw.Router)
	admin.NewHandler(state, tw.Middleware(), state.Clock, tw.Logger).Routes(tw.Router)
	return tw, state, nil
}
