package testutil

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/tribes-lab/backend/config"
	"github.com/tribes-lab/backend/internal/entity"
	"github.com/tribes-lab/backend/pkg/logger"
	"github.com/tribes-lab/backend/pkg/xcontext"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// MockContext builds a context with an in-memory database, default configs
// and a silent logger, so every test runs against a fresh isolated state.
func MockContext() context.Context {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		panic(err)
	}

	var cfg config.Configs
	cfg.Default()
	cfg.Chain = config.ChainConfigs{
		DefaultChainID: 1,
		Chains: []config.ChainConfig{
			{
				Chain:          "testchain",
				ChainID:        1,
				PostsAddress:   "0x0000000000000000000000000000000000000001",
				TribesAddress:  "0x0000000000000000000000000000000000000002",
				ProfileAddress: "0x0000000000000000000000000000000000000003",
			},
		},
	}

	snowflakeNode, err := snowflake.NewNode(0)
	if err != nil {
		panic(err)
	}

	ctx := context.Background()
	ctx = xcontext.WithConfigs(ctx, cfg)
	ctx = xcontext.WithLogger(ctx, logger.NewSilenceLogger())
	ctx = xcontext.WithSnowFlake(ctx, snowflakeNode)
	ctx = xcontext.WithDB(ctx, db)

	if err := entity.MigrateTable(ctx); err != nil {
		panic(err)
	}

	return ctx
}
