package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/poi-ingest/internal/config"
	"github.com/sells-group/poi-ingest/internal/store"
)

func openStore(ctx context.Context, sc config.StoreConfig) (store.Store, error) {
	switch sc.Driver {
	case "sqlite":
		dsn := sc.DatabaseURL
		if dsn == "" {
			dsn = "data.sqlite"
		}
		return store.NewSQLite(dsn, sc.Table)
	case "postgres":
		return store.NewPostgres(ctx, sc.DatabaseURL, sc.Table)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", sc.Driver)
	}
}
