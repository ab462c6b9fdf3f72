package cli

import (
	"context"
	"time"

	"github.com/koustreak/sqlgate/internal/config"
	"github.com/koustreak/sqlgate/internal/connmgr"
	"github.com/koustreak/sqlgate/internal/filestore"
	"github.com/koustreak/sqlgate/internal/filestore/minio"
	"github.com/koustreak/sqlgate/internal/gateway"
	"github.com/koustreak/sqlgate/internal/logger"
)

// closeTimeout bounds how long a command waits for connections to close.
const closeTimeout = 5 * time.Second

// app is everything a command needs, built from Settings.
type app struct {
	settings *config.Settings
	log      *logger.Logger
	registry *config.Registry
	conns    *connmgr.Manager
	gw       *gateway.Gateway
}

func newApp(ctx context.Context, s *config.Settings, log *logger.Logger) (*app, error) {
	var store filestore.Store
	if cfg := s.ObjectStoreConfig(); cfg.Enabled() {
		d, err := minio.New(cfg)
		if err != nil {
			return nil, err
		}
		defer d.Close()
		store = d
	}

	reg, err := config.LoadSource(ctx, s.Config, store)
	if err != nil {
		return nil, err
	}
	log.DebugWith("registry loaded", map[string]interface{}{
		"source":  s.Config,
		"configs": reg.Len(),
	})

	conns := connmgr.New(reg, connmgr.DriverOpener(s.ConnectTimeout), connmgr.WithLogger(log))
	gw := gateway.New(reg, conns,
		gateway.WithLogger(log),
		gateway.WithQueryTimeout(s.QueryTimeout),
		gateway.WithLimits(s.DefaultLimit, s.MaxLimit))

	return &app{settings: s, log: log, registry: reg, conns: conns, gw: gw}, nil
}

// close shuts every open connection.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := a.conns.CloseAll(ctx); err != nil {
		a.log.WarnWith("closing connections", err, nil)
	}
}
