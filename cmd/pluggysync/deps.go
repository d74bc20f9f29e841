package main

import (
	"github.com/rs/zerolog"

	"pluggysync/internal/domain/itemsync"
	"pluggysync/internal/infrastructure/forwarder"
	"pluggysync/internal/infrastructure/pluggy"
	"pluggysync/internal/infrastructure/sqlstore"
	"pluggysync/internal/shared/config"
)

// Dependencies holds all initialized sync components.
type Dependencies struct {
	PluggyClient *pluggy.Client
	Writer       *sqlstore.TransactionWriter
	Forwarder    *forwarder.Client

	Service *itemsync.Service
}

// NewDependencies wires the sync service from configuration. The database is
// only opened inside a Write call, so a bad DATABASE_URL is reported here and
// then surfaces as a persistence failure of the run.
func NewDependencies(cfg *config.Config, log zerolog.Logger) *Dependencies {
	if driver, _, err := sqlstore.ParseDSN(cfg.Database.URL); err != nil {
		log.Warn().Err(err).Msg("DATABASE_URL is not usable; transactions will not be saved")
	} else {
		log.Debug().Str("driver", driver).Msg("Database driver selected")
	}

	pluggyClient := pluggy.NewClient(pluggy.ClientConfig{
		BaseURL: cfg.Pluggy.BaseURL,
		Timeout: cfg.Pluggy.Timeout,
		Logger:  log,
	})

	writer := sqlstore.NewTransactionWriter(cfg.Database.URL, log)

	fwd := forwarder.NewClient(forwarder.Config{
		TargetEndpoint: cfg.Forwarding.TargetEndpoint,
		Timeout:        cfg.Forwarding.Timeout,
		Logger:         log,
	})

	service := itemsync.NewService(
		pluggyClient,
		itemsync.NewAggregator(pluggyClient, cfg.Sync.Workers),
		writer,
		fwd,
		itemsync.Credentials{
			ClientID:     cfg.Pluggy.ClientID,
			ClientSecret: cfg.Pluggy.ClientSecret,
		},
		cfg.Pluggy.ItemID,
		log,
	)

	return &Dependencies{
		PluggyClient: pluggyClient,
		Writer:       writer,
		Forwarder:    fwd,
		Service:      service,
	}
}
