package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/dianabot-core/internal/config"
	"github.com/tbourn/dianabot-core/internal/events"
	"github.com/tbourn/dianabot-core/internal/notify"
	"github.com/tbourn/dianabot-core/internal/repo"
	"github.com/tbourn/dianabot-core/internal/services"
)

// App is the assembled core: storage, bus, coordinator and the optional
// external observers.
type App struct {
	Config    config.Config
	DB        *gorm.DB
	Bus       *events.Bus
	Coord     *services.Coordinator
	Forwarder *notify.Forwarder
}

// Build opens and migrates the database and wires every component.
// Observers that cannot connect are logged and left out.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open db %s: %w", cfg.DBPath, err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		closeDB(db)
		return nil, fmt.Errorf("migrate: %w", err)
	}

	bus := events.NewBus(events.WithWorkers(cfg.BusWorkers), events.WithLogger(log.Logger))
	ledger := &services.LedgerService{DB: db}
	prog := &services.ProgressionService{
		DB:           db,
		Rules:        cfg.Progression.Rules,
		HistoryDepth: cfg.Progression.HistoryDepth,
	}
	tokens := &services.TokenService{
		DB:         db,
		Tiers:      cfg.Tiers,
		SigningKey: []byte(cfg.Tokens.SigningKey),
	}
	coord := services.NewCoordinator(db, bus, ledger, prog, tokens, services.CoordinatorConfig{
		Bucket:     cfg.Interactions.Bucket,
		ReceiptTTL: cfg.Interactions.ReceiptTTL,
		Rewards:    cfg.Rewards,
	})

	app := &App{Config: cfg, DB: db, Bus: bus, Coord: coord}
	if fw := buildForwarder(ctx, cfg); fw != nil {
		fw.Attach(bus)
		app.Forwarder = fw
	}
	return app, nil
}

func buildForwarder(ctx context.Context, cfg config.Config) *notify.Forwarder {
	var pubs []notify.Publisher
	if cfg.Redis.Enabled {
		p, err := notify.NewRedisPublisher(ctx, cfg.Redis.Addr, cfg.Redis.Channel)
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis observer disabled")
		} else {
			pubs = append(pubs, p)
		}
	}
	if cfg.AMQP.Enabled {
		p, err := notify.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Queue)
		if err != nil {
			log.Warn().Err(err).Str("queue", cfg.AMQP.Queue).Msg("amqp observer disabled")
		} else {
			pubs = append(pubs, p)
		}
	}
	if len(pubs) == 0 {
		return nil
	}
	fw := notify.NewForwarder(pubs...)
	for _, p := range fw.Publishers {
		log.Info().Str("publisher", p.Name()).Msg("observer attached")
	}
	return fw
}

// Close releases observers and the database.
func (a *App) Close() error {
	var errs []error
	if a.Forwarder != nil {
		errs = append(errs, a.Forwarder.Close())
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		errs = append(errs, sqlDB.Close())
	}
	return errors.Join(errs...)
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
