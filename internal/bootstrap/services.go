// Package bootstrap assembles the ticketing services shared by the api, cron-worker and doorctl
// binaries.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/maskball-tickets/internal/admin"
	"github.com/angelmondragon/maskball-tickets/internal/checkout"
	"github.com/angelmondragon/maskball-tickets/internal/door"
	"github.com/angelmondragon/maskball-tickets/internal/inventory"
	"github.com/angelmondragon/maskball-tickets/internal/ledger"
	"github.com/angelmondragon/maskball-tickets/internal/orders"
	"github.com/angelmondragon/maskball-tickets/pkg/catalog"
	"github.com/angelmondragon/maskball-tickets/pkg/config"
	"github.com/angelmondragon/maskball-tickets/pkg/db"
	"github.com/angelmondragon/maskball-tickets/pkg/logger"
	"github.com/angelmondragon/maskball-tickets/pkg/metrics"
	"github.com/angelmondragon/maskball-tickets/pkg/outbox"
	"github.com/angelmondragon/maskball-tickets/pkg/stripe"
)

// Services is the wired domain layer.
type Services struct {
	Inventory inventory.Service
	Orders    orders.Store
	Checkout  checkout.Service
	Admin     admin.Service
	Door      door.Service
	Outbox    *outbox.Service
	Stripe    *stripe.Client
}

// Params selects what to build. A nil Registerer skips metric registration.
type Params struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *db.Client
	Registerer prometheus.Registerer
	// SeedCatalog upserts the ticket catalog file into ticket_types.
	SeedCatalog bool
}

// Build wires every service over one database client.
func Build(ctx context.Context, params Params) (*Services, error) {
	cfg, logg, dbClient := params.Config, params.Logger, params.DB
	if cfg == nil || dbClient == nil {
		return nil, fmt.Errorf("config and database client are required")
	}

	journal, err := ledger.NewJournal(ledger.NewRepository(dbClient.DB()))
	if err != nil {
		return nil, err
	}
	inv, err := inventory.NewService(inventory.ServiceParams{
		TxRunner: dbClient,
		Repo:     inventory.NewRepository(dbClient.DB()),
		Journal:  journal,
		Metrics:  metrics.NewLedgerMetrics(params.Registerer),
		Logger:   logg,
	})
	if err != nil {
		return nil, fmt.Errorf("inventory service: %w", err)
	}

	if params.SeedCatalog {
		cat, err := catalog.Load(cfg.Tickets.CatalogPath)
		if err != nil {
			return nil, fmt.Errorf("load ticket catalog: %w", err)
		}
		if err := inv.Seed(ctx, cat); err != nil {
			return nil, fmt.Errorf("seed ticket catalog: %w", err)
		}
	}

	store, err := orders.NewStore(orders.NewRepository(dbClient.DB()), dbClient, logg)
	if err != nil {
		return nil, fmt.Errorf("order store: %w", err)
	}
	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	fees, err := checkout.NewFeeSchedule(cfg.Tickets)
	if err != nil {
		return nil, fmt.Errorf("fee schedule: %w", err)
	}

	out := &Services{Inventory: inv, Orders: store, Outbox: outboxSvc}

	// left as a nil interface when Stripe is off so checkout falls back to simulation
	var provider checkout.Provider
	if cfg.Stripe.Enabled() {
		client, err := stripe.NewClient(ctx, cfg.Stripe, logg)
		if err != nil {
			return nil, fmt.Errorf("stripe client: %w", err)
		}
		sp, err := checkout.NewStripeProvider(client.API())
		if err != nil {
			return nil, fmt.Errorf("stripe provider: %w", err)
		}
		provider = sp
		out.Stripe = client
	} else if logg != nil {
		logg.Warn(ctx, "stripe not configured, card payments are simulated")
	}

	out.Checkout, err = checkout.NewService(checkout.ServiceParams{
		TxRunner:       dbClient,
		Inventory:      inv,
		Orders:         store,
		Sessions:       checkout.NewRepository(dbClient.DB()),
		Outbox:         outboxSvc,
		Provider:       provider,
		ForceSimulated: cfg.FeatureFlags.SimulatePayments,
		Fees:           fees,
		OrderNumbers:   checkout.NewOrderNumberGenerator(cfg.Tickets.OrderPrefix),
		Currency:       cfg.Tickets.Currency,
		ProofMaxBytes:  cfg.Tickets.ProofMaxBytes,
		ReservationTTL: cfg.Tickets.ReservationTTL,
		Metrics:        metrics.NewCheckoutMetrics(params.Registerer),
		Logger:         logg,
	})
	if err != nil {
		return nil, fmt.Errorf("checkout service: %w", err)
	}

	if cfg.Staff.OverrideTokenHash == "" && logg != nil {
		logg.Warn(ctx, "admin override token not configured, verified orders cannot be reverted")
	}
	out.Admin, err = admin.NewService(admin.ServiceParams{
		TxRunner:    dbClient,
		Orders:      store,
		Inventory:   inv,
		Outbox:      outboxSvc,
		Override:    admin.NewHashedOverride(cfg.Staff.OverrideTokenHash),
		Logger:      logg,
		DeadLetters: outbox.NewDLQRepository(dbClient.DB()),
	})
	if err != nil {
		return nil, fmt.Errorf("admin service: %w", err)
	}

	out.Door, err = door.NewService(door.ServiceParams{
		Orders:  store,
		Metrics: metrics.NewDoorMetrics(params.Registerer),
		Logger:  logg,
	})
	if err != nil {
		return nil, fmt.Errorf("door service: %w", err)
	}
	return out, nil
}

// WebhookGuardTTL bounds how long delivered Stripe event ids are remembered.
const WebhookGuardTTL = 72 * time.Hour
