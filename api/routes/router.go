package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/maskball-tickets/api/controllers"
	webhookcontrollers "github.com/angelmondragon/maskball-tickets/api/controllers/webhooks"
	"github.com/angelmondragon/maskball-tickets/api/middleware"
	"github.com/angelmondragon/maskball-tickets/internal/admin"
	"github.com/angelmondragon/maskball-tickets/internal/auth"
	checkoutsvc "github.com/angelmondragon/maskball-tickets/internal/checkout"
	"github.com/angelmondragon/maskball-tickets/internal/door"
	"github.com/angelmondragon/maskball-tickets/internal/inventory"
	"github.com/angelmondragon/maskball-tickets/pkg/config"
	"github.com/angelmondragon/maskball-tickets/pkg/db/models"
	"github.com/angelmondragon/maskball-tickets/pkg/enums"
	"github.com/angelmondragon/maskball-tickets/pkg/logger"
	"github.com/angelmondragon/maskball-tickets/pkg/metrics"
	"github.com/angelmondragon/maskball-tickets/pkg/outbox/idempotency"
	"github.com/angelmondragon/maskball-tickets/pkg/redis"
	stripepkg "github.com/stripe/stripe-go/v84"
)

// Inventory is the catalog view the storefront reads.
type Inventory interface {
	List(ctx context.Context) ([]models.TicketType, error)
	CheckCartAvailability(ctx context.Context, items []inventory.Item) (inventory.CartCheck, error)
}

// StripeWebhookService applies verified Stripe events.
type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripepkg.Event) error
}

// WebhookGuard dedupes Stripe deliveries.
type WebhookGuard interface {
	Claim(ctx context.Context, eventID string) (idempotency.State, error)
	Confirm(ctx context.Context, eventID string) error
	Release(ctx context.Context, eventID string) error
}

// SigningSecretSource exposes the Stripe webhook signing secret.
type SigningSecretSource interface {
	SigningSecret() string
}

// Deps carries everything the router wires. Optional members may be nil: Redis disables
// idempotency, rate limiting and token revocation; Stripe members disable the webhook.
type Deps struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          controllers.Pinger
	Redis       *redis.Client
	Gatherer    prometheus.Gatherer
	HTTPMetrics *metrics.HTTPMetrics

	Inventory Inventory
	Checkout  checkoutsvc.Service
	Auth      auth.Service
	Admin     admin.Service
	Door      door.Service

	StripeSigner  SigningSecretSource
	StripeWebhook StripeWebhookService
	WebhookGuard  WebhookGuard
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, deps.HTTPMetrics),
		middleware.CORS(cfg.App.AllowedOrigins()),
	)

	// typed nils would defeat the nil checks inside the middleware
	var (
		redisPinger controllers.Pinger
		idemStore   redis.IdempotencyStore
		revocations middleware.RevocationChecker
	)
	if deps.Redis != nil {
		redisPinger = deps.Redis
		idemStore = deps.Redis
		revocations = deps.Redis
	}
	rateStore := rateLimitStore(deps.Redis)

	loginThrottle := middleware.NewLoginThrottle(cfg.AuthRateLimit)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, redisPinger))
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Get("/api/public/ping", controllers.PublicPing())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Idempotency(idemStore, logg))

		r.Route("/ticket-types", func(r chi.Router) {
			r.Get("/", controllers.TicketTypes(deps.Inventory, logg))
			r.Post("/availability", controllers.TicketAvailability(deps.Inventory, logg))
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/fees", controllers.CheckoutFees(deps.Checkout, logg))
			r.Post("/paynow", controllers.CheckoutPayNow(deps.Checkout, cfg.Tickets.ProofMaxBytes, logg))
			r.Post("/card/intents", controllers.CheckoutCardIntent(deps.Checkout, logg))
			r.Post("/card/confirm", controllers.CheckoutCardConfirm(deps.Checkout, logg))
		})

		if deps.StripeSigner != nil && deps.StripeWebhook != nil && deps.WebhookGuard != nil {
			r.Post("/webhooks/stripe", webhookcontrollers.StripeWebhook(deps.StripeWebhook, deps.StripeSigner, deps.WebhookGuard, logg))
		}

		r.Route("/staff", func(r chi.Router) {
			r.With(loginThrottle.Middleware(rateStore, logg)).Post("/login", controllers.StaffLogin(deps.Auth, logg))
			r.With(middleware.Auth(cfg.JWT, revocations, logg)).Post("/logout", controllers.StaffLogout(deps.Auth, logg))
			r.With(middleware.Auth(cfg.JWT, revocations, logg)).Get("/ping", controllers.StaffPing())
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, revocations, logg))
			r.Use(middleware.RequireRole(enums.StaffRoleAdmin, logg))
			r.Route("/orders", func(r chi.Router) {
				r.Get("/", controllers.AdminListOrders(deps.Admin, logg))
				r.Get("/stats", controllers.AdminOrderStats(deps.Admin, logg))
				r.Get("/export.csv", controllers.AdminExportOrders(deps.Admin, logg))
				r.Get("/{orderId}", controllers.AdminOrderDetail(deps.Admin, logg))
				r.Get("/{orderId}/proof", controllers.AdminOrderProof(deps.Admin, logg))
				r.Post("/{orderId}/status", controllers.AdminUpdateOrderStatus(deps.Admin, logg))
				r.Delete("/{orderId}", controllers.AdminDeleteOrder(deps.Admin, logg))
			})
			r.Route("/inventory", func(r chi.Router) {
				r.Get("/", controllers.AdminInventoryStats(deps.Admin, logg))
				r.Post("/reset", controllers.AdminResetInventory(deps.Admin, logg))
				r.Get("/reconciliation", controllers.AdminReconcile(deps.Admin, logg))
			})
			r.Route("/notifications/failed", func(r chi.Router) {
				r.Get("/", controllers.AdminListFailedNotifications(deps.Admin, logg))
				r.Post("/{eventId}/requeue", controllers.AdminRequeueNotification(deps.Admin, logg))
			})
		})

		r.Route("/door", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, revocations, logg))
			r.Use(middleware.RequireRole(enums.StaffRoleDoor, logg))
			r.Post("/validate", controllers.DoorValidate(deps.Door, logg))
			r.Post("/qr", controllers.DoorValidateQR(deps.Door, logg))
		})
	})

	return r
}

func rateLimitStore(client *redis.Client) middleware.CounterStore {
	if client == nil {
		return nil
	}
	return client
}
