package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/maskball-tickets/api/responses"
	"github.com/angelmondragon/maskball-tickets/pkg/config"
	"github.com/angelmondragon/maskball-tickets/pkg/enums"
	pkgerrors "github.com/angelmondragon/maskball-tickets/pkg/errors"
	"github.com/angelmondragon/maskball-tickets/pkg/logger"
)

// CounterStore is a fixed-window counter, normally the Redis client.
type CounterStore interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

const maxLoginBody = 8 << 10

// LoginThrottle caps staff login attempts per source address and per role. Every admin
// shares one password, so the role counter bounds guessing even from many addresses.
type LoginThrottle struct {
	window  time.Duration
	perIP   int64
	perRole int64
}

func NewLoginThrottle(cfg config.AuthRateLimitConfig) LoginThrottle {
	return LoginThrottle{
		window:  cfg.LoginWindow,
		perIP:   int64(cfg.LoginIPLimit),
		perRole: int64(cfg.LoginRoleLimit),
	}
}

func (t LoginThrottle) active() bool {
	return t.window > 0 && (t.perIP > 0 || t.perRole > 0)
}

// Middleware returns next unchanged when the throttle is off or no store is configured.
func (t LoginThrottle) Middleware(store CounterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !t.active() || store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if t.perIP > 0 {
				if ip := sourceIP(r); ip != "" {
					if !t.admit(ctx, w, store, logg, "ip:"+ip, t.perIP) {
						return
					}
				}
			}

			if t.perRole > 0 {
				body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxLoginBody))
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
				if role, ok := loginRole(body); ok {
					if !t.admit(ctx, w, store, logg, "role:"+string(role), t.perRole) {
						return
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// admit counts one attempt against subject and writes a 429 when the window is spent.
func (t LoginThrottle) admit(ctx context.Context, w http.ResponseWriter, store CounterStore, logg *logger.Logger, subject string, limit int64) bool {
	count, err := store.IncrWithTTL(ctx, store.RateLimitKey("login:"+subject), t.window)
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
		return false
	}
	if count <= limit {
		return true
	}
	if logg != nil {
		logg.Warn(logg.WithFields(ctx, map[string]any{
			"subject":        subject,
			"attempts":       count,
			"limit":          limit,
			"window_seconds": int(t.window.Seconds()),
		}), "auth.login_throttled")
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(t.window.Seconds())))
	responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many login attempts, try again later"))
	return false
}

// loginRole only recognises real roles so arbitrary input cannot mint new counters.
func loginRole(body []byte) (enums.StaffRole, bool) {
	var req struct {
		Role string `json:"role"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return "", false
	}
	role := enums.StaffRole(strings.ToLower(strings.TrimSpace(req.Role)))
	return role, role.IsValid()
}

// sourceIP prefers the right-most X-Forwarded-For hop, which is the one our own proxy
// appended; entries further left are client supplied.
func sourceIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			if ip := net.ParseIP(strings.TrimSpace(hops[i])); ip != nil {
				return ip.String()
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
