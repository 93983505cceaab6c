// Package stripe configures the stripe-go client used for card checkout and webhook
// verification.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/maskball-tickets/pkg/config"
	"github.com/angelmondragon/maskball-tickets/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errSecretRequired   = errors.New("stripe webhook secret is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

// Client holds the Stripe API client and the webhook signing secret. A test-mode key is
// refused in live mode and vice versa, so a staging deploy cannot take real payments.
type Client struct {
	api           *stripe.Client
	environment   string
	signingSecret string
}

func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env := cfg.Environment()
	apiKey := strings.TrimSpace(cfg.APIKey)
	signingSecret := strings.TrimSpace(cfg.Secret)
	switch {
	case env != testEnv && env != liveEnv:
		return nil, errInvalidStripeEnv
	case apiKey == "":
		return nil, errAPIKeyRequired
	case signingSecret == "":
		return nil, errSecretRequired
	}
	if err := checkKeyMode(env, apiKey); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(signingSecret, "whsec_") && logg != nil {
		logg.Warn(ctx, "stripe webhook secret does not look like a whsec_ signing secret")
	}

	retries := int64(cfg.MaxRetries)
	if retries < 0 {
		retries = 0
	}
	backends := stripe.NewBackendsWithConfig(&stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(retries),
		LeveledLogger:     leveledLogger{logg: logg},
	})

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"stripe_env": env, "max_retries": retries}), "stripe client initialized")
	}
	return &Client{
		api:           stripe.NewClient(apiKey, stripe.WithBackends(backends)),
		environment:   env,
		signingSecret: signingSecret,
	}, nil
}

func (c *Client) API() *stripe.Client {
	if c == nil {
		return nil
	}
	return c.api
}

// Environment is "test" or "live".
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

// checkKeyMode accepts secret (sk_) and restricted (rk_) keys of the matching mode.
func checkKeyMode(env, key string) error {
	for _, prefix := range []string{"sk_", "rk_"} {
		if strings.HasPrefix(key, prefix+env+"_") {
			return nil
		}
	}
	return fmt.Errorf("stripe environment %q requires an sk_%s or rk_%s key", env, env, env)
}

// leveledLogger sends stripe-go's own logging through the service logger. Request chatter
// is dropped to debug.
type leveledLogger struct {
	logg *logger.Logger
}

func (l leveledLogger) Debugf(format string, v ...any) {
	if l.logg != nil {
		l.logg.Debug(context.Background(), "stripe: "+fmt.Sprintf(format, v...))
	}
}

func (l leveledLogger) Infof(format string, v ...any) {
	l.Debugf(format, v...)
}

func (l leveledLogger) Warnf(format string, v ...any) {
	if l.logg != nil {
		l.logg.Warn(context.Background(), "stripe: "+fmt.Sprintf(format, v...))
	}
}

func (l leveledLogger) Errorf(format string, v ...any) {
	if l.logg != nil {
		l.logg.Error(context.Background(), "stripe api error", fmt.Errorf(format, v...))
	}
}
