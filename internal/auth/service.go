// Package auth signs staff in with the shared role passwords and signs them out again.
package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	pkgAuth "github.com/angelmondragon/maskball-tickets/pkg/auth"
	"github.com/angelmondragon/maskball-tickets/pkg/config"
	"github.com/angelmondragon/maskball-tickets/pkg/enums"
	pkgerrors "github.com/angelmondragon/maskball-tickets/pkg/errors"
	"github.com/angelmondragon/maskball-tickets/pkg/logger"
	"github.com/angelmondragon/maskball-tickets/pkg/security"
)

const invalidCredentialsMessage = "invalid credentials"

// Service defines the behavior needed by the staff auth controllers.
type Service interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResponse, error)
	Logout(ctx context.Context, claims *pkgAuth.StaffClaims) error
}

type tokenRevoker interface {
	RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error
}

// ServiceParams bundles the dependencies required to build an auth service. Revoker may be nil,
// in which case logout only lets the token expire.
type ServiceParams struct {
	Staff     config.StaffConfig
	JWTConfig config.JWTConfig
	Revoker   tokenRevoker
	Logger    *logger.Logger
	Now       func() time.Time

	// Password, when set, is the argon2id cost that configured hashes are expected to meet.
	Password *config.PasswordConfig
}

type service struct {
	hashes  map[enums.StaffRole]string
	jwtCfg  config.JWTConfig
	revoker tokenRevoker
	logg    *logger.Logger
	now     func() time.Time
}

// NewService constructs a login service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if strings.TrimSpace(params.JWTConfig.Secret) == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	hashes := map[enums.StaffRole]string{
		enums.StaffRoleAdmin: strings.TrimSpace(params.Staff.AdminPasswordHash),
		enums.StaffRoleDoor:  strings.TrimSpace(params.Staff.DoorPasswordHash),
	}
	if err := checkHashes(hashes, params.Password, params.Logger); err != nil {
		return nil, err
	}
	return &service{
		hashes:  hashes,
		jwtCfg:  params.JWTConfig,
		revoker: params.Revoker,
		logg:    params.Logger,
		now:     params.Now,
	}, nil
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	if !req.Role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid staff role")
	}
	hash := s.hashes[req.Role]
	if hash == "" {
		s.logFailure(ctx, req.Role, "role disabled")
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	ok, err := security.VerifyPassword(req.Password, hash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify staff password")
	}
	if !ok {
		s.logFailure(ctx, req.Role, "password mismatch")
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}

	now := s.now().UTC()
	staff := strings.TrimSpace(req.Name)
	if staff == "" {
		staff = string(req.Role)
	}
	token, err := pkgAuth.MintStaffToken(s.jwtCfg, now, pkgAuth.StaffTokenPayload{Staff: staff, Role: req.Role})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithStaff(ctx, staff, string(req.Role)), "staff.login")
	}
	return &LoginResponse{
		AccessToken: token,
		Role:        req.Role,
		Staff:       staff,
		ExpiresAt:   now.Add(time.Duration(s.jwtCfg.ExpirationMinutes) * time.Minute),
	}, nil
}

// Logout revokes the token id for the rest of its lifetime.
func (s *service) Logout(ctx context.Context, claims *pkgAuth.StaffClaims) error {
	if claims == nil || claims.ID == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "missing token")
	}
	if s.revoker == nil {
		return nil
	}
	ttl := claims.Remaining(s.now())
	if ttl == 0 {
		return nil
	}
	if err := s.revoker.RevokeToken(ctx, claims.ID, ttl); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke token")
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithStaff(ctx, claims.Staff, string(claims.Role)), "staff.logout")
	}
	return nil
}

func (s *service) logFailure(ctx context.Context, role enums.StaffRole, reason string) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"role": string(role), "reason": reason}), "staff.login_failed")
}

// checkHashes fails on a malformed staff hash so a typo in the environment surfaces at boot
// rather than as a 500 on the first login. Hashes cheaper than the configured cost only warn.
func checkHashes(hashes map[enums.StaffRole]string, target *config.PasswordConfig, logg *logger.Logger) error {
	for role, hash := range hashes {
		if hash == "" {
			continue
		}
		params, err := security.ParseHash(hash)
		if err != nil {
			return fmt.Errorf("%s password hash: %w", role, err)
		}
		if target != nil && logg != nil && params.WeakerThan(security.ParamsFromConfig(*target)) {
			logg.Warn(logg.WithField(context.Background(), "role", role), "staff password hash is cheaper than the configured argon2 cost; regenerate it with doorctl hash-secret")
		}
	}
	return nil
}
