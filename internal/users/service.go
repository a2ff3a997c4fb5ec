package users

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/agentstore/internal/auth"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrInvalidIdentity indicates the claims did not contain a usable identifier.
var ErrInvalidIdentity = errors.New("users: invalid identity")

// ServiceConfig describes the dependencies required for viewer resolution.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service maps session claims onto canonical viewer ids and keeps the viewer's
// display name current.
type Service struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
	cache  sync.Map
}

// NewService constructs the resolver.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, now: clock, logger: logger}, nil
}

// Resolve returns the canonical viewer for the claims, creating a profile the
// first time a provider+subject pair is seen. A "provider:subject" user id is
// reduced to its subject so that ids stay stable across login providers.
func (s *Service) Resolve(ctx context.Context, claims auth.SessionClaims) (Resolved, error) {
	provider, subject := claims.ProviderSubject()
	if subject == "" {
		return Resolved{}, ErrInvalidIdentity
	}
	displayName := claims.ViewerName()

	cacheKey := provider + ":" + subject
	if cached, ok := s.cache.Load(cacheKey); ok {
		if resolved, ok := cached.(Resolved); ok && (displayName == "" || displayName == resolved.DisplayName) {
			return resolved, nil
		}
	}

	database := s.db.WithContext(ctx)
	var profile Profile
	err := database.Where("provider = ? AND subject = ?", provider, subject).First(&profile).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		profile = Profile{
			Provider:    provider,
			Subject:     subject,
			ViewerID:    subject,
			Email:       normalize(claims.UserEmail),
			DisplayName: displayName,
			LastSeenAt:  s.now().UTC(),
		}
		if err := database.Create(&profile).Error; err != nil {
			return Resolved{}, err
		}
	case err != nil:
		return Resolved{}, err
	default:
		updates := map[string]interface{}{"last_seen_at": s.now().UTC()}
		if email := normalize(claims.UserEmail); email != "" && email != profile.Email {
			updates["email"] = email
		}
		if displayName != "" && displayName != profile.DisplayName {
			updates["display_name"] = displayName
			profile.DisplayName = displayName
		}
		if err := database.Model(&Profile{}).
			Where("provider = ? AND subject = ?", provider, subject).
			Updates(updates).Error; err != nil {
			s.logger.Warn("viewer profile update failed",
				zap.String("viewer_id", profile.ViewerID),
				zap.Error(err))
		}
	}

	resolved := Resolved{ViewerID: profile.ViewerID, DisplayName: profile.DisplayName}
	if resolved.DisplayName == "" {
		resolved.DisplayName = resolved.ViewerID
	}
	s.cache.Store(cacheKey, resolved)
	return resolved, nil
}
