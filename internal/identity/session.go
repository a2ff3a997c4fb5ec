package identity

import (
	"context"
	"errors"
	"sync"

	"github.com/MarcoPoloResearchLab/agentstore/internal/auth"
	"go.uber.org/zap"
)

var errMissingValidator = errors.New("identity: token validator required")

// TokenValidator validates a session token and returns its claims.
type TokenValidator interface {
	ValidateToken(token string) (auth.SessionClaims, error)
}

// SessionConfig configures a Session.
type SessionConfig struct {
	Validator TokenValidator
	Logger    *zap.Logger
}

// Session is the in-process identity source. Subscribers only ever need the
// latest viewer, so a slow subscriber has its pending value replaced instead of
// blocking the publisher.
type Session struct {
	mu          sync.RWMutex
	current     Viewer
	validator   TokenValidator
	logger      *zap.Logger
	subscribers map[int64]chan Viewer
	nextID      int64
}

// NewSession constructs a session with no viewer signed in.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Validator == nil {
		return nil, errMissingValidator
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		current:     NoViewer,
		validator:   cfg.Validator,
		logger:      logger,
		subscribers: make(map[int64]chan Viewer),
	}, nil
}

// CurrentViewer returns the signed-in viewer or NoViewer.
func (s *Session) CurrentViewer() Viewer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// SignInWithToken validates the session token and publishes the resulting
// viewer under the same canonical id the API stores records with.
func (s *Session) SignInWithToken(token string) (Viewer, error) {
	claims, err := s.validator.ValidateToken(token)
	if err != nil {
		s.logger.Info("session token rejected", zap.Error(err))
		return NoViewer, err
	}
	viewer, err := SignedIn(claims.ViewerID(), claims.ViewerName())
	if err != nil {
		return NoViewer, err
	}
	s.set(viewer)
	return viewer, nil
}

// SignOut clears the viewer and notifies subscribers.
func (s *Session) SignOut() {
	s.set(NoViewer)
}

// Subscribe returns a stream of viewer changes that closes when ctx is done or
// the returned cleanup is called.
func (s *Session) Subscribe(ctx context.Context) (<-chan Viewer, func()) {
	stream := make(chan Viewer, 1)
	s.mu.Lock()
	s.nextID++
	subscriberID := s.nextID
	s.subscribers[subscriberID] = stream
	s.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, subscriberID)
			close(stream)
			s.mu.Unlock()
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return stream, cleanup
}

func (s *Session) set(viewer Viewer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == viewer {
		return
	}
	s.current = viewer
	for _, stream := range s.subscribers {
		select {
		case stream <- viewer:
		default:
			select {
			case <-stream:
			default:
			}
			stream <- viewer
		}
	}
}
