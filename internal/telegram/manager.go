package telegram

import (
	"context"
	"sync"

	"github.com/blockedby/tg-digest/internal/config"
	"github.com/blockedby/tg-digest/internal/logger"
	"github.com/celestix/gotgproto"
	"github.com/gotd/td/tg"
	"gorm.io/gorm"
)

// Status represents the Telegram client status.
type Status string

// Status constants define the possible states of the Telegram client.
const (
	StatusInitializing Status = "INITIALIZING"
	StatusReady        Status = "READY"
	StatusUnauthorized Status = "UNAUTHORIZED"
)

// ClientFactory is a function that creates a telegram client.
type ClientFactory func(ctx context.Context, cfg *config.Config, db *gorm.DB) (*gotgproto.Client, error)

// Manager restores an existing session and owns the protocol client lifecycle.
// Acquiring a session (phone or QR login) happens outside this program.
type Manager struct {
	client *gotgproto.Client
	db     *gorm.DB
	cfg    *config.Config
	log    *logger.Logger

	status Status
	mu     sync.RWMutex

	clientFactory ClientFactory
}

// NewManager creates a new Telegram Manager. db may be nil when the session
// comes from TG_SESSION_STRING.
func NewManager(cfg *config.Config, db *gorm.DB) *Manager {
	return &Manager{
		db:            db,
		cfg:           cfg,
		log:           logger.Get(),
		status:        StatusInitializing,
		clientFactory: NewPersistentClient,
	}
}

// SetClientFactory allows overriding the client creation logic (e.g. for testing).
func (m *Manager) SetClientFactory(f ClientFactory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clientFactory = f
}

// GetStatus returns the current Telegram client status.
func (m *Manager) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// GetClient returns the underlying Telegram client.
func (m *Manager) GetClient() *gotgproto.Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client
}

// API returns the raw tg.Client for direct API calls.
func (m *Manager) API() (*tg.Client, error) {
	client := m.GetClient()
	if client == nil {
		return nil, ErrNotAuthorized
	}
	return client.API(), nil
}

// Init restores the session from TG_SESSION_STRING or the sessions table.
// Without a session the manager stays Unauthorized and Init returns nil;
// callers check GetStatus.
func (m *Manager) Init(ctx context.Context) error {
	m.setStatus(StatusInitializing)

	if m.cfg.TGSessionStr == "" {
		if !m.hasStoredSession() {
			m.log.Info().Msg("telegram: no session configured or stored")
			m.setStatus(StatusUnauthorized)
			return nil
		}
	}

	m.mu.RLock()
	factory := m.clientFactory
	m.mu.RUnlock()

	client, err := factory(ctx, m.cfg, m.db)
	if err != nil {
		m.log.Warn().Err(err).Msg("telegram: failed to initialize client, switching to unauthorized mode")
		m.setStatus(StatusUnauthorized)
		return nil
	}

	m.mu.Lock()
	m.client = client
	m.status = StatusReady
	m.mu.Unlock()

	m.log.Info().Msg("telegram: client is ready")
	return nil
}

func (m *Manager) hasStoredSession() bool {
	if m.db == nil {
		return false
	}
	var count int64
	if err := m.db.Table("sessions").Count(&count).Error; err != nil {
		m.log.Warn().Err(err).Msg("telegram: failed to check sessions table")
		return false
	}
	return count > 0
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

// Stop stops the Telegram client.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		m.client.Stop()
		m.client = nil
	}
}
