package telegram

import (
	"context"
	"fmt"

	"github.com/blockedby/tg-digest/internal/config"
	"github.com/celestix/gotgproto"
	"github.com/celestix/gotgproto/sessionMaker"
	"gorm.io/gorm"
)

// NewPersistentClient creates a telegram client from an existing session.
// A TG_SESSION_STRING is used in memory; otherwise the session and peer cache
// live in the database behind db.
func NewPersistentClient(_ context.Context, cfg *config.Config, db *gorm.DB) (*gotgproto.Client, error) {
	opts := &gotgproto.ClientOpts{
		DisableCopyright: true,
	}

	switch {
	case cfg.TGSessionStr != "":
		opts.Session = sessionMaker.StringSession(cfg.TGSessionStr)
		opts.InMemory = true
	case db != nil:
		opts.Session = sessionMaker.SqlSession(db.Dialector)
	default:
		return nil, fmt.Errorf("no session source: set TG_SESSION_STRING or DATABASE_URL")
	}

	client, err := gotgproto.NewClient(
		cfg.TGApiID,
		cfg.TGApiHash,
		gotgproto.ClientTypePhone(""), // empty = use session
		opts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram client: %w", err)
	}

	return client, nil
}
