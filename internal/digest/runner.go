// Package digest runs the daily extract: collect, report, persist, load.
package digest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/blockedby/tg-digest/internal/collector"
	"github.com/blockedby/tg-digest/internal/logger"
	"github.com/blockedby/tg-digest/internal/models"
	"github.com/blockedby/tg-digest/internal/report"
	"github.com/blockedby/tg-digest/internal/storage"
	"github.com/blockedby/tg-digest/internal/telegram"
	"github.com/blockedby/tg-digest/internal/window"
	"github.com/google/uuid"
)

// ChatResolver finds the target chat.
type ChatResolver interface {
	ResolveChannel(ctx context.Context, username string) (*telegram.Channel, error)
}

// Extractor collects the messages of a window.
type Extractor interface {
	Extract(ctx context.Context, chat *telegram.Channel, win window.Window) (*collector.Extract, error)
	MemberCount(ctx context.Context, chat *telegram.Channel) (int, bool)
}

// Loader writes datasets to the relational store.
type Loader interface {
	LoadMessages(ctx context.Context, dateLabel string, rows []models.ExtractRow) (int64, error)
	LoadMemberCount(ctx context.Context, dateLabel string, snaps []models.MemberCountSnapshot) (int64, error)
	LoadReport(ctx context.Context, dateLabel string, rows []models.ReportRow) (int64, error)
}

// EventPublisher publishes run events
type EventPublisher interface {
	PublishRunCompleted(ctx context.Context, event RunCompletedEvent) error
}

// RunCompletedEvent is published after a successful run.
type RunCompletedEvent struct {
	RunID           uuid.UUID        `json:"run_id"`
	Chat            string           `json:"chat"`
	DateLabel       string           `json:"date_label"`
	Topics          int              `json:"topics"`
	Messages        int              `json:"messages"`
	AbandonedTopics []int            `json:"abandoned_topics,omitempty"`
	MembersCount    *int64           `json:"members_count,omitempty"`
	Files           []string         `json:"files"`
	Loaded          map[string]int64 `json:"loaded,omitempty"`
	CompletedAt     time.Time        `json:"completed_at"`
}

// Table names reported by Load.
const (
	TableMessages    = "telegram_messages_yday"
	TableMemberCount = "telegram_member_count_daily"
	TableReport      = "telegram_yday_report"
)

// Runner orchestrates one daily run.
type Runner struct {
	target    string
	chats     ChatResolver
	extractor Extractor
	store     *storage.ParquetStore
	loader    Loader         // nil disables the relational load
	publisher EventPublisher // nil disables events
	loc       *time.Location
	now       func() time.Time
	log       *logger.Logger
}

// NewRunner creates a runner for the chat named target.
func NewRunner(
	target string,
	chats ChatResolver,
	extractor Extractor,
	store *storage.ParquetStore,
	loader Loader,
	publisher EventPublisher,
	loc *time.Location,
	log *logger.Logger,
) *Runner {
	if log == nil {
		log = logger.Get()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Runner{
		target:    target,
		chats:     chats,
		extractor: extractor,
		store:     store,
		loader:    loader,
		publisher: publisher,
		loc:       loc,
		now:       time.Now,
		log:       log,
	}
}

// SetClock overrides the time source (e.g. for testing).
func (r *Runner) SetClock(now func() time.Time) {
	r.now = now
}

// Run processes the civil day before now in the report zone.
func (r *Runner) Run(ctx context.Context) (*RunCompletedEvent, error) {
	return r.RunWindow(ctx, window.Yesterday(r.now(), r.loc))
}

// RunWindow extracts win, writes the day's datasets, loads them and publishes
// the completion event. With no messages in the window only the member count
// snapshot is written.
func (r *Runner) RunWindow(ctx context.Context, win window.Window) (*RunCompletedEvent, error) {
	event := &RunCompletedEvent{
		RunID:     uuid.New(),
		Chat:      r.target,
		DateLabel: win.DateLabel(),
	}
	log := r.log.WithRun(event.RunID.String())

	log.Info().
		Str("date_label", event.DateLabel).
		Time("start_utc", win.Start).
		Time("end_utc", win.End).
		Msg("run started")

	chat, err := r.chats.ResolveChannel(ctx, r.target)
	if err != nil {
		return nil, fmt.Errorf("resolve chat: %w", err)
	}
	if !chat.IsForum {
		log.Warn().Str("chat", chat.Username).Msg("chat is not a forum, topic listing may be empty")
	}

	extract, err := r.extractor.Extract(ctx, chat, win)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	event.Topics = len(extract.Topics)
	event.Messages = len(extract.Rows)
	event.AbandonedTopics = extract.AbandonedTopics

	fileLabel := win.FileLabel()
	if extract.Empty() {
		log.Info().Msg("no messages in window, skipping extract and report")
		// files of an earlier run of the same day must not be loaded again
		for _, dataset := range []string{storage.DatasetMessages, storage.DatasetReport} {
			if err := r.store.Remove(dataset, fileLabel); err != nil {
				return nil, fmt.Errorf("clear stale %s: %w", dataset, err)
			}
		}
	} else {
		path, err := r.store.WriteMessages(fileLabel, extract.Rows)
		if err != nil {
			return nil, fmt.Errorf("save messages: %w", err)
		}
		event.Files = append(event.Files, path)

		rows := report.Build(extract.Rows, extract.Topics, event.DateLabel)
		path, err = r.store.WriteReport(fileLabel, rows)
		if err != nil {
			return nil, fmt.Errorf("save report: %w", err)
		}
		event.Files = append(event.Files, path)
	}

	snap := models.MemberCountSnapshot{
		DateLabel:  event.DateLabel,
		ChatID:     chat.ID,
		ChatTitle:  chat.Title,
		TakenAtUTC: r.now().UTC().Format(time.RFC3339),
	}
	if count, ok := r.extractor.MemberCount(ctx, chat); ok {
		n := int64(count)
		snap.MembersCount = &n
		event.MembersCount = &n
	}
	path, err := r.store.WriteMemberCount(fileLabel, snap)
	if err != nil {
		return nil, fmt.Errorf("save member count: %w", err)
	}
	event.Files = append(event.Files, path)

	if r.loader != nil {
		loaded, err := r.Load(ctx, fileLabel)
		if err != nil {
			return nil, err
		}
		event.Loaded = loaded
	}

	event.CompletedAt = r.now().UTC()
	if r.publisher != nil {
		if err := r.publisher.PublishRunCompleted(ctx, *event); err != nil {
			log.Warn().Err(err).Msg("failed to publish run completed event")
		}
	}

	log.Info().
		Int("topics", event.Topics).
		Int("messages", event.Messages).
		Ints("abandoned_topics", event.AbandonedTopics).
		Msg("run completed")
	return event, nil
}

// Load reads the Parquet files of fileLabel (YYYYMMDD) and loads every present
// dataset. Missing files are skipped. Returns rows inserted per table.
func (r *Runner) Load(ctx context.Context, fileLabel string) (map[string]int64, error) {
	if r.loader == nil {
		return nil, errors.New("relational store not configured")
	}

	results := make(map[string]int64)

	messagesPath := r.store.Path(storage.DatasetMessages, fileLabel)
	dateLabel, ok := window.LabelFromFileName(filepath.Base(messagesPath))
	if !ok {
		return nil, fmt.Errorf("invalid file label %q", fileLabel)
	}

	msgs, err := r.store.ReadMessages(fileLabel)
	switch {
	case errors.Is(err, storage.ErrDatasetMissing):
		r.log.Info().Str("dataset", storage.DatasetMessages).Msg("skip messages: parquet not found")
	case err != nil:
		return nil, fmt.Errorf("read messages: %w", err)
	default:
		n, err := r.loader.LoadMessages(ctx, dateLabel, msgs)
		if err != nil {
			return nil, err
		}
		results[TableMessages] = n
	}

	snaps, err := r.store.ReadMemberCount(fileLabel)
	switch {
	case errors.Is(err, storage.ErrDatasetMissing):
		r.log.Info().Str("dataset", storage.DatasetMemberCount).Msg("skip member count: parquet not found")
	case err != nil:
		return nil, fmt.Errorf("read member count: %w", err)
	default:
		n, err := r.loader.LoadMemberCount(ctx, dateLabel, snaps)
		if err != nil {
			return nil, err
		}
		results[TableMemberCount] = n
	}

	rows, err := r.store.ReadReport(fileLabel)
	switch {
	case errors.Is(err, storage.ErrDatasetMissing):
		r.log.Info().Str("dataset", storage.DatasetReport).Msg("skip report: parquet not found")
	case err != nil:
		return nil, fmt.Errorf("read report: %w", err)
	default:
		n, err := r.loader.LoadReport(ctx, dateLabel, rows)
		if err != nil {
			return nil, err
		}
		results[TableReport] = n
	}

	return results, nil
}
