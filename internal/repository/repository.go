// Package repository loads the daily datasets into the relational store.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/blockedby/tg-digest/internal/logger"
	"github.com/blockedby/tg-digest/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BatchSize is the number of rows per INSERT statement.
const BatchSize = 1000

// Repository writes the three daily tables.
//
// Loads are idempotent: messages are keyed by (topic_id, message_id) and
// duplicates are skipped; member counts and report rows are replaced per date_label.
type Repository struct {
	db  *gorm.DB
	log *logger.Logger
}

// New creates a new Repository.
func New(db *gorm.DB, log *logger.Logger) *Repository {
	if log == nil {
		log = logger.Get()
	}
	return &Repository{db: db, log: log}
}

// Migrate creates the tables and indexes if missing.
func (r *Repository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&MessageRecord{}, &MemberCountRecord{}, &ReportRecord{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// LoadMessages inserts the extract rows of dateLabel and returns how many were new.
func (r *Repository) LoadMessages(ctx context.Context, dateLabel string, rows []models.ExtractRow) (int64, error) {
	day, err := parseLabel(dateLabel)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	records := make([]MessageRecord, 0, len(rows))
	for _, row := range rows {
		sent, err := time.Parse(time.RFC3339, row.DateUTC)
		if err != nil {
			return 0, fmt.Errorf("message %d/%d: parse date_utc: %w", row.TopicID, row.MessageID, err)
		}
		records = append(records, MessageRecord{
			DateLabel:      day,
			TopicID:        row.TopicID,
			TopicTitle:     row.TopicTitle,
			MessageID:      row.MessageID,
			DateUTC:        sent.UTC(),
			SenderID:       row.SenderID,
			SenderUsername: row.SenderUsername,
			Text:           row.Text,
			ReplyToMsgID:   row.ReplyToMsgID,
		})
	}

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&records, BatchSize)
	if res.Error != nil {
		return 0, fmt.Errorf("insert messages: %w", res.Error)
	}

	r.log.Info().
		Str("table", MessageRecord{}.TableName()).
		Int("rows", len(records)).
		Int64("inserted", res.RowsAffected).
		Msg("messages loaded")
	return res.RowsAffected, nil
}

// LoadMemberCount replaces the member count snapshots of dateLabel.
func (r *Repository) LoadMemberCount(ctx context.Context, dateLabel string, snaps []models.MemberCountSnapshot) (int64, error) {
	day, err := parseLabel(dateLabel)
	if err != nil {
		return 0, err
	}

	records := make([]MemberCountRecord, 0, len(snaps))
	for _, s := range snaps {
		taken, err := time.Parse(time.RFC3339, s.TakenAtUTC)
		if err != nil {
			return 0, fmt.Errorf("parse taken_at_utc: %w", err)
		}
		records = append(records, MemberCountRecord{
			DateLabel:    day,
			ChatID:       s.ChatID,
			ChatTitle:    s.ChatTitle,
			MembersCount: s.MembersCount,
			TakenAtUTC:   taken.UTC(),
		})
	}

	n, err := replaceDay(ctx, r.db, day, records)
	if err != nil {
		return 0, fmt.Errorf("load member count: %w", err)
	}
	r.log.Info().Str("table", MemberCountRecord{}.TableName()).Int64("inserted", n).Msg("member count loaded")
	return n, nil
}

// LoadReport replaces the report rows of dateLabel.
func (r *Repository) LoadReport(ctx context.Context, dateLabel string, rows []models.ReportRow) (int64, error) {
	day, err := parseLabel(dateLabel)
	if err != nil {
		return 0, err
	}

	records := make([]ReportRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, ReportRecord{
			DateLabel:      day,
			Metric:         row.Metric,
			TopicID:        row.TopicID,
			TopicTitle:     row.TopicTitle,
			MessageCount:   row.MessageCount,
			SenderID:       row.SenderID,
			SenderUsername: row.SenderUsername,
			RankByMessages: row.RankByMessages,
			Value:          row.Value,
		})
	}

	n, err := replaceDay(ctx, r.db, day, records)
	if err != nil {
		return 0, fmt.Errorf("load report: %w", err)
	}
	r.log.Info().Str("table", ReportRecord{}.TableName()).Int64("inserted", n).Msg("report loaded")
	return n, nil
}

// replaceDay deletes the rows of day and inserts records in one transaction.
func replaceDay[T any](ctx context.Context, db *gorm.DB, day time.Time, records []T) (int64, error) {
	var inserted int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("date_label = ?", day).Delete(new(T)).Error; err != nil {
			return fmt.Errorf("delete day: %w", err)
		}
		if len(records) == 0 {
			return nil
		}
		res := tx.CreateInBatches(&records, BatchSize)
		if res.Error != nil {
			return fmt.Errorf("insert: %w", res.Error)
		}
		inserted = res.RowsAffected
		return nil
	})
	return inserted, err
}

func parseLabel(dateLabel string) (time.Time, error) {
	day, err := time.Parse("2006-01-02", dateLabel)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date label %q: %w", dateLabel, err)
	}
	return day, nil
}
