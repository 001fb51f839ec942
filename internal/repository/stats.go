package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// DayStats counts the stored rows of one date label.
type DayStats struct {
	Messages    int64 `json:"messages"`
	MemberCount int64 `json:"member_count"`
	Report      int64 `json:"report"`
}

// GetDayStats returns the row counts of dateLabel in each table.
func (r *Repository) GetDayStats(ctx context.Context, dateLabel string) (*DayStats, error) {
	day, err := parseLabel(dateLabel)
	if err != nil {
		return nil, err
	}

	stats := &DayStats{}
	db := r.db.WithContext(ctx)
	for _, q := range []struct {
		model any
		dst   *int64
	}{
		{&MessageRecord{}, &stats.Messages},
		{&MemberCountRecord{}, &stats.MemberCount},
		{&ReportRecord{}, &stats.Report},
	} {
		if err := countDay(db, q.model, day, q.dst); err != nil {
			return nil, err
		}
	}
	return stats, nil
}

func countDay(db *gorm.DB, model any, day time.Time, dst *int64) error {
	if err := db.Model(model).Where("date_label = ?", day).Count(dst).Error; err != nil {
		return fmt.Errorf("count rows: %w", err)
	}
	return nil
}
