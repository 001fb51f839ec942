// Package report aggregates an extract into the daily report facets.
package report

import (
	"cmp"
	"slices"

	"github.com/blockedby/tg-digest/internal/models"
	"github.com/blockedby/tg-digest/internal/telegram"
)

type topicKey struct {
	id    int64
	title string
}

// senderKey groups rows by author; a nil id or handle is its own group.
type senderKey struct {
	id        int64
	hasID     bool
	handle    string
	hasHandle bool
}

// Build returns the report of rows: messages per topic, contributors ranked by
// message count, then the summary. topics is the full topic list of the chat,
// including topics without messages in the window.
func Build(rows []models.ExtractRow, topics []telegram.Topic, dateLabel string) []models.ReportRow {
	out := make([]models.ReportRow, 0, len(rows)/4+2)
	out = append(out, messagesPerTopic(rows, dateLabel)...)
	out = append(out, contributors(rows, dateLabel)...)
	out = append(out,
		summary(dateLabel, models.MetricTopicsCount, int64(len(topics))),
		summary(dateLabel, models.MetricMessagesTotal, int64(len(rows))),
	)
	return out
}

func messagesPerTopic(rows []models.ExtractRow, dateLabel string) []models.ReportRow {
	counts := make(map[topicKey]int64)
	for _, r := range rows {
		counts[topicKey{id: r.TopicID, title: r.TopicTitle}]++
	}

	keys := make([]topicKey, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b topicKey) int {
		return cmp.Or(cmp.Compare(a.id, b.id), cmp.Compare(a.title, b.title))
	})

	out := make([]models.ReportRow, 0, len(keys))
	for _, k := range keys {
		out = append(out, models.ReportRow{
			DateLabel:    dateLabel,
			Metric:       models.MetricMessagesPerTopic,
			TopicID:      ptr(k.id),
			TopicTitle:   ptr(k.title),
			MessageCount: ptr(counts[k]),
		})
	}
	return out
}

func contributors(rows []models.ExtractRow, dateLabel string) []models.ReportRow {
	counts := make(map[senderKey]int64)
	for _, r := range rows {
		var k senderKey
		if r.SenderID != nil {
			k.id, k.hasID = *r.SenderID, true
		}
		if r.SenderUsername != nil {
			k.handle, k.hasHandle = *r.SenderUsername, true
		}
		counts[k]++
	}

	keys := make([]senderKey, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	// count desc, handle asc with missing handles last, id asc for a stable order
	slices.SortFunc(keys, func(a, b senderKey) int {
		if c := cmp.Compare(counts[b], counts[a]); c != 0 {
			return c
		}
		if a.hasHandle != b.hasHandle {
			if a.hasHandle {
				return -1
			}
			return 1
		}
		if c := cmp.Compare(a.handle, b.handle); c != 0 {
			return c
		}
		if a.hasID != b.hasID {
			if a.hasID {
				return -1
			}
			return 1
		}
		return cmp.Compare(a.id, b.id)
	})

	ranks := denseRank(keys, counts)
	out := make([]models.ReportRow, 0, len(keys))
	for i, k := range keys {
		row := models.ReportRow{
			DateLabel:      dateLabel,
			Metric:         models.MetricContributors,
			MessageCount:   ptr(counts[k]),
			RankByMessages: ptr(ranks[i]),
		}
		if k.hasID {
			row.SenderID = ptr(k.id)
		}
		if k.hasHandle {
			row.SenderUsername = ptr(k.handle)
		}
		out = append(out, row)
	}
	return out
}

// denseRank ranks keys, already sorted by count desc: equal counts share a rank
// and the next distinct count gets the next integer.
func denseRank[K comparable](keys []K, counts map[K]int64) []int64 {
	ranks := make([]int64, len(keys))
	var rank int64
	for i, k := range keys {
		if i == 0 || counts[k] != counts[keys[i-1]] {
			rank++
		}
		ranks[i] = rank
	}
	return ranks
}

func summary(dateLabel, metric string, value int64) models.ReportRow {
	return models.ReportRow{
		DateLabel: dateLabel,
		Metric:    metric,
		Value:     ptr(value),
	}
}

func ptr[T any](v T) *T {
	return &v
}
