// Package collector extracts one day of messages from every topic of a forum chat.
package collector

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/blockedby/tg-digest/internal/logger"
	"github.com/blockedby/tg-digest/internal/models"
	"github.com/blockedby/tg-digest/internal/telegram"
	"github.com/blockedby/tg-digest/internal/window"
)

// TelegramClient defines the telegram operations the extractor needs.
type TelegramClient interface {
	TopicLister
	HistoryFetcher
	UsernameResolver
	ParticipantsCounter
}

// Options tunes the extractor.
type Options struct {
	PacingEvery int           // pause after this many yielded messages per topic, 0 disables
	PacingDelay time.Duration // length of the pause
	MaxAttempts int           // FLOOD_WAIT retries per call, 0 = unbounded
	Sleep       SleepFunc     // nil = real sleep
}

// DefaultOptions returns the production pacing with unbounded retries.
func DefaultOptions() Options {
	return Options{
		PacingEvery: DefaultPacingEvery,
		PacingDelay: DefaultPacingDelay,
	}
}

// Service assembles the extract of a window.
type Service struct {
	paginator *TopicPaginator
	stream    *MessageStream
	resolver  *SenderResolver
	probe     *MemberProbe
	sleep     SleepFunc
	log       *logger.Logger
}

// NewService creates a new collector service
func NewService(client TelegramClient, opts Options, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Get()
	}
	if opts.Sleep == nil {
		opts.Sleep = Sleep
	}

	caller := NewCaller(opts.Sleep, opts.MaxAttempts, log)
	return &Service{
		paginator: NewTopicPaginator(client, caller, log),
		stream:    NewMessageStream(client, opts.Sleep, opts.PacingEvery, opts.PacingDelay),
		resolver:  NewSenderResolver(client, log),
		probe:     NewMemberProbe(client, caller, log),
		sleep:     opts.Sleep,
		log:       log,
	}
}

// Extract is the outcome of one extraction.
type Extract struct {
	Window          window.Window
	Topics          []telegram.Topic
	Rows            []models.ExtractRow // deduplicated, sorted by (topic, message)
	AbandonedTopics []int               // topics cut short by FLOOD_WAIT
	Duplicates      int
}

// Empty reports whether the window produced no rows.
func (e *Extract) Empty() bool {
	return len(e.Rows) == 0
}

// ListTopics returns every topic of chat.
func (s *Service) ListTopics(ctx context.Context, chat *telegram.Channel) ([]telegram.Topic, error) {
	return s.paginator.ListAllTopics(ctx, chat)
}

// MemberCount returns the chat's current member count, ok is false when unknown.
func (s *Service) MemberCount(ctx context.Context, chat *telegram.Channel) (int, bool) {
	return s.probe.FetchMemberCount(ctx, chat)
}

// Extract collects every message of chat dated inside win across all topics.
// A topic whose history walk hits FLOOD_WAIT keeps the rows read so far and is
// recorded in AbandonedTopics; any other failure aborts the extraction.
func (s *Service) Extract(ctx context.Context, chat *telegram.Channel, win window.Window) (*Extract, error) {
	s.log.Info().
		Str("chat", chat.Username).
		Time("start_utc", win.Start).
		Time("end_utc", win.End).
		Msg("extracting window")

	topics, err := s.paginator.ListAllTopics(ctx, chat)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	s.log.Info().Int("topics", len(topics)).Msg("topics found")

	result := &Extract{Window: win, Topics: topics}
	cache := make(SenderCache)
	var rows []models.ExtractRow

	for i, topic := range topics {
		title := topicTitle(topic)
		before := len(rows)
		tlog := s.log.WithTopic(topic.ID)

		for msg, err := range s.stream.Messages(ctx, chat, topic.ID, win) {
			if err != nil {
				seconds, limited := telegram.AsFloodWait(err)
				if !limited {
					return nil, fmt.Errorf("read topic %d: %w", topic.ID, err)
				}

				wait := backoff(seconds)
				tlog.Warn().
					Int("wait_seconds", int(wait/time.Second)).
					Msg("flood wait while reading topic, moving on")
				if err := s.sleep(ctx, wait); err != nil {
					return nil, err
				}
				result.AbandonedTopics = append(result.AbandonedTopics, topic.ID)
				break
			}

			rows = append(rows, s.toRow(ctx, topic.ID, title, msg, cache))
		}

		tlog.Info().
			Str("title", title).
			Int("rows", len(rows)-before).
			Str("progress", fmt.Sprintf("%d/%d", i+1, len(topics))).
			Msg("topic read")
	}

	result.Rows, result.Duplicates = dedupeAndSort(rows)

	s.log.Info().
		Int("rows", len(result.Rows)).
		Int("duplicates", result.Duplicates).
		Int("senders", len(cache)).
		Ints("abandoned_topics", result.AbandonedTopics).
		Msg("extract assembled")

	return result, nil
}

func (s *Service) toRow(ctx context.Context, topicID int, title string, msg telegram.Message, cache SenderCache) models.ExtractRow {
	row := models.ExtractRow{
		TopicID:    int64(topicID),
		TopicTitle: title,
		MessageID:  int64(msg.ID),
		DateUTC:    msg.Date.UTC().Format(time.RFC3339),
		SenderID:   msg.SenderID,
		Text:       msg.Text,
	}

	if msg.SenderID != nil {
		if handle := s.resolver.Resolve(ctx, msg.SenderID, cache); handle != nil {
			row.SenderUsername = handle
		} else {
			fallback := strconv.FormatInt(*msg.SenderID, 10)
			row.SenderUsername = &fallback
		}
	}

	if msg.ReplyToMsgID != nil {
		id := int64(*msg.ReplyToMsgID)
		row.ReplyToMsgID = &id
	}

	return row
}

func topicTitle(t telegram.Topic) string {
	if t.Title == "" {
		return "topic_" + strconv.Itoa(t.ID)
	}
	return t.Title
}

// dedupeAndSort keeps the first row of every (topic, message) key and orders the
// result by that key. It returns the number of dropped rows.
func dedupeAndSort(rows []models.ExtractRow) ([]models.ExtractRow, int) {
	seen := make(map[models.Key]struct{}, len(rows))
	out := make([]models.ExtractRow, 0, len(rows))
	for _, r := range rows {
		k := r.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}

	slices.SortStableFunc(out, func(a, b models.ExtractRow) int {
		ka, kb := a.Key(), b.Key()
		switch {
		case ka.Less(kb):
			return -1
		case kb.Less(ka):
			return 1
		}
		return 0
	})

	return out, len(rows) - len(out)
}
