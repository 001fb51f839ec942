package collector

import (
	"context"
	"iter"
	"time"

	"github.com/blockedby/tg-digest/internal/telegram"
	"github.com/blockedby/tg-digest/internal/window"
)

// Default pacing of the history walk.
const (
	DefaultPacingEvery = 200
	DefaultPacingDelay = 500 * time.Millisecond
)

// HistoryFetcher returns one page of a topic's history, newest first, strictly older than offset.
type HistoryFetcher interface {
	GetTopicHistory(ctx context.Context, ch *telegram.Channel, topicID int, offset telegram.HistoryOffset, limit int) (*telegram.HistoryPage, error)
}

// MessageStream walks a topic's history backwards and yields the messages of a window.
//
// The feed must be reverse-chronological: the walk stops at the first message older than
// the window start, so an out-of-order older message hides anything after it.
type MessageStream struct {
	client      HistoryFetcher
	sleep       SleepFunc
	pacingEvery int
	pacingDelay time.Duration
}

// NewMessageStream creates a stream that pauses pacingDelay after every pacingEvery
// yielded messages. pacingEvery <= 0 disables pacing.
func NewMessageStream(client HistoryFetcher, sleep SleepFunc, pacingEvery int, pacingDelay time.Duration) *MessageStream {
	if sleep == nil {
		sleep = Sleep
	}
	return &MessageStream{
		client:      client,
		sleep:       sleep,
		pacingEvery: pacingEvery,
		pacingDelay: pacingDelay,
	}
}

// Messages lazily yields the messages of topicID dated inside win, newest first.
// A page fetch error, FLOOD_WAIT included, is yielded once and ends the sequence.
func (s *MessageStream) Messages(ctx context.Context, chat *telegram.Channel, topicID int, win window.Window) iter.Seq2[telegram.Message, error] {
	return func(yield func(telegram.Message, error) bool) {
		offset := telegram.HistoryOffset{OffsetDate: win.End}
		yielded := 0

		for {
			page, err := s.client.GetTopicHistory(ctx, chat, topicID, offset, telegram.PageSize)
			if err != nil {
				yield(telegram.Message{}, err)
				return
			}
			if page.RawCount == 0 {
				return
			}

			for _, msg := range page.Messages {
				if msg.Date.Before(win.Start) {
					return
				}
				if !msg.Date.Before(win.End) {
					continue
				}
				if !yield(msg, nil) {
					return
				}
				yielded++

				if s.pacingEvery > 0 && yielded%s.pacingEvery == 0 {
					if err := s.sleep(ctx, s.pacingDelay); err != nil {
						yield(telegram.Message{}, err)
						return
					}
				}
			}

			// termination and offset follow the raw page, dropped entries included
			if page.RawCount < telegram.PageSize {
				return
			}

			last := page.LastID
			if offset.OffsetID != 0 && last >= offset.OffsetID {
				// the server did not move past the previous page
				return
			}
			offset = telegram.HistoryOffset{OffsetID: last}
		}
	}
}
