package collector

import (
	"context"
	"fmt"

	"github.com/blockedby/tg-digest/internal/logger"
	"github.com/blockedby/tg-digest/internal/telegram"
)

// TopicLister returns one page of forum topics positioned after cursor.
type TopicLister interface {
	GetForumTopics(ctx context.Context, ch *telegram.Channel, cursor telegram.TopicCursor, limit int) (*telegram.TopicPage, error)
}

// TopicPaginator enumerates every topic of a forum chat.
type TopicPaginator struct {
	client TopicLister
	caller *Caller
	log    *logger.Logger
}

// NewTopicPaginator creates a paginator whose page requests go through caller.
func NewTopicPaginator(client TopicLister, caller *Caller, log *logger.Logger) *TopicPaginator {
	if log == nil {
		log = logger.Get()
	}
	return &TopicPaginator{client: client, caller: caller, log: log}
}

// ListAllTopics returns every topic of chat, deduplicated by id in first-seen order.
// Pages may overlap at their boundaries; repeats are dropped.
func (p *TopicPaginator) ListAllTopics(ctx context.Context, chat *telegram.Channel) ([]telegram.Topic, error) {
	var (
		topics []telegram.Topic
		seen   = make(map[int]struct{})
		cursor telegram.TopicCursor
	)

	for page := 1; ; page++ {
		batch, err := Call(ctx, p.caller, func(ctx context.Context) (*telegram.TopicPage, error) {
			return p.client.GetForumTopics(ctx, chat, cursor, telegram.PageSize)
		})
		if err != nil {
			return nil, fmt.Errorf("list topics page %d: %w", page, err)
		}
		if batch.RawCount == 0 {
			break
		}

		added := 0
		for _, t := range batch.Topics {
			if _, ok := seen[t.ID]; ok {
				continue
			}
			seen[t.ID] = struct{}{}
			topics = append(topics, t)
			added++
		}

		p.log.Debug().
			Int("page", page).
			Int("received", batch.RawCount).
			Int("added", added).
			Msg("topics page fetched")

		// deleted topics count towards the page size and the cursor
		if batch.RawCount < telegram.PageSize {
			break
		}
		cursor = telegram.TopicCursor{OffsetTopic: batch.LastID}
	}

	return topics, nil
}
