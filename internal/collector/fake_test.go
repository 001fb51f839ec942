package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/blockedby/tg-digest/internal/telegram"
)

// injectedErr fails the n-th call (1-based) of an operation.
type injectedErr struct {
	call int
	err  error
}

// MockForum is an in-memory forum implementing TelegramClient.
type MockForum struct {
	mu sync.Mutex

	topics       []telegram.Topic
	topicOverlap int // topics repeated at the start of each following page
	topicErr     *injectedErr
	topicCursors []telegram.TopicCursor
	deleted      map[int]bool // topics the server lists as deleted

	history      map[int][]telegram.Message // newest first
	empty        map[int]bool               // message ids the server sends as empty placeholders
	historyErr   map[int]injectedErr
	historyCalls map[int]int

	users     map[int64]string
	userErrs  map[int64]error
	userCalls map[int64]int

	participants    int
	participantsOK  bool
	participantsErr *injectedErr
	participantCall int
}

func NewMockForum() *MockForum {
	return &MockForum{
		deleted:      make(map[int]bool),
		history:      make(map[int][]telegram.Message),
		empty:        make(map[int]bool),
		historyErr:   make(map[int]injectedErr),
		historyCalls: make(map[int]int),
		users:        make(map[int64]string),
		userErrs:     make(map[int64]error),
		userCalls:    make(map[int64]int),
	}
}

func (f *MockForum) GetForumTopics(_ context.Context, _ *telegram.Channel, cursor telegram.TopicCursor, limit int) (*telegram.TopicPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.topicCursors = append(f.topicCursors, cursor)
	if f.topicErr != nil && len(f.topicCursors) == f.topicErr.call {
		return nil, f.topicErr.err
	}

	start := 0
	if cursor.OffsetTopic != 0 {
		for i, t := range f.topics {
			if t.ID == cursor.OffsetTopic {
				start = i + 1 - f.topicOverlap
				break
			}
		}
		if start < 0 {
			start = 0
		}
	}
	end := min(start+limit, len(f.topics))
	page := &telegram.TopicPage{}
	if start >= end {
		return page, nil
	}
	page.RawCount = end - start
	page.LastID = f.topics[end-1].ID
	for _, t := range f.topics[start:end] {
		if !f.deleted[t.ID] {
			page.Topics = append(page.Topics, t)
		}
	}
	return page, nil
}

// GetTopicHistory treats OffsetDate as inclusive, which is looser than the server.
func (f *MockForum) GetTopicHistory(_ context.Context, _ *telegram.Channel, topicID int, offset telegram.HistoryOffset, limit int) (*telegram.HistoryPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.historyCalls[topicID]++
	if inj, ok := f.historyErr[topicID]; ok && inj.call == f.historyCalls[topicID] {
		return nil, inj.err
	}

	msgs := f.history[topicID]
	start := len(msgs)
	for i, m := range msgs {
		if offset.OffsetID != 0 {
			if m.ID < offset.OffsetID {
				start = i
				break
			}
			continue
		}
		if offset.OffsetDate.IsZero() || !m.Date.After(offset.OffsetDate) {
			start = i
			break
		}
	}
	end := min(start+limit, len(msgs))
	page := &telegram.HistoryPage{RawCount: end - start}
	if end > start {
		page.LastID = msgs[end-1].ID
	}
	for _, m := range msgs[start:end] {
		if !f.empty[m.ID] {
			page.Messages = append(page.Messages, m)
		}
	}
	return page, nil
}

func (f *MockForum) ResolveUsername(_ context.Context, userID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.userCalls[userID]++
	if err, ok := f.userErrs[userID]; ok {
		return "", err
	}
	name, ok := f.users[userID]
	if !ok {
		return "", fmt.Errorf("%w: %d", telegram.ErrUserNotFound, userID)
	}
	return name, nil
}

func (f *MockForum) GetParticipantsCount(_ context.Context, _ *telegram.Channel) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.participantCall++
	if f.participantsErr != nil && f.participantCall == f.participantsErr.call {
		return 0, false, f.participantsErr.err
	}
	return f.participants, f.participantsOK, nil
}

func (f *MockForum) TopicCursors() []telegram.TopicCursor {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]telegram.TopicCursor(nil), f.topicCursors...)
}

func makeTopics(n int) []telegram.Topic {
	topics := make([]telegram.Topic, n)
	for i := range topics {
		// newest topics first, ids descending like the server
		id := 1000 - i
		topics[i] = telegram.Topic{ID: id, Title: fmt.Sprintf("topic %d", id)}
	}
	return topics
}

// makeHistory builds ids lastID..1, message id i dated base + i minutes.
func makeHistory(lastID int, base time.Time) []telegram.Message {
	msgs := make([]telegram.Message, 0, lastID)
	for id := lastID; id >= 1; id-- {
		msgs = append(msgs, telegram.Message{ID: id, Date: base.Add(time.Duration(id) * time.Minute)})
	}
	return msgs
}

func int64Ptr(v int64) *int64 { return &v }

func intPtr(v int) *int { return &v }

var testChat = &telegram.Channel{ID: 777, AccessHash: 1, Username: "forum", Title: "Forum"}
