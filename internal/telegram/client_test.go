package telegram

import (
	"context"
	"testing"
	"time"

	"github.com/blockedby/tg-digest/internal/config"
	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_UnauthorizedError(t *testing.T) {
	manager := NewManager(&config.Config{}, openTestDB(t))
	client := NewClient(manager, nil, nil)
	ctx := context.Background()
	ch := &Channel{ID: 1, AccessHash: 2}

	_, err := client.ResolveChannel(ctx, "testchannel")
	assert.ErrorIs(t, err, ErrNotAuthorized)

	_, err = client.GetForumTopics(ctx, ch, TopicCursor{}, 100)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	_, err = client.GetTopicHistory(ctx, ch, 1, HistoryOffset{OffsetDate: time.Now()}, 100)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	_, _, err = client.GetParticipantsCount(ctx, ch)
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestClient_ResolveUsername_UnknownUser(t *testing.T) {
	client := NewClient(NewManager(&config.Config{}, openTestDB(t)), nil, nil)

	name, err := client.ResolveUsername(context.Background(), 42)

	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.Empty(t, name)
}

func TestClient_ExtractMessages(t *testing.T) {
	client := NewClient(NewManager(&config.Config{}, openTestDB(t)), nil, nil)
	ch := &Channel{ID: 777}

	reply := &tg.MessageReplyHeader{ForumTopic: true}
	reply.SetReplyToMsgID(15)

	plain := &tg.Message{ID: 101, Message: "hello", Date: 1705251601}
	plain.SetReplyTo(reply)
	plain.SetFromID(&tg.PeerUser{UserID: 5})

	nested := &tg.MessageReplyHeader{ForumTopic: true}
	nested.SetReplyToMsgID(101)
	nested.SetReplyToTopID(15)
	answer := &tg.Message{ID: 102, Message: "answer", Date: 1705251700}
	answer.SetReplyTo(nested)
	answer.SetFromID(&tg.PeerChannel{ChannelID: 999})

	pinned := &tg.MessageService{ID: 100, Date: 1705251500, Action: &tg.MessageActionPinMessage{}}
	pinned.SetFromID(&tg.PeerUser{UserID: 5})
	pinned.SetReplyTo(reply)

	user := &tg.User{ID: 5}
	user.SetAccessHash(555)

	resp := &tg.MessagesChannelMessages{
		Messages: []tg.MessageClass{
			answer,
			plain,
			pinned,
			&tg.MessageEmpty{ID: 99},
		},
		Users: []tg.UserClass{user},
	}

	page := client.extractMessages(resp, ch)
	assert.Equal(t, 4, page.RawCount)
	assert.Equal(t, 99, page.LastID)

	msgs := page.Messages
	require.Len(t, msgs, 3)

	assert.Equal(t, 102, msgs[0].ID)
	require.NotNil(t, msgs[0].SenderID)
	assert.Equal(t, int64(999), *msgs[0].SenderID)
	require.NotNil(t, msgs[0].ReplyToMsgID)
	assert.Equal(t, 101, *msgs[0].ReplyToMsgID)
	require.NotNil(t, msgs[0].TopicID)
	assert.Equal(t, 15, *msgs[0].TopicID)

	assert.Equal(t, 101, msgs[1].ID)
	assert.Equal(t, "hello", msgs[1].Text)
	assert.Equal(t, time.Date(2024, 1, 14, 17, 0, 1, 0, time.UTC), msgs[1].Date)
	assert.Equal(t, int64(777), msgs[1].ChannelID)
	require.NotNil(t, msgs[1].TopicID)
	assert.Equal(t, 15, *msgs[1].TopicID)

	assert.Equal(t, 100, msgs[2].ID)
	assert.Empty(t, msgs[2].Text)
	require.NotNil(t, msgs[2].SenderID)
	assert.Equal(t, int64(5), *msgs[2].SenderID)
	require.NotNil(t, msgs[2].TopicID)
	assert.Equal(t, 15, *msgs[2].TopicID)

	assert.Equal(t, int64(555), client.users[5])
}

func TestClient_ExtractMessages_EmptyResponse(t *testing.T) {
	client := NewClient(NewManager(&config.Config{}, openTestDB(t)), nil, nil)

	page := client.extractMessages(&tg.MessagesMessagesNotModified{}, &Channel{ID: 1})

	assert.Zero(t, page.RawCount)
	assert.Zero(t, page.LastID)
	assert.Empty(t, page.Messages)
}

func TestTopicPage_DeletedTopicsCounted(t *testing.T) {
	raw := []tg.ForumTopicClass{
		&tg.ForumTopic{ID: 30, Title: "news", TopMessage: 300, Pinned: true},
		&tg.ForumTopicDeleted{ID: 20},
		&tg.ForumTopic{ID: 12, Title: "chat", Closed: true},
		&tg.ForumTopicDeleted{ID: 7},
	}

	page := topicPage(raw)

	assert.Equal(t, 4, page.RawCount)
	assert.Equal(t, 7, page.LastID)
	require.Len(t, page.Topics, 2)
	assert.Equal(t, Topic{ID: 30, Title: "news", TopMessage: 300, Pinned: true}, page.Topics[0])
	assert.Equal(t, Topic{ID: 12, Title: "chat", Closed: true}, page.Topics[1])
}

func TestParseMessage_Anonymous(t *testing.T) {
	msg := parseMessage(&tg.Message{ID: 1, Date: 1, PeerID: &tg.PeerChannel{ChannelID: 3}}, &Channel{ID: 3})

	require.NotNil(t, msg)
	assert.Nil(t, msg.SenderID)
	assert.Nil(t, msg.ReplyToMsgID)
	assert.Nil(t, msg.TopicID)
}

func TestUsernameOf(t *testing.T) {
	withName := &tg.User{ID: 1}
	withName.SetUsername("alice")
	assert.Equal(t, "alice", usernameOf(withName))

	collectible := &tg.User{ID: 2, Usernames: []tg.Username{
		{Username: "old", Active: false},
		{Username: "bob", Active: true},
	}}
	assert.Equal(t, "bob", usernameOf(collectible))

	assert.Equal(t, "", usernameOf(&tg.User{ID: 3}))
}

func TestNormalizeUsername(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"@golang_forum", "golang_forum"},
		{"golang_forum", "golang_forum"},
		{"https://t.me/golang_forum", "golang_forum"},
		{" t.me/golang_forum/ ", "golang_forum"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeUsername(tt.in))
		})
	}
}
