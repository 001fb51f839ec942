// Package telegram provides Telegram MTProto client wrapper.
package telegram

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/blockedby/tg-digest/internal/logger"
	"github.com/gotd/td/tg"
)

// APIProvider returns the raw API of an authorized session.
type APIProvider interface {
	API() (*tg.Client, error)
}

// Client provides the high-level forum operations used by the extractor.
// Every RPC waits on the shared RateLimiter and converts FLOOD_WAIT into *FloodWaitError.
type Client struct {
	api         APIProvider
	rateLimiter *RateLimiter
	log         *logger.Logger

	// access hashes of users seen in history responses, needed for users.getUsers
	usersMu sync.Mutex
	users   map[int64]int64
}

// NewClient creates a new telegram client wrapper.
func NewClient(api APIProvider, rateLimiter *RateLimiter, log *logger.Logger) *Client {
	if rateLimiter == nil {
		rateLimiter = NewRateLimiter(0, 1)
	}
	if log == nil {
		log = logger.Get()
	}
	return &Client{
		api:         api,
		rateLimiter: rateLimiter,
		log:         log,
		users:       make(map[int64]int64),
	}
}

// call waits for the shared budget, obtains the API and runs fn.
// FLOOD_WAIT errors update the shared budget before being returned.
func (c *Client) call(ctx context.Context, fn func(api *tg.Client) error) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return err
	}

	api, err := c.api.API()
	if err != nil {
		return err
	}

	err = classify(fn(api))
	if seconds, ok := AsFloodWait(err); ok {
		c.log.Warn().Int("wait_seconds", seconds).Msg("telegram: FLOOD_WAIT detected, updating rate limiter")
		c.rateLimiter.SetFloodWait(seconds)
	}
	return err
}

// ResolveChannel resolves channel username to Channel info
// username can be with or without @ prefix or a t.me link
func (c *Client) ResolveChannel(ctx context.Context, username string) (*Channel, error) {
	username = normalizeUsername(username)

	c.log.Info().Str("username", username).Msg("telegram: resolving channel username")

	var resolved *tg.ContactsResolvedPeer
	err := c.call(ctx, func(api *tg.Client) error {
		var err error
		resolved, err = api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{
			Username: username,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("resolve username %s: %w", username, err)
	}

	for _, chat := range resolved.Chats {
		if ch, ok := chat.(*tg.Channel); ok {
			return &Channel{
				ID:         ch.ID,
				AccessHash: ch.AccessHash,
				Username:   username,
				Title:      ch.Title,
				IsForum:    ch.Forum,
			}, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrChannelMissing, username)
}

// GetForumTopics returns one page of forum topics positioned after cursor.
func (c *Client) GetForumTopics(ctx context.Context, channel *Channel, cursor TopicCursor, limit int) (*TopicPage, error) {
	if limit > PageSize {
		limit = PageSize
	}

	c.log.Debug().
		Int64("channel_id", channel.ID).
		Int("offset_topic", cursor.OffsetTopic).
		Int("limit", limit).
		Msg("telegram: calling MessagesGetForumTopics API")

	var result *tg.MessagesForumTopics
	err := c.call(ctx, func(api *tg.Client) error {
		var err error
		result, err = api.MessagesGetForumTopics(ctx, &tg.MessagesGetForumTopicsRequest{
			Peer:        inputPeer(channel),
			OffsetDate:  cursor.OffsetDate,
			OffsetID:    cursor.OffsetID,
			OffsetTopic: cursor.OffsetTopic,
			Limit:       limit,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get forum topics: %w", err)
	}

	return topicPage(result.Topics), nil
}

// topicPage converts a raw topic listing. Deleted topics are left out of
// Topics but still counted in RawCount and LastID.
func topicPage(raw []tg.ForumTopicClass) *TopicPage {
	page := &TopicPage{
		Topics:   make([]Topic, 0, len(raw)),
		RawCount: len(raw),
	}
	if n := len(raw); n > 0 {
		page.LastID = raw[n-1].GetID()
	}

	for _, t := range raw {
		topic, ok := t.(*tg.ForumTopic)
		if !ok {
			continue
		}

		page.Topics = append(page.Topics, Topic{
			ID:         topic.ID,
			Title:      topic.Title,
			TopMessage: topic.TopMessage,
			Closed:     topic.Closed,
			Pinned:     topic.Pinned,
		})
	}
	return page
}

// GetTopicHistory fetches one page of a forum topic, newest first,
// strictly older than offset.
func (c *Client) GetTopicHistory(ctx context.Context, channel *Channel, topicID int, offset HistoryOffset, limit int) (*HistoryPage, error) {
	if limit > PageSize {
		limit = PageSize
	}

	req := &tg.MessagesGetRepliesRequest{
		Peer:     inputPeer(channel),
		MsgID:    topicID, // topic id is the message id
		OffsetID: offset.OffsetID,
		Limit:    limit,
	}
	if !offset.OffsetDate.IsZero() {
		req.OffsetDate = int(offset.OffsetDate.Unix())
	}

	c.log.Debug().
		Int("topic_id", topicID).
		Int("offset_id", req.OffsetID).
		Int("offset_date", req.OffsetDate).
		Msg("telegram: calling MessagesGetReplies API")

	var result tg.MessagesMessagesClass
	err := c.call(ctx, func(api *tg.Client) error {
		var err error
		result, err = api.MessagesGetReplies(ctx, req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get topic messages: %w", err)
	}

	return c.extractMessages(result, channel), nil
}

// ResolveUsername looks up the public username of a user seen in a history page.
// Returns "" with a nil error when the user has no username.
func (c *Client) ResolveUsername(ctx context.Context, userID int64) (string, error) {
	c.usersMu.Lock()
	accessHash, ok := c.users[userID]
	c.usersMu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUserNotFound, userID)
	}

	var users []tg.UserClass
	err := c.call(ctx, func(api *tg.Client) error {
		var err error
		users, err = api.UsersGetUsers(ctx, []tg.InputUserClass{
			&tg.InputUser{UserID: userID, AccessHash: accessHash},
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("get user %d: %w", userID, err)
	}

	for _, u := range users {
		if user, ok := u.(*tg.User); ok && user.ID == userID {
			return usernameOf(user), nil
		}
	}
	return "", fmt.Errorf("%w: %d", ErrUserNotFound, userID)
}

// GetParticipantsCount returns the member count of the channel.
// ok is false when the server omits the field.
func (c *Client) GetParticipantsCount(ctx context.Context, channel *Channel) (count int, ok bool, err error) {
	var full *tg.MessagesChatFull
	err = c.call(ctx, func(api *tg.Client) error {
		var err error
		full, err = api.ChannelsGetFullChannel(ctx, &tg.InputChannel{
			ChannelID:  channel.ID,
			AccessHash: channel.AccessHash,
		})
		return err
	})
	if err != nil {
		return 0, false, fmt.Errorf("get full channel: %w", err)
	}

	chFull, isChannel := full.FullChat.(*tg.ChannelFull)
	if !isChannel {
		return 0, false, nil
	}
	count, ok = chFull.GetParticipantsCount()
	return count, ok, nil
}

// extractMessages converts telegram message response to a HistoryPage
// and remembers the users it mentions.
func (c *Client) extractMessages(messagesClass tg.MessagesMessagesClass, channel *Channel) *HistoryPage {
	var raw []tg.MessageClass

	switch h := messagesClass.(type) {
	case *tg.MessagesChannelMessages:
		raw = h.Messages
		c.rememberUsers(h.Users)
	case *tg.MessagesMessages:
		raw = h.Messages
		c.rememberUsers(h.Users)
	case *tg.MessagesMessagesSlice:
		raw = h.Messages
		c.rememberUsers(h.Users)
	}

	page := &HistoryPage{
		Messages: make([]Message, 0, len(raw)),
		RawCount: len(raw),
	}
	if n := len(raw); n > 0 {
		page.LastID = raw[n-1].GetID()
	}
	for _, msg := range raw {
		if m := parseMessage(msg, channel); m != nil {
			page.Messages = append(page.Messages, *m)
		}
	}
	return page
}

func (c *Client) rememberUsers(users []tg.UserClass) {
	c.usersMu.Lock()
	defer c.usersMu.Unlock()

	for _, u := range users {
		user, ok := u.(*tg.User)
		if !ok {
			continue
		}
		if hash, ok := user.GetAccessHash(); ok {
			c.users[user.ID] = hash
		}
	}
}

// parseMessage converts a single telegram message to our Message type.
// Service messages (pins, topic edits, ...) are kept with empty text;
// empty placeholders are skipped.
func parseMessage(msg tg.MessageClass, channel *Channel) *Message {
	switch m := msg.(type) {
	case *tg.Message:
		out := newMessage(m.ID, m.Date, channel)
		out.Text = m.Message
		fromID, hasFrom := m.GetFromID()
		replyTo, hasReply := m.GetReplyTo()
		fillSender(out, fromID, hasFrom, m.PeerID)
		fillReply(out, replyTo, hasReply)
		return out
	case *tg.MessageService:
		out := newMessage(m.ID, m.Date, channel)
		fromID, hasFrom := m.GetFromID()
		replyTo, hasReply := m.GetReplyTo()
		fillSender(out, fromID, hasFrom, m.PeerID)
		fillReply(out, replyTo, hasReply)
		return out
	default:
		return nil
	}
}

func newMessage(id, date int, channel *Channel) *Message {
	return &Message{
		ID:        id,
		ChannelID: channel.ID,
		Date:      time.Unix(int64(date), 0).UTC(),
	}
}

func fillSender(out *Message, from tg.PeerClass, hasFrom bool, peer tg.PeerClass) {
	if hasFrom {
		out.SenderID = peerID(from)
		return
	}
	// private-chat style messages carry the author in PeerID only
	if user, ok := peer.(*tg.PeerUser); ok {
		id := user.UserID
		out.SenderID = &id
	}
}

func fillReply(out *Message, replyTo tg.MessageReplyHeaderClass, ok bool) {
	if !ok {
		return
	}
	header, ok := replyTo.(*tg.MessageReplyHeader)
	if !ok {
		return
	}
	if id, ok := header.GetReplyToMsgID(); ok {
		out.ReplyToMsgID = &id
	}
	if header.ForumTopic {
		tid, ok := header.GetReplyToTopID()
		if !ok {
			tid, _ = header.GetReplyToMsgID()
		}
		out.TopicID = &tid
	}
}

func peerID(p tg.PeerClass) *int64 {
	var id int64
	switch v := p.(type) {
	case *tg.PeerUser:
		id = v.UserID
	case *tg.PeerChannel:
		id = v.ChannelID
	case *tg.PeerChat:
		id = v.ChatID
	default:
		return nil
	}
	return &id
}

func usernameOf(user *tg.User) string {
	if name, ok := user.GetUsername(); ok && name != "" {
		return name
	}
	for _, u := range user.Usernames {
		if u.Active {
			return u.Username
		}
	}
	return ""
}

func inputPeer(channel *Channel) *tg.InputPeerChannel {
	return &tg.InputPeerChannel{
		ChannelID:  channel.ID,
		AccessHash: channel.AccessHash,
	}
}

// normalizeUsername strips @ and t.me prefixes.
func normalizeUsername(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"https://", "http://", "t.me/", "@"} {
		s = strings.TrimPrefix(s, prefix)
	}
	return strings.TrimSuffix(s, "/")
}
