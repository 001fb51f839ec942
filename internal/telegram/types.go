package telegram

import (
	"time"
)

// PageSize is the largest page the API returns for topic and history listings.
const PageSize = 100

// Message represents a parsed telegram message
type Message struct {
	ID           int       // message id (unique within channel)
	ChannelID    int64     // channel id
	Text         string    // message text content
	Date         time.Time // message creation timestamp, UTC
	SenderID     *int64    // author peer id (nil for anonymous posts)
	ReplyToMsgID *int      // replied-to message id (topic root for plain topic posts)
	TopicID      *int      // forum topic id (nil for non-forum channels)
}

// Topic represents a forum topic
type Topic struct {
	ID         int    // topic id (same as message_thread_id)
	Title      string // topic title
	TopMessage int    // id of last message in topic
	Closed     bool   // whether topic is closed
	Pinned     bool   // whether topic is pinned
}

// Channel represents a telegram channel info
type Channel struct {
	ID         int64  // channel id
	AccessHash int64  // access hash for api calls
	Username   string // channel username (without @)
	Title      string // channel title
	IsForum    bool   // whether it's a forum-type supergroup
}

// TopicCursor positions a forum topic listing request.
// The zero value requests the first page.
type TopicCursor struct {
	OffsetDate  int // unix seconds, 0 = absent
	OffsetID    int
	OffsetTopic int
}

// HistoryOffset positions a topic history request.
// Either OffsetDate (walk from an instant) or OffsetID (continue after a message) is set.
type HistoryOffset struct {
	OffsetDate time.Time
	OffsetID   int
}

// TopicPage is one page of the forum topic listing. RawCount and LastID
// describe the server page before deleted topics are dropped; pagination
// must follow them.
type TopicPage struct {
	Topics   []Topic
	RawCount int
	LastID   int
}

// HistoryPage is one page of topic history, newest first. RawCount and LastID
// describe the server page before empty entries are dropped.
type HistoryPage struct {
	Messages []Message
	RawCount int
	LastID   int
}
