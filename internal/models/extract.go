// Package models holds the row shapes shared by the extractor, the report builder and the stores.
// Struct tags define the Parquet column names.
package models

// ExtractRow is one message of the extract, denormalized with its topic.
type ExtractRow struct {
	TopicID        int64   `parquet:"topic_id"`
	TopicTitle     string  `parquet:"topic_title"`
	MessageID      int64   `parquet:"message_id"`
	DateUTC        string  `parquet:"date_utc"` // RFC 3339, UTC
	SenderID       *int64  `parquet:"sender_id,optional"`
	SenderUsername *string `parquet:"sender_username,optional"`
	Text           string  `parquet:"text"`
	ReplyToMsgID   *int64  `parquet:"reply_to_msg_id,optional"`
}

// Key identifies a row within the extract.
type Key struct {
	TopicID   int64
	MessageID int64
}

// Key returns the (topic, message) identity of the row.
func (r ExtractRow) Key() Key {
	return Key{TopicID: r.TopicID, MessageID: r.MessageID}
}

// Less orders keys by topic, then message.
func (k Key) Less(o Key) bool {
	if k.TopicID != o.TopicID {
		return k.TopicID < o.TopicID
	}
	return k.MessageID < o.MessageID
}
