package models

// Metric names of the report rows.
const (
	MetricMessagesPerTopic = "messages_per_topic"
	MetricContributors     = "contributors"
	MetricTopicsCount      = "topics_count"
	MetricMessagesTotal    = "messages_total"
)

// ReportRow is the superset schema shared by every report facet.
// Fields a facet does not use stay nil.
type ReportRow struct {
	DateLabel      string  `parquet:"date_label"`
	Metric         string  `parquet:"metric"`
	TopicID        *int64  `parquet:"topic_id,optional"`
	TopicTitle     *string `parquet:"topic_title,optional"`
	MessageCount   *int64  `parquet:"message_count,optional"`
	SenderID       *int64  `parquet:"sender_id,optional"`
	SenderUsername *string `parquet:"sender_username,optional"`
	RankByMessages *int64  `parquet:"rank_by_messages,optional"`
	Value          *int64  `parquet:"value,optional"`
}

// MemberCountSnapshot is the daily member count of the chat.
type MemberCountSnapshot struct {
	DateLabel    string `parquet:"date_label"`
	ChatID       int64  `parquet:"chat_id"`
	ChatTitle    string `parquet:"chat_title"`
	MembersCount *int64 `parquet:"members_count,optional"`
	TakenAtUTC   string `parquet:"taken_at_utc"`
}
