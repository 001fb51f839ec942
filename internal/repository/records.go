package repository

import "time"

// MessageRecord is a row of telegram_messages_yday.
type MessageRecord struct {
	DateLabel      time.Time `gorm:"column:date_label;type:date;not null;index"`
	TopicID        int64     `gorm:"column:topic_id;not null;uniqueIndex:ux_messages_yday_topic_message"`
	TopicTitle     string    `gorm:"column:topic_title;size:255"`
	MessageID      int64     `gorm:"column:message_id;not null;uniqueIndex:ux_messages_yday_topic_message"`
	DateUTC        time.Time `gorm:"column:date_utc"`
	SenderID       *int64    `gorm:"column:sender_id"`
	SenderUsername *string   `gorm:"column:sender_username;size:64"`
	Text           string    `gorm:"column:text;type:text"`
	ReplyToMsgID   *int64    `gorm:"column:reply_to_msg_id"`
}

func (MessageRecord) TableName() string { return "telegram_messages_yday" }

// MemberCountRecord is a row of telegram_member_count_daily.
type MemberCountRecord struct {
	DateLabel    time.Time `gorm:"column:date_label;type:date;not null;index"`
	ChatID       int64     `gorm:"column:chat_id"`
	ChatTitle    string    `gorm:"column:chat_title;size:255"`
	MembersCount *int64    `gorm:"column:members_count"`
	TakenAtUTC   time.Time `gorm:"column:taken_at_utc"`
}

func (MemberCountRecord) TableName() string { return "telegram_member_count_daily" }

// ReportRecord is a row of telegram_yday_report.
type ReportRecord struct {
	DateLabel      time.Time `gorm:"column:date_label;type:date;not null;index"`
	Metric         string    `gorm:"column:metric;size:32;not null"`
	TopicID        *int64    `gorm:"column:topic_id"`
	TopicTitle     *string   `gorm:"column:topic_title;size:255"`
	MessageCount   *int64    `gorm:"column:message_count"`
	SenderID       *int64    `gorm:"column:sender_id"`
	SenderUsername *string   `gorm:"column:sender_username;size:64"`
	RankByMessages *int64    `gorm:"column:rank_by_messages"`
	Value          *int64    `gorm:"column:value"`
}

func (ReportRecord) TableName() string { return "telegram_yday_report" }
