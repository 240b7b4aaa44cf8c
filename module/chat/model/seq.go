package model

import "time"

const (
	SeqConvTableName = "seq_conversation"

	SeqConvFieldConversationID = "conversation_id"
	SeqConvFieldMaxSeq         = "max_seq"
	SeqConvFieldCreateTime     = "create_time"
	SeqConvFieldUpdateTime     = "update_time"
)

// SeqConversation records the durable per-conversation sequence floor. The
// Redis counter is the fast path; this document is the recovery source when
// the counter is missing or behind.
type SeqConversation struct {
	ConversationID string    `bson:"conversation_id"`
	MaxSeq         int64     `bson:"max_seq"`
	CreateTime     time.Time `bson:"create_time"`
	UpdateTime     time.Time `bson:"update_time"`
}

func (*SeqConversation) GetTableName() string { return SeqConvTableName }
