package model

import "time"

const (
	ConversationTableName = "conversations"

	ConvFieldConversationID = "conversation_id"
	ConvFieldMembers        = "members"
	ConvFieldArchived       = "archived"
	ConvFieldCreatorID      = "creator_id"
	ConvFieldCreateTime     = "create_time"
	ConvFieldUpdateTime     = "update_time"
)

// Conversation is the routing unit: an ordered set of members plus the
// archived flag. Conversations are never deleted, only archived.
type Conversation struct {
	ConversationID string    `bson:"conversation_id" json:"conversation_id"`
	CreatorID      string    `bson:"creator_id" json:"creator_id"`
	Members        []string  `bson:"members" json:"members"`
	Archived       bool      `bson:"archived" json:"archived"`
	CreateTime     time.Time `bson:"create_time" json:"create_time"`
	UpdateTime     time.Time `bson:"update_time" json:"update_time"`
}

func (*Conversation) GetTableName() string { return ConversationTableName }

func (c *Conversation) HasMember(userID string) bool {
	for _, m := range c.Members {
		if m == userID {
			return true
		}
	}
	return false
}
