package model

const (
	MsgTableName = "messages"

	MsgFieldConversationID = "conversation_id"
	MsgFieldSeq            = "seq"
	MsgFieldServerMsgID    = "server_msg_id"
	MsgFieldClientMsgID    = "client_msg_id"
	MsgFieldSenderID       = "sender_id"
	MsgFieldCreateTime     = "create_time"
)

// Content type values carried on the payload (business enum).
const (
	ContentTypeText   int32 = 1
	ContentTypeImage  int32 = 2
	ContentTypeAudio  int32 = 3
	ContentTypeVideo  int32 = 4
	ContentTypeFile   int32 = 5
	ContentTypeSystem int32 = 9
)

// MessageModel is one persisted message. Immutable once inserted; seq is
// unique and strictly increasing within its conversation.
type MessageModel struct {
	ConversationID string `bson:"conversation_id" json:"conversation_id"`
	Seq            int64  `bson:"seq" json:"seq"`
	ServerMsgID    string `bson:"server_msg_id" json:"server_msg_id"`
	ClientMsgID    string `bson:"client_msg_id" json:"client_msg_id"`
	SenderID       string `bson:"sender_id" json:"sender_id"`
	ContentType    int32  `bson:"content_type" json:"content_type"`
	Content        string `bson:"content" json:"content"`
	CreateTime     int64  `bson:"create_time" json:"create_time"` // unix ms
}

func (*MessageModel) GetTableName() string { return MsgTableName }
