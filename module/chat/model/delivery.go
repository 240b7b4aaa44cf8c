package model

const (
	DeliveryTableName = "delivery_records"

	DeliveryFieldServerMsgID    = "server_msg_id"
	DeliveryFieldConversationID = "conversation_id"
	DeliveryFieldRecipientID    = "recipient_id"
	DeliveryFieldStatus         = "status"
	DeliveryFieldAttempts       = "attempts"
	DeliveryFieldLastAttempt    = "last_attempt"
	DeliveryFieldCreateTime     = "create_time"
	DeliveryFieldUpdateTime     = "update_time"
)

// DeliveryStatus transitions are monotone:
// pending -> delivered -> acknowledged, with expired terminal from
// pending or delivered. Acknowledged and expired records are never retried.
type DeliveryStatus int32

const (
	DeliveryPending      DeliveryStatus = 0
	DeliveryDelivered    DeliveryStatus = 1
	DeliveryAcknowledged DeliveryStatus = 2
	DeliveryExpired      DeliveryStatus = 3
)

func (s DeliveryStatus) String() string {
	switch s {
	case DeliveryPending:
		return "pending"
	case DeliveryDelivered:
		return "delivered"
	case DeliveryAcknowledged:
		return "acknowledged"
	case DeliveryExpired:
		return "expired"
	}
	return "unknown"
}

// DeliveryRecord tracks one (message, recipient) pair through delivery and
// acknowledgment. The message itself stays immutable; only this record
// changes.
type DeliveryRecord struct {
	ServerMsgID    string         `bson:"server_msg_id" json:"server_msg_id"`
	ConversationID string         `bson:"conversation_id" json:"conversation_id"`
	RecipientID    string         `bson:"recipient_id" json:"recipient_id"`
	Status         DeliveryStatus `bson:"status" json:"status"`
	Attempts       int            `bson:"attempts" json:"attempts"`
	LastAttempt    int64          `bson:"last_attempt" json:"last_attempt"` // unix ms
	CreateTime     int64          `bson:"create_time" json:"create_time"`   // unix ms
	UpdateTime     int64          `bson:"update_time" json:"update_time"`   // unix ms
}

func (*DeliveryRecord) GetTableName() string { return DeliveryTableName }
