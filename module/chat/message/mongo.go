package message

import (
	"context"
	"strings"

	chatmodel "SuperChat/module/chat/model"
	"SuperChat/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const uniqSeqIndexName = "uniq_conv_seq"

type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	m := chatmodel.MessageModel{}
	return &MongoStore{coll: db.Collection(m.GetTableName())}
}

// EnsureIndexes creates the unique (conversation_id, seq) index backing the
// no-duplicate invariant, plus the server_msg_id lookup index.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: chatmodel.MsgFieldConversationID, Value: 1},
				{Key: chatmodel.MsgFieldSeq, Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName(uniqSeqIndexName),
		},
		{
			Keys:    bson.D{{Key: chatmodel.MsgFieldServerMsgID, Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_server_msg_id"),
		},
	})
	return err
}

func (s *MongoStore) Insert(ctx context.Context, m *chatmodel.MessageModel) error {
	_, err := s.coll.InsertOne(ctx, m)
	if err != nil {
		return errs.WrapMsg(err, "insert message",
			"conv", m.ConversationID, "seq", m.Seq)
	}
	return nil
}

func (s *MongoStore) GetByServerID(ctx context.Context, serverMsgID string) (*chatmodel.MessageModel, error) {
	var m chatmodel.MessageModel
	err := s.coll.FindOne(ctx, bson.M{chatmodel.MsgFieldServerMsgID: serverMsgID}).Decode(&m)
	if err == mongo.ErrNoDocuments {
		return nil, errs.ErrRecordNotFound.WrapMsg("message", "server_msg_id", serverMsgID)
	}
	if err != nil {
		return nil, errs.Wrap(err)
	}
	return &m, nil
}

func (s *MongoStore) List(ctx context.Context, convID string, fromSeq, limit int64) ([]*chatmodel.MessageModel, error) {
	if limit <= 0 {
		limit = 100
	}
	cur, err := s.coll.Find(ctx,
		bson.M{
			chatmodel.MsgFieldConversationID: convID,
			chatmodel.MsgFieldSeq:            bson.M{"$gt": fromSeq},
		},
		options.Find().
			SetSort(bson.D{{Key: chatmodel.MsgFieldSeq, Value: 1}}).
			SetLimit(limit),
	)
	if err != nil {
		return nil, errs.Wrap(err)
	}
	defer func() { _ = cur.Close(ctx) }()

	var out []*chatmodel.MessageModel
	for cur.Next(ctx) {
		var m chatmodel.MessageModel
		if err := cur.Decode(&m); err != nil {
			return nil, errs.Wrap(err)
		}
		out = append(out, &m)
	}
	return out, cur.Err()
}

func (s *MongoStore) MaxSeq(ctx context.Context, convID string) (int64, error) {
	cur, err := s.coll.Find(ctx,
		bson.M{chatmodel.MsgFieldConversationID: convID},
		options.Find().
			SetSort(bson.D{{Key: chatmodel.MsgFieldSeq, Value: -1}}).
			SetLimit(1),
	)
	if err != nil {
		return 0, errs.Wrap(err)
	}
	defer func() { _ = cur.Close(ctx) }()
	if cur.Next(ctx) {
		var m chatmodel.MessageModel
		if err := cur.Decode(&m); err != nil {
			return 0, errs.Wrap(err)
		}
		return m.Seq, nil
	}
	return 0, cur.Err()
}

func (s *MongoStore) IsDupSeq(err error) bool {
	if err == nil {
		return false
	}
	return mongo.IsDuplicateKeyError(err) && strings.Contains(err.Error(), uniqSeqIndexName)
}
