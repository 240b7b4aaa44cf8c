package conversation

import (
	"context"
	"time"

	chatmodel "SuperChat/module/chat/model"
	"SuperChat/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	c := chatmodel.Conversation{}
	return &MongoStore{coll: db.Collection(c.GetTableName())}
}

func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: chatmodel.ConvFieldConversationID, Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uniq_conversation_id"),
	})
	return err
}

func (s *MongoStore) Create(ctx context.Context, conv *chatmodel.Conversation) error {
	now := time.Now()
	conv.CreateTime = now
	conv.UpdateTime = now
	_, err := s.coll.InsertOne(ctx, conv)
	if mongo.IsDuplicateKeyError(err) {
		return errs.ErrRecordExists.WrapMsg("conversation", "conv", conv.ConversationID)
	}
	if err != nil {
		return errs.WrapMsg(err, "create conversation", "conv", conv.ConversationID)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, convID string) (*chatmodel.Conversation, error) {
	var conv chatmodel.Conversation
	err := s.coll.FindOne(ctx, bson.M{chatmodel.ConvFieldConversationID: convID}).Decode(&conv)
	if err == mongo.ErrNoDocuments {
		return nil, errs.ErrRecordNotFound.WrapMsg("conversation", "conv", convID)
	}
	if err != nil {
		return nil, errs.Wrap(err)
	}
	return &conv, nil
}

func (s *MongoStore) AddMember(ctx context.Context, convID, userID string) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{chatmodel.ConvFieldConversationID: convID},
		bson.M{
			"$addToSet": bson.M{chatmodel.ConvFieldMembers: userID},
			"$set":      bson.M{chatmodel.ConvFieldUpdateTime: time.Now()},
		},
	)
	if err != nil {
		return errs.Wrap(err)
	}
	if res.MatchedCount == 0 {
		return errs.ErrRecordNotFound.WrapMsg("conversation", "conv", convID)
	}
	return nil
}

func (s *MongoStore) RemoveMember(ctx context.Context, convID, userID string) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{chatmodel.ConvFieldConversationID: convID},
		bson.M{
			"$pull": bson.M{chatmodel.ConvFieldMembers: userID},
			"$set":  bson.M{chatmodel.ConvFieldUpdateTime: time.Now()},
		},
	)
	if err != nil {
		return errs.Wrap(err)
	}
	if res.MatchedCount == 0 {
		return errs.ErrRecordNotFound.WrapMsg("conversation", "conv", convID)
	}
	return nil
}

func (s *MongoStore) Archive(ctx context.Context, convID string) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{chatmodel.ConvFieldConversationID: convID},
		bson.M{"$set": bson.M{
			chatmodel.ConvFieldArchived:   true,
			chatmodel.ConvFieldUpdateTime: time.Now(),
		}},
	)
	if err != nil {
		return errs.Wrap(err)
	}
	if res.MatchedCount == 0 {
		return errs.ErrRecordNotFound.WrapMsg("conversation", "conv", convID)
	}
	return nil
}
