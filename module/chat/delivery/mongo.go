package delivery

import (
	"context"

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
	r := chatmodel.DeliveryRecord{}
	return &MongoStore{coll: db.Collection(r.GetTableName())}
}

func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: chatmodel.DeliveryFieldServerMsgID, Value: 1},
				{Key: chatmodel.DeliveryFieldRecipientID, Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName("uniq_msg_recipient"),
		},
		{
			Keys: bson.D{
				{Key: chatmodel.DeliveryFieldStatus, Value: 1},
				{Key: chatmodel.DeliveryFieldLastAttempt, Value: 1},
			},
			Options: options.Index().SetName("status_last_attempt"),
		},
	})
	return err
}

func (s *MongoStore) Insert(ctx context.Context, recs []*chatmodel.DeliveryRecord) error {
	if len(recs) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(recs))
	for _, r := range recs {
		docs = append(docs, r)
	}
	_, err := s.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return errs.WrapMsg(err, "insert delivery records")
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, serverMsgID, recipientID string) (*chatmodel.DeliveryRecord, error) {
	var rec chatmodel.DeliveryRecord
	err := s.coll.FindOne(ctx, bson.M{
		chatmodel.DeliveryFieldServerMsgID: serverMsgID,
		chatmodel.DeliveryFieldRecipientID: recipientID,
	}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, errs.ErrRecordNotFound.WrapMsg("delivery record",
			"msg", serverMsgID, "recipient", recipientID)
	}
	if err != nil {
		return nil, errs.Wrap(err)
	}
	return &rec, nil
}

func (s *MongoStore) transition(ctx context.Context, serverMsgID, recipientID string,
	from []chatmodel.DeliveryStatus, to chatmodel.DeliveryStatus, nowMS int64) (bool, error) {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{
			chatmodel.DeliveryFieldServerMsgID: serverMsgID,
			chatmodel.DeliveryFieldRecipientID: recipientID,
			chatmodel.DeliveryFieldStatus:      bson.M{"$in": from},
		},
		bson.M{"$set": bson.M{
			chatmodel.DeliveryFieldStatus:     to,
			chatmodel.DeliveryFieldUpdateTime: nowMS,
		}},
	)
	if err != nil {
		return false, errs.Wrap(err)
	}
	return res.ModifiedCount > 0, nil
}

func (s *MongoStore) MarkDelivered(ctx context.Context, serverMsgID, recipientID string, nowMS int64) (bool, error) {
	return s.transition(ctx, serverMsgID, recipientID,
		[]chatmodel.DeliveryStatus{chatmodel.DeliveryPending},
		chatmodel.DeliveryDelivered, nowMS)
}

func (s *MongoStore) Acknowledge(ctx context.Context, serverMsgID, recipientID string, nowMS int64) (bool, error) {
	return s.transition(ctx, serverMsgID, recipientID,
		[]chatmodel.DeliveryStatus{chatmodel.DeliveryPending, chatmodel.DeliveryDelivered},
		chatmodel.DeliveryAcknowledged, nowMS)
}

func (s *MongoStore) Expire(ctx context.Context, serverMsgID, recipientID string, nowMS int64) (bool, error) {
	return s.transition(ctx, serverMsgID, recipientID,
		[]chatmodel.DeliveryStatus{chatmodel.DeliveryPending, chatmodel.DeliveryDelivered},
		chatmodel.DeliveryExpired, nowMS)
}

func (s *MongoStore) MarkAttempt(ctx context.Context, serverMsgID, recipientID string, nowMS int64) error {
	_, err := s.coll.UpdateOne(ctx,
		bson.M{
			chatmodel.DeliveryFieldServerMsgID: serverMsgID,
			chatmodel.DeliveryFieldRecipientID: recipientID,
		},
		bson.M{
			"$inc": bson.M{chatmodel.DeliveryFieldAttempts: 1},
			"$set": bson.M{
				chatmodel.DeliveryFieldLastAttempt: nowMS,
				chatmodel.DeliveryFieldUpdateTime:  nowMS,
			},
		},
	)
	return errs.Wrap(err)
}

func (s *MongoStore) Due(ctx context.Context, beforeMS int64, limit int64) ([]*chatmodel.DeliveryRecord, error) {
	if limit <= 0 {
		limit = 500
	}
	cur, err := s.coll.Find(ctx,
		bson.M{
			chatmodel.DeliveryFieldStatus: bson.M{"$in": []chatmodel.DeliveryStatus{
				chatmodel.DeliveryPending, chatmodel.DeliveryDelivered,
			}},
			chatmodel.DeliveryFieldLastAttempt: bson.M{"$lte": beforeMS},
		},
		options.Find().
			SetSort(bson.D{{Key: chatmodel.DeliveryFieldLastAttempt, Value: 1}}).
			SetLimit(limit),
	)
	if err != nil {
		return nil, errs.Wrap(err)
	}
	defer func() { _ = cur.Close(ctx) }()

	var out []*chatmodel.DeliveryRecord
	for cur.Next(ctx) {
		var rec chatmodel.DeliveryRecord
		if err := cur.Decode(&rec); err != nil {
			return nil, errs.Wrap(err)
		}
		out = append(out, &rec)
	}
	return out, cur.Err()
}

func (s *MongoStore) PurgeExpired(ctx context.Context, beforeMS int64) (int64, error) {
	res, err := s.coll.DeleteMany(ctx, bson.M{
		chatmodel.DeliveryFieldStatus:     chatmodel.DeliveryExpired,
		chatmodel.DeliveryFieldUpdateTime: bson.M{"$lte": beforeMS},
	})
	if err != nil {
		return 0, errs.Wrap(err)
	}
	return res.DeletedCount, nil
}
