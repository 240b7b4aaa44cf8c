package seq

import (
	"context"
	"time"

	chatmodel "SuperChat/module/chat/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DAO persists the per-conversation sequence floor in seq_conversation.
type DAO struct{ DB *mongo.Database }

func (d *DAO) coll() *mongo.Collection {
	s := chatmodel.SeqConversation{}
	return d.DB.Collection(s.GetTableName())
}

// MaxSeq reads the durable floor; a missing document means zero.
func (d *DAO) MaxSeq(ctx context.Context, convID string) (int64, error) {
	var doc chatmodel.SeqConversation
	err := d.coll().FindOne(ctx,
		bson.M{chatmodel.SeqConvFieldConversationID: convID},
	).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return doc.MaxSeq, nil
}

// AdvanceCommit raises the floor: max_seq = max(max_seq, toSeq).
func (d *DAO) AdvanceCommit(ctx context.Context, convID string, toSeq int64) error {
	now := time.Now()
	_, err := d.coll().UpdateOne(ctx,
		bson.M{chatmodel.SeqConvFieldConversationID: convID},
		bson.M{
			"$max":         bson.M{chatmodel.SeqConvFieldMaxSeq: toSeq},
			"$set":         bson.M{chatmodel.SeqConvFieldUpdateTime: now},
			"$setOnInsert": bson.M{chatmodel.SeqConvFieldCreateTime: now},
		},
		options.Update().SetUpsert(true),
	)
	return err
}
