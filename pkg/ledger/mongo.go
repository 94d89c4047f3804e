package ledger

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/BartekS5/ticketflow/pkg/etlerr"
	"github.com/BartekS5/ticketflow/pkg/models"
)

const collectionName = "pipeline_runs"

// Mongo upserts reports keyed by run id, so recording the same run twice
// overwrites the earlier document.
type Mongo struct {
	coll *mongo.Collection
}

func NewMongo(client *mongo.Client, database string) *Mongo {
	return &Mongo{coll: client.Database(database).Collection(collectionName)}
}

func (m *Mongo) Record(ctx context.Context, report *models.RunReport) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	filter := bson.M{"_id": report.RunID}
	opts := options.Replace().SetUpsert(true)
	if _, err := m.coll.ReplaceOne(ctx, filter, report, opts); err != nil {
		return etlerr.Wrap("record run "+report.RunID, err)
	}
	return nil
}

func (m *Mongo) Recent(ctx context.Context, limit int) ([]models.RunReport, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	findOpts := options.Find().SetSort(bson.M{"started_at": -1})
	if limit > 0 {
		findOpts.SetLimit(int64(limit))
	}
	cursor, err := m.coll.Find(ctx, bson.M{}, findOpts)
	if err != nil {
		return nil, etlerr.Wrap("list runs", err)
	}
	defer cursor.Close(ctx)

	var reports []models.RunReport
	if err := cursor.All(ctx, &reports); err != nil {
		return nil, etlerr.Wrap("decode runs", err)
	}
	return reports, nil
}
