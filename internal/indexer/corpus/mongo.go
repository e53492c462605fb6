package corpus

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/config"
)

const mongoBatchSize = 5000

// MongoCollection reads pages from a MongoDB collection whose _id is the
// numeric document id. Pages are read in _id order in fixed-size batches.
type MongoCollection struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger *slog.Logger
}

type mongoDoc struct {
	ID     int64    `bson:"_id"`
	Title  string   `bson:"title"`
	Body   string   `bson:"body"`
	Anchor []string `bson:"anchor"`
}

// NewMongoCollection connects and pings the server.
func NewMongoCollection(ctx context.Context, cfg config.MongoConfig) (*MongoCollection, error) {
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client, err := mongo.Connect(cctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}
	if err := client.Ping(cctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging mongodb: %w", err)
	}
	return &MongoCollection{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
		logger: slog.Default().With("component", "corpus-mongo", "collection", cfg.Collection),
	}, nil
}

func (m *MongoCollection) Load(ctx context.Context) ([]Document, error) {
	var docs []Document
	lastID := int64(math.MinInt64)
	for {
		filter := bson.M{"_id": bson.M{"$gt": lastID}}
		opts := options.Find().
			SetSort(bson.D{{Key: "_id", Value: 1}}).
			SetLimit(mongoBatchSize)

		cursor, err := m.coll.Find(ctx, filter, opts)
		if err != nil {
			return nil, fmt.Errorf("querying corpus: %w", err)
		}
		var batch []mongoDoc
		err = cursor.All(ctx, &batch)
		cursor.Close(ctx)
		if err != nil {
			return nil, fmt.Errorf("decoding corpus batch: %w", err)
		}
		for _, d := range batch {
			if d.ID < 0 || d.ID > math.MaxUint32 {
				m.logger.Warn("skipping page with out-of-range id", "id", d.ID)
				continue
			}
			docs = append(docs, Document{
				ID:     uint32(d.ID),
				Title:  d.Title,
				Body:   d.Body,
				Anchor: strings.Join(d.Anchor, " "),
			})
		}
		if len(batch) < mongoBatchSize {
			break
		}
		lastID = batch[len(batch)-1].ID
		m.logger.Debug("corpus batch read", "docs", len(docs), "last_id", lastID)
	}
	return docs, nil
}

func (m *MongoCollection) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
