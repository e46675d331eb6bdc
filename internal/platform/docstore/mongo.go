package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoStore is the default backend.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// OpenMongo connects to uri, verifies the primary is reachable and returns a
// store bound to database.
func OpenMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &MongoStore{client: client, db: client.Database(database)}, nil
}

func (s *MongoStore) Collection(name string) Collection {
	return &mongoCollection{coll: s.db.Collection(name)}
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// EnsureIndexes creates the indexes the repositories rely on. It is safe to
// call on every start.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		Staff: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		Patients: {
			{Keys: bson.D{{Key: "id", Value: 1}}},
			{Keys: bson.D{{Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "ptName", Value: 1}, {Key: "phoneNo", Value: 1}}},
		},
		Services: {
			{Keys: bson.D{{Key: "isActive", Value: 1}}},
		},
	}
	for coll, models := range indexes {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", coll, err)
		}
	}
	return nil
}

type mongoCollection struct {
	coll *mongo.Collection
}

func (c *mongoCollection) Name() string { return c.coll.Name() }

func (c *mongoCollection) Insert(ctx context.Context, doc Document) error {
	if doc.DocumentID() == "" {
		doc.SetDocumentID(primitive.NewObjectID().Hex())
	}
	if _, err := c.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert %s: %w", c.Name(), err)
	}
	return nil
}

func (c *mongoCollection) FindOne(ctx context.Context, f Filter, out Document) error {
	err := c.coll.FindOne(ctx, toBSON(f)).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("find %s: %w", c.Name(), err)
	}
	return nil
}

func (c *mongoCollection) Find(ctx context.Context, f Filter, opts FindOptions, out interface{}) error {
	fo := options.Find()
	if opts.Sort != nil {
		fo.SetSort(sortBSON(*opts.Sort))
	}
	if opts.Limit > 0 {
		fo.SetLimit(int64(opts.Limit))
	}

	cur, err := c.coll.Find(ctx, toBSON(f), fo)
	if err != nil {
		return fmt.Errorf("find %s: %w", c.Name(), err)
	}
	if err := cur.All(ctx, out); err != nil {
		return fmt.Errorf("decode %s: %w", c.Name(), err)
	}
	return nil
}

func (c *mongoCollection) Replace(ctx context.Context, doc Document) error {
	res, err := c.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: doc.DocumentID()}}, doc)
	if err != nil {
		return fmt.Errorf("replace %s: %w", c.Name(), err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *mongoCollection) Delete(ctx context.Context, id string) error {
	res, err := c.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return fmt.Errorf("delete %s: %w", c.Name(), err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *mongoCollection) Count(ctx context.Context, f Filter) (int64, error) {
	n, err := c.coll.CountDocuments(ctx, toBSON(f))
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", c.Name(), err)
	}
	return n, nil
}

func toBSON(f Filter) bson.D {
	d := bson.D{}
	for _, cond := range f {
		switch cond.Op {
		case OpGt:
			d = append(d, bson.E{Key: cond.Field, Value: bson.D{{Key: "$gt", Value: cond.Value}}})
		default:
			d = append(d, bson.E{Key: cond.Field, Value: cond.Value})
		}
	}
	return d
}

func sortBSON(s Sort) bson.D {
	dir := 1
	if s.Desc {
		dir = -1
	}
	return bson.D{{Key: s.Field, Value: dir}}
}
