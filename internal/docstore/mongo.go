// ABOUTME: MongoDB implementation of the document Store
// ABOUTME: Connects lazily on first use and maps ObjectIDs to hex strings

package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements Store on a MongoDB database.
type MongoStore struct {
	uri      string
	database string
	logger   *slog.Logger

	mu     sync.Mutex
	client *mongo.Client
}

// NewMongoStore returns a store for the named database. No connection is made
// until the first operation.
func NewMongoStore(uri, database string, logger *slog.Logger) *MongoStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MongoStore{
		uri:      uri,
		database: database,
		logger:   logger.With("component", "docstore"),
	}
}

func (s *MongoStore) collection(ctx context.Context, name string) (*mongo.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(s.uri))
		if err != nil {
			return nil, fmt.Errorf("connecting to mongodb: %w", err)
		}
		s.client = client
		s.logger.Info("MongoDB document store connected", "database", s.database)
	}
	return s.client.Database(s.database).Collection(name), nil
}

// Insert stores docs and returns their ids.
func (s *MongoStore) Insert(ctx context.Context, collection string, docs []Document) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	coll, err := s.collection(ctx, collection)
	if err != nil {
		return nil, err
	}

	payload := make([]any, 0, len(docs))
	for _, doc := range docs {
		payload = append(payload, withoutID(doc))
	}
	res, err := coll.InsertMany(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("inserting documents: %w", err)
	}

	ids := make([]string, 0, len(res.InsertedIDs))
	for _, id := range res.InsertedIDs {
		ids = append(ids, idString(id))
	}
	return ids, nil
}

// InsertOne stores a single document.
func (s *MongoStore) InsertOne(ctx context.Context, collection string, doc Document) (string, error) {
	coll, err := s.collection(ctx, collection)
	if err != nil {
		return "", err
	}
	res, err := coll.InsertOne(ctx, withoutID(doc))
	if err != nil {
		return "", fmt.Errorf("inserting document: %w", err)
	}
	return idString(res.InsertedID), nil
}

// Find returns matching documents.
func (s *MongoStore) Find(ctx context.Context, collection string, q Query) ([]Document, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	coll, err := s.collection(ctx, collection)
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetLimit(int64(q.EffectiveLimit()))
	if len(q.Sort) > 0 {
		sort := bson.D{}
		for _, f := range q.Sort {
			dir := 1
			if f.Desc {
				dir = -1
			}
			sort = append(sort, bson.E{Key: f.Field, Value: dir})
		}
		opts.SetSort(sort)
	}
	if len(q.Projection) > 0 {
		proj := bson.D{}
		for _, f := range q.Projection {
			proj = append(proj, bson.E{Key: f, Value: 1})
		}
		opts.SetProjection(proj)
	}

	cursor, err := coll.Find(ctx, mongoFilter(q.Filter), opts)
	if err != nil {
		return nil, fmt.Errorf("finding documents: %w", err)
	}
	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("decoding documents: %w", err)
	}

	docs := make([]Document, 0, len(raw))
	for _, m := range raw {
		docs = append(docs, Document(fromBSON(m).(map[string]any)))
	}
	return docs, nil
}

// Upsert applies doc as a "$set" on the first match, inserting when none matches.
func (s *MongoStore) Upsert(ctx context.Context, collection string, filter Filter, doc Document) (string, error) {
	if err := validateQuery(Query{Filter: filter}); err != nil {
		return "", err
	}
	coll, err := s.collection(ctx, collection)
	if err != nil {
		return "", err
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After).
		SetProjection(bson.M{IDField: 1})
	var out bson.M
	err = coll.FindOneAndUpdate(ctx, mongoFilter(filter), bson.M{"$set": withoutID(doc)}, opts).Decode(&out)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", fmt.Errorf("upsert returned no document: %w", err)
		}
		return "", fmt.Errorf("upserting document: %w", err)
	}
	return idString(out[IDField]), nil
}

// Close disconnects the client if one was created.
func (s *MongoStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Disconnect(context.Background())
	s.client = nil
	return err
}

func withoutID(doc Document) bson.M {
	out := bson.M{}
	for k, v := range doc {
		if k == IDField {
			continue
		}
		out[k] = v
	}
	return out
}

// mongoFilter converts a string _id condition into an ObjectID when it parses as one.
func mongoFilter(filter Filter) bson.M {
	out := bson.M{}
	for k, v := range filter {
		if k == IDField {
			if s, ok := v.(string); ok {
				if oid, err := primitive.ObjectIDFromHex(s); err == nil {
					out[k] = oid
					continue
				}
			}
		}
		out[k] = v
	}
	return out
}

func idString(id any) string {
	switch v := id.(type) {
	case primitive.ObjectID:
		return v.Hex()
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// fromBSON converts driver types into plain maps, slices, and strings.
func fromBSON(v any) any {
	switch t := v.(type) {
	case bson.M:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if k == IDField {
				out[k] = idString(val)
				continue
			}
			out[k] = fromBSON(val)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = fromBSON(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, 0, len(t))
		for _, val := range t {
			out = append(out, fromBSON(val))
		}
		return out
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time().UTC().Format("2006-01-02T15:04:05.999999999Z07:00")
	default:
		return v
	}
}
