package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jurisfix/jurisfix/backend/go-services/internal/document"
	"github.com/jurisfix/jurisfix/backend/go-services/pkg/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepo stores documents and correction history in two collections of
// the same database. Commit uses a multi-document transaction on replica sets
// and sharded clusters; a standalone server gets ordered, non-atomic writes.
type MongoRepo struct {
	docs    *mongo.Collection
	history *mongo.Collection
	txn     bool
}

func NewMongoRepo(db *mongo.Database) *MongoRepo {
	m := &MongoRepo{docs: db.Collection("documents"), history: db.Collection("correction_history"), txn: true}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := m.docs.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "updated_at", Value: -1}}}); err != nil {
		logger.Warnf("documents index: %v", err)
	}
	if _, err := m.history.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "document_id", Value: 1}, {Key: "created_at", Value: -1}}}); err != nil {
		logger.Warnf("correction_history index: %v", err)
	}
	ok, err := supportsTransactions(ctx, db)
	switch {
	case err != nil:
		logger.Warnf("mongo topology check: %v", err)
	case !ok:
		logger.Warnf("mongo is a standalone server; document and history writes are not atomic")
		m.txn = false
	}
	return m
}

// supportsTransactions reports whether the server is a replica set member or
// a mongos router.
func supportsTransactions(ctx context.Context, db *mongo.Database) (bool, error) {
	var hello struct {
		SetName string `bson:"setName"`
		Msg     string `bson:"msg"`
	}
	if err := db.RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&hello); err != nil {
		return false, err
	}
	return hello.SetName != "" || hello.Msg == "isdbgrid", nil
}

func ownedBy(id, owner string) bson.M {
	return bson.M{"_id": id, "owner_id": owner}
}

func (m *MongoRepo) Create(ctx context.Context, d *document.Document) error {
	d.Version = 1
	if _, err := m.docs.InsertOne(ctx, d); err != nil {
		d.Version = 0
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (m *MongoRepo) Get(ctx context.Context, id, owner string) (*document.Document, error) {
	var d document.Document
	err := m.docs.FindOne(ctx, ownedBy(id, owner)).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, document.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (m *MongoRepo) List(ctx context.Context, owner string, page, perPage int) ([]*document.Document, int, error) {
	filter := bson.M{"owner_id": owner}
	total, err := m.docs.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: -1}}).
		SetSkip(int64((page - 1) * perPage)).
		SetLimit(int64(perPage))
	cur, err := m.docs.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(ctx)
	out := []*document.Document{}
	for cur.Next(ctx) {
		var d document.Document
		if err := cur.Decode(&d); err != nil {
			return nil, 0, err
		}
		out = append(out, &d)
	}
	return out, int(total), cur.Err()
}

func (m *MongoRepo) Update(ctx context.Context, d *document.Document) error {
	return m.replace(ctx, d)
}

func (m *MongoRepo) replace(ctx context.Context, d *document.Document) error {
	filter := ownedBy(d.ID, d.OwnerID)
	filter["version"] = d.Version
	set := bson.M{
		"title":             d.Title,
		"content":           d.Content,
		"corrected_content": d.CorrectedContent,
		"agent_used":        d.AgentUsed,
		"status":            d.Status,
		"word_count":        d.WordCount,
		"corrections_count": d.CorrectionsCount,
		"processing_time":   d.ProcessingTime,
		"updated_at":        d.UpdatedAt,
		"version":           d.Version + 1,
	}
	res, err := m.docs.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		n, err := m.docs.CountDocuments(ctx, ownedBy(d.ID, d.OwnerID))
		if err != nil {
			return err
		}
		if n == 0 {
			return document.ErrNotFound
		}
		return document.ErrVersionConflict
	}
	d.Version++
	return nil
}

func (m *MongoRepo) Delete(ctx context.Context, id, owner string) error {
	res, err := m.docs.DeleteOne(ctx, ownedBy(id, owner))
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return document.ErrNotFound
	}
	return nil
}

func (m *MongoRepo) Commit(ctx context.Context, d *document.Document, h *document.CorrectionHistory, create bool) error {
	if !m.txn {
		return m.write(ctx, d, h, create)
	}
	sess, err := m.docs.Database().Client().StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(ctx)

	before := d.Version
	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		// WithTransaction may run the callback more than once
		d.Version = before
		return nil, m.write(sc, d, h, create)
	})
	if err != nil {
		d.Version = before
	}
	return err
}

// write stores d, then h. The history row is skipped when the document write
// fails.
func (m *MongoRepo) write(ctx context.Context, d *document.Document, h *document.CorrectionHistory, create bool) error {
	if create {
		if err := m.Create(ctx, d); err != nil {
			return err
		}
	} else if err := m.replace(ctx, d); err != nil {
		return err
	}
	if h != nil {
		if _, err := m.history.InsertOne(ctx, h); err != nil {
			return fmt.Errorf("insert history: %w", err)
		}
	}
	return nil
}

func (m *MongoRepo) History(ctx context.Context, documentID, owner string) ([]*document.CorrectionHistory, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := m.history.Find(ctx, bson.M{"document_id": documentID, "owner_id": owner}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*document.CorrectionHistory{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *MongoRepo) Stats(ctx context.Context, owner string, monthStart time.Time) (document.Stats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"owner_id": owner}}},
		{{Key: "$group", Value: bson.M{
			"_id":         nil,
			"documents":   bson.M{"$sum": 1},
			"words":       bson.M{"$sum": "$word_count"},
			"corrections": bson.M{"$sum": "$corrections_count"},
			"month": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$gte": bson.A{"$created_at", monthStart}}, 1, 0,
			}}},
		}}},
	}
	cur, err := m.docs.Aggregate(ctx, pipeline)
	if err != nil {
		return document.Stats{}, err
	}
	defer cur.Close(ctx)
	var row struct {
		Documents   int `bson:"documents"`
		Words       int `bson:"words"`
		Corrections int `bson:"corrections"`
		Month       int `bson:"month"`
	}
	if cur.Next(ctx) {
		if err := cur.Decode(&row); err != nil {
			return document.Stats{}, err
		}
	}
	if err := cur.Err(); err != nil {
		return document.Stats{}, err
	}
	favorite, err := m.favoriteAgent(ctx, owner)
	if err != nil {
		return document.Stats{}, err
	}
	return document.Stats{
		TotalDocuments:     row.Documents,
		TotalWords:         row.Words,
		TotalCorrections:   row.Corrections,
		DocumentsThisMonth: row.Month,
		FavoriteAgent:      favorite,
	}, nil
}

func (m *MongoRepo) favoriteAgent(ctx context.Context, owner string) (string, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"owner_id": owner, "agent_used": bson.M{"$nin": bson.A{nil, ""}}}}},
		{{Key: "$group", Value: bson.M{"_id": "$agent_used", "n": bson.M{"$sum": 1}}}},
		{{Key: "$sort", Value: bson.D{{Key: "n", Value: -1}, {Key: "_id", Value: 1}}}},
		{{Key: "$limit", Value: 1}},
	}
	cur, err := m.docs.Aggregate(ctx, pipeline)
	if err != nil {
		return "", err
	}
	defer cur.Close(ctx)
	var row struct {
		Agent string `bson:"_id"`
	}
	if cur.Next(ctx) {
		if err := cur.Decode(&row); err != nil {
			return "", err
		}
	}
	return row.Agent, cur.Err()
}

func (m *MongoRepo) MonthlyCounts(ctx context.Context, owner string, since time.Time) (map[string]int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"owner_id": owner, "created_at": bson.M{"$gte": since}}}},
		{{Key: "$group", Value: bson.M{
			"_id": bson.M{"$dateToString": bson.M{"format": "%Y-%m", "date": "$created_at", "timezone": "UTC"}},
			"n":   bson.M{"$sum": 1},
		}}},
	}
	cur, err := m.docs.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := make(map[string]int)
	for cur.Next(ctx) {
		var row struct {
			Month string `bson:"_id"`
			N     int    `bson:"n"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out[row.Month] = row.N
	}
	return out, cur.Err()
}
