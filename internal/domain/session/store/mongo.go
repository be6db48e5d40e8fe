// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/therapyflow/internal/domain/session/model"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongoopts "go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

const (
	defaultMongoDatabase   = "therapyflow"
	defaultMongoCollection = "sessions"
	defaultMongoOpTimeout  = 5 * time.Second
	mongoUpdateAttempts    = 5
)

// ErrConcurrentUpdate is returned when optimistic updates keep losing races.
var ErrConcurrentUpdate = errors.New("concurrent session update")

// MongoConfig configures the Mongo backend.
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

// MongoStore stores sessions in a MongoDB collection keyed by session id.
type MongoStore struct {
	client  *mongo.Client
	coll    *mongo.Collection
	timeout time.Duration
	opts    options
}

type sessionDocument struct {
	ID            string    `bson:"_id"`
	PatientID     string    `bson:"patientId"`
	AudioFileName string    `bson:"audioFileName"`
	AudioSize     int64     `bson:"audioSize"`
	Status        string    `bson:"status"`
	Transcript    string    `bson:"transcript"`
	BotResponse   string    `bson:"botResponse"`
	IsUrgent      bool      `bson:"isUrgent"`
	SafetyFlags   []string  `bson:"safetyFlags"`
	CreatedAt     time.Time `bson:"createdAt"`
	UpdatedAt     time.Time `bson:"updatedAt"`
}

func toDocument(s *model.Session) sessionDocument {
	return sessionDocument{
		ID:            s.ID,
		PatientID:     s.PatientID,
		AudioFileName: s.AudioFileName,
		AudioSize:     s.AudioSize,
		Status:        string(s.Status),
		Transcript:    s.Transcript,
		BotResponse:   s.BotResponse,
		IsUrgent:      s.IsUrgent,
		SafetyFlags:   s.SafetyFlags,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

func (d sessionDocument) toSession() *model.Session {
	flags := d.SafetyFlags
	if flags == nil {
		flags = []string{}
	}
	return &model.Session{
		ID:            d.ID,
		PatientID:     d.PatientID,
		AudioFileName: d.AudioFileName,
		AudioSize:     d.AudioSize,
		Status:        model.Status(d.Status),
		Transcript:    d.Transcript,
		BotResponse:   d.BotResponse,
		IsUrgent:      d.IsUrgent,
		SafetyFlags:   flags,
		CreatedAt:     d.CreatedAt.UTC(),
		UpdatedAt:     d.UpdatedAt.UTC(),
	}
}

// OpenMongoStore connects, pings and ensures indexes.
func OpenMongoStore(ctx context.Context, cfg MongoConfig, opts ...Option) (*MongoStore, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongo store: uri is required")
	}
	if cfg.Database == "" {
		cfg.Database = defaultMongoDatabase
	}
	if cfg.Collection == "" {
		cfg.Collection = defaultMongoCollection
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultMongoOpTimeout
	}

	client, err := mongo.Connect(mongoopts.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo store: connect: %w", err)
	}
	s := &MongoStore{
		client:  client,
		coll:    client.Database(cfg.Database).Collection(cfg.Collection),
		timeout: cfg.Timeout,
		opts:    buildOptions(opts),
	}

	pingCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.Ping(pingCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo store: ping: %w", err)
	}
	if err := s.ensureIndexes(pingCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo store: indexes: %w", err)
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "patientId", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "isUrgent", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "updatedAt", Value: 1}}},
	})
	return err
}

func (s *MongoStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) Create(ctx context.Context, in model.NewSession) (*model.Session, error) {
	rec := s.opts.newRecord(in)
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.coll.InsertOne(ctx, toDocument(rec)); err != nil {
		return nil, fmt.Errorf("mongo store: create: %w", err)
	}
	return rec, nil
}

func (s *MongoStore) Get(ctx context.Context, id string) (*model.Session, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var doc sessionDocument
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("mongo store: get %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("mongo store: get %s: %w", id, err)
	}
	return doc.toSession(), nil
}

// Update is a compare-and-set on (status, updatedAt): a concurrent writer
// makes the filter miss and the patch is re-applied to the fresh record.
func (s *MongoStore) Update(ctx context.Context, id string, p model.Patch) (*model.Session, error) {
	for attempt := 0; attempt < mongoUpdateAttempts; attempt++ {
		rec, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		prevStatus, prevUpdated := rec.Status, rec.UpdatedAt

		changed, err := model.Apply(rec, p, s.opts.stamp())
		if err != nil {
			return nil, err
		}
		if !changed {
			return rec, nil
		}

		filter := bson.M{"_id": id, "status": string(prevStatus), "updatedAt": prevUpdated}
		update := bson.M{"$set": bson.M{
			"status":      string(rec.Status),
			"transcript":  rec.Transcript,
			"botResponse": rec.BotResponse,
			"isUrgent":    rec.IsUrgent,
			"safetyFlags": rec.SafetyFlags,
			"updatedAt":   rec.UpdatedAt,
		}}
		opCtx, cancel := s.withTimeout(ctx)
		res, err := s.coll.UpdateOne(opCtx, filter, update)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("mongo store: update %s: %w", id, err)
		}
		if res.MatchedCount == 1 {
			return rec, nil
		}
	}
	return nil, fmt.Errorf("mongo store: update %s: %w", id, ErrConcurrentUpdate)
}

func (s *MongoStore) ListRecent(ctx context.Context, limit int) ([]*model.Session, error) {
	findOpts := mongoopts.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		findOpts.SetLimit(int64(limit))
	}
	return s.find(ctx, bson.M{}, findOpts)
}

func (s *MongoStore) ListByStatus(ctx context.Context, statuses ...model.Status) ([]*model.Session, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	in := make([]string, len(statuses))
	for i, st := range statuses {
		in[i] = string(st)
	}
	findOpts := mongoopts.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	return s.find(ctx, bson.M{"status": bson.M{"$in": in}}, findOpts)
}

func (s *MongoStore) find(ctx context.Context, filter bson.M, findOpts *mongoopts.FindOptionsBuilder) ([]*model.Session, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	cur, err := s.coll.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("mongo store: find: %w", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	var docs []sessionDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo store: decode: %w", err)
	}
	list := make([]*model.Session, 0, len(docs))
	for _, d := range docs {
		list = append(list, d.toSession())
	}
	return list, nil
}

var _ Store = (*MongoStore)(nil)
