/*
Package mongo provides a MongoDB-backed production.Store.

COLLECTIONS:
  part_details       ProductionTotal, unique (part_number, shift, date)
  hourly_production  HourlyDelta, unique (part_number, shift, date, hour)
  plan_actual        PlanActual, unique (part_number, shift, date)
  stop_times         StoppageEvent
  rejections         RejectionEvent
  oee                OEERecord, unique (shift, date)
  corrections        Correction

ORDERING:
  hourly_production stores hour_ordinal next to hour so a plain sort keeps
  00:00..07:00 after 23:00.

TRANSACTIONS:
  Multi-document transactions need a replica set. With Transactions set,
  WithTx runs fn inside session.WithTransaction. Without it fn runs
  directly and a failure part way leaves earlier writes in place.
*/
package mongo

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/warp/oee-tracker/logger"
	"github.com/warp/oee-tracker/production"
	"github.com/warp/oee-tracker/shift"
)

const (
	collTotals      = "part_details"
	collHourly      = "hourly_production"
	collPlans       = "plan_actual"
	collStoppages   = "stop_times"
	collRejections  = "rejections"
	collOEE         = "oee"
	collCorrections = "corrections"
)

type Config struct {
	URI          string
	Database     string
	Transactions bool
}

// Store implements production.Store on a MongoDB database.
type Store struct {
	*repo

	client *mongo.Client
	owned  bool
	txns   bool
	mu     sync.Mutex
}

var _ production.Store = (*Store)(nil)

// New connects to cfg.URI, pings the primary and ensures indexes.
func New(ctx context.Context, cfg Config) (*Store, error) {
	const op = "mongo.New"

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("%s: connect: %w", op, err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	s, err := NewFromClient(ctx, client, cfg.Database, cfg.Transactions)
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	s.owned = true
	return s, nil
}

// NewFromClient builds a Store on an existing client. Close leaves the
// client connected.
func NewFromClient(ctx context.Context, client *mongo.Client, database string, transactions bool) (*Store, error) {
	db := client.Database(database)
	if err := ensureIndexes(ctx, db); err != nil {
		return nil, fmt.Errorf("mongo.NewFromClient: indexes: %w", err)
	}
	return &Store{repo: &repo{db: db}, client: client, txns: transactions}, nil
}

func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Disconnect(context.Background())
}

// WithTx executes fn within a session transaction when transactions are
// enabled, otherwise directly.
func (s *Store) WithTx(ctx context.Context, fn func(production.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.txns {
		return fn(s.repo)
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("mongo.WithTx: start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc context.Context) (any, error) {
		return nil, fn(&repo{db: s.db, txCtx: sc})
	})
	return err
}

func ensureIndexes(ctx context.Context, db *mongo.Database) error {
	unique := func(keys ...string) mongo.IndexModel {
		return mongo.IndexModel{Keys: ascending(keys...), Options: options.Index().SetUnique(true)}
	}
	plain := func(keys ...string) mongo.IndexModel {
		return mongo.IndexModel{Keys: ascending(keys...)}
	}

	indexes := map[string][]mongo.IndexModel{
		collTotals:      {unique("part_number", "shift", "date"), plain("date", "shift")},
		collHourly:      {unique("part_number", "shift", "date", "hour"), plain("last_reported_at")},
		collPlans:       {unique("part_number", "shift", "date")},
		collStoppages:   {plain("date", "shift")},
		collRejections:  {plain("date", "shift")},
		collOEE:         {unique("shift", "date")},
		collCorrections: {plain("date")},
	}
	for name, models := range indexes {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models, options.CreateIndexes()); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func ascending(keys ...string) bson.D {
	d := make(bson.D, 0, len(keys))
	for _, k := range keys {
		d = append(d, bson.E{Key: k, Value: 1})
	}
	return d
}

// =============================================================================
// REPO
// =============================================================================

type repo struct {
	db *mongo.Database
	// txCtx carries the session inside WithTx; it replaces the caller's
	// context so every operation joins the transaction.
	txCtx context.Context
}

func (r *repo) ctx(ctx context.Context) context.Context {
	if r.txCtx != nil {
		return r.txCtx
	}
	return ctx
}

func (r *repo) coll(name string) *mongo.Collection { return r.db.Collection(name) }

func (r *repo) ProductionTotals(ctx context.Context, f production.Filter) ([]production.ProductionTotal, error) {
	return find(r.ctx(ctx), r.coll(collTotals), "mongo.ProductionTotals",
		filterDoc(f, true), findOptions(f, "date", "shift", "part_number"), totalToModel)
}

func (r *repo) UpsertProductionTotal(ctx context.Context, t production.ProductionTotal) error {
	const op = "mongo.UpsertProductionTotal"

	_, err := r.coll(collTotals).UpdateOne(r.ctx(ctx),
		partKey(t.PartNumber, t.Shift, t.Date),
		bson.M{"$set": bson.M{"count": t.Count, "target": t.Target, "last_updated": t.LastUpdated.UTC()}},
		options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r *repo) HourlyDeltas(ctx context.Context, f production.Filter) ([]production.HourlyDelta, error) {
	return find(r.ctx(ctx), r.coll(collHourly), "mongo.HourlyDeltas",
		filterDoc(f, true), findOptions(f, "date", "shift", "part_number", "hour_ordinal"), hourlyToModel)
}

func (r *repo) InsertHourlyDelta(ctx context.Context, h production.HourlyDelta) error {
	const op = "mongo.InsertHourlyDelta"

	if _, err := r.coll(collHourly).InsertOne(r.ctx(ctx), hourlyFromModel(h)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return production.ErrConcurrentModification
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r *repo) UpdateHourlyDelta(ctx context.Context, h production.HourlyDelta, expected int) error {
	const op = "mongo.UpdateHourlyDelta"
	ctx = r.ctx(ctx)

	key := partKey(h.PartNumber, h.Shift, h.Date)
	key["hour"] = int(h.Hour)

	guarded := bson.M{"version": expected}
	for k, v := range key {
		guarded[k] = v
	}
	res, err := r.coll(collHourly).UpdateOne(ctx, guarded, bson.M{"$set": bson.M{
		"count":            h.Count,
		"cumulative_count": h.CumulativeCount,
		"last_reported_at": h.LastReportedAt.UTC(),
		"version":          expected + 1,
	}})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	n, err := r.coll(collHourly).CountDocuments(ctx, key)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return production.ErrNotFound
	}
	return production.ErrConcurrentModification
}

func (r *repo) PlanActuals(ctx context.Context, f production.Filter) ([]production.PlanActual, error) {
	return find(r.ctx(ctx), r.coll(collPlans), "mongo.PlanActuals",
		filterDoc(f, true), findOptions(f, "date", "shift", "part_number"), planToModel)
}

func (r *repo) RecordActual(ctx context.Context, p production.PlanActual) error {
	const op = "mongo.RecordActual"

	_, err := r.coll(collPlans).UpdateOne(r.ctx(ctx),
		partKey(p.PartNumber, p.Shift, p.Date),
		bson.M{
			"$set":         bson.M{"actual": p.Actual, "updated_at": p.UpdatedAt.UTC()},
			"$setOnInsert": bson.M{"plan": p.Plan},
		},
		options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r *repo) SetPlan(ctx context.Context, p production.PlanActual) error {
	const op = "mongo.SetPlan"

	_, err := r.coll(collPlans).UpdateOne(r.ctx(ctx),
		partKey(p.PartNumber, p.Shift, p.Date),
		bson.M{
			"$set":         bson.M{"plan": p.Plan, "updated_at": p.UpdatedAt.UTC()},
			"$setOnInsert": bson.M{"actual": 0},
		},
		options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r *repo) Stoppages(ctx context.Context, f production.Filter) ([]production.StoppageEvent, error) {
	return find(r.ctx(ctx), r.coll(collStoppages), "mongo.Stoppages",
		filterDoc(f, false), findOptions(f, "date", "shift"), stoppageToModel)
}

func (r *repo) ReplaceStoppages(ctx context.Context, k production.ShiftKey, events []production.StoppageEvent) error {
	docs := make([]any, 0, len(events))
	for _, e := range events {
		docs = append(docs, stoppageEntity{
			ID: e.ID, Shift: string(k.Shift), Date: k.Date.String(),
			Duration: e.DurationMinutes, Reason: e.Reason,
		})
	}
	return r.replace(r.ctx(ctx), collStoppages, "mongo.ReplaceStoppages", k, docs)
}

func (r *repo) Rejections(ctx context.Context, f production.Filter) ([]production.RejectionEvent, error) {
	return find(r.ctx(ctx), r.coll(collRejections), "mongo.Rejections",
		filterDoc(f, true), findOptions(f, "date", "shift", "part_number"), rejectionToModel)
}

func (r *repo) ReplaceRejections(ctx context.Context, k production.ShiftKey, events []production.RejectionEvent) error {
	docs := make([]any, 0, len(events))
	for _, e := range events {
		docs = append(docs, rejectionEntity{
			ID: e.ID, Shift: string(k.Shift), Date: k.Date.String(),
			PartNumber: e.PartNumber, Count: e.Count, Reason: e.Reason,
		})
	}
	return r.replace(r.ctx(ctx), collRejections, "mongo.ReplaceRejections", k, docs)
}

func (r *repo) replace(ctx context.Context, name, op string, k production.ShiftKey, docs []any) error {
	coll := r.coll(name)
	if _, err := coll.DeleteMany(ctx, bson.M{"shift": string(k.Shift), "date": k.Date.String()}); err != nil {
		return fmt.Errorf("%s: delete: %w", op, err)
	}
	if len(docs) == 0 {
		return nil
	}
	if _, err := coll.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("%s: insert: %w", op, err)
	}
	return nil
}

func (r *repo) OEERecords(ctx context.Context, f production.Filter) ([]production.OEERecord, error) {
	return find(r.ctx(ctx), r.coll(collOEE), "mongo.OEERecords",
		filterDoc(f, false), findOptions(f, "date", "shift"), oeeToModel)
}

func (r *repo) UpsertOEE(ctx context.Context, rec production.OEERecord) error {
	const op = "mongo.UpsertOEE"

	_, err := r.coll(collOEE).ReplaceOne(r.ctx(ctx),
		bson.M{"shift": string(rec.Shift), "date": rec.Date.String()},
		oeeFromModel(rec),
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r *repo) Corrections(ctx context.Context, f production.Filter) ([]production.Correction, error) {
	if f.Shift != shift.None {
		return nil, nil
	}
	return find(r.ctx(ctx), r.coll(collCorrections), "mongo.Corrections",
		filterDoc(f, false), findOptions(f, "date", "created_at"), correctionToModel)
}

func (r *repo) InsertCorrection(ctx context.Context, c production.Correction) error {
	const op = "mongo.InsertCorrection"

	_, err := r.coll(collCorrections).InsertOne(r.ctx(ctx), correctionEntity{
		ID:               c.ID,
		Date:             c.Date.String(),
		Problem:          c.Problem,
		CorrectiveAction: c.CorrectiveAction,
		CreatedAt:        c.CreatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// =============================================================================
// QUERY HELPERS
// =============================================================================

func partKey(part string, s shift.Shift, d shift.Date) bson.M {
	return bson.M{"part_number": part, "shift": string(s), "date": d.String()}
}

// filterDoc renders f as a query document. Collections without a part
// field ignore f.PartNumber.
func filterDoc(f production.Filter, hasPart bool) bson.M {
	q := bson.M{}
	if hasPart && f.PartNumber != "" {
		q["part_number"] = f.PartNumber
	}
	if f.Shift != shift.None {
		q["shift"] = string(f.Shift)
	}
	rng := bson.M{}
	if !f.From.IsZero() {
		rng["$gte"] = f.From.String()
	}
	if !f.To.IsZero() {
		rng["$lte"] = f.To.String()
	}
	if len(rng) > 0 {
		q["date"] = rng
	}
	return q
}

func findOptions(f production.Filter, keys ...string) *options.FindOptionsBuilder {
	dir := 1
	if f.Desc {
		dir = -1
	}
	sort := make(bson.D, 0, len(keys))
	for _, k := range keys {
		sort = append(sort, bson.E{Key: k, Value: dir})
	}
	opts := options.Find().SetSort(sort)
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	return opts
}

func find[E, M any](ctx context.Context, coll *mongo.Collection, op string, filter bson.M, opts *options.FindOptionsBuilder, conv func(E) M) ([]M, error) {
	cur, err := coll.Find(ctx, filter, opts)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		if cerr := cur.Close(ctx); cerr != nil {
			logger.Named("mongo").Warn().Err(cerr).Str("op", op).Msg("failed to close cursor")
		}
	}()

	var out []M
	for cur.Next(ctx) {
		var ent E
		if err := cur.Decode(&ent); err != nil {
			return nil, fmt.Errorf("%s decode: %w", op, err)
		}
		out = append(out, conv(ent))
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("%s cursor: %w", op, err)
	}
	return out, nil
}
