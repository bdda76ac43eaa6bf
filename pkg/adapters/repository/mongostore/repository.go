package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/core/domain"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/ports"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	factsCollection    = "facts"
	countersCollection = "counters"
)

type factDoc struct {
	ID              string    `bson:"_id"`
	Seq             int64     `bson:"seq"`
	Text            string    `bson:"text"`
	TextKey         string    `bson:"text_key"`
	InsertedAt      time.Time `bson:"inserted_at"`
	Source          string    `bson:"source"`
	OccurrenceCount int64     `bson:"occurrence_count"`
	LikeCount       int64     `bson:"like_count"`
	DislikeCount    int64     `bson:"dislike_count"`
}

func (d factDoc) toDomain() (domain.Fact, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return domain.Fact{}, fmt.Errorf("fact id %q: %w", d.ID, err)
	}
	return domain.Fact{
		ID:              id,
		Text:            d.Text,
		InsertedAt:      d.InsertedAt.UTC(),
		Source:          d.Source,
		OccurrenceCount: d.OccurrenceCount,
		LikeCount:       d.LikeCount,
		DislikeCount:    d.DislikeCount,
	}, nil
}

// Repository stores facts in MongoDB. Every write is atomic per document;
// ApplyBatch is not a multi-document transaction.
type Repository struct {
	client *mongo.Client
	db     *mongo.Database
}

// Open connects, pings and ensures indexes.
func Open(ctx context.Context, uri, database string) (*Repository, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	r := &Repository{client: client, db: client.Database(database)}
	if err := r.EnsureIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	return r, nil
}

func (r *Repository) facts() *mongo.Collection { return r.db.Collection(factsCollection) }

func (r *Repository) EnsureIndexes(ctx context.Context) error {
	_, err := r.facts().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "text_key", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "inserted_at", Value: 1}, {Key: "seq", Value: 1}}},
		{Keys: bson.D{{Key: "occurrence_count", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

func (r *Repository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}

// Drop removes the whole database. Used by tests.
func (r *Repository) Drop(ctx context.Context) error {
	return r.db.Drop(ctx)
}

func (r *Repository) nextSeq(ctx context.Context) (int64, error) {
	var doc struct {
		Value int64 `bson:"value"`
	}
	err := r.db.Collection(countersCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": factsCollection},
		bson.M{"$inc": bson.M{"value": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}
	return doc.Value, nil
}

func (r *Repository) findOne(ctx context.Context, filter bson.M) (*domain.Fact, error) {
	var doc factDoc
	err := r.facts().FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	fact, err := doc.toDomain()
	if err != nil {
		return nil, err
	}
	return &fact, nil
}

func (r *Repository) FindByText(ctx context.Context, text string) (*domain.Fact, error) {
	return r.findOne(ctx, bson.M{"text_key": domain.TextKey(domain.NormalizeText(text))})
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Fact, error) {
	return r.findOne(ctx, bson.M{"_id": id.String()})
}

func (r *Repository) FindByTexts(ctx context.Context, texts []string) ([]domain.Fact, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(texts))
	for _, t := range texts {
		keys = append(keys, domain.TextKey(domain.NormalizeText(t)))
	}

	cur, err := r.facts().Find(ctx, bson.M{"text_key": bson.M{"$in": keys}})
	if err != nil {
		return nil, err
	}
	return decodeAll(ctx, cur)
}

func decodeAll(ctx context.Context, cur *mongo.Cursor) ([]domain.Fact, error) {
	var docs []factDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	return toDomainAll(docs)
}

func toDomainAll(docs []factDoc) ([]domain.Fact, error) {
	facts := make([]domain.Fact, 0, len(docs))
	for _, d := range docs {
		f, err := d.toDomain()
		if err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}
	return facts, nil
}

func (r *Repository) newDoc(ctx context.Context, fact *domain.Fact) (factDoc, error) {
	fact.Text = domain.NormalizeText(fact.Text)
	if fact.Text == "" {
		return factDoc{}, errors.New("fact text is empty")
	}
	if domain.TextLength(fact.Text) > domain.MaxTextLength {
		return factDoc{}, fmt.Errorf("fact text exceeds %d characters", domain.MaxTextLength)
	}
	if fact.ID == uuid.Nil {
		fact.ID = uuid.New()
	}
	if fact.InsertedAt.IsZero() {
		fact.InsertedAt = time.Now()
	}
	// BSON dates have millisecond precision
	fact.InsertedAt = fact.InsertedAt.UTC().Truncate(time.Millisecond)
	if fact.OccurrenceCount < 1 {
		fact.OccurrenceCount = 1
	}

	seq, err := r.nextSeq(ctx)
	if err != nil {
		return factDoc{}, err
	}
	return factDoc{
		ID:              fact.ID.String(),
		Seq:             seq,
		Text:            fact.Text,
		TextKey:         domain.TextKey(fact.Text),
		InsertedAt:      fact.InsertedAt,
		Source:          fact.Source,
		OccurrenceCount: fact.OccurrenceCount,
		LikeCount:       fact.LikeCount,
		DislikeCount:    fact.DislikeCount,
	}, nil
}

func (r *Repository) Insert(ctx context.Context, fact *domain.Fact) error {
	doc, err := r.newDoc(ctx, fact)
	if err != nil {
		return err
	}
	if _, err := r.facts().InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %q", domain.ErrConflict, fact.Text)
		}
		return err
	}
	return nil
}

func (r *Repository) IncrementOccurrence(ctx context.Context, id uuid.UUID, by int64) error {
	res, err := r.facts().UpdateByID(ctx, id.String(), bson.M{"$inc": bson.M{"occurrence_count": by}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repository) IncrementLike(ctx context.Context, id uuid.UUID) (*domain.Fact, error) {
	return r.incrementAndGet(ctx, "like_count", id)
}

func (r *Repository) IncrementDislike(ctx context.Context, id uuid.UUID) (*domain.Fact, error) {
	return r.incrementAndGet(ctx, "dislike_count", id)
}

func (r *Repository) incrementAndGet(ctx context.Context, field string, id uuid.UUID) (*domain.Fact, error) {
	var doc factDoc
	err := r.facts().FindOneAndUpdate(ctx,
		bson.M{"_id": id.String()},
		bson.M{"$inc": bson.M{field: 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	fact, err := doc.toDomain()
	if err != nil {
		return nil, err
	}
	return &fact, nil
}

func sortDocument(key domain.SortKey, descending bool) bson.D {
	dir := 1
	if descending {
		dir = -1
	}
	if key == domain.SortInsertion {
		return bson.D{{Key: "inserted_at", Value: dir}, {Key: "seq", Value: dir}}
	}

	field := "text_key"
	switch key {
	case domain.SortOccurrence:
		field = "occurrence_count"
	case domain.SortLike:
		field = "like_count"
	case domain.SortDislike:
		field = "dislike_count"
	case domain.SortPopularity:
		field = "popularity"
	}
	return bson.D{{Key: field, Value: dir}, {Key: "inserted_at", Value: 1}, {Key: "seq", Value: 1}}
}

// ListOrdered runs the page and the count in a single $facet aggregation.
func (r *Repository) ListOrdered(ctx context.Context, key domain.SortKey, descending bool, skip, take int) ([]domain.Fact, int64, error) {
	if !key.Valid() {
		return nil, 0, domain.ErrInvalidSortKey
	}
	if skip < 0 || take <= 0 {
		return nil, 0, domain.ErrInvalidPage
	}

	pipeline := mongo.Pipeline{
		{{Key: "$addFields", Value: bson.D{
			{Key: "popularity", Value: bson.D{{Key: "$subtract", Value: bson.A{"$like_count", "$dislike_count"}}}},
		}}},
		{{Key: "$facet", Value: bson.D{
			{Key: "items", Value: bson.A{
				bson.D{{Key: "$sort", Value: sortDocument(key, descending)}},
				bson.D{{Key: "$skip", Value: int64(skip)}},
				bson.D{{Key: "$limit", Value: int64(take)}},
			}},
			{Key: "total", Value: bson.A{
				bson.D{{Key: "$count", Value: "n"}},
			}},
		}}},
	}

	cur, err := r.facts().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, 0, err
	}
	var out []struct {
		Items []factDoc `bson:"items"`
		Total []struct {
			N int64 `bson:"n"`
		} `bson:"total"`
	}
	if err := cur.All(ctx, &out); err != nil {
		return nil, 0, err
	}
	if len(out) == 0 {
		return nil, 0, nil
	}

	var total int64
	if len(out[0].Total) > 0 {
		total = out[0].Total[0].N
	}
	facts, err := toDomainAll(out[0].Items)
	if err != nil {
		return nil, 0, err
	}
	return facts, total, nil
}

func (r *Repository) Count(ctx context.Context) (int64, error) {
	return r.facts().CountDocuments(ctx, bson.M{})
}

// ApplyBatch applies increments, then inserts. Duplicate-key inserts are
// turned into occurrence increments on the existing document.
func (r *Repository) ApplyBatch(ctx context.Context, batch domain.UpsertBatch) (domain.BatchResult, error) {
	var result domain.BatchResult

	for _, inc := range batch.Increments {
		if err := r.IncrementOccurrence(ctx, inc.ID, inc.By); err != nil {
			return result, fmt.Errorf("increment %s: %w", inc.ID, err)
		}
		result.Incremented++
	}

	for i := range batch.Inserts {
		fact := batch.Inserts[i]
		doc, err := r.newDoc(ctx, &fact)
		if err != nil {
			return result, err
		}
		_, err = r.facts().InsertOne(ctx, doc)
		if err == nil {
			result.Inserted++
			continue
		}
		if !mongo.IsDuplicateKeyError(err) {
			return result, fmt.Errorf("insert %q: %w", fact.Text, err)
		}

		res, err := r.facts().UpdateOne(ctx,
			bson.M{"text_key": doc.TextKey},
			bson.M{"$inc": bson.M{"occurrence_count": doc.OccurrenceCount}},
		)
		if err != nil {
			return result, fmt.Errorf("recover conflict %q: %w", fact.Text, err)
		}
		if res.MatchedCount == 0 {
			return result, fmt.Errorf("recover conflict %q: %w", fact.Text, domain.ErrConflict)
		}
		result.Recovered++
	}
	return result, nil
}

func (r *Repository) Dump(ctx context.Context) ([]domain.Fact, error) {
	opts := options.Find().SetSort(bson.D{{Key: "inserted_at", Value: 1}, {Key: "seq", Value: 1}})
	cur, err := r.facts().Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	return decodeAll(ctx, cur)
}

func (r *Repository) Import(ctx context.Context, facts []domain.Fact) (int, error) {
	count := 0
	for i := range facts {
		fact := facts[i]
		doc, err := r.newDoc(ctx, &fact)
		if err != nil {
			return count, err
		}
		if _, err := r.facts().InsertOne(ctx, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				continue
			}
			return count, err
		}
		count++
	}
	return count, nil
}

var _ ports.FactRepository = (*Repository)(nil)
