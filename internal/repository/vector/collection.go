// Package vector adapts a named Redis FT index to the vector store contract:
// upsert, fetch-by-ID, delete, and KNN search. The gallery and salon
// collections are two instances of Collection with distinct names; their ID
// spaces never mix.
package vector

import (
	"context"
	"fmt"

	"github.com/sunny22123/search-engine-API-vercel/internal/db"
	"github.com/sunny22123/search-engine-API-vercel/internal/domain"
)

// store is the consumer interface for a vector collection (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, key string) error
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// HNSWConfig carries HNSW build parameters for the FT index.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Collection is one named vector collection backed by Redis hashes and an FT
// index over their __vector field.
type Collection struct {
	store store
	name  string
	dim   int
	hnsw  HNSWConfig
}

// New creates a vector collection adapter.
func New(s store, name string, dim int) *Collection {
	return &Collection{store: s, name: name, dim: dim}
}

// WithHNSW configures HNSW index build parameters.
func (c *Collection) WithHNSW(cfg HNSWConfig) *Collection {
	c.hnsw = cfg
	return c
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

func (c *Collection) key(id string) string {
	return fmt.Sprintf("img:%s:%s", c.name, id)
}

func (c *Collection) indexName() string {
	return "idx:" + c.name
}

// EnsureIndex creates the FT index if it does not exist yet.
func (c *Collection) EnsureIndex(ctx context.Context) error {
	exists, err := c.store.IndexExists(ctx, c.indexName())
	if err != nil {
		return domain.NewUpstreamError(domain.StoreVector, err)
	}
	if exists {
		return nil
	}

	def := &db.IndexDefinition{
		Name:     c.indexName(),
		Prefixes: []string{fmt.Sprintf("img:%s:", c.name)},
		Fields: []db.IndexField{
			{Name: "filename", Type: db.IndexFieldTag},
			{
				Name:              "__vector",
				Alias:             "vector",
				Type:              db.IndexFieldVector,
				VectorAlgo:        db.VectorHNSW,
				VectorDim:         c.dim,
				VectorDistance:    db.DistanceCosine,
				VectorM:           c.hnsw.M,
				VectorEFConstruct: c.hnsw.EFConstruct,
			},
		},
	}
	if err := def.Validate(); err != nil {
		return fmt.Errorf("index definition: %w", err)
	}

	if err := c.store.CreateIndex(ctx, def); err != nil && err != db.ErrIndexExists {
		return domain.NewUpstreamError(domain.StoreVector, err)
	}
	return nil
}

// Upsert writes the vector for id, replacing any previous one. Safe to retry:
// a second write with the same id leaves exactly one vector.
func (c *Collection) Upsert(ctx context.Context, id string, vec []float32, payload map[string]string) error {
	if err := domain.CheckDimension(vec, c.dim); err != nil {
		return err
	}

	fields := make(map[string]string, 1+len(payload))
	fields["__vector"] = vectorToBytes(vec)
	for k, v := range payload {
		fields[k] = v
	}

	if err := c.store.HSet(ctx, c.key(id), fields); err != nil {
		return domain.NewUpstreamError(domain.StoreVector, err)
	}
	return nil
}

// UpsertMulti writes several vectors in one pipelined round-trip.
func (c *Collection) UpsertMulti(ctx context.Context, ids []string, vecs [][]float32) error {
	if len(ids) != len(vecs) {
		return fmt.Errorf("ids/vectors length mismatch: %d vs %d", len(ids), len(vecs))
	}

	items := make([]db.HashSetItem, len(ids))
	for i, id := range ids {
		if err := domain.CheckDimension(vecs[i], c.dim); err != nil {
			return err
		}
		items[i] = db.HashSetItem{
			Key:    c.key(id),
			Fields: map[string]string{"__vector": vectorToBytes(vecs[i])},
		}
	}

	if err := c.store.HSetMulti(ctx, items); err != nil {
		return domain.NewUpstreamError(domain.StoreVector, err)
	}
	return nil
}

// Fetch returns the stored vector for id. domain.ErrNotFound when the key is
// absent or holds no vector field.
func (c *Collection) Fetch(ctx context.Context, id string) ([]float32, error) {
	fields, err := c.store.HGetAll(ctx, c.key(id))
	if err != nil {
		return nil, domain.NewUpstreamError(domain.StoreVector, err)
	}

	raw, ok := fields["__vector"]
	if !ok || raw == "" {
		return nil, domain.ErrNotFound
	}

	vec := bytesToVector(raw)
	if vec == nil {
		return nil, fmt.Errorf("corrupt vector for %s: %w", id, domain.ErrNotFound)
	}
	return vec, nil
}

// Delete removes the vector for id. Deleting an absent id is not an error.
func (c *Collection) Delete(ctx context.Context, id string) error {
	if err := c.store.Del(ctx, c.key(id)); err != nil {
		return domain.NewUpstreamError(domain.StoreVector, err)
	}
	return nil
}

// Search returns the k nearest neighbors of vec, best-first. Hits carry bare
// IDs and scores; metadata joining is the caller's concern.
func (c *Collection) Search(ctx context.Context, vec []float32, k int) ([]domain.Hit, error) {
	if k <= 0 {
		k = domain.DefaultSearchLimit
	}

	res, err := c.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    c.indexName(),
		Vector:       vec,
		K:            k,
		ReturnFields: []string{"__vector_score"},
	})
	if err != nil {
		return nil, domain.NewUpstreamError(domain.StoreVector, err)
	}

	hits := make([]domain.Hit, 0, len(res.Entries))
	for _, entry := range res.Entries {
		hits = append(hits, domain.Hit{
			ID:    c.idFromKey(entry.Key),
			Score: entry.Score,
		})
	}
	return hits, nil
}

// idFromKey strips the collection prefix from a Redis key.
func (c *Collection) idFromKey(key string) string {
	prefix := fmt.Sprintf("img:%s:", c.name)
	if len(key) > len(prefix) && key[:len(prefix)] == prefix {
		return key[len(prefix):]
	}
	return key
}
