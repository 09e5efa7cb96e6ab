package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rastion/rastion-datasets/internal/models"
	"github.com/rastion/rastion-datasets/pkg/storage"
)

type datasetRepoStub struct {
	mu       sync.Mutex
	items    map[string]*models.Dataset
	filter   models.DatasetFilter
	deleted  []string
	createFn func() error
}

func newDatasetRepoStub() *datasetRepoStub {
	return &datasetRepoStub{items: make(map[string]*models.Dataset)}
}

func (r *datasetRepoStub) CreateAtomic(ctx context.Context, dataset *models.Dataset, persist func(ctx context.Context) (string, error)) error {
	if r.createFn != nil {
		if err := r.createFn(); err != nil {
			return err
		}
	}
	checksum, err := persist(ctx)
	if err != nil {
		return err
	}
	dataset.Checksum = checksum
	dataset.CreatedAt = time.Now().UTC()
	dataset.UpdatedAt = dataset.CreatedAt
	r.put(dataset)
	return nil
}

func (r *datasetRepoStub) put(dataset *models.Dataset) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copy := *dataset
	r.items[dataset.ID] = &copy
}

func (r *datasetRepoStub) GetByID(ctx context.Context, id string) (*models.Dataset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *item
	return &copy, nil
}

func (r *datasetRepoStub) List(ctx context.Context, filter models.DatasetFilter) ([]models.Dataset, int, error) {
	r.filter = filter
	items, _ := r.ListAll(ctx)
	out := make([]models.Dataset, 0, len(items))
	for _, item := range items {
		if filter.OnlyOwned && item.UserID != filter.ViewerID {
			continue
		}
		if item.VisibleTo(filter.ViewerID) {
			out = append(out, item)
		}
	}
	return out, len(out), nil
}

func (r *datasetRepoStub) ListAll(ctx context.Context) ([]models.Dataset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Dataset, 0, len(r.items))
	for _, item := range r.items {
		out = append(out, *item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *datasetRepoStub) Update(ctx context.Context, id string, patch models.DatasetPatch, updatedAt time.Time) (*models.Dataset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if patch.Description != nil {
		item.Description = *patch.Description
	}
	if patch.IsPublic != nil {
		item.IsPublic = *patch.IsPublic
	}
	item.UpdatedAt = updatedAt
	copy := *item
	return &copy, nil
}

func (r *datasetRepoStub) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(r.items, id)
	r.deleted = append(r.deleted, id)
	return nil
}

type recorderStub struct {
	entries []models.AccessType
	actors  []string
	err     error
}

func (r *recorderStub) Record(ctx context.Context, datasetID, actorID string, accessType models.AccessType, reqCtx models.RequestContext) error {
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, accessType)
	r.actors = append(r.actors, actorID)
	return nil
}

type schedulerStub struct {
	ids []string
}

func (s *schedulerStub) Schedule(datasetID string) error {
	s.ids = append(s.ids, datasetID)
	return nil
}

// failingBlobStore wraps a real store and fails Put after consuming the stream.
type failingBlobStore struct {
	storage.BlobStore
	deletes []string
}

func (f *failingBlobStore) Put(ctx context.Context, key string, r io.Reader) (int64, error) {
	n, _ := io.Copy(io.Discard, r)
	return n, errors.New("disk full")
}

func (f *failingBlobStore) Delete(ctx context.Context, key string) error {
	f.deletes = append(f.deletes, key)
	return f.BlobStore.Delete(ctx, key)
}

func newLocalStore(t *testing.T) *storage.LocalStorage {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return store
}

func claims(userID string) *models.JWTClaims {
	return &models.JWTClaims{UserID: userID}
}
