//go:build !wasm
// +build !wasm

package gae

import (
	"context"

	"cloud.google.com/go/datastore"
	"google.golang.org/api/iterator"

	ag "github.com/tutorhive/authgate"
)

// Kind constants for Datastore entities
const (
	KindChildDraft = "ChildDraft"
)

// OutboxStore implements ag.OutboxStore using Google Cloud Datastore
type OutboxStore struct {
	client    *datastore.Client
	namespace string
	ctx       context.Context
}

// NewOutboxStore creates a new Datastore-backed OutboxStore
func NewOutboxStore(client *datastore.Client, namespace string) *OutboxStore {
	return &OutboxStore{
		client:    client,
		namespace: namespace,
		ctx:       context.Background(),
	}
}

// WithContext returns a copy of the store with the given context
func (s *OutboxStore) WithContext(ctx context.Context) *OutboxStore {
	return &OutboxStore{
		client:    s.client,
		namespace: s.namespace,
		ctx:       ctx,
	}
}

func (s *OutboxStore) namespacedKey(kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = s.namespace
	return key
}

func (s *OutboxStore) GetDraft(localID string) (*ag.ChildDraft, error) {
	key := s.namespacedKey(KindChildDraft, localID)
	var entity ChildDraftEntity
	if err := s.client.Get(s.ctx, key, &entity); err != nil {
		if err == datastore.ErrNoSuchEntity {
			return nil, ag.ErrDraftNotFound
		}
		return nil, err
	}
	return entity.ToDraft(), nil
}

func (s *OutboxStore) SaveDraft(draft *ag.ChildDraft) error {
	key := s.namespacedKey(KindChildDraft, draft.LocalID)
	_, err := s.client.Put(s.ctx, key, DraftToEntity(draft, key))
	return err
}

func (s *OutboxStore) ListDrafts() ([]*ag.ChildDraft, error) {
	query := datastore.NewQuery(KindChildDraft).Order("created_at")
	if s.namespace != "" {
		query = query.Namespace(s.namespace)
	}

	var drafts []*ag.ChildDraft
	it := s.client.Run(s.ctx, query)
	for {
		var entity ChildDraftEntity
		key, err := it.Next(&entity)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		entity.Key = key
		drafts = append(drafts, entity.ToDraft())
	}
	return drafts, nil
}

func (s *OutboxStore) DeleteDraft(localID string) error {
	key := s.namespacedKey(KindChildDraft, localID)
	var entity ChildDraftEntity
	if err := s.client.Get(s.ctx, key, &entity); err != nil {
		if err == datastore.ErrNoSuchEntity {
			return ag.ErrDraftNotFound
		}
		return err
	}
	return s.client.Delete(s.ctx, key)
}

func (s *OutboxStore) DeleteAll() error {
	query := datastore.NewQuery(KindChildDraft).KeysOnly()
	if s.namespace != "" {
		query = query.Namespace(s.namespace)
	}

	keys, err := s.client.GetAll(s.ctx, query, nil)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.client.DeleteMulti(s.ctx, keys)
}
