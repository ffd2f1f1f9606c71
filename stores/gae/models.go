//go:build !wasm
// +build !wasm

package gae

import (
	"time"

	"cloud.google.com/go/datastore"

	ag "github.com/tutorhive/authgate"
)

// ChildDraftEntity is the Datastore entity for queued child profiles.
// Datastore cannot store a nil time, so the synced marker is split into a
// flag plus a zero-valued timestamp.
type ChildDraftEntity struct {
	Key                  *datastore.Key `datastore:"__key__"`
	Nickname             string         `datastore:"nickname,noindex"`
	Age                  int            `datastore:"age,noindex"`
	Grade                int            `datastore:"grade,noindex"`
	GuardianEmailPending string         `datastore:"guardian_email_pending,noindex"`
	CreatedAt            time.Time      `datastore:"created_at"`
	Synced               bool           `datastore:"synced"`
	SyncedAt             time.Time      `datastore:"synced_at,noindex"`
}

func (e *ChildDraftEntity) ToDraft() *ag.ChildDraft {
	draft := &ag.ChildDraft{
		LocalID:              e.Key.Name,
		Nickname:             e.Nickname,
		Age:                  e.Age,
		Grade:                e.Grade,
		GuardianEmailPending: e.GuardianEmailPending,
		CreatedAt:            e.CreatedAt,
	}
	if e.Synced {
		at := e.SyncedAt
		draft.SyncedAt = &at
	}
	return draft
}

func DraftToEntity(d *ag.ChildDraft, key *datastore.Key) *ChildDraftEntity {
	entity := &ChildDraftEntity{
		Key:                  key,
		Nickname:             d.Nickname,
		Age:                  d.Age,
		Grade:                d.Grade,
		GuardianEmailPending: d.GuardianEmailPending,
		CreatedAt:            d.CreatedAt,
		Synced:               d.SyncedAt != nil,
	}
	if d.SyncedAt != nil {
		entity.SyncedAt = *d.SyncedAt
	}
	return entity
}
