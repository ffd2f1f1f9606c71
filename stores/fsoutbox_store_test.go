package stores

import (
	"testing"
	"time"

	ag "github.com/tutorhive/authgate"
)

func draft(localID, nickname string, createdAt time.Time) *ag.ChildDraft {
	return &ag.ChildDraft{
		LocalID:   localID,
		Nickname:  nickname,
		Age:       9,
		Grade:     3,
		CreatedAt: createdAt,
	}
}

func TestFSOutboxStoreRoundTrip(t *testing.T) {
	store := NewFSOutboxStore(t.TempDir())

	now := time.Now().Truncate(time.Second)
	if err := store.SaveDraft(draft("d1", "sam", now)); err != nil {
		t.Fatalf("saving draft: %v", err)
	}

	got, err := store.GetDraft("d1")
	if err != nil {
		t.Fatalf("getting draft: %v", err)
	}
	if got.Nickname != "sam" || got.Age != 9 || got.Grade != 3 {
		t.Errorf("draft fields lost: %+v", got)
	}
	if got.Synced() {
		t.Error("unsynced draft read back as synced")
	}

	// Marking synced persists.
	at := now.Add(time.Minute)
	got.SyncedAt = &at
	if err := store.SaveDraft(got); err != nil {
		t.Fatalf("resaving draft: %v", err)
	}
	again, err := store.GetDraft("d1")
	if err != nil {
		t.Fatalf("rereading draft: %v", err)
	}
	if !again.Synced() {
		t.Error("synced marker did not persist")
	}
}

func TestFSOutboxStoreGetMissing(t *testing.T) {
	store := NewFSOutboxStore(t.TempDir())
	if _, err := store.GetDraft("nope"); err != ag.ErrDraftNotFound {
		t.Errorf("expected ErrDraftNotFound, got %v", err)
	}
}

func TestFSOutboxStoreListSortsByCreation(t *testing.T) {
	store := NewFSOutboxStore(t.TempDir())

	base := time.Now()
	store.SaveDraft(draft("d2", "second", base.Add(time.Minute)))
	store.SaveDraft(draft("d1", "first", base))
	store.SaveDraft(draft("d3", "third", base.Add(2*time.Minute)))

	drafts, err := store.ListDrafts()
	if err != nil {
		t.Fatalf("listing drafts: %v", err)
	}
	if len(drafts) != 3 {
		t.Fatalf("expected 3 drafts, got %d", len(drafts))
	}
	for i, want := range []string{"first", "second", "third"} {
		if drafts[i].Nickname != want {
			t.Errorf("position %d: expected %s, got %s", i, want, drafts[i].Nickname)
		}
	}
}

func TestFSOutboxStoreListEmptyDir(t *testing.T) {
	store := NewFSOutboxStore(t.TempDir())
	drafts, err := store.ListDrafts()
	if err != nil {
		t.Fatalf("listing an empty store: %v", err)
	}
	if len(drafts) != 0 {
		t.Errorf("expected no drafts, got %d", len(drafts))
	}
}

func TestFSOutboxStoreDelete(t *testing.T) {
	store := NewFSOutboxStore(t.TempDir())
	store.SaveDraft(draft("d1", "sam", time.Now()))
	store.SaveDraft(draft("d2", "ruth", time.Now()))

	if err := store.DeleteDraft("d1"); err != nil {
		t.Fatalf("deleting draft: %v", err)
	}
	if _, err := store.GetDraft("d1"); err != ag.ErrDraftNotFound {
		t.Errorf("expected the draft to be gone, got %v", err)
	}
	if err := store.DeleteDraft("d1"); err != ag.ErrDraftNotFound {
		t.Errorf("expected ErrDraftNotFound for a repeated delete, got %v", err)
	}

	if err := store.DeleteAll(); err != nil {
		t.Fatalf("deleting all: %v", err)
	}
	drafts, _ := store.ListDrafts()
	if len(drafts) != 0 {
		t.Errorf("expected an empty store, got %d drafts", len(drafts))
	}
}
