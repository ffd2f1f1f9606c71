package stores

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ag "github.com/tutorhive/authgate"
)

// FSOutboxStore keeps child drafts as JSON files, one per draft. It is the
// default store for single-machine deployments and tests.
type FSOutboxStore struct {
	StoragePath string
}

func NewFSOutboxStore(storagePath string) *FSOutboxStore {
	return &FSOutboxStore{StoragePath: storagePath}
}

func (s *FSOutboxStore) draftPath(localID string) string {
	return filepath.Join(s.StoragePath, "outbox", localID+".json")
}

func (s *FSOutboxStore) GetDraft(localID string) (*ag.ChildDraft, error) {
	data, err := os.ReadFile(s.draftPath(localID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ag.ErrDraftNotFound
		}
		return nil, err
	}

	var draft ag.ChildDraft
	if err := json.Unmarshal(data, &draft); err != nil {
		return nil, err
	}
	return &draft, nil
}

func (s *FSOutboxStore) SaveDraft(draft *ag.ChildDraft) error {
	path := s.draftPath(draft.LocalID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(draft, "", "  ")
	if err != nil {
		return err
	}

	return writeAtomicFile(path, data)
}

func (s *FSOutboxStore) ListDrafts() ([]*ag.ChildDraft, error) {
	dir := filepath.Join(s.StoragePath, "outbox")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var drafts []*ag.ChildDraft
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		draft, err := s.GetDraft(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, draft)
	}

	sort.Slice(drafts, func(i, j int) bool {
		return drafts[i].CreatedAt.Before(drafts[j].CreatedAt)
	})
	return drafts, nil
}

func (s *FSOutboxStore) DeleteDraft(localID string) error {
	err := os.Remove(s.draftPath(localID))
	if os.IsNotExist(err) {
		return ag.ErrDraftNotFound
	}
	return err
}

func (s *FSOutboxStore) DeleteAll() error {
	err := os.RemoveAll(filepath.Join(s.StoragePath, "outbox"))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
