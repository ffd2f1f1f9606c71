//go:build !wasm
// +build !wasm

package gorm

import (
	"gorm.io/gorm"

	ag "github.com/tutorhive/authgate"
)

// AutoMigrate runs database migrations for all authgate tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&ChildDraftModel{},
	)
}

// OutboxStore implements ag.OutboxStore using GORM
type OutboxStore struct {
	db *gorm.DB
}

func NewOutboxStore(db *gorm.DB) *OutboxStore {
	return &OutboxStore{db: db}
}

func (s *OutboxStore) GetDraft(localID string) (*ag.ChildDraft, error) {
	var model ChildDraftModel
	if err := s.db.First(&model, "local_id = ?", localID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ag.ErrDraftNotFound
		}
		return nil, err
	}
	return model.ToDraft(), nil
}

func (s *OutboxStore) SaveDraft(draft *ag.ChildDraft) error {
	return s.db.Save(DraftToModel(draft)).Error
}

func (s *OutboxStore) ListDrafts() ([]*ag.ChildDraft, error) {
	var models []ChildDraftModel
	if err := s.db.Order("created_at asc").Find(&models).Error; err != nil {
		return nil, err
	}

	drafts := make([]*ag.ChildDraft, len(models))
	for i := range models {
		drafts[i] = models[i].ToDraft()
	}
	return drafts, nil
}

func (s *OutboxStore) DeleteDraft(localID string) error {
	res := s.db.Delete(&ChildDraftModel{}, "local_id = ?", localID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ag.ErrDraftNotFound
	}
	return nil
}

func (s *OutboxStore) DeleteAll() error {
	return s.db.Where("1 = 1").Delete(&ChildDraftModel{}).Error
}
