//go:build !wasm
// +build !wasm

package gorm

import (
	"time"

	ag "github.com/tutorhive/authgate"
)

// ChildDraftModel is the GORM model for queued child profiles
type ChildDraftModel struct {
	LocalID              string `gorm:"primaryKey;size:64"`
	Nickname             string `gorm:"size:64"`
	Age                  int
	Grade                int
	GuardianEmailPending string    `gorm:"size:255"`
	CreatedAt            time.Time `gorm:"autoCreateTime"`
	SyncedAt             *time.Time
}

func (ChildDraftModel) TableName() string {
	return "child_drafts"
}

func (m *ChildDraftModel) ToDraft() *ag.ChildDraft {
	return &ag.ChildDraft{
		LocalID:              m.LocalID,
		Nickname:             m.Nickname,
		Age:                  m.Age,
		Grade:                m.Grade,
		GuardianEmailPending: m.GuardianEmailPending,
		CreatedAt:            m.CreatedAt,
		SyncedAt:             m.SyncedAt,
	}
}

func DraftToModel(d *ag.ChildDraft) *ChildDraftModel {
	return &ChildDraftModel{
		LocalID:              d.LocalID,
		Nickname:             d.Nickname,
		Age:                  d.Age,
		Grade:                d.Grade,
		GuardianEmailPending: d.GuardianEmailPending,
		CreatedAt:            d.CreatedAt,
		SyncedAt:             d.SyncedAt,
	}
}
