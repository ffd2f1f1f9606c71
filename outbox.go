package authgate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ChildDraft is a child profile captured during guardian registration,
// before the guardian account it belongs to exists. Drafts live in a local
// outbox and are pushed to the backend once the guardian is signed in.
type ChildDraft struct {
	LocalID              string     `json:"local_id"`
	Nickname             string     `json:"nickname"`
	Age                  int        `json:"age"`
	Grade                int        `json:"grade"`
	GuardianEmailPending string     `json:"guardian_email_pending,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	SyncedAt             *time.Time `json:"synced_at,omitempty"`
}

// Synced reports whether this draft has already been pushed.
func (d *ChildDraft) Synced() bool { return d.SyncedAt != nil }

// Clone returns an independent copy.
func (d *ChildDraft) Clone() *ChildDraft {
	if d == nil {
		return nil
	}
	out := *d
	if d.SyncedAt != nil {
		at := *d.SyncedAt
		out.SyncedAt = &at
	}
	return &out
}

// Sentinel errors the outbox stores report.
var (
	ErrDraftExists   = fmt.Errorf("draft already exists")
	ErrDraftNotFound = fmt.Errorf("draft not found")
)

// OutboxStore persists child drafts between visits. Implementations live in
// the stores tree.
type OutboxStore interface {
	GetDraft(localID string) (*ChildDraft, error)
	SaveDraft(draft *ChildDraft) error
	ListDrafts() ([]*ChildDraft, error)
	DeleteDraft(localID string) error
	DeleteAll() error
}

// RemoteChildWriter creates one child profile on the backend under the given
// guardian. Sync calls it at least once per pending draft, so it must
// tolerate replays of a draft that was written but whose local marking
// failed.
type RemoteChildWriter func(ctx context.Context, draft *ChildDraft, guardianEmail string) error

// SyncResult summarizes one sync pass over the outbox.
type SyncResult struct {
	Succeeded int
	Failed    int
	Error     *AuthError
}

// Outbox queues child drafts locally and syncs them to the backend after
// sign-in. Drafts survive process restarts via the Store; delivery is
// at-least-once, with the backend expected to deduplicate on LocalID.
type Outbox struct {
	// Store persists the drafts. Required.
	Store OutboxStore

	// Write pushes one draft to the backend. Required for Sync.
	Write RemoteChildWriter

	// Now is stubbed in tests.
	Now func() time.Time
}

// NewOutbox creates an outbox over the given store and writer.
func NewOutbox(store OutboxStore, write RemoteChildWriter) *Outbox {
	return (&Outbox{Store: store, Write: write}).EnsureDefaults()
}

// EnsureDefaults fills in zero-valued configuration.
func (o *Outbox) EnsureDefaults() *Outbox {
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Add queues a new draft. A missing LocalID is assigned; an existing one is
// rejected so a retried form submit cannot duplicate a child.
func (o *Outbox) Add(draft *ChildDraft) (*ChildDraft, error) {
	o.EnsureDefaults()
	d := draft.Clone()
	if d.LocalID == "" {
		d.LocalID = uuid.New().String()
	} else if existing, err := o.Store.GetDraft(d.LocalID); err == nil && existing != nil {
		return nil, ErrDraftExists
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = o.Now()
	}
	d.SyncedAt = nil
	if err := o.Store.SaveDraft(d); err != nil {
		return nil, err
	}
	return d, nil
}

// Pending lists the drafts not yet pushed, oldest first.
func (o *Outbox) Pending() ([]*ChildDraft, error) {
	all, err := o.Store.ListDrafts()
	if err != nil {
		return nil, err
	}
	var pending []*ChildDraft
	for _, d := range all {
		if !d.Synced() {
			pending = append(pending, d)
		}
	}
	return pending, nil
}

// Sync pushes every pending draft under the signed-in guardian. One draft
// failing does not stop the others; the result carries per-draft counts and,
// when anything failed, a partial-failure error naming how many drafts are
// still queued. Successfully pushed drafts are marked synced so the next
// pass skips them.
func (o *Outbox) Sync(ctx context.Context, guardianEmail string) SyncResult {
	o.EnsureDefaults()
	pending, err := o.Pending()
	if err != nil {
		return SyncResult{Error: AsAuthError(err)}
	}

	var res SyncResult
	for _, d := range pending {
		if err := o.Write(ctx, d, guardianEmail); err != nil {
			res.Failed++
			continue
		}
		at := o.Now()
		d.SyncedAt = &at
		d.GuardianEmailPending = ""
		if err := o.Store.SaveDraft(d); err != nil {
			// The backend has the child; the draft stays pending and will be
			// replayed, which the backend deduplicates on LocalID.
			res.Failed++
			continue
		}
		res.Succeeded++
	}

	if res.Failed > 0 {
		res.Error = NewAuthError(ErrCodeSyncPartialFailure,
			fmt.Sprintf("%d of %d child profiles could not be saved and will be retried", res.Failed, res.Failed+res.Succeeded), "")
	}
	return res
}

// Clear drops every draft, synced or not. Used when the guardian discards
// the registration flow.
func (o *Outbox) Clear() error {
	return o.Store.DeleteAll()
}
