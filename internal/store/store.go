package store

import "context"

// Store defines the draft persistence contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Drafts
	CreateDraft(ctx context.Context, d *Draft) error
	GetDraft(ctx context.Context, id string) (*Draft, error)
	GetDraftByName(ctx context.Context, name string) (*Draft, error)
	UpdateDraft(ctx context.Context, id string, update DraftUpdate) error
	ListDrafts(ctx context.Context, filter DraftFilter) ([]*Draft, error)
	DeleteDraft(ctx context.Context, id string) error

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
