package issue

import "context"

// Store describes issue persistence. Every reading method scopes by
// creator ids so cross-organization rows never leave the storage
// layer.
type Store interface {
	Create(ctx context.Context, is *Issue) error
	Find(ctx context.Context, id string) (*Issue, error)
	List(ctx context.Context, f Filter) ([]*Issue, int, error)
	Update(ctx context.Context, is *Issue) error
	Delete(ctx context.Context, id string) error

	StatusCounts(ctx context.Context, creatorIDs []string) (map[Status]int, error)
	PriorityCounts(ctx context.Context, creatorIDs []string) (map[Priority]int, error)
	RecentByCreators(ctx context.Context, creatorIDs []string, limit int) ([]*Issue, error)
}
