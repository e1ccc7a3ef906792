package driving

import (
	"context"

	"github.com/custodia-labs/greds/internal/core/domain"
)

// SessionService manages conversational state and its checkpoint chain.
type SessionService interface {
	// Update merges accepted claims and citations into the live session,
	// creating it on first use.
	Update(ctx context.Context, sessionID string, update domain.SessionUpdate) (*domain.Session, error)

	// Get returns the live session.
	Get(ctx context.Context, sessionID string) (*domain.Session, error)

	// Checkpoint freezes the live session and returns the checkpoint ID.
	Checkpoint(ctx context.Context, sessionID, name string) (string, error)

	// Rehydrate returns the minimal context stored in one checkpoint.
	Rehydrate(ctx context.Context, checkpointID string) (*domain.Rehydration, error)

	// Ancestry returns the checkpoint followed by its ancestors, nearest first.
	Ancestry(ctx context.Context, checkpointID string) ([]domain.Session, error)

	// Reparent moves a checkpoint under a new parent. An empty parent makes it a root.
	Reparent(ctx context.Context, checkpointID, parentID string) error

	// DeleteCheckpoint removes a checkpoint, optionally re-parenting its children.
	DeleteCheckpoint(ctx context.Context, checkpointID string, reparentChildren bool) error
}
