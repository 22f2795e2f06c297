package domain

import "context"

// SessionArchive persists the full session list as one blob under a fixed
// key. Load tolerates a missing or malformed blob; Save is last-write-wins
// with no transactional guarantee.
type SessionArchive interface {
	Load(ctx context.Context) ([]Session, error)
	Save(ctx context.Context, sessions []Session) error
}
