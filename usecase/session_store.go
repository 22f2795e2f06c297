package usecase

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yuvalro/ivan/domain"
	"github.com/yuvalro/ivan/utils/log"
)

// titleRuneLimit caps a session title at the first characters of the first
// user message. Counted in runes so Hebrew text never gets split mid-glyph.
const titleRuneLimit = 30

// SessionStore is the sole owner of conversation state. All mutations go
// through it; every mutation is followed by an archive write. The mutex also
// serializes archive access, so the archive needs no locking of its own.
type SessionStore struct {
	mu       sync.RWMutex
	sessions []domain.Session
	archive  domain.SessionArchive
	ids      domain.IDGenerator
}

// NewSessionStore loads prior history from the archive. A load failure is
// downgraded to empty history; startup never fails on a bad blob.
func NewSessionStore(ctx context.Context, archive domain.SessionArchive, ids domain.IDGenerator) *SessionStore {
	sessions, err := archive.Load(ctx)
	if err != nil {
		log.WithCtx(ctx).Warn("Starting with empty history", zap.Error(err))
		sessions = nil
	}
	return &SessionStore{
		sessions: sessions,
		archive:  archive,
		ids:      ids,
	}
}

// CreateSession prepends a new session titled from the first user message
// and returns its id.
func (s *SessionStore) CreateSession(ctx context.Context, firstUserText string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := domain.Session{
		ID:        s.ids.NewID(),
		Title:     truncateTitle(firstUserText),
		Timestamp: time.Now(),
		Messages:  []domain.Message{},
	}
	s.sessions = append([]domain.Session{session}, s.sessions...)
	s.persist(ctx)
	return session.ID
}

// AppendTurn appends a user message and its paired bot placeholder, in
// order, to the named session. Unknown session ids are a no-op.
func (s *SessionStore) AppendTurn(ctx context.Context, sessionID string, user, bot domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(sessionID)
	if i < 0 {
		log.WithCtx(ctx).Warn("AppendTurn on unknown session", zap.String("session_id", sessionID))
		return
	}
	s.sessions[i].Messages = append(s.sessions[i].Messages, user, bot)
	s.persist(ctx)
}

// UpdateBotMessage applies a partial update to one message. Unknown session
// or message ids are a no-op.
func (s *SessionStore) UpdateBotMessage(ctx context.Context, sessionID, messageID string, patch domain.MessagePatch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(sessionID)
	if i < 0 {
		return
	}
	messages := s.sessions[i].Messages
	for j := range messages {
		if messages[j].ID != messageID {
			continue
		}
		if patch.Content != nil {
			messages[j].Content = *patch.Content
		}
		if patch.ImageURL != nil {
			messages[j].ImageURL = *patch.ImageURL
		}
		if patch.Status != nil {
			messages[j].Status = *patch.Status
		}
		s.persist(ctx)
		return
	}
}

// ListSessions returns a snapshot of all sessions, most-recently-created
// first.
func (s *SessionStore) ListSessions() []domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshot(s.sessions)
}

// Get returns a snapshot of one session.
func (s *SessionStore) Get(sessionID string) (domain.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(sessionID)
	if i < 0 {
		return domain.Session{}, false
	}
	return copySession(s.sessions[i]), true
}

// Search filters sessions by case-insensitive substring match on the title,
// preserving store order.
func (s *SessionStore) Search(query string) []domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(query)
	var matched []domain.Session
	for _, session := range s.sessions {
		if strings.Contains(strings.ToLower(session.Title), needle) {
			matched = append(matched, copySession(session))
		}
	}
	return matched
}

// indexOf must be called with the lock held.
func (s *SessionStore) indexOf(sessionID string) int {
	for i := range s.sessions {
		if s.sessions[i].ID == sessionID {
			return i
		}
	}
	return -1
}

// persist must be called with the lock held. Write failures are swallowed;
// in-memory state stays authoritative for the process lifetime.
func (s *SessionStore) persist(ctx context.Context) {
	if err := s.archive.Save(ctx, s.sessions); err != nil {
		log.WithCtx(ctx).Warn("Session archive write failed", zap.Error(err))
	}
}

func truncateTitle(text string) string {
	runes := []rune(text)
	if len(runes) > titleRuneLimit {
		runes = runes[:titleRuneLimit]
	}
	return string(runes)
}

func snapshot(sessions []domain.Session) []domain.Session {
	out := make([]domain.Session, len(sessions))
	for i, session := range sessions {
		out[i] = copySession(session)
	}
	return out
}

func copySession(session domain.Session) domain.Session {
	copied := session
	copied.Messages = append([]domain.Message(nil), session.Messages...)
	return copied
}
