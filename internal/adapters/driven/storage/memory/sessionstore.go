package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/custodia-labs/greds/internal/core/domain"
)

// GetSession retrieves the live session for a session ID.
func (s *Store) GetSession(_ context.Context, sessionID string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.live[sessionID]
	if !ok {
		return nil, domain.ErrNoActiveSession
	}
	sess = cloneSession(sess)
	return &sess, nil
}

// SaveSession inserts or updates a live session.
func (s *Store) SaveSession(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLiveLocked(session)
}

func (s *Store) saveLiveLocked(session *domain.Session) error {
	if session.IsCheckpoint {
		return fmt.Errorf("%w: checkpoint saved as live session", domain.ErrInvalidInput)
	}
	if session.SessionID == "" {
		return fmt.Errorf("%w: session id is required", domain.ErrInvalidInput)
	}
	if session.LastCheckpointID != "" {
		if _, ok := s.checkpts[session.LastCheckpointID]; !ok {
			return domain.ErrCheckpointNotFound
		}
	}

	now := s.now()
	if prev, ok := s.live[session.SessionID]; ok {
		session.ID = prev.ID
		session.CreatedAt = prev.CreatedAt
	} else {
		if session.ID == "" {
			session.ID = newID()
		}
		if session.CreatedAt.IsZero() {
			session.CreatedAt = now
		}
	}
	session.UpdatedAt = now
	s.live[session.SessionID] = cloneSession(*session)
	return nil
}

// SaveCheckpoint stores checkpoint and updates live together.
func (s *Store) SaveCheckpoint(_ context.Context, live, checkpoint *domain.Session) error {
	if !checkpoint.IsCheckpoint || checkpoint.ID == "" {
		return fmt.Errorf("%w: checkpoint must be frozen with an id", domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.checkpts[checkpoint.ID]; ok {
		return fmt.Errorf("%w: checkpoint %s", domain.ErrAlreadyExists, checkpoint.ID)
	}
	if checkpoint.ParentCheckpointID != "" {
		if _, ok := s.checkpts[checkpoint.ParentCheckpointID]; !ok {
			return domain.ErrCheckpointNotFound
		}
	}

	if checkpoint.CreatedAt.IsZero() {
		checkpoint.CreatedAt = s.now()
		checkpoint.UpdatedAt = checkpoint.CreatedAt
	}
	s.checkpts[checkpoint.ID] = cloneSession(*checkpoint)
	if err := s.saveLiveLocked(live); err != nil {
		delete(s.checkpts, checkpoint.ID)
		return err
	}
	return nil
}

// GetCheckpoint retrieves a checkpoint by ID.
func (s *Store) GetCheckpoint(_ context.Context, id string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.checkpts[id]
	if !ok {
		return nil, domain.ErrCheckpointNotFound
	}
	cp = cloneSession(cp)
	return &cp, nil
}

// ListChildren returns checkpoints whose parent is id, oldest first.
func (s *Store) ListChildren(_ context.Context, id string) ([]domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.Session
	for _, cp := range s.checkpts {
		if cp.ParentCheckpointID == id {
			result = append(result, cloneSession(cp))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// SetCheckpointParent changes the parent link of a checkpoint.
func (s *Store) SetCheckpointParent(_ context.Context, id, parentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.checkpts[id]
	if !ok {
		return domain.ErrCheckpointNotFound
	}
	if parentID != "" {
		if _, ok := s.checkpts[parentID]; !ok {
			return domain.ErrCheckpointNotFound
		}
	}
	cp.ParentCheckpointID = parentID
	cp.UpdatedAt = s.now()
	s.checkpts[id] = cp
	return nil
}

// DeleteCheckpoint removes a checkpoint. Live sessions headed by it move to its parent.
func (s *Store) DeleteCheckpoint(_ context.Context, id string, reparent bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.checkpts[id]
	if !ok {
		return domain.ErrCheckpointNotFound
	}

	var children []string
	for cid, child := range s.checkpts {
		if child.ParentCheckpointID == id {
			children = append(children, cid)
		}
	}
	if len(children) > 0 && !reparent {
		return domain.ErrCheckpointHasChildren
	}

	now := s.now()
	for _, cid := range children {
		child := s.checkpts[cid]
		child.ParentCheckpointID = cp.ParentCheckpointID
		child.UpdatedAt = now
		s.checkpts[cid] = child
	}
	for sid, sess := range s.live {
		if sess.LastCheckpointID == id {
			sess.LastCheckpointID = cp.ParentCheckpointID
			sess.UpdatedAt = now
			s.live[sid] = sess
		}
	}
	delete(s.checkpts, id)
	return nil
}
