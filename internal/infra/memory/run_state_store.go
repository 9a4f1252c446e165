package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"live-quiz-service/internal/domain"
)

// RunStateStore keeps run-time state in process memory. It mirrors the
// Redis-backed store for development and tests; nothing survives a restart.
type RunStateStore struct {
	mu         sync.RWMutex
	joined     map[string]time.Time
	identities map[string]domain.Participant
	records    map[string]domain.ParticipantRecord
	scoreboard []domain.ScoreboardEntry
	hasCurrent bool
	currentID  int64
	remaining  time.Duration
}

func NewRunStateStore() *RunStateStore {
	return &RunStateStore{
		joined:     make(map[string]time.Time),
		identities: make(map[string]domain.Participant),
		records:    make(map[string]domain.ParticipantRecord),
	}
}

func (s *RunStateStore) JoinParticipant(_ context.Context, p domain.Participant, joinedAt time.Time) (bool, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, known := s.joined[p.ID]
	if !known {
		// First-seen time is the permanent sort key; re-joins never reorder.
		s.joined[p.ID] = joinedAt
	}
	s.identities[p.ID] = p
	return !known, len(s.joined), nil
}

func (s *RunStateStore) IsJoined(_ context.Context, participantID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.joined[participantID]
	return ok, nil
}

func (s *RunStateStore) Participants(_ context.Context) ([]domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.joined))
	for id := range s.joined {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ti, tj := s.joined[ids[i]], s.joined[ids[j]]
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return ids[i] < ids[j]
	})
	out := make([]domain.Participant, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.identities[id])
	}
	return out, nil
}

func (s *RunStateStore) CountParticipants(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.joined), nil
}

func (s *RunStateStore) Record(_ context.Context, participantID string) (domain.ParticipantRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[participantID]
	return rec, ok, nil
}

func (s *RunStateStore) SaveRecord(_ context.Context, participantID string, rec domain.ParticipantRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[participantID] = rec
	return nil
}

func (s *RunStateStore) Records(_ context.Context) (map[string]domain.ParticipantRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.ParticipantRecord, len(s.records))
	for id, rec := range s.records {
		out[id] = rec
	}
	return out, nil
}

func (s *RunStateStore) ClearRecords(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]domain.ParticipantRecord)
	return nil
}

func (s *RunStateStore) SetCurrentQuestion(_ context.Context, questionID int64, remaining time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasCurrent = true
	s.currentID = questionID
	s.remaining = remaining
	return nil
}

func (s *RunStateStore) UpdateRemaining(_ context.Context, remaining time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasCurrent {
		return nil
	}
	s.remaining = remaining
	return nil
}

func (s *RunStateStore) ClearCurrentQuestion(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasCurrent = false
	s.currentID = 0
	s.remaining = 0
	return nil
}

// CurrentQuestion exposes the persisted progress snapshot for external
// readers; ok is false when no question is active.
func (s *RunStateStore) CurrentQuestion(_ context.Context) (int64, time.Duration, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentID, s.remaining, s.hasCurrent, nil
}

func (s *RunStateStore) SaveScoreboard(_ context.Context, entries []domain.ScoreboardEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scoreboard = append([]domain.ScoreboardEntry(nil), entries...)
	return nil
}

func (s *RunStateStore) LatestScoreboard(_ context.Context) ([]domain.ScoreboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.ScoreboardEntry(nil), s.scoreboard...), nil
}

func (s *RunStateStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joined = make(map[string]time.Time)
	s.identities = make(map[string]domain.Participant)
	s.records = make(map[string]domain.ParticipantRecord)
	s.scoreboard = nil
	s.hasCurrent = false
	s.currentID = 0
	s.remaining = 0
	return nil
}
