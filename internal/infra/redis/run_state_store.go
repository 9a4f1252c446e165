package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"live-quiz-service/internal/domain"
)

// Persistence keys for the run-state store. The layout is shared with
// external readers (admin progress views), which must tolerate slightly
// stale values.
const (
	keyCurrentQuestion = "livequiz:current-question"
	keyPlayers         = "livequiz:players"
	keyScoreboard      = "livequiz:score-board"
	keyUsers           = "livequiz:users"
	keyUserInfo        = "livequiz:users:info"
)

// RunStateStore persists run-time quiz state in Redis so a process restart
// loses at most the most recent progress tick, never a scoring decision.
//
//   - joined participants: sorted set keyed by id, scored by first-seen millis
//     (identity JSON lives in a companion hash)
//   - participant records: hash id -> record JSON
//   - current question: hash {id, remaining}
//   - scoreboard: one JSON array
type RunStateStore struct {
	client *redis.Client
}

func NewRunStateStore(client *redis.Client) *RunStateStore {
	return &RunStateStore{client: client}
}

func (s *RunStateStore) JoinParticipant(ctx context.Context, p domain.Participant, joinedAt time.Time) (bool, int, error) {
	// NX keeps the first-seen score, so re-joins never reorder the registry.
	added, err := s.client.ZAddNX(ctx, keyUsers, redis.Z{
		Score:  float64(joinedAt.UnixMilli()),
		Member: p.ID,
	}).Result()
	if err != nil {
		return false, 0, fmt.Errorf("register join: %w", err)
	}

	identity, err := json.Marshal(p)
	if err != nil {
		return false, 0, fmt.Errorf("encode participant: %w", err)
	}
	if err := s.client.HSet(ctx, keyUserInfo, p.ID, identity).Err(); err != nil {
		return false, 0, fmt.Errorf("save participant identity: %w", err)
	}

	count, err := s.client.ZCard(ctx, keyUsers).Result()
	if err != nil {
		return false, 0, fmt.Errorf("count participants: %w", err)
	}
	return added == 1, int(count), nil
}

func (s *RunStateStore) IsJoined(ctx context.Context, participantID string) (bool, error) {
	err := s.client.ZScore(ctx, keyUsers, participantID).Err()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check participant: %w", err)
	}
	return true, nil
}

func (s *RunStateStore) Participants(ctx context.Context) ([]domain.Participant, error) {
	ids, err := s.client.ZRangeByScore(ctx, keyUsers, &redis.ZRangeBy{Min: "0", Max: "+inf"}).Result()
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	raw, err := s.client.HMGet(ctx, keyUserInfo, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("load participant identities: %w", err)
	}
	out := make([]domain.Participant, 0, len(ids))
	for i, v := range raw {
		str, ok := v.(string)
		if !ok {
			// Identity hash out of sync with the join set; fall back to the id.
			out = append(out, domain.Participant{ID: ids[i], Name: ids[i]})
			continue
		}
		var p domain.Participant
		if err := json.Unmarshal([]byte(str), &p); err != nil {
			return nil, fmt.Errorf("decode participant %s: %w", ids[i], err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *RunStateStore) CountParticipants(ctx context.Context) (int, error) {
	count, err := s.client.ZCard(ctx, keyUsers).Result()
	if err != nil {
		return 0, fmt.Errorf("count participants: %w", err)
	}
	return int(count), nil
}

func (s *RunStateStore) Record(ctx context.Context, participantID string) (domain.ParticipantRecord, bool, error) {
	raw, err := s.client.HGet(ctx, keyPlayers, participantID).Result()
	if err == redis.Nil {
		return domain.ParticipantRecord{}, false, nil
	}
	if err != nil {
		return domain.ParticipantRecord{}, false, fmt.Errorf("load record: %w", err)
	}
	var rec domain.ParticipantRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return domain.ParticipantRecord{}, false, fmt.Errorf("decode record: %w", err)
	}
	return rec, true, nil
}

func (s *RunStateStore) SaveRecord(ctx context.Context, participantID string, rec domain.ParticipantRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := s.client.HSet(ctx, keyPlayers, participantID, raw).Err(); err != nil {
		return fmt.Errorf("save record: %w", err)
	}
	return nil
}

func (s *RunStateStore) Records(ctx context.Context) (map[string]domain.ParticipantRecord, error) {
	raw, err := s.client.HGetAll(ctx, keyPlayers).Result()
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	out := make(map[string]domain.ParticipantRecord, len(raw))
	for id, v := range raw {
		var rec domain.ParticipantRecord
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			return nil, fmt.Errorf("decode record %s: %w", id, err)
		}
		out[id] = rec
	}
	return out, nil
}

func (s *RunStateStore) ClearRecords(ctx context.Context) error {
	if err := s.client.Del(ctx, keyPlayers).Err(); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	return nil
}

func (s *RunStateStore) SetCurrentQuestion(ctx context.Context, questionID int64, remaining time.Duration) error {
	err := s.client.HSet(ctx, keyCurrentQuestion,
		"id", questionID,
		"remaining", remaining.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("save current question: %w", err)
	}
	return nil
}

func (s *RunStateStore) UpdateRemaining(ctx context.Context, remaining time.Duration) error {
	if err := s.client.HSet(ctx, keyCurrentQuestion, "remaining", remaining.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("update remaining time: %w", err)
	}
	return nil
}

func (s *RunStateStore) ClearCurrentQuestion(ctx context.Context) error {
	if err := s.client.Del(ctx, keyCurrentQuestion).Err(); err != nil {
		return fmt.Errorf("clear current question: %w", err)
	}
	return nil
}

// CurrentQuestion reads the persisted progress snapshot; ok is false when no
// question is active.
func (s *RunStateStore) CurrentQuestion(ctx context.Context) (int64, time.Duration, bool, error) {
	raw, err := s.client.HGetAll(ctx, keyCurrentQuestion).Result()
	if err != nil {
		return 0, 0, false, fmt.Errorf("load current question: %w", err)
	}
	if len(raw) == 0 {
		return 0, 0, false, nil
	}
	id, err := strconv.ParseInt(raw["id"], 10, 64)
	if err != nil {
		return 0, 0, false, fmt.Errorf("decode current question id: %w", err)
	}
	millis, err := strconv.ParseInt(raw["remaining"], 10, 64)
	if err != nil {
		return 0, 0, false, fmt.Errorf("decode remaining time: %w", err)
	}
	return id, time.Duration(millis) * time.Millisecond, true, nil
}

func (s *RunStateStore) SaveScoreboard(ctx context.Context, entries []domain.ScoreboardEntry) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode scoreboard: %w", err)
	}
	if err := s.client.Set(ctx, keyScoreboard, raw, 0).Err(); err != nil {
		return fmt.Errorf("save scoreboard: %w", err)
	}
	return nil
}

func (s *RunStateStore) LatestScoreboard(ctx context.Context) ([]domain.ScoreboardEntry, error) {
	raw, err := s.client.Get(ctx, keyScoreboard).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load scoreboard: %w", err)
	}
	var entries []domain.ScoreboardEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("decode scoreboard: %w", err)
	}
	return entries, nil
}

func (s *RunStateStore) Reset(ctx context.Context) error {
	err := s.client.Del(ctx, keyCurrentQuestion, keyPlayers, keyScoreboard, keyUsers, keyUserInfo).Err()
	if err != nil {
		return fmt.Errorf("reset run state: %w", err)
	}
	return nil
}
