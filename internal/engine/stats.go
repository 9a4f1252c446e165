package engine

import (
	"math"
	"math/rand"
	"slices"
	"sort"

	"live-quiz-service/internal/domain"
)

// computeStats aggregates the final state of play for a closed question.
// Respondents are the records that answered this question; percentages are
// rounded to the nearest integer and defined as 0 when nobody responded.
// The leader sample is drawn from records — every stored record, not just
// this question's respondents — so cumulative top scorers stay in the
// spotlight even on a question they skipped.
func computeStats(q domain.Question, respondents, records map[string]domain.ParticipantRecord, participants []domain.Participant, rnd *rand.Rand, scoreGap, sampleSize int) domain.QuestionStats {
	counts := make(map[int64]int)
	correct := 0
	for _, rec := range respondents {
		for _, id := range rec.AnswerIDs {
			counts[id]++
		}
		if rec.Correct {
			correct++
		}
	}

	total := len(respondents)
	spreads := make([]domain.AnswerSpread, 0, len(q.Answers))
	statuses := make([]bool, 0, len(q.Answers))
	for _, a := range q.Answers {
		spreads = append(spreads, domain.AnswerSpread{
			AnswerID: a.ID,
			Count:    counts[a.ID],
			Percent:  percent(counts[a.ID], total),
		})
		statuses = append(statuses, a.Correct)
	}

	return domain.QuestionStats{
		Spreads:        spreads,
		Statuses:       statuses,
		CorrectCount:   correct,
		CorrectPercent: percent(correct, total),
		Leaders:        sampleLeaders(records, participants, rnd, scoreGap, sampleSize),
	}
}

func percent(count, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(count) * 100 / float64(total)))
}

type scoredID struct {
	id    string
	score int
}

// sortByScore flattens records into a descending-score list. The order among
// tied scores follows map iteration and is deliberately unspecified.
func sortByScore(records map[string]domain.ParticipantRecord) []scoredID {
	out := make([]scoredID, 0, len(records))
	for id, rec := range records {
		out = append(out, scoredID{id: id, score: rec.Score})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].score > out[j].score
	})
	return out
}

// sampleLeaders picks up to sampleSize random participants whose score is
// within scoreGap of the top score (floored at 1, so zero scores never
// qualify). The randomness rotates the spotlight among near-tied leaders.
func sampleLeaders(records map[string]domain.ParticipantRecord, participants []domain.Participant, rnd *rand.Rand, scoreGap, sampleSize int) []domain.Participant {
	sorted := sortByScore(records)
	if len(sorted) == 0 {
		return nil
	}

	minScore := sorted[0].score - scoreGap
	if minScore < 1 {
		minScore = 1
	}
	pool := make([]string, 0, len(sorted))
	for _, s := range sorted {
		if s.score >= minScore {
			pool = append(pool, s.id)
		}
	}
	rnd.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})
	if len(pool) > sampleSize {
		pool = pool[:sampleSize]
	}

	picked := make(map[string]struct{}, len(pool))
	for _, id := range pool {
		picked[id] = struct{}{}
	}
	leaders := make([]domain.Participant, 0, len(pool))
	for _, p := range participants {
		if _, ok := picked[p.ID]; ok {
			leaders = append(leaders, p)
		}
	}
	return leaders
}

// buildScoreboard ranks every recorded participant by descending score and
// joins in registry identity. Ranks are strictly positional: ties get
// consecutive ranks in unspecified relative order.
func buildScoreboard(records map[string]domain.ParticipantRecord, participants []domain.Participant) []domain.ScoreboardEntry {
	byID := make(map[string]domain.Participant, len(participants))
	for _, p := range participants {
		byID[p.ID] = p
	}

	sorted := sortByScore(records)
	entries := make([]domain.ScoreboardEntry, 0, len(sorted))
	for i, s := range sorted {
		p, ok := byID[s.id]
		if !ok {
			p = domain.Participant{ID: s.id, Name: s.id}
		}
		entries = append(entries, domain.ScoreboardEntry{
			Participant: p,
			Score:       s.score,
			Rank:        i + 1,
		})
	}
	return entries
}

// normalizeIDs produces the canonical sorted, deduplicated answer-id set.
func normalizeIDs(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// correctIDSet extracts the sorted correct-answer ids of a question.
func correctIDSet(q domain.Question) []int64 {
	ids := make([]int64, 0, len(q.Answers))
	for _, a := range q.Answers {
		if a.Correct {
			ids = append(ids, a.ID)
		}
	}
	slices.Sort(ids)
	return ids
}

// equalIDSets compares two canonical id sets. Exact equality only: a subset
// or superset of the correct ids is wrong.
func equalIDSets(a, b []int64) bool {
	return slices.Equal(a, b)
}

func containsID(ids []int64, id int64) bool {
	return slices.Contains(ids, id)
}
