package engine

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live-quiz-service/internal/domain"
)

func statsQuestion() domain.Question {
	return domain.Question{
		ID: 1, Title: "q", Duration: 10,
		Answers: []domain.Answer{
			{ID: 10, Text: "a", Position: 1, Correct: true},
			{ID: 11, Text: "b", Position: 2},
			{ID: 12, Text: "c", Position: 3},
		},
	}
}

func TestComputeStatsNoRespondents(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	stats := computeStats(statsQuestion(), nil, nil, nil, rnd, 4, 10)

	require.Len(t, stats.Spreads, 3)
	for _, s := range stats.Spreads {
		assert.Equal(t, 0, s.Count)
		assert.Equal(t, 0, s.Percent)
	}
	assert.Equal(t, []bool{true, false, false}, stats.Statuses)
	assert.Equal(t, 0, stats.CorrectCount)
	assert.Equal(t, 0, stats.CorrectPercent)
	assert.Empty(t, stats.Leaders)
}

func TestComputeStatsSpreadAndPercent(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	respondents := map[string]domain.ParticipantRecord{
		"a": {LastQuestionID: 1, AnswerIDs: []int64{10}, Correct: true, Score: 1},
		"b": {LastQuestionID: 1, AnswerIDs: []int64{10}, Correct: true, Score: 1},
		"c": {LastQuestionID: 1, AnswerIDs: []int64{11}},
		"d": {LastQuestionID: 1, AnswerIDs: []int64{12}},
	}
	participants := []domain.Participant{
		{ID: "a", Name: "A"}, {ID: "b", Name: "B"},
		{ID: "c", Name: "C"}, {ID: "d", Name: "D"},
	}

	stats := computeStats(statsQuestion(), respondents, respondents, participants, rnd, 4, 10)

	require.Len(t, stats.Spreads, 3)
	assert.Equal(t, 2, stats.Spreads[0].Count)
	assert.Equal(t, 50, stats.Spreads[0].Percent)
	assert.Equal(t, 1, stats.Spreads[1].Count)
	assert.Equal(t, 25, stats.Spreads[1].Percent)
	assert.Equal(t, 2, stats.CorrectCount)
	assert.Equal(t, 50, stats.CorrectPercent)
}

// TestComputeStatsLeadersSpanAllRecords closes a question nobody answered:
// the percentages are respondent-scoped (all zero) but the leader sample
// still comes from the cumulative score records.
func TestComputeStatsLeadersSpanAllRecords(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	records := map[string]domain.ParticipantRecord{
		"veteran": {Score: 5, LastQuestionID: 99},
	}
	participants := []domain.Participant{{ID: "veteran", Name: "Vera"}}

	stats := computeStats(statsQuestion(), nil, records, participants, rnd, 4, 10)

	assert.Equal(t, 0, stats.CorrectPercent)
	require.Len(t, stats.Leaders, 1)
	assert.Equal(t, "veteran", stats.Leaders[0].ID)
}

func TestPercentRounding(t *testing.T) {
	assert.Equal(t, 0, percent(1, 0))
	assert.Equal(t, 33, percent(1, 3))
	assert.Equal(t, 67, percent(2, 3))
	assert.Equal(t, 100, percent(3, 3))
	assert.Equal(t, 17, percent(1, 6))
}

func TestSampleLeadersThreshold(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	records := map[string]domain.ParticipantRecord{
		"top":  {Score: 10},
		"near": {Score: 7},
		"far":  {Score: 2},
		"zero": {Score: 0},
	}
	participants := []domain.Participant{
		{ID: "top", Name: "Top"}, {ID: "near", Name: "Near"},
		{ID: "far", Name: "Far"}, {ID: "zero", Name: "Zero"},
	}

	// Gap 4 admits scores >= 6: top and near only.
	leaders := sampleLeaders(records, participants, rnd, 4, 10)
	ids := make([]string, 0, len(leaders))
	for _, l := range leaders {
		ids = append(ids, l.ID)
	}
	assert.ElementsMatch(t, []string{"top", "near"}, ids)
}

func TestSampleLeadersZeroScoresNeverQualify(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	records := map[string]domain.ParticipantRecord{
		"a": {Score: 0},
		"b": {Score: 0},
	}
	participants := []domain.Participant{{ID: "a"}, {ID: "b"}}

	// Even with top score 0, the floor of 1 keeps everyone out.
	leaders := sampleLeaders(records, participants, rnd, 4, 10)
	assert.Empty(t, leaders)
}

func TestSampleLeadersRespectsSampleSize(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	records := make(map[string]domain.ParticipantRecord)
	participants := make([]domain.Participant, 0, 20)
	for i := 0; i < 20; i++ {
		id := string(rune('a' + i))
		records[id] = domain.ParticipantRecord{Score: 5}
		participants = append(participants, domain.Participant{ID: id})
	}

	leaders := sampleLeaders(records, participants, rnd, 4, 10)
	assert.Len(t, leaders, 10)
}

func TestBuildScoreboardOrderAndRanks(t *testing.T) {
	records := map[string]domain.ParticipantRecord{
		"low":  {Score: 1},
		"high": {Score: 5},
		"mid":  {Score: 3},
	}
	participants := []domain.Participant{
		{ID: "low", Name: "Lois"},
		{ID: "high", Name: "Hiro"},
		{ID: "mid", Name: "Mia"},
	}

	board := buildScoreboard(records, participants)
	require.Len(t, board, 3)
	assert.Equal(t, "high", board[0].ID)
	assert.Equal(t, "Hiro", board[0].Name)
	assert.Equal(t, 5, board[0].Score)
	assert.Equal(t, 1, board[0].Rank)
	assert.Equal(t, "mid", board[1].ID)
	assert.Equal(t, 2, board[1].Rank)
	assert.Equal(t, "low", board[2].ID)
	assert.Equal(t, 3, board[2].Rank)
}

func TestBuildScoreboardFallsBackToID(t *testing.T) {
	records := map[string]domain.ParticipantRecord{"orphan": {Score: 2}}

	board := buildScoreboard(records, nil)
	require.Len(t, board, 1)
	assert.Equal(t, "orphan", board[0].ID)
	assert.Equal(t, "orphan", board[0].Name)
}

func TestNormalizeIDs(t *testing.T) {
	assert.Equal(t, []int64{10, 20, 21}, normalizeIDs([]int64{21, 10, 20, 21, 10}))
	assert.Empty(t, normalizeIDs(nil))
}

func TestCorrectIDSet(t *testing.T) {
	q := domain.Question{Answers: []domain.Answer{
		{ID: 3, Correct: true},
		{ID: 1},
		{ID: 2, Correct: true},
	}}
	assert.Equal(t, []int64{2, 3}, correctIDSet(q))
}
