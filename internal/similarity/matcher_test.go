package similarity

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/facetag/internal/domain"
)

var (
	userA = uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	userB = uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	userC = uuid.MustParse("00000000-0000-0000-0000-00000000000c")
)

func TestMatcher_MatchFace(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("identical profile matches with score 1", func(t *testing.T) {
		m := NewMatcher(0.6, PolicyMulti)
		snapshot := []domain.ProfileEmbedding{{UserID: userA, Embedding: unit(128, 0), Version: 3}}

		matches, err := m.MatchFace(unit(128, 0), snapshot, at)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, userA, matches[0].UserID)
		assert.Equal(t, 1.0, matches[0].SimilarityScore)
		assert.Equal(t, int64(3), matches[0].MatchedAgainstEmbeddingVersion)
		assert.Equal(t, at, matches[0].MatchedAt)
	})

	t.Run("orthogonal profile does not match at high threshold", func(t *testing.T) {
		m := NewMatcher(0.99, PolicyMulti)
		snapshot := []domain.ProfileEmbedding{
			{UserID: userA, Embedding: unit(128, 0), Version: 1},
			{UserID: userB, Embedding: unit(128, 1), Version: 1},
		}

		matches, err := m.MatchFace(unit(128, 0), snapshot, at)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, userA, matches[0].UserID)
	})

	t.Run("multi policy keeps look-alikes ordered by score", func(t *testing.T) {
		m := NewMatcher(0.5, PolicyMulti)
		snapshot := []domain.ProfileEmbedding{
			{UserID: userC, Embedding: []float64{1, 1, 0}, Version: 1},
			{UserID: userA, Embedding: []float64{1, 0.1, 0}, Version: 1},
			{UserID: userB, Embedding: []float64{0, 0, 1}, Version: 1},
		}

		matches, err := m.MatchFace([]float64{1, 0, 0}, snapshot, at)
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, userA, matches[0].UserID)
		assert.Equal(t, userC, matches[1].UserID)
	})

	t.Run("duplicate user in snapshot yields one match", func(t *testing.T) {
		m := NewMatcher(0.5, PolicyMulti)
		snapshot := []domain.ProfileEmbedding{
			{UserID: userA, Embedding: []float64{1, 0.5, 0}, Version: 1},
			{UserID: userA, Embedding: []float64{1, 0, 0}, Version: 2},
		}

		matches, err := m.MatchFace([]float64{1, 0, 0}, snapshot, at)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, 1.0, matches[0].SimilarityScore)
		assert.Equal(t, int64(2), matches[0].MatchedAgainstEmbeddingVersion)
	})

	t.Run("single best breaks ties on lowest user id", func(t *testing.T) {
		m := NewMatcher(0.5, PolicySingleBest)
		snapshot := []domain.ProfileEmbedding{
			{UserID: userC, Embedding: []float64{1, 0}, Version: 1},
			{UserID: userB, Embedding: []float64{1, 0}, Version: 1},
		}

		matches, err := m.MatchFace([]float64{1, 0}, snapshot, at)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, userB, matches[0].UserID)
	})

	t.Run("empty snapshot", func(t *testing.T) {
		m := NewMatcher(0.6, PolicyMulti)
		matches, err := m.MatchFace([]float64{1, 0}, nil, at)
		require.NoError(t, err)
		assert.NotNil(t, matches)
		assert.Empty(t, matches)
	})

	t.Run("corrupt profile dimension is reported", func(t *testing.T) {
		m := NewMatcher(0.6, PolicyMulti)
		snapshot := []domain.ProfileEmbedding{{UserID: userA, Embedding: []float64{1, 0, 0}, Version: 1}}

		_, err := m.MatchFace([]float64{1, 0}, snapshot, at)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrDimensionMismatch))
	})
}

func TestMatcher_MatchFaces(t *testing.T) {
	at := time.Now().UTC()
	m := NewMatcher(0.6, PolicyMulti)
	snapshot := []domain.ProfileEmbedding{
		{UserID: userA, Embedding: []float64{1, 0, 0}, Version: 1},
		{UserID: userB, Embedding: []float64{0, 1, 0}, Version: 4},
	}
	faces := []domain.Face{
		{FaceIndex: 0, Embedding: []float64{1, 0, 0}, Matches: []domain.Match{{UserID: userC}}},
		{FaceIndex: 1, Embedding: []float64{0, 1, 0}},
		{FaceIndex: 2, Embedding: []float64{0, 0, 1}},
	}

	out, total, err := m.MatchFaces(faces, snapshot, at)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, out, 3)
	assert.Equal(t, userA, out[0].Matches[0].UserID)
	assert.Equal(t, userB, out[1].Matches[0].UserID)
	assert.Empty(t, out[2].Matches)

	// previous matches are replaced, not merged, and the input is untouched
	assert.Len(t, out[0].Matches, 1)
	assert.Equal(t, userC, faces[0].Matches[0].UserID)

	again, total2, err := m.MatchFaces(out, snapshot, at)
	require.NoError(t, err)
	assert.Equal(t, total, total2)
	assert.Equal(t, out, again)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyMulti, p)

	p, err = ParsePolicy("single_best")
	require.NoError(t, err)
	assert.Equal(t, PolicySingleBest, p)

	_, err = ParsePolicy("best_effort")
	assert.Error(t, err)
}
