package similarity

import (
	"fmt"
	"sort"
	"time"

	"github.com/saturnino-fabrica-de-software/facetag/internal/domain"
)

type Policy string

const (
	// PolicyMulti records every distinct user whose score clears the threshold.
	PolicyMulti Policy = "multi"
	// PolicySingleBest keeps only the highest scoring user. Ties go to the
	// lexicographically lowest user id string.
	PolicySingleBest Policy = "single_best"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyMulti, PolicySingleBest:
		return Policy(s), nil
	case "":
		return PolicyMulti, nil
	}
	return "", fmt.Errorf("unknown match policy %q", s)
}

// Matcher applies one threshold and policy to every face of a pass.
type Matcher struct {
	threshold float64
	policy    Policy
}

func NewMatcher(threshold float64, policy Policy) *Matcher {
	if policy == "" {
		policy = PolicyMulti
	}
	return &Matcher{threshold: threshold, policy: policy}
}

func (m *Matcher) Threshold() float64 { return m.threshold }
func (m *Matcher) Policy() Policy     { return m.policy }

// MatchFace scores embedding against every profile in snapshot and returns
// the resulting matches, at most one per user, ordered by score descending
// then user id ascending.
func (m *Matcher) MatchFace(embedding []float64, snapshot []domain.ProfileEmbedding, at time.Time) ([]domain.Match, error) {
	best := make(map[string]domain.Match)

	for _, p := range snapshot {
		score, err := Cosine(embedding, p.Embedding)
		if err != nil {
			return nil, fmt.Errorf("profile %s: %w", p.UserID, err)
		}
		if !IsMatch(score, m.threshold) {
			continue
		}

		key := p.UserID.String()
		if prev, ok := best[key]; ok && prev.SimilarityScore >= score {
			continue
		}
		best[key] = domain.Match{
			UserID:                         p.UserID,
			SimilarityScore:                score,
			MatchedAgainstEmbeddingVersion: p.Version,
			MatchedAt:                      at,
		}
	}

	matches := make([]domain.Match, 0, len(best))
	for _, match := range best {
		matches = append(matches, match)
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].SimilarityScore != matches[j].SimilarityScore {
			return matches[i].SimilarityScore > matches[j].SimilarityScore
		}
		return matches[i].UserID.String() < matches[j].UserID.String()
	})

	if m.policy == PolicySingleBest && len(matches) > 1 {
		matches = matches[:1]
	}
	return matches, nil
}

// MatchFaces replaces the matches of every face and returns the new faces
// together with the sum of per-face match counts. The input slice is not
// modified.
func (m *Matcher) MatchFaces(faces []domain.Face, snapshot []domain.ProfileEmbedding, at time.Time) ([]domain.Face, int, error) {
	out := make([]domain.Face, len(faces))
	total := 0

	for i, f := range faces {
		matches, err := m.MatchFace(f.Embedding, snapshot, at)
		if err != nil {
			return nil, 0, fmt.Errorf("face %d: %w", f.FaceIndex, err)
		}
		f.Matches = matches
		out[i] = f
		total += len(matches)
	}

	return out, total, nil
}
