package grading

import "math"

// Reference is the authored material a rationale is judged against.
type Reference struct {
	Text     string
	Keywords []string
}

// RationaleResult breaks a rationale score into its components.
type RationaleResult struct {
	Score           float64  `json:"score"`
	Similarity      float64  `json:"similarity"`    // 0–60
	KeywordScore    float64  `json:"keyword_score"` // 0–40
	LengthBonus     float64  `json:"length_bonus"`  // 0, 5 or 10
	MatchedKeywords []string `json:"matched_keywords,omitempty"`
	Heuristic       bool     `json:"heuristic"` // no reference material; length only
}

const (
	similarityMax = 60.0
	keywordMax    = 40.0
)

// ScoreRationale scores free text against ref. Without a reference text or
// keywords the score is a pure length heuristic.
func ScoreRationale(text string, ref Reference) RationaleResult {
	n := runeLen(text)
	keywords := NormalizeKeywords(ref.Keywords)

	if ref.Text == "" && len(keywords) == 0 {
		res := RationaleResult{Heuristic: true}
		switch {
		case n >= 200:
			res.Score = 80
		case n >= 100:
			res.Score = 60
		case n >= 50:
			res.Score = 40
		default:
			res.Score = 20
		}
		return res
	}

	var res RationaleResult
	if ref.Text != "" {
		res.Similarity = Round2(similarity(text, ref.Text) * similarityMax)
	}
	if len(keywords) > 0 {
		for _, k := range keywords {
			if containsFolded(text, k) {
				res.MatchedKeywords = append(res.MatchedKeywords, k)
			}
		}
		res.KeywordScore = Round2(float64(len(res.MatchedKeywords)) / float64(len(keywords)) * keywordMax)
	}
	switch {
	case n >= 200:
		res.LengthBonus = 10
	case n >= 100:
		res.LengthBonus = 5
	}
	res.Score = Round2(math.Min(100, res.Similarity+res.KeywordScore+res.LengthBonus))
	return res
}
