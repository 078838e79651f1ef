package grading

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-clinical/internal/clinical"
)

func TestScoreSelection(t *testing.T) {
	tests := []struct {
		name      string
		correct   []int64
		selected  []int64
		want      float64
		complete  bool
		precision float64
		recall    float64
	}{
		{"partial recall", []int64{11, 12}, []int64{11}, 66.67, false, 1, 0.5},
		{"extra selection", []int64{11, 12}, []int64{11, 12, 13}, 80, false, 2.0 / 3.0, 1},
		{"exact single", []int64{16}, []int64{16}, 100, true, 1, 1},
		{"disjoint", []int64{1, 2}, []int64{3, 4}, 0, false, 0, 0},
		{"empty selection", []int64{1, 2}, nil, 0, false, 0, 0},
		{"duplicates collapse", []int64{5, 6}, []int64{6, 5, 5, 6}, 100, true, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ScoreSelection(tt.correct, tt.selected)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, res.Score, 0.01)
			assert.Equal(t, tt.complete, res.Complete)
			assert.InDelta(t, tt.precision, res.Precision, 0.001)
			assert.InDelta(t, tt.recall, res.Recall, 0.001)
		})
	}
}

func TestScoreSelectionCounts(t *testing.T) {
	res, err := ScoreSelection([]int64{1, 2, 3}, []int64{3, 1, 9})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, res.CorrectlySelected)
	assert.Equal(t, []int64{9}, res.IncorrectlySelected)
	assert.Equal(t, []int64{2}, res.Missed)
}

func TestScoreSelectionOrderInvariant(t *testing.T) {
	a, err := ScoreSelection([]int64{1, 2, 3}, []int64{1, 4})
	require.NoError(t, err)
	b, err := ScoreSelection([]int64{3, 2, 1}, []int64{4, 1})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestScoreSelectionEmptyKey(t *testing.T) {
	_, err := ScoreSelection(nil, []int64{1})
	require.Error(t, err)
	assert.True(t, clinical.IsConfiguration(err))
}

func TestScoreRationaleHeuristic(t *testing.T) {
	cases := map[int]float64{220: 80, 200: 80, 150: 60, 60: 40, 10: 20, 0: 20}
	for n, want := range cases {
		res := ScoreRationale(strings.Repeat("a", n), Reference{})
		assert.True(t, res.Heuristic)
		assert.Equal(t, want, res.Score, "length %d", n)
	}
}

func TestScoreRationaleCountsRunes(t *testing.T) {
	// 100 CJK characters are 300 bytes but only qualify for the 60 band.
	res := ScoreRationale(strings.Repeat("眼", 100), Reference{})
	assert.Equal(t, 60.0, res.Score)
}

func TestScoreRationaleComponents(t *testing.T) {
	ref := Reference{
		Text:     "elevated intraocular pressure with optic disc cupping",
		Keywords: []string{"intraocular pressure", "cupping", "visual field"},
	}
	res := ScoreRationale("Elevated intraocular pressure with optic disc cupping", ref)
	assert.False(t, res.Heuristic)
	assert.InDelta(t, 60, res.Similarity, 0.01)
	assert.InDelta(t, 40.0*2/3, res.KeywordScore, 0.01)
	assert.Equal(t, []string{"intraocular pressure", "cupping"}, res.MatchedKeywords)
	assert.Zero(t, res.LengthBonus)
	assert.InDelta(t, 86.67, res.Score, 0.01)
}

func TestScoreRationaleCapped(t *testing.T) {
	text := strings.Repeat("angle closure glaucoma ", 20)
	res := ScoreRationale(text, Reference{Text: text, Keywords: []string{"angle closure"}})
	assert.Equal(t, 10.0, res.LengthBonus)
	assert.Equal(t, 100.0, res.Score)
}

func TestScoreRationaleBounds(t *testing.T) {
	refs := []Reference{
		{},
		{Text: "reference"},
		{Keywords: []string{"a", "b"}},
		{Text: strings.Repeat("x", 50), Keywords: []string{"x"}},
	}
	texts := []string{"", "   ", "x", strings.Repeat("xyz", 400)}
	for _, ref := range refs {
		for _, text := range texts {
			res := ScoreRationale(text, ref)
			assert.GreaterOrEqual(t, res.Score, 0.0)
			assert.LessOrEqual(t, res.Score, 100.0)
		}
	}
}

func TestKeywordMatchIgnoresWidthAndCase(t *testing.T) {
	res := ScoreRationale("Measured ＩＯＰ was high", Reference{Keywords: []string{"iop"}})
	assert.Equal(t, []string{"iop"}, res.MatchedKeywords)
	assert.Equal(t, 40.0, res.KeywordScore)
}

func TestParseKeywords(t *testing.T) {
	got := ParseKeywords("眼压升高，视野缺损; cupping,\n Cupping ；  ")
	assert.Equal(t, []string{"眼压升高", "视野缺损", "cupping"}, got)
	assert.Empty(t, ParseKeywords(" , ; "))
}

func TestNormalizeKeywords(t *testing.T) {
	got := NormalizeKeywords([]string{" redness ", "", "pain, photophobia", "REDNESS"})
	assert.Equal(t, []string{"redness", "pain", "photophobia"}, got)
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, similarity("abc", "ABC"))
	assert.Equal(t, 0.0, similarity("abc", "xyz"))
	// difflib: SequenceMatcher(None, "abcd", "bcde").ratio() == 0.75
	assert.InDelta(t, 0.75, similarity("abcd", "bcde"), 1e-9)
}

func TestScorerBlendAndOverall(t *testing.T) {
	s := NewScorer()
	assert.Equal(t, 79.0, s.Blend(100, 30))
	assert.Equal(t, 100.0, s.Overall(100, 100, 100))
	assert.Equal(t, 71.0, s.Overall(70, 80, 50))

	custom := NewScorer(WithBlend(0.5, 0.5))
	assert.Equal(t, 65.0, custom.Blend(100, 30))
}

func TestScorerPenalty(t *testing.T) {
	s := NewScorer()
	assert.Equal(t, 10.0, s.Penalty(1, 1, 0))
	assert.Equal(t, 23.0, s.Penalty(2, 2, 1))
	assert.Equal(t, 24.0, s.Penalty(3, 0, 3))
	assert.Equal(t, 30.0, s.Penalty(5, 4, 4))
	assert.Equal(t, 45.0, ExaminationScore(55))
	assert.Equal(t, 0.0, ExaminationScore(130))
}

func TestBands(t *testing.T) {
	assert.Contains(t, RationaleBand(85), "thorough")
	assert.Contains(t, RationaleBand(60), "reasonable")
	assert.Contains(t, RationaleBand(10), "insufficient")
	assert.Contains(t, OverallBand(90), "Excellent")
	assert.Contains(t, OverallBand(75), "Good")
	assert.Contains(t, OverallBand(20), "review")
}

func TestScoreRubricClamps(t *testing.T) {
	total, notes := ScoreRubric(DefaultOverallRubric(), map[string]float64{
		CriterionExamination: 150,
		CriterionDiagnosis:   -5,
		CriterionTreatment:   50,
	})
	assert.InDelta(t, 40, total, 1e-9)
	assert.Len(t, notes, 3)
}

func TestScorerOptions(t *testing.T) {
	s := NewScorer(WithPenaltyCap(12), WithOverallRubric(Rubric{Criteria: []Criterion{
		{Key: CriterionDiagnosis, Weight: 1},
	}}))
	assert.Equal(t, 12.0, s.Penalty(3, 2, 1))
	assert.Equal(t, 80.0, s.Overall(10, 80, 20))
}
