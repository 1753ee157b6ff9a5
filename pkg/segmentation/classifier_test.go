package segmentation

import (
	"os"
	"path/filepath"
	"testing"

	"rfm-segments/pkg/models"
	"rfm-segments/pkg/scoring"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultTable(t *testing.T) *Table {
	t.Helper()
	table, err := Load("", models.DefaultMF())
	require.NoError(t, err)
	return table
}

func score(r, f, m int) models.RFMScore {
	return models.RFMScore{R: r, F: f, M: m, MF: scoring.MF(m, f, models.DefaultMF())}
}

func TestDefaultTable_CoversEveryCombination(t *testing.T) {
	table := defaultTable(t)
	for r := 1; r <= 5; r++ {
		for f := 1; f <= 5; f++ {
			for m := 1; m <= 5; m++ {
				seg, err := table.Classify(score(r, f, m), false)
				require.NoError(t, err)
				assert.NotZero(t, seg.Rank(), "r=%d f=%d m=%d", r, f, m)
				assert.NotEqual(t, models.SegmentProspects, seg)
			}
		}
	}
}

func TestDefaultTable_AllSegmentsReachable(t *testing.T) {
	table := defaultTable(t)
	seen := make(map[models.Segment]bool)
	for _, zero := range []bool{false, true} {
		for r := 1; r <= 5; r++ {
			for f := 1; f <= 5; f++ {
				for m := 1; m <= 5; m++ {
					seg, err := table.Classify(score(r, f, m), zero)
					require.NoError(t, err)
					seen[seg] = true
				}
			}
		}
	}
	for _, seg := range models.Segments {
		assert.True(t, seen[seg], "segment %s never assigned", seg)
	}
	assert.Len(t, table.Rules(), 13)
}

func TestClassify_KnownCombinations(t *testing.T) {
	table := defaultTable(t)
	cases := []struct {
		r, f, m int
		zero    bool
		want    models.Segment
	}{
		{5, 5, 5, false, models.SegmentChampions},
		{3, 4, 4, false, models.SegmentLoyalCustomers},
		{1, 5, 5, false, models.SegmentCantLoseThem},
		{5, 1, 3, false, models.SegmentNewCustomers},
		{4, 2, 3, false, models.SegmentPotentialLoyalists},
		{2, 3, 3, false, models.SegmentNeedAttention},
		{1, 4, 3, false, models.SegmentAtRisk},
		{4, 1, 1, false, models.SegmentReactivated},
		{2, 1, 1, false, models.SegmentPromising},
		{2, 2, 2, false, models.SegmentAboutToSleep},
		{1, 2, 2, false, models.SegmentHibernating},
		{1, 1, 1, false, models.SegmentLost},
		{5, 5, 5, true, models.SegmentProspects},
	}
	for _, c := range cases {
		got, err := table.Classify(score(c.r, c.f, c.m), c.zero)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "r=%d f=%d m=%d zero=%t", c.r, c.f, c.m, c.zero)
	}
}

func TestClassify_SameScoresSameSegment(t *testing.T) {
	table := defaultTable(t)
	a := score(3, 2, 4)
	b := score(3, 2, 4)
	a.CustomerID, b.CustomerID = "0000000001", "0000000002"

	segA, err := table.Classify(a, false)
	require.NoError(t, err)
	segB, err := table.Classify(b, false)
	require.NoError(t, err)
	assert.Equal(t, segA, segB)
}

func between(lo, hi float64) *Bounds {
	return &Bounds{Min: &lo, Max: &hi}
}

func TestNewTable_Incomplete(t *testing.T) {
	specs := []RuleSpec{
		{Segment: "Champions", R: between(4, 5)},
	}
	_, err := NewTable(specs, models.DefaultMF())
	var ruleErr *models.RuleTableError
	require.ErrorAs(t, err, &ruleErr)
	assert.Contains(t, ruleErr.Error(), "incomplete")
	assert.Contains(t, ruleErr.Error(), "r=1 f=1 m=1")
}

func TestNewTable_ShadowedRule(t *testing.T) {
	specs := []RuleSpec{
		{Segment: "Lost"},
		{Segment: "Champions", R: between(5, 5)},
	}
	_, err := NewTable(specs, models.DefaultMF())
	var ruleErr *models.RuleTableError
	require.ErrorAs(t, err, &ruleErr)
	assert.Equal(t, 2, ruleErr.Index)
	assert.Equal(t, models.SegmentChampions, ruleErr.Segment)
}

func TestNewTable_InvalidRules(t *testing.T) {
	cases := [][]RuleSpec{
		{{Segment: "Whales"}},
		{{Segment: "Lost", R: between(4, 2)}},
		{{Segment: "Lost", MF: between(0.5, 6)}},
		nil,
	}
	for _, specs := range cases {
		_, err := NewTable(specs, models.DefaultMF())
		var ruleErr *models.RuleTableError
		assert.ErrorAs(t, err, &ruleErr)
	}
}

func TestNewTable_GapsDependOnMFWeights(t *testing.T) {
	specs, err := DefaultSpecs()
	require.NoError(t, err)

	// 0.6/0.4 produit des mf comme 2.6 qui tombent entre les plages de la table par défaut
	_, err = NewTable(specs, models.MFWeights{Monetary: 0.6, Frequency: 0.4})
	assert.Error(t, err)
}

func TestLoadSpecs_JSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	body := `{"rules": [
		{"segment": "Prospects", "monetary-zero": true},
		{"segment": "Champions", "r": {"min": 3}},
		{"segment": "Lost", "r": {"max": 2}}
	]}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	table, err := Load(path, models.DefaultMF())
	require.NoError(t, err)

	seg, err := table.Classify(score(3, 1, 1), false)
	require.NoError(t, err)
	assert.Equal(t, models.SegmentChampions, seg)

	seg, err = table.Classify(score(2, 5, 5), false)
	require.NoError(t, err)
	assert.Equal(t, models.SegmentLost, seg)
}

func TestLoadSpecs_MissingFile(t *testing.T) {
	_, err := LoadSpecs(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseSpecs_ExplicitZeroBoundIsRejected(t *testing.T) {
	for _, body := range []string{
		"rules:\n  - segment: Lost\n    r: {min: 0, max: 3}\n",
		"rules:\n  - segment: Lost\n    mf: {max: 0}\n",
	} {
		specs, err := ParseSpecs([]byte(body), "yaml")
		require.NoError(t, err)
		_, err = NewTable(specs, models.DefaultMF())
		var ruleErr *models.RuleTableError
		require.ErrorAs(t, err, &ruleErr, body)
		assert.Contains(t, ruleErr.Error(), "outside [1 ; 5]")
	}
}

func TestParseSpecs_MissingBoundIsOpen(t *testing.T) {
	specs, err := ParseSpecs([]byte("rules:\n  - segment: Lost\n    r: {min: 1}\n"), "yaml")
	require.NoError(t, err)
	require.Len(t, specs, 1)
	require.NotNil(t, specs[0].R.Min)
	assert.Equal(t, 1.0, *specs[0].R.Min)
	assert.Nil(t, specs[0].R.Max)

	table, err := NewTable(specs, models.DefaultMF())
	require.NoError(t, err)
	seg, err := table.Classify(score(5, 5, 5), false)
	require.NoError(t, err)
	assert.Equal(t, models.SegmentLost, seg)
}
