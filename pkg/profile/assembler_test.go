package profile

import (
	"testing"
	"time"

	"rfm-segments/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexAttributes_Duplicate(t *testing.T) {
	_, err := IndexAttributes([]models.CustomerAttributes{
		{CustomerID: "0000000001"},
		{CustomerID: "0000000001"},
	})
	var shapeErr *models.InputShapeError
	require.ErrorAs(t, err, &shapeErr)
	assert.Contains(t, shapeErr.Error(), "duplicate customer_id 0000000001")
}

func TestIndexAttributes_MissingID(t *testing.T) {
	_, err := IndexAttributes([]models.CustomerAttributes{{EmailType: "html"}})
	var shapeErr *models.InputShapeError
	assert.ErrorAs(t, err, &shapeErr)
}

func TestAssemble_JoinsAttributes(t *testing.T) {
	reg := time.Date(2019, 3, 4, 0, 0, 0, 0, time.UTC)
	attrs, err := IndexAttributes([]models.CustomerAttributes{
		{CustomerID: "0000000001", EmailType: "html", RegistrationDate: reg, CustomerGroup: "VIP"},
		{CustomerID: "0000000099", EmailType: "text"},
	})
	require.NoError(t, err)

	metrics := []models.CustomerWindowMetrics{{CustomerID: "0000000001"}, {CustomerID: "0000000002"}}
	scores := []models.RFMScore{{CustomerID: "0000000001", R: 5, F: 5, M: 5, MF: 5}, {CustomerID: "0000000002", R: 1, F: 1, M: 1, MF: 1}}
	segments := []models.Segment{models.SegmentChampions, models.SegmentLost}

	profiles, neverPurchased, err := Assemble(metrics, scores, segments, attrs)
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, 1, neverPurchased)

	assert.Equal(t, "VIP", profiles[0].CustomerGroup)
	assert.Equal(t, "html", profiles[0].EmailType)
	assert.Equal(t, reg, profiles[0].RegistrationDate)
	assert.Equal(t, models.SegmentChampions, profiles[0].Segment)

	assert.Empty(t, profiles[1].CustomerGroup)
	assert.Equal(t, models.SegmentLost, profiles[1].Segment)
}

func TestAssemble_DuplicateIsHardFailure(t *testing.T) {
	metrics := []models.CustomerWindowMetrics{{CustomerID: "0000000001"}, {CustomerID: "0000000001"}}
	scores := []models.RFMScore{{CustomerID: "0000000001"}, {CustomerID: "0000000001"}}
	segments := []models.Segment{models.SegmentLost, models.SegmentLost}

	_, _, err := Assemble(metrics, scores, segments, nil)
	var dupErr *models.DuplicateProfileError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, "0000000001", dupErr.CustomerID)
}

func TestAssemble_Misaligned(t *testing.T) {
	_, _, err := Assemble([]models.CustomerWindowMetrics{{CustomerID: "1"}}, nil, nil, nil)
	assert.Error(t, err)

	_, _, err = Assemble(
		[]models.CustomerWindowMetrics{{CustomerID: "1"}},
		[]models.RFMScore{{CustomerID: "2"}},
		[]models.Segment{models.SegmentLost},
		nil,
	)
	assert.Error(t, err)
}

func TestSegmentCounts(t *testing.T) {
	counts := SegmentCounts([]models.CustomerProfile{
		{Segment: models.SegmentLost},
		{Segment: models.SegmentLost},
		{Segment: models.SegmentChampions},
	})
	assert.Equal(t, 2, counts[models.SegmentLost])
	assert.Equal(t, 1, counts[models.SegmentChampions])
}
