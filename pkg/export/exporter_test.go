package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"rfm-segments/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

var refDate = time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)

func sampleResult() models.CohortResult {
	return models.CohortResult{
		RunID:         "run-1",
		Country:       "F01",
		ReferenceDate: refDate,
		Profiles: []models.CustomerProfile{
			{
				CustomerID: "0000000001",
				Score:      models.RFMScore{CustomerID: "0000000001", R: 5, F: 4, M: 3, MF: 3.5},
				Segment:    models.SegmentChampions,
				Metrics: models.CustomerWindowMetrics{
					CustomerID:  "0000000001",
					AllTime:     models.WindowMetric{Frequency: 4, Monetary: 120.5},
					Recent:      models.WindowMetric{Frequency: 2, Monetary: 60},
					MidHorizon:  models.WindowMetric{Frequency: 1, Monetary: 20},
					Weighted5Yr: models.WindowMetric{Frequency: 2.5, Monetary: 70},
					RecencyDays: 12,
				},
				EmailType:        "Männer-Newsletter",
				RegistrationDate: time.Date(2019, 5, 1, 0, 0, 0, 0, time.UTC),
				CustomerGroup:    "Bestandskunde",
			},
			{
				CustomerID: "0000000002",
				Score:      models.RFMScore{CustomerID: "0000000002", R: 1, F: 1, M: 1, MF: 1},
				Segment:    models.SegmentLost,
				Metrics: models.CustomerWindowMetrics{
					CustomerID:  "0000000002",
					AllTime:     models.WindowMetric{Frequency: 1, Monetary: 9.99},
					RecencyDays: 2400,
				},
			},
		},
		Anomalies:      models.Anomalies{MissingDate: 2, NegativeNet: 1, NonFinite: 4},
		NeverPurchased: 3,
		SegmentCounts:  map[models.Segment]int{models.SegmentChampions: 1, models.SegmentLost: 1},
	}
}

func readBack(t *testing.T, raw []byte) [][]string {
	t.Helper()
	cr := csv.NewReader(charmap.CodePage850.NewDecoder().Reader(bytes.NewReader(raw)))
	cr.Comma = ';'
	rows, err := cr.ReadAll()
	require.NoError(t, err)
	return rows
}

func TestSegmentsFile(t *testing.T) {
	assert.Equal(t, "rfm_segments_F03.csv", SegmentsFile("F03"))
}

func TestWriteProfiles(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteProfiles(&buf, sampleResult().Profiles))

	rows := readBack(t, buf.Bytes())
	require.Len(t, rows, 3)
	assert.Equal(t, Columns, rows[0])

	first := rows[1]
	assert.Equal(t, []string{"0000000001", "5", "4", "3", "3.5", "Champions"}, first[:6])
	assert.Equal(t, "120.5", first[7])
	assert.Equal(t, "12", first[8])
	assert.Equal(t, "2.5", first[13])
	assert.Equal(t, "Männer-Newsletter", first[15])
	assert.Equal(t, "2019-05-01", first[16])

	second := rows[2]
	assert.Equal(t, "Lost", second[5])
	assert.Equal(t, "", second[16])
	assert.Equal(t, "", second[17])
}

func TestWriteProfiles_ReplacesUnsupportedRunes(t *testing.T) {
	profiles := sampleResult().Profiles[:1]
	profiles[0].CustomerGroup = "VIP €"

	var buf bytes.Buffer
	require.NoError(t, WriteProfiles(&buf, profiles))
	rows := readBack(t, buf.Bytes())
	assert.NotEqual(t, "VIP €", rows[1][17])
	assert.Contains(t, rows[1][17], "VIP ")
}

func TestWriteCohortFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	path, err := WriteCohortFile(dir, sampleResult())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "rfm_segments_F01.csv"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, readBack(t, raw), 3)
}

func TestBatch_NothingPublishedUntilCommit(t *testing.T) {
	dir := t.TempDir()
	previous := filepath.Join(dir, "rfm_segments_F01.csv")
	require.NoError(t, os.WriteFile(previous, []byte("previous run"), 0o644))

	batch, err := NewBatch(dir)
	require.NoError(t, err)
	path, err := batch.AddCohort(sampleResult())
	require.NoError(t, err)
	assert.Equal(t, previous, path)

	second := sampleResult()
	second.Country = "F02"
	_, err = batch.AddCohort(second)
	require.NoError(t, err)

	raw, err := os.ReadFile(previous)
	require.NoError(t, err)
	assert.Equal(t, "previous run", string(raw))
	assert.NoFileExists(t, filepath.Join(dir, "rfm_segments_F02.csv"))

	require.NoError(t, batch.Commit())
	raw, err = os.ReadFile(previous)
	require.NoError(t, err)
	assert.Len(t, readBack(t, raw), 3)
	info, err := os.Stat(filepath.Join(dir, "rfm_segments_F02.csv"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestBatch_FailedCohortLeavesOutputUntouched(t *testing.T) {
	dir := t.TempDir()
	previous := filepath.Join(dir, "rfm_segments_F01.csv")
	require.NoError(t, os.WriteFile(previous, []byte("previous run"), 0o644))

	batch, err := NewBatch(dir)
	require.NoError(t, err)
	_, err = batch.AddCohort(sampleResult())
	require.NoError(t, err)

	broken := sampleResult()
	broken.Country = "F0/2"
	_, err = batch.AddCohort(broken)
	require.Error(t, err)
	batch.Discard()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "rfm_segments_F01.csv", entries[0].Name())
	raw, err := os.ReadFile(previous)
	require.NoError(t, err)
	assert.Equal(t, "previous run", string(raw))

	require.NoError(t, batch.Commit())
	raw, err = os.ReadFile(previous)
	require.NoError(t, err)
	assert.Equal(t, "previous run", string(raw))
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleResult(), "out/rfm_segments_F01.csv")
	assert.Equal(t, "F01", s.Country)
	assert.Equal(t, "2025-06-30", s.ReferenceDate)
	assert.Equal(t, 2, s.Customers)
	assert.Equal(t, map[string]int{"Champions": 1, "Lost": 1}, s.Segments)
	assert.Equal(t, 2, s.MissingDate)
	assert.Equal(t, 1, s.NegativeNet)
	assert.Equal(t, 4, s.NonFinite)
	assert.Equal(t, 3, s.NeverPurchased)
	assert.NotNil(t, s.Dropped)
	assert.Empty(t, s.Dropped)
}

func TestExportJSON(t *testing.T) {
	started := time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)
	filename := TimestampedFilename(filepath.Join(t.TempDir(), "reports"), "rfm_run", started)
	assert.Equal(t, "rfm_run_20250701_080000.json", filepath.Base(filename))

	report := Report{
		RunID:     "run-1",
		StartedAt: started,
		EndedAt:   started.Add(time.Minute),
		Cohorts:   []CohortSummary{Summarize(sampleResult(), "")},
	}
	require.NoError(t, ExportJSON(filename, report))

	raw, err := os.ReadFile(filename)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "run-1", decoded["run_id"])

	cohorts := decoded["countries_processed"].([]interface{})
	require.Len(t, cohorts, 1)
	first := cohorts[0].(map[string]interface{})
	assert.Equal(t, "F01", first["country"])
	assert.NotContains(t, first, "output_file")
}

func TestExportJSON_EncodeErrorIsReturned(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "report.json")
	err := ExportJSON(filename, map[string]interface{}{"bad": make(chan int)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to write JSON")
}

func TestExportJSON_CreateErrorIsReturned(t *testing.T) {
	dir := t.TempDir()
	err := ExportJSON(dir, Report{RunID: "run-1"})
	assert.Error(t, err)
}
