package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"rfm-segments/pkg/calculator"
	"rfm-segments/pkg/models"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Columns = en-tête du fichier de sortie, dans l'ordre.
var Columns = []string{
	"customer_id", "r_score", "f_score", "m_score", "mf_score", "segment",
	"frequency", "monetary", "recency_days",
	"freq_recent", "monetary_recent", "freq_mid", "monetary_mid",
	"freq_weighted_5yr", "monetary_weighted_5yr",
	"email_type", "registration_date", "customer_group",
}

// SegmentsFile retourne le nom du fichier de segments d'un pays.
func SegmentsFile(country string) string {
	return fmt.Sprintf("rfm_segments_%s.csv", country)
}

// WriteProfiles écrit les profils en CSV ';' encodé CP850 (caractères hors CP850 remplacés).
func WriteProfiles(w io.Writer, profiles []models.CustomerProfile) error {
	enc := encoding.ReplaceUnsupported(charmap.CodePage850.NewEncoder())
	cw := csv.NewWriter(enc.Writer(w))
	cw.Comma = ';'

	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, p := range profiles {
		if err := cw.Write(record(p)); err != nil {
			return fmt.Errorf("write %s: %w", p.CustomerID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func record(p models.CustomerProfile) []string {
	m := p.Metrics
	reg := ""
	if !p.RegistrationDate.IsZero() {
		reg = calculator.FormatDate(p.RegistrationDate)
	}
	return []string{
		p.CustomerID,
		strconv.Itoa(p.Score.R),
		strconv.Itoa(p.Score.F),
		strconv.Itoa(p.Score.M),
		num(p.Score.MF),
		string(p.Segment),
		num(m.AllTime.Frequency),
		num(m.AllTime.Monetary),
		strconv.Itoa(m.RecencyDays),
		num(m.Recent.Frequency),
		num(m.Recent.Monetary),
		num(m.MidHorizon.Frequency),
		num(m.MidHorizon.Monetary),
		num(m.Weighted5Yr.Frequency),
		num(m.Weighted5Yr.Monetary),
		p.EmailType,
		reg,
		p.CustomerGroup,
	}
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Batch écrit les fichiers d'un run sous des noms temporaires ; Commit les publie tous,
// Discard les supprime. Les fichiers du run précédent restent intacts jusqu'au Commit.
type Batch struct {
	dir    string
	staged []stagedFile
}

type stagedFile struct {
	tmp, path string
}

// NewBatch prépare un lot de fichiers dans outputDir.
func NewBatch(outputDir string) (*Batch, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create folder: %w", err)
	}
	return &Batch{dir: outputDir}, nil
}

// AddCohort écrit le CSV d'une cohorte et retourne le chemin qu'il aura après Commit.
func (b *Batch) AddCohort(res models.CohortResult) (string, error) {
	name := SegmentsFile(res.Country)
	return b.add(name, func(w io.Writer) error { return WriteProfiles(w, res.Profiles) })
}

func (b *Batch) add(name string, write func(w io.Writer) error) (string, error) {
	f, err := os.CreateTemp(b.dir, "."+name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	if err := f.Chmod(0o644); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to chmod %s: %w", name, err)
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to close %s: %w", name, err)
	}
	path := filepath.Join(b.dir, name)
	b.staged = append(b.staged, stagedFile{tmp: f.Name(), path: path})
	return path, nil
}

// Commit renomme les fichiers temporaires vers leur nom final.
func (b *Batch) Commit() error {
	for i, s := range b.staged {
		if err := os.Rename(s.tmp, s.path); err != nil {
			b.staged = b.staged[i:]
			b.Discard()
			return fmt.Errorf("failed to publish %s: %w", s.path, err)
		}
	}
	b.staged = nil
	return nil
}

// Discard supprime les fichiers temporaires non publiés.
func (b *Batch) Discard() {
	for _, s := range b.staged {
		os.Remove(s.tmp)
	}
	b.staged = nil
}

// WriteCohortFile écrit rfm_segments_<pays>.csv dans outputDir et retourne son chemin.
func WriteCohortFile(outputDir string, res models.CohortResult) (string, error) {
	b, err := NewBatch(outputDir)
	if err != nil {
		return "", err
	}
	path, err := b.AddCohort(res)
	if err != nil {
		return "", err
	}
	return path, b.Commit()
}

// CohortSummary est le résumé d'une cohorte dans le rapport JSON.
type CohortSummary struct {
	Country        string         `json:"country"`
	ReferenceDate  string         `json:"reference_date"`
	Customers      int            `json:"total_customers"`
	Segments       map[string]int `json:"segment_distribution"`
	MissingDate    int            `json:"anomalies_missing_date"`
	NegativeNet    int            `json:"anomalies_negative_net"`
	NonFinite      int            `json:"anomalies_non_finite"`
	FutureDated    int            `json:"anomalies_future_dated"`
	Dropped        []string       `json:"dropped_customers"`
	NeverPurchased int            `json:"never_purchased"`
	OutputFile     string         `json:"output_file,omitempty"`
}

// Report est le rapport d'un run complet.
type Report struct {
	RunID     string          `json:"run_id"`
	StartedAt time.Time       `json:"start_time"`
	EndedAt   time.Time       `json:"end_time"`
	Cohorts   []CohortSummary `json:"countries_processed"`
}

// Summarize construit le résumé d'une cohorte ; outputFile peut être vide.
func Summarize(res models.CohortResult, outputFile string) CohortSummary {
	segs := make(map[string]int, len(res.SegmentCounts))
	for seg, n := range res.SegmentCounts {
		segs[string(seg)] = n
	}
	dropped := res.Anomalies.DroppedCustomers
	if dropped == nil {
		dropped = []string{}
	}
	return CohortSummary{
		Country:        res.Country,
		ReferenceDate:  calculator.FormatDate(res.ReferenceDate),
		Customers:      len(res.Profiles),
		Segments:       segs,
		MissingDate:    res.Anomalies.MissingDate,
		NegativeNet:    res.Anomalies.NegativeNet,
		NonFinite:      res.Anomalies.NonFinite,
		FutureDated:    res.Anomalies.FutureDated,
		Dropped:        dropped,
		NeverPurchased: res.NeverPurchased,
		OutputFile:     outputFile,
	}
}

// ExportJSON écrit data en JSON indenté, en créant le dossier si besoin.
func ExportJSON(filename string, data interface{}) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("failed to create folder: %w", err)
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := encodeJSON(file, data); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	return nil
}

func encodeJSON(w io.Writer, data interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("failed to write JSON: %w", err)
	}
	return nil
}

// TimestampedFilename -> <baseDir>/<name>_YYYYMMDD_HHMMSS.json
func TimestampedFilename(baseDir, name string, t time.Time) string {
	return filepath.Join(baseDir, fmt.Sprintf("%s_%s.json", name, t.Format("20060102_150405")))
}
