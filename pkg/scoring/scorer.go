package scoring

import (
	"context"
	"fmt"
	"math"

	"rfm-segments/pkg/models"

	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("rfm")

// ScaleSet contient les échelles calculées pour une cohorte.
type ScaleSet struct {
	Recency   Scale
	Frequency Scale
	Monetary  Scale
}

// ValidateMF vérifie que les poids de mf_score sont positifs et de somme 1.
func ValidateMF(w models.MFWeights) error {
	if w.Monetary < 0 || w.Frequency < 0 {
		return fmt.Errorf("mf weights must be non-negative (monetary=%g frequency=%g)", w.Monetary, w.Frequency)
	}
	if math.Abs(w.Monetary+w.Frequency-1) > 1e-9 {
		return fmt.Errorf("mf weights must sum to 1, got %g", w.Monetary+w.Frequency)
	}
	return nil
}

// MF combine m_score et f_score avec les poids du run.
func MF(m, f int, w models.MFWeights) float64 {
	return w.Monetary*float64(m) + w.Frequency*float64(f)
}

// Inputs extrait fréquence et montant selon la base choisie.
func Inputs(m models.CustomerWindowMetrics, basis models.ScoreBasis) (frequency, monetary float64) {
	if basis == models.BasisAllTime {
		return m.AllTime.Frequency, m.AllTime.Monetary
	}
	return m.Weighted5Yr.Frequency, m.Weighted5Yr.Monetary
}

// ValidateBasis refuse une base de score inconnue.
func ValidateBasis(basis models.ScoreBasis) error {
	switch basis {
	case models.BasisWeighted5Yr, models.BasisAllTime:
		return nil
	}
	return fmt.Errorf("unknown score basis %q", basis)
}

// Score calcule les bornes de la cohorte entière (barrière) puis le score de chaque client.
func Score(ctx context.Context, customers []models.CustomerWindowMetrics, basis models.ScoreBasis, w models.MFWeights) ([]models.RFMScore, ScaleSet, error) {
	if err := ValidateBasis(basis); err != nil {
		return nil, ScaleSet{}, err
	}
	if err := ValidateMF(w); err != nil {
		return nil, ScaleSet{}, err
	}

	n := len(customers)
	rec := make([]float64, n)
	freq := make([]float64, n)
	mon := make([]float64, n)
	for i, c := range customers {
		rec[i] = float64(c.RecencyDays)
		freq[i], mon[i] = Inputs(c, basis)
	}

	scales := ScaleSet{
		Recency:   NewScale(rec),
		Frequency: NewScale(freq),
		Monetary:  NewScale(mon),
	}
	log.Debugf("scales: recency=%+v frequency=%+v monetary=%+v", scales.Recency, scales.Frequency, scales.Monetary)

	if err := ctx.Err(); err != nil {
		return nil, ScaleSet{}, err
	}

	scores := make([]models.RFMScore, n)
	for i, c := range customers {
		s := models.RFMScore{
			CustomerID: c.CustomerID,
			R:          scales.Recency.Descending(rec[i]),
			F:          scales.Frequency.Ascending(freq[i]),
			M:          scales.Monetary.Ascending(mon[i]),
		}
		s.MF = MF(s.M, s.F, w)
		scores[i] = s
	}
	return scores, scales, nil
}
