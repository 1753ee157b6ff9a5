package calculator

import (
	"context"
	"fmt"
	"time"

	"rfm-segments/pkg/metrics"
	"rfm-segments/pkg/models"
	"rfm-segments/pkg/parallel"
	"rfm-segments/pkg/profile"
	"rfm-segments/pkg/scoring"
	"rfm-segments/pkg/segmentation"

	"github.com/google/uuid"
	"github.com/op/go-logging"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
)

var log = logging.MustGetLogger("rfm")

const refLayout = "2006-01-02"

// Run calcule la segmentation de chaque cohorte, en parallèle (au plus parallelism cohortes à la fois).
// Un échec sur une cohorte annule le run entier : aucun résultat partiel n'est retourné.
func Run(ctx context.Context, cohorts []models.Cohort, table *segmentation.Table, cfg models.EngineConfig, parallelism int) ([]models.CohortResult, error) {
	if table == nil {
		return nil, fmt.Errorf("rule table is required")
	}
	if parallelism < 1 {
		parallelism = 1
	}
	seen := make(map[string]bool, len(cohorts))
	for _, c := range cohorts {
		if seen[c.Country] {
			return nil, fmt.Errorf("cohort %s listed twice", c.Country)
		}
		seen[c.Country] = true
	}

	runID := uuid.NewString()
	var bar *progressbar.ProgressBar
	if cfg.Verbose {
		bar = progressbar.Default(int64(len(cohorts)), "cohorts")
	} else {
		bar = progressbar.DefaultSilent(int64(len(cohorts)))
	}

	results := make([]models.CohortResult, len(cohorts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, c := range cohorts {
		i, c := i, c
		g.Go(func() error {
			res, err := RunCohort(gctx, c, table, cfg)
			if err != nil {
				return fmt.Errorf("cohort %s: %w", c.Country, err)
			}
			res.RunID = runID
			results[i] = *res

			_ = bar.Add(1)
			log.Infof("[%s] %s -> customers=%d anomalies=%d dropped=%d never_purchased=%d",
				runID, c.Country, len(res.Profiles), res.Anomalies.Total(),
				len(res.Anomalies.DroppedCustomers), res.NeverPurchased)
			log.Debugf("[%s] %s segments: %v", runID, c.Country, res.SegmentCounts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// RunCohort : agrégation (map) → bornes de quintiles (barrière) → score et segment (map) → assemblage.
func RunCohort(ctx context.Context, cohort models.Cohort, table *segmentation.Table, cfg models.EngineConfig) (*models.CohortResult, error) {
	if table == nil {
		return nil, fmt.Errorf("rule table is required")
	}
	if table.MFWeights() != cfg.MF {
		return nil, fmt.Errorf("rule table validated for mf weights %+v, engine uses %+v", table.MFWeights(), cfg.MF)
	}

	windows, err := metrics.NewWindows(cfg.ReferenceDate, cfg.Windows)
	if err != nil {
		return nil, fmt.Errorf("windows: %w", err)
	}

	// erreurs de forme avant tout calcul
	attrs, err := profile.IndexAttributes(cohort.Attributes)
	if err != nil {
		return nil, err
	}

	agg, err := metrics.Aggregate(ctx, cohort.Transactions, windows, cfg.Blend, cfg.Workers)
	if err != nil {
		return nil, err
	}

	scores, _, err := scoring.Score(ctx, agg.Customers, cfg.Basis, cfg.MF)
	if err != nil {
		return nil, fmt.Errorf("score: %w", err)
	}

	segments := make([]models.Segment, len(scores))
	err = parallel.ForEach(ctx, len(scores), cfg.Workers, func(i int) error {
		seg, err := table.Classify(scores[i], agg.Customers[i].AllTime.Monetary == 0)
		if err != nil {
			return err
		}
		segments[i] = seg
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}

	profiles, neverPurchased, err := profile.Assemble(agg.Customers, scores, segments, attrs)
	if err != nil {
		return nil, fmt.Errorf("assemble: %w", err)
	}

	return &models.CohortResult{
		Country:        cohort.Country,
		ReferenceDate:  windows.Reference,
		Profiles:       profiles,
		Anomalies:      agg.Anomalies,
		NeverPurchased: neverPurchased,
		SegmentCounts:  profile.SegmentCounts(profiles),
	}, nil
}

// ParseReferenceDate("YYYY-MM-DD") -> jour UTC ; chaîne vide = jour de now.
func ParseReferenceDate(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return metrics.Day(now), nil
	}
	t, err := time.Parse(refLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("format attendu YYYY-MM-DD (ex: 2025-06-30): %w", err)
	}
	return t, nil
}

// FormatDate formate une date de référence pour les logs et les fichiers.
func FormatDate(t time.Time) string {
	return t.Format(refLayout)
}
