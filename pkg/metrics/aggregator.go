package metrics

import (
	"context"
	"fmt"
	"math"
	"sort"

	"rfm-segments/pkg/models"
	"rfm-segments/pkg/parallel"

	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("rfm")

// Result contient les métriques par client (triées par customer_id) et les anomalies de la cohorte.
type Result struct {
	Customers []models.CustomerWindowMetrics
	Anomalies models.Anomalies
}

// ValidateBlend vérifie les poids de la métrique 5 ans pondérée : positifs, pas tous deux nuls.
// La somme recent+mid n'est pas normalisée à 1 ; elle est fixée pour tout le run par la
// configuration (1.5 par défaut) et ne dépend jamais des données de la cohorte.
func ValidateBlend(b models.BlendWeights) error {
	if b.Recent < 0 || b.Mid < 0 {
		return fmt.Errorf("blend weights must be non-negative (recent=%g mid=%g)", b.Recent, b.Mid)
	}
	if b.Recent+b.Mid == 0 {
		return fmt.Errorf("blend weights must not both be zero")
	}
	return nil
}

// Aggregate regroupe les transactions par client et calcule fréquence et montant sur chaque fenêtre.
// Les lignes sans date, datées après la référence ou de montant net négatif ou non fini sont exclues et comptées.
func Aggregate(ctx context.Context, facts []models.TransactionFact, w Windows, blend models.BlendWeights, workers int) (*Result, error) {
	if err := ValidateBlend(blend); err != nil {
		return nil, err
	}

	var anomalies models.Anomalies
	groups := make(map[string][]models.TransactionFact)
	seen := make(map[string]struct{})

	for i, f := range facts {
		if f.CustomerID == "" {
			return nil, &models.InputShapeError{
				Source: "transactions",
				Reason: fmt.Sprintf("row %d has no customer_id", i+1),
			}
		}
		seen[f.CustomerID] = struct{}{}

		switch {
		case !f.HasDate():
			anomalies.MissingDate++
			continue
		case Day(f.TransactionDate).After(w.Reference):
			anomalies.FutureDated++
			continue
		case math.IsNaN(f.NetAmount()) || math.IsInf(f.NetAmount(), 0):
			anomalies.NonFinite++
			continue
		case f.NetAmount() < 0:
			anomalies.NegativeNet++
			continue
		}
		groups[f.CustomerID] = append(groups[f.CustomerID], f)
	}

	for id := range seen {
		if _, ok := groups[id]; !ok {
			anomalies.DroppedCustomers = append(anomalies.DroppedCustomers, id)
		}
	}
	sort.Strings(anomalies.DroppedCustomers)

	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]models.CustomerWindowMetrics, len(ids))
	err := parallel.ForEach(ctx, len(ids), workers, func(i int) error {
		out[i] = customerMetrics(ids[i], groups[ids[i]], w, blend)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}

	if anomalies.Total() > 0 {
		log.Warningf("excluded rows: missing_date=%d future_dated=%d negative_net=%d non_finite=%d dropped_customers=%d",
			anomalies.MissingDate, anomalies.FutureDated, anomalies.NegativeNet, anomalies.NonFinite, len(anomalies.DroppedCustomers))
	}
	log.Debugf("windows: all=%s recent=%s mid=%s customers=%d", w.AllTime, w.Recent, w.MidHorizon, len(out))

	return &Result{Customers: out, Anomalies: anomalies}, nil
}

func customerMetrics(id string, rows []models.TransactionFact, w Windows, blend models.BlendWeights) models.CustomerWindowMetrics {
	m := models.CustomerWindowMetrics{CustomerID: id}
	for _, r := range rows {
		day := Day(r.TransactionDate)
		net := r.NetAmount()

		if w.AllTime.Contains(day) {
			m.AllTime.Frequency++
			m.AllTime.Monetary += net
		}
		if w.Recent.Contains(day) {
			m.Recent.Frequency++
			m.Recent.Monetary += net
		}
		if w.MidHorizon.Contains(day) {
			m.MidHorizon.Frequency++
			m.MidHorizon.Monetary += net
		}
		if day.After(m.LastTransaction) {
			m.LastTransaction = day
		}
	}

	m.Weighted5Yr = models.WindowMetric{
		Frequency: blend.Recent*m.Recent.Frequency + blend.Mid*m.MidHorizon.Frequency,
		Monetary:  blend.Recent*m.Recent.Monetary + blend.Mid*m.MidHorizon.Monetary,
	}
	m.RecencyDays = DaysBetween(m.LastTransaction, w.Reference)
	return m
}
