package scoring

import (
	"math"
	"sort"
)

// Bins = nombre de classes ordinales (quintiles).
const Bins = 5

// CutPoints retourne les 4 bornes de quintiles empiriques (p = 0.2, 0.4, 0.6, 0.8),
// interpolées linéairement entre statistiques d'ordre. nil pour une cohorte vide.
func CutPoints(values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return cutPoints(sorted)
}

func cutPoints(sorted []float64) []float64 {
	cuts := make([]float64, Bins-1)
	for k := 1; k < Bins; k++ {
		cuts[k-1] = quantile(sorted, float64(k)/Bins)
	}
	return cuts
}

// quantile sur un échantillon trié, h = (n-1)p.
func quantile(sorted []float64, p float64) float64 {
	h := float64(len(sorted)-1) * p
	lo := math.Floor(h)
	i := int(lo)
	if i+1 >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	return sorted[i] + (h-lo)*(sorted[i+1]-sorted[i])
}

// Ascending : 1 + nombre de bornes strictement inférieures à v.
// Une valeur égale à une borne tombe dans la classe inférieure ; les ex aequo partagent toujours le même score.
func Ascending(v float64, cuts []float64) int {
	score := 1
	for _, c := range cuts {
		if c < v {
			score++
		}
	}
	return score
}

// Descending inverse l'échelle (récence : moins de jours = meilleur score).
func Descending(v float64, cuts []float64) int {
	return Bins + 1 - Ascending(v, cuts)
}

// Scale note les valeurs d'une cohorte. Avec au moins Bins valeurs distinctes, les scores
// viennent des bornes de quintiles ; sinon chaque valeur distincte garde sa propre classe,
// réparties de 1 à Bins selon leur rang.
type Scale struct {
	Cuts     []float64 // bornes de quintiles, cohorte non dégénérée
	Distinct []float64 // valeurs distinctes triées, cohorte dégénérée
}

// NewScale construit l'échelle d'une cohorte ; une cohorte vide donne une échelle vide.
func NewScale(values []float64) Scale {
	if len(values) == 0 {
		return Scale{}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	distinct := sorted[:1:1]
	for _, v := range sorted[1:] {
		if v != distinct[len(distinct)-1] {
			distinct = append(distinct, v)
		}
	}
	if len(distinct) < Bins {
		return Scale{Distinct: distinct}
	}
	return Scale{Cuts: cutPoints(sorted)}
}

// Degenerate indique une cohorte de moins de Bins valeurs distinctes.
func (s Scale) Degenerate() bool {
	return s.Distinct != nil
}

// Ascending : score 1..5, croissant avec v.
func (s Scale) Ascending(v float64) int {
	if !s.Degenerate() {
		return Ascending(v, s.Cuts)
	}
	k := len(s.Distinct)
	if k == 1 {
		return 1
	}
	rank := sort.SearchFloat64s(s.Distinct, v)
	if rank >= k {
		rank = k - 1
	}
	return 1 + int(math.Round(float64(rank*(Bins-1))/float64(k-1)))
}

// Descending : score 1..5, décroissant avec v.
func (s Scale) Descending(v float64) int {
	return Bins + 1 - s.Ascending(v)
}
