package profile

import (
	"fmt"

	"rfm-segments/pkg/models"
)

// IndexAttributes indexe la table annexe par customer_id. Un identifiant en double est une erreur d'entrée.
func IndexAttributes(attrs []models.CustomerAttributes) (map[string]models.CustomerAttributes, error) {
	index := make(map[string]models.CustomerAttributes, len(attrs))
	for i, a := range attrs {
		if a.CustomerID == "" {
			return nil, &models.InputShapeError{Source: "attributes", Reason: fmt.Sprintf("row %d has no customer_id", i+1)}
		}
		if _, dup := index[a.CustomerID]; dup {
			return nil, &models.InputShapeError{Source: "attributes", Reason: fmt.Sprintf("duplicate customer_id %s", a.CustomerID)}
		}
		index[a.CustomerID] = a
	}
	return index, nil
}

// Assemble fusionne métriques, scores, segments et attributs annexes en une ligne par client.
// metrics, scores et segments sont alignés par position. Retourne aussi le nombre de clients
// présents uniquement dans la table annexe (jamais acheteurs), exclus de la sortie.
func Assemble(
	metrics []models.CustomerWindowMetrics,
	scores []models.RFMScore,
	segments []models.Segment,
	attrs map[string]models.CustomerAttributes,
) ([]models.CustomerProfile, int, error) {
	if len(metrics) != len(scores) || len(metrics) != len(segments) {
		return nil, 0, fmt.Errorf("misaligned inputs: metrics=%d scores=%d segments=%d", len(metrics), len(scores), len(segments))
	}

	profiles := make([]models.CustomerProfile, len(metrics))
	for i, m := range metrics {
		if scores[i].CustomerID != m.CustomerID {
			return nil, 0, fmt.Errorf("misaligned inputs at %d: metrics=%s scores=%s", i, m.CustomerID, scores[i].CustomerID)
		}
		p := models.CustomerProfile{
			CustomerID: m.CustomerID,
			Score:      scores[i],
			Segment:    segments[i],
			Metrics:    m,
		}
		if a, ok := attrs[m.CustomerID]; ok {
			p.EmailType = a.EmailType
			p.RegistrationDate = a.RegistrationDate
			p.CustomerGroup = a.CustomerGroup
		}
		profiles[i] = p
	}

	if err := Validate(profiles); err != nil {
		return nil, 0, err
	}

	matched := 0
	for _, p := range profiles {
		if _, ok := attrs[p.CustomerID]; ok {
			matched++
		}
	}
	return profiles, len(attrs) - matched, nil
}

// Validate vérifie l'unicité de customer_id dans la sortie ; aucune déduplication silencieuse.
func Validate(profiles []models.CustomerProfile) error {
	seen := make(map[string]struct{}, len(profiles))
	for _, p := range profiles {
		if _, dup := seen[p.CustomerID]; dup {
			return &models.DuplicateProfileError{CustomerID: p.CustomerID}
		}
		seen[p.CustomerID] = struct{}{}
	}
	return nil
}

// SegmentCounts retourne la distribution des segments.
func SegmentCounts(profiles []models.CustomerProfile) map[models.Segment]int {
	counts := make(map[models.Segment]int)
	for _, p := range profiles {
		counts[p.Segment]++
	}
	return counts
}
