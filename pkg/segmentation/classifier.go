package segmentation

import (
	"fmt"

	"rfm-segments/pkg/models"
	"rfm-segments/pkg/scoring"

	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("rfm")

// Table est une table de règles compilée et validée pour des poids mf donnés.
type Table struct {
	rules []Rule
	mf    models.MFWeights
}

// NewTable compile les règles puis vérifie complétude et absence de règle masquée
// sur toutes les combinaisons (r, f, m) de {1..5}³, avec et sans montant nul.
func NewTable(specs []RuleSpec, mf models.MFWeights) (*Table, error) {
	if len(specs) == 0 {
		return nil, &models.RuleTableError{Reason: "no rules defined"}
	}
	if err := scoring.ValidateMF(mf); err != nil {
		return nil, &models.RuleTableError{Reason: err.Error()}
	}

	t := &Table{mf: mf, rules: make([]Rule, 0, len(specs))}
	for i, spec := range specs {
		rule, err := compile(i+1, spec)
		if err != nil {
			return nil, err
		}
		t.rules = append(t.rules, rule)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Load lit (ou prend la table embarquée si path est vide) puis valide la table.
func Load(path string, mf models.MFWeights) (*Table, error) {
	specs, err := LoadSpecs(path)
	if err != nil {
		return nil, err
	}
	return NewTable(specs, mf)
}

func (t *Table) validate() error {
	firstHits := make([]int, len(t.rules))
	for _, zero := range []bool{false, true} {
		for r := 1; r <= scoring.Bins; r++ {
			for f := 1; f <= scoring.Bins; f++ {
				for m := 1; m <= scoring.Bins; m++ {
					s := models.RFMScore{R: r, F: f, M: m, MF: scoring.MF(m, f, t.mf)}
					i := t.first(s, zero)
					if i < 0 {
						return &models.RuleTableError{
							Reason: fmt.Sprintf("incomplete: no rule matches r=%d f=%d m=%d mf=%g monetary-zero=%t", r, f, m, s.MF, zero),
						}
					}
					firstHits[i]++
				}
			}
		}
	}
	for i, hits := range firstHits {
		if hits == 0 {
			return &models.RuleTableError{
				Index:   i + 1,
				Segment: t.rules[i].Segment,
				Reason:  "never selected: every combination it matches is taken by an earlier rule",
			}
		}
	}
	log.Debugf("rule table validated: %d rules", len(t.rules))
	return nil
}

func (t *Table) first(s models.RFMScore, zeroMonetary bool) int {
	for i, rule := range t.rules {
		if rule.matches(s, zeroMonetary) {
			return i
		}
	}
	return -1
}

// Classify retourne le segment de la première règle qui correspond.
func (t *Table) Classify(s models.RFMScore, zeroMonetary bool) (models.Segment, error) {
	i := t.first(s, zeroMonetary)
	if i < 0 {
		return "", fmt.Errorf("customer %s: no rule matches r=%d f=%d m=%d mf=%g", s.CustomerID, s.R, s.F, s.M, s.MF)
	}
	return t.rules[i].Segment, nil
}

// Rules retourne une copie des règles compilées, dans l'ordre de priorité.
func (t *Table) Rules() []Rule {
	return append([]Rule(nil), t.rules...)
}

// MFWeights retourne les poids mf pour lesquels la table a été validée.
func (t *Table) MFWeights() models.MFWeights {
	return t.mf
}
