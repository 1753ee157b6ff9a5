package models

import "fmt"

// InputShapeError signale une table d'entrée mal formée (colonnes manquantes, identifiants en double...).
type InputShapeError struct {
	Source string
	Reason string
	Err    error
}

func (e *InputShapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("input %s: %s: %v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("input %s: %s", e.Source, e.Reason)
}

func (e *InputShapeError) Unwrap() error {
	return e.Err
}

// RuleTableError signale une table de règles incomplète ou ambiguë, détectée au chargement.
type RuleTableError struct {
	Index   int // position de la règle (1-based), 0 si l'erreur porte sur la table
	Segment Segment
	Reason  string
}

func (e *RuleTableError) Error() string {
	if e.Index == 0 {
		return fmt.Sprintf("rule table: %s", e.Reason)
	}
	return fmt.Sprintf("rule table: rule %d (%s): %s", e.Index, e.Segment, e.Reason)
}

// DuplicateProfileError signale une violation de l'unicité customer_id dans la sortie.
type DuplicateProfileError struct {
	CustomerID string
}

func (e *DuplicateProfileError) Error() string {
	return fmt.Sprintf("duplicate profile for customer %s", e.CustomerID)
}
