package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"rfm-segments/pkg/models"

	"golang.org/x/text/encoding/charmap"
)

// Separator et encodage des exports de l'ERP.
const Separator = ';'

// IDWidth = largeur canonique d'un customer_id.
const IDWidth = 10

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"02.01.2006",
	"02.01.2006 15:04:05",
	time.RFC3339,
}

// table est un fichier CSV lu en mémoire, colonnes indexées par nom.
type table struct {
	source string
	cols   map[string]int
	rows   [][]string
}

func (t *table) has(col string) bool {
	_, ok := t.cols[col]
	return ok
}

func (t *table) get(row []string, col string) string {
	i, ok := t.cols[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// NewReader retourne un lecteur CSV ';' qui décode le CP850.
func NewReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(charmap.CodePage850.NewDecoder().Reader(r))
	cr.Comma = Separator
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	return cr
}

func readTable(r io.Reader, source string, required ...string) (*table, error) {
	cr := NewReader(r)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &models.InputShapeError{Source: source, Reason: "empty file"}
	}
	if err != nil {
		return nil, &models.InputShapeError{Source: source, Reason: "unreadable header", Err: err}
	}

	t := &table{source: source, cols: make(map[string]int, len(header))}
	for i, h := range header {
		t.cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	var missing []string
	for _, col := range required {
		if !t.has(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &models.InputShapeError{Source: source, Reason: "missing columns " + strings.Join(missing, ", ")}
	}

	t.rows, err = cr.ReadAll()
	if err != nil {
		return nil, &models.InputShapeError{Source: source, Reason: "unreadable rows", Err: err}
	}
	return t, nil
}

// PadCustomerID retire un suffixe ".0" (export tableur) puis complète à gauche par des zéros.
func PadCustomerID(raw string) string {
	id := strings.TrimSpace(raw)
	id = strings.TrimSuffix(id, ".0")
	if id == "" || len(id) >= IDWidth {
		return id
	}
	return strings.Repeat("0", IDWidth-len(id)) + id
}

// CustomerIDFromReference extrait le customer_id des caractères 2..12 d'une référence de transaction.
func CustomerIDFromReference(ref string) string {
	ref = strings.TrimSpace(ref)
	if len(ref) <= 2 {
		return ""
	}
	end := 2 + IDWidth
	if end > len(ref) {
		end = len(ref)
	}
	return PadCustomerID(ref[2:end])
}

// ParseDate essaie les formats connus ; ok=false pour une date vide ou illisible.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseAmount accepte la virgule décimale et le point comme séparateur de milliers ("1.234,50").
// Une valeur vide vaut 0. Le format anglo-saxon "1,234.50" et les valeurs non finies sont refusés.
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if comma := strings.LastIndex(s, ","); comma >= 0 {
		if strings.LastIndex(s, ".") > comma {
			return 0, fmt.Errorf("ambiguous amount %q: decimal comma expected", s)
		}
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite amount %q", s)
	}
	return v, nil
}

// ReadTransactions lit customer_transactions.csv. customer_id ou customer_reference est requis.
// Une date illisible donne une TransactionFact sans date, comptée plus tard comme anomalie.
func ReadTransactions(r io.Reader) ([]models.TransactionFact, error) {
	const source = "transactions"
	t, err := readTable(r, source, "transaction_date", "gross_amount", "tax1", "tax2", "tax3")
	if err != nil {
		return nil, err
	}
	idCol := "customer_id"
	if !t.has(idCol) {
		if !t.has("customer_reference") {
			return nil, &models.InputShapeError{Source: source, Reason: "missing columns customer_id or customer_reference"}
		}
		idCol = "customer_reference"
	}

	facts := make([]models.TransactionFact, 0, len(t.rows))
	for n, row := range t.rows {
		line := n + 2
		var f models.TransactionFact
		if idCol == "customer_reference" {
			f.CustomerID = CustomerIDFromReference(t.get(row, idCol))
		} else {
			f.CustomerID = PadCustomerID(t.get(row, idCol))
		}
		if f.CustomerID == "" {
			return nil, &models.InputShapeError{Source: source, Reason: fmt.Sprintf("line %d: empty customer id", line)}
		}
		f.OrderNumber = t.get(row, "order_number")
		if d, ok := ParseDate(t.get(row, "transaction_date")); ok {
			f.TransactionDate = d
		}

		if f.GrossAmount, err = ParseAmount(t.get(row, "gross_amount")); err != nil {
			return nil, &models.InputShapeError{Source: source, Reason: fmt.Sprintf("line %d: gross_amount", line), Err: err}
		}
		for i, col := range []string{"tax1", "tax2", "tax3"} {
			if f.Taxes[i], err = ParseAmount(t.get(row, col)); err != nil {
				return nil, &models.InputShapeError{Source: source, Reason: fmt.Sprintf("line %d: %s", line, col), Err: err}
			}
		}
		facts = append(facts, f)
	}
	return facts, nil
}

// readKeyed lit une table annexe clé -> valeur (une seule colonne utile) en refusant les doublons.
func readKeyed(r io.Reader, source, col string) (map[string]string, error) {
	t, err := readTable(r, source, "customer_id", col)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(t.rows))
	for n, row := range t.rows {
		id := PadCustomerID(t.get(row, "customer_id"))
		if id == "" {
			return nil, &models.InputShapeError{Source: source, Reason: fmt.Sprintf("line %d: empty customer id", n+2)}
		}
		if _, dup := out[id]; dup {
			return nil, &models.InputShapeError{Source: source, Reason: fmt.Sprintf("duplicate customer_id %s", id)}
		}
		out[id] = t.get(row, col)
	}
	return out, nil
}

// ReadRegistrations lit customer_addresses.csv (customer_id, registration_date).
func ReadRegistrations(r io.Reader) (map[string]time.Time, error) {
	raw, err := readKeyed(r, "addresses", "registration_date")
	if err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(raw))
	for id, s := range raw {
		d, _ := ParseDate(s)
		out[id] = d
	}
	return out, nil
}

// ReadEmailTypes lit email_preferences.csv (customer_id, email_type).
func ReadEmailTypes(r io.Reader) (map[string]string, error) {
	return readKeyed(r, "email_preferences", "email_type")
}

// ReadCustomerGroups lit customer_groups_<pays>.csv (customer_id, customer_group).
func ReadCustomerGroups(r io.Reader) (map[string]string, error) {
	return readKeyed(r, "customer_groups", "customer_group")
}

// MergeAttributes réunit les trois sources annexes en une table, un client par ligne, triée par id.
func MergeAttributes(registrations map[string]time.Time, emails, groups map[string]string) []models.CustomerAttributes {
	ids := make(map[string]struct{})
	for id := range registrations {
		ids[id] = struct{}{}
	}
	for id := range emails {
		ids[id] = struct{}{}
	}
	for id := range groups {
		ids[id] = struct{}{}
	}

	out := make([]models.CustomerAttributes, 0, len(ids))
	for id := range ids {
		out = append(out, models.CustomerAttributes{
			CustomerID:       id,
			RegistrationDate: registrations[id],
			EmailType:        emails[id],
			CustomerGroup:    groups[id],
		})
	}
	sortAttributes(out)
	return out
}
