package segmentation

import (
	"bytes"
	_ "embed"
	"fmt"

	"rfm-segments/pkg/models"

	"github.com/spf13/viper"
)

//go:embed default_rules.yaml
var defaultRules []byte

// Bounds borne une dimension de score. Min/Max absent = pas de borne de ce côté.
type Bounds struct {
	Min *float64 `mapstructure:"min"`
	Max *float64 `mapstructure:"max"`
}

// RuleSpec est une règle telle que décrite dans le fichier de règles.
type RuleSpec struct {
	Segment      string  `mapstructure:"segment"`
	R            *Bounds `mapstructure:"r"`
	F            *Bounds `mapstructure:"f"`
	M            *Bounds `mapstructure:"m"`
	MF           *Bounds `mapstructure:"mf"`
	MonetaryZero *bool   `mapstructure:"monetary-zero"`
}

type ruleFile struct {
	Rules []RuleSpec `mapstructure:"rules"`
}

// DefaultSpecs retourne la table de règles embarquée.
func DefaultSpecs() ([]RuleSpec, error) {
	return ParseSpecs(defaultRules, "yaml")
}

// ParseSpecs décode une table de règles (yaml ou json).
func ParseSpecs(data []byte, format string) ([]RuleSpec, error) {
	v := viper.New()
	v.SetConfigType(format)
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("could not read rule table: %w", err)
	}
	return decodeSpecs(v)
}

// LoadSpecs lit une table de règles depuis un fichier ; chemin vide = table embarquée.
func LoadSpecs(path string) ([]RuleSpec, error) {
	if path == "" {
		return DefaultSpecs()
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("could not read rule table %s: %w", path, err)
	}
	return decodeSpecs(v)
}

func decodeSpecs(v *viper.Viper) ([]RuleSpec, error) {
	var f ruleFile
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("could not unmarshal rule table: %w", err)
	}
	if len(f.Rules) == 0 {
		return nil, &models.RuleTableError{Reason: "no rules defined"}
	}
	return f.Rules, nil
}

// interval est une borne normalisée, incluse des deux côtés.
type interval struct {
	lo, hi float64
}

const eps = 1e-9

func (i interval) contains(v float64) bool {
	return v >= i.lo-eps && v <= i.hi+eps
}

func (i interval) String() string {
	return fmt.Sprintf("[%g ; %g]", i.lo, i.hi)
}

// Rule est une règle compilée : un prédicat de plages et le segment associé.
type Rule struct {
	Segment      models.Segment
	r, f, m, mf  interval
	monetaryZero *bool
}

func (r Rule) matches(s models.RFMScore, zeroMonetary bool) bool {
	if r.monetaryZero != nil && *r.monetaryZero != zeroMonetary {
		return false
	}
	return r.r.contains(float64(s.R)) &&
		r.f.contains(float64(s.F)) &&
		r.m.contains(float64(s.M)) &&
		r.mf.contains(s.MF)
}

func (r Rule) String() string {
	out := fmt.Sprintf("%s: r=%s f=%s m=%s mf=%s", r.Segment, r.r, r.f, r.m, r.mf)
	if r.monetaryZero != nil {
		out += fmt.Sprintf(" monetary-zero=%t", *r.monetaryZero)
	}
	return out
}

func compile(index int, spec RuleSpec) (Rule, error) {
	seg, err := models.ParseSegment(spec.Segment)
	if err != nil {
		return Rule{}, &models.RuleTableError{Index: index, Segment: models.Segment(spec.Segment), Reason: err.Error()}
	}
	rule := Rule{Segment: seg, monetaryZero: spec.MonetaryZero}
	dims := []struct {
		name string
		b    *Bounds
		dst  *interval
	}{
		{"r", spec.R, &rule.r},
		{"f", spec.F, &rule.f},
		{"m", spec.M, &rule.m},
		{"mf", spec.MF, &rule.mf},
	}
	for _, d := range dims {
		iv, err := toInterval(d.b)
		if err != nil {
			return Rule{}, &models.RuleTableError{Index: index, Segment: seg, Reason: fmt.Sprintf("%s: %v", d.name, err)}
		}
		*d.dst = iv
	}
	return rule, nil
}

func toInterval(b *Bounds) (interval, error) {
	iv := interval{lo: 1, hi: 5}
	if b == nil {
		return iv, nil
	}
	if b.Min != nil {
		iv.lo = *b.Min
	}
	if b.Max != nil {
		iv.hi = *b.Max
	}
	if iv.lo < 1 || iv.lo > 5 || iv.hi < 1 || iv.hi > 5 {
		return iv, fmt.Errorf("bounds %s outside [1 ; 5]", iv)
	}
	if iv.lo > iv.hi {
		return iv, fmt.Errorf("inverted bounds %s", iv)
	}
	return iv, nil
}
