package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"rfm-segments/pkg/calculator"
	"rfm-segments/pkg/database"
	"rfm-segments/pkg/metrics"
	"rfm-segments/pkg/models"
	"rfm-segments/pkg/scoring"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "RFM"

// Sources de données supportées.
const (
	SourceCSV   = "csv"
	SourceMySQL = "mysql"
)

// CountryNames associe chaque code pays des exports à son code ISO.
var CountryNames = map[string]string{
	"F01": "DE",
	"F02": "FR",
	"F03": "AT",
	"F04": "CH",
}

// Config represents the application's configuration structure.
type Config struct {
	LogLevel  string   `json:"log-level" mapstructure:"log-level"`
	Countries []string `json:"countries" mapstructure:"countries"`

	Source   string          `json:"source" mapstructure:"source"`
	DataPath string          `json:"data-path" mapstructure:"data-path"`
	DSN      string          `json:"dsn" mapstructure:"dsn"`
	MySQL    database.Tables `json:"mysql" mapstructure:"mysql"`

	OutputPath string `json:"output-path" mapstructure:"output-path"`
	SinkDSN    string `json:"sink-dsn" mapstructure:"sink-dsn"`

	ReferenceDate string              `json:"reference-date" mapstructure:"reference-date"`
	AlignHalfYear bool                `json:"align-half-year" mapstructure:"align-half-year"`
	Windows       models.WindowConfig `json:"windows" mapstructure:"windows"`
	Blend         models.BlendWeights `json:"blend" mapstructure:"blend"`
	MF            models.MFWeights    `json:"mf" mapstructure:"mf"`
	ScoreBasis    models.ScoreBasis   `json:"score-basis" mapstructure:"score-basis"`
	RulesFile     string              `json:"rules-file" mapstructure:"rules-file"`

	Workers           int  `json:"workers" mapstructure:"workers"`
	CohortParallelism int  `json:"cohort-parallelism" mapstructure:"cohort-parallelism"`
	Verbose           bool `json:"verbose" mapstructure:"verbose"`
}

var requiredFields = []string{
	"countries",
	"source",
}

// field: default value
func optionalFields() map[string]interface{} {
	tables := database.DefaultTables()
	windows := models.DefaultWindows()
	blend := models.DefaultBlend()
	mf := models.DefaultMF()
	return map[string]interface{}{
		"log-level":                "INFO",
		"data-path":                "data",
		"dsn":                      "",
		"mysql.transactions-table": tables.Transactions,
		"mysql.attributes-table":   tables.Attributes,
		"output-path":              "output",
		"sink-dsn":                 "",
		"reference-date":           "",
		"align-half-year":          false,
		"windows.recent-years":     windows.RecentYears,
		"windows.mid-from-years":   windows.MidFromYears,
		"windows.mid-to-years":     windows.MidToYears,
		"blend.recent":             blend.Recent,
		"blend.mid":                blend.Mid,
		"mf.monetary":              mf.Monetary,
		"mf.frequency":             mf.Frequency,
		"score-basis":              string(models.BasisWeighted5Yr),
		"rules-file":               "",
		"workers":                  4,
		"cohort-parallelism":       2,
		"verbose":                  false,
	}
}

// Load reads configuration from an optional .env file, a YAML/JSON file and RFM_* environment
// variables. Environment variables take precedence over the config file. path may be empty.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("could not read .env: %w", err)
	}

	v := viper.New()
	for field, def := range optionalFields() {
		v.SetDefault(field, def)
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	for _, field := range requiredFields {
		if err := v.BindEnv(field); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", field, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("could not read config: %w", err)
		}
	}

	for _, field := range requiredFields {
		if !v.IsSet(field) {
			return nil, fmt.Errorf("missing required config field: %s", field)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("could not unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks values that do not depend on the reference date.
func (c *Config) Validate() error {
	if len(c.Countries) == 0 {
		return fmt.Errorf("config: countries is empty")
	}
	seen := make(map[string]bool, len(c.Countries))
	for _, country := range c.Countries {
		if _, ok := CountryNames[country]; !ok {
			return fmt.Errorf("config: unknown country %q", country)
		}
		if seen[country] {
			return fmt.Errorf("config: country %s listed twice", country)
		}
		seen[country] = true
	}

	switch c.Source {
	case SourceCSV:
		if c.DataPath == "" {
			return fmt.Errorf("config: data-path is required for source %s", SourceCSV)
		}
	case SourceMySQL:
		if c.DSN == "" {
			return fmt.Errorf("config: dsn is required for source %s", SourceMySQL)
		}
	default:
		return fmt.Errorf("config: unknown source %q (want %s or %s)", c.Source, SourceCSV, SourceMySQL)
	}

	if err := scoring.ValidateBasis(c.ScoreBasis); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := scoring.ValidateMF(c.MF); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := metrics.ValidateBlend(c.Blend); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Workers < 1 || c.CohortParallelism < 1 {
		return fmt.Errorf("config: workers and cohort-parallelism must be >= 1")
	}
	return nil
}

// Engine construit les paramètres du moteur ; now sert de date de référence par défaut.
func (c *Config) Engine(now time.Time) (models.EngineConfig, error) {
	ref, err := calculator.ParseReferenceDate(c.ReferenceDate, now)
	if err != nil {
		return models.EngineConfig{}, fmt.Errorf("config: %w", err)
	}
	if c.AlignHalfYear {
		ref = metrics.AlignHalfYear(ref)
	}
	if _, err := metrics.NewWindows(ref, c.Windows); err != nil {
		return models.EngineConfig{}, fmt.Errorf("config: %w", err)
	}
	return models.EngineConfig{
		ReferenceDate: ref,
		Windows:       c.Windows,
		Blend:         c.Blend,
		MF:            c.MF,
		Basis:         c.ScoreBasis,
		Workers:       c.Workers,
		Verbose:       c.Verbose,
	}, nil
}
