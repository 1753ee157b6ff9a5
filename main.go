package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rfm-segments/pkg/calculator"
	"rfm-segments/pkg/config"
	"rfm-segments/pkg/database"
	"rfm-segments/pkg/export"
	"rfm-segments/pkg/ingest"
	"rfm-segments/pkg/models"
	"rfm-segments/pkg/segmentation"

	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("rfm")

func InitLogger(logLevel string) error {
	baseBackend := logging.NewLogBackend(os.Stdout, "", 0)
	format := logging.MustStringFormatter(
		`%{time:2006-01-02 15:04:05} %{level:.5s}     %{message}`,
	)
	backendFormatter := logging.NewBackendFormatter(baseBackend, format)

	backendLeveled := logging.AddModuleLevel(backendFormatter)
	logLevelCode, err := logging.LogLevel(logLevel)
	if err != nil {
		return err
	}
	backendLeveled.SetLevel(logLevelCode, "")

	logging.SetBackend(backendLeveled)
	return nil
}

func main() {
	// Flags simplifiés ; le reste vient du fichier de config et des variables RFM_*
	configPath := flag.String("config", os.Getenv("RFM_CONFIG"), "Fichier de configuration YAML/JSON")
	country := flag.String("country", "", "Limiter le run à un pays (ex: F01)")
	refDate := flag.String("ref_date", "", "Date de référence YYYY-MM-DD (défaut: aujourd'hui)")
	verbose := flag.Bool("v", false, "Mode verbeux")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %s", err)
	}
	if *country != "" {
		cfg.Countries = []string{*country}
	}
	if *refDate != "" {
		cfg.ReferenceDate = *refDate
	}
	if *verbose {
		cfg.Verbose = true
		cfg.LogLevel = "DEBUG"
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("%s", err)
	}
	if err := InitLogger(cfg.LogLevel); err != nil {
		log.Fatalf("%s", err)
	}
	log.Debugf("Config: %+v", cfg)

	engineCfg, err := cfg.Engine(time.Now().UTC())
	if err != nil {
		log.Fatalf("%s", err)
	}

	// Table de règles invalide : arrêt avant toute lecture de données
	table, err := segmentation.Load(cfg.RulesFile, cfg.MF)
	if err != nil {
		log.Fatalf("rules: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cohorts, err := loadCohorts(ctx, cfg)
	if err != nil {
		log.Fatalf("load: %v", err)
	}

	started := time.Now().UTC()
	results, err := calculator.Run(ctx, cohorts, table, engineCfg, cfg.CohortParallelism)
	if err != nil {
		log.Fatalf("compute: %v", err)
	}

	report := export.Report{RunID: results[0].RunID, StartedAt: started}
	if err := publish(ctx, cfg, results, &report); err != nil {
		log.Fatalf("%v", err)
	}

	report.EndedAt = time.Now().UTC()
	reportFile := export.TimestampedFilename(cfg.OutputPath, "rfm_run", report.StartedAt)
	if err := export.ExportJSON(reportFile, report); err != nil {
		log.Fatalf("report: %v", err)
	}
	log.Infof("run %s done in %s, report=%s", report.RunID, report.EndedAt.Sub(started).Round(time.Millisecond), reportFile)

	// Sortie : pays ; clients ; jamais acheté ; anomalies ; puis la distribution des segments
	for i, res := range results {
		fmt.Printf("%s (%s) ; ref=%s ; customers=%d ; never_purchased=%d ; anomalies=%d ; file=%s\n",
			res.Country, config.CountryNames[res.Country], calculator.FormatDate(res.ReferenceDate),
			len(res.Profiles), res.NeverPurchased, res.Anomalies.Total(), report.Cohorts[i].OutputFile)
		for _, seg := range models.Segments {
			if n := res.SegmentCounts[seg]; n > 0 {
				fmt.Printf("    %-20s %d\n", seg, n)
			}
		}
	}
}

func loadCohorts(ctx context.Context, cfg *config.Config) ([]models.Cohort, error) {
	cohorts := make([]models.Cohort, 0, len(cfg.Countries))
	switch cfg.Source {
	case config.SourceMySQL:
		db, dsnUsed, err := database.Open(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		defer db.Close()
		log.Debugf("connected dsn=%s", dsnUsed)
		for _, country := range cfg.Countries {
			cohort, err := database.LoadCohort(ctx, db, cfg.MySQL, country)
			if err != nil {
				return nil, err
			}
			cohorts = append(cohorts, cohort)
		}
	default:
		for _, country := range cfg.Countries {
			cohort, err := ingest.LoadCohort(cfg.DataPath, country)
			if err != nil {
				return nil, fmt.Errorf("cohort %s: %w", country, err)
			}
			cohorts = append(cohorts, cohort)
		}
	}
	return cohorts, nil
}

// publish écrit tous les CSV sous des noms temporaires et ne les renomme
// qu'une fois toutes les cohortes écrites et le sink à jour.
func publish(ctx context.Context, cfg *config.Config, results []models.CohortResult, report *export.Report) error {
	batch, err := export.NewBatch(cfg.OutputPath)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	for _, res := range results {
		path, err := batch.AddCohort(res)
		if err != nil {
			batch.Discard()
			return fmt.Errorf("export %s: %w", res.Country, err)
		}
		report.Cohorts = append(report.Cohorts, export.Summarize(res, path))
	}

	if cfg.SinkDSN != "" {
		if err := saveToSink(ctx, cfg.SinkDSN, results); err != nil {
			batch.Discard()
			return fmt.Errorf("sink: %w", err)
		}
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}

func saveToSink(ctx context.Context, dsn string, results []models.CohortResult) error {
	sink, err := database.OpenSink(dsn)
	if err != nil {
		return err
	}
	defer sink.Close()
	if err := sink.Migrate(); err != nil {
		return err
	}
	for _, res := range results {
		if err := sink.SaveCohort(ctx, res); err != nil {
			return err
		}
	}
	return nil
}
