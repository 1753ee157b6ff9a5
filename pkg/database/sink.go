package database

import (
	"context"
	"fmt"
	"time"

	"rfm-segments/pkg/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const insertBatchSize = 500

// ProfileRecord est une ligne de profil persistée, une par client et par pays.
type ProfileRecord struct {
	ID            int64     `gorm:"primaryKey;autoIncrement"`
	RunID         string    `gorm:"size:36;index;not null"`
	Country       string    `gorm:"size:8;not null;uniqueIndex:idx_rfm_country_customer"`
	CustomerID    string    `gorm:"size:16;not null;uniqueIndex:idx_rfm_country_customer"`
	ReferenceDate time.Time `gorm:"type:date;not null"`

	RScore  int     `gorm:"not null"`
	FScore  int     `gorm:"not null"`
	MScore  int     `gorm:"not null"`
	MFScore float64 `gorm:"not null"`
	Segment string  `gorm:"size:32;index;not null"`

	Frequency           float64
	Monetary            float64
	RecencyDays         int
	FreqRecent          float64
	MonetaryRecent      float64
	FreqMid             float64
	MonetaryMid         float64
	FreqWeighted5Yr     float64
	MonetaryWeighted5Yr float64

	EmailType        string     `gorm:"size:64"`
	RegistrationDate *time.Time `gorm:"type:date"`
	CustomerGroup    string     `gorm:"size:64"`
	CreatedAt        time.Time
}

func (ProfileRecord) TableName() string {
	return "rfm_profiles"
}

// ToRecords convertit le résultat d'une cohorte en lignes persistables.
func ToRecords(res models.CohortResult) []ProfileRecord {
	out := make([]ProfileRecord, 0, len(res.Profiles))
	for _, p := range res.Profiles {
		m := p.Metrics
		rec := ProfileRecord{
			RunID:               res.RunID,
			Country:             res.Country,
			CustomerID:          p.CustomerID,
			ReferenceDate:       res.ReferenceDate,
			RScore:              p.Score.R,
			FScore:              p.Score.F,
			MScore:              p.Score.M,
			MFScore:             p.Score.MF,
			Segment:             string(p.Segment),
			Frequency:           m.AllTime.Frequency,
			Monetary:            m.AllTime.Monetary,
			RecencyDays:         m.RecencyDays,
			FreqRecent:          m.Recent.Frequency,
			MonetaryRecent:      m.Recent.Monetary,
			FreqMid:             m.MidHorizon.Frequency,
			MonetaryMid:         m.MidHorizon.Monetary,
			FreqWeighted5Yr:     m.Weighted5Yr.Frequency,
			MonetaryWeighted5Yr: m.Weighted5Yr.Monetary,
			EmailType:           p.EmailType,
			CustomerGroup:       p.CustomerGroup,
		}
		if !p.RegistrationDate.IsZero() {
			reg := p.RegistrationDate
			rec.RegistrationDate = &reg
		}
		out = append(out, rec)
	}
	return out
}

// Sink persiste les profils dans PostgreSQL.
type Sink struct {
	db *gorm.DB
}

// NewSink enveloppe une connexion GORM existante.
func NewSink(db *gorm.DB) *Sink {
	return &Sink{db: db}
}

// OpenSink ouvre PostgreSQL (DSN libpq ou URL postgres://).
func OpenSink(dsn string) (*Sink, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to sink: %w", err)
	}
	return NewSink(db), nil
}

// Migrate crée ou met à jour la table rfm_profiles.
func (s *Sink) Migrate() error {
	return WrapDBError("migrate rfm_profiles", s.db.AutoMigrate(&ProfileRecord{}))
}

// SaveCohort remplace les lignes du pays par celles du run, dans une transaction.
func (s *Sink) SaveCohort(ctx context.Context, res models.CohortResult) error {
	records := ToRecords(res)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("country = ?", res.Country).Delete(&ProfileRecord{}).Error; err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		return tx.CreateInBatches(records, insertBatchSize).Error
	})
	if err != nil {
		return WrapDBError("save cohort "+res.Country, err)
	}
	log.Infof("sink: %s replaced with %d profiles (run %s)", res.Country, len(records), res.RunID)
	return nil
}

// Close ferme la connexion sous-jacente.
func (s *Sink) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
