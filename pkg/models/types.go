package models

import (
	"time"
)

/*
LOAD → table d'entrée normalisée (identifiants canoniques, dates déjà parsées).
*/

// TransactionFact représente une ligne de transaction d'un client telle que fournie par la couche d'ingestion.
// Une TransactionDate nulle (zero value) signifie date absente ou illisible.
type TransactionFact struct {
	CustomerID      string
	OrderNumber     string
	TransactionDate time.Time
	GrossAmount     float64
	Taxes           [3]float64
}

// NetAmount = montant brut moins la somme des trois taxes.
func (t TransactionFact) NetAmount() float64 {
	return t.GrossAmount - t.Taxes[0] - t.Taxes[1] - t.Taxes[2]
}

// HasDate indique si la date de transaction a pu être lue.
func (t TransactionFact) HasDate() bool {
	return !t.TransactionDate.IsZero()
}

// CustomerAttributes regroupe les attributs annexes d'un client (préférence email, inscription, groupe).
type CustomerAttributes struct {
	CustomerID       string
	EmailType        string
	RegistrationDate time.Time
	CustomerGroup    string
}

// Cohort est la population sur laquelle les quantiles sont calculés (un pays par run).
type Cohort struct {
	Country      string
	Transactions []TransactionFact
	Attributes   []CustomerAttributes
}

/*
COMPUTE → métriques par fenêtre, scores et profils.
*/

// WindowMetric contient fréquence et montant pour une fenêtre temporelle.
type WindowMetric struct {
	Frequency float64
	Monetary  float64
}

// CustomerWindowMetrics contient les métriques d'un client sur chaque fenêtre définie.
type CustomerWindowMetrics struct {
	CustomerID      string
	AllTime         WindowMetric
	Recent          WindowMetric // [ref-2y ; ref]
	MidHorizon      WindowMetric // [ref-5y ; ref-3y]
	Weighted5Yr     WindowMetric
	LastTransaction time.Time
	RecencyDays     int
}

// RFMScore contient les scores ordinaux (1..5) d'un client, comparables uniquement dans la même cohorte.
type RFMScore struct {
	CustomerID string
	R          int
	F          int
	M          int
	MF         float64
}

// CustomerProfile est la ligne de sortie, une par client ayant au moins une transaction retenue.
type CustomerProfile struct {
	CustomerID string
	Score      RFMScore
	Segment    Segment
	Metrics    CustomerWindowMetrics

	EmailType        string
	RegistrationDate time.Time
	CustomerGroup    string
}

// Anomalies compte les lignes exclues de l'agrégation, par nature.
type Anomalies struct {
	MissingDate      int      // date absente ou illisible
	NegativeNet      int      // montant net < 0
	NonFinite        int      // montant net NaN ou infini
	FutureDated      int      // date postérieure à la date de référence
	DroppedCustomers []string // clients dont toutes les lignes ont été exclues
}

// Total retourne le nombre de lignes exclues.
func (a Anomalies) Total() int {
	return a.MissingDate + a.NegativeNet + a.NonFinite + a.FutureDated
}

// CohortResult contient la segmentation calculée pour une cohorte (pays).
type CohortResult struct {
	RunID          string
	Country        string
	ReferenceDate  time.Time
	Profiles       []CustomerProfile
	Anomalies      Anomalies
	NeverPurchased int             // clients présents uniquement dans les données annexes
	SegmentCounts  map[Segment]int // distribution des segments
}

/*
CONFIG → paramètres du moteur
*/

// WindowConfig contient les bornes des fenêtres, en années avant la date de référence.
type WindowConfig struct {
	RecentYears  int `mapstructure:"recent-years"`
	MidFromYears int `mapstructure:"mid-from-years"`
	MidToYears   int `mapstructure:"mid-to-years"`
}

// BlendWeights pondère les fenêtres récente et moyen terme dans la métrique "5 ans pondérée".
// Les poids sont appliqués tels quels, sans normalisation.
type BlendWeights struct {
	Recent float64 `mapstructure:"recent"`
	Mid    float64 `mapstructure:"mid"`
}

// MFWeights pondère m_score et f_score dans mf_score.
type MFWeights struct {
	Monetary  float64 `mapstructure:"monetary"`
	Frequency float64 `mapstructure:"frequency"`
}

// ScoreBasis choisit les métriques utilisées pour f_score et m_score.
type ScoreBasis string

const (
	BasisWeighted5Yr ScoreBasis = "weighted-5yr"
	BasisAllTime     ScoreBasis = "all-time"
)

// EngineConfig contient les paramètres passés au moteur de segmentation.
type EngineConfig struct {
	ReferenceDate time.Time // borne haute incluse, en UTC, tronquée au jour
	Windows       WindowConfig
	Blend         BlendWeights
	MF            MFWeights
	Basis         ScoreBasis
	Workers       int  // taille du pool par cohorte
	Verbose       bool // Flag pour activer les logs détaillés.
}

// DefaultWindows : 2 ans récents, 3 à 5 ans pour le moyen terme.
func DefaultWindows() WindowConfig {
	return WindowConfig{RecentYears: 2, MidFromYears: 5, MidToYears: 3}
}

// DefaultBlend : l'activité récente pèse deux fois plus que le moyen terme.
func DefaultBlend() BlendWeights {
	return BlendWeights{Recent: 1.0, Mid: 0.5}
}

// DefaultMF : moyenne simple de m_score et f_score.
func DefaultMF() MFWeights {
	return MFWeights{Monetary: 0.5, Frequency: 0.5}
}
