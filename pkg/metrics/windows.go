package metrics

import (
	"fmt"
	"time"

	"rfm-segments/pkg/models"
)

const dayLayout = "2006-01-02"

// Window est un intervalle de dates, bornes incluses sauf ToExclusive. From nul = pas de borne basse.
type Window struct {
	From        time.Time
	To          time.Time
	ToExclusive bool
}

// Contains teste un jour (déjà tronqué) contre les bornes de la fenêtre.
func (w Window) Contains(day time.Time) bool {
	if !w.From.IsZero() && day.Before(w.From) {
		return false
	}
	if w.ToExclusive {
		return day.Before(w.To)
	}
	return !day.After(w.To)
}

func (w Window) String() string {
	from := "-inf"
	if !w.From.IsZero() {
		from = w.From.Format(dayLayout)
	}
	closing := "]"
	if w.ToExclusive {
		closing = ")"
	}
	return fmt.Sprintf("[%s ; %s%s", from, w.To.Format(dayLayout), closing)
}

// Windows regroupe les fenêtres calculées pour une date de référence.
type Windows struct {
	Reference  time.Time
	AllTime    Window
	Recent     Window
	MidHorizon Window
}

// NewWindows calcule les bornes relatives à ref. Exige 0 < recent <= mid-to < mid-from.
func NewWindows(ref time.Time, cfg models.WindowConfig) (Windows, error) {
	if ref.IsZero() {
		return Windows{}, fmt.Errorf("reference date is required")
	}
	if cfg.RecentYears <= 0 {
		return Windows{}, fmt.Errorf("recent-years must be > 0, got %d", cfg.RecentYears)
	}
	if cfg.MidToYears < cfg.RecentYears {
		return Windows{}, fmt.Errorf("mid-to-years (%d) overlaps the recent window (%d years)", cfg.MidToYears, cfg.RecentYears)
	}
	if cfg.MidFromYears <= cfg.MidToYears {
		return Windows{}, fmt.Errorf("mid-from-years (%d) must be greater than mid-to-years (%d)", cfg.MidFromYears, cfg.MidToYears)
	}

	ref = Day(ref)
	w := Windows{
		Reference: ref,
		AllTime:   Window{To: ref},
		Recent:    Window{From: ref.AddDate(-cfg.RecentYears, 0, 0), To: ref},
		MidHorizon: Window{
			From: ref.AddDate(-cfg.MidFromYears, 0, 0),
			To:   ref.AddDate(-cfg.MidToYears, 0, 0),
			// bornes jointives : le jour limite appartient à la fenêtre récente
			ToExclusive: cfg.MidToYears == cfg.RecentYears,
		},
	}
	return w, nil
}

// Day tronque t au jour calendaire, en UTC, sans changer la date affichée.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// AlignHalfYear ramène ref au 1er janvier ou au 1er juillet de son semestre.
func AlignHalfYear(ref time.Time) time.Time {
	month := time.January
	if ref.Month() > time.June {
		month = time.July
	}
	return time.Date(ref.Year(), month, 1, 0, 0, 0, 0, time.UTC)
}

// DaysBetween retourne le nombre de jours entiers de from à to (jours tronqués).
func DaysBetween(from, to time.Time) int {
	return int(Day(to).Sub(Day(from)).Hours() / 24)
}
