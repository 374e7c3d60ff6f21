// Package surcharge holds the late-payment surcharge schedule of a garage: a
// default rule plus optional per-month overrides.
package surcharge

import (
	"errors"
	"fmt"
	"time"

	"github.com/fauter/cochera-admin/internal/config"
)

var (
	ErrInvalidRule   = errors.New("invalid_rule")
	ErrInvalidMonth  = errors.New("invalid_month")
	ErrInvalidGarage = errors.New("invalid_garage")
	ErrForbidden     = errors.New("forbidden")
)

const maxDay = 31

type Step struct {
	Day        int     `json:"day"`
	Percentage float64 `json:"percentage"`
}

// Rule charges nothing up to GraceDay, then each step's percentage from its
// day of the month on.
type Rule struct {
	GraceDay int    `json:"grace_day"`
	Steps    []Step `json:"steps"`
}

// Config is every rule stored for one garage.
type Config struct {
	GarageID  string              `json:"garage_id"`
	Default   Rule                `json:"default"`
	Overrides map[time.Month]Rule `json:"overrides"`

	// DefaultStored is false when Default comes from the dashboard config.
	DefaultStored bool `json:"default_stored"`
}

// Effective returns the override for month, or the default unchanged.
func Effective(cfg Config, month time.Month) Rule {
	if r, ok := cfg.Overrides[month]; ok {
		return r
	}
	return cfg.Default
}

// PercentageAt is the surcharge applied on day of the month.
func (r Rule) PercentageAt(day int) float64 {
	if day <= r.GraceDay {
		return 0
	}
	pct := 0.0
	for _, s := range r.Steps {
		if day >= s.Day && s.Percentage > pct {
			pct = s.Percentage
		}
	}
	return pct
}

// Violation flags a step whose day does not come after the previous one.
type Violation struct {
	Step    int    `json:"step"`
	Day     int    `json:"day"`
	MinDay  int    `json:"min_day"`
	Message string `json:"message"`
}

// Validate reports ordering problems. A rule with violations can still be
// saved; callers surface them next to the offending step.
func Validate(r Rule) []Violation {
	var out []Violation
	prev := r.GraceDay
	for i, s := range r.Steps {
		if s.Day <= prev {
			out = append(out, Violation{
				Step:    i,
				Day:     s.Day,
				MinDay:  prev + 1,
				Message: fmt.Sprintf("El día del escalón %d debe ser mayor a %d", i+1, prev),
			})
		}
		if s.Day > prev {
			prev = s.Day
		}
	}
	return out
}

// CheckFormat rejects values no schedule can hold.
func CheckFormat(r Rule) error {
	if r.GraceDay < 0 || r.GraceDay > maxDay {
		return fmt.Errorf("%w: grace_day must be between 0 and %d", ErrInvalidRule, maxDay)
	}
	for i, s := range r.Steps {
		if s.Day < 1 || s.Day > maxDay {
			return fmt.Errorf("%w: step %d day must be between 1 and %d", ErrInvalidRule, i+1, maxDay)
		}
		if s.Percentage < 0 || s.Percentage > 100 {
			return fmt.Errorf("%w: step %d percentage must be between 0 and 100", ErrInvalidRule, i+1)
		}
	}
	return nil
}

// FromConfig converts the configured default rule.
func FromConfig(c config.SurchargeRule) Rule {
	r := Rule{GraceDay: c.GraceDay, Steps: make([]Step, 0, len(c.Steps))}
	for _, s := range c.Steps {
		r.Steps = append(r.Steps, Step{Day: s.Day, Percentage: s.Percentage})
	}
	return r
}

func clone(r Rule) Rule {
	out := Rule{GraceDay: r.GraceDay, Steps: make([]Step, len(r.Steps))}
	copy(out.Steps, r.Steps)
	return out
}
