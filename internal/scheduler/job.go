package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind names the handler a job dispatches to.
type Kind string

// Job kinds.
const (
	KindDayCheck     Kind = "day_check"
	KindRangeSummary Kind = "range_summary"
	KindSendBatch    Kind = "send_batch"
)

// Trigger says when a job fires. Exactly one of Cron or Daily is set.
type Trigger struct {
	// Cron is a 5-field cron expression.
	Cron string `json:"cron,omitempty" koanf:"cron"`
	// Daily is a wall-clock time "HH:MM".
	Daily string `json:"daily,omitempty" koanf:"daily"`
}

// Spec returns the cron expression for the trigger.
func (t Trigger) Spec() (string, error) {
	cronExpr := strings.TrimSpace(t.Cron)
	daily := strings.TrimSpace(t.Daily)
	switch {
	case cronExpr != "" && daily != "":
		return "", fmt.Errorf("%w: both cron and daily set", ErrInvalidTrigger)
	case cronExpr != "":
		return cronExpr, nil
	case daily != "":
		at, err := time.Parse("15:04", daily)
		if err != nil {
			return "", fmt.Errorf("%w: daily %q: %w", ErrInvalidTrigger, daily, err)
		}
		return fmt.Sprintf("%d %d * * *", at.Minute(), at.Hour()), nil
	default:
		return "", fmt.Errorf("%w: empty trigger", ErrInvalidTrigger)
	}
}

// String renders the trigger for listings.
func (t Trigger) String() string {
	if t.Daily != "" {
		return "daily " + t.Daily
	}
	return "cron " + t.Cron
}

// Job is one scheduled unit of work.
type Job struct {
	ID      string            `json:"id" koanf:"id"`
	Name    string            `json:"name" koanf:"name"`
	Kind    Kind              `json:"kind" koanf:"kind"`
	Trigger Trigger           `json:"trigger" koanf:"trigger"`
	Enabled bool              `json:"enabled" koanf:"enabled"`
	Params  map[string]string `json:"params,omitempty" koanf:"params"`
}

// Param returns a parameter or def when it is unset.
func (j Job) Param(key, def string) string {
	if v, ok := j.Params[key]; ok && v != "" {
		return v
	}
	return def
}

// IntParam returns an integer parameter or def when it is unset.
func (j Job) IntParam(key string, def int) (int, error) {
	v := j.Param(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: param %s=%q", ErrInvalidJob, key, v)
	}
	return n, nil
}

func (j Job) validate() error {
	if strings.TrimSpace(j.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidJob)
	}
	switch j.Kind {
	case KindDayCheck, KindRangeSummary, KindSendBatch:
	default:
		return fmt.Errorf("%w: job %s: unknown kind %q", ErrInvalidJob, j.ID, j.Kind)
	}
	return nil
}
