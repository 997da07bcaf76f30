// Package leave decides whether a person has an approved leave covering a
// date, and turns approved leave requests into time-off calendar entries.
package leave

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/okian/larkgate/internal/domain/types"
)

// StatusApproved is the terminal approval state that counts as leave.
const StatusApproved = "APPROVED"

// Instance is the detail of one approval instance.
type Instance struct {
	Code         string
	ApprovalCode string
	Status       string
	UserID       string
	OpenID       string
	StartTime    time.Time
	EndTime      time.Time
	Form         []FormField
}

// InitiatedBy reports whether id is the instance initiator under either id type.
func (i *Instance) InitiatedBy(id string) bool {
	return id != "" && (i.OpenID == id || i.UserID == id)
}

// FormField is one widget of an approval form.
type FormField struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// ParseForm decodes the JSON array carried in an instance's form attribute.
func ParseForm(raw string) ([]FormField, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var fields []FormField
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadForm, err)
	}
	return fields, nil
}

// Interval is an inclusive leave period.
type Interval struct {
	Start  time.Time
	End    time.Time
	Reason string
	Kind   string
}

// Covers reports whether date lies in [Start.date, End.date] in loc.
func (iv Interval) Covers(date time.Time, loc *time.Location) bool {
	day := types.StartOfDay(date.In(loc))
	start := types.StartOfDay(iv.Start.In(loc))
	end := types.StartOfDay(iv.End.In(loc))
	return !day.Before(start) && !day.After(end)
}

type spanValue struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Name  string `json:"name"`
}

// IntervalFromForm extracts the leave period from a form. Supported shapes,
// first match wins: a leaveGroupV2 / leaveGroup widget, a dateInterval widget,
// or separate start and end date widgets.
func IntervalFromForm(fields []FormField, loc *time.Location) (Interval, error) {
	var (
		iv         Interval
		start, end string
	)
	for _, f := range fields {
		id := strings.ToLower(f.ID)
		switch {
		case f.Type == "leaveGroupV2" || f.Type == "leaveGroup" || f.Type == "dateInterval":
			var v spanValue
			if err := json.Unmarshal(f.Value, &v); err == nil && start == "" {
				start, end = v.Start, v.End
				if v.Name != "" {
					iv.Kind = v.Name
				}
			}
		case f.Type == "date" && (strings.Contains(id, "start") || strings.Contains(f.Name, "开始")):
			if start == "" {
				start = stringValue(f.Value)
			}
		case f.Type == "date" && (strings.Contains(id, "end") || strings.Contains(f.Name, "结束")):
			if end == "" {
				end = stringValue(f.Value)
			}
		case strings.Contains(id, "reason") || strings.Contains(f.Name, "原因") || strings.Contains(f.Name, "事由"):
			iv.Reason = stringValue(f.Value)
		}
	}
	if start == "" || end == "" {
		return Interval{}, fmt.Errorf("%w: no leave period in form", ErrBadForm)
	}

	var err error
	if iv.Start, err = ParseTime(start, loc); err != nil {
		return Interval{}, err
	}
	if iv.End, err = ParseTime(end, loc); err != nil {
		return Interval{}, err
	}
	if iv.End.Before(iv.Start) {
		return Interval{}, fmt.Errorf("%w: end %s before start %s", ErrBadForm, end, start)
	}
	return iv, nil
}

func stringValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.Trim(string(raw), `"`)
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	types.DateLayout,
}

// ParseTime accepts unix seconds, unix milliseconds, RFC 3339 or
// "YYYY-MM-DD[ HH:MM[:SS]]" in loc.
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e11 {
			return time.UnixMilli(n).In(loc), nil
		}
		return time.Unix(n, 0).In(loc), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognised time %q", ErrBadForm, s)
}

// ApprovalSource reads approval instances from the platform.
type ApprovalSource interface {
	// QueryApprovalInstances returns the codes of instances of approvalCode
	// that userID started within [from, to].
	QueryApprovalInstances(ctx context.Context, approvalCode, userID string, from, to time.Time) ([]string, error)
	GetApprovalInstance(ctx context.Context, instanceCode string) (*Instance, error)
}
