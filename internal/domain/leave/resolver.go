package leave

import (
	"context"
	"time"

	"github.com/okian/larkgate/pkg/logger"
	"github.com/okian/larkgate/pkg/metrics"
)

// DefaultWindow bounds the approval query around the checked date.
const DefaultWindow = 7 * 24 * time.Hour

// Resolver answers "is this person on approved leave on this date" from
// approval instances. Every failure answers false so the person stays
// expected to fill.
type Resolver struct {
	source        ApprovalSource
	approvalCodes []string
	window        time.Duration
	loc           *time.Location
	logger        logger.Logger
}

// NewResolver creates a resolver over the given leave approval definitions.
func NewResolver(source ApprovalSource, approvalCodes []string, opts ...Option) *Resolver {
	r := &Resolver{
		source:        source,
		approvalCodes: approvalCodes,
		window:        DefaultWindow,
		loc:           time.Local,
		logger:        logger.Get().Named("leave"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IsOnLeave reports whether externalID has an approved leave covering date.
func (r *Resolver) IsOnLeave(ctx context.Context, externalID string, date time.Time) bool {
	if externalID == "" || r.source == nil || len(r.approvalCodes) == 0 {
		metrics.RecordLeaveLookup("skipped")
		return false
	}

	from, to := date.Add(-r.window), date.Add(r.window)
	for _, code := range r.approvalCodes {
		found, err := r.search(ctx, code, externalID, date, from, to)
		if err != nil {
			metrics.RecordLeaveLookup("error")
			r.logger.Warn(ctx, "leave lookup failed",
				logger.String("approval_code", code),
				logger.String("user", externalID),
				logger.Error(err),
			)
			return false
		}
		if found {
			metrics.RecordLeaveLookup("on_leave")
			return true
		}
	}
	metrics.RecordLeaveLookup("not_on_leave")
	return false
}

func (r *Resolver) search(ctx context.Context, code, externalID string, date, from, to time.Time) (bool, error) {
	codes, err := r.source.QueryApprovalInstances(ctx, code, externalID, from, to)
	if err != nil {
		return false, err
	}
	for _, ic := range codes {
		inst, err := r.source.GetApprovalInstance(ctx, ic)
		if err != nil {
			r.logger.Debug(ctx, "approval instance unreadable", logger.String("instance", ic), logger.Error(err))
			continue
		}
		if inst.Status != StatusApproved || !inst.InitiatedBy(externalID) {
			continue
		}
		iv, err := IntervalFromForm(inst.Form, r.loc)
		if err != nil {
			r.logger.Debug(ctx, "leave form unparseable", logger.String("instance", ic), logger.Error(err))
			continue
		}
		if iv.Covers(date, r.loc) {
			return true, nil
		}
	}
	return false, nil
}

// ResolveBatch looks every id up independently.
func (r *Resolver) ResolveBatch(ctx context.Context, externalIDs []string, date time.Time) map[string]bool {
	out := make(map[string]bool, len(externalIDs))
	for _, id := range externalIDs {
		if ctx.Err() != nil {
			out[id] = false
			continue
		}
		out[id] = r.IsOnLeave(ctx, id, date)
	}
	return out
}
