package leave

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/larkgate/internal/domain/model"
	"github.com/okian/larkgate/pkg/logger"
)

const (
	defaultLeaveType   = "请假"
	defaultLeaveReason = "请假审批已通过"
)

// Outcome describes what the approval handler did with an event.
type Outcome string

const (
	OutcomeCreated  Outcome = "created"
	OutcomeIgnored  Outcome = "ignored"
	OutcomeReverted Outcome = "reverted"
)

// TimeoffRequest is a time-off calendar entry for one user.
type TimeoffRequest struct {
	UserID      string
	Start       time.Time
	End         time.Time
	Timezone    string
	Title       string
	Description string
}

// TimeoffCreator writes time-off entries to the user's calendar.
type TimeoffCreator interface {
	CreateTimeoff(ctx context.Context, req TimeoffRequest) (string, error)
}

// ApprovalHandler turns approved leave requests into time-off entries.
type ApprovalHandler struct {
	creator TimeoffCreator
	source  ApprovalSource
	codes   map[string]struct{}
	loc     *time.Location
	logger  logger.Logger
}

// NewApprovalHandler creates a handler restricted to the given approval codes.
// source may be nil when only leave_approval* events are expected.
func NewApprovalHandler(creator TimeoffCreator, source ApprovalSource, approvalCodes []string, loc *time.Location) *ApprovalHandler {
	if loc == nil {
		loc = time.Local
	}
	codes := make(map[string]struct{}, len(approvalCodes))
	for _, c := range approvalCodes {
		codes[c] = struct{}{}
	}
	return &ApprovalHandler{
		creator: creator,
		source:  source,
		codes:   codes,
		loc:     loc,
		logger:  logger.Get().Named("leave.approval"),
	}
}

func (h *ApprovalHandler) allowed(code string) bool {
	if code == "" {
		return true
	}
	_, ok := h.codes[code]
	return ok
}

// Handle processes one approval callback.
func (h *ApprovalHandler) Handle(ctx context.Context, eventType string, ev *model.ApprovalEvent) (Outcome, error) {
	if !h.allowed(ev.ApprovalCode) {
		h.logger.Debug(ctx, "approval code not whitelisted", logger.String("approval_code", ev.ApprovalCode))
		return OutcomeIgnored, nil
	}

	var (
		req TimeoffRequest
		err error
	)
	switch eventType {
	case model.EventTypeLeaveApprovalRevert:
		// Entries are not tracked by instance, so there is nothing to delete.
		h.logger.Info(ctx, "leave approval reverted", logger.String("instance", ev.InstanceCode))
		return OutcomeReverted, nil
	case model.EventTypeLeaveApproval, model.EventTypeLeaveApprovalV2:
		req, err = h.fromLeaveEvent(ev)
	case model.EventTypeApprovalInstance:
		if ev.Status != StatusApproved {
			return OutcomeIgnored, nil
		}
		req, err = h.fromInstance(ctx, ev)
	default:
		return OutcomeIgnored, nil
	}
	if err != nil {
		return "", err
	}

	id, err := h.creator.CreateTimeoff(ctx, req)
	if err != nil {
		return "", fmt.Errorf("create timeoff for %s: %w", ev.InstanceCode, err)
	}
	h.logger.Info(ctx, "time-off entry created",
		logger.String("instance", ev.InstanceCode),
		logger.String("user", req.UserID),
		logger.String("timeoff_event_id", id),
	)
	return OutcomeCreated, nil
}

func (h *ApprovalHandler) fromLeaveEvent(ev *model.ApprovalEvent) (TimeoffRequest, error) {
	if ev.OpenID == "" || ev.LeaveStartTime == "" || ev.LeaveEndTime == "" {
		return TimeoffRequest{}, fmt.Errorf("%w: instance %s", ErrIncomplete, ev.InstanceCode)
	}
	start, err := ParseTime(ev.LeaveStartTime, h.loc)
	if err != nil {
		return TimeoffRequest{}, err
	}
	end, err := ParseTime(ev.LeaveEndTime, h.loc)
	if err != nil {
		return TimeoffRequest{}, err
	}
	kind := ev.LeaveType
	if kind == "" {
		kind = ev.LeaveName
	}
	return h.request(ev.OpenID, ev.InstanceCode, Interval{Start: start, End: end, Kind: kind, Reason: ev.LeaveReason}), nil
}

func (h *ApprovalHandler) fromInstance(ctx context.Context, ev *model.ApprovalEvent) (TimeoffRequest, error) {
	if h.source == nil {
		return TimeoffRequest{}, fmt.Errorf("%w: no approval source for %s", ErrIncomplete, ev.InstanceCode)
	}
	inst, err := h.source.GetApprovalInstance(ctx, ev.InstanceCode)
	if err != nil {
		return TimeoffRequest{}, err
	}
	if inst.Status != StatusApproved {
		return TimeoffRequest{}, fmt.Errorf("%w: instance %s is %s", ErrIncomplete, ev.InstanceCode, inst.Status)
	}
	iv, err := IntervalFromForm(inst.Form, h.loc)
	if err != nil {
		return TimeoffRequest{}, err
	}
	user := inst.OpenID
	if user == "" {
		user = ev.OpenID
	}
	if user == "" {
		return TimeoffRequest{}, fmt.Errorf("%w: no initiator on %s", ErrIncomplete, ev.InstanceCode)
	}
	return h.request(user, ev.InstanceCode, iv), nil
}

func (h *ApprovalHandler) request(user, instance string, iv Interval) TimeoffRequest {
	kind := iv.Kind
	if kind == "" {
		kind = defaultLeaveType
	}
	reason := iv.Reason
	if reason == "" {
		reason = defaultLeaveReason
	}
	desc := fmt.Sprintf("%s: %s", kind, reason)
	if instance != "" {
		desc = fmt.Sprintf("%s\n[审批实例: %s]", desc, instance)
	}
	return TimeoffRequest{
		UserID:      user,
		Start:       iv.Start,
		End:         iv.End,
		Timezone:    h.loc.String(),
		Title:       kind + "(全天) / Time Off",
		Description: desc,
	}
}
