package lark

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	larkapproval "github.com/larksuite/oapi-sdk-go/v3/service/approval/v4"

	"github.com/okian/larkgate/internal/domain/leave"
)

const approvalPageSize = 100

// QueryApprovalInstances lists the codes of approved instances of
// approvalCode that userID started within [from, to].
func (c *Client) QueryApprovalInstances(ctx context.Context, approvalCode, userID string, from, to time.Time) ([]string, error) {
	var (
		codes     []string
		pageToken string
	)
	for {
		page, next, err := c.queryApprovalPage(ctx, approvalCode, userID, from, to, pageToken)
		if err != nil {
			return nil, err
		}
		codes = append(codes, page...)
		if next == "" {
			return codes, nil
		}
		pageToken = next
	}
}

func (c *Client) queryApprovalPage(ctx context.Context, approvalCode, userID string, from, to time.Time, pageToken string) (codes []string, next string, err error) {
	started := time.Now()
	defer func() { c.observe("approval.instance.query", started, err) }()

	auth, err := c.auth(ctx)
	if err != nil {
		return nil, "", err
	}
	search := larkapproval.NewInstanceSearchBuilder().
		UserId(userID).
		ApprovalCode(approvalCode).
		InstanceStatus(leave.StatusApproved).
		InstanceStartTimeFrom(strconv.FormatInt(from.UnixMilli(), 10)).
		InstanceStartTimeTo(strconv.FormatInt(to.UnixMilli(), 10)).
		Build()
	builder := larkapproval.NewQueryInstanceReqBuilder().
		PageSize(approvalPageSize).
		UserIdType(userIDType(userID)).
		InstanceSearch(search)
	if pageToken != "" {
		builder.PageToken(pageToken)
	}

	resp, err := c.raw.Approval.Instance.Query(ctx, builder.Build(), auth)
	if err != nil {
		return nil, "", fmt.Errorf("query approval instances: %w", err)
	}
	if !resp.Success() {
		return nil, "", &APIError{Code: resp.Code, Msg: resp.Msg}
	}
	if resp.Data == nil {
		return nil, "", nil
	}
	for _, item := range resp.Data.InstanceList {
		if item == nil || item.Instance == nil {
			continue
		}
		if code := str(item.Instance.Code); code != "" {
			codes = append(codes, code)
		}
	}
	if resp.Data.HasMore != nil && *resp.Data.HasMore {
		next = str(resp.Data.PageToken)
	}
	return codes, next, nil
}

// GetApprovalInstance reads one instance including its form.
func (c *Client) GetApprovalInstance(ctx context.Context, instanceCode string) (inst *leave.Instance, err error) {
	started := time.Now()
	defer func() { c.observe("approval.instance.get", started, err) }()

	auth, err := c.auth(ctx)
	if err != nil {
		return nil, err
	}
	req := larkapproval.NewGetInstanceReqBuilder().
		InstanceId(instanceCode).
		Build()

	resp, err := c.raw.Approval.Instance.Get(ctx, req, auth)
	if err != nil {
		return nil, fmt.Errorf("get approval instance: %w", err)
	}
	if !resp.Success() {
		return nil, &APIError{Code: resp.Code, Msg: resp.Msg}
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("get approval instance %s: empty response", instanceCode)
	}

	d := resp.Data
	inst = &leave.Instance{
		Code:         str(d.InstanceCode),
		ApprovalCode: str(d.ApprovalCode),
		Status:       str(d.Status),
		UserID:       str(d.UserId),
		OpenID:       str(d.OpenId),
		StartTime:    parseMilliString(str(d.StartTime)),
		EndTime:      parseMilliString(str(d.EndTime)),
	}
	if inst.Form, err = leave.ParseForm(str(d.Form)); err != nil {
		return nil, err
	}
	return inst, nil
}

// userIDType names the id scheme of id; open ids carry the "ou_" prefix.
func userIDType(id string) string {
	if strings.HasPrefix(id, "ou_") {
		return "open_id"
	}
	return "user_id"
}

func parseMilliString(ts string) time.Time {
	ms, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
