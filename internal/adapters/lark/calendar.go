package lark

import (
	"context"
	"fmt"
	"strconv"
	"time"

	larkcalendar "github.com/larksuite/oapi-sdk-go/v3/service/calendar/v4"

	"github.com/okian/larkgate/internal/domain/leave"
)

// CreateTimeoff writes a time-off entry to the user's calendar and returns
// its id. Times are sent as unix seconds.
func (c *Client) CreateTimeoff(ctx context.Context, req leave.TimeoffRequest) (id string, err error) {
	started := time.Now()
	defer func() { c.observe("calendar.timeoff_event.create", started, err) }()

	auth, err := c.auth(ctx)
	if err != nil {
		return "", err
	}
	event := larkcalendar.NewTimeoffEventBuilder().
		UserId(req.UserID).
		Timezone(req.Timezone).
		StartTime(strconv.FormatInt(req.Start.Unix(), 10)).
		EndTime(strconv.FormatInt(req.End.Unix(), 10)).
		Title(req.Title).
		Description(req.Description).
		Build()
	call := larkcalendar.NewCreateTimeoffEventReqBuilder().
		UserIdType("open_id").
		TimeoffEvent(event).
		Build()

	resp, err := c.raw.Calendar.TimeoffEvent.Create(ctx, call, auth)
	if err != nil {
		return "", fmt.Errorf("create timeoff event: %w", err)
	}
	if !resp.Success() {
		return "", &APIError{Code: resp.Code, Msg: resp.Msg}
	}
	if resp.Data != nil {
		id = str(resp.Data.TimeoffEventId)
	}
	return id, nil
}
