package lark

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	larkbitable "github.com/larksuite/oapi-sdk-go/v3/service/bitable/v1"

	"github.com/okian/larkgate/internal/domain/attendance"
)

// Default Bitable column names.
const (
	DefaultUserField = "员工"
	DefaultDateField = "记录时间"
)

// TableRef locates a Bitable table and the columns holding the submitter
// and the recorded time.
type TableRef struct {
	AppToken  string
	TableID   string
	UserField string
	DateField string
}

func (t TableRef) withDefaults() TableRef {
	if t.UserField == "" {
		t.UserField = DefaultUserField
	}
	if t.DateField == "" {
		t.DateField = DefaultDateField
	}
	return t
}

type bitablePage struct {
	items     []*larkbitable.AppTableRecord
	pageToken string
	hasMore   bool
}

func (c *Client) listRecords(ctx context.Context, table TableRef, pageToken string) (page bitablePage, err error) {
	started := time.Now()
	defer func() { c.observe("bitable.record.list", started, err) }()

	auth, err := c.auth(ctx)
	if err != nil {
		return page, err
	}
	builder := larkbitable.NewListAppTableRecordReqBuilder().
		AppToken(table.AppToken).
		TableId(table.TableID).
		PageSize(defaultPage)
	if pageToken != "" {
		builder.PageToken(pageToken)
	}

	resp, err := c.raw.Bitable.V1.AppTableRecord.List(ctx, builder.Build(), auth)
	if err != nil {
		return page, fmt.Errorf("list bitable records: %w", err)
	}
	if !resp.Success() {
		return page, &APIError{Code: resp.Code, Msg: resp.Msg}
	}
	if resp.Data == nil {
		return page, nil
	}
	page.items = resp.Data.Items
	page.pageToken = str(resp.Data.PageToken)
	if resp.Data.HasMore != nil {
		page.hasMore = *resp.Data.HasMore
	}
	return page, nil
}

// QueryRecords returns fill records whose recorded time lies in [from, to].
// The table is read page by page and filtered here, since the recorded time
// is a millisecond timestamp column.
func (c *Client) QueryRecords(ctx context.Context, table TableRef, from, to time.Time) ([]attendance.FillRecord, error) {
	table = table.withDefaults()
	var (
		out       []attendance.FillRecord
		pageToken string
	)
	for {
		page, err := c.listRecords(ctx, table, pageToken)
		if err != nil {
			return nil, err
		}
		for _, item := range page.items {
			if item == nil {
				continue
			}
			rec, ok := fillRecord(item.Fields, table)
			if !ok || rec.Date.Before(from) || rec.Date.After(to) {
				continue
			}
			out = append(out, rec)
		}
		if !page.hasMore || page.pageToken == "" {
			return out, nil
		}
		pageToken = page.pageToken
	}
}

func fillRecord(fields map[string]interface{}, table TableRef) (attendance.FillRecord, bool) {
	name, id := parseUser(fields[table.UserField])
	if name == "" {
		return attendance.FillRecord{}, false
	}
	at, ok := parseMillis(fields[table.DateField])
	if !ok {
		return attendance.FillRecord{}, false
	}
	return attendance.FillRecord{PersonName: name, ExternalID: id, Date: at}, true
}

// parseUser reads a person column: an object, a list of objects or text.
func parseUser(v interface{}) (name, id string) {
	switch u := v.(type) {
	case map[string]interface{}:
		name, _ = u["name"].(string)
		id, _ = u["id"].(string)
	case []interface{}:
		if len(u) == 0 {
			return "", ""
		}
		if m, ok := u[0].(map[string]interface{}); ok {
			return parseUser(m)
		}
		return fmt.Sprint(u[0]), ""
	case string:
		name = u
	}
	return name, id
}

func parseMillis(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case float64:
		return time.UnixMilli(int64(t)), true
	case int64:
		return time.UnixMilli(t), true
	case string:
		ms, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		return time.UnixMilli(ms), true
	default:
		return time.Time{}, false
	}
}

// RecordStore binds a table to a client. It serves as the aggregator's
// record source and as a name to user id directory built from submissions.
type RecordStore struct {
	client *Client
	table  TableRef
}

// Records returns a RecordStore for table.
func (c *Client) Records(table TableRef) *RecordStore {
	return &RecordStore{client: c, table: table.withDefaults()}
}

// FillRecords implements attendance.RecordSource.
func (s *RecordStore) FillRecords(ctx context.Context, from, to time.Time) ([]attendance.FillRecord, error) {
	return s.client.QueryRecords(ctx, s.table, from, to)
}

// ExternalIDs maps submitter names to user ids using the first page of
// records, which holds the most recent submissions.
func (s *RecordStore) ExternalIDs(ctx context.Context) (map[string]string, error) {
	page, err := s.client.listRecords(ctx, s.table, "")
	if err != nil {
		return nil, err
	}
	ids := make(map[string]string)
	for _, item := range page.items {
		if item == nil {
			continue
		}
		name, id := parseUser(item.Fields[s.table.UserField])
		if name != "" && id != "" {
			ids[name] = id
		}
	}
	return ids, nil
}
