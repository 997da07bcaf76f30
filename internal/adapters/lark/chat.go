package lark

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"

	"github.com/okian/larkgate/internal/domain/attendance"
)

const (
	chatMemberPageSize = 100
	defaultMemberTTL   = 10 * time.Minute
)

// Member is one chat member.
type Member struct {
	OpenID string
	Name   string
}

// ChatMembers lists every member of a chat by open_id.
func (c *Client) ChatMembers(ctx context.Context, chatID string) ([]Member, error) {
	var (
		out       []Member
		pageToken string
	)
	for {
		page, next, err := c.chatMembersPage(ctx, chatID, pageToken)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if next == "" {
			return out, nil
		}
		pageToken = next
	}
}

func (c *Client) chatMembersPage(ctx context.Context, chatID, pageToken string) (members []Member, next string, err error) {
	started := time.Now()
	defer func() { c.observe("im.chat_members.get", started, err) }()

	auth, err := c.auth(ctx)
	if err != nil {
		return nil, "", err
	}
	builder := larkim.NewGetChatMembersReqBuilder().
		ChatId(chatID).
		MemberIdType("open_id").
		PageSize(chatMemberPageSize)
	if pageToken != "" {
		builder.PageToken(pageToken)
	}

	resp, err := c.raw.Im.ChatMembers.Get(ctx, builder.Build(), auth)
	if err != nil {
		return nil, "", fmt.Errorf("get chat members: %w", err)
	}
	if !resp.Success() {
		return nil, "", &APIError{Code: resp.Code, Msg: resp.Msg}
	}
	if resp.Data == nil {
		return nil, "", nil
	}
	for _, item := range resp.Data.Items {
		if item == nil {
			continue
		}
		members = append(members, Member{OpenID: str(item.MemberId), Name: str(item.Name)})
	}
	if resp.Data.HasMore != nil && *resp.Data.HasMore {
		next = str(resp.Data.PageToken)
	}
	return members, next, nil
}

// ChatRoster builds the roster from a chat's members, minus an exclude
// list. Member lists are cached for a short while so that a range check
// does not refetch them per day.
type ChatRoster struct {
	client    *Client
	chatID    string
	exclude   map[string]struct{}
	overrides map[string]attendance.RosterEntry

	mu    sync.Mutex
	cache *expirable.LRU[string, []Member]
}

// NewChatRoster creates a roster over chatID. Names in exclude are dropped.
// overrides carries per-person flags from configuration, keyed by name.
func NewChatRoster(client *Client, chatID string, exclude []string, overrides []attendance.RosterEntry, ttl time.Duration) *ChatRoster {
	if ttl <= 0 {
		ttl = defaultMemberTTL
	}
	r := &ChatRoster{
		client:    client,
		chatID:    chatID,
		exclude:   make(map[string]struct{}, len(exclude)),
		overrides: make(map[string]attendance.RosterEntry, len(overrides)),
		cache:     expirable.NewLRU[string, []Member](8, nil, ttl),
	}
	for _, name := range exclude {
		r.exclude[name] = struct{}{}
	}
	for _, o := range overrides {
		r.overrides[o.Name] = o
	}
	return r
}

func (r *ChatRoster) members(ctx context.Context) ([]Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.cache.Get(r.chatID); ok {
		return m, nil
	}
	m, err := r.client.ChatMembers(ctx, r.chatID)
	if err != nil {
		return nil, err
	}
	r.cache.Add(r.chatID, m)
	return m, nil
}

// Roster implements attendance.RosterSource.
func (r *ChatRoster) Roster(ctx context.Context) ([]attendance.RosterEntry, error) {
	members, err := r.members(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]attendance.RosterEntry, 0, len(members))
	for _, m := range members {
		if _, skip := r.exclude[m.Name]; skip || m.Name == "" {
			continue
		}
		entry := attendance.RosterEntry{Name: m.Name, ExternalID: m.OpenID}
		if o, ok := r.overrides[m.Name]; ok {
			entry.OnLeave = o.OnLeave
			entry.ExceptionWeekdays = o.ExceptionWeekdays
		}
		out = append(out, entry)
	}
	return out, nil
}

// ExternalIDs implements attendance.IDDirectory from chat membership.
func (r *ChatRoster) ExternalIDs(ctx context.Context) (map[string]string, error) {
	members, err := r.members(ctx)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]string, len(members))
	for _, m := range members {
		if m.Name != "" && m.OpenID != "" {
			ids[m.Name] = m.OpenID
		}
	}
	return ids, nil
}
