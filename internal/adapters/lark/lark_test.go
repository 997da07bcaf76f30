package lark_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/larkgate/internal/adapters/lark"
	"github.com/okian/larkgate/internal/domain/leave"
	"github.com/okian/larkgate/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type route struct {
	pattern string
	handler http.HandlerFunc
}

// fakeOpenAPI answers the token endpoint itself and routes every other call
// to the first route whose pattern is a substring of the path.
type fakeOpenAPI struct {
	srv         *httptest.Server
	tokenCalls  atomic.Int32
	mu          sync.Mutex
	lastBody    map[string]any
	lastAuth    string
	lastMethod  string
	lastRawPath string
}

func newFakeOpenAPI(routes ...route) *fakeOpenAPI {
	f := &fakeOpenAPI{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(r.URL.Path, "tenant_access_token") {
			f.tokenCalls.Add(1)
			_, _ = w.Write([]byte(`{"code":0,"msg":"ok","tenant_access_token":"test-token","expire":7200}`))
			return
		}

		raw, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.lastBody = nil
		_ = json.Unmarshal(raw, &f.lastBody)
		f.lastAuth = r.Header.Get("Authorization")
		f.lastMethod = r.Method
		f.lastRawPath = r.URL.Path + "?" + r.URL.RawQuery
		f.mu.Unlock()

		for _, rt := range routes {
			if strings.Contains(r.URL.Path, rt.pattern) {
				rt.handler(w, r)
				return
			}
		}
		http.NotFound(w, r)
	}))
	return f
}

func (f *fakeOpenAPI) client(opts ...lark.Option) *lark.Client {
	return lark.New("cli_test", "secret", append([]lark.Option{lark.WithBaseURL(f.srv.URL)}, opts...)...)
}

func jsonResponse(code int, msg string, data any) []byte {
	resp := map[string]any{"code": code, "msg": msg}
	if data != nil {
		resp["data"] = data
	}
	b, _ := json.Marshal(resp)
	return b
}

func reply(code int, msg string, data any) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write(jsonResponse(code, msg, data)) }
}

func TestAccessToken(t *testing.T) {
	Convey("Given a client against a fake Open API", t, func() {
		ctx := context.Background()
		api := newFakeOpenAPI()
		defer api.srv.Close()

		now := time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)
		var clockMu sync.Mutex
		clock := func() time.Time { clockMu.Lock(); defer clockMu.Unlock(); return now }
		c := api.client(lark.WithClock(clock))

		Convey("When the token is requested repeatedly", func() {
			first, err := c.AccessToken(ctx)
			So(err, ShouldBeNil)
			second, err := c.AccessToken(ctx)
			So(err, ShouldBeNil)

			Convey("Then it is fetched once and cached", func() {
				So(first, ShouldEqual, "test-token")
				So(second, ShouldEqual, first)
				So(api.tokenCalls.Load(), ShouldEqual, 1)
			})
		})

		Convey("When the token is within five minutes of expiry", func() {
			_, _ = c.AccessToken(ctx)
			clockMu.Lock()
			now = now.Add(2*time.Hour - 4*time.Minute)
			clockMu.Unlock()
			_, err := c.AccessToken(ctx)

			Convey("Then it is refreshed", func() {
				So(err, ShouldBeNil)
				So(api.tokenCalls.Load(), ShouldEqual, 2)
			})
		})

		Convey("When many goroutines ask at once", func() {
			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, _ = c.AccessToken(ctx)
				}()
			}
			wg.Wait()

			Convey("Then few requests reach the server", func() {
				So(api.tokenCalls.Load(), ShouldBeBetweenOrEqual, 1, 16)
				tok, err := c.AccessToken(ctx)
				So(err, ShouldBeNil)
				So(tok, ShouldEqual, "test-token")
			})
		})
	})
}

func TestMessaging(t *testing.T) {
	Convey("Given a client that can send messages", t, func() {
		ctx := context.Background()
		api := newFakeOpenAPI(
			route{"/reply", reply(0, "ok", map[string]any{"message_id": "om_reply"})},
			route{"/im/v1/messages/", reply(0, "ok", map[string]any{})},
			route{"/im/v1/messages", reply(0, "ok", map[string]any{"message_id": "om_1"})},
		)
		defer api.srv.Close()
		c := api.client()

		Convey("When sending text", func() {
			id, err := c.SendText(ctx, "oc_chat", "hello")

			Convey("Then the message is created with the cached token", func() {
				So(err, ShouldBeNil)
				So(id, ShouldEqual, "om_1")
				So(api.lastAuth, ShouldEqual, "Bearer test-token")
				So(api.lastRawPath, ShouldContainSubstring, "receive_id_type=chat_id")
				So(api.lastBody["receive_id"], ShouldEqual, "oc_chat")
				So(api.lastBody["msg_type"], ShouldEqual, lark.MsgTypeText)
				So(api.lastBody["content"], ShouldEqual, `{"text":"hello"}`)
			})
		})

		Convey("When sending a card", func() {
			_, err := c.SendCard(ctx, "oc_chat", map[string]any{"header": map[string]any{"template": "green"}})

			Convey("Then it is sent as an interactive message", func() {
				So(err, ShouldBeNil)
				So(api.lastBody["msg_type"], ShouldEqual, lark.MsgTypeInteractive)
				So(api.lastBody["content"], ShouldContainSubstring, `"template":"green"`)
			})
		})

		Convey("When replying", func() {
			id, err := c.Reply(ctx, "om_parent", lark.MsgTypeText, lark.TextContent("pong"))
			So(err, ShouldBeNil)
			So(id, ShouldEqual, "om_reply")
		})

		Convey("When updating a card", func() {
			err := c.UpdateMessage(ctx, "om_card", `{"elements":[]}`)

			Convey("Then the message is patched", func() {
				So(err, ShouldBeNil)
				So(api.lastMethod, ShouldEqual, http.MethodPatch)
				So(api.lastBody["content"], ShouldEqual, `{"elements":[]}`)
			})
		})
	})

	Convey("Given an API that rejects the call", t, func() {
		api := newFakeOpenAPI(route{"/im/v1/messages", reply(230002, "bot not in chat", nil)})
		defer api.srv.Close()

		_, err := api.client().SendText(context.Background(), "oc_chat", "hello")

		Convey("Then an APIError carries the code", func() {
			So(err, ShouldNotBeNil)
			So(lark.IsAPIError(err, 230002), ShouldBeTrue)
		})
	})
}

func TestQueryRecords(t *testing.T) {
	Convey("Given a Bitable table spread over two pages", t, func() {
		ctx := context.Background()
		loc := time.FixedZone("CST", 8*3600)
		day := time.Date(2025, 3, 5, 0, 0, 0, 0, loc)
		inDay := day.Add(10 * time.Hour).UnixMilli()
		dayBefore := day.Add(-2 * time.Hour).UnixMilli()

		var calls atomic.Int32
		api := newFakeOpenAPI(route{"/records", func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				_, _ = w.Write(jsonResponse(0, "ok", map[string]any{
					"has_more": true, "page_token": "p2", "total": 3,
					"items": []any{
						map[string]any{"record_id": "r1", "fields": map[string]any{
							"员工": []any{map[string]any{"id": "ou_alice", "name": "Alice"}}, "记录时间": inDay}},
						map[string]any{"record_id": "r2", "fields": map[string]any{
							"员工": map[string]any{"id": "ou_bob", "name": "Bob"}, "记录时间": dayBefore}},
					},
				}))
				return
			}
			if r.URL.Query().Get("page_token") != "p2" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_, _ = w.Write(jsonResponse(0, "ok", map[string]any{
				"has_more": false, "total": 3,
				"items": []any{
					map[string]any{"record_id": "r3", "fields": map[string]any{"员工": "Carol", "记录时间": inDay}},
					map[string]any{"record_id": "r4", "fields": map[string]any{"员工": "Dan"}},
				},
			}))
		}})
		defer api.srv.Close()
		store := api.client().Records(lark.TableRef{AppToken: "app", TableID: "tbl"})

		Convey("When records for the day are requested", func() {
			recs, err := store.FillRecords(ctx, day, day.Add(24*time.Hour-time.Millisecond))

			Convey("Then every page is read and filtered to the range", func() {
				So(err, ShouldBeNil)
				So(calls.Load(), ShouldEqual, 2)
				So(len(recs), ShouldEqual, 2)
				So(recs[0].PersonName, ShouldEqual, "Alice")
				So(recs[0].ExternalID, ShouldEqual, "ou_alice")
				So(recs[1].PersonName, ShouldEqual, "Carol")
				So(recs[1].ExternalID, ShouldBeEmpty)
			})
		})

		Convey("When the directory is built", func() {
			ids, err := store.ExternalIDs(ctx)

			Convey("Then only the first page is read", func() {
				So(err, ShouldBeNil)
				So(calls.Load(), ShouldEqual, 1)
				So(ids, ShouldResemble, map[string]string{"Alice": "ou_alice", "Bob": "ou_bob"})
			})
		})
	})
}

func TestApprovals(t *testing.T) {
	Convey("Given approval instances", t, func() {
		ctx := context.Background()
		form := `[{"id":"w1","name":"请假","type":"leaveGroupV2","value":{"start":"2025-03-04","end":"2025-03-05"}}]`
		api := newFakeOpenAPI(
			route{"/instances/query", reply(0, "ok", map[string]any{
				"has_more": false,
				"instance_list": []any{
					map[string]any{"instance": map[string]any{"code": "inst-1", "status": "APPROVED"}},
					map[string]any{"instance": map[string]any{"code": "inst-2", "status": "APPROVED"}},
				},
			})},
			route{"/instances/inst-1", reply(0, "ok", map[string]any{
				"instance_code": "inst-1", "approval_code": "LEAVE", "status": "APPROVED",
				"user_id": "u1", "open_id": "ou_bob", "start_time": "1741100000000", "form": form,
			})},
		)
		defer api.srv.Close()
		c := api.client()

		Convey("When instances are queried", func() {
			from := time.Date(2025, 2, 26, 0, 0, 0, 0, time.UTC)
			codes, err := c.QueryApprovalInstances(ctx, "LEAVE", "ou_bob", from, from.AddDate(0, 0, 14))

			Convey("Then approved instance codes are returned", func() {
				So(err, ShouldBeNil)
				So(codes, ShouldResemble, []string{"inst-1", "inst-2"})
				So(api.lastBody["approval_code"], ShouldEqual, "LEAVE")
				So(api.lastBody["instance_status"], ShouldEqual, leave.StatusApproved)
			})

			Convey("Then the search is narrowed to the initiator", func() {
				So(api.lastBody["user_id"], ShouldEqual, "ou_bob")
				So(api.lastRawPath, ShouldContainSubstring, "user_id_type=open_id")
			})
		})

		Convey("When instances are queried by a tenant user id", func() {
			from := time.Date(2025, 2, 26, 0, 0, 0, 0, time.UTC)
			_, err := c.QueryApprovalInstances(ctx, "LEAVE", "u1", from, from.AddDate(0, 0, 14))

			Convey("Then the user id type follows the id", func() {
				So(err, ShouldBeNil)
				So(api.lastBody["user_id"], ShouldEqual, "u1")
				So(api.lastRawPath, ShouldContainSubstring, "user_id_type=user_id")
			})
		})

		Convey("When an instance is read", func() {
			inst, err := c.GetApprovalInstance(ctx, "inst-1")

			Convey("Then its form is decoded", func() {
				So(err, ShouldBeNil)
				So(inst.OpenID, ShouldEqual, "ou_bob")
				So(inst.InitiatedBy("ou_bob"), ShouldBeTrue)
				So(len(inst.Form), ShouldEqual, 1)
				So(inst.StartTime.UnixMilli(), ShouldEqual, 1741100000000)
			})
		})

		Convey("When they feed a leave resolver", func() {
			loc := time.FixedZone("CST", 8*3600)
			r := leave.NewResolver(c, []string{"LEAVE"}, leave.WithLocation(loc))

			Convey("Then the initiator is on leave on covered days", func() {
				So(r.IsOnLeave(ctx, "ou_bob", time.Date(2025, 3, 5, 0, 0, 0, 0, loc)), ShouldBeTrue)
			})
		})
	})
}

func TestChatRoster(t *testing.T) {
	Convey("Given a chat with paginated members", t, func() {
		ctx := context.Background()
		var calls atomic.Int32
		api := newFakeOpenAPI(route{"/members", func(w http.ResponseWriter, _ *http.Request) {
			if calls.Add(1)%2 == 1 {
				_, _ = w.Write(jsonResponse(0, "ok", map[string]any{
					"has_more": true, "page_token": "next",
					"items": []any{
						map[string]any{"member_id": "ou_alice", "name": "Alice"},
						map[string]any{"member_id": "ou_bot", "name": "Helper"},
					},
				}))
				return
			}
			_, _ = w.Write(jsonResponse(0, "ok", map[string]any{
				"has_more": false,
				"items":    []any{map[string]any{"member_id": "ou_bob", "name": "Bob"}},
			}))
		}})
		defer api.srv.Close()

		roster := lark.NewChatRoster(api.client(), "oc_team", []string{"Helper"}, nil, time.Minute)

		Convey("When the roster is read twice", func() {
			first, err := roster.Roster(ctx)
			So(err, ShouldBeNil)
			_, err = roster.Roster(ctx)
			So(err, ShouldBeNil)

			Convey("Then excluded members are dropped and members are cached", func() {
				So(len(first), ShouldEqual, 2)
				So(first[0].Name, ShouldEqual, "Alice")
				So(first[0].ExternalID, ShouldEqual, "ou_alice")
				So(first[1].Name, ShouldEqual, "Bob")
				So(calls.Load(), ShouldEqual, 2)
			})

			Convey("Then the directory maps every member", func() {
				ids, err := roster.ExternalIDs(ctx)
				So(err, ShouldBeNil)
				So(ids["Helper"], ShouldEqual, "ou_bot")
				So(ids["Bob"], ShouldEqual, "ou_bob")
			})
		})
	})
}

func TestCreateTimeoff(t *testing.T) {
	Convey("Given a calendar endpoint", t, func() {
		api := newFakeOpenAPI(route{"/timeoff_events", reply(0, "ok", map[string]any{"timeoff_event_id": "to_1"})})
		defer api.srv.Close()

		start := time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)
		id, err := api.client().CreateTimeoff(context.Background(), leave.TimeoffRequest{
			UserID: "ou_bob", Start: start, End: start.Add(24 * time.Hour),
			Timezone: "Asia/Shanghai", Title: "请假(全天) / Time Off", Description: "请假: 看病",
		})

		Convey("Then the entry is created with second timestamps", func() {
			So(err, ShouldBeNil)
			So(id, ShouldEqual, "to_1")
			So(api.lastRawPath, ShouldContainSubstring, "user_id_type=open_id")
			So(api.lastBody["user_id"], ShouldEqual, "ou_bob")
			So(api.lastBody["start_time"], ShouldEqual, "1741046400")
			So(api.lastBody["title"], ShouldEqual, "请假(全天) / Time Off")
		})
	})
}

func TestPool(t *testing.T) {
	Convey("Given a client pool", t, func() {
		pool := lark.NewPool(lark.WithBaseURL("http://127.0.0.1:1"))

		Convey("Then the same credentials share a client", func() {
			a := pool.Get("cli_a", "s1")
			So(pool.Get("cli_a", "s1"), ShouldEqual, a)
			So(pool.Get("cli_a", "s2"), ShouldNotEqual, a)
			So(pool.Get("cli_b", "s1").AppID(), ShouldEqual, "cli_b")
		})
	})
}
