package replay_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/larkgate/internal/adapters/http/api"
	"github.com/okian/larkgate/internal/domain/dedupe"
	"github.com/okian/larkgate/internal/domain/model"
	"github.com/okian/larkgate/internal/replay"
	"github.com/okian/larkgate/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type gateDeps struct {
	dedupe.Deduper
	rejectFirst atomic.Int32

	mu     sync.Mutex
	queued map[string]int
}

func (g *gateDeps) Submit(_ context.Context, t model.Task) error { //nolint:gocritic // hugeParam
	if g.rejectFirst.Add(-1) >= 0 {
		return errors.New("full")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queued[t.EventID]++
	return nil
}

func (g *gateDeps) DedupeTTL() time.Duration { return time.Minute }
func (g *gateDeps) WebhookNamespace() string { return "replay" }

func newGate(reject int32) (*httptest.Server, *gateDeps) {
	deps := &gateDeps{Deduper: dedupe.NewInMemoryDeduper(), queued: map[string]int{}}
	deps.rejectFirst.Store(reject)
	mux := http.NewServeMux()
	api.NewServer(api.ServiceInfo{Name: "gate"}, deps, nil, nil).Register(context.Background(), mux)
	return httptest.NewServer(mux), deps
}

func config(url string) *replay.Config {
	return &replay.Config{
		BaseURL:   url,
		Route:     "/feishu/webhook",
		NumEvents: 20,
		DupEvery:  4,
		Anonymous: 2,
		Workers:   4,
		Retries:   3,
		Timeout:   5 * time.Second,
	}
}

func TestGenerate(t *testing.T) {
	Convey("Given a replay plan", t, func() {
		plan := replay.Generate(config(""))

		Convey("Then it holds a handshake, events, resends and anonymous events", func() {
			So(plan, ShouldHaveLength, 1+20+5+2)
			So(plan[0].Expect, ShouldEqual, replay.ExpectChallenge)
			So(plan[0].Body["challenge"], ShouldEqual, plan[0].Challenge)

			ids := map[string]int{}
			for _, d := range plan {
				if d.EventID != "" {
					ids[d.EventID]++
				}
			}
			So(ids, ShouldHaveLength, 20)
			So(plan[21].Label, ShouldEqual, "duplicate")
			So(ids[plan[21].EventID], ShouldEqual, 2)
			So(plan[len(plan)-1].Label, ShouldEqual, "anonymous")
		})
	})
}

func TestRunAgainstGate(t *testing.T) {
	Convey("Given a gate over an in-memory dedupe store", t, func() {
		srv, deps := newGate(0)
		defer srv.Close()

		stats, results, err := replay.Run(context.Background(), config(srv.URL))

		Convey("Then every reply honours the contract and resends are not queued twice", func() {
			So(err, ShouldBeNil)
			So(results, ShouldHaveLength, 28)
			So(stats.Sent, ShouldEqual, 28)
			So(stats.OK, ShouldEqual, 28)
			So(stats.Violations, ShouldEqual, 0)

			deps.mu.Lock()
			defer deps.mu.Unlock()
			for id, n := range deps.queued {
				So(n, ShouldEqual, 1)
				So(id, ShouldNotBeEmpty)
			}
		})
	})

	Convey("Given a gate that is briefly saturated", t, func() {
		srv, _ := newGate(2)
		defer srv.Close()

		cfg := config(srv.URL)
		cfg.Workers = 1
		stats, _, err := replay.Run(context.Background(), cfg)

		Convey("Then 503 replies are retried until acknowledged", func() {
			So(err, ShouldBeNil)
			So(stats.Retried, ShouldBeGreaterThan, 0)
			So(stats.Failed, ShouldEqual, 0)
		})
	})

	Convey("Given a server that breaks the contract", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" {
				w.WriteHeader(http.StatusOK)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"status":"accepted"}`))
		}))
		defer srv.Close()

		stats, _, err := replay.Run(context.Background(), config(srv.URL))

		Convey("Then the run reports violations", func() {
			So(errors.Is(err, replay.ErrContractViolated), ShouldBeTrue)
			So(stats.Violations, ShouldEqual, 28)
		})
	})

	Convey("Given nothing listening", t, func() {
		cfg := config("http://127.0.0.1:1")
		cfg.Timeout = time.Second
		_, _, err := replay.Run(context.Background(), cfg)
		So(errors.Is(err, replay.ErrUnhealthy), ShouldBeTrue)
	})
}
