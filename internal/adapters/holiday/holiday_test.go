package holiday_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/larkgate/internal/adapters/holiday"
	"github.com/okian/larkgate/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestCalendar(t *testing.T) {
	Convey("Given a holiday API", t, func() {
		ctx := context.Background()
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.Header().Set("Content-Type", "application/json")
			switch r.URL.Path {
			case "/api/holiday/info/2025-10-01":
				_, _ = w.Write([]byte(`{"code":0,"type":{"type":2,"name":"国庆节","week":3}}`))
			case "/api/holiday/info/2025-09-28":
				// Sunday make-up workday.
				_, _ = w.Write([]byte(`{"code":0,"type":{"type":3,"name":"国庆节前补班","week":7}}`))
			case "/api/holiday/info/2025-10-13":
				_, _ = w.Write([]byte(`{"code":0,"type":{"type":0,"name":"周一","week":1}}`))
			case "/api/holiday/info/2025-10-18":
				_, _ = w.Write([]byte(`{"code":-1}`))
			default:
				w.WriteHeader(http.StatusBadGateway)
			}
		}))
		defer srv.Close()

		cal := holiday.New(holiday.WithBaseURL(srv.URL), holiday.WithTimeout(time.Second), holiday.WithCacheSize(8))
		day := func(m time.Month, d int) time.Time { return time.Date(2025, m, d, 0, 0, 0, 0, time.UTC) }

		Convey("When the API reports a public holiday", func() {
			So(cal.IsHoliday(ctx, day(time.October, 1)), ShouldBeTrue)

			Convey("Then the answer is cached", func() {
				So(cal.IsHoliday(ctx, day(time.October, 1)), ShouldBeTrue)
				So(hits.Load(), ShouldEqual, 1)
			})
		})

		Convey("When a weekend is a make-up workday", func() {
			So(cal.IsHoliday(ctx, day(time.September, 28)), ShouldBeFalse)
		})

		Convey("When the API reports a workday", func() {
			So(cal.IsHoliday(ctx, day(time.October, 13)), ShouldBeFalse)
		})

		Convey("When the API answers with an error code on a Saturday", func() {
			Convey("Then the weekend fallback applies and nothing is cached", func() {
				So(cal.IsHoliday(ctx, day(time.October, 18)), ShouldBeTrue)
				So(cal.IsHoliday(ctx, day(time.October, 18)), ShouldBeTrue)
				So(hits.Load(), ShouldEqual, 2)
			})
		})

		Convey("When the API fails on a weekday", func() {
			So(cal.IsHoliday(ctx, day(time.October, 15)), ShouldBeFalse)
		})
	})
}
