package report_test

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/larkgate/internal/domain/attendance"
	"github.com/okian/larkgate/internal/domain/report"
)

func TestDailyCard(t *testing.T) {
	Convey("Given a day with missing people", t, func() {
		res := &attendance.Result{
			Date:      time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC),
			Filled:    []string{"Alice"},
			NotFilled: []attendance.MissingPerson{{Name: "Bob", ExternalID: "ou_bob"}, {Name: "Carol"}},
			OnLeave:   []string{"Dan"},
		}

		Convey("When the reminder card is rendered", func() {
			card := report.DailyCard(res, report.Options{FormURL: "https://example.feishu.cn/base/app"})
			body, err := card.JSON()

			Convey("Then it mentions people with ids and names the rest", func() {
				So(err, ShouldBeNil)
				So(card.Header.Template, ShouldEqual, report.ColorOrange)
				So(body, ShouldContainSubstring, "📮 工时速递｜2025-03-05")
				So(body, ShouldContainSubstring, "已填写1/3人")
				So(body, ShouldContainSubstring, "<at id=ou_bob></at>  Carol")
				So(body, ShouldContainSubstring, "请假: Dan")
				So(body, ShouldContainSubstring, "https://example.feishu.cn/base/app")
			})
		})

		Convey("When everybody filled or the day is a holiday", func() {
			So(report.DailyCard(&attendance.Result{Filled: []string{"Alice"}}, report.Options{}), ShouldBeNil)
			So(report.DailyCard(&attendance.Result{IsHoliday: true}, report.Options{}), ShouldBeNil)
		})

		Convey("When a plain-text answer is rendered", func() {
			text := report.DayText(res)
			So(text, ShouldStartWith, "2025-03-05 已填写 1/3 人")
			So(text, ShouldContainSubstring, "Bob、Carol")
		})
	})
}

func TestRangeCard(t *testing.T) {
	Convey("Given a range summary", t, func() {
		start := time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)
		sum := &attendance.RangeSummary{
			Start: start, End: start.AddDate(0, 0, 1), TotalWorkDays: 1,
			Days: []*attendance.Result{
				{Date: start, Filled: []string{"Alice"}, NotFilled: []attendance.MissingPerson{{Name: "Bob"}}},
				{Date: start.AddDate(0, 0, 1), IsHoliday: true},
			},
			Tallies:     []attendance.PersonTally{{Name: "Alice", DaysFilled: 1, TotalWorkDays: 1}, {Name: "Bob", TotalWorkDays: 1}},
			Perfect:     []attendance.PersonTally{{Name: "Alice", DaysFilled: 1, TotalWorkDays: 1}},
			Never:       []attendance.PersonTally{{Name: "Bob", TotalWorkDays: 1}},
			PerfectRate: 0.5,
		}

		Convey("When it is rendered", func() {
			card := report.RangeCard(report.TitleMonth, sum, map[string]string{"Bob": "ou_bob"}, report.Options{CC: []string{"ou_boss"}})
			body, err := card.JSON()

			Convey("Then sections and daily details are present", func() {
				So(err, ShouldBeNil)
				So(card.Header.Template, ShouldEqual, report.ColorOrange)
				So(card.Header.Title.Content, ShouldEqual, "📅 工时月报｜2025-02-28 ~ 2025-03-01")
				So(body, ShouldContainSubstring, "全勤人员 (1人)")
				So(body, ShouldContainSubstring, "完全未填写人员 (1人)")
				So(body, ShouldContainSubstring, "周五 2025-02-28 - 1/2人")
				So(body, ShouldContainSubstring, "周六 2025-03-01 - 节假日")
				So(body, ShouldContainSubstring, "id=ou_boss")
			})
		})
	})
}

func TestRateColor(t *testing.T) {
	Convey("Given perfect-attendance rates", t, func() {
		So(report.RateColor(1), ShouldEqual, report.ColorGreen)
		So(report.RateColor(0.8), ShouldEqual, report.ColorGreen)
		So(report.RateColor(0.79), ShouldEqual, report.ColorOrange)
		So(report.RateColor(0.5), ShouldEqual, report.ColorOrange)
		So(report.RateColor(0.1), ShouldEqual, report.ColorRed)
		So(report.PeriodTitle("week"), ShouldEqual, report.TitleWeek)
		So(report.PeriodTitle("month"), ShouldEqual, report.TitleMonth)
	})
}
