package report

import (
	"fmt"
	"strings"

	"github.com/okian/larkgate/internal/domain/attendance"
	"github.com/okian/larkgate/internal/domain/types"
)

var weekdayNames = [...]string{"周日", "周一", "周二", "周三", "周四", "周五", "周六"}

// Options tune card rendering.
type Options struct {
	// FormURL is linked from a button when set.
	FormURL string
	// CC lists user ids mentioned at the bottom of summaries.
	CC []string
}

func mention(id, name string) string {
	if id == "" {
		return name
	}
	return fmt.Sprintf("<at id=%s></at>", id)
}

// DailyCard renders a single-day result as a reminder. It returns nil when
// there is nothing to remind about: a holiday or nobody missing.
func DailyCard(res *attendance.Result, opts Options) *Card {
	if res == nil || res.IsHoliday || res.AllFilled() {
		return nil
	}
	filled := len(res.Filled)
	total := filled + len(res.NotFilled)

	card := NewCard("📮 工时速递｜"+res.Date.Format(types.DateLayout), ColorOrange).
		Markdown(fmt.Sprintf("** 请以下同学尽快填写工时（已填写%d/%d人）：**", filled, total))

	mentions := make([]string, 0, len(res.NotFilled))
	for _, m := range res.NotFilled {
		mentions = append(mentions, mention(m.ExternalID, m.Name))
	}
	card.Markdown(strings.Join(mentions, "  "))

	if extra := extraInfo(res); extra != "" {
		card.Divider().Markdown(extra)
	}
	if opts.FormURL != "" {
		card.Divider().LinkButton("立即填写工时", opts.FormURL)
	}
	return card
}

func extraInfo(res *attendance.Result) string {
	var parts []string
	if len(res.ExceptionDay) > 0 {
		parts = append(parts, "例外: "+strings.Join(res.ExceptionDay, "、"))
	}
	if len(res.OnLeave) > 0 {
		parts = append(parts, "请假: "+strings.Join(res.OnLeave, "、"))
	}
	return strings.Join(parts, " | ")
}

// RateColor picks the header colour for a perfect-attendance rate.
func RateColor(rate float64) string {
	switch {
	case rate >= 0.8:
		return ColorGreen
	case rate >= 0.5:
		return ColorOrange
	default:
		return ColorRed
	}
}

// RangeCard renders a range summary. title prefixes the date span, for
// example "📅 工时月报" or "工时周报". ids maps names to user ids for mentions.
func RangeCard(title string, sum *attendance.RangeSummary, ids map[string]string, opts Options) *Card {
	card := NewCard(fmt.Sprintf("%s｜%s ~ %s", title,
		sum.Start.Format(types.DateLayout), sum.End.Format(types.DateLayout)), RateColor(sum.PerfectRate))

	card.Markdown(fmt.Sprintf("**工作日: %d 天**\n**总人数: %d 人**", sum.TotalWorkDays, len(sum.Tallies))).Divider()

	if len(sum.Perfect) > 0 {
		names := make([]string, 0, len(sum.Perfect))
		for _, t := range sum.Perfect {
			names = append(names, t.Name)
		}
		card.Markdown(fmt.Sprintf("**全勤人员 (%d人)**", len(sum.Perfect))).
			Markdown(strings.Join(names, "  ")).Divider()
	}
	if len(sum.Partial) > 0 {
		parts := make([]string, 0, len(sum.Partial))
		for _, t := range sum.Partial {
			parts = append(parts, fmt.Sprintf("%s(%d/%d)", t.Name, t.DaysFilled, t.TotalWorkDays))
		}
		card.Markdown(fmt.Sprintf("**部分填写人员 (%d人)**", len(sum.Partial))).
			Markdown(strings.Join(parts, "  ")).Divider()
	}
	if len(sum.Never) > 0 {
		parts := make([]string, 0, len(sum.Never))
		for _, t := range sum.Never {
			parts = append(parts, mention(ids[t.Name], t.Name))
		}
		card.Markdown(fmt.Sprintf("**完全未填写人员 (%d人)**", len(sum.Never))).
			Markdown(strings.Join(parts, "  ")).Divider()
	}

	card.Markdown("**每日详情**")
	for _, day := range sum.Days {
		card.Markdown(dayLine(day))
	}

	if len(opts.CC) > 0 {
		cc := make([]string, 0, len(opts.CC))
		for _, id := range opts.CC {
			cc = append(cc, mention(id, id))
		}
		card.Divider().Markdown("抄送: " + strings.Join(cc, " "))
	}
	if opts.FormURL != "" {
		card.Divider().LinkButton("查看详细工时", opts.FormURL)
	}
	return card
}

func dayLine(res *attendance.Result) string {
	prefix := fmt.Sprintf("%s %s", weekdayNames[res.Date.Weekday()], res.Date.Format(types.DateLayout))
	if res.IsHoliday {
		return prefix + " - 节假日"
	}
	filled := len(res.Filled)
	return fmt.Sprintf("%s - %d/%d人", prefix, filled, filled+len(res.NotFilled))
}

// DayText is the plain-text answer to a chat check command.
func DayText(res *attendance.Result) string {
	date := res.Date.Format(types.DateLayout)
	switch {
	case res.IsHoliday:
		return fmt.Sprintf("%s 是节假日，无需填写工时。", date)
	case res.AllFilled():
		return fmt.Sprintf("%s 所有同学都已填写工时（%d人）。", date, len(res.Filled))
	}
	names := make([]string, 0, len(res.NotFilled))
	for _, m := range res.NotFilled {
		names = append(names, m.Name)
	}
	filled := len(res.Filled)
	msg := fmt.Sprintf("%s 已填写 %d/%d 人，未填写：%s", date, filled, filled+len(names), strings.Join(names, "、"))
	if extra := extraInfo(res); extra != "" {
		msg += "\n" + extra
	}
	return msg
}

// Period titles.
const (
	TitleMonth = "📅 工时月报"
	TitleWeek  = "📅 工时周报"
)

// PeriodTitle returns the card title for a period name.
func PeriodTitle(period string) string {
	if period == "week" {
		return TitleWeek
	}
	return TitleMonth
}
