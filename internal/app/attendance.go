package service

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/larkgate/internal/adapters/lark"
	"github.com/okian/larkgate/internal/config"
	"github.com/okian/larkgate/internal/domain/attendance"
	"github.com/okian/larkgate/internal/domain/leave"
	"github.com/okian/larkgate/internal/domain/report"
	"github.com/okian/larkgate/internal/domain/types"
	"github.com/okian/larkgate/internal/scheduler"
	"github.com/okian/larkgate/pkg/logger"
)

// Period names accepted by range_summary jobs and chat commands.
const (
	PeriodWeek  = "week"
	PeriodMonth = "month"
)

// appContext is everything built around one platform app.
type appContext struct {
	client     *lark.Client
	roster     attendance.RosterSource
	directory  attendance.IDDirectory
	aggregator *attendance.Aggregator
	approvals  *leave.ApprovalHandler
}

// app returns the context for client, building it on first use.
func (s *Service) app(client *lark.Client) (*appContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.apps[client.AppID()]; ok && a.client == client {
		return a, nil
	}

	ac := s.cfg.Attendance
	configured, err := s.cfg.RosterEntries()
	if err != nil {
		return nil, err
	}
	records := client.Records(lark.TableRef{
		AppToken:  ac.AppToken,
		TableID:   ac.TableID,
		UserField: ac.UserField,
		DateField: ac.DateField,
	})

	a := &appContext{client: client}
	switch ac.RosterSource {
	case config.RosterChat:
		chat := lark.NewChatRoster(client, ac.ChatID, ac.Exclude, configured, ac.MemberTTL)
		a.roster, a.directory = chat, chat
	default:
		a.roster, a.directory = attendance.StaticRoster(configured), records
	}

	window := time.Duration(s.cfg.Leave.WindowDays) * 24 * time.Hour
	resolver := leave.NewResolver(client, s.cfg.Leave.ApprovalCodes,
		leave.WithWindow(window),
		leave.WithLocation(s.loc),
	)
	a.aggregator = attendance.NewAggregator(records,
		attendance.WithHolidayCalendar(s.holidays),
		attendance.WithLeaveResolver(resolver),
		attendance.WithIDDirectory(a.directory),
		attendance.WithLocation(s.loc),
	)
	a.approvals = leave.NewApprovalHandler(client, client, s.cfg.Leave.ApprovalCodes, s.loc)

	s.apps[client.AppID()] = a
	return a, nil
}

func (a *appContext) loadRoster(ctx context.Context) ([]attendance.RosterEntry, error) {
	roster, err := a.roster.Roster(ctx)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	if len(roster) == 0 {
		return nil, attendance.ErrEmptyRoster
	}
	return roster, nil
}

// checkDay runs the single-day check for date.
func (a *appContext) checkDay(ctx context.Context, date time.Time) (*attendance.Result, error) {
	roster, err := a.loadRoster(ctx)
	if err != nil {
		return nil, err
	}
	return a.aggregator.CheckDay(ctx, roster, date)
}

// summary aggregates [start, end] and the name to id map used for
// mentions. The roster and the directory are fetched concurrently.
func (a *appContext) summary(ctx context.Context, start, end time.Time) (*attendance.RangeSummary, map[string]string, error) {
	var (
		roster []attendance.RosterEntry
		ids    map[string]string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		roster, err = a.loadRoster(gctx)
		return err
	})
	g.Go(func() error {
		m, err := a.directory.ExternalIDs(gctx)
		if err != nil {
			// Mentions degrade to plain names.
			m = map[string]string{}
		}
		ids = m
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	for _, r := range roster {
		if r.ExternalID != "" {
			ids[r.Name] = r.ExternalID
		}
	}

	sum, err := a.aggregator.CheckRange(ctx, roster, start, end)
	if err != nil {
		return nil, nil, err
	}
	return sum, ids, nil
}

func (s *Service) today() time.Time {
	return types.StartOfDay(s.now().In(s.loc))
}

// periodRange returns the period containing today shifted by offset
// periods, clipped so that it never extends past today.
func (s *Service) periodRange(period string, offset int) (start, end time.Time, err error) {
	today := s.today()
	switch period {
	case PeriodWeek:
		start, end = attendance.WeekPeriod(today.AddDate(0, 0, 7*offset))
	case PeriodMonth:
		_, closing := attendance.MonthPeriodFor(today)
		start, end = attendance.MonthPeriod(closing.Year(), closing.Month()+time.Month(offset), s.loc)
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("unknown period %q", period)
	}
	if end.After(today) {
		end = today
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %s period has not started", attendance.ErrInvalidRange, period)
	}
	return start, end, nil
}

func (s *Service) reportOptions() report.Options {
	return report.Options{FormURL: s.cfg.Attendance.BitableURL, CC: s.cfg.Attendance.MentionUsers}
}

func (s *Service) staticApp() (*appContext, error) {
	if s.static == nil {
		return nil, ErrNoCredentials
	}
	return s.app(s.static)
}

func (s *Service) targetChat(job scheduler.Job) (string, error) {
	chat := job.Param("chat_id", s.cfg.Attendance.ChatID)
	if chat == "" {
		return "", ErrNoChat
	}
	return chat, nil
}

// runDayCheck sends the reminder card for today plus the offset days.
func (s *Service) runDayCheck(ctx context.Context, job scheduler.Job) error {
	offset, err := job.IntParam("offset", 0)
	if err != nil {
		return err
	}
	chat, err := s.targetChat(job)
	if err != nil {
		return err
	}
	a, err := s.staticApp()
	if err != nil {
		return err
	}

	date := s.today().AddDate(0, 0, offset)
	res, err := a.checkDay(ctx, date)
	if err != nil {
		return err
	}
	card := report.DailyCard(res, s.reportOptions())
	if card == nil {
		s.logger.Info(ctx, "no reminder needed",
			logger.String("date", date.Format(types.DateLayout)),
			logger.Bool("holiday", res.IsHoliday),
		)
		return nil
	}
	_, err = a.client.SendCard(ctx, chat, card)
	return err
}

// runRangeSummary sends the weekly or monthly summary card.
func (s *Service) runRangeSummary(ctx context.Context, job scheduler.Job) error {
	offset, err := job.IntParam("offset", 0)
	if err != nil {
		return err
	}
	period := job.Param("period", PeriodMonth)
	chat, err := s.targetChat(job)
	if err != nil {
		return err
	}
	a, err := s.staticApp()
	if err != nil {
		return err
	}

	start, end, err := s.periodRange(period, offset)
	if err != nil {
		return err
	}
	sum, ids, err := a.summary(ctx, start, end)
	if err != nil {
		return err
	}
	_, err = a.client.SendCard(ctx, chat, report.RangeCard(report.PeriodTitle(period), sum, ids, s.reportOptions()))
	return err
}

// runSendBatch posts a fixed text or card to a chat.
func (s *Service) runSendBatch(ctx context.Context, job scheduler.Job) error {
	chat, err := s.targetChat(job)
	if err != nil {
		return err
	}
	if s.static == nil {
		return ErrNoCredentials
	}
	if card := job.Param("card", ""); card != "" {
		_, err = s.static.SendCard(ctx, chat, card)
		return err
	}
	text := job.Param("text", "")
	if text == "" {
		return fmt.Errorf("%w: send_batch job %s has neither text nor card", scheduler.ErrInvalidJob, job.ID)
	}
	_, err = s.static.SendText(ctx, chat, text)
	return err
}
