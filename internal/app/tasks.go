package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/okian/larkgate/internal/adapters/lark"
	"github.com/okian/larkgate/internal/domain/model"
	"github.com/okian/larkgate/internal/domain/report"
	"github.com/okian/larkgate/internal/domain/types"
	"github.com/okian/larkgate/pkg/logger"
)

// Chat commands.
const (
	cmdCheck = "/check"
	cmdWeek  = "/week"
	cmdMonth = "/month"
)

const pendingText = "⏳ 正在统计，请稍候…"

const helpText = "收到 ✅\n可用命令：\n/check [YYYY-MM-DD] 查看某天工时填写情况\n/week 本周工时汇总\n/month 本月工时汇总"

// Handle runs one accepted webhook task. It implements the worker handler.
func (s *Service) Handle(ctx context.Context, t model.Task) error { //nolint:gocritic // hugeParam
	log := s.logger.Named("task")
	switch t.Kind {
	case model.TaskChatMessage:
		return s.handleMessage(ctx, t)
	case model.TaskApproval:
		return s.handleApproval(ctx, t)
	default:
		log.Debug(ctx, "event ignored",
			logger.String("event_id", t.EventID),
			logger.String("event_type", t.EventType),
		)
		return nil
	}
}

// clientFor picks the platform client: route credentials first, then the
// configured app.
func (s *Service) clientFor(t model.Task) (*lark.Client, error) { //nolint:gocritic // hugeParam
	if c := t.Credentials; c.AppID != "" && c.AppSecret != "" {
		return s.clients.Get(c.AppID, c.AppSecret), nil
	}
	if s.static != nil {
		return s.static, nil
	}
	return nil, ErrNoCredentials
}

func (s *Service) handleMessage(ctx context.Context, t model.Task) error { //nolint:gocritic // hugeParam
	var msg model.MessageEvent
	if err := json.Unmarshal(t.Envelope.Event, &msg); err != nil {
		return fmt.Errorf("%w: %w", ErrBadPayload, err)
	}
	if msg.Sender.SenderType == "app" {
		return nil
	}
	text := stripMentions(msg.Text())
	if text == "" || msg.Message.MessageID == "" {
		return nil
	}

	client, err := s.clientFor(t)
	if err != nil {
		return err
	}
	if period, ok := rangeCommand(text); ok {
		return s.answerRange(ctx, client, msg.Message.MessageID, period)
	}
	msgType, content, err := s.answer(ctx, client, text)
	if err != nil {
		s.logger.Warn(ctx, "command failed",
			logger.String("event_id", t.EventID),
			logger.String("command", text),
			logger.Error(err),
		)
		msgType, content = lark.MsgTypeText, lark.TextContent("处理失败："+err.Error())
	}
	_, err = client.Reply(ctx, msg.Message.MessageID, msgType, content)
	return err
}

// answer turns a chat command into a reply.
func (s *Service) answer(ctx context.Context, client *lark.Client, text string) (msgType, content string, err error) {
	fields := strings.Fields(text)
	switch strings.ToLower(fields[0]) {
	case cmdCheck:
		date := s.today()
		if len(fields) > 1 {
			if date, err = types.ParseDate(fields[1], s.loc); err != nil {
				return "", "", err
			}
		}
		a, err := s.app(client)
		if err != nil {
			return "", "", err
		}
		res, err := a.checkDay(ctx, date)
		if err != nil {
			return "", "", err
		}
		return lark.MsgTypeText, lark.TextContent(report.DayText(res)), nil

	default:
		return lark.MsgTypeText, lark.TextContent(helpText), nil
	}
}

// rangeCommand reports the summary period a /week or /month command asks for.
func rangeCommand(text string) (string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", false
	}
	switch strings.ToLower(fields[0]) {
	case cmdWeek:
		return PeriodWeek, true
	case cmdMonth:
		return PeriodMonth, true
	}
	return "", false
}

// answerRange replies with a placeholder card at once and swaps in the
// summary when it is ready. A failed swap falls back to a second reply.
func (s *Service) answerRange(ctx context.Context, client *lark.Client, messageID, period string) error {
	title := report.PeriodTitle(period)
	pending, err := lark.CardContent(report.NewCard(title, report.ColorBlue).Markdown(pendingText))
	if err != nil {
		return err
	}
	pendingID, err := client.Reply(ctx, messageID, lark.MsgTypeInteractive, pending)
	if err != nil {
		return err
	}

	card, err := s.rangeCard(ctx, client, period)
	if err != nil {
		s.logger.Warn(ctx, "command failed",
			logger.String("message_id", messageID),
			logger.String("period", period),
			logger.Error(err),
		)
		card = report.NewCard(title, report.ColorRed).Markdown("处理失败：" + err.Error())
	}
	if pendingID != "" {
		err = client.UpdateMessage(ctx, pendingID, card)
		if err == nil {
			return nil
		}
		s.logger.Warn(ctx, "placeholder update failed",
			logger.String("message_id", pendingID),
			logger.Error(err),
		)
	}
	content, err := lark.CardContent(card)
	if err != nil {
		return err
	}
	_, err = client.Reply(ctx, messageID, lark.MsgTypeInteractive, content)
	return err
}

func (s *Service) rangeCard(ctx context.Context, client *lark.Client, period string) (*report.Card, error) {
	start, end, err := s.periodRange(period, 0)
	if err != nil {
		return nil, err
	}
	a, err := s.app(client)
	if err != nil {
		return nil, err
	}
	sum, ids, err := a.summary(ctx, start, end)
	if err != nil {
		return nil, err
	}
	return report.RangeCard(report.PeriodTitle(period), sum, ids, s.reportOptions()), nil
}

// stripMentions drops @_user_N placeholders that group messages carry.
func stripMentions(text string) string {
	fields := strings.Fields(text)
	out := fields[:0]
	for _, f := range fields {
		if strings.HasPrefix(f, "@_user_") || strings.HasPrefix(f, "@_all") {
			continue
		}
		out = append(out, f)
	}
	return strings.Join(out, " ")
}

func (s *Service) handleApproval(ctx context.Context, t model.Task) error { //nolint:gocritic // hugeParam
	var ev model.ApprovalEvent
	if err := json.Unmarshal(t.Envelope.Event, &ev); err != nil {
		return fmt.Errorf("%w: %w", ErrBadPayload, err)
	}
	client, err := s.clientFor(t)
	if err != nil {
		return err
	}
	a, err := s.app(client)
	if err != nil {
		return err
	}
	eventType := t.EventType
	if ev.Type != "" {
		eventType = ev.Type
	}
	outcome, err := a.approvals.Handle(ctx, eventType, &ev)
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "approval handled",
		logger.String("event_id", t.EventID),
		logger.String("instance", ev.InstanceCode),
		logger.String("outcome", string(outcome)),
	)
	return nil
}
