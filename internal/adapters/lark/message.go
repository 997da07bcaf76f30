package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
)

// Message types accepted by the IM API.
const (
	MsgTypeText        = "text"
	MsgTypeInteractive = "interactive"
)

// TextContent encodes plain text as IM message content.
func TextContent(text string) string {
	b, _ := json.Marshal(map[string]string{"text": text})
	return string(b)
}

// CardContent encodes an interactive card as IM message content.
func CardContent(card any) (string, error) {
	if s, ok := card.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(card)
	if err != nil {
		return "", fmt.Errorf("encode card: %w", err)
	}
	return string(b), nil
}

// SendText posts a text message to a chat and returns its message id.
func (c *Client) SendText(ctx context.Context, chatID, text string) (string, error) {
	return c.send(ctx, chatID, MsgTypeText, TextContent(text))
}

// SendCard posts an interactive card to a chat and returns its message id.
func (c *Client) SendCard(ctx context.Context, chatID string, card any) (string, error) {
	content, err := CardContent(card)
	if err != nil {
		return "", err
	}
	return c.send(ctx, chatID, MsgTypeInteractive, content)
}

func (c *Client) send(ctx context.Context, chatID, msgType, content string) (id string, err error) {
	started := time.Now()
	defer func() { c.observe("im.message.create", started, err) }()

	auth, err := c.auth(ctx)
	if err != nil {
		return "", err
	}
	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType("chat_id").
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(chatID).
			MsgType(msgType).
			Content(content).
			Build()).
		Build()

	resp, err := c.raw.Im.Message.Create(ctx, req, auth)
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	if !resp.Success() {
		return "", &APIError{Code: resp.Code, Msg: resp.Msg}
	}
	if resp.Data != nil {
		id = str(resp.Data.MessageId)
	}
	return id, nil
}

// Reply answers a message in its thread and returns the new message id.
func (c *Client) Reply(ctx context.Context, messageID, msgType, content string) (id string, err error) {
	started := time.Now()
	defer func() { c.observe("im.message.reply", started, err) }()

	auth, err := c.auth(ctx)
	if err != nil {
		return "", err
	}
	req := larkim.NewReplyMessageReqBuilder().
		MessageId(messageID).
		Body(larkim.NewReplyMessageReqBodyBuilder().
			MsgType(msgType).
			Content(content).
			Build()).
		Build()

	resp, err := c.raw.Im.Message.Reply(ctx, req, auth)
	if err != nil {
		return "", fmt.Errorf("reply message: %w", err)
	}
	if !resp.Success() {
		return "", &APIError{Code: resp.Code, Msg: resp.Msg}
	}
	if resp.Data != nil {
		id = str(resp.Data.MessageId)
	}
	return id, nil
}

// UpdateMessage replaces the content of a card previously sent by the app.
func (c *Client) UpdateMessage(ctx context.Context, messageID string, card any) (err error) {
	started := time.Now()
	defer func() { c.observe("im.message.patch", started, err) }()

	content, err := CardContent(card)
	if err != nil {
		return err
	}
	auth, err := c.auth(ctx)
	if err != nil {
		return err
	}
	req := larkim.NewPatchMessageReqBuilder().
		MessageId(messageID).
		Body(larkim.NewPatchMessageReqBodyBuilder().
			Content(content).
			Build()).
		Build()

	resp, err := c.raw.Im.Message.Patch(ctx, req, auth)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	if !resp.Success() {
		return &APIError{Code: resp.Code, Msg: resp.Msg}
	}
	return nil
}
