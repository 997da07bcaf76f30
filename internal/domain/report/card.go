// Package report renders attendance results as interactive cards and plain
// text replies.
package report

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Header colours.
const (
	ColorGreen  = "green"
	ColorOrange = "orange"
	ColorRed    = "red"
	ColorBlue   = "blue"
)

type text struct {
	Tag     string `json:"tag"`
	Content string `json:"content"`
}

type element struct {
	Tag     string    `json:"tag"`
	Text    *text     `json:"text,omitempty"`
	Actions []element `json:"actions,omitempty"`
	URL     string    `json:"url,omitempty"`
	Type    string    `json:"type,omitempty"`
	Width   string    `json:"width,omitempty"`
}

type header struct {
	Template string `json:"template"`
	Title    text   `json:"title"`
}

type config struct {
	WideScreenMode bool `json:"wide_screen_mode"`
	EnableForward  bool `json:"enable_forward"`
}

// Card is an interactive message card.
type Card struct {
	Config   config    `json:"config"`
	Header   header    `json:"header"`
	Elements []element `json:"elements"`
}

// NewCard starts a card with a plain-text title.
func NewCard(title, color string) *Card {
	return &Card{
		Config: config{WideScreenMode: true, EnableForward: true},
		Header: header{Template: color, Title: text{Tag: "plain_text", Content: title}},
	}
}

// Markdown appends a lark_md block.
func (c *Card) Markdown(content string) *Card {
	c.Elements = append(c.Elements, element{Tag: "div", Text: &text{Tag: "lark_md", Content: content}})
	return c
}

// Divider appends a horizontal rule.
func (c *Card) Divider() *Card {
	c.Elements = append(c.Elements, element{Tag: "hr"})
	return c
}

// LinkButton appends a full-width button opening url.
func (c *Card) LinkButton(label, url string) *Card {
	c.Elements = append(c.Elements, element{
		Tag: "action",
		Actions: []element{{
			Tag:   "button",
			Text:  &text{Tag: "plain_text", Content: label},
			URL:   url,
			Type:  "primary",
			Width: "fill",
		}},
	})
	return c
}

// JSON encodes the card as IM message content. Mention tags are kept
// unescaped.
func (c *Card) JSON() (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(c); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
