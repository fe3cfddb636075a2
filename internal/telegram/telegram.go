// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package telegram is a small client of the Telegram Bot API.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"

	"go.astrophena.name/scriptbot/internal/request"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const tgAPI = "https://api.telegram.org"

// Limits of the Bot API.
const (
	MaxMessageLength    = 4096 // characters per message
	MaxCallbackDataSize = 64   // bytes of callback data
)

// Config configures a [Client].
type Config struct {
	Token      string
	HTTPClient *http.Client
	// Scrubber masks secrets in errors. By default, it masks the token.
	Scrubber *strings.Replacer
}

// Client makes Bot API requests on behalf of a bot.
type Client struct {
	token    string
	httpc    *http.Client
	scrubber *strings.Replacer
}

// New returns a new [Client].
func New(cfg Config) *Client {
	c := &Client{
		token:    cfg.Token,
		httpc:    cfg.HTTPClient,
		scrubber: cfg.Scrubber,
	}
	if c.httpc == nil {
		c.httpc = request.DefaultClient
	}
	if c.scrubber == nil {
		c.scrubber = strings.NewReplacer(cfg.Token, "[EXPUNGED]")
	}
	return c
}

// https://core.telegram.org/bots/api#sendmessage
type message struct {
	ChatID             int64                          `json:"chat_id"`
	Text               string                         `json:"text"`
	Entities           []tgbotapi.MessageEntity       `json:"entities,omitempty"`
	ReplyMarkup        *tgbotapi.InlineKeyboardMarkup `json:"reply_markup,omitempty"`
	LinkPreviewOptions *linkPreviewOptions            `json:"link_preview_options,omitempty"`
}

// https://core.telegram.org/bots/api#linkpreviewoptions
type linkPreviewOptions struct {
	IsDisabled bool `json:"is_disabled"`
}

// SendText sends text to the chat. If bold is not empty, it is sent in bold
// on a separate paragraph before text. Text longer than
// [MaxMessageLength] is sent in several messages.
//
// Text is sent as is, without Markdown or HTML parsing.
func (c *Client) SendText(ctx context.Context, chatID int64, bold, text string) error {
	full := text
	if bold != "" {
		full = bold + "\n\n" + text
	}
	for i, chunk := range splitMessage(full) {
		msg := &message{
			ChatID:             chatID,
			Text:               chunk,
			LinkPreviewOptions: &linkPreviewOptions{IsDisabled: true},
		}
		if i == 0 && bold != "" {
			msg.Entities = []tgbotapi.MessageEntity{{
				Type:   "bold",
				Offset: 0,
				Length: min(utf16Len(strings.TrimSpace(bold)), utf16Len(chunk)),
			}}
		}
		if _, err := call[json.RawMessage](ctx, c, "sendMessage", msg); err != nil {
			return err
		}
	}
	return nil
}

// SendKeyboard sends text with an inline keyboard attached.
func (c *Client) SendKeyboard(ctx context.Context, chatID int64, text string, kb tgbotapi.InlineKeyboardMarkup) error {
	msg := &message{ChatID: chatID, Text: text}
	if len(kb.InlineKeyboard) > 0 {
		msg.ReplyMarkup = &kb
	}
	_, err := call[json.RawMessage](ctx, c, "sendMessage", msg)
	return err
}

// SendPhoto sends a photo by its URL or file ID.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, photo string) error {
	_, err := call[json.RawMessage](ctx, c, "sendPhoto", map[string]any{
		"chat_id": chatID,
		"photo":   photo,
	})
	return err
}

// AnswerCallback acknowledges a callback query, optionally showing text.
func (c *Client) AnswerCallback(ctx context.Context, id, text string) error {
	args := map[string]any{"callback_query_id": id}
	if text != "" {
		args["text"] = text
	}
	_, err := call[json.RawMessage](ctx, c, "answerCallbackQuery", args)
	return err
}

// GetFile returns information about a file and prepares it for download.
func (c *Client) GetFile(ctx context.Context, fileID string) (tgbotapi.File, error) {
	return call[tgbotapi.File](ctx, c, "getFile", map[string]any{"file_id": fileID})
}

// FileURL returns a download link for the file. The link stays valid for at
// least an hour.
func (c *Client) FileURL(ctx context.Context, fileID string) (string, error) {
	f, err := c.GetFile(ctx, fileID)
	if err != nil {
		return "", err
	}
	if f.FilePath == "" {
		return "", fmt.Errorf("telegram: file %q has no path", fileID)
	}
	return f.Link(c.token), nil
}

// SetWebhook makes Telegram deliver updates to url, passing secret in the
// X-Telegram-Bot-Api-Secret-Token header.
func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	args := map[string]any{
		"url":             url,
		"allowed_updates": []string{"message", "callback_query", "channel_post"},
	}
	if secret != "" {
		args["secret_token"] = secret
	}
	_, err := call[bool](ctx, c, "setWebhook", args)
	return err
}

// GetMe returns the bot's user.
func (c *Client) GetMe(ctx context.Context) (tgbotapi.User, error) {
	return call[tgbotapi.User](ctx, c, "getMe", nil)
}

func call[T any](ctx context.Context, c *Client, method string, args any) (T, error) {
	var zero T
	params := request.Params{
		Method:     http.MethodPost,
		URL:        tgAPI + "/bot" + c.token + "/" + method,
		Body:       args,
		HTTPClient: c.httpc,
		Scrubber:   c.scrubber,
	}
	if args == nil {
		params.Method = http.MethodGet
	}
	resp, err := request.Make[tgbotapi.APIResponse](ctx, params)
	if err != nil {
		return zero, fmt.Errorf("telegram: %s: %w", method, err)
	}
	if !resp.Ok {
		return zero, fmt.Errorf("telegram: %s: %d %s", method, resp.ErrorCode, resp.Description)
	}
	var v T
	if err := json.Unmarshal(resp.Result, &v); err != nil {
		return zero, fmt.Errorf("telegram: %s: decoding result: %w", method, err)
	}
	return v, nil
}

// ErrCallbackDataTooLong is returned by [Button] when data exceeds
// [MaxCallbackDataSize].
var ErrCallbackDataTooLong = errors.New("telegram: callback data too long")

// ErrEmptyButtonText is returned by [Button] when text is blank. The Bot API
// rejects the whole keyboard if any of its buttons has no text.
var ErrEmptyButtonText = errors.New("telegram: button text is empty")

// Button returns an inline keyboard button that sends data back in a callback
// query.
func Button(text, data string) (tgbotapi.InlineKeyboardButton, error) {
	if strings.TrimSpace(text) == "" {
		return tgbotapi.InlineKeyboardButton{}, fmt.Errorf("%w (data %q)", ErrEmptyButtonText, data)
	}
	if len(data) > MaxCallbackDataSize {
		return tgbotapi.InlineKeyboardButton{}, fmt.Errorf("%w: %q is %d bytes", ErrCallbackDataTooLong, data, len(data))
	}
	return tgbotapi.NewInlineKeyboardButtonData(text, data), nil
}

// Keyboard lays buttons out in rows of perRow buttons.
func Keyboard(buttons []tgbotapi.InlineKeyboardButton, perRow int) tgbotapi.InlineKeyboardMarkup {
	if perRow < 1 {
		perRow = 1
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, (len(buttons)+perRow-1)/perRow)
	for i := 0; i < len(buttons); i += perRow {
		rows = append(rows, buttons[i:min(i+perRow, len(buttons))])
	}
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func utf16Len(s string) int { return len(utf16.Encode([]rune(s))) }

// splitMessage splits text into chunks of at most MaxMessageLength
// characters, preferring newlines and then other whitespace as split points.
func splitMessage(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= MaxMessageLength {
		return []string{text}
	}

	var chunks []string
	for text != "" {
		if utf8.RuneCountInString(text) <= MaxMessageLength {
			chunks = append(chunks, text)
			break
		}

		var (
			lastNewline    = -1
			lastWhitespace = -1
			byteCap        = len(text)
			runeCount      int
		)

		for i, r := range text {
			if runeCount == MaxMessageLength {
				byteCap = i
				break
			}
			runeCount++

			if r == '\n' {
				lastNewline = i
				continue
			}
			if unicode.IsSpace(r) {
				lastWhitespace = i
			}
		}

		splitAt := byteCap
		switch {
		case lastNewline > 0:
			splitAt = lastNewline
		case lastWhitespace > 0:
			splitAt = lastWhitespace
		}

		chunk := strings.TrimSpace(text[:splitAt])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		text = strings.TrimSpace(text[splitAt:])
	}

	return chunks
}
