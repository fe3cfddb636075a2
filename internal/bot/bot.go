// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package bot handles Telegram updates: it shows the script menu, answers
// searches and stores images posted to the channel.
package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.astrophena.name/scriptbot/internal/catalog"
	"go.astrophena.name/scriptbot/internal/ingest"
	"go.astrophena.name/scriptbot/internal/logger"
	"go.astrophena.name/scriptbot/internal/telegram"
	"go.astrophena.name/scriptbot/internal/web"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
)

// Replies.
const (
	msgChooseCategory = "📋 请选择分类："
	msgChooseScript   = "📁 分类【%s】，请选择："
	msgScriptHeader   = "📋 话术如下："
	msgNoContent      = "（无话术）"
	msgNotFound       = "❌ 未找到话术"
	msgRefreshed      = "♻️ 已刷新缓存，请重新点击菜单"
	msgUnavailable    = "⚠️ 暂时无法读取话术表，请稍后再试"
	msgSearchUsage    = "🔍 用法：/search 关键词"
)

// Callback data prefixes.
const (
	categoryPrefix = "cat_"
	menuPrefix     = "menu_"
)

// buttonsPerRow is the width of inline keyboards.
const buttonsPerRow = 2

// Transport sends replies to Telegram. It is implemented by
// [telegram.Client].
type Transport interface {
	SendText(ctx context.Context, chatID int64, bold, text string) error
	SendKeyboard(ctx context.Context, chatID int64, text string, kb tgbotapi.InlineKeyboardMarkup) error
	SendPhoto(ctx context.Context, chatID int64, photo string) error
	AnswerCallback(ctx context.Context, id, text string) error
}

// Opts configure a [Bot].
type Opts struct {
	// Catalog serves menus and scripts.
	Catalog *catalog.Catalog
	// Ingester stores channel images. If nil, channel posts are ignored.
	Ingester *ingest.Ingester
	// Transport sends replies.
	Transport Transport
	// Secret, if set, must be passed by Telegram in the
	// X-Telegram-Bot-Api-Secret-Token header.
	Secret string
}

// Bot routes Telegram updates.
type Bot struct {
	cat    *catalog.Catalog
	ing    *ingest.Ingester
	tg     Transport
	secret string
}

// New returns a new [Bot].
func New(opts Opts) *Bot {
	return &Bot{
		cat:    opts.Catalog,
		ing:    opts.Ingester,
		tg:     opts.Transport,
		secret: opts.Secret,
	}
}

var okResponse = map[string]string{
	"status": "ok",
}

// HandleWebhook handles a Telegram webhook request carrying one update.
//
// It responds with 404 if the secret doesn't match and with 500 if the update
// can't be decoded. Failures to handle a decoded update are logged and
// answered with 200, so Telegram doesn't redeliver it.
func (b *Bot) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if b.secret != "" && r.Header.Get("X-Telegram-Bot-Api-Secret-Token") != b.secret {
		web.RespondJSONError(w, r, web.ErrNotFound)
		return
	}

	var upd tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		web.RespondJSONError(w, r, fmt.Errorf("decoding update: %w", err))
		return
	}

	log := logger.Get(r.Context()).With("request_id", uuid.NewString(), "update_id", upd.UpdateID)
	ctx := logger.Put(r.Context(), log)

	if err := b.handle(ctx, &upd); err != nil {
		log.Error("failed to handle update", "err", err)
	}
	web.RespondJSON(w, okResponse)
}

func (b *Bot) handle(ctx context.Context, upd *tgbotapi.Update) error {
	switch {
	case upd.Message != nil:
		return b.handleMessage(ctx, upd.Message)
	case upd.CallbackQuery != nil:
		return b.handleCallback(ctx, upd.CallbackQuery)
	case upd.ChannelPost != nil:
		b.handleChannelPost(ctx, upd.ChannelPost)
	}
	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.Chat == nil {
		return nil
	}
	chatID := msg.Chat.ID

	if msg.IsCommand() {
		switch msg.Command() {
		case "start", "home":
			return b.sendCategories(ctx, chatID)
		case "tc", "refresh":
			b.cat.Invalidate()
			logger.Get(ctx).Info("cache invalidated", "chat_id", chatID)
			return b.tg.SendText(ctx, chatID, "", msgRefreshed)
		case "search":
			return b.search(ctx, chatID, msg.CommandArguments())
		}
		return nil
	}

	if strings.TrimSpace(msg.Text) == "" {
		return nil
	}
	return b.search(ctx, chatID, msg.Text)
}

func (b *Bot) sendCategories(ctx context.Context, chatID int64) error {
	cats, err := b.cat.Categories(ctx)
	if err != nil {
		return b.unavailable(ctx, chatID, err)
	}
	buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(cats))
	for _, c := range cats {
		btn, err := telegram.Button(c, categoryPrefix+c)
		if err != nil {
			logger.Get(ctx).Warn("skipping category", "category", c, "err", err)
			continue
		}
		buttons = append(buttons, btn)
	}
	return b.tg.SendKeyboard(ctx, chatID, msgChooseCategory, telegram.Keyboard(buttons, buttonsPerRow))
}

func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	var errs []error
	if q.Message != nil && q.Message.Chat != nil {
		chatID := q.Message.Chat.ID
		sess := b.cat.Session(strconv.FormatInt(chatID, 10))

		var err error
		switch data := q.Data; {
		case strings.HasPrefix(data, categoryPrefix):
			err = b.sendMenu(ctx, chatID, sess, strings.TrimPrefix(data, categoryPrefix))
		case strings.HasPrefix(data, menuPrefix):
			err = b.sendScript(ctx, chatID, sess, strings.TrimPrefix(data, menuPrefix))
		default:
			logger.Get(ctx).Warn("unknown callback data", "data", data)
		}
		errs = append(errs, err)
	}
	errs = append(errs, b.tg.AnswerCallback(ctx, q.ID, ""))
	return errors.Join(errs...)
}

func (b *Bot) sendMenu(ctx context.Context, chatID int64, sess *catalog.Session, category string) error {
	entries, err := sess.Menu(ctx, category)
	if errors.Is(err, catalog.ErrNotFound) {
		return b.tg.SendText(ctx, chatID, "", msgNotFound)
	}
	if err != nil {
		return b.unavailable(ctx, chatID, err)
	}
	buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(entries))
	for _, e := range entries {
		btn, err := telegram.Button(e.Label, menuPrefix+e.ID)
		if err != nil {
			logger.Get(ctx).Warn("skipping menu entry", "category", category, "id", e.ID, "err", err)
			continue
		}
		buttons = append(buttons, btn)
	}
	return b.tg.SendKeyboard(ctx, chatID, fmt.Sprintf(msgChooseScript, category), telegram.Keyboard(buttons, buttonsPerRow))
}

func (b *Bot) sendScript(ctx context.Context, chatID int64, sess *catalog.Session, id string) error {
	rec, err := sess.Content(ctx, id)
	if errors.Is(err, catalog.ErrNotFound) || errors.Is(err, catalog.ErrStaleReference) {
		return b.tg.SendText(ctx, chatID, "", msgNotFound)
	}
	if err != nil {
		return b.unavailable(ctx, chatID, err)
	}
	return b.sendRecord(ctx, chatID, msgScriptHeader, rec)
}

func (b *Bot) sendRecord(ctx context.Context, chatID int64, header string, rec catalog.ContentRecord) error {
	text := rec.Text
	if strings.TrimSpace(text) == "" {
		text = msgNoContent
	}
	if err := b.tg.SendText(ctx, chatID, header, text); err != nil {
		return err
	}
	if rec.Image != "" {
		return b.tg.SendPhoto(ctx, chatID, rec.Image)
	}
	return nil
}

func (b *Bot) search(ctx context.Context, chatID int64, query string) error {
	if strings.TrimSpace(query) == "" {
		return b.tg.SendText(ctx, chatID, "", msgSearchUsage)
	}
	results, err := b.cat.Search(ctx, query)
	if err != nil {
		return b.unavailable(ctx, chatID, err)
	}
	if len(results) == 0 {
		return b.tg.SendText(ctx, chatID, "", msgNotFound)
	}
	for _, rec := range results {
		if err := b.sendRecord(ctx, chatID, rec.Label, rec); err != nil {
			return err
		}
	}
	return nil
}

// unavailable logs err and tells the user the sheet can't be read.
func (b *Bot) unavailable(ctx context.Context, chatID int64, err error) error {
	logger.Get(ctx).Error("reading scripts failed", "chat_id", chatID, "err", err)
	return b.tg.SendText(ctx, chatID, "", msgUnavailable)
}

func (b *Bot) handleChannelPost(ctx context.Context, post *tgbotapi.Message) {
	ref, ok := ingest.FindImage(post)
	if !ok || b.ing == nil {
		return
	}
	log := logger.Get(ctx)
	res, err := b.ing.Ingest(ctx, ref)
	if err != nil {
		log.Error("image ingestion failed", "file_unique_id", ref.FileUniqueID, "err", err)
		return
	}
	log.Info("image ingested", "row", res.Row, "duplicate", res.Duplicate, "file_unique_id", ref.FileUniqueID)
}
