// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.astrophena.name/scriptbot/internal/catalog"
	"go.astrophena.name/scriptbot/internal/ingest"
	"go.astrophena.name/scriptbot/internal/sheet"
	"go.astrophena.name/scriptbot/internal/store"
	"go.astrophena.name/scriptbot/internal/telegram"
	"go.astrophena.name/scriptbot/internal/testutil"
	"go.astrophena.name/scriptbot/internal/web"
)

// Typical Telegram Bot API token, copied from docs.
const tgToken = "123456:ABC-DEF1234ghIkl-zyx57W2v1u123ew11"

// memTable is an in-memory sheet.Table.
type memTable struct {
	mu    sync.Mutex
	rows  [][]string
	reads atomic.Int32
	fail  bool
}

func (m *memTable) ReadRange(ctx context.Context, r sheet.Range) ([][]string, error) {
	m.reads.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, fmt.Errorf("%w: backend error", sheet.ErrUnavailable)
	}
	switch r {
	case sheet.FullRange("Scripts"):
		return m.rows, nil
	case sheet.ImageColumn("Scripts"):
		var col [][]string
		for _, row := range m.rows[1:] {
			if len(row) > 3 && row[3] != "" {
				col = append(col, []string{row[3]})
			} else {
				col = append(col, []string{})
			}
		}
		return col, nil
	}
	return nil, fmt.Errorf("unexpected range %s", r)
}

func (m *memTable) WriteCell(ctx context.Context, c sheet.Cell, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.Sheet != "Scripts" || c.Col != sheet.ColImage {
		return fmt.Errorf("unexpected cell %s", c)
	}
	for len(m.rows) < c.Row {
		m.rows = append(m.rows, []string{})
	}
	row := m.rows[c.Row-1]
	for len(row) < 4 {
		row = append(row, "")
	}
	row[3] = value
	m.rows[c.Row-1] = row
	return nil
}

func (m *memTable) image(row int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row > len(m.rows) || len(m.rows[row-1]) < 4 {
		return ""
	}
	return m.rows[row-1][3]
}

func testRows() [][]string {
	return [][]string{
		{"Category", "Menu", "Content", "Image"},
		{"Sales", "（Sales）Intro", "Hello world", ""},
		{"Sales", "（Sales）Closer", "Bye", "img1"},
		{"Support", "（Support）Empty"},
	}
}

// telegramMock fakes the Bot API and records calls in a readable form.
type telegramMock struct {
	mu    sync.Mutex
	calls []string
}

func (tm *telegramMock) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST api.telegram.org/{token}/{method}", func(w http.ResponseWriter, r *http.Request) {
		testutil.AssertEqual(t, r.PathValue("token"), "bot"+tgToken)
		b, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatal(err)
		}
		var args struct {
			ChatID      int64  `json:"chat_id"`
			Text        string `json:"text"`
			Photo       string `json:"photo"`
			CallbackID  string `json:"callback_query_id"`
			FileID      string `json:"file_id"`
			ReplyMarkup struct {
				InlineKeyboard [][]struct {
					Text         string `json:"text"`
					CallbackData string `json:"callback_data"`
				} `json:"inline_keyboard"`
			} `json:"reply_markup"`
		}
		if err := json.Unmarshal(b, &args); err != nil {
			t.Fatal(err)
		}

		var (
			call   string
			result = "true"
		)
		switch method := r.PathValue("method"); method {
		case "sendMessage":
			call = fmt.Sprintf("sendMessage %d: %s", args.ChatID, args.Text)
			if kb := args.ReplyMarkup.InlineKeyboard; len(kb) > 0 {
				var rows []string
				for _, row := range kb {
					var buttons []string
					for _, btn := range row {
						buttons = append(buttons, btn.Text+"="+btn.CallbackData)
					}
					rows = append(rows, strings.Join(buttons, " "))
				}
				call += " [" + strings.Join(rows, " / ") + "]"
			}
			result = `{"message_id": 100}`
		case "sendPhoto":
			call = fmt.Sprintf("sendPhoto %d: %s", args.ChatID, args.Photo)
			result = `{"message_id": 101}`
		case "answerCallbackQuery":
			call = "answerCallbackQuery " + args.CallbackID
		case "getFile":
			call = "getFile " + args.FileID
			result = fmt.Sprintf(`{"file_id": %q, "file_path": "photos/%s.jpg"}`, args.FileID, args.FileID)
		default:
			t.Errorf("unexpected method %s", method)
		}

		tm.mu.Lock()
		tm.calls = append(tm.calls, call)
		tm.mu.Unlock()
		w.Write([]byte(`{"ok": true, "result": ` + result + `}`))
	})
	return mux
}

type testEnv struct {
	bot   *Bot
	table *memTable
	tg    *telegramMock
	srv   http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	table := &memTable{rows: testRows()}
	tm := new(telegramMock)
	tg := telegram.New(telegram.Config{
		Token:      tgToken,
		HTTPClient: testutil.MockHTTPClient(tm.handler(t)),
	})
	cache := catalog.NewCache(table, "Scripts")
	b := New(Opts{
		Catalog: catalog.New(cache, time.Hour),
		Ingester: &ingest.Ingester{
			Table:    table,
			Sheet:    "Scripts",
			Resolver: tg,
			Log:      store.NewMemStore(t.Context(), time.Hour),
			Cache:    cache,
		},
		Transport: tg,
		Secret:    "test",
	})
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook", b.HandleWebhook)
	return &testEnv{bot: b, table: table, tg: tm, srv: &web.Server{Mux: mux}}
}

func (e *testEnv) send(t *testing.T, body []byte, secret string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	if secret != "" {
		r.Header.Set("X-Telegram-Bot-Api-Secret-Token", secret)
	}
	w := httptest.NewRecorder()
	e.srv.ServeHTTP(w, r)
	return w
}

func readUpdate(t *testing.T, name string) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", "updates", name+".json"))
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestHandleWebhook(t *testing.T) {
	t.Parallel()

	const (
		categories = "sendMessage 42: 📋 请选择分类： [Sales=cat_Sales Support=cat_Support]"
		salesMenu  = "sendMessage 42: 📁 分类【Sales】，请选择： [Intro=menu_m_0 Closer=menu_m_1]"
		notFound   = "sendMessage 42: ❌ 未找到话术"
	)

	cases := map[string]struct {
		updates []string
		want    []string
	}{
		"start": {
			updates: []string{"start"},
			want:    []string{categories},
		},
		"home with bot username": {
			updates: []string{"home_with_username"},
			want:    []string{categories},
		},
		"refresh": {
			updates: []string{"refresh"},
			want:    []string{"sendMessage 42: ♻️ 已刷新缓存，请重新点击菜单"},
		},
		"search command": {
			updates: []string{"search_command"},
			want: []string{
				"sendMessage 42: （Sales）Closer\n\nBye",
				"sendPhoto 42: img1",
			},
		},
		"search text": {
			updates: []string{"search_text"},
			want:    []string{"sendMessage 42: （Sales）Intro\n\nHello world"},
		},
		"search without results": {
			updates: []string{"search_nothing"},
			want:    []string{notFound},
		},
		"category": {
			updates: []string{"cat_sales"},
			want:    []string{salesMenu, "answerCallbackQuery cb7"},
		},
		"unknown category": {
			updates: []string{"cat_unknown"},
			want:    []string{notFound, "answerCallbackQuery cb9"},
		},
		"script with image": {
			updates: []string{"cat_sales", "menu_1"},
			want: []string{
				salesMenu, "answerCallbackQuery cb7",
				"sendMessage 42: 📋 话术如下：\n\nBye",
				"sendPhoto 42: img1",
				"answerCallbackQuery cb11",
			},
		},
		"script without content": {
			updates: []string{"cat_support", "menu_0"},
			want: []string{
				"sendMessage 42: 📁 分类【Support】，请选择： [Empty=menu_m_0]",
				"answerCallbackQuery cb8",
				"sendMessage 42: 📋 话术如下：\n\n（无话术）",
				"answerCallbackQuery cb10",
			},
		},
		"menu id never issued": {
			updates: []string{"menu_0"},
			want:    []string{notFound, "answerCallbackQuery cb10"},
		},
		"menu id replaced by another listing": {
			updates: []string{"cat_sales", "cat_support", "menu_1"},
			want: []string{
				salesMenu, "answerCallbackQuery cb7",
				"sendMessage 42: 📁 分类【Support】，请选择： [Empty=menu_m_0]",
				"answerCallbackQuery cb8",
				notFound, "answerCallbackQuery cb11",
			},
		},
		"menu id issued to another chat": {
			updates: []string{"cat_sales", "menu_0_other_chat"},
			want: []string{
				salesMenu, "answerCallbackQuery cb7",
				"sendMessage 43: ❌ 未找到话术",
				"answerCallbackQuery cb12",
			},
		},
		"channel text": {
			updates: []string{"channel_text"},
			want:    nil,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t)
			for _, upd := range tc.updates {
				w := env.send(t, readUpdate(t, upd), "test")
				testutil.AssertEqual(t, w.Code, http.StatusOK)
				testutil.AssertEqual(t, strings.TrimSpace(w.Body.String()), "{\n  \"status\": \"ok\"\n}")
			}
			testutil.AssertEqual(t, env.tg.calls, tc.want)
		})
	}
}

func TestRefreshInvalidatesCache(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.send(t, readUpdate(t, "start"), "test")
	env.send(t, readUpdate(t, "start"), "test")
	testutil.AssertEqual(t, env.table.reads.Load(), int32(1))

	env.table.mu.Lock()
	env.table.rows = append(env.table.rows, []string{"Billing", "（Billing）Refund", "Sorry"})
	env.table.mu.Unlock()

	env.send(t, readUpdate(t, "refresh"), "test")
	env.send(t, readUpdate(t, "start"), "test")
	testutil.AssertEqual(t, env.table.reads.Load(), int32(2))
	testutil.AssertEqual(t, env.tg.calls[len(env.tg.calls)-1],
		"sendMessage 42: 📋 请选择分类： [Sales=cat_Sales Support=cat_Support / Billing=cat_Billing]")
}

func TestMenuSkipsEntriesWithoutLabel(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.table.mu.Lock()
	env.table.rows = append(env.table.rows, []string{"Sales", "（Sales）  ", "Orphan"})
	env.table.mu.Unlock()

	env.send(t, readUpdate(t, "cat_sales"), "test")
	testutil.AssertEqual(t, env.tg.calls, []string{
		"sendMessage 42: 📁 分类【Sales】，请选择： [Intro=menu_m_0 Closer=menu_m_1]",
		"answerCallbackQuery cb7",
	})
}

func TestChannelImages(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	link := func(id string) string {
		return "https://api.telegram.org/file/bot" + tgToken + "/photos/" + id + ".jpg"
	}

	env.send(t, readUpdate(t, "channel_photo"), "test")
	testutil.AssertEqual(t, env.table.image(2), link("large"))

	// Redelivery of the same update must not take another row.
	env.send(t, readUpdate(t, "channel_photo"), "test")
	env.send(t, readUpdate(t, "channel_document"), "test")
	testutil.AssertEqual(t, env.table.image(3), "img1")
	testutil.AssertEqual(t, env.table.image(4), link("doc"))
	testutil.AssertEqual(t, env.tg.calls, []string{"getFile large", "getFile doc"})
}

func TestChannelImageFailureIsAcknowledged(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.table.fail = true
	w := env.send(t, readUpdate(t, "channel_photo"), "test")
	testutil.AssertEqual(t, w.Code, http.StatusOK)
}

func TestSheetUnavailable(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.table.fail = true
	w := env.send(t, readUpdate(t, "start"), "test")
	testutil.AssertEqual(t, w.Code, http.StatusOK)
	testutil.AssertEqual(t, env.tg.calls, []string{"sendMessage 42: ⚠️ 暂时无法读取话术表，请稍后再试"})

	// The failure is not cached.
	env.table.mu.Lock()
	env.table.fail = false
	env.table.mu.Unlock()
	env.send(t, readUpdate(t, "start"), "test")
	testutil.AssertEqual(t, len(env.tg.calls), 2)
}

func TestWebhookErrors(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		body       []byte
		secret     string
		wantStatus int
	}{
		"no secret":    {body: readUpdate(t, "start"), secret: "", wantStatus: http.StatusNotFound},
		"wrong secret": {body: readUpdate(t, "start"), secret: "nope", wantStatus: http.StatusNotFound},
		"malformed":    {body: []byte(`{"update_id": `), secret: "test", wantStatus: http.StatusInternalServerError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t)
			w := env.send(t, tc.body, tc.secret)
			testutil.AssertEqual(t, w.Code, tc.wantStatus)
			testutil.AssertEqual(t, len(env.tg.calls), 0)
		})
	}
}
