// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package telegram

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"go.astrophena.name/scriptbot/internal/testutil"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestSplitMessage(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		in   string
		want []string
	}{
		"empty":             {in: "  ", want: nil},
		"short":             {in: "hello", want: []string{"hello"}},
		"exact":             {in: strings.Repeat("a", 4096), want: []string{strings.Repeat("a", 4096)}},
		"long (no newline)": {in: strings.Repeat("a", 4100), want: []string{strings.Repeat("a", 4096), "aaaa"}},
		"long (single line with spaces)": {
			in:   strings.Repeat("a", 3000) + " " + strings.Repeat("b", 1500),
			want: []string{strings.Repeat("a", 3000), strings.Repeat("b", 1500)},
		},
		"long (newline split)": {
			in:   strings.Repeat("a", 4000) + "\n" + strings.Repeat("b", 100),
			want: []string{strings.Repeat("a", 4000), strings.Repeat("b", 100)},
		},
		"multi-byte unicode": {
			in:   strings.Repeat("话", 4095) + "\n" + "术",
			want: []string{strings.Repeat("话", 4095), "术"},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			testutil.AssertEqual(t, splitMessage(tc.in), tc.want)
		})
	}
}

func TestSplitMessageNewlineRich(t *testing.T) {
	t.Parallel()

	in := strings.Repeat("line\n", 900)
	got := splitMessage(in)
	if len(got) < 2 {
		t.Fatalf("want at least 2 chunks, got %d", len(got))
	}
	for i, chunk := range got {
		if utf8.RuneCountInString(chunk) > MaxMessageLength {
			t.Fatalf("chunk %d exceeds rune cap: %d", i, utf8.RuneCountInString(chunk))
		}
	}
	testutil.AssertEqual(t, strings.Join(got, "\n"), strings.TrimSpace(in))
}

func TestKeyboard(t *testing.T) {
	t.Parallel()

	var buttons []tgbotapi.InlineKeyboardButton
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		b, err := Button(s, "cat_"+s)
		if err != nil {
			t.Fatal(err)
		}
		buttons = append(buttons, b)
	}
	kb := Keyboard(buttons, 2)

	var texts [][]string
	for _, row := range kb.InlineKeyboard {
		var r []string
		for _, b := range row {
			r = append(r, b.Text+"="+*b.CallbackData)
		}
		texts = append(texts, r)
	}
	testutil.AssertEqual(t, texts, [][]string{
		{"a=cat_a", "b=cat_b"},
		{"c=cat_c", "d=cat_d"},
		{"e=cat_e"},
	})

	testutil.AssertEqual(t, len(Keyboard(nil, 2).InlineKeyboard), 0)
}

func TestButtonTooLong(t *testing.T) {
	t.Parallel()

	// 22 CJK characters are 66 bytes.
	_, err := Button("x", "cat_"+strings.Repeat("话", 21))
	if !errors.Is(err, ErrCallbackDataTooLong) {
		t.Fatalf("want ErrCallbackDataTooLong, got %v", err)
	}
	if _, err := Button("x", "cat_"+strings.Repeat("话", 20)); err != nil {
		t.Fatal(err)
	}
}

func TestButtonEmptyText(t *testing.T) {
	t.Parallel()

	for _, text := range []string{"", "  "} {
		if _, err := Button(text, "menu_m_0"); !errors.Is(err, ErrEmptyButtonText) {
			t.Errorf("Button(%q): want ErrEmptyButtonText, got %v", text, err)
		}
	}
}

type recorder struct {
	mu    sync.Mutex
	calls []apiCall
}

type apiCall struct {
	Method string
	Args   map[string]any
}

func (r *recorder) handler(t *testing.T, results map[string]string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("api.telegram.org/{token}/{method}", func(w http.ResponseWriter, req *http.Request) {
		testutil.AssertEqual(t, req.PathValue("token"), "bot123:secret")
		method := req.PathValue("method")
		var args map[string]any
		if req.Method == http.MethodPost {
			b, err := io.ReadAll(req.Body)
			if err != nil {
				t.Fatal(err)
			}
			if err := json.Unmarshal(b, &args); err != nil {
				t.Fatal(err)
			}
		}
		r.mu.Lock()
		r.calls = append(r.calls, apiCall{Method: method, Args: args})
		r.mu.Unlock()

		result, ok := results[method]
		if !ok {
			result = "true"
		}
		if result == "error" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found (token 123:secret)"}`))
			return
		}
		w.Write([]byte(`{"ok":true,"result":` + result + `}`))
	})
	return mux
}

func newTestClient(t *testing.T, results map[string]string) (*Client, *recorder) {
	rec := new(recorder)
	return New(Config{
		Token:      "123:secret",
		HTTPClient: testutil.MockHTTPClient(rec.handler(t, results)),
	}), rec
}

func TestSendText(t *testing.T) {
	t.Parallel()

	c, rec := newTestClient(t, map[string]string{"sendMessage": `{"message_id":1}`})
	if err := c.SendText(t.Context(), 42, "📋 话术如下：", "Hello world"); err != nil {
		t.Fatal(err)
	}

	testutil.AssertEqual(t, rec.calls, []apiCall{{
		Method: "sendMessage",
		Args: map[string]any{
			"chat_id": float64(42),
			"text":    "📋 话术如下：\n\nHello world",
			"entities": []any{map[string]any{
				"type":   "bold",
				"offset": float64(0),
				"length": float64(8), // 📋 is two UTF-16 code units
			}},
			"link_preview_options": map[string]any{"is_disabled": true},
		},
	}})
}

func TestSendTextLong(t *testing.T) {
	t.Parallel()

	c, rec := newTestClient(t, nil)
	if err := c.SendText(t.Context(), 1, "", strings.Repeat("a", 5000)); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, len(rec.calls), 2)
	if _, ok := rec.calls[0].Args["entities"]; ok {
		t.Fatal("entities set without bold text")
	}
}

func TestSendKeyboard(t *testing.T) {
	t.Parallel()

	c, rec := newTestClient(t, nil)
	b, _ := Button("Sales", "cat_Sales")
	if err := c.SendKeyboard(t.Context(), 7, "📋 请选择分类：", Keyboard([]tgbotapi.InlineKeyboardButton{b}, 2)); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, rec.calls[0].Args["reply_markup"], map[string]any{
		"inline_keyboard": []any{
			[]any{map[string]any{"text": "Sales", "callback_data": "cat_Sales"}},
		},
	})
}

func TestSendPhotoAndAnswer(t *testing.T) {
	t.Parallel()

	c, rec := newTestClient(t, nil)
	if err := c.SendPhoto(t.Context(), 7, "img1"); err != nil {
		t.Fatal(err)
	}
	if err := c.AnswerCallback(t.Context(), "cb1", ""); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, rec.calls, []apiCall{
		{Method: "sendPhoto", Args: map[string]any{"chat_id": float64(7), "photo": "img1"}},
		{Method: "answerCallbackQuery", Args: map[string]any{"callback_query_id": "cb1"}},
	})
}

func TestFileURL(t *testing.T) {
	t.Parallel()

	c, rec := newTestClient(t, map[string]string{
		"getFile": `{"file_id":"f1","file_unique_id":"u1","file_path":"photos/file_0.jpg"}`,
	})
	url, err := c.FileURL(t.Context(), "f1")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, url, "https://api.telegram.org/file/bot123:secret/photos/file_0.jpg")
	testutil.AssertEqual(t, rec.calls[0].Args, map[string]any{"file_id": "f1"})
}

func TestSetWebhookAndGetMe(t *testing.T) {
	t.Parallel()

	c, rec := newTestClient(t, map[string]string{
		"getMe": `{"id":123,"is_bot":true,"first_name":"Scripts","username":"scriptbot"}`,
	})
	if err := c.SetWebhook(t.Context(), "https://example.com/webhook", "s3cret"); err != nil {
		t.Fatal(err)
	}
	me, err := c.GetMe(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, me.UserName, "scriptbot")
	testutil.AssertEqual(t, rec.calls[0].Args, map[string]any{
		"url":             "https://example.com/webhook",
		"secret_token":    "s3cret",
		"allowed_updates": []any{"message", "callback_query", "channel_post"},
	})
}

func TestErrorScrubsToken(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, map[string]string{"sendMessage": "error"})
	err := c.SendText(t.Context(), 1, "", "hi")
	if err == nil {
		t.Fatal("want error")
	}
	if strings.Contains(err.Error(), "123:secret") {
		t.Fatalf("token leaked in error: %v", err)
	}
	testutil.AssertContains(t, err.Error(), "[EXPUNGED]")
}
