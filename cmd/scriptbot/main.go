// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"cmp"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.astrophena.name/scriptbot/internal/api/google/serviceaccount"
	"go.astrophena.name/scriptbot/internal/bot"
	"go.astrophena.name/scriptbot/internal/catalog"
	"go.astrophena.name/scriptbot/internal/cli"
	"go.astrophena.name/scriptbot/internal/httplogger"
	"go.astrophena.name/scriptbot/internal/ingest"
	"go.astrophena.name/scriptbot/internal/logger"
	"go.astrophena.name/scriptbot/internal/sheet"
	"go.astrophena.name/scriptbot/internal/store"
	"go.astrophena.name/scriptbot/internal/syncx"
	"go.astrophena.name/scriptbot/internal/systemd"
	"go.astrophena.name/scriptbot/internal/telegram"
	"go.astrophena.name/scriptbot/internal/web"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
)

func main() { cli.Main(new(engine)) }

func (e *engine) Flags(fs *flag.FlagSet) {
	fs.StringVar(&e.addr, "addr", "", "Listen on `host:port`.")
	fs.BoolVar(&e.debug, "debug", false, "Serve debug endpoints at /debug/.")
	fs.StringVar(&e.envFile, "env-file", "", "Read environment variables from `file` (default .env, if present).")
	fs.BoolVar(&e.prod, "prod", false, "Run in production mode.")
	fs.StringVar(&e.xlsxFile, "xlsx", "", "Read scripts from the local workbook `file` instead of Google Sheets.")
}

const (
	defaultAddr      = "localhost:3000"
	defaultKeyFile   = "key.json"
	defaultSheetName = "话术平台表"
	ingestLogTTL     = 30 * 24 * time.Hour
	logFileMaxSizeMB = 10
	logFileBackups   = 3
	logLineLimit     = 300
)

func (e *engine) Run(ctx context.Context) (err error) {
	env := cli.GetEnv(ctx)

	getenv, err := e.loadEnv(env)
	if err != nil {
		return err
	}

	// Load configuration from environment variables.
	e.addr = cmp.Or(e.addr, getenv("ADDR"), portAddr(getenv("PORT")), defaultAddr)
	e.databaseURL = cmp.Or(e.databaseURL, getenv("DATABASE_URL"))
	e.debug = e.debug || parseBool(getenv("DEBUG"))
	e.host = cmp.Or(e.host, hostOf(cmp.Or(getenv("HOST"), getenv("BASE_URL"))))
	e.invalidateOnIngest = e.invalidateOnIngest || parseBool(getenv("INVALIDATE_ON_INGEST"))
	e.keyFile = cmp.Or(e.keyFile, getenv("GOOGLE_KEY_FILE"), defaultKeyFile)
	e.logFile = cmp.Or(e.logFile, getenv("LOG_FILE"))
	e.serviceAccountKey = cmp.Or(e.serviceAccountKey, getenv("SERVICE_ACCOUNT_KEY"))
	e.sheetID = cmp.Or(e.sheetID, getenv("SHEET_ID"))
	e.sheetName = cmp.Or(e.sheetName, getenv("SHEET_NAME"), defaultSheetName)
	e.stateDir = cmp.Or(e.stateDir, getenv("STATE_DIRECTORY"))
	e.tgSecret = cmp.Or(e.tgSecret, getenv("TG_SECRET"))
	e.tgToken = cmp.Or(e.tgToken, getenv("TG_TOKEN"), getenv("TELEGRAM_TOKEN"))
	e.xlsxFile = cmp.Or(e.xlsxFile, getenv("XLSX_FILE"))

	e.stderr = env.Stderr

	if e.tgToken == "" {
		return fmt.Errorf("%w: TG_TOKEN is required", cli.ErrInvalidArgs)
	}
	if e.sheetID == "" && e.xlsxFile == "" {
		return fmt.Errorf("%w: SHEET_ID or -xlsx is required", cli.ErrInvalidArgs)
	}

	// With noServerStart, tests inspect the engine after Run returns.
	defer func() {
		if err != nil || !e.noServerStart {
			e.close()
		}
	}()

	// Initialize internal state.
	if err := e.init.Get(func() error {
		return e.doInit(ctx)
	}); err != nil {
		return err
	}
	ctx = logger.Put(ctx, e.log)

	// If running in production mode, set the webhook in Telegram Bot API.
	if e.prod {
		if err := e.setWebhook(ctx); err != nil {
			return err
		}
		e.log.Info("running in production mode")
	}

	// Used in tests.
	if e.noServerStart {
		return nil
	}

	sd := &systemd.Notifier{Getenv: env.Getenv}
	ready := e.srv.Ready
	e.srv.Ready = func() {
		sd.Notify(ctx, systemd.Ready)
		if ready != nil {
			ready()
		}
	}
	go sd.WatchdogLoop(ctx)
	defer sd.Notify(ctx, systemd.Stopping)

	return e.srv.ListenAndServe(ctx)
}

// loadEnv returns a getenv function that falls back to variables from the
// dotenv file. The process environment wins.
func (e *engine) loadEnv(env *cli.Env) (func(string) string, error) {
	path := cmp.Or(e.envFile, env.Getenv("ENV_FILE"))
	optional := path == ""
	if optional {
		path = ".env"
	}
	vars, err := godotenv.Read(path)
	if err != nil && !(optional && errors.Is(err, fs.ErrNotExist)) {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return func(key string) string {
		return cmp.Or(env.Getenv(key), vars[key])
	}, nil
}

func portAddr(port string) string {
	if port == "" {
		return ""
	}
	return ":" + port
}

// hostOf accepts either a bare host or a base URL.
func hostOf(s string) string {
	if !strings.Contains(s, "://") {
		return strings.TrimSuffix(s, "/")
	}
	u, err := url.Parse(s)
	if err != nil {
		return s
	}
	return u.Host
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(s)
	return err == nil && b
}

type engine struct {
	init syncx.Lazy[error] // main initialization

	// initialized by doInit
	bot       *bot.Bot
	cache     *catalog.Cache
	cat       *catalog.Catalog
	closers   []io.Closer
	ingester  *ingest.Ingester
	log       *logger.Logger
	logStream logger.Streamer
	me        tgbotapi.User // obtained from Telegram Bot API
	mux       *http.ServeMux
	scrubber  *strings.Replacer
	srv       *web.Server
	store     store.Store
	table     sheet.Table
	tg        *telegram.Client

	// configuration, read-only after initialization
	addr               string
	databaseURL        string
	debug              bool
	envFile            string
	host               string
	httpc              *http.Client
	invalidateOnIngest bool
	keyFile            string
	logFile            string
	prod               bool
	serviceAccountKey  string
	sheetID            string
	sheetName          string
	stateDir           string
	stderr             io.Writer
	tgSecret           string
	tgToken            string
	xlsxFile           string
	// for tests
	noServerStart bool
	ready         func() // see web.Server.Ready
}

func (e *engine) doInit(ctx context.Context) error {
	if e.httpc == nil {
		e.httpc = &http.Client{Timeout: 30 * time.Second}
	}
	if e.stderr == nil {
		e.stderr = os.Stderr
	}

	var scrubPairs []string
	for _, val := range []string{
		e.tgSecret,
		e.tgToken,
	} {
		if val != "" {
			scrubPairs = append(scrubPairs, val, "[EXPUNGED]")
		}
	}
	e.scrubber = strings.NewReplacer(scrubPairs...)

	if err := e.initLogger(); err != nil {
		return err
	}
	ctx = logger.Put(ctx, e.log)

	httpc := *e.httpc
	httpc.Transport = httplogger.New(httpc.Transport, e.log)
	e.httpc = &httpc

	table, err := e.openTable(ctx)
	if err != nil {
		return err
	}
	e.table = table
	e.cache = catalog.NewCache(e.table, e.sheetName)
	e.cat = catalog.New(e.cache, catalog.DefaultSessionTTL)

	e.store, err = store.Open(ctx, e.storeDSN(), ingestLogTTL)
	if err != nil {
		return fmt.Errorf("opening ingestion log: %w", err)
	}
	e.closers = append(e.closers, e.store)

	e.tg = telegram.New(telegram.Config{
		Token:      e.tgToken,
		HTTPClient: e.httpc,
		Scrubber:   e.scrubber,
	})
	e.me, err = e.tg.GetMe(ctx)
	if err != nil {
		return err
	}
	e.log.Info("authorized", "username", e.me.UserName, "id", e.me.ID)

	e.ingester = &ingest.Ingester{
		Table:             e.table,
		Sheet:             e.sheetName,
		Resolver:          e.tg,
		Log:               e.store,
		Cache:             e.cat,
		InvalidateOnWrite: e.invalidateOnIngest,
	}
	e.bot = bot.New(bot.Opts{
		Catalog:   e.cat,
		Ingester:  e.ingester,
		Transport: e.tg,
		Secret:    e.tgSecret,
	})

	if err := e.initRoutes(); err != nil {
		return err
	}
	e.srv = &web.Server{
		Addr:   e.addr,
		Mux:    e.mux,
		Logger: e.log,
		Ready:  e.ready,
	}

	return nil
}

func (e *engine) initLogger() error {
	e.logStream = logger.NewStreamer(logLineLimit)
	writers := []io.Writer{e.stderr, e.logStream}
	if e.logFile != "" {
		f, err := logger.OpenFile(e.logFile, logFileMaxSizeMB, logFileBackups)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		e.closers = append(e.closers, f)
		writers = append(writers, f)
	}
	e.log = logger.New(io.MultiWriter(writers...), logger.Options{Scrubber: e.scrubber})
	if e.debug {
		e.log.Level.Set(slog.LevelDebug)
	}
	return nil
}

func (e *engine) openTable(ctx context.Context) (sheet.Table, error) {
	if e.xlsxFile != "" {
		t, err := sheet.OpenXLSX(e.xlsxFile)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, t)
		logger.Get(ctx).Info("using local workbook", "path", e.xlsxFile)
		return t, nil
	}

	key, err := e.loadKey()
	if err != nil {
		return nil, err
	}
	// Token requests and Sheets requests share one HTTP client.
	ts := key.TokenSource(ctx, e.httpc, sheet.Scope)
	httpc := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, e.httpc), ts)
	return sheet.NewSheetsTable(ctx, sheet.SheetsOptions{
		SpreadsheetID: e.sheetID,
		HTTPClient:    httpc,
	})
}

func (e *engine) loadKey() (*serviceaccount.Key, error) {
	if e.serviceAccountKey != "" {
		key, err := serviceaccount.LoadKey([]byte(e.serviceAccountKey))
		if err != nil {
			return nil, fmt.Errorf("%w: SERVICE_ACCOUNT_KEY: %w", cli.ErrInvalidArgs, err)
		}
		return key, nil
	}
	key, err := serviceaccount.LoadKeyFile(e.keyFile)
	if err != nil {
		return nil, fmt.Errorf("%w: loading service account key: %w", cli.ErrInvalidArgs, err)
	}
	return key, nil
}

func (e *engine) storeDSN() string {
	if e.databaseURL != "" {
		return e.databaseURL
	}
	if e.stateDir != "" {
		return filepath.Join(e.stateDir, "ingest.db")
	}
	return ""
}

func (e *engine) close() {
	for _, c := range e.closers {
		if err := c.Close(); err != nil && e.log != nil {
			e.log.Warn("close failed", "err", err)
		}
	}
	e.closers = nil
}

var errNoHost = errors.New("host hasn't set; pass it with HOST or BASE_URL environment variable")

func (e *engine) setWebhook(ctx context.Context) error {
	if e.host == "" {
		return errNoHost
	}
	u := &url.URL{
		Scheme: "https",
		Host:   e.host,
		Path:   "/webhook",
	}
	return e.tg.SetWebhook(ctx, u.String(), e.tgSecret)
}
