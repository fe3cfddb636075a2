// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Scriptbot is a Telegram bot that serves sales scripts kept in a spreadsheet.

Every row of the sheet is one script: a category (column A), a menu label
(column B) in the form "（category）label", the script text (column C) and an
optional image URL (column D). The first row is a header.

Users pick a category from an inline keyboard, then a script, and get its text
and image back. Any other text, or /search <keyword>, returns up to five
scripts containing the keyword. /tc (or /refresh) drops the cached copy of the
sheet so that edits show up right away.

Photos and image documents posted to the channel the bot administers are
stored in the first row of the sheet that has no image yet.

# Usage

	$ scriptbot [flags...]

# Environment Variables

The following environment variables can be used to configure Scriptbot. They
can also be put into a dotenv file (.env by default, see -env-file); the
process environment wins.

  - TG_TOKEN (or TELEGRAM_TOKEN): The Telegram Bot API token.
  - TG_SECRET: The secret token used to validate Telegram Bot API updates.
  - HOST (or BASE_URL): The bot domain used for setting up the webhook.
  - ADDR: The address to listen on. PORT is used if ADDR is not set.
  - SHEET_ID: The Google Sheets spreadsheet ID.
  - SHEET_NAME: The name of the sheet with scripts. Defaults to 话术平台表.
  - SERVICE_ACCOUNT_KEY: The Google service account key in JSON.
  - GOOGLE_KEY_FILE: The path to the service account key, if
    SERVICE_ACCOUNT_KEY is not set. Defaults to key.json.
  - XLSX_FILE: A local workbook to use instead of Google Sheets.
  - DATABASE_URL: A PostgreSQL URL for the image ingestion log.
  - STATE_DIRECTORY: A directory for the SQLite image ingestion log, if
    DATABASE_URL is not set. Without both, the log is kept in memory.
  - LOG_FILE: A file to write logs to, in addition to standard error. It is
    rotated once it grows over 10 megabytes.
  - INVALIDATE_ON_INGEST: Set to "true" to drop the cached sheet after every
    stored image.
  - DEBUG: Set to "true" to serve debug endpoints.

# Endpoints

  - POST /webhook: Receives Telegram updates.
  - GET /health: Reports whether the sheet is cached.

With -debug, Scriptbot also serves a debug interface at /debug/:

  - /debug/logs: Streams the last 300 lines of logs.
  - /debug/statsviz/: Displays runtime metrics.
  - /debug/invalidate: Drops the cached sheet.
  - /debug/pprof/: Serves profiling data.

The debug interface has no authentication. Don't expose it publicly.
*/
package main

import (
	_ "embed"

	"go.astrophena.name/scriptbot/internal/cli"
)

//go:embed doc.go
var doc []byte

func init() { cli.SetDocComment(doc) }
