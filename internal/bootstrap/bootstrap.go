// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kraklabs/tabsync/internal/config"
	"github.com/kraklabs/tabsync/internal/errors"
	"github.com/kraklabs/tabsync/pkg/collection"
	"github.com/kraklabs/tabsync/pkg/wsapi"
)

// SessionConfig carries the flag overrides applied on top of the
// configuration file when opening a session.
type SessionConfig struct {
	// ConfigPath is the configuration file to load. Empty means the
	// default location; a missing file is not an error because the
	// token can come from flags or the environment.
	ConfigPath string

	// Token overrides the configured integration token.
	Token string

	// BaseURL overrides the configured API endpoint.
	BaseURL string

	// Workers overrides the configured upload worker count.
	Workers int

	// LogFile overrides the configured rotating log file.
	LogFile string

	// Verbose widens the log level: 0 warnings, 1 info, 2+ debug.
	Verbose int
}

// Session is an authenticated connection to the workspace API plus the
// logger every part of a run shares. Commands open one session and pass
// its client and logger down.
type Session struct {
	Config *config.Config
	Client *wsapi.Client
	Log    *slog.Logger

	// User is the bot the token authenticates as, from the users/me
	// probe that Open runs to verify the token.
	User *wsapi.User

	logFile io.Closer
}

// Open wires a session in order:
//
//  1. Load the configuration file and apply flag overrides
//  2. Validate the token format (fails before any network activity)
//  3. Build the run logger (rotating file when configured)
//  4. Build the API client with the configured retry policy
//  5. Verify the token with a users/me round trip
//
// Errors are *errors.UserError values ready for errors.FatalError.
func Open(ctx context.Context, sc SessionConfig) (*Session, error) {
	cfg, err := config.Load(sc.ConfigPath)
	if err != nil {
		return nil, errors.NewConfigError(
			"Cannot load configuration",
			err.Error(),
			"Check the file syntax, or recreate it with 'tabsync init'",
			err,
		)
	}

	if sc.Token != "" {
		cfg.Token = sc.Token
	}
	if sc.BaseURL != "" {
		cfg.BaseURL = sc.BaseURL
	}
	if sc.Workers > 0 {
		cfg.Workers = sc.Workers
	}
	if sc.LogFile != "" {
		cfg.Log.File = sc.LogFile
	}

	if err := config.ValidateToken(cfg.Token); err != nil {
		return nil, errors.NewConfigError(
			"Invalid integration token",
			err.Error(),
			"Set the token in the config file, TABSYNC_TOKEN, or --token",
			err,
		)
	}

	logger, logFile := newLogger(cfg.Log, sc.Verbose)

	client, err := wsapi.New(wsapi.Config{
		BaseURL:    cfg.BaseURL,
		Token:      cfg.Token,
		APIVersion: cfg.APIVersion,
		Retry: wsapi.RetryPolicy{
			MaxRetries: cfg.Retry.MaxRetries,
			BaseDelay:  time.Duration(cfg.Retry.BaseDelay),
		},
		Logger: logger,
	})
	if err != nil {
		closeQuiet(logFile)
		return nil, errors.NewConfigError(
			"Cannot build the API client",
			err.Error(),
			"Set base_url in the config file or TABSYNC_BASE_URL",
			err,
		)
	}

	user, err := client.Me(ctx)
	if err != nil {
		closeQuiet(logFile)
		return nil, verifyError(err)
	}

	logger.Info("bootstrap.session.open",
		"workspace", cfg.Workspace,
		"user", user.Name,
		"base_url", cfg.BaseURL,
	)

	return &Session{
		Config:  cfg,
		Client:  client,
		Log:     logger,
		User:    user,
		logFile: logFile,
	}, nil
}

// Collection returns a cache over one database, sharing the session's
// client and logger.
func (s *Session) Collection(databaseID string, randomizeColors bool) *collection.Cache {
	return collection.New(s.Client, databaseID, collection.Options{
		RandomizeColors: randomizeColors,
		Logger:          s.Log,
	})
}

// Close releases the rotating log file when one is open. Safe on a nil
// session so commands can defer it before checking the Open error.
func (s *Session) Close() error {
	if s == nil || s.logFile == nil {
		return nil
	}
	return s.logFile.Close()
}

// newLogger builds the run logger. With a log file configured the
// handler writes there through lumberjack rotation and captures at
// least info; otherwise it writes to stderr at the level the verbosity
// asks for, so a quiet terminal run only sees warnings.
func newLogger(cfg config.LogConfig, verbose int) (*slog.Logger, io.Closer) {
	level := slog.LevelWarn
	switch {
	case verbose >= 2:
		level = slog.LevelDebug
	case verbose == 1:
		level = slog.LevelInfo
	}

	if cfg.File != "" {
		w := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
		if level > slog.LevelInfo {
			level = slog.LevelInfo
		}
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), w
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}

// verifyError translates a failed users/me probe into user guidance.
func verifyError(err error) error {
	switch {
	case wsapi.IsUnauthorized(err):
		return errors.NewPermissionError(
			"The API rejected the integration token",
			err.Error(),
			"Check the token value and that the integration is still active",
			err,
		)
	case wsapi.IsForbidden(err):
		return errors.NewPermissionError(
			"The integration is not allowed to read workspace users",
			err.Error(),
			"Grant the integration user information capabilities",
			err,
		)
	default:
		return errors.NewNetworkError(
			"Cannot reach the workspace API",
			err.Error(),
			"Check base_url and your network connection",
			err,
		)
	}
}

func closeQuiet(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}
