// Package cmd implements the coedit CLI commands. The CLI is a development
// surface: it runs the same engine the desktop shell embeds, against a
// plain-text file instead of the rich-text editor.
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/coedit/internal/config"
	"github.com/coedit/internal/document"
	"github.com/coedit/internal/logging"
	"github.com/coedit/internal/session"
	"github.com/coedit/internal/transport"
)

// completionTimeout bounds how long a CLI command waits for the model.
const completionTimeout = 5 * time.Minute

func loadConfig(c *cli.Context) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Pretty)
	return cfg, log, nil
}

// newFileSession loads the file into a document buffer and builds a session
// over the configured provider.
func newFileSession(ctx context.Context, c *cli.Context, path string) (*session.Session, *document.Buffer, zerolog.Logger, error) {
	cfg, log, err := loadConfig(c)
	if err != nil {
		return nil, nil, log, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, nil, log, err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, log, fmt.Errorf("read %s: %w", path, err)
	}
	buf := document.NewBuffer(string(content))

	conn, err := transport.NewConnector(ctx, transport.Options{
		Provider:          transport.Provider(cfg.Provider.Name),
		APIKey:            cfg.Provider.APIKey,
		BaseURL:           cfg.Provider.BaseURL,
		Model:             cfg.Provider.Model,
		MaxTokens:         cfg.Provider.MaxTokens,
		RequestsPerSecond: cfg.Provider.RequestsPerSecond,
	}, log)
	if err != nil {
		return nil, nil, log, err
	}

	return session.New(buf, conn, log), buf, log, nil
}

// awaitUpdate blocks until the session reconciles a completion or the
// timeout elapses.
func awaitUpdate(sess *session.Session, run func() error) error {
	done := make(chan struct{}, 1)
	sess.OnUpdate(func() {
		select {
		case done <- struct{}{}:
		default:
		}
	})
	if err := run(); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-time.After(completionTimeout):
		return fmt.Errorf("timed out waiting for model response")
	}
}
