package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/srec-tools/pipectl/internal/client"
	"github.com/srec-tools/pipectl/internal/logging"
	"github.com/srec-tools/pipectl/internal/output"
	"github.com/srec-tools/pipectl/internal/procschema"
	"github.com/srec-tools/pipectl/internal/store"
	"github.com/srec-tools/pipectl/pkg/schema"
)

// commandContext wires shared dependencies into the commands lazily, so a
// command that never touches the backend or the draft store pays for
// neither.
type commandContext struct {
	configFlag *string
	jsonFlag   *bool
	jqFlag     *string
	quietFlag  *bool

	configOnce sync.Once
	config     Config

	authOnce     sync.Once
	tokenManager *client.TokenManager
	authErr      error

	clientOnce sync.Once
	client     *client.Client
	clientErr  error

	loggerOnce sync.Once
	log        *slog.Logger

	filterOnce sync.Once
	jqFilter   *output.Filter

	schemaOnce   sync.Once
	procRegistry *procschema.Registry
}

func newCommandContext(configFlag *string, jsonFlag *bool, jqFlag *string, quietFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
		jqFlag:     jqFlag,
		quietFlag:  quietFlag,
	}
}

func (c *commandContext) ensureConfig() Config {
	c.configOnce.Do(func() {
		path := ""
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		c.config = loadConfig(path)
	})
	return c.config
}

func (c *commandContext) logger() *slog.Logger {
	c.loggerOnce.Do(func() {
		cfg := c.ensureConfig()
		handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.level()})
		c.log = slog.New(logging.NewCorrelationHandler(handler))
	})
	return c.log
}

func (c *commandContext) httpClient() *http.Client {
	cfg := c.ensureConfig()
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// tokens returns the token manager backed by the credentials file.
func (c *commandContext) tokens() (*client.TokenManager, error) {
	c.authOnce.Do(func() {
		cfg := c.ensureConfig()
		sessions := client.NewFileSessionStore(cfg.CredentialsPath)
		c.tokenManager, c.authErr = client.NewTokenManager(cfg.ServerURL, sessions, c.httpClient())
	})
	return c.tokenManager, c.authErr
}

// apiClient returns the backend client, authenticated when a login session
// is stored.
func (c *commandContext) apiClient() (*client.Client, error) {
	c.clientOnce.Do(func() {
		tm, err := c.tokens()
		if err != nil {
			c.clientErr = err
			return
		}
		cfg := c.ensureConfig()
		c.client, c.clientErr = client.New(client.Config{
			BaseURL:    cfg.ServerURL,
			HTTPClient: c.httpClient(),
			Tokens:     tm,
		})
	})
	return c.client, c.clientErr
}

// withStore opens the draft database for the duration of one command.
// Migrations run on every open and are idempotent.
func (c *commandContext) withStore(cmd *cobra.Command, fn func(*store.LibSQLStore) error) error {
	cfg := c.ensureConfig()
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return fmt.Errorf("ensure data directory: %w", err)
	}

	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Migrate(cmd.Context()); err != nil {
		return err
	}
	return fn(st)
}

// resolveDraft finds a draft by name first, then by id.
func resolveDraft(ctx context.Context, st store.Store, ref string) (*store.Draft, error) {
	d, err := st.GetDraftByName(ctx, ref)
	if err == nil {
		return d, nil
	}
	var perr *schema.PipelineError
	if !errors.As(err, &perr) || perr.Code != schema.ErrCodeNotFound {
		return nil, err
	}
	return st.GetDraft(ctx, ref)
}

// jsonMode reports whether output goes out as JSON (--json or --jq).
func (c *commandContext) jsonMode() bool {
	return *c.jsonFlag || strings.TrimSpace(*c.jqFlag) != ""
}

func (c *commandContext) filter() *output.Filter {
	c.filterOnce.Do(func() {
		c.jqFilter = output.NewFilter()
	})
	return c.jqFilter
}

// schemas returns the processor config schema registry.
func (c *commandContext) schemas() *procschema.Registry {
	c.schemaOnce.Do(func() {
		c.procRegistry = procschema.NewRegistry()
	})
	return c.procRegistry
}

// emitJSON writes the payload as JSON, through the --jq filter when set.
func (c *commandContext) emitJSON(cmd *cobra.Command, payload any) error {
	expr := strings.TrimSpace(*c.jqFlag)
	if expr == "" {
		return writeJSON(cmd, payload)
	}
	lines, err := c.filter().Apply(cmd.Context(), expr, payload)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
	return nil
}

// emit prints payload as JSON in JSON mode, or runs the human renderer.
// --quiet suppresses the human form only; JSON stays machine-consumable.
func (c *commandContext) emit(cmd *cobra.Command, payload any, human func(io.Writer)) error {
	if c.jsonMode() {
		return c.emitJSON(cmd, payload)
	}
	if *c.quietFlag {
		return nil
	}
	human(cmd.OutOrStdout())
	return nil
}
