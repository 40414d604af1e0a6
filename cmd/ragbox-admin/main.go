package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/ragbox/ragbox/config"
	"github.com/ragbox/ragbox/internal/bootstrap"
	"github.com/ragbox/ragbox/internal/data"
	"github.com/ragbox/ragbox/internal/ports"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

// repos are the stores the account and token commands operate on.
type repos struct {
	Users  ports.UserRepository
	Tokens ports.AccessTokenRepository
	close  func() error
}

func (r *repos) Close() error {
	if r == nil || r.close == nil {
		return nil
	}
	return r.close()
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	Out    io.Writer
	In     io.Reader
	// openRepos defaults to the configured PostgreSQL database.
	openRepos func(ctx context.Context) (*repos, error)
}

func main() {
	logger := bootstrap.InitLogger()

	if len(os.Args) < 2 {
		if err := printUsage(os.Stdout); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(os.Stderr); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}
	bootstrap.SetLogLevel(cfg.LogLevel)

	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: logger,
		Config: cfg,
		Out:    os.Stdout,
		In:     os.Stdin,
	}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Apply pending database migrations",
			run:         runMigrations,
		},
		"migrate-status": {
			name:        "migrate-status",
			description: "List migrations and whether each has been applied",
			run:         runMigrationStatus,
		},
		"create-user": {
			name:        "create-user",
			description: "Create a local account for basic mode",
			run:         runCreateUser,
		},
		"create-token": {
			name:        "create-token",
			description: "Issue an access token and print it once",
			run:         runCreateToken,
		},
		"list-tokens": {
			name:        "list-tokens",
			description: "List access tokens without their secrets",
			run:         runListTokens,
		},
		"revoke-token": {
			name:        "revoke-token",
			description: "Delete an access token by id",
			run:         runRevokeToken,
		},
	}
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: ragbox-admin <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(w, "Available commands:\n"); err != nil {
		return err
	}
	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := writef(w, "  %-16s %s\n", name, cmds[name].description); err != nil {
			return err
		}
	}
	return nil
}

func (c *commandContext) out() io.Writer {
	if c.Out != nil {
		return c.Out
	}
	return os.Stdout
}

func (c *commandContext) in() io.Reader {
	if c.In != nil {
		return c.In
	}
	return os.Stdin
}

// withRepos opens the stores, runs f and closes them again.
func (c *commandContext) withRepos(f func(ctx context.Context, r *repos) error) error {
	open := c.openRepos
	if open == nil {
		open = c.openPostgresRepos
	}
	r, err := open(c.Ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := r.Close(); cerr != nil {
			c.Logger.Warn("close stores failed", "error", cerr)
		}
	}()
	return f(c.Ctx, r)
}

func (c *commandContext) openPostgresRepos(ctx context.Context) (*repos, error) {
	if c.Config.Storage == config.StorageMemory {
		return nil, errors.New("STORAGE_BACKEND=memory has nothing to administer; use postgres")
	}
	db, err := bootstrap.ConnectDB(ctx, bootstrap.DatabaseConfig{
		DBConfig: c.Config.Postgres,
		Logger:   c.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	return &repos{
		Users:  data.NewUserRepo(db),
		Tokens: data.NewAccessTokenRepo(db),
		close:  db.Close,
	}, nil
}

// splitList splits a comma separated flag value, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}
