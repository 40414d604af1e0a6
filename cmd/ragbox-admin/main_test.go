package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragbox/ragbox/config"
	"github.com/ragbox/ragbox/internal/adapters/memory"
	domainauth "github.com/ragbox/ragbox/internal/domain/auth"
	"github.com/ragbox/ragbox/internal/migrate"
)

type testCLI struct {
	ctx    *commandContext
	out    *bytes.Buffer
	users  *memory.UserRepository
	tokens *memory.AccessTokenRepository
}

func newTestCLI(t *testing.T) *testCLI {
	t.Helper()
	var cfg config.AppConfig
	cfg.Sanitize()

	users := memory.NewUserRepository()
	tokens := memory.NewAccessTokenRepository()
	out := &bytes.Buffer{}
	return &testCLI{
		ctx: &commandContext{
			Ctx:    t.Context(),
			Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
			Config: cfg,
			Out:    out,
			openRepos: func(context.Context) (*repos, error) {
				return &repos{Users: users, Tokens: tokens}, nil
			},
		},
		out:    out,
		users:  users,
		tokens: tokens,
	}
}

func (c *testCLI) run(t *testing.T, name string, args ...string) error {
	t.Helper()
	c.out.Reset()
	return commands()[name].run(c.ctx, args)
}

func TestPrintUsageListsCommandsSorted(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printUsage(&buf))

	out := buf.String()
	assert.Contains(t, out, "Usage: ragbox-admin <command> [flags]")
	var order []int
	for _, name := range []string{"create-token", "create-user", "list-tokens", "migrate", "migrate-status", "revoke-token"} {
		i := strings.Index(out, "  "+name+" ")
		require.GreaterOrEqual(t, i, 0, "usage lists %s", name)
		order = append(order, i)
	}
	assert.IsIncreasing(t, order)
}

func TestParseCreateUserFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
		want    createUserOptions
	}{
		{name: "defaults to user role", args: []string{"--username", " bob ", "--password", "hunter22"},
			want: createUserOptions{Username: "bob", Password: "hunter22", Role: domainauth.RoleUser}},
		{name: "admin role", args: []string{"--username", "root", "--password-stdin", "--role", "ADMIN"},
			want: createUserOptions{Username: "root", PasswordStdin: true, Role: domainauth.RoleAdmin}},
		{name: "missing username", args: []string{"--password", "x"}, wantErr: "--username is required"},
		{name: "missing password", args: []string{"--username", "bob"}, wantErr: "--password or --password-stdin"},
		{name: "both password sources", args: []string{"--username", "bob", "--password", "x", "--password-stdin"},
			wantErr: "mutually exclusive"},
		{name: "bad role", args: []string{"--username", "bob", "--password", "x", "--role", "owner"}, wantErr: "--role"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCreateUserFlags(tt.args)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunCreateUser_PasswordFromStdin(t *testing.T) {
	cli := newTestCLI(t)
	cli.ctx.In = strings.NewReader("correct-horse\n")

	require.NoError(t, cli.run(t, "create-user", "--username", "carol", "--password-stdin", "--role", "admin"))
	assert.Contains(t, cli.out.String(), "created user carol")

	u, err := cli.users.GetByUsername(t.Context(), "carol")
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleAdmin, u.Role)
	assert.NotContains(t, u.PasswordHash, "correct-horse")

	err = cli.run(t, "create-user", "--username", "carol", "--password", "another-pass")
	require.Error(t, err, "usernames are unique")
}

func TestRunCreateUser_ShortPasswordRejected(t *testing.T) {
	cli := newTestCLI(t)
	err := cli.run(t, "create-user", "--username", "dave", "--password", "short")
	require.Error(t, err)
	n, cerr := cli.users.Count(t.Context())
	require.NoError(t, cerr)
	assert.Zero(t, n)
}

var rawTokenPattern = regexp.MustCompile(`token:\s+(rbx_\S+)`)

func TestTokenCommands_Lifecycle(t *testing.T) {
	cli := newTestCLI(t)

	require.NoError(t, cli.run(t, "create-token",
		"--name", "ci ingest", "--scopes", "ingest, read", "--collections", "docs", "--expires-in", "24h"))
	m := rawTokenPattern.FindStringSubmatch(cli.out.String())
	require.Len(t, m, 2, "raw token is printed once: %s", cli.out.String())

	toks, err := cli.tokens.List(t.Context())
	require.NoError(t, err)
	require.Len(t, toks, 1)
	tok := toks[0]
	assert.Equal(t, "ci ingest", tok.Name)
	assert.Equal(t, []string{"ingest", "read"}, tok.Scopes)
	assert.Equal(t, []string{"docs"}, tok.Collections)
	require.NotNil(t, tok.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), *tok.ExpiresAt, time.Minute)
	assert.True(t, strings.HasPrefix(m[1], tok.TokenPrefix))

	require.NoError(t, cli.run(t, "list-tokens"))
	table := cli.out.String()
	assert.Contains(t, table, "ci ingest")
	assert.Contains(t, table, tok.TokenPrefix)
	assert.NotContains(t, table, m[1], "the raw token is never listed")

	require.NoError(t, cli.run(t, "list-tokens", "--json"))
	var listed []map[string]any
	require.NoError(t, json.Unmarshal(cli.out.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, tok.ID, listed[0]["id"])
	assert.NotContains(t, listed[0], "tokenHash")

	require.NoError(t, cli.run(t, "revoke-token", tok.ID))
	assert.Contains(t, cli.out.String(), "revoked "+tok.ID)

	err = cli.run(t, "revoke-token", "--id", tok.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	require.NoError(t, cli.run(t, "list-tokens"))
	assert.Contains(t, cli.out.String(), "(no access tokens)")
}

func TestParseCreateTokenFlags(t *testing.T) {
	opts, err := parseCreateTokenFlags([]string{"--name", "reader"})
	require.NoError(t, err)
	assert.Equal(t, []string{domainauth.ScopeRead}, opts.Scopes)
	assert.Empty(t, opts.Collections)
	assert.Zero(t, opts.ExpiresIn)

	_, err = parseCreateTokenFlags([]string{"--scopes", "read"})
	require.Error(t, err)
	_, err = parseCreateTokenFlags([]string{"--name", "x", "--scopes", " , "})
	require.Error(t, err)
	_, err = parseCreateTokenFlags([]string{"--name", "x", "--expires-in", "-1h"})
	require.Error(t, err)
}

func TestRunCreateToken_UnknownScopeRejected(t *testing.T) {
	cli := newTestCLI(t)
	err := cli.run(t, "create-token", "--name", "bad", "--scopes", "superuser")
	require.Error(t, err)
	toks, lerr := cli.tokens.List(t.Context())
	require.NoError(t, lerr)
	assert.Empty(t, toks)
}

func TestRevokeTokenRequiresID(t *testing.T) {
	cli := newTestCLI(t)
	err := cli.run(t, "revoke-token")
	require.Error(t, err)
}

func TestParseMigrateFlags(t *testing.T) {
	opts, err := parseMigrateFlags("migrate", nil)
	require.NoError(t, err)
	assert.Equal(t, defaultMigrationTimeout, opts.Timeout)

	_, err = parseMigrateFlags("migrate", []string{"--timeout", "0s"})
	require.Error(t, err)
}

func TestPrintMigrationStatus(t *testing.T) {
	cli := newTestCLI(t)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, printMigrationStatus(cli.ctx, []migrate.Status{
		{Version: "001_users", Applied: true, AppliedAt: &at},
		{Version: "002_access_tokens"},
	}))

	lines := strings.Split(strings.TrimSpace(cli.out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Regexp(t, `^VERSION\s+APPLIED\s+APPLIED AT$`, lines[0])
	assert.Regexp(t, `^001_users\s+yes\s+2026-01-02T03:04:05Z$`, lines[1])
	assert.Regexp(t, `^002_access_tokens\s+no\s+-$`, lines[2])
}

func TestOpenPostgresReposRefusesMemoryBackend(t *testing.T) {
	cli := newTestCLI(t)
	cli.ctx.Config.Storage = config.StorageMemory
	_, err := cli.ctx.openPostgresRepos(t.Context())
	require.Error(t, err)
}
