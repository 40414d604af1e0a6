package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	domainauth "github.com/ragbox/ragbox/internal/domain/auth"
	"github.com/ragbox/ragbox/internal/service"
)

type createTokenOptions struct {
	Name        string
	Scopes      []string
	Collections []string
	ExpiresIn   time.Duration
}

func parseCreateTokenFlags(args []string) (createTokenOptions, error) {
	fs := flag.NewFlagSet("create-token", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts createTokenOptions
	var scopes, collections string
	fs.StringVar(&opts.Name, "name", "", "Human readable token name (required)")
	fs.StringVar(&scopes, "scopes", domainauth.ScopeRead, "Comma separated scopes: read, write, query, ingest, admin")
	fs.StringVar(&collections, "collections", "", "Comma separated collections the token is limited to (default all)")
	fs.DurationVar(&opts.ExpiresIn, "expires-in", 0, "Token lifetime, e.g. 720h (default never expires)")

	if err := fs.Parse(args); err != nil {
		return createTokenOptions{}, err
	}

	opts.Name = strings.TrimSpace(opts.Name)
	opts.Scopes = splitList(scopes)
	opts.Collections = splitList(collections)
	switch {
	case opts.Name == "":
		return createTokenOptions{}, errors.New("--name is required")
	case len(opts.Scopes) == 0:
		return createTokenOptions{}, errors.New("--scopes must name at least one scope")
	case opts.ExpiresIn < 0:
		return createTokenOptions{}, errors.New("--expires-in must not be negative")
	}
	return opts, nil
}

func (c *commandContext) tokenService(r *repos) *service.AccessTokenService {
	return service.NewAccessTokenService(service.AccessTokenServiceOptions{
		Repo:   r.Tokens,
		Logger: c.Logger,
	})
}

func runCreateToken(cmdCtx *commandContext, args []string) error {
	opts, err := parseCreateTokenFlags(args)
	if err != nil {
		return err
	}

	return cmdCtx.withRepos(func(ctx context.Context, r *repos) error {
		in := domainauth.CreateAccessTokenInput{
			Name:        opts.Name,
			Scopes:      opts.Scopes,
			Collections: opts.Collections,
		}
		if opts.ExpiresIn > 0 {
			exp := time.Now().Add(opts.ExpiresIn).UTC()
			in.ExpiresAt = &exp
		}
		created, err := cmdCtx.tokenService(r).Create(ctx, in)
		if err != nil {
			return err
		}
		out := cmdCtx.out()
		if err := writef(out, "id:     %s\n", created.Token.ID); err != nil {
			return err
		}
		if err := writef(out, "scopes: %s\n", strings.Join(created.Token.Scopes, ",")); err != nil {
			return err
		}
		if err := writef(out, "token:  %s\n\n", created.RawToken); err != nil {
			return err
		}
		return writef(out, "Store the token now; it cannot be shown again.\n")
	})
}

type listTokensOptions struct {
	JSON bool
}

func parseListTokensFlags(args []string) (listTokensOptions, error) {
	fs := flag.NewFlagSet("list-tokens", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts listTokensOptions
	fs.BoolVar(&opts.JSON, "json", false, "Print tokens as JSON")
	if err := fs.Parse(args); err != nil {
		return listTokensOptions{}, err
	}
	return opts, nil
}

func runListTokens(cmdCtx *commandContext, args []string) error {
	opts, err := parseListTokensFlags(args)
	if err != nil {
		return err
	}

	return cmdCtx.withRepos(func(ctx context.Context, r *repos) error {
		toks, err := cmdCtx.tokenService(r).List(ctx)
		if err != nil {
			return err
		}
		if opts.JSON {
			enc := json.NewEncoder(cmdCtx.out())
			enc.SetIndent("", "  ")
			return enc.Encode(toks)
		}
		return printTokenTable(cmdCtx, toks)
	})
}

func printTokenTable(cmdCtx *commandContext, toks []*domainauth.AccessToken) error {
	if len(toks) == 0 {
		return writef(cmdCtx.out(), "(no access tokens)\n")
	}
	tw := tabwriter.NewWriter(cmdCtx.out(), 0, 4, 2, ' ', 0)
	if err := writef(tw, "ID\tNAME\tPREFIX\tSCOPES\tCOLLECTIONS\tEXPIRES\tLAST USED\n"); err != nil {
		return err
	}
	for _, t := range toks {
		collections := "*"
		if len(t.Collections) > 0 {
			collections = strings.Join(t.Collections, ",")
		}
		if err := writef(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Name, t.TokenPrefix, strings.Join(t.Scopes, ","), collections,
			formatOptionalTime(t.ExpiresAt, "never"), formatOptionalTime(t.LastUsedAt, "-"),
		); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func formatOptionalTime(t *time.Time, zero string) string {
	if t == nil {
		return zero
	}
	return t.UTC().Format(time.RFC3339)
}

func runRevokeToken(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("revoke-token", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var id string
	fs.StringVar(&id, "id", "", "Token id to revoke")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if id == "" && fs.NArg() == 1 {
		id = fs.Arg(0)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("revoke-token requires --id or a token id argument")
	}

	return cmdCtx.withRepos(func(ctx context.Context, r *repos) error {
		deleted, err := cmdCtx.tokenService(r).Delete(ctx, id)
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("access token %s not found", id)
		}
		return writef(cmdCtx.out(), "revoked %s\n", id)
	})
}
