package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ragbox/ragbox/internal/bootstrap"
	domainauth "github.com/ragbox/ragbox/internal/domain/auth"
	"github.com/ragbox/ragbox/internal/service"
)

type createUserOptions struct {
	Username      string
	Password      string
	PasswordStdin bool
	Role          domainauth.Role
}

func parseCreateUserFlags(args []string) (createUserOptions, error) {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts createUserOptions
	var role string
	fs.StringVar(&opts.Username, "username", "", "Login name (required)")
	fs.StringVar(&opts.Password, "password", "", "Password; prefer --password-stdin")
	fs.BoolVar(&opts.PasswordStdin, "password-stdin", false, "Read the password from the first line of stdin")
	fs.StringVar(&role, "role", string(domainauth.RoleUser), "Role: admin or user")

	if err := fs.Parse(args); err != nil {
		return createUserOptions{}, err
	}

	opts.Username = strings.TrimSpace(opts.Username)
	opts.Role = domainauth.Role(strings.ToLower(strings.TrimSpace(role)))
	switch {
	case opts.Username == "":
		return createUserOptions{}, errors.New("--username is required")
	case opts.PasswordStdin && opts.Password != "":
		return createUserOptions{}, errors.New("--password and --password-stdin are mutually exclusive")
	case !opts.PasswordStdin && opts.Password == "":
		return createUserOptions{}, errors.New("--password or --password-stdin is required")
	case !opts.Role.Valid():
		return createUserOptions{}, fmt.Errorf("--role must be %q or %q", domainauth.RoleAdmin, domainauth.RoleUser)
	}
	return opts, nil
}

func readPasswordLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	pw := strings.TrimRight(line, "\r\n")
	if pw == "" {
		return "", errors.New("read password: stdin was empty")
	}
	return pw, nil
}

func runCreateUser(cmdCtx *commandContext, args []string) error {
	opts, err := parseCreateUserFlags(args)
	if err != nil {
		return err
	}
	if opts.PasswordStdin {
		if opts.Password, err = readPasswordLine(cmdCtx.in()); err != nil {
			return err
		}
	}

	creds, err := bootstrap.NewCredentialService(cmdCtx.Config.Auth, cmdCtx.Logger)
	if err != nil {
		return err
	}

	return cmdCtx.withRepos(func(ctx context.Context, r *repos) error {
		users := service.NewUserService(service.UserServiceOptions{
			Users:       r.Users,
			Credentials: creds,
			Logger:      cmdCtx.Logger,
		})
		u, err := users.CreateUser(ctx, opts.Username, opts.Password, opts.Role)
		if err != nil {
			return err
		}
		return writef(cmdCtx.out(), "created user %s (id %s, role %s)\n", u.Username, u.ID, u.Role)
	})
}
