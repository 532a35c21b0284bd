package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/nkiryanov/userdir/internal/authclient"
	"github.com/nkiryanov/userdir/internal/logger"
)

const usage = `userdirctl [flags] <command>

Commands:
  login    log in and print the user
  profile  print the profile of the logged in user
  users    print the user list
  claims   print the claims of the access token (not verified)
`

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Getenv, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type options struct {
	baseURL  string
	username string
	email    string
	password string
	logLevel string
	repeat   int
	interval time.Duration
}

func run(ctx context.Context, args []string, getenv func(string) string, out io.Writer) error {
	var o options

	fs := pflag.NewFlagSet("userdirctl", pflag.ContinueOnError)
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage); fs.PrintDefaults() }
	fs.StringVar(&o.baseURL, "url", "http://localhost:8000", "Server base url")
	fs.StringVarP(&o.username, "username", "u", "", "Username")
	fs.StringVar(&o.email, "email", "", "Email, used when username is empty")
	fs.StringVarP(&o.password, "password", "p", getenv("USERDIR_PASSWORD"), "Password (or USERDIR_PASSWORD)")
	fs.StringVarP(&o.logLevel, "log-level", "l", logger.LevelWarn, "Logging level (debug, info, warn, error)")
	fs.IntVar(&o.repeat, "repeat", 1, "Run the command that many times, tokens are refreshed when needed")
	fs.DurationVar(&o.interval, "interval", time.Second, "Pause between repeats")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("exactly one command expected, see --help")
	}
	command := fs.Arg(0)

	l, err := logger.NewTextLogger(o.logLevel)
	if err != nil {
		return err
	}

	client, err := authclient.New(o.baseURL, authclient.WithLogger(l))
	if err != nil {
		return err
	}

	res, err := client.Login(ctx, authclient.LoginRequest{
		Provider: "password",
		Username: o.username,
		Email:    o.email,
		Password: o.password,
	})
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	defer func() {
		if err := client.Logout(context.WithoutCancel(ctx)); err != nil {
			l.Warn("logout failed", "error", err)
		}
	}()

	for i := range o.repeat {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(o.interval):
			}
		}

		if err := execute(ctx, client, command, res, out); err != nil {
			return err
		}
	}
	return nil
}

func execute(ctx context.Context, client *authclient.Client, command string, login authclient.LoginResponse, out io.Writer) error {
	var v any

	switch command {
	case "login":
		v = login.User
	case "profile":
		var profile struct {
			User *authclient.User `json:"user"`
		}
		if err := client.GetJSON(ctx, "/api/jwt/profile", &profile); err != nil {
			return err
		}
		v = profile.User
	case "users":
		var users struct {
			Data []authclient.User `json:"data"`
		}
		if err := client.GetJSON(ctx, "/api/users", &users); err != nil {
			return err
		}
		v = users.Data
	case "claims":
		claims, err := client.Claims()
		if err != nil {
			return err
		}
		v = claims
	default:
		return fmt.Errorf("unknown command %q", command)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
