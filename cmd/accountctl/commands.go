package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"golang.org/x/term"

	ac "github.com/panyam/accounts"
	"github.com/panyam/accounts/client"
)

// readPassword is replaced in tests.
var readPassword = func() ([]byte, error) {
	return term.ReadPassword(int(os.Stdin.Fd()))
}

type app struct {
	client *client.AccountClient
	store  client.CredentialStore
	in     *bufio.Reader
	out    io.Writer
}

type command func(a *app, ctx context.Context, args []string) error

var commands = map[string]command{
	"signup":  (*app).signup,
	"login":   (*app).login,
	"resend":  (*app).resend,
	"whoami":  (*app).whoami,
	"rename":  (*app).rename,
	"passwd":  (*app).passwd,
	"logout":  (*app).logout,
	"servers": (*app).servers,
}

func commandNames() string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, "|")
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: accountctl <%s>", commandNames())
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("unknown command %q, expected one of %s", args[0], commandNames())
	}
	return describe(cmd(a, ctx, args[1:]))
}

// describe turns server rejections into messages a person can act on.
func describe(err error) error {
	var authErr *ac.AuthError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &authErr):
		if authErr.Field != "" {
			return fmt.Errorf("%s: %s", authErr.Field, authErr.Code)
		}
		return errors.New(string(authErr.Code))
	case errors.Is(err, client.ErrNotLoggedIn):
		return errors.New("not logged in, run accountctl login")
	}
	return err
}

// arg returns args[i] or prompts for it.
func (a *app) arg(args []string, i int, prompt string) (string, error) {
	if i < len(args) {
		return args[i], nil
	}
	fmt.Fprintf(a.out, "%s: ", prompt)
	line, err := a.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (a *app) password(prompt string) (string, error) {
	fmt.Fprintf(a.out, "%s: ", prompt)
	pw, err := readPassword()
	fmt.Fprintln(a.out)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

func (a *app) signup(ctx context.Context, args []string) error {
	email, err := a.arg(args, 0, "Email")
	if err != nil {
		return err
	}
	username, err := a.arg(args, 1, "Username")
	if err != nil {
		return err
	}
	password, err := a.password("Password")
	if err != nil {
		return err
	}
	if err := a.client.Signup(ctx, email, password, username); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Check %s for a verification link.\n", email)
	return nil
}

func (a *app) login(ctx context.Context, args []string) error {
	email, err := a.arg(args, 0, "Email")
	if err != nil {
		return err
	}
	password, err := a.password("Password")
	if err != nil {
		return err
	}
	cred, err := a.client.Login(ctx, email, password)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Logged in as %s until %s.\n", cred.Email, cred.ExpiresAt.Local().Format("15:04 Jan 2"))
	return nil
}

func (a *app) resend(ctx context.Context, args []string) error {
	email, err := a.arg(args, 0, "Email")
	if err != nil {
		return err
	}
	if err := a.client.ResendVerification(ctx, email); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Sent a new verification link to %s.\n", email)
	return nil
}

func (a *app) whoami(ctx context.Context, args []string) error {
	p, err := a.client.Me(ctx)
	if err != nil {
		return err
	}
	status := "unverified"
	if p.Verified {
		status = "verified"
	}
	fmt.Fprintf(a.out, "%s <%s> (%s, %s)\n", p.Username, p.EmailAddress, p.Provider, status)
	return nil
}

func (a *app) rename(ctx context.Context, args []string) error {
	name, err := a.arg(args, 0, "New username")
	if err != nil {
		return err
	}
	return a.client.UpdateDisplayName(ctx, name)
}

func (a *app) passwd(ctx context.Context, args []string) error {
	oldPassword, err := a.password("Current password")
	if err != nil {
		return err
	}
	newPassword, err := a.password("New password")
	if err != nil {
		return err
	}
	if err := a.client.ChangePassword(ctx, oldPassword, newPassword); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Password changed.")
	return nil
}

func (a *app) logout(ctx context.Context, args []string) error {
	return a.client.Logout()
}

func (a *app) servers(ctx context.Context, args []string) error {
	servers, err := a.store.ListServers()
	if err != nil {
		return err
	}
	for _, s := range servers {
		fmt.Fprintln(a.out, s)
	}
	return nil
}
