package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	domainauth "github.com/target/quill/internal/domain/auth"
	"github.com/target/quill/internal/service"
)

type credentialOptions struct {
	Email    string
	Password string
	Name     string
	Role     string
}

func parseCredentialFlags(name string, args []string, withProfile bool) (credentialOptions, error) {
	var opts credentialOptions
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&opts.Email, "email", "", "account email")
	fs.StringVar(&opts.Password, "password", "", "account password (read from stdin when empty)")
	if withProfile {
		fs.StringVar(&opts.Name, "name", "", "display name")
		fs.StringVar(&opts.Role, "role", "", "requested role (admin, editor, visitor)")
	}
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if strings.TrimSpace(opts.Email) == "" {
		return opts, errors.New("-email is required")
	}
	return opts, nil
}

// readPassword returns the first line of r.
func readPassword(r io.Reader) (string, error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return "", errors.New("no password given")
	}
	return strings.TrimRight(sc.Text(), "\r"), nil
}

func (o *credentialOptions) resolvePassword(cmdCtx *commandContext) error {
	if o.Password != "" {
		return nil
	}
	pw, err := readPassword(cmdCtx.Stdin)
	if err != nil {
		return err
	}
	o.Password = pw
	return nil
}

func runSignUp(cmdCtx *commandContext, args []string) error {
	opts, err := parseCredentialFlags("signup", args, true)
	if err != nil {
		return err
	}
	if err := opts.resolvePassword(cmdCtx); err != nil {
		return err
	}

	svc, err := openServices(cmdCtx, openOptions{WantDB: true})
	if err != nil {
		return err
	}
	defer closeServices(cmdCtx, svc)

	ctx, cancel := requestContext(cmdCtx)
	defer cancel()
	sess, err := svc.Sessions.SignUp(ctx, service.SignUpInput{
		Name:     opts.Name,
		Email:    opts.Email,
		Password: opts.Password,
		Role:     domainauth.Role(strings.ToLower(strings.TrimSpace(opts.Role))),
	})
	if err != nil {
		return err
	}
	return printSession(cmdCtx.Stdout, sess, cmdCtx.Config.Auth.Session.MaxAge)
}

func runSignIn(cmdCtx *commandContext, args []string) error {
	opts, err := parseCredentialFlags("signin", args, false)
	if err != nil {
		return err
	}
	if err := opts.resolvePassword(cmdCtx); err != nil {
		return err
	}

	svc, err := openServices(cmdCtx, openOptions{})
	if err != nil {
		return err
	}
	defer closeServices(cmdCtx, svc)

	ctx, cancel := requestContext(cmdCtx)
	defer cancel()
	sess, err := svc.Sessions.SignIn(ctx, opts.Email, opts.Password)
	if err != nil {
		return err
	}
	return printSession(cmdCtx.Stdout, sess, cmdCtx.Config.Auth.Session.MaxAge)
}

func runSignOut(cmdCtx *commandContext, _ []string) error {
	svc, err := openServices(cmdCtx, openOptions{})
	if err != nil {
		return err
	}
	defer closeServices(cmdCtx, svc)

	ctx, cancel := requestContext(cmdCtx)
	defer cancel()
	svc.Sessions.LoadSession(ctx)
	if err := svc.Sessions.SignOut(ctx); err != nil {
		return err
	}
	return writeln(cmdCtx.Stdout, "signed out")
}

func runWhoAmI(cmdCtx *commandContext, _ []string) error {
	svc, err := openServices(cmdCtx, openOptions{})
	if err != nil {
		return err
	}
	defer closeServices(cmdCtx, svc)

	ctx, cancel := requestContext(cmdCtx)
	defer cancel()
	return printSession(cmdCtx.Stdout, svc.Sessions.LoadSession(ctx), cmdCtx.Config.Auth.Session.MaxAge)
}

func printSession(w io.Writer, sess *domainauth.Session, maxAge time.Duration) error {
	if sess == nil {
		return writeln(w, "not signed in")
	}
	perms := make([]string, 0, len(sess.Permissions))
	for _, p := range sess.Permissions {
		perms = append(perms, string(p))
	}
	expires := sess.StartedAt().Add(maxAge).UTC().Format(time.RFC3339)
	return writef(w, "%s <%s>\nrole: %s\npermissions: %s\nexpires: %s\n",
		sess.Name, sess.Email, sess.Role, strings.Join(perms, ", "), expires)
}
