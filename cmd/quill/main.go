package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/target/quill/config"
	"github.com/target/quill/internal/bootstrap"
	"github.com/target/quill/internal/service"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	Stdin  io.Reader
	Stdout io.Writer
}

func main() {
	os.Exit(run(os.Args[1:])) //nolint:forbidigo // CLI must propagate the command status to the shell
}

func run(args []string) int {
	if len(args) < 1 {
		_ = printUsage(os.Stderr)
		return 2
	}

	cmdName := args[0]
	cmd, ok := commands()[cmdName]
	if !ok {
		_ = writef(os.Stderr, "unknown command %q\n\n", cmdName)
		_ = printUsage(os.Stderr)
		return 2
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		_ = writef(os.Stderr, "load config: %v\n", err)
		return 1
	}
	logger := bootstrap.InitLogger(cfg.Observability.Logging.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmdCtx := &commandContext{
		Ctx:    ctx,
		Logger: logger,
		Config: cfg,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
	}
	if runErr := cmd.run(cmdCtx, args[1:]); runErr != nil {
		logger.DebugContext(ctx, "command failed", "command", cmdName, "error", runErr)
		_ = writeln(os.Stderr, service.FriendlyMessage(runErr))
		return 1
	}
	return 0
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Apply database migrations (-status lists them)",
			run:         runMigrate,
		},
		"signup": {
			name:        "signup",
			description: "Register an account and sign in",
			run:         runSignUp,
		},
		"signin": {
			name:        "signin",
			description: "Sign in and persist the session",
			run:         runSignIn,
		},
		"signout": {
			name:        "signout",
			description: "Clear the persisted session",
			run:         runSignOut,
		},
		"whoami": {
			name:        "whoami",
			description: "Show the current session",
			run:         runWhoAmI,
		},
		"list": {
			name:        "list",
			description: "List articles",
			run:         runList,
		},
		"show": {
			name:        "show",
			description: "Show one article",
			run:         runShow,
		},
		"create": {
			name:        "create",
			description: "Create an article",
			run:         runCreate,
		},
		"update": {
			name:        "update",
			description: "Edit an article you own",
			run:         runUpdate,
		},
		"delete": {
			name:        "delete",
			description: "Delete an article you own (requires -yes)",
			run:         runDelete,
		},
		"watch": {
			name:        "watch",
			description: "Print the article list as it changes",
			run:         runWatch,
		},
	}
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: quill <command> [flags]\n\nAvailable commands:\n"); err != nil {
		return err
	}
	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := writef(w, "  %-10s %s\n", name, cmds[name].description); err != nil {
			return err
		}
	}
	return nil
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	_, err := fmt.Fprintln(w, args...)
	return err
}
