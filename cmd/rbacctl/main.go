// rbacctl administers the panel's role-based access control data: it applies
// the schema, seeds the built-in roles, assigns roles, manages per-user
// overrides and answers permission checks from the command line.
//
// Configuration comes from the environment (optionally a .env file):
// PG_CONN_URL and the other PG_* variables select the database, APP_ENV,
// LOG_LEVEL and LOG_FORMAT control logging, and RBAC_CACHE selects the
// effective-permission cache (none, lru or redis, the latter configured by
// REDIS_URL).
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/phillgates2/panel-sub002/pkg/config"
	"github.com/phillgates2/panel-sub002/pkg/environment"
	"github.com/phillgates2/panel-sub002/pkg/rbac"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()

	if err != nil {
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// exitError ends the process with code after the command already wrote its output.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}

func (e *exitError) ExitCode() int {
	return e.code
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var envFile, actor string

	flagSet := pflag.NewFlagSet("rbacctl", pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&envFile, "env-file", "", "load variables from this .env file first")
	flagSet.StringVar(&actor, "actor", os.Getenv("USER"), "who is making changes, recorded in the audit log")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printUsage(stderr, flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printUsage(stderr, flagSet)
		return nil
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		printUsage(stderr, flagSet)
		return &exitError{code: 2}
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		return fmt.Errorf("unknown command %q, run rbacctl --help", rest[0])
	}

	if envFile != "" {
		if err := config.LoadEnv(envFile); err != nil {
			return err
		}
	}
	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return err
	}
	env, err := cfg.environment()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg, stderr)
	if err != nil {
		return err
	}

	ctx = environment.WithContext(ctx, env)
	if actor != "" {
		ctx = rbac.WithUser(ctx, actor)
	}

	a, err := openApp(ctx, cfg, log, stdout)
	if err != nil {
		return err
	}
	defer a.Close()

	return cmd.run(ctx, a, rest[1:])
}

func printUsage(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, "rbacctl manages roles, permissions and user access.\n\nUsage:\n  rbacctl [flags] <command> [args]\n\nCommands:\n")

	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-16s %s\n", name, commands[name].summary)
	}

	fmt.Fprintf(w, "\nFlags:\n")
	flagSet.SetOutput(w)
	flagSet.PrintDefaults()
}
