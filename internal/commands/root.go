// Package commands implements the txingest command line.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/JonMunkholm/txingest/internal/config"
	"github.com/JonMunkholm/txingest/internal/core"
	"github.com/JonMunkholm/txingest/internal/logging"
	"github.com/JonMunkholm/txingest/internal/store"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X .../commands.Version=...".
var Version = "dev"

// exitError carries a process exit status. A nil err means the command
// already reported its outcome.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// app holds state shared by the subcommands.
type app struct {
	lookup  config.LookupFunc
	envFile string
	cfg     *config.Config
}

// Execute runs the command line and returns the process exit status.
func Execute() int {
	return run(NewRootCmd())
}

// NewRootCmd builds the command tree reading configuration from the
// process environment.
func NewRootCmd() *cobra.Command {
	return newRootCmd(os.LookupEnv)
}

func newRootCmd(lookup config.LookupFunc) *cobra.Command {
	a := &app{lookup: lookup}

	root := &cobra.Command{
		Use:   "txingest",
		Short: "Import transaction CSV batches",
		Long: `txingest validates transaction CSV batches and stores each reference once.

Configuration comes from the environment, optionally seeded from a .env
file. Run "txingest serve" for the HTTP interface or "txingest import"
to load files directly.`,
		Version: Version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file to load; values override the environment")

	root.AddCommand(
		a.serveCmd(),
		a.importCmd(),
		a.migrateCmd(),
		newVersionCmd(),
	)
	return root
}

func run(root *cobra.Command) int {
	err := root.Execute()
	if err == nil {
		return 0
	}

	code := 1
	var exit *exitError
	if errors.As(err, &exit) {
		code = exit.code
		err = exit.err
	}
	if err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
	}
	return code
}

// setup loads the dotenv file and configuration and installs the logger.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if a.envFile != "" {
		if err := godotenv.Overload(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", a.envFile, err)
		}
	}

	cfg, err := config.LoadFrom(a.lookup)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	a.cfg = cfg

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format, cmd.ErrOrStderr())
	slog.Debug("configuration loaded", "config", cfg.String())
	return nil
}

// openStore opens the configured backend and, when migrate is set,
// brings its schema up to date.
func (a *app) openStore(ctx context.Context, migrate bool) (store.Backend, error) {
	backend, err := store.Open(ctx, a.cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", a.cfg.Database.Driver, err)
	}
	slog.Info("store opened", "driver", a.cfg.Database.Driver)

	if migrate {
		if _, err := store.Migrate(backend); err != nil {
			backend.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return backend, nil
}

func (a *app) newService(backend store.Backend) *core.Service {
	return core.NewService(backend, backend, core.ServiceConfig{
		MaxConcurrent: a.cfg.Import.MaxConcurrent,
		MaxWait:       a.cfg.Import.MaxWaitTime,
		Timeout:       a.cfg.Import.Timeout,
		ResultTTL:     a.cfg.Import.ResultTTL,
	})
}

// readInput reads a named file, or r when name is "-".
func readInput(name string, r io.Reader) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(r)
	}
	return os.ReadFile(name)
}
