package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/JonMunkholm/txingest/internal/core"
	"github.com/spf13/cobra"
)

// Exit statuses of the import command.
const (
	exitRejected = 1
	exitPartial  = 2
)

func (a *app) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE...",
		Short: "Import CSV files into the store",
		Long: `Import runs each file through the same pipeline as POST /transactions
and prints one summary line per file. Use "-" to read standard input.

Exit status is 0 when every row of every file was created, 2 when some
rows were rejected or duplicates, and 1 when a file could not be read
as a batch at all.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runImport(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), args)
		},
	}
}

func (a *app) runImport(ctx context.Context, stdin io.Reader, out io.Writer, files []string) error {
	backend, err := a.openStore(ctx, a.cfg.Database.AutoMigrate)
	if err != nil {
		return err
	}
	defer backend.Close()

	service := a.newService(backend)

	code := 0
	for _, name := range files {
		label := name
		if name == "-" {
			label = "stdin"
		}

		body, err := readInput(name, stdin)
		if err != nil {
			return fmt.Errorf("read %s: %w", label, err)
		}

		report, err := service.Import(ctx, body)
		if err != nil {
			if !core.IsStructural(err) {
				return fmt.Errorf("%s: %w", label, err)
			}
			fmt.Fprintf(out, "%s: %s\n", label, core.FormatUserError(err))
			code = exitRejected
			continue
		}

		fmt.Fprintf(out, "%s: %s\n", label, report.Message)
		if report.Status == core.PartialSuccess && code == 0 {
			code = exitPartial
		}
	}

	if code != 0 {
		return &exitError{code: code}
	}
	return nil
}
