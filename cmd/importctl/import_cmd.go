package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iota-uz/sheet-importer/modules/imports/domain/reportkind"
	"github.com/iota-uz/sheet-importer/modules/imports/infrastructure/spreadsheet"
	"github.com/iota-uz/sheet-importer/modules/imports/services"
	"github.com/iota-uz/sheet-importer/pkg/composables"
)

type importOptions struct {
	file      string
	kind      string
	name      string
	batchSize int
}

func newImportCmd(g *globalOptions) *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import one spreadsheet synchronously and print the result as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), g, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.file, "file", "", "Spreadsheet to import (required)")
	cmd.Flags().StringVar(&opts.kind, "kind", "", "Report kind (required)")
	cmd.Flags().StringVar(&opts.name, "name", "", "Source file name recorded in the table (default: base name of --file)")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "Rows per chunk (default: IMPORT_BATCH_SIZE)")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func runImport(ctx context.Context, g *globalOptions, opts importOptions, out io.Writer) error {
	if opts.batchSize < 0 {
		return withCode(exitUsage, fmt.Errorf("--batch-size must be positive, got %d", opts.batchSize))
	}
	e, err := openEnv(ctx, g)
	if err != nil {
		return err
	}
	defer e.Close()

	kinds, err := reportkind.Load(e.conf.Import.ReportKindsPath, e.conf.Import.Schema)
	if err != nil {
		return withCode(exitUsage, err)
	}
	if _, err := kinds.Resolve(opts.kind); err != nil {
		return classify(err)
	}

	tmp, err := copyToTemp(opts.file)
	if err != nil {
		return withCode(exitValidation, err)
	}

	chunk := opts.batchSize
	if chunk == 0 {
		chunk = e.conf.Import.BatchSize
	}
	svc := services.NewImportService(services.ImportServiceOptions{
		Destination:  e.backend.Destination,
		Runs:         e.backend.Runs,
		Kinds:        kinds,
		Reader:       spreadsheet.NewExcelReader(),
		Loader:       services.NewLoader(chunk, e.log.WithField("component", "loader")),
		WarningLimit: e.conf.Import.WarningLimit,
	})

	name := strings.TrimSpace(opts.name)
	if name == "" {
		name = filepath.Base(opts.file)
	}
	ctx = composables.WithLogger(e.backend.Context(ctx), e.log.WithField("component", "import"))
	result, err := svc.Run(ctx, services.Request{
		FilePath:         tmp,
		OriginalFileName: name,
		ReportKind:       opts.kind,
	})
	if err != nil {
		return classify(err)
	}
	return writeJSON(out, result)
}

// copyToTemp copies path so the pipeline can remove its input without
// touching the operator's file.
func copyToTemp(path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.CreateTemp("", "importctl-*"+filepath.Ext(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(dst.Name())
		return "", err
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}
