package sqldb

import (
	"context"
	"embed"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/iota-uz/sheet-importer/modules/imports/domain/destination"
	"github.com/iota-uz/sheet-importer/modules/imports/domain/entities/importrun"
	"github.com/iota-uz/sheet-importer/modules/imports/domain/reportkind"
	"github.com/iota-uz/sheet-importer/modules/imports/domain/schema"
	persistenceschema "github.com/iota-uz/sheet-importer/modules/imports/infrastructure/persistence/schema"
	"github.com/iota-uz/sheet-importer/modules/imports/infrastructure/spreadsheet"
	"github.com/iota-uz/sheet-importer/modules/imports/services"
	"github.com/iota-uz/sheet-importer/pkg/migrations"
)

const jpvDDL = `
CREATE TABLE "JPV" (
	"__ImportedAt"     DATETIME NOT NULL,
	"__SourceFileName" VARCHAR(260) NOT NULL,
	"__RowNumber"      INTEGER NOT NULL,
	"__RowHash"        CHAR(64) NOT NULL UNIQUE,
	"Operacion"        BIGINT,
	"Monto"            DECIMAL(18,2),
	"Fecha"            DATETIME,
	"Nota"             VARCHAR(50),
	"Activo"           BOOLEAN
)`

func openTestSQLite(t *testing.T) *sqlx.DB {
	t.Helper()
	ctx := context.Background()
	db, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "imports.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.ExecContext(ctx, jpvDDL)
	require.NoError(t, err)

	quiet := logrus.New()
	quiet.SetOutput(io.Discard)
	require.NoError(t, migrations.Up(ctx, db.DB, DriverSQLite,
		migrations.FromEmbed([]*embed.FS{&persistenceschema.FS}), logrus.NewEntry(quiet)))
	return db
}

func TestSQLiteDestination_Columns(t *testing.T) {
	db := openTestSQLite(t)
	cols, err := NewSQLiteDestination(db.DB).Columns(context.Background(), schema.TableRef{Schema: "ignored", Table: "JPV"})
	require.NoError(t, err)
	require.Len(t, cols, 9)

	byName := map[string]schema.ColumnMetadata{}
	for _, c := range cols {
		byName[c.Name] = c
	}
	require.Equal(t, schema.Integer, byName["__RowNumber"].Kind)
	require.Equal(t, schema.Char, byName["__RowHash"].Kind)
	require.Equal(t, 64, byName["__RowHash"].MaxLength)
	require.Equal(t, schema.BigInt, byName["Operacion"].Kind)
	require.Equal(t, schema.Decimal, byName["Monto"].Kind)
	require.Equal(t, 18, byName["Monto"].Precision)
	require.Equal(t, 2, byName["Monto"].Scale)
	require.Equal(t, schema.Timestamp, byName["Fecha"].Kind)
	require.Equal(t, schema.VarChar, byName["Nota"].Kind)
	require.Equal(t, 50, byName["Nota"].MaxLength)
	require.Equal(t, schema.Bool, byName["Activo"].Kind)
	require.Equal(t, 1, cols[0].Ordinal)

	_, err = NewSQLiteDestination(db.DB).Columns(context.Background(), schema.TableRef{Table: "Nope"})
	require.ErrorIs(t, err, schema.ErrMetadataUnavailable)
}

func TestSQLiteDestination_InsertChunkIgnoresDuplicatesAcrossSubBatches(t *testing.T) {
	db := openTestSQLite(t)
	dest := NewSQLiteDestination(db.DB)
	ctx := context.Background()
	ref := schema.TableRef{Table: "JPV"}
	cols := []schema.ColumnMetadata{{Name: "Operacion", Kind: schema.BigInt}, {Name: "Nota", Kind: schema.VarChar}}

	// Six columns per row puts 166 rows in each statement.
	rows := make([]destination.TypedRow, 450)
	for i := range rows {
		rows[i] = destination.TypedRow{
			ImportedAt:     time.Now(),
			SourceFileName: "big.xlsx",
			RowNumber:      i + 1,
			Fingerprint:    fingerprintFor(i),
			Values:         []any{int64(i), "n"},
		}
	}
	require.NoError(t, dest.InsertChunk(ctx, ref, cols, rows))
	require.NoError(t, dest.InsertChunk(ctx, ref, cols, rows[:10]))

	n, err := dest.CountBySource(ctx, ref, "big.xlsx")
	require.NoError(t, err)
	require.Equal(t, int64(450), n)
}

func fingerprintFor(i int) string {
	return time.Unix(int64(i), 0).UTC().Format("20060102150405")
}

func writeSalesWorkbook(t *testing.T, dir string, rows int) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	header := []any{"Operacion", "Monto", "Fecha", "Nota", "Ignorada"}
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &header))
	for i := 0; i < rows; i++ {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		require.NoError(t, err)
		row := []any{1000 + i, "1.234,56", "12/01/2025 23:59:02", "nota", "x"}
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	path := filepath.Join(dir, "upload.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestSQLitePipeline_ReimportSameFileTwice(t *testing.T) {
	db := openTestSQLite(t)
	runs, err := NewRunRepository(db)
	require.NoError(t, err)

	svc := services.NewImportService(services.ImportServiceOptions{
		Destination: NewSQLiteDestination(db.DB),
		Runs:        runs,
		Kinds:       reportkind.Defaults(""),
		Reader:      spreadsheet.NewExcelReader(),
		Loader:      services.NewLoader(3, nil),
	})
	ctx := context.Background()

	first, err := svc.Run(ctx, services.Request{
		FilePath:         writeSalesWorkbook(t, t.TempDir(), 7),
		OriginalFileName: "jpv.xlsx",
		ReportKind:       "jpv",
	})
	require.NoError(t, err)
	require.Equal(t, int64(7), first.AttemptedRows)
	require.Equal(t, int64(7), first.InsertedRows)
	require.Zero(t, first.SkippedDuplicates)
	require.Equal(t, SQLiteNote, first.Note)

	path := writeSalesWorkbook(t, t.TempDir(), 7)
	second, err := svc.Run(ctx, services.Request{FilePath: path, OriginalFileName: "jpv.xlsx", ReportKind: "jpv"})
	require.NoError(t, err)
	require.Zero(t, second.InsertedRows)
	require.Equal(t, int64(7), second.SkippedDuplicates)
	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr))

	var monto float64
	var fecha time.Time
	require.NoError(t, db.QueryRowxContext(ctx, `SELECT "Monto", "Fecha" FROM "JPV" WHERE "__RowNumber" = 1`).Scan(&monto, &fecha))
	require.InDelta(t, 1234.56, monto, 1e-9)
	require.True(t, fecha.Equal(time.Date(2025, 1, 12, 23, 59, 2, 0, time.Local)))

	list, err := runs.List(ctx, &importrun.FindParams{TableName: "JPV"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, importrun.StatusSuccess, list[0].Status)
	require.Equal(t, int64(7), list[0].SkippedDuplicates+list[1].SkippedDuplicates)
}

func TestRunRepository_SQLiteFilters(t *testing.T) {
	db := openTestSQLite(t)
	repo, err := NewRunRepository(db)
	require.NoError(t, err)
	ctx := context.Background()

	base := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	msg := "boom"
	for i, st := range []importrun.Status{importrun.StatusSuccess, importrun.StatusFailed, importrun.StatusSuccess} {
		run := &importrun.ImportRun{
			TableName:      "JPV",
			SourceFileName: "f.xlsx",
			Status:         st,
			ImportedAt:     base.Add(time.Duration(i) * time.Hour),
		}
		if st == importrun.StatusFailed {
			run.ErrorMessage = &msg
		}
		require.NoError(t, repo.Create(ctx, run))
		require.NotZero(t, run.ID)
	}

	all, err := repo.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.True(t, all[0].ImportedAt.After(all[1].ImportedAt))

	failed, err := repo.List(ctx, &importrun.FindParams{Status: importrun.StatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Equal(t, msg, *failed[0].ErrorMessage)

	limited, err := repo.List(ctx, &importrun.FindParams{Limit: 2})
	require.NoError(t, err)
	require.Len(t, limited, 2)
}
