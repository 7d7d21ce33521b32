package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestFileLogger_WritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")

	f, logger, err := FileLogger(logrus.InfoLevel, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	logger.WithField("table", "JPV").Info("import finished")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"table":"JPV"`)
	require.Contains(t, string(data), `"msg":"import finished"`)
}

func TestNop_DropsEntries(t *testing.T) {
	logger := Nop()
	require.Equal(t, logrus.PanicLevel, logger.GetLevel())
	require.False(t, logger.IsLevelEnabled(logrus.ErrorLevel))
}
