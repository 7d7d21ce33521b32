// Package schema embeds the ledger migrations, one directory per dialect.
package schema

import "embed"

//go:embed postgres/*.sql sqlserver/*.sql sqlite/*.sql
var FS embed.FS
