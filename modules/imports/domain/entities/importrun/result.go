package importrun

// ConversionWarning records a non-empty cell that coerced to NULL.
type ConversionWarning struct {
	Column string `json:"column"`
	Row    int    `json:"row"`
	Raw    string `json:"raw"`
}

// Result is what one pipeline invocation reports back.
type Result struct {
	OK                bool                `json:"ok"`
	TableName         string              `json:"tableName"`
	AttemptedRows     int64               `json:"attemptedRows"`
	InsertedRows      int64               `json:"insertedRows"`
	SkippedDuplicates int64               `json:"skippedDuplicates"`
	Note              string              `json:"note"`
	Warnings          []ConversionWarning `json:"warnings,omitempty"`
	// WarningCount is exact even when Warnings is truncated.
	WarningCount int  `json:"warningCount,omitempty"`
	Cancelled    bool `json:"cancelled,omitempty"`
}
