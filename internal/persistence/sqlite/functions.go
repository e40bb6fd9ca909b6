package sqlite

import (
	"database/sql/driver"
	"strings"

	modernc "modernc.org/sqlite"
)

// foldFunction lowercases text with Unicode rules. The built-in LOWER folds
// ASCII only.
const foldFunction = "calendar_fold"

func init() {
	modernc.MustRegisterDeterministicScalarFunction(foldFunction, 1, fold)
}

func fold(_ *modernc.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}
