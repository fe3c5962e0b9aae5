package store

import (
	"database/sql/driver"

	"github.com/midnightbsd/go-mport/log"

	sqlite "modernc.org/sqlite"
)

// registerVersionCmp registers the version_cmp(a, b) SQL scalar function,
// which exposes mport's version algebra (spec §4.B) to SQL in place of
// SQLite's lexical string comparison. No query in this package calls it.
func registerVersionCmp() {
	err := sqlite.RegisterDeterministicScalarFunction("version_cmp", 2,
		func(ctx *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			a, _ := args[0].(string)
			b, _ := args[1].(string)
			return int64(versionCmp(a, b)), nil
		})
	if err != nil {
		// Registration only fails on a name collision, which would be a
		// programming error (double init), not a runtime condition.
		log.Errorf("store: register version_cmp: %v", err)
	}
}
