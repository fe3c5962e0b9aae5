package store

// schemaStatements creates the tables described in spec §4.B. Statements are
// idempotent (CREATE TABLE IF NOT EXISTS) so opening an existing live
// database or an existing stub database is a no-op migration.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS packages (
		pkg               TEXT PRIMARY KEY,
		version           TEXT NOT NULL,
		origin            TEXT NOT NULL DEFAULT '',
		prefix            TEXT NOT NULL DEFAULT '',
		lang              TEXT NOT NULL DEFAULT '',
		options           TEXT NOT NULL DEFAULT '',
		comment           TEXT NOT NULL DEFAULT '',
		desc              TEXT NOT NULL DEFAULT '',
		os_release        TEXT NOT NULL DEFAULT '',
		cpe               TEXT NOT NULL DEFAULT '',
		purl              TEXT NOT NULL DEFAULT '',
		locked            INTEGER NOT NULL DEFAULT 0,
		deprecated        TEXT NOT NULL DEFAULT '',
		expiration_date   INTEGER NOT NULL DEFAULT 0,
		no_provide_shlib  INTEGER NOT NULL DEFAULT 0,
		flavor            TEXT NOT NULL DEFAULT '',
		automatic         INTEGER NOT NULL DEFAULT 0,
		install_date      INTEGER NOT NULL DEFAULT 0,
		type              INTEGER NOT NULL DEFAULT 0,
		flatsize          INTEGER NOT NULL DEFAULT 0,
		status            TEXT NOT NULL DEFAULT 'dirty'
	)`,
	`CREATE TABLE IF NOT EXISTS assets (
		pkg      TEXT NOT NULL REFERENCES packages(pkg),
		seq      INTEGER NOT NULL,
		type     INTEGER NOT NULL,
		data     TEXT NOT NULL DEFAULT '',
		checksum TEXT NOT NULL DEFAULT '',
		owner    TEXT NOT NULL DEFAULT '',
		grp      TEXT NOT NULL DEFAULT '',
		mode     TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS assets_pkg_seq ON assets(pkg, seq)`,
	`CREATE TABLE IF NOT EXISTS depends (
		pkg             TEXT NOT NULL REFERENCES packages(pkg),
		depend_pkgname  TEXT NOT NULL,
		depend_pkgversion TEXT NOT NULL DEFAULT '',
		depend_port     TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS depends_pkg ON depends(pkg)`,
	`CREATE INDEX IF NOT EXISTS depends_name ON depends(depend_pkgname)`,
	`CREATE TABLE IF NOT EXISTS categories (
		pkg      TEXT NOT NULL REFERENCES packages(pkg),
		seq      INTEGER NOT NULL,
		category TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS conflicts (
		pkg             TEXT NOT NULL REFERENCES packages(pkg),
		conflict_pkg    TEXT NOT NULL,
		conflict_version TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS log (
		pkg     TEXT NOT NULL,
		version TEXT NOT NULL DEFAULT '',
		date    INTEGER NOT NULL,
		msg     TEXT NOT NULL
	)`,
}
