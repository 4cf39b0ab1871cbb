package sk

import "context"

// DatabaseDriver dumps and restores the application database. It is chosen
// once from configuration: a file-based engine copies the database file, a
// network RDBMS shells out to its native dump and restore tools.
type DatabaseDriver interface {
	// Name identifies the engine ("sqlite", "postgres", "mysql").
	Name() string

	// DumpExtension is the file extension of a raw dump ("sqlite3" or "sql").
	DumpExtension() string

	// Dump writes a consistent export of the database to dst.
	Dump(ctx context.Context, dst string) error

	// Restore replays the export at src into the database.
	Restore(ctx context.Context, src string) error
}

// Archiver compresses pipeline artifacts.
type Archiver interface {
	// CompressFile gzips src into dst.
	CompressFile(src, dst string) error

	// DecompressFile gunzips src into dst.
	DecompressFile(src, dst string) error

	// ArchiveDir writes a gzip-compressed tar of dir to dst.
	ArchiveDir(dir, dst string) error
}
