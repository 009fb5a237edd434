// Package types defines every cross-package data structure used by the context-gather CLI.
package types

const (
	// DefaultMaxFileSize is the per-file size ceiling in bytes before a file is skipped.
	DefaultMaxFileSize int64 = 1024 * 1024
	// DefaultChunkSize disables chunking unless configured otherwise.
	DefaultChunkSize = 0
	// HeaderVersion is the schema version advertised by the manifest chunk.
	HeaderVersion = "1"
)

// FileContent is one gathered source file held fully in memory.
// Path and Folder are forward-slash relative paths.
type FileContent struct {
	Folder string
	Path   string
	Text   string
}

// FileMeta describes one input file inside the manifest chunk.
// Tokens is the token count of the file's (possibly escaped) content and
// Parts is the number of rendered parts the file was split into.
type FileMeta struct {
	ID     int
	Path   string
	Tokens int
	Parts  int
}

// RenderedChunk is one fully wrapped on-wire chunk, exactly as printed or copied.
type RenderedChunk struct {
	Snippet string
	Tokens  int
}

// GitInfo carries repository metadata rendered into the manifest chunk.
type GitInfo struct {
	Branch         string
	CommitSubjects []string
	ChangedPaths   []string
}

// ValidatedPath is an absolute input path that already passed existence checks.
type ValidatedPath struct {
	AbsolutePath string
	IsDir        bool
}
