package source

type (
	// FileID identifies a file inside a FileSet.
	FileID uint32
	// FileFlags records how the content was normalized on load.
	FileFlags uint8
)

const (
	FileVirtual FileFlags = 1 << iota // не с диска (тест, stdin)
	FileHadBOM
	FileNormalizedCRLF
)

// File is one loaded source file.
type File struct {
	ID      FileID
	Path    string
	Content []byte
	LineIdx []uint32 // offsets of '\n'
	Hash    [32]byte
	Flags   FileFlags
}

// LineCol is a 1-based position.
type LineCol struct {
	Line uint32
	Col  uint32
}
