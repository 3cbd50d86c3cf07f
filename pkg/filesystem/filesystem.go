package filesystem

import (
	"os"

	"emperror.dev/errors"
)

var ErrNotFound = errors.NewPlain("file not found")

// ErrExists is returned by FilePut with Exclusive set if the target is already there
var ErrExists = errors.NewPlain("file already exists")

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

type FilePutOptions struct {
	ContentType string
	// Exclusive fails with ErrExists instead of replacing an existing file
	Exclusive bool
}

type FileGetOptions struct {
	VersionID string
}

type FileStatOptions struct {
}

type FolderCreateOptions struct {
}

type FileSystem interface {
	FolderExists(folder string) (bool, error)
	FolderCreate(folder string, opts FolderCreateOptions) error
	FileExists(folder, name string) (bool, error)
	FileGet(folder, name string, opts FileGetOptions) ([]byte, error)
	FilePut(folder, name string, data []byte, opts FilePutOptions) error
	FileStat(folder, name string, opts FileStatOptions) (os.FileInfo, error)
	String() string
	Protocol() string
}

// Committer is implemented by vaults with history
type Committer interface {
	Commit(msg string) (string, error)
}
