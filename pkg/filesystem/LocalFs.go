package filesystem

import (
	"os"
	"path/filepath"

	"emperror.dev/errors"
	"github.com/op/go-logging"
)

type LocalFs struct {
	basepath string
	logger   *logging.Logger
}

func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func FolderExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return info.IsDir()
}

func NewLocalFs(basepath string, logger *logging.Logger) (*LocalFs, error) {
	if !FolderExists(basepath) {
		return nil, errors.Errorf("path %v does not exists", basepath)
	}
	return &LocalFs{basepath: basepath, logger: logger}, nil
}

func (fs *LocalFs) Protocol() string {
	return "file://"
}

func (fs *LocalFs) String() string {
	return fs.basepath
}

func (fs *LocalFs) path(folder, name string) string {
	return filepath.Join(fs.basepath, folder, name)
}

func (fs *LocalFs) FileStat(folder, name string, opts FileStatOptions) (os.FileInfo, error) {
	info, err := os.Stat(fs.path(folder, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "%v/%v", folder, name)
		}
		return nil, errors.Wrapf(err, "cannot stat %v/%v", folder, name)
	}
	return info, nil
}

func (fs *LocalFs) FileExists(folder, name string) (bool, error) {
	return FileExists(fs.path(folder, name)), nil
}

func (fs *LocalFs) FolderExists(folder string) (bool, error) {
	return FolderExists(filepath.Join(fs.basepath, folder)), nil
}

func (fs *LocalFs) FolderCreate(folder string, opts FolderCreateOptions) error {
	path := filepath.Join(fs.basepath, folder)
	if FolderExists(path) {
		return nil
	}
	fs.logger.Debugf("create folder %v", path)
	if err := os.MkdirAll(path, 0755); err != nil {
		return errors.Wrapf(err, "cannot create folder %v", path)
	}
	return nil
}

func (fs *LocalFs) FileGet(folder, name string, opts FileGetOptions) ([]byte, error) {
	data, err := os.ReadFile(fs.path(folder, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "%v/%v", folder, name)
		}
		return nil, errors.Wrapf(err, "cannot read file %v/%v", folder, name)
	}
	return data, nil
}

func (fs *LocalFs) FilePut(folder, name string, data []byte, opts FilePutOptions) error {
	if err := fs.FolderCreate(folder, FolderCreateOptions{}); err != nil {
		return errors.Wrapf(err, "cannot create folder %v", folder)
	}
	path := fs.path(folder, name)
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if opts.Exclusive {
		flags = os.O_CREATE | os.O_WRONLY | os.O_EXCL
	}
	fs.logger.Debugf("writing data to: %v", path)
	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		if os.IsExist(err) {
			return errors.Wrapf(ErrExists, "%v", path)
		}
		return errors.Wrapf(err, "cannot open file %v", path)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return errors.Wrapf(err, "cannot write data to %v", path)
	}
	if err := file.Close(); err != nil {
		return errors.Wrapf(err, "cannot close %v", path)
	}
	return nil
}
