package filesystem

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"emperror.dev/errors"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/op/go-logging"
)

// GitFs is a LocalFs inside a git work tree. Written files are staged and
// recorded by Commit. It is safe for concurrent use.
type GitFs struct {
	mu          sync.Mutex
	localFs     *LocalFs
	repo        *git.Repository
	authorName  string
	authorEmail string
	staged      int
	logger      *logging.Logger
}

func NewGitFs(basepath string, initRepo bool, authorName, authorEmail string, logger *logging.Logger) (*GitFs, error) {
	localfs, err := NewLocalFs(basepath, logger)
	if err != nil {
		return nil, errors.Wrap(err, "cannot create local fs")
	}
	gitFs := &GitFs{
		localFs:     localfs,
		authorName:  authorName,
		authorEmail: authorEmail,
		logger:      logger,
	}
	if err := gitFs.Open(initRepo); err != nil {
		return nil, errors.Wrap(err, "cannot open gitfs")
	}
	return gitFs, nil
}

func (fs *GitFs) Protocol() string {
	return "git+file://"
}

func (fs *GitFs) String() string {
	return fs.localFs.basepath
}

func (fs *GitFs) Open(initRepo bool) error {
	var err error
	fs.repo, err = git.PlainOpen(fs.localFs.basepath)
	if err == git.ErrRepositoryNotExists && initRepo {
		fs.logger.Infof("initializing git repository at %v", fs.localFs.basepath)
		fs.repo, err = git.PlainInit(fs.localFs.basepath, false)
	}
	if err != nil {
		return errors.Wrapf(err, "cannot open git repository at %v", fs.localFs.basepath)
	}
	return nil
}

func (fs *GitFs) FileStat(folder, name string, opts FileStatOptions) (os.FileInfo, error) {
	return fs.localFs.FileStat(folder, name, opts)
}

func (fs *GitFs) FileExists(folder, name string) (bool, error) {
	return fs.localFs.FileExists(folder, name)
}

func (fs *GitFs) FolderExists(folder string) (bool, error) {
	return fs.localFs.FolderExists(folder)
}

func (fs *GitFs) FolderCreate(folder string, opts FolderCreateOptions) error {
	return fs.localFs.FolderCreate(folder, opts)
}

func (fs *GitFs) FileGet(folder, name string, opts FileGetOptions) ([]byte, error) {
	return fs.localFs.FileGet(folder, name, opts)
}

func (fs *GitFs) FilePut(folder, name string, data []byte, opts FilePutOptions) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.localFs.FilePut(folder, name, data, opts); err != nil {
		return err
	}
	w, err := fs.repo.Worktree()
	if err != nil {
		return errors.Wrapf(err, "cannot open worktree of %v", fs.localFs.basepath)
	}
	fname := filepath.ToSlash(filepath.Join(folder, name))
	fs.logger.Debugf("adding %v to git", fname)
	if _, err := w.Add(fname); err != nil {
		return errors.Wrapf(err, "cannot add %v/%v to repository", fs.localFs.basepath, fname)
	}
	fs.staged++
	return nil
}

// Commit records all staged files. It returns the commit hash or an empty
// string if nothing was staged since the last commit.
func (fs *GitFs) Commit(msg string) (string, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.staged == 0 {
		return "", nil
	}
	w, err := fs.repo.Worktree()
	if err != nil {
		return "", errors.Wrap(err, "cannot get worktree")
	}
	status, err := w.Status()
	if err != nil {
		return "", errors.Wrap(err, "cannot get worktree status")
	}
	fs.staged = 0
	if status.IsClean() {
		return "", nil
	}
	hash, err := w.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{
			Name:  fs.authorName,
			Email: fs.authorEmail,
			When:  time.Now()},
	})
	if err != nil {
		return "", errors.Wrap(err, "cannot commit")
	}
	obj, err := fs.repo.CommitObject(hash)
	if err != nil {
		return "", errors.Wrap(err, "cannot load commit")
	}
	fs.logger.Infof("committed %s: %s", obj.Hash.String(), msg)
	return obj.Hash.String(), nil
}
