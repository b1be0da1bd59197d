package pcap

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"
)

// Storage where capture files live. Names are opaque to the codec and are
// handed to the Storage unchanged.
type Storage interface {
	// OpenRead open an existing resource for sequential reading.
	OpenRead(name string) (io.ReadCloser, error)
	// OpenWrite open a resource for writing. Nothing is visible under name
	// until the returned stream is committed.
	OpenWrite(name string) (WriteStream, error)
}

// WriteStream a pending write. Exactly one of Commit or Discard takes effect;
// calling Discard after a successful Commit does nothing, so it is safe to defer.
type WriteStream interface {
	io.Writer
	Commit() error
	Discard() error
}

// FsStorage a Storage backed by an afero filesystem.
type FsStorage struct {
	fs afero.Fs
}

// NewStorage storage on top of the given filesystem.
func NewStorage(fs afero.Fs) *FsStorage {
	return &FsStorage{fs: fs}
}

// NewOSStorage storage on the real filesystem.
func NewOSStorage() *FsStorage {
	return NewStorage(afero.NewOsFs())
}

// NewMemStorage storage held entirely in memory, for fixtures and tests.
func NewMemStorage() *FsStorage {
	return NewStorage(afero.NewMemMapFs())
}

// Fs the underlying filesystem
func (s *FsStorage) Fs() afero.Fs {
	return s.fs
}

func (s *FsStorage) OpenRead(name string) (io.ReadCloser, error) {
	f, err := s.fs.Open(name)
	if err != nil {
		return nil, fmt.Errorf("unable to open %s for reading: %w", name, err)
	}
	return f, nil
}

// OpenWrite write into a temporary file beside name; Commit renames it over
// name, which creates or replaces the target in one step. A symlink is
// followed, so the file it points at is replaced and the link is kept. An
// existing file keeps its permission bits, a new one gets defaultFileMode.
func (s *FsStorage) OpenWrite(name string) (WriteStream, error) {
	target := s.resolveLink(name)
	mode := defaultFileMode
	if fi, err := s.fs.Stat(target); err == nil {
		mode = fi.Mode().Perm()
	}
	dir, base := filepath.Split(target)
	if dir == "" {
		dir = "."
	}
	f, err := afero.TempFile(s.fs, dir, "."+base+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("unable to open %s for writing: %w", name, err)
	}
	return &fsWriteStream{fs: s.fs, f: f, target: target, mode: mode}, nil
}

// defaultFileMode mode of newly created capture files, as tcpdump leaves them
// under the usual 022 umask
const defaultFileMode fs.FileMode = 0o644

// maxLinkHops same limit as the Linux kernel's ELOOP
const maxLinkHops = 40

// resolveLink follow name through symlinks when the filesystem supports them.
func (s *FsStorage) resolveLink(name string) string {
	lr, ok := s.fs.(afero.LinkReader)
	if !ok {
		return name
	}
	for i := 0; i < maxLinkHops; i++ {
		dest, err := lr.ReadlinkIfPossible(name)
		if err != nil {
			// not a link, or does not exist yet
			return name
		}
		if !filepath.IsAbs(dest) {
			dest = filepath.Join(filepath.Dir(name), dest)
		}
		name = dest
	}
	return name
}

type fsWriteStream struct {
	fs     afero.Fs
	f      afero.File
	target string
	mode   fs.FileMode
	done   bool
}

func (w *fsWriteStream) Write(p []byte) (int, error) {
	if w.done {
		return 0, fmt.Errorf("write to %s after commit or discard", w.target)
	}
	return w.f.Write(p)
}

func (w *fsWriteStream) Commit() error {
	if w.done {
		return fmt.Errorf("%s already committed or discarded", w.target)
	}
	if err := w.f.Sync(); err != nil {
		_ = w.Discard()
		return fmt.Errorf("unable to sync %s: %w", w.target, err)
	}
	if err := w.f.Close(); err != nil {
		_ = w.Discard()
		return fmt.Errorf("unable to close %s: %w", w.target, err)
	}
	if err := w.fs.Chmod(w.f.Name(), w.mode); err != nil {
		_ = w.Discard()
		return fmt.Errorf("unable to set mode of %s: %w", w.target, err)
	}
	if err := w.fs.Rename(w.f.Name(), w.target); err != nil {
		_ = w.Discard()
		return fmt.Errorf("unable to commit %s: %w", w.target, err)
	}
	w.done = true
	return nil
}

func (w *fsWriteStream) Discard() error {
	if w.done {
		return nil
	}
	w.done = true
	// the file may already be closed by a failed Commit
	_ = w.f.Close()
	if err := w.fs.Remove(w.f.Name()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("unable to discard %s: %w", w.target, err)
	}
	return nil
}
