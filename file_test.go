package pcap

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memStorage(t *testing.T, files map[string][]byte) *FsStorage {
	t.Helper()
	s := NewMemStorage()
	for name, data := range files {
		require.NoError(t, afero.WriteFile(s.Fs(), name, data, 0o644))
	}
	return s
}

func TestFileLoad(t *testing.T) {
	s := memStorage(t, map[string][]byte{
		"1.pcap": canonicalBytes,
		"2.pcap": swappedBytes,
		"3.pcap": badMagicBytes,
		"4.pcap": {0x02, 0x68},
	})
	f := NewFile(s)

	hdr, err := f.Load("1.pcap")
	require.NoError(t, err)
	assert.False(t, hdr.ByteSwapped)
	major, minor := hdr.Version()
	assert.Equal(t, [2]uint16{2, 4}, [2]uint16{major, minor})
	assert.Equal(t, int32(0), hdr.TimezoneOffset)
	assert.Equal(t, uint32(0), hdr.AccuracyFigures)
	assert.Equal(t, uint32(262144), hdr.MaxCaptureLength)
	assert.Equal(t, uint32(1), hdr.LinkType)

	hdr, err = f.Load("2.pcap")
	require.NoError(t, err)
	assert.True(t, hdr.ByteSwapped)
	hdr.ByteSwapped = false
	assert.Equal(t, ethernetHeader, hdr)

	_, err = f.Load("3.pcap")
	assert.ErrorIs(t, err, ErrInvalidMagic)

	_, err = f.Load("4.pcap")
	assert.ErrorIs(t, err, ErrHeaderTruncated)

	_, err = f.Load("missing.pcap")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.NotErrorIs(t, err, ErrHeaderTruncated)
}

func TestFileSave(t *testing.T) {
	s := NewMemStorage()
	f := NewFile(s)

	// prior swap state must not matter
	hdr := ethernetHeader
	hdr.ByteSwapped = true
	require.NoError(t, f.Save("5.pcap", hdr))

	b, err := afero.ReadFile(s.Fs(), "5.pcap")
	require.NoError(t, err)
	assert.Equal(t, canonicalBytes, b)

	// only the target is left behind
	entries, err := afero.ReadDir(s.Fs(), ".")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "5.pcap", entries[0].Name())
	assert.Equal(t, os.FileMode(0o644), entries[0].Mode().Perm())
}

func TestFileSaveOverwrites(t *testing.T) {
	s := memStorage(t, map[string][]byte{
		"dir/old.pcap": append(append([]byte{}, swappedBytes...), 0xde, 0xad, 0xbe, 0xef),
	})
	f := NewFile(s)
	require.NoError(t, f.Save("dir/old.pcap", NewGlobalHeader(1600, LinkTypeNull)))

	b, err := afero.ReadFile(s.Fs(), "dir/old.pcap")
	require.NoError(t, err)
	assert.Len(t, b, HeaderSize)

	hdr, err := f.Load("dir/old.pcap")
	require.NoError(t, err)
	assert.Equal(t, NewGlobalHeader(1600, LinkTypeNull), hdr)
}

func TestFileRoundTrip(t *testing.T) {
	headers := []GlobalHeader{
		ethernetHeader,
		{},
		{VersionMajor: 0xffff, VersionMinor: 0xffff, TimezoneOffset: -1, AccuracyFigures: 0xffffffff, MaxCaptureLength: 0xffffffff, LinkType: 0xffffffff},
		{VersionMajor: 2, VersionMinor: 4, TimezoneOffset: 3600, MaxCaptureLength: 65535, LinkType: 113},
	}
	f := NewFile(NewMemStorage())
	for i, hdr := range headers {
		require.NoError(t, f.Save("rt.pcap", hdr), "case %d", i)
		got, err := f.Load("rt.pcap")
		require.NoError(t, err, "case %d", i)
		assert.Equal(t, hdr, got, "case %d", i)
	}
}

func TestFileSaveFileModes(t *testing.T) {
	dir := t.TempDir()
	f := NewFile(NewOSStorage())

	// new files are world readable, like tcpdump's output
	fresh := filepath.Join(dir, "new.pcap")
	require.NoError(t, f.Save(fresh, ethernetHeader))
	fi, err := os.Stat(fresh)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), fi.Mode().Perm())

	// existing files keep their mode
	for _, mode := range []os.FileMode{0o644, 0o640, 0o600} {
		name := filepath.Join(dir, fmt.Sprintf("existing-%o.pcap", mode))
		require.NoError(t, os.WriteFile(name, swappedBytes, mode))
		require.NoError(t, os.Chmod(name, mode))
		require.NoError(t, f.Save(name, ethernetHeader))
		fi, err := os.Stat(name)
		require.NoError(t, err)
		assert.Equal(t, mode, fi.Mode().Perm())
	}
}

func TestFileSaveThroughSymlink(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "real.pcap")
	require.NoError(t, os.WriteFile(dest, swappedBytes, 0o640))
	require.NoError(t, os.Chmod(dest, 0o640))
	link := filepath.Join(dir, "link.pcap")
	require.NoError(t, os.Symlink("real.pcap", link))

	f := NewFile(NewOSStorage())
	require.NoError(t, f.Save(link, ethernetHeader))

	fi, err := os.Lstat(link)
	require.NoError(t, err)
	assert.NotZero(t, fi.Mode()&os.ModeSymlink, "link must survive the save")

	b, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, canonicalBytes, b)
	fi, err = os.Stat(dest)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), fi.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp file left behind")
}

func TestFileOSStorage(t *testing.T) {
	name := filepath.Join(t.TempDir(), "os.pcap")
	f := NewFile(NewOSStorage())
	require.NoError(t, f.Save(name, ethernetHeader))
	hdr, err := f.Load(name)
	require.NoError(t, err)
	assert.Equal(t, ethernetHeader, hdr)
}

// trackingStorage counts stream lifecycles and can fail writes.
type trackingStorage struct {
	*FsStorage
	opened, closed int
	failWrite      bool
}

type trackingReader struct {
	io.ReadCloser
	s *trackingStorage
}

func (r trackingReader) Close() error {
	r.s.closed++
	return r.ReadCloser.Close()
}

func (s *trackingStorage) OpenRead(name string) (io.ReadCloser, error) {
	r, err := s.FsStorage.OpenRead(name)
	if err != nil {
		return nil, err
	}
	s.opened++
	return trackingReader{ReadCloser: r, s: s}, nil
}

type failingStream struct {
	WriteStream
}

func (failingStream) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func (s *trackingStorage) OpenWrite(name string) (WriteStream, error) {
	w, err := s.FsStorage.OpenWrite(name)
	if err != nil {
		return nil, err
	}
	if s.failWrite {
		return failingStream{w}, nil
	}
	return w, nil
}

func TestFileLoadReleasesStream(t *testing.T) {
	s := &trackingStorage{FsStorage: memStorage(t, map[string][]byte{
		"good.pcap":  canonicalBytes,
		"magic.pcap": badMagicBytes,
		"short.pcap": canonicalBytes[:10],
	})}
	f := NewFile(s)
	for _, name := range []string{"good.pcap", "magic.pcap", "short.pcap", "missing.pcap"} {
		_, _ = f.Load(name)
	}
	assert.Equal(t, 3, s.opened)
	assert.Equal(t, s.opened, s.closed)
}

func TestFileSaveFailureLeavesNothing(t *testing.T) {
	s := &trackingStorage{FsStorage: NewMemStorage(), failWrite: true}
	err := NewFile(s).Save("broken.pcap", ethernetHeader)
	require.Error(t, err)

	entries, err := afero.ReadDir(s.Fs(), ".")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileSaveFailureKeepsPrevious(t *testing.T) {
	s := &trackingStorage{FsStorage: memStorage(t, map[string][]byte{"keep.pcap": swappedBytes}), failWrite: true}
	require.Error(t, NewFile(s).Save("keep.pcap", NewGlobalHeader(1, LinkTypeNull)))

	b, err := afero.ReadFile(s.Fs(), "keep.pcap")
	require.NoError(t, err)
	assert.Equal(t, swappedBytes, b)
}
