package pcap

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// File load and save capture file global headers through a Storage.
// A File holds no state besides its Storage and does no locking; concurrent
// calls on the same name are ordered by the caller.
type File struct {
	storage Storage
	logger  log.FieldLogger
}

// NewFile codec reading and writing through storage.
func NewFile(storage Storage) *File {
	return &File{
		storage: storage,
		logger:  log.StandardLogger(),
	}
}

// WithLogger use logger instead of the logrus standard logger.
func (f *File) WithLogger(logger log.FieldLogger) *File {
	f.logger = logger
	return f
}

// Load read the global header of the capture file name.
func (f *File) Load(name string) (hdr GlobalHeader, err error) {
	logger := f.logger.WithField("capture", name)
	r, err := f.storage.OpenRead(name)
	if err != nil {
		return hdr, err
	}
	defer r.Close()

	if hdr, err = Decode(r); err != nil {
		logger.WithError(err).Debug("load failed")
		return GlobalHeader{}, fmt.Errorf("unable to load %s: %w", name, err)
	}
	logger.WithFields(log.Fields{
		"swapped":  hdr.ByteSwapped,
		"version":  fmt.Sprintf("%d.%d", hdr.VersionMajor, hdr.VersionMinor),
		"snaplen":  hdr.MaxCaptureLength,
		"linktype": hdr.LinkType,
	}).Debug("loaded")
	return hdr, nil
}

// Save write hdr as the global header of the capture file name, replacing
// whatever was there. The header is always written in canonical byte order.
// On error nothing is left under name that was not there before.
func (f *File) Save(name string, hdr GlobalHeader) error {
	logger := f.logger.WithField("capture", name)
	w, err := f.storage.OpenWrite(name)
	if err != nil {
		return err
	}
	defer func() {
		if err := w.Discard(); err != nil {
			logger.WithError(err).Warn("unable to discard partial write")
		}
	}()

	if err := hdr.Encode(w); err != nil {
		return fmt.Errorf("unable to save %s: %w", name, err)
	}
	if err := w.Commit(); err != nil {
		return err
	}
	logger.WithFields(log.Fields{
		"snaplen":  hdr.MaxCaptureLength,
		"linktype": hdr.LinkType,
	}).Debug("saved")
	return nil
}
