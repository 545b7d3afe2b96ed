package solutions

import (
	"bufio"
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// The on-disk layout is the MWA/AO calibrate binary format: a fixed 48-byte
// little-endian header followed by the raw complex128 bandpass in row-major
// (time, antenna, channel, polarisation) order.
const (
	magic = "MWAOCAL\x00"

	// Only file type 0 and structure type 0 exist.
	supportedFileType      = 0
	supportedStructureType = 0
)

type fileHeader struct {
	Intro         [8]byte
	FileType      int32
	StructureType int32
	NSol          int32
	NAnt          int32
	NChan         int32
	NPol          int32
	TimeStart     float64 // reserved, always written as 0
	TimeEnd       float64 // reserved, always written as 0
}

// Load reads a solutions file from disk.
func Load(path string) (*GainSolutionSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open solutions file %s", path)
	}
	defer f.Close()

	r := bufio.NewReader(f)

	var hdr fileHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, pkgerrors.Wrapf(ErrBadFormat, "short header in %s: %v", path, err)
	}
	if string(hdr.Intro[:]) != magic {
		return nil, pkgerrors.Wrapf(ErrBadFormat, "%s has magic %q, want %q", path, hdr.Intro[:], magic)
	}
	if hdr.FileType != supportedFileType {
		return nil, pkgerrors.Wrapf(ErrBadFormat, "%s has file type %d, only %d is supported",
			path, hdr.FileType, supportedFileType)
	}
	if hdr.StructureType != supportedStructureType {
		return nil, pkgerrors.Wrapf(ErrBadFormat, "%s has structure type %d, only %d is supported",
			path, hdr.StructureType, supportedStructureType)
	}

	s := &GainSolutionSet{
		Path:  path,
		NSol:  int(hdr.NSol),
		NAnt:  int(hdr.NAnt),
		NChan: int(hdr.NChan),
		NPol:  int(hdr.NPol),
	}
	if s.NSol <= 0 || s.NAnt <= 0 || s.NChan <= 0 || s.NPol <= 0 {
		return nil, pkgerrors.Wrapf(ErrBadFormat, "%s has extents (%d, %d, %d, %d)",
			path, s.NSol, s.NAnt, s.NChan, s.NPol)
	}

	s.Bandpass = make([]complex128, s.NSol*s.NAnt*s.NChan*s.NPol)
	if err := binary.Read(r, binary.LittleEndian, s.Bandpass); err != nil {
		return nil, pkgerrors.Wrapf(ErrBadFormat, "truncated bandpass in %s: %v", path, err)
	}

	logrus.Infof("loaded %s: shape (%d, %d, %d, %d), %s of gains",
		path, s.NSol, s.NAnt, s.NChan, s.NPol, humanize.IBytes(uint64(len(s.Bandpass)*16)))

	return s, nil
}

// Save writes the set to the given path, creating parent directories as
// needed. The reserved time-range doubles are always written as zero;
// everything else round-trips bit-identically through Load.
func Save(s *GainSolutionSet, path string) (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", pkgerrors.Wrapf(err, "failed to create %s", dir)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to create solutions file %s", path)
	}
	defer f.Close()

	w := bufio.NewWriter(f)

	hdr := fileHeader{
		FileType:      supportedFileType,
		StructureType: supportedStructureType,
		NSol:          int32(s.NSol),
		NAnt:          int32(s.NAnt),
		NChan:         int32(s.NChan),
		NPol:          int32(s.NPol),
	}
	copy(hdr.Intro[:], magic)

	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return "", pkgerrors.Wrapf(err, "failed to write header to %s", path)
	}
	if err := binary.Write(w, binary.LittleEndian, s.Bandpass); err != nil {
		return "", pkgerrors.Wrapf(err, "failed to write bandpass to %s", path)
	}
	if err := w.Flush(); err != nil {
		return "", pkgerrors.Wrapf(err, "failed to flush %s", path)
	}

	logrus.Infof("wrote solutions to %s", path)

	return path, nil
}
