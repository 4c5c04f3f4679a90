// Package inotify is the raw kernel boundary of the watcher: it owns one
// inotify descriptor and decodes the batched records the kernel returns.
//
// A single read may return many records packed back to back:
//
//	| wd int32 | mask uint32 | cookie uint32 | len uint32 | name [len]byte |
//
// where name is NUL terminated and padded up to len.
package inotify

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the fixed part of one record.
const HeaderSize = 16

var ErrShortRead = errors.New("truncated inotify record")

// Record is one decoded kernel record.
type Record struct {
	Wd     int32
	Mask   uint32
	Cookie uint32
	Name   string
}

// Decode walks buf record by record. On a truncated tail it returns the
// records decoded so far together with ErrShortRead.
func Decode(buf []byte) ([]Record, error) {
	records := make([]Record, 0, len(buf)/HeaderSize)

	for offset := 0; offset < len(buf); {
		if len(buf)-offset < HeaderSize {
			return records, fmt.Errorf("%w: %d trailing header bytes", ErrShortRead, len(buf)-offset)
		}

		header := buf[offset : offset+HeaderSize]
		nameLen := int(binary.NativeEndian.Uint32(header[12:16]))
		end := offset + HeaderSize + nameLen
		if end > len(buf) {
			return records, fmt.Errorf("%w: name of %d bytes exceeds buffer", ErrShortRead, nameLen)
		}

		name := buf[offset+HeaderSize : end]
		if i := bytes.IndexByte(name, 0); i >= 0 {
			name = name[:i]
		}

		records = append(records, Record{
			Wd:     int32(binary.NativeEndian.Uint32(header[0:4])),
			Mask:   binary.NativeEndian.Uint32(header[4:8]),
			Cookie: binary.NativeEndian.Uint32(header[8:12]),
			Name:   string(name),
		})
		offset = end
	}

	return records, nil
}
