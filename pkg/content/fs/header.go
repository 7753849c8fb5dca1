package fs

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// Payload files start with a header naming the key they belong to:
//
//	magic    "FRG1"
//	flags    1 byte (bit 0: body is a zstd frame)
//	owner    uvarint length + bytes
//	id       uvarint length + bytes
//	body     remaining bytes
//
// File names are digests, so the header is the only place the raw key lives.
var headerMagic = []byte("FRG1")

const (
	flagCompressed byte = 1 << 0

	// maxKeyLen bounds key fields read from disk so a corrupt length cannot
	// trigger a huge allocation.
	maxKeyLen = 1 << 16
)

var errBadHeader = errors.New("malformed payload header")

type header struct {
	OwnerID    string
	ID         string
	Compressed bool
}

func (h header) encode() []byte {
	buf := make([]byte, 0, len(headerMagic)+1+2*binary.MaxVarintLen64+len(h.OwnerID)+len(h.ID))
	buf = append(buf, headerMagic...)

	var flags byte
	if h.Compressed {
		flags |= flagCompressed
	}
	buf = append(buf, flags)

	buf = binary.AppendUvarint(buf, uint64(len(h.OwnerID)))
	buf = append(buf, h.OwnerID...)
	buf = binary.AppendUvarint(buf, uint64(len(h.ID)))
	buf = append(buf, h.ID...)
	return buf
}

// decodeHeader parses the header at the start of raw and returns the body
// that follows it.
func decodeHeader(raw []byte) (header, []byte, error) {
	r := bytes.NewReader(raw)
	h, err := readHeader(r)
	if err != nil {
		return header{}, nil, err
	}
	return h, raw[len(raw)-r.Len():], nil
}

// readHeaderFile reads only the header of the payload file at path.
func readHeaderFile(path string) (header, error) {
	f, err := os.Open(path)
	if err != nil {
		return header{}, err
	}
	defer func() { _ = f.Close() }()

	return readHeader(bufio.NewReader(f))
}

type headerReader interface {
	io.Reader
	io.ByteReader
}

func readHeader(r headerReader) (header, error) {
	magic := make([]byte, len(headerMagic))
	if _, err := io.ReadFull(r, magic); err != nil || !bytes.Equal(magic, headerMagic) {
		return header{}, fmt.Errorf("%w: bad magic", errBadHeader)
	}

	flags, err := r.ReadByte()
	if err != nil {
		return header{}, fmt.Errorf("%w: missing flags", errBadHeader)
	}

	owner, err := readField(r)
	if err != nil {
		return header{}, fmt.Errorf("%w: owner: %v", errBadHeader, err)
	}
	id, err := readField(r)
	if err != nil {
		return header{}, fmt.Errorf("%w: id: %v", errBadHeader, err)
	}

	return header{
		OwnerID:    owner,
		ID:         id,
		Compressed: flags&flagCompressed != 0,
	}, nil
}

func readField(r headerReader) (string, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return "", err
	}
	if n == 0 || n > maxKeyLen {
		return "", fmt.Errorf("length %d out of range", n)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
