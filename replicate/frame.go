package replicate

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/zeebo/xxh3"
)

// frameHeaderSize is the length of the checksum prefix on a framed package.
const frameHeaderSize = 8

// Framing errors.
var (
	ErrShortFrame       = errors.New("frame shorter than checksum header")
	ErrChecksumMismatch = errors.New("frame checksum mismatch")
)

// Frame prefixes a package payload with its xxh3 checksum.
//
// The frame layout is an 8-byte little-endian xxh3 hash of the payload
// followed by the payload itself. The replica verifies the checksum with
// Verify before applying the package.
//
// Parameters:
//   - payload: Raw package bytes
//
// Returns:
//   - []byte: Framed package (checksum header + payload)
func Frame(payload []byte) []byte {
	frame := make([]byte, frameHeaderSize+len(payload))
	binary.LittleEndian.PutUint64(frame, xxh3.Hash(payload))
	copy(frame[frameHeaderSize:], payload)

	return frame
}

// Verify checks a framed package's checksum and returns its payload.
//
// Parameters:
//   - frame: Framed package produced by Frame
//
// Returns:
//   - []byte: The payload (a sub-slice of frame, not a copy)
//   - error: ErrShortFrame or ErrChecksumMismatch
func Verify(frame []byte) ([]byte, error) {
	if len(frame) < frameHeaderSize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrShortFrame, len(frame))
	}

	payload := frame[frameHeaderSize:]

	want := binary.LittleEndian.Uint64(frame)
	if got := xxh3.Hash(payload); got != want {
		return nil, fmt.Errorf("%w: want %016x, got %016x", ErrChecksumMismatch, want, got)
	}

	return payload, nil
}
