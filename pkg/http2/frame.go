package http2

import (
	"encoding/binary"
	"fmt"
)

// FrameType represents an HTTP/2 frame type (RFC 7540 §4.1).
//
// Only DATA carries a concrete Go type in this package: the connection's
// write path (Connection.ServeWrites) and HPACK-driven header exchange
// (EncodeHeaders/DecodeHeaders) never construct or parse HEADERS, PRIORITY,
// RST_STREAM, SETTINGS, PUSH_PROMISE, PING, GOAWAY, WINDOW_UPDATE, or
// CONTINUATION frames directly — stream priority flows through
// PriorityTree.UpdatePriority/AddStream against the scheduler, and connection
// settings flow through the Settings struct in connection.go, not a wire
// frame. The type identifiers are kept so ParseFrameHeader/FrameHeader.String
// can still name a frame on the wire even when this package doesn't parse
// its body.
type FrameType uint8

const (
	FrameData         FrameType = 0x0
	FrameHeaders      FrameType = 0x1
	FramePriority     FrameType = 0x2
	FrameRSTStream    FrameType = 0x3
	FrameSettings     FrameType = 0x4
	FramePushPromise  FrameType = 0x5
	FramePing         FrameType = 0x6
	FrameGoAway       FrameType = 0x7
	FrameWindowUpdate FrameType = 0x8
	FrameContinuation FrameType = 0x9
)

// String returns the string representation of the frame type
func (t FrameType) String() string {
	switch t {
	case FrameData:
		return "DATA"
	case FrameHeaders:
		return "HEADERS"
	case FramePriority:
		return "PRIORITY"
	case FrameRSTStream:
		return "RST_STREAM"
	case FrameSettings:
		return "SETTINGS"
	case FramePushPromise:
		return "PUSH_PROMISE"
	case FramePing:
		return "PING"
	case FrameGoAway:
		return "GOAWAY"
	case FrameWindowUpdate:
		return "WINDOW_UPDATE"
	case FrameContinuation:
		return "CONTINUATION"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
	}
}

// Flags represents frame flags (RFC 7540 §4.1)
type Flags uint8

const (
	// Flags for DATA frames
	FlagDataEndStream Flags = 0x1
	FlagDataPadded    Flags = 0x8
)

// Has checks if a specific flag is set
func (f Flags) Has(flag Flags) bool {
	return f&flag != 0
}

// FrameHeader represents an HTTP/2 frame header (9 bytes)
// RFC 7540 §4.1:
// +-----------------------------------------------+
// |                 Length (24)                   |
// +---------------+---------------+---------------+
// |   Type (8)    |   Flags (8)   |
// +-+-------------+---------------+-------------------------------+
// |R|                 Stream Identifier (31)                      |
// +=+=============================================================+
type FrameHeader struct {
	Length   uint32    // 24-bit payload length
	Type     FrameType // Frame type
	Flags    Flags     // Frame flags
	StreamID uint32    // 31-bit stream identifier
}

// ParseFrameHeader parses a 9-byte frame header
// This function performs zero allocations - the FrameHeader is returned on the stack
func ParseFrameHeader(b [9]byte) FrameHeader {
	return FrameHeader{
		Length:   uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]),
		Type:     FrameType(b[3]),
		Flags:    Flags(b[4]),
		StreamID: binary.BigEndian.Uint32(b[5:9]) & 0x7fffffff, // Clear reserved bit
	}
}

// WriteFrameHeader writes a frame header to a 9-byte buffer
// Returns the number of bytes written (always 9)
func WriteFrameHeader(b []byte, fh FrameHeader) int {
	if len(b) < 9 {
		panic("buffer too small for frame header")
	}

	// Write 24-bit length
	b[0] = byte(fh.Length >> 16)
	b[1] = byte(fh.Length >> 8)
	b[2] = byte(fh.Length)

	// Write type and flags
	b[3] = byte(fh.Type)
	b[4] = byte(fh.Flags)

	// Write 31-bit stream ID (clear reserved bit)
	binary.BigEndian.PutUint32(b[5:9], fh.StreamID&0x7fffffff)

	return 9
}

// Validate checks if the frame header is valid according to RFC 7540.
// Frame types this package doesn't otherwise parse are checked only for
// their length; their stream association is not checked. RFC 7540 §4.1 permits an
// implementation to ignore the body of a frame type it doesn't act on.
func (fh *FrameHeader) Validate() error {
	// Check frame size (RFC 7540 §4.2)
	if fh.Length > MaxFrameSize {
		return ErrFrameTooLarge
	}

	switch fh.Type {
	case FrameData:
		return fh.validateData()
	default:
		return nil
	}
}

// validateData validates DATA frame header (RFC 7540 §6.1)
func (fh *FrameHeader) validateData() error {
	// DATA frames MUST be associated with a stream
	if fh.StreamID == 0 {
		return ConnectionError{Code: ErrCodeProtocol, Err: ErrInvalidStreamID}
	}
	return nil
}

// Frame is the interface implemented by frame types this package constructs
// directly. DataFrame is the only one: priority and settings flow through
// Connection's scheduler-backed methods rather than wire frames.
type Frame interface {
	// Header returns the frame header
	Header() FrameHeader

	// Type returns the frame type
	Type() FrameType
}

// DataFrame represents an HTTP/2 DATA frame (RFC 7540 §6.1)
type DataFrame struct {
	FrameHeader
	Data      []byte // Frame payload data
	PadLength uint8  // Padding length (if PADDED flag set)
}

// Header returns the frame header
func (f *DataFrame) Header() FrameHeader { return f.FrameHeader }

// Type returns the frame type
func (f *DataFrame) Type() FrameType { return FrameData }

// EndStream returns true if END_STREAM flag is set
func (f *DataFrame) EndStream() bool {
	return f.Flags.Has(FlagDataEndStream)
}

// Padded returns true if PADDED flag is set
func (f *DataFrame) Padded() bool {
	return f.Flags.Has(FlagDataPadded)
}

// ParseDataFrame parses a DATA frame from payload
func ParseDataFrame(fh FrameHeader, payload []byte) (*DataFrame, error) {
	df := &DataFrame{
		FrameHeader: fh,
	}

	offset := 0

	// Parse padding length if PADDED flag is set
	if fh.Flags.Has(FlagDataPadded) {
		if len(payload) < 1 {
			return nil, ConnectionError{Code: ErrCodeProtocol, Err: ErrInvalidPadding}
		}
		df.PadLength = payload[0]
		offset = 1
	}

	// Calculate data length
	dataLen := len(payload) - offset - int(df.PadLength)
	if dataLen < 0 {
		return nil, ConnectionError{Code: ErrCodeProtocol, Err: ErrInvalidPadding}
	}

	// Zero-copy reference to data
	df.Data = payload[offset : offset+dataLen]

	return df, nil
}
