package http2

import (
	"bytes"
	"testing"
)

// Test frame header parsing (zero allocations)
func TestParseFrameHeader(t *testing.T) {
	tests := []struct {
		name  string
		input [9]byte
		want  FrameHeader
	}{
		{
			name:  "DATA frame",
			input: [9]byte{0x00, 0x00, 0x0A, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01},
			want: FrameHeader{
				Length:   10,
				Type:     FrameData,
				Flags:    FlagDataEndStream,
				StreamID: 1,
			},
		},
		{
			name:  "SETTINGS frame header (type only, body not parsed by this package)",
			input: [9]byte{0x00, 0x00, 0x0C, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00},
			want: FrameHeader{
				Length:   12,
				Type:     FrameSettings,
				Flags:    0,
				StreamID: 0,
			},
		},
		{
			name:  "Maximum length frame",
			input: [9]byte{0xFF, 0xFF, 0xFF, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01},
			want: FrameHeader{
				Length:   16777215, // 2^24 - 1
				Type:     FrameData,
				Flags:    0,
				StreamID: 1,
			},
		},
		{
			name:  "Reserved bit cleared",
			input: [9]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x80, 0x00, 0x00, 0x01}, // Reserved bit set
			want: FrameHeader{
				Length:   0,
				Type:     FrameData,
				Flags:    0,
				StreamID: 1, // Reserved bit should be cleared
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseFrameHeader(tt.input)

			if got.Length != tt.want.Length {
				t.Errorf("Length = %d, want %d", got.Length, tt.want.Length)
			}
			if got.Type != tt.want.Type {
				t.Errorf("Type = %v, want %v", got.Type, tt.want.Type)
			}
			if got.Flags != tt.want.Flags {
				t.Errorf("Flags = %v, want %v", got.Flags, tt.want.Flags)
			}
			if got.StreamID != tt.want.StreamID {
				t.Errorf("StreamID = %d, want %d", got.StreamID, tt.want.StreamID)
			}
		})
	}
}

// Test frame header writing
func TestWriteFrameHeader(t *testing.T) {
	tests := []struct {
		name string
		fh   FrameHeader
		want [9]byte
	}{
		{
			name: "DATA frame",
			fh: FrameHeader{
				Length:   10,
				Type:     FrameData,
				Flags:    FlagDataEndStream,
				StreamID: 1,
			},
			want: [9]byte{0x00, 0x00, 0x0A, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01},
		},
		{
			name: "SETTINGS frame header",
			fh: FrameHeader{
				Length:   12,
				Type:     FrameSettings,
				Flags:    0,
				StreamID: 0,
			},
			want: [9]byte{0x00, 0x00, 0x0C, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf [9]byte
			n := WriteFrameHeader(buf[:], tt.fh)

			if n != 9 {
				t.Errorf("WriteFrameHeader returned %d bytes, want 9", n)
			}

			if !bytes.Equal(buf[:], tt.want[:]) {
				t.Errorf("WriteFrameHeader = %v, want %v", buf, tt.want)
			}
		})
	}
}

// Test frame header validation. Only DATA gets a body-aware check in this
// package; other frame types validate at the header level only (see
// FrameHeader.Validate).
func TestFrameHeaderValidation(t *testing.T) {
	tests := []struct {
		name    string
		fh      FrameHeader
		wantErr bool
	}{
		{
			name: "Valid DATA frame",
			fh: FrameHeader{
				Length:   100,
				Type:     FrameData,
				Flags:    0,
				StreamID: 1,
			},
			wantErr: false,
		},
		{
			name: "DATA frame with stream ID 0 (invalid)",
			fh: FrameHeader{
				Length:   100,
				Type:     FrameData,
				Flags:    0,
				StreamID: 0,
			},
			wantErr: true,
		},
		{
			name: "Non-DATA frame type header is accepted",
			fh: FrameHeader{
				Length:   12,
				Type:     FrameSettings,
				Flags:    0,
				StreamID: 0,
			},
			wantErr: false,
		},
		{
			name: "Frame too large (invalid)",
			fh: FrameHeader{
				Length:   MaxFrameSize + 1,
				Type:     FrameData,
				Flags:    0,
				StreamID: 1,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fh.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// Test DATA frame parsing
func TestParseDataFrame(t *testing.T) {
	tests := []struct {
		name    string
		fh      FrameHeader
		payload []byte
		want    *DataFrame
		wantErr bool
	}{
		{
			name: "Simple DATA frame",
			fh: FrameHeader{
				Length:   5,
				Type:     FrameData,
				Flags:    FlagDataEndStream,
				StreamID: 1,
			},
			payload: []byte("hello"),
			want: &DataFrame{
				FrameHeader: FrameHeader{Length: 5, Type: FrameData, Flags: FlagDataEndStream, StreamID: 1},
				Data:        []byte("hello"),
			},
			wantErr: false,
		},
		{
			name: "DATA frame with padding",
			fh: FrameHeader{
				Length:   10,
				Type:     FrameData,
				Flags:    FlagDataPadded,
				StreamID: 1,
			},
			payload: append([]byte{3}, append([]byte("hello"), []byte{0, 0, 0}...)...), // Pad length 3 + "hello" + 3 bytes padding
			want: &DataFrame{
				FrameHeader: FrameHeader{Length: 10, Type: FrameData, Flags: FlagDataPadded, StreamID: 1},
				Data:        []byte("hello"),
				PadLength:   3,
			},
			wantErr: false,
		},
		{
			name: "DATA frame with excessive padding (invalid)",
			fh: FrameHeader{
				Length:   5,
				Type:     FrameData,
				Flags:    FlagDataPadded,
				StreamID: 1,
			},
			payload: []byte{10, 0, 0, 0, 0}, // Pad length 10 but only 4 bytes remaining
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDataFrame(tt.fh, tt.payload)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseDataFrame() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}

			if !bytes.Equal(got.Data, tt.want.Data) {
				t.Errorf("Data = %v, want %v", got.Data, tt.want.Data)
			}
			if got.PadLength != tt.want.PadLength {
				t.Errorf("PadLength = %d, want %d", got.PadLength, tt.want.PadLength)
			}
		})
	}
}
