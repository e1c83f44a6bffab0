package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestAppendString(t *testing.T) {
	tests := []struct {
		name string
		s    string
		want []byte
	}{
		{
			name: "short string",
			s:    "hi",
			want: []byte{0x02, 0x00, 0x00, 0x00, 'h', 'i'},
		},
		{
			name: "empty string",
			s:    "",
			want: []byte{0x00, 0x00, 0x00, 0x00},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := appendString(nil, tt.s); !bytes.Equal(got, tt.want) {
				t.Errorf("appendString() = % x, want % x", got, tt.want)
			}
		})
	}
}

func TestReadString(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		want     string
		wantRest []byte
		wantErr  bool
	}{
		{
			name:     "string with trailing bytes",
			data:     []byte{0x02, 0x00, 0x00, 0x00, 'h', 'i', 0xff},
			want:     "hi",
			wantRest: []byte{0xff},
		},
		{
			name:     "empty string",
			data:     []byte{0x00, 0x00, 0x00, 0x00},
			want:     "",
			wantRest: []byte{},
		},
		{
			name:    "truncated length prefix",
			data:    []byte{0x02, 0x00},
			wantErr: true,
		},
		{
			name:    "declared length exceeds data",
			data:    []byte{0x05, 0x00, 0x00, 0x00, 'h', 'i'},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, rest, err := readString(tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("readString() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedPacket) {
					t.Errorf("readString() error = %v, want ErrMalformedPacket", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("readString() = %q, want %q", got, tt.want)
			}
			if !bytes.Equal(rest, tt.wantRest) {
				t.Errorf("readString() rest = % x, want % x", rest, tt.wantRest)
			}
		})
	}
}
