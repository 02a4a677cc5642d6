package enocean

import (
	"testing"

	"github.com/ESDN83/enocean-mqtt-core/internal/eep"
)

func TestTelegram_IsTeachIn(t *testing.T) {
	tests := []struct {
		name     string
		telegram Telegram
		want     bool
	}{
		{
			name:     "4BS data telegram",
			telegram: Telegram{RORG: 0xA5, Payload: []byte{0x00, 0x64, 0x00, 0x08}},
			want:     false,
		},
		{
			name:     "4BS teach-in",
			telegram: Telegram{RORG: 0xA5, Payload: []byte{0x08, 0x28, 0x2D, 0x80}},
			want:     true,
		},
		{
			name:     "1BS data telegram",
			telegram: Telegram{RORG: 0xD5, Payload: []byte{0x09}},
			want:     false,
		},
		{
			name:     "1BS teach-in",
			telegram: Telegram{RORG: 0xD5, Payload: []byte{0x00}},
			want:     true,
		},
		{
			name:     "RPS never teaches in",
			telegram: Telegram{RORG: 0xF6, Payload: []byte{0x00}},
			want:     false,
		},
		{
			name:     "UTE always a teach-in request",
			telegram: Telegram{RORG: 0xD4, Payload: []byte{0xA0, 0x01}},
			want:     true,
		},
		{
			name:     "4BS with truncated payload",
			telegram: Telegram{RORG: 0xA5, Payload: []byte{0x08}},
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.telegram.IsTeachIn(); got != tt.want {
				t.Errorf("IsTeachIn() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTelegram_TeachInProfile(t *testing.T) {
	// A5-02-05 announced in a variant 3 teach-in:
	// DB3 = FUNC<<2 | TYPE>>5 = 0x02<<2 | 0 = 0x08
	// DB2 = (TYPE&0x1F)<<3 = 0x05<<3 = 0x28
	// DB0 = LRN type set, LRN bit clear = 0x80
	telegram := Telegram{RORG: 0xA5, Payload: []byte{0x08, 0x28, 0x2D, 0x80}}

	id, ok := telegram.TeachInProfile()
	if !ok {
		t.Fatal("TeachInProfile() not found")
	}
	want := eep.ProfileID{RORG: 0xA5, Func: 0x02, Type: 0x05}
	if id != want {
		t.Errorf("TeachInProfile() = %s, want %s", id, want)
	}
}

func TestTelegram_TeachInProfile_NotAnnounced(t *testing.T) {
	tests := []struct {
		name     string
		telegram Telegram
	}{
		{
			name: "variant 1 teach-in carries no profile",
			// LRN type bit clear
			telegram: Telegram{RORG: 0xA5, Payload: []byte{0x08, 0x28, 0x2D, 0x00}},
		},
		{
			name:     "data telegram",
			telegram: Telegram{RORG: 0xA5, Payload: []byte{0x00, 0x64, 0x00, 0x08}},
		},
		{
			name:     "1BS teach-in has no profile bytes",
			telegram: Telegram{RORG: 0xD5, Payload: []byte{0x00}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := tt.telegram.TeachInProfile(); ok {
				t.Error("TeachInProfile() = ok, want none")
			}
		})
	}
}

func TestFormatAddress(t *testing.T) {
	if got := FormatAddress(0xFFBD7480); got != "0xFFBD7480" {
		t.Errorf("FormatAddress() = %q, want 0xFFBD7480", got)
	}
	if got := FormatAddress(0x1); got != "0x00000001" {
		t.Errorf("FormatAddress() = %q, want 0x00000001", got)
	}
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    uint32
		wantErr bool
	}{
		{name: "prefixed", input: "0xFFBD7480", want: 0xFFBD7480},
		{name: "bare", input: "FFBD7480", want: 0xFFBD7480},
		{name: "lower case", input: "0xffbd7480", want: 0xFFBD7480},
		{name: "short", input: "0x1", want: 1},
		{name: "not hex", input: "hello", wantErr: true},
		{name: "too wide", input: "0x1FFBD7480", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAddress(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseAddress(%q) expected error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAddress(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseAddress(%q) = %#x, want %#x", tt.input, got, tt.want)
			}
		})
	}
}
