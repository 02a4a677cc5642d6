package enocean

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

// sampleFrame is a 4BS radio telegram frame used across the tests.
func sampleFrame() Frame {
	return Frame{
		Type: PacketTypeRadioERP1,
		Data: []byte{
			0xA5, // RORG
			0x00, 0x64, 0x00, 0x08, // payload
			0xFF, 0xBD, 0x74, 0x80, // sender
			0x00, // status
		},
		Optional: []byte{0x01, 0xFF, 0xFF, 0xFF, 0xFF, 0x2D, 0x00},
	}
}

// ─── Frame Codec Tests ───────────────────────────────────────────────────────

func TestFrame_EncodeParseRoundTrip(t *testing.T) {
	original := sampleFrame()
	wire := original.Encode()

	if wire[0] != 0x55 {
		t.Fatalf("encoded frame starts with %#x, want 0x55", wire[0])
	}
	if len(wire) != 7+len(original.Data)+len(original.Optional) {
		t.Fatalf("encoded frame length = %d, want %d",
			len(wire), 7+len(original.Data)+len(original.Optional))
	}

	parsed, err := ParseFrame(wire)
	if err != nil {
		t.Fatalf("ParseFrame() error = %v", err)
	}
	if parsed.Type != original.Type {
		t.Errorf("Type = %#x, want %#x", parsed.Type, original.Type)
	}
	if !bytes.Equal(parsed.Data, original.Data) {
		t.Errorf("Data = %X, want %X", parsed.Data, original.Data)
	}
	if !bytes.Equal(parsed.Optional, original.Optional) {
		t.Errorf("Optional = %X, want %X", parsed.Optional, original.Optional)
	}
}

func TestParseFrame_Errors(t *testing.T) {
	good := sampleFrame().Encode()

	t.Run("too short", func(t *testing.T) {
		_, err := ParseFrame(good[:5])
		if !errors.Is(err, ErrInvalidFrame) {
			t.Errorf("error = %v, want ErrInvalidFrame", err)
		}
	})

	t.Run("missing sync byte", func(t *testing.T) {
		bad := append([]byte{}, good...)
		bad[0] = 0x54
		_, err := ParseFrame(bad)
		if !errors.Is(err, ErrInvalidFrame) {
			t.Errorf("error = %v, want ErrInvalidFrame", err)
		}
	})

	t.Run("corrupt header CRC", func(t *testing.T) {
		bad := append([]byte{}, good...)
		bad[5] ^= 0xFF
		_, err := ParseFrame(bad)
		if !errors.Is(err, ErrCRCMismatch) {
			t.Errorf("error = %v, want ErrCRCMismatch", err)
		}
	})

	t.Run("corrupt data CRC", func(t *testing.T) {
		bad := append([]byte{}, good...)
		bad[len(bad)-1] ^= 0xFF
		_, err := ParseFrame(bad)
		if !errors.Is(err, ErrCRCMismatch) {
			t.Errorf("error = %v, want ErrCRCMismatch", err)
		}
	})
}

// ─── Frame Reader Tests ──────────────────────────────────────────────────────

func TestFrameReader_ReadsFrameFromStream(t *testing.T) {
	wire := sampleFrame().Encode()

	reader := NewFrameReader(bytes.NewReader(wire))
	frame, err := reader.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !bytes.Equal(frame.Data, sampleFrame().Data) {
		t.Errorf("Data = %X, want %X", frame.Data, sampleFrame().Data)
	}

	if _, err := reader.Read(); !errors.Is(err, io.EOF) {
		t.Errorf("second Read() error = %v, want io.EOF", err)
	}
}

func TestFrameReader_SkipsLeadingGarbage(t *testing.T) {
	var stream bytes.Buffer
	stream.Write([]byte{0x00, 0x12, 0x34}) // line noise before the frame
	stream.Write(sampleFrame().Encode())

	reader := NewFrameReader(&stream)
	frame, err := reader.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if frame.Type != PacketTypeRadioERP1 {
		t.Errorf("Type = %#x, want ERP1", frame.Type)
	}
}

func TestFrameReader_ResyncsAfterCorruptFrame(t *testing.T) {
	corrupted := sampleFrame().Encode()
	corrupted[len(corrupted)-1] ^= 0xFF // break the data CRC

	var stream bytes.Buffer
	stream.Write(corrupted)
	stream.Write(sampleFrame().Encode())

	reader := NewFrameReader(&stream)
	frame, err := reader.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !bytes.Equal(frame.Data, sampleFrame().Data) {
		t.Errorf("Data = %X, want the second, intact frame", frame.Data)
	}
	if reader.Dropped() == 0 {
		t.Error("Dropped() = 0, want at least one resync")
	}
}

func TestFrameReader_BackToBackFrames(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(sampleFrame().Encode())
	stream.Write(sampleFrame().Encode())

	reader := NewFrameReader(&stream)
	for i := 0; i < 2; i++ {
		if _, err := reader.Read(); err != nil {
			t.Fatalf("Read() #%d error = %v", i+1, err)
		}
	}
}

// ─── Telegram Extraction Tests ───────────────────────────────────────────────

func TestFrame_Telegram(t *testing.T) {
	telegram, err := sampleFrame().Telegram()
	if err != nil {
		t.Fatalf("Telegram() error = %v", err)
	}

	if telegram.RORG != 0xA5 {
		t.Errorf("RORG = %#x, want 0xA5", telegram.RORG)
	}
	if !bytes.Equal(telegram.Payload, []byte{0x00, 0x64, 0x00, 0x08}) {
		t.Errorf("Payload = %X, want 00640008", telegram.Payload)
	}
	if telegram.SenderID != 0xFFBD7480 {
		t.Errorf("SenderID = %#x, want 0xFFBD7480", telegram.SenderID)
	}
	if telegram.Status != 0x00 {
		t.Errorf("Status = %#x, want 0", telegram.Status)
	}
	if telegram.DBm != -0x2D {
		t.Errorf("DBm = %d, want %d", telegram.DBm, -0x2D)
	}
	if telegram.ReceivedAt.IsZero() {
		t.Error("ReceivedAt not set")
	}
}

func TestFrame_TelegramSignalStrength(t *testing.T) {
	t.Run("broadcast destination is not mistaken for dBm", func(t *testing.T) {
		// Destination FF FF FF FF, dBm byte 0x37
		f := sampleFrame()
		f.Optional = []byte{0x01, 0xFF, 0xFF, 0xFF, 0xFF, 0x37, 0x00}
		telegram, err := f.Telegram()
		if err != nil {
			t.Fatalf("Telegram() error = %v", err)
		}
		if telegram.DBm != -0x37 {
			t.Errorf("DBm = %d, want %d", telegram.DBm, -0x37)
		}
	})

	t.Run("optional block without a dBm byte", func(t *testing.T) {
		f := sampleFrame()
		f.Optional = []byte{0x01, 0xFF, 0xFF, 0xFF, 0xFF}
		telegram, err := f.Telegram()
		if err != nil {
			t.Fatalf("Telegram() error = %v", err)
		}
		if telegram.DBm != 0 {
			t.Errorf("DBm = %d, want 0", telegram.DBm)
		}
	})
}

func TestFrame_TelegramErrors(t *testing.T) {
	t.Run("not a radio packet", func(t *testing.T) {
		f := Frame{Type: PacketTypeResponse, Data: []byte{0x00}}
		if _, err := f.Telegram(); !errors.Is(err, ErrNotRadioTelegram) {
			t.Errorf("error = %v, want ErrNotRadioTelegram", err)
		}
	})

	t.Run("truncated data", func(t *testing.T) {
		f := Frame{Type: PacketTypeRadioERP1, Data: []byte{0xA5, 0x01, 0x02}}
		if _, err := f.Telegram(); !errors.Is(err, ErrInvalidTelegram) {
			t.Errorf("error = %v, want ErrInvalidTelegram", err)
		}
	})
}

func TestTelegram_FrameRoundTrip(t *testing.T) {
	original := Telegram{
		RORG:     0xA5,
		Payload:  []byte{0x00, 0x64, 0x00, 0x08},
		SenderID: 0x01234567,
		Status:   0x00,
	}

	extracted, err := original.Frame().Telegram()
	if err != nil {
		t.Fatalf("Telegram() error = %v", err)
	}
	if extracted.SenderID != original.SenderID {
		t.Errorf("SenderID = %#x, want %#x", extracted.SenderID, original.SenderID)
	}
	if !bytes.Equal(extracted.Payload, original.Payload) {
		t.Errorf("Payload = %X, want %X", extracted.Payload, original.Payload)
	}
}
