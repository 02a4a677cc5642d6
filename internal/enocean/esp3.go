package enocean

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/sigurn/crc8"
)

// ESP3 wire format constants.
const (
	// syncByte starts every ESP3 frame.
	syncByte = 0x55

	// headerSize is the 4-byte header: data length (2, big-endian),
	// optional length (1), packet type (1). A CRC8 over these four
	// bytes follows immediately.
	headerSize = 4

	// PacketTypeRadioERP1 carries a radio telegram.
	PacketTypeRadioERP1 byte = 0x01

	// PacketTypeResponse acknowledges a command sent to the gateway.
	PacketTypeResponse byte = 0x02

	// maxFrameData bounds the data+optional length accepted from the
	// wire. Anything larger is treated as stream corruption.
	maxFrameData = 1024
)

// crcTable is the CRC-8 variant used by ESP3 (poly 0x07, no reflection).
var crcTable = crc8.MakeTable(crc8.CRC8)

// Frame is one ESP3 packet.
//
// Wire layout:
//
//	Byte 0:    sync (0x55)
//	Byte 1-2:  data length (big-endian)
//	Byte 3:    optional data length
//	Byte 4:    packet type
//	Byte 5:    CRC8 over bytes 1-4
//	...        data, optional data
//	Last byte: CRC8 over data + optional data
type Frame struct {
	Type     byte
	Data     []byte
	Optional []byte
}

// Encode serialises the frame to ESP3 wire format.
func (f Frame) Encode() []byte {
	buf := make([]byte, 0, 7+len(f.Data)+len(f.Optional))

	header := [headerSize]byte{}
	binary.BigEndian.PutUint16(header[0:2], uint16(len(f.Data))) //nolint:gosec // bounded by maxFrameData
	header[2] = byte(len(f.Optional))
	header[3] = f.Type

	buf = append(buf, syncByte)
	buf = append(buf, header[:]...)
	buf = append(buf, crc8.Checksum(header[:], crcTable))
	buf = append(buf, f.Data...)
	buf = append(buf, f.Optional...)

	payload := buf[6:]
	buf = append(buf, crc8.Checksum(payload, crcTable))
	return buf
}

// ParseFrame decodes a complete ESP3 frame from a byte slice.
func ParseFrame(raw []byte) (Frame, error) {
	if len(raw) < 7 {
		return Frame{}, fmt.Errorf("%w: %d bytes, need at least 7", ErrInvalidFrame, len(raw))
	}
	if raw[0] != syncByte {
		return Frame{}, fmt.Errorf("%w: missing sync byte", ErrInvalidFrame)
	}

	header := raw[1:5]
	if crc8.Checksum(header, crcTable) != raw[5] {
		return Frame{}, fmt.Errorf("%w: header", ErrCRCMismatch)
	}

	dataLen := int(binary.BigEndian.Uint16(header[0:2]))
	optLen := int(header[2])
	if len(raw) != 7+dataLen+optLen {
		return Frame{}, fmt.Errorf("%w: declared %d+%d bytes, frame has %d",
			ErrInvalidFrame, dataLen, optLen, len(raw)-7)
	}

	payload := raw[6 : 6+dataLen+optLen]
	if crc8.Checksum(payload, crcTable) != raw[len(raw)-1] {
		return Frame{}, fmt.Errorf("%w: data", ErrCRCMismatch)
	}

	f := Frame{Type: header[3]}
	f.Data = append(f.Data, payload[:dataLen]...)
	f.Optional = append(f.Optional, payload[dataLen:]...)
	return f, nil
}

// Telegram extracts the radio telegram from an ERP1 packet.
//
// ERP1 data layout: RORG (1) + payload (n) + sender ID (4) + status (1).
// Optional layout: subTelNum (1) + destination (4) + dBm (1) + security
// (1); the received signal strength comes from the dBm byte when present.
func (f Frame) Telegram() (Telegram, error) {
	if f.Type != PacketTypeRadioERP1 {
		return Telegram{}, fmt.Errorf("%w: packet type %02X", ErrNotRadioTelegram, f.Type)
	}
	if len(f.Data) < 6 {
		return Telegram{}, fmt.Errorf("%w: %d data bytes", ErrInvalidTelegram, len(f.Data))
	}

	n := len(f.Data)
	t := Telegram{
		RORG:       f.Data[0],
		SenderID:   binary.BigEndian.Uint32(f.Data[n-5 : n-1]),
		Status:     f.Data[n-1],
		ReceivedAt: time.Now(),
	}
	t.Payload = append(t.Payload, f.Data[1:n-5]...)

	if len(f.Optional) >= 6 {
		// The gateway reports signal strength as a positive attenuation
		t.DBm = -int(f.Optional[5])
	}

	return t, nil
}

// Frame builds the ERP1 packet for transmitting this telegram as a
// broadcast with the standard sub-telegram count.
func (t Telegram) Frame() Frame {
	data := make([]byte, 0, 6+len(t.Payload))
	data = append(data, t.RORG)
	data = append(data, t.Payload...)
	data = binary.BigEndian.AppendUint32(data, t.SenderID)
	data = append(data, t.Status)

	// Optional data for sending: subTelNum=3, broadcast destination,
	// dBm=0xFF (send), security level 0.
	optional := []byte{0x03, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x00}

	return Frame{Type: PacketTypeRadioERP1, Data: data, Optional: optional}
}

// FrameReader extracts ESP3 frames from a byte stream, resynchronising
// on the next sync byte after corruption.
type FrameReader struct {
	r       *bufio.Reader
	dropped int
}

// NewFrameReader wraps a stream, typically a serial port.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReaderSize(r, 2*maxFrameData)}
}

// Dropped returns how many times the reader had to resynchronise.
func (fr *FrameReader) Dropped() int {
	return fr.dropped
}

// Read blocks until a complete, CRC-valid frame arrives.
//
// Bytes before a sync byte, frames with a bad header CRC and frames
// with a bad data CRC are skipped; only stream errors are returned.
func (fr *FrameReader) Read() (Frame, error) {
	for {
		b, err := fr.r.ReadByte()
		if err != nil {
			return Frame{}, err
		}
		if b != syncByte {
			continue
		}

		header, err := fr.r.Peek(headerSize + 1)
		if err != nil {
			return Frame{}, err
		}
		if crc8.Checksum(header[:headerSize], crcTable) != header[headerSize] {
			// Not a frame start; keep scanning from the next byte
			fr.dropped++
			continue
		}

		dataLen := int(binary.BigEndian.Uint16(header[0:2]))
		optLen := int(header[2])
		if dataLen == 0 || dataLen+optLen > maxFrameData {
			fr.dropped++
			continue
		}

		if _, err := fr.r.Discard(headerSize + 1); err != nil {
			return Frame{}, err
		}

		payload := make([]byte, dataLen+optLen+1)
		if _, err := io.ReadFull(fr.r, payload); err != nil {
			return Frame{}, err
		}

		body := payload[:dataLen+optLen]
		if crc8.Checksum(body, crcTable) != payload[dataLen+optLen] {
			fr.dropped++
			continue
		}

		f := Frame{Type: header[3]}
		f.Data = append(f.Data, body[:dataLen]...)
		f.Optional = append(f.Optional, body[dataLen:]...)
		return f, nil
	}
}
