package modbus

// Sync is the leading byte of every TinyBMS frame on the wire.
const Sync = 0xAA

// Command bytes used by the TinyBMS framing.
const (
	CmdRead      = 0x03
	CmdWrite     = 0x10
	CmdErrorReply = 0x00
)

const (
	// MaxReadCount is the largest register count a single read request may
	// carry (RL field is a single byte of 16-bit register count).
	MaxReadCount = 127
	// MaxWriteCount is the largest number of 16-bit words a single write
	// request may carry.
	MaxWriteCount = 100
)

// EncodeRead builds a read-request frame for `count` consecutive 16-bit
// registers starting at addr. The wire uses little-endian addresses and data
// words; only the trailing CRC-16 is itself little-endian, which happens to
// match. See spec §4.1 for the critical byte-order note.
func EncodeRead(addr uint16, count uint8) ([]byte, error) {
	if count == 0 || count > MaxReadCount {
		return nil, ErrInvalidArg
	}
	buf := make([]byte, 6, 8)
	buf[0] = Sync
	buf[1] = CmdRead
	buf[2] = byte(addr)
	buf[3] = byte(addr >> 8)
	buf[4] = 0x00
	buf[5] = count
	return appendCRC(buf), nil
}

// EncodeWrite builds a write-request frame for the given consecutive
// registers. words must contain between 1 and MaxWriteCount 16-bit values.
func EncodeWrite(addr uint16, words []uint16) ([]byte, error) {
	if len(words) == 0 || len(words) > MaxWriteCount {
		return nil, ErrInvalidArg
	}
	buf := make([]byte, 6, 6+2*len(words)+2)
	buf[0] = Sync
	buf[1] = CmdWrite
	buf[2] = byte(addr)
	buf[3] = byte(addr >> 8)
	buf[4] = 0x00
	buf[5] = uint8(len(words))
	buf = append(buf, byte(2*len(words)))
	for _, w := range words {
		buf = append(buf, byte(w), byte(w>>8))
	}
	return appendCRC(buf), nil
}

func appendCRC(buf []byte) []byte {
	crc := Checksum(buf)
	return append(buf, byte(crc), byte(crc>>8))
}

// ReplyFrame is the decoded, CRC-verified result of a read or write reply.
type ReplyFrame struct {
	Cmd     byte
	Payload []uint16 // reassembled 16-bit words, LSW-first order as received
}

// ParseReply validates and decodes a reply buffer for a request that used
// expectedCmd (CmdRead or CmdWrite). It only succeeds once buf holds the full
// expected byte count for the frame shape it detects; a short buffer returns
// ErrShortBuffer so callers can keep accumulating bytes from the wire.
func ParseReply(buf []byte, expectedCmd byte) (*ReplyFrame, error) {
	if len(buf) < 2 {
		return nil, ErrShortBuffer
	}
	if buf[0] != Sync {
		return nil, &DecodeError{Kind: BadSync}
	}

	switch buf[1] {
	case CmdErrorReply:
		if len(buf) < 6 {
			return nil, ErrShortBuffer
		}
		if err := verifyCRC(buf[:6]); err != nil {
			return nil, err
		}
		return nil, &DecodeError{Kind: DeviceError, Code: buf[3]}

	case CmdRead:
		if expectedCmd != CmdRead {
			return nil, &DecodeError{Kind: BadCmd}
		}
		if len(buf) < 3 {
			return nil, ErrShortBuffer
		}
		payloadLen := int(buf[2])
		total := 3 + payloadLen + 2
		if len(buf) < total {
			return nil, ErrShortBuffer
		}
		if payloadLen%2 != 0 {
			return nil, &DecodeError{Kind: BadLength}
		}
		if err := verifyCRC(buf[:total]); err != nil {
			return nil, err
		}
		words := make([]uint16, payloadLen/2)
		for i := range words {
			lo := buf[3+2*i]
			hi := buf[3+2*i+1]
			words[i] = uint16(hi)<<8 | uint16(lo)
		}
		return &ReplyFrame{Cmd: CmdRead, Payload: words}, nil

	case CmdWrite:
		if expectedCmd != CmdWrite {
			return nil, &DecodeError{Kind: BadCmd}
		}
		const total = 8 // AA 10 ADDR_LSB ADDR_MSB 00 RL CRC_LO CRC_HI
		if len(buf) < total {
			return nil, ErrShortBuffer
		}
		if err := verifyCRC(buf[:total]); err != nil {
			return nil, err
		}
		return &ReplyFrame{Cmd: CmdWrite}, nil

	default:
		return nil, &DecodeError{Kind: BadCmd}
	}
}

func verifyCRC(frame []byte) error {
	n := len(frame)
	want := Checksum(frame[:n-2])
	got := uint16(frame[n-1])<<8 | uint16(frame[n-2])
	if want != got {
		return &DecodeError{Kind: BadCrc}
	}
	return nil
}
