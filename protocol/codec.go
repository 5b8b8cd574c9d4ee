package protocol

import (
	"encoding/binary"
	"fmt"
)

// Wire layout of a batch:
//
//	base time (4, little endian, low 32 bits) | record...
//
// and of a record:
//
//	header (1) | element (1) | color (1) | delta (0/1/2/4, signed LE) | value (0/1)
//
// Header bits 7-6 select the delta width class, bits 5-3 the command tag,
// bits 2-0 are reserved and written as zero.
const (
	BaseTimeLen     = 4
	RecordHeaderLen = 3
	MaxRecordLen    = RecordHeaderLen + 4 + 1
	MinEncodeBuffer = BaseTimeLen + RecordHeaderLen

	epochLen = uint64(1) << 32
)

var deltaWidths = [4]int{0, 1, 2, 4}

// Decode parses one batch. hint is the receiver's current clock and is used
// to pick the 2^32 µs epoch the sender meant. An empty buffer is an empty
// batch. Any malformed record discards the whole batch.
func Decode(buf []byte, hint uint64) ([]LedMsg, error) {
	if len(buf) == 0 {
		return nil, nil
	}
	if len(buf) < BaseTimeLen {
		return nil, fmt.Errorf("%w: %d bytes cannot hold the %d byte base time", ErrBadInput, len(buf), BaseTimeLen)
	}
	base := ResolveTime(binary.LittleEndian.Uint32(buf), hint)

	msgs := make([]LedMsg, 0, (len(buf)-BaseTimeLen)/RecordHeaderLen)
	for i := BaseTimeLen; i < len(buf); {
		header := buf[i]
		width := deltaWidths[header>>6]
		kind := CommandKind((header >> 3) & 0x07)
		if !kind.valid() {
			return nil, fmt.Errorf("%w: unknown command tag %d at offset %d", ErrBadInput, kind, i)
		}
		need := RecordHeaderLen + width
		if kind != CmdNull {
			need++
		}
		if i+need > len(buf) {
			return nil, fmt.Errorf("%w: record at offset %d is short by %d bytes", ErrBadInput, i, i+need-len(buf))
		}

		raw := buf[i+RecordHeaderLen : i+RecordHeaderLen+width]
		var delta int64
		switch width {
		case 1:
			delta = int64(int8(raw[0]))
		case 2:
			delta = int64(int16(binary.LittleEndian.Uint16(raw)))
		case 4:
			delta = int64(int32(binary.LittleEndian.Uint32(raw)))
		}

		msg := LedMsg{
			Time:    base + uint64(delta),
			Element: buf[i+1],
			Color:   buf[i+2],
			Cmd:     Command{Kind: kind},
		}
		if kind != CmdNull {
			msg.Cmd.Value = buf[i+RecordHeaderLen+width]
		}
		msgs = append(msgs, msg)
		i += need
	}
	return msgs, nil
}

// ResolveTime rebuilds a full 64 bit time from its low 32 bits. The
// candidate in hint's epoch competes with the neighbouring epoch on the side
// of hint's midpoint; the one numerically closer to hint wins. Skew between
// the clocks must stay below 2^31 µs (about 35.8 minutes).
func ResolveTime(low uint32, hint uint64) uint64 {
	candidate := hint&^(epochLen-1) | uint64(low)
	var alternative uint64
	if uint32(hint) >= 1<<31 {
		alternative = candidate + epochLen
	} else {
		alternative = candidate - epochLen
	}
	if distance(alternative, hint) < distance(candidate, hint) {
		return alternative
	}
	return candidate
}

func distance(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

// deltaClass returns the narrowest width class holding delta exactly.
func deltaClass(delta int64) (byte, bool) {
	switch {
	case delta == 0:
		return 0, true
	case delta == int64(int8(delta)):
		return 1, true
	case delta == int64(int16(delta)):
		return 2, true
	case delta == int64(int32(delta)):
		return 3, true
	}
	return 0, false
}

// Encode writes msgs relative to base into out and returns how many records
// were consumed and how many bytes were written. It stops early when the
// next record would not fit, so callers can continue with msgs[consumed:]
// in a fresh buffer. Records whose delta exceeds 32 bits, or that carry an
// unknown command kind, are consumed without being written.
//
// out must hold at least MinEncodeBuffer bytes; a smaller buffer is a
// misconfigured MTU and panics.
func Encode(msgs []LedMsg, out []byte, base uint64) (consumed, written int) {
	if len(out) < MinEncodeBuffer {
		panic(fmt.Sprintf("protocol: encode buffer of %d bytes, need at least %d", len(out), MinEncodeBuffer))
	}
	binary.LittleEndian.PutUint32(out, uint32(base))
	i := BaseTimeLen

	for _, msg := range msgs {
		if len(out)-i < RecordHeaderLen {
			break
		}
		class, ok := deltaClass(int64(msg.Time - base))
		if !ok || !msg.Cmd.Kind.valid() {
			consumed++
			continue
		}
		width := deltaWidths[class]
		n := RecordHeaderLen + width
		if msg.Cmd.HasPayload() {
			n++
		}
		if i+n > len(out) {
			break
		}

		out[i] = class<<6 | byte(msg.Cmd.Kind)<<3
		out[i+1] = msg.Element
		out[i+2] = msg.Color
		delta := msg.Time - base
		switch width {
		case 1:
			out[i+3] = byte(delta)
		case 2:
			binary.LittleEndian.PutUint16(out[i+3:], uint16(delta))
		case 4:
			binary.LittleEndian.PutUint32(out[i+3:], uint32(delta))
		}
		if msg.Cmd.HasPayload() {
			out[i+RecordHeaderLen+width] = msg.Cmd.Value
		}
		i += n
		consumed++
	}
	return consumed, i
}

// EncodePackets splits msgs into packets of at most mtu bytes, all relative
// to base, and hands each to emit. The slice passed to emit is reused for
// the next packet and must not be retained.
func EncodePackets(msgs []LedMsg, mtu int, base uint64, emit func([]byte) error) error {
	buf := make([]byte, mtu)
	for len(msgs) > 0 {
		consumed, written := Encode(msgs, buf, base)
		if consumed == 0 {
			return fmt.Errorf("record %s does not fit an mtu of %d bytes", msgs[0], mtu)
		}
		msgs = msgs[consumed:]
		if written == BaseTimeLen {
			continue
		}
		if err := emit(buf[:written]); err != nil {
			return err
		}
	}
	return nil
}
