// Package packet implements the tunnel packet framing carried inside DNS
// record data: a fixed 5-byte header followed by a type-specific body.
package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Type identifies the tunnel packet's body shape.
type Type uint8

const (
	TypeSYN  Type = 0x00
	TypeMSG  Type = 0x01
	TypeFIN  Type = 0x02
	TypePING Type = 0xFF
)

func (t Type) String() string {
	switch t {
	case TypeSYN:
		return "SYN"
	case TypeMSG:
		return "MSG"
	case TypeFIN:
		return "FIN"
	case TypePING:
		return "PING"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", uint8(t))
	}
}

// SYN option bits.
const (
	OptName    uint16 = 1 << 0
	OptCommand uint16 = 1 << 5
)

// HeaderLen is the size, in bytes, of the fixed tunnel packet header.
const HeaderLen = 5

var (
	ErrTooShort    = errors.New("packet: buffer shorter than header")
	ErrBadType     = errors.New("packet: unrecognized type byte")
	ErrTruncated   = errors.New("packet: body truncated")
	ErrNameTooLong = errors.New("packet: SYN name exceeds 255 bytes")
)

// Header is the 5-byte prefix shared by every tunnel packet.
type Header struct {
	PacketID  uint16
	Type      Type
	SessionID uint16
}

// Packet is a decoded tunnel packet: header plus one populated body.
type Packet struct {
	Header
	SYN  *SYNBody
	MSG  *MSGBody
	FIN  *FINBody
	PING *PINGBody
}

// SYNBody is the body of a SYN packet.
type SYNBody struct {
	InitialSeq uint16
	Options    uint16
	Name       string
}

// HasName reports whether the name bit is set and a name follows.
func (b *SYNBody) HasName() bool { return b.Options&OptName != 0 }

// HasCommand reports whether the command-framing bit is set.
func (b *SYNBody) HasCommand() bool { return b.Options&OptCommand != 0 }

// MSGBody is the body of a MSG packet.
type MSGBody struct {
	Seq  uint16
	Ack  uint16
	Data []byte
}

// FINBody is the body of a FIN packet.
type FINBody struct {
	Reason string
}

// PINGBody is the body of a PING packet.
type PINGBody struct {
	PingID string
}

// Encode serializes p into its wire representation.
func Encode(p *Packet) ([]byte, error) {
	buf := make([]byte, HeaderLen)
	binary.BigEndian.PutUint16(buf[0:2], p.PacketID)
	buf[2] = byte(p.Type)
	binary.BigEndian.PutUint16(buf[3:5], p.SessionID)

	switch p.Type {
	case TypeSYN:
		if p.SYN == nil {
			return nil, fmt.Errorf("packet: SYN type requires SYN body")
		}
		body := make([]byte, 4)
		binary.BigEndian.PutUint16(body[0:2], p.SYN.InitialSeq)
		binary.BigEndian.PutUint16(body[2:4], p.SYN.Options)
		buf = append(buf, body...)
		if p.SYN.HasName() {
			buf = append(buf, []byte(p.SYN.Name)...)
		}
	case TypeMSG:
		if p.MSG == nil {
			return nil, fmt.Errorf("packet: MSG type requires MSG body")
		}
		body := make([]byte, 4)
		binary.BigEndian.PutUint16(body[0:2], p.MSG.Seq)
		binary.BigEndian.PutUint16(body[2:4], p.MSG.Ack)
		buf = append(buf, body...)
		buf = append(buf, p.MSG.Data...)
	case TypeFIN:
		if p.FIN == nil {
			return nil, fmt.Errorf("packet: FIN type requires FIN body")
		}
		buf = append(buf, []byte(p.FIN.Reason)...)
	case TypePING:
		if p.PING == nil {
			return nil, fmt.Errorf("packet: PING type requires PING body")
		}
		buf = append(buf, []byte(p.PING.PingID)...)
	default:
		return nil, ErrBadType
	}

	return buf, nil
}

// Decode parses a wire-format tunnel packet.
func Decode(buf []byte) (*Packet, error) {
	if len(buf) < HeaderLen {
		return nil, ErrTooShort
	}

	p := &Packet{
		Header: Header{
			PacketID:  binary.BigEndian.Uint16(buf[0:2]),
			Type:      Type(buf[2]),
			SessionID: binary.BigEndian.Uint16(buf[3:5]),
		},
	}
	body := buf[HeaderLen:]

	switch p.Type {
	case TypeSYN:
		if len(body) < 4 {
			return nil, ErrTruncated
		}
		s := &SYNBody{
			InitialSeq: binary.BigEndian.Uint16(body[0:2]),
			Options:    binary.BigEndian.Uint16(body[2:4]),
		}
		if s.HasName() {
			s.Name = string(body[4:])
		}
		p.SYN = s
	case TypeMSG:
		if len(body) < 4 {
			return nil, ErrTruncated
		}
		p.MSG = &MSGBody{
			Seq:  binary.BigEndian.Uint16(body[0:2]),
			Ack:  binary.BigEndian.Uint16(body[2:4]),
			Data: append([]byte(nil), body[4:]...),
		}
	case TypeFIN:
		p.FIN = &FINBody{Reason: string(body)}
	case TypePING:
		p.PING = &PINGBody{PingID: string(body)}
	default:
		return nil, ErrBadType
	}

	return p, nil
}
