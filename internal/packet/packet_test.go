package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		pkt  *Packet
	}{
		{
			name: "SYN without name",
			pkt: &Packet{
				Header: Header{PacketID: 0x1234, Type: TypeSYN, SessionID: 0xA1B2},
				SYN:    &SYNBody{InitialSeq: 0x1000, Options: 0},
			},
		},
		{
			name: "SYN with name and command bit",
			pkt: &Packet{
				Header: Header{PacketID: 1, Type: TypeSYN, SessionID: 2},
				SYN:    &SYNBody{InitialSeq: 7, Options: OptName | OptCommand, Name: "laptop"},
			},
		},
		{
			name: "MSG with data",
			pkt: &Packet{
				Header: Header{PacketID: 9, Type: TypeMSG, SessionID: 0xA1B2},
				MSG:    &MSGBody{Seq: 0x1000, Ack: 0x7000, Data: []byte("hi")},
			},
		},
		{
			name: "MSG with empty data (heartbeat)",
			pkt: &Packet{
				Header: Header{PacketID: 9, Type: TypeMSG, SessionID: 0xA1B2},
				MSG:    &MSGBody{Seq: 1, Ack: 1, Data: nil},
			},
		},
		{
			name: "FIN with reason",
			pkt: &Packet{
				Header: Header{PacketID: 3, Type: TypeFIN, SessionID: 5},
				FIN:    &FINBody{Reason: "retry limit"},
			},
		},
		{
			name: "FIN without reason",
			pkt: &Packet{
				Header: Header{PacketID: 3, Type: TypeFIN, SessionID: 5},
				FIN:    &FINBody{},
			},
		},
		{
			name: "PING",
			pkt: &Packet{
				Header: Header{PacketID: 0, Type: TypePING, SessionID: 0},
				PING:   &PINGBody{PingID: "abcdef"},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wire, err := Encode(tc.pkt)
			require.NoError(t, err)

			got, err := Decode(wire)
			require.NoError(t, err)

			assert.Equal(t, tc.pkt.Header, got.Header)
			switch tc.pkt.Type {
			case TypeSYN:
				assert.Equal(t, tc.pkt.SYN, got.SYN)
			case TypeMSG:
				assert.Equal(t, tc.pkt.MSG.Seq, got.MSG.Seq)
				assert.Equal(t, tc.pkt.MSG.Ack, got.MSG.Ack)
				assert.Equal(t, tc.pkt.MSG.Data, got.MSG.Data)
			case TypeFIN:
				assert.Equal(t, tc.pkt.FIN.Reason, got.FIN.Reason)
			case TypePING:
				assert.Equal(t, tc.pkt.PING.PingID, got.PING.PingID)
			}
		})
	}
}

func TestDecodeTooShort(t *testing.T) {
	_, err := Decode([]byte{0x00, 0x01})
	assert.ErrorIs(t, err, ErrTooShort)
}

func TestDecodeTruncatedBody(t *testing.T) {
	// Header claims MSG but body is missing the seq/ack word.
	buf := []byte{0x00, 0x01, byte(TypeMSG), 0x00, 0x02, 0xAA}
	_, err := Decode(buf)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestDecodeUnknownType(t *testing.T) {
	buf := []byte{0x00, 0x01, 0x77, 0x00, 0x02}
	_, err := Decode(buf)
	assert.ErrorIs(t, err, ErrBadType)
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "SYN", TypeSYN.String())
	assert.Equal(t, "PING", TypePING.String())
	assert.Contains(t, Type(0x77).String(), "UNKNOWN")
}
