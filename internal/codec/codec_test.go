package codec

import (
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeQueryNameBounds(t *testing.T) {
	payload := make([]byte, 100)
	for i := range payload {
		payload[i] = byte(i)
	}

	qname, err := EncodeQueryName(payload, 0xA1B2, "tunnel.example.com")
	require.NoError(t, err)

	assert.LessOrEqual(t, len(qname), MaxNameLen)
	for _, label := range dns.SplitDomainName(qname) {
		assert.LessOrEqual(t, len(label), MaxLabelLen)
	}
}

func TestEncodeQueryNameOversize(t *testing.T) {
	payload := make([]byte, 4000)
	_, err := EncodeQueryName(payload, 1, "example.com")
	assert.ErrorIs(t, err, ErrOversize)
}

func TestCarrierRoundTrip(t *testing.T) {
	payloads := [][]byte{
		[]byte("hi"),
		[]byte(""),
		[]byte("the quick brown fox jumps over the lazy dog"),
		make([]byte, 200),
	}

	types := []uint16{dns.TypeTXT, dns.TypeCNAME, dns.TypeMX, dns.TypeNS, dns.TypeA, dns.TypeAAAA}

	for _, rtype := range types {
		rtype := rtype
		t.Run(dns.TypeToString[rtype], func(t *testing.T) {
			for _, payload := range payloads {
				if len(payload) > MaxChunkPayload && (rtype == dns.TypeA || rtype == dns.TypeAAAA) {
					continue
				}
				answers, err := EncodeCarrier(payload, rtype, "query.example.com.")
				if 2*len(payload) > MaxNameLen && (rtype == dns.TypeCNAME || rtype == dns.TypeMX || rtype == dns.TypeNS) {
					// Hex doubles the payload, so it cannot fit in one name.
					assert.ErrorIs(t, err, ErrOversize)
					continue
				}
				require.NoError(t, err)
				require.NotEmpty(t, answers)

				got, err := DecodeCarrier(rtype, answers)
				require.NoError(t, err)
				assert.Equal(t, payload, got)
			}
		})
	}
}

func TestDecodeCarrierUnknownType(t *testing.T) {
	_, err := DecodeCarrier(dns.TypeSOA, nil)
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestMessageEncodeDecodeRoundTrip(t *testing.T) {
	wire, err := EncodeQuery(0x1234, "abc.sess.example.com", dns.TypeTXT)
	require.NoError(t, err)

	msg, err := Decode(wire)
	require.NoError(t, err)
	require.Len(t, msg.Question, 1)
	assert.Equal(t, dns.TypeTXT, msg.Question[0].Qtype)
	assert.Equal(t, uint16(0x1234), msg.Id)
}

func TestDecodeTruncated(t *testing.T) {
	_, err := Decode([]byte{0x00})
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestEncodeResponseRoundTrip(t *testing.T) {
	question := dns.Question{Name: "abc.sess.example.com.", Qtype: dns.TypeTXT, Qclass: dns.ClassINET}
	answers, err := EncodeCarrier([]byte("HI"), dns.TypeTXT, question.Name)
	require.NoError(t, err)

	wire, err := EncodeResponse(0x1234, question, answers)
	require.NoError(t, err)

	msg, err := Decode(wire)
	require.NoError(t, err)
	assert.True(t, msg.Response)
	require.Len(t, msg.Answer, 1)

	payload, err := DecodeCarrier(dns.TypeTXT, msg.Answer)
	require.NoError(t, err)
	assert.Equal(t, []byte("HI"), payload)
}
