package codec

import (
	"github.com/miekg/dns"
)

// EDNS0BufferSize is advertised on every outbound message so resolvers know
// they may return answers up to this size without truncating.
const EDNS0BufferSize = 1232

// EncodeQuery builds a wire-format DNS query for qname/qtype with the given
// message id, advertising EDNS0 support for large UDP responses.
func EncodeQuery(id uint16, qname string, qtype uint16) ([]byte, error) {
	msg := new(dns.Msg)
	msg.Id = id
	msg.RecursionDesired = true
	msg.SetQuestion(dns.Fqdn(qname), qtype)
	attachEDNS0(msg)

	return msg.Pack()
}

// EncodeResponse builds a wire-format DNS response echoing question, with
// answers as the answer section.
func EncodeResponse(id uint16, question dns.Question, answers []dns.RR) ([]byte, error) {
	msg := new(dns.Msg)
	msg.Id = id
	msg.Response = true
	msg.RecursionAvailable = true
	msg.Question = []dns.Question{question}
	msg.Answer = answers
	msg.Compress = true

	return msg.Pack()
}

// Decode parses a wire-format DNS message, translating library-level parse
// failures into the codec's sentinel errors.
func Decode(buf []byte) (*dns.Msg, error) {
	msg := new(dns.Msg)
	if err := msg.Unpack(buf); err != nil {
		return nil, classifyUnpackError(err)
	}
	return msg, nil
}

func attachEDNS0(msg *dns.Msg) {
	opt := &dns.OPT{Hdr: dns.RR_Header{Name: ".", Rrtype: dns.TypeOPT}}
	opt.SetUDPSize(EDNS0BufferSize)
	msg.Extra = append(msg.Extra, opt)
}

// classifyUnpackError maps miekg/dns's untyped parse errors onto the
// codec's sentinel errors so callers can branch with errors.Is. Every parse
// failure maps to ErrTruncated, whatever its cause: malformed names and
// compression-pointer errors are not told apart from truncation.
func classifyUnpackError(err error) error {
	return ErrTruncated
}
