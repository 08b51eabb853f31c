package codec

import (
	"encoding/hex"
	"net"
	"sort"
	"strings"

	"github.com/miekg/dns"
)

// carrierSuffix anchors the label-encoded carriers (CNAME/MX/NS) to a
// syntactically valid absolute domain. The tunnel domain itself is supplied
// by the caller when building an uplink query name (see EncodeQueryName);
// downlink carriers only need *a* valid suffix, since the client strips it
// positionally rather than by matching a configured domain.
const carrierSuffix = "c.invalid."

// mxPreference is the fixed MX preference value used for MX carriers.
const mxPreference = 10

// MaxChunkPayload bounds the payload accepted by the A/AAAA carriers: the
// reassembled buffer is prefixed with a single length byte, so it cannot
// describe more than 255 bytes of payload.
const MaxChunkPayload = 255

// EncodeQueryName builds the QNAME for an uplink tunnel query: the payload
// hex-encoded and split into ≤63-byte labels, a random cache-busting label,
// and the session/domain suffix. Returns ErrOversize if the result would
// exceed the 255-byte wire limit on names.
func EncodeQueryName(payload []byte, sessionID uint16, domain string) (string, error) {
	dataHex := hex.EncodeToString(payload)
	dataLabels := splitIntoLabels(dataHex, MaxLabelLen)

	domain = strings.TrimSuffix(domain, ".")
	qname := randomNonceLabel() + "." + dataLabels + "." + sessionHex(sessionID) + "." + domain + "."

	// The wire form of an absolute name is one byte longer than its text.
	if len(qname)+1 > MaxNameLen {
		return "", ErrOversize
	}
	return qname, nil
}

func sessionHex(sessionID uint16) string {
	b := []byte{byte(sessionID >> 8), byte(sessionID)}
	return hex.EncodeToString(b)
}

// EncodeCarrier renders payload as the answer section for rtype, per the
// type-specific carrier rules in §4.1. qname is the owner name to copy into
// each RR header (normally the echoed question name).
func EncodeCarrier(payload []byte, rtype uint16, qname string) ([]dns.RR, error) {
	hdr := dns.RR_Header{Name: qname, Class: dns.ClassINET, Ttl: 0}

	switch rtype {
	case dns.TypeTXT:
		encoded := strings.ToLower(hex.EncodeToString(payload))
		return []dns.RR{&dns.TXT{
			Hdr: withType(hdr, dns.TypeTXT),
			Txt: splitTXTStrings(encoded),
		}}, nil

	case dns.TypeCNAME:
		target, err := labelTarget(payload)
		if err != nil {
			return nil, err
		}
		return []dns.RR{&dns.CNAME{Hdr: withType(hdr, dns.TypeCNAME), Target: target}}, nil

	case dns.TypeNS:
		target, err := labelTarget(payload)
		if err != nil {
			return nil, err
		}
		return []dns.RR{&dns.NS{Hdr: withType(hdr, dns.TypeNS), Ns: target}}, nil

	case dns.TypeMX:
		target, err := labelTarget(payload)
		if err != nil {
			return nil, err
		}
		return []dns.RR{&dns.MX{Hdr: withType(hdr, dns.TypeMX), Preference: mxPreference, Mx: target}}, nil

	case dns.TypeA:
		return encodeChunked(payload, 3, func(idx, total byte, chunk []byte) dns.RR {
			data := make([]byte, 4)
			data[0] = idx
			copy(data[1:], chunk)
			return &dns.A{Hdr: withType(hdr, dns.TypeA), A: net.IP(data)}
		})

	case dns.TypeAAAA:
		return encodeChunked(payload, 15, func(idx, total byte, chunk []byte) dns.RR {
			data := make([]byte, 16)
			data[0] = idx
			copy(data[1:], chunk)
			return &dns.AAAA{Hdr: withType(hdr, dns.TypeAAAA), AAAA: net.IP(data)}
		})

	default:
		return nil, ErrUnknownType
	}
}

// DecodeCarrier extracts the tunnel payload from a set of answer RRs that
// were produced by EncodeCarrier for the given record type.
func DecodeCarrier(rtype uint16, answers []dns.RR) ([]byte, error) {
	switch rtype {
	case dns.TypeTXT, dns.TypeCNAME, dns.TypeNS, dns.TypeMX, dns.TypeA, dns.TypeAAAA:
		// handled below
	default:
		return nil, ErrUnknownType
	}

	if len(answers) == 0 {
		return nil, ErrTruncated
	}

	switch rtype {
	case dns.TypeTXT:
		txt, ok := answers[0].(*dns.TXT)
		if !ok {
			return nil, ErrUnknownType
		}
		return hex.DecodeString(strings.Join(txt.Txt, ""))

	case dns.TypeCNAME:
		rr, ok := answers[0].(*dns.CNAME)
		if !ok {
			return nil, ErrUnknownType
		}
		return decodeLabelTarget(rr.Target)

	case dns.TypeNS:
		rr, ok := answers[0].(*dns.NS)
		if !ok {
			return nil, ErrUnknownType
		}
		return decodeLabelTarget(rr.Ns)

	case dns.TypeMX:
		rr, ok := answers[0].(*dns.MX)
		if !ok {
			return nil, ErrUnknownType
		}
		return decodeLabelTarget(rr.Mx)

	case dns.TypeA:
		return decodeChunked(answers, 4, func(rr dns.RR) ([]byte, bool) {
			a, ok := rr.(*dns.A)
			if !ok {
				return nil, false
			}
			ip := a.A.To4()
			if ip == nil {
				return nil, false
			}
			return []byte(ip), true
		})

	case dns.TypeAAAA:
		return decodeChunked(answers, 16, func(rr dns.RR) ([]byte, bool) {
			aaaa, ok := rr.(*dns.AAAA)
			if !ok {
				return nil, false
			}
			ip := aaaa.AAAA.To16()
			if ip == nil {
				return nil, false
			}
			return []byte(ip), true
		})

	default:
		return nil, ErrUnknownType
	}
}

func withType(hdr dns.RR_Header, rtype uint16) dns.RR_Header {
	hdr.Rrtype = rtype
	return hdr
}

// splitTXTStrings breaks a hex string into character-strings of at most 255
// bytes each, matching the TXT rdata wire encoding.
func splitTXTStrings(s string) []string {
	const maxCharString = 255
	if len(s) == 0 {
		return []string{""}
	}
	var out []string
	for i := 0; i < len(s); i += maxCharString {
		end := i + maxCharString
		if end > len(s) {
			end = len(s)
		}
		out = append(out, s[i:end])
	}
	return out
}

// labelTarget renders payload as hex labels beneath carrierSuffix, used by
// the CNAME/MX/NS carriers.
func labelTarget(payload []byte) (string, error) {
	dataHex := hex.EncodeToString(payload)
	target := carrierSuffix
	if dataHex != "" {
		labels := splitIntoLabels(dataHex, MaxLabelLen)
		target = labels + "." + carrierSuffix
	}
	if len(target)+1 > MaxNameLen {
		return "", ErrOversize
	}
	return target, nil
}

// decodeLabelTarget reverses labelTarget.
func decodeLabelTarget(target string) ([]byte, error) {
	target = strings.TrimSuffix(target, ".")
	suffix := strings.TrimSuffix(carrierSuffix, ".")
	data := strings.TrimSuffix(target, suffix)
	data = strings.TrimSuffix(data, ".")
	data = joinLabels(strings.Split(data, "."))
	return hex.DecodeString(data)
}

// encodeChunked splits [length-byte][payload] into fixed-size chunks, each
// wrapped by wrap into one answer RR carrying a 1-byte sequence index.
func encodeChunked(payload []byte, chunkLen int, wrap func(idx, total byte, chunk []byte) dns.RR) ([]dns.RR, error) {
	if len(payload) > MaxChunkPayload {
		return nil, ErrOversize
	}
	full := append([]byte{byte(len(payload))}, payload...)

	total := (len(full) + chunkLen - 1) / chunkLen
	if total == 0 {
		total = 1
	}
	if total > 255 {
		return nil, ErrOversize
	}

	answers := make([]dns.RR, 0, total)
	for i := 0; i < total; i++ {
		start := i * chunkLen
		end := start + chunkLen
		chunk := make([]byte, chunkLen)
		if start < len(full) {
			copy(chunk, full[start:min(end, len(full))])
		}
		answers = append(answers, wrap(byte(i), byte(total), chunk))
	}
	return answers, nil
}

// decodeChunked reverses encodeChunked: it sorts answers by their leading
// index byte, drops that byte, concatenates the remainder, then strips the
// leading length byte to recover the original payload.
func decodeChunked(answers []dns.RR, recordLen int, extract func(dns.RR) ([]byte, bool)) ([]byte, error) {
	type indexed struct {
		idx  byte
		data []byte
	}
	entries := make([]indexed, 0, len(answers))
	for _, rr := range answers {
		data, ok := extract(rr)
		if !ok || len(data) != recordLen {
			continue
		}
		entries = append(entries, indexed{idx: data[0], data: data[1:]})
	}
	if len(entries) == 0 {
		return nil, ErrTruncated
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].idx < entries[j].idx })

	var full []byte
	for _, e := range entries {
		full = append(full, e.data...)
	}
	if len(full) < 1 {
		return nil, ErrTruncated
	}
	length := int(full[0])
	if length > len(full)-1 {
		return nil, ErrTruncated
	}
	return full[1 : 1+length], nil
}
