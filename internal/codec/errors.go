package codec

import "errors"

// Sentinel errors returned by the codec, per §4.1/§7 of the specification.
var (
	// ErrTruncated is returned when a DNS message ends before a field it
	// declares is fully readable. Decode returns it for every unpack
	// failure, malformed names included (see classifyUnpackError).
	ErrTruncated = errors.New("codec: message truncated")
	// ErrBadName names the malformed-domain-name case: a label longer than
	// 63 bytes, a name whose encoded length exceeds 255 bytes, or a
	// compression pointer that loops or jumps past the end of the buffer.
	// No codec function currently returns it; Decode reports those cases
	// as ErrTruncated.
	ErrBadName = errors.New("codec: malformed domain name")
	// ErrUnknownType marks an RR type the codec does not interpret; the
	// caller may still carry the RR through as opaque rdata.
	ErrUnknownType = errors.New("codec: unrecognized record type")
	// ErrOversize is returned when a tunnel payload cannot be encoded into
	// a single carrier record without the resulting FQDN or rdata
	// exceeding wire limits; the caller must fragment and retry.
	ErrOversize = errors.New("codec: payload exceeds carrier capacity")
)
