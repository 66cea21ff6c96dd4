package protocol

import (
	"strconv"
)

// Serialize renders the canonical array form [0,pubkey,created_at,kind,tags,content]
// that the event id is hashed over. The byte layout is fixed by the protocol:
// any deviation makes our ids disagree with every relay and peer, which
// silently breaks deduplication and signature checks. Do not replace this
// with a generic JSON encoder.
func (e *Event) Serialize() []byte {
	dst := make([]byte, 0, 100+len(e.Content)+len(e.Tags)*80)
	dst = append(dst, `[0,"`...)
	dst = append(dst, e.PubKey...)
	dst = append(dst, `",`...)
	dst = strconv.AppendInt(dst, int64(e.CreatedAt), 10)
	dst = append(dst, ',')
	dst = strconv.AppendInt(dst, int64(e.Kind), 10)
	dst = append(dst, ',', '[')
	for i, tag := range e.Tags {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = append(dst, '[')
		for j, s := range tag {
			if j > 0 {
				dst = append(dst, ',')
			}
			dst = escapeString(dst, s)
		}
		dst = append(dst, ']')
	}
	dst = append(dst, ']', ',')
	dst = escapeString(dst, e.Content)
	dst = append(dst, ']')
	return dst
}

const hexChars = "0123456789abcdef"

// escapeString is the protocol-mandated minimal JSON string escape: only the
// quote, the backslash and control characters are escaped, everything else
// passes through byte for byte.
func escapeString(dst []byte, s string) []byte {
	dst = append(dst, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			dst = append(dst, '\\', '"')
		case c == '\\':
			dst = append(dst, '\\', '\\')
		case c == '\b':
			dst = append(dst, '\\', 'b')
		case c == '\t':
			dst = append(dst, '\\', 't')
		case c == '\n':
			dst = append(dst, '\\', 'n')
		case c == '\f':
			dst = append(dst, '\\', 'f')
		case c == '\r':
			dst = append(dst, '\\', 'r')
		case c < 0x20:
			dst = append(dst, '\\', 'u', '0', '0', hexChars[c>>4], hexChars[c&0xf])
		default:
			dst = append(dst, c)
		}
	}
	return append(dst, '"')
}
