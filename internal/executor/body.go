package executor

import (
	"strings"
	"unicode/utf8"
)

// headBuffer keeps the first limit bytes written to it and discards the rest.
type headBuffer struct {
	limit int
	data  []byte
}

func (b *headBuffer) Write(p []byte) (int, error) {
	if b.limit <= 0 {
		return len(p), nil
	}
	if room := b.limit - len(b.data); room > 0 {
		if len(p) > room {
			b.data = append(b.data, p[:room]...)
		} else {
			b.data = append(b.data, p...)
		}
	}
	return len(p), nil
}

func (b *headBuffer) Bytes() []byte {
	return b.data
}

// bodyPrefix returns the first n characters of body. Invalid UTF-8 bytes are
// replaced rather than split.
func bodyPrefix(body []byte, n int) string {
	if n <= 0 || len(body) == 0 {
		return ""
	}
	var sb strings.Builder
	count := 0
	for len(body) > 0 && count < n {
		r, size := utf8.DecodeRune(body)
		sb.WriteRune(r)
		body = body[size:]
		count++
	}
	return sb.String()
}
