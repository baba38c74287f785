// Package normalize projects resolved URIs onto the part that is comparable
// across implementations reached at different addresses.
package normalize

import (
	"strconv"
	"strings"

	"urioracle/internal/corpus"
)

// Path strips scheme and authority from a resolved URI and keeps the path
// and query. The fragment is dropped. An absolute URI with an empty path
// becomes "/". Quoted input is unquoted first.
func Path(resolved string) string {
	s := strings.TrimSpace(resolved)
	if len(s) >= 2 && s[0] == '"' {
		if unq, err := strconv.Unquote(s); err == nil {
			s = unq
		}
	}

	p := corpus.Split(s)
	path := p.Path
	if path == "" && p.HasAuthority {
		path = "/"
	}
	if p.HasQuery {
		path += "?" + p.Query
	}
	return path
}
