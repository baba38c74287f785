package parser

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"urioracle/internal/record"
)

const (
	recordReaderSize       = 16 * 1024
	recordLineMaxBytes     = 1024 * 1024
	recordLinePreviewBytes = 256
)

type lineScratch struct {
	buf     []byte
	preview []byte
}

const maxPooledLineScratchCap = 1 << 20 // 1 MiB

var lineScratchPool = sync.Pool{
	New: func() any {
		return &lineScratch{
			buf:     make([]byte, 0, recordReaderSize),
			preview: make([]byte, 0, recordLinePreviewBytes),
		}
	},
}

// Line vocabulary. The request URI sits between fixed phrases and may hold
// anything, so the trailing fields are anchored at line end.
var (
	testCaseLine  = regexp.MustCompile(`^Test case (-?\d+):`)
	completedLine = regexp.MustCompile(`^Request to .* completed with status code: *(\S*)\s*$`)
	errorLine     = regexp.MustCompile(`^Request to .* returned error: *(\S*)\s*$`)
	resolvedLine  = regexp.MustCompile(`^Resolved UR[IL]: ?(.*)$`)
	transportLine = regexp.MustCompile(`^(?:Request to .* (?:failed|timed out)|An unexpected error occurred with )`)
)

// NoIndex marks a record without a "Test case" line.
const NoIndex = -1

// Parse reads one execution record. Unrecognized lines are ignored; lines that
// match the vocabulary but carry an unusable value are reported through warnFn
// and skipped. A record without a status line yields a nil StatusCode.
func Parse(r io.Reader, warnFn func(string)) (record.Parsed, error) {
	if warnFn == nil {
		warnFn = func(string) {}
	}

	reader := bufio.NewReaderSize(r, recordReaderSize)
	scratch := lineScratchPool.Get().(*lineScratch)
	if scratch.buf == nil {
		scratch.buf = make([]byte, 0, recordReaderSize)
	} else {
		scratch.buf = scratch.buf[:0]
	}
	if scratch.preview == nil {
		scratch.preview = make([]byte, 0, recordLinePreviewBytes)
	} else {
		scratch.preview = scratch.preview[:0]
	}
	defer func() {
		if cap(scratch.buf) > maxPooledLineScratchCap {
			scratch.buf = nil
		} else if scratch.buf != nil {
			scratch.buf = scratch.buf[:0]
		}
		if cap(scratch.preview) > recordLinePreviewBytes*4 {
			scratch.preview = nil
		} else if scratch.preview != nil {
			scratch.preview = scratch.preview[:0]
		}
		lineScratchPool.Put(scratch)
	}()

	index := NoIndex
	var (
		status   *int
		resolved *string
	)

	for {
		raw, tooLong, err := readLineWithLimit(reader, recordLineMaxBytes, recordLinePreviewBytes, scratch)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return record.Parsed{TestIndex: index}, fmt.Errorf("read record: %w", err)
		}
		if tooLong {
			warnFn(fmt.Sprintf("Skipped overlong record line (> %d bytes): %s", recordLineMaxBytes, TruncateBytes(raw, 100)))
			continue
		}

		line := strings.TrimRight(string(bytes.TrimSpace(raw)), "\r")
		if line == "" {
			continue
		}

		switch {
		case testCaseLine.MatchString(line):
			m := testCaseLine.FindStringSubmatch(line)
			n, err := strconv.Atoi(m[1])
			if err != nil || n < 0 {
				warnFn(fmt.Sprintf("Malformed test case line: %s", TruncateBytes([]byte(line), 100)))
				continue
			}
			if index == NoIndex {
				index = n
			}
		case completedLine.MatchString(line):
			status = takeStatus(status, completedLine.FindStringSubmatch(line)[1], line, warnFn)
		case errorLine.MatchString(line):
			status = takeStatus(status, errorLine.FindStringSubmatch(line)[1], line, warnFn)
		case resolvedLine.MatchString(line):
			if resolved == nil {
				v := unquote(resolvedLine.FindStringSubmatch(line)[1])
				resolved = &v
			}
		case transportLine.MatchString(line):
			// Transport failures carry no comparable value.
		}
	}

	return record.NewParsed(index, status, resolved), nil
}

func takeStatus(current *int, raw, line string, warnFn func(string)) *int {
	code, err := strconv.Atoi(raw)
	if err != nil || code < 0 {
		warnFn(fmt.Sprintf("Malformed status line: %s", TruncateBytes([]byte(line), 100)))
		return current
	}
	if current != nil {
		if *current != code {
			warnFn(fmt.Sprintf("Conflicting status lines %d and %d; keeping the first", *current, code))
		}
		return current
	}
	return &code
}

func unquote(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 2 && v[0] == '"' {
		if s, err := strconv.Unquote(v); err == nil {
			return s
		}
	}
	return v
}

func readLineWithLimit(r *bufio.Reader, maxBytes int, previewBytes int, scratch *lineScratch) (line []byte, tooLong bool, err error) {
	if r == nil {
		return nil, false, errors.New("reader is nil")
	}
	if maxBytes <= 0 {
		return nil, false, errors.New("maxBytes must be > 0")
	}
	if previewBytes < 0 {
		previewBytes = 0
	}

	part, isPrefix, err := r.ReadLine()
	if err != nil {
		return nil, false, err
	}

	if !isPrefix {
		if len(part) > maxBytes {
			return part[:min(len(part), previewBytes)], true, nil
		}
		return part, false, nil
	}

	if scratch == nil {
		scratch = &lineScratch{}
	}
	preview := scratch.preview[:0]
	if previewBytes > 0 {
		preview = append(preview, part[:min(previewBytes, len(part))]...)
	}

	buf := append(scratch.buf[:0], part...)
	tooLong = len(buf) > maxBytes

	for isPrefix {
		part, isPrefix, err = r.ReadLine()
		if err != nil {
			return nil, tooLong, err
		}
		if previewBytes > 0 && len(preview) < previewBytes {
			preview = append(preview, part[:min(previewBytes-len(preview), len(part))]...)
		}
		if tooLong {
			continue
		}
		if len(buf)+len(part) > maxBytes {
			tooLong = true
			continue
		}
		buf = append(buf, part...)
	}

	scratch.preview = preview
	scratch.buf = buf
	if tooLong {
		return preview, true, nil
	}
	return buf, false, nil
}

// TruncateBytes keeps at most maxLen bytes of b for a warning preview. The
// cut backs off to a rune boundary so the preview stays valid UTF-8.
func TruncateBytes(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	if maxLen < 0 {
		return ""
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(b[cut]) {
		cut--
	}
	return string(b[:cut]) + "..."
}
