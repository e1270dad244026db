package coverage

import (
	"bytes"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ParseMissingLines decodes the helper's stdout: one 1-based line number
// per line. Blank lines are skipped. Anything else is malformed and fails
// the whole parse.
func ParseMissingLines(stdout []byte) ([]int, error) {
	if !utf8.Valid(stdout) {
		return nil, &Error{Kind: KindMalformedOutput, Message: strings.ToValidUTF8(firstLine(stdout), "�")}
	}

	var lines []int
	for _, raw := range strings.Split(string(stdout), "\n") {
		field := strings.TrimSpace(raw)
		if field == "" {
			continue
		}
		n, err := strconv.Atoi(field)
		if err != nil {
			return nil, &Error{Kind: KindMalformedOutput, Message: field, Err: err}
		}
		if n < 1 {
			return nil, &Error{Kind: KindMalformedOutput, Message: field}
		}
		lines = append(lines, n)
	}
	return lines, nil
}

func firstLine(b []byte) string {
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
