package reader

import (
	"fmt"
	"strconv"
	"strings"
)

// decodeEscapes interprets backslash escapes in the raw body of a
// string literal: the usual single-character escapes, octal, \xHH,
// \uHHHH and \UHHHHHHHH. An unrecognised escape is kept verbatim.
func decodeEscapes(raw string) (string, error) {
	var b strings.Builder
	runes := []rune(raw)

	for i := 0; i < len(runes); i++ {
		c := runes[i]
		if c != '\\' || i+1 == len(runes) {
			b.WriteRune(c)
			continue
		}

		i++
		switch e := runes[i]; e {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case 'a':
			b.WriteByte('\a')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'v':
			b.WriteByte('\v')
		case '\\':
			b.WriteByte('\\')
		case '\'':
			b.WriteByte('\'')
		case '"':
			b.WriteByte('"')
		case '0', '1', '2', '3', '4', '5', '6', '7':
			j := i
			for j < len(runes) && j-i < 3 && runes[j] >= '0' && runes[j] <= '7' {
				j++
			}
			n, _ := strconv.ParseUint(string(runes[i:j]), 8, 32)
			b.WriteRune(rune(n))
			i = j - 1
		case 'x':
			r, n, err := hexEscape(runes[i+1:], 2)
			if err != nil {
				return "", err
			}
			b.WriteRune(r)
			i += n
		case 'u':
			r, n, err := hexEscape(runes[i+1:], 4)
			if err != nil {
				return "", err
			}
			b.WriteRune(r)
			i += n
		case 'U':
			r, n, err := hexEscape(runes[i+1:], 8)
			if err != nil {
				return "", err
			}
			b.WriteRune(r)
			i += n
		default:
			b.WriteByte('\\')
			b.WriteRune(e)
		}
	}

	return b.String(), nil
}

func hexEscape(runes []rune, width int) (rune, int, error) {
	if len(runes) < width {
		return 0, 0, fmt.Errorf("truncated \\%d-digit escape", width)
	}
	n, err := strconv.ParseUint(string(runes[:width]), 16, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed hex escape %q", string(runes[:width]))
	}
	return rune(n), width, nil
}
