package extract

import (
	"encoding/hex"
	"strings"
	"unicode/utf8"
)

// DecodeContentText pulls the text-showing operands (Tj, TJ, ' and ") out of
// a PDF content stream. It decodes literal and hex string objects, honors the
// escape sequences of the literal syntax, and inserts separators at line
// moves (Td, TD, T*) so words on different lines do not run together.
//
// This handles the common case of simply-encoded text. Documents using custom
// CMaps come out garbled and are caught downstream by the minimum-length
// check.
func DecodeContentText(content []byte) string {
	var out strings.Builder
	var operands []string

	i := 0
	for i < len(content) {
		c := content[i]
		switch {
		case c == '(':
			s, next := parseLiteralString(content, i)
			operands = append(operands, s)
			i = next
		case c == '<' && i+1 < len(content) && content[i+1] != '<':
			s, next := parseHexString(content, i)
			operands = append(operands, s)
			i = next
		case c == '[':
			s, next := parseArrayStrings(content, i)
			operands = append(operands, s)
			i = next
		case isRegular(c):
			start := i
			for i < len(content) && isRegular(content[i]) {
				i++
			}
			op := string(content[start:i])
			switch op {
			case "Tj", "'", "\"", "TJ":
				for _, s := range operands {
					out.WriteString(s)
				}
				operands = operands[:0]
			case "Td", "TD", "T*", "ET":
				out.WriteByte(' ')
				operands = operands[:0]
			default:
				// Any other operator consumes its operands.
				operands = operands[:0]
			}
		default:
			i++
		}
	}

	return out.String()
}

// parseLiteralString parses a ( ... ) string starting at open. Returns the
// decoded text and the index just past the closing parenthesis.
func parseLiteralString(content []byte, open int) (string, int) {
	var out strings.Builder
	depth := 1
	i := open + 1
	for i < len(content) && depth > 0 {
		c := content[i]
		switch c {
		case '\\':
			if i+1 >= len(content) {
				i++
				continue
			}
			i++
			switch content[i] {
			case 'n':
				out.WriteByte('\n')
			case 'r':
				out.WriteByte('\r')
			case 't':
				out.WriteByte('\t')
			case 'b', 'f':
				// discard
			case '(', ')', '\\':
				out.WriteByte(content[i])
			case '\n':
				// line continuation
			default:
				if isOctal(content[i]) {
					val := 0
					digits := 0
					for i < len(content) && digits < 3 && isOctal(content[i]) {
						val = val*8 + int(content[i]-'0')
						i++
						digits++
					}
					i--
					out.WriteByte(byte(val))
				} else {
					out.WriteByte(content[i])
				}
			}
			i++
		case '(':
			depth++
			out.WriteByte(c)
			i++
		case ')':
			depth--
			if depth > 0 {
				out.WriteByte(c)
			}
			i++
		default:
			out.WriteByte(c)
			i++
		}
	}
	return out.String(), i
}

// parseHexString parses a < ... > string starting at open. Returns the
// decoded text and the index just past the closing bracket.
func parseHexString(content []byte, open int) (string, int) {
	end := open + 1
	for end < len(content) && content[end] != '>' {
		end++
	}

	var hexDigits []byte
	for _, c := range content[open+1 : end] {
		if isHexDigit(c) {
			hexDigits = append(hexDigits, c)
		}
	}
	// An odd final digit is padded with zero per the string syntax.
	if len(hexDigits)%2 == 1 {
		hexDigits = append(hexDigits, '0')
	}

	decoded, err := hex.DecodeString(string(hexDigits))
	if err != nil {
		return "", end + 1
	}
	return string(decoded), end + 1
}

// parseArrayStrings parses a TJ operand array, concatenating its string
// elements and ignoring the kerning numbers.
func parseArrayStrings(content []byte, open int) (string, int) {
	var out strings.Builder
	i := open + 1
	for i < len(content) && content[i] != ']' {
		switch {
		case content[i] == '(':
			s, next := parseLiteralString(content, i)
			out.WriteString(s)
			i = next
		case content[i] == '<':
			s, next := parseHexString(content, i)
			out.WriteString(s)
			i = next
		default:
			i++
		}
	}
	return out.String(), i + 1
}

func isRegular(c byte) bool {
	return c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c == '\'' || c == '"' || c == '*'
}

func isOctal(c byte) bool {
	return c >= '0' && c <= '7'
}

func isHexDigit(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}

// Sanitize normalizes extracted text for storage: strips NUL bytes and other
// non-printable control characters, drops invalid UTF-8, collapses runs of
// whitespace, and truncates to maxChars.
func Sanitize(text string, maxChars int) string {
	var out strings.Builder
	out.Grow(len(text))

	lastSpace := true
	for _, r := range text {
		if r == utf8.RuneError || r == 0 {
			continue
		}
		if r == '\n' || r == '\r' || r == '\t' || r == ' ' {
			if !lastSpace {
				out.WriteByte(' ')
				lastSpace = true
			}
			continue
		}
		if r < 0x20 || r == 0x7f {
			continue
		}
		out.WriteRune(r)
		lastSpace = false
	}

	result := strings.TrimSpace(out.String())
	if maxChars > 0 && len(result) > maxChars {
		cut := result[:maxChars]
		// Do not split a multi-byte rune at the cut point.
		for len(cut) > 0 && !utf8.ValidString(cut) {
			cut = cut[:len(cut)-1]
		}
		result = strings.TrimSpace(cut)
	}

	return result
}
