package openai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Haoxincode/coursechat/internal/domain"
	"github.com/Haoxincode/coursechat/internal/domain/answer"
)

type scanState int

const (
	expectValue scanState = iota
	expectKey
	expectColon
	afterValue
)

// completePartial turns an unfinished JSON object into the longest parseable
// document it is a prefix of. An open value string is closed in place; an
// unfinished key, number or literal is cut back to the last complete value.
// Text before the first '{' is ignored. ok is false while nothing usable has
// arrived yet.
func completePartial(raw string) (doc string, ok bool) {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return "", false
	}
	s := raw[start:]

	var (
		stack     []byte
		state     = expectValue
		safeCut   = -1
		safeStack string
		openValue = -1 // index of the opening quote of an unterminated value string
	)
	mark := func(i int) {
		safeCut = i
		safeStack = string(stack)
	}

	i := 0
scan:
	for i < len(s) {
		c := s[i]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			i++
			continue
		}

		switch state {
		case expectValue:
			switch {
			case c == '{':
				stack = append(stack, '{')
				state = expectKey
				i++
				mark(i)
			case c == '[':
				stack = append(stack, '[')
				i++
				mark(i)
			case c == ']':
				if !pop(&stack, '[') {
					break scan
				}
				i++
				if len(stack) == 0 {
					return s[:i], true
				}
				state = afterValue
				mark(i)
			case c == '"':
				end, closed := scanString(s, i)
				if !closed {
					openValue = i
					break scan
				}
				i = end
				state = afterValue
				mark(i)
			default:
				end := scanToken(s, i)
				if end == i || end == len(s) || !validToken(s[i:end]) {
					break scan
				}
				i = end
				state = afterValue
				mark(i)
			}

		case expectKey:
			switch c {
			case '"':
				end, closed := scanString(s, i)
				if !closed {
					break scan
				}
				i = end
				state = expectColon
			case '}':
				if !pop(&stack, '{') {
					break scan
				}
				i++
				if len(stack) == 0 {
					return s[:i], true
				}
				state = afterValue
				mark(i)
			default:
				break scan
			}

		case expectColon:
			if c != ':' {
				break scan
			}
			i++
			state = expectValue

		case afterValue:
			switch c {
			case ',':
				if len(stack) == 0 {
					break scan
				}
				i++
				if stack[len(stack)-1] == '{' {
					state = expectKey
				} else {
					state = expectValue
				}
			case '}', ']':
				want := byte('{')
				if c == ']' {
					want = '['
				}
				if !pop(&stack, want) {
					break scan
				}
				i++
				if len(stack) == 0 {
					return s[:i], true
				}
				mark(i)
			default:
				break scan
			}
		}
	}

	if openValue >= 0 {
		body := s[:trimRune(s, openValue+1, trimEscape(s, openValue+1))]
		return body + `"` + closers(string(stack)), true
	}
	if safeCut < 0 {
		return "", false
	}
	return s[:safeCut] + closers(safeStack), true
}

// scanString returns the index just past the closing quote of the string
// starting at s[i].
func scanString(s string, i int) (end int, closed bool) {
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '\\':
			j++
		case '"':
			return j + 1, true
		}
	}
	return len(s), false
}

// trimEscape returns the end of s that drops a trailing incomplete escape
// sequence inside a string body beginning at from.
func trimEscape(s string, from int) int {
	j := from
	for j < len(s) {
		if s[j] != '\\' {
			j++
			continue
		}
		if j+1 >= len(s) {
			return j
		}
		if s[j+1] == 'u' {
			if j+6 > len(s) {
				return j
			}
			j += 6
			continue
		}
		j += 2
	}
	return len(s)
}

// trimRune backs end off a multi-byte rune split by a chunk boundary.
func trimRune(s string, from, end int) int {
	for k := 1; k <= utf8.UTFMax-1 && end-k >= from; k++ {
		if utf8.RuneStart(s[end-k]) {
			if !utf8.FullRuneInString(s[end-k : end]) {
				return end - k
			}
			break
		}
	}
	return end
}

func scanToken(s string, i int) int {
	j := i
	for j < len(s) {
		c := s[j]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-' || c == '+' || c == '.' || c == 'E' {
			j++
			continue
		}
		break
	}
	return j
}

func validToken(tok string) bool {
	switch tok {
	case "true", "false", "null":
		return true
	}
	var n json.Number
	return json.Unmarshal([]byte(tok), &n) == nil
}

func pop(stack *[]byte, want byte) bool {
	st := *stack
	if len(st) == 0 || st[len(st)-1] != want {
		return false
	}
	*stack = st[:len(st)-1]
	return true
}

func closers(stack string) string {
	var b strings.Builder
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}

// decodePartial decodes a completed partial document. Fields with the wrong
// type are left empty instead of failing the snapshot.
func decodePartial(doc string) (answer.Answer, bool) {
	var a answer.Answer
	err := json.Unmarshal([]byte(doc), &a)
	if err == nil {
		return a, true
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return a, true
	}
	return answer.Answer{}, false
}

// parseFinal strictly decodes the complete model output.
func parseFinal(raw string) (answer.Answer, error) {
	body := stripFences(raw)
	if body == "" {
		return answer.Answer{}, fmt.Errorf("empty completion: %w", domain.ErrMalformedAnswer)
	}

	var a answer.Answer
	if err := json.Unmarshal([]byte(body), &a); err != nil {
		return answer.Answer{}, fmt.Errorf("decode answer: %v: %w", err, domain.ErrMalformedAnswer)
	}
	if a.Answer == nil {
		return answer.Answer{}, fmt.Errorf("answer field missing: %w", domain.ErrMalformedAnswer)
	}
	return a, nil
}

// stripFences removes a surrounding markdown code fence, if any.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
