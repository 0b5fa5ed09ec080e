package template

import (
	"fmt"
	"strconv"
	"strings"
)

// Expand substitutes positional placeholders in a template source.
// `{0}` is replaced by args[0], `{1}` by args[1], and so on. `{{` and `}}`
// are escapes for literal braces. A placeholder with no matching argument,
// or an unbalanced brace, is an error so the render fails rather than
// producing a half-filled document.
func Expand(src string, args []string) (string, error) {
	var b strings.Builder
	b.Grow(len(src))

	for i := 0; i < len(src); i++ {
		c := src[i]
		switch c {
		case '{':
			if i+1 < len(src) && src[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(src[i:], '}')
			if end < 0 {
				return "", fmt.Errorf("unterminated placeholder at offset %d", i)
			}
			field := src[i+1 : i+end]
			idx, err := strconv.Atoi(field)
			if err != nil {
				return "", fmt.Errorf("invalid placeholder %q at offset %d", field, i)
			}
			if idx < 0 || idx >= len(args) {
				return "", fmt.Errorf("placeholder {%d} out of range (%d args)", idx, len(args))
			}
			b.WriteString(args[idx])
			i += end
		case '}':
			if i+1 < len(src) && src[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", fmt.Errorf("unexpected '}' at offset %d", i)
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}
