package exchange

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// DecodePayload режет тело polling-ответа engine.io v3 вида
// "<len>:<packet><len>:<packet>", длина в символах.
// На первой битой длине останавливаемся и отдаём что успели.
func DecodePayload(body string) []string {
	var out []string
	rest := body
	for rest != "" {
		i := strings.IndexByte(rest, ':')
		if i <= 0 {
			break
		}
		n, err := strconv.Atoi(rest[:i])
		if err != nil || n < 0 {
			break
		}
		rest = rest[i+1:]

		end, count := 0, 0
		for count < n && end < len(rest) {
			_, size := utf8.DecodeRuneInString(rest[end:])
			end += size
			count++
		}
		if count < n {
			break
		}
		out = append(out, rest[:end])
		rest = rest[end:]
	}
	return out
}

func EncodePayload(packets ...string) string {
	var b strings.Builder
	for _, p := range packets {
		b.WriteString(strconv.Itoa(utf8.RuneCountInString(p)))
		b.WriteByte(':')
		b.WriteString(p)
	}
	return b.String()
}
