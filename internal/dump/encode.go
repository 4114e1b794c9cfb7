package dump

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// literal renders a driver value as a deterministic single-line SQL
// literal. Text containing newlines is emitted as a char() concatenation
// so every statement stays on one line and round-trips exactly.
func literal(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "NULL", nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return "", fmt.Errorf("non-finite float %v", x)
		}
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case bool:
		if x {
			return "1", nil
		}
		return "0", nil
	case string:
		return textLiteral(x), nil
	case []byte:
		return "X'" + hex.EncodeToString(x) + "'", nil
	case time.Time:
		return textLiteral(x.UTC().Format(time.RFC3339Nano)), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}

func textLiteral(s string) string {
	if !strings.ContainsAny(s, "\n\r") {
		return quoteText(s)
	}

	// Split on line breaks and join the quoted pieces with char(10) /
	// char(13) expressions. Iterate bytes: TEXT values are not required
	// to be valid UTF-8 and must round-trip exactly.
	var parts []string
	var cur strings.Builder
	flush := func() {
		parts = append(parts, quoteText(cur.String()))
		cur.Reset()
	}
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\n':
			flush()
			parts = append(parts, "char(10)")
		case '\r':
			flush()
			parts = append(parts, "char(13)")
		default:
			cur.WriteByte(s[i])
		}
	}
	flush()

	// Drop empty '' segments produced around consecutive breaks, but
	// never drop everything.
	compact := parts[:0]
	for _, p := range parts {
		if p == "''" && len(parts) > 1 {
			continue
		}
		compact = append(compact, p)
	}
	return strings.Join(compact, "||")
}

func quoteText(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
