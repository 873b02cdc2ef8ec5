package database

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/semmidev/dumpgram/internal/domain"
)

// ToValue converts a scanned column into a Value. The MySQL text protocol
// hands back []byte for every non-NULL column; other types only show up with
// alternative drivers and are stringified.
func ToValue(src any) domain.Value {
	switch v := src.(type) {
	case nil:
		return domain.NullValue()
	case []byte:
		return domain.TextValue(v)
	case string:
		return domain.TextValue([]byte(v))
	case int64:
		return domain.TextValue(strconv.AppendInt(nil, v, 10))
	case float64:
		return domain.TextValue(strconv.AppendFloat(nil, v, 'g', -1, 64))
	case bool:
		if v {
			return domain.TextValue([]byte("1"))
		}
		return domain.TextValue([]byte("0"))
	case time.Time:
		return domain.TextValue([]byte(v.Format("2006-01-02 15:04:05.999999")))
	default:
		return domain.TextValue([]byte(fmt.Sprint(v)))
	}
}

// QuoteValue renders NULL unquoted and everything else as a string literal,
// whatever the column type.
func QuoteValue(v domain.Value) string {
	if v.Null {
		return "NULL"
	}
	return QuoteString(v.Text)
}

// QuoteString escapes b the way mysql_real_escape_string does and wraps it
// in single quotes.
func QuoteString(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b) + 2)
	sb.WriteByte('\'')
	for _, c := range b {
		switch c {
		case 0:
			sb.WriteString(`\0`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\\':
			sb.WriteString(`\\`)
		case '\'':
			sb.WriteString(`\'`)
		case '"':
			sb.WriteString(`\"`)
		case 0x1a:
			sb.WriteString(`\Z`)
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('\'')
	return sb.String()
}

func QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
