// Package requestid names relay requests. The id is echoed in the X-Request-Id response
// header, shown in the access log and used as the traffic dump file name, so it must stay
// safe to embed in a path.
package requestid

import (
	crand "crypto/rand"
	"math/big"
	"strings"
	"time"
)

const HeaderKey = "X-Request-Id"

// maxLen bounds client supplied ids; generated ids are 28 bytes.
const maxLen = 64

// Gen returns yyyymmddHHMMSSuuuuuu followed by 8 random digits, so dump files listed by
// name come out in arrival order.
func Gen() string {
	return genAt(time.Now())
}

// Valid reports whether id may be reused as given: 1 to 64 ASCII letters, digits, '-' or
// '_'. Anything else (path separators, dots, spaces) is replaced by a generated id.
func Valid(id string) bool {
	if id == "" || len(id) > maxLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		ch := id[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
		case ch == '-' || ch == '_':
		default:
			return false
		}
	}
	return true
}

// FromHeader keeps a well-formed client id and generates a fresh one otherwise.
func FromHeader(v string) string {
	if v = strings.TrimSpace(v); Valid(v) {
		return v
	}
	return Gen()
}

func genAt(ts time.Time) string {
	return strings.ReplaceAll(ts.Format("20060102150405.000000"), ".", "") + randomDigits(8)
}

func randomDigits(n int) string {
	if n <= 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(n)
	ten := big.NewInt(10)
	for i := 0; i < n; i++ {
		d, err := crand.Int(crand.Reader, ten)
		if err != nil {
			b.WriteByte('0')
			continue
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String()
}
