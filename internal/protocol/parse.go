package protocol

import "math"

// parseDecimal reads a leading decimal integer the way C atol does: skip
// leading white space, accept one sign, consume digits and stop at the first
// non-digit. No digits yields 0; overflow saturates.
func parseDecimal(b []byte) int64 {
	i := 0
	for i < len(b) && isSpace(b[i]) {
		i++
	}
	neg := false
	if i < len(b) && (b[i] == '+' || b[i] == '-') {
		neg = b[i] == '-'
		i++
	}
	var n uint64
	limit := uint64(math.MaxInt64)
	if neg {
		limit++
	}
	overflow := false
	for ; i < len(b) && b[i] >= '0' && b[i] <= '9'; i++ {
		if overflow {
			continue
		}
		d := uint64(b[i] - '0')
		if n > (limit-d)/10 {
			overflow = true
			n = limit
			continue
		}
		n = n*10 + d
	}
	if neg {
		if n == limit {
			return math.MinInt64
		}
		return -int64(n)
	}
	return int64(n)
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}
