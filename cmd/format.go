package cmd

import (
	"strconv"
	"strings"
)

// FormatAmount formats an amount with thousand separators
func FormatAmount(amount uint64) string {
	str := strconv.FormatUint(amount, 10)

	n := len(str)
	if n <= 3 {
		return str
	}

	var result strings.Builder
	for i, digit := range str {
		if i > 0 && (n-i)%3 == 0 {
			result.WriteRune(',')
		}
		result.WriteRune(digit)
	}
	return result.String()
}
