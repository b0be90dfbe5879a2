package utils

import "unicode/utf8"

// Truncate 将 s 截断到至多 maxLen 字节，不拆分多字节字符，截断时追加 "..."。
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
