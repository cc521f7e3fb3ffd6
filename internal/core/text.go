package core

import "unicode/utf8"

// CutUTF8 返回 s 中不超过 n 字节的前缀，切点落在字符边界上。
func CutUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 0 {
		return ""
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
