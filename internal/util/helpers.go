package util

import (
	"log"
	"strings"
	"sync/atomic"
	"unicode/utf8"
)

var debug atomic.Bool

// SetDebug включает вывод отладочных сообщений
func SetDebug(on bool) { debug.Store(on) }

// Debugf пишет в лог только при включённом LOG_DEBUG
func Debugf(format string, args ...any) {
	if debug.Load() {
		log.Printf("[debug] "+format, args...)
	}
}

// TruncateRunes - безопасное усечение по рунам
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	rs := []rune(s)
	return string(rs[:n])
}

// SplitList разбивает список через запятую, сохраняя порядок и убирая дубликаты
func SplitList(raw string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// Redact вырезает секреты (ключи, адреса) из текста ошибки
func Redact(msg string, secrets ...string) string {
	for _, s := range secrets {
		s = strings.TrimSpace(s)
		if len(s) < 4 {
			continue
		}
		msg = strings.ReplaceAll(msg, s, "[redacted]")
	}
	return msg
}
