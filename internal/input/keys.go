package input

import (
	"strings"
	"unicode/utf8"
)

// NormalizeKey maps a browser key name to the canonical token used for
// injection. Single characters pass through lowercased. ok is false for
// names outside the table.
func NormalizeKey(raw string) (key string, ok bool) {
	if raw == "" {
		return "", false
	}
	k := strings.ToLower(raw)
	switch k {
	case " ", "space", "spacebar":
		return "space", true
	case "enter":
		return "enter", true
	case "backspace":
		return "backspace", true
	case "tab":
		return "tab", true
	case "escape", "esc":
		return "esc", true
	case "shift", "shiftleft", "shiftright":
		return "shift", true
	case "control", "ctrl", "controlleft", "controlright":
		return "ctrl", true
	case "alt", "altleft", "altright", "option":
		return "alt", true
	case "meta", "metaleft", "metaright", "win", "super", "os", "command", "cmd":
		return "win", true
	case "arrowup":
		return "up", true
	case "arrowdown":
		return "down", true
	case "arrowleft":
		return "left", true
	case "arrowright":
		return "right", true
	case "delete", "del", "numpaddelete", "numpaddecimal":
		return "delete", true
	}
	if utf8.RuneCountInString(k) == 1 {
		return k, true
	}
	if isFunctionKey(k) {
		return k, true
	}
	return "", false
}

func isFunctionKey(k string) bool {
	if len(k) < 2 || k[0] != 'f' {
		return false
	}
	for _, c := range k[1:] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// NormalizeKeys normalizes each name and drops the unrecognized ones.
func NormalizeKeys(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if k, ok := NormalizeKey(r); ok {
			out = append(out, k)
		}
	}
	return out
}

// ButtonName maps a client button name to left, right or middle.
func ButtonName(b string) string {
	switch strings.ToLower(b) {
	case "right", "r":
		return "right"
	case "center", "middle", "m":
		return "middle"
	default:
		return "left"
	}
}
