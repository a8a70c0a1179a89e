package types

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Decode parses one client payload. It never fails: malformed input and
// unknown tags come back as Ignored.
func Decode(payload []byte) Inbound {
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		return Ignored{}
	}
	tag, _ := m["Type"].(string)

	switch tag {
	case TypeLogin:
		user, uok := m["User"].(string)
		pass, pok := m["Password"].(string)
		return Login{User: user, Password: pass, Valid: uok && pok}
	case TypeLogout:
		return Logout{}
	case TypeHello:
		return Hello{}
	case TypeMonitorSelect:
		idx, ok := toInt(m["Index"])
		if !ok {
			return Ignored{Type: tag}
		}
		return MonitorSelect{Index: idx}
	case TypeControlRequest:
		return ControlRequest{Force: truthy(m["Force"])}
	case TypeControlRelease:
		return ControlRelease{}
	case TypeClick:
		x, xok := toFloat(m["X"])
		y, yok := toFloat(m["Y"])
		if !xok || !yok {
			return Ignored{Type: tag}
		}
		return Click{
			X:      x,
			Y:      y,
			Button: orDefault(toString(m["Button"]), "left"),
			Action: orDefault(toString(m["Action"]), "click"),
		}
	case TypeKey:
		key := toString(m["Key"])
		if key == "" {
			key = toString(m["Code"])
		}
		return Key{Action: toString(m["Action"]), Key: key}
	case TypeKeyCombo:
		list, ok := m["Keys"].([]any)
		if !ok || len(list) == 0 {
			return Ignored{Type: tag}
		}
		keys := make([]string, 0, len(list))
		for _, k := range list {
			keys = append(keys, toString(k))
		}
		return KeyCombo{Keys: keys}
	default:
		return Ignored{Type: tag}
	}
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = p
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toInt(v any) (int, bool) {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, false
		}
		return clampInt(math.Trunc(x)), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func clampInt(f float64) int {
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	if f < math.MinInt32 {
		return math.MinInt32
	}
	return int(f)
}

// truthy mirrors how loosely typed clients send flags: any non-zero,
// non-empty value counts as set.
func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	default:
		return false
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
