package config

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Object is a JSON object as stored in plugin and chat settings.
type Object = map[string]any

// Normalize converts obj into plain JSON shapes (map[string]any, []any,
// float64, string, bool, nil) so that values survive a save/load cycle
// unchanged.
func Normalize(obj Object) Object {
	if obj == nil {
		return Object{}
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return DeepCopy(obj)
	}
	out := Object{}
	if err := json.Unmarshal(data, &out); err != nil {
		return DeepCopy(obj)
	}
	return out
}

func DeepCopy(obj Object) Object {
	if obj == nil {
		return nil
	}
	out := make(Object, len(obj))
	for k, v := range obj {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return DeepCopy(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = deepCopyValue(item)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return t
	}
}

// Reconcile drops keys of stored that are absent from defaults and fills
// the ones missing from stored. Nested objects are reconciled recursively.
func Reconcile(stored, defaults Object) Object {
	out := make(Object, len(defaults))
	for key, def := range defaults {
		value, ok := stored[key]
		if !ok {
			out[key] = deepCopyValue(def)
			continue
		}

		defObj, defIsObj := def.(map[string]any)
		valObj, valIsObj := value.(map[string]any)
		if defIsObj && valIsObj {
			out[key] = Reconcile(valObj, defObj)
			continue
		}
		out[key] = deepCopyValue(value)
	}
	return out
}

// Merge applies patch on top of a copy of obj, recursing into objects.
func Merge(obj, patch Object) Object {
	out := DeepCopy(obj)
	if out == nil {
		out = Object{}
	}
	for key, value := range patch {
		patchObj, patchIsObj := value.(map[string]any)
		curObj, curIsObj := out[key].(map[string]any)
		if patchIsObj && curIsObj {
			out[key] = Merge(curObj, patchObj)
			continue
		}
		out[key] = deepCopyValue(value)
	}
	return out
}

func Bool(obj Object, key string, fallback bool) bool {
	if v, ok := obj[key].(bool); ok {
		return v
	}
	return fallback
}

func String(obj Object, key string, fallback string) string {
	if v, ok := obj[key].(string); ok {
		return v
	}
	return fallback
}

func Int(obj Object, key string, fallback int) int {
	switch v := obj[key].(type) {
	case float64:
		if v > math.MaxInt || v < math.MinInt {
			return fallback
		}
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// Stringify renders any JSON value the way reply variables expect.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
