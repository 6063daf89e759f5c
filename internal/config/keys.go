package config

import (
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
)

// ParseConfigPath splits a dotted key such as "channels.line.channelSecret"
// and checks each segment against the Config schema, so a typo cannot write
// a key the relay never reads. Segments match yaml names case-insensitively
// and are returned in their canonical spelling. List items are addressed by
// index, as in "channels.irc.channels.0".
func ParseConfigPath(raw string) ([]string, error) {
	if raw == "" {
		return nil, &ConfigError{Message: "empty config path"}
	}
	parts := strings.Split(raw, ".")
	t := reflect.TypeFor[Config]()
	for i, seg := range parts {
		if seg == "" {
			return nil, &ConfigError{Message: fmt.Sprintf("config path %q contains an empty segment", raw)}
		}
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		parent := strings.Join(parts[:i], ".")

		switch t.Kind() {
		case reflect.Struct:
			name, ft, ok := schemaField(t, seg)
			if !ok {
				return nil, &ConfigError{Message: fmt.Sprintf("unknown config key %q", strings.Join(append(parts[:i:i], seg), "."))}
			}
			parts[i], t = name, ft
		case reflect.Slice:
			if n, err := strconv.Atoi(seg); err != nil || n < 0 {
				return nil, &ConfigError{Message: fmt.Sprintf("%s is a list; expected an index, got %q", parent, seg)}
			}
			t = t.Elem()
		default:
			return nil, &ConfigError{Message: fmt.Sprintf("%s is a %s and has no key %q", parent, t.Kind(), seg)}
		}
	}
	return parts, nil
}

func schemaField(t reflect.Type, seg string) (string, reflect.Type, bool) {
	for i := range t.NumField() {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			continue
		}
		if strings.EqualFold(name, seg) {
			return name, f.Type, true
		}
	}
	return "", nil, false
}

// GetValueAtPath walks a raw config tree of maps and lists.
func GetValueAtPath(root map[string]any, path []string) (any, bool) {
	var cur any = root
	for _, key := range path {
		switch n := cur.(type) {
		case map[string]any:
			v, ok := n[key]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(key)
			if err != nil || i < 0 || i >= len(n) {
				return nil, false
			}
			cur = n[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// SetValueAtPath sets a value in a raw config tree, creating intermediate
// maps and lists as needed. An index equal to the list length appends.
func SetValueAtPath(root map[string]any, path []string, value any) error {
	_, err := setIn(root, path, value)
	return err
}

func setIn(node any, path []string, value any) (any, error) {
	if len(path) == 0 {
		return value, nil
	}
	key, rest := path[0], path[1:]

	if i, err := strconv.Atoi(key); err == nil {
		list, _ := node.([]any)
		if i < 0 || i > len(list) {
			return nil, &ConfigError{Message: fmt.Sprintf("index %d out of range for a list of %d", i, len(list))}
		}
		var cur any
		if i < len(list) {
			cur = list[i]
		}
		v, err := setIn(cur, rest, value)
		if err != nil {
			return nil, err
		}
		if i == len(list) {
			return append(list, v), nil
		}
		list[i] = v
		return list, nil
	}

	m, _ := node.(map[string]any)
	if m == nil {
		m = map[string]any{}
	}
	v, err := setIn(m[key], rest, value)
	if err != nil {
		return nil, err
	}
	m[key] = v
	return m, nil
}

// UnsetValueAtPath removes a value, closing the gap when it is a list
// item. It reports whether anything was removed.
func UnsetValueAtPath(root map[string]any, path []string) bool {
	_, ok := unsetIn(root, path)
	return ok
}

func unsetIn(node any, path []string) (any, bool) {
	key := path[0]
	switch n := node.(type) {
	case map[string]any:
		v, ok := n[key]
		if !ok {
			return node, false
		}
		if len(path) == 1 {
			delete(n, key)
			return n, true
		}
		nv, ok := unsetIn(v, path[1:])
		if ok {
			n[key] = nv
		}
		return n, ok
	case []any:
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= len(n) {
			return node, false
		}
		if len(path) == 1 {
			return slices.Delete(n, i, i+1), true
		}
		nv, ok := unsetIn(n[i], path[1:])
		if ok {
			n[i] = nv
		}
		return n, ok
	}
	return node, false
}
