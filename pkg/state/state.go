// Package state provides the key/value state served by the listenkit daemon.
package state

import (
	"fmt"
	"maps"
	"sort"

	"github.com/listenkit/listenkit/pkg/action"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"
)

// Action creators understood by Reduce.
var (
	Set    = action.NewCreator("kv/set")    // Payload: Entry, {"key", "value"}, or a map of values.
	Delete = action.NewCreator("kv/delete") // Payload: key, or a list of keys.
	Incr   = action.NewCreator("kv/incr")   // Payload: key, or Entry with the increment.
	Reset  = action.NewCreator("kv/reset")
)

// Entry is a single key and value.
type Entry struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// KV is an immutable map of state values; Reduce returns a new KV for every change and the
// same KV when nothing changed.
type KV map[string]any

// Get returns the value stored under key.
func (kv KV) Get(key string) (any, bool) {
	v, ok := kv[key]
	return v, ok
}

// Int returns the value stored under key as an int, or zero.
func (kv KV) Int(key string) int {
	return cast.ToInt(kv[key])
}

// Keys returns the sorted keys.
func (kv KV) Keys() []string {
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Reduce is the store reducer for KV state.  Malformed payloads are logged and leave the
// state unchanged.
func Reduce(s any, a action.Action) any {
	kv, ok := s.(KV)
	if !ok {
		kv = KV{}
	}

	var next KV
	var err error
	switch a.Type {
	case Set.Type():
		next, err = kv.set(a.Payload)
	case Delete.Type():
		next, err = kv.delete(a.Payload)
	case Incr.Type():
		next, err = kv.incr(a.Payload)
	case Reset.Type():
		if len(kv) == 0 {
			return kv
		}
		return KV{}
	default:
		return kv
	}
	if err != nil {
		log.Warn().Str("module", "state").Str("action", a.Type).Err(err).
			Msg("Ignoring malformed action")
		return kv
	}

	return next
}

func (kv KV) set(payload any) (KV, error) {
	var values map[string]any
	switch p := payload.(type) {
	case Entry:
		values = map[string]any{p.Key: p.Value}
	case *Entry:
		if p == nil {
			return nil, fmt.Errorf("nil entry")
		}
		values = map[string]any{p.Key: p.Value}
	default:
		m, err := cast.ToStringMapE(payload)
		if err != nil {
			return nil, fmt.Errorf("set payload: %w", err)
		}
		values = m
		if key, ok := m["key"].(string); ok && len(m) <= 2 {
			values = map[string]any{key: m["value"]}
		}
	}

	next := maps.Clone(kv)
	if next == nil {
		next = KV{}
	}
	maps.Copy(next, values)
	return next, nil
}

func (kv KV) delete(payload any) (KV, error) {
	keys, err := cast.ToStringSliceE(payload)
	if err != nil {
		return nil, fmt.Errorf("delete payload: %w", err)
	}

	next := maps.Clone(kv)
	changed := false
	for _, k := range keys {
		if _, ok := next[k]; ok {
			delete(next, k)
			changed = true
		}
	}
	if !changed {
		return kv, nil
	}
	return next, nil
}

func (kv KV) incr(payload any) (KV, error) {
	e := Entry{Value: 1}
	switch p := payload.(type) {
	case string:
		e.Key = p
	case Entry:
		e = p
	default:
		m, err := cast.ToStringMapE(payload)
		if err != nil {
			return nil, fmt.Errorf("incr payload: %w", err)
		}
		e.Key = cast.ToString(m["key"])
		if by, ok := m["by"]; ok {
			e.Value = by
		}
	}
	if e.Key == "" {
		return nil, fmt.Errorf("incr payload: missing key")
	}

	by, err := cast.ToInt64E(e.Value)
	if err != nil {
		return nil, fmt.Errorf("incr amount: %w", err)
	}
	current, err := cast.ToInt64E(kv[e.Key])
	if err != nil {
		return nil, fmt.Errorf("incr %q: %w", e.Key, err)
	}

	next := maps.Clone(kv)
	if next == nil {
		next = KV{}
	}
	next[e.Key] = current + by
	return next, nil
}
