package env

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

type Var map[string]string

// Env composes the environment handed to child processes.
type Env struct {
	Var Var // session variables (K->V)
	env Var // cached base from OS environment
}

func New() *Env {
	return &Env{
		Var: make(Var),
	}
}

// FromOS caches the current process environment as the base.
func (e *Env) FromOS() {
	e.FromList(os.Environ())
}

// FromList replaces the base with the given "K=V" entries.
func (e *Env) FromList(kvs []string) {
	base := make(Var, len(kvs))
	for _, kv := range kvs {
		if k, v, ok := split(kv); ok {
			base[k] = v
		}
	}
	e.env = base
}

// Set sets a session variable K=V.
func (e *Env) Set(k, v string) {
	if e.Var == nil {
		e.Var = make(Var)
	}
	e.Var[k] = v
}

// Unset removes a session variable.
func (e *Env) Unset(k string) {
	if e.Var != nil {
		delete(e.Var, k)
	}
}

// Merge composes the final environment list applying order:
// base = OS env (or cached)
// then session e.Var overrides
// then extra overrides.
// Values are passed through verbatim; the result is sorted by key.
func (e *Env) Merge(extra Var) []string {
	if e.env == nil {
		e.FromOS()
	}
	m := make(Var, len(e.env)+len(e.Var)+len(extra))
	for k, v := range e.env {
		m[k] = v
	}
	for k, v := range e.Var {
		if k == "" {
			continue
		}
		m[k] = v
	}
	for k, v := range extra {
		if k == "" {
			continue
		}
		m[k] = v
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+m[k])
	}
	return out
}

// Flatten converts manifest env values into strings. Strings pass through,
// numbers and booleans use their literal form, and objects or arrays are
// serialized as compact JSON. A null value becomes the empty string.
func Flatten(in map[string]any) (Var, error) {
	out := make(Var, len(in))
	for k, v := range in {
		if k == "" || strings.ContainsRune(k, '=') {
			return nil, fmt.Errorf("invalid environment variable name %q", k)
		}
		s, err := flattenValue(v)
		if err != nil {
			return nil, fmt.Errorf("env %s: %w", k, err)
		}
		out[k] = s
	}
	return out, nil
}

func flattenValue(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case json.Number:
		return t.String(), nil
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

func split(kv string) (string, string, bool) {
	i := strings.IndexByte(kv, '=')
	if i <= 0 {
		return "", "", false
	}
	return kv[:i], kv[i+1:], true
}
