// Package config decodes the settings document (share roots and their
// profile memberships, upload slot counts, the hub auto-connect list,
// our own nick/identity parameters, and skiplist patterns) into a
// validated Config struct.
//
// jsonconfig.go is a narrow reimplementation of Perkeep's
// pkg/jsonconfig: a map[string]interface{} wrapper with
// Required*/Optional* accessors that record which keys were consulted,
// so Validate can flag both missing required keys and leftover unknown
// ones in a single pass. Grounded directly on that package's shape, not
// reaching for a schema-validation library since Perkeep itself
// doesn't use one for this job.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Obj is one JSON configuration object.
type Obj map[string]interface{}

// ReadFile reads and parses a JSON settings document from path.
func ReadFile(path string) (Obj, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return Obj(raw), nil
}

func (o Obj) noteKnownKey(key string) {
	known, ok := o["_knownkeys"].(map[string]bool)
	if !ok {
		known = make(map[string]bool)
		o["_knownkeys"] = known
	}
	known[key] = true
}

func (o Obj) appendError(err error) {
	if existing, ok := o["_errors"].([]error); ok {
		o["_errors"] = append(existing, err)
		return
	}
	o["_errors"] = []error{err}
}

func (o Obj) RequiredString(key string) string { return o.str(key, nil) }
func (o Obj) OptionalString(key, def string) string { return o.str(key, &def) }

func (o Obj) str(key string, def *string) string {
	o.noteKnownKey(key)
	v, ok := o[key]
	if !ok {
		if def != nil {
			return *def
		}
		o.appendError(fmt.Errorf("missing required config key %q (string)", key))
		return ""
	}
	s, ok := v.(string)
	if !ok {
		o.appendError(fmt.Errorf("config key %q must be a string, got %T", key, v))
		return ""
	}
	return s
}

func (o Obj) RequiredInt(key string) int  { return o.int(key, nil) }
func (o Obj) OptionalInt(key string, def int) int { return o.int(key, &def) }

func (o Obj) int(key string, def *int) int {
	o.noteKnownKey(key)
	v, ok := o[key]
	if !ok {
		if def != nil {
			return *def
		}
		o.appendError(fmt.Errorf("missing required config key %q (integer)", key))
		return 0
	}
	f, ok := v.(float64)
	if !ok {
		o.appendError(fmt.Errorf("config key %q must be a number, got %T", key, v))
		return 0
	}
	return int(f)
}

func (o Obj) OptionalBool(key string, def bool) bool {
	o.noteKnownKey(key)
	v, ok := o[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		o.appendError(fmt.Errorf("config key %q must be a boolean, got %T", key, v))
		return def
	}
	return b
}

func (o Obj) OptionalList(key string) []string {
	o.noteKnownKey(key)
	v, ok := o[key]
	if !ok {
		return nil
	}
	raw, ok := v.([]interface{})
	if !ok {
		o.appendError(fmt.Errorf("config key %q must be a list, got %T", key, v))
		return nil
	}
	out := make([]string, len(raw))
	for i, item := range raw {
		s, ok := item.(string)
		if !ok {
			o.appendError(fmt.Errorf("config key %q index %d must be a string, got %T", key, i, item))
			return nil
		}
		out[i] = s
	}
	return out
}

func (o Obj) RequiredObjectList(key string) []Obj {
	o.noteKnownKey(key)
	v, ok := o[key]
	if !ok {
		o.appendError(fmt.Errorf("missing required config key %q (list of objects)", key))
		return nil
	}
	raw, ok := v.([]interface{})
	if !ok {
		o.appendError(fmt.Errorf("config key %q must be a list, got %T", key, v))
		return nil
	}
	out := make([]Obj, len(raw))
	for i, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			o.appendError(fmt.Errorf("config key %q index %d must be an object, got %T", key, i, item))
			return nil
		}
		out[i] = Obj(m)
	}
	return out
}

// Validate reports an unknown-key error for anything never consulted via
// a Required*/Optional* accessor (leading-underscore keys are treated as
// comments), then returns every accumulated error, combined into one if
// there's more than one.
func (o Obj) Validate() error {
	known, _ := o["_knownkeys"].(map[string]bool)
	for k := range o {
		if strings.HasPrefix(k, "_") || known[k] {
			continue
		}
		o.appendError(fmt.Errorf("unknown config key %q", k))
	}

	errs, ok := o["_errors"].([]error)
	if !ok || len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("multiple config errors: %s", strings.Join(msgs, "; "))
}
