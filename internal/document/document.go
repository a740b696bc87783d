// internal/document/document.go
package document

// Doc is a schemaless document: a decoded JSON object. Field access goes
// through the typed getters below, which report absence or a wrong type via
// their ok result so callers can treat malformed input as missing.
type Doc map[string]interface{}

// Has reports whether the key is present at all.
func (d Doc) Has(key string) bool {
	_, ok := d[key]
	return ok
}

// String returns the field as a string.
func (d Doc) String(key string) (string, bool) {
	v, ok := d[key].(string)
	return v, ok
}

// Int returns the field as an int. JSON numbers decode as float64, so both
// float64 and int representations are accepted.
func (d Doc) Int(key string) (int, bool) {
	switch v := d[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// Map returns the field as a nested object.
func (d Doc) Map(key string) (Doc, bool) {
	switch v := d[key].(type) {
	case Doc:
		return v, true
	case map[string]interface{}:
		return Doc(v), true
	}
	return nil, false
}

// StringSlice returns the field as a list of strings. A list containing any
// non-string element is treated as absent.
func (d Doc) StringSlice(key string) ([]string, bool) {
	raw, ok := d[key].([]interface{})
	if !ok {
		// Tests and in-process callers may hand us a typed slice directly.
		if typed, tok := d[key].([]string); tok {
			return typed, true
		}
		return nil, false
	}
	out := make([]string, 0, len(raw))
	for _, el := range raw {
		s, sok := el.(string)
		if !sok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// StringSet returns the field as a set of strings, accepting either a list or
// an object whose keys are the members.
func (d Doc) StringSet(key string) (map[string]bool, bool) {
	if list, ok := d.StringSlice(key); ok {
		set := make(map[string]bool, len(list))
		for _, s := range list {
			set[s] = true
		}
		return set, true
	}
	if m, ok := d.Map(key); ok {
		set := make(map[string]bool, len(m))
		for k := range m {
			set[k] = true
		}
		return set, true
	}
	return nil, false
}

// Clone returns a deep copy of the document. Nested objects and lists are
// copied; scalar values are shared.
func (d Doc) Clone() Doc {
	if d == nil {
		return nil
	}
	out := make(Doc, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case Doc:
		return t.Clone()
	case map[string]interface{}:
		return Doc(t).Clone()
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, el := range t {
			out[i] = cloneValue(el)
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	}
	return v
}

// ChangedKeys returns the keys whose values differ between the existing and
// proposed documents, including keys added or removed by the proposal.
func ChangedKeys(existing, proposed Doc) []string {
	var changed []string
	seen := make(map[string]bool)
	for k, v := range proposed {
		seen[k] = true
		old, ok := existing[k]
		if !ok || !equalValue(old, v) {
			changed = append(changed, k)
		}
	}
	for k := range existing {
		if !seen[k] {
			changed = append(changed, k)
		}
	}
	return changed
}

// Equal compares two decoded JSON values structurally. Numbers compare
// through float64 so 2 and 2.0 are equal regardless of decode path.
func Equal(a, b interface{}) bool {
	return equalValue(a, b)
}

func equalValue(a, b interface{}) bool {
	if an, aok := asFloat(a); aok {
		bn, bok := asFloat(b)
		return bok && an == bn
	}
	switch at := a.(type) {
	case string:
		bt, ok := b.(string)
		return ok && at == bt
	case bool:
		bt, ok := b.(bool)
		return ok && at == bt
	case nil:
		return b == nil
	case Doc:
		return equalMap(at, b)
	case map[string]interface{}:
		return equalMap(at, b)
	case []interface{}:
		return equalList(at, b)
	case []string:
		generic := make([]interface{}, len(at))
		for i, s := range at {
			generic[i] = s
		}
		return equalList(generic, b)
	}
	return false
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func equalMap(a map[string]interface{}, b interface{}) bool {
	var bm map[string]interface{}
	switch bt := b.(type) {
	case Doc:
		bm = bt
	case map[string]interface{}:
		bm = bt
	default:
		return false
	}
	if len(a) != len(bm) {
		return false
	}
	for k, av := range a {
		bv, ok := bm[k]
		if !ok || !equalValue(av, bv) {
			return false
		}
	}
	return true
}

func equalList(a []interface{}, b interface{}) bool {
	var bl []interface{}
	switch bt := b.(type) {
	case []interface{}:
		bl = bt
	case []string:
		bl = make([]interface{}, len(bt))
		for i, s := range bt {
			bl[i] = s
		}
	default:
		return false
	}
	if len(a) != len(bl) {
		return false
	}
	for i := range a {
		if !equalValue(a[i], bl[i]) {
			return false
		}
	}
	return true
}
