package signing

import (
	"net/url"
	"sort"
	"strconv"
)

// Fields is an insertion-ordered mapping of field names to string values.
// Setting an existing key replaces its value in place.
//
// Like a map, a non-empty Fields refers to shared storage: copies made by
// assignment observe each other's changes. Use Clone for an independent copy.
type Fields struct {
	d *fieldData
}

type fieldData struct {
	keys   []string
	values map[string]string
}

// NewFields builds Fields from alternating key/value arguments. A trailing key
// without a value is stored with an empty value.
func NewFields(pairs ...string) Fields {
	var f Fields
	for i := 0; i < len(pairs); i += 2 {
		value := ""
		if i+1 < len(pairs) {
			value = pairs[i+1]
		}
		f.Set(pairs[i], value)
	}
	return f
}

// FromMap copies m into Fields ordered by key.
func FromMap(m map[string]string) Fields {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var f Fields
	for _, k := range keys {
		f.Set(k, m[k])
	}
	return f
}

// FromValues copies the first value of every key in v, ordered by key.
func FromValues(v url.Values) Fields {
	m := make(map[string]string, len(v))
	for k, vals := range v {
		if len(vals) == 0 {
			m[k] = ""
			continue
		}
		m[k] = vals[0]
	}
	return FromMap(m)
}

// Set stores value under key.
func (f *Fields) Set(key, value string) {
	if f.d == nil {
		f.d = &fieldData{values: make(map[string]string)}
	}
	if _, ok := f.d.values[key]; !ok {
		f.d.keys = append(f.d.keys, key)
	}
	f.d.values[key] = value
}

// Get returns the value stored under key.
func (f Fields) Get(key string) (string, bool) {
	if f.d == nil {
		return "", false
	}
	v, ok := f.d.values[key]
	return v, ok
}

// Value returns the value stored under key or an empty string.
func (f Fields) Value(key string) string {
	v, _ := f.Get(key)
	return v
}

// Has reports whether key is present.
func (f Fields) Has(key string) bool {
	_, ok := f.Get(key)
	return ok
}

// Delete removes key if present.
func (f *Fields) Delete(key string) {
	if !f.Has(key) {
		return
	}
	delete(f.d.values, key)
	for i, k := range f.d.keys {
		if k == key {
			f.d.keys = append(f.d.keys[:i:i], f.d.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (f Fields) Keys() []string {
	if f.d == nil {
		return []string{}
	}
	out := make([]string, len(f.d.keys))
	copy(out, f.d.keys)
	return out
}

// Len returns the number of entries.
func (f Fields) Len() int {
	if f.d == nil {
		return 0
	}
	return len(f.d.keys)
}

// Clone returns an independent copy.
func (f Fields) Clone() Fields {
	var out Fields
	for _, k := range f.Keys() {
		out.Set(k, f.d.values[k])
	}
	return out
}

// Merge returns a copy of f with every entry of over applied on top. Keys
// already in f keep their position; new keys are appended in over's order.
func (f Fields) Merge(over Fields) Fields {
	out := f.Clone()
	for _, k := range over.Keys() {
		out.Set(k, over.d.values[k])
	}
	return out
}

// WithoutReserved returns a copy without the signing metadata keys.
func (f Fields) WithoutReserved() Fields {
	out := f.Clone()
	out.Delete(KeySignType)
	out.Delete(KeySignature)
	return out
}

// Map returns the entries as a plain map.
func (f Fields) Map() map[string]string {
	out := make(map[string]string, f.Len())
	for _, k := range f.Keys() {
		out[k] = f.d.values[k]
	}
	return out
}

// FormatInt renders an integer amount as plain decimal digits.
func FormatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}

// FormatBool renders a boolean the way the remote service coerces it: "1" or "".
func FormatBool(v bool) string {
	if v {
		return "1"
	}
	return ""
}
