package querycache

import (
	"net/url"
	"sort"
	"strings"
)

// Key identifies one cached query: path segments plus filter params.
type Key struct {
	Segments []string
	Params   map[string]string
}

// ParseKey builds a key from a request path such as
// "/api/plans?type=HOTSPOT". Repeated params keep their first value.
func ParseKey(path string) Key {
	k := Key{}
	raw, query, _ := strings.Cut(path, "?")
	for _, s := range strings.Split(raw, "/") {
		if s != "" {
			k.Segments = append(k.Segments, s)
		}
	}
	if query == "" {
		return k
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		return k
	}
	for name, v := range values {
		if len(v) == 0 || v[0] == "" {
			continue
		}
		if k.Params == nil {
			k.Params = make(map[string]string, len(values))
		}
		k.Params[name] = v[0]
	}
	return k
}

// With returns a copy of k with one more param set.
func (k Key) With(name, value string) Key {
	out := Key{Segments: append([]string(nil), k.Segments...), Params: make(map[string]string, len(k.Params)+1)}
	for n, v := range k.Params {
		out.Params[n] = v
	}
	out.Params[name] = value
	return out
}

// String is the canonical form; params are sorted by name.
func (k Key) String() string {
	var b strings.Builder
	for _, s := range k.Segments {
		b.WriteByte('/')
		b.WriteString(s)
	}
	if len(k.Segments) == 0 {
		b.WriteByte('/')
	}
	if len(k.Params) == 0 {
		return b.String()
	}
	names := make([]string, 0, len(k.Params))
	for n := range k.Params {
		names = append(names, n)
	}
	sort.Strings(names)
	for i, n := range names {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(n))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(k.Params[n]))
	}
	return b.String()
}

// HasPrefix reports whether k belongs to the family named by prefix: its
// segments start with prefix's segments and it carries every prefix param.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix.Segments) > len(k.Segments) {
		return false
	}
	for i, s := range prefix.Segments {
		if k.Segments[i] != s {
			return false
		}
	}
	for n, v := range prefix.Params {
		if k.Params[n] != v {
			return false
		}
	}
	return true
}
