package client

import (
	"sort"
	"strings"
)

// Extensions is the registry of capabilities the server advertised in its
// version packet. Keys compare case-insensitively; a later pair with the
// same name overwrites an earlier one. Written only during handshake, read
// by anyone afterwards.
type Extensions struct {
	values map[string][]byte
	names  map[string]string
}

func newExtensions() *Extensions {
	return &Extensions{
		values: make(map[string][]byte),
		names:  make(map[string]string),
	}
}

func (e *Extensions) set(name string, data []byte) {
	key := strings.ToLower(name)
	e.values[key] = data
	e.names[key] = name
}

// Get looks up a capability payload by case-insensitive name.
func (e *Extensions) Get(name string) ([]byte, bool) {
	data, ok := e.values[strings.ToLower(name)]
	return data, ok
}

// Has reports whether the server advertised the named capability.
func (e *Extensions) Has(name string) bool {
	_, ok := e.Get(name)
	return ok
}

// Names returns the advertised capability names ordered case-insensitively.
func (e *Extensions) Names() []string {
	out := make([]string, 0, len(e.names))
	for _, name := range e.names {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i]) < strings.ToLower(out[j])
	})
	return out
}

// Len reports the number of advertised capabilities.
func (e *Extensions) Len() int {
	return len(e.values)
}
