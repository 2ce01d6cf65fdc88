// Package contacts maps on-call names to their delivery addresses.
package contacts

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Contact holds one person's channel addresses.
type Contact struct {
	Pushover string `json:"pushover"`
	Telegram string `json:"telegram,omitempty"`
}

// Directory is a read-only name to Contact mapping.
type Directory struct {
	byName  map[string]Contact
	byLower map[string]string
}

// New builds a Directory from an in-memory map.
func New(entries map[string]Contact) *Directory {
	d := &Directory{
		byName:  make(map[string]Contact, len(entries)),
		byLower: make(map[string]string, len(entries)),
	}
	for name, c := range entries {
		d.byName[name] = c
		lower := strings.ToLower(name)
		// lowest name wins on case collisions
		if prev, ok := d.byLower[lower]; !ok || name < prev {
			d.byLower[lower] = name
		}
	}
	return d
}

// Load reads a JSON object of name -> Contact from path.
func Load(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read contacts: %w", err)
	}
	var entries map[string]Contact
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode contacts %s: %w", path, err)
	}
	return New(entries), nil
}

// Lookup returns the contact for name. An exact match is preferred; otherwise
// a case-insensitive match is tried.
func (d *Directory) Lookup(name string) (Contact, bool) {
	if d == nil {
		return Contact{}, false
	}
	if c, ok := d.byName[name]; ok {
		return c, true
	}
	if canon, ok := d.byLower[strings.ToLower(name)]; ok {
		return d.byName[canon], true
	}
	return Contact{}, false
}

// Len returns the number of people in the directory.
func (d *Directory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.byName)
}
