package profiles

import "strings"

// NewStore opens a badger-backed store when dir is set, otherwise in-memory.
func NewStore(dir string) (Store, error) {
	if strings.TrimSpace(dir) == "" {
		return NewInMemoryStore(), nil
	}
	store, err := NewBadgerStore(BadgerOptions{Dir: dir})
	if err != nil {
		return nil, err
	}
	return store, nil
}
