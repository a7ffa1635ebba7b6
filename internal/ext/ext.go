// Package ext lets independent modules attach typed data to connections.
//
// Each kind of data is described by an Item, registered once under a unique
// name. The data itself lives in an Extensible, which the host embeds in each
// of its users. An Extensible holds at most one value per item name.
//
// Items know how to convert their values to and from a string. This is how
// values get propagated to other servers or set by services.
package ext

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// ErrUnknownItem is returned when no item is registered under a name.
var ErrUnknownItem = errors.New("unknown extension item")

// ErrDuplicateItem is returned when registering a name twice.
var ErrDuplicateItem = errors.New("extension item already registered")

// ErrLocalItem is returned when unserializing an item that has no string
// form.
var ErrLocalItem = errors.New("extension item has no string form")

// Extensible holds the extension values attached to one container.
//
// The zero value is ready to use. It is not safe for concurrent use. The host
// is expected to touch a given container from one goroutine at a time.
// Different containers share nothing.
type Extensible struct {
	// Item name to value.
	items map[string]interface{}
}

func (e *Extensible) getRaw(name string) interface{} {
	return e.items[name]
}

// setRaw installs the value and returns what it replaced (nil if nothing).
func (e *Extensible) setRaw(name string, v interface{}) interface{} {
	if e.items == nil {
		e.items = make(map[string]interface{})
	}

	old := e.items[name]
	e.items[name] = v
	return old
}

func (e *Extensible) unsetRaw(name string) interface{} {
	old, exists := e.items[name]
	if !exists {
		return nil
	}
	delete(e.items, name)
	return old
}

// Has reports whether there is a value for the name.
func (e *Extensible) Has(name string) bool {
	_, exists := e.items[name]
	return exists
}

// Len is the number of values attached.
func (e *Extensible) Len() int {
	return len(e.items)
}

// Release drops every value attached. Call it when the container goes away.
//
// It returns how many values there were.
func (e *Extensible) Release() int {
	n := len(e.items)
	e.items = nil
	return n
}

// Item describes one kind of extension data.
type Item interface {
	// Name is the unique key of the item. e.g., groups
	Name() string

	// Serialize returns the string form of the container's value. If there is
	// no value it returns a blank string.
	Serialize(e *Extensible) string

	// Unserialize parses the string and installs the result, replacing any
	// prior value. What happens with input that parses to nothing is up to the
	// item.
	Unserialize(e *Extensible, value string)
}

// SimpleItem is an Item holding values of type T.
//
// It does not convert its values to strings. Serialize always gives a blank
// string and Unserialize does nothing. Items with a string form embed it and
// provide their own pair.
type SimpleItem[T any] struct {
	name string
}

// NewSimpleItem creates a SimpleItem.
func NewSimpleItem[T any](name string) *SimpleItem[T] {
	return &SimpleItem[T]{name: name}
}

// Name returns the item's key.
func (i *SimpleItem[T]) Name() string {
	return i.name
}

// Get returns the container's value, or nil if it has none.
//
// The value still belongs to the container. Changes made through the pointer
// are visible to later calls.
func (i *SimpleItem[T]) Get(e *Extensible) *T {
	v, ok := e.getRaw(i.name).(*T)
	if !ok {
		return nil
	}
	return v
}

// Set installs v and returns the value it replaced, or nil.
func (i *SimpleItem[T]) Set(e *Extensible, v *T) *T {
	old, _ := e.setRaw(i.name, v).(*T)
	return old
}

// Unset removes the container's value and returns it, or nil if there was
// none.
func (i *SimpleItem[T]) Unset(e *Extensible) *T {
	old, _ := e.unsetRaw(i.name).(*T)
	return old
}

// Serialize gives a blank string. SimpleItem values stay local.
func (i *SimpleItem[T]) Serialize(e *Extensible) string {
	return ""
}

// Unserialize does nothing. SimpleItem values stay local.
func (i *SimpleItem[T]) Unserialize(e *Extensible, value string) {
}

// Local reports that the item has no string form. Items embedding SimpleItem
// that provide their own Serialize/Unserialize return false.
func (i *SimpleItem[T]) Local() bool {
	return true
}

// Registry maps item names to items.
type Registry struct {
	mu    sync.RWMutex
	items map[string]Item
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		items: make(map[string]Item),
	}
}

// Register adds the item. Names must be unique.
func (r *Registry) Register(item Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[item.Name()]; exists {
		return errors.Wrap(ErrDuplicateItem, item.Name())
	}

	r.items[item.Name()] = item
	return nil
}

// Get looks up an item by name.
func (r *Registry) Get(name string) (Item, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, exists := r.items[name]
	return item, exists
}

// Names returns the registered item names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for name := range r.items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Serialize returns the string form of the named item's value on the
// container.
func (r *Registry) Serialize(e *Extensible, name string) (string, error) {
	item, exists := r.Get(name)
	if !exists {
		return "", errors.Wrap(ErrUnknownItem, name)
	}
	return item.Serialize(e), nil
}

// Unserialize hands the value to the named item.
//
// Items that report themselves Local cannot be set this way.
func (r *Registry) Unserialize(e *Extensible, name, value string) error {
	item, exists := r.Get(name)
	if !exists {
		return errors.Wrap(ErrUnknownItem, name)
	}
	if l, ok := item.(interface{ Local() bool }); ok && l.Local() {
		return errors.Wrap(ErrLocalItem, name)
	}
	item.Unserialize(e, value)
	return nil
}

// SerializeAll returns every item with a non-blank string form on the
// container.
func (r *Registry) SerializeAll(e *Extensible) map[string]string {
	values := make(map[string]string)

	for _, name := range r.Names() {
		item, _ := r.Get(name)
		if s := item.Serialize(e); s != "" {
			values[name] = s
		}
	}

	return values
}
