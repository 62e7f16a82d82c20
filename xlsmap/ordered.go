package xlsmap

import "reflect"

// OrderedMap is a map column value that remembers header order. Declare a
// map-column field as OrderedMap[V] instead of map[string]V when the order
// of the columns matters.
type OrderedMap[V any] struct {
	keys   []string
	values map[string]V
}

// Keys returns the keys in insertion order.
func (m *OrderedMap[V]) Keys() []string {
	return append([]string(nil), m.keys...)
}

// Get returns the value stored under key.
func (m *OrderedMap[V]) Get(key string) (V, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Set stores a value. A new key is appended to the key order.
func (m *OrderedMap[V]) Set(key string, v V) {
	if m.values == nil {
		m.values = make(map[string]V)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

// Len returns the number of entries.
func (m *OrderedMap[V]) Len() int {
	return len(m.keys)
}

func (m *OrderedMap[V]) valueType() reflect.Type {
	return reflect.TypeFor[V]()
}

func (m *OrderedMap[V]) setValue(key string, v reflect.Value) {
	m.Set(key, v.Interface().(V))
}

func (m *OrderedMap[V]) lookup(key string) (reflect.Value, bool) {
	v, ok := m.values[key]
	if !ok {
		return reflect.Value{}, false
	}
	return reflect.ValueOf(&v).Elem(), true
}

// orderedMap is implemented by *OrderedMap[V] for every V.
type orderedMap interface {
	valueType() reflect.Type
	setValue(key string, v reflect.Value)
	lookup(key string) (reflect.Value, bool)
	Len() int
}

var orderedMapType = reflect.TypeFor[orderedMap]()

func isOrderedMap(t reflect.Type) bool {
	return t.Kind() == reflect.Struct && reflect.PointerTo(t).Implements(orderedMapType)
}

// Emptier lets a record type decide whether it is empty. Empty records are
// left out of loaded tables unless the table keeps them.
type Emptier interface {
	IsEmpty() bool
}

var emptierType = reflect.TypeFor[Emptier]()
