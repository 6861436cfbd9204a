package util

// DefaultMap creates missing values on first access and remembers insertion order.
type DefaultMap[K comparable, V any] struct {
	internal map[K]V
	keys     []K
	factory  func() V
}

func NewDefaultMap[K comparable, V any](factory func() V) *DefaultMap[K, V] {
	return &DefaultMap[K, V]{
		internal: make(map[K]V),
		factory:  factory,
	}
}

func (d *DefaultMap[K, V]) Get(key K) V {
	if val, ok := d.internal[key]; ok {
		return val
	}
	val := d.factory()
	d.Set(key, val)
	return val
}

func (d *DefaultMap[K, V]) Lookup(key K) (V, bool) {
	val, ok := d.internal[key]
	return val, ok
}

func (d *DefaultMap[K, V]) Set(key K, value V) {
	if _, ok := d.internal[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.internal[key] = value
}

// Keys returns the keys in insertion order.
func (d *DefaultMap[K, V]) Keys() []K {
	return append([]K(nil), d.keys...)
}

// Values returns the values in key insertion order.
func (d *DefaultMap[K, V]) Values() []V {
	return Map(d.keys, func(k K) V { return d.internal[k] })
}

func (d *DefaultMap[K, V]) Len() int {
	return len(d.keys)
}
