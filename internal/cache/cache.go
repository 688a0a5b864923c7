package cache

// Cache is a bounded, concurrency safe key/value store.
type Cache interface {
	Get(key interface{}) (interface{}, bool)
	// Peek reads a value without counting it as a use.
	Peek(key interface{}) (interface{}, bool)
	Add(key, value interface{})
	Keys() []interface{}
	Delete(key interface{})
	Len() int
}
