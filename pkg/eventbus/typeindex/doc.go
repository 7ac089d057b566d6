// Package typeindex maps Go types to values.
//
// An Index is the storage behind "one registry per event type": the key is the
// reflect.Type of a type parameter, and the value is whatever the caller stores
// for that type, usually a monomorphised generic container recovered with a
// type assertion.
//
// # Basic Usage
//
//	idx := typeindex.New[any]()
//	reg := idx.GetOrCreate(typeindex.Of[Coin](), func() any {
//	    return newRegistry[Coin]()
//	}).(*registry[Coin])
//
// # Ordering
//
// Keys are remembered in first-insertion order. Keys and Range walk that order,
// so bulk operations over every type (clearing, listing) are deterministic.
//
// # Thread Safety
//
// All Index methods are safe for concurrent use. Range iterates over a
// snapshot, so the callback may add or delete entries.
package typeindex
