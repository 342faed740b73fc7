// Package propagation moves span contexts across process boundaries
// through arbitrary carriers. A carrier is any value paired with a Setter
// or Getter that knows how to write or read its string fields.
package propagation

// Setter writes one field into a carrier. Writing an existing key
// replaces its value.
type Setter[C any] interface {
	Set(carrier C, key, value string)
}

// Getter reads fields from a carrier. Keys returns every key present;
// Get reports whether key is present.
type Getter[C any] interface {
	Keys(carrier C) []string
	Get(carrier C, key string) (string, bool)
}

type SetterFunc[C any] func(carrier C, key, value string)

func (f SetterFunc[C]) Set(carrier C, key, value string) {
	f(carrier, key, value)
}

// GetterFuncs builds a Getter from two functions.
type GetterFuncs[C any] struct {
	KeysFunc func(carrier C) []string
	GetFunc  func(carrier C, key string) (string, bool)
}

func (g GetterFuncs[C]) Keys(carrier C) []string {

	if g.KeysFunc == nil {
		return nil
	}
	return g.KeysFunc(carrier)
}

func (g GetterFuncs[C]) Get(carrier C, key string) (string, bool) {

	if g.GetFunc == nil {
		return "", false
	}
	return g.GetFunc(carrier, key)
}
