package dualmap

// A dual-key map is a variation of the map data structure where the key is a two-part
// tuple (k1, k2). The key parts form a one-to-one relationship, i.e. either key uniquely
// identifies the other key, and the data stored in the map.

type entry[K1 comparable, K2 comparable, V any] struct {
	k1  K1
	k2  K2
	val V
}

type Map[K1 comparable, K2 comparable, V any] struct {
	firstMap  map[K1]*entry[K1, K2, V]
	secondMap map[K2]*entry[K1, K2, V]
}

func New[K1 comparable, K2 comparable, V any]() *Map[K1, K2, V] {
	return &Map[K1, K2, V]{
		firstMap:  make(map[K1]*entry[K1, K2, V]),
		secondMap: make(map[K2]*entry[K1, K2, V]),
	}
}

func (m *Map[K1, K2, V]) Store(k1 K1, k2 K2, val V) {
	e := entry[K1, K2, V]{k1, k2, val}
	m.firstMap[k1] = &e
	m.secondMap[k2] = &e
}

func (m *Map[K1, K2, V]) FindByFirstKey(k1 K1) (K2, V, bool) {
	e, found := m.firstMap[k1]
	if found {
		return e.k2, e.val, true
	} else {
		return *new(K2), *new(V), false
	}
}

func (m *Map[K1, K2, V]) FindBySecondKey(k2 K2) (K1, V, bool) {
	e, found := m.secondMap[k2]
	if found {
		return e.k1, e.val, true
	} else {
		return *new(K1), *new(V), false
	}
}

func (m *Map[K1, K2, V]) DeleteByFirstKey(k1 K1) {
	e, found := m.firstMap[k1]
	if found {
		delete(m.firstMap, k1)
		delete(m.secondMap, e.k2)
	}
}

func (m *Map[K1, K2, V]) DeleteBySecondKey(k2 K2) {
	e, found := m.secondMap[k2]
	if found {
		delete(m.firstMap, e.k1)
		delete(m.secondMap, k2)
	}
}

func (m *Map[K1, K2, V]) Len() int {
	return len(m.firstMap)
}

func (m *Map[K1, K2, V]) Range(f func(k1 K1, k2 K2, val V) bool) {
	for k1, e := range m.firstMap {
		if !f(k1, e.k2, e.val) {
			break
		}
	}
}

func (m *Map[K1, K2, V]) Clear() {
	clear(m.firstMap)
	clear(m.secondMap)
}
