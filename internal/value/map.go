package value

import "fmt"

// Map holds its key set and value set in two parallel ordered vectors,
// keys sorted under the total order Less imposes (§3, §4.B). Binary
// search is used at 16 or more entries, linear scan below that — the same
// threshold Vector.LowerBound uses.
type Map struct {
	Keys Vector
	Vals Vector
	Meta Item
}

func NewMap() *Map {
	return &Map{}
}

func (m *Map) Size() int { return m.Keys.Size() }

func (m *Map) find(k Item) (int, bool) {
	i := m.Keys.LowerBound(k, Less)
	if i < m.Keys.Size() {
		if kk, _ := m.Keys.Get(i); Equal(kk, k) {
			return i, true
		}
	}
	return i, false
}

// Get returns Nil for a missing key, per §3.
func (m *Map) Get(k Item) Item {
	if i, ok := m.find(k); ok {
		v, _ := m.Vals.Get(i)
		return v
	}
	return Nil()
}

func (m *Map) GetOk(k Item) (Item, bool) {
	if i, ok := m.find(k); ok {
		v, _ := m.Vals.Get(i)
		return v, true
	}
	return Nil(), false
}

// Set stores v under k; setting Nil deletes the key, per §3.
func (m *Map) Set(k, v Item) {
	if v.IsNil() {
		m.Delete(k)
		return
	}
	i, ok := m.find(k)
	if ok {
		m.Vals.Set(i, v)
		return
	}
	m.Keys.Insert(i, k)
	m.Vals.Insert(i, v)
}

func (m *Map) Delete(k Item) {
	i, ok := m.find(k)
	if !ok {
		return
	}
	m.Keys.Delete(i)
	m.Vals.Delete(i)
}

// Ref returns a mutable pointer to the stored value, or nil if absent.
func (m *Map) Ref(k Item) *Item {
	i, ok := m.find(k)
	if !ok {
		return nil
	}
	return &m.Vals.Items[i]
}

func (m *Map) Clear() {
	m.Keys.Clear()
	m.Vals.Clear()
	m.Meta = Nil()
}

func (m *Map) debugString() string {
	return fmt.Sprintf("<map %d>", m.Size())
}
