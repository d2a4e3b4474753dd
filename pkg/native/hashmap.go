package native

// HashMap is the host side of java.util.HashMap. Keys must be comparable;
// boxed Integers are keyed by their value so two boxes of the same int hit
// the same entry.
type HashMap struct {
	Data map[any]any
}

// NewHashMap creates an empty HashMap.
func NewHashMap() *HashMap {
	return &HashMap{Data: make(map[any]any)}
}

func (m *HashMap) ClassName() string { return "java/util/HashMap" }

func mapKey(key any) any {
	if i, ok := key.(*Integer); ok {
		return i.Value
	}
	return key
}

// Get returns the value for key, or nil.
func (m *HashMap) Get(key any) any {
	return m.Data[mapKey(key)]
}

// Put stores value under key and returns the previous value, or nil.
func (m *HashMap) Put(key, value any) any {
	k := mapKey(key)
	old := m.Data[k]
	m.Data[k] = value
	return old
}

// ContainsKey reports whether key has an entry.
func (m *HashMap) ContainsKey(key any) bool {
	_, ok := m.Data[mapKey(key)]
	return ok
}

// Len returns the number of entries.
func (m *HashMap) Len() int { return len(m.Data) }
