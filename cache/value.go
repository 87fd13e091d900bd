package cache

// Value is an immutable cached byte buffer. Handles are shared between the
// store and readers: a reader that obtained a Value before its row was
// evicted can keep reading it afterwards, since eviction removes the row,
// not the bytes.
type Value struct {
	b []byte
}

// newValue copies b so later mutations by the caller cannot reach the
// cached bytes.
func newValue(b []byte) *Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return &Value{b: cp}
}

// Bytes returns the cached bytes. The returned slice is shared by every
// holder of this handle and must not be modified.
func (v *Value) Bytes() []byte { return v.b }

// Size returns the value size in bytes.
func (v *Value) Size() int { return len(v.b) }
