package encoding

// Serializable is implemented by values with a binary wire form. Deserialize
// must accept anything Serialize produced.
type Serializable[T any] interface {
	Serialize() ([]byte, error)
	Deserialize([]byte) error
}
