package serializer

// ISerializer is the interface for all document serializers
type ISerializer interface {
	// Serialize serializes a value into a byte array
	Serialize(v any) ([]byte, error)
	// Deserialize deserializes a byte array into the value pointed to by v
	Deserialize(b []byte, v any) error
	// Extension returns the file extension (including the dot) of the format
	Extension() string
}
