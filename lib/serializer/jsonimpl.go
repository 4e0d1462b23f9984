package serializer

import (
	"encoding/json"
)

// NewJSONSerializer creates a new serializer using indented json encoding
func NewJSONSerializer() ISerializer {
	return &jsonSerializerImpl{indent: true}
}

// NewCompactJSONSerializer creates a new serializer using compact json encoding
func NewCompactJSONSerializer() ISerializer {
	return &jsonSerializerImpl{indent: false}
}

// jsonSerializerImpl implements the ISerializer interface using json encoding
type jsonSerializerImpl struct {
	indent bool
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.ISerializer)
// --------------------------------------------------------------------------

func (j jsonSerializerImpl) Serialize(v any) ([]byte, error) {
	if j.indent {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}

func (j jsonSerializerImpl) Deserialize(b []byte, v any) error {
	return json.Unmarshal(b, v)
}

func (j jsonSerializerImpl) Extension() string {
	return ".json"
}
