package field

import "fmt"

// Type is the indexing type of a filterable field.
type Type string

// Field type constants.
const (
	// Tag is an exact-match field.
	Tag     Type = "tag"
	Numeric Type = "numeric"
)

// reserved names collide with the hit envelope returned to callers.
var reservedFieldNames = map[string]bool{
	"id": true, "distance": true, "score": true,
}

// Field is an immutable description of a filterable collection field.
type Field struct {
	name      string
	fieldType Type
}

// New validates and creates a Field.
func New(name string, ft Type) (Field, error) {
	if name == "" {
		return Field{}, fmt.Errorf("field name is required")
	}
	if len(name) > 64 {
		return Field{}, fmt.Errorf("field name %q too long (max 64)", name)
	}
	if reservedFieldNames[name] {
		return Field{}, fmt.Errorf("field name %q is reserved", name)
	}
	if ft != Tag && ft != Numeric {
		return Field{}, fmt.Errorf("invalid field type %q for %q", ft, name)
	}
	return Field{name: name, fieldType: ft}, nil
}

// Name returns the field name.
func (f Field) Name() string { return f.name }

// FieldType returns the field's indexing type.
func (f Field) FieldType() Type { return f.fieldType }
