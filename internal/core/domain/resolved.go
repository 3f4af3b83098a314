package domain

// Resolved rows are parse records whose GUID references have been rewritten
// into surrogate-key space. A nil pointer means the referenced GUID was not
// present anywhere in the parse result; the row is still written with a NULL
// reference rather than rejected.

type ResolvedSpatialNode struct {
	GUID     string
	Class    string
	Name     string
	Level    int
	Path     string
	ParentID *int64
}

type ResolvedEntity struct {
	GUID           string
	Class          string
	Name           string
	ParentStoreyID *int64
}

type ResolvedProperty struct {
	EntityID  int64
	PsetName  string
	PropName  string
	Value     string
	ValueType string
}

type ResolvedTypeAssignment struct {
	EntityID int64
	TypeID   int64
}

type ResolvedMaterialAssignment struct {
	EntityID   int64
	MaterialID int64
}
