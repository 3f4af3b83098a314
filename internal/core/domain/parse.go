package domain

// ParseResult is the ephemeral output of one parse attempt. Every record is
// keyed by the externally stable GUID carried in the source file; no
// relational keys exist at this point.
type ParseResult struct {
	Schema string

	Spatial             []SpatialItem
	Materials           []MaterialRecord
	Types               []TypeRecord
	Systems             []SystemRecord
	Entities            []EntityRecord
	TypeAssignments     []TypeAssignment
	MaterialAssignments []MaterialAssignment
	Properties          []PropertyRecord
}

// SpatialItem is one node of the spatial containment tree (site, building,
// storey, space). Parents always sit at a lower hierarchy level.
type SpatialItem struct {
	GUID       string
	Class      string
	Name       string
	Level      int
	Path       string
	ParentGUID string
}

type EntityRecord struct {
	GUID             string
	Class            string
	Name             string
	ParentStoreyGUID string
}

type TypeRecord struct {
	GUID           string
	Class          string
	Name           string
	PredefinedType string
}

type MaterialRecord struct {
	GUID string
	Name string
}

type SystemRecord struct {
	GUID string
	Name string
}

type PropertyRecord struct {
	OwnerGUID string
	PsetName  string
	PropName  string
	Value     string
	ValueType string
}

type TypeAssignment struct {
	EntityGUID string
	TypeGUID   string
}

type MaterialAssignment struct {
	EntityGUID   string
	MaterialGUID string
}

// StoreyCount reports how many spatial nodes are storeys.
func (p *ParseResult) StoreyCount() int {
	n := 0
	for _, item := range p.Spatial {
		if item.Class == ClassStorey {
			n++
		}
	}
	return n
}

// ClassStorey is the spatial class elements may declare as parent.
const ClassStorey = "IfcBuildingStorey"
