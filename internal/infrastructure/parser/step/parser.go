package step

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/modelvault/model-ingest/internal/core/domain"
)

// Parser is a compact STEP physical-file (ISO 10303-21) reader covering the
// entity subset the pipeline persists: spatial structure, element types,
// materials, systems, elements, property sets and the relationship records
// that tie them together. Geometry payloads are never extracted.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// record is one #id=CLASS(args) data line with its argument list split at
// top nesting level.
type record struct {
	id    int
	class string
	args  []string
}

var spatialLevels = map[string]int{
	"IFCSITE":           1,
	"IFCBUILDING":       2,
	"IFCBUILDINGSTOREY": 3,
	"IFCSPACE":          4,
}

var spatialClassNames = map[string]string{
	"IFCSITE":           "IfcSite",
	"IFCBUILDING":       "IfcBuilding",
	"IFCBUILDINGSTOREY": domain.ClassStorey,
	"IFCSPACE":          "IfcSpace",
}

// nonElementClasses carry a GUID in their first attribute but are not
// persisted as elements.
var nonElementClasses = map[string]bool{
	"IFCPROJECT":     true,
	"IFCPROPERTYSET": true,
	"IFCGROUP":       true,
	"IFCZONE":        true,
}

func (p *Parser) Parse(ctx context.Context, r io.Reader, skipGeometry bool) (*domain.ParseResult, error) {
	_ = skipGeometry // geometry is never extracted by this parser

	result := &domain.ParseResult{}
	records := make(map[int]record)
	var order []int

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	sawHeader := false
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo%2048 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "ISO-10303-21") {
			sawHeader = true
			continue
		}
		if schema, ok := parseFileSchema(line); ok {
			result.Schema = schema
			continue
		}
		if !strings.HasPrefix(line, "#") {
			continue
		}

		rec, ok := parseDataLine(line)
		if !ok {
			continue
		}
		records[rec.id] = rec
		order = append(order, rec.id)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read step stream: %w", err)
	}
	if !sawHeader && len(records) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse step file", fmt.Errorf("not a STEP physical file"))
	}

	p.extract(result, records, order)
	return result, nil
}

// extract walks the data records in file order so the same input always
// yields collections in the same order.
func (p *Parser) extract(result *domain.ParseResult, records map[int]record, order []int) {
	aggregateParent := make(map[int]int)  // child record id -> parent record id
	containedIn := make(map[int]int)      // element record id -> spatial record id
	typeOf := make(map[int][]int)         // type record id -> element record ids
	materialOf := make(map[int][]int)     // material record id -> element record ids
	psetElements := make(map[int][]int)   // pset record id -> element record ids
	materialGUIDs := make(map[int]string) // material record id -> synthetic guid

	// First pass: relationship records.
	for _, id := range order {
		rec := records[id]
		switch rec.class {
		case "IFCRELAGGREGATES":
			if parent, ok := refArg(rec.args, 4); ok {
				for _, child := range refListArg(rec.args, 5) {
					aggregateParent[child] = parent
				}
			}
		case "IFCRELCONTAINEDINSPATIALSTRUCTURE":
			if structure, ok := refArg(rec.args, 5); ok {
				for _, element := range refListArg(rec.args, 4) {
					containedIn[element] = structure
				}
			}
		case "IFCRELDEFINESBYTYPE":
			if typeID, ok := refArg(rec.args, 5); ok {
				typeOf[typeID] = append(typeOf[typeID], refListArg(rec.args, 4)...)
			}
		case "IFCRELASSOCIATESMATERIAL":
			if materialID, ok := refArg(rec.args, 5); ok {
				materialOf[materialID] = append(materialOf[materialID], refListArg(rec.args, 4)...)
			}
		case "IFCRELDEFINESBYPROPERTIES":
			if psetID, ok := refArg(rec.args, 5); ok {
				psetElements[psetID] = append(psetElements[psetID], refListArg(rec.args, 4)...)
			}
		}
	}

	// Second pass: entity collections, in file order.
	for _, id := range order {
		rec := records[id]
		switch {
		case spatialLevels[rec.class] != 0:
			result.Spatial = append(result.Spatial, domain.SpatialItem{
				GUID:       quotedArg(rec.args, 0),
				Class:      spatialClassNames[rec.class],
				Name:       quotedArg(rec.args, 2),
				Level:      spatialLevels[rec.class],
				Path:       p.spatialPath(records, aggregateParent, id),
				ParentGUID: p.spatialParentGUID(records, aggregateParent, id),
			})
		case rec.class == "IFCMATERIAL":
			// IfcMaterial has no GlobalId; derive a stable synthetic one
			// from the record id.
			guid := "material-" + strconv.Itoa(rec.id)
			materialGUIDs[rec.id] = guid
			result.Materials = append(result.Materials, domain.MaterialRecord{
				GUID: guid,
				Name: quotedArg(rec.args, 0),
			})
		case isTypeRecord(rec.class):
			result.Types = append(result.Types, domain.TypeRecord{
				GUID:           quotedArg(rec.args, 0),
				Class:          ifcClassName(rec.class),
				Name:           quotedArg(rec.args, 2),
				PredefinedType: enumArg(rec.args),
			})
		case isSystemRecord(rec.class):
			result.Systems = append(result.Systems, domain.SystemRecord{
				GUID: quotedArg(rec.args, 0),
				Name: quotedArg(rec.args, 2),
			})
		case isElement(rec):
			parentGUID := ""
			if structureID, ok := containedIn[rec.id]; ok {
				parentGUID = quotedArg(records[structureID].args, 0)
			}
			result.Entities = append(result.Entities, domain.EntityRecord{
				GUID:             quotedArg(rec.args, 0),
				Class:            ifcClassName(rec.class),
				Name:             quotedArg(rec.args, 2),
				ParentStoreyGUID: parentGUID,
			})
		}
	}

	p.extractAssignments(result, records, typeOf, materialOf, materialGUIDs)
	p.extractProperties(result, records, psetElements)
}

func (p *Parser) extractAssignments(
	result *domain.ParseResult,
	records map[int]record,
	typeOf map[int][]int,
	materialOf map[int][]int,
	materialGUIDs map[int]string,
) {
	for _, typeID := range sortedKeys(typeOf) {
		typeGUID := quotedArg(records[typeID].args, 0)
		for _, elementID := range typeOf[typeID] {
			result.TypeAssignments = append(result.TypeAssignments, domain.TypeAssignment{
				EntityGUID: quotedArg(records[elementID].args, 0),
				TypeGUID:   typeGUID,
			})
		}
	}
	for _, materialID := range sortedKeys(materialOf) {
		guid := materialGUIDs[materialID]
		if guid == "" {
			continue
		}
		for _, elementID := range materialOf[materialID] {
			result.MaterialAssignments = append(result.MaterialAssignments, domain.MaterialAssignment{
				EntityGUID:   quotedArg(records[elementID].args, 0),
				MaterialGUID: guid,
			})
		}
	}
}

func (p *Parser) extractProperties(result *domain.ParseResult, records map[int]record, psetElements map[int][]int) {
	for _, psetID := range sortedKeys(psetElements) {
		pset := records[psetID]
		if pset.class != "IFCPROPERTYSET" {
			continue
		}
		psetName := quotedArg(pset.args, 2)
		for _, propID := range refList(arg(pset.args, 4)) {
			prop := records[propID]
			if prop.class != "IFCPROPERTYSINGLEVALUE" {
				continue
			}
			propName := quotedArg(prop.args, 0)
			value, valueType := typedValue(arg(prop.args, 2))
			for _, elementID := range psetElements[psetID] {
				result.Properties = append(result.Properties, domain.PropertyRecord{
					OwnerGUID: quotedArg(records[elementID].args, 0),
					PsetName:  psetName,
					PropName:  propName,
					Value:     value,
					ValueType: valueType,
				})
			}
		}
	}
}

func (p *Parser) spatialPath(records map[int]record, parents map[int]int, id int) string {
	var segments []string
	for current, depth := id, 0; depth < 16; depth++ {
		rec, ok := records[current]
		if !ok {
			break
		}
		if spatialLevels[rec.class] != 0 || rec.class == "IFCPROJECT" {
			name := quotedArg(rec.args, 2)
			if name == "" {
				name = quotedArg(rec.args, 0)
			}
			segments = append([]string{name}, segments...)
		}
		parent, ok := parents[current]
		if !ok {
			break
		}
		current = parent
	}
	return "/" + strings.Join(segments, "/")
}

func (p *Parser) spatialParentGUID(records map[int]record, parents map[int]int, id int) string {
	parent, ok := parents[id]
	if !ok {
		return ""
	}
	rec, ok := records[parent]
	if !ok || spatialLevels[rec.class] == 0 {
		return ""
	}
	return quotedArg(rec.args, 0)
}

// isTypeRecord matches IFCWALLTYPE-style type declarations. Relationship
// records such as IFCRELDEFINESBYTYPE share the TYPE suffix and must not
// be counted as types.
func isTypeRecord(class string) bool {
	return strings.HasPrefix(class, "IFC") &&
		!strings.HasPrefix(class, "IFCREL") &&
		strings.HasSuffix(class, "TYPE")
}

func isSystemRecord(class string) bool {
	return class == "IFCSYSTEM" || class == "IFCDISTRIBUTIONSYSTEM" || class == "IFCBUILDINGSYSTEM"
}

// isElement treats any remaining IFC record with a GUID-shaped first
// attribute as a model element, excluding relationship, property and project
// scaffolding records.
func isElement(rec record) bool {
	if !strings.HasPrefix(rec.class, "IFC") {
		return false
	}
	if strings.HasPrefix(rec.class, "IFCREL") || strings.HasPrefix(rec.class, "IFCPROPERTY") {
		return false
	}
	if nonElementClasses[rec.class] {
		return false
	}
	guid := quotedArg(rec.args, 0)
	return len(guid) == 22
}

func parseFileSchema(line string) (string, bool) {
	if !strings.HasPrefix(line, "FILE_SCHEMA") {
		return "", false
	}
	start := strings.IndexByte(line, '\'')
	if start < 0 {
		return "", false
	}
	end := strings.IndexByte(line[start+1:], '\'')
	if end < 0 {
		return "", false
	}
	return line[start+1 : start+1+end], true
}

func parseDataLine(line string) (record, bool) {
	eq := strings.IndexByte(line, '=')
	if eq < 1 {
		return record{}, false
	}
	id, err := strconv.Atoi(strings.TrimSpace(line[1:eq]))
	if err != nil {
		return record{}, false
	}

	rest := strings.TrimSpace(line[eq+1:])
	open := strings.IndexByte(rest, '(')
	if open < 1 {
		return record{}, false
	}
	class := strings.ToUpper(strings.TrimSpace(rest[:open]))
	end := strings.LastIndexByte(rest, ')')
	if end <= open {
		return record{}, false
	}

	return record{
		id:    id,
		class: class,
		args:  splitArgs(rest[open+1 : end]),
	}, true
}

// splitArgs splits a STEP argument list at nesting depth zero, leaving
// nested lists and typed values intact.
func splitArgs(s string) []string {
	var args []string
	depth := 0
	inString := false
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inString:
			if c == '\'' {
				inString = false
			}
		case c == '\'':
			inString = true
		case c == '(':
			depth++
		case c == ')':
			depth--
		case c == ',' && depth == 0:
			args = append(args, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	args = append(args, strings.TrimSpace(s[start:]))
	return args
}

func arg(args []string, i int) string {
	if i >= len(args) {
		return ""
	}
	return args[i]
}

func quotedArg(args []string, i int) string {
	a := arg(args, i)
	if len(a) >= 2 && a[0] == '\'' && a[len(a)-1] == '\'' {
		return a[1 : len(a)-1]
	}
	return ""
}

func refArg(args []string, i int) (int, bool) {
	return parseRef(arg(args, i))
}

func refListArg(args []string, i int) []int {
	return refList(arg(args, i))
}

func parseRef(s string) (int, bool) {
	if len(s) < 2 || s[0] != '#' {
		return 0, false
	}
	id, err := strconv.Atoi(s[1:])
	if err != nil {
		return 0, false
	}
	return id, true
}

func refList(s string) []int {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return nil
	}
	var ids []int
	for _, part := range strings.Split(s[1:len(s)-1], ",") {
		if id, ok := parseRef(strings.TrimSpace(part)); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// enumArg returns the first .ENUM. token, the usual predefined-type shape.
func enumArg(args []string) string {
	for _, a := range args {
		if len(a) >= 3 && a[0] == '.' && a[len(a)-1] == '.' {
			return a[1 : len(a)-1]
		}
	}
	return ""
}

// typedValue unwraps IFCLABEL('x') / IFCREAL(1.5) style typed values.
func typedValue(s string) (value, valueType string) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '(')
	if open < 1 || !strings.HasSuffix(s, ")") {
		return s, ""
	}
	valueType = strings.TrimSpace(s[:open])
	inner := strings.TrimSpace(s[open+1 : len(s)-1])
	if len(inner) >= 2 && inner[0] == '\'' && inner[len(inner)-1] == '\'' {
		inner = inner[1 : len(inner)-1]
	}
	return inner, valueType
}

func sortedKeys(m map[int][]int) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
