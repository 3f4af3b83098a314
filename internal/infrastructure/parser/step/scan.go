package step

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/modelvault/model-ingest/internal/core/domain"
)

const topClassLimit = 5

// Scanner produces the fast-ack summary in one streaming pass. It never
// builds a full parse result; when the context deadline expires it returns
// whatever it has counted so far, because the fast path must always answer.
type Scanner struct{}

func NewScanner() *Scanner {
	return &Scanner{}
}

func (s *Scanner) QuickScan(ctx context.Context, r io.Reader) (domain.QuickStats, error) {
	stats := domain.QuickStats{TopClasses: []domain.ClassCount{}}
	classCounts := make(map[string]int)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	sawHeader := false
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo%2048 == 0 && ctx.Err() != nil {
			break
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
			stats.Schema = schema
			continue
		}
		if !strings.HasPrefix(line, "#") {
			continue
		}

		rec, ok := parseDataLine(line)
		if !ok {
			continue
		}
		switch {
		case rec.class == "IFCBUILDINGSTOREY":
			stats.StoreyCount++
		case spatialLevels[rec.class] != 0:
		case rec.class == "IFCMATERIAL":
			stats.MaterialCount++
		case isTypeRecord(rec.class):
			stats.TypeCount++
		case isSystemRecord(rec.class):
			// systems carry a GUID but are not elements
		case isElement(rec):
			stats.TotalElements++
			classCounts[ifcClassName(rec.class)]++
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("scan step stream: %w", err)
	}
	if !sawHeader && stats.TotalElements == 0 && stats.Schema == "" {
		return stats, domain.WrapError(domain.ErrInvalidInput, "quick scan", fmt.Errorf("not a STEP physical file"))
	}

	stats.TopClasses = topClasses(classCounts, topClassLimit)
	stats.Success = true
	return stats, nil
}

func topClasses(counts map[string]int, limit int) []domain.ClassCount {
	ranked := make([]domain.ClassCount, 0, len(counts))
	for class, count := range counts {
		ranked = append(ranked, domain.ClassCount{Class: class, Count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Class < ranked[j].Class
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// ifcClassName renders the upper-cased STEP keyword in the conventional
// mixed-case IFC spelling, e.g. IFCWALLSTANDARDCASE -> IfcWallStandardCase.
func ifcClassName(keyword string) string {
	if !strings.HasPrefix(keyword, "IFC") {
		return keyword
	}
	if name, ok := knownClassNames[keyword]; ok {
		return name
	}
	// STEP keywords carry no word boundaries, so classes outside the table
	// render with only the first letter capitalized. Extend the table when a
	// class shows up often enough to matter in reports.
	return "Ifc" + strings.ToUpper(keyword[3:4]) + strings.ToLower(keyword[4:])
}

var knownClassNames = map[string]string{
	"IFCWALL":                 "IfcWall",
	"IFCWALLSTANDARDCASE":     "IfcWallStandardCase",
	"IFCSLAB":                 "IfcSlab",
	"IFCBEAM":                 "IfcBeam",
	"IFCCOLUMN":               "IfcColumn",
	"IFCDOOR":                 "IfcDoor",
	"IFCWINDOW":               "IfcWindow",
	"IFCSTAIR":                "IfcStair",
	"IFCROOF":                 "IfcRoof",
	"IFCCOVERING":             "IfcCovering",
	"IFCFURNISHINGELEMENT":    "IfcFurnishingElement",
	"IFCFLOWTERMINAL":         "IfcFlowTerminal",
	"IFCFLOWSEGMENT":          "IfcFlowSegment",
	"IFCFLOWFITTING":          "IfcFlowFitting",
	"IFCFLOWCONTROLLER":       "IfcFlowController",
	"IFCCURTAINWALL":          "IfcCurtainWall",
	"IFCSANITARYTERMINAL":     "IfcSanitaryTerminal",
	"IFCDUCTSEGMENT":          "IfcDuctSegment",
	"IFCPIPESEGMENT":          "IfcPipeSegment",
	"IFCAIRTERMINAL":          "IfcAirTerminal",
	"IFCLIGHTFIXTURE":         "IfcLightFixture",
	"IFCBUILDINGELEMENTPROXY": "IfcBuildingElementProxy",
	"IFCBUILDINGSTOREY":       domain.ClassStorey,
	"IFCWALLTYPE":             "IfcWallType",
	"IFCDOORTYPE":             "IfcDoorType",
	"IFCWINDOWTYPE":           "IfcWindowType",
	"IFCSLABTYPE":             "IfcSlabType",
	"IFCDISTRIBUTIONSYSTEM":   "IfcDistributionSystem",
}
