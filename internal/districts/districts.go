// Package districts resolves report coordinates to neighborhood names from
// a city boundary shapefile. District names key the operator analytics and
// exports; reports outside every boundary fall back to a default.
package districts

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"
)

// DefaultDistrict is used when a point falls outside every boundary, or
// when no shapefile is configured.
const DefaultDistrict = "Downtown"

// nameFields are tried in order when locating the district name attribute.
var nameFields = []string{"NAME", "NHOOD", "DISTRICT"}

type district struct {
	name  string
	rings [][]float64 // flat XY coords per ring
	// bounding box for a cheap pre-filter
	minX, minY, maxX, maxY float64
}

// Lookup is an in-memory point-in-polygon index over district boundaries.
type Lookup struct {
	districts []district
}

// Load reads district polygons from a shapefile. An empty path yields a
// lookup that always answers DefaultDistrict.
func Load(shpPath string) (*Lookup, error) {
	if shpPath == "" {
		return &Lookup{}, nil
	}

	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "districts: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	nameIdx := -1
	for i, f := range reader.Fields() {
		fname := strings.ToUpper(strings.TrimRight(f.String(), "\x00"))
		for _, want := range nameFields {
			if fname == want {
				nameIdx = i
				break
			}
		}
		if nameIdx >= 0 {
			break
		}
	}
	if nameIdx < 0 {
		return nil, eris.Errorf("districts: no name field (%s) in %s",
			strings.Join(nameFields, "/"), shpPath)
	}

	lu := &Lookup{}
	for reader.Next() {
		_, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok {
			continue
		}

		name := strings.TrimSpace(strings.TrimRight(reader.Attribute(nameIdx), "\x00"))
		if name == "" {
			continue
		}

		d := district{
			name: name,
			minX: poly.Box.MinX, minY: poly.Box.MinY,
			maxX: poly.Box.MaxX, maxY: poly.Box.MaxY,
		}
		for i, start := range poly.Parts {
			end := len(poly.Points)
			if i+1 < len(poly.Parts) {
				end = int(poly.Parts[i+1])
			}
			ring := make([]float64, 0, (end-int(start))*2)
			for j := int(start); j < end; j++ {
				ring = append(ring, poly.Points[j].X, poly.Points[j].Y)
			}
			d.rings = append(d.rings, ring)
		}
		lu.districts = append(lu.districts, d)
	}

	zap.L().Info("district boundaries loaded",
		zap.String("path", shpPath),
		zap.Int("districts", len(lu.districts)),
	)
	return lu, nil
}

// District returns the neighborhood containing the coordinate, or
// DefaultDistrict when none does. Shapefile coordinates are X=lon, Y=lat.
func (l *Lookup) District(lat, lon float64) string {
	p := geom.Coord{lon, lat}
	for _, d := range l.districts {
		if lon < d.minX || lon > d.maxX || lat < d.minY || lat > d.maxY {
			continue
		}
		// Even-odd rule across all rings handles holes without caring
		// about ring orientation.
		inside := 0
		for _, ring := range d.rings {
			if xy.IsPointInRing(geom.XY, p, ring) {
				inside++
			}
		}
		if inside%2 == 1 {
			return d.name
		}
	}
	return DefaultDistrict
}
