package nadcon

import "gonum.org/v1/gonum/spatial/r2"

// Region is a named rectangle covered by one .las/.los grid pair. Bounds
// uses X for longitude and Y for latitude, both in degrees with west
// longitudes negative.
type Region struct {
	Name   string
	Bounds r2.Box
}

func region(name string, minLon, maxLon, minLat, maxLat float64) Region {
	return Region{Name: name, Bounds: r2.NewBox(minLon, minLat, maxLon, maxLat)}
}

// DefaultRegions lists the NADCON grids in lookup order. When rectangles
// overlap the earliest entry wins.
func DefaultRegions() []Region {
	return []Region{
		region("conus", -131, -63, 20, 50),
		region("hawaii", -161, -154, 18, 23),
		region("alaska", -194, -128, 46, 77),
		region("stgeorge", -171, -169, 56, 57),
		region("stlrnc", -172, -168, 62, 64),
		region("stpaul", -171, -170, 57, 58),
		region("prvi", -68, -64, 17, 19),
	}
}
