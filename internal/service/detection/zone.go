package detection

import "github.com/andremotz/katzenschreck/internal/model"

// Overlaps reports whether box, in pixels of a width x height frame, shares
// at least one point with the normalized zone. Boundaries are inclusive. A nil
// zone or an empty frame never overlaps.
func Overlaps(box model.BoundingBox, width, height int, zone *model.IgnoreZone) bool {
	if zone == nil || width <= 0 || height <= 0 {
		return false
	}

	w := float64(width)
	h := float64(height)
	left := box.XMin / w
	top := box.YMin / h
	right := box.XMax / w
	bottom := box.YMax / h

	disjoint := right < zone.XMin || left > zone.XMax || bottom < zone.YMin || top > zone.YMax
	return !disjoint
}
