package model

import "fmt"

// Class names used on MQTT topics and in artifact records.
const (
	ClassPerson  = "Person"
	ClassCat     = "Cat"
	ClassUnknown = "Unknown"
)

var classNames = map[int]string{
	0:  ClassPerson,
	15: ClassCat,
}

// ClassName maps a model class ID to its label.
func ClassName(classID int) string {
	if name, ok := classNames[classID]; ok {
		return name
	}
	return ClassUnknown
}

// BoundingBox is an axis-aligned box in pixel coordinates.
type BoundingBox struct {
	XMin float64 `json:"xmin"`
	YMin float64 `json:"ymin"`
	XMax float64 `json:"xmax"`
	YMax float64 `json:"ymax"`
}

// Detection is a single object reported by the detection capability.
type Detection struct {
	ClassID    int         `json:"class_id"`
	ClassName  string      `json:"class_name"`
	Confidence float64     `json:"confidence"`
	Box        BoundingBox `json:"box"`
}

// IgnoreZone is a rectangle in normalized [0,1] frame coordinates.
type IgnoreZone struct {
	XMin float64
	YMin float64
	XMax float64
	YMax float64
}

// Validate checks that the zone lies in [0,1] and is not inverted.
func (z IgnoreZone) Validate() error {
	for _, v := range []float64{z.XMin, z.YMin, z.XMax, z.YMax} {
		if !(v >= 0 && v <= 1) {
			return fmt.Errorf("ignore zone coordinate %v outside [0,1]", v)
		}
	}
	if z.XMin > z.XMax || z.YMin > z.YMax {
		return fmt.Errorf("ignore zone is inverted: (%v,%v)-(%v,%v)", z.XMin, z.YMin, z.XMax, z.YMax)
	}
	return nil
}

func (z IgnoreZone) String() string {
	return fmt.Sprintf("%g,%g,%g,%g", z.XMin, z.YMin, z.XMax, z.YMax)
}
