// Package building manages the levels of a garage. Levels are keyed by a
// signed sort order: negative below ground, zero for the ground floor and
// positive above it.
package building

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

const (
	MaxBasements = 10
	MaxFloors    = 60
)

var (
	ErrInvalidStructure = errors.New("invalid_structure")
	ErrInvalidCapacity  = errors.New("invalid_capacity")
	ErrInvalidGarage    = errors.New("invalid_garage")
	ErrInvalidID        = errors.New("invalid_id")
	ErrNotFound         = errors.New("not_found")
	ErrForbidden        = errors.New("forbidden")
)

type Level struct {
	ID        int64     `json:"id,string" gorm:"primaryKey;autoIncrement:false"`
	GarageID  string    `json:"garage_id" gorm:"type:varchar(36);not null;uniqueIndex:ux_levels_garage_sort,priority:1"`
	SortOrder int       `json:"sort_order" gorm:"not null;uniqueIndex:ux_levels_garage_sort,priority:2"`
	Name      string    `json:"name" gorm:"type:text;not null"`
	Capacity  int       `json:"capacity" gorm:"not null;default:0"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (Level) TableName() string { return "building_levels" }

// Structure is the count-based shape edited in the UI. It is derived from the
// stored levels and never stored itself.
type Structure struct {
	BasementCount  int  `json:"basement_count"`
	HasGroundFloor bool `json:"has_ground_floor"`
	FloorCount     int  `json:"floor_count"`
}

func (s Structure) Validate() error {
	if s.BasementCount < 0 || s.BasementCount > MaxBasements {
		return fmt.Errorf("%w: basement_count must be between 0 and %d", ErrInvalidStructure, MaxBasements)
	}
	if s.FloorCount < 0 || s.FloorCount > MaxFloors {
		return fmt.Errorf("%w: floor_count must be between 0 and %d", ErrInvalidStructure, MaxFloors)
	}
	return nil
}

// SortOrders lists the sort orders of s from the deepest basement up.
func (s Structure) SortOrders() []int {
	out := make([]int, 0, s.BasementCount+s.FloorCount+1)
	for i := s.BasementCount; i >= 1; i-- {
		out = append(out, -i)
	}
	if s.HasGroundFloor {
		out = append(out, 0)
	}
	for i := 1; i <= s.FloorCount; i++ {
		out = append(out, i)
	}
	return out
}

// Describe derives the structure from stored levels.
func Describe(levels []Level) Structure {
	var s Structure
	for _, l := range levels {
		switch {
		case l.SortOrder < 0:
			s.BasementCount++
		case l.SortOrder == 0:
			s.HasGroundFloor = true
		default:
			s.FloorCount++
		}
	}
	return s
}

// LevelName is the display name of a sort order.
func LevelName(sortOrder int) string {
	switch {
	case sortOrder < 0:
		return fmt.Sprintf("Subsuelo %d", -sortOrder)
	case sortOrder == 0:
		return "Planta Baja"
	default:
		return fmt.Sprintf("Piso %d", sortOrder)
	}
}

// Plan is the set of row changes that turns the stored levels into a
// structure.
type Plan struct {
	Keep   []Level `json:"keep"`
	Create []Level `json:"create"`
	Delete []Level `json:"delete"`
}

func (p Plan) Changed() bool {
	return len(p.Create) > 0 || len(p.Delete) > 0
}

// Reconcile matches existing levels to desired by sort order. Matched rows keep
// their id and capacity; new rows start at capacity 0 with no id assigned.
func Reconcile(garageID string, existing []Level, desired Structure) Plan {
	bySort := make(map[int]Level, len(existing))
	for _, l := range existing {
		bySort[l.SortOrder] = l
	}

	var plan Plan
	wanted := make(map[int]bool)
	for _, order := range desired.SortOrders() {
		wanted[order] = true
		if l, ok := bySort[order]; ok {
			plan.Keep = append(plan.Keep, l)
			continue
		}
		plan.Create = append(plan.Create, Level{
			GarageID:  garageID,
			SortOrder: order,
			Name:      LevelName(order),
			Capacity:  0,
		})
	}
	for _, l := range existing {
		if !wanted[l.SortOrder] {
			plan.Delete = append(plan.Delete, l)
		}
	}
	sort.Slice(plan.Delete, func(i, j int) bool { return plan.Delete[i].SortOrder < plan.Delete[j].SortOrder })
	return plan
}

// TotalCapacity sums the capacity of levels.
func TotalCapacity(levels []Level) int {
	total := 0
	for _, l := range levels {
		total += l.Capacity
	}
	return total
}
