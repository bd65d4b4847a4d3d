package routing

import (
	"errors"
	"fmt"
)

type RouteRequest struct {
	Locations []LocationRequest `json:"locations"`
	Costing   Costing           `json:"costing"`
	Language  *string           `json:"language,omitempty"`
}

func (r RouteRequest) Validate() error {
	if len(r.Locations) < 2 {
		return errors.New("at least 2 locations must be provided")
	}
	if !r.Costing.IsValid() {
		return fmt.Errorf("costing %q is invalid", r.Costing)
	}
	return nil
}

type LocationRequest struct {
	Lat  float64       `json:"lat"`
	Lon  float64       `json:"lon"`
	Type *LocationType `json:"type,omitempty"`
	Name *string       `json:"name,omitempty"`
}

type LocationType string

const (
	LocationTypeBreak        LocationType = "break"
	LocationTypeThrough      LocationType = "through"
	LocationTypeVia          LocationType = "via"
	LocationTypeBreakThrough LocationType = "break_through"
)

func (lt LocationType) IsValid() bool {
	switch lt {
	case LocationTypeBreak, LocationTypeThrough, LocationTypeVia, LocationTypeBreakThrough:
		return true
	default:
		return false
	}
}

type Costing string

const (
	CostingAuto       Costing = "auto"
	CostingBus        Costing = "bus"
	CostingBicycle    Costing = "bicycle"
	CostingTruck      Costing = "truck"
	CostingPedestrian Costing = "pedestrian"
)

func (c Costing) IsValid() bool {
	switch c {
	case CostingAuto, CostingBus, CostingBicycle, CostingTruck, CostingPedestrian:
		return true
	default:
		return false
	}
}

// Response specific

type RouteResponse struct {
	Data    []Trip `json:"data"`
	Message string `json:"message"`
}

type Trip struct {
	Locations []LocationResponse `json:"locations"`
	Legs      []Leg              `json:"legs"`
	Summary   Summary            `json:"summary"`
}

// Summary times are seconds, lengths kilometres.
type Summary struct {
	Time   float64 `json:"time"`
	Length float64 `json:"length"`
}

type Leg struct {
	Summary Summary `json:"summary"`
}

type LocationResponse struct {
	Lat           float64      `json:"lat"`
	Lon           float64      `json:"lon"`
	Type          LocationType `json:"type"`
	OriginalIndex int          `json:"original_index"`
	Name          *string      `json:"name,omitempty"`
}
