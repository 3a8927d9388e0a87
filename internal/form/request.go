package form

import (
	"github.com/iwvelando/trade-route/internal/model"
	"github.com/iwvelando/trade-route/pkg/mathutil"
)

// BuildRequest projects form values into the optimizer request. Cargo is
// scaled to sub-units and percentages to fractions; restrictions are nested
// commodity -> location and a later duplicate pair overwrites an earlier one.
func BuildRequest(rng, stops int, cargo int64, commodities []CommodityAllocation, locations []LocationEntry, restrictions []Restriction, filter string) model.PlanRequest {
	req := model.PlanRequest{
		MaxRange:     rng,
		MaxCargo:     mathutil.ToSubUnits(cargo),
		Stops:        stops,
		MaxCommodity: make(map[string]float64, len(commodities)),
		Restrictions: make(map[string]map[string]float64),
		BlkLocations: make([]string, 0, len(locations)),
		Filter:       filter,
	}
	for _, c := range commodities {
		req.MaxCommodity[c.Name] = mathutil.PercentToFraction(c.Amount)
	}
	for _, l := range locations {
		req.BlkLocations = append(req.BlkLocations, l.Name)
	}
	for _, r := range restrictions {
		byLocation, ok := req.Restrictions[r.Commodity]
		if !ok {
			byLocation = make(map[string]float64)
			req.Restrictions[r.Commodity] = byLocation
		}
		byLocation[r.Location] = mathutil.PercentToFraction(r.Value)
	}
	return req
}

// Request builds the optimizer request for this state.
func (s State) Request() model.PlanRequest {
	return BuildRequest(s.Range, s.Stops, s.Cargo, s.Commodities, s.Locations, s.Restrictions, s.Filter)
}
