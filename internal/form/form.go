// Package form holds the user's trade-route constraints, validates them and
// projects them into an optimizer request.
package form

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/iwvelando/trade-route/internal/apperrors"
	"github.com/iwvelando/trade-route/internal/model"
	"github.com/iwvelando/trade-route/pkg/constants"
)

// CommodityAllocation caps the share of cargo given to one commodity.
type CommodityAllocation struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name" validate:"required"`
	Amount int       `json:"amount" validate:"percent"`
}

// LocationEntry is one selected location.
type LocationEntry struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name" validate:"required"`
}

// Restriction caps trading one commodity at one location; a value of 0
// blacklists the pair.
type Restriction struct {
	ID        uuid.UUID `json:"id"`
	Commodity string    `json:"commodity" validate:"required"`
	Location  string    `json:"location" validate:"required"`
	Value     int       `json:"value" validate:"percent"`
}

// State is a point-in-time copy of every form field.
type State struct {
	Range        int                   `json:"range" validate:"route_range"`
	Stops        int                   `json:"stops" validate:"stop_count"`
	Cargo        int64                 `json:"cargo" validate:"cargo"`
	Filter       string                `json:"filter" validate:"required"`
	Commodities  []CommodityAllocation `json:"commodities"`
	Locations    []LocationEntry       `json:"locations"`
	Restrictions []Restriction         `json:"restrictions"`
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	out := s
	out.Commodities = append([]CommodityAllocation{}, s.Commodities...)
	out.Locations = append([]LocationEntry{}, s.Locations...)
	out.Restrictions = append([]Restriction{}, s.Restrictions...)
	return out
}

// Vocabulary is the server-provided set of valid commodity and location names.
type Vocabulary struct {
	Commodities []string `json:"commodities"`
	Locations   []string `json:"locations"`
}

// Form is the mutable form state. All methods are safe for concurrent use.
type Form struct {
	mu    sync.RWMutex
	state State
	vocab Vocabulary
}

// New returns a form populated with the default constraints.
func New() *Form {
	return &Form{
		state: State{
			Range:        constants.DefaultRange,
			Stops:        constants.DefaultStops,
			Cargo:        constants.DefaultCargo,
			Filter:       constants.DefaultFilter,
			Commodities:  []CommodityAllocation{},
			Locations:    []LocationEntry{},
			Restrictions: []Restriction{},
		},
		vocab: Vocabulary{Commodities: []string{}, Locations: []string{}},
	}
}

// Snapshot returns a deep copy of the current state.
func (f *Form) Snapshot() State {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state.Clone()
}

// Vocabulary returns a copy of the current vocabularies.
func (f *Form) Vocabulary() Vocabulary {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return Vocabulary{
		Commodities: append([]string{}, f.vocab.Commodities...),
		Locations:   append([]string{}, f.vocab.Locations...),
	}
}

// SetVocabulary replaces both vocabularies. Existing selections are kept
// even when they are no longer members; they simply fail validation.
func (f *Form) SetVocabulary(commodities, locations []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vocab = Vocabulary{
		Commodities: append([]string{}, commodities...),
		Locations:   append([]string{}, locations...),
	}
}

// Update applies fn to the state under the write lock. fn must not retain s.
func (f *Form) Update(fn func(s *State)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(&f.state)
}

// Filter returns the current free-text filter.
func (f *Form) Filter() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state.Filter
}

// SetRange sets the maximum travel range.
func (f *Form) SetRange(v int) {
	f.Update(func(s *State) { s.Range = v })
}

// SetStops sets the number of route stops.
func (f *Form) SetStops(v int) {
	f.Update(func(s *State) { s.Stops = v })
}

// SetCargo sets the cargo capacity in SCU.
func (f *Form) SetCargo(v int64) {
	f.Update(func(s *State) { s.Cargo = v })
}

// SetFilter sets the free-text filter and reports whether it changed.
func (f *Form) SetFilter(v string) bool {
	changed := false
	f.Update(func(s *State) {
		changed = s.Filter != v
		s.Filter = v
	})
	return changed
}

// AddCommodity appends an empty allocation and returns its id.
func (f *Form) AddCommodity() uuid.UUID {
	id := uuid.New()
	f.Update(func(s *State) {
		s.Commodities = append(s.Commodities, CommodityAllocation{ID: id, Amount: constants.DefaultAllocationAmount})
	})
	return id
}

// UpdateCommodity replaces the name and amount of the allocation with the given id.
func (f *Form) UpdateCommodity(id uuid.UUID, name string, amount int) error {
	var err error
	f.Update(func(s *State) {
		i := indexOf(s.Commodities, id, func(c CommodityAllocation) uuid.UUID { return c.ID })
		if i < 0 {
			err = notFound("commodity", id)
			return
		}
		s.Commodities[i].Name = name
		s.Commodities[i].Amount = amount
	})
	return err
}

// RemoveCommodity deletes the allocation with the given id.
func (f *Form) RemoveCommodity(id uuid.UUID) error {
	var err error
	f.Update(func(s *State) {
		i := indexOf(s.Commodities, id, func(c CommodityAllocation) uuid.UUID { return c.ID })
		if i < 0 {
			err = notFound("commodity", id)
			return
		}
		s.Commodities = append(s.Commodities[:i], s.Commodities[i+1:]...)
	})
	return err
}

// AddLocation appends an empty location entry and returns its id.
func (f *Form) AddLocation() uuid.UUID {
	id := uuid.New()
	f.Update(func(s *State) {
		s.Locations = append(s.Locations, LocationEntry{ID: id})
	})
	return id
}

// UpdateLocation replaces the name of the location entry with the given id.
func (f *Form) UpdateLocation(id uuid.UUID, name string) error {
	var err error
	f.Update(func(s *State) {
		i := indexOf(s.Locations, id, func(l LocationEntry) uuid.UUID { return l.ID })
		if i < 0 {
			err = notFound("location", id)
			return
		}
		s.Locations[i].Name = name
	})
	return err
}

// RemoveLocation deletes the location entry with the given id.
func (f *Form) RemoveLocation(id uuid.UUID) error {
	var err error
	f.Update(func(s *State) {
		i := indexOf(s.Locations, id, func(l LocationEntry) uuid.UUID { return l.ID })
		if i < 0 {
			err = notFound("location", id)
			return
		}
		s.Locations = append(s.Locations[:i], s.Locations[i+1:]...)
	})
	return err
}

// AddRestriction appends an empty restriction and returns its id.
func (f *Form) AddRestriction() uuid.UUID {
	id := uuid.New()
	f.Update(func(s *State) {
		s.Restrictions = append(s.Restrictions, Restriction{ID: id, Value: constants.DefaultRestrictionValue})
	})
	return id
}

// UpdateRestriction replaces every field of the restriction with the given id.
func (f *Form) UpdateRestriction(id uuid.UUID, commodity, location string, value int) error {
	var err error
	f.Update(func(s *State) {
		i := indexOf(s.Restrictions, id, func(r Restriction) uuid.UUID { return r.ID })
		if i < 0 {
			err = notFound("restriction", id)
			return
		}
		s.Restrictions[i].Commodity = commodity
		s.Restrictions[i].Location = location
		s.Restrictions[i].Value = value
	})
	return err
}

// RemoveRestriction deletes the restriction with the given id.
func (f *Form) RemoveRestriction(id uuid.UUID) error {
	var err error
	f.Update(func(s *State) {
		i := indexOf(s.Restrictions, id, func(r Restriction) uuid.UUID { return r.ID })
		if i < 0 {
			err = notFound("restriction", id)
			return
		}
		s.Restrictions = append(s.Restrictions[:i], s.Restrictions[i+1:]...)
	})
	return err
}

// Blacklist appends a zero-value restriction for every transaction of the
// plan, buy transactions first. It returns the number of restrictions added.
func (f *Form) Blacklist(plan *model.HighLevelPlan) int {
	if plan == nil {
		return 0
	}
	added := 0
	f.Update(func(s *State) {
		for _, transactions := range [][]model.Transaction{plan.BuyTransactions, plan.SellTransactions} {
			for _, t := range transactions {
				s.Restrictions = append(s.Restrictions, Restriction{
					ID:        uuid.New(),
					Commodity: t.Commodity,
					Location:  t.Location,
					Value:     0,
				})
				added++
			}
		}
	})
	return added
}

func indexOf[T any](items []T, id uuid.UUID, key func(T) uuid.UUID) int {
	for i, item := range items {
		if key(item) == id {
			return i
		}
	}
	return -1
}

func notFound(kind string, id uuid.UUID) error {
	return fmt.Errorf("%w: %s %s", apperrors.ErrEntryNotFound, kind, id)
}
