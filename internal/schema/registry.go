package schema

import (
	"collator/pkg/exception"

	"github.com/yanun0323/errors"
)

// Scale is the number of decimal places used by a scaled integer.
// Example: Scale=8 means the integer value is scaled by 1e8.
type Scale int32

// ScaleSpec defines scaling for price and size fields.
type ScaleSpec struct {
	PriceScale    Scale `json:"priceScale" yaml:"priceScale"`
	QuantityScale Scale `json:"quantityScale" yaml:"quantityScale"`
}

// VenueID is the numeric identifier for a venue.
type VenueID uint16

// SymbolID is the numeric identifier for a symbol.
type SymbolID uint32

// Venue describes a trading venue or data vendor.
type Venue struct {
	ID   VenueID
	Name string
}

// Symbol describes an instrument carried by the sources.
type Symbol struct {
	ID      SymbolID
	VenueID VenueID
	Name    string
	Scale   ScaleSpec
}

// Registry maps venue and symbol names to dense numeric IDs, starting at 1.
type Registry struct {
	venues       []Venue
	symbols      []Symbol
	venueByName  map[string]VenueID
	symbolByName map[string]SymbolID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		venueByName:  make(map[string]VenueID),
		symbolByName: make(map[string]SymbolID),
	}
}

// AddVenue registers a new venue and returns its ID.
func (r *Registry) AddVenue(name string) (VenueID, error) {
	if name == "" {
		return 0, errors.Wrap(exception.ErrInvalidArgument, "venue name is empty")
	}
	if id, ok := r.venueByName[name]; ok {
		return id, errors.Wrapf(exception.ErrInvalidArgument, "venue already exists: %s", name)
	}
	id := VenueID(len(r.venues) + 1)
	r.venues = append(r.venues, Venue{ID: id, Name: name})
	r.venueByName[name] = id
	return id, nil
}

// AddSymbol registers a new symbol under an existing venue.
func (r *Registry) AddSymbol(name string, venueID VenueID, scale ScaleSpec) (SymbolID, error) {
	if name == "" {
		return 0, errors.Wrap(exception.ErrInvalidArgument, "symbol name is empty")
	}
	if _, ok := r.Venue(venueID); !ok {
		return 0, errors.Wrapf(exception.ErrInvalidArgument, "venue id not found: %d", venueID)
	}
	if id, ok := r.symbolByName[name]; ok {
		return id, errors.Wrapf(exception.ErrInvalidArgument, "symbol already exists: %s", name)
	}
	id := SymbolID(len(r.symbols) + 1)
	r.symbols = append(r.symbols, Symbol{ID: id, VenueID: venueID, Name: name, Scale: scale})
	r.symbolByName[name] = id
	return id, nil
}

// Venue returns the venue by ID.
func (r *Registry) Venue(id VenueID) (Venue, bool) {
	if id == 0 || int(id) > len(r.venues) {
		return Venue{}, false
	}
	return r.venues[id-1], true
}

// Symbol returns the symbol by ID.
func (r *Registry) Symbol(id SymbolID) (Symbol, bool) {
	if id == 0 || int(id) > len(r.symbols) {
		return Symbol{}, false
	}
	return r.symbols[id-1], true
}

// Symbols returns every registered symbol in ID order.
func (r *Registry) Symbols() []Symbol {
	out := make([]Symbol, len(r.symbols))
	copy(out, r.symbols)
	return out
}

// VenueIDByName returns the venue ID for a name.
func (r *Registry) VenueIDByName(name string) (VenueID, bool) {
	id, ok := r.venueByName[name]
	return id, ok
}

// SymbolIDByName returns the symbol ID for a name.
func (r *Registry) SymbolIDByName(name string) (SymbolID, bool) {
	id, ok := r.symbolByName[name]
	return id, ok
}
