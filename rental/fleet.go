package rental

import (
	"strings"

	"github.com/warp/contract-recon/generic"
)

// =============================================================================
// FLEET SET - Plates that belong to the reference fleet
// =============================================================================

// FleetSet is an ordered set of normalized plates. The zero value is empty
// and usable.
type FleetSet struct {
	plates []string
	index  map[string]struct{}
}

// NewFleetSet normalizes and de-duplicates plates, keeping first-seen order.
// Blank plates are dropped.
func NewFleetSet(plates ...string) FleetSet {
	f := FleetSet{index: make(map[string]struct{}, len(plates))}
	for _, p := range plates {
		key := generic.NormalizePlate(p)
		if key == "" {
			continue
		}
		if _, dup := f.index[key]; dup {
			continue
		}
		f.index[key] = struct{}{}
		f.plates = append(f.plates, key)
	}
	return f
}

// Has reports fleet membership. plate is normalized first.
func (f FleetSet) Has(plate string) bool {
	_, ok := f.index[generic.NormalizePlate(plate)]
	return ok
}

// Plates returns the plates in upload order.
func (f FleetSet) Plates() []string {
	return append([]string(nil), f.plates...)
}

// Len returns the number of plates.
func (f FleetSet) Len() int { return len(f.plates) }

// =============================================================================
// DEALER BOOKINGS - Replacement vehicle assignments
// =============================================================================

// DealerBooking assigns a replacement vehicle to an agreement.
type DealerBooking struct {
	Agreement string `json:"agreement"`
	BookingID string `json:"booking_id"`
	Customer  string `json:"customer"`
	Brand     string `json:"brand"`
	CarName   string `json:"car_name"`
	CarYear   string `json:"car_year"`
	Plate     string `json:"plate"`
	PlateKey  string `json:"plate_key"`
}

// Model describes the vehicle as "Brand Car Year", skipping blanks.
func (b DealerBooking) Model() string {
	var parts []string
	for _, p := range []string{b.Brand, b.CarName, b.CarYear} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// Bookings is a read-only lookup table over dealer bookings. When several
// bookings share an agreement or plate the first one uploaded wins.
type Bookings struct {
	list        []DealerBooking
	byAgreement map[string]int
	byPlate     map[string]int
}

// NewBookings indexes bookings by agreement number and by plate.
func NewBookings(list []DealerBooking) Bookings {
	b := Bookings{
		list:        list,
		byAgreement: make(map[string]int, len(list)),
		byPlate:     make(map[string]int, len(list)),
	}
	for i, bk := range list {
		if a := strings.TrimSpace(bk.Agreement); a != "" {
			if _, dup := b.byAgreement[a]; !dup {
				b.byAgreement[a] = i
			}
		}
		if key := generic.NormalizePlate(bk.Plate); key != "" {
			if _, dup := b.byPlate[key]; !dup {
				b.byPlate[key] = i
			}
		}
	}
	return b
}

// ByAgreement finds the booking for a contract number.
func (b Bookings) ByAgreement(number string) (DealerBooking, bool) {
	i, ok := b.byAgreement[strings.TrimSpace(number)]
	if !ok {
		return DealerBooking{}, false
	}
	return b.list[i], true
}

// ByPlate finds the booking whose replacement plate matches.
func (b Bookings) ByPlate(plate string) (DealerBooking, bool) {
	i, ok := b.byPlate[generic.NormalizePlate(plate)]
	if !ok {
		return DealerBooking{}, false
	}
	return b.list[i], true
}

// All returns the bookings in upload order.
func (b Bookings) All() []DealerBooking {
	return append([]DealerBooking(nil), b.list...)
}

// Len returns the number of bookings.
func (b Bookings) Len() int { return len(b.list) }
