/*
Package factory converts uploaded tabular rows into typed records.

PURPOSE:
  The ingestion layer hands over generic rows (header -> cell). The factory
  resolves header aliases once per dataset, validates the columns every
  later stage depends on, and builds typed records with stable ids. After
  this point no code reads a header name again.

REQUIRED COLUMNS:
  contracts: contract number, plate
  fleet:     Plate
  bookings:  Agreement, Plate
  charges:   Plate_Number, Date (or Trip_Date for tolls)

  A missing required column is a configuration error for the whole
  dataset. Bad cells in individual rows are not: unreadable dates become
  zero instants, unreadable amounts become zero, and the raw text is kept
  for display.

KIND DETECTION:
  Charges uploaded without an explicit kind are tolls when a Trip_Date
  column is present, parking otherwise.

USAGE:
  f := factory.NewRecordFactory(generic.NewTemporalResolver(loc))
  rows, _ := factory.ReadRows(file, ".xlsx")
  set, err := f.Contracts(rows)

SEE ALSO:
  - ingest.go: CSV and XLSX readers producing []generic.Row
  - generic/schema.go: Header alias resolution
*/
package factory

import (
	"strings"

	"github.com/google/uuid"
	"github.com/warp/contract-recon/charges"
	"github.com/warp/contract-recon/generic"
	"github.com/warp/contract-recon/rental"
)

// Dataset names used in schemas and error messages.
const (
	DatasetContracts = "contracts"
	DatasetFleet     = "fleet"
	DatasetBookings  = "bookings"
	DatasetCharges   = "charges"
)

// Literal dealer booking and fleet keys, matched case-insensitively.
const (
	fieldAgreement = "agreement"
	fieldBookingID = "booking_id"
	fieldCustomer  = "customer"
	fieldBrand     = "brand"
	fieldCarName   = "car_name"
	fieldCarYear   = "car_year"
	fieldPlate     = "plate"
)

var bookingFields = []generic.FieldSpec{
	{Field: fieldAgreement, Candidates: []string{"Agreement"}},
	{Field: fieldBookingID, Candidates: []string{"Booking ID"}},
	{Field: fieldCustomer, Candidates: []string{"Customer"}},
	{Field: fieldBrand, Candidates: []string{"Brand Name"}},
	{Field: fieldCarName, Candidates: []string{"Car Name"}},
	{Field: fieldCarYear, Candidates: []string{"Car Year"}},
	{Field: fieldPlate, Candidates: []string{"Plate"}},
}

var fleetFields = []generic.FieldSpec{
	{Field: fieldPlate, Candidates: []string{"Plate"}},
}

// =============================================================================
// RECORD FACTORY
// =============================================================================

// RecordFactory builds typed records from rows.
type RecordFactory struct {
	Time  generic.TemporalResolver
	NewID func() string
}

// NewRecordFactory creates a factory that places dates in the resolver's
// calendar and assigns random UUIDs.
func NewRecordFactory(tr generic.TemporalResolver) *RecordFactory {
	return &RecordFactory{Time: tr, NewID: func() string { return uuid.NewString() }}
}

func (f *RecordFactory) id() string {
	if f.NewID == nil {
		return uuid.NewString()
	}
	return f.NewID()
}

// Contracts builds the contract dataset.
func (f *RecordFactory) Contracts(rows []generic.Row) (*rental.ContractSet, error) {
	schema := generic.ResolveSchema(DatasetContracts, generic.Headers(rows), rental.ContractFields)
	if err := schema.Require(rental.FieldContractNumber, rental.FieldPlate); err != nil {
		return nil, err
	}

	list := make([]*rental.Contract, 0, len(rows))
	for _, row := range rows {
		plate := schema.Text(row, rental.FieldPlate)
		pickupCell := schema.Value(row, rental.FieldPickup)
		dropoffCell := schema.Value(row, rental.FieldDropoff)
		pickup, _ := f.Time.ParseInstant(pickupCell)
		dropoff, _ := f.Time.ParseInstant(dropoffCell)

		list = append(list, &rental.Contract{
			ID:            f.id(),
			Number:        schema.Text(row, rental.FieldContractNumber),
			Customer:      schema.Text(row, rental.FieldCustomer),
			Plate:         plate,
			PlateKey:      generic.NormalizePlate(plate),
			Pickup:        pickup,
			Dropoff:       dropoff,
			PickupRaw:     generic.Text(pickupCell),
			DropoffRaw:    generic.Text(dropoffCell),
			Status:        schema.Text(row, rental.FieldStatus),
			BookingNumber: schema.Text(row, rental.FieldBookingNumber),
			PickupBranch:  schema.Text(row, rental.FieldPickupBranch),
			Model:         schema.Text(row, rental.FieldModel),
			Extra:         schema.Extra(row),
		})
	}
	return rental.NewContractSet(schema, list), nil
}

// Fleet builds the fleet plate list.
func (f *RecordFactory) Fleet(rows []generic.Row) (rental.FleetSet, error) {
	schema := generic.ResolveSchema(DatasetFleet, generic.Headers(rows), fleetFields)
	if err := schema.Require(fieldPlate); err != nil {
		return rental.FleetSet{}, err
	}
	plates := make([]string, 0, len(rows))
	for _, row := range rows {
		plates = append(plates, schema.Text(row, fieldPlate))
	}
	return rental.NewFleetSet(plates...), nil
}

// Bookings builds the dealer booking index.
func (f *RecordFactory) Bookings(rows []generic.Row) (rental.Bookings, error) {
	schema := generic.ResolveSchema(DatasetBookings, generic.Headers(rows), bookingFields)
	if err := schema.Require(fieldAgreement, fieldPlate); err != nil {
		return rental.Bookings{}, err
	}
	list := make([]rental.DealerBooking, 0, len(rows))
	for _, row := range rows {
		plate := schema.Text(row, fieldPlate)
		list = append(list, rental.DealerBooking{
			Agreement: schema.Text(row, fieldAgreement),
			BookingID: schema.Text(row, fieldBookingID),
			Customer:  schema.Text(row, fieldCustomer),
			Brand:     schema.Text(row, fieldBrand),
			CarName:   schema.Text(row, fieldCarName),
			CarYear:   schema.Text(row, fieldCarYear),
			Plate:     plate,
			PlateKey:  generic.NormalizePlate(plate),
		})
	}
	return rental.NewBookings(list), nil
}

// DetectKind guesses the charge feed from its headers.
func DetectKind(headers []string) charges.Kind {
	if _, ok := generic.ResolveHeader([]string{"Trip_Date"}, headers); ok {
		return charges.KindToll
	}
	return charges.KindParking
}

// Charges builds a charge collection. A blank kind is detected from headers.
func (f *RecordFactory) Charges(rows []generic.Row, kind charges.Kind) (*charges.Set, error) {
	headers := generic.Headers(rows)
	if kind == "" {
		kind = DetectKind(headers)
	}
	schema := generic.ResolveSchema(DatasetCharges, headers, charges.FieldsFor(kind))
	if err := schema.Require(charges.FieldPlate, charges.FieldDate); err != nil {
		return nil, err
	}

	list := make([]*charges.Charge, 0, len(rows))
	for _, row := range rows {
		plate := schema.Text(row, charges.FieldPlate)
		dateCell := schema.Value(row, charges.FieldDate)
		timeCell := schema.Value(row, charges.FieldTime)
		at, _ := f.Time.CombineDateTime(dateCell, timeCell)
		amount, _ := generic.ParseAmount(schema.Value(row, charges.FieldAmount))

		c := &charges.Charge{
			ID:          f.id(),
			Kind:        kind,
			Plate:       plate,
			PlateKey:    generic.NormalizePlate(plate),
			DateRaw:     f.Time.FormatDateOnly(dateCell),
			At:          at,
			Amount:      amount,
			Description: schema.Text(row, charges.FieldDescription),
			Direction:   schema.Text(row, charges.FieldDirection),
			Extra:       schema.Extra(row),
		}
		if timeCell != nil && strings.TrimSpace(generic.Text(timeCell)) != "" {
			c.TimeRaw = generic.FormatClockTime(timeCell)
		}
		list = append(list, c)
	}
	return charges.NewSet(kind, list), nil
}
