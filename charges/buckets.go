package charges

import (
	"github.com/shopspring/decimal"
	"github.com/warp/contract-recon/rental"
)

// =============================================================================
// BUCKETS
// =============================================================================
//
// Predicate table (ignored charges only ever land in Ignored):
//
//   Bucket       invygo                                      other
//   matched      contract+booking+customer AND               contract+customer
//                (plate fleet-listed OR Flagged)
//   replacement  contract+booking+customer AND plate         always empty
//                not fleet-listed
//   unmatched    missing contract/booking/customer AND       missing contract
//                plate fleet-listed                          or customer
//   edited       ManuallyUpdated                             same
//   ignored      Ignored                                     same
//
// Buckets are computed independently; a charge can sit in Edited and Matched
// at once.

// Bucket names, as accepted by Buckets.ByName.
const (
	BucketMatched     = "matched"
	BucketUnmatched   = "unmatched"
	BucketReplacement = "replacement"
	BucketEdited      = "edited"
	BucketIgnored     = "ignored"
)

// Bucket is one charge list with its count and amount total.
type Bucket struct {
	Charges []*Charge       `json:"charges"`
	Count   int             `json:"count"`
	Total   decimal.Decimal `json:"total"`
}

func (b *Bucket) add(c *Charge) {
	b.Charges = append(b.Charges, c)
	b.Count++
	b.Total = b.Total.Add(c.Amount)
}

// Buckets is the full partition for one fleet type.
type Buckets struct {
	FleetType   FleetType `json:"fleet_type"`
	Matched     Bucket    `json:"matched"`
	Unmatched   Bucket    `json:"unmatched"`
	Replacement Bucket    `json:"replacement"`
	Edited      Bucket    `json:"edited"`
	Ignored     Bucket    `json:"ignored"`
}

// ByName returns a bucket by its name.
func (b Buckets) ByName(name string) (Bucket, bool) {
	switch name {
	case BucketMatched:
		return b.Matched, true
	case BucketUnmatched:
		return b.Unmatched, true
	case BucketReplacement:
		return b.Replacement, true
	case BucketEdited:
		return b.Edited, true
	case BucketIgnored:
		return b.Ignored, true
	}
	return Bucket{}, false
}

// Bucketize sorts charges into buckets, keeping input order inside each.
func Bucketize(list []*Charge, fleetType FleetType, fleet rental.FleetSet) Buckets {
	out := Buckets{
		FleetType:   fleetType,
		Matched:     Bucket{Charges: []*Charge{}},
		Unmatched:   Bucket{Charges: []*Charge{}},
		Replacement: Bucket{Charges: []*Charge{}},
		Edited:      Bucket{Charges: []*Charge{}},
		Ignored:     Bucket{Charges: []*Charge{}},
	}

	for _, c := range list {
		if c.ManuallyUpdated {
			out.Edited.add(c)
		}
		if c.Ignored {
			out.Ignored.add(c)
			continue
		}

		if fleetType != FleetInvygo {
			if c.Contract != "" && c.CustomerName != "" {
				out.Matched.add(c)
			} else {
				out.Unmatched.add(c)
			}
			continue
		}

		complete := c.Contract != "" && c.BookingNumber != "" && c.CustomerName != ""
		listed := fleet.Has(c.Plate)
		switch {
		case complete && (listed || c.Flagged):
			out.Matched.add(c)
		case !complete && listed:
			out.Unmatched.add(c)
		}
		if complete && !listed {
			out.Replacement.add(c)
		}
	}
	return out
}
