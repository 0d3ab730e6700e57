package charges

import (
	"fmt"
	"sort"
	"strings"

	"github.com/warp/contract-recon/rental"
)

// =============================================================================
// TIE-BREAK POLICIES
// =============================================================================

// TieBreak orders candidate contracts that all contain a charge's instant.
// Compare returns a negative number when a is preferred over b. Policies must
// be total orders: two distinct contracts never compare equal unless they
// share every ordering key, in which case upload order decides.
type TieBreak interface {
	Name() string
	Compare(a, b *rental.Contract) int
}

// Policy names accepted by PolicyByName.
const (
	PolicyOpenThenLatest   = "open-then-latest"
	PolicyTightestInterval = "tightest-interval"
)

// OpenThenLatest prefers open contracts, then the most recent pickup. This is
// a deterministic resolution of overlapping data, not a detection of real
// ambiguity: two closed contracts that both cover the charge are a data
// problem and the later pickup wins.
type OpenThenLatest struct{}

func (OpenThenLatest) Name() string { return PolicyOpenThenLatest }

func (OpenThenLatest) Compare(a, b *rental.Contract) int {
	if ao, bo := rental.IsOpen(a), rental.IsOpen(b); ao != bo {
		if ao {
			return -1
		}
		return 1
	}
	if c := b.Pickup.Compare(a.Pickup); c != 0 {
		return c
	}
	return strings.Compare(a.Number, b.Number)
}

// TightestInterval prefers the closed contract that ends first, leaving open
// contracts last; remaining ties go to the most recent pickup.
type TightestInterval struct{}

func (TightestInterval) Name() string { return PolicyTightestInterval }

func (TightestInterval) Compare(a, b *rental.Contract) int {
	ao, bo := rental.IsOpen(a), rental.IsOpen(b)
	if ao != bo {
		if bo {
			return -1
		}
		return 1
	}
	if !ao {
		if c := a.Dropoff.Compare(b.Dropoff); c != 0 {
			return c
		}
	}
	if c := b.Pickup.Compare(a.Pickup); c != 0 {
		return c
	}
	return strings.Compare(a.Number, b.Number)
}

var policies = map[string]TieBreak{
	PolicyOpenThenLatest:   OpenThenLatest{},
	PolicyTightestInterval: TightestInterval{},
}

// PolicyByName looks up a tie-break policy. Blank selects the default.
func PolicyByName(name string) (TieBreak, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return OpenThenLatest{}, nil
	}
	p, ok := policies[name]
	if !ok {
		return nil, fmt.Errorf("unknown tie-break policy %q (expected one of %s)",
			name, strings.Join(PolicyNames(), ", "))
	}
	return p, nil
}

// PolicyNames lists the registered policies, sorted.
func PolicyNames() []string {
	names := make([]string, 0, len(policies))
	for n := range policies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// pick returns the preferred candidate. Candidates arrive in upload order;
// a strict comparison keeps the earliest on a full tie.
func pick(tb TieBreak, candidates []*rental.Contract) *rental.Contract {
	if len(candidates) == 0 {
		return nil
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if tb.Compare(c, best) < 0 {
			best = c
		}
	}
	return best
}
