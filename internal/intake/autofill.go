package intake

import (
	"context"
	"errors"

	"github.com/Inaralmeida/smilink-sub001/internal/address"
)

// Resolver turns an 8 digit postal code into an address.
type Resolver interface {
	Resolve(ctx context.Context, postalCode string) (address.Address, error)
}

// AutoFill resolves the record's postal code once it has 8 digits and
// overwrites street, complement, neighborhood, city and state with the
// result. Lookup failures are reported against the postal code field; the
// returned record is unchanged in that case.
func AutoFill(ctx context.Context, resolver Resolver, r Record) (Record, map[string]string) {
	code := Digits(r.Address.PostalCode)
	if len(code) != 8 {
		return r, nil
	}

	addr, err := resolver.Resolve(ctx, code)
	switch {
	case errors.Is(err, address.ErrLookupNotFound):
		return r, map[string]string{"address.postal_code": MsgPostalNotFound}
	case err != nil:
		return r, map[string]string{"address.postal_code": MsgLookupFailed}
	}

	r.Address.PostalCode = code
	r.Address.Street = addr.Street
	r.Address.Complement = addr.Complement
	r.Address.Neighborhood = addr.Neighborhood
	r.Address.City = addr.City
	r.Address.State = addr.State
	return r, nil
}
