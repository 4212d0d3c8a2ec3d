package http

import (
	"context"
	"strings"

	x402 "github.com/x402-foundation/x402-facilitator"
)

// StaticRoutes is a PricingPolicy backed by a fixed route table. Keys are
// resource paths; a trailing "/*" protects everything under a prefix. Exact
// matches win over prefix matches.
type StaticRoutes map[string]x402.Price

// PriceFor returns the price for a resource path, or ErrNoPolicy when the
// path is unprotected.
func (r StaticRoutes) PriceFor(_ context.Context, resource string) (x402.Price, error) {
	if price, ok := r[resource]; ok {
		return price, nil
	}

	for pattern, price := range r {
		if prefix, ok := strings.CutSuffix(pattern, "/*"); ok && strings.HasPrefix(resource, prefix+"/") {
			return price, nil
		}
	}

	return x402.Price{}, x402.ErrNoPolicy
}

var _ x402.PricingPolicy = (StaticRoutes)(nil)
