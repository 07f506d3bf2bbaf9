// Package opid tags contexts with per-operation correlation IDs. Events
// published while one executor operation runs share its ID, so subscribers
// can stitch start and finish pairs back together.
package opid

import (
	"context"
	"math/rand/v2"
)

type key struct{}

// NewContext returns a copy of parent carrying a fresh random operation ID,
// along with the generated ID.
func NewContext(parent context.Context) (context.Context, int64) {
	id := rand.Int64()
	return context.WithValue(parent, key{}, id), id
}

// FromContext extracts the operation ID from ctx and whether one is present.
func FromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(key{}).(int64)
	return id, ok
}
