package rankguard

import (
	"context"
	"fmt"
	"net/http"

	"rankguard/src/groupservice"
)

// DefaultCeiling is the highest rank a group supports.
const DefaultCeiling = 255

// LimitError is returned for ranks above the configured ceiling.
type LimitError struct {
	Rank    int
	Ceiling int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("New rank %d is above rank limit %d", e.Rank, e.Ceiling)
}

// StatusCode marks the limit as a caller-side business rule failure.
func (e *LimitError) StatusCode() int {
	return http.StatusUnprocessableEntity
}

// Guard wraps a group service and refuses any rank above its ceiling.
type Guard struct {
	next    groupservice.Service
	ceiling int
}

var _ groupservice.Service = (*Guard)(nil)

// New returns a Guard in front of next. A non-positive ceiling selects
// DefaultCeiling.
func New(next groupservice.Service, ceiling int) *Guard {
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	return &Guard{next: next, ceiling: ceiling}
}

// Ceiling returns the maximum rank this guard lets through.
func (g *Guard) Ceiling() int {
	return g.ceiling
}

// Check reports whether rank is allowed without contacting the group service.
func (g *Guard) Check(rank int) error {
	if rank > g.ceiling {
		return &LimitError{Rank: rank, Ceiling: g.ceiling}
	}
	return nil
}

// SetRank forwards req to the wrapped service when req.Rank is within the
// ceiling. The wrapped service's result and error are returned untouched.
func (g *Guard) SetRank(ctx context.Context, req groupservice.SetRankRequest) (*groupservice.Role, error) {
	if err := g.Check(req.Rank); err != nil {
		return nil, err
	}
	return g.next.SetRank(ctx, req)
}
