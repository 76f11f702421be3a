package groupservice

import (
	"context"
	"errors"
)

var (
	// ErrRoleNotFound is returned when the group has no role with the requested rank.
	ErrRoleNotFound = errors.New("role not found")

	// ErrNotAuthenticated is returned when the session credential is rejected.
	ErrNotAuthenticated = errors.New("group service session not authenticated")

	// ErrRejected matches errors where the group service refused the request
	// itself, as opposed to being unreachable.
	ErrRejected = errors.New("rejected by group service")
)

// Role is a rank within a group.
type Role struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Rank int    `json:"rank"`
}

// User is the account the service session is logged in as.
type User struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// SetRankRequest asks the group service to move a member to the role
// holding Rank.
type SetRankRequest struct {
	GroupID int64
	UserID  int64
	Rank    int

	// OnProgress, when set, receives completion estimates between 0 and 100.
	OnProgress func(percent int)
}

// Report forwards a progress estimate if the caller asked for one.
func (r SetRankRequest) Report(percent int) {
	if r.OnProgress != nil {
		r.OnProgress(percent)
	}
}

// Service is the rank-set capability of an external group service.
type Service interface {
	SetRank(ctx context.Context, req SetRankRequest) (*Role, error)
}
