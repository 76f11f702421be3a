package job

import (
	"context"
	"errors"
	"sync/atomic"

	"rankguard/src/envelope"
	"rankguard/src/groupservice"
	"rankguard/src/infrastructure/log"
)

// RankResult is the persisted result of a rank change.
type RankResult struct {
	Success bool               `json:"success"`
	GroupID int64              `json:"group"`
	UserID  int64              `json:"target"`
	NewRole *groupservice.Role `json:"newRole,omitempty"`
	Message string             `json:"message,omitempty"`
}

// RankTask moves one group member to a new rank.
type RankTask struct {
	id      string
	groupID int64
	userID  int64
	rank    int
	service groupservice.Service

	progress atomic.Int32
}

var _ Job = (*RankTask)(nil)

func NewRankTask(id string, groupID, userID int64, rank int, service groupservice.Service) *RankTask {
	return &RankTask{
		id:      id,
		groupID: groupID,
		userID:  userID,
		rank:    rank,
		service: service,
	}
}

func (t *RankTask) ID() string {
	return t.id
}

func (t *RankTask) Progress() int {
	return int(t.progress.Load())
}

func (t *RankTask) setProgress(p int) {
	t.progress.Store(int32(clamp(p)))
}

// Run asks the group service for the change. A refusal by the group
// service is a result, not an error.
func (t *RankTask) Run(ctx context.Context) (interface{}, error) {
	t.setProgress(1)

	role, err := t.service.SetRank(ctx, groupservice.SetRankRequest{
		GroupID:    t.groupID,
		UserID:     t.userID,
		Rank:       t.rank,
		OnProgress: t.setProgress,
	})
	if err != nil {
		return RankResult{
			Success: false,
			GroupID: t.groupID,
			UserID:  t.userID,
			Message: failureMessage(t.id, err),
		}, nil
	}

	return RankResult{
		Success: true,
		GroupID: t.groupID,
		UserID:  t.userID,
		NewRole: role,
	}, nil
}

// failureMessage keeps messages the group service meant for the caller and
// hides transport level detail.
func failureMessage(id string, err error) string {
	var sc envelope.StatusCoder
	if errors.Is(err, groupservice.ErrRejected) || errors.Is(err, groupservice.ErrRoleNotFound) || errors.As(err, &sc) {
		return err.Error()
	}
	log.Error(err, "Group service call failed", "job_id", id)
	return "Group service request failed"
}
