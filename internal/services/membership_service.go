package services

import (
	"context"

	"daohub_backend/internal/logger"
	"daohub_backend/internal/repositories"
)

// MembershipService keeps DAO membership in the store and the live DAO rooms
// of the member's sessions in sync.
type MembershipService interface {
	Join(ctx context.Context, daoID, userID, role string) error
	Leave(ctx context.Context, daoID, userID string) error
	DAOIDsForUser(ctx context.Context, userID string) ([]string, error)
	IsMember(ctx context.Context, daoID, userID string) (bool, error)
}

type membershipService struct {
	membershipRepo repositories.MembershipRepository
	pusher         RealtimePusher
}

func NewMembershipService(membershipRepo repositories.MembershipRepository, pusher RealtimePusher) MembershipService {
	return &membershipService{membershipRepo: membershipRepo, pusher: pusher}
}

func (s *membershipService) Join(ctx context.Context, daoID, userID, role string) error {
	if role == "" {
		role = "member"
	}
	if err := s.membershipRepo.Add(ctx, daoID, userID, role); err != nil {
		return dbError(err)
	}
	if s.pusher != nil {
		joined := s.pusher.JoinUserToDAO(userID, daoID)
		logger.CtxDebug(ctx, "member joined dao", "dao_id", daoID, "user_id", userID, "sessions", joined)
	}
	return nil
}

func (s *membershipService) Leave(ctx context.Context, daoID, userID string) error {
	if err := s.membershipRepo.Remove(ctx, daoID, userID); err != nil {
		return dbError(err)
	}
	if s.pusher != nil {
		s.pusher.RemoveUserFromDAO(userID, daoID)
	}
	return nil
}

func (s *membershipService) DAOIDsForUser(ctx context.Context, userID string) ([]string, error) {
	return s.membershipRepo.DAOIDsForUser(ctx, userID)
}

func (s *membershipService) IsMember(ctx context.Context, daoID, userID string) (bool, error) {
	return s.membershipRepo.IsMember(ctx, daoID, userID)
}
