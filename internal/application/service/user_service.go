package service

import (
	"context"
	"net/http"

	"github.com/garyjia/requisition-approval/internal/application/port"
	"github.com/garyjia/requisition-approval/internal/domain/entity"
	apperrors "github.com/garyjia/requisition-approval/internal/pkg/errors"
)

// DeactivationResult reports what a deactivation touched
type DeactivationResult struct {
	User         *entity.User `json:"user"`
	Requisitions []int64      `json:"requisition_ids"`
}

// UserService resolves callers and runs the deactivation cascade
type UserService interface {
	// Authenticate resolves an active user by username
	Authenticate(ctx context.Context, username string) (*entity.User, error)
	Get(ctx context.Context, id int64) (*entity.User, error)
	// Deactivate marks the user inactive and cancels every pending approval
	// they hold, advancing the affected requisitions.
	Deactivate(ctx context.Context, userID int64, caller *entity.User) (*DeactivationResult, error)
}

type userServiceImpl struct {
	userRepo  port.UserRepository
	approvals ApprovalService
	txManager port.TransactionManager
	logger    Logger
}

// NewUserService creates a new UserService
func NewUserService(userRepo port.UserRepository, approvals ApprovalService, txManager port.TransactionManager, logger Logger) UserService {
	return &userServiceImpl{
		userRepo:  userRepo,
		approvals: approvals,
		txManager: txManager,
		logger:    logger,
	}
}

func (s *userServiceImpl) Authenticate(ctx context.Context, username string) (*entity.User, error) {
	if username == "" {
		return nil, apperrors.New(apperrors.CodeUnauthenticated, "Authentication required.", http.StatusUnauthorized)
	}
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, apperrors.Internal(err, "Failed to load user.")
	}
	if user == nil || !user.IsActive {
		return nil, apperrors.New(apperrors.CodeUnauthenticated, "Invalid or inactive user.", http.StatusUnauthorized)
	}
	return user, nil
}

func (s *userServiceImpl) Get(ctx context.Context, id int64) (*entity.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.Internal(err, "Failed to load user.")
	}
	if user == nil {
		return nil, apperrors.NotFound(apperrors.CodeUserNotFound, "User not found.")
	}
	return user, nil
}

// Deactivate runs as one transaction. A nil caller is the system, used by
// the batch command.
func (s *userServiceImpl) Deactivate(ctx context.Context, userID int64, caller *entity.User) (*DeactivationResult, error) {
	if caller != nil {
		if err := requireStaff(caller, "deactivate users"); err != nil {
			return nil, err
		}
	}

	result := &DeactivationResult{}
	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		user, err := s.Get(ctx, userID)
		if err != nil {
			return err
		}
		if user.IsActive {
			if err := s.userRepo.SetActive(ctx, userID, false); err != nil {
				return apperrors.Internal(err, "Failed to deactivate user.")
			}
			user.IsActive = false
		}

		touched, err := s.approvals.CancelUserApprovals(ctx, userID)
		if err != nil {
			return apperrors.Internal(err, "Failed to cancel the user's approvals.")
		}
		result.User = user
		result.Requisitions = touched
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("User deactivated", "user_id", userID, "requisitions", len(result.Requisitions))
	return result, nil
}
