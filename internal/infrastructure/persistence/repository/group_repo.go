package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/requisition-approval/internal/application/port"
	"github.com/garyjia/requisition-approval/internal/domain/entity"
	"github.com/garyjia/requisition-approval/internal/infrastructure/persistence/sqlite"
)

// GroupRepository implements port.GroupRepository
type GroupRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewGroupRepository creates a new approval group repository
func NewGroupRepository(db *sql.DB, logger *zap.Logger) port.GroupRepository {
	return &GroupRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a group and its initial members
func (r *GroupRepository) Create(ctx context.Context, group *entity.ApprovalGroup) error {
	query := `
		INSERT INTO approval_groups (name, description, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`

	now := time.Now()
	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query, group.Name, group.Description, now, now)
	if err != nil {
		r.logger.Error("Failed to create approval group", zap.String("name", group.Name), zap.Error(err))
		return writeError("failed to create approval group", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	group.ID = id
	group.CreatedAt = now
	group.UpdatedAt = now

	for _, m := range group.Members {
		if err := r.AddMember(ctx, id, m.ID); err != nil {
			return err
		}
	}
	return nil
}

// GetByID retrieves a live group with its members
func (r *GroupRepository) GetByID(ctx context.Context, id int64) (*entity.ApprovalGroup, error) {
	query := `
		SELECT id, name, description, deleted, created_at, updated_at
		FROM approval_groups
		WHERE id = ? AND ` + liveFilter("") + `
	`

	var g entity.ApprovalGroup
	err := sqlite.Executor(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&g.ID,
		&g.Name,
		&g.Description,
		&g.Deleted,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get approval group", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get approval group: %w", err)
	}

	members, err := r.listMembers(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	g.Members = members[id]
	return &g, nil
}

// AddMember adds a user to a group. Adding an existing member is a no-op.
func (r *GroupRepository) AddMember(ctx context.Context, groupID, userID int64) error {
	query := `INSERT OR IGNORE INTO approval_group_members (group_id, user_id) VALUES (?, ?)`

	if _, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query, groupID, userID); err != nil {
		r.logger.Error("Failed to add group member",
			zap.Int64("group_id", groupID),
			zap.Int64("user_id", userID),
			zap.Error(err))
		return fmt.Errorf("failed to add group member: %w", err)
	}
	return nil
}

// listMembers loads members for several groups at once, ordered by user id
func (r *GroupRepository) listMembers(ctx context.Context, groupIDs []int64) (map[int64][]*entity.User, error) {
	members := make(map[int64][]*entity.User, len(groupIDs))
	if len(groupIDs) == 0 {
		return members, nil
	}
	return loadGroupMembers(ctx, sqlite.Executor(ctx, r.db), groupIDs)
}

func loadGroupMembers(ctx context.Context, exec sqlite.QueryExecutor, groupIDs []int64) (map[int64][]*entity.User, error) {
	query := `
		SELECT m.group_id, u.id, u.username, u.email, u.first_name, u.last_name,
			u.is_active, u.is_staff, u.created_at, u.updated_at
		FROM approval_group_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.group_id IN (` + placeholders(len(groupIDs)) + `)
		ORDER BY m.group_id, u.id
	`

	rows, err := exec.QueryContext(ctx, query, int64Args(groupIDs)...)
	if err != nil {
		return nil, fmt.Errorf("failed to list group members: %w", err)
	}
	defer rows.Close()

	members := make(map[int64][]*entity.User, len(groupIDs))
	for rows.Next() {
		var groupID int64
		var u entity.User
		if err := rows.Scan(
			&groupID,
			&u.ID,
			&u.Username,
			&u.Email,
			&u.FirstName,
			&u.LastName,
			&u.IsActive,
			&u.IsStaff,
			&u.CreatedAt,
			&u.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan group member: %w", err)
		}
		members[groupID] = append(members[groupID], &u)
	}
	return members, rows.Err()
}

var _ port.GroupRepository = (*GroupRepository)(nil)
