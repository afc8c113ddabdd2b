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

const chainColumns = `id, name, approver_mode, approver_id, approver_group_id, group_mode,
	sequence_number, min_amount_cents, max_amount_cents, active, valid_from, valid_to,
	header_rule_logic, line_rule_logic, cross_rule_logic, created_at, updated_at`

// ChainRepository implements port.ChainRepository
type ChainRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewChainRepository creates a new approval chain repository
func NewChainRepository(db *sql.DB, logger *zap.Logger) port.ChainRepository {
	return &ChainRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a chain together with any rules already attached to it
func (r *ChainRepository) Create(ctx context.Context, chain *entity.ApprovalChain) error {
	query := `
		INSERT INTO approval_chains (
			name, approver_mode, approver_id, approver_group_id, group_mode, sequence_number,
			min_amount_cents, max_amount_cents, active, valid_from, valid_to,
			header_rule_logic, line_rule_logic, cross_rule_logic, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now()
	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		chain.Name,
		chain.ApproverMode,
		nullInt64(chain.ApproverID),
		nullInt64(chain.ApproverGroupID),
		chain.GroupMode,
		chain.SequenceNumber,
		toCents(chain.MinAmount),
		nullCents(chain.MaxAmount),
		chain.Active,
		nullDate(chain.ValidFrom),
		nullDate(chain.ValidTo),
		chain.HeaderRuleLogic,
		chain.LineRuleLogic,
		chain.CrossRuleLogic,
		now,
		now,
	)
	if err != nil {
		r.logger.Error("Failed to create approval chain", zap.String("name", chain.Name), zap.Error(err))
		return writeError("failed to create approval chain", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	chain.ID = id
	chain.CreatedAt = now
	chain.UpdatedAt = now

	for _, rule := range chain.HeaderRules {
		rule.ChainID = id
		if err := r.AddHeaderRule(ctx, rule); err != nil {
			return err
		}
	}
	for _, rule := range chain.LineRules {
		rule.ChainID = id
		if err := r.AddLineRule(ctx, rule); err != nil {
			return err
		}
	}
	return nil
}

// GetByID retrieves a live chain with its approver, group and rules
func (r *ChainRepository) GetByID(ctx context.Context, id int64) (*entity.ApprovalChain, error) {
	query := `SELECT ` + chainColumns + ` FROM approval_chains WHERE id = ? AND ` + liveFilter("")

	chains, err := r.query(ctx, query, id)
	if err != nil {
		r.logger.Error("Failed to get approval chain", zap.Int64("id", id), zap.Error(err))
		return nil, err
	}
	if len(chains) == 0 {
		return nil, nil
	}
	return chains[0], nil
}

// FindCandidates returns the chains eligible by amount band and validity window
func (r *ChainRepository) FindCandidates(ctx context.Context, amountCents int64, day time.Time) ([]*entity.ApprovalChain, error) {
	query := `SELECT ` + chainColumns + `
		FROM approval_chains
		WHERE ` + liveFilter("") + `
			AND active = 1
			AND min_amount_cents <= ?
			AND (max_amount_cents IS NULL OR max_amount_cents >= ?)
			AND (valid_from IS NULL OR valid_from <= ?)
			AND (valid_to IS NULL OR valid_to >= ?)
		ORDER BY sequence_number ASC, id ASC
	`

	date := day.Format(entity.DateLayout)
	chains, err := r.query(ctx, query, amountCents, amountCents, date, date)
	if err != nil {
		r.logger.Error("Failed to find candidate chains",
			zap.Int64("amount_cents", amountCents),
			zap.String("day", date),
			zap.Error(err))
		return nil, err
	}
	return chains, nil
}

// AddHeaderRule inserts a header rule for an existing chain
func (r *ChainRepository) AddHeaderRule(ctx context.Context, rule *entity.HeaderRule) error {
	query := `
		INSERT INTO approval_chain_header_rules (approval_chain_id, field, lookup, value, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	value, err := encodeValues(rule.Value)
	if err != nil {
		return err
	}

	now := time.Now()
	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query, rule.ChainID, rule.Field, rule.Lookup, value, now, now)
	if err != nil {
		r.logger.Error("Failed to create header rule", zap.Int64("chain_id", rule.ChainID), zap.Error(err))
		return fmt.Errorf("failed to create header rule: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	rule.ID = id
	rule.CreatedAt = now
	rule.UpdatedAt = now
	return nil
}

// AddLineRule inserts a line rule for an existing chain
func (r *ChainRepository) AddLineRule(ctx context.Context, rule *entity.LineRule) error {
	query := `
		INSERT INTO approval_chain_line_rules (approval_chain_id, field, lookup, value, match_mode, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	value, err := encodeValues(rule.Value)
	if err != nil {
		return err
	}

	now := time.Now()
	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		rule.ChainID, rule.Field, rule.Lookup, value, rule.MatchMode, now, now)
	if err != nil {
		r.logger.Error("Failed to create line rule", zap.Int64("chain_id", rule.ChainID), zap.Error(err))
		return fmt.Errorf("failed to create line rule: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	rule.ID = id
	rule.CreatedAt = now
	rule.UpdatedAt = now
	return nil
}

// SoftDelete flags the chain deleted and inactive
func (r *ChainRepository) SoftDelete(ctx context.Context, id int64) error {
	query := `UPDATE approval_chains SET deleted = 1, active = 0, updated_at = ? WHERE id = ? AND ` + liveFilter("")

	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		r.logger.Error("Failed to delete approval chain", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete approval chain: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("approval chain not found: %d", id)
	}
	return nil
}

// query runs a chain select and loads the related rows for every result
func (r *ChainRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.ApprovalChain, error) {
	exec := sqlite.Executor(ctx, r.db)

	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query approval chains: %w", err)
	}

	var chains []*entity.ApprovalChain
	for rows.Next() {
		chain, err := scanChain(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		chains = append(chains, chain)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate approval chains: %w", err)
	}
	rows.Close()

	if len(chains) == 0 {
		return chains, nil
	}
	if err := r.loadRelations(ctx, exec, chains); err != nil {
		return nil, err
	}
	return chains, nil
}

func scanChain(row rowScanner) (*entity.ApprovalChain, error) {
	var c entity.ApprovalChain
	var approverID, groupID, maxCents sql.NullInt64
	var minCents int64
	var validFrom, validTo sql.NullString

	if err := row.Scan(
		&c.ID,
		&c.Name,
		&c.ApproverMode,
		&approverID,
		&groupID,
		&c.GroupMode,
		&c.SequenceNumber,
		&minCents,
		&maxCents,
		&c.Active,
		&validFrom,
		&validTo,
		&c.HeaderRuleLogic,
		&c.LineRuleLogic,
		&c.CrossRuleLogic,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to scan approval chain: %w", err)
	}

	c.ApproverID = fromNullInt64(approverID)
	c.ApproverGroupID = fromNullInt64(groupID)
	c.MinAmount = fromCents(minCents)
	c.MaxAmount = fromNullCents(maxCents)

	var err error
	if c.ValidFrom, err = fromNullDate(validFrom); err != nil {
		return nil, err
	}
	if c.ValidTo, err = fromNullDate(validTo); err != nil {
		return nil, err
	}
	return &c, nil
}

// loadRelations attaches approvers, groups with members and rules
func (r *ChainRepository) loadRelations(ctx context.Context, exec sqlite.QueryExecutor, chains []*entity.ApprovalChain) error {
	chainIDs := make([]int64, 0, len(chains))
	var approverIDs, groupIDs []int64
	for _, c := range chains {
		chainIDs = append(chainIDs, c.ID)
		if c.ApproverID != nil {
			approverIDs = append(approverIDs, *c.ApproverID)
		}
		if c.ApproverGroupID != nil {
			groupIDs = append(groupIDs, *c.ApproverGroupID)
		}
	}

	approvers, err := r.loadUsers(ctx, exec, approverIDs)
	if err != nil {
		return err
	}
	groups, err := r.loadGroups(ctx, exec, groupIDs)
	if err != nil {
		return err
	}
	headerRules, err := r.loadHeaderRules(ctx, exec, chainIDs)
	if err != nil {
		return err
	}
	lineRules, err := r.loadLineRules(ctx, exec, chainIDs)
	if err != nil {
		return err
	}

	for _, c := range chains {
		if c.ApproverID != nil {
			c.Approver = approvers[*c.ApproverID]
		}
		if c.ApproverGroupID != nil {
			c.ApproverGroup = groups[*c.ApproverGroupID]
		}
		c.HeaderRules = headerRules[c.ID]
		c.LineRules = lineRules[c.ID]
	}
	return nil
}

func (r *ChainRepository) loadUsers(ctx context.Context, exec sqlite.QueryExecutor, ids []int64) (map[int64]*entity.User, error) {
	users := make(map[int64]*entity.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE id IN (` + placeholders(len(ids)) + `)`
	rows, err := exec.QueryContext(ctx, query, int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to load chain approvers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chain approver: %w", err)
		}
		users[u.ID] = u
	}
	return users, rows.Err()
}

// loadGroups returns live groups only; a chain pointing at a deleted group
// is left without one.
func (r *ChainRepository) loadGroups(ctx context.Context, exec sqlite.QueryExecutor, ids []int64) (map[int64]*entity.ApprovalGroup, error) {
	groups := make(map[int64]*entity.ApprovalGroup, len(ids))
	if len(ids) == 0 {
		return groups, nil
	}

	query := `
		SELECT id, name, description, created_at, updated_at
		FROM approval_groups
		WHERE ` + liveFilter("") + ` AND id IN (` + placeholders(len(ids)) + `)
	`
	rows, err := exec.QueryContext(ctx, query, int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to load approval groups: %w", err)
	}

	var found []int64
	for rows.Next() {
		var g entity.ApprovalGroup
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.CreatedAt, &g.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan approval group: %w", err)
		}
		groups[g.ID] = &g
		found = append(found, g.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(found) == 0 {
		return groups, nil
	}
	members, err := loadGroupMembers(ctx, exec, found)
	if err != nil {
		return nil, err
	}
	for id, g := range groups {
		g.Members = members[id]
	}
	return groups, nil
}

func (r *ChainRepository) loadHeaderRules(ctx context.Context, exec sqlite.QueryExecutor, chainIDs []int64) (map[int64][]*entity.HeaderRule, error) {
	query := `
		SELECT id, approval_chain_id, field, lookup, value, created_at, updated_at
		FROM approval_chain_header_rules
		WHERE approval_chain_id IN (` + placeholders(len(chainIDs)) + `)
		ORDER BY id ASC
	`
	rows, err := exec.QueryContext(ctx, query, int64Args(chainIDs)...)
	if err != nil {
		return nil, fmt.Errorf("failed to load header rules: %w", err)
	}
	defer rows.Close()

	rules := make(map[int64][]*entity.HeaderRule)
	for rows.Next() {
		var rule entity.HeaderRule
		var raw string
		if err := rows.Scan(&rule.ID, &rule.ChainID, &rule.Field, &rule.Lookup, &raw, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan header rule: %w", err)
		}
		if rule.Value, err = decodeValues(raw); err != nil {
			return nil, err
		}
		rules[rule.ChainID] = append(rules[rule.ChainID], &rule)
	}
	return rules, rows.Err()
}

func (r *ChainRepository) loadLineRules(ctx context.Context, exec sqlite.QueryExecutor, chainIDs []int64) (map[int64][]*entity.LineRule, error) {
	query := `
		SELECT id, approval_chain_id, field, lookup, value, match_mode, created_at, updated_at
		FROM approval_chain_line_rules
		WHERE approval_chain_id IN (` + placeholders(len(chainIDs)) + `)
		ORDER BY id ASC
	`
	rows, err := exec.QueryContext(ctx, query, int64Args(chainIDs)...)
	if err != nil {
		return nil, fmt.Errorf("failed to load line rules: %w", err)
	}
	defer rows.Close()

	rules := make(map[int64][]*entity.LineRule)
	for rows.Next() {
		var rule entity.LineRule
		var raw string
		if err := rows.Scan(&rule.ID, &rule.ChainID, &rule.Field, &rule.Lookup, &raw, &rule.MatchMode, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan line rule: %w", err)
		}
		if rule.Value, err = decodeValues(raw); err != nil {
			return nil, err
		}
		rules[rule.ChainID] = append(rules[rule.ChainID], &rule)
	}
	return rules, rows.Err()
}

var _ port.ChainRepository = (*ChainRepository)(nil)
