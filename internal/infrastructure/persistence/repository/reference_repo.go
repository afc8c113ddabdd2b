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

// ProjectRepository implements port.ProjectRepository
type ProjectRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewProjectRepository creates a new project repository
func NewProjectRepository(db *sql.DB, logger *zap.Logger) port.ProjectRepository {
	return &ProjectRepository{db: db, logger: logger}
}

// Create inserts a project
func (r *ProjectRepository) Create(ctx context.Context, project *entity.Project) error {
	query := `INSERT INTO projects (name, code, description, created_at) VALUES (?, ?, ?, ?)`

	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		project.Name, project.Code, project.Description, time.Now())
	if err != nil {
		r.logger.Error("Failed to create project", zap.String("name", project.Name), zap.Error(err))
		return fmt.Errorf("failed to create project: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	project.ID = id
	return nil
}

// GetByID retrieves a live project
func (r *ProjectRepository) GetByID(ctx context.Context, id int64) (*entity.Project, error) {
	query := `SELECT id, name, code, description FROM projects WHERE id = ? AND ` + liveFilter("")

	var p entity.Project
	err := sqlite.Executor(ctx, r.db).QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Name, &p.Code, &p.Description)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get project", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &p, nil
}

// AddressRepository implements port.AddressRepository
type AddressRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAddressRepository creates a new ship-to address repository
func NewAddressRepository(db *sql.DB, logger *zap.Logger) port.AddressRepository {
	return &AddressRepository{db: db, logger: logger}
}

const addressColumns = `id, code, name, description, attention, street1, street2, city, state,
	zip_code, country, phone, delivery_instructions`

// Create inserts an address
func (r *AddressRepository) Create(ctx context.Context, a *entity.Address) error {
	query := `
		INSERT INTO addresses (
			code, name, description, attention, street1, street2, city, state,
			zip_code, country, phone, delivery_instructions, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		a.Code,
		a.Name,
		a.Description,
		a.Attention,
		a.Street1,
		a.Street2,
		a.City,
		a.State,
		a.ZipCode,
		a.Country,
		a.Phone,
		a.DeliveryInstructions,
		time.Now(),
	)
	if err != nil {
		r.logger.Error("Failed to create address", zap.String("code", a.Code), zap.Error(err))
		return fmt.Errorf("failed to create address: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	a.ID = id
	return nil
}

// GetByID retrieves a live address
func (r *AddressRepository) GetByID(ctx context.Context, id int64) (*entity.Address, error) {
	query := `SELECT ` + addressColumns + ` FROM addresses WHERE id = ? AND ` + liveFilter("")

	a, err := scanAddress(sqlite.Executor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get address", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get address: %w", err)
	}
	return a, nil
}

func scanAddress(row rowScanner) (*entity.Address, error) {
	var a entity.Address
	if err := row.Scan(
		&a.ID,
		&a.Code,
		&a.Name,
		&a.Description,
		&a.Attention,
		&a.Street1,
		&a.Street2,
		&a.City,
		&a.State,
		&a.ZipCode,
		&a.Country,
		&a.Phone,
		&a.DeliveryInstructions,
	); err != nil {
		return nil, err
	}
	return &a, nil
}

var (
	_ port.ProjectRepository = (*ProjectRepository)(nil)
	_ port.AddressRepository = (*AddressRepository)(nil)
)
