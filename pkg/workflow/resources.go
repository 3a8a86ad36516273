package workflow

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateMilestone creates a new milestone
func (s *Store) CreateMilestone(ctx context.Context, m *Milestone) error {
	now := time.Now()
	m.CreatedAt = now
	m.UpdatedAt = now
	query := `
		INSERT INTO milestones (organization_id, name, description, due_date, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	err := s.db.QueryRowContext(ctx, query,
		m.OrganizationID, m.Name, m.Description, m.DueDate, m.CreatedBy, m.CreatedAt, m.UpdatedAt).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("failed to create milestone: %w", err)
	}
	return nil
}

// GetMilestone retrieves a milestone by ID
func (s *Store) GetMilestone(ctx context.Context, id int64) (*Milestone, error) {
	query := `
		SELECT id, organization_id, name, description, due_date, created_by, created_at, updated_at
		FROM milestones
		WHERE id = $1`
	m := &Milestone{}
	var description sql.NullString
	var createdBy sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&m.ID, &m.OrganizationID, &m.Name, &description, &m.DueDate, &createdBy, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get milestone: %w", err)
	}
	m.Description = description.String
	m.CreatedBy = createdBy.Int64
	return m, nil
}

// UpdateMilestone updates a milestone
func (s *Store) UpdateMilestone(ctx context.Context, m *Milestone) error {
	m.UpdatedAt = time.Now()
	query := `
		UPDATE milestones
		SET name = $1, description = $2, due_date = $3, updated_at = $4
		WHERE id = $5`
	result, err := s.db.ExecContext(ctx, query, m.Name, m.Description, m.DueDate, m.UpdatedAt, m.ID)
	if err != nil {
		return fmt.Errorf("failed to update milestone: %w", err)
	}
	return checkAffected(result)
}

// DeleteMilestone deletes a milestone
func (s *Store) DeleteMilestone(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM milestones WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete milestone: %w", err)
	}
	return checkAffected(result)
}

// ListMilestones lists milestones of organizations visible through the filter.
// Milestones hang directly off an organization, so program-only visibility
// does not reach them.
func (s *Store) ListMilestones(ctx context.Context, f Filter) ([]*Milestone, error) {
	if f.IsEmpty() {
		return []*Milestone{}, nil
	}
	query := `
		SELECT id, organization_id, name, description, due_date, created_by, created_at, updated_at
		FROM milestones`
	var args []interface{}
	if !f.All {
		if len(f.OrgIDs) == 0 {
			return []*Milestone{}, nil
		}
		query += " WHERE " + inClause("organization_id", f.OrgIDs, &args)
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list milestones: %w", err)
	}
	defer rows.Close()

	milestones := []*Milestone{}
	for rows.Next() {
		m := &Milestone{}
		var description sql.NullString
		var createdBy sql.NullInt64
		if err := rows.Scan(&m.ID, &m.OrganizationID, &m.Name, &description, &m.DueDate, &createdBy, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan milestone: %w", err)
		}
		m.Description = description.String
		m.CreatedBy = createdBy.Int64
		milestones = append(milestones, m)
	}
	return milestones, rows.Err()
}

// CreateRiskRegister creates a new risk register entry
func (s *Store) CreateRiskRegister(ctx context.Context, r *RiskRegister) error {
	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now
	query := `
		INSERT INTO risk_registers (project_id, name, description, likelihood, impact, mitigation, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`
	err := s.db.QueryRowContext(ctx, query,
		r.ProjectID, r.Name, r.Description, r.Likelihood, r.Impact, r.Mitigation, r.CreatedBy, r.CreatedAt, r.UpdatedAt).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("failed to create risk register: %w", err)
	}
	return nil
}

// GetRiskRegister retrieves a risk register entry by ID
func (s *Store) GetRiskRegister(ctx context.Context, id int64) (*RiskRegister, error) {
	query := `
		SELECT id, project_id, name, description, likelihood, impact, mitigation, created_by, created_at, updated_at
		FROM risk_registers
		WHERE id = $1`
	r := &RiskRegister{}
	var description, mitigation sql.NullString
	var createdBy sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&r.ID, &r.ProjectID, &r.Name, &description, &r.Likelihood, &r.Impact, &mitigation, &createdBy, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get risk register: %w", err)
	}
	r.Description = description.String
	r.Mitigation = mitigation.String
	r.CreatedBy = createdBy.Int64
	return r, nil
}

// UpdateRiskRegister updates a risk register entry
func (s *Store) UpdateRiskRegister(ctx context.Context, r *RiskRegister) error {
	r.UpdatedAt = time.Now()
	query := `
		UPDATE risk_registers
		SET name = $1, description = $2, likelihood = $3, impact = $4, mitigation = $5, updated_at = $6
		WHERE id = $7`
	result, err := s.db.ExecContext(ctx, query, r.Name, r.Description, r.Likelihood, r.Impact, r.Mitigation, r.UpdatedAt, r.ID)
	if err != nil {
		return fmt.Errorf("failed to update risk register: %w", err)
	}
	return checkAffected(result)
}

// DeleteRiskRegister deletes a risk register entry
func (s *Store) DeleteRiskRegister(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM risk_registers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete risk register: %w", err)
	}
	return checkAffected(result)
}

// ListRiskRegisters lists risk register entries reachable through the
// filter. The organization is reached transitively: risk register ->
// project -> program -> organization.
func (s *Store) ListRiskRegisters(ctx context.Context, f Filter) ([]*RiskRegister, error) {
	if f.IsEmpty() {
		return []*RiskRegister{}, nil
	}
	query := `
		SELECT r.id, r.project_id, r.name, r.description, r.likelihood, r.impact, r.mitigation, r.created_by, r.created_at, r.updated_at
		FROM risk_registers r`
	var args []interface{}
	if !f.All {
		query += `
		JOIN projects p ON p.id = r.project_id
		JOIN programs pr ON pr.id = p.program_id
		WHERE ` + scopeClause("pr.organization_id", "p.program_id", f, &args)
	}
	query += " ORDER BY r.id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list risk registers: %w", err)
	}
	defer rows.Close()

	risks := []*RiskRegister{}
	for rows.Next() {
		r := &RiskRegister{}
		var description, mitigation sql.NullString
		var createdBy sql.NullInt64
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.Name, &description, &r.Likelihood, &r.Impact, &mitigation, &createdBy, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan risk register: %w", err)
		}
		r.Description = description.String
		r.Mitigation = mitigation.String
		r.CreatedBy = createdBy.Int64
		risks = append(risks, r)
	}
	return risks, rows.Err()
}

// CreateIndicator creates a new indicator
func (s *Store) CreateIndicator(ctx context.Context, i *Indicator) error {
	now := time.Now()
	i.CreatedAt = now
	i.UpdatedAt = now
	query := `
		INSERT INTO indicators (program_id, name, description, number, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	err := s.db.QueryRowContext(ctx, query,
		i.ProgramID, i.Name, i.Description, i.Number, i.CreatedBy, i.CreatedAt, i.UpdatedAt).Scan(&i.ID)
	if err != nil {
		return fmt.Errorf("failed to create indicator: %w", err)
	}
	return nil
}

// GetIndicator retrieves an indicator by ID
func (s *Store) GetIndicator(ctx context.Context, id int64) (*Indicator, error) {
	query := `
		SELECT id, program_id, name, description, number, created_by, created_at, updated_at
		FROM indicators
		WHERE id = $1`
	i := &Indicator{}
	var description, number sql.NullString
	var createdBy sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&i.ID, &i.ProgramID, &i.Name, &description, &number, &createdBy, &i.CreatedAt, &i.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get indicator: %w", err)
	}
	i.Description = description.String
	i.Number = number.String
	i.CreatedBy = createdBy.Int64
	return i, nil
}

// UpdateIndicator updates an indicator
func (s *Store) UpdateIndicator(ctx context.Context, i *Indicator) error {
	i.UpdatedAt = time.Now()
	query := `
		UPDATE indicators
		SET name = $1, description = $2, number = $3, updated_at = $4
		WHERE id = $5`
	result, err := s.db.ExecContext(ctx, query, i.Name, i.Description, i.Number, i.UpdatedAt, i.ID)
	if err != nil {
		return fmt.Errorf("failed to update indicator: %w", err)
	}
	return checkAffected(result)
}

// DeleteIndicator deletes an indicator
func (s *Store) DeleteIndicator(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM indicators WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete indicator: %w", err)
	}
	return checkAffected(result)
}

// ListIndicators lists indicators on programs visible through the filter
func (s *Store) ListIndicators(ctx context.Context, f Filter) ([]*Indicator, error) {
	if f.IsEmpty() {
		return []*Indicator{}, nil
	}
	query := `
		SELECT i.id, i.program_id, i.name, i.description, i.number, i.created_by, i.created_at, i.updated_at
		FROM indicators i`
	var args []interface{}
	if !f.All {
		query += `
		JOIN programs pr ON pr.id = i.program_id
		WHERE ` + scopeClause("pr.organization_id", "i.program_id", f, &args)
	}
	query += " ORDER BY i.id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list indicators: %w", err)
	}
	defer rows.Close()

	indicators := []*Indicator{}
	for rows.Next() {
		i := &Indicator{}
		var description, number sql.NullString
		var createdBy sql.NullInt64
		if err := rows.Scan(&i.ID, &i.ProgramID, &i.Name, &description, &number, &createdBy, &i.CreatedAt, &i.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan indicator: %w", err)
		}
		i.Description = description.String
		i.Number = number.String
		i.CreatedBy = createdBy.Int64
		indicators = append(indicators, i)
	}
	return indicators, rows.Err()
}

// CreateCollectedData creates a new collected data point
func (s *Store) CreateCollectedData(ctx context.Context, c *CollectedData) error {
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	query := `
		INSERT INTO collected_data (indicator_id, achieved, description, collection_date, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	err := s.db.QueryRowContext(ctx, query,
		c.IndicatorID, c.Achieved, c.Description, c.CollectionDate, c.CreatedBy, c.CreatedAt, c.UpdatedAt).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("failed to create collected data: %w", err)
	}
	return nil
}

// GetCollectedData retrieves a collected data point by ID
func (s *Store) GetCollectedData(ctx context.Context, id int64) (*CollectedData, error) {
	query := `
		SELECT id, indicator_id, achieved, description, collection_date, created_by, created_at, updated_at
		FROM collected_data
		WHERE id = $1`
	c := &CollectedData{}
	var description sql.NullString
	var createdBy sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.IndicatorID, &c.Achieved, &description, &c.CollectionDate, &createdBy, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get collected data: %w", err)
	}
	c.Description = description.String
	c.CreatedBy = createdBy.Int64
	return c, nil
}

// UpdateCollectedData updates a collected data point
func (s *Store) UpdateCollectedData(ctx context.Context, c *CollectedData) error {
	c.UpdatedAt = time.Now()
	query := `
		UPDATE collected_data
		SET achieved = $1, description = $2, collection_date = $3, updated_at = $4
		WHERE id = $5`
	result, err := s.db.ExecContext(ctx, query, c.Achieved, c.Description, c.CollectionDate, c.UpdatedAt, c.ID)
	if err != nil {
		return fmt.Errorf("failed to update collected data: %w", err)
	}
	return checkAffected(result)
}

// DeleteCollectedData deletes a collected data point
func (s *Store) DeleteCollectedData(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM collected_data WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete collected data: %w", err)
	}
	return checkAffected(result)
}

// ListCollectedData lists data points whose indicator's program is visible
// through the filter
func (s *Store) ListCollectedData(ctx context.Context, f Filter) ([]*CollectedData, error) {
	if f.IsEmpty() {
		return []*CollectedData{}, nil
	}
	query := `
		SELECT c.id, c.indicator_id, c.achieved, c.description, c.collection_date, c.created_by, c.created_at, c.updated_at
		FROM collected_data c`
	var args []interface{}
	if !f.All {
		query += `
		JOIN indicators i ON i.id = c.indicator_id
		JOIN programs pr ON pr.id = i.program_id
		WHERE ` + scopeClause("pr.organization_id", "i.program_id", f, &args)
	}
	query += " ORDER BY c.id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list collected data: %w", err)
	}
	defer rows.Close()

	data := []*CollectedData{}
	for rows.Next() {
		c := &CollectedData{}
		var description sql.NullString
		var createdBy sql.NullInt64
		if err := rows.Scan(&c.ID, &c.IndicatorID, &c.Achieved, &description, &c.CollectionDate, &createdBy, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan collected data: %w", err)
		}
		c.Description = description.String
		c.CreatedBy = createdBy.Int64
		data = append(data, c)
	}
	return data, rows.Err()
}
