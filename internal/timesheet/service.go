package timesheet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pusulahq/pusula/backend/internal/store"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	// ErrEmployeeNotFound indicates the requested employee does not exist.
	ErrEmployeeNotFound = errors.New("timesheet: employee not found")
)

// ServiceConfig describes the dependencies of the timesheet service.
type ServiceConfig struct {
	Database *gorm.DB
	Config   Config
}

// Service loads source data for a month and runs the pure generator
// over it. Nothing derived here is persisted.
type Service struct {
	db  *gorm.DB
	cfg Config
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("timesheet: %w", errMissingDatabase)
	}
	return &Service{db: cfg.Database, cfg: cfg.Config.withDefaults()}, nil
}

// Employee loads a single employee record by identifier.
func (s *Service) Employee(ctx context.Context, employeeID string) (store.Employee, error) {
	var employee store.Employee
	err := s.db.WithContext(ctx).Where("record_id = ?", employeeID).Take(&employee).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.Employee{}, ErrEmployeeNotFound
	}
	if err != nil {
		return store.Employee{}, err
	}
	return employee, nil
}

// GenerateMonth computes the employee's timesheet for the given month
// from location pings and approved leave records.
func (s *Service) GenerateMonth(ctx context.Context, employeeID string, year int, month time.Month) ([]Entry, error) {
	var employee store.Employee
	err := s.db.WithContext(ctx).Where("record_id = ?", employeeID).Take(&employee).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEmployeeNotFound
	}
	if err != nil {
		return nil, err
	}

	monthStart := time.Date(year, month, 1, 0, 0, 0, 0, s.cfg.Location)
	monthEnd := monthStart.AddDate(0, 1, 0)

	var pings []store.LocationPing
	if err := s.db.WithContext(ctx).
		Where("employee_id = ? AND recorded_at_s >= ? AND recorded_at_s < ?",
			employeeID, monthStart.Unix(), monthEnd.Unix()).
		Order("recorded_at_s ASC").
		Find(&pings).Error; err != nil {
		return nil, err
	}

	lastDay := monthEnd.AddDate(0, 0, -1).Format("2006-01-02")
	var leaves []store.LeaveRequest
	if err := s.db.WithContext(ctx).
		Where("employee_id = ? AND status = ? AND start_date <= ? AND end_date >= ?",
			employeeID, store.LeaveStatusApproved, lastDay, monthStart.Format("2006-01-02")).
		Find(&leaves).Error; err != nil {
		return nil, err
	}

	return Generate(s.cfg, Input{
		EmployeeID: employeeID,
		Year:       year,
		Month:      month,
		Pings:      pings,
		Leaves:     leaves,
	}), nil
}
