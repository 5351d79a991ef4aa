package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"hostel_app/internal/models"
)

// GormSettlementStore is the Postgres backed SettlementStore
type GormSettlementStore struct {
	db *gorm.DB
}

func NewGormSettlementStore(db *gorm.DB) *GormSettlementStore {
	return &GormSettlementStore{db: db}
}

func (s *GormSettlementStore) FindStudentByEmail(ctx context.Context, email string) (*models.Student, error) {
	var student models.Student
	err := s.db.WithContext(ctx).Where("LOWER(email) = LOWER(?)", email).First(&student).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &student, nil
}

func (s *GormSettlementStore) CreateStudent(ctx context.Context, student *models.Student) error {
	return s.db.WithContext(ctx).Create(student).Error
}

func (s *GormSettlementStore) FindFeeBySession(ctx context.Context, sessionID string) (*models.Fee, error) {
	var fee models.Fee
	err := s.db.WithContext(ctx).Preload("Student").Where("payment_session_id = ?", sessionID).First(&fee).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &fee, nil
}

// FindRecentPaidFee returns the newest paid fee of the student for amount created at or after since
func (s *GormSettlementStore) FindRecentPaidFee(ctx context.Context, studentID uuid.UUID, amount decimal.Decimal, since time.Time) (*models.Fee, error) {
	var fee models.Fee
	err := s.db.WithContext(ctx).
		Preload("Student").
		Where("student_id = ? AND amount = ? AND status = ? AND created_at >= ?", studentID, amount, models.FeeStatusPaid, since).
		Order("created_at desc").
		First(&fee).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &fee, nil
}

// InsertFee relies on the unique payment_session_id index: a conflicting insert affects no rows
func (s *GormSettlementStore) InsertFee(ctx context.Context, fee *models.Fee) (bool, error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "payment_session_id"}},
			DoNothing: true,
		}).
		Create(fee)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *GormSettlementStore) GetFee(ctx context.Context, id uuid.UUID) (*models.Fee, error) {
	var fee models.Fee
	err := s.db.WithContext(ctx).Preload("Student").First(&fee, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &fee, nil
}
