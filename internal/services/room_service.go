package services

import (
	"context"
	"errors"
	"slices"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"hostel_app/internal/models"
)

var (
	ErrStudentNotFound = errors.New("student not found")
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomNotEmpty    = errors.New("room still has occupants")
	ErrNoRoomAssigned  = errors.New("student has no room")
)

// RoomService keeps room occupancy and students' room numbers consistent
type RoomService struct {
	db *gorm.DB
}

func NewRoomService(db *gorm.DB) *RoomService {
	return &RoomService{db: db}
}

// Allocate moves a student into roomNumber, releasing the bed in their previous room
func (s *RoomService) Allocate(ctx context.Context, studentID uuid.UUID, roomNumber int) (*models.Room, error) {
	var room models.Room
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		student, err := lockStudent(tx, studentID)
		if err != nil {
			return err
		}

		if student.RoomNumber != nil && *student.RoomNumber == roomNumber {
			return lockRoom(tx, roomNumber, &room)
		}

		// Rooms are locked in ascending number so two students swapping rooms cannot deadlock.
		order := []int{roomNumber}
		if student.RoomNumber != nil {
			order = append(order, *student.RoomNumber)
			slices.Sort(order)
		}
		var previous *models.Room
		for _, n := range order {
			if n == roomNumber {
				if err := lockRoom(tx, n, &room); err != nil {
					return err
				}
				continue
			}
			var p models.Room
			err := lockRoom(tx, n, &p)
			switch {
			case errors.Is(err, ErrRoomNotFound):
			case err != nil:
				return err
			default:
				previous = &p
			}
		}

		if previous != nil {
			if err := previous.Release(); err == nil {
				if err := tx.Save(previous).Error; err != nil {
					return err
				}
			}
		}

		if err := room.Occupy(); err != nil {
			return err
		}
		if err := tx.Save(&room).Error; err != nil {
			return err
		}
		return tx.Model(student).Update("room_number", roomNumber).Error
	})
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// Release takes the student out of their room
func (s *RoomService) Release(ctx context.Context, studentID uuid.UUID) (*models.Room, error) {
	var room models.Room
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		student, err := lockStudent(tx, studentID)
		if err != nil {
			return err
		}
		if student.RoomNumber == nil {
			return ErrNoRoomAssigned
		}

		err = lockRoom(tx, *student.RoomNumber, &room)
		switch {
		case errors.Is(err, ErrRoomNotFound):
		case err != nil:
			return err
		default:
			if err := room.Release(); err != nil {
				return err
			}
			if err := tx.Save(&room).Error; err != nil {
				return err
			}
		}
		return tx.Model(student).Update("room_number", nil).Error
	})
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// DeleteRoom removes a room nobody lives in
func (s *RoomService) DeleteRoom(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var room models.Room
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&room, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRoomNotFound
		}
		if err != nil {
			return err
		}

		var occupants int64
		if err := tx.Model(&models.Student{}).Where("room_number = ?", room.RoomNumber).Count(&occupants).Error; err != nil {
			return err
		}
		if room.CurrentOccupancy > 0 || occupants > 0 {
			return ErrRoomNotEmpty
		}
		return tx.Delete(&room).Error
	})
}

func lockStudent(tx *gorm.DB, id uuid.UUID) (*models.Student, error) {
	var student models.Student
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&student, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrStudentNotFound
	}
	return &student, err
}

func lockRoom(tx *gorm.DB, roomNumber int, room *models.Room) error {
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("room_number = ?", roomNumber).First(room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRoomNotFound
	}
	return err
}
