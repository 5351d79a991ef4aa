package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RoomStatus represents the availability of a room
type RoomStatus string

const (
	RoomStatusAvailable   RoomStatus = "available"
	RoomStatusOccupied    RoomStatus = "occupied"
	RoomStatusMaintenance RoomStatus = "maintenance"
)

var (
	ErrRoomFull          = errors.New("room is full")
	ErrRoomInMaintenance = errors.New("room is under maintenance")
	ErrRoomEmpty         = errors.New("room has no occupants")
)

// Room is a bookable hostel room
type Room struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	RoomNumber       int        `gorm:"uniqueIndex;not null" json:"room_number"`
	Floor            *int       `json:"floor"`
	Capacity         int        `gorm:"not null;default:1" json:"capacity"`
	CurrentOccupancy int        `gorm:"not null;default:0" json:"current_occupancy"`
	Status           RoomStatus `gorm:"type:varchar(20);not null;default:'available';index" json:"status"`
}

// BeforeCreate assigns the primary key when the caller did not
func (r *Room) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Occupy takes one bed in the room
func (r *Room) Occupy() error {
	if r.Status == RoomStatusMaintenance {
		return ErrRoomInMaintenance
	}
	if r.CurrentOccupancy >= r.Capacity {
		return ErrRoomFull
	}
	r.CurrentOccupancy++
	r.refreshStatus()
	return nil
}

// Release frees one bed in the room
func (r *Room) Release() error {
	if r.CurrentOccupancy <= 0 {
		return ErrRoomEmpty
	}
	r.CurrentOccupancy--
	r.refreshStatus()
	return nil
}

// refreshStatus keeps occupied/available in line with occupancy. Maintenance is only left manually.
func (r *Room) refreshStatus() {
	if r.Status == RoomStatusMaintenance {
		return
	}
	if r.CurrentOccupancy >= r.Capacity {
		r.Status = RoomStatusOccupied
	} else {
		r.Status = RoomStatusAvailable
	}
}
