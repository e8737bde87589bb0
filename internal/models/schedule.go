package models

import (
	"time"

	"github.com/google/uuid"
)

// LayoutType identifies a bus seat arrangement
type LayoutType string

const (
	LayoutTwoPlusOne    LayoutType = "2x1"         // A B | C
	LayoutTwoPlusTwo    LayoutType = "2x2"         // A B | C D
	LayoutOnePlusOne    LayoutType = "1x1"         // A | B (single sleeper)
	LayoutSleeperDouble LayoutType = "2x2_sleeper" // lower deck L1.., upper deck U1..
	LayoutLastRowFive   LayoutType = "last_row_5"  // 2x2 with a five seat back row
)

// Schedule is one departure of a bus on a route with its own seat inventory
type Schedule struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	RouteName   string     `json:"route_name" db:"route_name"`
	BusNumber   string     `json:"bus_number" db:"bus_number"`
	LayoutType  LayoutType `json:"layout_type" db:"layout_type"`
	SeatCount   int        `json:"seat_count" db:"seat_count"`
	DepartureAt time.Time  `json:"departure_at" db:"departure_at"`
	Fare        float64    `json:"fare" db:"fare"`
	IsReturn    bool       `json:"is_return" db:"is_return"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// HasDeparted reports whether the schedule left before now
func (s *Schedule) HasDeparted(now time.Time) bool {
	return s.DepartureAt.Before(now)
}

// Seat is a single bookable unit of a schedule
type Seat struct {
	ID         uuid.UUID `json:"id" db:"id"`
	ScheduleID uuid.UUID `json:"schedule_id" db:"schedule_id"`
	SeatNumber string    `json:"seat_number" db:"seat_number"`
	RowNumber  int       `json:"row_number" db:"row_number"`
	Position   int       `json:"position" db:"position"`
	IsBooked   bool      `json:"is_booked" db:"is_booked"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// SeatSpec is one generated seat label with its grid position
type SeatSpec struct {
	Label    string `json:"label"`
	Row      int    `json:"row"`
	Position int    `json:"position"`
}

// SeatState is the availability of a seat at a point in time
type SeatState string

const (
	SeatStateAvailable SeatState = "available"
	SeatStateHeld      SeatState = "held"
	SeatStateBooked    SeatState = "booked"
)

// SeatAvailability is a row of the seat map returned to clients
type SeatAvailability struct {
	SeatNumber string    `json:"seat_number"`
	RowNumber  int       `json:"row_number"`
	Position   int       `json:"position"`
	State      SeatState `json:"state"`
}

// SeatMap is the availability of all seats of a schedule
type SeatMap struct {
	ScheduleID  uuid.UUID          `json:"schedule_id"`
	Available   int                `json:"available"`
	Seats       []SeatAvailability `json:"seats"`
	GeneratedAt time.Time          `json:"generated_at"`
}

// CreateScheduleRequest is the admin request to open a new departure
type CreateScheduleRequest struct {
	RouteName   string     `json:"route_name" binding:"required"`
	BusNumber   string     `json:"bus_number" binding:"required"`
	LayoutType  LayoutType `json:"layout_type" binding:"required"`
	SeatCount   int        `json:"seat_count" binding:"required,min=1,max=80"`
	DepartureAt time.Time  `json:"departure_at" binding:"required"`
	Fare        float64    `json:"fare" binding:"required,gt=0"`
	IsReturn    bool       `json:"is_return"`
}

// ScheduleResponse is a schedule with its seat labels
type ScheduleResponse struct {
	Schedule *Schedule `json:"schedule"`
	Seats    []Seat    `json:"seats"`
}
