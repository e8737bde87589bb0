package services

import (
	"fmt"

	"github.com/nipeshtamang/ebus-sub002/internal/domain"
	"github.com/nipeshtamang/ebus-sub002/internal/models"
)

// MaxSeatsPerSchedule bounds generated inventories
const MaxSeatsPerSchedule = 80

// seatGrid is one row shape: a column letter per seat and its position on the
// row, with gaps for the aisle
type seatGrid struct {
	columns   []string
	positions []int
}

var (
	gridTwoPlusOne = seatGrid{columns: []string{"A", "B", "C"}, positions: []int{1, 2, 4}}
	gridTwoPlusTwo = seatGrid{columns: []string{"A", "B", "C", "D"}, positions: []int{1, 2, 4, 5}}
	gridOnePlusOne = seatGrid{columns: []string{"A", "B"}, positions: []int{1, 3}}
	gridBackRow    = seatGrid{columns: []string{"A", "B", "C", "D", "E"}, positions: []int{1, 2, 3, 4, 5}}
)

// layoutStrategy generates exactly seatCount specs
type layoutStrategy func(seatCount int) []models.SeatSpec

var layoutStrategies = map[models.LayoutType]layoutStrategy{
	models.LayoutTwoPlusOne: func(n int) []models.SeatSpec { return fillRows(gridTwoPlusOne, n, 1) },
	models.LayoutTwoPlusTwo: func(n int) []models.SeatSpec { return fillRows(gridTwoPlusTwo, n, 1) },
	models.LayoutOnePlusOne: func(n int) []models.SeatSpec { return fillRows(gridOnePlusOne, n, 1) },
	models.LayoutSleeperDouble: sleeperDecks,
	models.LayoutLastRowFive:   lastRowFive,
}

// GenerateSeats returns the seat labels of a layout. Labels are unique by
// construction and len(result) == seatCount.
func GenerateSeats(layout models.LayoutType, seatCount int) ([]models.SeatSpec, error) {
	strategy, ok := layoutStrategies[layout]
	if !ok {
		return nil, domain.ValidationError{Field: "layout_type", Msg: fmt.Sprintf("unknown layout %q", layout)}
	}
	if seatCount <= 0 {
		return nil, domain.ValidationError{Field: "seat_count", Msg: "must be positive"}
	}
	if seatCount > MaxSeatsPerSchedule {
		return nil, domain.ValidationError{
			Field: "seat_count",
			Msg:   fmt.Sprintf("must not exceed %d", MaxSeatsPerSchedule),
		}
	}

	return strategy(seatCount), nil
}

// SupportedLayouts lists the layout identifiers GenerateSeats accepts
func SupportedLayouts() []models.LayoutType {
	return []models.LayoutType{
		models.LayoutTwoPlusOne,
		models.LayoutTwoPlusTwo,
		models.LayoutOnePlusOne,
		models.LayoutSleeperDouble,
		models.LayoutLastRowFive,
	}
}

// fillRows lays n seats out row by row starting at firstRow; the last row may
// be partial. Labels are <row><column>, e.g. 3A.
func fillRows(grid seatGrid, n, firstRow int) []models.SeatSpec {
	specs := make([]models.SeatSpec, 0, n)
	perRow := len(grid.columns)
	for i := 0; i < n; i++ {
		row := firstRow + i/perRow
		col := i % perRow
		specs = append(specs, models.SeatSpec{
			Label:    fmt.Sprintf("%d%s", row, grid.columns[col]),
			Row:      row,
			Position: grid.positions[col],
		})
	}
	return specs
}

// sleeperDecks fills the lower deck (L1..) with the larger half and the upper
// deck (U1..) with the rest. Two berths per row with the aisle between them;
// upper deck rows are numbered after the lower deck.
func sleeperDecks(n int) []models.SeatSpec {
	lower := (n + 1) / 2
	upper := n - lower

	specs := make([]models.SeatSpec, 0, n)
	for i := 0; i < lower; i++ {
		specs = append(specs, models.SeatSpec{
			Label:    fmt.Sprintf("L%d", i+1),
			Row:      i/2 + 1,
			Position: gridOnePlusOne.positions[i%2],
		})
	}

	lowerRows := (lower + 1) / 2
	for i := 0; i < upper; i++ {
		specs = append(specs, models.SeatSpec{
			Label:    fmt.Sprintf("U%d", i+1),
			Row:      lowerRows + i/2 + 1,
			Position: gridOnePlusOne.positions[i%2],
		})
	}
	return specs
}

// lastRowFive is 2x2 with a five seat back row when the count splits into
// full 2x2 rows plus five; any other count falls back to plain 2x2
func lastRowFive(n int) []models.SeatSpec {
	if n < len(gridBackRow.columns) || (n-len(gridBackRow.columns))%len(gridTwoPlusTwo.columns) != 0 {
		return fillRows(gridTwoPlusTwo, n, 1)
	}

	front := n - len(gridBackRow.columns)
	specs := fillRows(gridTwoPlusTwo, front, 1)
	backRow := front/len(gridTwoPlusTwo.columns) + 1
	return append(specs, fillRows(gridBackRow, len(gridBackRow.columns), backRow)...)
}
