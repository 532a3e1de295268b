package catalog

import (
	"fmt"

	"github.com/iliyamo/event-booking/internal/model"
)

const (
	havanBlocks        = 6
	havanKundsPerBlock = 10
	havanSeatsPerKund  = 4

	showRows        = 12
	showSeatsPerRow = 24

	stallCount = 60
)

var stallSides = []string{"N", "E", "S", "W"}

// havanLayout seats four devotees around each kund; seat IDs read
// block-kund-seat, e.g. "A1-K1-S1".
func havanLayout() *Layout {
	units := make([]model.ResourceUnit, 0, havanBlocks*havanKundsPerBlock*havanSeatsPerKund)
	for b := 1; b <= havanBlocks; b++ {
		block := fmt.Sprintf("A%d", b)
		for k := 1; k <= havanKundsPerBlock; k++ {
			kund := fmt.Sprintf("K%d", k)
			for s := 1; s <= havanSeatsPerKund; s++ {
				units = append(units, model.ResourceUnit{
					ID:       fmt.Sprintf("%s-%s-S%d", block, kund, s),
					Block:    block,
					Row:      kund,
					Position: s,
				})
			}
		}
	}
	return newLayout(model.BookingTypeHavan, false, []string{"morning", "afternoon", "evening"}, units)
}

// showLayout is a rectangular auditorium, rows A..L, seats "C12".  The
// front and back halves are separate blocks for pricing displays.
func showLayout() *Layout {
	units := make([]model.ResourceUnit, 0, showRows*showSeatsPerRow)
	for r := 0; r < showRows; r++ {
		row := string(rune('A' + r))
		block := "front"
		if r >= showRows/2 {
			block = "rear"
		}
		for n := 1; n <= showSeatsPerRow; n++ {
			units = append(units, model.ResourceUnit{
				ID:       fmt.Sprintf("%s%d", row, n),
				Block:    block,
				Row:      row,
				Position: n,
			})
		}
	}
	return newLayout(model.BookingTypeShow, false, []string{"matinee", "evening"}, units)
}

// stallLayout spreads the stall pool evenly over the four sides of the
// ground, ST-01..ST-15 on N, ST-16..ST-30 on E and so on.
func stallLayout() *Layout {
	perSide := stallCount / len(stallSides)
	units := make([]model.ResourceUnit, 0, stallCount)
	for i := 1; i <= stallCount; i++ {
		side := stallSides[(i-1)/perSide]
		units = append(units, model.ResourceUnit{
			ID:       fmt.Sprintf("ST-%02d", i),
			Block:    side,
			Row:      side,
			Position: (i-1)%perSide + 1,
		})
	}
	return newLayout(model.BookingTypeStall, true, nil, units)
}
