package rating

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// BarWidth is the glyph width of the rating bar in captions.
const BarWidth = 10

const (
	barFilled = "■"
	barEmpty  = "□"
)

// Button is one inline keyboard button: a label and the callback data the
// messenger sends back when it is pressed.
type Button struct {
	Text string
	Data string
}

// RenderBar draws a fixed-width bar where the filled share corresponds to
// average on the 0-10 scale. Pure function; monotonic non-decreasing in
// average.
func RenderBar(average float64, width int) string {
	filled := int(math.Round(average / float64(MaxScore) * float64(width)))
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}
	return strings.Repeat(barFilled, filled) + strings.Repeat(barEmpty, width-filled)
}

// RenderCaption formats the rating message text for the given aggregate.
// Deterministic, so unchanged aggregates render identical captions and the
// engine can skip redundant message edits.
func RenderCaption(agg Aggregate) string {
	if agg.Count == 0 {
		return "📊 Rate this post:\nNo ratings yet."
	}
	return fmt.Sprintf("📊 Rating: %.2f / 10\n%s\n(%d votes)",
		agg.Average, RenderBar(agg.Average, BarWidth), agg.Count)
}

// Keyboard returns the fixed 1-10 button layout: two rows of five, each
// button's callback data carrying the score digits. Identical every call.
func Keyboard() [][]Button {
	rows := make([][]Button, 2)
	for i := 0; i < 2; i++ {
		row := make([]Button, 5)
		for j := 0; j < 5; j++ {
			label := strconv.Itoa(i*5 + j + 1)
			row[j] = Button{Text: label, Data: label}
		}
		rows[i] = row
	}
	return rows
}
