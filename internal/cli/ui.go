package cli

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/emerl/pkg/erl"
)

// =============================================================================
// Color Palette
// =============================================================================

var (
	colorCyan   = lipgloss.Color("36")  // Teal - primary values
	colorGreen  = lipgloss.Color("35")  // Green - success
	colorYellow = lipgloss.Color("220") // Amber - warnings
	colorBlue   = lipgloss.Color("75")  // Light blue - commands
	colorWhite  = lipgloss.Color("255") // Bright white - values
	colorGray   = lipgloss.Color("245") // Gray - labels
	colorDim    = lipgloss.Color("240") // Dim gray - borders
)

// =============================================================================
// Styles
// =============================================================================

var (
	StyleTitle   = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	StyleDim     = lipgloss.NewStyle().Foreground(colorDim)
	StyleValue   = lipgloss.NewStyle().Foreground(colorWhite)
	StyleNumber  = lipgloss.NewStyle().Foreground(colorCyan)
	StyleWarning = lipgloss.NewStyle().Foreground(colorYellow)

	styleIconSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleIconWarning = lipgloss.NewStyle().Foreground(colorYellow)
	styleIconInfo    = lipgloss.NewStyle().Foreground(colorGray)
	styleIconSpinner = lipgloss.NewStyle().Foreground(colorCyan)

	styleLabel   = lipgloss.NewStyle().Foreground(colorGray).Width(14)
	styleCommand = lipgloss.NewStyle().Foreground(colorBlue)
	styleHeader  = lipgloss.NewStyle().Bold(true).Foreground(colorCyan).Padding(0, 1)
	styleCell    = lipgloss.NewStyle().Foreground(colorWhite).Padding(0, 1)
)

const (
	iconSuccess = "✓"
	iconWarning = "!"
	iconInfo    = "›"
)

// =============================================================================
// Status Output
// =============================================================================

func printSuccess(format string, args ...any) {
	fmt.Println(styleIconSuccess.Render(iconSuccess) + " " + fmt.Sprintf(format, args...))
}

func printWarning(format string, args ...any) {
	fmt.Println(styleIconWarning.Render(iconWarning) + " " + StyleWarning.Render(fmt.Sprintf(format, args...)))
}

func printInfo(format string, args ...any) {
	fmt.Println(styleIconInfo.Render(iconInfo) + " " + fmt.Sprintf(format, args...))
}

// printDetail prints an indented secondary line.
func printDetail(format string, args ...any) {
	fmt.Println(detail(format, args...))
}

func detail(format string, args ...any) string {
	return "  " + StyleDim.Render(fmt.Sprintf(format, args...))
}

// printKeyValue prints a labeled value.
func printKeyValue(key, value string) {
	fmt.Println(keyValue(key, value))
}

func keyValue(key, value string) string {
	return styleLabel.Render(key) + " " + StyleValue.Render(value)
}

// printNextStep prints a suggested next command.
func printNextStep(description, cmd string) {
	fmt.Println(StyleDim.Render(description+":") + " " + styleCommand.Render(cmd))
}

// =============================================================================
// Tables
// =============================================================================

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(StyleDim).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleHeader
			}
			return styleCell
		})
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }

// summaryTable renders the total and per-interval summaries. Row i > 0 of
// intervals covers [bounds[i-1], bounds[i]).
func summaryTable(total erl.Summary, intervals []erl.Summary, bounds []float64) string {
	t := newTable("skeletons", "length", "count", "erl", "skel_all")
	t.Row("all", "", strconv.Itoa(total.Count), formatFloat(total.ERL), formatFloat(total.SkelAll))
	for i := 1; i < len(intervals); i++ {
		s := intervals[i]
		span := fmt.Sprintf("[%g, %g)", bounds[i-1], bounds[i])
		t.Row("interval", span, strconv.Itoa(s.Count), formatFloat(s.ERL), formatFloat(s.SkelAll))
	}
	return t.String()
}

// skeletonTable renders per-skeleton results in the given ID order.
func skeletonTable(ids []int64, per map[int64]erl.SkeletonResult) string {
	t := newTable("id", "length", "erl", "correct", "split", "merged", "omitted")
	for _, id := range ids {
		r := per[id]
		row := []string{strconv.FormatInt(id, 10), formatFloat(r.Length), formatFloat(r.ERL)}
		if s := r.Scores; s != nil {
			row = append(row, strconv.Itoa(s.Correct), strconv.Itoa(s.Split), strconv.Itoa(s.Merged), strconv.Itoa(s.Omitted))
		} else {
			row = append(row, "-", "-", "-", "-")
		}
		t.Row(row...)
	}
	return t.String()
}

// mergeTable renders each merging segment with the skeletons it spans.
func mergeTable(merges map[uint64][]int64) string {
	t := newTable("segment", "skeletons")
	for _, seg := range slices.Sorted(maps.Keys(merges)) {
		ids := make([]string, len(merges[seg]))
		for i, id := range merges[seg] {
			ids[i] = strconv.FormatInt(id, 10)
		}
		t.Row(strconv.FormatUint(seg, 10), strings.Join(ids, ", "))
	}
	return t.String()
}

// splitTable renders the segment pairs that split each skeleton.
func splitTable(splits map[int64][]erl.SegmentPair) string {
	t := newTable("id", "splits")
	for _, id := range slices.Sorted(maps.Keys(splits)) {
		pairs := make([]string, len(splits[id]))
		for i, p := range splits[id] {
			pairs[i] = fmt.Sprintf("%d|%d", p.A, p.B)
		}
		t.Row(strconv.FormatInt(id, 10), strings.Join(pairs, " "))
	}
	return t.String()
}
