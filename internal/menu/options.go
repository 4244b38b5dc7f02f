package menu

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"historical-imagery/internal/availability"
	"historical-imagery/internal/common"
	"historical-imagery/internal/render"
)

var headerStyle = lipgloss.NewStyle().Bold(true)

// DateOption renders the glyph map of one capture date
type DateOption struct {
	Grid  *availability.Grid
	Layer *availability.Layer
}

func (o DateOption) Label() string {
	return common.FormatISO8601(o.Grid.Date())
}

func (o DateOption) Render(_ context.Context, out io.Writer) error {
	header := fmt.Sprintf("Imagery captured %s", common.FormatDisplay(o.Grid.Date()))
	if o.Layer != nil {
		header += fmt.Sprintf(" in %s", o.Layer.Title)
	}
	total := o.Grid.Rows() * o.Grid.Columns()
	header += fmt.Sprintf(" (%d of %d tiles)", o.Grid.AvailableCount(), total)

	if _, err := fmt.Fprintln(out, headerStyle.Render(header)); err != nil {
		return err
	}
	return render.WriteGlyphs(out, o.Grid)
}

// LayerOption opens the dates captured in one Wayback release
type LayerOption struct {
	Group    availability.RegionGroup
	Selector Selector
}

func (o LayerOption) Label() string {
	return fmt.Sprintf("%s [%d dates]", o.Group.Layer.Title, len(o.Group.Grids))
}

func (o LayerOption) Render(ctx context.Context, out io.Writer) error {
	return Browse(ctx, o.Selector, o.Group.Layer.Title, dateOptions(o.Group), out)
}

// OptionsFor builds the top-level menu of a result: one option per layer for
// the date-layered archive, one per date otherwise
func OptionsFor(res *availability.Result, sel Selector) []Option {
	var options []Option
	if res.Kind == common.DateLayered {
		for _, g := range res.Groups {
			options = append(options, LayerOption{Group: g, Selector: sel})
		}
		return options
	}
	for _, g := range res.Groups {
		options = append(options, dateOptions(g)...)
	}
	return options
}

func dateOptions(g availability.RegionGroup) []Option {
	options := make([]Option, len(g.Grids))
	for i, grid := range g.Grids {
		options[i] = DateOption{Grid: grid, Layer: g.Layer}
	}
	return options
}
