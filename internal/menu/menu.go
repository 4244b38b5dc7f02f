package menu

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Option is one selectable entry. Render may open a nested selection.
type Option interface {
	Label() string
	Render(ctx context.Context, out io.Writer) error
}

// Selector picks one option, or nil when the user backs out
type Selector interface {
	Choose(ctx context.Context, title string, options []Option) (Option, error)
}

// Chooser is a Selector backed by a bubbletea list
type Chooser struct {
	In     io.Reader
	Out    io.Writer
	Width  int
	Height int
}

func (c Chooser) Choose(ctx context.Context, title string, options []Option) (Option, error) {
	if len(options) == 0 {
		return nil, nil
	}

	m := newModel(title, options, c.Width, c.Height)
	var opts []tea.ProgramOption
	opts = append(opts, tea.WithContext(ctx))
	if c.In != nil {
		opts = append(opts, tea.WithInput(c.In))
	}
	if c.Out != nil {
		opts = append(opts, tea.WithOutput(c.Out))
	}

	final, err := tea.NewProgram(m, opts...).Run()
	if err != nil {
		return nil, fmt.Errorf("menu: %w", err)
	}
	return final.(model).chosen, nil
}

// Browse shows options until the user backs out, rendering each choice
func Browse(ctx context.Context, sel Selector, title string, options []Option, out io.Writer) error {
	for {
		opt, err := sel.Choose(ctx, title, options)
		if err != nil || opt == nil {
			return err
		}
		if err := opt.Render(ctx, out); err != nil {
			return err
		}
	}
}

type item struct {
	opt Option
}

func (i item) FilterValue() string { return i.opt.Label() }
func (i item) Title() string       { return i.opt.Label() }
func (i item) Description() string { return "" }

var docStyle = lipgloss.NewStyle().Margin(1, 2)

type model struct {
	list   list.Model
	chosen Option
}

func newModel(title string, options []Option, width, height int) model {
	items := make([]list.Item, len(options))
	for i, o := range options {
		items[i] = item{opt: o}
	}

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = false
	delegate.SetSpacing(0)

	l := list.New(items, delegate, max(width, 40), max(height, 12))
	l.Title = title
	l.SetShowStatusBar(len(options) > 1)
	return model{list: l}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		h, v := docStyle.GetFrameSize()
		m.list.SetSize(msg.Width-h, msg.Height-v)
	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		if msg.Type == tea.KeyEnter {
			if it, ok := m.list.SelectedItem().(item); ok {
				m.chosen = it.opt
				return m, tea.Quit
			}
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m model) View() string {
	if m.chosen != nil {
		return ""
	}
	return docStyle.Render(m.list.View())
}
