// Package tui is a terminal front end for a talkback session.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MegaGrindStone/talkback/internal/models"
	"github.com/MegaGrindStone/talkback/internal/session"
	"github.com/MegaGrindStone/talkback/internal/voices"
	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
)

// MaxInputLength matches the text area of the web page.
const MaxInputLength = 300

const inputHeight = 3

type replyMsg struct {
	res models.RelayResponse
	err error
}

// Model is the bubbletea model of the chat screen.
type Model struct {
	ctx     context.Context
	session *session.Controller
	catalog voices.Catalog
	keys    keyMap

	regions   []voices.Region
	regionIdx int
	// voiceIdx is an index into the voices of the selected region, -1 means speech is off.
	voiceIdx int

	input    textarea.Model
	history  viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer

	status string
	err    error
	width  int
	height int

	// copyFn is replaced in tests.
	copyFn func(string) error
}

// Option configures a Model.
type Option func(*Model)

// WithVoice preselects a voice. An id unknown to the catalog keeps speech off.
func WithVoice(id string) Option {
	return func(m *Model) {
		_, region, ok := m.catalog.Lookup(id)
		if !ok {
			return
		}
		for i, r := range m.regions {
			if r != region {
				continue
			}
			m.regionIdx = i
			for j, v := range m.catalog.Voices(r) {
				if v.ID == id {
					m.voiceIdx = j
				}
			}
		}
	}
}

// WithRegion preselects a region with speech off.
func WithRegion(region string) Option {
	return func(m *Model) {
		for i, r := range m.regions {
			if string(r) == region {
				m.regionIdx = i
				m.voiceIdx = -1
			}
		}
	}
}

// New creates the chat screen for s.
func New(ctx context.Context, s *session.Controller, catalog voices.Catalog, opts ...Option) Model {
	input := textarea.New()
	input.Placeholder = "Enter dialogue..."
	input.CharLimit = MaxInputLength
	input.ShowLineNumbers = false
	input.SetHeight(inputHeight)
	input.KeyMap.InsertNewline.SetEnabled(false)
	input.Focus()

	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(statusStyle))

	m := Model{
		ctx:      ctx,
		session:  s,
		catalog:  catalog,
		keys:     defaultKeyMap,
		regions:  catalog.Regions(),
		voiceIdx: -1,
		input:    input,
		history:  viewport.New(80, 20),
		spinner:  sp,
		copyFn:   clipboard.WriteAll,
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.session.SetVoice(m.voiceID())
	m.refresh()

	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		m.refresh()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Send):
			return m, m.submit()
		case key.Matches(msg, m.keys.Reset):
			m.session.Reset()
			m.input.Reset()
			m.err = nil
			m.status = "Cleared"
			m.refresh()
			return m, nil
		case key.Matches(msg, m.keys.NextRegion):
			m.regionIdx = (m.regionIdx + 1) % len(m.regions)
			m.voiceIdx = -1
			m.session.SetVoice(m.voiceID())
			return m, nil
		case key.Matches(msg, m.keys.NextVoice):
			n := len(m.catalog.Voices(m.region()))
			m.voiceIdx++
			if m.voiceIdx >= n {
				m.voiceIdx = -1
			}
			m.session.SetVoice(m.voiceID())
			return m, nil
		case key.Matches(msg, m.keys.CopyLast):
			m.copyLast()
			return m, nil
		}

		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)

	case replyMsg:
		switch {
		case errors.Is(msg.err, session.ErrStaleReply):
		case msg.err != nil:
			m.err = msg.err
			m.status = ""
		default:
			m.err = nil
			m.status = ""
		}
		m.refresh()

	case spinner.TickMsg:
		if !m.session.Pending() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh()
		cmds = append(cmds, cmd)

	default:
		var cmd tea.Cmd
		m.history, cmd = m.history.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) submit() tea.Cmd {
	text := m.input.Value()
	if !m.session.CanSubmit(text) {
		return nil
	}
	m.input.Reset()
	m.err = nil
	m.status = "Waiting for reply"

	ctx, s := m.ctx, m.session
	send := func() tea.Msg {
		res, err := s.Submit(ctx, text)
		return replyMsg{res: res, err: err}
	}
	return tea.Batch(send, m.spinner.Tick)
}

func (m *Model) copyLast() {
	turns := m.session.Turns()
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Speaker != models.SpeakerAI {
			continue
		}
		if err := m.copyFn(turns[i].Text); err != nil {
			m.err = fmt.Errorf("copy: %w", err)
			return
		}
		m.status = "Copied last reply"
		return
	}
	m.status = "Nothing to copy"
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	m.input.SetWidth(width)
	m.history.Width = width
	m.history.Height = max(height-inputHeight-4, 1)

	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(max(width-4, 20)))
	if err == nil {
		m.renderer = r
	}
}

func (m Model) region() voices.Region {
	if len(m.regions) == 0 {
		return ""
	}
	return m.regions[m.regionIdx]
}

func (m Model) voiceID() string {
	if m.voiceIdx < 0 {
		return ""
	}
	vs := m.catalog.Voices(m.region())
	if m.voiceIdx >= len(vs) {
		return ""
	}
	return vs[m.voiceIdx].ID
}

func (m *Model) refresh() {
	turns := m.session.Turns()
	if len(turns) == 0 {
		m.history.SetContent(mutedStyle.Render("AI is awaiting text..."))
		return
	}

	var b strings.Builder
	for _, t := range turns {
		switch t.Speaker {
		case models.SpeakerHuman:
			b.WriteString(humanStyle.Render("HUMAN: "))
			b.WriteString(t.Text)
			b.WriteString("\n\n")
		case models.SpeakerAI:
			b.WriteString(aiStyle.Render("AI:"))
			b.WriteString("\n")
			b.WriteString(m.render(t.Text))
			b.WriteString("\n")
		}
	}
	if m.session.Pending() {
		b.WriteString(m.spinner.View())
		b.WriteString(mutedStyle.Render(" thinking"))
	}
	m.history.SetContent(b.String())
	m.history.GotoBottom()
}

func (m Model) render(text string) string {
	if m.renderer == nil {
		return text + "\n"
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return text + "\n"
	}
	return out
}

// View implements tea.Model.
func (m Model) View() string {
	voice := m.voiceID()
	if voice == "" {
		voice = "no speech"
	}
	header := titleStyle.Render("Enter Dialogue Below") + "  " +
		mutedStyle.Render(fmt.Sprintf("%s · %s", m.region(), voice))

	var status string
	switch {
	case m.err != nil:
		status = errorStyle.Render(m.err.Error())
	case m.session.Pending():
		status = m.spinner.View() + statusStyle.Render(" "+m.status)
	case m.status != "":
		status = statusStyle.Render(m.status)
	}

	var help []string
	for _, b := range m.keys.help() {
		h := b.Help()
		help = append(help, h.Key+" "+h.Desc)
	}

	return strings.Join([]string{
		header,
		m.history.View(),
		m.input.View(),
		status,
		mutedStyle.Render(strings.Join(help, " • ")),
	}, "\n")
}

// Run shows the chat screen until the user quits.
func Run(m Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(m.ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && m.ctx.Err() != nil {
		return nil
	}
	return err
}
