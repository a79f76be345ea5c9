package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ent0n29/charlink/internal/events"
	"github.com/ent0n29/charlink/internal/inworld"
	"github.com/ent0n29/charlink/internal/policy"
)

const (
	flushInterval = 100 * time.Millisecond
	sendTimeout   = 10 * time.Second
)

var (
	playerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	characterStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)
	partialStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true)
	systemStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	inputStyle     = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
)

// chatConn is the part of a connector the chat needs.
type chatConn interface {
	FlushQueue() []events.Event
	SendText(ctx context.Context, message string) bool
	SendCustom(ctx context.Context, id string) bool
	SetCharacter(ctx context.Context, id string) (inworld.Character, bool)
	CharacterID() string
}

type line struct {
	speaker string
	text    string
	partial bool
	system  bool
	player  bool
}

type tickMsg time.Time

type sentMsg struct {
	what string
	ok   bool
}

type characterMsg struct {
	character inworld.Character
	ok        bool
}

type model struct {
	conn  chatConn
	input textinput.Model
	view  viewport.Model

	lines []line
	// open maps an utterance id to the index of its partial line.
	open  map[string]int
	mood  string
	ready bool
}

func newModel(conn chatConn) model {
	ti := textinput.New()
	ti.Placeholder = "say something, /char <id> or /trigger <name>"
	ti.CharLimit = 500
	ti.Focus()
	return model{
		conn:  conn,
		input: ti,
		open:  make(map[string]int),
	}
}

func tick() tea.Cmd {
	return tea.Tick(flushInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tick())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		height := msg.Height - 5
		if height < 3 {
			height = 3
		}
		if !m.ready {
			m.view = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.view.Width = msg.Width
			m.view.Height = height
		}
		m.input.Width = msg.Width - 6
		m.refresh()
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			value := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if value != "" {
				cmds = append(cmds, m.submit(value))
			}
		}
	case tickMsg:
		for _, ev := range m.conn.FlushQueue() {
			m.apply(ev)
		}
		m.refresh()
		cmds = append(cmds, tick())
	case sentMsg:
		if !msg.ok {
			m.system(fmt.Sprintf("%s failed", msg.what))
			m.refresh()
		}
	case characterMsg:
		if msg.ok {
			m.system(fmt.Sprintf("now talking to %s", displayName(msg.character)))
		} else {
			m.system("character change failed")
		}
		m.refresh()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	if m.ready {
		m.view, cmd = m.view.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// submit turns one input line into a provider call run off the UI loop.
func (m *model) submit(value string) tea.Cmd {
	conn := m.conn
	switch {
	case strings.HasPrefix(value, "/char "):
		id := strings.TrimSpace(strings.TrimPrefix(value, "/char "))
		return func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			defer cancel()
			ch, ok := conn.SetCharacter(ctx, id)
			return characterMsg{character: ch, ok: ok}
		}
	case strings.HasPrefix(value, "/trigger "):
		id, err := policy.NormalizeTrigger(strings.TrimPrefix(value, "/trigger "))
		if err != nil {
			m.system(err.Error())
			m.refresh()
			return nil
		}
		return func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			defer cancel()
			return sentMsg{what: "trigger " + id, ok: conn.SendCustom(ctx, id)}
		}
	default:
		return func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			defer cancel()
			return sentMsg{what: "send", ok: conn.SendText(ctx, value)}
		}
	}
}

// apply folds one drained event into the transcript. Character partials
// share a line keyed by utterance id until the final chunk replaces it.
func (m *model) apply(ev events.Event) {
	switch e := ev.(type) {
	case events.Text:
		if e.Source == nil {
			m.lines = append(m.lines, line{speaker: "You", text: e.Text, player: true})
			return
		}
		speaker := e.Source.String()
		if e.Source.Kind == events.ActorCharacter && e.Source.Name != "" {
			speaker = e.Source.Name
		}
		if idx, ok := m.open[e.UtteranceID]; ok && e.UtteranceID != "" {
			m.lines[idx] = line{speaker: speaker, text: e.Text, partial: !e.Final}
			if e.Final {
				delete(m.open, e.UtteranceID)
			}
			return
		}
		m.lines = append(m.lines, line{speaker: speaker, text: e.Text, partial: !e.Final})
		if !e.Final && e.UtteranceID != "" {
			m.open[e.UtteranceID] = len(m.lines) - 1
		}
	case events.Emotion:
		m.mood = fmt.Sprintf("%s (%s)", e.Behavior, e.Strength)
	case events.Custom:
		m.system("trigger " + e.Name)
	}
}

func (m *model) system(text string) {
	m.lines = append(m.lines, line{text: text, system: true})
}

func (m *model) refresh() {
	if !m.ready {
		return
	}
	m.view.SetContent(m.render())
	m.view.GotoBottom()
}

func (m model) render() string {
	var b strings.Builder
	for i, l := range m.lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		switch {
		case l.system:
			b.WriteString(systemStyle.Render("* " + l.text))
		case l.player:
			b.WriteString(playerStyle.Render(l.speaker+": ") + l.text)
		case l.partial:
			b.WriteString(characterStyle.Render(l.speaker+": ") + partialStyle.Render(l.text+"..."))
		default:
			b.WriteString(characterStyle.Render(l.speaker+": ") + l.text)
		}
	}
	return b.String()
}

func (m model) View() string {
	if !m.ready {
		return "connecting..."
	}
	status := "character: " + m.conn.CharacterID()
	if m.mood != "" {
		status += "  mood: " + m.mood
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.view.View(),
		statusStyle.Render(status),
		inputStyle.Render(m.input.View()),
	)
}

func displayName(ch inworld.Character) string {
	if ch.DisplayName != "" {
		return ch.DisplayName
	}
	return ch.ID
}
