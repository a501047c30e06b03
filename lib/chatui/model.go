// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package chatui is the bubbletea model behind loom-view: a two-pane
// chat browser with the room list on the left and the selected room's
// timeline on the right. The model renders from mirror projections
// only; the sync loop runs outside and nudges the UI through an
// update channel.
package chatui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/loomchat/loom/lib/ref"
	"github.com/loomchat/loom/messaging"
	"github.com/loomchat/loom/mirror"
)

// FocusRegion identifies which pane has keyboard focus.
type FocusRegion int

const (
	// FocusRooms means navigation keys move the room list cursor.
	FocusRooms FocusRegion = iota
	// FocusTimeline means navigation keys scroll the timeline.
	FocusTimeline
	// FocusCompose means keystrokes go to the message input.
	FocusCompose
)

// roomListWidth is the fixed width of the left pane, borders included.
const roomListWidth = 32

// sendTimeout bounds one SendMessage round trip.
const sendTimeout = 15 * time.Second

// UpdateMsg tells the model that the mirror changed and the view
// should re-render. Delivered through the Updates channel.
type UpdateMsg struct{}

// sendResultMsg reports the outcome of an asynchronous message send.
type sendResultMsg struct {
	err error
}

// keyMap defines the key bindings, grouped for the help line.
type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	NextPane key.Binding
	Compose  key.Binding
	Send     key.Binding
	Cancel   key.Binding
	Quit     key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		NextPane: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "switch pane")),
		Compose:  key.NewBinding(key.WithKeys("i", "enter"), key.WithHelp("i", "compose")),
		Send:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
		Cancel:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// Config wires the model to the running sync machinery.
type Config struct {
	// Registry holds the room projections the view renders.
	Registry *mirror.Registry

	// Content decodes timeline event content for display.
	Content *mirror.ContentRegistry

	// Session sends messages. Nil makes the view read-only.
	Session *messaging.Session

	// SelfUserID marks the viewer's own messages.
	SelfUserID ref.UserID

	// Updates is signaled by the sync loop after each applied
	// response.
	Updates <-chan struct{}

	// Theme may be zero for DefaultTheme.
	Theme Theme
}

// Model is the bubbletea model for the chat browser.
type Model struct {
	registry *mirror.Registry
	content  *mirror.ContentRegistry
	session  *messaging.Session
	self     ref.UserID
	updates  <-chan struct{}
	theme    Theme
	keys     keyMap

	rooms    []*mirror.Room
	selected int
	// lastRead tracks the highest rendered Seq per room, for unread
	// markers in the room list.
	lastRead map[ref.RoomID]uint64

	timeline viewport.Model
	compose  textinput.Model
	focus    FocusRegion

	width  int
	height int
	ready  bool

	sending   bool
	statusErr string
}

// New builds a Model from config.
func New(config Config) Model {
	theme := config.Theme
	if theme == (Theme{}) {
		theme = DefaultTheme()
	}
	compose := textinput.New()
	compose.Placeholder = "message"
	compose.CharLimit = 4000

	return Model{
		registry: config.Registry,
		content:  config.Content,
		session:  config.Session,
		self:     config.SelfUserID,
		updates:  config.Updates,
		theme:    theme,
		keys:     defaultKeyMap(),
		lastRead: make(map[ref.RoomID]uint64),
		compose:  compose,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.listenUpdates(), textinput.Blink)
}

// listenUpdates converts one update-channel delivery into an
// UpdateMsg. Re-armed after every delivery.
func (m Model) listenUpdates() tea.Cmd {
	updates := m.updates
	if updates == nil {
		return nil
	}
	return func() tea.Msg {
		_, ok := <-updates
		if !ok {
			return nil
		}
		return UpdateMsg{}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		m.refresh()
		return m, nil

	case UpdateMsg:
		m.refresh()
		return m, m.listenUpdates()

	case sendResultMsg:
		m.sending = false
		if msg.err != nil {
			m.statusErr = msg.err.Error()
		} else {
			m.compose.SetValue("")
			m.statusErr = ""
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.focus == FocusCompose {
		switch {
		case key.Matches(msg, m.keys.Cancel):
			m.focus = FocusRooms
			m.compose.Blur()
			return m, nil
		case key.Matches(msg, m.keys.Send):
			return m.sendCurrent()
		}
		var cmd tea.Cmd
		m.compose, cmd = m.compose.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.NextPane):
		if m.focus == FocusRooms {
			m.focus = FocusTimeline
		} else {
			m.focus = FocusRooms
		}
		return m, nil
	case key.Matches(msg, m.keys.Compose):
		if m.session != nil && len(m.rooms) > 0 {
			m.focus = FocusCompose
			m.compose.Focus()
			return m, textinput.Blink
		}
		return m, nil
	}

	if m.focus == FocusTimeline {
		var cmd tea.Cmd
		m.timeline, cmd = m.timeline.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Up):
		if m.selected > 0 {
			m.selected--
			m.refresh()
		}
	case key.Matches(msg, m.keys.Down):
		if m.selected < len(m.rooms)-1 {
			m.selected++
			m.refresh()
		}
	}
	return m, nil
}

// sendCurrent dispatches the compose box content to the selected
// room. The network call runs in a command so the UI stays live.
func (m Model) sendCurrent() (tea.Model, tea.Cmd) {
	body := strings.TrimSpace(m.compose.Value())
	if body == "" || m.sending || m.session == nil {
		return m, nil
	}
	room := m.currentRoom()
	if room == nil {
		return m, nil
	}
	m.sending = true
	session := m.session
	roomID := room.ID()
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		_, err := session.SendMessage(ctx, roomID, messaging.NewTextMessage(body))
		return sendResultMsg{err: err}
	}
}

func (m *Model) currentRoom() *mirror.Room {
	if m.selected < 0 || m.selected >= len(m.rooms) {
		return nil
	}
	return m.rooms[m.selected]
}

// layout recomputes pane sizes from the window dimensions.
func (m *Model) layout() {
	chatWidth := max(m.width-roomListWidth, 20)
	chatHeight := max(m.height-4, 3)
	if !m.ready {
		m.timeline = viewport.New(chatWidth, chatHeight)
		m.ready = true
	} else {
		m.timeline.Width = chatWidth
		m.timeline.Height = chatHeight
	}
	m.compose.Width = chatWidth - 4
}

// refresh re-reads the registry and rebuilds the timeline content
// for the selected room.
func (m *Model) refresh() {
	m.rooms = m.registry.List()
	if m.selected >= len(m.rooms) {
		m.selected = max(len(m.rooms)-1, 0)
	}
	room := m.currentRoom()
	if room == nil || !m.ready {
		return
	}

	atBottom := m.timeline.AtBottom()
	entries := room.Timeline()
	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		lines = append(lines, m.renderEntry(entry))
	}
	m.timeline.SetContent(strings.Join(lines, "\n"))
	if atBottom {
		m.timeline.GotoBottom()
	}
	if len(entries) > 0 {
		m.lastRead[room.ID()] = entries[len(entries)-1].Seq
	}
}

// renderEntry formats one timeline event. Message events show
// sender and body; state events render as faint annotations;
// everything else shows its type.
func (m *Model) renderEntry(entry mirror.TimelineEntry) string {
	event := entry.Event
	timestamp := time.UnixMilli(event.OriginServerTS).Format("15:04")
	prefix := lipgloss.NewStyle().Foreground(m.theme.FaintText).Render(timestamp) + " "

	senderStyle := lipgloss.NewStyle().Foreground(m.theme.SenderForeground)
	if event.Sender == m.self {
		senderStyle = senderStyle.Bold(true)
	}

	decoded, err := m.content.Decode(event)
	if err != nil {
		return prefix + lipgloss.NewStyle().Foreground(m.theme.ErrorText).
			Render(fmt.Sprintf("<undecodable %s>", event.Type))
	}

	switch content := decoded.(type) {
	case *messaging.MessageContent:
		return prefix + senderStyle.Render(event.Sender.String()) + " " + content.Body
	case *mirror.MemberContent:
		target := ""
		if event.StateKey != nil {
			target = *event.StateKey
		}
		return prefix + lipgloss.NewStyle().Foreground(m.theme.StateForeground).
			Render(fmt.Sprintf("%s is now %q", target, content.Membership))
	case *mirror.NameContent:
		return prefix + lipgloss.NewStyle().Foreground(m.theme.StateForeground).
			Render(fmt.Sprintf("room renamed to %q", content.Name))
	case *mirror.TopicContent:
		return prefix + lipgloss.NewStyle().Foreground(m.theme.StateForeground).
			Render(fmt.Sprintf("topic set to %q", content.Topic))
	default:
		return prefix + lipgloss.NewStyle().Foreground(m.theme.FaintText).
			Render(fmt.Sprintf("<%s>", event.Type))
	}
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "loading..."
	}
	left := m.viewRoomList()
	right := m.viewChat()
	return lipgloss.JoinHorizontal(lipgloss.Top, left, right)
}

func (m Model) viewRoomList() string {
	border := lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(m.theme.BorderColor).
		Width(roomListWidth - 2).
		Height(m.height - 2)

	var rows []string
	header := lipgloss.NewStyle().Foreground(m.theme.HeaderForeground).Bold(true).
		Render(fmt.Sprintf("Rooms (%d)", len(m.rooms)))
	rows = append(rows, header, "")

	for i, room := range m.rooms {
		label := roomLabel(room)
		if len(label) > roomListWidth-6 {
			label = label[:roomListWidth-6] + "…"
		}
		marker := "  "
		if timeline := room.Timeline(); len(timeline) > 0 &&
			timeline[len(timeline)-1].Seq > m.lastRead[room.ID()] {
			marker = lipgloss.NewStyle().Foreground(m.theme.UnreadAccent).Render("● ")
		}
		row := marker + label
		if i == m.selected {
			row = lipgloss.NewStyle().
				Background(m.theme.SelectedBackground).
				Foreground(m.theme.SelectedForeground).
				Render(row)
		}
		rows = append(rows, row)
	}
	return border.Render(strings.Join(rows, "\n"))
}

func (m Model) viewChat() string {
	room := m.currentRoom()

	title := "no rooms yet"
	typing := ""
	if room != nil {
		title = roomLabel(room)
		if topic := room.Topic(); topic != "" {
			title += "  " + lipgloss.NewStyle().Foreground(m.theme.FaintText).Render(topic)
		}
		if users := room.TypingUsers(); len(users) > 0 {
			names := make([]string, len(users))
			for i, user := range users {
				names[i] = user.Localpart()
			}
			typing = lipgloss.NewStyle().Foreground(m.theme.TypingText).
				Render(strings.Join(names, ", ") + " typing…")
		}
	}

	header := lipgloss.NewStyle().Foreground(m.theme.HeaderForeground).Bold(true).Render(title)

	footer := typing
	if m.statusErr != "" {
		footer = lipgloss.NewStyle().Foreground(m.theme.ErrorText).Render("send failed: " + m.statusErr)
	}
	help := lipgloss.NewStyle().Foreground(m.theme.HelpText).
		Render("tab: pane  i: compose  esc: back  q: quit")

	var composeLine string
	if m.focus == FocusCompose {
		composeLine = m.compose.View()
	} else {
		composeLine = help
	}

	sections := []string{header, m.timeline.View(), footer, composeLine}
	return lipgloss.NewStyle().PaddingLeft(1).Render(strings.Join(sections, "\n"))
}

// roomLabel picks the best display handle for a room: name, then
// canonical alias, then the raw room ID.
func roomLabel(room *mirror.Room) string {
	if name := room.Name(); name != "" {
		return name
	}
	if alias := room.CanonicalAlias(); !alias.IsZero() {
		return alias.String()
	}
	return room.ID().String()
}
