package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/jwebster45206/questline/internal/game"
	"github.com/jwebster45206/questline/pkg/actor"
	"github.com/jwebster45206/questline/pkg/chat"
	"github.com/jwebster45206/questline/pkg/textfilter"
)

const PlaceHolderText = "Say something, or /help for commands..."

type entryKind int

const (
	entryPlayer entryKind = iota
	entryCharacter
	entrySystem
	entryError
)

type entry struct {
	kind    entryKind
	speaker string
	text    string
}

// ConsoleUI is the BubbleTea model that runs the UI.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	api          *apiClient
	status       *game.Status
	events       <-chan SSEEvent
	transcript   []entry
	lastReply    string
	chatViewport viewport.Model
	metaViewport viewport.Model
	textarea     textarea.Model
	ready        bool
	width        int
	height       int
	loading      bool

	// Quit confirmation state
	showQuitModal bool

	// Progress bar state
	progressTick int
}

type statusMsg struct {
	status *game.Status
	err    error
}

type replyMsg struct {
	response *chat.ChatResponse
	err      error
}

// actionMsg is the result of a slash command.
type actionMsg struct {
	entries []entry
	err     error
}

type sseMsg struct {
	event SSEEvent
	ok    bool
}

type progressTickMsg struct{}

var (
	chatPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(1).
			PaddingLeft(3).
			PaddingRight(0)

	metaPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(0).
			PaddingLeft(0).
			PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	speakerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")). // purple
			Bold(true)

	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)

	separatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey
)

const helpText = `Commands:
• /talk <character> - Start a conversation
• /bye - End the conversation
• /go <location> - Walk somewhere
• /look <item> - Examine an item
• /achievements - List achievements
• /advance - Continue to the next level
• /showdown - Face the adventurer
• /reset [full] - Start over
• /help - Show this help
• Ctrl+Y - Copy the last reply
• Ctrl+C - Quit game`

func NewConsoleUI(api *apiClient, status *game.Status, events <-chan SSEEvent) ConsoleUI {
	ta := textarea.New()
	ta.Placeholder = PlaceHolderText
	ta.Focus()
	ta.Prompt = promptStyle.Render(":: ")
	ta.CharLimit = 1000
	ta.SetWidth(50)
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	chatVp := viewport.New(50, 20)
	chatVp.MouseWheelEnabled = true

	m := ConsoleUI{
		api:          api,
		status:       status,
		events:       events,
		textarea:     ta,
		chatViewport: chatVp,
		metaViewport: viewport.New(20, 20),
	}
	m.transcript = append(m.transcript, entry{kind: entrySystem, text: describeScene(status)})
	return m
}

func (m ConsoleUI) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.waitForEvent())
}

func (m ConsoleUI) waitForEvent() tea.Cmd {
	if m.events == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-m.events
		return sseMsg{event: ev, ok: ok}
	}
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}

	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		mvCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.MouseMsg:
		m.chatViewport, vpCmd = m.chatViewport.Update(msg)
		m.metaViewport, mvCmd = m.metaViewport.Update(msg)
		return m, tea.Batch(vpCmd, mvCmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		chatWidth := int(float64(m.width)*0.7) - 4
		metaWidth := m.width - chatWidth - 6
		m.chatViewport.Width = chatWidth - 2
		m.chatViewport.Height = m.height - 7
		m.metaViewport.Width = metaWidth - 2
		m.metaViewport.Height = m.height - 4
		m.textarea.SetWidth(chatWidth - 4)
		m.ready = true
		m.render()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyCtrlY:
			if m.lastReply != "" {
				if err := clipboard.WriteAll(m.lastReply); err != nil {
					m.add(entry{kind: entryError, text: "Copy failed: " + err.Error()})
				} else {
					m.add(entry{kind: entrySystem, text: "Copied the last reply."})
				}
			}
			return m, nil
		case tea.KeyEnter:
			if m.loading {
				return m, nil
			}
			input := strings.TrimSpace(m.textarea.Value())
			if input == "" {
				return m, nil
			}
			m.textarea.Reset()

			if strings.HasPrefix(input, "/") {
				cmd := m.handleCommand(input)
				if cmd == nil {
					return m, nil
				}
				m.loading = true
				m.progressTick = 0
				m.render()
				return m, tea.Batch(cmd, progressTick())
			}

			m.add(entry{kind: entryPlayer, text: input})
			m.loading = true
			m.progressTick = 0
			m.render()
			return m, tea.Batch(m.sendMessage(input), progressTick())
		}

	case replyMsg:
		m.loading = false
		if msg.err != nil {
			m.add(entry{kind: entryError, text: msg.err.Error()})
		} else {
			m.lastReply = msg.response.Message
			m.add(entry{kind: entryCharacter, speaker: m.characterName(msg.response.CharacterID), text: msg.response.Message})
			if msg.response.Fallback {
				m.add(entry{kind: entrySystem, text: "(they seem distracted)"})
			}
		}
		return m, m.refreshStatus()

	case actionMsg:
		m.loading = false
		if msg.err != nil {
			m.add(entry{kind: entryError, text: msg.err.Error()})
		}
		for _, e := range msg.entries {
			if e.kind == entryCharacter {
				m.lastReply = e.text
			}
			m.add(e)
		}
		return m, m.refreshStatus()

	case statusMsg:
		if msg.err == nil && msg.status != nil {
			m.status = msg.status
			m.render()
		}

	case sseMsg:
		if !msg.ok {
			m.events = nil
			return m, nil
		}
		if text := describeEvent(msg.event); text != "" {
			m.add(entry{kind: entrySystem, text: text})
		}
		return m, tea.Batch(m.waitForEvent(), m.refreshStatus())

	case progressTickMsg:
		if m.loading {
			m.progressTick++
			m.render()
			return m, progressTick()
		}
	}

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.chatViewport, vpCmd = m.chatViewport.Update(msg)
	m.metaViewport, mvCmd = m.metaViewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, mvCmd)
}

func (m *ConsoleUI) add(e entry) {
	m.transcript = append(m.transcript, e)
	m.render()
}

// render rebuilds both panels for the current width.
func (m *ConsoleUI) render() {
	if !m.ready {
		return
	}
	chatWidth := m.chatViewport.Width - 6
	if chatWidth < 20 {
		chatWidth = 20
	}

	var content strings.Builder
	content.WriteString(titleStyle.Render(strings.ToUpper(m.title())) + "\n\n")
	content.WriteString(separatorStyle.Render(strings.Repeat("─", chatWidth)) + "\n\n")

	for _, e := range m.transcript {
		switch e.kind {
		case entryPlayer:
			content.WriteString(userStyle.Render("You: ") + wordwrap.String(e.text, chatWidth-5))
		case entryCharacter:
			content.WriteString(speakerStyle.Render(e.speaker+": ") + wordwrap.String(e.text, chatWidth-len(e.speaker)-2))
		case entrySystem:
			content.WriteString(systemStyle.Render(wordwrap.String(e.text, chatWidth)))
		case entryError:
			content.WriteString(errorStyle.Render(wordwrap.String("Error: "+e.text, chatWidth)))
		}
		content.WriteString("\n\n")
	}

	if m.loading {
		content.WriteString(m.renderProgressBar())
	}

	m.chatViewport.SetContent(content.String())
	m.chatViewport.GotoBottom()
	m.metaViewport.SetContent(writeMetadata(m.status))
}

func (m ConsoleUI) title() string {
	if m.status == nil || m.status.Title == "" {
		return "Questline"
	}
	return m.status.Title
}

func (m ConsoleUI) characterName(id string) string {
	if m.status != nil {
		for _, c := range m.status.Characters {
			if c.ID == id {
				return c.Name
			}
		}
	}
	return id
}

// parseCommand splits "/go living room" into ("go", "living room").
func parseCommand(input string) (string, string) {
	input = strings.TrimPrefix(strings.TrimSpace(input), "/")
	name, arg, _ := strings.Cut(input, " ")
	return strings.ToLower(name), strings.TrimSpace(arg)
}

// resolveRef matches an id or a display name, case-insensitively.
func resolveRef(refs []game.Ref, arg string) string {
	for _, r := range refs {
		if strings.EqualFold(r.ID, arg) || strings.EqualFold(r.Name, arg) {
			return r.ID
		}
	}
	return strings.ReplaceAll(strings.ToLower(arg), " ", "_")
}

// handleCommand returns the API call for a slash command, or nil when the
// command was handled locally.
func (m *ConsoleUI) handleCommand(input string) tea.Cmd {
	name, arg := parseCommand(input)
	api := m.api
	var refs struct{ chars, exits, items []game.Ref }
	if m.status != nil {
		refs.chars, refs.exits, refs.items = m.status.Characters, m.status.Exits, m.status.Items
	}

	needArg := func(usage string) tea.Cmd {
		m.add(entry{kind: entryError, text: "usage: " + usage})
		return nil
	}

	switch name {
	case "help":
		m.add(entry{kind: entrySystem, text: helpText})
		return nil

	case "talk":
		if arg == "" {
			return needArg("/talk <character>")
		}
		id := resolveRef(refs.chars, arg)
		return func() tea.Msg {
			o, err := api.startConversation(id)
			if err != nil {
				return actionMsg{err: err}
			}
			return actionMsg{entries: openingEntries(o)}
		}

	case "bye":
		return func() tea.Msg {
			if err := api.endConversation(); err != nil {
				return actionMsg{err: err}
			}
			return actionMsg{entries: []entry{{kind: entrySystem, text: "You walk away."}}}
		}

	case "go":
		if arg == "" {
			return needArg("/go <location>")
		}
		id := resolveRef(refs.exits, arg)
		return func() tea.Msg {
			s, err := api.moveTo(id)
			if err != nil {
				return actionMsg{err: err}
			}
			return actionMsg{entries: []entry{{kind: entrySystem, text: describeScene(s)}}}
		}

	case "look":
		if arg == "" {
			return needArg("/look <item>")
		}
		id := resolveRef(refs.items, arg)
		return func() tea.Msg {
			v, err := api.examine(id)
			if err != nil {
				return actionMsg{err: err}
			}
			return actionMsg{entries: []entry{{kind: entrySystem, text: v.Name + ": " + v.Description}}}
		}

	case "achievements":
		return func() tea.Msg {
			r, err := api.achievements()
			if err != nil {
				return actionMsg{err: err}
			}
			var b strings.Builder
			fmt.Fprintf(&b, "Achievements (%d/%d):", r.Stats.Unlocked, r.Stats.Total)
			for _, a := range r.Achievements {
				mark := "○"
				if a.Unlocked {
					mark = "●"
				}
				fmt.Fprintf(&b, "\n%s %s", mark, a.Title)
				if !a.Unlocked && a.Hint != "" {
					fmt.Fprintf(&b, " (%s)", a.Hint)
				}
			}
			return actionMsg{entries: []entry{{kind: entrySystem, text: b.String()}}}
		}

	case "advance":
		return func() tea.Msg {
			r, err := api.advance()
			if err != nil {
				return actionMsg{err: err}
			}
			if r.Transition == "victory" {
				return actionMsg{entries: []entry{{kind: entrySystem, text: "You won! The labyrinth is safe."}}}
			}
			return actionMsg{entries: []entry{{kind: entrySystem, text: describeScene(&r.Status)}}}
		}

	case "showdown":
		return func() tea.Msg {
			r, err := api.showdown()
			if err != nil {
				return actionMsg{err: err}
			}
			return actionMsg{entries: []entry{{kind: entrySystem, text: describeShowdown(r)}}}
		}

	case "reset":
		full := strings.EqualFold(arg, "full")
		return func() tea.Msg {
			if err := api.reset(full); err != nil {
				return actionMsg{err: err}
			}
			s, err := api.status()
			if err != nil {
				return actionMsg{err: err}
			}
			return actionMsg{entries: []entry{{kind: entrySystem, text: "Starting over.\n\n" + describeScene(s)}}}
		}
	}

	m.add(entry{kind: entryError, text: "unknown command /" + name + ", try /help"})
	return nil
}

func openingEntries(o *game.Opening) []entry {
	if o.Resumed {
		return []entry{{kind: entrySystem, text: "You are already talking to " + o.Name + "."}}
	}
	var out []entry
	if o.Greeting != "" {
		out = append(out, entry{kind: entryCharacter, speaker: o.Name, text: o.Greeting})
	} else {
		out = append(out, entry{kind: entrySystem, text: "You approach " + o.Name + "."})
	}
	if o.EnergyRestored > 0 {
		out = append(out, entry{kind: entrySystem, text: fmt.Sprintf("You feel refreshed (+%d energy).", o.EnergyRestored)})
	}
	return out
}

func (m ConsoleUI) sendMessage(message string) tea.Cmd {
	api := m.api
	return func() tea.Msg {
		resp, err := api.sendMessage(message)
		return replyMsg{resp, err}
	}
}

func (m ConsoleUI) refreshStatus() tea.Cmd {
	api := m.api
	return func() tea.Msg {
		s, err := api.status()
		return statusMsg{s, err}
	}
}

func describeScene(s *game.Status) string {
	if s == nil {
		return ""
	}
	var b strings.Builder
	if s.LevelName != "" {
		fmt.Fprintf(&b, "Level %d: %s\n", s.Level, s.LevelName)
	}
	b.WriteString(s.Location.Name)
	if s.Location.Description != "" {
		b.WriteString(" - " + s.Location.Description)
	}
	if len(s.Characters) > 0 {
		b.WriteString("\nHere: " + refNames(s.Characters))
	}
	if len(s.Items) > 0 {
		b.WriteString("\nYou notice: " + refNames(s.Items))
	}
	if len(s.Exits) > 0 {
		b.WriteString("\nExits: " + refNames(s.Exits))
	}
	return b.String()
}

func describeShowdown(r *actor.ShowdownResult) string {
	var b strings.Builder
	if r.Success {
		b.WriteString("The adventurer flees! ")
	} else {
		b.WriteString("The adventurer walks right past your defenses. ")
	}
	fmt.Fprintf(&b, "Score %d/%d", r.Score, r.MaxScore)
	for _, t := range r.Traits {
		fmt.Fprintf(&b, "\n• %s: +%d %s", t.Trait, t.Points, t.Reason)
	}
	if r.TrapReason != "" {
		fmt.Fprintf(&b, "\n• traps: +%d %s", r.TrapPoints, r.TrapReason)
	}
	for _, reason := range r.BonusReasons {
		b.WriteString("\n• bonus: " + reason)
	}
	return b.String()
}

// describeEvent turns a pushed event into a line for the transcript.
// Events the player already sees in a response return "".
func describeEvent(ev SSEEvent) string {
	str := func(key string) string {
		v, _ := ev.Data[key].(string)
		return v
	}
	num := func(key string) int {
		v, _ := ev.Data[key].(float64)
		return int(v)
	}

	switch ev.Type {
	case "achievement.unlocked":
		return "★ Achievement unlocked: " + str("title")
	case "character.unlocked":
		return fmt.Sprintf("%s perks up at %q and is ready to help.", textfilter.DisplayName(str("character")), str("keyword"))
	case "level.completed":
		return fmt.Sprintf("Level %d complete! Type /advance to continue.", num("level"))
	case "game.victory":
		return "Victory!"
	case "game.over":
		return "Game over. Type /reset to try again."
	case "energy.changed":
		return fmt.Sprintf("Social energy: %d/%d", num("energy"), num("max"))
	}
	return ""
}

func refNames(refs []game.Ref) string {
	names := make([]string, 0, len(refs))
	for _, r := range refs {
		names = append(names, r.Name)
	}
	return strings.Join(names, ", ")
}

func writeMetadata(s *game.Status) string {
	var content strings.Builder
	content.WriteString(titleStyle.Render("GAME STATE") + "\n\n")
	if s == nil {
		return content.String()
	}

	if len(s.GameID) > 8 {
		content.WriteString("Game ID:\n" + s.GameID[:8] + "...\n\n")
	}
	if s.LevelName != "" {
		fmt.Fprintf(&content, "Level:\n%d - %s\n\n", s.Level, s.LevelName)
	}
	content.WriteString("Phase:\n" + s.PhaseName + "\n\n")
	content.WriteString("Location:\n" + s.Location.Name + "\n\n")

	if s.Conversation != "" {
		content.WriteString("Talking to:\n" + s.Conversation + "\n\n")
	}
	if s.Energy != nil {
		fmt.Fprintf(&content, "Energy:\n%s %d/%d\n\n",
			strings.Repeat("♥", s.Energy.Current)+strings.Repeat("♡", max(0, s.Energy.Max-s.Energy.Current)),
			s.Energy.Current, s.Energy.Max)
	}
	if len(s.Recruits.Monsters) > 0 || s.Recruits.TrapMaker != "" {
		content.WriteString("Recruits:\n")
		monsters := append([]string(nil), s.Recruits.Monsters...)
		sort.Strings(monsters)
		for _, id := range monsters {
			content.WriteString("• " + id + "\n")
		}
		if s.Recruits.TrapMaker != "" {
			content.WriteString("• " + s.Recruits.TrapMaker + " (traps)\n")
		}
		content.WriteString("\n")
	}
	fmt.Fprintf(&content, "Achievements:\n%d/%d\n\n", s.Achievements.Unlocked, s.Achievements.Total)

	content.WriteString("Commands:\n")
	content.WriteString("• Ctrl+C: Quit\n")
	content.WriteString("• Enter: Send\n")
	content.WriteString("• /help: Help\n")

	return content.String()
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyEnter:
			return m, tea.Quit
		default:
			switch msg.String() {
			case "y", "Y":
				return m, tea.Quit
			case "n", "N":
				m.showQuitModal = false
				m.textarea.Focus()
				return m, textarea.Blink
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Quit Game?"))
	content.WriteString("\n\n")
	content.WriteString("Your progress is saved on the server.")
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to continue, or Ctrl+C to force quit"))

	modal := modalStyle.Width(50).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if m.showQuitModal {
		return m.renderQuitModal()
	}

	if !m.ready {
		return "\n  Initializing..."
	}

	chatWidth := int(float64(m.width)*0.7) - 4
	metaWidth := m.width - chatWidth - 6

	chatPanel := chatPanelStyle.Width(chatWidth).Height(m.height - 3).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.chatViewport.View(),
			"",
			separatorStyle.Render(strings.Repeat("─", max(0, chatWidth-4))),
			m.textarea.View(),
		),
	)

	metaPanel := metaPanelStyle.Width(metaWidth).Height(m.height - 2).Render(
		m.metaViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, chatPanel, metaPanel)
}

// renderProgressBar creates an animated progress bar for loading states
func (m ConsoleUI) renderProgressBar() string {
	usable := m.chatViewport.Width - 6
	if usable > 80 {
		usable = 80
	} else if usable < 10 {
		usable = 10
	}

	const totalFrames = 40
	frame := m.progressTick % totalFrames
	filled := (frame * usable) / totalFrames

	var bar strings.Builder
	for i := 0; i < usable; i++ {
		if i < filled {
			bar.WriteString("█")
		} else if i == filled && frame%4 < 2 {
			bar.WriteString("▓") // Blinking effect at the progress point
		} else {
			bar.WriteString("░")
		}
	}
	return separatorStyle.Render(bar.String())
}

// progressTick creates a command that sends a progress tick message
func progressTick() tea.Cmd {
	return tea.Tick(time.Millisecond*200, func(time.Time) tea.Msg {
		return progressTickMsg{}
	})
}
