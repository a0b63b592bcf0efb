package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"

	"github.com/voss-dev/forumsync/internal/client/api"
	"github.com/voss-dev/forumsync/internal/client/chat"
	"github.com/voss-dev/forumsync/internal/client/conn"
	"github.com/voss-dev/forumsync/internal/client/session"
)

// --- Styles ---

var (
	primaryColor = lipgloss.Color("#7C3AED")
	accentColor  = lipgloss.Color("#10B981")
	mutedColor   = lipgloss.Color("#9CA3AF")
	errorColor   = lipgloss.Color("#EF4444")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	ownMessageStyle = lipgloss.NewStyle().
			Foreground(accentColor)

	otherMessageStyle = lipgloss.NewStyle().
				Foreground(primaryColor)

	onlineStyle = lipgloss.NewStyle().
			Foreground(accentColor)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)
)

// --- View State ---

type viewState int

const (
	viewAuth viewState = iota
	viewMain
)

// narrowWidth is the terminal width under which the user list and the
// conversation collapse into a single toggling pane.
const narrowWidth = 80

// --- Core wiring ---

// core bundles the chat engine behind the TUI. Built after authentication,
// torn down on logout.
type core struct {
	app  *chat.AppState
	rest *api.Client
	sock *conn.Manager
	ctrl *chat.Controller
}

func newCore(serverURL string, user api.User, token string, events chan tea.Msg) *core {
	app := &chat.AppState{UserID: user.ID, Nickname: user.Nickname, Token: token}
	rest := api.New(serverURL, token)

	wsURL := strings.Replace(serverURL, "http", "ws", 1) + "/ws"
	header := http.Header{}
	header.Add("Cookie", "session_id="+token)
	sock := conn.New(wsURL, header)

	ctrl := chat.NewController(app, &uiBridge{events: events}, rest, sock)
	ctrl.Bind(sock)
	return &core{app: app, rest: rest, sock: sock, ctrl: ctrl}
}

// --- Core events (uiBridge implements chat.View by pushing these) ---

type userListMsg []chat.UserEntry

type historyMsg struct {
	peer int
	msgs []chat.ViewMessage
}

type appendMsg struct {
	peer int
	msg  chat.ViewMessage
}

type retractMsg struct {
	peer int
	id   string
}

type confirmMsg struct {
	peer         int
	oldID, newID string
	isRead       bool
}

type messageReadMsg struct{ id string }

type conversationMsg struct{ peer int }

type typingMsg struct {
	peer   int
	name   string
	typing bool
}

type coreErrMsg struct {
	scope string
	err   error
}

type forcedLogoutMsg struct{ reason string }

type uiBridge struct {
	events chan tea.Msg
}

func (b *uiBridge) push(msg tea.Msg) {
	select {
	case b.events <- msg:
	default:
		// The UI is gone or hopelessly behind; dropping is the only option.
	}
}

func (b *uiBridge) ShowConversation(peerID int) { b.push(conversationMsg{peer: peerID}) }
func (b *uiBridge) RenderHistory(peerID int, msgs []chat.ViewMessage) {
	b.push(historyMsg{peer: peerID, msgs: msgs})
}
func (b *uiBridge) AppendMessage(peerID int, msg chat.ViewMessage) {
	b.push(appendMsg{peer: peerID, msg: msg})
}
func (b *uiBridge) RetractMessage(peerID int, id string) {
	b.push(retractMsg{peer: peerID, id: id})
}
func (b *uiBridge) ConfirmMessage(peerID int, oldID, newID string, isRead bool) {
	b.push(confirmMsg{peer: peerID, oldID: oldID, newID: newID, isRead: isRead})
}
func (b *uiBridge) MarkMessageRead(id string)            { b.push(messageReadMsg{id: id}) }
func (b *uiBridge) RenderUserList(users []chat.UserEntry) { b.push(userListMsg(users)) }
func (b *uiBridge) ShowTyping(peerID int, name string) {
	b.push(typingMsg{peer: peerID, name: name, typing: true})
}
func (b *uiBridge) ClearTyping(peerID int) { b.push(typingMsg{peer: peerID}) }
func (b *uiBridge) ShowError(scope string, err error) {
	b.push(coreErrMsg{scope: scope, err: err})
}
func (b *uiBridge) ForceLogout(reason string) { b.push(forcedLogoutMsg{reason: reason}) }

// --- Commands ---

func waitForEvent(events chan tea.Msg) tea.Cmd {
	return func() tea.Msg { return <-events }
}

type loginDoneMsg struct {
	user  api.User
	token string
}

type authErrMsg struct{ err error }

type registeredMsg struct{}

type connectedMsg struct{}

func doLogin(serverURL, identifier, password string) tea.Cmd {
	return func() tea.Msg {
		client := api.New(serverURL, "")
		user, token, err := client.Login(context.Background(), api.Credentials{
			Identifier: identifier,
			Password:   password,
		})
		if err != nil {
			return authErrMsg{err: err}
		}
		return loginDoneMsg{user: user, token: token}
	}
}

func doRegister(serverURL, nickname, email, password string) tea.Cmd {
	return func() tea.Msg {
		client := api.New(serverURL, "")
		err := client.Register(context.Background(), api.Registration{
			Nickname: nickname,
			Email:    email,
			Password: password,
		})
		if err != nil {
			return authErrMsg{err: err}
		}
		return registeredMsg{}
	}
}

func resumeSession(serverURL string, sess *session.Session) tea.Cmd {
	return func() tea.Msg {
		client := api.New(serverURL, sess.Token)
		user, err := client.Me(context.Background())
		if err != nil {
			return authErrMsg{err: err}
		}
		return loginDoneMsg{user: user, token: sess.Token}
	}
}

func openConnection(c *core) tea.Cmd {
	return func() tea.Msg {
		if err := c.sock.Open(); err != nil {
			return authErrMsg{err: err}
		}
		return connectedMsg{}
	}
}

func openConversation(c *core, peerID int) tea.Cmd {
	return func() tea.Msg {
		c.ctrl.OpenConversation(context.Background(), peerID)
		return nil
	}
}

func loadOlder(c *core) tea.Cmd {
	return func() tea.Msg {
		c.ctrl.LoadOlder(context.Background())
		return nil
	}
}

func sendMessage(c *core, content string) tea.Cmd {
	return func() tea.Msg {
		c.ctrl.SendMessage(context.Background(), content)
		return nil
	}
}

func doLogout(c *core) tea.Cmd {
	return func() tea.Msg {
		c.ctrl.Logout(context.Background())
		return nil
	}
}

// --- Main Model ---

type model struct {
	serverURL string
	profile   string
	events    chan tea.Msg
	core      *core

	view viewState

	// Auth
	authAction      string // "login" or "register"
	identifierInput textinput.Model
	emailInput      textinput.Model
	passwordInput   textinput.Model
	authFocused     int
	authError       string
	authNotice      string

	// Main
	users        []chat.UserEntry
	selectedUser int
	activePeer   int
	peerName     string
	messages     []chat.ViewMessage
	typingLine   string
	errorLine    string
	focusInput   bool
	showList     bool // narrow layout: list pane vs conversation pane
	messageInput textinput.Model
	chatViewport viewport.Model

	width  int
	height int
}

func initialModel(serverURL, profile string) model {
	identifierInput := textinput.New()
	identifierInput.Placeholder = "Nickname or email"
	identifierInput.Focus()
	identifierInput.CharLimit = 64
	identifierInput.Width = 30

	emailInput := textinput.New()
	emailInput.Placeholder = "Email"
	emailInput.CharLimit = 64
	emailInput.Width = 30

	passwordInput := textinput.New()
	passwordInput.Placeholder = "Password"
	passwordInput.EchoMode = textinput.EchoPassword
	passwordInput.CharLimit = 64
	passwordInput.Width = 30

	messageInput := textinput.New()
	messageInput.Placeholder = "Type a message..."
	messageInput.CharLimit = 1000
	messageInput.Width = 50

	return model{
		serverURL:       serverURL,
		profile:         profile,
		events:          make(chan tea.Msg, 64),
		view:            viewAuth,
		authAction:      "login",
		identifierInput: identifierInput,
		emailInput:      emailInput,
		passwordInput:   passwordInput,
		messageInput:    messageInput,
		chatViewport:    viewport.New(80, 20),
		showList:        true,
	}
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, waitForEvent(m.events)}
	if sess := session.Load(m.profile); sess != nil && sess.ServerURL == m.serverURL {
		cmds = append(cmds, resumeSession(m.serverURL, sess))
	}
	return tea.Batch(cmds...)
}

// --- Update ---

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.chatViewport.Width = m.chatPaneWidth()
		m.chatViewport.Height = msg.Height - 7
		m.refreshViewport()

	case tea.KeyMsg:
		var cmd tea.Cmd
		m, cmd = m.handleKey(msg)
		cmds = append(cmds, cmd)

	// Auth results

	case loginDoneMsg:
		m.core = newCore(m.serverURL, msg.user, msg.token, m.events)
		session.Save(m.profile, session.Session{
			ServerURL: m.serverURL,
			Token:     msg.token,
			UserID:    msg.user.ID,
			Nickname:  msg.user.Nickname,
		})
		m.authError = ""
		cmds = append(cmds, openConnection(m.core))

	case connectedMsg:
		m.view = viewMain
		m.showList = true

	case registeredMsg:
		m.authAction = "login"
		m.authNotice = "Registered. Please log in."

	case authErrMsg:
		m.core = nil
		m.authError = msg.err.Error()

	// Core events

	case userListMsg:
		m.users = msg
		if m.selectedUser >= len(m.users) {
			m.selectedUser = 0
		}
		cmds = append(cmds, waitForEvent(m.events))

	case conversationMsg:
		m.activePeer = msg.peer
		m.peerName = m.nicknameOf(msg.peer)
		m.messages = nil
		m.typingLine = ""
		m.errorLine = ""
		m.showList = false
		m.focusInput = true
		m.messageInput.Focus()
		m.refreshViewport()
		cmds = append(cmds, waitForEvent(m.events))

	case historyMsg:
		if msg.peer == m.activePeer {
			m.messages = msg.msgs
			m.refreshViewport()
		}
		cmds = append(cmds, waitForEvent(m.events))

	case appendMsg:
		if msg.peer == m.activePeer {
			m.messages = append(m.messages, msg.msg)
			m.refreshViewport()
		}
		cmds = append(cmds, waitForEvent(m.events))

	case retractMsg:
		if msg.peer == m.activePeer {
			for i := range m.messages {
				if m.messages[i].ID == msg.id {
					m.messages = append(m.messages[:i], m.messages[i+1:]...)
					break
				}
			}
			m.refreshViewport()
		}
		cmds = append(cmds, waitForEvent(m.events))

	case confirmMsg:
		if msg.peer == m.activePeer {
			for i := range m.messages {
				if m.messages[i].ID == msg.oldID {
					m.messages[i].ID = msg.newID
					m.messages[i].IsRead = msg.isRead
					break
				}
			}
			m.refreshViewport()
		}
		cmds = append(cmds, waitForEvent(m.events))

	case messageReadMsg:
		for i := range m.messages {
			if m.messages[i].ID == msg.id {
				m.messages[i].IsRead = true
				break
			}
		}
		m.refreshViewport()
		cmds = append(cmds, waitForEvent(m.events))

	case typingMsg:
		if msg.peer == m.activePeer {
			if msg.typing {
				m.typingLine = msg.name + " is typing..."
			} else {
				m.typingLine = ""
			}
		}
		cmds = append(cmds, waitForEvent(m.events))

	case coreErrMsg:
		m.errorLine = fmt.Sprintf("%s: %v", msg.scope, msg.err)
		cmds = append(cmds, waitForEvent(m.events))

	case forcedLogoutMsg:
		session.Clear(m.profile)
		m.core = nil
		m.view = viewAuth
		m.activePeer = 0
		m.users = nil
		m.messages = nil
		m.typingLine = ""
		m.authError = msg.reason
		m.identifierInput.Focus()
		cmds = append(cmds, waitForEvent(m.events))
	}

	// Route input updates to the focused field.
	switch m.view {
	case viewAuth:
		var cmd tea.Cmd
		switch m.authFocused {
		case 0:
			m.identifierInput, cmd = m.identifierInput.Update(msg)
		case 1:
			m.emailInput, cmd = m.emailInput.Update(msg)
		default:
			m.passwordInput, cmd = m.passwordInput.Update(msg)
		}
		cmds = append(cmds, cmd)
	case viewMain:
		if m.focusInput {
			var cmd tea.Cmd
			m.messageInput, cmd = m.messageInput.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	return m, tea.Batch(cmds...)
}

func (m model) handleKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch m.view {
	case viewAuth:
		return m.handleAuthKey(msg)
	case viewMain:
		return m.handleMainKey(msg)
	}
	return m, nil
}

func (m model) handleAuthKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit

	case "ctrl+r":
		if m.authAction == "login" {
			m.authAction = "register"
		} else {
			m.authAction = "login"
		}
		m.authFocused = 0
		m.authNotice = ""
		m.authError = ""

	case "tab", "shift+tab":
		fields := 2
		if m.authAction == "register" {
			fields = 3
		}
		if msg.String() == "tab" {
			m.authFocused = (m.authFocused + 1) % fields
		} else {
			m.authFocused = (m.authFocused + fields - 1) % fields
		}
		// Skip the email field when logging in.
		if m.authAction == "login" && m.authFocused == 1 {
			m.authFocused = 2
		}
		m.identifierInput.Blur()
		m.emailInput.Blur()
		m.passwordInput.Blur()
		switch m.authFocused {
		case 0:
			m.identifierInput.Focus()
		case 1:
			m.emailInput.Focus()
		default:
			m.passwordInput.Focus()
		}

	case "enter":
		id := strings.TrimSpace(m.identifierInput.Value())
		pw := m.passwordInput.Value()
		if id == "" || pw == "" {
			return m, nil
		}
		if m.authAction == "register" {
			email := strings.TrimSpace(m.emailInput.Value())
			if email == "" {
				return m, nil
			}
			return m, doRegister(m.serverURL, id, email, pw)
		}
		return m, doLogin(m.serverURL, id, pw)
	}
	return m, nil
}

func (m model) handleMainKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit

	case "ctrl+l":
		if m.core != nil {
			return m, doLogout(m.core)
		}

	case "esc":
		if m.activePeer != 0 {
			m.core.ctrl.CloseConversation()
			m.activePeer = 0
			m.peerName = ""
			m.messages = nil
			m.typingLine = ""
			m.focusInput = false
			m.messageInput.Blur()
			m.showList = true
		}

	case "tab":
		if m.activePeer != 0 {
			m.focusInput = !m.focusInput
			if m.focusInput {
				m.messageInput.Focus()
			} else {
				m.messageInput.Blur()
			}
			if m.narrow() {
				m.showList = !m.focusInput
			}
		}

	case "up", "down":
		if !m.focusInput {
			if msg.String() == "up" && m.selectedUser > 0 {
				m.selectedUser--
			}
			if msg.String() == "down" && m.selectedUser < len(m.users)-1 {
				m.selectedUser++
			}
			return m, nil
		}

	case "pgup":
		if m.activePeer != 0 && m.core != nil {
			return m, loadOlder(m.core)
		}

	case "enter":
		if !m.focusInput {
			if len(m.users) > 0 && m.core != nil {
				peer := m.users[m.selectedUser]
				return m, openConversation(m.core, peer.ID)
			}
			return m, nil
		}
		content := strings.TrimSpace(m.messageInput.Value())
		if content != "" && m.core != nil {
			m.messageInput.SetValue("")
			return m, sendMessage(m.core, content)
		}

	default:
		// Plain typing inside the message input feeds the debounce.
		if m.focusInput && m.core != nil && msg.Type == tea.KeyRunes {
			m.core.ctrl.Keystroke()
		}
	}
	return m, nil
}

// --- View helpers ---

func (m model) narrow() bool {
	return m.width > 0 && m.width < narrowWidth
}

func (m model) chatPaneWidth() int {
	if m.narrow() || m.width == 0 {
		return max(20, m.width-4)
	}
	return m.width - 28
}

func (m *model) nicknameOf(peerID int) string {
	for _, u := range m.users {
		if u.ID == peerID {
			return u.Nickname
		}
	}
	return fmt.Sprintf("user #%d", peerID)
}

func (m *model) refreshViewport() {
	var content strings.Builder
	for _, msg := range m.messages {
		ts := msg.Timestamp.Local().Format("15:04")
		style := otherMessageStyle
		ticks := ""
		if msg.Mine {
			style = ownMessageStyle
			if msg.IsRead {
				ticks = " ✓✓"
			} else {
				ticks = " ✓"
			}
		}
		content.WriteString(fmt.Sprintf("%s %s: %s%s\n",
			mutedStyle.Render(ts),
			style.Render(msg.SenderName),
			msg.Content,
			mutedStyle.Render(ticks),
		))
	}
	m.chatViewport.SetContent(content.String())
	m.chatViewport.GotoBottom()
}

// --- View ---

func (m model) View() string {
	switch m.view {
	case viewAuth:
		return m.authView()
	case viewMain:
		return m.mainView()
	}
	return ""
}

func (m model) authView() string {
	var s strings.Builder

	s.WriteString("\n")
	s.WriteString(titleStyle.Render("FORUMSYNC"))
	s.WriteString("\n\n")

	if m.authAction == "login" {
		s.WriteString(selectedStyle.Render("  → Login"))
		s.WriteString(mutedStyle.Render("   Register\n"))
	} else {
		s.WriteString(mutedStyle.Render("  Login   "))
		s.WriteString(selectedStyle.Render("→ Register\n"))
	}
	s.WriteString(helpStyle.Render("  (Ctrl+R to switch)\n\n"))

	s.WriteString("  Nickname or email:\n")
	s.WriteString("  " + m.identifierInput.View() + "\n\n")
	if m.authAction == "register" {
		s.WriteString("  Email:\n")
		s.WriteString("  " + m.emailInput.View() + "\n\n")
	}
	s.WriteString("  Password:\n")
	s.WriteString("  " + m.passwordInput.View() + "\n\n")

	if m.authError != "" {
		s.WriteString(errorStyle.Render("  " + m.authError + "\n\n"))
	}
	if m.authNotice != "" {
		s.WriteString(selectedStyle.Render("  " + m.authNotice + "\n\n"))
	}

	s.WriteString(helpStyle.Render("  Tab to switch fields • Enter to submit • Esc to quit\n"))
	return s.String()
}

func (m model) usersPane() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("Users"))
	s.WriteString("\n")
	if len(m.users) == 0 {
		s.WriteString(mutedStyle.Render("  nobody here yet\n"))
	}
	for i, u := range m.users {
		prefix := "  "
		style := lipgloss.NewStyle()
		if i == m.selectedUser && !m.focusInput {
			prefix = "→ "
			style = selectedStyle
		}
		dot := mutedStyle.Render("○")
		if u.Online {
			dot = onlineStyle.Render("●")
		}
		s.WriteString(style.Render(fmt.Sprintf("%s%s %s", prefix, dot, u.Nickname)))
		s.WriteString("\n")
	}
	return s.String()
}

func (m model) chatPane() string {
	var s strings.Builder
	if m.activePeer == 0 {
		s.WriteString(mutedStyle.Render("\n  Select a user to start chatting.\n"))
		return s.String()
	}

	s.WriteString(titleStyle.Render("Chat with " + m.peerName))
	s.WriteString("\n")
	s.WriteString(m.chatViewport.View())
	s.WriteString("\n")
	if m.typingLine != "" {
		s.WriteString(helpStyle.Render(m.typingLine))
	}
	s.WriteString("\n")
	s.WriteString(m.messageInput.View())
	s.WriteString("\n")
	return s.String()
}

func (m model) mainView() string {
	var body string
	if m.narrow() {
		if m.showList {
			body = m.usersPane()
		} else {
			body = m.chatPane()
		}
	} else {
		left := lipgloss.NewStyle().Width(26).Render(m.usersPane())
		body = lipgloss.JoinHorizontal(lipgloss.Top, left, m.chatPane())
	}

	footer := helpStyle.Render("Enter open/send • Tab focus • PgUp older • Esc close • Ctrl+L logout • Ctrl+C quit")
	if m.errorLine != "" {
		footer = errorStyle.Render(m.errorLine) + "\n" + footer
	}
	return body + "\n" + footer
}

// --- Main ---

func main() {
	godotenv.Load()

	serverURL := os.Getenv("FORUMSYNC_SERVER")
	if serverURL == "" {
		serverURL = "http://localhost:8080"
	}
	profile := os.Getenv("FORUMSYNC_PROFILE")
	if profile == "" {
		profile = "default"
	}

	p := tea.NewProgram(initialModel(serverURL, profile), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}
