package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/chatfeed/pkg/feed"
	"github.com/go-go-golems/chatfeed/pkg/responders"
)

var (
	userLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	botLabelStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	errLabelStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	inputPane      = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62"))
)

func newChatCommand() *cobra.Command {
	var user string
	var markdown bool
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the configured responder in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(configFile)
			if err != nil {
				return err
			}
			return runChat(cfg, user, markdown)
		},
	}
	cmd.Flags().StringVar(&user, "user", "User", "author name for sent messages")
	cmd.Flags().BoolVar(&markdown, "markdown", true, "render responses as markdown")
	return cmd
}

func runChat(cfg Config, user string, markdown bool) error {
	registry := responders.NewDefaultRegistry()
	cb, err := registry.Build(cfg.Responder.Kind, cfg.ResponderParams())
	if err != nil {
		return err
	}

	events := make(chan feed.LogEvent, 256)
	notifier := func(ev feed.LogEvent) {
		select {
		case events <- ev:
		default:
		}
	}
	opts := append(cfg.FeedOptions(), feed.WithCallback(cb), feed.WithNotifier(notifier))
	f := feed.New("local", opts...)

	model := newChatModel(f, events, user, markdown)
	_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
	return err
}

type feedEventMsg struct {
	ev feed.LogEvent
}

type chatModel struct {
	feed   *feed.Feed
	events chan feed.LogEvent
	user   string

	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model

	markdown bool
	ready    bool
	width    int
	height   int
	status   string
}

func newChatModel(f *feed.Feed, events chan feed.LogEvent, user string, markdown bool) chatModel {
	ta := textarea.New()
	ta.Placeholder = "Send a message..."
	ta.Focus()
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))

	return chatModel{
		feed:     f,
		events:   events,
		user:     user,
		textarea: ta,
		spinner:  sp,
		markdown: markdown,
	}
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick, m.waitForEvent())
}

func (m chatModel) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		return feedEventMsg{ev: <-m.events}
	}
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		vpHeight := msg.Height - m.textarea.Height() - 4
		if vpHeight < 1 {
			vpHeight = 1
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, vpHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = vpHeight
		}
		m.textarea.SetWidth(msg.Width - 2)
		m.refreshTranscript()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			text := strings.TrimSpace(m.textarea.Value())
			if text != "" {
				m.textarea.Reset()
				m.status = ""
				if _, err := m.feed.Send(context.Background(), feed.SendInput{Value: text, User: m.user}); err != nil {
					m.status = err.Error()
				}
				m.refreshTranscript()
			}
			return m, tea.Batch(cmds...)
		case tea.KeyCtrlY:
			if last := m.feed.Log().Last(); last != nil {
				if err := clipboard.WriteAll(last.Text()); err != nil {
					m.status = "copy failed: " + err.Error()
				} else {
					m.status = "copied last message"
				}
			}
			return m, nil
		case tea.KeyCtrlL:
			m.feed.Clear()
			m.refreshTranscript()
			return m, nil
		}

	case feedEventMsg:
		m.refreshTranscript()
		cmds = append(cmds, m.waitForEvent())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *chatModel) refreshTranscript() {
	if !m.ready {
		return
	}
	var b strings.Builder
	for _, msg := range m.feed.Log().Snapshot() {
		object, user, avatar := msg.Fields()
		label := fmt.Sprintf("%s %s", avatar, user)
		switch user {
		case m.user:
			b.WriteString(userLabelStyle.Render(label))
		case feed.ExceptionUser:
			b.WriteString(errLabelStyle.Render(label))
		default:
			b.WriteString(botLabelStyle.Render(label))
		}
		b.WriteString("\n")
		b.WriteString(m.renderBody(fmt.Sprint(object)))
		b.WriteString("\n")
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m *chatModel) renderBody(text string) string {
	if !m.markdown {
		return text
	}
	out, err := glamour.Render(text, "dark")
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n") + "\n"
}

func (m chatModel) View() string {
	if !m.ready {
		return "loading..."
	}
	status := m.status
	if m.feed.Busy() {
		status = m.spinner.View() + " thinking..."
	}
	return fmt.Sprintf(
		"%s\n%s\n%s",
		m.viewport.View(),
		inputPane.Render(m.textarea.View()),
		statusStyle.Render(status),
	)
}
