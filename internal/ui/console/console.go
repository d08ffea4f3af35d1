// Package console is a line-oriented front-end for the demo. It reads one
// command per line and re-renders from the session after every action.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"forgery-sim/internal/core/domain"
	"forgery-sim/internal/imaging"
	"forgery-sim/internal/session"
	"forgery-sim/internal/ui"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
)

const DefaultCaption = "Enjoying the view!"

const helpText = `Commands:
  whoami                    show the active user
  switch <alice|bob|id>     change the active user
  feed                      list posts visible to the active user
  post <path> [caption...]  upload an image as the active user
  notifications             list notifications
  open <n|id>               open a notification and show its report
  report <post-id>          show the analysis report of a post
  clear                     clear all notifications
  reset                     restart the scenario
  help                      show this help
  quit                      exit`

var errQuit = errors.New("quit")

type Console struct {
	sess   *session.Session
	in     io.Reader
	out    io.Writer
	render func(markdown string) (string, error)
	logger *zap.Logger

	banner, bannerHot, title, muted, alert lipgloss.Style
}

type Option func(*Console)

// WithMarkdownRenderer overrides the glamour renderer used for reports.
func WithMarkdownRenderer(fn func(string) (string, error)) Option {
	return func(c *Console) { c.render = fn }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Console) {
		if l != nil {
			c.logger = l
		}
	}
}

func New(sess *session.Session, in io.Reader, out io.Writer, opts ...Option) *Console {
	c := &Console{
		sess:   sess,
		in:     in,
		out:    out,
		logger: zap.NewNop(),

		banner:    lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1),
		bannerHot: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("205")).Padding(0, 1),
		title:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		muted:     lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		alert:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.render == nil {
		c.render = glamourRenderer()
	}
	return c
}

func glamourRenderer() func(string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return func(md string) (string, error) { return md, nil }
	}
	return r.Render
}

// Run processes commands until EOF, quit, or ctx is done.
func (c *Console) Run(ctx context.Context) error {
	fmt.Fprintln(c.out, c.title.Render("🛡️  Forgery Detection Simulation"))
	c.printStatus()

	scanner := bufio.NewScanner(c.in)
	for {
		fmt.Fprint(c.out, "\n> ")
		if !scanner.Scan() {
			fmt.Fprintln(c.out)
			return scanner.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.Execute(ctx, scanner.Text()); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			fmt.Fprintln(c.out, c.alert.Render(ui.FailureMessage(err)))
		}
	}
}

// Execute runs one command line.
func (c *Console) Execute(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	c.logger.Debug("console command", zap.String("cmd", cmd), zap.Int("args", len(args)))

	switch cmd {
	case "help", "?":
		fmt.Fprintln(c.out, helpText)
	case "whoami":
		c.printStatus()
	case "switch", "su":
		return c.switchUser(args)
	case "feed":
		c.printFeed()
	case "post", "upload":
		return c.post(ctx, args)
	case "notifications", "notifs", "n":
		c.printNotifications()
	case "open":
		return c.open(args)
	case "report":
		if len(args) != 1 {
			return errors.New("usage: report <post-id>")
		}
		p, err := c.sess.ViewAnalysis(args[0])
		if err != nil {
			return err
		}
		c.printReport(p)
	case "clear":
		c.sess.ClearNotifications()
		fmt.Fprintln(c.out, "🧹 Notifications cleared.")
	case "reset":
		c.sess.Reset()
		fmt.Fprintln(c.out, "🔄 Scenario reset.")
		c.printStatus()
	case "quit", "exit", "q":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
	return nil
}

func (c *Console) switchUser(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: switch <alice|bob|id>")
	}
	id, err := c.resolveUser(args[0])
	if err != nil {
		return err
	}
	u, err := c.sess.SwitchUser(id)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "👤 Now acting as %s.\n", u.Name)
	c.printStatus()
	return nil
}

func (c *Console) resolveUser(arg string) (int, error) {
	if id, err := strconv.Atoi(arg); err == nil {
		return id, nil
	}
	needle := strings.ToLower(arg)
	for _, u := range c.sess.Users() {
		for _, w := range strings.Fields(strings.ToLower(u.Name)) {
			if w == needle {
				return u.ID, nil
			}
		}
	}
	return 0, fmt.Errorf("%w: %s", domain.ErrUnknownUser, arg)
}

func (c *Console) post(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: post <path> [caption...]")
	}
	if c.sess.Busy() {
		return domain.ErrBusy
	}
	img, err := imaging.Load(args[0])
	if err != nil {
		return err
	}
	caption := strings.Join(args[1:], " ")
	if caption == "" {
		caption = DefaultCaption
	}

	st := c.sess.Snapshot()
	if st.Stage == domain.StageAwaitingTamperUpload && st.ActiveUser.ID == domain.SecondActorID {
		fmt.Fprintln(c.out, c.muted.Render("⏳ Forgery Detection in Progress: Analyzing forgery..."))
	}

	res, err := c.sess.Upload(ctx, img, caption)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "📸 Posted %s.\n", res.Post.ID)
	if res.Tampered() {
		c.printReport(res.Post)
	}
	c.printStatus()
	return nil
}

func (c *Console) open(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: open <n|id>")
	}
	id := args[0]
	if n, err := strconv.Atoi(id); err == nil {
		ns := c.sess.Snapshot().Notifications
		if n < 1 || n > len(ns) {
			return fmt.Errorf("%w: #%d", domain.ErrNotificationNotFound, n)
		}
		id = ns[n-1].ID
	}
	p, err := c.sess.AcknowledgeNotification(id)
	if err != nil {
		return err
	}
	if p.Analysis != nil {
		c.printReport(p)
	}
	c.printStatus()
	return nil
}

func (c *Console) printStatus() {
	st := c.sess.Snapshot()
	in := ui.ScenarioInstructions(st.Stage, st.ActiveUser)

	style := c.banner
	if in.Highlight {
		style = c.bannerHot
	}
	body := c.title.Render(in.Title) + "\n" + in.Description
	if in.CanReset {
		body += "\n" + c.muted.Render("Type 'reset' to run it again.")
	}

	badge := ""
	if n := ui.UnreadCount(st.Notifications); n > 0 {
		badge = c.alert.Render(fmt.Sprintf(" 🔔 %d", n))
	}
	fmt.Fprintf(c.out, "%s%s\n", c.title.Render(ui.FeedTitle(st.ActiveUser)), badge)
	fmt.Fprintln(c.out, style.Render(body))
	if st.Busy {
		fmt.Fprintln(c.out, c.muted.Render("⏳ Analysis in progress..."))
	}
}

func (c *Console) printFeed() {
	st := c.sess.Snapshot()
	posts := ui.PostsToShow(st.ActiveUser, st.Posts)
	if len(posts) == 0 {
		fmt.Fprintln(c.out, "No Posts Yet. Upload an image to get started!")
		return
	}
	for _, p := range posts {
		author := "unknown"
		if u, ok := c.sess.User(p.UserID); ok {
			author = u.Name
		}
		mark := ""
		if p.IsTampered {
			mark = c.alert.Render(" [TAMPERED]")
		}
		fmt.Fprintf(c.out, "• %s%s  %s\n  %s — %s\n", p.ID, mark, c.muted.Render(p.CreatedAt.Format("Jan 2 15:04")), author, p.Caption)
	}
}

func (c *Console) printNotifications() {
	ns := c.sess.Snapshot().Notifications
	if len(ns) == 0 {
		fmt.Fprintln(c.out, "No new notifications.")
		return
	}
	for i, n := range ns {
		dot := " "
		if !n.Read {
			dot = c.alert.Render("●")
		}
		fmt.Fprintf(c.out, "%s %d. %s\n", dot, i+1, n.Message)
	}
}

func (c *Console) printReport(p domain.Post) {
	md := ui.ReportMarkdown(p)
	out, err := c.render(md)
	if err != nil {
		c.logger.Warn("markdown render failed", zap.Error(err))
		out = md
	}
	fmt.Fprintln(c.out, out)
}
