package telegram

import (
	"context"
	"errors"
	"fmt"
	"forgery-sim/internal/core/domain"
	"forgery-sim/internal/imaging"
	"forgery-sim/internal/session"
	view "forgery-sim/internal/ui"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const DefaultCaption = "Enjoying the view!"

const helpText = `*Forgery Detection Simulation*
/alice - act as Alice
/bob - act as Bob
/status - scenario step and unread count
/feed - posts visible to the active user
/notifications - open detection notices
/clear - clear notifications
/reset - restart the scenario
Send a photo to upload it as the active user.`

// botAPI is the part of *tgbotapi.BotAPI the presenter needs.
type botAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// TelegramUI drives the demo from a single Telegram chat.
type TelegramUI struct {
	bot        botAPI
	chatID     int64
	sess       *session.Session
	httpClient *http.Client
	logger     *zap.Logger

	// uploads runs photo handling off the update loop, one at a time.
	uploads errgroup.Group
}

type Option func(*TelegramUI)

func WithLogger(l *zap.Logger) Option {
	return func(ui *TelegramUI) {
		if l != nil {
			ui.logger = l
		}
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(ui *TelegramUI) { ui.httpClient = c }
}

func NewTelegramUI(token string, chatID int64, sess *session.Session, opts ...Option) (*TelegramUI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect telegram bot: %w", err)
	}
	return newUI(bot, chatID, sess, opts...), nil
}

func newUI(bot botAPI, chatID int64, sess *session.Session, opts ...Option) *TelegramUI {
	ui := &TelegramUI{
		bot:        bot,
		chatID:     chatID,
		sess:       sess,
		httpClient: http.DefaultClient,
		logger:     zap.NewNop(),
	}
	ui.uploads.SetLimit(1)
	for _, opt := range opts {
		opt(ui)
	}
	return ui
}

// Run long-polls for updates until ctx is done or the channel closes, then
// waits for in-flight uploads.
func (ui *TelegramUI) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := ui.bot.GetUpdatesChan(u)
	defer ui.bot.StopReceivingUpdates()

	ui.logger.Info("telegram presenter started", zap.Int64("chat_id", ui.chatID))
	ui.sendStatus()

	for {
		select {
		case <-ctx.Done():
			ui.Wait()
			return nil
		case update, ok := <-updates:
			if !ok {
				ui.Wait()
				return nil
			}
			ui.HandleUpdate(ctx, update)
		}
	}
}

// Wait blocks until background uploads have finished.
func (ui *TelegramUI) Wait() {
	_ = ui.uploads.Wait()
}

func (ui *TelegramUI) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		ui.handleCallback(update.CallbackQuery)
	case update.Message != nil:
		if update.Message.Chat == nil || update.Message.Chat.ID != ui.chatID {
			ui.logger.Debug("ignoring message from foreign chat")
			return
		}
		ui.handleMessage(ctx, update.Message)
	}
}

func (ui *TelegramUI) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		ui.handleCommand(msg.Command())
		return
	}
	if fileID, mime, ok := imageFile(msg); ok {
		ui.startUpload(ctx, fileID, mime, msg.Caption)
		return
	}
	ui.send("Send a photo to post it, or /help for commands.", nil)
}

func (ui *TelegramUI) handleCommand(cmd string) {
	switch cmd {
	case "start", "help":
		ui.send(helpText, nil)
		ui.sendStatus()
	case "alice":
		ui.switchUser(domain.FirstActorID)
	case "bob":
		ui.switchUser(domain.SecondActorID)
	case "status", "whoami":
		ui.sendStatus()
	case "feed":
		ui.sendFeed()
	case "notifications":
		ui.sendNotifications()
	case "clear":
		ui.sess.ClearNotifications()
		ui.send("🧹 Notifications cleared.", nil)
	case "reset":
		ui.sess.Reset()
		ui.send("🔄 Scenario reset.", nil)
		ui.sendStatus()
	default:
		ui.send("Unknown command. Try /help.", nil)
	}
}

func (ui *TelegramUI) handleCallback(cb *tgbotapi.CallbackQuery) {
	if cb.Message != nil && cb.Message.Chat != nil && cb.Message.Chat.ID != ui.chatID {
		return
	}
	answer := "Done"
	action, arg, _ := strings.Cut(cb.Data, ":")

	switch action {
	case "ack":
		post, err := ui.sess.AcknowledgeNotification(arg)
		if err != nil {
			answer = err.Error()
			ui.sendError(err)
			break
		}
		ui.sendReport(post)
		ui.sendStatus()
	case "report":
		post, err := ui.sess.ViewAnalysis(arg)
		if err != nil {
			answer = err.Error()
			ui.sendError(err)
			break
		}
		ui.sendReport(post)
	case "reset":
		ui.sess.Reset()
		ui.send("🔄 Scenario reset.", nil)
		ui.sendStatus()
	case "clear":
		ui.sess.ClearNotifications()
		ui.send("🧹 Notifications cleared.", nil)
	default:
		answer = "Unknown action"
	}

	if _, err := ui.bot.Request(tgbotapi.NewCallback(cb.ID, answer)); err != nil {
		ui.logger.Warn("callback answer failed", zap.Error(err))
	}
}

func (ui *TelegramUI) switchUser(id int) {
	u, err := ui.sess.SwitchUser(id)
	if err != nil {
		ui.sendError(err)
		return
	}
	ui.send(fmt.Sprintf("👤 Now acting as *%s*.", escapeMarkdown(u.Name)), nil)
	ui.sendStatus()
}

func (ui *TelegramUI) startUpload(ctx context.Context, fileID, mime, caption string) {
	if ui.sess.Busy() {
		ui.sendError(domain.ErrBusy)
		return
	}
	if strings.TrimSpace(caption) == "" {
		caption = DefaultCaption
	}
	started := ui.uploads.TryGo(func() error {
		ui.upload(ctx, fileID, mime, caption)
		return nil
	})
	if !started {
		ui.sendError(domain.ErrBusy)
	}
}

func (ui *TelegramUI) upload(ctx context.Context, fileID, mime, caption string) {
	img, err := ui.download(ctx, fileID, mime)
	if err != nil {
		ui.logger.Warn("photo download failed", zap.Error(err))
		ui.sendError(err)
		return
	}

	st := ui.sess.Snapshot()
	if st.Stage == domain.StageAwaitingTamperUpload && st.ActiveUser.ID == domain.SecondActorID {
		ui.send("⏳ *Forgery Detection in Progress*\nAnalyzing forgery...", nil)
	}

	res, err := ui.sess.Upload(ctx, img, caption)
	if err != nil {
		ui.sendError(err)
		return
	}
	ui.send(fmt.Sprintf("📸 Posted `%s`.", res.Post.ID), nil)
	if res.Tampered() {
		ui.sendReport(res.Post)
	}
	ui.sendStatus()
}

func (ui *TelegramUI) download(ctx context.Context, fileID, mime string) (domain.Image, error) {
	url, err := ui.bot.GetFileDirectURL(fileID)
	if err != nil {
		return domain.Image{}, fmt.Errorf("resolve telegram file: %w", err)
	}
	img, err := imaging.Fetch(ctx, ui.httpClient, url)
	if err != nil {
		return domain.Image{}, err
	}
	if mime != "" && strings.HasPrefix(mime, "image/") {
		img.MIMEType = mime
	}
	return img, nil
}

func (ui *TelegramUI) sendStatus() {
	st := ui.sess.Snapshot()
	in := view.ScenarioInstructions(st.Stage, st.ActiveUser)

	var markup interface{}
	if in.CanReset {
		markup = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔄 Reset Scenario", "reset"),
		))
	}
	text := fmt.Sprintf("*%s*", escapeMarkdown(view.FeedTitle(st.ActiveUser)))
	if n := view.UnreadCount(st.Notifications); n > 0 {
		text += fmt.Sprintf("  🔔 %d", n)
	}
	text += fmt.Sprintf("\n\n*%s*\n%s", escapeMarkdown(in.Title), escapeMarkdown(in.Description))
	if st.Busy {
		text += "\n\n⏳ Analysis in progress..."
	}
	ui.send(text, markup)
}

func (ui *TelegramUI) sendFeed() {
	st := ui.sess.Snapshot()
	posts := view.PostsToShow(st.ActiveUser, st.Posts)
	if len(posts) == 0 {
		ui.send("No Posts Yet. Upload an image to get started!", nil)
		return
	}

	var (
		sb   strings.Builder
		rows [][]tgbotapi.InlineKeyboardButton
	)
	fmt.Fprintf(&sb, "*%s*\n", escapeMarkdown(view.FeedTitle(st.ActiveUser)))
	for _, p := range posts {
		author := "unknown"
		if u, ok := ui.sess.User(p.UserID); ok {
			author = u.Name
		}
		mark := ""
		if p.IsTampered {
			mark = " ⚠️ TAMPERED"
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("📄 Report "+p.ID, "report:"+p.ID),
			))
		}
		fmt.Fprintf(&sb, "\n• `%s`%s\n  %s: %s", p.ID, mark, escapeMarkdown(author), escapeMarkdown(p.Caption))
	}

	var markup interface{}
	if len(rows) > 0 {
		markup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	}
	ui.send(sb.String(), markup)
}

func (ui *TelegramUI) sendNotifications() {
	ns := ui.sess.Snapshot().Notifications
	if len(ns) == 0 {
		ui.send("No new notifications.", nil)
		return
	}

	var (
		sb   strings.Builder
		rows [][]tgbotapi.InlineKeyboardButton
	)
	sb.WriteString("*Notifications*\n")
	for i, n := range ns {
		dot := "○"
		if !n.Read {
			dot = "●"
		}
		fmt.Fprintf(&sb, "\n%s %d. %s", dot, i+1, escapeMarkdown(n.Message))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Open #"+strconv.Itoa(i+1), "ack:"+n.ID),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🧹 Clear", "clear"),
	))
	ui.send(sb.String(), tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (ui *TelegramUI) sendReport(p domain.Post) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*[%s]*\n", escapeMarkdown(view.ReportTitle(p)))
	if p.Analysis == nil {
		sb.WriteString("\nAnalysis complete.")
	} else {
		for _, s := range view.ReportSections(*p.Analysis) {
			fmt.Fprintf(&sb, "\n%s *%s*\n%s\n", s.Icon, escapeMarkdown(s.Title), escapeMarkdown(s.Content))
		}
	}
	ui.send(sb.String(), nil)
}

func (ui *TelegramUI) sendError(err error) {
	var msg string
	switch {
	case errors.Is(err, domain.ErrBusy):
		msg = "⏳ An analysis is already running. Please wait for it to finish."
	default:
		msg = "❌ " + escapeMarkdown(view.FailureMessage(err))
	}
	ui.send(msg, nil)
}

func (ui *TelegramUI) send(text string, markup interface{}) {
	msg := tgbotapi.NewMessage(ui.chatID, text)
	msg.ParseMode = "Markdown"
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := ui.bot.Send(msg); err != nil {
		ui.logger.Warn("telegram send failed", zap.Error(err))
	}
}

// imageFile picks the largest photo size, or an image document.
func imageFile(msg *tgbotapi.Message) (fileID, mime string, ok bool) {
	if n := len(msg.Photo); n > 0 {
		return msg.Photo[n-1].FileID, "", true
	}
	if d := msg.Document; d != nil && strings.HasPrefix(d.MimeType, "image/") {
		return d.FileID, d.MimeType, true
	}
	return "", "", false
}

// escapeMarkdown escapes the characters that break Telegram legacy Markdown.
func escapeMarkdown(text string) string {
	replacer := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"`", "\\`",
	)
	return replacer.Replace(text)
}
