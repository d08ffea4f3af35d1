package telegram

import (
	"context"
	"errors"
	"forgery-sim/internal/config"
	"forgery-sim/internal/core/domain"
	"forgery-sim/internal/session"
	"forgery-sim/internal/storage"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const chatID = int64(4242)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type fakeBot struct {
	mu        sync.Mutex
	updates   chan tgbotapi.Update
	sent      []tgbotapi.MessageConfig
	callbacks []tgbotapi.CallbackConfig
	fileURL   string
	stopped   bool
}

func (b *fakeBot) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return b.updates
}

func (b *fakeBot) StopReceivingUpdates() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		b.sent = append(b.sent, m)
	}
	return tgbotapi.Message{MessageID: len(b.sent)}, nil
}

func (b *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := c.(tgbotapi.CallbackConfig); ok {
		b.callbacks = append(b.callbacks, cb)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (b *fakeBot) GetFileDirectURL(fileID string) (string, error) {
	if fileID == "broken" {
		return "", errors.New("file expired")
	}
	return b.fileURL + "/" + fileID, nil
}

func (b *fakeBot) texts() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var parts []string
	for _, m := range b.sent {
		parts = append(parts, m.Text)
	}
	return strings.Join(parts, "\n---\n")
}

func (b *fakeBot) last() tgbotapi.MessageConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sent[len(b.sent)-1]
}

func (b *fakeBot) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = nil
}

type gatedAnalyzer struct {
	gate chan struct{}
	err  error
}

func (a *gatedAnalyzer) AnalyzeForgery(ctx context.Context, _ string, _ domain.Image) (domain.ForgeryAnalysis, error) {
	if a.gate != nil {
		select {
		case <-a.gate:
		case <-ctx.Done():
			return domain.ForgeryAnalysis{}, ctx.Err()
		}
	}
	if a.err != nil {
		return domain.ForgeryAnalysis{}, a.err
	}
	return domain.ForgeryAnalysis{Vaccinator: "V1", Detector: "D1", Recovery: "R1", Assurance: "A1"}, nil
}

func newTestUI(t *testing.T, a *gatedAnalyzer) (*TelegramUI, *fakeBot, *session.Session) {
	t.Helper()
	files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes)
	}))
	t.Cleanup(files.Close)

	seed := config.DefaultSeed(time.Now())
	sess, err := session.New(storage.NewMemoryStorage(seed.Users, seed.Posts), a)
	require.NoError(t, err)

	bot := &fakeBot{updates: make(chan tgbotapi.Update), fileURL: files.URL}
	return newUI(bot, chatID, sess, WithHTTPClient(files.Client())), bot, sess
}

func command(name string) tgbotapi.Update {
	text := "/" + name
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Text:     text,
		Chat:     &tgbotapi.Chat{ID: chatID},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(text)}},
	}}
}

func photo(fileID, caption string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:    &tgbotapi.Chat{ID: chatID},
		Caption: caption,
		Photo:   []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: fileID}},
	}}
}

func callback(data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb-" + data,
		Data:    data,
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}},
	}}
}

func TestTelegramUI_FullScenario(t *testing.T) {
	ui, bot, sess := newTestUI(t, &gatedAnalyzer{})
	ctx := context.Background()

	ui.HandleUpdate(ctx, photo("alice-photo", "Sunset"))
	ui.Wait()
	require.Equal(t, domain.StageAwaitingTamperUpload, sess.Stage())

	ui.HandleUpdate(ctx, command("bob"))
	assert.Contains(t, bot.texts(), "Now acting as *Tamperer Bob*")

	ui.HandleUpdate(ctx, photo("bob-photo", ""))
	ui.Wait()
	require.Equal(t, domain.StageAwaitingNotificationCheck, sess.Stage())
	assert.Contains(t, bot.texts(), "Analyzing forgery...")
	assert.Contains(t, bot.texts(), "Forgery Detector Phase")

	st := sess.Snapshot()
	require.Len(t, st.Notifications, 1)
	tampered := st.Posts[len(st.Posts)-1]
	assert.Equal(t, DefaultCaption, tampered.Caption)

	ui.HandleUpdate(ctx, command("alice"))
	bot.reset()
	ui.HandleUpdate(ctx, command("notifications"))
	msg := bot.last()
	assert.Contains(t, msg.Text, "Tamperer Bob posted a tampered version of your image.")
	markup, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.NotNil(t, markup.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "ack:"+st.Notifications[0].ID, *markup.InlineKeyboard[0][0].CallbackData)

	ui.HandleUpdate(ctx, callback("ack:"+st.Notifications[0].ID))
	assert.Equal(t, domain.StageComplete, sess.Stage())
	assert.Contains(t, bot.texts(), "Simulation Complete!")
	require.NotEmpty(t, bot.callbacks)
	assert.Equal(t, "Done", bot.callbacks[len(bot.callbacks)-1].Text)

	ui.HandleUpdate(ctx, callback("reset"))
	st = sess.Snapshot()
	assert.Equal(t, domain.StageAwaitingOriginalPost, st.Stage)
	assert.Len(t, st.Posts, 1)
	assert.Empty(t, st.Notifications)
}

func TestTelegramUI_BusyRejectsSecondUpload(t *testing.T) {
	gate := make(chan struct{})
	ui, bot, sess := newTestUI(t, &gatedAnalyzer{gate: gate})
	ctx := context.Background()

	ui.HandleUpdate(ctx, photo("alice-photo", "Original"))
	ui.Wait()
	ui.HandleUpdate(ctx, command("bob"))

	ui.HandleUpdate(ctx, photo("bob-1", "first try"))
	require.Eventually(t, sess.Busy, time.Second, 5*time.Millisecond)

	bot.reset()
	ui.HandleUpdate(ctx, photo("bob-2", "second try"))
	assert.Contains(t, bot.texts(), "already running")

	close(gate)
	ui.Wait()
	assert.Len(t, sess.Snapshot().Notifications, 1)
}

func TestTelegramUI_AnalysisFailure(t *testing.T) {
	ui, bot, sess := newTestUI(t, &gatedAnalyzer{err: errors.New("model overloaded")})
	ctx := context.Background()

	ui.HandleUpdate(ctx, photo("alice-photo", "Original"))
	ui.Wait()
	ui.HandleUpdate(ctx, command("bob"))
	ui.HandleUpdate(ctx, photo("bob-photo", "tampered"))
	ui.Wait()

	assert.Contains(t, bot.texts(), "Process Failed")
	assert.Equal(t, domain.StageAwaitingTamperUpload, sess.Stage())
}

func TestTelegramUI_DownloadFailure(t *testing.T) {
	ui, bot, sess := newTestUI(t, &gatedAnalyzer{})
	ui.HandleUpdate(context.Background(), photo("broken", "x"))
	ui.Wait()

	assert.Contains(t, bot.texts(), "file expired")
	assert.Len(t, sess.Snapshot().Posts, 1)
}

func TestTelegramUI_IgnoresForeignChat(t *testing.T) {
	ui, bot, _ := newTestUI(t, &gatedAnalyzer{})
	ui.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		Text: "hello",
		Chat: &tgbotapi.Chat{ID: 1},
	}})
	assert.Empty(t, bot.texts())
}

func TestTelegramUI_Commands(t *testing.T) {
	ui, bot, _ := newTestUI(t, &gatedAnalyzer{})
	ctx := context.Background()

	ui.HandleUpdate(ctx, command("help"))
	assert.Contains(t, bot.texts(), "/notifications")

	bot.reset()
	ui.HandleUpdate(ctx, command("feed"))
	assert.Contains(t, bot.texts(), "post1")

	bot.reset()
	ui.HandleUpdate(ctx, command("notifications"))
	assert.Contains(t, bot.texts(), "No new notifications.")

	bot.reset()
	ui.HandleUpdate(ctx, command("dance"))
	assert.Contains(t, bot.texts(), "Unknown command")

	bot.reset()
	ui.HandleUpdate(ctx, callback("report:post1"))
	assert.Contains(t, bot.texts(), "Process Failed")
}

func TestTelegramUI_RunStopsCleanly(t *testing.T) {
	ui, bot, _ := newTestUI(t, &gatedAnalyzer{})
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- ui.Run(ctx) }()

	bot.updates <- command("status")
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.True(t, bot.stopped)
	assert.Contains(t, bot.texts(), "Step 1: Post an Image as Alice")
}

func TestEscapeMarkdown(t *testing.T) {
	assert.Equal(t, "a\\_b \\*c\\* \\[d] \\`e\\`", escapeMarkdown("a_b *c* [d] `e`"))
}
