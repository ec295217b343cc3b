// Package bot is the chat-facing surface: it receives Telegram updates,
// dispatches commands and inline-keyboard callbacks, and spawns a session
// controller per download request.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/zS1L3NT/go-telegram-dramaload/internal/browser"
	"github.com/zS1L3NT/go-telegram-dramaload/internal/chat"
	"github.com/zS1L3NT/go-telegram-dramaload/internal/config"
	"github.com/zS1L3NT/go-telegram-dramaload/internal/models"
	"github.com/zS1L3NT/go-telegram-dramaload/internal/session"
	"github.com/zS1L3NT/go-telegram-dramaload/internal/solver"
	"github.com/zS1L3NT/go-telegram-dramaload/internal/store"
)

const helpText = `Send /search <title> to look up a show.
Pick an episode and I will fetch its download links for you.
While a puzzle is on screen, tap the matching squares in order and press Submit.`

// episodesPerRow bounds the episode keyboard width.
const episodesPerRow = 5

// staleActionAge is how long an inline keyboard stays usable after it was
// sent.
const staleActionAge = 24 * time.Hour

// Transport is the chat surface plus the update stream behind it.
type Transport interface {
	chat.Chat
	Updates() tgbotapi.UpdatesChannel
	StopUpdates()
	AnswerCallback(callbackID string)
}

// Store is everything the dispatch path and its session controllers persist.
type Store interface {
	session.Store
	PutActions(ctx context.Context, key models.SessionKey, actions []models.Action) error
	GetAction(ctx context.Context, key models.SessionKey, index int) (*models.Action, error)
	AppendSquare(ctx context.Context, key models.SessionKey, value int) error
	CleanupActionsOlderThan(ctx context.Context, threshold time.Time) (int64, error)
}

// Catalog resolves shows and episodes from the site listings.
type Catalog interface {
	solver.URLResolver
	Search(ctx context.Context, keyword string) ([]models.ActionEpisodes, error)
	Episodes(ctx context.Context, show string) ([]models.ActionDownload, error)
}

// Bot dispatches updates to handlers and tracks running sessions.
type Bot struct {
	tg      Transport
	store   Store
	catalog Catalog
	cfg     *config.Config
	logger  *slog.Logger
	launch  session.DriverFactory
	wg      sync.WaitGroup
}

// New wires a bot. The default driver factory launches a real headless
// browser per session.
func New(tg Transport, st Store, catalog Catalog, cfg *config.Config, logger *slog.Logger) *Bot {
	b := &Bot{
		tg:      tg,
		store:   st,
		catalog: catalog,
		cfg:     cfg,
		logger:  logger.With("component", "bot"),
	}
	b.launch = func() (browser.Driver, error) {
		return browser.Launch(cfg.ChromePath, logger)
	}
	return b
}

// Run consumes updates until the context is cancelled, then waits for every
// in-flight session to finish.
func (b *Bot) Run(ctx context.Context) {
	updates := b.tg.Updates()

	cleanupDone := make(chan struct{})
	go func() {
		defer close(cleanupDone)
		b.cleanupLoop(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			b.tg.StopUpdates()
			b.wg.Wait()
			<-cleanupDone
			return
		case update, ok := <-updates:
			if !ok {
				b.wg.Wait()
				<-cleanupDone
				return
			}
			b.handleUpdate(ctx, update)
		}
	}
}

// cleanupLoop prunes inline keyboards whose action caches have gone stale.
func (b *Bot) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := b.store.CleanupActionsOlderThan(ctx, time.Now().Add(-staleActionAge)); err != nil {
				b.logger.Warn("action cache cleanup failed", "error", err)
			}
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	from := update.SentFrom()
	if from == nil {
		return
	}
	if !b.cfg.Allows(from.ID) {
		b.logger.Warn("update from unauthorised user", "user_id", from.ID)
		return
	}

	switch {
	case update.Message != nil && update.Message.IsCommand():
		// Commands hit the site listings; never block the loop on them.
		msg := update.Message
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.handleCommand(ctx, msg)
		}()
	case update.CallbackQuery != nil:
		b.tg.AnswerCallback(update.CallbackQuery.ID)
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start", "help":
		if _, err := b.tg.Notify(msg.Chat.ID, helpText, nil); err != nil {
			b.logger.Warn("help message failed", "error", err)
		}
	case "search":
		query := msg.CommandArguments()
		if query == "" {
			if _, err := b.tg.Notify(msg.Chat.ID, "Usage: /search <title>", nil); err != nil {
				b.logger.Warn("usage message failed", "error", err)
			}
			return
		}
		b.handleSearch(ctx, msg.Chat.ID, query)
	}
}

// handleSearch lists matching shows behind an action keyboard. The message is
// sent first so its id can key the cached actions, then edited to attach the
// keyboard.
func (b *Bot) handleSearch(ctx context.Context, chatID int64, query string) {
	shows, err := b.catalog.Search(ctx, query)
	if err != nil {
		b.logger.Error("search failed", "query", query, "error", err)
		b.notify(chatID, "The search failed. Please try again.")
		return
	}
	if len(shows) == 0 {
		b.notify(chatID, fmt.Sprintf("No results for %q.", query))
		return
	}

	text := fmt.Sprintf("Results for %q:", query)
	h, err := b.tg.Notify(chatID, text, nil)
	if err != nil {
		b.logger.Error("results message failed", "error", err)
		return
	}
	key := models.SessionKey{ChatID: h.ChatID, MessageID: h.MessageID}

	actions := make([]models.Action, 0, len(shows))
	buttons := make([][]chat.Button, 0, len(shows))
	for i, s := range shows {
		actions = append(actions, models.NewEpisodesAction(s.Show, s.Image))
		p := chat.Payload{Kind: chat.KindAction, Key: key, Value: i}
		buttons = append(buttons, []chat.Button{{Text: s.Show, Data: p.Encode()}})
	}

	if err := b.store.PutActions(ctx, key, actions); err != nil {
		b.logger.Error("caching search actions failed", "error", err)
		return
	}
	if err := b.tg.EditStatus(h, text, buttons); err != nil {
		b.logger.Warn("attaching results keyboard failed", "error", err)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	payload, err := chat.DecodePayload(cb.Data)
	if err != nil {
		b.logger.Warn("undecodable callback", "data", cb.Data, "error", err)
		return
	}

	// Squares and stops are plain store writes and stay on the loop, so one
	// operator's taps append in arrival order and a cancel is honored within
	// its poll interval even while a scrape is in flight. Actions scrape the
	// site and run concurrently.
	switch payload.Kind {
	case chat.KindAction:
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.handleAction(ctx, payload)
		}()
	case chat.KindSquare:
		if err := b.store.AppendSquare(ctx, payload.Key, payload.Value); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				b.logger.Debug("square for a finished puzzle ignored", "key", payload.Key.String())
				return
			}
			b.logger.Error("queueing square failed", "error", err)
		}
	case chat.KindStop:
		if err := session.Cancel(ctx, b.store, payload.Key); err != nil {
			b.logger.Error("cancel failed", "key", payload.Key.String(), "error", err)
		}
	default:
		b.logger.Warn("unknown callback kind", "data", cb.Data)
	}
}

// handleAction looks up a cached action and dispatches on its kind.
func (b *Bot) handleAction(ctx context.Context, payload chat.Payload) {
	action, err := b.store.GetAction(ctx, payload.Key, payload.Value)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			b.notify(payload.Key.ChatID, "That keyboard has expired. Please search again.")
			return
		}
		b.logger.Error("loading action failed", "error", err)
		return
	}

	switch action.Kind {
	case models.KindEpisodes:
		b.handleEpisodes(ctx, payload.Key.ChatID, action.Episodes)
	case models.KindDownload:
		b.startSession(ctx, payload.Key.ChatID, action.Download)
	default:
		b.logger.Error("unknown action kind in cache", "kind", string(action.Kind))
	}
}

// handleEpisodes shows the episode keyboard for one show, with its poster if
// the listing carried one.
func (b *Bot) handleEpisodes(ctx context.Context, chatID int64, action *models.ActionEpisodes) {
	episodes, err := b.catalog.Episodes(ctx, action.Show)
	if err != nil {
		b.logger.Error("episode listing failed", "show", action.Show, "error", err)
		b.notify(chatID, "Could not list episodes. Please try again.")
		return
	}
	if len(episodes) == 0 {
		b.notify(chatID, fmt.Sprintf("No episodes found for %s.", action.Show))
		return
	}

	if action.Image != "" {
		if _, err := b.tg.SendImageURL(chatID, action.Image, action.Show, nil); err != nil {
			b.logger.Warn("poster failed", "show", action.Show, "error", err)
		}
	}

	text := fmt.Sprintf("Episodes of %s:", action.Show)
	h, err := b.tg.Notify(chatID, text, nil)
	if err != nil {
		b.logger.Error("episodes message failed", "error", err)
		return
	}
	key := models.SessionKey{ChatID: h.ChatID, MessageID: h.MessageID}

	actions := make([]models.Action, 0, len(episodes))
	var buttons [][]chat.Button
	var row []chat.Button
	for i, e := range episodes {
		actions = append(actions, models.NewDownloadAction(e.Show, e.Episode))
		p := chat.Payload{Kind: chat.KindAction, Key: key, Value: i}
		row = append(row, chat.Button{Text: strconv.Itoa(e.Episode), Data: p.Encode()})
		if len(row) == episodesPerRow {
			buttons = append(buttons, row)
			row = nil
		}
	}
	if len(row) > 0 {
		buttons = append(buttons, row)
	}

	if err := b.store.PutActions(ctx, key, actions); err != nil {
		b.logger.Error("caching episode actions failed", "error", err)
		return
	}
	if err := b.tg.EditStatus(h, text, buttons); err != nil {
		b.logger.Warn("attaching episode keyboard failed", "error", err)
	}
}

// startSession spawns a session controller goroutine for one download.
func (b *Bot) startSession(ctx context.Context, chatID int64, action *models.ActionDownload) {
	req := models.ChallengeRequest{Show: action.Show, Episode: action.Episode}
	newRunner := func(key models.SessionKey, driver browser.Driver, display solver.Display) session.Runner {
		return solver.New(key, driver, b.store, b.catalog, display, b.cfg, b.logger)
	}
	ctrl := session.New(chatID, req, b.tg, b.store, b.launch, newRunner, b.cfg, b.logger)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctrl.Run(ctx)
	}()
}

func (b *Bot) notify(chatID int64, text string) {
	if _, err := b.tg.Notify(chatID, text, nil); err != nil {
		b.logger.Warn("notification failed", "error", err)
	}
}
