// Package session owns the lifecycle of one automation run: register the
// session record, launch the browser, run the solver, and guarantee cleanup
// on every exit path including operator cancellation.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/zS1L3NT/go-telegram-dramaload/internal/browser"
	"github.com/zS1L3NT/go-telegram-dramaload/internal/chat"
	"github.com/zS1L3NT/go-telegram-dramaload/internal/config"
	"github.com/zS1L3NT/go-telegram-dramaload/internal/models"
	"github.com/zS1L3NT/go-telegram-dramaload/internal/solver"
)

// Store is the record store the controller needs: the session registry plus
// everything the solver polls.
type Store interface {
	PutSession(ctx context.Context, key models.SessionKey) error
	DeleteSession(ctx context.Context, key models.SessionKey) error
	SessionExists(ctx context.Context, key models.SessionKey) (bool, error)
	PutChallenge(ctx context.Context, st models.ChallengeState) error
	GetChallenge(ctx context.Context, key models.SessionKey) (*models.ChallengeState, error)
	CompleteChallenge(ctx context.Context, key models.SessionKey) error
	DeleteChallenge(ctx context.Context, key models.SessionKey) error
}

// Runner is the solving state machine for one session.
type Runner interface {
	Run(ctx context.Context, req models.ChallengeRequest) ([]models.DownloadLink, error)
}

// DriverFactory launches a fresh browser for one session.
type DriverFactory func() (browser.Driver, error)

// RunnerFactory builds the state machine once the session's key, browser and
// display exist.
type RunnerFactory func(key models.SessionKey, driver browser.Driver, display solver.Display) Runner

// Controller drives one download session end to end.
type Controller struct {
	req       models.ChallengeRequest
	chatID    int64
	chat      chat.Chat
	store     Store
	launch    DriverFactory
	newRunner RunnerFactory
	cfg       *config.Config
	logger    *slog.Logger

	key      models.SessionKey
	status   chat.Handle
	photo    chat.Handle
	hasPhoto bool
	gridSize int
	driver   browser.Driver

	finishOnce  sync.Once
	cleanupOnce sync.Once
}

// New assembles a controller for one download request.
func New(chatID int64, req models.ChallengeRequest, ch chat.Chat, st Store, launch DriverFactory, newRunner RunnerFactory, cfg *config.Config, logger *slog.Logger) *Controller {
	runID := ulid.Make().String()
	return &Controller{
		req:       req,
		chatID:    chatID,
		chat:      ch,
		store:     st,
		launch:    launch,
		newRunner: newRunner,
		cfg:       cfg,
		logger:    logger.With("component", "session", "run_id", runID),
	}
}

// Key returns the session key. Valid once Run has registered the session.
func (c *Controller) Key() models.SessionKey {
	return c.key
}

// Run executes the session to completion. It never returns an error; every
// outcome is reported through the chat surface and logged.
func (c *Controller) Run(ctx context.Context) {
	status, err := c.chat.Notify(c.chatID, fmt.Sprintf("Fetching %s episode %d...", c.req.Show, c.req.Episode), nil)
	if err != nil {
		c.logger.Error("session could not announce itself", "error", err)
		return
	}
	c.status = status
	c.key = models.SessionKey{ChatID: status.ChatID, MessageID: status.MessageID}
	c.logger = c.logger.With("session_id", c.key.String())

	// The record must exist before any external process is spawned; its
	// presence is what keeps the solver going.
	if err := c.store.PutSession(ctx, c.key); err != nil {
		c.logger.Error("session registration failed", "error", err)
		c.finish(nil, err)
		return
	}
	defer c.cleanup(ctx)

	if err := c.chat.EditStatus(c.status, fmt.Sprintf("Fetching %s episode %d...", c.req.Show, c.req.Episode), c.stopKeyboard()); err != nil {
		c.logger.Warn("attaching stop button failed", "error", err)
	}

	driver, err := c.launch()
	if err != nil {
		c.logger.Error("browser launch failed", "error", err)
		c.finish(nil, err)
		return
	}
	c.driver = driver

	links, err := c.newRunner(c.key, driver, display{c}).Run(ctx, c.req)
	c.finish(links, err)
}

// Cancel removes the session record; the solver notices the absence at its
// next checkpoint. This is the only sanctioned external cancel signal.
func Cancel(ctx context.Context, st Store, key models.SessionKey) error {
	return st.DeleteSession(ctx, key)
}

// finish delivers the terminal status exactly once. Cancelled sessions are
// silent; the operator asked for the teardown.
func (c *Controller) finish(links []models.DownloadLink, err error) {
	c.finishOnce.Do(func() {
		switch {
		case errors.Is(err, solver.ErrCancelled):
			c.logger.Info("session cancelled")
			if derr := c.chat.DeleteMessage(c.status); derr != nil {
				c.logger.Warn("removing status message failed", "error", derr)
			}
		case errors.Is(err, solver.ErrShutdown):
			c.logger.Info("session interrupted by shutdown")
			if eerr := c.chat.EditStatus(c.status, "The service is restarting. Please run the download again.", nil); eerr != nil {
				c.logger.Warn("final status edit failed", "error", eerr)
			}
		case err == nil:
			c.logger.Info("session succeeded", "links", len(links))
			text := fmt.Sprintf("%s episode %d is ready:\n", c.req.Show, c.req.Episode)
			for _, l := range links {
				text += fmt.Sprintf("\n%s\n%s\n", l.Quality, l.URL)
			}
			if eerr := c.chat.EditStatus(c.status, text, nil); eerr != nil {
				c.logger.Warn("final status edit failed", "error", eerr)
			}
		default:
			c.logger.Error("session failed", "error", err)
			if eerr := c.chat.EditStatus(c.status, failureMessage(err), nil); eerr != nil {
				c.logger.Warn("final status edit failed", "error", eerr)
			}
		}
	})
}

func failureMessage(err error) string {
	switch {
	case errors.Is(err, solver.ErrTimeout):
		return "The puzzle timed out. Please try again."
	case errors.Is(err, solver.ErrVerificationRejected):
		return "The puzzle answer was rejected. Please try again."
	case errors.Is(err, solver.ErrVariantUnsupported), errors.Is(err, solver.ErrChallengeUnavailable):
		return "Could not get a solvable puzzle from the site. Please try again."
	default:
		return "Something went wrong. Please try again."
	}
}

// cleanup releases every resource the session owns. Idempotent; runs on
// every exit path.
func (c *Controller) cleanup(ctx context.Context) {
	c.cleanupOnce.Do(func() {
		if c.driver != nil {
			c.driver.Quit()
		}

		artifact := filepath.Join(c.cfg.VideoDir, c.req.Show, fmt.Sprintf("%02d.mp4", c.req.Episode))
		if err := os.Remove(artifact); err != nil && !os.IsNotExist(err) {
			c.logger.Warn("removing partial artifact failed", "path", artifact, "error", err)
		}

		if c.hasPhoto {
			if err := c.chat.DeleteMessage(c.photo); err != nil {
				c.logger.Warn("removing puzzle photo failed", "error", err)
			}
		}

		if err := c.store.DeleteChallenge(ctx, c.key); err != nil {
			c.logger.Warn("removing challenge record failed", "error", err)
		}
		if err := c.store.DeleteSession(ctx, c.key); err != nil {
			c.logger.Warn("removing session record failed", "error", err)
		}
		c.logger.Debug("session cleaned up")
	})
}

func (c *Controller) stopKeyboard() [][]chat.Button {
	stop := chat.Payload{Kind: chat.KindStop, Key: c.key}
	return [][]chat.Button{{{Text: "Stop", Data: stop.Encode()}}}
}

// puzzleKeyboard numbers every grid cell 1..size² plus a submit row. The
// operator's taps append to the challenge record in order.
func (c *Controller) puzzleKeyboard(size int) [][]chat.Button {
	rows := make([][]chat.Button, 0, size+1)
	for y := 0; y < size; y++ {
		row := make([]chat.Button, 0, size)
		for x := 0; x < size; x++ {
			value := y*size + x + 1
			p := chat.Payload{Kind: chat.KindSquare, Key: c.key, Value: value}
			row = append(row, chat.Button{Text: strconv.Itoa(value), Data: p.Encode()})
		}
		rows = append(rows, row)
	}
	submit := chat.Payload{Kind: chat.KindSquare, Key: c.key, Value: models.SubmitSentinel}
	rows = append(rows, []chat.Button{{Text: "Submit", Data: submit.Encode()}})
	return rows
}

// display adapts the controller to the solver's reporting surface.
type display struct {
	c *Controller
}

func (d display) Status(text string) {
	if err := d.c.chat.EditStatus(d.c.status, text, d.c.stopKeyboard()); err != nil {
		d.c.logger.Warn("status edit failed", "error", err)
	}
}

func (d display) ShowPuzzle(image []byte, size int) error {
	caption := "Tap the matching squares in order, then Submit."
	h, err := d.c.chat.SendImage(d.c.chatID, "puzzle.png", image, caption, d.c.puzzleKeyboard(size))
	if err != nil {
		return err
	}
	d.c.photo = h
	d.c.hasPhoto = true
	d.c.gridSize = size
	return nil
}

func (d display) UpdatePuzzle(image []byte) error {
	if !d.c.hasPhoto {
		return nil
	}
	// Edit in place, re-attaching the same keyboard.
	return d.c.chat.EditImage(d.c.photo, "puzzle.png", image, d.c.puzzleKeyboard(d.c.gridSize))
}
