// Package solver drives a headless browser through the grid-image challenge
// gating the download links. It is a sequential state machine: resolve the
// download URL, probe for a direct link, set up the challenge, publish the
// puzzle, then poll a shared record for operator clicks until the widget
// reports completion or the deadline passes.
package solver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/zS1L3NT/go-telegram-dramaload/internal/browser"
	"github.com/zS1L3NT/go-telegram-dramaload/internal/config"
	"github.com/zS1L3NT/go-telegram-dramaload/internal/models"
	"github.com/zS1L3NT/go-telegram-dramaload/internal/store"
)

const (
	selDirectLink     = ".mirror_link:first-of-type div a"
	selCheckboxFrame  = "#content-download iframe"
	selCheckbox       = ".recaptcha-checkbox-border"
	selChallengeFrame = `iframe[title="recaptcha challenge expires in two minutes"]`
	selInstruction    = ".rc-imageselect-desc-no-canonical"
	selPuzzle         = ".rc-imageselect-challenge"
	selGridRows       = "table tbody tr"
	selGridCells      = "table tbody td"
	selReloadButton   = "#recaptcha-reload-button"
	selVerifyButton   = "#recaptcha-verify-button"
	selPageSubmit     = "#btn-submit"
)

// disabledMarker is the class fragment the widget puts on its reload button
// once the picker accepts no further input. Treated as a heuristic, checked
// only through challengeExhausted.
const disabledMarker = "rc-button-disabled"

var qualityRe = regexp.MustCompile(`\d+P`)

// Store is the slice of the record store the solver polls and writes.
type Store interface {
	SessionExists(ctx context.Context, key models.SessionKey) (bool, error)
	PutChallenge(ctx context.Context, st models.ChallengeState) error
	GetChallenge(ctx context.Context, key models.SessionKey) (*models.ChallengeState, error)
	CompleteChallenge(ctx context.Context, key models.SessionKey) error
	DeleteChallenge(ctx context.Context, key models.SessionKey) error
}

// Display is where the solver publishes progress: a status line edited in
// place and the puzzle photo the operator clicks against.
type Display interface {
	Status(text string)
	ShowPuzzle(image []byte, size int) error
	UpdatePuzzle(image []byte) error
}

// URLResolver turns a request into the download-flow URL.
type URLResolver interface {
	ResolveDownloadURL(ctx context.Context, show string, episode int) (string, error)
}

// Solver runs the challenge flow for exactly one session.
type Solver struct {
	key      models.SessionKey
	driver   browser.Driver
	store    Store
	resolver URLResolver
	display  Display
	cfg      *config.Config
	logger   *slog.Logger
}

// New assembles a solver for one session.
func New(key models.SessionKey, driver browser.Driver, st Store, resolver URLResolver, display Display, cfg *config.Config, logger *slog.Logger) *Solver {
	return &Solver{
		key:      key,
		driver:   driver,
		store:    st,
		resolver: resolver,
		display:  display,
		cfg:      cfg,
		logger:   logger.With("component", "solver", "session_id", key.String()),
	}
}

// Run executes the state machine and returns the extracted download links.
func (s *Solver) Run(ctx context.Context, req models.ChallengeRequest) ([]models.DownloadLink, error) {
	s.display.Status("Resolving download page...")
	downloadURL, err := s.resolver.ResolveDownloadURL(ctx, req.Show, req.Episode)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("download url resolved", "url", downloadURL)

	var lastSetup error
	for attempt := 0; attempt <= s.cfg.SetupReloads; attempt++ {
		if err := s.checkCancelled(ctx); err != nil {
			return nil, err
		}
		if attempt > 0 {
			s.logger.Debug("reloading challenge", "attempt", attempt, "reason", lastSetup)
		}

		s.display.Status("Loading download page...")
		if err := s.driver.Navigate(downloadURL); err != nil {
			return nil, err
		}
		root := s.driver.Root()

		// The site intermittently serves the link with no challenge at all.
		// That always wins.
		err := root.Find(selDirectLink, s.cfg.LinkWait)
		if err == nil {
			return s.extractLinks(root)
		}
		if !errors.Is(err, browser.ErrNotFound) {
			return nil, err
		}

		frame, err := s.setupChallenge(root)
		switch {
		case errors.Is(err, errSetupTransient), errors.Is(err, errSetupVariant):
			lastSetup = err
			continue
		case err != nil:
			return nil, err
		}

		return s.solvePuzzle(ctx, root, frame)
	}

	if errors.Is(lastSetup, errSetupVariant) {
		return nil, ErrVariantUnsupported
	}
	return nil, ErrChallengeUnavailable
}

// setupChallenge clicks the checkbox and enters the puzzle frame, deciding
// from the instruction text whether this challenge variant is solvable.
func (s *Solver) setupChallenge(root browser.Frame) (browser.Frame, error) {
	s.display.Status("Waiting for challenge...")

	checkbox, err := root.Frame(selCheckboxFrame, s.cfg.FrameWait)
	if err != nil {
		if errors.Is(err, browser.ErrNotFound) {
			return nil, errSetupTransient
		}
		return nil, err
	}
	if err := checkbox.Find(selCheckbox, s.cfg.CheckboxWait); err != nil {
		if errors.Is(err, browser.ErrNotFound) {
			return nil, errSetupTransient
		}
		return nil, err
	}
	if err := checkbox.Click(selCheckbox); err != nil {
		return nil, err
	}

	// The checkbox click opportunistically opens pop-up tabs.
	if err := s.driver.CloseExtraTabs(); err != nil {
		s.logger.Warn("closing extra tabs failed", "error", err)
	}

	frame, err := root.Frame(selChallengeFrame, s.cfg.FrameWait)
	if err != nil {
		if errors.Is(err, browser.ErrNotFound) {
			return nil, errSetupTransient
		}
		return nil, err
	}

	instruction, err := frame.Text(selInstruction)
	if err != nil && !errors.Is(err, browser.ErrNotFound) {
		return nil, err
	}
	instruction = strings.TrimSpace(instruction)
	lower := strings.ToLower(instruction)
	switch {
	case strings.Contains(lower, "skip") || strings.Contains(lower, "none left"):
		// Multi-step variant: the grid refills until nothing is left. It has
		// no single puzzle image to publish, so reload for a fresh challenge.
		return nil, errSetupVariant
	case instruction == "":
		return nil, errSetupTransient
	}

	s.logger.Debug("challenge accepted", "instruction", instruction)
	return frame, nil
}

// solvePuzzle publishes the puzzle and polls the shared record for operator
// clicks until the widget reports completion, then submits and re-probes for
// the link.
func (s *Solver) solvePuzzle(ctx context.Context, root, frame browser.Frame) ([]models.DownloadLink, error) {
	image, err := frame.Screenshot(selPuzzle, s.cfg.FrameWait)
	if err != nil {
		return nil, err
	}

	rows, err := frame.Count(selGridRows)
	if err != nil {
		return nil, err
	}
	cells, err := frame.Count(selGridCells)
	if err != nil {
		return nil, err
	}
	size := EffectiveSize(rows, cells)
	s.logger.Debug("puzzle acquired", "rows", rows, "cells", cells, "size", size)

	state := models.ChallengeState{
		Key:       s.key,
		Queued:    []int{},
		CreatedAt: time.Now(),
	}
	if err := s.store.PutChallenge(ctx, state); err != nil {
		return nil, err
	}
	if err := s.display.ShowPuzzle(image, size); err != nil {
		return nil, err
	}
	s.display.Status("Waiting for you to solve the puzzle...")

	deadline := state.CreatedAt.Add(s.cfg.ChallengeDeadline)
	clicked := 0
	finished := false

	for !finished {
		if err := s.checkCancelled(ctx); err != nil {
			return nil, err
		}

		if s.challengeExhausted(frame) {
			finished = true
			break
		}

		current, err := s.store.GetChallenge(ctx, s.key)
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrCancelled
		}
		if err != nil {
			return nil, err
		}

		for _, value := range current.Queued[clicked:] {
			clicked++
			if value == models.SubmitSentinel {
				if err := frame.Click(selVerifyButton); err != nil {
					s.logger.Warn("verify click failed", "error", err)
				}
			} else {
				x, y := CellCoords(value-1, size)
				sel := fmt.Sprintf("table tbody tr:nth-of-type(%d) td:nth-of-type(%d)", y, x)
				if err := frame.Click(sel); err != nil {
					s.logger.Warn("cell click failed", "cell", value, "error", err)
				}
			}
			if err := sleepCtx(ctx, s.cfg.ClickDelay); err != nil {
				return nil, ErrShutdown
			}
		}

		// The grid reshuffles as cells are picked; keep the published photo
		// current, editing in place.
		if fresh, err := frame.Screenshot(selPuzzle, s.cfg.PollInterval); err == nil {
			if !bytes.Equal(fresh, image) {
				image = fresh
				if err := s.display.UpdatePuzzle(image); err != nil {
					s.logger.Warn("puzzle update failed", "error", err)
				}
			}
		}

		if time.Now().After(deadline) {
			return nil, ErrTimeout
		}
		if err := sleepCtx(ctx, s.cfg.PollInterval); err != nil {
			return nil, ErrShutdown
		}
	}

	if err := s.store.CompleteChallenge(ctx, s.key); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("marking challenge complete failed", "error", err)
	}
	if err := s.store.DeleteChallenge(ctx, s.key); err != nil {
		s.logger.Warn("deleting challenge failed", "error", err)
	}

	s.display.Status("Verifying...")
	if err := root.Click(selPageSubmit); err != nil {
		return nil, err
	}
	err = root.Find(selDirectLink, s.cfg.LinkWait)
	if errors.Is(err, browser.ErrNotFound) {
		return nil, ErrVerificationRejected
	}
	if err != nil {
		return nil, err
	}
	return s.extractLinks(root)
}

// challengeExhausted reports whether the widget has stopped accepting input,
// which is its completion signal.
func (s *Solver) challengeExhausted(frame browser.Frame) bool {
	class, err := frame.Attribute(selReloadButton, "class")
	if err != nil {
		// The widget tears itself down once verification is accepted.
		return errors.Is(err, browser.ErrNotFound)
	}
	return strings.Contains(class, disabledMarker)
}

// extractLinks pairs every direct-link anchor with the quality label parsed
// from its visible text.
func (s *Solver) extractLinks(root browser.Frame) ([]models.DownloadLink, error) {
	anchors, err := root.Anchors(selDirectLink)
	if err != nil {
		return nil, err
	}
	if len(anchors) == 0 {
		return nil, ErrVerificationRejected
	}

	links := make([]models.DownloadLink, 0, len(anchors))
	for _, a := range anchors {
		if a.Href == "" {
			continue
		}
		quality := qualityRe.FindString(a.Text)
		if quality == "" {
			quality = strings.TrimSpace(a.Text)
		}
		links = append(links, models.DownloadLink{Quality: quality, URL: a.Href})
	}
	if len(links) == 0 {
		return nil, ErrVerificationRejected
	}
	s.logger.Info("download links extracted", "count", len(links))
	return links, nil
}

func (s *Solver) checkCancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return ErrShutdown
	}
	exists, err := s.store.SessionExists(ctx, s.key)
	if err != nil {
		return err
	}
	if !exists {
		return ErrCancelled
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
