// Package models contains the core data types shared across the service.
package models

import (
	"fmt"
	"time"
)

// SessionKey identifies one automation session by the chat it belongs to and
// the status message driving it. It doubles as the key for the challenge
// coordination record.
type SessionKey struct {
	ChatID    int64 `json:"chatId"`
	MessageID int   `json:"messageId"`
}

// String renders the key for logging.
func (k SessionKey) String() string {
	return fmt.Sprintf("%d:%d", k.ChatID, k.MessageID)
}

// Session is the registry record for one in-flight automation run. Its
// presence in the store is the single source of truth for "this session is
// still wanted"; deleting it is the only sanctioned cancellation signal.
type Session struct {
	Key       SessionKey `json:"key"`
	CreatedAt time.Time  `json:"createdAt"`
}

// ChallengeState is the shared puzzle coordination record. The operator path
// appends to Queued; the automation loop consumes it in order via a cursor.
type ChallengeState struct {
	Key       SessionKey `json:"key"`
	Queued    []int      `json:"queued"`
	Completed bool       `json:"completed"`
	CreatedAt time.Time  `json:"createdAt"`
}

// SubmitSentinel is the queued value meaning "press verify now" rather than
// a grid cell selection.
const SubmitSentinel = 0

// ChallengeRequest describes what one session should fetch.
type ChallengeRequest struct {
	Show    string `json:"show"`
	Episode int    `json:"episode"`
}

// DownloadLink is one resolved download URL with its quality label.
type DownloadLink struct {
	Quality string `json:"quality"`
	URL     string `json:"url"`
}

// ActionKind discriminates the closed set of inline-keyboard actions.
type ActionKind string

const (
	// KindEpisodes lists the episodes of a show.
	KindEpisodes ActionKind = "episodes"
	// KindDownload starts a download session for one episode.
	KindDownload ActionKind = "download"
)

// ActionEpisodes asks for the episode listing of a show.
type ActionEpisodes struct {
	Show  string `json:"show"`
	Image string `json:"image"`
}

// ActionDownload asks for the download links of one episode.
type ActionDownload struct {
	Show    string `json:"show"`
	Episode int    `json:"episode"`
}

// Action is a tagged variant: exactly one payload field is set, matching Kind.
type Action struct {
	Kind     ActionKind      `json:"kind"`
	Episodes *ActionEpisodes `json:"episodes,omitempty"`
	Download *ActionDownload `json:"download,omitempty"`
}

// NewEpisodesAction wraps an episodes payload.
func NewEpisodesAction(show, image string) Action {
	return Action{Kind: KindEpisodes, Episodes: &ActionEpisodes{Show: show, Image: image}}
}

// NewDownloadAction wraps a download payload.
func NewDownloadAction(show string, episode int) Action {
	return Action{Kind: KindDownload, Download: &ActionDownload{Show: show, Episode: episode}}
}

// Validate reports whether the action's payload matches its kind.
func (a Action) Validate() error {
	switch a.Kind {
	case KindEpisodes:
		if a.Episodes == nil {
			return fmt.Errorf("episodes action missing payload")
		}
	case KindDownload:
		if a.Download == nil {
			return fmt.Errorf("download action missing payload")
		}
	default:
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
	return nil
}
