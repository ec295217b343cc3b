package bot

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/zS1L3NT/go-telegram-dramaload/internal/chat"
	"github.com/zS1L3NT/go-telegram-dramaload/internal/config"
	"github.com/zS1L3NT/go-telegram-dramaload/internal/models"
	"github.com/zS1L3NT/go-telegram-dramaload/internal/store"
)

type fakeTransport struct {
	nextID    int
	sent      []string
	edits     []string
	editKeys  [][][]chat.Button
	answered  []string
	posterURL string
}

func (f *fakeTransport) Notify(chatID int64, text string, buttons [][]chat.Button) (chat.Handle, error) {
	f.nextID++
	f.sent = append(f.sent, text)
	return chat.Handle{ChatID: chatID, MessageID: f.nextID}, nil
}

func (f *fakeTransport) EditStatus(h chat.Handle, text string, buttons [][]chat.Button) error {
	f.edits = append(f.edits, text)
	f.editKeys = append(f.editKeys, buttons)
	return nil
}

func (f *fakeTransport) SendImage(chatID int64, name string, image []byte, caption string, buttons [][]chat.Button) (chat.Handle, error) {
	f.nextID++
	return chat.Handle{ChatID: chatID, MessageID: f.nextID}, nil
}

func (f *fakeTransport) SendImageURL(chatID int64, imageURL, caption string, buttons [][]chat.Button) (chat.Handle, error) {
	f.nextID++
	f.posterURL = imageURL
	return chat.Handle{ChatID: chatID, MessageID: f.nextID}, nil
}

func (f *fakeTransport) EditImage(h chat.Handle, name string, image []byte, buttons [][]chat.Button) error {
	return nil
}

func (f *fakeTransport) DeleteMessage(h chat.Handle) error { return nil }

func (f *fakeTransport) Updates() tgbotapi.UpdatesChannel {
	ch := make(chan tgbotapi.Update)
	close(ch)
	return ch
}

func (f *fakeTransport) StopUpdates() {}

func (f *fakeTransport) AnswerCallback(id string) { f.answered = append(f.answered, id) }

type fakeStore struct {
	actions  map[models.SessionKey][]models.Action
	squares  map[models.SessionKey][]int
	sessions map[models.SessionKey]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		actions:  map[models.SessionKey][]models.Action{},
		squares:  map[models.SessionKey][]int{},
		sessions: map[models.SessionKey]bool{},
	}
}

func (s *fakeStore) PutSession(_ context.Context, key models.SessionKey) error {
	s.sessions[key] = true
	return nil
}

func (s *fakeStore) DeleteSession(_ context.Context, key models.SessionKey) error {
	delete(s.sessions, key)
	return nil
}

func (s *fakeStore) SessionExists(_ context.Context, key models.SessionKey) (bool, error) {
	return s.sessions[key], nil
}

func (s *fakeStore) PutChallenge(_ context.Context, st models.ChallengeState) error {
	s.squares[st.Key] = nil
	return nil
}

func (s *fakeStore) GetChallenge(_ context.Context, key models.SessionKey) (*models.ChallengeState, error) {
	q, ok := s.squares[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &models.ChallengeState{Key: key, Queued: q}, nil
}

func (s *fakeStore) CompleteChallenge(_ context.Context, _ models.SessionKey) error { return nil }

func (s *fakeStore) DeleteChallenge(_ context.Context, key models.SessionKey) error {
	delete(s.squares, key)
	return nil
}

func (s *fakeStore) PutActions(_ context.Context, key models.SessionKey, actions []models.Action) error {
	s.actions[key] = actions
	return nil
}

func (s *fakeStore) GetAction(_ context.Context, key models.SessionKey, index int) (*models.Action, error) {
	list, ok := s.actions[key]
	if !ok || index < 0 || index >= len(list) {
		return nil, store.ErrNotFound
	}
	a := list[index]
	return &a, nil
}

func (s *fakeStore) AppendSquare(_ context.Context, key models.SessionKey, value int) error {
	if _, ok := s.squares[key]; !ok {
		return store.ErrNotFound
	}
	s.squares[key] = append(s.squares[key], value)
	return nil
}

func (s *fakeStore) CleanupActionsOlderThan(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

type fakeCatalog struct {
	shows    []models.ActionEpisodes
	episodes []models.ActionDownload

	searchStarted chan struct{} // closed when Search is entered
	searchRelease chan struct{} // Search blocks until this closes
}

func (c *fakeCatalog) Search(_ context.Context, _ string) ([]models.ActionEpisodes, error) {
	if c.searchStarted != nil {
		close(c.searchStarted)
	}
	if c.searchRelease != nil {
		<-c.searchRelease
	}
	return c.shows, nil
}

func (c *fakeCatalog) Episodes(_ context.Context, _ string) ([]models.ActionDownload, error) {
	return c.episodes, nil
}

func (c *fakeCatalog) ResolveDownloadURL(_ context.Context, _ string, _ int) (string, error) {
	return "http://site/download?id=1", nil
}

func testBot(tr *fakeTransport, fs *fakeStore, cat *fakeCatalog, cfg *config.Config) *Bot {
	if cfg == nil {
		cfg = &config.Config{}
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(tr, fs, cat, cfg, logger)
}

func TestSearchCachesActionsBehindKeyboard(t *testing.T) {
	tr := &fakeTransport{}
	fs := newFakeStore()
	cat := &fakeCatalog{shows: []models.ActionEpisodes{
		{Show: "Goblin", Image: "http://img/goblin.jpg"},
		{Show: "Strong Girl Bong-soon", Image: "http://img/bongsoon.jpg"},
	}}

	b := testBot(tr, fs, cat, nil)
	b.handleSearch(context.Background(), 42, "g")

	if len(tr.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(tr.sent))
	}
	key := models.SessionKey{ChatID: 42, MessageID: 1}
	cached, ok := fs.actions[key]
	if !ok || len(cached) != 2 {
		t.Fatalf("cached actions = %v, want 2 entries under the results message", cached)
	}
	if cached[0].Kind != models.KindEpisodes || cached[0].Episodes.Show != "Goblin" {
		t.Errorf("cached[0] = %+v, want episodes action for Goblin", cached[0])
	}

	if len(tr.editKeys) != 1 || len(tr.editKeys[0]) != 2 {
		t.Fatalf("keyboard rows = %d, want 2", len(tr.editKeys[0]))
	}
	p, err := chat.DecodePayload(tr.editKeys[0][1][0].Data)
	if err != nil {
		t.Fatalf("decode button payload: %v", err)
	}
	if p.Kind != chat.KindAction || p.Value != 1 || p.Key != key {
		t.Errorf("button payload = %+v, want action 1 keyed to the results message", p)
	}
}

func TestEpisodesKeyboardChunksRows(t *testing.T) {
	tr := &fakeTransport{}
	fs := newFakeStore()
	episodes := make([]models.ActionDownload, 0, 7)
	for i := 1; i <= 7; i++ {
		episodes = append(episodes, models.ActionDownload{Show: "Goblin", Episode: i})
	}
	cat := &fakeCatalog{episodes: episodes}

	b := testBot(tr, fs, cat, nil)
	b.handleEpisodes(context.Background(), 42, &models.ActionEpisodes{Show: "Goblin", Image: "http://img/goblin.jpg"})

	if tr.posterURL != "http://img/goblin.jpg" {
		t.Errorf("poster url = %q, want the listing image", tr.posterURL)
	}
	if len(tr.editKeys) != 1 {
		t.Fatalf("expected one keyboard edit, got %d", len(tr.editKeys))
	}
	rows := tr.editKeys[0]
	if len(rows) != 2 || len(rows[0]) != 5 || len(rows[1]) != 2 {
		t.Fatalf("keyboard shape = %v, want rows of 5 and 2", rows)
	}
	if rows[1][1].Text != "7" {
		t.Errorf("last button = %q, want 7", rows[1][1].Text)
	}
}

func TestSquareCallbackAppendsInOrder(t *testing.T) {
	tr := &fakeTransport{}
	fs := newFakeStore()
	key := models.SessionKey{ChatID: 42, MessageID: 9}
	fs.squares[key] = []int{}

	b := testBot(tr, fs, cat(), nil)
	for _, v := range []int{5, 12, models.SubmitSentinel} {
		p := chat.Payload{Kind: chat.KindSquare, Key: key, Value: v}
		b.handleCallback(context.Background(), &tgbotapi.CallbackQuery{ID: "cb", Data: p.Encode()})
	}

	got := fs.squares[key]
	want := []int{5, 12, models.SubmitSentinel}
	if len(got) != len(want) {
		t.Fatalf("queued = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("queued = %v, want %v", got, want)
		}
	}
}

func TestSquareForFinishedPuzzleIgnored(t *testing.T) {
	tr := &fakeTransport{}
	fs := newFakeStore()

	b := testBot(tr, fs, cat(), nil)
	p := chat.Payload{Kind: chat.KindSquare, Key: models.SessionKey{ChatID: 1, MessageID: 1}, Value: 3}
	b.handleCallback(context.Background(), &tgbotapi.CallbackQuery{ID: "cb", Data: p.Encode()})

	if len(tr.sent) != 0 {
		t.Errorf("stale square produced %d messages, want silence", len(tr.sent))
	}
}

func TestStopCallbackDeletesSession(t *testing.T) {
	tr := &fakeTransport{}
	fs := newFakeStore()
	key := models.SessionKey{ChatID: 42, MessageID: 9}
	fs.sessions[key] = true

	b := testBot(tr, fs, cat(), nil)
	p := chat.Payload{Kind: chat.KindStop, Key: key}
	b.handleCallback(context.Background(), &tgbotapi.CallbackQuery{ID: "cb", Data: p.Encode()})

	if fs.sessions[key] {
		t.Error("session record still present after stop")
	}
}

func TestUnauthorisedUserIgnored(t *testing.T) {
	tr := &fakeTransport{}
	fs := newFakeStore()
	cfg := &config.Config{AllowedUsers: []int64{1}}

	b := testBot(tr, fs, cat(), cfg)
	b.handleUpdate(context.Background(), commandUpdate(2, 42, "/start"))
	b.wg.Wait()

	if len(tr.sent) != 0 {
		t.Errorf("unauthorised user got %d messages, want none", len(tr.sent))
	}
}

func TestStartCommandSendsHelp(t *testing.T) {
	tr := &fakeTransport{}
	fs := newFakeStore()

	b := testBot(tr, fs, cat(), nil)
	b.handleUpdate(context.Background(), commandUpdate(1, 42, "/start"))
	b.wg.Wait()

	if len(tr.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(tr.sent))
	}
	if tr.sent[0] != helpText {
		t.Errorf("sent %q, want the help text", tr.sent[0])
	}
}

func TestCallbacksNotBlockedBySlowSearch(t *testing.T) {
	tr := &fakeTransport{}
	fs := newFakeStore()
	key := models.SessionKey{ChatID: 42, MessageID: 9}
	fs.squares[key] = []int{}

	started := make(chan struct{})
	release := make(chan struct{})
	catalog := &fakeCatalog{
		shows:         []models.ActionEpisodes{{Show: "Goblin", Image: "http://img/goblin.jpg"}},
		searchStarted: started,
		searchRelease: release,
	}

	b := testBot(tr, fs, catalog, nil)
	b.handleUpdate(context.Background(), commandUpdate(1, 42, "/search goblin"))
	<-started

	// The scrape is still in flight; the operator's tap must land anyway.
	p := chat.Payload{Kind: chat.KindSquare, Key: key, Value: 5}
	b.handleUpdate(context.Background(), callbackUpdate(1, p.Encode()))

	got := fs.squares[key]
	if len(got) != 1 || got[0] != 5 {
		t.Fatalf("queued = %v, want [5] while the search was still in flight", got)
	}

	stop := chat.Payload{Kind: chat.KindStop, Key: key}
	fs.sessions[key] = true
	b.handleUpdate(context.Background(), callbackUpdate(1, stop.Encode()))
	if fs.sessions[key] {
		t.Error("stop was not honored while the search was still in flight")
	}

	close(release)
	b.wg.Wait()
}

func commandUpdate(userID, chatID int64, text string) tgbotapi.Update {
	cmdLen := len(text)
	if i := strings.IndexByte(text, ' '); i > 0 {
		cmdLen = i
	}
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID},
		Chat: &tgbotapi.Chat{ID: chatID},
		Text: text,
		Entities: []tgbotapi.MessageEntity{
			{Type: "bot_command", Offset: 0, Length: cmdLen},
		},
	}}
}

func callbackUpdate(userID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb",
		From: &tgbotapi.User{ID: userID},
		Data: data,
	}}
}

func cat() *fakeCatalog { return &fakeCatalog{} }
