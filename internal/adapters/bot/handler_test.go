package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"relay-bot/internal/domain"
	"relay-bot/internal/usecase/membership"
)

const botID = "28:0123abcd"

type sentMessage struct {
	To   string
	Text string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (f *fakeSender) Send(_ context.Context, roomID, text string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{To: roomID, Text: text})
	return true
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type fakeFeed struct {
	delivered int
	sentOnce  bool
	entries   []domain.BatchEntry
	err       error
	resends   int
}

func (f *fakeFeed) Resend(context.Context) (int, bool) {
	f.resends++
	return f.delivered, f.sentOnce
}

func (f *fakeFeed) Curated(context.Context) ([]domain.BatchEntry, error) {
	return f.entries, f.err
}

type memDocs struct {
	mu    sync.Mutex
	docs  map[string][]byte
	saves int
}

func (m *memDocs) Load(_ context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	body, ok := m.docs[name]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	return body, nil
}

func (m *memDocs) Save(_ context.Context, name string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.docs[name] = append([]byte(nil), body...)
	return nil
}

type fixture struct {
	handler *Handler
	store   *membership.Store
	docs    *memDocs
	sender  *fakeSender
	feed    *fakeFeed
}

func newFixture(admins ...string) *fixture {
	docs := &memDocs{docs: map[string][]byte{}}
	store := membership.NewStore(docs, zerolog.Nop())
	sender := &fakeSender{}
	feed := &fakeFeed{}
	return &fixture{
		handler: NewHandler(botID, store, sender, feed, admins, zerolog.Nop()),
		store:   store,
		docs:    docs,
		sender:  sender,
		feed:    feed,
	}
}

func (f *fixture) handle(t *testing.T, body string) int {
	t.Helper()
	return f.handler.HandleBody(context.Background(), []byte(body))
}

func TestDirectHelpGetsCannedReply(t *testing.T) {
	f := newFixture()
	f.store.AddContact(context.Background(), "8:alice", "Alice")
	f.handle(t, `{"from":"8:alice","to":"28:0123abcd","activity":"message","content":"!help"}`)

	got := f.sender.messages()
	if len(got) != 1 {
		t.Fatalf("ожидали один ответ, получили %d", len(got))
	}
	if got[0].To != "8:alice" {
		t.Fatalf("ответ должен уйти отправителю, ушёл %q", got[0].To)
	}
	if !strings.Contains(got[0].Text, "Hi, Alice!") || !strings.Contains(got[0].Text, "don't chat 1:1") {
		t.Fatalf("неожиданный текст %q", got[0].Text)
	}
	if strings.Contains(got[0].Text, helpText) {
		t.Fatal("в 1:1 справка не выдаётся")
	}
}

func TestDirectUnknownSenderNameFallsBackToID(t *testing.T) {
	f := newFixture()
	f.handle(t, `{"from":"8:bob","to":"28:0123abcd","activity":"message","content":"hello"}`)
	got := f.sender.messages()
	if len(got) != 1 || !strings.Contains(got[0].Text, "Hi, 8:bob!") {
		t.Fatalf("неожиданные ответы %+v", got)
	}
}

func TestDirectCommands(t *testing.T) {
	f := newFixture()
	f.feed.sentOnce = true
	f.feed.delivered = 2
	f.feed.entries = []domain.BatchEntry{{ID: "1", Title: "Dune", Link: "https://imdb.com/title/tt1"}}

	f.handle(t, `[
		{"from":"8:alice","to":"28:0123abcd","activity":"message","content":" !RESEND "},
		{"from":"8:alice","to":"28:0123abcd","activity":"message","content":"!latest"}
	]`)
	want := []sentMessage{
		{To: "8:alice", Text: "Resent the last batch to 2 room(s)."},
		{To: "8:alice", Text: "Dune - https://imdb.com/title/tt1"},
	}
	if diff := cmp.Diff(want, f.sender.messages()); diff != "" {
		t.Fatalf("ответы (-want +got):\n%s", diff)
	}
}

func TestDirectCommandEdgeReplies(t *testing.T) {
	f := newFixture()
	f.feed.err = errors.New("timeline down")
	f.handle(t, `[
		{"from":"8:alice","to":"28:0123abcd","activity":"message","content":"!resend"},
		{"from":"8:alice","to":"28:0123abcd","activity":"message","content":"!latest"}
	]`)
	want := []sentMessage{
		{To: "8:alice", Text: nothingSent},
		{To: "8:alice", Text: emptyFeed},
	}
	if diff := cmp.Diff(want, f.sender.messages()); diff != "" {
		t.Fatalf("ответы (-want +got):\n%s", diff)
	}
}

func TestDirectCommandsRequireAdmin(t *testing.T) {
	f := newFixture("8:admin")
	f.feed.sentOnce = true
	f.handle(t, `{"from":"8:mallory","to":"28:0123abcd","activity":"message","content":"!resend"}`)
	if f.feed.resends != 0 {
		t.Fatal("не-админ не должен запускать рассылку")
	}
	got := f.sender.messages()
	if len(got) != 1 || !strings.Contains(got[0].Text, "don't chat 1:1") {
		t.Fatalf("ожидали стандартный ответ, получили %+v", got)
	}

	f.handle(t, `{"from":"8:admin","to":"28:0123abcd","activity":"message","content":"!resend"}`)
	if f.feed.resends != 1 {
		t.Fatal("админ должен иметь доступ к командам")
	}
}

func TestMessageToOtherBotIgnored(t *testing.T) {
	f := newFixture()
	f.handle(t, `{"from":"8:alice","to":"28:someoneelse","activity":"message","content":"hi"}`)
	f.handle(t, `{"from":"28:0123abcd","to":"19:room","activity":"message","content":"!help"}`)
	if n := len(f.sender.messages()); n != 0 {
		t.Fatalf("ответов быть не должно, получили %d", n)
	}
}

func TestRoomHelp(t *testing.T) {
	f := newFixture()
	f.handle(t, `[
		{"from":"8:alice","to":"19:room@thread.skype","activity":"message","content":"<at id=\"28:0123abcd\">MovieBot</at> !help"},
		{"from":"8:alice","to":"19:room@thread.skype","activity":"message","content":"anyone up for a movie?"},
		{"from":"8:alice","to":"19:room@thread.skype","activity":"message","content":"!latest"}
	]`)
	want := []sentMessage{{To: "19:room@thread.skype", Text: helpText}}
	if diff := cmp.Diff(want, f.sender.messages()); diff != "" {
		t.Fatalf("ответы (-want +got):\n%s", diff)
	}
}

func TestContactRelationUpdate(t *testing.T) {
	f := newFixture()
	f.handle(t, `{"from":"8:alice","to":"28:0123abcd","activity":"contactRelationUpdate","action":"add","fromDisplayName":"Alice"}`)
	if !f.store.HasContact("alice") || f.store.DisplayNameFor("8:alice") != "Alice" {
		t.Fatal("контакт должен появиться")
	}
	f.handle(t, `{"from":"8:alice","activity":"contactRelationUpdate","action":"block"}`)
	if !f.store.HasContact("8:alice") {
		t.Fatal("неизвестное действие игнорируется")
	}
	f.handle(t, `{"from":"8:alice","activity":"contactRelationUpdate","action":"remove"}`)
	if f.store.HasContact("8:alice") {
		t.Fatal("контакт должен быть удалён")
	}
	savesBefore := f.docs.saves
	f.handle(t, `{"from":"8:alice","activity":"contactRelationUpdate","action":"remove"}`)
	if f.docs.saves != savesBefore+1 {
		t.Fatal("удаление отсутствующего контакта тоже сохраняет документ")
	}
}

func TestConversationUpdateIsIdempotent(t *testing.T) {
	f := newFixture()
	added := `{"from":"8:alice","to":"19:room","activity":"conversationUpdate","membersAdded":["8:alice","28:0123abcd"]}`
	f.handle(t, added)
	f.handle(t, added)
	if diff := cmp.Diff([]string{"19:room"}, f.store.Rooms()); diff != "" {
		t.Fatalf("комнаты (-want +got):\n%s", diff)
	}

	f.handle(t, `{"to":"19:other","activity":"conversationUpdate","membersAdded":["8:bob"]}`)
	if f.store.IsMember("19:other") {
		t.Fatal("чужое добавление не должно создавать комнату")
	}

	f.handle(t, `{"to":"19:room","activity":"conversationUpdate","membersRemoved":["28:0123abcd"]}`)
	if f.store.IsMember("19:room") {
		t.Fatal("комната должна быть удалена")
	}
}

func TestConversationUpdateIgnoresNonRoomIDs(t *testing.T) {
	f := newFixture()
	for _, to := range []string{"8:alice", "28:0123abcd", "room-without-prefix"} {
		f.handle(t, `{"to":"`+to+`","activity":"conversationUpdate","membersAdded":["28:0123abcd"]}`)
	}
	if rooms := f.store.Rooms(); len(rooms) != 0 {
		t.Fatalf("в комнаты попали чужие идентификаторы: %v", rooms)
	}
}

func TestUnknownAndAttachmentActivities(t *testing.T) {
	f := newFixture()
	n := f.handle(t, `[
		{"from":"8:alice","to":"28:0123abcd","activity":"attachment","content":"file"},
		{"from":"8:alice","to":"28:0123abcd","activity":"typing"},
		{"from":"8:alice","to":"28:0123abcd"}
	]`)
	if n != 3 {
		t.Fatalf("ожидали 3 события, получили %d", n)
	}
	if len(f.sender.messages()) != 0 || f.docs.saves != 0 {
		t.Fatal("эти события не имеют побочных эффектов")
	}
}

func TestMalformedBodyHasNoSideEffects(t *testing.T) {
	f := newFixture()
	for _, body := range []string{`{"from":`, ``, `42`, `["x", 1]`} {
		if n := f.handle(t, body); n != 0 {
			t.Fatalf("тело %q: ожидали 0 событий, получили %d", body, n)
		}
	}
	if len(f.sender.messages()) != 0 || f.docs.saves != 0 {
		t.Fatal("битое тело не должно ничего менять")
	}
}
