package chatapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

type staticToken struct {
	value string
	calls atomic.Int32
}

func (s *staticToken) Token(context.Context) string {
	s.calls.Add(1)
	return s.value
}

func (s *staticToken) ValidUntil() time.Time { return time.Time{} }

type staticRooms []string

func (r staticRooms) Rooms() []string { return append([]string(nil), r...) }

type received struct {
	Path    string
	Auth    string
	Content string
}

type chatServer struct {
	mu       sync.Mutex
	got      []received
	status   map[string]int
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	delay    time.Duration
}

func (s *chatServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		m := s.maxSeen.Load()
		if n <= m || s.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	var body struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	s.mu.Lock()
	s.got = append(s.got, received{Path: r.URL.Path, Auth: r.Header.Get("Authorization"), Content: body.Message.Content})
	code, ok := s.status[r.URL.Path]
	s.mu.Unlock()
	if !ok {
		code = http.StatusCreated
	}
	w.WriteHeader(code)
}

func (s *chatServer) requests() []received {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]received(nil), s.got...)
}

func newClient(t *testing.T, srv *chatServer, tok *staticToken, rooms staticRooms, opts ...Option) *Client {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	opts = append(opts, WithHTTPClient(ts.Client()))
	return New(ts.URL+"/", time.Second, tok, rooms, zerolog.Nop(), opts...)
}

func TestSendPostsActivity(t *testing.T) {
	srv := &chatServer{}
	tok := &staticToken{value: "abc"}
	client := newClient(t, srv, tok, nil)

	if !client.Send(context.Background(), "19:room@thread.skype", "hello") {
		t.Fatal("ожидали успешную отправку")
	}
	want := []received{{Path: "/v2/conversations/19:room@thread.skype/activities", Auth: "Bearer abc", Content: "hello"}}
	if diff := cmp.Diff(want, srv.requests()); diff != "" {
		t.Fatalf("неожиданный запрос (-want +got):\n%s", diff)
	}
}

func TestSendNon201IsFailure(t *testing.T) {
	srv := &chatServer{status: map[string]int{"/v2/conversations/19:a/activities": http.StatusOK}}
	client := newClient(t, srv, &staticToken{value: "abc"}, nil)
	if client.Send(context.Background(), "19:a", "hi") {
		t.Fatal("200 не считается успехом, ожидали false")
	}
	if len(srv.requests()) != 1 {
		t.Fatalf("повторов быть не должно, получили %d запросов", len(srv.requests()))
	}
}

func TestSendWithoutTokenSkipsRequest(t *testing.T) {
	srv := &chatServer{}
	client := newClient(t, srv, &staticToken{}, nil)
	if client.Send(context.Background(), "19:a", "hi") {
		t.Fatal("без токена отправка невозможна")
	}
	if len(srv.requests()) != 0 {
		t.Fatalf("запросов быть не должно, получили %d", len(srv.requests()))
	}
}

func TestSendAsksTokenBeforeEverySend(t *testing.T) {
	srv := &chatServer{}
	tok := &staticToken{value: "abc"}
	client := newClient(t, srv, tok, nil)
	for i := 0; i < 3; i++ {
		client.Send(context.Background(), "19:a", "hi")
	}
	if got := tok.calls.Load(); got != 3 {
		t.Fatalf("ожидали 3 обращения за токеном, получили %d", got)
	}
}

func TestSendIsSerialized(t *testing.T) {
	srv := &chatServer{delay: 10 * time.Millisecond}
	client := newClient(t, srv, &staticToken{value: "abc"}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client.Send(context.Background(), "19:a", "hi")
		}()
	}
	wg.Wait()
	if got := srv.maxSeen.Load(); got != 1 {
		t.Fatalf("одновременно должен выполняться один запрос, наблюдали %d", got)
	}
}

func TestBroadcastCountsSuccesses(t *testing.T) {
	srv := &chatServer{status: map[string]int{"/v2/conversations/19:gone/activities": http.StatusForbidden}}
	rooms := staticRooms{"19:a", "19:gone", "19:b"}
	client := newClient(t, srv, &staticToken{value: "abc"}, rooms)

	if got := client.Broadcast(context.Background(), "news"); got != 2 {
		t.Fatalf("ожидали 2 доставки, получили %d", got)
	}
	if len(srv.requests()) != 3 {
		t.Fatalf("ожидали попытку в каждую комнату, получили %d", len(srv.requests()))
	}
}

func TestRateLimitHonoursContext(t *testing.T) {
	srv := &chatServer{}
	client := newClient(t, srv, &staticToken{value: "abc"}, nil, WithRateLimit(0.001))
	if !client.Send(context.Background(), "19:a", "first") {
		t.Fatal("первая отправка укладывается в burst")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if client.Send(ctx, "19:a", "second") {
		t.Fatal("вторая отправка должна упереться в лимит")
	}
	if len(srv.requests()) != 1 {
		t.Fatalf("ожидали один запрос, получили %d", len(srv.requests()))
	}
}
