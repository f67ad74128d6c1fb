package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"

	appkafka "example.com/timelinefeed/internal/broker"
	"example.com/timelinefeed/internal/engine"
	"example.com/timelinefeed/internal/middleware"
	"example.com/timelinefeed/internal/models"
	"example.com/timelinefeed/internal/store"
	"github.com/segmentio/kafka-go"
)

var testSecret = []byte("test-secret")

//
// --- Helpers ---
//

// generate JWT token for test user
func makeTestJWT(t *testing.T, userID models.UserID) string {
	t.Helper()
	token, err := middleware.IssueToken(testSecret, userID)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	return token
}

// create HTTP request with JWT token
func sendJSONRequest(t *testing.T, method, url string, body any, token string, expectedStatus int) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json.Marshal failed: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if resp.StatusCode != expectedStatus {
		b, _ := io.ReadAll(resp.Body)
		defer resp.Body.Close()
		t.Fatalf("expected %d, got %d: %s", expectedStatus, resp.StatusCode, string(b))
	}
	return resp
}

//
// --- Setup test server ---
//

func setupTestServer(t *testing.T) (*Server, *store.MockStore, *appkafka.MockKafka, *httptest.Server) {
	t.Helper()
	mockStore := store.NewMock()
	mockKafka := &appkafka.MockKafka{Store: mockStore}
	s := New(engine.New(), mockKafka, testSecret)
	ts := httptest.NewServer(s.Routes())
	t.Cleanup(ts.Close)
	return s, mockStore, mockKafka, ts
}

func post(t *testing.T, ts *httptest.Server, token string, id models.PostID) postResponse {
	t.Helper()
	resp := sendJSONRequest(t, http.MethodPost, ts.URL+"/posts", map[string]any{"post_id": id}, token, http.StatusOK)
	defer resp.Body.Close()
	var pr postResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		t.Fatalf("decode post response: %v", err)
	}
	return pr
}

func getFeed(t *testing.T, ts *httptest.Server, token string) []models.PostID {
	t.Helper()
	resp := sendJSONRequest(t, http.MethodGet, ts.URL+"/feed", nil, token, http.StatusOK)
	defer resp.Body.Close()
	var fr feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		t.Fatalf("decode feed response: %v", err)
	}
	return fr.PostIDs
}

//
// --- Tests ---
//

// POST /users returns a token the protected routes accept
func TestCreateUser(t *testing.T) {
	_, _, _, ts := setupTestServer(t)

	resp := sendJSONRequest(t, http.MethodPost, ts.URL+"/users", map[string]any{"user_id": 7}, "", http.StatusOK)
	defer resp.Body.Close()

	var ur userResponse
	if err := json.NewDecoder(resp.Body).Decode(&ur); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if ur.UserID != 7 || ur.Token == "" {
		t.Fatalf("unexpected response: %+v", ur)
	}

	// The issued token must be accepted by the protected routes.
	if feed := getFeed(t, ts, ur.Token); len(feed) != 0 {
		t.Fatalf("expected empty feed, got %v", feed)
	}
}

func TestOwnPostInFeed(t *testing.T) {
	_, _, _, ts := setupTestServer(t)
	token := makeTestJWT(t, 1)

	pr := post(t, ts, token, 5)
	if pr.PostID != 5 || pr.Sequence != 1 {
		t.Fatalf("unexpected post response: %+v", pr)
	}
	if feed := getFeed(t, ts, token); !reflect.DeepEqual(feed, []models.PostID{5}) {
		t.Fatalf("expected [5], got %v", feed)
	}
}

// full flow: post -> follow -> post -> feed -> unfollow
func TestFollowAndFeedFlow(t *testing.T) {
	_, mockStore, _, ts := setupTestServer(t)
	alice := makeTestJWT(t, 1)
	bob := makeTestJWT(t, 2)

	post(t, ts, alice, 3)
	sendJSONRequest(t, http.MethodPost, ts.URL+"/follow", map[string]any{"followee_id": 2}, alice, http.StatusOK).Body.Close()
	post(t, ts, bob, 101)

	if feed := getFeed(t, ts, alice); !reflect.DeepEqual(feed, []models.PostID{101, 3}) {
		t.Fatalf("expected [101 3], got %v", feed)
	}

	sendJSONRequest(t, http.MethodPost, ts.URL+"/unfollow", map[string]any{"followee_id": 2}, alice, http.StatusOK).Body.Close()
	if feed := getFeed(t, ts, alice); !reflect.DeepEqual(feed, []models.PostID{3}) {
		t.Fatalf("expected [3], got %v", feed)
	}

	if mockStore.Len() != 4 {
		t.Fatalf("expected 4 journaled events, got %d", mockStore.Len())
	}
}

func TestFeedCappedAtTen(t *testing.T) {
	_, _, _, ts := setupTestServer(t)
	token := makeTestJWT(t, 1)
	for i := 1; i <= 15; i++ {
		post(t, ts, token, models.PostID(i))
	}
	want := []models.PostID{15, 14, 13, 12, 11, 10, 9, 8, 7, 6}
	if feed := getFeed(t, ts, token); !reflect.DeepEqual(feed, want) {
		t.Fatalf("expected %v, got %v", want, feed)
	}
}

func TestPublishFailureLeavesEngineUntouched(t *testing.T) {
	s, _, mockKafka, ts := setupTestServer(t)
	token := makeTestJWT(t, 1)

	mockKafka.SetShouldFail(true)
	sendJSONRequest(t, http.MethodPost, ts.URL+"/posts", map[string]any{"post_id": 1}, token, http.StatusInternalServerError).Body.Close()
	sendJSONRequest(t, http.MethodPost, ts.URL+"/follow", map[string]any{"followee_id": 2}, token, http.StatusInternalServerError).Body.Close()

	if s.engine.LastSequence() != 0 {
		t.Fatalf("post applied despite publish failure")
	}
	if len(s.engine.Followees(1)) != 0 {
		t.Fatalf("follow applied despite publish failure")
	}
}

func TestBadRequests(t *testing.T) {
	_, _, _, ts := setupTestServer(t)
	token := makeTestJWT(t, 1)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		auth   bool
		status int
	}{
		{"user invalid json", http.MethodPost, "/users", `{"user_id":"x"}`, false, http.StatusBadRequest},
		{"user missing id", http.MethodPost, "/users", `{}`, false, http.StatusBadRequest},
		{"post missing id", http.MethodPost, "/posts", `{}`, true, http.StatusBadRequest},
		{"post invalid json", http.MethodPost, "/posts", `{"post_id":`, true, http.StatusBadRequest},
		{"follow string id", http.MethodPost, "/follow", `{"followee_id":"2"}`, true, http.StatusBadRequest},
		{"unfollow missing id", http.MethodPost, "/unfollow", `{}`, true, http.StatusBadRequest},
		{"feed wrong method", http.MethodPost, "/feed", ``, true, http.StatusMethodNotAllowed},
		{"post wrong method", http.MethodGet, "/posts", ``, true, http.StatusMethodNotAllowed},
		{"feed no token", http.MethodGet, "/feed", ``, false, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, ts.URL+tt.path, bytes.NewBufferString(tt.body))
			if err != nil {
				t.Fatalf("NewRequest failed: %v", err)
			}
			if tt.auth {
				req.Header.Set("Authorization", "Bearer "+token)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("Do request failed: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, resp.StatusCode)
			}
		})
	}
}

func TestReplayRebuildsState(t *testing.T) {
	_, mockStore, _, ts := setupTestServer(t)
	alice := makeTestJWT(t, 1)
	bob := makeTestJWT(t, 2)

	post(t, ts, alice, 3)
	sendJSONRequest(t, http.MethodPost, ts.URL+"/follow", map[string]any{"followee_id": 2}, alice, http.StatusOK).Body.Close()
	post(t, ts, bob, 101)
	post(t, ts, alice, 4)
	want := getFeed(t, ts, alice)

	fresh := engine.New()
	if err := Replay(fresh, mockStore); err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if got := fresh.Feed(1); !reflect.DeepEqual(got, want) {
		t.Fatalf("replayed feed %v, live feed %v", got, want)
	}
}

func TestReplayStoreError(t *testing.T) {
	if err := Replay(engine.New(), &store.MockStoreFail{}); err == nil {
		t.Fatal("expected error from MockStoreFail")
	}
}

// Kafka write error
func TestKafkaWriteError(t *testing.T) {
	if err := (&appkafka.MockKafkaFail{}).WriteMessages(kafka.Message{Key: []byte("k"), Value: []byte("v")}); err == nil {
		t.Fatalf("expected error from MockKafkaFail")
	}
}

func TestStampEventIDsSortInCreationOrder(t *testing.T) {
	prev := ""
	for i := 0; i < 100; i++ {
		ev := models.Event{Kind: models.PostCreated, UserID: 1}
		if err := stampEvent(&ev); err != nil {
			t.Fatalf("stampEvent failed: %v", err)
		}
		if ev.ID <= prev {
			t.Fatalf("event id %s not after %s", ev.ID, prev)
		}
		if ev.At.IsZero() {
			t.Fatalf("event %s has no timestamp", ev.ID)
		}
		prev = ev.ID
	}
}

// concurrent writers: ids must follow publish order so replay matches the live engine
func TestConcurrentWritesReplayInPublishOrder(t *testing.T) {
	s, mockStore, mockKafka, ts := setupTestServer(t)
	const authors, postsPerAuthor = 8, 25
	follower := makeTestJWT(t, 100)

	for a := 1; a <= authors; a++ {
		sendJSONRequest(t, http.MethodPost, ts.URL+"/follow", map[string]any{"followee_id": a}, follower, http.StatusOK).Body.Close()
	}

	var wg sync.WaitGroup
	for a := 1; a <= authors; a++ {
		token := makeTestJWT(t, models.UserID(a))
		wg.Add(1)
		go func(a int, token string) {
			defer wg.Done()
			for i := 0; i < postsPerAuthor; i++ {
				body, _ := json.Marshal(map[string]any{"post_id": a*1000 + i})
				req, err := http.NewRequest(http.MethodPost, ts.URL+"/posts", bytes.NewReader(body))
				if err != nil {
					t.Errorf("NewRequest failed: %v", err)
					return
				}
				req.Header.Set("Authorization", "Bearer "+token)
				resp, err := http.DefaultClient.Do(req)
				if err != nil {
					t.Errorf("post failed: %v", err)
					return
				}
				resp.Body.Close()
				if resp.StatusCode != http.StatusOK {
					t.Errorf("expected 200, got %d", resp.StatusCode)
					return
				}
			}
		}(a, token)
	}
	wg.Wait()

	prev := ""
	for i, msg := range mockKafka.Written() {
		ev, err := appkafka.DecodeEvent(msg.Value)
		if err != nil {
			t.Fatalf("DecodeEvent failed: %v", err)
		}
		if ev.ID <= prev {
			t.Fatalf("message %d: event id %s published after %s", i, ev.ID, prev)
		}
		prev = ev.ID
	}

	total := authors * postsPerAuthor
	fresh := engine.New()
	if err := Replay(fresh, mockStore); err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	live := s.engine.FeedN(100, total)
	if len(live) != total {
		t.Fatalf("expected %d posts in live feed, got %d", total, len(live))
	}
	if got := fresh.FeedN(100, total); !reflect.DeepEqual(got, live) {
		t.Fatalf("replayed feed diverges from live feed:\nlive=%v\nreplayed=%v", live, got)
	}
}
