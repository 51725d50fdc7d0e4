package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"chatrelay/pkg/api"
	"chatrelay/pkg/llm"
	"chatrelay/pkg/models"
	"chatrelay/pkg/relay"
	"chatrelay/pkg/sse"
	"chatrelay/pkg/store"
)

func setupServer(t *testing.T) (*httptest.Server, store.Store) {
	t.Helper()
	st := store.NewMemory()
	rl := relay.New(st, nil, &llm.Fallback{})
	h := api.NewRouter(api.Deps{Store: st, Relay: rl, Version: "test"})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv, st
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, _ := json.Marshal(body)
	res, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return res
}

func TestThreadCRUD(t *testing.T) {
	srv, _ := setupServer(t)

	res := postJSON(t, srv.URL+"/threads", map[string]string{"title": "orig"})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create: %v", res.Status)
	}
	var created struct {
		Thread models.Thread `json:"thread"`
	}
	_ = json.NewDecoder(res.Body).Decode(&created)
	res.Body.Close()
	tid := created.Thread.ID
	if tid == "" || created.Thread.Title != "orig" {
		t.Fatalf("bad created thread: %+v", created.Thread)
	}

	gres, _ := http.Get(srv.URL + "/threads/" + tid)
	if gres.StatusCode != http.StatusOK {
		t.Fatalf("get: %v", gres.Status)
	}
	gres.Body.Close()

	ub, _ := json.Marshal(map[string]string{"title": "updated"})
	ureq, _ := http.NewRequest(http.MethodPut, srv.URL+"/threads/"+tid, bytes.NewReader(ub))
	ures, err := http.DefaultClient.Do(ureq)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	var updated struct {
		Thread models.Thread `json:"thread"`
	}
	_ = json.NewDecoder(ures.Body).Decode(&updated)
	ures.Body.Close()
	if updated.Thread.Title != "updated" {
		t.Fatalf("title = %q", updated.Thread.Title)
	}

	lres, _ := http.Get(srv.URL + "/threads")
	var listed struct {
		Threads []models.Thread `json:"threads"`
	}
	_ = json.NewDecoder(lres.Body).Decode(&listed)
	lres.Body.Close()
	if len(listed.Threads) != 1 || listed.Threads[0].Title != "updated" {
		t.Fatalf("bad list: %+v", listed.Threads)
	}

	dreq, _ := http.NewRequest(http.MethodDelete, srv.URL+"/threads/"+tid, nil)
	dres, err := http.DefaultClient.Do(dreq)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	dres.Body.Close()
	if dres.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: %v", dres.Status)
	}

	g2, _ := http.Get(srv.URL + "/threads/" + tid)
	g2.Body.Close()
	if g2.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete: %v", g2.Status)
	}
}

func TestThreadNotFoundResponses(t *testing.T) {
	srv, _ := setupServer(t)
	paths := []struct {
		method string
		want   int
	}{
		{http.MethodGet, http.StatusNotFound},
		{http.MethodPut, http.StatusNotFound},
		{http.MethodDelete, http.StatusNotFound},
	}
	for _, c := range paths {
		var body io.Reader
		if c.method == http.MethodPut {
			body = strings.NewReader(`{"title":"x"}`)
		}
		req, _ := http.NewRequest(c.method, srv.URL+"/threads/thread-missing", body)
		res, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s: %v", c.method, err)
		}
		if res.StatusCode != c.want {
			t.Fatalf("%s: got %v", c.method, res.Status)
		}
		if c.method != http.MethodDelete {
			var e struct {
				Error string `json:"error"`
			}
			_ = json.NewDecoder(res.Body).Decode(&e)
			if e.Error == "" {
				t.Fatalf("%s: missing error body", c.method)
			}
		}
		res.Body.Close()
	}
}

func TestChatStreamFullFlow(t *testing.T) {
	srv, st := setupServer(t)

	res := postJSON(t, srv.URL+"/chat/stream", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hello"}},
	})
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("stream: %v", res.Status)
	}
	if ct := res.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	d := sse.NewReader(res.Body)
	var content, convID string
	sawDone, sawSentinel := false, false
	for {
		ev, err := d.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		switch ev.Kind {
		case sse.EventMessage:
			content += ev.Frame.Content
		case sse.EventDone:
			convID = ev.Done.ConversationID
			sawDone = true
		case sse.EventSentinel:
			sawSentinel = true
		case sse.EventError:
			t.Fatalf("unexpected error frame: %s", ev.Error)
		}
	}
	if !sawDone || !sawSentinel {
		t.Fatalf("incomplete stream: done=%v sentinel=%v", sawDone, sawSentinel)
	}
	if want := (&llm.Fallback{}).Compose("hello"); content != want {
		t.Fatalf("content = %q", content)
	}

	th, err := st.GetThread(convID)
	if err != nil {
		t.Fatalf("thread missing after stream: %v", err)
	}
	if len(th.Messages) != 2 {
		t.Fatalf("thread has %d messages, want 2", len(th.Messages))
	}
	// first user message becomes the title
	if th.Title != "hello" {
		t.Fatalf("title = %q", th.Title)
	}
}

func TestChatStreamRejectsBadRequests(t *testing.T) {
	srv, _ := setupServer(t)

	res := postJSON(t, srv.URL+"/chat/stream", map[string]any{"messages": []string{}})
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty messages: %v", res.Status)
	}

	res2, err := http.Post(srv.URL+"/chat/stream", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	res2.Body.Close()
	if res2.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid json: %v", res2.Status)
	}
}

func TestChatNonStreaming(t *testing.T) {
	srv, st := setupServer(t)

	res := postJSON(t, srv.URL+"/chat", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "test"}},
	})
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("chat: %v", res.Status)
	}
	var out struct {
		ID             string `json:"id"`
		Message        string `json:"message"`
		ConversationID string `json:"conversationId"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if want := (&llm.Fallback{}).Compose("test"); out.Message != want {
		t.Fatalf("message = %q", out.Message)
	}
	th, err := st.GetThread(out.ConversationID)
	if err != nil {
		t.Fatalf("thread: %v", err)
	}
	if len(th.Messages) != 2 {
		t.Fatalf("thread has %d messages", len(th.Messages))
	}
}

func TestHealthAndReady(t *testing.T) {
	srv, _ := setupServer(t)

	res, _ := http.Get(srv.URL + "/healthz")
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("healthz: %v", res.Status)
	}

	rres, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("readyz: %v", err)
	}
	defer rres.Body.Close()
	if rres.StatusCode != http.StatusOK {
		t.Fatalf("readyz: %v", rres.Status)
	}
	var out struct {
		Status  string `json:"status"`
		Backend string `json:"backend"`
	}
	_ = json.NewDecoder(rres.Body).Decode(&out)
	if out.Backend != "fallback" {
		t.Fatalf("backend = %q", out.Backend)
	}
}

func TestMetricsExposed(t *testing.T) {
	srv, _ := setupServer(t)
	res, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("metrics: %v", res.Status)
	}
	b, _ := io.ReadAll(res.Body)
	if !bytes.Contains(b, []byte("go_goroutines")) {
		t.Fatalf("metrics body looks empty")
	}
}
