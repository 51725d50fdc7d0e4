package sse

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"chatrelay/pkg/models"
)

func TestWriterFrameFormat(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if err := w.WriteMessage(models.StreamFrame{
		ID: "msg-1", Content: "hi", Role: models.RoleAssistant, ConversationID: "thread-1",
	}); err != nil {
		t.Fatalf("write message: %v", err)
	}
	if err := w.WriteDone("thread-1"); err != nil {
		t.Fatalf("write done: %v", err)
	}
	if err := w.WriteSentinel(); err != nil {
		t.Fatalf("write sentinel: %v", err)
	}

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	body := rec.Body.String()
	want := `data: {"id":"msg-1","content":"hi","role":"assistant","conversationId":"thread-1","isDone":false}` + "\n\n" +
		"event: done\n" + `data: {"conversationId":"thread-1"}` + "\n\n" +
		"data: [DONE]\n\n"
	if body != want {
		t.Fatalf("body mismatch:\ngot:  %q\nwant: %q", body, want)
	}
	if !rec.Flushed {
		t.Fatalf("expected flush after records")
	}
}

func TestWriterErrorFrame(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if err := w.WriteError("backend unavailable"); err != nil {
		t.Fatalf("write error: %v", err)
	}
	want := "event: error\n" + `data: {"error":"backend unavailable"}` + "\n\n"
	if got := rec.Body.String(); got != want {
		t.Fatalf("body = %q, want %q", got, want)
	}
}

// chunkReader yields the stream in fixed-size chunks so line and codepoint
// boundaries land mid-read.
type chunkReader struct {
	data []byte
	n    int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.data) == 0 {
		return 0, io.EOF
	}
	n := c.n
	if n > len(c.data) {
		n = len(c.data)
	}
	copy(p, c.data[:n])
	c.data = c.data[n:]
	return n, nil
}

func collect(t *testing.T, r io.Reader) []Event {
	t.Helper()
	d := NewReader(r)
	var out []Event
	for {
		ev, err := d.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		out = append(out, ev)
	}
}

func TestReaderSplitChunks(t *testing.T) {
	stream := `data: {"id":"m1","content":"he","role":"assistant","conversationId":"t1","isDone":false}` + "\n\n" +
		`data: {"id":"m1","content":"llo","role":"assistant","conversationId":"t1","isDone":false}` + "\n\n" +
		"event: done\n" + `data: {"conversationId":"t1"}` + "\n\n" +
		"data: [DONE]\n\n"

	// decode at every chunk size down to one byte
	for _, size := range []int{1, 2, 3, 7, 4096} {
		evs := collect(t, &chunkReader{data: []byte(stream), n: size})
		if len(evs) != 4 {
			t.Fatalf("chunk %d: got %d events, want 4", size, len(evs))
		}
		if evs[0].Frame.Content != "he" || evs[1].Frame.Content != "llo" {
			t.Fatalf("chunk %d: bad deltas: %+v", size, evs[:2])
		}
		if evs[2].Kind != EventDone || evs[2].Done.ConversationID != "t1" {
			t.Fatalf("chunk %d: bad done event: %+v", size, evs[2])
		}
		if evs[3].Kind != EventSentinel {
			t.Fatalf("chunk %d: missing sentinel", size)
		}
	}
}

func TestReaderSplitUTF8(t *testing.T) {
	stream := `data: {"id":"m1","content":"héllo 世界","role":"assistant","conversationId":"t1","isDone":false}` + "\n\n" +
		"data: [DONE]\n\n"
	evs := collect(t, &chunkReader{data: []byte(stream), n: 1})
	if len(evs) != 2 {
		t.Fatalf("got %d events, want 2", len(evs))
	}
	if evs[0].Frame.Content != "héllo 世界" {
		t.Fatalf("content = %q", evs[0].Frame.Content)
	}
}

func TestReaderSkipsMalformedLines(t *testing.T) {
	stream := "data: {not json}\n\n" +
		"garbage line\n" +
		`data: {"id":"m1","content":"ok","role":"assistant","conversationId":"t1","isDone":false}` + "\n\n" +
		"data: [DONE]\n\n"
	evs := collect(t, strings.NewReader(stream))
	if len(evs) != 2 {
		t.Fatalf("got %d events, want 2", len(evs))
	}
	if evs[0].Frame.Content != "ok" {
		t.Fatalf("content = %q", evs[0].Frame.Content)
	}
}

func TestReaderErrorEvent(t *testing.T) {
	stream := "event: error\n" + `data: {"error":"completion failed"}` + "\n\n" +
		"data: [DONE]\n\n"
	evs := collect(t, strings.NewReader(stream))
	if len(evs) != 2 {
		t.Fatalf("got %d events, want 2", len(evs))
	}
	if evs[0].Kind != EventError || evs[0].Error != "completion failed" {
		t.Fatalf("bad error event: %+v", evs[0])
	}
}

func TestReaderUnterminatedFinalLine(t *testing.T) {
	stream := `data: {"id":"m1","content":"tail","role":"assistant","conversationId":"t1","isDone":true}`
	evs := collect(t, strings.NewReader(stream))
	if len(evs) != 1 {
		t.Fatalf("got %d events, want 1", len(evs))
	}
	if !evs[0].Frame.IsDone || evs[0].Frame.Content != "tail" {
		t.Fatalf("bad frame: %+v", evs[0].Frame)
	}
}

func TestRoundTrip(t *testing.T) {
	rec := httptest.NewRecorder()
	w, _ := NewWriter(rec)
	_ = w.WriteMessage(models.StreamFrame{ID: "m1", Content: "a", Role: models.RoleAssistant, ConversationID: "t1"})
	_ = w.WriteMessage(models.StreamFrame{ID: "m1", Role: models.RoleAssistant, ConversationID: "t1", IsDone: true})
	_ = w.WriteDone("t1")
	_ = w.WriteSentinel()

	evs := collect(t, rec.Body)
	if len(evs) != 4 {
		t.Fatalf("got %d events, want 4", len(evs))
	}
	if !evs[1].Frame.IsDone {
		t.Fatalf("second frame should carry isDone")
	}
	if evs[3].Kind != EventSentinel {
		t.Fatalf("stream must end with the sentinel")
	}
}
