package statsd

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"
)

func TestMetricName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		prefix, name, want string
	}{
		{"quill", "articles.sync", "quill.articles.sync"},
		{"", " list/size ", "list_size"},
		{"quill", "foo..bar", "quill.foo.bar"},
		{"quill", "  ", ""},
		{"quill", ".", "quill"},
	}
	for _, tt := range tests {
		if got := metricName(tt.prefix, tt.name); got != tt.want {
			t.Fatalf("metricName(%q, %q) = %q, want %q", tt.prefix, tt.name, got, tt.want)
		}
	}
}

func TestRenderTags(t *testing.T) {
	t.Parallel()

	global := map[string]string{"env": "prod", " service ": " quill "}
	local := map[string]string{"result": " success ", "": "ignored", "env": "stage"}

	got := renderTags(global, local)
	want := "|#env:stage,result:success,service:quill"
	if got != want {
		t.Fatalf("renderTags mismatch\n got: %q\nwant: %q", got, want)
	}
	if got := renderTags(nil, nil); got != "" {
		t.Fatalf("renderTags(nil, nil) = %q, want empty string", got)
	}
}

func TestClientWritesLines(t *testing.T) {
	t.Parallel()

	clientConn, peerConn := net.Pipe()
	defer peerConn.Close()

	c := &Client{prefix: "quill", tags: map[string]string{"env": "test"}, conn: clientConn}

	got := make(chan string, 1)
	go func() {
		buf := make([]byte, 256)
		n, _ := peerConn.Read(buf)
		got <- string(buf[:n])
	}()

	c.Timing("articles.sync.duration", 1500*time.Microsecond, map[string]string{"op": "reload"})

	select {
	case line := <-got:
		want := "quill.articles.sync.duration:1.5|ms|#env:test,op:reload"
		if line != want {
			t.Fatalf("line = %q, want %q", line, want)
		}
	case <-time.After(time.Second):
		t.Fatal("no datagram written")
	}
}

func TestClientClose(t *testing.T) {
	t.Parallel()

	clientConn, peerConn := net.Pipe()
	defer peerConn.Close()

	c := &Client{conn: clientConn}
	if err := c.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if c.conn != nil {
		t.Fatal("expected connection to be released after Close")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close error: %v", err)
	}
	// Dropped silently.
	c.Count("articles.sync", 1, nil)

	var nilClient *Client
	nilClient.Gauge("articles.list.size", 1, nil)
	if err := nilClient.Close(); err != nil {
		t.Fatalf("nil client Close error: %v", err)
	}
}

func TestNewClientDisabledWithoutAddress(t *testing.T) {
	t.Parallel()

	c, err := NewClient(context.Background(), Config{Enabled: true, Address: "   "})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	if c.Enabled() {
		t.Fatal("expected client to stay disabled when address is empty")
	}
}

func TestNewClientDialError(t *testing.T) {
	t.Parallel()

	_, err := NewClient(context.Background(), Config{Enabled: true, Address: "bad address"})
	if err == nil {
		t.Fatal("expected NewClient to error for invalid address")
	}
	if !strings.Contains(err.Error(), "statsd dial") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRecorderCounts(t *testing.T) {
	t.Parallel()

	var r Recorder
	r.Count("articles.sync", 1, map[string]string{"op": "apply", "result": "success"})
	r.Count("articles.sync", 1, map[string]string{"op": "apply", "result": "noop"})
	r.Count("articles.sync", 2, map[string]string{"op": "reload", "result": "success"})
	r.Gauge("articles.list.size", 3, nil)

	if got := r.Counts("articles.sync", map[string]string{"op": "apply"}); got != 2 {
		t.Fatalf("apply count = %d, want 2", got)
	}
	if got := r.Counts("articles.sync", map[string]string{"result": "success"}); got != 3 {
		t.Fatalf("success count = %d, want 3", got)
	}
	if got := len(r.Samples()); got != 4 {
		t.Fatalf("samples = %d, want 4", got)
	}
}
