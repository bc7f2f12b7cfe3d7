package statsd

import (
	"net"
	"strings"
	"testing"
	"time"
)

func TestQualify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		prefix, name, want string
	}{
		{"report_runner", " stage/render ", "report_runner.stage_render"},
		{"", "foo..bar", "foo.bar"},
		{"p", "", ""},
		{"p", "..", ""},
		{"", "multi  space", "multi__space"},
	}

	for _, tt := range tests {
		if got := qualify(tt.prefix, tt.name); got != tt.want {
			t.Fatalf("qualify(%q, %q) = %q, want %q", tt.prefix, tt.name, got, tt.want)
		}
	}
}

func TestEncodeTags(t *testing.T) {
	t.Parallel()

	global := map[string]string{"env": "prod", " service ": " report_runner "}
	local := map[string]string{"result": " success ", "": "ignored", "env": "stage"}

	got := encodeTags(global, local)
	want := "|#env:stage,result:success,service:report_runner"
	if got != want {
		t.Fatalf("encodeTags mismatch\n got: %q\nwant: %q", got, want)
	}
	if got := encodeTags(nil, nil); got != "" {
		t.Fatalf("encodeTags(nil, nil) = %q, want empty string", got)
	}
}

func TestClientWritesLines(t *testing.T) {
	t.Parallel()

	clientConn, peerConn := net.Pipe()
	defer peerConn.Close()

	client := &Client{prefix: "rr", globalTags: map[string]string{"env": "test"}, conn: clientConn}
	lines := make(chan string, 3)
	go func() {
		buf := make([]byte, 512)
		for range 3 {
			n, err := peerConn.Read(buf)
			if err != nil {
				return
			}
			lines <- string(buf[:n])
		}
	}()

	client.Count("job.outcome", 1, map[string]string{"state": "completed"})
	client.Gauge("artifact.bytes", 1.5, nil)
	client.Timing("job.duration", 1500*time.Microsecond, nil)

	want := []string{
		"rr.job.outcome:1|c|#env:test,state:completed",
		"rr.artifact.bytes:1.5|g|#env:test",
		"rr.job.duration:1.5|ms|#env:test",
	}
	for _, w := range want {
		if got := <-lines; got != w {
			t.Fatalf("line = %q, want %q", got, w)
		}
	}
}

func TestClientEnabledAndClose(t *testing.T) {
	t.Parallel()

	clientConn, peerConn := net.Pipe()
	defer peerConn.Close()

	client := &Client{conn: clientConn}
	if !client.Enabled() {
		t.Fatal("expected client.Enabled to report true with active connection")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if client.Enabled() {
		t.Fatal("expected client.Enabled to report false after Close")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close (second call) error: %v", err)
	}

	var nilClient *Client
	if nilClient.Enabled() {
		t.Fatal("nil client should report disabled")
	}
	nilClient.Count("ignored", 1, nil)
	if err := nilClient.Close(); err != nil {
		t.Fatalf("nil client Close error: %v", err)
	}
}

func TestNewClientDisabledWithoutAddress(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{Enabled: true, Address: "   "})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	if client.Enabled() {
		t.Fatal("expected client to stay disabled when address is empty")
	}
}

func TestNewClientDialError(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{Enabled: true, Address: "bad address"})
	if err == nil {
		t.Fatal("expected NewClient to error for invalid address")
	}
	if !strings.Contains(err.Error(), "statsd dial") {
		t.Fatalf("unexpected error: %v", err)
	}
}

type countingSink struct{ counts, gauges, timings int }

func (s *countingSink) Count(string, int64, map[string]string)          { s.counts++ }
func (s *countingSink) Gauge(string, float64, map[string]string)        { s.gauges++ }
func (s *countingSink) Timing(string, time.Duration, map[string]string) { s.timings++ }

func TestNewMulti(t *testing.T) {
	t.Parallel()

	if NewMulti(nil, nil) != nil {
		t.Fatal("NewMulti of nils should be nil")
	}
	single := &countingSink{}
	if NewMulti(nil, single) != Sink(single) {
		t.Fatal("NewMulti with one sink should return it unchanged")
	}

	a, b := &countingSink{}, &countingSink{}
	m := NewMulti(a, nil, b)
	m.Count("x", 1, nil)
	m.Gauge("y", 1, nil)
	m.Timing("z", time.Second, nil)
	for _, s := range []*countingSink{a, b} {
		if s.counts != 1 || s.gauges != 1 || s.timings != 1 {
			t.Fatalf("sink did not receive all metrics: %+v", *s)
		}
	}
}
