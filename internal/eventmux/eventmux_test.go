package eventmux

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/radar.overlay/internal/monitoring"
	"github.com/banshee-data/radar.overlay/internal/scheduler"
	"github.com/banshee-data/radar.overlay/internal/timeutil"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func init() {
	monitoring.SetLogWriters(monitoring.LogWriters{})
}

// localHostRequest creates a request that tsweb treats as coming from loopback.
func localHostRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func newMux(input string) *EventMux {
	return New(io.NopCloser(strings.NewReader(input)), timeutil.NewMockClock(epoch))
}

func drain(ch <-chan scheduler.Event) []scheduler.Event {
	var out []scheduler.Event
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestParseEvent(t *testing.T) {
	at := time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name    string
		line    string
		want    scheduler.Event
		wantErr error
	}{
		{
			name: "area change",
			line: `{"type":"area_changed","area":"1_1_town"}`,
			want: scheduler.Event{Type: scheduler.AreaChanged, Area: "1_1_town", At: epoch},
		},
		{
			name: "explicit timestamp",
			line: `{"type":"moved","at":"2023-01-02T03:04:05Z"}`,
			want: scheduler.Event{Type: scheduler.Moved, At: at},
		},
		{
			name:    "unknown type",
			line:    `{"type":"teleported"}`,
			wantErr: scheduler.ErrUnknownEventType,
		},
		{
			name: "malformed",
			line: `{"type":`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEvent([]byte(tt.line), epoch)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			if tt.want.Type == 0 {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatEventParses(t *testing.T) {
	ev := scheduler.Event{Type: scheduler.ForegroundChanged, Area: "x", At: epoch}
	line, err := FormatEvent(ev)
	require.NoError(t, err)
	got, err := ParseEvent(line, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, ev, got)
}

func TestMonitorFansOut(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"area_changed","area":"A"}`,
		``,
		`not json`,
		`{"type":"teleported"}`,
		`{"type":"moved"}`,
		`{"type":"closed"}`,
	}, "\n")
	m := newMux(input)
	_, a := m.Subscribe()
	_, b := m.Subscribe()

	require.NoError(t, m.Monitor(context.Background()))

	want := []scheduler.EventType{scheduler.AreaChanged, scheduler.Moved, scheduler.Closed}
	for _, ch := range []<-chan scheduler.Event{a, b} {
		var got []scheduler.EventType
		for _, ev := range drain(ch) {
			got = append(got, ev.Type)
		}
		assert.Equal(t, want, got)
	}
}

func TestMonitorStopsOnContext(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	m := New(r, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Monitor(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not stop")
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("pipe broke") }
func (failingReader) Close() error             { return nil }

func TestMonitorReturnsReadError(t *testing.T) {
	m := New(failingReader{}, nil)
	assert.EqualError(t, m.Monitor(context.Background()), "pipe broke")
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	m := newMux("")
	id, ch := m.Subscribe()
	m.Unsubscribe(id)
	_, ok := <-ch
	assert.False(t, ok)

	// Unknown ids are ignored.
	m.Unsubscribe("missing")
}

func TestPublishDropsWhenFull(t *testing.T) {
	m := newMux("")
	_, ch := m.Subscribe()
	for i := 0; i < SubscriberBuffer+5; i++ {
		m.Publish(scheduler.Event{Type: scheduler.Moved})
	}
	assert.Len(t, drain(ch), SubscriberBuffer)
}

func TestCloseClosesSubscribers(t *testing.T) {
	m := newMux("")
	_, ch := m.Subscribe()
	require.NoError(t, m.Close())
	_, ok := <-ch
	assert.False(t, ok)

	_, late := m.Subscribe()
	_, ok = <-late
	assert.False(t, ok, "subscribing after close yields a closed channel")
}

func TestAdminPublish(t *testing.T) {
	m := newMux("")
	_, ch := m.Subscribe()
	httpMux := http.NewServeMux()
	m.AttachAdminRoutes(httpMux)

	tests := []struct {
		name   string
		method string
		form   url.Values
		status int
	}{
		{"valid", http.MethodPost, url.Values{"type": {"area_changed"}, "area": {"Hideout"}}, http.StatusOK},
		{"unknown type", http.MethodPost, url.Values{"type": {"teleported"}}, http.StatusBadRequest},
		{"missing type", http.MethodPost, url.Values{}, http.StatusBadRequest},
		{"wrong method", http.MethodGet, nil, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader
			if tt.form != nil {
				body = strings.NewReader(tt.form.Encode())
			}
			req := localHostRequest(tt.method, "/debug/events/publish", body)
			if tt.form != nil {
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			}
			w := httptest.NewRecorder()
			httpMux.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}

	got := drain(ch)
	require.Len(t, got, 1)
	assert.Equal(t, scheduler.Event{Type: scheduler.AreaChanged, Area: "Hideout", At: epoch}, got[0])
}

func TestAdminTailStreamsEvents(t *testing.T) {
	m := newMux("")
	httpMux := http.NewServeMux()
	m.AttachAdminRoutes(httpMux)
	ts := httptest.NewServer(httpMux)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/debug/events/tail", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	scanner := bufio.NewScanner(resp.Body)
	require.True(t, scanner.Scan())
	require.True(t, strings.HasPrefix(scanner.Text(), ": ping"))

	m.Publish(scheduler.Event{Type: scheduler.AreaChanged, Area: "Mine", At: epoch})

	gotData := false
	for i := 0; i < 5 && scanner.Scan(); i++ {
		if strings.Contains(scanner.Text(), `"area":"Mine"`) {
			gotData = true
			break
		}
	}
	assert.True(t, gotData, "did not receive SSE data event")
}
