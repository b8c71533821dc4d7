package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	name  string
	calls []*RunSummary
	err   error
}

func (f *fakeNotifier) Notify(_ context.Context, s *RunSummary) error {
	f.calls = append(f.calls, s)
	return f.err
}

func (f *fakeNotifier) Name() string { return f.name }

func passing() *RunSummary {
	return &RunSummary{RunID: "r", TotalTests: 2, PassedTests: 2}
}

func failing() *RunSummary {
	return &RunSummary{RunID: "r", TotalTests: 2, PassedTests: 1, FailedTests: 1, FailedNames: []string{"B"}}
}

func fastManager(on NotifyOn, n ...Notifier) *Manager {
	return NewManager(on, n, WithRateLimit(1000, 10))
}

func TestParseNotifyOn(t *testing.T) {
	on, err := ParseNotifyOn("recovery")
	require.NoError(t, err)
	assert.Equal(t, NotifyRecovery, on)

	on, err = ParseNotifyOn("")
	require.NoError(t, err)
	assert.Equal(t, NotifyFailure, on)

	_, err = ParseNotifyOn("sometimes")
	assert.Error(t, err)
}

func TestManager_Policies(t *testing.T) {
	tests := []struct {
		name     string
		on       NotifyOn
		summary  *RunSummary
		expected bool
	}{
		{"always on pass", NotifyAlways, passing(), true},
		{"always on fail", NotifyAlways, failing(), true},
		{"failure on pass", NotifyFailure, passing(), false},
		{"failure on fail", NotifyFailure, failing(), true},
		{"failure on abort", NotifyFailure, &RunSummary{Aborted: true}, true},
		{"success on pass", NotifySuccess, passing(), true},
		{"success on fail", NotifySuccess, failing(), false},
		{"recovery on first pass", NotifyRecovery, passing(), false},
		{"recovery on fail", NotifyRecovery, failing(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &fakeNotifier{name: "fake"}
			m := fastManager(tt.on, n)
			require.NoError(t, m.Notify(context.Background(), tt.summary))
			assert.Equal(t, tt.expected, len(n.calls) == 1)
		})
	}
}

func TestManager_Recovery(t *testing.T) {
	n := &fakeNotifier{name: "fake"}
	m := fastManager(NotifyRecovery, n)
	ctx := context.Background()

	require.NoError(t, m.Notify(ctx, failing()))
	recovered := passing()
	require.NoError(t, m.Notify(ctx, recovered))
	require.NoError(t, m.Notify(ctx, passing()))

	require.Len(t, n.calls, 2)
	assert.True(t, recovered.IsRecovery)
	assert.True(t, n.calls[1].IsRecovery)
}

func TestManager_SeededLastState(t *testing.T) {
	n := &fakeNotifier{name: "fake"}
	m := fastManager(NotifyRecovery, n)
	m.SetLastState(false)

	require.NoError(t, m.Notify(context.Background(), passing()))
	require.Len(t, n.calls, 1)
	assert.True(t, n.calls[0].IsRecovery)
}

func TestManager_JoinsErrors(t *testing.T) {
	errSlack := errors.New("slack down")
	a := &fakeNotifier{name: "a", err: errSlack}
	b := &fakeNotifier{name: "b"}
	m := fastManager(NotifyAlways, a, b)

	err := m.Notify(context.Background(), passing())
	assert.ErrorIs(t, err, errSlack)
	assert.Len(t, b.calls, 1)
}

func TestManager_RateLimited(t *testing.T) {
	n := &fakeNotifier{name: "fake"}
	m := NewManager(NotifyAlways, []Notifier{n}, WithRateLimit(0.001, 1))

	require.NoError(t, m.Notify(context.Background(), passing()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := m.Notify(ctx, passing())
	assert.Error(t, err)
	assert.Len(t, n.calls, 1)
}

func TestSlackNotifier(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &payload))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := NewSlackNotifier(server.URL, WithSlackChannel("#ci"))
	assert.Equal(t, "slack", s.Name())
	require.NoError(t, s.Notify(context.Background(), failing()))

	assert.Equal(t, "#ci", payload["channel"])
	attachments := payload["attachments"].([]any)
	require.Len(t, attachments, 1)
	att := attachments[0].(map[string]any)
	assert.Equal(t, "danger", att["color"])
	assert.Contains(t, att["text"], "`B`")
}

func TestSlackNotifier_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("invalid_token"))
	}))
	defer server.Close()

	err := NewSlackNotifier(server.URL).Notify(context.Background(), passing())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "invalid_token")
}

func TestTeamsNotifier(t *testing.T) {
	var payload teamsMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &payload))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	tn := NewTeamsNotifier(server.URL)
	assert.Equal(t, "teams", tn.Name())
	require.NoError(t, tn.Notify(context.Background(), passing()))

	require.Len(t, payload.Attachments, 1)
	body := payload.Attachments[0].Content.Body
	require.NotEmpty(t, body)
	assert.Contains(t, body[0].Text, "All tests passed")
}

func TestNotifier_HTTPClientTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := &http.Client{Timeout: 50 * time.Millisecond}
	notifiers := []Notifier{
		NewSlackNotifier(server.URL, WithSlackHTTPClient(client)),
		NewTeamsNotifier(server.URL, WithTeamsHTTPClient(client)),
	}

	for _, n := range notifiers {
		t.Run(n.Name(), func(t *testing.T) {
			start := time.Now()
			err := n.Notify(context.Background(), failing())
			require.Error(t, err)
			assert.Less(t, time.Since(start), time.Second)
		})
	}
}

func TestRunSummary_ListedFailures(t *testing.T) {
	s := &RunSummary{}
	for i := 0; i < 12; i++ {
		s.FailedNames = append(s.FailedNames, "t")
	}
	names, more := s.listedFailures()
	assert.Len(t, names, maxListedFailures)
	assert.Equal(t, 2, more)
}
