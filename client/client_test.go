package client_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/HVLAB-SJ/hv-lab-app-sub002/client"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type staticTokens string

func (s staticTokens) Token(ctx context.Context, scope string) (string, error) {
	return string(s), nil
}

type ClientTestSuite struct {
	suite.Suite
	ctx     context.Context
	logger  *slog.Logger
	mux     *http.ServeMux
	server  *httptest.Server
	client  *client.Client
	flakies atomic.Int32
}

func (s *ClientTestSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	s.ctx = context.Background()
	s.mux = http.NewServeMux()
	s.server = httptest.NewServer(s.mux)
	s.flakies.Store(0)

	var err error
	s.client, err = client.NewClient(&client.Config{
		BaseURL:    s.server.URL + "/v1",
		Tokens:     staticTokens("secret-token"),
		Timeout:    2 * time.Second,
		MaxRetries: 2,
		Logger:     s.logger,
	})
	require.NoError(s.T(), err)
}

func (s *ClientTestSuite) TearDownTest() {
	s.server.Close()
}

func (s *ClientTestSuite) TestGetJSONSendsBearerToken() {
	s.mux.HandleFunc("/v1/items/42", func(w http.ResponseWriter, r *http.Request) {
		s.Equal("Bearer secret-token", r.Header.Get("Authorization"))
		s.Equal(http.MethodGet, r.Method)
		w.Write([]byte(`{"id":42,"name":"Widget"}`))
	})

	var out struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}
	err := s.client.GetJSON(s.ctx, "items/42", nil, &out)
	require.NoError(s.T(), err)
	s.Equal(42, out.ID)
	s.Equal("Widget", out.Name)
}

func (s *ClientTestSuite) TestRawBodyAndQuery() {
	s.mux.HandleFunc("/v1/upload", func(w http.ResponseWriter, r *http.Request) {
		s.Equal("image/png", r.Header.Get("Content-Type"))
		s.Equal("media", r.URL.Query().Get("uploadType"))
		s.Equal("a/b.png", r.URL.Query().Get("name"))
		body, _ := io.ReadAll(r.Body)
		s.Equal([]byte{0x89, 'P', 'N', 'G'}, body)
		w.Write([]byte(`{}`))
	})

	_, err := s.client.Do(s.ctx, client.Request{
		Method:      http.MethodPost,
		Path:        "upload",
		Query:       map[string][]string{"uploadType": {"media"}, "name": {"a/b.png"}},
		ContentType: "image/png",
		Body:        []byte{0x89, 'P', 'N', 'G'},
	})
	require.NoError(s.T(), err)
}

func (s *ClientTestSuite) TestNon2xxIsStatusError() {
	s.mux.HandleFunc("/v1/missing", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"nope"}`, http.StatusNotFound)
	})

	err := s.client.Exec(s.ctx, client.Request{Method: http.MethodDelete, Path: "missing"})
	require.Error(s.T(), err)

	var se *client.StatusError
	require.True(s.T(), errors.As(err, &se))
	s.Equal(http.StatusNotFound, se.StatusCode)
	s.Contains(se.Body, "nope")
	s.True(client.IsNotFound(err))
	s.False(client.IsNetwork(err))
}

func (s *ClientTestSuite) TestRetriesRateLimitedRequests() {
	s.mux.HandleFunc("/v1/flaky", func(w http.ResponseWriter, r *http.Request) {
		if s.flakies.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	})

	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(s.T(), s.client.GetJSON(s.ctx, "flaky", nil, &out))
	s.True(out.OK)
	s.Equal(int32(2), s.flakies.Load())
}

func (s *ClientTestSuite) TestGivesUpAfterMaxRetries() {
	s.mux.HandleFunc("/v1/busy", func(w http.ResponseWriter, r *http.Request) {
		s.flakies.Add(1)
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := s.client.Do(s.ctx, client.Request{Method: http.MethodGet, Path: "busy"})
	require.Error(s.T(), err)
	s.Equal(http.StatusServiceUnavailable, client.StatusCode(err))
	s.Equal(int32(3), s.flakies.Load())
}

func (s *ClientTestSuite) TestFollowsRedirectPreservingMethod() {
	s.mux.HandleFunc("/v1/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/v1/new", http.StatusTemporaryRedirect)
	})
	s.mux.HandleFunc("/v1/new", func(w http.ResponseWriter, r *http.Request) {
		s.Equal(http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		s.JSONEq(`{"a":1}`, string(body))
		w.Write([]byte(`{}`))
	})

	err := s.client.SendJSON(s.ctx, http.MethodPost, "old", nil, map[string]int{"a": 1}, nil)
	require.NoError(s.T(), err)
}

func (s *ClientTestSuite) TestTimeoutIsNetworkError() {
	release := make(chan struct{})
	s.mux.HandleFunc("/v1/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	slow, err := client.NewClient(&client.Config{
		BaseURL: s.server.URL + "/v1",
		Timeout: 50 * time.Millisecond,
		Logger:  s.logger,
	})
	require.NoError(s.T(), err)

	_, err = slow.Do(s.ctx, client.Request{Method: http.MethodGet, Path: "slow"})
	require.Error(s.T(), err)
	s.True(client.IsNetwork(err))
}

func (s *ClientTestSuite) TestRequestsPerSecondSpacesRequests() {
	var (
		mu   sync.Mutex
		seen []time.Time
	)
	s.mux.HandleFunc("/v1/paced", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, time.Now())
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	paced, err := client.NewClient(&client.Config{
		BaseURL:           s.server.URL + "/v1",
		RequestsPerSecond: 20,
		Logger:            s.logger,
	})
	require.NoError(s.T(), err)

	for range 3 {
		require.NoError(s.T(), paced.Exec(s.ctx, client.Request{Method: http.MethodGet, Path: "paced"}))
	}
	require.Len(s.T(), seen, 3)
	// 20 per second is one slot every 50ms; allow for timer jitter.
	s.GreaterOrEqual(seen[2].Sub(seen[0]), 90*time.Millisecond)

	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	err = paced.Exec(ctx, client.Request{Method: http.MethodGet, Path: "paced"})
	s.ErrorIs(err, context.Canceled)
}

func TestNewClientValidation(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := client.NewClient(&client.Config{Logger: logger})
	require.ErrorIs(t, err, client.ErrBaseURLMissing)

	_, err = client.NewClient(&client.Config{BaseURL: "http://localhost"})
	require.ErrorIs(t, err, client.ErrLoggerMissing)
}

func TestClientTestSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}
