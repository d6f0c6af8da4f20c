package bot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fakeModel(t *testing.T, handler func(attempt int, req completionRequest) (int, string)) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req completionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		status, body := handler(int(attempts.Add(1)), req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &attempts
}

func testConfig(apiType, url string) Config {
	return Config{
		APIType:         apiType,
		APIURL:          url,
		Model:           "test-model",
		FullName:        "LanAI Bot",
		OllamaRetries:   3,
		OllamaRetryWait: time.Millisecond,
		ReconnectWait:   10 * time.Millisecond,
	}
}

func TestClient_LMStudio_Reply(t *testing.T) {
	req := require.New(t)
	seen := make(chan completionRequest, 1)
	srv, _ := fakeModel(t, func(_ int, r completionRequest) (int, string) {
		seen <- r
		return http.StatusOK, `{"choices":[{"message":{"content":"  42  "}}]}`
	})
	client := NewClient(testConfig(APILMStudio, srv.URL), nil)

	reply := client.Reply(context.Background(), "meaning of life?")

	req.Equal("42", reply)
	got := <-seen
	req.Equal("test-model", got.Model)
	req.Equal([]chatMessage{{Role: "user", Content: "meaning of life?"}}, got.Messages)
	req.NotNil(got.Temperature)
	req.InDelta(0.2, *got.Temperature, 1e-9)
}

func TestClient_LMStudio_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"no choices", http.StatusOK, `{"choices":[]}`, "[AI error: no choices in response]"},
		{"empty content", http.StatusOK, `{"choices":[{"message":{"content":" "}}]}`, "[AI error: model returned an empty reply]"},
		{"server error", http.StatusInternalServerError, `{}`, "[AI error: completion api returned an error status: 500 Internal Server Error]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := fakeModel(t, func(int, completionRequest) (int, string) { return tt.status, tt.body })
			client := NewClient(testConfig(APILMStudio, srv.URL), nil)

			require.Equal(t, tt.want, client.Reply(context.Background(), "hi"))
		})
	}
}

func TestClient_LMStudio_Timeout(t *testing.T) {
	req := require.New(t)
	release := make(chan struct{})
	srv, _ := fakeModel(t, func(int, completionRequest) (int, string) {
		<-release
		return http.StatusOK, `{}`
	})
	t.Cleanup(func() { close(release) })
	client := NewClient(testConfig(APILMStudio, srv.URL), nil)
	client.lmStudioTimeout = 50 * time.Millisecond

	reply := client.Reply(context.Background(), "hi")

	req.Contains(reply, "[AI error:")
	req.Contains(reply, "deadline exceeded")
}

func TestClient_Ollama_Waits_For_Model_To_Load(t *testing.T) {
	req := require.New(t)
	prompts := make(chan string, 3)
	srv, attempts := fakeModel(t, func(attempt int, r completionRequest) (int, string) {
		prompts <- r.Messages[0].Content
		switch attempt {
		case 1:
			return http.StatusOK, `{"done_reason":"load","response":""}`
		case 2:
			return http.StatusServiceUnavailable, `{}`
		default:
			return http.StatusOK, `{"choices":[{"text":"","message":{"content":" ready "}}]}`
		}
	})
	client := NewClient(testConfig(APIOllama, srv.URL), nil)

	reply, err := client.Complete(context.Background(), "hello")

	req.NoError(err)
	req.Equal("ready", reply)
	req.Equal(int32(3), attempts.Load())
	req.Equal("hello\n"+ollamaPersona, <-prompts)
}

func TestClient_Ollama_Native_Response_Field(t *testing.T) {
	srv, _ := fakeModel(t, func(int, completionRequest) (int, string) {
		return http.StatusOK, `{"response":"native"}`
	})
	client := NewClient(testConfig(APIOllama, srv.URL), nil)

	require.Equal(t, "native", client.Reply(context.Background(), "hello"))
}

func TestClient_Ollama_Gives_Up_After_Retries(t *testing.T) {
	req := require.New(t)
	srv, attempts := fakeModel(t, func(int, completionRequest) (int, string) {
		return http.StatusOK, `{"choices":[{"text":"   "}]}`
	})
	client := NewClient(testConfig(APIOllama, srv.URL), nil)

	_, err := client.Complete(context.Background(), "hello")
	req.ErrorIs(err, ErrRetriesExhausted)
	req.Equal(int32(3), attempts.Load())

	req.Equal(GaveUpReply, client.Reply(context.Background(), "hello"))
}

func TestClient_Ollama_Unreadable_Response_Is_Final(t *testing.T) {
	req := require.New(t)
	srv, attempts := fakeModel(t, func(int, completionRequest) (int, string) {
		return http.StatusOK, `{"model":"x"}`
	})
	client := NewClient(testConfig(APIOllama, srv.URL), nil)

	req.Equal(NoResponseReply, client.Reply(context.Background(), "hello"))
	req.Equal(int32(1), attempts.Load())
}

func TestClient_Ollama_Stops_When_Cancelled(t *testing.T) {
	req := require.New(t)
	srv, _ := fakeModel(t, func(int, completionRequest) (int, string) {
		return http.StatusOK, `{"done_reason":"load"}`
	})
	cfg := testConfig(APIOllama, srv.URL)
	cfg.OllamaRetryWait = time.Hour
	client := NewClient(cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Complete(ctx, "hello")
	req.ErrorIs(err, context.DeadlineExceeded)
}

func TestClient_Unknown_API(t *testing.T) {
	req := require.New(t)
	client := NewClient(testConfig("none", "http://127.0.0.1:1"), nil)

	_, err := client.Ping(context.Background())
	req.ErrorIs(err, ErrUnsupportedAPI)
	req.Equal(NotConfiguredReply, client.Reply(context.Background(), "hi"))
}
