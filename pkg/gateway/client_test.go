package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dicerobot/dicerobot/pkg/report"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{BaseURL: server.URL, AccessToken: "token", UserAgent: "DiceRobot/test"})
}

func TestGetLoginInfo(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/get_login_info" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("User-Agent"); got != "DiceRobot/test" {
			t.Errorf("User-Agent = %q", got)
		}
		w.Write([]byte(`{"status":"ok","retcode":0,"data":{"user_id":99999,"nickname":"Shinji"},"message":""}`))
	})

	info, err := client.GetLoginInfo(context.Background())
	if err != nil {
		t.Fatalf("GetLoginInfo() error = %v", err)
	}
	if info.UserID != 99999 || info.Nickname != "Shinji" {
		t.Fatalf("GetLoginInfo() = %+v", info)
	}
}

func TestSendGroupMessage_Body(t *testing.T) {
	var body map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &body)
		w.Write([]byte(`{"status":"ok","retcode":0,"data":{"message_id":5}}`))
	})

	result, err := client.SendGroupMessage(context.Background(), 114514, report.TextSegments("hello"))
	if err != nil {
		t.Fatalf("SendGroupMessage() error = %v", err)
	}
	if result.MessageID != 5 {
		t.Fatalf("MessageID = %d", result.MessageID)
	}
	if body["group_id"] != float64(114514) {
		t.Fatalf("group_id = %v", body["group_id"])
	}
	segments := body["message"].([]interface{})
	first := segments[0].(map[string]interface{})
	if first["type"] != "text" || first["data"].(map[string]interface{})["text"] != "hello" {
		t.Fatalf("message = %v", body["message"])
	}
}

func TestCall_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr interface{}
	}{
		{"server", http.StatusBadGateway, "", &NetworkServerError{}},
		{"client", http.StatusNotFound, "", &NetworkClientError{}},
		{"invalid json", http.StatusOK, "not json", &NetworkInvalidContentError{}},
		{"missing field", http.StatusOK, `{"status":"ok","retcode":0,"data":{"nickname":"x"}}`, &NetworkInvalidContentError{}},
	}
	for _, tt := range tests {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			w.Write([]byte(tt.body))
		})

		_, err := client.GetLoginInfo(context.Background())
		if !errors.Is(err, ErrNetwork) {
			t.Fatalf("%s: error = %v, want ErrNetwork", tt.name, err)
		}
		switch tt.wantErr.(type) {
		case *NetworkServerError:
			var target *NetworkServerError
			if !errors.As(err, &target) || target.StatusCode != tt.status {
				t.Fatalf("%s: error = %#v", tt.name, err)
			}
		case *NetworkClientError:
			var target *NetworkClientError
			if !errors.As(err, &target) {
				t.Fatalf("%s: error = %#v", tt.name, err)
			}
		case *NetworkInvalidContentError:
			var target *NetworkInvalidContentError
			if !errors.As(err, &target) {
				t.Fatalf("%s: error = %#v", tt.name, err)
			}
		}
	}
}

func TestCall_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewClient(Config{BaseURL: url, Timeout: time.Second})
	_, err := client.GetFriendList(context.Background())
	var target *NetworkError
	if !errors.As(err, &target) || !errors.Is(err, ErrNetwork) {
		t.Fatalf("error = %#v, want *NetworkError", err)
	}
}

func TestCall_NonZeroRetcodeContinues(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"failed","retcode":1404,"data":null,"message":"not found"}`))
	})

	if err := client.SetGroupCard(context.Background(), 1, 2, "card"); err != nil {
		t.Fatalf("SetGroupCard() error = %v", err)
	}
}

func TestClient_Reconfigure(t *testing.T) {
	var auth []string
	handler := func(w http.ResponseWriter, r *http.Request) {
		auth = append(auth, r.Header.Get("Authorization"))
		w.Write([]byte(`{"status":"ok","retcode":0,"data":{"user_id":1,"nickname":"x"}}`))
	}
	old := httptest.NewServer(http.NotFoundHandler())
	defer old.Close()
	moved := httptest.NewServer(http.HandlerFunc(handler))
	defer moved.Close()

	client := NewClient(Config{BaseURL: old.URL, AccessToken: "old"})
	if _, err := client.GetLoginInfo(context.Background()); err == nil {
		t.Fatal("GetLoginInfo() against old gateway succeeded")
	}

	client.SetBaseURL(moved.URL + "/")
	client.SetAccessToken("new")
	if _, err := client.GetLoginInfo(context.Background()); err != nil {
		t.Fatalf("GetLoginInfo() error = %v", err)
	}

	client.SetAccessToken("")
	if _, err := client.GetLoginInfo(context.Background()); err != nil {
		t.Fatalf("GetLoginInfo() error = %v", err)
	}
	if len(auth) != 2 || auth[0] != "Bearer new" || auth[1] != "" {
		t.Fatalf("Authorization headers = %q", auth)
	}
}

func TestDownload(t *testing.T) {
	payload := strings.Repeat("0123456789", 3000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte(payload))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
	path := filepath.Join(t.TempDir(), "nested", "image.png")
	if err := client.Download(context.Background(), server.URL+"/image.png", path); err != nil {
		t.Fatalf("Download() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read download: %v", err)
	}
	if string(data) != payload {
		t.Fatalf("downloaded %d bytes, want %d", len(data), len(payload))
	}
	if _, err := os.Stat(path + ".part"); !os.IsNotExist(err) {
		t.Fatalf("temporary file left behind: %v", err)
	}
}

func slowStream(chunks int, delay time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chunk := []byte(strings.Repeat("x", downloadChunk))
		for i := 0; i < chunks; i++ {
			if _, err := w.Write(chunk); err != nil {
				return
			}
			w.(http.Flusher).Flush()
			select {
			case <-r.Context().Done():
				return
			case <-time.After(delay):
			}
		}
	}
}

func TestDownload_OutlivesAPITimeout(t *testing.T) {
	server := httptest.NewServer(slowStream(6, 100*time.Millisecond))
	defer server.Close()

	client := NewClient(Config{Timeout: 250 * time.Millisecond})
	path := filepath.Join(t.TempDir(), "slow.png")
	if err := client.Download(context.Background(), server.URL+"/slow.png", path); err != nil {
		t.Fatalf("Download() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat download: %v", err)
	}
	if info.Size() != 6*downloadChunk {
		t.Fatalf("downloaded %d bytes, want %d", info.Size(), 6*downloadChunk)
	}
}

func TestDownload_ContextCancel(t *testing.T) {
	server := httptest.NewServer(slowStream(50, 100*time.Millisecond))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	client := NewClient(Config{})
	path := filepath.Join(t.TempDir(), "slow.png")
	err := client.Download(ctx, server.URL+"/slow.png", path)
	var target *NetworkError
	if !errors.As(err, &target) {
		t.Fatalf("Download() error = %v, want *NetworkError", err)
	}
	for _, p := range []string{path, path + ".part"} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("%s left behind: %v", p, err)
		}
	}
}

func TestDownload_NotFound(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	client := NewClient(Config{})
	path := filepath.Join(t.TempDir(), "missing.png")
	err := client.Download(context.Background(), server.URL+"/missing.png", path)
	var target *NetworkClientError
	if !errors.As(err, &target) {
		t.Fatalf("Download() error = %v, want *NetworkClientError", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("file created for failed download")
	}
}

func TestCopyChunks(t *testing.T) {
	var sb strings.Builder
	n, err := copyChunks(&sb, strings.NewReader("abcdefghij"), 3)
	if err != nil || n != 10 || sb.String() != "abcdefghij" {
		t.Fatalf("copyChunks() = %d, %v, %q", n, err, sb.String())
	}
}
