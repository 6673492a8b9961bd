package plugins

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/dicerobot/dicerobot/pkg/config"
	"github.com/dicerobot/dicerobot/pkg/gateway"
	"github.com/dicerobot/dicerobot/pkg/plugin/plugintest"
	"github.com/dicerobot/dicerobot/pkg/report"
	"github.com/dicerobot/dicerobot/pkg/session"
)

func newChatHarness(t *testing.T, handler http.HandlerFunc) *harness {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	h := newHarness(t, nil, NewChat("DiceRobot/test"))
	if err := h.registry.PatchPluginSettings("chat", config.Object{
		"base_url": srv.URL + "/v1",
		"api_key":  "sk-test",
	}); err != nil {
		t.Fatalf("PatchPluginSettings() error = %v", err)
	}
	return h
}

func TestChat_Completion(t *testing.T) {
	var got struct{ Model string }
	var rawContent []map[string]interface{}
	h := newChatHarness(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string          `json:"role"`
				Content json.RawMessage `json:"content"`
			} `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		got.Model = body.Model
		if n := len(body.Messages); n > 0 {
			json.Unmarshal(body.Messages[n-1].Content, &rawContent)
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":" 你好！ "}}]}`))
	})
	h.gateway.Images["abc.jpg"] = gateway.Image{File: "abc.jpg", URL: "http://img.example/abc.jpg"}

	msg := plugintest.GroupMessage(".chat 看看这个", "member")
	msg.Message = append(msg.Message, &report.Image{File: "abc.jpg"})
	h.dispatch(t, msg)

	if texts := h.sentTexts(); len(texts) != 1 || texts[0] != "你好！" {
		t.Fatalf("reply = %q", texts)
	}
	if got.Model != "gpt-4o-mini" {
		t.Fatalf("model = %q", got.Model)
	}
	if len(rawContent) != 2 || rawContent[0]["text"] != "看看这个" || rawContent[1]["type"] != "image_url" {
		t.Fatalf("user content = %v", rawContent)
	}
}

func TestChat_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		reply  string
	}{
		{"rejected", http.StatusUnauthorized, `{"error":"bad key"}`, "致远星拒绝了我们的请求……请稍后再试"},
		{"server", http.StatusBadGateway, ``, "糟糕，致远星出错了……请稍后再试"},
		{"garbage", http.StatusOK, `<html>`, "致远星返回了无法解析的内容……请稍后再试"},
		{"no choices", http.StatusOK, `{"choices":[]}`, "致远星返回了无法解析的内容……请稍后再试"},
		{"empty", http.StatusOK, `{"choices":[{"message":{"content":""}}]}`, "……（对方陷入了沉默）"},
	}
	for _, tt := range tests {
		tt := tt
		h := newChatHarness(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			w.Write([]byte(tt.body))
		})
		if texts := h.group(t, ".chat hi", "member"); len(texts) != 1 || texts[0] != tt.reply {
			t.Fatalf("%s: reply = %q", tt.name, texts)
		}
	}
}

func TestChat_NotConfigured(t *testing.T) {
	h := newHarness(t, nil, NewChat("DiceRobot/test"))

	if texts := h.group(t, ".chat hi", "member"); len(texts) != 1 || texts[0] != "对话功能尚未配置" {
		t.Fatalf("reply = %q", texts)
	}
	if texts := h.group(t, ".chat", "member"); len(texts) != 1 || texts[0] != "不太理解这个指令呢……" {
		t.Fatalf("empty prompt reply = %q", texts)
	}
}

func TestChat_History(t *testing.T) {
	var counts []int
	var roles [][]string
	h := newChatHarness(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []struct {
				Role string `json:"role"`
			} `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		var rs []string
		for _, m := range body.Messages {
			rs = append(rs, m.Role)
		}
		counts = append(counts, len(body.Messages))
		roles = append(roles, rs)
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	})

	h.group(t, ".chat first", "member")
	h.group(t, ".chat second", "member")
	if len(counts) != 2 || counts[0] != 2 || counts[1] != 4 {
		t.Fatalf("message counts = %v", counts)
	}
	if got := roles[1]; got[1] != "user" || got[2] != "assistant" {
		t.Fatalf("roles = %v", got)
	}

	key := session.Key(report.ChatGroup, plugintest.GroupID)
	if _, err := os.Stat(filepath.Join(h.store.Settings().Dirs.Data, "chat", key+".json")); err != nil {
		t.Fatalf("history not saved: %v", err)
	}

	if texts := h.group(t, ".chat reset", "member"); len(texts) != 1 || texts[0] != "好的，之前聊过的内容我已经忘掉了" {
		t.Fatalf("reset reply = %q", texts)
	}
	h.group(t, ".chat third", "member")
	if counts[2] != 2 {
		t.Fatalf("history survived reset: %v", counts)
	}
}
