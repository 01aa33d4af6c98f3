package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	xerrors "Traitors-Arena/internal/errors"
)

func sampleEvent() Event {
	return Event{
		Code:       xerrors.CodeSettlementFailure,
		Message:    "写入结算条目失败",
		Severity:   xerrors.SeverityCritical,
		MatchID:    "m-1",
		Attempts:   2,
		MaxRetries: 5,
		OccurredAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestWebhookNotifier(t *testing.T) {
	var received map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %s", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("解析请求体失败: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	n := &WebhookNotifier{URL: ts.URL, Client: ts.Client()}
	if err := n.Notify(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if received["match_id"] != "m-1" {
		t.Fatalf("match_id = %v, want m-1", received["match_id"])
	}
	if received["attempts"] != float64(2) {
		t.Fatalf("attempts = %v, want 2", received["attempts"])
	}
}

func TestWebhookNotifierRejectsErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	n := &WebhookNotifier{URL: ts.URL, Client: ts.Client()}
	if err := n.Notify(context.Background(), sampleEvent()); err == nil {
		t.Fatal("非 2xx 响应应视为失败")
	}
}

func TestWebhookNotifierSkipsWhenUnconfigured(t *testing.T) {
	n := &WebhookNotifier{}
	if err := n.Notify(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("未配置的通知器应跳过而非报错: %v", err)
	}
}

type recordingSender struct {
	channel string
	content string
	err     error
}

func (s *recordingSender) Send(_ context.Context, channel, content string) error {
	s.channel = channel
	s.content = content
	return s.err
}

func TestSlackNotifier(t *testing.T) {
	sender := &recordingSender{}
	n := &SlackNotifier{Sender: sender, ChannelID: "C123"}
	if err := n.Notify(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if sender.channel != "C123" {
		t.Fatalf("channel = %s, want C123", sender.channel)
	}
	if sender.content == "" {
		t.Fatal("消息内容为空")
	}
}

func TestFanoutDispatcherJoinsErrors(t *testing.T) {
	failing := &SlackNotifier{Sender: &recordingSender{err: errors.New("slack down")}, ChannelID: "C123"}

	ok := make(chan struct{}, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		ok <- struct{}{}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()
	webhook := &WebhookNotifier{URL: ts.URL, Client: ts.Client()}

	dispatcher := NewFanout(webhook, failing, nil)
	err := dispatcher.Notify(context.Background(), sampleEvent())
	if err == nil {
		t.Fatal("部分渠道失败时应返回错误")
	}
	select {
	case <-ok:
	default:
		t.Fatal("失败渠道不应阻止其他渠道投递")
	}
}
