package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"Traitors-Arena/internal/auth"
	"Traitors-Arena/internal/economy"
	"Traitors-Arena/internal/fanout"
	"Traitors-Arena/internal/game"
	"Traitors-Arena/internal/participant"
	"Traitors-Arena/internal/rules"
)

type apiFixture struct {
	server   *httptest.Server
	profiles *participant.MemoryStore
	registry *game.Registry
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	r := rules.Default()
	r.Match = rules.MatchRules{RosterSize: 4, TraitorCount: 1}
	r.Phases = rules.PhaseRules{
		StartingSeconds:   300,
		MurderSeconds:     300,
		DiscussionSeconds: 300,
		VotingSeconds:     300,
		RevealSeconds:     300,
	}

	profiles := participant.NewMemoryStore()
	registry := game.NewRegistry(time.Minute)
	hub := fanout.NewHub(16)
	gameStore := game.NewMemoryStore()
	econ := economy.NewService(economy.NewMemoryStore(), profiles, registry, r)
	clock := game.NewClock(registry, r, hub, gameStore, econ)
	queue := game.NewQueue(registry, clock, hub, r.Match)
	games := game.NewService(registry, queue, clock, gameStore, hub)

	authSvc, err := auth.NewService(auth.Config{Mode: auth.ModeToken, Secret: "api-test-secret"})
	if err != nil {
		t.Fatalf("auth.NewService: %v", err)
	}

	ts := httptest.NewServer(NewServer("", games, econ, profiles, authSvc, hub).Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(func() { _ = hub.Close() })
	return &apiFixture{server: ts, profiles: profiles, registry: registry}
}

func (f *apiFixture) do(t *testing.T, method, path, token string, payload any) (*http.Response, []byte) {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("编码请求体失败: %v", err)
		}
	}
	req, err := http.NewRequest(method, f.server.URL+path, &body)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.server.Client().Do(req)
	if err != nil {
		t.Fatalf("请求失败: %v", err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("读取响应失败: %v", err)
	}
	return resp, buf.Bytes()
}

func (f *apiFixture) register(t *testing.T, name string) (string, string) {
	t.Helper()
	resp, body := f.do(t, http.MethodPost, "/api/v1/participants", "", map[string]string{"name": name})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("注册 status = %d: %s", resp.StatusCode, body)
	}
	var decoded struct {
		Participant struct {
			ID string `json:"id"`
		} `json:"participant"`
		Token struct {
			AccessToken string `json:"access_token"`
		} `json:"token"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("解析注册响应失败: %v", err)
	}
	if decoded.Token.AccessToken == "" {
		t.Fatal("注册响应缺少访问令牌")
	}
	return decoded.Participant.ID, decoded.Token.AccessToken
}

func TestRegisterAndLeaderboard(t *testing.T) {
	f := newAPIFixture(t)

	id, _ := f.register(t, "赤")
	f.register(t, "橙")

	// 同 ID 重复注册冲突。
	resp, body := f.do(t, http.MethodPost, "/api/v1/participants", "", map[string]string{"id": id, "name": "赤二号"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("重复注册 status = %d: %s", resp.StatusCode, body)
	}
	var apiErr struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(body, &apiErr); err != nil {
		t.Fatalf("解析错误响应失败: %v", err)
	}
	if apiErr.Code != string(participant.CodeAlreadyExists) {
		t.Fatalf("错误码 = %s, want %s", apiErr.Code, participant.CodeAlreadyExists)
	}

	resp, body = f.do(t, http.MethodPost, "/api/v1/participants", "", map[string]string{"name": "  "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("空名注册 status = %d", resp.StatusCode)
	}

	resp, body = f.do(t, http.MethodGet, "/api/v1/leaderboard?limit=1", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("排行榜 status = %d", resp.StatusCode)
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(body, &entries); err != nil {
		t.Fatalf("解析排行榜失败: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("排行榜长度 = %d, want 1", len(entries))
	}
}

func TestQueueRequiresToken(t *testing.T) {
	f := newAPIFixture(t)

	resp, _ := f.do(t, http.MethodPost, "/api/v1/queue", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("无令牌入队 status = %d, want 401", resp.StatusCode)
	}

	_, token := f.register(t, "赤")
	resp, body := f.do(t, http.MethodPost, "/api/v1/queue", token, nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("入队 status = %d: %s", resp.StatusCode, body)
	}
	// 重复入队冲突。
	resp, _ = f.do(t, http.MethodPost, "/api/v1/queue", token, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("重复入队 status = %d, want 409", resp.StatusCode)
	}

	resp, _ = f.do(t, http.MethodDelete, "/api/v1/queue", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("退队 status = %d, want 200", resp.StatusCode)
	}
}

func TestQueueFormsMatchAndStateIsSanitized(t *testing.T) {
	f := newAPIFixture(t)

	tokens := make(map[string]string, 4)
	for i := 0; i < 4; i++ {
		id, token := f.register(t, fmt.Sprintf("玩家-%d", i))
		tokens[id] = token
		resp, body := f.do(t, http.MethodPost, "/api/v1/queue", token, nil)
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("入队 status = %d: %s", resp.StatusCode, body)
		}
	}

	var matchID string
	for id := range tokens {
		if mid, ok := f.registry.LiveMatchOf(id); ok {
			matchID = mid
			break
		}
	}
	if matchID == "" {
		t.Fatal("凑满四人后应已建局")
	}

	// 观战视角不暴露任何存活阵营。
	resp, body := f.do(t, http.MethodGet, "/api/v1/matches/"+matchID, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("对局状态 status = %d: %s", resp.StatusCode, body)
	}
	var view struct {
		YourRole string `json:"your_role"`
		Slots    []struct {
			Role string `json:"role"`
		} `json:"slots"`
	}
	if err := json.Unmarshal(body, &view); err != nil {
		t.Fatalf("解析视图失败: %v", err)
	}
	if view.YourRole != "" {
		t.Fatalf("观战者 YourRole = %q, want 空", view.YourRole)
	}
	for i, slot := range view.Slots {
		if slot.Role != "" {
			t.Fatalf("座位 %d 的阵营泄露给观战者: %q", i, slot.Role)
		}
	}

	// 座上选手能看到自己的阵营。
	for id, token := range tokens {
		resp, body := f.do(t, http.MethodGet, "/api/v1/matches/"+matchID, token, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("选手状态 status = %d", resp.StatusCode)
		}
		if err := json.Unmarshal(body, &view); err != nil {
			t.Fatalf("解析视图失败: %v", err)
		}
		if view.YourRole == "" {
			t.Fatalf("选手 %s 看不到自己的阵营", id)
		}
	}
}

func TestStateUnknownMatch(t *testing.T) {
	f := newAPIFixture(t)
	resp, body := f.do(t, http.MethodGet, "/api/v1/matches/ghost", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("未知对局 status = %d: %s", resp.StatusCode, body)
	}
	var apiErr struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(body, &apiErr); err != nil {
		t.Fatalf("解析错误响应失败: %v", err)
	}
	if apiErr.Code != string(game.CodeMatchNotFound) {
		t.Fatalf("错误码 = %s, want %s", apiErr.Code, game.CodeMatchNotFound)
	}
}

func TestClaimEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	id, token := f.register(t, "赤")

	// 非法钱包地址。
	resp, _ := f.do(t, http.MethodPost, "/api/v1/claims", token, map[string]string{"wallet": "nope"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("非法地址 status = %d, want 400", resp.StatusCode)
	}

	// 零余额冲突。
	wallet := "0x8ba1f109551bd432803012645ac136ddd64dba72"
	resp, _ = f.do(t, http.MethodPost, "/api/v1/claims", token, map[string]string{"wallet": wallet})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("零余额 status = %d, want 409", resp.StatusCode)
	}

	// 注入余额后提取成功。
	p, err := f.profiles.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	p.UnclaimedPoints = 300
	if err := f.profiles.SaveStats(context.Background(), p); err != nil {
		t.Fatalf("SaveStats: %v", err)
	}

	resp, body := f.do(t, http.MethodPost, "/api/v1/claims", token, map[string]string{"wallet": wallet})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("提取 status = %d: %s", resp.StatusCode, body)
	}
	var claim struct {
		Points int64 `json:"points"`
	}
	if err := json.Unmarshal(body, &claim); err != nil {
		t.Fatalf("解析提取响应失败: %v", err)
	}
	if claim.Points != 300 {
		t.Fatalf("提取积分 = %d, want 300", claim.Points)
	}
}
