package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"Traitors-Arena/internal/auth"
	"Traitors-Arena/internal/economy"
	xerrors "Traitors-Arena/internal/errors"
	"Traitors-Arena/internal/fanout"
	"Traitors-Arena/internal/game"
	"Traitors-Arena/internal/observability/metrics"
	"Traitors-Arena/internal/participant"
)

// Server 负责暴露 REST 接口，供智能体选手与观战端驱动对局。
type Server struct {
	addr         string
	games        *game.Service
	economy      *economy.Service
	participants participant.Store
	auth         *auth.Service
	hub          *fanout.Hub
}

// NewServer 构造 API 服务实例。hub 可以为空，此时事件流端点不可用。
func NewServer(addr string, games *game.Service, econ *economy.Service, participants participant.Store, authSvc *auth.Service, hub *fanout.Hub) *Server {
	return &Server{
		addr:         addr,
		games:        games,
		economy:      econ,
		participants: participants,
		auth:         authSvc,
		hub:          hub,
	}
}

// Handler 装配全部路由与中间件。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	required := s.auth.Middleware(auth.MiddlewareConfig{})
	optional := s.auth.Middleware(auth.MiddlewareConfig{Optional: true})

	mux.Handle("POST /api/v1/participants", instrument("participants", http.HandlerFunc(s.handleRegister)))
	mux.Handle("GET /api/v1/participants/{id}", instrument("participant_detail", http.HandlerFunc(s.handleParticipant)))
	mux.Handle("GET /api/v1/leaderboard", instrument("leaderboard", http.HandlerFunc(s.handleLeaderboard)))

	mux.Handle("POST /api/v1/queue", instrument("queue_join", required(http.HandlerFunc(s.handleQueueJoin))))
	mux.Handle("DELETE /api/v1/queue", instrument("queue_leave", required(http.HandlerFunc(s.handleQueueLeave))))

	mux.Handle("GET /api/v1/matches/{id}", instrument("match_state", optional(http.HandlerFunc(s.handleState))))
	mux.Handle("POST /api/v1/matches/{id}/murder", instrument("match_murder", required(http.HandlerFunc(s.handleMurder))))
	mux.Handle("POST /api/v1/matches/{id}/vote", instrument("match_vote", required(http.HandlerFunc(s.handleVote))))
	mux.Handle("POST /api/v1/matches/{id}/chat", instrument("match_chat", required(http.HandlerFunc(s.handleChat))))
	mux.Handle("POST /api/v1/matches/{id}/predictions", instrument("match_predict", required(http.HandlerFunc(s.handlePredict))))
	mux.Handle("GET /api/v1/matches/{id}/events", optional(http.HandlerFunc(s.handleEvents)))

	mux.Handle("POST /api/v1/claims", instrument("claims", required(http.HandlerFunc(s.handleClaim))))

	return mux
}

// Start 启动 HTTP 服务,直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	// 配置 HTTP 服务器。
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// 启动服务器并监听关闭信号。
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

type registerRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind"`
}

type registerResponse struct {
	Participant *participant.Participant `json:"participant"`
	Token       *auth.TokenPair          `json:"token,omitempty"`
}

// handleRegister 注册参赛者并签发访问令牌。
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		http.Error(w, "name 不能为空", http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	kind := participant.Kind(req.Kind)
	if kind != participant.KindHuman {
		kind = participant.KindAgent
	}

	p := &participant.Participant{
		ID:   req.ID,
		Name: req.Name,
		Kind: kind,
	}
	if err := s.participants.Create(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}

	resp := registerResponse{Participant: p}
	if s.auth.Mode() != auth.ModeDisabled {
		token, err := s.auth.IssueToken(r.Context(), &auth.Subject{
			ParticipantID: p.ID,
			Name:          p.Name,
			Kind:          string(p.Kind),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		resp.Token = token
	}
	writeJSON(w, http.StatusCreated, resp)
}

// handleParticipant 返回参赛者档案与已解锁成就。
func (s *Server) handleParticipant(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, err := s.participants.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	achievements, err := s.economy.Achievements(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"participant":  p,
		"achievements": achievements,
	})
}

// handleLeaderboard 返回按积分排序的排行榜。
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	entries, err := s.participants.List(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleQueueJoin 将当前主体加入匹配队列。
func (s *Server) handleQueueJoin(w http.ResponseWriter, r *http.Request) {
	subject := auth.SubjectFromContext(r.Context())
	if subject == nil {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	seat := game.Seat{ParticipantID: subject.ParticipantID, Name: subject.Name}
	if seat.Name == "" {
		if p, err := s.participants.Get(r.Context(), subject.ParticipantID); err == nil {
			seat.Name = p.Name
		}
	}
	if err := s.games.JoinQueue(r.Context(), seat); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// handleQueueLeave 将当前主体移出匹配队列。
func (s *Server) handleQueueLeave(w http.ResponseWriter, r *http.Request) {
	subject := auth.SubjectFromContext(r.Context())
	if subject == nil {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	s.games.LeaveQueue(r.Context(), subject.ParticipantID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "dequeued"})
}

// handleState 返回观察者可见的对局净化视图。
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	viewer := game.Viewer{}
	if subject := auth.SubjectFromContext(r.Context()); subject != nil {
		viewer.ParticipantID = subject.ParticipantID
	}
	view, err := s.games.State(r.Context(), r.PathValue("id"), viewer)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type targetRequest struct {
	TargetID  string `json:"target_id"`
	Rationale string `json:"rationale,omitempty"`
}

// handleMurder 提交刺杀提名。
func (s *Server) handleMurder(w http.ResponseWriter, r *http.Request) {
	subject := auth.SubjectFromContext(r.Context())
	if subject == nil {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	var req targetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	if err := s.games.SubmitMurder(r.Context(), r.PathValue("id"), subject.ParticipantID, req.TargetID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// handleVote 提交放逐票。
func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	subject := auth.SubjectFromContext(r.Context())
	if subject == nil {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	var req targetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	if err := s.games.SubmitVote(r.Context(), r.PathValue("id"), subject.ParticipantID, req.TargetID, req.Rationale); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type chatRequest struct {
	Text string `json:"text"`
}

// handleChat 发送聊天消息。
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	subject := auth.SubjectFromContext(r.Context())
	if subject == nil {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	if err := s.games.SubmitChat(r.Context(), r.PathValue("id"), subject.ParticipantID, req.Text); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type predictRequest struct {
	Suspects []string `json:"suspects"`
}

// handlePredict 提交观战押注。
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	subject := auth.SubjectFromContext(r.Context())
	if subject == nil {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	prediction, err := s.economy.SubmitPrediction(r.Context(), r.PathValue("id"), subject.ParticipantID, req.Suspects)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, prediction)
}

type claimRequest struct {
	Wallet string `json:"wallet"`
}

// handleClaim 提取未领取积分。
func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	subject := auth.SubjectFromContext(r.Context())
	if subject == nil {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	claim, err := s.economy.Claim(r.Context(), subject.ParticipantID, req.Wallet)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, claim)
}

// handleEvents 以 SSE 形式推送对局事件。带令牌的选手按角色进入
// 对应频道,匿名连接按观战者处理并计入观战人数。
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.Error(w, "事件流未启用", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	matchID := r.PathValue("id")

	viewer := game.Viewer{}
	if subject := auth.SubjectFromContext(r.Context()); subject != nil {
		viewer.ParticipantID = subject.ParticipantID
	}
	view, err := s.games.State(r.Context(), matchID, viewer)
	if err != nil {
		writeError(w, err)
		return
	}

	role := fanout.MemberSpectator
	switch view.YourRole {
	case game.RoleTraitor:
		role = fanout.MemberTraitor
	case game.RoleInnocent:
		role = fanout.MemberPlayer
	}
	if role == fanout.MemberSpectator {
		s.games.SpectatorJoin(r.Context(), matchID)
		defer s.games.SpectatorLeave(context.Background(), matchID)
	}

	sub := s.hub.Subscribe(viewer.ParticipantID)
	sub.Join(matchID, role)
	defer s.hub.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case delivery, open := <-sub.Events():
			if !open {
				return
			}
			payload, err := json.Marshal(delivery.Event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", delivery.Event.EventName(), payload)
			flusher.Flush()
		}
	}
}

// writeJSON 输出 JSON 响应。
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError 按错误码映射 HTTP 状态。
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch xerrors.CodeOf(err) {
	case game.CodeMatchNotFound, participant.CodeNotFound, xerrors.CodeNotFound:
		status = http.StatusNotFound
	case game.CodeAlreadyQueued, game.CodeAlreadyInMatch, participant.CodeAlreadyExists, xerrors.CodeConflict:
		status = http.StatusConflict
	case game.CodeWrongPhase, game.CodeSlotDead, game.CodeMatchEnded,
		economy.CodePredictionClosed, economy.CodeInsiderForbidden, economy.CodeNothingToClaim:
		status = http.StatusConflict
	case game.CodeInvalidTarget, game.CodeNotInMatch,
		economy.CodeInvalidSuspects, economy.CodeInvalidWallet, xerrors.CodeInvalidArgument:
		status = http.StatusBadRequest
	case xerrors.CodePermissionDenied:
		status = http.StatusForbidden
	}
	writeJSON(w, status, map[string]string{
		"code":  string(xerrors.CodeOf(err)),
		"error": err.Error(),
	})
}

// instrument 在响应后记录请求指标。
func instrument(handler string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		metrics.ObserveHTTPRequest(handler, r.Method, sw.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
