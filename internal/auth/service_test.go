package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTokenService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(Config{
		Mode:      ModeToken,
		Secret:    "test-secret",
		Issuer:    "arena-test",
		AccessTTL: 3600,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestIssueAndAuthenticateRoundtrip(t *testing.T) {
	svc := newTokenService(t)
	ctx := context.Background()

	pair, err := svc.IssueToken(ctx, &Subject{ParticipantID: "p1", Name: "赤", Kind: "agent"})
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if pair.AccessToken == "" || pair.TokenType != "Bearer" {
		t.Fatalf("令牌对不完整: %+v", pair)
	}
	if pair.ExpiresIn != 3600 {
		t.Fatalf("ExpiresIn = %d, want 3600", pair.ExpiresIn)
	}

	subject, err := svc.AuthenticateRequest(ctx, "Bearer "+pair.AccessToken)
	if err != nil {
		t.Fatalf("AuthenticateRequest: %v", err)
	}
	if subject.ParticipantID != "p1" || subject.Name != "赤" || subject.Kind != "agent" {
		t.Fatalf("主体还原不一致: %+v", subject)
	}

	// 前缀大小写不敏感,裸令牌同样接受。
	if _, err := svc.AuthenticateRequest(ctx, "bearer "+pair.AccessToken); err != nil {
		t.Fatalf("小写前缀校验失败: %v", err)
	}
	if _, err := svc.AuthenticateRequest(ctx, pair.AccessToken); err != nil {
		t.Fatalf("裸令牌校验失败: %v", err)
	}
}

func TestAuthenticateRejectsBadTokens(t *testing.T) {
	svc := newTokenService(t)
	ctx := context.Background()

	if _, err := svc.AuthenticateRequest(ctx, ""); err != ErrMissingToken {
		t.Fatalf("空头应返回 ErrMissingToken, got %v", err)
	}
	if _, err := svc.AuthenticateRequest(ctx, "not.a.token"); err != ErrInvalidToken {
		t.Fatalf("乱码令牌应返回 ErrInvalidToken, got %v", err)
	}

	pair, err := svc.IssueToken(ctx, &Subject{ParticipantID: "p1"})
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	// 篡改负载后签名校验失败。
	parts := strings.Split(pair.AccessToken, ".")
	tampered := strings.Join([]string{parts[0], parts[1] + "x", parts[2]}, ".")
	if _, err := svc.AuthenticateRequest(ctx, "Bearer "+tampered); err != ErrInvalidToken {
		t.Fatalf("篡改令牌应返回 ErrInvalidToken, got %v", err)
	}

	// 换密钥后旧令牌失效。
	other, err := NewService(Config{Mode: ModeToken, Secret: "other-secret"})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if _, err := other.AuthenticateRequest(ctx, "Bearer "+pair.AccessToken); err != ErrInvalidToken {
		t.Fatalf("跨密钥令牌应返回 ErrInvalidToken, got %v", err)
	}
}

func TestIssueTokenRejectsRevokedSubject(t *testing.T) {
	svc := newTokenService(t)
	if _, err := svc.IssueToken(context.Background(), &Subject{ParticipantID: "p1", Disabled: true}); err != ErrSubjectRevoked {
		t.Fatalf("停用主体应返回 ErrSubjectRevoked, got %v", err)
	}
}

func TestServiceDisabledMode(t *testing.T) {
	svc, err := NewService(Config{Mode: ModeDisabled})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if svc.Mode() != ModeDisabled {
		t.Fatalf("Mode = %s, want disabled", svc.Mode())
	}
	if _, err := svc.IssueToken(context.Background(), &Subject{ParticipantID: "p1"}); err != ErrDisabled {
		t.Fatalf("禁用模式签发应返回 ErrDisabled, got %v", err)
	}
	if _, err := svc.AuthenticateRequest(context.Background(), "Bearer x"); err != ErrDisabled {
		t.Fatalf("禁用模式校验应返回 ErrDisabled, got %v", err)
	}
}

func TestNewServiceValidation(t *testing.T) {
	if _, err := NewService(Config{Mode: ModeToken, Secret: "  "}); err == nil {
		t.Fatal("空密钥应被拒绝")
	}
	if _, err := NewService(Config{Mode: "oauth"}); err == nil {
		t.Fatal("未知模式应被拒绝")
	}
}

func TestMiddleware(t *testing.T) {
	svc := newTokenService(t)
	ctx := context.Background()

	pair, err := svc.IssueToken(ctx, &Subject{ParticipantID: "p1"})
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	var seen *Subject
	handler := svc.Middleware(MiddlewareConfig{AuditEvent: "test"})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = SubjectFromContext(r.Context())
			w.WriteHeader(http.StatusNoContent)
		}),
	)

	// 带合法令牌的请求注入主体。
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if seen == nil || seen.ParticipantID != "p1" {
		t.Fatalf("上下文主体 = %+v, want p1", seen)
	}

	// 缺令牌的强制认证请求被拒。
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestMiddlewareOptionalAllowsAnonymous(t *testing.T) {
	svc := newTokenService(t)

	var seen *Subject
	handler := svc.Middleware(MiddlewareConfig{Optional: true})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = SubjectFromContext(r.Context())
		}),
	)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/state", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if seen != nil {
		t.Fatalf("匿名请求不应注入主体, got %+v", seen)
	}

	// 带了令牌就必须合法。
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/state", nil)
	req.Header.Set("Authorization", "Bearer rubbish")
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
