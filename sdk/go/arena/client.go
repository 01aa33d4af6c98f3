package arena

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the arena REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu          sync.RWMutex
	accessToken string
}

// Registration is the payload required to register a participant.
type Registration struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	Kind string `json:"kind,omitempty"`
}

// Token represents an issued access token.
type Token struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// Participant mirrors the server-side profile.
type Participant struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Kind            string `json:"kind"`
	Rating          int    `json:"rating"`
	GamesPlayed     int    `json:"games_played"`
	GamesWon        int    `json:"games_won"`
	TraitorWins     int    `json:"traitor_wins"`
	InnocentWins    int    `json:"innocent_wins"`
	CurrentStreak   int    `json:"current_streak"`
	BestStreak      int    `json:"best_streak"`
	UnclaimedPoints int    `json:"unclaimed_points"`
}

// RegisterResult carries the new profile plus its access token.
type RegisterResult struct {
	Participant *Participant `json:"participant"`
	Token       *Token       `json:"token,omitempty"`
}

// SlotView is the sanitized view of a seat. Role is present only when the
// server decided the caller may see it.
type SlotView struct {
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name"`
	Status        string `json:"status"`
	DeathRound    int    `json:"death_round,omitempty"`
	Role          string `json:"role,omitempty"`
}

// MatchView is the sanitized view of a match.
type MatchView struct {
	ID             string     `json:"id"`
	Status         string     `json:"status"`
	Round          int        `json:"round"`
	Phase          string     `json:"phase"`
	PhaseDeadline  int64      `json:"phase_deadline,omitempty"`
	Winner         string     `json:"winner,omitempty"`
	Slots          []SlotView `json:"slots"`
	YourRole       string     `json:"your_role,omitempty"`
	SpectatorCount int64      `json:"spectator_count"`
}

// Prediction is a spectator bet on the traitor roster.
type Prediction struct {
	ID       string   `json:"id"`
	MatchID  string   `json:"match_id"`
	Suspects []string `json:"suspects"`
	Scored   bool     `json:"scored"`
	Correct  bool     `json:"correct"`
	Award    int64    `json:"award"`
}

// Claim records a points withdrawal.
type Claim struct {
	ID     string `json:"id"`
	Wallet string `json:"wallet"`
	Points int64  `json:"points"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("arena api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("arena api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the arena API. When httpClient is nil,
// a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) *Client {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		panic(fmt.Sprintf("invalid base url: %v", err))
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}
}

// Register creates a participant profile and stores the returned access token
// for subsequent calls.
func (c *Client) Register(ctx context.Context, reg Registration) (RegisterResult, error) {
	var result RegisterResult
	if err := c.post(ctx, "/api/v1/participants", reg, &result, false); err != nil {
		return RegisterResult{}, err
	}
	if result.Token != nil {
		c.mu.Lock()
		c.accessToken = result.Token.AccessToken
		c.mu.Unlock()
	}
	return result, nil
}

// JoinQueue enters the matchmaking queue.
func (c *Client) JoinQueue(ctx context.Context) error {
	return c.post(ctx, "/api/v1/queue", struct{}{}, nil, true)
}

// LeaveQueue abandons the matchmaking queue.
func (c *Client) LeaveQueue(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/api/v1/queue", nil, true)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// MatchState fetches the sanitized state of a match. The view is scoped to
// the stored token; an unauthenticated client sees the spectator projection.
func (c *Client) MatchState(ctx context.Context, matchID string) (MatchView, error) {
	var view MatchView
	endpoint := "/api/v1/matches/" + url.PathEscape(matchID)
	if err := c.get(ctx, endpoint, &view, c.AccessToken() != ""); err != nil {
		return MatchView{}, err
	}
	return view, nil
}

// SubmitMurder nominates a murder target during the murder phase.
func (c *Client) SubmitMurder(ctx context.Context, matchID, targetID string) error {
	endpoint := "/api/v1/matches/" + url.PathEscape(matchID) + "/murder"
	return c.post(ctx, endpoint, map[string]string{"target_id": targetID}, nil, true)
}

// SubmitVote casts a banishment vote during the voting phase.
func (c *Client) SubmitVote(ctx context.Context, matchID, targetID, rationale string) error {
	endpoint := "/api/v1/matches/" + url.PathEscape(matchID) + "/vote"
	payload := map[string]string{"target_id": targetID, "rationale": rationale}
	return c.post(ctx, endpoint, payload, nil, true)
}

// SubmitChat posts a chat message to the current phase channel.
func (c *Client) SubmitChat(ctx context.Context, matchID, text string) error {
	endpoint := "/api/v1/matches/" + url.PathEscape(matchID) + "/chat"
	return c.post(ctx, endpoint, map[string]string{"text": text}, nil, true)
}

// Predict places a spectator bet on the full traitor roster.
func (c *Client) Predict(ctx context.Context, matchID string, suspects []string) (Prediction, error) {
	var prediction Prediction
	endpoint := "/api/v1/matches/" + url.PathEscape(matchID) + "/predictions"
	if err := c.post(ctx, endpoint, map[string][]string{"suspects": suspects}, &prediction, true); err != nil {
		return Prediction{}, err
	}
	return prediction, nil
}

// ClaimPoints withdraws all unclaimed points to the given wallet address.
func (c *Client) ClaimPoints(ctx context.Context, wallet string) (Claim, error) {
	var claim Claim
	if err := c.post(ctx, "/api/v1/claims", map[string]string{"wallet": wallet}, &claim, true); err != nil {
		return Claim{}, err
	}
	return claim, nil
}

// Leaderboard fetches the top rated participants.
func (c *Client) Leaderboard(ctx context.Context, limit int) ([]Participant, error) {
	endpoint := "/api/v1/leaderboard"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var entries []Participant
	if err := c.get(ctx, endpoint, &entries, false); err != nil {
		return nil, err
	}
	return entries, nil
}

// AccessToken returns the currently stored token string.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// SetAccessToken overrides the stored access token.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any, withAuth bool) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body), withAuth)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any, withAuth bool) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil, withAuth)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader, withAuth bool) (*http.Request, error) {
	parts := endpoint
	query := ""
	if idx := bytes.IndexByte([]byte(endpoint), '?'); idx >= 0 {
		parts, query = endpoint[:idx], endpoint[idx+1:]
	}
	rel := &url.URL{Path: path.Join(c.baseURL.Path, parts), RawQuery: query}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if withAuth {
		token := c.AccessToken()
		if token == "" {
			return nil, errors.New("arena: access token is not set")
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr APIError
		apiErr.StatusCode = resp.StatusCode
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
