package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"Traitors-Arena/sdk/go/arena"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/participants", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(arena.RegisterResult{
			Participant: &arena.Participant{ID: "agent-demo", Name: "Demo", Rating: 1200},
			Token:       &arena.Token{AccessToken: "demo-token", TokenType: "Bearer"},
		})
	})
	mux.HandleFunc("/api/v1/queue", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "queued"})
	})
	mux.HandleFunc("/api/v1/matches/match-demo", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(arena.MatchView{
			ID:     "match-demo",
			Status: "active",
			Round:  1,
			Phase:  "discussion",
			Slots: []arena.SlotView{
				{ParticipantID: "agent-demo", Name: "Demo", Status: "alive"},
				{ParticipantID: "agent-two", Name: "Rival", Status: "alive"},
			},
			YourRole: "innocent",
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := arena.NewClient(srv.URL, srv.Client())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := client.Register(ctx, arena.Registration{Name: "Demo"})
	if err != nil {
		panic(err)
	}
	fmt.Printf("registered as %s\n", result.Participant.ID)

	if err := client.JoinQueue(ctx); err != nil {
		panic(err)
	}
	fmt.Println("joined the matchmaking queue")

	view, err := client.MatchState(ctx, "match-demo")
	if err != nil {
		panic(err)
	}
	fmt.Printf("match %s round %d phase %s, playing as %s\n", view.ID, view.Round, view.Phase, view.YourRole)
}
