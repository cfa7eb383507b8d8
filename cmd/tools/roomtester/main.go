package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
)

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] no .env loaded, using process environment: %v", err)
	}

	defaultServer := "http://localhost:8080"
	if port := os.Getenv("PORT"); port != "" && !strings.Contains(port, ":") {
		defaultServer = "http://localhost:" + port
	}

	server := flag.String("server", defaultServer, "interviewer base URL")
	mode := flag.String("mode", "technical", "interview mode sent in INIT: technical or behavioral")
	transport := flag.String("transport", "web", "caller transport: web or sip")
	code := flag.String("code", "", "code sent as CODE_UPDATE (prefix with @ to read a file)")
	say := flag.String("say", "", "caller transcript sent after INIT and CODE_UPDATE")
	playback := flag.Duration("playback", 500*time.Millisecond, "simulated playback time per utterance")
	wait := flag.Duration("wait", 20*time.Second, "how long to keep printing server frames")

	flag.Parse()

	sessionID, err := createSession(*server)
	if err != nil {
		log.Fatalf("create session failed: %v", err)
	}
	log.Printf("session created: %s", sessionID)

	wsURL, err := roomURL(*server, sessionID, *transport)
	if err != nil {
		log.Fatalf("invalid server URL: %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		log.Fatalf("dial %s failed: %v", wsURL, err)
	}
	defer conn.Close()

	send := func(v any) {
		if err := conn.WriteJSON(v); err != nil {
			log.Fatalf("send failed: %v", err)
		}
	}

	send(map[string]any{"type": "data", "payload": map[string]string{"topic": "INIT", "mode": *mode}})

	if *code != "" {
		text := *code
		if strings.HasPrefix(text, "@") {
			data, err := os.ReadFile(strings.TrimPrefix(text, "@"))
			if err != nil {
				log.Fatalf("read code file failed: %v", err)
			}
			text = string(data)
		}
		send(map[string]any{"type": "data", "payload": map[string]string{"topic": "CODE_UPDATE", "code": text}})
	}

	if *say != "" {
		send(map[string]any{"type": "transcript", "text": *say})
	}

	deadline := time.Now().Add(*wait)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(deadline)
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			log.Printf("connection ended: %v", err)
			return
		}
		log.Printf("<- %s %s", f.Type, string(f.Data))

		if f.Type == "say" {
			var utterance struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(f.Data, &utterance); err == nil {
				time.Sleep(*playback)
				send(map[string]any{"type": "playback_done", "id": utterance.ID})
			}
		}
	}
}

func createSession(server string) (string, error) {
	resp, err := http.Post(strings.TrimRight(server, "/")+"/api/session", "application/json", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var session struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return "", err
	}
	return session.ID, nil
}

func roomURL(server, sessionID, transport string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/interview/ws/" + sessionID
	u.RawQuery = url.Values{"transport": {transport}}.Encode()
	return u.String(), nil
}
