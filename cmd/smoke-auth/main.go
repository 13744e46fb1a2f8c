package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"
)

type loginResponse struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
}

type sessionResponse struct {
	SessionID        string `json:"session_id"`
	RemainingSeconds int    `json:"remaining_seconds"`
}

func main() {
	base := os.Getenv("SPORTAI_URL")
	if base == "" {
		base = "http://localhost:8501"
	}
	email := os.Getenv("SPORTAI_SMOKE_EMAIL")
	password := os.Getenv("SPORTAI_SMOKE_PASSWORD")
	if email == "" || password == "" {
		log.Fatal("SPORTAI_SMOKE_EMAIL and SPORTAI_SMOKE_PASSWORD are required")
	}

	client := &http.Client{Timeout: 5 * time.Second}

	var login loginResponse
	status := call(client, http.MethodPost, base+"/v1/auth/login", "", map[string]string{"email": email, "password": password}, &login)
	if status != http.StatusOK || login.Token == "" {
		log.Fatalf("login: unexpected status %d", status)
	}

	var sess sessionResponse
	status = call(client, http.MethodGet, base+"/v1/session", login.Token, nil, &sess)
	if status != http.StatusOK {
		log.Fatalf("session: unexpected status %d", status)
	}
	if sess.SessionID != login.SessionID || sess.RemainingSeconds <= 0 {
		log.Fatalf("session mismatch: login=%s session=%s remaining=%d", login.SessionID, sess.SessionID, sess.RemainingSeconds)
	}

	if status = call(client, http.MethodPost, base+"/v1/auth/logout", login.Token, nil, nil); status != http.StatusNoContent {
		log.Fatalf("logout: unexpected status %d", status)
	}
	if status = call(client, http.MethodGet, base+"/v1/session", login.Token, nil, nil); status != http.StatusUnauthorized {
		log.Fatalf("session after logout: expected 401, got %d", status)
	}

	fmt.Printf("✅ auth smoke test passed: session=%s role=%s\n", login.SessionID, login.Role)
}

func call(client *http.Client, method, url, token string, body, out any) int {
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			log.Fatalf("encode %s: %v", url, err)
		}
	}
	req, err := http.NewRequest(method, url, &payload)
	if err != nil {
		log.Fatalf("request %s: %v", url, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			log.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}
