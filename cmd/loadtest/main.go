// Command loadtest drives the server with pairs of users exchanging
// messages over the websocket protocol.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	baseURL   = flag.String("base", "http://localhost:8080", "server base URL")
	wsURL     = flag.String("ws", "ws://localhost:8080/ws", "websocket URL")
	pairCount = flag.Int("pairs", 50, "number of user pairs")
	msgCount  = flag.Int("messages", 20, "messages per user")
)

type authResponse struct {
	Token    string `json:"access_token"`
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type conversationResponse struct {
	ConversationID int64 `json:"conversation_id"`
}

func main() {
	flag.Parse()
	log.Printf("starting load test: %d users, %d messages each", *pairCount*2, *msgCount)

	var wg sync.WaitGroup
	for i := 0; i < *pairCount; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}
	wg.Wait()
	log.Println("load test complete")
}

func runPair(pairID int) {
	userA := fmt.Sprintf("u_%d_a", pairID)
	userB := fmt.Sprintf("u_%d_b", pairID)
	pass := "password123"

	authA := authenticate(userA, pass)
	authB := authenticate(userB, pass)
	if authA == nil || authB == nil {
		return
	}

	convID := createConversation(authA.Token, authB.ID)
	if convID == 0 {
		return
	}

	var wsWg sync.WaitGroup
	wsWg.Add(2)
	go spamChat(&wsWg, authA.Token, convID, userA)
	go spamChat(&wsWg, authB.Token, convID, userB)
	wsWg.Wait()
}

func authenticate(username, password string) *authResponse {
	// Register may fail if the user already exists; login decides.
	postJSON("/register", map[string]string{"username": username, "password": password})

	resp, err := postJSON("/login", map[string]string{"username": username, "password": password})
	if err != nil {
		log.Printf("login failed [%s]: %v", username, err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Printf("login rejected [%s]: %s", username, resp.Status)
		return nil
	}

	var data authResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil
	}
	return &data
}

func createConversation(token string, targetID int64) int64 {
	body, _ := json.Marshal(map[string]int64{"target_id": targetID})
	req, _ := http.NewRequest(http.MethodPost, *baseURL+"/api/conversations", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Printf("create conversation failed: %v", err)
		return 0
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Printf("create conversation rejected: %s", resp.Status)
		return 0
	}

	var data conversationResponse
	json.NewDecoder(resp.Body).Decode(&data)
	return data.ConversationID
}

func spamChat(wg *sync.WaitGroup, token string, convID int64, username string) {
	defer wg.Done()

	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("%s?token=%s", *wsURL, token), nil)
	if err != nil {
		log.Printf("ws connect failed [%s]: %v", username, err)
		return
	}
	defer conn.Close()

	// Drain server frames so the outbound buffer never backs up.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for i := 0; i < *msgCount; i++ {
		env := map[string]interface{}{
			"type":            "new_message",
			"conversation_id": convID,
			"content":         fmt.Sprintf("load test message %d from %s", i, username),
		}
		if err := conn.WriteJSON(env); err != nil {
			log.Printf("send failed [%s]: %v", username, err)
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func postJSON(endpoint string, data interface{}) (*http.Response, error) {
	payload, _ := json.Marshal(data)
	return http.Post(*baseURL+endpoint, "application/json", bytes.NewReader(payload))
}
