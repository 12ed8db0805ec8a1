// Command seed populates a running messenger instance with fake users,
// conversations and messages through the public REST API.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

var baseURL = envOr("SEED_BASE_URL", "http://localhost:8080")

type account struct {
	ID       int
	Username string
	Email    string
	Password string
	Token    string
}

func main() {
	gofakeit.Seed(time.Now().UnixNano())

	userCount := 8
	accounts := make([]*account, 0, userCount)
	for i := 0; i < userCount; i++ {
		acc := &account{
			Username: gofakeit.Username(),
			Email:    gofakeit.Email(),
			Password: "password123",
		}
		if err := register(acc); err != nil {
			log.Fatalf("register %s: %v", acc.Email, err)
		}
		accounts = append(accounts, acc)
		log.Printf("registered user id=%d username=%s", acc.ID, acc.Username)
	}

	// Direct chats between consecutive pairs, with a short exchange in each.
	for i := 0; i+1 < len(accounts); i += 2 {
		a, b := accounts[i], accounts[i+1]
		chatID, err := startChat(a, b.ID)
		if err != nil {
			log.Fatalf("start chat: %v", err)
		}
		for j := 0; j < 5; j++ {
			sender := a
			if j%2 == 1 {
				sender = b
			}
			if err := sendMessage(sender, chatID, gofakeit.Sentence(8)); err != nil {
				log.Fatalf("send message: %v", err)
			}
		}
		log.Printf("seeded direct chat id=%d between %s and %s", chatID, a.Username, b.Username)
	}

	// One group chat with the first few users.
	if len(accounts) >= 3 {
		admin := accounts[0]
		members := []int{accounts[1].ID, accounts[2].ID}
		chatID, err := createGroup(admin, gofakeit.HipsterWord()+" crew", members)
		if err != nil {
			log.Fatalf("create group: %v", err)
		}
		for j := 0; j < 3; j++ {
			if err := sendMessage(accounts[j], chatID, gofakeit.Quote()); err != nil {
				log.Fatalf("send group message: %v", err)
			}
		}
		log.Printf("seeded group chat id=%d", chatID)
	}

	log.Println("seeding complete")
}

func register(acc *account) error {
	payload := map[string]string{
		"username": acc.Username,
		"email":    acc.Email,
		"password": acc.Password,
	}
	var resp struct {
		AccessToken string `json:"access_token"`
		User        struct {
			ID int `json:"id"`
		} `json:"user"`
	}
	if err := post("/auth/register", "", payload, &resp); err != nil {
		return err
	}
	acc.ID = resp.User.ID
	acc.Token = resp.AccessToken
	return nil
}

func startChat(acc *account, participantID int) (int, error) {
	var resp struct {
		Chat struct {
			ID int `json:"id"`
		} `json:"chat"`
	}
	err := post("/chats", acc.Token, map[string]int{"participant_id": participantID}, &resp)
	return resp.Chat.ID, err
}

func createGroup(acc *account, name string, participantIDs []int) (int, error) {
	var resp struct {
		Chat struct {
			ID int `json:"id"`
		} `json:"chat"`
	}
	err := post("/chats/group", acc.Token, map[string]any{
		"name":            name,
		"participant_ids": participantIDs,
	}, &resp)
	return resp.Chat.ID, err
}

func sendMessage(acc *account, chatID int, content string) error {
	return post("/messages", acc.Token, map[string]any{
		"chat_id": chatID,
		"content": content,
	}, nil)
}

func post(path, token string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func envOr(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
