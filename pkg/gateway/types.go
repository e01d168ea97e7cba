package gateway

import (
	"time"

	"github.com/prasetya/wisma/pkg/session"
)

type loginRequest struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	Model        string `json:"model_name"`
	APIKey       string `json:"api_key"`
	BaseURL      string `json:"base_url,omitempty"`
	SystemPrompt string `json:"system_prompt"`
}

type loginResponse struct {
	Message  string `json:"message"`
	Username string `json:"username"`
}

type chatRequest struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

type chatResponse struct {
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

type logoutRequest struct {
	Username string `json:"username"`
}

type statusResponse struct {
	Message string `json:"message"`
}

type activeUsersResponse struct {
	ActiveUsers []session.ActiveUser `json:"active_users"`
	Count       int                  `json:"count"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// EventMessage is one frame on the /events stream.
type EventMessage struct {
	Type      string      `json:"type"`
	Event     string      `json:"event"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
	Seq       int64       `json:"seq"`
}
