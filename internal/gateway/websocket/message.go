// Package websocket streams agent events to websocket clients.
package websocket

import "cairn/internal/gateway/handlers"

// ClientMessage is the single request a client sends after connecting.
type ClientMessage struct {
	Type     string                    `json:"type"`
	Generate *handlers.GenerateRequest `json:"generate,omitempty"`
	Resume   *handlers.ResumeRequest   `json:"resume,omitempty"`
}

// ErrorMessage is sent when the request cannot be started.
type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Message types.
const (
	TypeGenerate = "generate"
	TypeResume   = "resume"
	TypeError    = "error"
)
