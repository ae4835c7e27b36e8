package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"cairn/internal/agent"
	"cairn/internal/checkpoint"
	"cairn/internal/permission"
	"cairn/internal/provider"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Engine is the part of the agent the HTTP API drives.
type Engine interface {
	Generate(ctx context.Context, req agent.Request) (*agent.Result, error)
	Resume(ctx context.Context, threadID, interruptID string, response json.RawMessage, opts *agent.ResumeOptions) (*agent.Result, error)
	Thread(ctx context.Context, threadID string) (*checkpoint.Checkpoint, error)
	Threads(ctx context.Context) ([]string, error)
	DeleteThread(ctx context.Context, threadID string) error
	PermissionMode() permission.Mode
	SetPermissionMode(mode permission.Mode)
}

// GenerateRequest is the body of a generate call.
type GenerateRequest struct {
	Prompt                 string             `json:"prompt"`
	History                []provider.Message `json:"history,omitempty"`
	ForkFrom               string             `json:"fork_from,omitempty"`
	Model                  string             `json:"model,omitempty"`
	System                 string             `json:"system,omitempty"`
	MaxSteps               int                `json:"max_steps,omitempty"`
	OutputSchema           map[string]any     `json:"output_schema,omitempty"`
	WaitForBackgroundTasks bool               `json:"wait_for_background_tasks,omitempty"`
}

// ToAgent converts the body to an engine request for threadID.
func (g GenerateRequest) ToAgent(threadID string) agent.Request {
	return agent.Request{
		ThreadID:               threadID,
		ForkFrom:               g.ForkFrom,
		Prompt:                 g.Prompt,
		History:                g.History,
		Model:                  g.Model,
		System:                 g.System,
		MaxSteps:               g.MaxSteps,
		OutputSchema:           g.OutputSchema,
		WaitForBackgroundTasks: g.WaitForBackgroundTasks,
	}
}

// ResumeRequest is the body of a resume call. Model, System, MaxSteps and
// OutputSchema replace the settings of the paused call when set.
type ResumeRequest struct {
	InterruptID            string          `json:"interrupt_id"`
	Response               json.RawMessage `json:"response"`
	Model                  string          `json:"model,omitempty"`
	System                 string          `json:"system,omitempty"`
	MaxSteps               int             `json:"max_steps,omitempty"`
	OutputSchema           map[string]any  `json:"output_schema,omitempty"`
	WaitForBackgroundTasks bool            `json:"wait_for_background_tasks,omitempty"`
}

// Options converts the body to engine resume options.
func (r ResumeRequest) Options() *agent.ResumeOptions {
	return &agent.ResumeOptions{
		Model:                  r.Model,
		System:                 r.System,
		MaxSteps:               r.MaxSteps,
		OutputSchema:           r.OutputSchema,
		WaitForBackgroundTasks: r.WaitForBackgroundTasks,
	}
}

// ThreadList is the body of a thread listing.
type ThreadList struct {
	Threads []string `json:"threads"`
}

// ModeBody carries a permission mode.
type ModeBody struct {
	Mode string `json:"mode"`
}

// Threads serves the thread endpoints.
type Threads struct {
	engine Engine
}

// NewThreads creates the thread handlers.
func NewThreads(engine Engine) *Threads {
	return &Threads{engine: engine}
}

// Generate runs a generation on the thread in the path, or on a new
// thread when the path carries none.
func (h *Threads) Generate(w http.ResponseWriter, r *http.Request) {
	var body GenerateRequest
	if !decode(w, r, &body) {
		return
	}
	res, err := h.engine.Generate(r.Context(), body.ToAgent(mux.Vars(r)["id"]))
	if err != nil {
		SendAgentError(w, err)
		return
	}
	SendJSON(w, http.StatusOK, res)
}

// Resume answers the pending interrupt of a thread.
func (h *Threads) Resume(w http.ResponseWriter, r *http.Request) {
	var body ResumeRequest
	if !decode(w, r, &body) {
		return
	}
	if body.InterruptID == "" {
		SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "interrupt_id is required")
		return
	}
	res, err := h.engine.Resume(r.Context(), mux.Vars(r)["id"], body.InterruptID, body.Response, body.Options())
	if err != nil {
		SendAgentError(w, err)
		return
	}
	SendJSON(w, http.StatusOK, res)
}

// Get returns the checkpoint of a thread.
func (h *Threads) Get(w http.ResponseWriter, r *http.Request) {
	cp, err := h.engine.Thread(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		SendAgentError(w, err)
		return
	}
	SendJSON(w, http.StatusOK, cp)
}

// Delete removes a thread.
func (h *Threads) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteThread(r.Context(), mux.Vars(r)["id"]); err != nil {
		SendAgentError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// List returns every persisted thread id.
func (h *Threads) List(w http.ResponseWriter, r *http.Request) {
	ids, err := h.engine.Threads(r.Context())
	if err != nil {
		SendAgentError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	SendJSON(w, http.StatusOK, ThreadList{Threads: ids})
}

// GetMode returns the current permission mode.
func (h *Threads) GetMode(w http.ResponseWriter, r *http.Request) {
	SendJSON(w, http.StatusOK, ModeBody{Mode: string(h.engine.PermissionMode())})
}

// SetMode switches the permission mode.
func (h *Threads) SetMode(w http.ResponseWriter, r *http.Request) {
	var body ModeBody
	if !decode(w, r, &body) {
		return
	}
	mode, err := permission.ParseMode(body.Mode)
	if err != nil {
		SendAgentError(w, err)
		return
	}
	h.engine.SetPermissionMode(mode)
	SendJSON(w, http.StatusOK, ModeBody{Mode: string(mode)})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			SendError(w, http.StatusRequestEntityTooLarge, ErrCodeInvalidRequest, "request body too large")
			return false
		}
		SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
