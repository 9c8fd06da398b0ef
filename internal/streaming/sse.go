package streaming

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

// Chunk is one piece of generated content. WriteSSE below renders it into
// the SSE wire format; the WebSocket path publishes WSFrame values instead.
type Chunk struct {
	RequestID    string
	Index        int
	Model        string
	Content      string
	FinishReason string
}

// Usage is the terminal token accounting emitted once a stream completes,
// mirroring OpenAI's usage object.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Producer yields a finite, single-consumer sequence of content chunks for
// one request and a final usage total. The actual chat-completion content
// generation is a pluggable collaborator the gateway does not implement;
// Producer is the seam a concrete inference client plugs into.
type Producer func(ctx context.Context, requestID, model string) (<-chan Chunk, func() Usage, error)

// sseChunk mirrors the OpenAI streaming chunk object shape.
type sseChunk struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Model   string       `json:"model"`
	Choices []sseChoice  `json:"choices"`
	Usage   *sseUsage    `json:"usage,omitempty"`
}

type sseChoice struct {
	Index        int     `json:"index"`
	Delta        sseDelta `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

type sseDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

type sseUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// HeartbeatInterval bounds how often a ": heartbeat" comment may be sent
// while waiting on the producer, so intermediaries don't idle-timeout the
// connection on a slow first token.
const HeartbeatInterval = 15 * time.Second

// SSEDone is the terminal sentinel of an OpenAI-compatible stream.
const SSEDone = "[DONE]"

// WriteSSE drains producer's chunks to w as an OpenAI-compatible
// chat-completion stream: an initial chunk with delta.role="assistant", one
// chunk per content piece, a terminal chunk with finish_reason, an optional
// usage event, and a final "data: [DONE]". It stops early, without a
// finish_reason chunk, if requestID is marked in cancelled before the next
// chunk send -- cancellation is best-effort, so a chunk already in flight
// may still arrive.
func WriteSSE(ctx context.Context, w http.ResponseWriter, requestID, model string, produce Producer, cancelled *CancelSet) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("response writer does not support flushing")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprintf(w, "event: routing\ndata: %s\n\n", mustJSON(map[string]string{"model": model, "request_id": requestID}))
	flusher.Flush()

	chunks, usageFn, err := produce(ctx, requestID, model)
	if err != nil {
		fmt.Fprintf(w, "event: error\ndata: %s\n\n", mustJSON(map[string]string{"error": err.Error()}))
		flusher.Flush()
		return err
	}

	wroteRole := false
	lastHeartbeat := time.Now()
	cancelledMidStream := false

loop:
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c, ok := <-chunks:
			if !ok {
				break loop
			}
			if cancelled != nil && cancelled.Cancelled(requestID) {
				cancelledMidStream = true
				break loop
			}
			if !wroteRole {
				writeSSEChunk(w, flusher, model, sseDelta{Role: "assistant"}, nil)
				wroteRole = true
			}
			writeSSEChunk(w, flusher, model, sseDelta{Content: c.Content}, nil)
		case <-time.After(HeartbeatInterval):
			if time.Since(lastHeartbeat) >= HeartbeatInterval {
				fmt.Fprint(w, ": heartbeat\n\n")
				flusher.Flush()
				lastHeartbeat = time.Now()
			}
		}
	}

	if cancelledMidStream {
		if cancelled != nil {
			cancelled.Clear(requestID)
		}
		fmt.Fprintf(w, "event: cancelled\ndata: %s\n\n", mustJSON(map[string]string{"request_id": requestID}))
		flusher.Flush()
		return nil
	}

	stop := "stop"
	writeSSEChunk(w, flusher, model, sseDelta{}, &stop)

	if usageFn != nil {
		u := usageFn()
		fmt.Fprintf(w, "event: usage\ndata: %s\n\n", mustJSON(sseUsage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}))
		flusher.Flush()
	}

	fmt.Fprintf(w, "data: %s\n\n", SSEDone)
	flusher.Flush()
	return nil
}

func writeSSEChunk(w http.ResponseWriter, flusher http.Flusher, model string, delta sseDelta, finishReason *string) {
	payload := sseChunk{
		Object:  "chat.completion.chunk",
		Model:   model,
		Choices: []sseChoice{{Delta: delta, FinishReason: finishReason}},
	}
	fmt.Fprintf(w, "data: %s\n\n", mustJSON(payload))
	flusher.Flush()
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
