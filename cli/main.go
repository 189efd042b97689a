// Package main provides a command-line client that chats with a docpilot
// session and executes the requested document tools on a local copy of the
// document.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xiaot623/docpilot/internal/bridge"
	"github.com/xiaot623/docpilot/internal/document"
	"github.com/xiaot623/docpilot/internal/domain"
)

// Client talks to a docpilot server on behalf of one session.
type Client struct {
	baseURL   string
	http      *http.Client
	conn      *websocket.Conn
	sessionID string
	executor  *bridge.Direct
	doc       *document.Memory
	history   []domain.Message
}

// NewClient creates a session seeded with paragraphs, connects to its event
// stream and prepares a local copy of the document.
func NewClient(baseURL string, paragraphs []string) (*Client, error) {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}

	var created domain.CreateSessionResponse
	if err := c.post("/v1/sessions", domain.CreateSessionRequest{Paragraphs: paragraphs}, &created); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	c.sessionID = created.SessionID

	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/v1/sessions/" + c.sessionID + "/events/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	c.conn = conn

	// Identifiers are allocated the same way on both sides, so the local
	// copy lines up with the server's seeded document.
	c.doc = document.NewMemory(document.New(paragraphs...))
	c.executor = bridge.NewDirect(c.doc)
	return c, nil
}

// Close closes the event stream.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) post(path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := c.http.Post(c.baseURL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var errResp domain.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != nil {
			return fmt.Errorf("%s [%d]: %w", path, resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Ask starts a delegated run with input appended to the conversation and
// serves its tool requests until the run ends.
func (c *Client) Ask(ctx context.Context, input string) error {
	messages := append(domain.CloneMessages(c.history), domain.UserMessage(input))
	var started domain.StartRunResponse
	if err := c.post("/v1/sessions/"+c.sessionID+"/runs", domain.StartRunRequest{
		Messages:      messages,
		ToolExecution: domain.ToolExecutionClient,
	}, &started); err != nil {
		return err
	}

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read event: %w", err)
		}
		var ev domain.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Printf("Unmarshal error: %v", err)
			continue
		}
		if ev.RunID != started.RunID {
			if ev.Type == "error" {
				fmt.Printf("\n[server] %s\n", data)
			}
			continue
		}

		switch ev.Type {
		case domain.EventTypeAssistantDelta:
			var p domain.AssistantDeltaPayload
			if json.Unmarshal(ev.Payload, &p) == nil {
				fmt.Print(p.TextDelta)
			}
		case domain.EventTypeToolsRequested:
			var p domain.ToolsRequestedPayload
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				return fmt.Errorf("decode tools.requested: %w", err)
			}
			if err := c.answer(ctx, p); err != nil {
				return err
			}
		case domain.EventTypeRunCompleted:
			var p domain.RunCompletedPayload
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				return fmt.Errorf("decode run.completed: %w", err)
			}
			c.history = p.Messages
			fmt.Printf("\n\nassistant (%d rounds): %s\n", p.Rounds, p.AssistantText)
			return nil
		case domain.EventTypeRunFailed:
			var p domain.RunFailedPayload
			_ = json.Unmarshal(ev.Payload, &p)
			return fmt.Errorf("run failed: %s (%s)", p.Error, p.Code)
		}
	}
}

func (c *Client) answer(ctx context.Context, req domain.ToolsRequestedPayload) error {
	for _, call := range req.ToolCalls {
		fmt.Printf("\n[tool] %s %s\n", call.Name, call.Args)
	}
	observations, err := c.executor.Execute(ctx, req.ToolCalls, bridge.ExecContext{
		SessionID: c.sessionID,
		RunID:     req.RunID,
		Round:     req.Round,
	})
	if err != nil {
		return fmt.Errorf("execute tools: %w", err)
	}
	return c.conn.WriteJSON(map[string]any{
		"type":         "tool_results",
		"run_id":       req.RunID,
		"request_id":   req.RequestID,
		"observations": observations,
	})
}

func main() {
	addr := flag.String("addr", "http://localhost:8080", "docpilot server address")
	seed := flag.String("paragraphs", "", "initial paragraphs, separated by '|'")
	flag.Parse()

	log.SetFlags(log.Ltime)

	var paragraphs []string
	if *seed != "" {
		paragraphs = strings.Split(*seed, "|")
	}

	client, err := NewClient(*addr, paragraphs)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	fmt.Printf("Session established: %s\n", client.sessionID)
	fmt.Println("\nType a message and press Enter to send.")
	fmt.Println("Commands: /doc to print the local document, /quit to exit")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Print("> ")
		var input string
		select {
		case <-ctx.Done():
			fmt.Println("\nInterrupted")
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			input = strings.TrimSpace(line)
		}

		switch input {
		case "":
			continue
		case "/quit":
			fmt.Println("Bye!")
			return
		case "/doc":
			formatted, _ := json.MarshalIndent(client.doc.Document(), "", "  ")
			fmt.Println(string(formatted))
			continue
		}

		if err := client.Ask(ctx, input); err != nil {
			log.Printf("Error: %v", err)
		}
	}
}
