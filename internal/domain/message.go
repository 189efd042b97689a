package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Message is a single conversation entry. The fields that apply depend on Role:
// user messages carry Content, assistant messages carry Content and optionally
// ToolCalls, tool messages carry Content, ToolCallID and Name.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall is a tool invocation emitted by the model.
type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// Observation is the outcome of executing one tool call.
type Observation struct {
	ToolCallID string          `json:"tool_call_id"`
	Name       string          `json:"name"`
	Result     json.RawMessage `json:"result"`
}

// UserMessage builds a user message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// AssistantMessage builds an assistant message. ToolCalls is left nil when calls is empty.
func AssistantMessage(text string, calls []ToolCall) Message {
	msg := Message{Role: RoleAssistant, Content: text}
	if len(calls) > 0 {
		msg.ToolCalls = CloneToolCalls(calls)
	}
	return msg
}

// ToolMessage builds the tool message answering an observation.
func ToolMessage(obs Observation) Message {
	content := string(obs.Result)
	if content == "" {
		content = "null"
	}
	return Message{
		Role:       RoleTool,
		Content:    content,
		ToolCallID: obs.ToolCallID,
		Name:       obs.Name,
	}
}

// ErrorResult encodes a failed tool execution as an observation result.
func ErrorResult(message string) json.RawMessage {
	data, _ := json.Marshal(struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}{OK: false, Error: message})
	return data
}

// ErrorObservation builds a failed observation for call.
func ErrorObservation(call ToolCall, message string) Observation {
	return Observation{ToolCallID: call.ID, Name: call.Name, Result: ErrorResult(message)}
}

// CloneMessages returns a deep copy of msgs.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, msg := range msgs {
		out[i] = msg
		out[i].ToolCalls = CloneToolCalls(msg.ToolCalls)
	}
	return out
}

// CloneToolCalls returns a deep copy of calls.
func CloneToolCalls(calls []ToolCall) []ToolCall {
	if calls == nil {
		return nil
	}
	out := make([]ToolCall, len(calls))
	for i, call := range calls {
		out[i] = call
		if call.Args != nil {
			out[i].Args = append(json.RawMessage(nil), call.Args...)
		}
	}
	return out
}

// ValidateMessages checks the shape of an initial message list. Every violation
// is reported in the returned error's details.
func ValidateMessages(msgs []Message) error {
	if len(msgs) == 0 {
		return InvalidInput(CodeInvalidMessages, "messages must not be empty")
	}

	var problems []string
	var answerable map[string]bool
	seen := make(map[string]bool)
	for i, msg := range msgs {
		field := fmt.Sprintf("messages[%d]", i)
		switch msg.Role {
		case RoleUser:
			answerable = nil
			if strings.TrimSpace(msg.Content) == "" {
				problems = append(problems, field+".content: user text must not be empty")
			}
		case RoleAssistant:
			answerable = make(map[string]bool, len(msg.ToolCalls))
			for j, call := range msg.ToolCalls {
				callField := fmt.Sprintf("%s.tool_calls[%d]", field, j)
				switch {
				case call.ID == "":
					problems = append(problems, callField+".id: required")
				case seen[call.ID]:
					problems = append(problems, fmt.Sprintf("%s.id: duplicate tool call id %q", callField, call.ID))
				default:
					seen[call.ID] = true
					answerable[call.ID] = true
				}
				if call.Name == "" {
					problems = append(problems, callField+".name: required")
				}
			}
		case RoleTool:
			if msg.ToolCallID == "" {
				problems = append(problems, field+".tool_call_id: required")
				continue
			}
			if !answerable[msg.ToolCallID] {
				problems = append(problems, fmt.Sprintf("%s.tool_call_id: %q does not answer a call of the preceding assistant message", field, msg.ToolCallID))
				continue
			}
			delete(answerable, msg.ToolCallID)
			if msg.Name == "" {
				problems = append(problems, field+".name: required")
			}
		default:
			problems = append(problems, fmt.Sprintf("%s.role: unknown role %q", field, msg.Role))
		}
	}

	if len(problems) > 0 {
		return InvalidInput(CodeInvalidMessages, "messages failed validation", problems...)
	}
	return nil
}
