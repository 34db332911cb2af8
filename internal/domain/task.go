package domain

import (
	"time"
)

// Task is the client-side view of a unit of remote asynchronous work.
type Task struct {
	ID       string     `json:"id"`
	Status   TaskStatus `json:"status"`
	Messages []Message  `json:"messages,omitempty"`
	ParentID string     `json:"parent_id,omitempty"`
}

// Message is a single progress line emitted by the service while a task runs.
type Message struct {
	Text         string `json:"text"`
	Type         string `json:"type,omitempty"`
	CreationTime string `json:"creation_time"`
}

// StatusResponse is the body of a status query.
type StatusResponse struct {
	Status               TaskStatus      `json:"status"`
	Message              string          `json:"message,omitempty"`
	Messages             []StatusMessage `json:"messages,omitempty"`
	ObfuscationMapExists bool            `json:"obfuscationMapExists,omitempty"`
}

// StatusMessage mirrors the nested wire shape of a progress message.
type StatusMessage struct {
	Message struct {
		Text string `json:"text"`
	} `json:"message"`
	MessageType  string `json:"message_type"`
	CreationTime string `json:"creation_time"`
}

// ToMessage flattens the wire shape.
func (m StatusMessage) ToMessage() Message {
	return Message{Text: m.Message.Text, Type: m.MessageType, CreationTime: m.CreationTime}
}

// PollState tracks one task's polling progress. It is never shared across tasks.
type PollState struct {
	Elapsed time.Duration `json:"elapsed"`
	Cursor  string        `json:"cursor,omitempty"`
	Retries int           `json:"retries"`
}
