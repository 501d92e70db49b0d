package ws

import (
	"time"

	"collabEngine/backend/internal/cache"
	"collabEngine/backend/internal/collab"
	"collabEngine/backend/internal/ot/delta"
)

// Command is the closed set of client requests; the read loop
// dispatches through a handler table keyed by it.
type Command string

const (
	CmdJoinProject     Command = "join-project"
	CmdLeaveProject    Command = "leave-project"
	CmdOpenFile        Command = "open-file"
	CmdCloseFile       Command = "close-file"
	CmdOperation       Command = "operation"
	CmdCursorMove      Command = "cursor-move"
	CmdSelectionChange Command = "selection-change"
	CmdOpsSince        Command = "ops-since"
	CmdSaveFile        Command = "save-file"
	CmdHeartbeat       Command = "heartbeat"
)

type ClientMessage struct {
	Cmd          Command                `json:"cmd"`
	ProjectID    string                 `json:"projectId,omitempty"`
	FileID       string                 `json:"fileId,omitempty"`
	ClientID     string                 `json:"clientId,omitempty"`
	ClientSeq    uint64                 `json:"clientSeq,omitempty"`
	BaseRevision uint64                 `json:"baseRevision,omitempty"`
	Ops          delta.Delta            `json:"ops,omitempty"`
	Line         int                    `json:"line,omitempty"`
	Column       int                    `json:"column,omitempty"`
	Selection    *collab.SelectionRange `json:"selection,omitempty"`
	FromRevision uint64                 `json:"fromRevision,omitempty"`
	Limit        int                    `json:"limit,omitempty"`
}

// OutboundMessage is anything the write loop can send.
type OutboundMessage interface {
	MessageType() string
}

// ServerMessage covers simple feedback and room lifecycle events.
type ServerMessage struct {
	Type      string                 `json:"type"`
	ProjectID string                 `json:"projectId,omitempty"`
	FileID    string                 `json:"fileId,omitempty"`
	UserID    uint64                 `json:"userId,omitempty"`
	Username  string                 `json:"username,omitempty"`
	Members   []cache.PresenceMember `json:"members,omitempty"`
	Content   string                 `json:"content,omitempty"`
}

type ErrorMessage struct {
	Type      string `json:"type"` // "error"
	Code      string `json:"code"`
	Message   string `json:"message,omitempty"`
	ProjectID string `json:"projectId,omitempty"`
	FileID    string `json:"fileId,omitempty"`
}

// FileOpenedMessage is the open-file reply: the authoritative content,
// its version, and who else is in the file.
type FileOpenedMessage struct {
	Type        string                         `json:"type"` // "file-opened"
	ProjectID   string                         `json:"projectId"`
	FileID      string                         `json:"fileId"`
	Content     string                         `json:"content"`
	Version     uint64                         `json:"version"`
	ActiveUsers map[uint64]collab.UserPresence `json:"activeUsers"`
}

// OpAckMessage acknowledges the sender's own operation.
type OpAckMessage struct {
	Type      string `json:"type"` // "operation-acknowledged"
	ProjectID string `json:"projectId"`
	FileID    string `json:"fileId"`
	Revision  uint64 `json:"revision"`
	ClientID  string `json:"clientId,omitempty"`
	ClientSeq uint64 `json:"clientSeq,omitempty"`
}

// OpBroadcastMessage pushes an applied operation to the other room
// members (including the same user's other tabs).
type OpBroadcastMessage struct {
	Type      string      `json:"type"` // "operation-applied"
	ProjectID string      `json:"projectId"`
	FileID    string      `json:"fileId"`
	Revision  uint64      `json:"revision"`
	UserID    uint64      `json:"userId"`
	ClientID  string      `json:"clientId,omitempty"`
	ClientSeq uint64      `json:"clientSeq,omitempty"`
	Ops       delta.Delta `json:"ops"`
	AppliedAt time.Time   `json:"appliedAt,omitempty"`
}

// ConflictMessage tells the submitter its operation overlapped others
// irreconcilably; it must merge by hand and resubmit.
type ConflictMessage struct {
	Type       string                 `json:"type"` // "conflict-detected"
	ProjectID  string                 `json:"projectId"`
	FileID     string                 `json:"fileId"`
	Strategy   string                 `json:"resolutionStrategy"`
	Conflicted []collab.TextOperation `json:"conflictedOperations"`
}

type CursorMessage struct {
	Type      string        `json:"type"` // "cursor-moved"
	ProjectID string        `json:"projectId"`
	FileID    string        `json:"fileId"`
	UserID    uint64        `json:"userId"`
	Cursor    collab.Cursor `json:"cursor"`
}

type SelectionMessage struct {
	Type      string                `json:"type"` // "selection-changed"
	ProjectID string                `json:"projectId"`
	FileID    string                `json:"fileId"`
	UserID    uint64                `json:"userId"`
	Selection collab.SelectionRange `json:"selection"`
}

// OpsSinceMessage carries the catch-up tail. EarliestRevision is the
// oldest revision still held server-side; when fromRevision+1 is below
// it the history was pruned and the client must re-open the file.
type OpsSinceMessage struct {
	Type             string             `json:"type"` // "ops-since"
	ProjectID        string             `json:"projectId"`
	FileID           string             `json:"fileId"`
	Ops              []collab.AppliedOp `json:"ops"`
	EarliestRevision uint64             `json:"earliestRevision,omitempty"`
}

func (m ServerMessage) MessageType() string      { return m.Type }
func (m ErrorMessage) MessageType() string       { return m.Type }
func (m FileOpenedMessage) MessageType() string  { return m.Type }
func (m OpAckMessage) MessageType() string       { return m.Type }
func (m OpBroadcastMessage) MessageType() string { return m.Type }
func (m ConflictMessage) MessageType() string    { return m.Type }
func (m CursorMessage) MessageType() string      { return m.Type }
func (m SelectionMessage) MessageType() string   { return m.Type }
func (m OpsSinceMessage) MessageType() string    { return m.Type }
