package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"collabEngine/backend/internal/collab"
	"collabEngine/backend/internal/ot/delta"

	"github.com/gorilla/websocket"
)

const presenceTTL = 600 * time.Second

// Conn is one client connection. The read loop is the only goroutine
// touching projects/files, so they need no lock; outbound messages go
// through the buffered send channel and the write loop.
type Conn struct {
	ws       *websocket.Conn
	hub      *Hub
	userID   uint64
	username string

	registry *collab.Registry
	gate     collab.PermissionGate
	sem      *collab.SemaphoreControl

	// rooms this connection joined, for disconnect cleanup
	projects map[string]struct{}
	files    map[collab.DocKey]struct{}

	// sendMu orders enqueue against closeSend: a broadcast may have
	// snapshotted this conn from a room right before teardown, and a
	// send on a closed channel panics.
	sendMu sync.Mutex
	closed bool
	send   chan OutboundMessage
}

func NewConn(ws *websocket.Conn, hub *Hub, userID uint64, username string,
	registry *collab.Registry, gate collab.PermissionGate, sem *collab.SemaphoreControl) *Conn {
	return &Conn{
		ws:       ws,
		hub:      hub,
		userID:   userID,
		username: username,
		registry: registry,
		gate:     gate,
		sem:      sem,
		projects: make(map[string]struct{}),
		files:    make(map[collab.DocKey]struct{}),
		send:     make(chan OutboundMessage, 32),
	}
}

// enqueue drops the message when the client can't keep up; presence
// and broadcast traffic tolerates loss, and acks are retried by the
// client protocol.
func (c *Conn) enqueue(msg OutboundMessage) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// closeSend shuts the outbound channel, which ends the write loop.
func (c *Conn) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// handlers is the command dispatch table; every entry takes the parsed
// typed payload fields off ClientMessage.
var handlers = map[Command]func(*Conn, context.Context, ClientMessage){
	CmdJoinProject:     (*Conn).handleJoinProject,
	CmdLeaveProject:    (*Conn).handleLeaveProject,
	CmdOpenFile:        (*Conn).handleOpenFile,
	CmdCloseFile:       (*Conn).handleCloseFile,
	CmdOperation:       (*Conn).handleOperation,
	CmdCursorMove:      (*Conn).handleCursorMove,
	CmdSelectionChange: (*Conn).handleSelectionChange,
	CmdOpsSince:        (*Conn).handleOpsSince,
	CmdSaveFile:        (*Conn).handleSaveFile,
	CmdHeartbeat:       (*Conn).handleHeartbeat,
}

func (c *Conn) readLoop(ctx context.Context) {
	defer c.closeSend()
	defer c.cleanup(ctx)
	for {
		var msg ClientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			log.Printf("read json error (user=%d): %v", c.userID, err)
			return
		}
		h, ok := handlers[msg.Cmd]
		if !ok {
			c.enqueue(ErrorMessage{Type: "error", Code: "UNKNOWN_COMMAND"})
			continue
		}
		c.dispatch(ctx, h, msg)
	}
}

// dispatch isolates handler panics: one bad message must not tear down
// the connection, let alone touch other documents.
func (c *Conn) dispatch(ctx context.Context, h func(*Conn, context.Context, ClientMessage), msg ClientMessage) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("handler panic (user=%d, cmd=%s): %v", c.userID, msg.Cmd, r)
			c.enqueue(ErrorMessage{Type: "error", Code: "INTERNAL"})
		}
	}()
	h(c, ctx, msg)
}

func (c *Conn) writeLoop() {
	for msg := range c.send {
		_ = c.ws.WriteJSON(msg)
	}
}

func (c *Conn) docKey(msg ClientMessage) collab.DocKey {
	return collab.DocKey{ProjectID: msg.ProjectID, FileID: msg.FileID}
}

func (c *Conn) handleJoinProject(ctx context.Context, msg ClientMessage) {
	ok, err := c.gate.CanAccess(ctx, c.userID, msg.ProjectID)
	if err != nil {
		log.Printf("permission lookup failed (user=%d, project=%s): %v", c.userID, msg.ProjectID, err)
		c.enqueue(ErrorMessage{Type: "error", Code: "INTERNAL", ProjectID: msg.ProjectID})
		return
	}
	if !ok {
		c.enqueue(ErrorMessage{Type: "error", Code: "ACCESS_DENIED", ProjectID: msg.ProjectID})
		return
	}

	c.hub.JoinProject(msg.ProjectID, c)
	c.projects[msg.ProjectID] = struct{}{}
	if err := c.hub.presence.AddProjectMember(ctx, msg.ProjectID, c.userID, c.username, presenceTTL); err != nil {
		log.Printf("presence add failed (user=%d, project=%s): %v", c.userID, msg.ProjectID, err)
	}

	members, err := c.hub.presence.AliveProjectMembers(ctx, msg.ProjectID)
	if err != nil {
		log.Printf("presence read failed (project=%s): %v", msg.ProjectID, err)
	}
	c.enqueue(ServerMessage{Type: "project-joined", ProjectID: msg.ProjectID, Members: members})
	c.hub.BroadcastProject(msg.ProjectID, c, ServerMessage{
		Type: "user-joined", ProjectID: msg.ProjectID, UserID: c.userID, Username: c.username,
	})
}

func (c *Conn) handleLeaveProject(ctx context.Context, msg ClientMessage) {
	c.hub.LeaveProject(msg.ProjectID, c)
	delete(c.projects, msg.ProjectID)
	if err := c.hub.presence.RemoveProjectMember(ctx, msg.ProjectID, c.userID); err != nil {
		log.Printf("presence remove failed (user=%d, project=%s): %v", c.userID, msg.ProjectID, err)
	}
	c.hub.BroadcastProject(msg.ProjectID, c, ServerMessage{
		Type: "user-left", ProjectID: msg.ProjectID, UserID: c.userID, Username: c.username,
	})
}

func (c *Conn) handleOpenFile(ctx context.Context, msg ClientMessage) {
	key := c.docKey(msg)
	res, err := c.registry.OpenFile(ctx, c.userID, c.username, key)
	if err != nil {
		c.replyError(key, err)
		return
	}
	c.hub.JoinFile(key, c)
	c.files[key] = struct{}{}
	if err := c.hub.presence.AddFileMember(ctx, key.ProjectID, key.FileID, c.userID, c.username, presenceTTL); err != nil {
		log.Printf("presence add failed (user=%d, doc=%s): %v", c.userID, key, err)
	}

	c.enqueue(FileOpenedMessage{
		Type:        "file-opened",
		ProjectID:   key.ProjectID,
		FileID:      key.FileID,
		Content:     res.Content,
		Version:     res.Version,
		ActiveUsers: res.ActiveUsers,
	})
	c.hub.BroadcastFile(key, c, ServerMessage{
		Type: "user-joined-file", ProjectID: key.ProjectID, FileID: key.FileID,
		UserID: c.userID, Username: c.username,
	})
}

func (c *Conn) handleCloseFile(ctx context.Context, msg ClientMessage) {
	key := c.docKey(msg)
	c.leaveFile(ctx, key)
}

func (c *Conn) leaveFile(ctx context.Context, key collab.DocKey) {
	if err := c.registry.CloseFile(ctx, c.userID, key); err != nil && !errors.Is(err, collab.ErrDocumentNotOpen) {
		log.Printf("close file failed (user=%d, doc=%s): %v", c.userID, key, err)
	}
	c.hub.LeaveFile(key, c)
	delete(c.files, key)
	if err := c.hub.presence.RemoveFileMember(ctx, key.ProjectID, key.FileID, c.userID); err != nil {
		log.Printf("presence remove failed (user=%d, doc=%s): %v", c.userID, key, err)
	}
	c.hub.BroadcastFile(key, c, ServerMessage{
		Type: "user-left-file", ProjectID: key.ProjectID, FileID: key.FileID,
		UserID: c.userID, Username: c.username,
	})
}

func (c *Conn) handleOperation(ctx context.Context, msg ClientMessage) {
	key := c.docKey(msg)

	opCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	if err := c.sem.Acquire(opCtx); err != nil {
		c.enqueue(ErrorMessage{Type: "error", Code: "BUSY", Message: err.Error(), FileID: key.FileID})
		return
	}
	defer c.sem.Release()

	applied, err := c.registry.Submit(opCtx, key, c.userID, msg.ClientID, msg.ClientSeq, msg.BaseRevision, msg.Ops)
	if err != nil {
		c.replyError(key, err)
		return
	}

	c.enqueue(OpAckMessage{
		Type:      "operation-acknowledged",
		ProjectID: key.ProjectID,
		FileID:    key.FileID,
		Revision:  applied.Revision,
		ClientID:  msg.ClientID,
		ClientSeq: msg.ClientSeq,
	})
	c.hub.BroadcastFile(key, c, OpBroadcastMessage{
		Type:      "operation-applied",
		ProjectID: key.ProjectID,
		FileID:    key.FileID,
		Revision:  applied.Revision,
		UserID:    c.userID,
		ClientID:  msg.ClientID,
		ClientSeq: msg.ClientSeq,
		Ops:       applied.Ops,
		AppliedAt: applied.AppliedAt,
	})
}

func (c *Conn) handleCursorMove(ctx context.Context, msg ClientMessage) {
	key := c.docKey(msg)
	cursor := collab.Cursor{Line: msg.Line, Column: msg.Column}
	if err := c.registry.UpdateCursor(key, c.userID, cursor); err != nil {
		c.replyError(key, err)
		return
	}
	if b, err := json.Marshal(cursor); err == nil {
		if err := c.hub.presence.SetCursor(ctx, key.ProjectID, key.FileID, c.userID, b, presenceTTL); err != nil {
			log.Printf("cursor cache failed (user=%d, doc=%s): %v", c.userID, key, err)
		}
	}
	c.hub.BroadcastFile(key, c, CursorMessage{
		Type: "cursor-moved", ProjectID: key.ProjectID, FileID: key.FileID,
		UserID: c.userID, Cursor: cursor,
	})
}

func (c *Conn) handleSelectionChange(ctx context.Context, msg ClientMessage) {
	key := c.docKey(msg)
	if msg.Selection == nil {
		c.enqueue(ErrorMessage{Type: "error", Code: "INVALID_OPERATION", Message: "missing selection", FileID: key.FileID})
		return
	}
	if err := c.registry.UpdateSelection(key, c.userID, *msg.Selection); err != nil {
		c.replyError(key, err)
		return
	}
	if b, err := json.Marshal(msg.Selection); err == nil {
		if err := c.hub.presence.SetSelection(ctx, key.ProjectID, key.FileID, c.userID, b, presenceTTL); err != nil {
			log.Printf("selection cache failed (user=%d, doc=%s): %v", c.userID, key, err)
		}
	}
	c.hub.BroadcastFile(key, c, SelectionMessage{
		Type: "selection-changed", ProjectID: key.ProjectID, FileID: key.FileID,
		UserID: c.userID, Selection: *msg.Selection,
	})
}

func (c *Conn) handleOpsSince(_ context.Context, msg ClientMessage) {
	key := c.docKey(msg)
	ops, earliest := c.registry.OpsSince(key, msg.FromRevision, msg.Limit)
	c.enqueue(OpsSinceMessage{
		Type:             "ops-since",
		ProjectID:        key.ProjectID,
		FileID:           key.FileID,
		Ops:              ops,
		EarliestRevision: earliest,
	})
}

func (c *Conn) handleSaveFile(ctx context.Context, msg ClientMessage) {
	key := c.docKey(msg)
	c.registry.FlushNow(ctx, key)
	c.enqueue(ServerMessage{Type: "file-saved", ProjectID: key.ProjectID, FileID: key.FileID})
}

// handleHeartbeat refreshes this connection's presence TTLs.
func (c *Conn) handleHeartbeat(ctx context.Context, _ ClientMessage) {
	for projectID := range c.projects {
		if err := c.hub.presence.AddProjectMember(ctx, projectID, c.userID, c.username, presenceTTL); err != nil {
			log.Printf("presence refresh failed (user=%d, project=%s): %v", c.userID, projectID, err)
		}
	}
	for key := range c.files {
		if err := c.hub.presence.AddFileMember(ctx, key.ProjectID, key.FileID, c.userID, c.username, presenceTTL); err != nil {
			log.Printf("presence refresh failed (user=%d, doc=%s): %v", c.userID, key, err)
		}
		if err := c.registry.Touch(key, c.userID); err != nil && !errors.Is(err, collab.ErrDocumentNotOpen) {
			log.Printf("touch failed (user=%d, doc=%s): %v", c.userID, key, err)
		}
	}
	c.enqueue(ServerMessage{Type: "heartbeat-ack"})
}

// cleanup runs when the transport drops: leave every room and document
// with the matching broadcasts.
func (c *Conn) cleanup(ctx context.Context) {
	for key := range c.files {
		c.hub.LeaveFile(key, c)
		if err := c.hub.presence.RemoveFileMember(ctx, key.ProjectID, key.FileID, c.userID); err != nil {
			log.Printf("presence remove failed (user=%d, doc=%s): %v", c.userID, key, err)
		}
	}
	// DisconnectUser covers every document the user sat in, arming the
	// grace timer where it was the last one out.
	for _, key := range c.registry.DisconnectUser(c.userID) {
		c.hub.BroadcastFile(key, c, ServerMessage{
			Type: "user-left-file", ProjectID: key.ProjectID, FileID: key.FileID,
			UserID: c.userID, Username: c.username,
		})
	}
	for projectID := range c.projects {
		c.hub.LeaveProject(projectID, c)
		delete(c.projects, projectID)
		if err := c.hub.presence.RemoveProjectMember(ctx, projectID, c.userID); err != nil {
			log.Printf("presence remove failed (user=%d, project=%s): %v", c.userID, projectID, err)
		}
		c.hub.BroadcastProject(projectID, c, ServerMessage{
			Type: "user-left", ProjectID: projectID, UserID: c.userID, Username: c.username,
		})
	}
}

// replyError maps registry errors onto wire error events; the conflict
// case carries the full conflicting set.
func (c *Conn) replyError(key collab.DocKey, err error) {
	var conflictErr *collab.ConflictError
	switch {
	case errors.As(err, &conflictErr):
		c.enqueue(ConflictMessage{
			Type:       "conflict-detected",
			ProjectID:  key.ProjectID,
			FileID:     key.FileID,
			Strategy:   string(collab.ResolutionManual),
			Conflicted: conflictErr.Conflicted,
		})
	case errors.Is(err, collab.ErrAccessDenied):
		c.sendErrorCode(key, "ACCESS_DENIED", err)
	case errors.Is(err, collab.ErrPermissionDenied):
		c.sendErrorCode(key, "PERMISSION_DENIED", err)
	case errors.Is(err, collab.ErrDocumentNotOpen):
		c.sendErrorCode(key, "DOCUMENT_NOT_OPEN", err)
	case errors.Is(err, collab.ErrRevisionConflict):
		c.sendErrorCode(key, "REVISION_CONFLICT", err)
	case errors.Is(err, collab.ErrDuplicateOrOutOfOrder):
		c.sendErrorCode(key, "DUPLICATE_OR_OUT_OF_ORDER", err)
	case errors.Is(err, delta.ErrInvalidOp), errors.Is(err, delta.ErrLengthMismatch):
		log.Printf("invalid operation (user=%d, doc=%s): %v", c.userID, key, err)
		c.sendErrorCode(key, "INVALID_OPERATION", err)
	default:
		log.Printf("request failed (user=%d, doc=%s): %v", c.userID, key, err)
		c.sendErrorCode(key, "INTERNAL", err)
	}
}

func (c *Conn) sendErrorCode(key collab.DocKey, code string, err error) {
	c.enqueue(ErrorMessage{
		Type:      "error",
		Code:      code,
		Message:   err.Error(),
		ProjectID: key.ProjectID,
		FileID:    key.FileID,
	})
}
