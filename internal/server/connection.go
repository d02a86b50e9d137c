package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/lox/holdemd/internal/game"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192
)

var ErrConnectionClosed = websocket.ErrCloseSent

// Connection is one WebSocket client. A connection authenticates once,
// then issues table commands; events from subscribed tables are pushed
// over the same socket.
type Connection struct {
	conn     *websocket.Conn
	send     chan *Message
	registry *Registry
	logger   *log.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu     sync.Mutex
	userID string
	// one active subscription per table
	subscriptions map[string]func()
}

// NewConnection wraps an upgraded WebSocket.
func NewConnection(conn *websocket.Conn, registry *Registry, logger *log.Logger) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		conn:          conn,
		send:          make(chan *Message, 256),
		registry:      registry,
		logger:        logger.WithPrefix("conn"),
		ctx:           ctx,
		cancel:        cancel,
		subscriptions: make(map[string]func()),
	}
}

// Start begins the read and write pumps.
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Close tears the connection down and cancels its subscriptions.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()

		c.mu.Lock()
		cancels := make([]func(), 0, len(c.subscriptions))
		for _, cancelSub := range c.subscriptions {
			cancels = append(cancels, cancelSub)
		}
		c.subscriptions = make(map[string]func())
		c.mu.Unlock()
		for _, cancelSub := range cancels {
			cancelSub()
		}

		close(c.send)
		err = c.conn.Close()
	})
	return err
}

// SendMessage queues a message for the client.
func (c *Connection) SendMessage(msg *Message) error {
	defer func() {
		if r := recover(); r != nil {
			// Send channel closed during shutdown.
			c.logger.Debug("send on closed connection", "error", r)
		}
	}()

	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		c.logger.Warn("send buffer full, closing connection")
		_ = c.Close()
		return ErrConnectionClosed
	}
}

func (c *Connection) user() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *Connection) setUser(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = userID
}

func (c *Connection) readPump() {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket error", "error", err)
			}
			return
		}
		c.handleMessage(&msg)
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error("failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Connection) handleMessage(msg *Message) {
	c.logger.Debug("received message", "type", msg.Type, "user", c.user())

	if msg.Type == MessageTypeAuth {
		var data AuthData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg, "malformed", "failed to parse auth data")
			return
		}
		c.handleAuth(msg, data)
		return
	}

	if c.user() == "" {
		c.sendError(msg, "not_authenticated", "must authenticate first")
		return
	}

	switch msg.Type {
	case MessageTypeCreateTable:
		var data CreateTableData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg, "malformed", "failed to parse create table data")
			return
		}
		c.handleCreateTable(msg, data)

	case MessageTypeJoinTable:
		var data JoinTableData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg, "malformed", "failed to parse join table data")
			return
		}
		c.handleJoinTable(msg, data)

	case MessageTypeLeaveTable:
		var data LeaveTableData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg, "malformed", "failed to parse leave table data")
			return
		}
		c.handleLeaveTable(msg, data)

	case MessageTypeStartHand:
		var data StartHandData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg, "malformed", "failed to parse start hand data")
			return
		}
		c.handleStartHand(msg, data)

	case MessageTypeAction:
		var data ActionData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg, "malformed", "failed to parse action data")
			return
		}
		c.handleAction(msg, data)

	case MessageTypeSubscribe:
		var data SubscribeData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg, "malformed", "failed to parse subscribe data")
			return
		}
		c.handleSubscribe(msg, data)

	case MessageTypeGetState:
		var data GetStateData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg, "malformed", "failed to parse get state data")
			return
		}
		c.handleGetState(msg, data)

	case MessageTypeListTables:
		c.handleListTables(msg)

	default:
		c.sendError(msg, "unknown_message_type", "unknown message type: "+msg.Type.String())
	}
}

func (c *Connection) handleAuth(msg *Message, data AuthData) {
	if data.UserID == "" {
		c.sendError(msg, "invalid_auth", "user id required")
		return
	}
	c.setUser(data.UserID)
	c.reply(msg, MessageTypeAuthResponse, AuthResponseData{Success: true, UserID: data.UserID})
}

func (c *Connection) handleCreateTable(msg *Message, data CreateTableData) {
	actor, err := c.registry.CreateTable(c.ctx, c.user(), data.MaxPlayers, data.SmallBlind, data.BigBlind, data.AutoStart)
	if err != nil {
		c.sendError(msg, errorCode(err), err.Error())
		return
	}
	c.reply(msg, MessageTypeTableCreated, TableCreatedData{TableID: actor.ID()})
}

func (c *Connection) handleJoinTable(msg *Message, data JoinTableData) {
	actor, err := c.registry.Get(data.TableID)
	if err != nil {
		c.sendError(msg, errorCode(err), err.Error())
		return
	}
	if err := actor.Join(c.ctx, c.user(), data.BuyIn); err != nil {
		c.sendError(msg, errorCode(err), err.Error())
		return
	}
	c.reply(msg, MessageTypeTableJoined, TableJoinedData{TableID: data.TableID})
}

func (c *Connection) handleLeaveTable(msg *Message, data LeaveTableData) {
	actor, err := c.registry.Get(data.TableID)
	if err != nil {
		c.sendError(msg, errorCode(err), err.Error())
		return
	}
	if err := actor.Leave(c.ctx, c.user()); err != nil {
		c.sendError(msg, errorCode(err), err.Error())
		return
	}

	c.mu.Lock()
	cancelSub := c.subscriptions[data.TableID]
	delete(c.subscriptions, data.TableID)
	c.mu.Unlock()
	if cancelSub != nil {
		cancelSub()
	}

	c.reply(msg, MessageTypeTableLeft, TableLeftData{TableID: data.TableID})
}

func (c *Connection) handleStartHand(msg *Message, data StartHandData) {
	actor, err := c.registry.Get(data.TableID)
	if err != nil {
		c.sendError(msg, errorCode(err), err.Error())
		return
	}
	if err := actor.StartHand(c.ctx, c.user()); err != nil {
		c.sendError(msg, errorCode(err), err.Error())
		return
	}
	c.reply(msg, MessageTypeAck, nil)
}

func (c *Connection) handleAction(msg *Message, data ActionData) {
	action, err := game.ParseAction(data.Action)
	if err != nil {
		c.sendError(msg, errorCode(err), err.Error())
		return
	}
	actor, err := c.registry.Get(data.TableID)
	if err != nil {
		c.sendError(msg, errorCode(err), err.Error())
		return
	}
	// The ack arrives only after the resulting events are durable.
	if err := actor.Act(c.ctx, c.user(), action, data.Amount); err != nil {
		c.sendError(msg, errorCode(err), err.Error())
		return
	}
	c.reply(msg, MessageTypeAck, nil)
}

func (c *Connection) handleSubscribe(msg *Message, data SubscribeData) {
	actor, err := c.registry.Get(data.TableID)
	if err != nil {
		c.sendError(msg, errorCode(err), err.Error())
		return
	}

	c.mu.Lock()
	_, already := c.subscriptions[data.TableID]
	c.mu.Unlock()
	if already {
		c.sendError(msg, "already_subscribed", "already subscribed to table")
		return
	}

	events, cancelSub, err := actor.Subscribe(c.ctx, c.user(), data.Since)
	if err != nil {
		c.sendError(msg, errorCode(err), err.Error())
		return
	}

	c.mu.Lock()
	c.subscriptions[data.TableID] = cancelSub
	c.mu.Unlock()

	c.reply(msg, MessageTypeAck, nil)

	go func() {
		for e := range events {
			out, err := NewMessage(MessageTypeEvent, EventData{TableID: data.TableID, Event: e})
			if err != nil {
				c.logger.Error("failed to encode event", "error", err)
				continue
			}
			if err := c.SendMessage(out); err != nil {
				return
			}
		}
	}()
}

func (c *Connection) handleGetState(msg *Message, data GetStateData) {
	actor, err := c.registry.Get(data.TableID)
	if err != nil {
		c.sendError(msg, errorCode(err), err.Error())
		return
	}
	view, err := actor.View(c.ctx, c.user())
	if err != nil {
		c.sendError(msg, errorCode(err), err.Error())
		return
	}
	c.reply(msg, MessageTypeState, view)
}

func (c *Connection) handleListTables(msg *Message) {
	c.reply(msg, MessageTypeTableList, TableListData{Tables: c.registry.List(c.ctx)})
}

// reply sends a response carrying the request's correlation ID.
func (c *Connection) reply(req *Message, messageType MessageType, data interface{}) {
	out, err := NewMessage(messageType, data)
	if err != nil {
		c.logger.Error("failed to create message", "type", messageType, "error", err)
		return
	}
	out.RequestID = req.RequestID
	_ = c.SendMessage(out)
}

func (c *Connection) sendError(req *Message, code, message string) {
	out, err := NewMessage(MessageTypeError, ErrorData{Code: code, Message: message})
	if err != nil {
		c.logger.Error("failed to create error message", "error", err)
		return
	}
	if req != nil {
		out.RequestID = req.RequestID
	}
	_ = c.SendMessage(out)
}
