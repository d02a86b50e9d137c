package server

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/lox/holdemd/internal/game"
)

// MessageType discriminates the wire messages.
type MessageType string

const (
	// Client → server
	MessageTypeAuth        MessageType = "auth"
	MessageTypeCreateTable MessageType = "create_table"
	MessageTypeJoinTable   MessageType = "join_table"
	MessageTypeLeaveTable  MessageType = "leave_table"
	MessageTypeStartHand   MessageType = "start_hand"
	MessageTypeAction      MessageType = "action"
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeGetState    MessageType = "get_state"
	MessageTypeListTables  MessageType = "list_tables"

	// Server → client
	MessageTypeAuthResponse MessageType = "auth_response"
	MessageTypeTableCreated MessageType = "table_created"
	MessageTypeTableJoined  MessageType = "table_joined"
	MessageTypeTableLeft    MessageType = "table_left"
	MessageTypeAck          MessageType = "ack"
	MessageTypeState        MessageType = "state"
	MessageTypeTableList    MessageType = "table_list"
	MessageTypeEvent        MessageType = "event"
	MessageTypeError        MessageType = "error"
)

func (t MessageType) String() string { return string(t) }

// Message is the base WebSocket message envelope.
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"requestId,omitempty"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(messageType MessageType, data interface{}) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      messageType,
		Data:      dataBytes,
		Timestamp: time.Now(),
	}, nil
}

// Client → Server payloads

type AuthData struct {
	UserID string `json:"userId"`
	Token  string `json:"token,omitempty"`
}

type CreateTableData struct {
	MaxPlayers int  `json:"maxPlayers"`
	SmallBlind int  `json:"smallBlind"`
	BigBlind   int  `json:"bigBlind"`
	AutoStart  bool `json:"autoStart,omitempty"`
}

type JoinTableData struct {
	TableID string `json:"tableId"`
	BuyIn   int    `json:"buyIn"`
}

type LeaveTableData struct {
	TableID string `json:"tableId"`
}

type StartHandData struct {
	TableID string `json:"tableId"`
}

type ActionData struct {
	TableID string `json:"tableId"`
	Action  string `json:"action"`
	Amount  int    `json:"amount,omitempty"`
}

type SubscribeData struct {
	TableID string `json:"tableId"`
	Since   int64  `json:"since,omitempty"`
}

type GetStateData struct {
	TableID string `json:"tableId"`
}

// Server → Client payloads

type AuthResponseData struct {
	Success bool   `json:"success"`
	UserID  string `json:"userId,omitempty"`
	Error   string `json:"error,omitempty"`
}

type TableCreatedData struct {
	TableID string `json:"tableId"`
}

type TableJoinedData struct {
	TableID string `json:"tableId"`
}

type TableLeftData struct {
	TableID string `json:"tableId"`
}

type TableListData struct {
	Tables []TableSummary `json:"tables"`
}

// EventData wraps one table event for delivery to a subscriber.
type EventData struct {
	TableID string     `json:"tableId"`
	Event   game.Event `json:"event"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorCode maps engine errors onto stable wire codes so clients can
// branch without parsing messages.
func errorCode(err error) string {
	var illegal *game.IllegalActionError
	switch {
	case errors.As(err, &illegal):
		return "illegal_action"
	case errors.Is(err, game.ErrNotYourTurn):
		return "not_your_turn"
	case errors.Is(err, game.ErrMalformed):
		return "malformed"
	case errors.Is(err, game.ErrOutOfRange):
		return "out_of_range"
	case errors.Is(err, game.ErrTableFull):
		return "table_full"
	case errors.Is(err, game.ErrTableInProgress):
		return "table_in_progress"
	case errors.Is(err, game.ErrInsufficientChips):
		return "insufficient_chips"
	case errors.Is(err, game.ErrTableClosed):
		return "table_closed"
	case errors.Is(err, game.ErrTableCorrupt):
		return "table_corrupt"
	case errors.Is(err, ErrTableNotFound):
		return "table_not_found"
	default:
		return "internal"
	}
}
