package protocol

import (
	"encoding/json"
	"time"
)

// Request is the decoded client envelope. All per-type fields are
// optional at the JSON layer; handlers validate what they need.
type Request struct {
	Type           string `json:"type"`
	SessionID      string `json:"session_id"`
	Username       string `json:"username"`
	Password       string `json:"password"`
	Email          string `json:"email"`
	TargetUsername string `json:"target_username"`
	PreferredColor string `json:"preferred_color"`
	Depth          int    `json:"depth"`
	ChallengeID    string `json:"challenge_id"`
	GameID         int64  `json:"game_id"`
	PreviousGameID int64  `json:"previous_game_id"`
	Move           string `json:"move"`
	Accepted       *bool  `json:"accepted"`
	UserID         int64  `json:"user_id"`
	Limit          int    `json:"limit"`
	Timestamp      *int64 `json:"timestamp"`
	Message        string `json:"message"`
}

// ParseRequest decodes one text message into a Request.
func ParseRequest(data []byte) (*Request, error) {
	req := &Request{}
	if err := json.Unmarshal(data, req); err != nil {
		return nil, err
	}
	return req, nil
}

// M is one outgoing JSON message. Responses and broadcasts are built as
// maps because their shapes vary per type and most fields are ad hoc.
type M map[string]any

// Encode renders the message as a JSON text payload.
func (m M) Encode() []byte {
	data, err := json.Marshal(m)
	if err != nil {
		// marshalling a map of plain values cannot fail at runtime;
		// keep the connection alive with a generic error if it does
		return []byte(`{"type":"ERROR","error_code":"INTERNAL_ERROR"}`)
	}
	return data
}

// Error builds the standard ERROR response shape. Messages are advisory;
// codes are the stable contract.
func Error(code, message string) M {
	return M{
		"type":       TypeError,
		"error_code": code,
		"message":    message,
		"severity":   "error",
		"timestamp":  time.Now().Unix(),
	}
}
