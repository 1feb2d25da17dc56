package emitter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

// KeygenRequest asks the broker to derive a channel key from a master key.
type KeygenRequest struct {
	Key     string `json:"key"`
	Channel string `json:"channel"`
	Type    string `json:"type"`
	TTL     int    `json:"ttl"`
}

// LinkRequest binds a formatted channel to a short link name.
type LinkRequest struct {
	Key       string `json:"key"`
	Channel   string `json:"channel"`
	Name      string `json:"name"`
	Private   bool   `json:"private"`
	Subscribe bool   `json:"subscribe"`
}

// PresenceRequest asks for the current occupancy of a channel and/or
// subscribes to occupancy changes. Unset fields are sent as null.
type PresenceRequest struct {
	Key     string `json:"key"`
	Channel string `json:"channel"`
	Status  *bool  `json:"status"`
	Changes *bool  `json:"changes"`
}

// KeygenResponse is the broker's reply on emitter/keygen/.
type KeygenResponse struct {
	Status  int    `json:"status"`
	Key     string `json:"key"`
	Channel string `json:"channel"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse is published by the broker on emitter/error/.
type ErrorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// Error implements error.
func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

// MeResponse describes the current connection, as returned on emitter/me/.
type MeResponse struct {
	ID    string            `json:"id"`
	Links map[string]string `json:"links,omitempty"`
}

// PresenceInfo identifies one connection in a presence event.
type PresenceInfo struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
}

// PresenceEvent is published on emitter/presence/ in reply to a status
// request ("status") or when a subscriber joins or leaves ("subscribe",
// "unsubscribe").
type PresenceEvent struct {
	Event   string         `json:"event"`
	Channel string         `json:"channel"`
	Time    int64          `json:"time"`
	Who     []PresenceInfo `json:"who"`
}

// UnmarshalJSON accepts "who" as either a single object (change
// notifications) or a list (status replies).
func (e *PresenceEvent) UnmarshalJSON(data []byte) error {
	var raw struct {
		Event   string          `json:"event"`
		Channel string          `json:"channel"`
		Time    int64           `json:"time"`
		Who     json.RawMessage `json:"who"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	e.Event = raw.Event
	e.Channel = raw.Channel
	e.Time = raw.Time
	e.Who = nil

	who := bytes.TrimSpace(raw.Who)
	switch {
	case len(who) == 0 || bytes.Equal(who, []byte("null")):
	case who[0] == '[':
		if err := json.Unmarshal(who, &e.Who); err != nil {
			return err
		}
	default:
		var one PresenceInfo
		if err := json.Unmarshal(who, &one); err != nil {
			return err
		}
		e.Who = []PresenceInfo{one}
	}

	return nil
}

// DecodePresenceEvent decodes a payload received on emitter/presence/.
func DecodePresenceEvent(payload []byte) (*PresenceEvent, error) {
	var event PresenceEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: presence: %w", ErrMalformedResponse, err)
	}
	return &event, nil
}

// DecodeError decodes a payload received on emitter/error/.
func DecodeError(payload []byte) (*ErrorResponse, error) {
	var resp ErrorResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("%w: error: %w", ErrMalformedResponse, err)
	}
	return &resp, nil
}

// requestError converts a non-200 broker status into an error.
func requestError(status int, message string) error {
	if status == http.StatusOK {
		return nil
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return fmt.Errorf("%w: %d %s", ErrRequestFailed, status, message)
}
