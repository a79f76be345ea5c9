package protocol

import "encoding/json"

// Frame types exchanged with the character service gateway.
const (
	FrameRequest  = "req"
	FrameResponse = "res"
	FrameEvent    = "event"
)

// Gateway request methods.
const (
	MethodSessionOpen      = "session.open"
	MethodText             = "text"
	MethodCustom           = "custom"
	MethodCharactersList   = "characters.list"
	MethodCharacterCurrent = "character.current"
	MethodCharacterSet     = "character.set"
)

// Gateway event names.
const (
	EventPacket = "packet"
	EventError  = "error"
)

type Frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Event   string          `json:"event,omitempty"`
	OK      bool            `json:"ok,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *ErrorBody      `json:"error,omitempty"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Request struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

type Capabilities struct {
	Audio    bool `json:"audio"`
	Emotions bool `json:"emotions"`
}

type User struct {
	ID       string `json:"id,omitempty"`
	FullName string `json:"fullName,omitempty"`
}

type SessionOpenParams struct {
	Scene        string       `json:"scene"`
	Character    string       `json:"character,omitempty"`
	User         User         `json:"user"`
	Capabilities Capabilities `json:"capabilities"`
}

type Character struct {
	ID           string `json:"id"`
	ResourceName string `json:"resourceName,omitempty"`
	DisplayName  string `json:"displayName"`
}

type SessionOpenResult struct {
	SessionID  string      `json:"sessionId,omitempty"`
	Characters []Character `json:"characters"`
	Current    *Character  `json:"current,omitempty"`
}

type TextParams struct {
	Text string `json:"text"`
}

type CustomParams struct {
	Name string `json:"name"`
}

type CharacterSetParams struct {
	ID string `json:"id"`
}

type CharactersResult struct {
	Characters []Character `json:"characters"`
}

type TokenRequest struct {
	Scene string `json:"scene"`
}

type TokenResponse struct {
	Token          string `json:"token"`
	Type           string `json:"type"`
	ExpirationTime string `json:"expirationTime"`
	SessionID      string `json:"sessionId"`
}
