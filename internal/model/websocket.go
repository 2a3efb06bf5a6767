package model

// WebSocket message types
const (
	WSMessageTypeUpdate = "update"
	WSMessageTypeError  = "error"
	WSMessageTypePing   = "ping"
	WSMessageTypePong   = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSUpdateMessage carries the record after a state change
type WSUpdateMessage struct {
	Type     string         `json:"type"`
	RecordID string         `json:"recordId"`
	Status   Status         `json:"status"`
	Record   RecordResponse `json:"record"`
}

// WSErrorMessage represents an error
type WSErrorMessage struct {
	Type     string  `json:"type"`
	RecordID string  `json:"recordId"`
	Error    WSError `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
