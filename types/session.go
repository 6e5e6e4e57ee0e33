package types

import "github.com/google/uuid"

// SessionMeta identifies one client session. All log entries carry the
// session identity fields.
type SessionMeta struct {
	// SessionID is the locally minted session identifier.
	SessionID string
	// Transport names the transport adapter in use (e.g. "websocket", "pipe").
	Transport string
}

// NewSessionMeta mints a session identity for the given transport name.
func NewSessionMeta(transport string) *SessionMeta {
	return &SessionMeta{
		SessionID: uuid.New().String(),
		Transport: transport,
	}
}
