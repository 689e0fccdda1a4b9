package models

// -----------------------------------------------------------------------------
// Hub protocol message types
// -----------------------------------------------------------------------------

const (
	MsgRequestData = "requestData"
	MsgPing        = "ping"
	MsgData        = "data"
	MsgError       = "error"
	MsgPong        = "pong"
)

// -----------------------------------------------------------------------------
// Client -> Hub
// -----------------------------------------------------------------------------

// MClientMessage is any client command. Payload is only set for requestData.
type MClientMessage struct {
	Type    string           `json:"type"`
	Payload *MRequestPayload `json:"payload,omitempty"`
}

type MRequestPayload struct {
	Force bool `json:"force"`
}

// Force is nil-safe; a requestData without payload is a non-forced request.
func (m MClientMessage) Force() bool {
	return m.Payload != nil && m.Payload.Force
}

// -----------------------------------------------------------------------------
// Hub -> Client
// -----------------------------------------------------------------------------

// MServerMessage is the union of data, error and pong replies. Fields not
// belonging to Type are left at their zero value and omitted on the wire.
type MServerMessage struct {
	Type        string         `json:"type"`
	Data        []MChartRecord `json:"data,omitempty"`
	Error       string         `json:"error,omitempty"`
	Timestamp   int64          `json:"timestamp"`
	Source      DataSource     `json:"source,omitempty"`
	Connections int            `json:"connections,omitempty"`
	CacheStatus string         `json:"cacheStatus,omitempty"`
	LastFetch   int64          `json:"lastFetch,omitempty"`
}

// NewDataMessage wraps a snapshot for delivery. Timestamp is the snapshot's
// fetch time in unix milliseconds so every receiver sees the same value.
func NewDataMessage(snap *MSnapshot, source DataSource) *MServerMessage {
	msg := &MServerMessage{Type: MsgData, Source: source, Data: []MChartRecord{}}
	if snap != nil {
		msg.Data = snap.Charts
		msg.Timestamp = snap.FetchedAt.UnixMilli()
	}
	return msg
}

func NewErrorMessage(text string, nowMillis int64) *MServerMessage {
	return &MServerMessage{Type: MsgError, Error: text, Timestamp: nowMillis}
}

func NewPongMessage(connections int, cacheStatus string, lastFetch, nowMillis int64) *MServerMessage {
	return &MServerMessage{
		Type:        MsgPong,
		Timestamp:   nowMillis,
		Connections: connections,
		CacheStatus: cacheStatus,
		LastFetch:   lastFetch,
	}
}
