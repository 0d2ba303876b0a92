package ws

import "encoding/json"

// Event names exchanged over the socket. Clients announce themselves with
// EventUserConnected and leave with EventUserDisconnected; EventSendMessage
// asks the hub to relay a message. The server pushes EventUpdateUsers with
// the full presence list and EventReceiveMessage with a relayed message.
const (
	EventUserConnected    = "userConnected"
	EventUserDisconnected = "userDisconnected"
	EventSendMessage      = "sendMessage"

	EventUpdateUsers    = "updateUsers"
	EventReceiveMessage = "receiveMessage"
)

// Event is the wire envelope: an event name plus an event-specific payload.
// Data is kept raw so EventSendMessage payloads can be relayed verbatim.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func marshalEvent(name string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Event{Event: name, Data: raw})
}
