package model

// Message is one inbound payload reassembled from the modem's IPD framing.
type Message struct {
	// SN serial number
	// 0 means the message has not passed through the control loop yet
	// other means the number of the receive cycle that produced it
	SN uint64

	// Link the modem link id, negative when nothing arrived
	Link int

	Payload []byte
}

// Valid reports whether the message carries a link id.
func (m Message) Valid() bool {
	return m.Link >= 0
}
