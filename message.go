package duplex

// Message is one received payload. It is immutable: Body returns a copy, so
// a listener that modifies it affects nobody else.
type Message struct {
	body []byte
}

// NewMessage returns a Message holding a private copy of body.
func NewMessage(body []byte) Message {
	return Message{body: clone(body)}
}

// Length returns the length of the message body.
func (m Message) Length() int {
	return len(m.body)
}

// Body returns a copy of the raw message data.
func (m Message) Body() []byte {
	return clone(m.body)
}

// String returns the body as a string.
func (m Message) String() string {
	return string(m.body)
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
