package domain

// Queue item kinds. The kind decides which payload fields are set and which
// worker path consumes the item.
const (
	QueueInput  = "input"
	QueueOutput = "output"
	QueueEmail  = "email"
)

// QueueItem is the JSON document stored at user/{uid}/queue/{ts}.json.
type QueueItem struct {
	Type    string `json:"type"`
	Retries int    `json:"retries"`

	// input: the received activity plus the original request metadata
	// needed to replay signature verification.
	Object map[string]any `json:"object,omitempty"`
	Req    *QueueRequest  `json:"req,omitempty"`

	// output: resolved destination inbox and the sending uid.
	Inbox string `json:"inbox,omitempty"`
	Actor string `json:"actor,omitempty"`

	// email: the composed RFC 822 message.
	Message string `json:"message,omitempty"`
}

// QueueRequest preserves the signed parts of an inbound HTTP request so the
// worker can verify the signature after the connection is gone.
type QueueRequest struct {
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Headers map[string]string `json:"headers"`
}

func NewInputItem(activity map[string]any, req *QueueRequest) *QueueItem {
	return &QueueItem{Type: QueueInput, Object: activity, Req: req}
}

func NewOutputItem(uid, inbox string, activity map[string]any) *QueueItem {
	return &QueueItem{Type: QueueOutput, Actor: uid, Inbox: inbox, Object: activity}
}

func NewEmailItem(message string) *QueueItem {
	return &QueueItem{Type: QueueEmail, Message: message}
}
