// Package timestamp defines the record types captured from intercepted
// backend responses. Records are facts about the past: once a create time
// is known it never changes, so maps of these types are insert-only with
// overwrite-by-key as a harmless no-op.
package timestamp

// Message is the creation metadata for a single chat message.
// CreateTime is unix seconds as the backend reports it (fractional part
// preserved). Role is nil when the payload carried no author.
type Message struct {
	CreateTime float64 `json:"createTime"`
	Role       *string `json:"role"`
}

// Conversation is the creation metadata for a conversation-list entry.
// CreateTime and UpdateTime are ISO-8601 strings straight off the wire.
type Conversation struct {
	CreateTime string  `json:"createTime"`
	UpdateTime *string `json:"updateTime"`
	Title      *string `json:"title"`
}
