package intercept

import (
	"encoding/json"

	"github.com/ewalden/chatstamp/internal/timestamp"
)

// Wire shapes for the two JSON endpoints. Only the fields we lift are
// declared; everything else in the payload is ignored.

type detailResponse struct {
	Mapping map[string]detailNode `json:"mapping"`
}

type detailNode struct {
	Message *wireMessage `json:"message"`
}

type wireMessage struct {
	ID         string      `json:"id"`
	CreateTime *float64    `json:"create_time"`
	Author     *wireAuthor `json:"author"`
}

type wireAuthor struct {
	Role string `json:"role"`
}

type listResponse struct {
	Items []listItem `json:"items"`
}

type listItem struct {
	ID         string  `json:"id"`
	CreateTime string  `json:"create_time"`
	UpdateTime *string `json:"update_time"`
	Title      *string `json:"title"`
}

// extractDetail lifts message timestamps out of a conversation-detail body.
// Any parse failure yields an empty batch; the caller treats that as "not
// the expected shape" and moves on.
func extractDetail(body []byte) map[string]timestamp.Message {
	var doc detailResponse
	if err := json.Unmarshal(body, &doc); err != nil || len(doc.Mapping) == 0 {
		return nil
	}

	batch := make(map[string]timestamp.Message)
	for _, node := range doc.Mapping {
		if ts, id, ok := messageTimestamp(node.Message); ok {
			batch[id] = ts
		}
	}
	return batch
}

// messageTimestamp converts a wire message to a record. Messages without
// an id or with a null create_time carry nothing we can use.
func messageTimestamp(msg *wireMessage) (timestamp.Message, string, bool) {
	if msg == nil || msg.ID == "" || msg.CreateTime == nil {
		return timestamp.Message{}, "", false
	}
	ts := timestamp.Message{CreateTime: *msg.CreateTime}
	if msg.Author != nil && msg.Author.Role != "" {
		role := msg.Author.Role
		ts.Role = &role
	}
	return ts, msg.ID, true
}

// extractList lifts conversation timestamps out of a conversation-list body.
func extractList(body []byte) map[string]timestamp.Conversation {
	var doc listResponse
	if err := json.Unmarshal(body, &doc); err != nil || len(doc.Items) == 0 {
		return nil
	}

	batch := make(map[string]timestamp.Conversation)
	for _, item := range doc.Items {
		if item.ID == "" || item.CreateTime == "" {
			continue
		}
		batch[item.ID] = timestamp.Conversation{
			CreateTime: item.CreateTime,
			UpdateTime: item.UpdateTime,
			Title:      item.Title,
		}
	}
	return batch
}
