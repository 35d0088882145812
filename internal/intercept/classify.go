package intercept

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// kind is the result of classifying an intercepted call. The patterns are
// disjoint by construction, so classification order does not matter.
type kind int

const (
	kindNone kind = iota
	kindConversationDetail
	kindConversationList
	kindLiveStream
)

// Conversation ids are UUID-style hex-and-hyphen tokens. Length is checked
// separately so the reserved sub-routes below can't sneak through.
var conversationIDPattern = regexp.MustCompile(`^[0-9a-fA-F-]+$`)

const minConversationIDLen = 20

// reservedConversationSegments are literal sub-routes that live under the
// conversation path but are not conversation ids.
var reservedConversationSegments = map[string]bool{
	"init":          true,
	"voice":         true,
	"gen_title":     true,
	"experimental":  true,
	"interpretable": true,
}

// classify buckets a call by URL shape, plus response media type for the
// streaming case. A nil URL or response classifies as none.
func classify(u *url.URL, resp *http.Response) kind {
	if u == nil || resp == nil {
		return kindNone
	}
	path := strings.TrimSuffix(u.Path, "/")

	switch {
	case isConversationDetailPath(path):
		return kindConversationDetail
	case strings.HasSuffix(path, "/conversations"):
		return kindConversationList
	case strings.HasSuffix(path, "/conversation") && isEventStream(resp):
		return kindLiveStream
	default:
		return kindNone
	}
}

func isConversationDetailPath(path string) bool {
	idx := strings.LastIndex(path, "/conversation/")
	if idx < 0 {
		return false
	}
	id := path[idx+len("/conversation/"):]
	if strings.Contains(id, "/") {
		return false
	}
	if reservedConversationSegments[id] {
		return false
	}
	return len(id) >= minConversationIDLen && conversationIDPattern.MatchString(id)
}

func isEventStream(resp *http.Response) bool {
	if resp.Body == nil {
		return false
	}
	ct := resp.Header.Get("Content-Type")
	return strings.HasPrefix(strings.TrimSpace(ct), "text/event-stream")
}
