package backend

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/zulandar/docchat/internal/models"
)

// The document endpoint has shipped three shapes over time:
//
//	name-based:   {"id", "url", "name", "year", "docType"}
//	metadata map: {"id", "url", "metadata_map": {"name", "year", "doc_type"}}
//	ticker-based: {"id", "url", "ticker", "fullName", "docType"}
//
// Each canonical field is read from the first path that is present.
var (
	namePaths    = []string{"metadata_map.name", "name", "fullName", "ticker"}
	yearPaths    = []string{"metadata_map.year", "year"}
	docTypePaths = []string{"metadata_map.doc_type", "doc_type", "docType"}
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
}

func firstString(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		v := r.Get(p)
		if v.Exists() && v.Type != gjson.Null {
			if s := strings.TrimSpace(v.String()); s != "" {
				return s
			}
		}
	}
	return ""
}

// resolveURL makes relative document URLs absolute against the API base.
func resolveURL(baseURL, raw string) string {
	if raw == "" || strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return baseURL + strings.TrimPrefix(raw, "/")
}

func normalizeDocument(baseURL string, r gjson.Result, index int) (models.Document, error) {
	id := firstString(r, "id")
	if id == "" {
		return models.Document{}, fmt.Errorf("document %d has no id", index)
	}
	return models.Document{
		ID:      id,
		URL:     resolveURL(baseURL, firstString(r, "url")),
		Name:    firstString(r, namePaths...),
		Year:    firstString(r, yearPaths...),
		DocType: firstString(r, docTypePaths...),
		Color:   models.ColorForIndex(index),
	}, nil
}

func normalizeDocuments(baseURL string, arr gjson.Result) ([]models.Document, error) {
	if !arr.IsArray() {
		return nil, errors.New("expected a JSON array of documents")
	}
	items := arr.Array()
	docs := make([]models.Document, 0, len(items))
	for i, item := range items {
		doc, err := normalizeDocument(baseURL, item, i)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// decodeMessage accepts both camelCase and snake_case conversation ids.
func decodeMessage(r gjson.Result) (models.Message, error) {
	if !r.IsObject() {
		return models.Message{}, errors.New("expected a JSON object message")
	}
	msg := models.Message{
		ID:             firstString(r, "id"),
		ConversationID: firstString(r, "conversationId", "conversation_id"),
		Content:        r.Get("content").String(),
		Role:           models.Role(firstString(r, "role")),
		Status:         models.Status(firstString(r, "status")),
	}
	if msg.ID == "" {
		return models.Message{}, errors.New("message has no id")
	}
	switch msg.Role {
	case models.RoleUser, models.RoleAssistant:
	case "":
		msg.Role = models.RoleAssistant
	default:
		return models.Message{}, fmt.Errorf("message %s has unknown role %q", msg.ID, msg.Role)
	}
	switch msg.Status {
	case models.StatusPending, models.StatusSuccess, models.StatusError:
	case "":
		msg.Status = models.StatusPending
	default:
		return models.Message{}, fmt.Errorf("message %s has unknown status %q", msg.ID, msg.Status)
	}
	if ts := firstString(r, "created_at", "createdAt"); ts != "" {
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, ts); err == nil {
				msg.CreatedAt = t
				break
			}
		}
	}
	return msg, nil
}

func decodeMessages(arr gjson.Result) ([]models.Message, error) {
	if !arr.Exists() || arr.Type == gjson.Null {
		return nil, nil
	}
	if !arr.IsArray() {
		return nil, errors.New("expected a JSON array of messages")
	}
	items := arr.Array()
	msgs := make([]models.Message, 0, len(items))
	for _, item := range items {
		m, err := decodeMessage(item)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}
