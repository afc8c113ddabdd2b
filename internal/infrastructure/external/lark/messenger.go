package lark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"

	"github.com/garyjia/requisition-approval/internal/application/port"
)

// Messenger sends rich-text "post" messages addressed by email
type Messenger struct {
	messages messageCreator
	logger   *zap.Logger
}

// NewMessenger creates a Messenger on top of an SDK client
func NewMessenger(client *lark.Client, logger *zap.Logger) *Messenger {
	return &Messenger{messages: client.Im.Message, logger: logger}
}

type postElement struct {
	Tag  string `json:"tag"`
	Text string `json:"text"`
}

type postBody struct {
	Title   string          `json:"title"`
	Content [][]postElement `json:"content"`
}

// SendText posts subject and body to the Lark user registered under email.
// Each body line becomes one paragraph.
func (m *Messenger) SendText(ctx context.Context, email, subject, body string) error {
	if email == "" {
		return errors.New("recipient email is empty")
	}

	msg, err := newPostMessage(email, subject, body)
	if err != nil {
		return err
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType("email").
		Body(msg).
		Build()

	resp, err := m.messages.Create(ctx, req)
	if err != nil {
		m.logger.Error("Failed to send message", zap.String("email", email), zap.Error(err))
		return fmt.Errorf("send message: %w", err)
	}
	if !resp.Success() {
		m.logger.Error("Lark API returned failure",
			zap.String("email", email),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return fmt.Errorf("lark api error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	messageID := ""
	if resp.Data != nil && resp.Data.MessageId != nil {
		messageID = *resp.Data.MessageId
	}
	m.logger.Info("Message sent", zap.String("message_id", messageID), zap.String("email", email))
	return nil
}

// newPostMessage builds the request body; the SDK request keeps it unexported
func newPostMessage(email, subject, body string) (*larkim.CreateMessageReqBody, error) {
	content, err := postContent(subject, body)
	if err != nil {
		return nil, err
	}
	return larkim.NewCreateMessageReqBodyBuilder().
		ReceiveId(email).
		MsgType("post").
		Content(content).
		Build(), nil
}

func postContent(subject, body string) (string, error) {
	post := postBody{Title: subject}
	for _, line := range strings.Split(strings.TrimRight(body, "\n"), "\n") {
		post.Content = append(post.Content, []postElement{{Tag: "text", Text: line}})
	}
	data, err := json.Marshal(map[string]postBody{"en_us": post})
	if err != nil {
		return "", fmt.Errorf("marshal post content: %w", err)
	}
	return string(data), nil
}

var _ port.MessageSender = (*Messenger)(nil)
