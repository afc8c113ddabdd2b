package lark

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCreator struct {
	req  *larkim.CreateMessageReq
	resp *larkim.CreateMessageResp
	err  error
}

func (f *fakeCreator) Create(ctx context.Context, req *larkim.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.CreateMessageResp, error) {
	f.req = req
	return f.resp, f.err
}

func okResponse() *larkim.CreateMessageResp {
	id := "om_123"
	return &larkim.CreateMessageResp{Data: &larkim.CreateMessageRespData{MessageId: &id}}
}

func TestSendText_SendsByEmail(t *testing.T) {
	fake := &fakeCreator{resp: okResponse()}
	m := &Messenger{messages: fake, logger: zap.NewNop()}

	err := m.SendText(context.Background(), "bob@example.com", "[Purchasing] Approval needed", "Requisition #4\nTotal: 100.00 usd\n")
	require.NoError(t, err)

	assert.NotNil(t, fake.req)
}

func TestNewPostMessage(t *testing.T) {
	msg, err := newPostMessage("bob@example.com", "[Purchasing] Approval needed", "Requisition #4\nTotal: 100.00 usd\n")
	require.NoError(t, err)

	require.NotNil(t, msg.ReceiveId)
	assert.Equal(t, "bob@example.com", *msg.ReceiveId)
	require.NotNil(t, msg.MsgType)
	assert.Equal(t, "post", *msg.MsgType)

	var content map[string]postBody
	require.NotNil(t, msg.Content)
	require.NoError(t, json.Unmarshal([]byte(*msg.Content), &content))
	post := content["en_us"]
	assert.Equal(t, "[Purchasing] Approval needed", post.Title)
	require.Len(t, post.Content, 2)
	assert.Equal(t, "Requisition #4", post.Content[0][0].Text)
	assert.Equal(t, "Total: 100.00 usd", post.Content[1][0].Text)
}

func TestSendText_Failures(t *testing.T) {
	m := &Messenger{messages: &fakeCreator{resp: okResponse()}, logger: zap.NewNop()}
	assert.Error(t, m.SendText(context.Background(), "", "s", "b"))

	m.messages = &fakeCreator{err: errors.New("timeout")}
	assert.Error(t, m.SendText(context.Background(), "bob@example.com", "s", "b"))

	failed := okResponse()
	failed.Code = 230001
	failed.Msg = "no permission"
	m.messages = &fakeCreator{resp: failed}
	err := m.SendText(context.Background(), "bob@example.com", "s", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "230001")
}
