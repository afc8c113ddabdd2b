package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/requisition-approval/internal/application/port"
	"github.com/garyjia/requisition-approval/internal/domain/entity"
	"github.com/garyjia/requisition-approval/internal/infrastructure/worker"
)

var submittedAt = time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)

func baseContext() map[string]interface{} {
	return map[string]interface{}{
		"requisition_id":       int64(42),
		"requisition_name":     "Laptops",
		"owner":                "alice",
		"supplier":             "Acme",
		"total_amount":         "2400.00",
		"currency":             "usd",
		"submitted_at":         &submittedAt,
		"site_url":             "https://purchasing.example.com",
		"site_name":            "Purchasing",
		"email_subject_prefix": "[Purchasing] ",
	}
}

func TestRender_ApprovalRequest(t *testing.T) {
	r, err := NewRenderer(nil)
	require.NoError(t, err)

	data := baseContext()
	data["approver"] = "bob"
	data["approval_id"] = int64(7)
	data["project_name"] = "Office refresh"

	msg, err := r.Render(port.Notification{Template: port.TemplateApprovalRequest, Context: data})
	require.NoError(t, err)
	assert.Equal(t, "[Purchasing] Approval requested: Laptops (#42)", msg.Subject)
	assert.Contains(t, msg.Body, "Hello bob,")
	assert.Contains(t, msg.Body, "Total: 2400.00 USD")
	assert.Contains(t, msg.Body, "Project: Office refresh")
	assert.Contains(t, msg.Body, "Submitted: 2026-10-18 09:30 UTC")
	assert.Contains(t, msg.Body, "https://purchasing.example.com/approvals/7")
	assert.NotContains(t, msg.Body, "Justification")
}

func TestRender_Rejected(t *testing.T) {
	r, err := NewRenderer(nil)
	require.NoError(t, err)

	data := baseContext()
	data["rejected_by"] = "bob"
	data["rejected_at"] = &submittedAt
	data["rejected_comment"] = "Over budget"

	msg, err := r.Render(port.Notification{Template: port.TemplateRejected, Context: data})
	require.NoError(t, err)
	assert.Equal(t, "[Purchasing] Requisition rejected: Laptops (#42)", msg.Subject)
	assert.Contains(t, msg.Body, "was rejected by bob on 2026-10-18 09:30 UTC.")
	assert.Contains(t, msg.Body, "Comment:\nOver budget")
}

func TestRender_FullyApproved(t *testing.T) {
	loc := time.FixedZone("CST", 8*3600)
	r, err := NewRenderer(loc)
	require.NoError(t, err)

	data := baseContext()
	data["approved_at"] = &submittedAt

	msg, err := r.Render(port.Notification{Template: port.TemplateFullyApproved, Context: data})
	require.NoError(t, err)
	assert.Contains(t, msg.Body, "final approval on 2026-10-18 17:30 CST.")
}

func TestRender_UnknownTemplate(t *testing.T) {
	r, err := NewRenderer(nil)
	require.NoError(t, err)
	_, err = r.Render(port.Notification{Template: "welcome"})
	assert.Error(t, err)
}

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeSender) SendText(ctx context.Context, email, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, email+": "+subject)
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func approvedNotification(recipient *entity.User) port.Notification {
	data := baseContext()
	data["approved_at"] = &submittedAt
	return port.Notification{Template: port.TemplateFullyApproved, Recipient: recipient, Context: data}
}

func TestChannelSink(t *testing.T) {
	r, err := NewRenderer(nil)
	require.NoError(t, err)
	sender := &fakeSender{}
	sink := NewChannelSink(r, sender, zap.NewNop())

	alice := &entity.User{ID: 1, Username: "alice", Email: "alice@example.com"}
	require.NoError(t, sink.Send(context.Background(), approvedNotification(alice)))
	assert.Equal(t, []string{"alice@example.com: [Purchasing] Requisition approved: Laptops (#42)"}, sender.sent)

	require.NoError(t, sink.Send(context.Background(), approvedNotification(&entity.User{Username: "noemail"})))
	assert.Equal(t, 1, sender.count())

	sender.err = errors.New("rate limited")
	assert.Error(t, sink.Send(context.Background(), approvedNotification(alice)))
}

func TestAsyncSink_DeliversUntilStopped(t *testing.T) {
	r, err := NewRenderer(nil)
	require.NoError(t, err)
	sender := &fakeSender{}
	async := NewAsyncSink(NewChannelSink(r, sender, zap.NewNop()), worker.PoolConfig{Size: 2}, zap.NewNop())
	alice := &entity.User{ID: 1, Username: "alice", Email: "alice@example.com"}

	assert.ErrorIs(t, async.Send(context.Background(), approvedNotification(alice)), ErrNotRunning)

	require.NoError(t, async.Start(context.Background()))
	for i := 0; i < 5; i++ {
		require.NoError(t, async.Send(context.Background(), approvedNotification(alice)))
	}
	require.NoError(t, async.Stop())
	assert.Equal(t, 5, sender.count())

	assert.ErrorIs(t, async.Send(context.Background(), approvedNotification(alice)), ErrNotRunning)
}

func TestAsyncSink_OutlivesRequestContext(t *testing.T) {
	r, err := NewRenderer(nil)
	require.NoError(t, err)
	sender := &fakeSender{}
	async := NewAsyncSink(NewChannelSink(r, sender, zap.NewNop()), worker.PoolConfig{Size: 1}, zap.NewNop())
	require.NoError(t, async.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, async.Send(ctx, approvedNotification(&entity.User{ID: 1, Email: "alice@example.com"})))
	cancel()

	require.NoError(t, async.Stop())
	assert.Equal(t, 1, sender.count())
}
