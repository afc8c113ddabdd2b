package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/requisition-approval/internal/application/dispatcher"
	"github.com/garyjia/requisition-approval/internal/application/port"
	"github.com/garyjia/requisition-approval/internal/domain/entity"
	"github.com/garyjia/requisition-approval/internal/domain/event"
	"github.com/garyjia/requisition-approval/internal/infrastructure/persistence/persistencetest"
	"github.com/garyjia/requisition-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/requisition-approval/internal/infrastructure/persistence/sqlite"
	apperrors "github.com/garyjia/requisition-approval/internal/pkg/errors"
	"github.com/garyjia/requisition-approval/pkg/utils"
)

var testNow = time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)

// recordingSink captures notifications instead of delivering them
type recordingSink struct {
	mu   sync.Mutex
	sent []port.Notification
}

func (s *recordingSink) Send(ctx context.Context, n port.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return nil
}

func (s *recordingSink) byTemplate(template string) []port.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []port.Notification
	for _, n := range s.sent {
		if n.Template == template {
			out = append(out, n)
		}
	}
	return out
}

// recordingPublisher records events before handing them to the dispatcher
type recordingPublisher struct {
	next   dispatcher.Dispatcher
	mu     sync.Mutex
	events []*event.Event
}

func (p *recordingPublisher) Dispatch(ctx context.Context, evt *event.Event) error {
	p.mu.Lock()
	p.events = append(p.events, evt)
	p.mu.Unlock()
	return p.next.Dispatch(ctx, evt)
}

func (p *recordingPublisher) count(t event.Type) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, evt := range p.events {
		if evt.Type == t {
			n++
		}
	}
	return n
}

type harness struct {
	userRepo     port.UserRepository
	groupRepo    port.GroupRepository
	projectRepo  port.ProjectRepository
	addressRepo  port.AddressRepository
	reqRepo      port.RequisitionRepository
	approvalRepo port.ApprovalRepository
	historyRepo  port.HistoryRepository

	approvals    ApprovalService
	requisitions RequisitionService
	chains       ChainService
	users        UserService
	audit        AuditService

	sink      *recordingSink
	publisher *recordingPublisher
	admin     *entity.User
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db := persistencetest.Open(t)
	logger := zap.NewNop()
	logs := utils.NewKeyValueLogger(logger)
	tx := sqlite.NewDB(db.DB, logger)
	clock := WithClock(func() time.Time { return testNow })

	h := &harness{
		userRepo:     repository.NewUserRepository(db.DB, logger),
		groupRepo:    repository.NewGroupRepository(db.DB, logger),
		projectRepo:  repository.NewProjectRepository(db.DB, logger),
		addressRepo:  repository.NewAddressRepository(db.DB, logger),
		reqRepo:      repository.NewRequisitionRepository(db.DB, logger),
		approvalRepo: repository.NewApprovalRepository(db.DB, logger),
		historyRepo:  repository.NewHistoryRepository(db.DB, logger),
		sink:         &recordingSink{},
	}
	chainRepo := repository.NewChainRepository(db.DB, logger)

	d := dispatcher.NewDispatcher()
	h.publisher = &recordingPublisher{next: d}

	h.approvals = NewApprovalService(h.approvalRepo, h.reqRepo, tx, h.publisher, logs, clock)
	h.requisitions = NewRequisitionService(
		h.reqRepo, h.approvalRepo, h.projectRepo, h.addressRepo,
		NewChainMatcher(chainRepo, logs, clock), h.approvals,
		tx, h.publisher, RequisitionConfig{}, logs, clock,
	)
	h.chains = NewChainService(chainRepo, h.groupRepo, h.userRepo, tx, logs)
	h.users = NewUserService(h.userRepo, h.approvals, tx, logs)
	h.audit = NewAuditService(h.historyRepo, h.reqRepo, logs)

	notifications := NewNotificationService(h.reqRepo, h.approvalRepo, h.sink, SiteConfig{
		SiteURL:            "https://purchasing.example.com",
		SiteName:           "Purchasing",
		EmailSubjectPrefix: "[Purchasing] ",
	}, logs)
	notifications.Subscribe(d)
	h.audit.Subscribe(d)

	h.admin = h.staff(t, "admin")
	return h
}

func (h *harness) user(t *testing.T, username string) *entity.User {
	t.Helper()
	u := &entity.User{Username: username, Email: username + "@example.com", IsActive: true}
	require.NoError(t, h.userRepo.Create(context.Background(), u))
	return u
}

func (h *harness) staff(t *testing.T, username string) *entity.User {
	t.Helper()
	u := &entity.User{Username: username, Email: username + "@example.com", IsActive: true, IsStaff: true}
	require.NoError(t, h.userRepo.Create(context.Background(), u))
	return u
}

func (h *harness) group(t *testing.T, name string, members ...*entity.User) *entity.ApprovalGroup {
	t.Helper()
	ids := make([]int64, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	g, err := h.chains.CreateGroup(context.Background(), CreateGroupInput{Name: name, MemberIDs: ids}, h.admin)
	require.NoError(t, err)
	return g
}

func (h *harness) individualChain(t *testing.T, name string, seq int, approver *entity.User, minAmount string) *entity.ApprovalChain {
	t.Helper()
	chain, err := h.chains.CreateChain(context.Background(), CreateChainInput{
		Name:           name,
		ApproverMode:   string(entity.ApproverModeIndividual),
		ApproverID:     &approver.ID,
		SequenceNumber: seq,
		MinAmount:      dec(minAmount),
	}, h.admin)
	require.NoError(t, err)
	return chain
}

func (h *harness) groupChain(t *testing.T, name string, seq int, g *entity.ApprovalGroup, mode entity.GroupMode) *entity.ApprovalChain {
	t.Helper()
	chain, err := h.chains.CreateChain(context.Background(), CreateChainInput{
		Name:            name,
		ApproverMode:    string(entity.ApproverModeGroup),
		ApproverGroupID: &g.ID,
		GroupMode:       string(mode),
		SequenceNumber:  seq,
		MinAmount:       dec("0.01"),
	}, h.admin)
	require.NoError(t, err)
	return chain
}

// draft creates a requisition of service lines, one per category/amount pair
func (h *harness) draft(t *testing.T, owner *entity.User, lines ...CreateLineInput) *entity.Requisition {
	t.Helper()
	if len(lines) == 0 {
		lines = []CreateLineInput{serviceLine(1, "Office", "100.00")}
	}
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.LineTotal)
	}
	req, err := h.requisitions.Create(context.Background(), CreateRequisitionInput{
		Name:        "Quarterly supplies",
		Supplier:    "Acme",
		TotalAmount: total,
		Lines:       lines,
	}, owner)
	require.NoError(t, err)
	return req
}

func (h *harness) trail(t *testing.T, requisitionID int64) []*entity.Approval {
	t.Helper()
	approvals, err := h.approvalRepo.ListByRequisition(context.Background(), requisitionID)
	require.NoError(t, err)
	return approvals
}

func (h *harness) reload(t *testing.T, requisitionID int64) *entity.Requisition {
	t.Helper()
	req, err := h.reqRepo.GetByID(context.Background(), requisitionID)
	require.NoError(t, err)
	require.NotNil(t, req)
	return req
}

func serviceLine(number int, category, total string) CreateLineInput {
	return CreateLineInput{
		LineNumber:  number,
		LineType:    entity.LineTypeService,
		Description: category + " service",
		Category:    category,
		LineTotal:   dec(total),
		PaymentTerm: string(entity.PaymentTermNet30),
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// statuses maps approver username to status; each approver holds one approval
func statuses(approvals []*entity.Approval) map[string]entity.ApprovalStatus {
	out := make(map[string]entity.ApprovalStatus, len(approvals))
	for _, a := range approvals {
		out[a.Approver.Username] = a.Status
	}
	return out
}

func requireAppError(t *testing.T, err error, code, message string) {
	t.Helper()
	require.Error(t, err)
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok, "expected AppError, got %v", err)
	require.Equal(t, code, appErr.Code)
	if message != "" {
		require.Equal(t, message, appErr.Message)
	}
}
