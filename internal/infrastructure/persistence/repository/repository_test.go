package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/requisition-approval/internal/domain/entity"
	"github.com/garyjia/requisition-approval/internal/infrastructure/persistence/persistencetest"
	"github.com/garyjia/requisition-approval/internal/infrastructure/persistence/sqlite"
)

type fixture struct {
	tx           *sqlite.DB
	users        *UserRepository
	groups       *GroupRepository
	projects     *ProjectRepository
	addresses    *AddressRepository
	requisitions *RequisitionRepository
	chains       *ChainRepository
	approvals    *ApprovalRepository
}

func newFixture(t *testing.T) *fixture {
	db := persistencetest.Open(t)
	logger := zap.NewNop()
	return &fixture{
		tx:           sqlite.NewDB(db.DB, logger),
		users:        NewUserRepository(db.DB, logger).(*UserRepository),
		groups:       NewGroupRepository(db.DB, logger).(*GroupRepository),
		projects:     NewProjectRepository(db.DB, logger).(*ProjectRepository),
		addresses:    NewAddressRepository(db.DB, logger).(*AddressRepository),
		requisitions: NewRequisitionRepository(db.DB, logger).(*RequisitionRepository),
		chains:       NewChainRepository(db.DB, logger).(*ChainRepository),
		approvals:    NewApprovalRepository(db.DB, logger).(*ApprovalRepository),
	}
}

func (f *fixture) user(t *testing.T, username string) *entity.User {
	u := &entity.User{Username: username, Email: username + "@example.com", IsActive: true}
	require.NoError(t, f.users.Create(context.Background(), u))
	return u
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestUserRepository(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := f.user(t, "alice")
	assert.NotZero(t, alice.ID)

	got, err := f.users.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, alice.ID, got.ID)
	assert.True(t, got.IsActive)

	require.NoError(t, f.users.SetActive(ctx, alice.ID, false))
	got, err = f.users.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	missing, err := f.users.GetByUsername(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.Error(t, f.users.SetActive(ctx, 999, true))
}

func TestRequisitionRepository_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	owner := f.user(t, "alice")
	project := &entity.Project{Name: "Lab", Code: "LAB-1"}
	require.NoError(t, f.projects.Create(ctx, project))
	addr := &entity.Address{Code: "HQ", Name: "Head office", City: "Austin", Country: "US"}
	require.NoError(t, f.addresses.Create(ctx, addr))

	qty := 3
	price := dec("19.99")
	needBy := time.Date(2031, 3, 1, 0, 0, 0, 0, time.UTC)
	req := &entity.Requisition{
		Name:        "Cables",
		OwnerID:     owner.ID,
		ProjectID:   &project.ID,
		Supplier:    "Acme",
		TotalAmount: dec("109.97"),
		Lines: []*entity.RequisitionLine{
			{
				LineNumber: 1, LineType: entity.LineTypeGoods, Description: "HDMI",
				Quantity: &qty, UnitOfMeasure: entity.UOMEach, UnitPrice: &price,
				LineTotal: dec("59.97"), PaymentTerm: entity.PaymentTermNet30,
				NeedBy: &needBy, ShipToID: &addr.ID,
			},
			{
				LineNumber: 2, LineType: entity.LineTypeService, Description: "Install",
				LineTotal: dec("50.00"), PaymentTerm: entity.PaymentTermNet45,
			},
		},
	}
	require.NoError(t, f.requisitions.Create(ctx, req))

	got, err := f.requisitions.GetByID(ctx, req.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entity.RequisitionDraft, got.Status)
	assert.Equal(t, entity.CurrencyUSD, got.Currency)
	assert.True(t, got.TotalAmount.Equal(dec("109.97")))
	assert.Equal(t, "alice", got.Owner.Username)
	require.NotNil(t, got.Project)
	assert.Equal(t, "LAB-1", got.Project.Code)

	require.Len(t, got.Lines, 2)
	first := got.Lines[0]
	assert.Equal(t, 3, *first.Quantity)
	assert.True(t, first.UnitPrice.Equal(price))
	assert.Equal(t, "2031-03-01", first.NeedBy.Format(entity.DateLayout))
	require.NotNil(t, first.ShipTo)
	assert.Equal(t, "Austin", first.ShipTo.City)
	assert.Nil(t, got.Lines[1].Quantity)
	assert.Nil(t, got.Lines[1].UnitPrice)
	assert.Nil(t, got.Lines[1].ShipTo)
}

func TestRequisitionRepository_MarkApprovedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	owner := f.user(t, "alice")
	req := &entity.Requisition{
		Name: "Desk", OwnerID: owner.ID, Supplier: "Acme", TotalAmount: dec("10.00"),
		Status: entity.RequisitionPendingApproval,
	}
	require.NoError(t, f.requisitions.Create(ctx, req))

	ok, err := f.requisitions.MarkApproved(ctx, req.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.requisitions.MarkApproved(ctx, req.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, ok, "second caller loses")

	got, err := f.requisitions.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.RequisitionApproved, got.Status)
	assert.NotNil(t, got.ApprovedAt)
}

func TestRequisitionRepository_SoftDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	owner := f.user(t, "alice")
	req := &entity.Requisition{
		Name: "Desk", OwnerID: owner.ID, Supplier: "Acme", TotalAmount: dec("10.00"),
		Lines: []*entity.RequisitionLine{{
			LineNumber: 1, LineType: entity.LineTypeService, Description: "Assembly",
			LineTotal: dec("10.00"), PaymentTerm: entity.PaymentTermNet30,
		}},
	}
	require.NoError(t, f.requisitions.Create(ctx, req))
	require.NoError(t, f.requisitions.SoftDelete(ctx, req.ID, owner.ID))

	got, err := f.requisitions.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	var live int
	require.NoError(t, f.requisitions.db.QueryRow(
		`SELECT COUNT(*) FROM requisition_lines WHERE requisition_id = ? AND deleted = 0`, req.ID).Scan(&live))
	assert.Zero(t, live)

	assert.Error(t, f.requisitions.SoftDelete(ctx, req.ID, owner.ID))
}

func TestChainRepository_FindCandidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	approver := f.user(t, "bob")
	carol := f.user(t, "carol")
	dave := f.user(t, "dave")
	group := &entity.ApprovalGroup{Name: "Finance", Members: []*entity.User{dave, carol}}
	require.NoError(t, f.groups.Create(ctx, group))

	ceiling := dec("500.00")
	from := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2030, 12, 31, 0, 0, 0, 0, time.UTC)

	chains := []*entity.ApprovalChain{
		{
			Name: "Manager", ApproverMode: entity.ApproverModeIndividual, ApproverID: &approver.ID,
			GroupMode: entity.GroupModeAll, SequenceNumber: 2, MinAmount: dec("0.01"), Active: true,
			HeaderRuleLogic: entity.OperatorAnd, LineRuleLogic: entity.OperatorAnd, CrossRuleLogic: entity.OperatorOr,
			HeaderRules: []*entity.HeaderRule{{Field: "supplier", Lookup: "iexact", Value: []string{"acme"}}},
			LineRules:   []*entity.LineRule{{Field: "category", Lookup: "is_null", Value: []string{}, MatchMode: entity.MatchModeAny}},
		},
		{
			Name: "Finance", ApproverMode: entity.ApproverModeGroup, ApproverGroupID: &group.ID,
			GroupMode: entity.GroupModeAny, SequenceNumber: 1, MinAmount: dec("100.00"), MaxAmount: &ceiling,
			Active: true, ValidFrom: &from, ValidTo: &to,
			HeaderRuleLogic: entity.OperatorAnd, LineRuleLogic: entity.OperatorAnd, CrossRuleLogic: entity.OperatorAnd,
		},
		{
			Name: "Dormant", ApproverMode: entity.ApproverModeIndividual, ApproverID: &approver.ID,
			GroupMode: entity.GroupModeAll, SequenceNumber: 1, MinAmount: dec("0.01"), Active: false,
			HeaderRuleLogic: entity.OperatorAnd, LineRuleLogic: entity.OperatorAnd, CrossRuleLogic: entity.OperatorAnd,
		},
	}
	for _, c := range chains {
		require.NoError(t, f.chains.Create(ctx, c))
	}

	day := time.Date(2030, 12, 31, 0, 0, 0, 0, time.UTC)
	found, err := f.chains.FindCandidates(ctx, 50000, day)
	require.NoError(t, err)
	require.Len(t, found, 2, "max amount and valid_to are inclusive")
	assert.Equal(t, "Finance", found[0].Name)
	assert.Equal(t, "Manager", found[1].Name)

	finance := found[0]
	require.NotNil(t, finance.ApproverGroup)
	require.Len(t, finance.ApproverGroup.Members, 2)
	assert.Equal(t, "carol", finance.ApproverGroup.Members[0].Username)
	assert.True(t, finance.MaxAmount.Equal(ceiling))

	manager := found[1]
	require.NotNil(t, manager.Approver)
	assert.Equal(t, "bob", manager.Approver.Username)
	require.Len(t, manager.HeaderRules, 1)
	assert.Equal(t, []string{"acme"}, manager.HeaderRules[0].Value)
	require.Len(t, manager.LineRules, 1)
	assert.Equal(t, entity.MatchModeAny, manager.LineRules[0].MatchMode)
	assert.Empty(t, manager.LineRules[0].Value)

	found, err = f.chains.FindCandidates(ctx, 50001, day)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Manager", found[0].Name)

	found, err = f.chains.FindCandidates(ctx, 50000, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, found, 1)

	require.NoError(t, f.chains.SoftDelete(ctx, manager.ID))
	gone, err := f.chains.GetByID(ctx, manager.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestApprovalRepository_Lifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	owner := f.user(t, "alice")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")
	req := &entity.Requisition{
		Name: "Desk", OwnerID: owner.ID, Supplier: "Acme", TotalAmount: dec("10.00"),
		Status: entity.RequisitionPendingApproval,
	}
	require.NoError(t, f.requisitions.Create(ctx, req))

	md := &entity.TriggerMetadata{
		Version:        entity.TriggerMetadataVersion,
		ChainID:        7,
		Name:           "Finance",
		ApproverMode:   entity.ApproverModeGroup,
		ApproverGroup:  &entity.GroupSnapshot{ID: 1, Name: "Finance", GroupMode: entity.GroupModeAny},
		SequenceNumber: 1,
		MinAmount:      "0.01",
	}
	approvals := []*entity.Approval{
		{RequisitionID: req.ID, ApproverID: bob.ID, SequenceNumber: 1, TriggerMetadata: md},
		{RequisitionID: req.ID, ApproverID: carol.ID, SequenceNumber: 1, TriggerMetadata: md},
		{RequisitionID: req.ID, ApproverID: carol.ID, SequenceNumber: 2},
	}
	require.NoError(t, f.approvals.CreateBatch(ctx, approvals))

	seq, err := f.approvals.MinPendingSequence(ctx, req.ID)
	require.NoError(t, err)
	require.NotNil(t, seq)
	assert.Equal(t, 1, *seq)

	unnotified, err := f.approvals.ListUnnotifiedAtSequence(ctx, req.ID, 1)
	require.NoError(t, err)
	require.Len(t, unnotified, 2)
	require.NoError(t, f.approvals.MarkNotified(ctx, []int64{unnotified[0].ID, unnotified[1].ID}, time.Now()))
	unnotified, err = f.approvals.ListUnnotifiedAtSequence(ctx, req.ID, 1)
	require.NoError(t, err)
	assert.Empty(t, unnotified)

	got, err := f.approvals.GetByID(ctx, approvals[0].ID)
	require.NoError(t, err)
	assert.True(t, got.IsAnyGroupMember())
	assert.Equal(t, "bob", got.Approver.Username)
	assert.NotNil(t, got.NotifiedAt)

	now := time.Now()
	got.Status = entity.ApprovalApproved
	got.ApprovedAt = &now
	got.UpdatedByID = &bob.ID
	require.NoError(t, f.approvals.Update(ctx, got))

	n, err := f.approvals.CancelPendingAtSequence(ctx, req.ID, 1, got.ID, &bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	seq, err = f.approvals.MinPendingSequence(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, *seq)

	mine, err := f.approvals.ListByApprover(ctx, carol.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1, "cancelled approvals are hidden")
	assert.Equal(t, 2, mine[0].SequenceNumber)

	touched, err := f.approvals.CancelPendingByApprover(ctx, carol.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{req.ID}, touched)

	seq, err = f.approvals.MinPendingSequence(ctx, req.ID)
	require.NoError(t, err)
	assert.Nil(t, seq)

	all, err := f.approvals.ListByRequisition(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, entity.ApprovalApproved, all[0].Status)
	assert.Equal(t, entity.ApprovalCancelled, all[1].Status)
	assert.Equal(t, entity.ApprovalCancelled, all[2].Status)
}

func TestApprovalRepository_SkipPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	owner := f.user(t, "alice")
	bob := f.user(t, "bob")
	req := &entity.Requisition{Name: "Desk", OwnerID: owner.ID, Supplier: "Acme", TotalAmount: dec("10.00")}
	require.NoError(t, f.requisitions.Create(ctx, req))
	require.NoError(t, f.approvals.CreateBatch(ctx, []*entity.Approval{
		{RequisitionID: req.ID, ApproverID: bob.ID, SequenceNumber: 1},
		{RequisitionID: req.ID, ApproverID: bob.ID, SequenceNumber: 3},
	}))

	n, err := f.approvals.SkipPendingByRequisition(ctx, req.ID, time.Now(), &owner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	all, err := f.approvals.ListByRequisition(ctx, req.ID)
	require.NoError(t, err)
	for _, a := range all {
		assert.Equal(t, entity.ApprovalSkipped, a.Status)
		assert.NotNil(t, a.SkippedAt)
	}
}

func TestTransaction_RollbackDiscardsWritesAndHooks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	boom := errors.New("boom")
	hookRan := false

	err := f.tx.WithTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, f.users.Create(ctx, &entity.User{Username: "ghost", IsActive: true}))
		f.tx.AfterCommit(ctx, func(context.Context) { hookRan = true })
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, hookRan)

	got, err := f.users.GetByUsername(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, got)

	err = f.tx.WithTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, f.users.Create(ctx, &entity.User{Username: "kept", IsActive: true}))
		f.tx.AfterCommit(ctx, func(ctx context.Context) {
			hookRan = true
			assert.False(t, sqlite.InTransaction(ctx))
		})
		return nil
	})
	require.NoError(t, err)
	assert.True(t, hookRan)
}
