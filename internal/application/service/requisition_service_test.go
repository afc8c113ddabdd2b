package service

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/requisition-approval/internal/application/port"
	"github.com/garyjia/requisition-approval/internal/domain/entity"
	"github.com/garyjia/requisition-approval/internal/domain/event"
	apperrors "github.com/garyjia/requisition-approval/internal/pkg/errors"
)

func TestSubmit_SingleIndividualChain(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	owner := h.user(t, "alice")
	bob := h.user(t, "bob")
	h.individualChain(t, "Manager", 1, bob, "0.01")

	req := h.draft(t, owner)
	assert.True(t, req.TotalAmount.Equal(dec("100.00")))

	submitted, err := h.requisitions.Submit(ctx, req.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, entity.RequisitionPendingApproval, submitted.Status)
	require.NotNil(t, submitted.SubmittedAt)
	assert.True(t, submitted.SubmittedAt.Equal(testNow))

	approvals := h.trail(t, req.ID)
	require.Len(t, approvals, 1)
	a := approvals[0]
	assert.Equal(t, bob.ID, a.ApproverID)
	assert.Equal(t, 1, a.SequenceNumber)
	assert.Equal(t, entity.ApprovalPending, a.Status)
	assert.True(t, a.SystemGenerated)
	assert.NotNil(t, a.NotifiedAt)
	require.NotNil(t, a.TriggerMetadata)
	assert.Equal(t, "Manager", a.TriggerMetadata.Name)
	assert.Equal(t, "bob", a.TriggerMetadata.Approver.Username)

	requests := h.sink.byTemplate(port.TemplateApprovalRequest)
	require.Len(t, requests, 1)
	assert.Equal(t, bob.ID, requests[0].Recipient.ID)
	assert.Equal(t, a.ID, requests[0].Context["approval_id"])
	assert.Equal(t, "100.00", requests[0].Context["total_amount"])
	assert.Equal(t, "https://purchasing.example.com", requests[0].Context["site_url"])

	assert.Equal(t, 1, h.publisher.count(event.TypeRequisitionSubmitted))
	assert.Equal(t, 1, h.publisher.count(event.TypeApprovalRequested))

	history, err := h.audit.History(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, string(event.TypeRequisitionSubmitted), history[0].EventType)
	require.NotNil(t, history[0].ActorID)
	assert.Equal(t, owner.ID, *history[0].ActorID)
}

func TestSubmit_NoChainMatched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	owner := h.user(t, "alice")
	bob := h.user(t, "bob")
	h.individualChain(t, "Large purchases", 1, bob, "500.00")

	req := h.draft(t, owner)
	_, err := h.requisitions.Submit(ctx, req.ID, owner)
	requireAppError(t, err, apperrors.CodeMatchFailed,
		"This requisition cannot be submitted because no approval chains matched.")

	got := h.reload(t, req.ID)
	assert.Equal(t, entity.RequisitionDraft, got.Status)
	assert.Nil(t, got.SubmittedAt)
	assert.Empty(t, h.trail(t, req.ID))
	assert.Zero(t, h.publisher.count(event.TypeRequisitionSubmitted))
}

func TestSubmit_LineRuleAllModeNeedsEveryLine(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	owner := h.user(t, "alice")
	bob := h.user(t, "bob")
	carol := h.user(t, "carol")

	it := h.individualChain(t, "IT review", 1, bob, "0.01")
	_, err := h.chains.AddLineRule(ctx, it.ID, RuleInput{
		Field:     "category",
		Lookup:    "exact",
		Value:     []string{"IT"},
		MatchMode: "all",
	}, h.admin)
	require.NoError(t, err)
	h.individualChain(t, "Default", 2, carol, "0.01")

	mixed := h.draft(t, owner, serviceLine(1, "IT", "60.00"), serviceLine(2, "Food", "40.00"))
	_, err = h.requisitions.Submit(ctx, mixed.ID, owner)
	require.NoError(t, err)
	approvals := h.trail(t, mixed.ID)
	require.Len(t, approvals, 1)
	assert.Equal(t, carol.ID, approvals[0].ApproverID)

	allIT := h.draft(t, owner, serviceLine(1, "IT", "60.00"), serviceLine(2, "IT", "40.00"))
	_, err = h.requisitions.Submit(ctx, allIT.ID, owner)
	require.NoError(t, err)
	approvals = h.trail(t, allIT.ID)
	require.Len(t, approvals, 2)
	assert.Equal(t, bob.ID, approvals[0].ApproverID)
	require.Len(t, approvals[0].TriggerMetadata.LineRules, 1)
	assert.Equal(t, entity.MatchModeAll, approvals[0].TriggerMetadata.LineRules[0].MatchMode)
}

func TestSubmit_ApprovalCountMatchesChains(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	owner := h.user(t, "alice")
	bob := h.user(t, "bob")
	carol := h.user(t, "carol")
	dave := h.user(t, "dave")
	erin := h.user(t, "erin")
	frank := h.user(t, "frank")

	finance := h.group(t, "Finance", dave, erin, frank)
	require.NoError(t, h.userRepo.SetActive(ctx, frank.ID, false))

	h.individualChain(t, "Manager", 1, bob, "0.01")
	h.groupChain(t, "Finance review", 2, finance, entity.GroupModeAll)
	h.individualChain(t, "Director", 3, carol, "0.01")

	req := h.draft(t, owner)
	_, err := h.requisitions.Submit(ctx, req.ID, owner)
	require.NoError(t, err)

	approvals := h.trail(t, req.ID)
	require.Len(t, approvals, 4, "two individual approvers plus the two active group members")
	bySeq := map[int][]string{}
	for _, a := range approvals {
		assert.Equal(t, entity.ApprovalPending, a.Status)
		bySeq[a.SequenceNumber] = append(bySeq[a.SequenceNumber], a.Approver.Username)
	}
	assert.Equal(t, []string{"bob"}, bySeq[1])
	assert.ElementsMatch(t, []string{"dave", "erin"}, bySeq[2])
	assert.Equal(t, []string{"carol"}, bySeq[3])

	assert.Len(t, h.sink.byTemplate(port.TemplateApprovalRequest), 1, "only the first sequence is notified")
}

func TestSubmit_UnusableApprovers(t *testing.T) {
	t.Run("inactive individual approver", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()

		owner := h.user(t, "alice")
		bob := h.user(t, "bob")
		h.individualChain(t, "Manager", 1, bob, "0.01")
		require.NoError(t, h.userRepo.SetActive(ctx, bob.ID, false))

		req := h.draft(t, owner)
		_, err := h.requisitions.Submit(ctx, req.ID, owner)
		requireAppError(t, err, apperrors.CodeMatchFailed,
			"This requisition cannot be submitted because the approval chain Manager contains an inactive approver.")
		assert.Equal(t, entity.RequisitionDraft, h.reload(t, req.ID).Status)
	})

	t.Run("group without active members", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()

		owner := h.user(t, "alice")
		dave := h.user(t, "dave")
		g := h.group(t, "Finance", dave)
		h.groupChain(t, "Finance review", 1, g, entity.GroupModeAny)
		require.NoError(t, h.userRepo.SetActive(ctx, dave.ID, false))

		req := h.draft(t, owner)
		_, err := h.requisitions.Submit(ctx, req.ID, owner)
		requireAppError(t, err, apperrors.CodeMatchFailed,
			"This requisition cannot be submitted because the approval group Finance contains no active approvers.")
		assert.Empty(t, h.trail(t, req.ID))
	})
}

func TestSubmit_Guards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	owner := h.user(t, "alice")
	bob := h.user(t, "bob")
	h.individualChain(t, "Manager", 1, bob, "0.01")
	req := h.draft(t, owner)

	_, err := h.requisitions.Submit(ctx, req.ID, bob)
	requireAppError(t, err, apperrors.CodeForbidden, "You must be the requisition owner to submit.")

	_, err = h.requisitions.Submit(ctx, 9999, owner)
	requireAppError(t, err, apperrors.CodeRequisitionNotFound, "")

	_, err = h.requisitions.Submit(ctx, req.ID, owner)
	require.NoError(t, err)
	_, err = h.requisitions.Submit(ctx, req.ID, owner)
	requireAppError(t, err, apperrors.CodeInvalidState, "This requisition has already been submitted.")

	approvals := h.trail(t, req.ID)
	_, err = h.approvals.Approve(ctx, approvals[0].ID, bob, "")
	require.NoError(t, err)
	require.Equal(t, entity.RequisitionApproved, h.reload(t, req.ID).Status)

	_, err = h.requisitions.Submit(ctx, req.ID, owner)
	requireAppError(t, err, apperrors.CodeInvalidState, "This requisition must be in draft or rejected status to submit.")
	_, err = h.requisitions.Withdraw(ctx, req.ID, owner)
	requireAppError(t, err, apperrors.CodeInvalidState, "This requisition must be in pending approval status to withdraw.")
}

func TestWithdraw_CancelsAndResubmitRegenerates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	owner := h.user(t, "alice")
	bob := h.user(t, "bob")
	carol := h.user(t, "carol")
	h.individualChain(t, "Manager", 1, bob, "0.01")
	h.individualChain(t, "Director", 2, carol, "0.01")

	req := h.draft(t, owner)
	_, err := h.requisitions.Submit(ctx, req.ID, owner)
	require.NoError(t, err)

	_, err = h.requisitions.Withdraw(ctx, req.ID, bob)
	requireAppError(t, err, apperrors.CodeForbidden, "You must be the requisition owner to withdraw.")

	withdrawn, err := h.requisitions.Withdraw(ctx, req.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, entity.RequisitionDraft, withdrawn.Status)
	assert.Nil(t, withdrawn.SubmittedAt)

	first := h.trail(t, req.ID)
	require.Len(t, first, 2)
	for _, a := range first {
		assert.Equal(t, entity.ApprovalCancelled, a.Status)
		require.NotNil(t, a.UpdatedByID)
		assert.Equal(t, owner.ID, *a.UpdatedByID)
	}
	assert.Equal(t, 1, h.publisher.count(event.TypeRequisitionWithdrawn))

	_, err = h.requisitions.Withdraw(ctx, req.ID, owner)
	requireAppError(t, err, apperrors.CodeInvalidState, "This requisition has already been withdrawn.")

	_, err = h.requisitions.Submit(ctx, req.ID, owner)
	require.NoError(t, err)

	all := h.trail(t, req.ID)
	require.Len(t, all, 4)
	var pending []*entity.Approval
	for _, a := range all {
		if a.Status == entity.ApprovalPending {
			pending = append(pending, a)
		}
	}
	require.Len(t, pending, 2)
	for _, a := range pending {
		assert.NotEqual(t, first[0].ID, a.ID)
		assert.NotEqual(t, first[1].ID, a.ID)
	}
	assert.Len(t, h.sink.byTemplate(port.TemplateApprovalRequest), 2, "bob is asked again on resubmission")
}

func TestCreate_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := h.user(t, "alice")

	qty := 2
	price := dec("12.50")
	ten := dec("10.00")
	past := "2026-10-17"
	valid := func() CreateRequisitionInput {
		return CreateRequisitionInput{
			Name:        "Monitors",
			Supplier:    "Acme",
			TotalAmount: dec("25.00"),
			Lines: []CreateLineInput{{
				LineNumber:    1,
				LineType:      entity.LineTypeGoods,
				Description:   "Monitor arm",
				Category:      "IT",
				Quantity:      &qty,
				UnitOfMeasure: string(entity.UOMEach),
				UnitPrice:     &price,
				LineTotal:     dec("25.00"),
				PaymentTerm:   string(entity.PaymentTermNet30),
			}},
		}
	}

	req, err := h.requisitions.Create(ctx, valid(), owner)
	require.NoError(t, err)
	assert.Equal(t, entity.RequisitionDraft, req.Status)
	assert.Equal(t, owner.ID, req.OwnerID)
	assert.Equal(t, entity.CurrencyUSD, req.Currency)
	require.Len(t, req.Lines, 1)
	assert.Equal(t, 2, *req.Lines[0].Quantity)

	tests := []struct {
		name    string
		mutate  func(in *CreateRequisitionInput)
		field   string
		message string
	}{
		{
			name:    "no lines",
			mutate:  func(in *CreateRequisitionInput) { in.Lines = nil },
			field:   "lines",
			message: "Ensure at least one line is provided.",
		},
		{
			name:    "total mismatch",
			mutate:  func(in *CreateRequisitionInput) { in.TotalAmount = dec("30.00") },
			field:   "total_amount",
			message: "This value does not align with line total(s).",
		},
		{
			name: "duplicate line numbers",
			mutate: func(in *CreateRequisitionInput) {
				in.Lines = append(in.Lines, serviceLine(1, "IT", "5.00"))
				in.TotalAmount = dec("30.00")
			},
			field:   "lines",
			message: "Line numbers must contain unique values.",
		},
		{
			name:    "unknown line type",
			mutate:  func(in *CreateRequisitionInput) { in.Lines[0].LineType = "rental" },
			field:   "lines[0].line_type",
			message: "This is not a valid line type: rental",
		},
		{
			name:    "goods without quantity",
			mutate:  func(in *CreateRequisitionInput) { in.Lines[0].Quantity = nil },
			field:   "lines[0].line_type",
			message: "Line 1 marked as goods; quantity, unit price, and unit of measure fields must be included and set.",
		},
		{
			name: "service with unit price",
			mutate: func(in *CreateRequisitionInput) {
				in.Lines[0].LineType = entity.LineTypeService
			},
			field:   "lines[0].line_type",
			message: "Line 1 marked as service; quantity, unit price, and unit of measure fields must be unset or excluded.",
		},
		{
			name:    "goods total mismatch",
			mutate:  func(in *CreateRequisitionInput) { in.Lines[0].UnitPrice = &ten },
			field:   "lines[0].line_total",
			message: "This value does not align with unit price and quantity.",
		},
		{
			name:    "unknown unit of measure",
			mutate:  func(in *CreateRequisitionInput) { in.Lines[0].UnitOfMeasure = "pallet" },
			field:   "lines[0].uom",
			message: "This is not a valid unit of measure: pallet",
		},
		{
			name:    "unknown payment term",
			mutate:  func(in *CreateRequisitionInput) { in.Lines[0].PaymentTerm = "net_10" },
			field:   "lines[0].payment_term",
			message: "This is not a valid payment term: net_10",
		},
		{
			name:    "need by in the past",
			mutate:  func(in *CreateRequisitionInput) { in.Lines[0].NeedBy = &past },
			field:   "lines[0].need_by",
			message: "This value must be a future date: 2026-10-17",
		},
		{
			name:    "unsupported currency",
			mutate:  func(in *CreateRequisitionInput) { in.Currency = "eur" },
			field:   "currency",
			message: "This is not a valid currency: eur",
		},
		{
			name: "too many decimals",
			mutate: func(in *CreateRequisitionInput) {
				in.TotalAmount = dec("25.001")
			},
			field:   "total_amount",
			message: "Ensure that there are no more than 2 decimal places.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid()
			tt.mutate(&in)
			_, err := h.requisitions.Create(ctx, in, owner)
			requireAppError(t, err, apperrors.CodeValidationFailed, "Requisition is invalid.")
			appErr, _ := apperrors.IsAppError(err)
			assert.Contains(t, appErr.FieldErrors, apperrors.FieldError{Field: tt.field, Message: tt.message})
		})
	}
}

func TestCreate_LineLimit(t *testing.T) {
	h := newHarness(t)
	owner := h.user(t, "alice")

	lines := make([]CreateLineInput, DefaultMaxRequisitionLines+1)
	total := decimal.Zero
	for i := range lines {
		lines[i] = serviceLine(i+1, "Office", "1.00")
		total = total.Add(lines[i].LineTotal)
	}

	_, err := h.requisitions.Create(context.Background(), CreateRequisitionInput{
		Name:        "Bulk",
		Supplier:    "Acme",
		TotalAmount: total,
		Lines:       lines,
	}, owner)
	requireAppError(t, err, apperrors.CodeValidationFailed, "")
	appErr, _ := apperrors.IsAppError(err)
	assert.Contains(t, appErr.FieldErrors, apperrors.FieldError{
		Field:   "lines",
		Message: "Ensure only 250 or less lines are provided.",
	})
}

func TestDelete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	owner := h.user(t, "alice")
	bob := h.user(t, "bob")
	h.individualChain(t, "Manager", 1, bob, "0.01")

	req := h.draft(t, owner)
	err := h.requisitions.Delete(ctx, req.ID, bob)
	requireAppError(t, err, apperrors.CodeForbidden, "You must be the requisition owner to delete.")

	_, err = h.requisitions.Submit(ctx, req.ID, owner)
	require.NoError(t, err)
	err = h.requisitions.Delete(ctx, req.ID, owner)
	requireAppError(t, err, apperrors.CodeInvalidState, "This requisition must be in draft or rejected status to delete.")

	_, err = h.requisitions.Withdraw(ctx, req.ID, owner)
	require.NoError(t, err)
	require.NoError(t, h.requisitions.Delete(ctx, req.ID, owner))

	_, err = h.requisitions.Get(ctx, req.ID)
	requireAppError(t, err, apperrors.CodeRequisitionNotFound, "Requisition not found.")
}

func TestCreate_UnknownReferences(t *testing.T) {
	h := newHarness(t)
	owner := h.user(t, "alice")

	project := int64(42)
	address := int64(7)
	line := serviceLine(1, "Office", "10.00")
	line.ShipToID = &address
	_, err := h.requisitions.Create(context.Background(), CreateRequisitionInput{
		Name:        "Chairs",
		Supplier:    "Acme",
		ProjectID:   &project,
		TotalAmount: dec("10.00"),
		Lines:       []CreateLineInput{line},
	}, owner)
	requireAppError(t, err, apperrors.CodeValidationFailed, "")

	appErr, _ := apperrors.IsAppError(err)
	var fields []string
	for _, fe := range appErr.FieldErrors {
		fields = append(fields, fe.Field)
	}
	assert.Equal(t, "project_id,lines[0].ship_to_id", strings.Join(fields, ","))
}
