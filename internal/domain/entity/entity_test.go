package entity

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperator_Combine(t *testing.T) {
	assert.True(t, OperatorAnd.Combine(nil))
	assert.True(t, OperatorOr.Combine(nil))
	assert.True(t, OperatorAnd.Combine([]bool{true, true}))
	assert.False(t, OperatorAnd.Combine([]bool{true, false}))
	assert.True(t, OperatorOr.Combine([]bool{false, true}))
	assert.False(t, OperatorOr.Combine([]bool{false, false}))
}

func TestRequisition_LinesTotal(t *testing.T) {
	req := &Requisition{Lines: []*RequisitionLine{
		{LineTotal: decimal.RequireFromString("10.10")},
		{LineTotal: decimal.RequireFromString("0.20")},
	}}
	assert.True(t, req.LinesTotal().Equal(decimal.RequireFromString("10.30")))
}

func TestApprovalGroup_ActiveMembers(t *testing.T) {
	g := &ApprovalGroup{Members: []*User{
		{ID: 1, IsActive: true},
		{ID: 2, IsActive: false},
		{ID: 3, IsActive: true},
	}}
	active := g.ActiveMembers()
	require.Len(t, active, 2)
	assert.Equal(t, int64(3), active[1].ID)
}

func TestApproval_IsAnyGroupMember(t *testing.T) {
	a := &Approval{}
	assert.False(t, a.IsAnyGroupMember())

	a.TriggerMetadata = &TriggerMetadata{
		ApproverMode:  ApproverModeGroup,
		ApproverGroup: &GroupSnapshot{ID: 1, Name: "Finance", GroupMode: GroupModeAny},
	}
	assert.True(t, a.IsAnyGroupMember())

	a.TriggerMetadata.ApproverGroup.GroupMode = GroupModeAll
	assert.False(t, a.IsAnyGroupMember())
}

func TestUnmarshalTriggerMetadata(t *testing.T) {
	md, err := UnmarshalTriggerMetadata(`{"id": 4, "name": "Finance", "approver_mode": "individual", "sequence_number": 2}`)
	require.NoError(t, err)
	assert.Equal(t, TriggerMetadataVersion, md.Version, "unversioned rows read as v1")
	assert.Equal(t, int64(4), md.ChainID)

	_, err = UnmarshalTriggerMetadata(`{"version": 99}`)
	assert.Error(t, err)

	md, err = UnmarshalTriggerMetadata("")
	require.NoError(t, err)
	assert.Nil(t, md)
}

func TestUser_FullName(t *testing.T) {
	assert.Equal(t, "Ada Lovelace", (&User{FirstName: "Ada", LastName: "Lovelace"}).FullName())
	assert.Equal(t, "ada", (&User{Username: "ada"}).FullName())
}
