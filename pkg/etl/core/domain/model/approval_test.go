package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowApproval_DecidedOnce(t *testing.T) {
	a := NewWorkflowApproval("job-1", ApprovalDataPromotion, "alice", "")
	require.NoError(t, a.Decide(DecisionApprove, "bob"))
	assert.Equal(t, ApprovalApproved, a.State)
	require.NotNil(t, a.ApprovedAt)

	err := a.Decide(DecisionReject, "carol")
	assert.Error(t, err)
	assert.Equal(t, ApprovalApproved, a.State)
	assert.Equal(t, "bob", *a.ApprovedBy)
}

func TestWorkflowApproval_AppendComment(t *testing.T) {
	a := NewWorkflowApproval("job-1", ApprovalSchemaChange, "alice", "please review")
	a.AppendComment("Approver comments", "looks good")
	assert.Equal(t, "please review\n\nApprover comments: looks good", a.Comments)

	b := NewWorkflowApproval("job-2", ApprovalSchemaChange, "alice", "")
	b.AppendComment("Rejection reason", "no")
	assert.Equal(t, "Rejection reason: no", b.Comments)
}
