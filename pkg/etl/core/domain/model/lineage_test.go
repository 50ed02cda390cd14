package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventType(t *testing.T) {
	et, err := ParseEventType("approval_approved")
	require.NoError(t, err)
	assert.Equal(t, EventApprovalApproved, et)

	_, err = ParseEventType("teleported")
	assert.ErrorIs(t, err, ErrUnknownEventType)

	var scanned EventType
	assert.Error(t, scanned.Scan("teleported"))
	assert.NoError(t, scanned.Scan([]byte("output")))
	assert.Equal(t, EventOutput, scanned)
}

func TestLineageEvent_Describe(t *testing.T) {
	ing := NewLineageEvent("j", EventIngestion, Metadata{"ingestion_type": "swift"})
	assert.Equal(t, "Data ingested via swift", ing.Describe())

	tr := NewLineageEvent("j", EventTransformation, nil)
	tr.TransformationDetails = Metadata{"rules_applied": 3}
	assert.Equal(t, "Applied 3 transformation rules", tr.Describe())

	out := NewLineageEvent("j", EventOutput, Metadata{"destination": "warehouse"})
	assert.Equal(t, "Data output to warehouse", out.Describe())

	sub := NewLineageEvent("j", EventApprovalSubmitted, Metadata{"approval_type": "data_promotion"})
	assert.Equal(t, "Submitted for data_promotion approval", sub.Describe())

	assert.Equal(t, "Approval granted", NewLineageEvent("j", EventApprovalApproved, nil).Describe())
	assert.Equal(t, "Approval rejected", NewLineageEvent("j", EventApprovalRejected, nil).Describe())
	assert.Equal(t, "Event: data_promotion_started", NewLineageEvent("j", EventDataPromotionStarted, nil).Describe())
}
