package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/surfin-etl/pkg/etl/core/application/usecase"
	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
)

func printed(t *testing.T, v interface{}) map[string]interface{} {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, v))
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestPrintJSON_UsesSnakeCaseFields(t *testing.T) {
	src := &model.DataSource{ID: "s1", Name: "orders", Type: model.SourceTypeAPI, Active: true}
	out := printed(t, src)
	assert.Equal(t, "s1", out["id"])
	assert.Equal(t, "api", out["source_type"])
	assert.Equal(t, true, out["is_active"])
	assert.NotContains(t, out, "ID")

	job := model.NewJob("orders", "", model.Payload{Document: model.HierarchicalDocument{Value: map[string]interface{}{"a": int64(1)}}}, "u1")
	out = printed(t, &usecase.IngestResult{Job: job})
	jobOut, ok := out["job"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, job.ID, jobOut["id"])
	assert.Equal(t, "pending", jobOut["status"])
	assert.Equal(t, "u1", jobOut["created_by"])
	assert.Contains(t, jobOut, "input_data")
	assert.NotContains(t, jobOut, "output_data")
	assert.NotContains(t, out, "schema")

	approval := model.NewWorkflowApproval(job.ID, model.ApprovalJobExecution, "u1", "ok")
	out = printed(t, approval)
	assert.Equal(t, job.ID, out["job_id"])
	assert.Equal(t, "job_execution", out["approval_type"])
	assert.Equal(t, "u1", out["submitted_by"])

	exc := model.NewDataException(job.ID, model.ExceptionTransformationError, "boom", model.SeverityHigh, nil)
	out = printed(t, exc)
	assert.Equal(t, "transformation_error", out["exception_type"])
	assert.Equal(t, "high", out["severity"])
	assert.Equal(t, false, out["resolved"])
}
