package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/tigerroll/surfin-etl/pkg/etl/core/ports"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/exception"
)

type mockHandler struct {
	mock.Mock
}

func (m *mockHandler) HandleCorrection(ctx context.Context, cmd ports.CorrectionCommand) error {
	args := m.Called(ctx, cmd)
	return args.Error(0)
}

func TestCorrectionBus_DispatchesToHandler(t *testing.T) {
	bus := NewCorrectionBus()
	h := new(mockHandler)
	cmd := ports.CorrectionCommand{JobID: "job-1", ExceptionID: "exc-1"}
	h.On("HandleCorrection", mock.Anything, cmd).Return(nil)
	bus.Register(h)

	assert.NoError(t, bus.Dispatch(context.Background(), cmd))
	h.AssertExpectations(t)
}

func TestCorrectionBus_NoHandler(t *testing.T) {
	err := NewCorrectionBus().Dispatch(context.Background(), ports.CorrectionCommand{JobID: "job-1"})

	assert.Error(t, err)
	assert.True(t, exception.IsKind(err, exception.KindAutoCorrectionFailure))
}
