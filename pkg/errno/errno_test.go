package errno

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrnoIsByCode(t *testing.T) {
	err := fmt.Errorf("approve tx 3: %w", ErrBroadcastRejected.Wrap(errors.New("nonce too low")))

	assert.True(t, errors.Is(err, ErrBroadcastRejected))
	assert.False(t, errors.Is(err, ErrSigning))
	assert.Contains(t, err.Error(), "nonce too low")
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   int
	}{
		{"nil", nil, http.StatusOK, OK.Code},
		{"validation", ErrInvalidAmount.WithMessage("amount must be positive"), http.StatusBadRequest, ErrInvalidAmount.Code},
		{"wrapped ledger error", fmt.Errorf("submit: %w", ErrRPC.Wrap(errors.New("boom"))), http.StatusInternalServerError, ErrRPC.Code},
		{"plain error", errors.New("unexpected"), http.StatusInternalServerError, InternalServerError.Code},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code, _ := Decode(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}

func TestDecodeKeepsCauseText(t *testing.T) {
	_, _, msg := Decode(ErrGasEstimation.Wrap(errors.New("execution reverted: not enough approvals")))
	assert.Equal(t, "gas estimation failed: execution reverted: not enough approvals", msg)
}
