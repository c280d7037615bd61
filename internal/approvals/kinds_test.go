package approvals

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecide(t *testing.T) {
	hold, _ := Lookup("digital_card")
	credit, _ := Lookup("deposit")
	none, _ := Lookup("verification")

	tests := []struct {
		name     string
		kind     Kind
		status   string
		decision string
		want     Movement
		err      error
	}{
		{"approve hold consumes", hold, StatusPending, Approve, MoveConsumeHold, nil},
		{"reject hold refunds", hold, StatusPending, Reject, MoveRefundHold, nil},
		{"approve credit", credit, StatusPending, Approve, MoveCredit, nil},
		{"reject credit moves nothing", credit, StatusPending, Reject, MoveNothing, nil},
		{"approve verification", none, StatusPending, Approve, MoveVerify, nil},
		{"reject verification", none, StatusPending, Reject, MoveNothing, nil},
		{"already approved", hold, StatusApproved, Reject, MoveNothing, ErrNotPending},
		{"already rejected", credit, StatusRejected, Approve, MoveNothing, ErrNotPending},
		{"bad decision", hold, StatusPending, "maybe", MoveNothing, ErrInvalidDecision},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decide(tt.kind, tt.status, tt.decision)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegistry(t *testing.T) {
	assert.Len(t, Kinds(), 9)

	_, err := Lookup("lottery")
	assert.ErrorIs(t, err, ErrUnknownKind)

	bd, err := Lookup("betting_deposit")
	require.NoError(t, err)
	bw, err := Lookup("betting_withdrawal")
	require.NoError(t, err)
	assert.Equal(t, bd.Table, bw.Table)
	assert.NotEqual(t, bd.Type, bw.Type)
}

func TestCheckDetails(t *testing.T) {
	k, _ := Lookup("game_topup")
	assert.NoError(t, k.CheckDetails(map[string]any{"game": "freefire", "player_id": 123456}))
	assert.ErrorIs(t, k.CheckDetails(map[string]any{"game": "freefire"}), ErrMissingDetail)
	assert.ErrorIs(t, k.CheckDetails(map[string]any{"game": " ", "player_id": "1"}), ErrMissingDetail)
}
