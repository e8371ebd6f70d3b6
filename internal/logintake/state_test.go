package logintake_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trc-go/trc/internal/logintake"
)

func TestValidateStateTransitionAllowsDocumentedEdges(t *testing.T) {
	cases := []struct {
		from, to logintake.State
	}{
		{logintake.StateRoot, logintake.StateTest},
		{logintake.StateTest, logintake.StateMeta},
		{logintake.StateTest, logintake.StateLogs},
		{logintake.StateTest, logintake.StateTest},
		{logintake.StateMeta, logintake.StateObjective},
		{logintake.StateMeta, logintake.StateVerdicts},
		{logintake.StateMeta, logintake.StateParams},
		{logintake.StateLogs, logintake.StateTags},
	}

	for _, c := range cases {
		require.NoError(t, logintake.ValidateStateTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestValidateStateTransitionRejectsUndocumentedEdges(t *testing.T) {
	cases := []struct {
		from, to logintake.State
	}{
		{logintake.StateRoot, logintake.StateMeta},
		{logintake.StateObjective, logintake.StateMeta},
		{logintake.StateMeta, logintake.StateLogs},
		{logintake.StateTags, logintake.StateLogs},
	}

	for _, c := range cases {
		err := logintake.ValidateStateTransition(c.from, c.to)
		require.Error(t, err)
		require.True(t, errors.Is(err, logintake.ErrInvalidTransition))
	}
}

func TestStateString(t *testing.T) {
	require.Equal(t, "meta", logintake.StateMeta.String())
	require.Equal(t, "tags", logintake.StateTags.String())
}
