package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/woozymasta/teestat/internal/teeworlds"
)

func TestApplyInfoWithoutName(t *testing.T) {
	var s Server
	assert.False(t, s.Online())

	s.ApplyInfo(&teeworlds.ServerInfo{
		Map:         "Kobra 4",
		ClientCount: 1,
		Players:     []teeworlds.Player{{Name: "tee", Spectator: true}},
	})

	assert.True(t, s.Online())
	assert.Empty(t, s.ServerName)
	require.Len(t, s.Players, 1)
	assert.True(t, s.Players[0].Spectator)
}
