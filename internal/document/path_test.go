// internal/document/path_test.go
package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePath(t *testing.T) {
	cases := []struct {
		raw       string
		kind      Kind
		owner     string
		lobbyCode string
	}{
		{"users/u1", KindUserProfile, "u1", ""},
		{"battle_lobbies/ABC123", KindLobby, "", "ABC123"},
		{"battle_lobbies/_time_sync", KindTimeSync, "", ""},
		{"users/u1/battle_history/ABC123", KindBattleHistory, "u1", "ABC123"},
		{"users/u1/battle_stats/main", KindBattleStats, "u1", ""},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			p, err := ParsePath(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.kind, p.Kind)
			assert.Equal(t, tc.owner, p.OwnerID)
			assert.Equal(t, tc.lobbyCode, p.LobbyCode)
			assert.Equal(t, tc.raw, p.Raw)
		})
	}
}

func TestParsePathRejectsUnknownShapes(t *testing.T) {
	bad := []string{
		"",
		"users",
		"users/u1/battle_history",
		"users/u1/battle_stats/other",
		"users//battle_stats/main",
		"friends/u1",
		"users/u1/inventory/sword",
		"battle_lobbies/ABC123/rounds/1",
	}
	for _, raw := range bad {
		_, err := ParsePath(raw)
		assert.Errorf(t, err, "path %q should not parse", raw)
	}
}

func TestPathBuildersRoundTrip(t *testing.T) {
	for _, raw := range []string{
		LobbyPath("ABC123"),
		UserPath("u1"),
		HistoryPath("u1", "ABC123"),
		StatsPath("u1"),
	} {
		p, err := ParsePath(raw)
		require.NoError(t, err)
		assert.NotEqual(t, KindUnknown, p.Kind)
	}
}
