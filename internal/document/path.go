// internal/document/path.go
package document

import (
	"fmt"
	"strings"
)

// Collection names and fixed document IDs, matching the client schema.
const (
	UsersCollection   = "users"
	LobbiesCollection = "battle_lobbies"
	HistorySubcoll    = "battle_history"
	StatsSubcoll      = "battle_stats"

	TimeSyncDocID = "_time_sync"
	StatsDocID    = "main"
)

// Kind identifies which rule set applies to a document path.
type Kind int

const (
	KindUnknown Kind = iota
	KindUserProfile
	KindLobby
	KindTimeSync
	KindBattleHistory
	KindBattleStats
)

func (k Kind) String() string {
	switch k {
	case KindUserProfile:
		return "user_profile"
	case KindLobby:
		return "lobby"
	case KindTimeSync:
		return "time_sync"
	case KindBattleHistory:
		return "battle_history"
	case KindBattleStats:
		return "battle_stats"
	}
	return "unknown"
}

// Path is a parsed document path. OwnerID is set for paths rooted under a
// user document; LobbyCode is set for lobby paths and history entries (whose
// document ID is the lobby code they reference).
type Path struct {
	Raw       string
	Kind      Kind
	OwnerID   string
	LobbyCode string
}

// ParsePath parses a slash-separated document path into a typed Path.
// Recognized shapes:
//
//	users/{uid}
//	battle_lobbies/{code}          (code "_time_sync" is the probe doc)
//	users/{uid}/battle_history/{code}
//	users/{uid}/battle_stats/main
//
// Anything else is an error; the policy layer denies unparseable paths.
func ParsePath(raw string) (Path, error) {
	parts := strings.Split(strings.Trim(raw, "/"), "/")
	for _, p := range parts {
		if p == "" {
			return Path{}, fmt.Errorf("malformed document path %q", raw)
		}
	}

	switch len(parts) {
	case 2:
		switch parts[0] {
		case UsersCollection:
			return Path{Raw: raw, Kind: KindUserProfile, OwnerID: parts[1]}, nil
		case LobbiesCollection:
			if parts[1] == TimeSyncDocID {
				return Path{Raw: raw, Kind: KindTimeSync}, nil
			}
			return Path{Raw: raw, Kind: KindLobby, LobbyCode: parts[1]}, nil
		}
	case 4:
		if parts[0] != UsersCollection {
			break
		}
		switch parts[2] {
		case HistorySubcoll:
			return Path{Raw: raw, Kind: KindBattleHistory, OwnerID: parts[1], LobbyCode: parts[3]}, nil
		case StatsSubcoll:
			if parts[3] != StatsDocID {
				return Path{}, fmt.Errorf("battle_stats document must be %q, got %q", StatsDocID, parts[3])
			}
			return Path{Raw: raw, Kind: KindBattleStats, OwnerID: parts[1]}, nil
		}
	}
	return Path{}, fmt.Errorf("unrecognized document path %q", raw)
}

// LobbyPath builds the canonical path for a lobby code.
func LobbyPath(code string) string {
	return LobbiesCollection + "/" + code
}

// UserPath builds the canonical path for a user profile.
func UserPath(uid string) string {
	return UsersCollection + "/" + uid
}

// HistoryPath builds the canonical path for a user's history entry.
func HistoryPath(uid, code string) string {
	return UsersCollection + "/" + uid + "/" + HistorySubcoll + "/" + code
}

// StatsPath builds the canonical path for a user's stats singleton.
func StatsPath(uid string) string {
	return UsersCollection + "/" + uid + "/" + StatsSubcoll + "/" + StatsDocID
}
