package riot

import (
	json "github.com/goccy/go-json"
)

// LeagueTier is a top-of-ladder bracket with a public listing endpoint.
type LeagueTier string

const (
	TierChallenger  LeagueTier = "challenger"
	TierGrandmaster LeagueTier = "grandmaster"
)

// Valid reports whether the tier has a listing endpoint.
func (t LeagueTier) Valid() bool {
	return t == TierChallenger || t == TierGrandmaster
}

// AccountResponse represents the response from /riot/account/v1/accounts/by-riot-id
type AccountResponse struct {
	PUUID    string `json:"puuid"`
	GameName string `json:"gameName"`
	TagLine  string `json:"tagLine"`
}

// LeagueListResponse represents the response from /tft/league/v1/{tier}
type LeagueListResponse struct {
	Tier    string        `json:"tier"`
	Queue   string        `json:"queue"`
	Entries []LeagueEntry `json:"entries"`
}

type LeagueEntry struct {
	PUUID        string `json:"puuid"`
	SummonerID   string `json:"summonerId,omitempty"`
	Rank         string `json:"rank"`
	LeaguePoints int    `json:"leaguePoints"`
	Wins         int    `json:"wins"`
	Losses       int    `json:"losses"`
}

// MatchResponse represents the response from /tft/match/v1/matches/{matchId}
type MatchResponse struct {
	Metadata MatchMetadata `json:"metadata"`
	Info     MatchInfo     `json:"info"`
}

type MatchMetadata struct {
	MatchID      string   `json:"match_id"`
	Participants []string `json:"participants"` // PUUIDs
}

type MatchInfo struct {
	GameDatetime int64              `json:"game_datetime"` // epoch milliseconds
	GameLength   float64            `json:"game_length"`   // seconds
	GameVersion  string             `json:"game_version"`
	SetNumber    int                `json:"tft_set_number"`
	QueueID      int                `json:"queue_id"`
	Participants []MatchParticipant `json:"participants"`
}

type MatchParticipant struct {
	PUUID                string          `json:"puuid"`
	RiotIDGameName       string          `json:"riotIdGameName"`
	RiotIDTagline        string          `json:"riotIdTagline"`
	Placement            int             `json:"placement"`
	Level                int             `json:"level"`
	LastRound            int             `json:"last_round"`
	PlayersEliminated    int             `json:"players_eliminated"`
	GoldLeft             int             `json:"gold_left"`
	TimeEliminated       float64         `json:"time_eliminated"`
	TotalDamageToPlayers int             `json:"total_damage_to_players"`
	Units                []MatchUnit     `json:"units"`
	Traits               []MatchTrait    `json:"traits"`
	Companion            json.RawMessage `json:"companion,omitempty"`
}

type MatchUnit struct {
	CharacterID string   `json:"character_id"`
	Tier        int      `json:"tier"` // star level
	ItemNames   []string `json:"itemNames"`
	Rarity      int      `json:"rarity"`
}

type MatchTrait struct {
	Name        string `json:"name"`
	NumUnits    int    `json:"num_units"`
	Style       int    `json:"style"`
	TierCurrent int    `json:"tier_current"`
	TierTotal   int    `json:"tier_total"`
}

// RawMatch is one match detail payload: the bytes as received plus the
// decoded view of them.
type RawMatch struct {
	MatchID string
	Body    []byte
	Match   MatchResponse
}
