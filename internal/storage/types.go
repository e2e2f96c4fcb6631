package storage

import (
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// GameTimeLayout is RFC 3339 in UTC with millisecond precision.
const GameTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// GameTime is a match start instant that serialises as GameTimeLayout.
type GameTime struct {
	time.Time
}

// GameTimeFromMillis converts an epoch-milliseconds value to a UTC GameTime.
func GameTimeFromMillis(ms int64) GameTime {
	return GameTime{time.UnixMilli(ms).UTC()}
}

func (t GameTime) String() string {
	return t.UTC().Format(GameTimeLayout)
}

func (t GameTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

func (t *GameTime) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return err
	}
	t.Time = parsed.UTC()
	return nil
}

// Unit is one board unit in slot order.
type Unit struct {
	CharacterID string   `json:"character_id"`
	StarLevel   int      `json:"star_level"`
	Items       []string `json:"items"` // at most 3, in slot order
}

// Trait is one active trait of a board.
type Trait struct {
	Name     string `json:"name"`
	NumUnits int    `json:"num_units"`
	Tier     int    `json:"tier"` // active tier, always > 0
}

// PlayerRecord is one participant of one match.
// Records are created once from a match payload and never mutated.
type PlayerRecord struct {
	MatchID              string          `json:"match_id"`
	PUUID                string          `json:"puuid,omitempty"`
	PlayerName           string          `json:"player_name"`
	GameDatetime         GameTime        `json:"game_datetime"`
	GameLength           float64         `json:"game_length"`
	GameVersion          string          `json:"game_version"`
	SetNumber            int             `json:"tft_set_number"`
	QueueID              int             `json:"queue_id"`
	Placement            int             `json:"placement"`
	Level                int             `json:"level"`
	LastRound            int             `json:"last_round"`
	PlayersEliminated    int             `json:"players_eliminated"`
	GoldLeft             int             `json:"gold_left"`
	TimeEliminated       float64         `json:"time_eliminated"`
	TotalDamageToPlayers int             `json:"total_damage_to_players"`
	Units                []Unit          `json:"units"`
	Traits               []Trait         `json:"traits"`
	Companion            json.RawMessage `json:"companion,omitempty"`
}
