package collector

import (
	"github.com/cockroachdb/errors"

	"tftstats/internal/riot"
	"tftstats/internal/storage"
)

// maxItemsPerUnit is the number of item slots on a unit.
const maxItemsPerUnit = 3

// ParseMatch flattens every participant of a match into one PlayerRecord,
// in participant order. A payload whose placements are not a dense 1..N
// ranking is rejected as ErrDecode.
func ParseMatch(raw *riot.RawMatch) ([]storage.PlayerRecord, error) {
	if raw == nil {
		return nil, errors.Mark(errors.New("nil match"), riot.ErrDecode)
	}
	match := raw.Match
	info := match.Info
	matchID := match.Metadata.MatchID
	if matchID == "" {
		matchID = raw.MatchID
	}

	if err := checkPlacements(matchID, info.Participants); err != nil {
		return nil, err
	}

	played := storage.GameTimeFromMillis(info.GameDatetime)
	records := make([]storage.PlayerRecord, 0, len(info.Participants))
	for _, p := range info.Participants {
		records = append(records, storage.PlayerRecord{
			MatchID:              matchID,
			PUUID:                p.PUUID,
			PlayerName:           p.RiotIDGameName,
			GameDatetime:         played,
			GameLength:           info.GameLength,
			GameVersion:          info.GameVersion,
			SetNumber:            info.SetNumber,
			QueueID:              info.QueueID,
			Placement:            p.Placement,
			Level:                p.Level,
			LastRound:            p.LastRound,
			PlayersEliminated:    p.PlayersEliminated,
			GoldLeft:             p.GoldLeft,
			TimeEliminated:       p.TimeEliminated,
			TotalDamageToPlayers: p.TotalDamageToPlayers,
			Units:                parseUnits(p.Units),
			Traits:               activeTraits(p.Traits),
			Companion:            p.Companion,
		})
	}
	return records, nil
}

func parseUnits(units []riot.MatchUnit) []storage.Unit {
	out := make([]storage.Unit, 0, len(units))
	for _, u := range units {
		items := u.ItemNames
		if len(items) > maxItemsPerUnit {
			items = items[:maxItemsPerUnit]
		}
		out = append(out, storage.Unit{
			CharacterID: u.CharacterID,
			StarLevel:   u.Tier,
			Items:       append([]string{}, items...),
		})
	}
	return out
}

// activeTraits drops traits whose current tier is zero.
func activeTraits(traits []riot.MatchTrait) []storage.Trait {
	out := make([]storage.Trait, 0, len(traits))
	for _, t := range traits {
		if t.TierCurrent <= 0 {
			continue
		}
		out = append(out, storage.Trait{
			Name:     t.Name,
			NumUnits: t.NumUnits,
			Tier:     t.TierCurrent,
		})
	}
	return out
}

func checkPlacements(matchID string, participants []riot.MatchParticipant) error {
	n := len(participants)
	if n == 0 {
		return errors.Mark(errors.Newf("match %s has no participants", matchID), riot.ErrDecode)
	}
	seen := make([]bool, n+1)
	for _, p := range participants {
		if p.Placement < 1 || p.Placement > n || seen[p.Placement] {
			return errors.Mark(
				errors.Newf("match %s: placement %d is not a dense rank of %d players", matchID, p.Placement, n),
				riot.ErrDecode)
		}
		seen[p.Placement] = true
	}
	return nil
}
