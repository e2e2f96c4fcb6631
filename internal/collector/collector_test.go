package collector

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tftstats/internal/logging"
	"tftstats/internal/riot"
)

// fakeClient serves canned responses and counts calls.
type fakeClient struct {
	mu sync.Mutex

	league      []string
	leagueErr   error
	history     map[string][]string // puuid -> newest-first match IDs
	historyErr  map[string]error
	matchErr    map[string]error
	accounts    map[string]string // "name#tag" -> puuid
	listCalls   map[string]int
	fetchCalls  map[string]int
	pageStarts  []int
	matchPlayed time.Time
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		history:     map[string][]string{},
		historyErr:  map[string]error{},
		matchErr:    map[string]error{},
		accounts:    map[string]string{},
		listCalls:   map[string]int{},
		fetchCalls:  map[string]int{},
		matchPlayed: time.Date(2025, 12, 20, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeClient) ListTopLeague(ctx context.Context, platform string, tier riot.LeagueTier) ([]string, error) {
	return f.league, f.leagueErr
}

func (f *fakeClient) ListMatchIDs(ctx context.Context, puuid, platform string, count, start int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls[puuid]++
	f.pageStarts = append(f.pageStarts, start)
	if err := f.historyErr[puuid]; err != nil {
		return nil, err
	}
	ids := f.history[puuid]
	if start >= len(ids) {
		return []string{}, nil
	}
	return ids[start:min(len(ids), start+count)], nil
}

func (f *fakeClient) FetchMatchDetail(ctx context.Context, matchID, platform string) (*riot.RawMatch, error) {
	f.mu.Lock()
	f.fetchCalls[matchID]++
	err := f.matchErr[matchID]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	raw := syntheticMatch(matchID, f.matchPlayed)
	raw.Body = []byte(`{"metadata":{"match_id":"` + matchID + `"}}`)
	return raw, nil
}

func (f *fakeClient) GetAccountByRiotID(ctx context.Context, gameName, tagLine, platform string) (*riot.AccountResponse, error) {
	puuid, ok := f.accounts[gameName+"#"+tagLine]
	if !ok {
		return nil, errors.Wrap(riot.ErrNotFound, "no such account")
	}
	return &riot.AccountResponse{PUUID: puuid, GameName: gameName, TagLine: tagLine}, nil
}

type memorySink struct {
	mu     sync.Mutex
	stored map[string][]byte
}

func (s *memorySink) WriteRaw(matchID string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stored == nil {
		s.stored = map[string][]byte{}
	}
	s.stored[matchID] = body
	return nil
}

func newTestCollector(client MatchClient, cfg Config, opts ...Option) *Collector {
	if cfg.Platform == "" {
		cfg.Platform = "na1"
	}
	opts = append([]Option{WithLogger(logging.NewNop())}, opts...)
	return New(client, cfg, opts...)
}

func TestCollectMatchIDs_DuplicatePlayersAreIdempotent(t *testing.T) {
	client := newFakeClient()
	client.history["P"] = []string{"NA1_3", "NA1_2", "NA1_1"}
	c := newTestCollector(client, Config{MatchCount: 3})

	var single, double Report
	once, err := c.CollectMatchIDs(context.Background(), []string{"P"}, &single)
	require.NoError(t, err)
	twice, err := c.CollectMatchIDs(context.Background(), []string{"P", "P"}, &double)
	require.NoError(t, err)

	assert.Equal(t, once.IDs(), twice.IDs())
	assert.Equal(t, 1, double.PlayersRequested)
}

func TestCollectMatchIDs_UnionAcrossPlayers(t *testing.T) {
	client := newFakeClient()
	client.history["A"] = []string{"NA1_5", "NA1_4"}
	client.history["B"] = []string{"NA1_4", "NA1_3"}
	c := newTestCollector(client, Config{MatchCount: 2})

	var report Report
	set, err := c.CollectMatchIDs(context.Background(), []string{"A", "B"}, &report)

	require.NoError(t, err)
	assert.Equal(t, []string{"NA1_5", "NA1_4", "NA1_3"}, set.IDs())
	assert.Equal(t, 3, report.MatchIDs)
}

func TestCollectMatchIDs_SkipsFailingPlayer(t *testing.T) {
	client := newFakeClient()
	client.historyErr["A"] = errors.Mark(errors.New("boom"), riot.ErrRequestFailed)
	client.history["B"] = []string{"NA1_9"}
	c := newTestCollector(client, Config{})

	var report Report
	set, err := c.CollectMatchIDs(context.Background(), []string{"A", "B"}, &report)

	require.NoError(t, err)
	assert.Equal(t, []string{"NA1_9"}, set.IDs())
	assert.Equal(t, 1, report.PlayersFailed)
	assert.Equal(t, 1, report.PlayersSucceeded)
}

func TestCollectMatchIDs_UnauthorizedAbortsRun(t *testing.T) {
	client := newFakeClient()
	client.historyErr["A"] = errors.Wrap(riot.ErrUnauthorized, "key expired")
	client.history["B"] = []string{"NA1_9"}
	c := newTestCollector(client, Config{})

	var report Report
	_, err := c.CollectMatchIDs(context.Background(), []string{"A", "B"}, &report)

	assert.True(t, errors.Is(err, riot.ErrUnauthorized))
	assert.Zero(t, client.listCalls["B"])
}

func TestCollectMatchIDs_Paginates(t *testing.T) {
	client := newFakeClient()
	for i := 0; i < 450; i++ {
		client.history["P"] = append(client.history["P"], fmt.Sprintf("NA1_%d", i))
	}
	c := newTestCollector(client, Config{MatchCount: 450})

	var report Report
	set, err := c.CollectMatchIDs(context.Background(), []string{"P"}, &report)

	require.NoError(t, err)
	assert.Equal(t, 450, set.Len())
	assert.Equal(t, []int{0, 200, 400}, client.pageStarts)
}

func TestCollectMatchIDs_StopsOnShortPage(t *testing.T) {
	client := newFakeClient()
	client.history["P"] = []string{"NA1_2", "NA1_1"}
	c := newTestCollector(client, Config{MatchCount: 500})

	var report Report
	_, err := c.CollectMatchIDs(context.Background(), []string{"P"}, &report)

	require.NoError(t, err)
	assert.Equal(t, []int{0}, client.pageStarts)
}

func TestFetchMatches_SkipsFailingMatch(t *testing.T) {
	client := newFakeClient()
	client.matchErr["NA1_2"] = errors.Wrap(riot.ErrNotFound, "gone")
	client.matchErr["NA1_3"] = errors.Mark(errors.New("bad json"), riot.ErrDecode)
	sink := &memorySink{}
	c := newTestCollector(client, Config{}, WithRawSink(sink))

	var report Report
	records, err := c.FetchMatches(context.Background(), []string{"NA1_1", "NA1_2", "NA1_3", "NA1_4"}, &report)

	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, "NA1_1", records[0].MatchID)
	assert.Equal(t, "NA1_4", records[2].MatchID)
	assert.Equal(t, 2, report.MatchesFetched)
	assert.Equal(t, 2, report.MatchesFailed)
	assert.Equal(t, 4, report.RecordsParsed)
	assert.Len(t, sink.stored, 2)
}

func TestFetchMatches_ConcurrentKeepsOrder(t *testing.T) {
	client := newFakeClient()
	ids := []string{"NA1_1", "NA1_2", "NA1_3", "NA1_4", "NA1_5", "NA1_6"}
	c := newTestCollector(client, Config{Workers: 3})

	var report Report
	records, err := c.FetchMatches(context.Background(), ids, &report)

	require.NoError(t, err)
	require.Len(t, records, 12)
	for i, id := range ids {
		assert.Equal(t, id, records[2*i].MatchID)
		assert.Equal(t, id, records[2*i+1].MatchID)
	}
	for _, id := range ids {
		assert.Equal(t, 1, client.fetchCalls[id])
	}
}

func TestFetchMatches_FatalErrorKeepsPartial(t *testing.T) {
	client := newFakeClient()
	client.matchErr["NA1_2"] = context.Canceled
	c := newTestCollector(client, Config{})

	var report Report
	records, err := c.FetchMatches(context.Background(), []string{"NA1_1", "NA1_2", "NA1_3"}, &report)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, records, 2)
	assert.Zero(t, client.fetchCalls["NA1_3"])
}

func TestFetchMatches_SeenIndexSkipsEarlierRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen.bloom")
	idx, err := LoadSeenIndex(path)
	require.NoError(t, err)

	client := newFakeClient()
	c := newTestCollector(client, Config{}, WithSeenIndex(idx))
	var first Report
	_, err = c.FetchMatches(context.Background(), []string{"NA1_1", "NA1_2"}, &first)
	require.NoError(t, err)
	require.NoError(t, idx.Save())

	reloaded, err := LoadSeenIndex(path)
	require.NoError(t, err)
	c = newTestCollector(client, Config{}, WithSeenIndex(reloaded))
	var second Report
	records, err := c.FetchMatches(context.Background(), []string{"NA1_1", "NA1_2", "NA1_3"}, &second)

	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, 2, second.MatchesSkipped)
	assert.Equal(t, 1, second.MatchesRequested())
	assert.Equal(t, 1, client.fetchCalls["NA1_1"])
}

func TestRun(t *testing.T) {
	client := newFakeClient()
	client.league = []string{"A", "B", "A", ""}
	client.history["A"] = []string{"NA1_2", "NA1_1"}
	client.history["B"] = []string{"NA1_2"}
	client.matchErr["NA1_1"] = errors.Mark(errors.New("500"), riot.ErrRequestFailed)
	c := newTestCollector(client, Config{MatchCount: 2})

	result, err := c.Run(context.Background())

	require.NoError(t, err)
	assert.Len(t, result.Records, 2)
	report := result.Report
	assert.Equal(t, 2, report.PlayersRequested)
	assert.Equal(t, 2, report.MatchIDs)
	assert.Equal(t, 1, report.MatchesFetched)
	assert.Equal(t, 1, report.MatchesFailed)
	assert.False(t, report.ZeroSuccess())
	assert.False(t, report.Finished.IsZero())
}

func TestRun_ZeroSuccess(t *testing.T) {
	client := newFakeClient()
	client.league = []string{"A"}
	client.history["A"] = []string{"NA1_1"}
	client.matchErr["NA1_1"] = errors.Wrap(riot.ErrNotFound, "gone")
	c := newTestCollector(client, Config{})

	result, err := c.Run(context.Background())

	require.NoError(t, err)
	assert.Empty(t, result.Records)
	assert.True(t, result.Report.ZeroSuccess())
}

func TestRun_EmptyLeagueIsFatal(t *testing.T) {
	client := newFakeClient()
	client.leagueErr = errors.Wrap(riot.ErrNotFound, "no entries")
	c := newTestCollector(client, Config{})

	result, err := c.Run(context.Background())

	assert.True(t, errors.Is(err, riot.ErrNotFound))
	assert.Empty(t, result.Records)
}

func TestRoster_RiotIDSeed(t *testing.T) {
	client := newFakeClient()
	client.accounts["Flancy#NA1"] = "puuid-flancy"
	c := newTestCollector(client, Config{RiotID: "Flancy#NA1"})

	roster, err := c.Roster(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"puuid-flancy"}, roster)

	c = newTestCollector(client, Config{RiotID: "missing-tag"})
	_, err = c.Roster(context.Background())
	assert.Error(t, err)
}

func TestRoster_MaxPlayers(t *testing.T) {
	client := newFakeClient()
	client.league = []string{"A", "B", "C"}
	c := newTestCollector(client, Config{MaxPlayers: 2})

	roster, err := c.Roster(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, roster)
}
