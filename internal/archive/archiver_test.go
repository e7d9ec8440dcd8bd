package archive

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supernoba/marketstream/internal/config"
	"github.com/supernoba/marketstream/internal/model"
)

func TestParseTrades(t *testing.T) {
	entries := []string{
		`{"id":"t1","t":1700000000,"p":100.5,"q":2}`,
		`{"id":"t2","t":1700000001,"p":100.6,"q":1,"symbol":"MSFT"}`,
		`not json`,
	}

	trades, parseErrors := parseTrades("AAPL", entries)

	require.Len(t, trades, 2)
	assert.Equal(t, 1, parseErrors)

	assert.Equal(t, model.Trade{ID: "t1", T: 1700000000, P: 100.5, Q: 2, Symbol: "AAPL"}, trades[0],
		"missing symbol defaults to the list's symbol")
	assert.Equal(t, "MSFT", trades[1].Symbol, "explicit symbol wins")
}

type fakeStore struct {
	symbols []string
	trades  map[string][]string
	trims   map[string]int64
	ranges  [][2]int64
}

func (f *fakeStore) ActiveSymbols(context.Context) ([]string, error) { return f.symbols, nil }

func (f *fakeStore) TradeCount(_ context.Context, symbol string) (int64, error) {
	return int64(len(f.trades[symbol])), nil
}

func (f *fakeStore) Trades(_ context.Context, symbol string, start, stop int64) ([]string, error) {
	f.ranges = append(f.ranges, [2]int64{start, stop})
	list := f.trades[symbol]
	if start >= int64(len(list)) {
		return nil, nil
	}
	if stop >= int64(len(list)) {
		stop = int64(len(list)) - 1
	}
	return list[start : stop+1], nil
}

func (f *fakeStore) TrimTrades(_ context.Context, symbol string, keep int64) error {
	if f.trims == nil {
		f.trims = make(map[string]int64)
	}
	f.trims[symbol] = keep
	return nil
}

// fakeDB counts the batches the archiver sends; every queued insert
// reports one affected row.
type fakeDB struct {
	batchSizes []int
}

func (f *fakeDB) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	f.batchSizes = append(f.batchSizes, b.Len())
	return &fakeBatchResults{}
}

type fakeBatchResults struct{}

func (*fakeBatchResults) Exec() (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}
func (*fakeBatchResults) Query() (pgx.Rows, error) { return nil, nil }
func (*fakeBatchResults) QueryRow() pgx.Row        { return nil }
func (*fakeBatchResults) Close() error             { return nil }

func TestSweep_EmptyListsSkipDatabase(t *testing.T) {
	fs := &fakeStore{symbols: []string{"AAPL", "MSFT"}}
	a := New(config.ArchiveConfig{
		Interval:    time.Second,
		BatchSize:   500,
		KeepPerList: 100,
	}, fs, nil, nil) // nil pool: the sweep must not touch it

	a.sweep(context.Background())

	stats := a.Stats()
	assert.Equal(t, int64(1), stats.Sweeps)
	assert.Equal(t, int64(0), stats.Inserts)
	assert.Empty(t, fs.trims, "empty lists are not trimmed")
}

func TestArchiveSymbol_DrainsBacklogInBatches(t *testing.T) {
	entries := make([]string, 250)
	for i := range entries {
		entries[i] = fmt.Sprintf(`{"id":"t%d","t":1700000000,"p":1,"q":1}`, i)
	}
	fs := &fakeStore{trades: map[string][]string{"AAPL": entries}}
	db := &fakeDB{}
	a := New(config.ArchiveConfig{
		Interval:    time.Second,
		BatchSize:   100,
		KeepPerList: 50,
	}, fs, db, nil)

	archived, err := a.archiveSymbol(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, 250, archived, "the whole backlog must land, not just the first batch")
	assert.Equal(t, []int{100, 100, 50}, db.batchSizes)
	assert.Equal(t, [][2]int64{{0, 99}, {100, 199}, {200, 249}}, fs.ranges)
	assert.Equal(t, int64(50), fs.trims["AAPL"], "trim only runs after the full drain")
	assert.Equal(t, int64(250), a.Stats().Inserts)
}
