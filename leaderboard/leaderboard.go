// Package leaderboard ranks wallets (and colors) from a full set of pixel
// records. Everything is recomputed on each call; nothing is persisted.
package leaderboard

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/zlnvch/pixelverse/models"
)

type Board string

const (
	Pixels     Board = "pixels"
	Colors     Board = "colors"
	Territory  Board = "territory"
	TimePlayed Board = "timeplayed"
)

// TopN caps every wallet-keyed board. The colors board is uncapped.
const TopN = 20

var ErrUnknownBoard = eris.New("unknown leaderboard type")

// ParseBoard accepts the British spelling "colours" as an alias.
func ParseBoard(name string) (Board, error) {
	switch strings.ToLower(name) {
	case "pixels":
		return Pixels, nil
	case "colors", "colours":
		return Colors, nil
	case "territory":
		return Territory, nil
	case "timeplayed":
		return TimePlayed, nil
	}
	return "", eris.Wrapf(ErrUnknownBoard, "'%s'", name)
}

func Compute(board Board, records []models.PixelRecord) ([]models.LeaderboardEntry, error) {
	switch board {
	case Pixels:
		return PixelCounts(records), nil
	case Colors:
		return ColorCounts(records), nil
	case Territory:
		return LargestTerritory(records), nil
	case TimePlayed:
		return TimePlayedSeconds(records), nil
	}
	return nil, eris.Wrapf(ErrUnknownBoard, "'%s'", board)
}

// tally keeps per-key values together with the order keys were first seen,
// which is the tie-break order.
type tally struct {
	order  []string
	values map[string]int64
}

func newTally() *tally {
	return &tally{values: make(map[string]int64)}
}

func (t *tally) touch(key string) {
	if _, ok := t.values[key]; !ok {
		t.order = append(t.order, key)
		t.values[key] = 0
	}
}

func (t *tally) add(key string, delta int64) {
	t.touch(key)
	t.values[key] += delta
}

func (t *tally) max(key string, value int64) {
	t.touch(key)
	if value > t.values[key] {
		t.values[key] = value
	}
}

// rank sorts descending by value, stable on first-seen order, and numbers the
// entries by position. limit <= 0 means no cap.
func (t *tally) rank(limit int) []models.LeaderboardEntry {
	entries := make([]models.LeaderboardEntry, 0, len(t.order))
	for _, key := range t.order {
		entries = append(entries, models.LeaderboardEntry{WalletAddress: key, Value: t.values[key]})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Value > entries[j].Value
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

func PixelCounts(records []models.PixelRecord) []models.LeaderboardEntry {
	t := newTally()
	for _, record := range records {
		if wallet := record.Wallet(); wallet != "" {
			t.add(wallet, 1)
		}
	}
	return t.rank(TopN)
}

// ColorCounts is keyed by color value; WalletAddress carries the color.
// Walletless and legacy records count too.
func ColorCounts(records []models.PixelRecord) []models.LeaderboardEntry {
	t := newTally()
	for _, record := range records {
		if record.Color != "" {
			t.add(record.Color, 1)
		}
	}
	return t.rank(0)
}

// TimePlayedSeconds is the span between a wallet's earliest and latest
// placement, floored to whole seconds. Records without a timestamp are ignored.
func TimePlayedSeconds(records []models.PixelRecord) []models.LeaderboardEntry {
	type span struct{ first, last int64 }
	spans := make(map[string]*span)
	t := newTally()

	for _, record := range records {
		wallet := record.Wallet()
		if wallet == "" || record.Timestamp == nil {
			continue
		}
		ts := *record.Timestamp
		s, ok := spans[wallet]
		if !ok {
			spans[wallet] = &span{first: ts, last: ts}
			t.touch(wallet)
			continue
		}
		if ts < s.first {
			s.first = ts
		}
		if ts > s.last {
			s.last = ts
		}
	}

	for wallet, s := range spans {
		t.values[wallet] = (s.last - s.first) / 1000
	}
	return t.rank(TopN)
}
