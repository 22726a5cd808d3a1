package dynamo

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/zlnvch/pixelverse/models"
	"github.com/zlnvch/pixelverse/store"
)

const (
	pixelPrefix   = "PIXEL#"
	pixelSK       = "PIXEL"
	historyPrefix = "HISTORY#"
)

// dynamoPixel stores the codec value verbatim so that legacy bare-color
// values survive a migration into the table unchanged.
type dynamoPixel struct {
	PK    string `dynamodbav:"PK"`
	SK    string `dynamodbav:"SK"`
	Value string `dynamodbav:"Value"`
}

// Map domain PixelRecord -> Dynamo
func pixelToDynamo(record models.PixelRecord) (dynamoPixel, error) {
	value, err := store.EncodeRecord(record)
	if err != nil {
		return dynamoPixel{}, err
	}
	return dynamoPixel{
		PK:    pixelPrefix + store.CoordKey(record.X, record.Y),
		SK:    pixelSK,
		Value: string(value),
	}, nil
}

// Map Dynamo -> domain PixelRecord
func pixelFromDynamo(dp dynamoPixel) (models.PixelRecord, error) {
	if !strings.HasPrefix(dp.PK, pixelPrefix) {
		return models.PixelRecord{}, eris.Errorf("unexpected pixel PK %q", dp.PK)
	}
	return store.DecodeRecord(dp.PK[len(pixelPrefix):], []byte(dp.Value))
}

type dynamoHistory struct {
	PK    string `dynamodbav:"PK"`
	SK    string `dynamodbav:"SK"`
	Value string `dynamodbav:"Value"`
}

// Map domain HistoryEntry -> Dynamo
func historyToDynamo(entry models.HistoryEntry) (dynamoHistory, error) {
	value, err := store.EncodeRecord(entry.Pixel)
	if err != nil {
		return dynamoHistory{}, err
	}
	return dynamoHistory{
		PK:    historyPrefix + store.CoordKey(entry.Pixel.X, entry.Pixel.Y),
		SK:    entry.EventId,
		Value: string(value),
	}, nil
}

// Map Dynamo -> domain HistoryEntry
func historyFromDynamo(dh dynamoHistory) (models.HistoryEntry, error) {
	if !strings.HasPrefix(dh.PK, historyPrefix) {
		return models.HistoryEntry{}, eris.Errorf("unexpected history PK %q", dh.PK)
	}
	pixel, err := store.DecodeRecord(dh.PK[len(historyPrefix):], []byte(dh.Value))
	if err != nil {
		return models.HistoryEntry{}, err
	}
	return models.HistoryEntry{EventId: dh.SK, Pixel: pixel}, nil
}
