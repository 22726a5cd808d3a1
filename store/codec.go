package store

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/zlnvch/pixelverse/models"
)

// storedPixel is the structured value format. Legacy entries hold a bare
// color string instead.
type storedPixel struct {
	Color         string  `json:"color"`
	WalletAddress *string `json:"walletAddress"`
	Timestamp     *int64  `json:"timestamp"`
}

func CoordKey(x int, y int) string {
	return strconv.Itoa(x) + "," + strconv.Itoa(y)
}

func ParseCoordKey(key string) (int, int, error) {
	xs, ys, ok := strings.Cut(key, ",")
	if !ok {
		return 0, 0, eris.Errorf("malformed coordinate key %q", key)
	}
	x, err := strconv.Atoi(xs)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "malformed x in key %q", key)
	}
	y, err := strconv.Atoi(ys)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "malformed y in key %q", key)
	}
	return x, y, nil
}

func EncodeRecord(record models.PixelRecord) ([]byte, error) {
	b, err := json.Marshal(storedPixel{
		Color:         record.Color,
		WalletAddress: record.WalletAddress,
		Timestamp:     record.Timestamp,
	})
	if err != nil {
		return nil, eris.Wrap(err, "failed to encode pixel")
	}
	return b, nil
}

// DecodeRecord turns a stored key/value pair into a record. A value that is
// not a structured object is read as a legacy bare color with no wallet and
// no timestamp, so callers never see the legacy shape.
func DecodeRecord(key string, raw []byte) (models.PixelRecord, error) {
	x, y, err := ParseCoordKey(key)
	if err != nil {
		return models.PixelRecord{}, err
	}

	record := models.PixelRecord{X: x, Y: y}
	trimmed := bytes.TrimSpace(raw)

	var sp storedPixel
	if len(trimmed) > 0 && trimmed[0] == '{' && json.Unmarshal(trimmed, &sp) == nil {
		record.Color = sp.Color
		record.WalletAddress = sp.WalletAddress
		record.Timestamp = sp.Timestamp
	} else {
		var quoted string
		if json.Unmarshal(trimmed, &quoted) == nil {
			record.Color = quoted
		} else {
			record.Color = string(trimmed)
		}
	}

	if record.Color == "" {
		return models.PixelRecord{}, eris.Errorf("pixel %s has no color", key)
	}
	return record, nil
}
