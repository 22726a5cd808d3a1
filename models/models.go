package models

// CanvasSize is the width and height of the square canvas grid.
const CanvasSize = 1000

type PixelRecord struct {
	X             int     `json:"x"`
	Y             int     `json:"y"`
	Color         string  `json:"color"`
	WalletAddress *string `json:"walletAddress"`
	Timestamp     *int64  `json:"timestamp"`
}

// Wallet returns the owning wallet, or "" for anonymous and legacy writes.
func (p PixelRecord) Wallet() string {
	if p.WalletAddress == nil {
		return ""
	}
	return *p.WalletAddress
}

type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p PixelRecord) Coord() Coord {
	return Coord{X: p.X, Y: p.Y}
}

func InBounds(x, y int) bool {
	return x >= 0 && x < CanvasSize && y >= 0 && y < CanvasSize
}

type HistoryEntry struct {
	EventId string      `json:"eventId"`
	Pixel   PixelRecord `json:"pixel"`
}

type LeaderboardEntry struct {
	WalletAddress string `json:"walletAddress"`
	Value         int64  `json:"value"`
	Rank          int    `json:"rank"`
}

// StringPtr and Int64Ptr help build optional record fields.
func StringPtr(s string) *string {
	return &s
}

func Int64Ptr(i int64) *int64 {
	return &i
}
