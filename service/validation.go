package service

import (
	"regexp"
	"strings"

	"github.com/zlnvch/pixelverse/models"
)

const maxColorLength = 64

// Colors are not parsed: any short value made of the characters CSS color
// syntax uses is stored as given (#rgb, #rrggbbaa, names, rgb(), hsl()).
var colorRegex = regexp.MustCompile(`^[A-Za-z0-9#(),.%/ -]+$`)

// Covers both 0x-prefixed hex and base58 addresses
var walletRegex = regexp.MustCompile(`^[A-Za-z0-9]{1,128}$`)

func ValidateCoordinates(x, y int) error {
	if !models.InBounds(x, y) {
		return badRequestf("coordinates (%d,%d) outside the %dx%d canvas", x, y, models.CanvasSize, models.CanvasSize)
	}
	return nil
}

func ValidateColor(color string) error {
	if strings.TrimSpace(color) == "" {
		return badRequestf("color is required")
	}
	if len(color) > maxColorLength {
		return badRequestf("color longer than %d characters", maxColorLength)
	}
	if !colorRegex.MatchString(color) {
		return badRequestf("invalid color '%s'", color)
	}
	return nil
}

func ValidateWallet(wallet string) error {
	if !walletRegex.MatchString(wallet) {
		return badRequestf("invalid wallet address")
	}
	return nil
}

// NormalizeWallet trims surrounding whitespace; "anonymous" and "null" mean
// no wallet.
func NormalizeWallet(wallet string) string {
	wallet = strings.TrimSpace(wallet)
	switch wallet {
	case "anonymous", "null", "undefined":
		return ""
	}
	return wallet
}
