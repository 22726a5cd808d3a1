package leaderboard

import "github.com/zlnvch/pixelverse/models"

var neighbours = [4]models.Coord{{X: 1, Y: 0}, {X: -1, Y: 0}, {X: 0, Y: 1}, {X: 0, Y: -1}}

// LargestTerritory ranks wallets by their largest 4-connected region of owned
// pixels. An isolated pixel is a region of size 1.
func LargestTerritory(records []models.PixelRecord) []models.LeaderboardEntry {
	owned := make(map[string]map[models.Coord]struct{})
	t := newTally()

	for _, record := range records {
		wallet := record.Wallet()
		if wallet == "" {
			continue
		}
		coords, ok := owned[wallet]
		if !ok {
			coords = make(map[models.Coord]struct{})
			owned[wallet] = coords
			t.touch(wallet)
		}
		coords[record.Coord()] = struct{}{}
	}

	for wallet, coords := range owned {
		t.values[wallet] = int64(largestRegion(coords))
	}
	return t.rank(TopN)
}

// largestRegion is an iterative flood fill over one wallet's coordinates.
func largestRegion(coords map[models.Coord]struct{}) int {
	visited := make(map[models.Coord]struct{}, len(coords))
	largest := 0
	stack := make([]models.Coord, 0, 64)

	for start := range coords {
		if _, seen := visited[start]; seen {
			continue
		}

		visited[start] = struct{}{}
		stack = append(stack[:0], start)
		size := 0

		for len(stack) > 0 {
			c := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			size++

			for _, d := range neighbours {
				next := models.Coord{X: c.X + d.X, Y: c.Y + d.Y}
				if _, mine := coords[next]; !mine {
					continue
				}
				if _, seen := visited[next]; seen {
					continue
				}
				visited[next] = struct{}{}
				stack = append(stack, next)
			}
		}

		if size > largest {
			largest = size
		}
	}
	return largest
}
