package nexusapi

import (
	"strconv"
	"strings"

	"github.com/nexusmods/modlink/internal/stats"
)

// parseLiveCounts maps the stats CSV into counter rows. Each row is
// "modId,totalDownloads,uniqueDownloads,pageViews"; rows with any other field
// count are skipped individually and logged so one bad line does not poison
// the rest of the dataset.
func (c *Client) parseLiveCounts(gameID int64, data string) []stats.ModDownloads {
	lines := strings.Split(data, "\n")
	rows := make([]stats.ModDownloads, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		values := strings.Split(line, ",")
		if len(values) != 4 {
			c.log.Warn().
				Int64("game", gameID).
				Str("row", line).
				Msg("skipping malformed stats row")
			continue
		}

		modID, err1 := strconv.ParseInt(values[0], 10, 64)
		total, err2 := strconv.ParseInt(values[1], 10, 64)
		unique, err3 := strconv.ParseInt(values[2], 10, 64)
		if err1 != nil || err2 != nil || err3 != nil {
			c.log.Warn().
				Int64("game", gameID).
				Str("row", line).
				Msg("skipping non-numeric stats row")
			continue
		}

		rows = append(rows, stats.ModDownloads{
			ModID:           modID,
			TotalDownloads:  total,
			UniqueDownloads: unique,
		})
	}
	return rows
}
