package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/datallboy/newsflow/internal/engine"
	"github.com/dustin/go-humanize"
)

const barWidth = 20

// renderProgress formats one status line: [====>   ] 50.0% | Speed: 1.2 MB/s | ETA: 2m30s | 500 MB/1.0 GB
func renderProgress(s engine.SlotSnapshot, elapsed time.Duration, final bool) string {
	percent := s.Percent
	speed := s.Speed
	speedLabel, timeLabel := "Speed", "ETA"
	eta := "calc..."

	if final {
		percent = 100
		speedLabel, timeLabel = "Avg", "Time"
		seconds := elapsed.Seconds()
		if seconds < 0.1 {
			seconds = 0.1
		}
		speed = float64(s.Downloaded) / seconds
		eta = elapsed.Truncate(time.Second).String()
	} else if s.SecondsLeft >= 0 {
		eta = (time.Duration(s.SecondsLeft) * time.Second).String()
	}

	completed := int(percent / 100 * barWidth)
	if completed > barWidth {
		completed = barWidth
	}
	bar := strings.Repeat("=", completed)
	if completed < barWidth {
		bar += ">" + strings.Repeat(" ", barWidth-completed-1)
	}

	return fmt.Sprintf("\r[%s] %5.1f%% | %s: %8s/s | %s: %-7s | %s/%s      ",
		bar, percent, speedLabel, humanize.Bytes(uint64(speed)), timeLabel, eta,
		humanize.Bytes(uint64(s.Downloaded)), humanize.Bytes(uint64(s.Size)))
}
