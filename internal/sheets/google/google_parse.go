package google

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"konto/internal/core"
	ports "konto/internal/sheets"
)

// parseHistory picks the net worth rows out of a values matrix as returned
// by the Sheets API. Header rows and rows that do not parse are skipped.
func parseHistory(values [][]interface{}) []ports.HistoryPoint {
	var out []ports.HistoryPoint
	for _, raw := range values {
		row := toStrings(raw)
		if len(row) < 6 || !strings.EqualFold(row[1], ports.KindTotal) {
			continue
		}
		ts, err := time.Parse(ports.TimestampLayout, row[0])
		if err != nil {
			continue
		}
		amount, err := core.ParseAmount(row[5])
		if err != nil {
			continue
		}
		out = append(out, ports.HistoryPoint{TakenAt: ts, NetWorth: amount})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TakenAt.Before(out[j].TakenAt) })
	return out
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}
