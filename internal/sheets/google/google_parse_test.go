package google

import (
	"testing"
)

func TestParseHistory(t *testing.T) {
	tests := []struct {
		name   string
		values [][]interface{}
		want   int
	}{
		{"empty", nil, 0},
		{"header only", [][]interface{}{{"Taken at", "Kind"}}, 0},
		{"short row", [][]interface{}{{"2024-01-01 00:00:00", "total"}}, 0},
		{"bad timestamp", [][]interface{}{{"yesterday", "total", "", "", "", "1.00", "EUR"}}, 0},
		{"bad amount", [][]interface{}{{"2024-01-01 00:00:00", "total", "", "", "", "n/a", "EUR"}}, 0},
		{"numeric cell", [][]interface{}{{"2024-01-01 00:00:00", "TOTAL", "", "", "", 12.5, "EUR"}}, 1},
		{"accounts ignored", [][]interface{}{
			{"2024-01-01 00:00:00", "account", "Giro", "", "", "1.00", "EUR"},
			{"2024-01-01 00:00:00", "cash", "Cash", "", "", "1.00", "EUR"},
			{"2024-01-01 00:00:00", "total", "Net worth", "", "", "2.00", "EUR"},
		}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseHistory(tt.values); len(got) != tt.want {
				t.Errorf("parseHistory() returned %d points, want %d", len(got), tt.want)
			}
		})
	}
}
