package domain

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"
)

// Stats is a snapshot of proxy connection counters.
type Stats struct {
	Connections    int         `json:"connections"`
	MaxConnections int         `json:"max_connections"`
	PerSecret      map[int]int `json:"per_secret,omitempty"`
}

var secretConnectionsKey = regexp.MustCompile(`^secret_(\d+)_active_connections$`)

// ParseStats parses the proxy's tab-separated stats page.
// When per-secret counters are present their sum replaces the total.
func ParseStats(raw string) *Stats {
	stats := &Stats{PerSecret: make(map[int]int)}
	total := 0

	scanner := bufio.NewScanner(strings.NewReader(raw))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "\t")
		if !ok || key == "" {
			continue
		}
		n := atoiOrZero(value)

		switch key {
		case "total_special_connections":
			total = n
		case "total_max_special_connections":
			stats.MaxConnections = n
		default:
			if m := secretConnectionsKey.FindStringSubmatch(key); m != nil {
				idx, err := strconv.Atoi(m[1])
				if err == nil {
					stats.PerSecret[idx] = n
				}
			}
		}
	}

	if len(stats.PerSecret) > 0 {
		for _, c := range stats.PerSecret {
			stats.Connections += c
		}
	} else {
		stats.Connections = total
	}
	return stats
}

func atoiOrZero(s string) int {
	s = strings.TrimSpace(s)
	// Only the leading integer is significant.
	end := 0
	for end < len(s) && (s[end] >= '0' && s[end] <= '9' || end == 0 && s[end] == '-') {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}
