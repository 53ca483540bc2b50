package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStats_PerSecretSumWins(t *testing.T) {
	raw := "uptime\t1234\n" +
		"total_special_connections\t40\n" +
		"total_max_special_connections\t60000\n" +
		"secret_1_active_connections\t3\n" +
		"secret_2_active_connections\t4\n" +
		"garbage line\n"

	stats := ParseStats(raw)
	assert.Equal(t, 7, stats.Connections)
	assert.Equal(t, 60000, stats.MaxConnections)
	assert.Equal(t, map[int]int{1: 3, 2: 4}, stats.PerSecret)
}

func TestParseStats_TotalWithoutPerSecret(t *testing.T) {
	stats := ParseStats("total_special_connections\t12\ntotal_max_special_connections\t100\n")
	assert.Equal(t, 12, stats.Connections)
	assert.Equal(t, 100, stats.MaxConnections)
	assert.Empty(t, stats.PerSecret)
}

func TestParseStats_LenientValues(t *testing.T) {
	stats := ParseStats("total_special_connections\tnope\ntotal_max_special_connections\t15 peak\n")
	assert.Equal(t, 0, stats.Connections)
	assert.Equal(t, 15, stats.MaxConnections)
}

func TestParseStats_Empty(t *testing.T) {
	stats := ParseStats("")
	assert.Equal(t, 0, stats.Connections)
	assert.Equal(t, 0, stats.MaxConnections)
}

func TestLinkBuilder(t *testing.T) {
	b := NewLinkBuilder("203.0.113.7", 443)
	secret := "0123456789abcdef0123456789abcdef"

	assert.Equal(t,
		"tg://proxy?server=203.0.113.7&port=443&secret=dd0123456789abcdef0123456789abcdef",
		b.AppLink(secret))
	assert.Equal(t,
		"https://t.me/proxy?server=203.0.113.7&port=443&secret=dd0123456789abcdef0123456789abcdef",
		b.WebLink(secret))
}

func TestStrategy_IsValid(t *testing.T) {
	assert.True(t, StrategyFastRestart.IsValid())
	assert.True(t, StrategyRecreate.IsValid())
	assert.False(t, Strategy("rolling").IsValid())
}
