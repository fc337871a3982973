package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDailyTallyUpdateAndTakenFlag(t *testing.T) {
	tally := NewDailyTally()
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	tally.Register(1, 1, 3)
	assert.False(t, tally.IsTaken(1, 1, 0))

	// 差值取绝对值累计
	tally.UpdateValue(1, 1, 0, -2, now)
	assert.True(t, tally.IsTaken(1, 1, 0))
	assert.Equal(t, []int{2, 0, 0}, tally.Totals(1, 1))

	tally.UpdateValue(1, 1, 0, -1, now.Add(time.Minute))
	assert.Equal(t, []int{3, 0, 0}, tally.Totals(1, 1))

	// 未登记的设备和越界药槽都被忽略
	tally.UpdateValue(9, 9, 0, -1, now)
	assert.Nil(t, tally.Totals(9, 9))
	tally.UpdateValue(1, 1, 7, -1, now)
	assert.Equal(t, []int{3, 0, 0}, tally.Totals(1, 1))
}

func TestDailyTallyTakenFlagClearsAfterOneHour(t *testing.T) {
	tally := NewDailyTally()
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	tally.Register(1, 1, 2)
	tally.UpdateValue(1, 1, 0, -1, now)

	// 一小时内标记保持
	tally.ClearStale(now.Add(59 * time.Minute))
	assert.True(t, tally.IsTaken(1, 1, 0))

	// 一小时后标记清除，累计数不变
	tally.ClearStale(now.Add(time.Hour))
	assert.False(t, tally.IsTaken(1, 1, 0))
	assert.Equal(t, []int{1, 0}, tally.Totals(1, 1))
}

func TestDailyTallyRegisterKeepsExistingData(t *testing.T) {
	tally := NewDailyTally()
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	tally.Register(1, 1, 2)
	tally.UpdateValue(1, 1, 1, -3, now)

	// 槽数不变的重复登记不清数据
	tally.Register(1, 1, 2)
	assert.Equal(t, []int{0, 3}, tally.Totals(1, 1))

	// 槽数变化时重建
	tally.Register(1, 1, 4)
	assert.Equal(t, []int{0, 0, 0, 0}, tally.Totals(1, 1))
}

func TestDailyTallyFlushResetsExactlyOnce(t *testing.T) {
	tally := NewDailyTally()
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	tally.Register(1, 1, 2)
	tally.Register(2, 3, 1)
	tally.UpdateValue(1, 1, 0, -2, now)
	tally.UpdateValue(2, 3, 0, -1, now)

	stats := tally.Flush()
	require.Len(t, stats, 2)

	byDevice := map[[2]int]map[string]int{}
	for _, stat := range stats {
		byDevice[[2]int{stat.PatientID, stat.DeviceID}] = stat.Stat
	}
	assert.Equal(t, map[string]int{"slot0": 2, "slot1": 0}, byDevice[[2]int{1, 1}])
	assert.Equal(t, map[string]int{"slot0": 1}, byDevice[[2]int{2, 3}])

	// 冲刷后归零，Taken标记一并清除
	assert.Equal(t, []int{0, 0}, tally.Totals(1, 1))
	assert.False(t, tally.IsTaken(1, 1, 0))

	stats = tally.Flush()
	for _, stat := range stats {
		for _, n := range stat.Stat {
			assert.Zero(t, n)
		}
	}
}
