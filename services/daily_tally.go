package services

import (
	"strconv"
	"sync"
	"time"

	"github.com/LucaRoldo98/ApPills/models"
)

type tallyKey struct {
	PatientID int
	DeviceID  int
}

// deviceTally 某个 (患者,设备) 当天的按槽累计。
// Taken 记录该槽今天是否已服药，TakenAt 用于一小时后自动清除标记。
type deviceTally struct {
	TotPillsDay []int
	Taken       []bool
	TakenAt     []time.Time
}

// DailyTally 按 (患者,设备) 维护当天的服药统计。
// 每日固定时刻整体冲刷并清零，Taken 标记在设置一小时后失效，
// 让同一药槽的晚间计划不被早间的服药记录抑制。
type DailyTally struct {
	mu         sync.Mutex
	devices    map[tallyKey]*deviceTally
	ClearAfter time.Duration
}

// NewDailyTally 创建空统计表，Taken 标记默认一小时后清除
func NewDailyTally() *DailyTally {
	return &DailyTally{
		devices:    make(map[tallyKey]*deviceTally),
		ClearAfter: time.Hour,
	}
}

// Register 登记一台设备的统计槽位。重复登记且槽数不变时保留已有数据。
func (t *DailyTally) Register(patientID, deviceID, numSlots int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := tallyKey{PatientID: patientID, DeviceID: deviceID}
	if existing, ok := t.devices[key]; ok && len(existing.TotPillsDay) == numSlots {
		return
	}
	t.devices[key] = &deviceTally{
		TotPillsDay: make([]int, numSlots),
		Taken:       make([]bool, numSlots),
		TakenAt:     make([]time.Time, numSlots),
	}
}

// UpdateValue 在某个药槽上累计服药数量（取变化量的绝对值），
// 并打上 Taken 标记。槽位越界时忽略。
func (t *DailyTally) UpdateValue(patientID, deviceID, slot, delta int, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	device, ok := t.devices[tallyKey{PatientID: patientID, DeviceID: deviceID}]
	if !ok || slot < 0 || slot >= len(device.TotPillsDay) {
		return
	}
	if delta < 0 {
		delta = -delta
	}
	device.TotPillsDay[slot] += delta
	device.Taken[slot] = true
	device.TakenAt[slot] = now
}

// IsTaken 查询某个药槽当前是否带有 Taken 标记
func (t *DailyTally) IsTaken(patientID, deviceID, slot int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	device, ok := t.devices[tallyKey{PatientID: patientID, DeviceID: deviceID}]
	if !ok || slot < 0 || slot >= len(device.Taken) {
		return false
	}
	return device.Taken[slot]
}

// ClearStale 清除设置超过 ClearAfter 的 Taken 标记，累计数不变
func (t *DailyTally) ClearStale(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, device := range t.devices {
		for i := range device.Taken {
			if device.Taken[i] && now.Sub(device.TakenAt[i]) >= t.ClearAfter {
				device.Taken[i] = false
			}
		}
	}
}

// Flush 导出所有设备的当天统计并全部清零。
// 导出与清零在同一次加锁内完成，保证每天的统计恰好发布一次。
func (t *DailyTally) Flush() []models.DeviceStat {
	t.mu.Lock()
	defer t.mu.Unlock()
	stats := make([]models.DeviceStat, 0, len(t.devices))
	for key, device := range t.devices {
		counts := make(map[string]int, len(device.TotPillsDay))
		for i, n := range device.TotPillsDay {
			counts["slot"+strconv.Itoa(i)] = n
		}
		stats = append(stats, models.DeviceStat{
			PatientID: key.PatientID,
			DeviceID:  key.DeviceID,
			Stat:      counts,
		})
		t.devices[key] = &deviceTally{
			TotPillsDay: make([]int, len(device.TotPillsDay)),
			Taken:       make([]bool, len(device.Taken)),
			TakenAt:     make([]time.Time, len(device.TakenAt)),
		}
	}
	return stats
}

// Totals 返回某台设备当天累计的副本，设备未登记时返回nil
func (t *DailyTally) Totals(patientID, deviceID int) []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	device, ok := t.devices[tallyKey{PatientID: patientID, DeviceID: deviceID}]
	if !ok {
		return nil
	}
	totals := make([]int, len(device.TotPillsDay))
	copy(totals, device.TotPillsDay)
	return totals
}
