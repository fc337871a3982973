package services

import (
	"strconv"
	"sync"

	"github.com/LucaRoldo98/ApPills/models"
)

// ScheduleKey 唯一标识一条服药计划：患者/设备/药槽/是否响铃/槽内序号。
// 同一药槽内不同时间的多条计划靠序号区分，重复计划各自独立触发。
type ScheduleKey struct {
	PatientID int
	DeviceID  int
	Slot      int
	Alarm     int
	Seq       int
}

// IndexEntry 计划索引的一个条目：键加上触发所需的设备端点与用药数量，
// 值为当天的触发时刻 HH:MM:SS。
type IndexEntry struct {
	Key       ScheduleKey
	DeviceURI string
	NumPill   int
	Time      string
}

// ScheduleIndex 由目录投影派生的内存索引。重建结果整体替换，
// 读取方拿到的永远是某个完整版本，不会看到半成品。
type ScheduleIndex struct {
	mu      sync.RWMutex
	entries map[ScheduleKey]IndexEntry
}

// NewScheduleIndex 创建空索引
func NewScheduleIndex() *ScheduleIndex {
	return &ScheduleIndex{entries: make(map[ScheduleKey]IndexEntry)}
}

// Entries 返回当前索引。返回的是整个map的引用，替换发生时
// 旧引用仍然可以安全读完。
func (x *ScheduleIndex) Entries() map[ScheduleKey]IndexEntry {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.entries
}

// Replace 用新构建的索引整体替换旧索引（单次引用替换）
func (x *ScheduleIndex) Replace(entries map[ScheduleKey]IndexEntry) {
	x.mu.Lock()
	x.entries = entries
	x.mu.Unlock()
}

// Len 返回条目数量
func (x *ScheduleIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// BuildIndexEntries 从目录的计划投影构建索引条目。
// schedules 的键为 "patientID/deviceID"，值为每个药槽的计划列表。
func BuildIndexEntries(schedules map[string][][]models.ScheduleEntry, deviceURIs map[string]string) map[ScheduleKey]IndexEntry {
	entries := make(map[ScheduleKey]IndexEntry)
	for pairKey, slots := range schedules {
		patientID, deviceID, ok := splitPairKey(pairKey)
		if !ok {
			continue
		}
		uri := deviceURIs[pairKey]
		for slot, schedule := range slots {
			for seq, entry := range schedule {
				key := ScheduleKey{
					PatientID: patientID,
					DeviceID:  deviceID,
					Slot:      slot,
					Alarm:     entry.Alarm,
					Seq:       seq,
				}
				entries[key] = IndexEntry{
					Key:       key,
					DeviceURI: uri,
					NumPill:   entry.NumPill,
					Time:      entry.Time,
				}
			}
		}
	}
	return entries
}

func splitPairKey(pairKey string) (patientID, deviceID int, ok bool) {
	for i := 0; i < len(pairKey); i++ {
		if pairKey[i] == '/' {
			p, err1 := strconv.Atoi(pairKey[:i])
			d, err2 := strconv.Atoi(pairKey[i+1:])
			if err1 != nil || err2 != nil {
				return 0, 0, false
			}
			return p, d, true
		}
	}
	return 0, 0, false
}
