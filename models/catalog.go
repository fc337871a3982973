package models

import (
	"time"
)

// CatalogDocument is the full shared catalog. Every mutation rewrites the
// whole document inside one critical section; readers always observe a
// complete snapshot.
type CatalogDocument struct {
	PatientList   []Patient         `json:"patientList"`
	AssistantList []Assistant       `json:"assistantList"`
	NewDevices    []PooledDevice    `json:"newDevices"`
	AliveServices []LivenessEntry   `json:"aliveServices"`
	Times         []OpeningRecord   `json:"times"`
	PillCount     []PillCountRecord `json:"pillCount"`
}

// EmptyCatalog 初次启动时的空目录
func EmptyCatalog() *CatalogDocument {
	return &CatalogDocument{
		PatientList:   []Patient{},
		AssistantList: []Assistant{},
		NewDevices:    []PooledDevice{},
		AliveServices: []LivenessEntry{},
		Times:         []OpeningRecord{},
		PillCount:     []PillCountRecord{},
	}
}

// LivenessEntry 记录每个工作服务最近一次心跳的时间
type LivenessEntry struct {
	Service  string  `json:"service"`
	LastSeen float64 `json:"lastSeen"` // Unix 秒
}

// OpeningRecord 药盒开盖的瞬时记录，合盖时删除。
// 每个 (患者,设备) 至多存在一条。
type OpeningRecord struct {
	PatientID  int     `json:"patientID"`
	DeviceID   int     `json:"deviceID"`
	TimeOpened float64 `json:"timeOpened"` // Unix 秒
}

// PillCountRecord 开盖瞬间每个药槽的药量快照，合盖时读取并删除
type PillCountRecord struct {
	PatientID   int   `json:"patientID"`
	DeviceID    int   `json:"deviceID"`
	CountOpened []int `json:"countOpened"`
}

// SystemConf 系统级配置，供每个微服务启动时获取
type SystemConf struct {
	BaseTopic string `json:"baseTopic"`
	Broker    string `json:"broker"`
	Port      int    `json:"port"`
}

// HeartbeatPayload 心跳应答：按服务角色返回该角色需要刷新的状态切片
type HeartbeatPayload struct {
	Times      []OpeningRecord   `json:"times,omitempty"`
	Thresholds []Thresholds      `json:"thresholds,omitempty"`
	PillCount  []PillCountRecord `json:"pillCount,omitempty"`
}

// CatalogSnapshot is the persisted form of the catalog: one row holding
// the JSON document plus its version marker. The version changes if and
// only if a mutation completed.
type CatalogSnapshot struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Version   int64     `gorm:"not null" json:"version"`
	Data      []byte    `gorm:"type:json" json:"data"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
