package models

// Device represents a smart pill case registered to a patient. The slot
// list has fixed length NumSlots, set when the device first announces
// itself and immutable afterwards.
type Device struct {
	DeviceID  int    `json:"deviceID"`
	DeviceURI string `json:"deviceURI"` // 设备自身HTTP端点，LED/闹钟/药量都直连它
	Channel   string `json:"thingSpeakChannel"`

	// 保存环境阈值，上限必须大于下限
	TempUpperThresh float64 `json:"tempUpperThresh"`
	TempLowerThresh float64 `json:"tempLowerThresh"`
	HumUpperThresh  float64 `json:"humUpperThresh"`
	HumLowerThresh  float64 `json:"humLowerThresh"`

	NumSlots int    `json:"numSlots"`
	Slots    []Slot `json:"slots"`
}

// PooledDevice 已上线但尚未被任何患者认领的设备
type PooledDevice struct {
	DeviceID  int    `json:"deviceID"`
	DeviceURI string `json:"deviceURI"`
	NumSlots  int    `json:"numSlots"`
}

// Slot 药槽：药名（可为空）加有序的服药计划列表
type Slot struct {
	PillName string          `json:"pillName"`
	Schedule []ScheduleEntry `json:"schedule"`
}

// ScheduleEntry is one scheduled dose: time of day (HH:MM:SS), dose
// count and alarm flag. Duplicate entries are legal and fire independently.
type ScheduleEntry struct {
	Alarm   int    `json:"alarm"` // 1=响铃提醒, 0=静默
	NumPill int    `json:"numPill"`
	Time    string `json:"time"`
}

// 出厂默认阈值，认领设备和未知设备都按这组值判断
const (
	DefaultTempUpper = 30.0
	DefaultTempLower = 10.0
	DefaultHumUpper  = 60.0
	DefaultHumLower  = 40.0
)

// Thresholds 单个设备的温湿度阈值，保存控制服务整表刷新用
type Thresholds struct {
	DeviceID        int     `json:"deviceID"`
	TempUpperThresh float64 `json:"tempUpperThresh"`
	TempLowerThresh float64 `json:"tempLowerThresh"`
	HumUpperThresh  float64 `json:"humUpperThresh"`
	HumLowerThresh  float64 `json:"humLowerThresh"`
}

// DefaultDevice 返回认领时挂到患者名下的设备记录，阈值取出厂默认值
func DefaultDevice(pooled PooledDevice) Device {
	slots := make([]Slot, pooled.NumSlots)
	for i := range slots {
		slots[i] = Slot{PillName: "", Schedule: []ScheduleEntry{}}
	}
	return Device{
		DeviceID:        pooled.DeviceID,
		DeviceURI:       pooled.DeviceURI,
		Channel:         "None",
		TempUpperThresh: DefaultTempUpper,
		TempLowerThresh: DefaultTempLower,
		HumUpperThresh:  DefaultHumUpper,
		HumLowerThresh:  DefaultHumLower,
		NumSlots:        pooled.NumSlots,
		Slots:           slots,
	}
}
