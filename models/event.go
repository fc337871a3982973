package models

// 消息代码，timeShift 主题上 message 字段的取值
const (
	// MsgDoseDue - 0: 到点了，现在服药
	MsgDoseDue = 0
	// MsgDoseReminder - 1: 催促提醒（每10分钟一次）
	MsgDoseReminder = 1
	// MsgDoseMissed - 2: 超过一小时未服，记为漏服
	MsgDoseMissed = 2
	// MsgDailyStat - 5: 每日统计向量
	MsgDailyStat = 5
)

// 消息结构体定义
type (
	// ReminderMessage timeShift 主题上的提醒/漏服消息
	ReminderMessage struct {
		BN string        `json:"bn"`
		E  ReminderEvent `json:"e"`
	}

	ReminderEvent struct {
		Message   int     `json:"message"`
		Slot      string  `json:"slot"`
		Timestamp float64 `json:"timestamp"`
	}

	// StatMessage 每日统计消息，slot 字段携带每槽的服药总数
	StatMessage struct {
		BN string    `json:"bn"`
		E  StatEvent `json:"e"`
	}

	StatEvent struct {
		Message   int            `json:"message"`
		Slot      map[string]int `json:"slot"`
		Timestamp float64        `json:"timestamp"`
	}

	// LidMessage 设备发布的开/合盖事件
	LidMessage struct {
		BN string   `json:"bn"`
		E  LidEvent `json:"e"`
	}

	LidEvent struct {
		Open      int     `json:"open"` // 1=开盖, 0=合盖
		Timestamp float64 `json:"timestamp"`
	}

	// EnvMessage 设备发布的温湿度遥测
	EnvMessage struct {
		BN string       `json:"bn"`
		E  []EnvReading `json:"e"`
	}

	EnvReading struct {
		Name      string  `json:"name"` // "temperature" 或 "humidity"
		Value     float64 `json:"value"`
		Unit      string  `json:"unit"`
		Timestamp float64 `json:"timestamp"`
	}

	// ViolationMessage 温湿度越界告警
	ViolationMessage struct {
		BN string             `json:"bn"`
		E  []ViolationReading `json:"e"`
	}

	ViolationReading struct {
		SensorName string  `json:"sensorName"`
		Value      float64 `json:"value"`
		Unit       string  `json:"unit"`
		Timestamp  float64 `json:"timestamp"`
	}

	// DiffMessage 合盖后每槽药量差值
	DiffMessage struct {
		BN string    `json:"bn"`
		E  DiffEvent `json:"e"`
	}

	DiffEvent struct {
		Difference []int   `json:"difference"`
		Timestamp  float64 `json:"timestamp"`
	}

	// OpeningWarningMessage 药盒开盖过久告警
	OpeningWarningMessage struct {
		BN string       `json:"bn"`
		E  OpeningEvent `json:"e"`
	}

	OpeningEvent struct {
		OpenedTooMuch bool    `json:"openedTooMuch"`
		Timestamp     float64 `json:"timestamp"`
	}

	// CounterMessage 设备 /counters 接口返回的每槽药量
	CounterMessage struct {
		BN string       `json:"bn"`
		E  CounterEvent `json:"e"`
	}

	CounterEvent struct {
		Number    []int  `json:"number"`
		Timestamp string `json:"timestamp"`
	}

	// LEDCommand 设备 LED 控制指令（直连设备HTTP，不走总线）
	LEDCommand struct {
		BN     string `json:"bn"`
		SlotID int    `json:"slotID"`
		On     int    `json:"on"`
	}

	// AlarmCommand 设备蜂鸣器控制指令
	AlarmCommand struct {
		BN string `json:"bn"`
		On int    `json:"on"`
	}

	// OwnerCommand 认领设备时推送给设备的归属患者ID
	OwnerCommand struct {
		UserID int `json:"userID"`
	}

	// DeviceStat 一对 (患者,设备) 的每日统计
	DeviceStat struct {
		PatientID int            `json:"patientID"`
		DeviceID  int            `json:"deviceID"`
		Stat      map[string]int `json:"stat"`
	}
)
