package models

// UsageType represents the usage class of a patient account
type UsageType string

const (
	UsagePersonal UsageType = "personal"
	UsageHospital UsageType = "hospital"
)

// Patient represents a pill case owner. Patients are created on first
// contact and never hard-deleted: only their relations change.
type Patient struct {
	UserID     int            `json:"userID"`
	UserName   string         `json:"userName"` // 在患者和助理之间全局唯一
	Password   string         `json:"password"` // bcrypt 哈希
	Usage      UsageType      `json:"usage"`
	ChatID     int64          `json:"chatID"` // 通知前端的会话ID
	LastUpdate string         `json:"last_update"`
	Devices    []Device       `json:"devices"`
	Assistants []AssistantRef `json:"assistants"`
}

// Assistant represents a caregiver following one or more patients.
// Assistants share the same ID space and username namespace as patients.
type Assistant struct {
	UserID           int          `json:"userID"`
	UserName         string       `json:"userName"`
	ChatID           int64        `json:"chatID"`
	LastUpdate       string       `json:"last_update"`
	AssistedPatients []PatientRef `json:"assistedPatients"`
}

// AssistantRef 患者侧的助理关联
type AssistantRef struct {
	AssistantID int `json:"assistantID"`
}

// PatientRef 助理侧的患者关联
type PatientRef struct {
	PatientID int `json:"patientID"`
}

// UserSummary 用户概要（用户名+ID），用于助理/患者互查
type UserSummary struct {
	UserName string `json:"username"`
	UserID   int    `json:"userID"`
}

// ProfileData 患者的账户信息
type ProfileData struct {
	UserName string `json:"username"`
	Password string `json:"password"`
	Usage    string `json:"usage"`
}
