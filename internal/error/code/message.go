package code

// 错误码消息映射
var codeMessageMap = map[int]string{
	// 通用错误码
	ErrSuccess:    "成功",
	ErrUnknown:    "未知错误",
	ErrBind:       "请求参数绑定错误",
	ErrValidation: "请求参数验证错误",

	// 用户相关错误码
	ErrUserNotFound:      "用户不存在",
	ErrUsernameExists:    "用户名已存在",
	ErrPasswordIncorrect: "用户名或密码错误",

	// 设备相关错误码
	ErrDeviceNotFound:    "设备不存在",
	ErrDeviceUnreachable: "设备不可达",
	ErrSlotNotFound:      "药槽不存在",
	ErrAlarmNotFound:     "闹钟不存在",

	// 助理相关错误码
	ErrAssistantNotFound: "助理不存在",
	ErrAlreadyAssociated: "助理已在协助该患者",

	// 记录相关错误码
	ErrRecordNotFound: "记录不存在",

	// 存储相关错误码
	ErrPersistence: "目录存储错误",
}

// 错误码HTTP状态码映射
var codeStatusMap = map[int]int{
	// 通用错误码
	ErrSuccess:    StatusOK,
	ErrUnknown:    StatusInternalServerError,
	ErrBind:       StatusBadRequest,
	ErrValidation: StatusBadRequest,

	// 用户相关错误码
	ErrUserNotFound:      StatusNotFound,
	ErrUsernameExists:    StatusBadRequest,
	ErrPasswordIncorrect: StatusBadRequest,

	// 设备相关错误码
	ErrDeviceNotFound:    StatusNotFound,
	ErrDeviceUnreachable: StatusBadGateway,
	ErrSlotNotFound:      StatusNotFound,
	ErrAlarmNotFound:     StatusNotFound,

	// 助理相关错误码
	ErrAssistantNotFound: StatusNotFound,
	ErrAlreadyAssociated: StatusBadRequest,

	// 记录相关错误码
	ErrRecordNotFound: StatusNotFound,

	// 存储相关错误码
	ErrPersistence: StatusInternalServerError,
}

// GetMessage 获取错误码对应的消息
func GetMessage(code int) string {
	if msg, ok := codeMessageMap[code]; ok {
		return msg
	}
	return "未知错误"
}

// GetStatus 获取错误码对应的HTTP状态码
func GetStatus(code int) int {
	if status, ok := codeStatusMap[code]; ok {
		return status
	}
	return StatusInternalServerError
}
