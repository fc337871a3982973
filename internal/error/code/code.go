package code

// HTTP状态码.
const (
	// StatusOK - 200: 成功.
	StatusOK = 200
	// StatusBadRequest - 400: 请求参数错误.
	StatusBadRequest = 400
	// StatusNotFound - 404: 资源不存在.
	StatusNotFound = 404
	// StatusBadGateway - 502: 下游设备不可达.
	StatusBadGateway = 502
	// StatusInternalServerError - 500: 服务器内部错误.
	StatusInternalServerError = 500
)

// 通用错误码 (100xxx).
const (
	// ErrSuccess - 200: 成功.
	ErrSuccess int = iota + 100000
	// ErrUnknown - 500: 未知错误.
	ErrUnknown
	// ErrBind - 400: 请求参数绑定错误.
	ErrBind
	// ErrValidation - 400: 请求参数验证错误.
	ErrValidation
)

// 用户相关错误码 (101xxx).
const (
	// ErrUserNotFound - 404: 用户不存在.
	ErrUserNotFound int = iota + 101000
	// ErrUsernameExists - 400: 用户名已被占用（患者与助理共用同一命名空间）.
	ErrUsernameExists
	// ErrPasswordIncorrect - 400: 用户名或密码错误.
	ErrPasswordIncorrect
)

// 设备相关错误码 (102xxx).
const (
	// ErrDeviceNotFound - 404: 设备不存在或不在待注册列表中.
	ErrDeviceNotFound int = iota + 102000
	// ErrDeviceUnreachable - 502: 设备端点无法访问.
	ErrDeviceUnreachable
	// ErrSlotNotFound - 404: 药槽编号超出范围.
	ErrSlotNotFound
	// ErrAlarmNotFound - 404: 闹钟编号超出范围.
	ErrAlarmNotFound
)

// 助理相关错误码 (103xxx).
const (
	// ErrAssistantNotFound - 404: 助理不存在.
	ErrAssistantNotFound int = iota + 103000
	// ErrAlreadyAssociated - 400: 助理已在协助该患者.
	ErrAlreadyAssociated
)

// 记录相关错误码 (104xxx).
const (
	// ErrRecordNotFound - 404: 开盒/药量记录不存在.
	ErrRecordNotFound int = iota + 104000
)

// 存储相关错误码 (105xxx).
const (
	// ErrPersistence - 500: 目录持久化失败.
	ErrPersistence int = iota + 105000
)
