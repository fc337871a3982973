package services

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/LucaRoldo98/ApPills/config"
	"github.com/LucaRoldo98/ApPills/models"
	"github.com/LucaRoldo98/ApPills/utils"
)

// 服务层的错误类型。控制器负责翻译成错误码，存储异常不向外泄露。
var (
	// ErrNotFound 按ID/键查找无结果
	ErrNotFound = errors.New("记录不存在")
	// ErrUsernameExists 用户名在患者或助理中已被占用
	ErrUsernameExists = errors.New("用户名已存在")
	// ErrAlreadyAssociated 助理已在协助该患者（既非成功也非失败的第三种结果）
	ErrAlreadyAssociated = errors.New("助理已在协助该患者")
	// ErrBadCredentials 用户名或密码错误
	ErrBadCredentials = errors.New("用户名或密码错误")
)

// 心跳服务名
const (
	ServiceTimeShift           = "timeShift"
	ServiceOpeningControl      = "openingControl"
	ServiceConservationControl = "conservationControl"
	ServicePillDifference      = "pillDifference"
)

// InterfaceCatalogService 定义目录服务接口。目录是整个系统唯一的权威
// 状态，所有读写都串行通过同一把互斥锁。
type InterfaceCatalogService interface {
	// 读操作（不改变版本号）
	GetCatalog() (*models.CatalogDocument, error)
	GetVersion() (int64, error)
	GetSchedule(userID, deviceID int) ([][]models.ScheduleEntry, error)
	GetSchedules() (map[string][][]models.ScheduleEntry, error)
	GetDeviceURI(userID, deviceID int) (string, error)
	GetTempThresh(userID, deviceID int) (float64, float64, error)
	GetHumThresh(userID, deviceID int) (float64, float64, error)
	GetSlotsName(userID, deviceID int) ([]string, error)
	GetSlotsNumber(userID, deviceID int) (int, error)
	GetDevices(userID int) ([]int, error)
	GetProfileData(userID int) (*models.ProfileData, error)
	GetAssistants(patientID int) ([]models.UserSummary, error)
	GetAssistedPatients(assistantID int) ([]models.UserSummary, error)

	// 目录变更（每次成功都使版本号+1）
	AddUser(userName, password, usage string, chatID int64) (int, error)
	AddAssistant(userName string, chatID int64) (int, error)
	NewDevice(remoteIP string, port, numSlots int) (int, error)
	ClaimDevice(deviceID, userID int) error
	ReleaseDevice(userID, deviceID int) error
	AddPill(userID, deviceID, slot int, pillName string) error
	AddSchedule(userID, deviceID, slot int, entry models.ScheduleEntry) error
	RemoveAlarm(userID, deviceID, slot, alarmIndex int) error
	UpdateTempThresh(userID, deviceID int, upper, lower float64) error
	UpdateHumThresh(userID, deviceID int, upper, lower float64) error
	UpdateChannel(userID, deviceID int, channel string) error
	ChangePassword(userID int, newPassword string) error
	AssistUser(username, password string, assistantID int) error
	DissociatePatient(assistantID, patientID int) error

	// 瞬态记录与心跳（持久化但不改变版本号，轮询方无须因此重建投影）
	AddOpeningTime(record models.OpeningRecord) error
	RemoveOpeningTime(patientID, deviceID int) error
	AddOpeningPills(record models.PillCountRecord) error
	ConsumeOpeningPills(patientID, deviceID int) ([]int, error)
	Heartbeat(serviceName string) (*models.HeartbeatPayload, error)

	SweepStaleServices() []string
	StartSweeper()
}

// CatalogService 提供目录相关的服务
type CatalogService struct {
	Store   SnapshotStore
	Redis   InterfaceCatalogCache // 可为nil，缓存是尽力而为的
	Devices InterfaceDeviceClient // 认领/释放设备时直连设备推送归属

	// Now 可注入的时钟，便于测试心跳过期
	Now        func() time.Time
	StaleAfter time.Duration

	mu sync.Mutex
}

// NewCatalogService 创建一个新的目录服务
func NewCatalogService(store SnapshotStore, cache InterfaceCatalogCache, devices InterfaceDeviceClient) *CatalogService {
	return &CatalogService{
		Store:      store,
		Redis:      cache,
		Devices:    devices,
		Now:        time.Now,
		StaleAfter: 60 * time.Second,
	}
}

// load 在临界区内读取完整目录。持久层损坏时进程不能继续运行。
func (s *CatalogService) load() (*models.CatalogDocument, int64) {
	doc, version, err := s.Store.Load()
	if err != nil {
		config.Fatal("目录读取失败，进程退出: %v", err)
	}
	return doc, version
}

// save 在临界区内覆盖写入完整目录。bump 为真时版本号+1。
func (s *CatalogService) save(doc *models.CatalogDocument, version int64, bump bool) int64 {
	if bump {
		version++
	}
	if err := s.Store.Save(doc, version); err != nil {
		config.Fatal("目录写入失败，进程退出: %v", err)
	}
	if s.Redis != nil {
		if err := s.Redis.CacheCatalog(doc, version); err != nil {
			// 刷新失败时必须作废旧条目，否则读路径会一直供应过期的版本号
			config.Warning("目录缓存刷新失败，作废缓存: %v", err)
			if err := s.Redis.InvalidateCatalog(); err != nil {
				config.Warning("目录缓存作废失败: %v", err)
			}
		}
	}
	return version
}

// deviceKey 拼出 patientID/deviceID 形式的键
func deviceKey(patientID, deviceID int) string {
	return strconv.Itoa(patientID) + "/" + strconv.Itoa(deviceID)
}

// findPatient 返回目录中指定患者的指针
func findPatient(doc *models.CatalogDocument, userID int) *models.Patient {
	for i := range doc.PatientList {
		if doc.PatientList[i].UserID == userID {
			return &doc.PatientList[i]
		}
	}
	return nil
}

// findAssistant 返回目录中指定助理的指针
func findAssistant(doc *models.CatalogDocument, userID int) *models.Assistant {
	for i := range doc.AssistantList {
		if doc.AssistantList[i].UserID == userID {
			return &doc.AssistantList[i]
		}
	}
	return nil
}

// findDevice 返回患者名下指定设备的指针
func findDevice(patient *models.Patient, deviceID int) *models.Device {
	for i := range patient.Devices {
		if patient.Devices[i].DeviceID == deviceID {
			return &patient.Devices[i]
		}
	}
	return nil
}

// maxIDs 扫描目录得到当前最大的用户ID和设备ID，新ID在此基础上+1
func maxIDs(doc *models.CatalogDocument) (maxUserID, maxDeviceID int) {
	for i := range doc.PatientList {
		if doc.PatientList[i].UserID > maxUserID {
			maxUserID = doc.PatientList[i].UserID
		}
		for j := range doc.PatientList[i].Devices {
			if doc.PatientList[i].Devices[j].DeviceID > maxDeviceID {
				maxDeviceID = doc.PatientList[i].Devices[j].DeviceID
			}
		}
	}
	for i := range doc.AssistantList {
		if doc.AssistantList[i].UserID > maxUserID {
			maxUserID = doc.AssistantList[i].UserID
		}
	}
	for i := range doc.NewDevices {
		if doc.NewDevices[i].DeviceID > maxDeviceID {
			maxDeviceID = doc.NewDevices[i].DeviceID
		}
	}
	return maxUserID, maxDeviceID
}

// ------------------------- 读操作 -------------------------

// GetCatalog 返回完整目录。优先走Redis缓存，未命中再读库。
func (s *CatalogService) GetCatalog() (*models.CatalogDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Redis != nil {
		if doc, err := s.Redis.GetCachedCatalog(); err == nil {
			return doc, nil
		}
	}
	doc, _ := s.load()
	return doc, nil
}

// GetVersion 返回当前版本号，轮询方用它判断是否需要重新拉取
func (s *CatalogService) GetVersion() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Redis != nil {
		if version, err := s.Redis.GetCachedVersion(); err == nil {
			return version, nil
		}
	}
	_, version := s.load()
	return version, nil
}

// GetSchedule 返回指定设备每个药槽的服药计划
func (s *CatalogService) GetSchedule(userID, deviceID int) ([][]models.ScheduleEntry, error) {
	s.mu.Lock()
	doc, _ := s.load()
	s.mu.Unlock()

	patient := findPatient(doc, userID)
	if patient == nil {
		return nil, ErrNotFound
	}
	device := findDevice(patient, deviceID)
	if device == nil {
		return nil, ErrNotFound
	}

	result := make([][]models.ScheduleEntry, 0, len(device.Slots))
	for _, slot := range device.Slots {
		result = append(result, slot.Schedule)
	}
	return result, nil
}

// GetSchedules 返回每对 (患者,设备) 的完整计划投影，键为 "patientID/deviceID"
func (s *CatalogService) GetSchedules() (map[string][][]models.ScheduleEntry, error) {
	s.mu.Lock()
	doc, _ := s.load()
	s.mu.Unlock()

	send := make(map[string][][]models.ScheduleEntry)
	for _, patient := range doc.PatientList {
		for _, device := range patient.Devices {
			sched := make([][]models.ScheduleEntry, 0, len(device.Slots))
			for _, slot := range device.Slots {
				sched = append(sched, slot.Schedule)
			}
			send[deviceKey(patient.UserID, device.DeviceID)] = sched
		}
	}
	return send, nil
}

// GetDeviceURI 返回设备自身的HTTP端点
func (s *CatalogService) GetDeviceURI(userID, deviceID int) (string, error) {
	s.mu.Lock()
	doc, _ := s.load()
	s.mu.Unlock()

	patient := findPatient(doc, userID)
	if patient == nil {
		return "", ErrNotFound
	}
	device := findDevice(patient, deviceID)
	if device == nil {
		return "", ErrNotFound
	}
	return device.DeviceURI, nil
}

// GetTempThresh 返回温度上下限
func (s *CatalogService) GetTempThresh(userID, deviceID int) (float64, float64, error) {
	s.mu.Lock()
	doc, _ := s.load()
	s.mu.Unlock()

	patient := findPatient(doc, userID)
	if patient == nil {
		return 0, 0, ErrNotFound
	}
	device := findDevice(patient, deviceID)
	if device == nil {
		return 0, 0, ErrNotFound
	}
	return device.TempUpperThresh, device.TempLowerThresh, nil
}

// GetHumThresh 返回湿度上下限
func (s *CatalogService) GetHumThresh(userID, deviceID int) (float64, float64, error) {
	s.mu.Lock()
	doc, _ := s.load()
	s.mu.Unlock()

	patient := findPatient(doc, userID)
	if patient == nil {
		return 0, 0, ErrNotFound
	}
	device := findDevice(patient, deviceID)
	if device == nil {
		return 0, 0, ErrNotFound
	}
	return device.HumUpperThresh, device.HumLowerThresh, nil
}

// GetSlotsName 返回每个药槽登记的药名
func (s *CatalogService) GetSlotsName(userID, deviceID int) ([]string, error) {
	s.mu.Lock()
	doc, _ := s.load()
	s.mu.Unlock()

	patient := findPatient(doc, userID)
	if patient == nil {
		return nil, ErrNotFound
	}
	device := findDevice(patient, deviceID)
	if device == nil {
		return nil, ErrNotFound
	}

	names := make([]string, 0, len(device.Slots))
	for _, slot := range device.Slots {
		names = append(names, slot.PillName)
	}
	return names, nil
}

// GetSlotsNumber 返回设备药槽数量
func (s *CatalogService) GetSlotsNumber(userID, deviceID int) (int, error) {
	s.mu.Lock()
	doc, _ := s.load()
	s.mu.Unlock()

	patient := findPatient(doc, userID)
	if patient == nil {
		return 0, ErrNotFound
	}
	device := findDevice(patient, deviceID)
	if device == nil {
		return 0, ErrNotFound
	}
	return device.NumSlots, nil
}

// GetDevices 返回患者名下全部设备ID
func (s *CatalogService) GetDevices(userID int) ([]int, error) {
	s.mu.Lock()
	doc, _ := s.load()
	s.mu.Unlock()

	patient := findPatient(doc, userID)
	if patient == nil {
		return nil, ErrNotFound
	}

	ids := make([]int, 0, len(patient.Devices))
	for _, device := range patient.Devices {
		ids = append(ids, device.DeviceID)
	}
	return ids, nil
}

// GetProfileData 返回患者账户信息
func (s *CatalogService) GetProfileData(userID int) (*models.ProfileData, error) {
	s.mu.Lock()
	doc, _ := s.load()
	s.mu.Unlock()

	patient := findPatient(doc, userID)
	if patient == nil {
		return nil, ErrNotFound
	}
	return &models.ProfileData{
		UserName: patient.UserName,
		Password: patient.Password,
		Usage:    string(patient.Usage),
	}, nil
}

// GetAssistants 返回正在协助该患者的全部助理
func (s *CatalogService) GetAssistants(patientID int) ([]models.UserSummary, error) {
	s.mu.Lock()
	doc, _ := s.load()
	s.mu.Unlock()

	patient := findPatient(doc, patientID)
	if patient == nil {
		return nil, ErrNotFound
	}

	result := make([]models.UserSummary, 0, len(patient.Assistants))
	for _, ref := range patient.Assistants {
		if assistant := findAssistant(doc, ref.AssistantID); assistant != nil {
			result = append(result, models.UserSummary{UserName: assistant.UserName, UserID: assistant.UserID})
		}
	}
	return result, nil
}

// GetAssistedPatients 返回助理正在协助的全部患者
func (s *CatalogService) GetAssistedPatients(assistantID int) ([]models.UserSummary, error) {
	s.mu.Lock()
	doc, _ := s.load()
	s.mu.Unlock()

	assistant := findAssistant(doc, assistantID)
	if assistant == nil {
		return nil, ErrNotFound
	}

	result := make([]models.UserSummary, 0, len(assistant.AssistedPatients))
	for _, ref := range assistant.AssistedPatients {
		if patient := findPatient(doc, ref.PatientID); patient != nil {
			result = append(result, models.UserSummary{UserName: patient.UserName, UserID: patient.UserID})
		}
	}
	return result, nil
}

// allThresholds 汇总系统里每台设备的温湿度阈值，随conservationControl的心跳下发
func allThresholds(doc *models.CatalogDocument) []models.Thresholds {
	result := []models.Thresholds{}
	for _, patient := range doc.PatientList {
		for _, device := range patient.Devices {
			result = append(result, models.Thresholds{
				DeviceID:        device.DeviceID,
				TempUpperThresh: device.TempUpperThresh,
				TempLowerThresh: device.TempLowerThresh,
				HumUpperThresh:  device.HumUpperThresh,
				HumLowerThresh:  device.HumLowerThresh,
			})
		}
	}
	return result
}

// ------------------------- 目录变更 -------------------------

// AddUser 创建新患者。用户名在患者和助理之间都不允许重复。
func (s *CatalogService) AddUser(userName, password, usage string, chatID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, version := s.load()
	for _, patient := range doc.PatientList {
		if patient.UserName == userName {
			return 0, ErrUsernameExists
		}
	}
	for _, assistant := range doc.AssistantList {
		if assistant.UserName == userName {
			return 0, ErrUsernameExists
		}
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return 0, err
	}

	usageType := models.UsagePersonal
	if len(usage) > 0 && (usage[0] == 'h' || usage[0] == 'H') {
		usageType = models.UsageHospital
	}

	maxUserID, _ := maxIDs(doc)
	userID := maxUserID + 1
	doc.PatientList = append(doc.PatientList, models.Patient{
		UserID:     userID,
		UserName:   userName,
		Password:   hash,
		Usage:      usageType,
		ChatID:     chatID,
		LastUpdate: s.Now().Format(time.ANSIC),
		Devices:    []models.Device{},
		Assistants: []models.AssistantRef{},
	})
	s.save(doc, version, true)
	return userID, nil
}

// AddAssistant 创建新助理，与患者共用同一个ID空间和用户名命名空间
func (s *CatalogService) AddAssistant(userName string, chatID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, version := s.load()
	for _, patient := range doc.PatientList {
		if patient.UserName == userName {
			return 0, ErrUsernameExists
		}
	}
	for _, assistant := range doc.AssistantList {
		if assistant.UserName == userName {
			return 0, ErrUsernameExists
		}
	}

	maxUserID, _ := maxIDs(doc)
	userID := maxUserID + 1
	doc.AssistantList = append(doc.AssistantList, models.Assistant{
		UserID:           userID,
		UserName:         userName,
		ChatID:           chatID,
		LastUpdate:       s.Now().Format(time.ANSIC),
		AssistedPatients: []models.PatientRef{},
	})
	s.save(doc, version, true)
	return userID, nil
}

// NewDevice 设备首次上线：进入待认领池，分配单调递增的设备ID
func (s *CatalogService) NewDevice(remoteIP string, port, numSlots int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, version := s.load()
	_, maxDeviceID := maxIDs(doc)
	deviceID := maxDeviceID + 1
	doc.NewDevices = append(doc.NewDevices, models.PooledDevice{
		DeviceID:  deviceID,
		DeviceURI: fmt.Sprintf("http://%s:%d", remoteIP, port),
		NumSlots:  numSlots,
	})
	s.save(doc, version, true)
	return deviceID, nil
}

// ClaimDevice 患者认领池中的设备。设备ID不在池中或患者不存在都返回
// ErrNotFound，目录不发生任何变化。
func (s *CatalogService) ClaimDevice(deviceID, userID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, version := s.load()

	patient := findPatient(doc, userID)
	if patient == nil {
		return ErrNotFound
	}

	poolIndex := -1
	for i := range doc.NewDevices {
		if doc.NewDevices[i].DeviceID == deviceID {
			poolIndex = i
			break
		}
	}
	if poolIndex == -1 {
		return ErrNotFound
	}

	pooled := doc.NewDevices[poolIndex]
	doc.NewDevices = append(doc.NewDevices[:poolIndex], doc.NewDevices[poolIndex+1:]...)
	patient.Devices = append(patient.Devices, models.DefaultDevice(pooled))
	s.save(doc, version, true)

	// 告知设备它被哪个患者认领了。设备不可达不回滚认领，下次事件自然补齐。
	if s.Devices != nil {
		if err := s.Devices.SetOwner(pooled.DeviceURI, userID); err != nil {
			config.Warning("通知设备 %d 归属失败: %v", deviceID, err)
		}
	}
	return nil
}

// ReleaseDevice 把设备从患者名下放回待认领池
func (s *CatalogService) ReleaseDevice(userID, deviceID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, version := s.load()
	patient := findPatient(doc, userID)
	if patient == nil {
		return ErrNotFound
	}

	deviceIndex := -1
	for i := range patient.Devices {
		if patient.Devices[i].DeviceID == deviceID {
			deviceIndex = i
			break
		}
	}
	if deviceIndex == -1 {
		return ErrNotFound
	}

	released := patient.Devices[deviceIndex]
	patient.Devices = append(patient.Devices[:deviceIndex], patient.Devices[deviceIndex+1:]...)
	doc.NewDevices = append(doc.NewDevices, models.PooledDevice{
		DeviceID:  released.DeviceID,
		DeviceURI: released.DeviceURI,
		NumSlots:  released.NumSlots,
	})
	s.save(doc, version, true)

	if s.Devices != nil {
		if err := s.Devices.Dissociate(released.DeviceURI); err != nil {
			config.Warning("通知设备 %d 解除归属失败: %v", deviceID, err)
		}
	}
	return nil
}

// AddPill 登记药槽的药名
func (s *CatalogService) AddPill(userID, deviceID, slot int, pillName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, version := s.load()
	patient := findPatient(doc, userID)
	if patient == nil {
		return ErrNotFound
	}
	device := findDevice(patient, deviceID)
	if device == nil {
		return ErrNotFound
	}
	if slot < 0 || slot >= len(device.Slots) {
		return ErrNotFound
	}

	device.Slots[slot].PillName = pillName
	s.save(doc, version, true)
	return nil
}

// AddSchedule 向药槽追加一条服药计划。重复的计划是合法的，各自独立触发。
func (s *CatalogService) AddSchedule(userID, deviceID, slot int, entry models.ScheduleEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, version := s.load()
	patient := findPatient(doc, userID)
	if patient == nil {
		return ErrNotFound
	}
	device := findDevice(patient, deviceID)
	if device == nil {
		return ErrNotFound
	}
	if slot < 0 || slot >= len(device.Slots) {
		return ErrNotFound
	}

	// 时间统一成 HH:MM:SS，秒固定为00
	if len(entry.Time) == 5 {
		entry.Time += ":00"
	}
	device.Slots[slot].Schedule = append(device.Slots[slot].Schedule, entry)
	s.save(doc, version, true)
	return nil
}

// RemoveAlarm 按序号删除药槽里的一条服药计划
func (s *CatalogService) RemoveAlarm(userID, deviceID, slot, alarmIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, version := s.load()
	patient := findPatient(doc, userID)
	if patient == nil {
		return ErrNotFound
	}
	device := findDevice(patient, deviceID)
	if device == nil {
		return ErrNotFound
	}
	if slot < 0 || slot >= len(device.Slots) {
		return ErrNotFound
	}
	schedule := device.Slots[slot].Schedule
	if alarmIndex < 0 || alarmIndex >= len(schedule) {
		return ErrNotFound
	}

	device.Slots[slot].Schedule = append(schedule[:alarmIndex], schedule[alarmIndex+1:]...)
	s.save(doc, version, true)
	return nil
}

// UpdateTempThresh 修改温度阈值
func (s *CatalogService) UpdateTempThresh(userID, deviceID int, upper, lower float64) error {
	return s.updateThresh(userID, deviceID, func(device *models.Device) {
		device.TempUpperThresh = upper
		device.TempLowerThresh = lower
	})
}

// UpdateHumThresh 修改湿度阈值
func (s *CatalogService) UpdateHumThresh(userID, deviceID int, upper, lower float64) error {
	return s.updateThresh(userID, deviceID, func(device *models.Device) {
		device.HumUpperThresh = upper
		device.HumLowerThresh = lower
	})
}

// UpdateChannel 修改设备的外部图表频道
func (s *CatalogService) UpdateChannel(userID, deviceID int, channel string) error {
	return s.updateThresh(userID, deviceID, func(device *models.Device) {
		device.Channel = channel
	})
}

func (s *CatalogService) updateThresh(userID, deviceID int, apply func(*models.Device)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, version := s.load()
	patient := findPatient(doc, userID)
	if patient == nil {
		return ErrNotFound
	}
	device := findDevice(patient, deviceID)
	if device == nil {
		return ErrNotFound
	}

	apply(device)
	s.save(doc, version, true)
	return nil
}

// ChangePassword 修改患者密码
func (s *CatalogService) ChangePassword(userID int, newPassword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, version := s.load()
	patient := findPatient(doc, userID)
	if patient == nil {
		return ErrNotFound
	}

	hash, err := utils.HashPassword(newPassword)
	if err != nil {
		return err
	}
	patient.Password = hash
	s.save(doc, version, true)
	return nil
}

// AssistUser 助理通过患者的用户名+密码开始协助该患者。
// 已经在协助时返回 ErrAlreadyAssociated，目录不变。
func (s *CatalogService) AssistUser(username, password string, assistantID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, version := s.load()
	for i := range doc.PatientList {
		patient := &doc.PatientList[i]
		if patient.UserName != username || !utils.CheckPasswordHash(password, patient.Password) {
			continue
		}

		for _, ref := range patient.Assistants {
			if ref.AssistantID == assistantID {
				return ErrAlreadyAssociated
			}
		}

		assistant := findAssistant(doc, assistantID)
		if assistant == nil {
			return ErrNotFound
		}
		patient.Assistants = append(patient.Assistants, models.AssistantRef{AssistantID: assistantID})
		assistant.AssistedPatients = append(assistant.AssistedPatients, models.PatientRef{PatientID: patient.UserID})
		s.save(doc, version, true)
		return nil
	}
	return ErrBadCredentials
}

// DissociatePatient 助理停止协助某个患者，双侧关系一起移除
func (s *CatalogService) DissociatePatient(assistantID, patientID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, version := s.load()
	assistant := findAssistant(doc, assistantID)
	patient := findPatient(doc, patientID)
	if assistant == nil || patient == nil {
		return ErrNotFound
	}

	for i, ref := range assistant.AssistedPatients {
		if ref.PatientID == patientID {
			assistant.AssistedPatients = append(assistant.AssistedPatients[:i], assistant.AssistedPatients[i+1:]...)
			break
		}
	}
	for i, ref := range patient.Assistants {
		if ref.AssistantID == assistantID {
			patient.Assistants = append(patient.Assistants[:i], patient.Assistants[i+1:]...)
			break
		}
	}
	s.save(doc, version, true)
	return nil
}

// ------------------------- 瞬态记录与心跳 -------------------------

// AddOpeningTime 记录一次开盖时间。同一 (患者,设备) 至多一条。
func (s *CatalogService) AddOpeningTime(record models.OpeningRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, version := s.load()
	for _, existing := range doc.Times {
		if existing.PatientID == record.PatientID && existing.DeviceID == record.DeviceID {
			return nil
		}
	}
	doc.Times = append(doc.Times, record)
	s.save(doc, version, false)
	return nil
}

// RemoveOpeningTime 合盖后删除开盖记录
func (s *CatalogService) RemoveOpeningTime(patientID, deviceID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, version := s.load()
	for i, record := range doc.Times {
		if record.PatientID == patientID && record.DeviceID == deviceID {
			doc.Times = append(doc.Times[:i], doc.Times[i+1:]...)
			s.save(doc, version, false)
			return nil
		}
	}
	return ErrNotFound
}

// AddOpeningPills 记录开盖瞬间每个药槽的药量快照
func (s *CatalogService) AddOpeningPills(record models.PillCountRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, version := s.load()
	for _, existing := range doc.PillCount {
		if existing.PatientID == record.PatientID && existing.DeviceID == record.DeviceID {
			return nil
		}
	}
	doc.PillCount = append(doc.PillCount, record)
	s.save(doc, version, false)
	return nil
}

// ConsumeOpeningPills 读取并删除开盖药量记录（一次性消费）
func (s *CatalogService) ConsumeOpeningPills(patientID, deviceID int) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, version := s.load()
	for i, record := range doc.PillCount {
		if record.PatientID == patientID && record.DeviceID == deviceID {
			doc.PillCount = append(doc.PillCount[:i], doc.PillCount[i+1:]...)
			s.save(doc, version, false)
			return record.CountOpened, nil
		}
	}
	return nil, ErrNotFound
}

// Heartbeat 工作服务的心跳：更新存活记录，并按角色返回它需要刷新的
// 状态切片（开盖记录/阈值表/药量记录）。
func (s *CatalogService) Heartbeat(serviceName string) (*models.HeartbeatPayload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, version := s.load()
	found := false
	for i := range doc.AliveServices {
		if doc.AliveServices[i].Service == serviceName {
			doc.AliveServices[i].LastSeen = float64(s.Now().Unix())
			found = true
			break
		}
	}
	if !found {
		doc.AliveServices = append(doc.AliveServices, models.LivenessEntry{
			Service:  serviceName,
			LastSeen: float64(s.Now().Unix()),
		})
	}
	s.save(doc, version, false)

	payload := &models.HeartbeatPayload{}
	switch serviceName {
	case ServiceOpeningControl:
		payload.Times = doc.Times
	case ServiceConservationControl:
		payload.Thresholds = allThresholds(doc)
	case ServicePillDifference:
		payload.PillCount = doc.PillCount
	}
	return payload, nil
}

// SweepStaleServices 清除超过存活窗口没有心跳的服务，返回被清除的服务名。
// 只影响运维可见性，不会撤销任何在途的提醒状态。
func (s *CatalogService) SweepStaleServices() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, version := s.load()
	now := float64(s.Now().Unix())
	kept := doc.AliveServices[:0]
	removed := []string{}
	for _, entry := range doc.AliveServices {
		if now-entry.LastSeen > s.StaleAfter.Seconds() {
			removed = append(removed, entry.Service)
			continue
		}
		kept = append(kept, entry)
	}
	if len(removed) == 0 {
		return removed
	}

	doc.AliveServices = kept
	s.save(doc, version, false)
	for _, name := range removed {
		config.Warning("服务 %s 心跳超时，从存活列表移除", name)
	}
	return removed
}

// StartSweeper 启动后台清理协程，每30秒扫一次
func (s *CatalogService) StartSweeper() {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			s.SweepStaleServices()
		}
	}()
}
