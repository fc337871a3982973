package services

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LucaRoldo98/ApPills/models"
)

// memorySnapshotStore 内存快照存储，行为与数据库实现一致：
// 每次Load都返回深拷贝，写入方改的是自己的副本。
type memorySnapshotStore struct {
	mu      sync.Mutex
	data    []byte
	version int64
}

func newMemorySnapshotStore() *memorySnapshotStore {
	return &memorySnapshotStore{}
}

func (s *memorySnapshotStore) Load() (*models.CatalogDocument, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := models.EmptyCatalog()
	if s.data != nil {
		if err := json.Unmarshal(s.data, doc); err != nil {
			return nil, 0, err
		}
	}
	return doc, s.version, nil
}

func (s *memorySnapshotStore) Save(doc *models.CatalogDocument, version int64) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.data = data
	s.version = version
	s.mu.Unlock()
	return nil
}

// fakeDeviceClient 记录控制面调用的假设备客户端
type fakeDeviceClient struct {
	mu          sync.Mutex
	counters    []int
	countersErr error
	ledCalls    []ledCall
	alarmCalls  []alarmCall
	ownerCalls  []int
	dissociated int
}

type ledCall struct {
	URI  string
	Slot int
	On   bool
}

type alarmCall struct {
	URI string
	On  bool
}

func (f *fakeDeviceClient) GetCounters(deviceURI string) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countersErr != nil {
		return nil, f.countersErr
	}
	return f.counters, nil
}

func (f *fakeDeviceClient) SetLED(deviceURI string, slotID int, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ledCalls = append(f.ledCalls, ledCall{URI: deviceURI, Slot: slotID, On: on})
	return nil
}

func (f *fakeDeviceClient) SetAlarm(deviceURI string, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alarmCalls = append(f.alarmCalls, alarmCall{URI: deviceURI, On: on})
	return nil
}

func (f *fakeDeviceClient) SetOwner(deviceURI string, userID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ownerCalls = append(f.ownerCalls, userID)
	return nil
}

func (f *fakeDeviceClient) Dissociate(deviceURI string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dissociated++
	return nil
}

func newTestCatalog() (*CatalogService, *memorySnapshotStore, *fakeDeviceClient) {
	store := newMemorySnapshotStore()
	devices := &fakeDeviceClient{}
	svc := NewCatalogService(store, nil, devices)
	return svc, store, devices
}

func TestAddUserAssignsIncrementingIDs(t *testing.T) {
	svc, _, _ := newTestCatalog()

	id1, err := svc.AddUser("mario", "secret", "personal", 0)
	require.NoError(t, err)
	id2, err := svc.AddAssistant("luigi", 0)
	require.NoError(t, err)
	id3, err := svc.AddUser("anna", "secret", "hospital", 0)
	require.NoError(t, err)

	// 患者和助理共用同一个ID空间
	assert.Equal(t, 1, id1)
	assert.Equal(t, 2, id2)
	assert.Equal(t, 3, id3)
}

func TestAddUserRejectsDuplicateUsernameAcrossNamespaces(t *testing.T) {
	svc, _, _ := newTestCatalog()

	_, err := svc.AddUser("mario", "secret", "personal", 0)
	require.NoError(t, err)
	_, err = svc.AddAssistant("carla", 0)
	require.NoError(t, err)

	// 患者用户名不能再注册为助理，反之亦然
	_, err = svc.AddAssistant("mario", 0)
	assert.ErrorIs(t, err, ErrUsernameExists)
	_, err = svc.AddUser("carla", "secret", "personal", 0)
	assert.ErrorIs(t, err, ErrUsernameExists)
}

func TestVersionBumpsOnMutationsOnly(t *testing.T) {
	svc, _, _ := newTestCatalog()

	v0, err := svc.GetVersion()
	require.NoError(t, err)

	_, err = svc.AddUser("mario", "secret", "personal", 0)
	require.NoError(t, err)
	v1, err := svc.GetVersion()
	require.NoError(t, err)
	assert.Equal(t, v0+1, v1)

	// 读操作不改变版本号
	_, err = svc.GetSchedules()
	require.NoError(t, err)
	_, err = svc.GetCatalog()
	require.NoError(t, err)
	v2, err := svc.GetVersion()
	require.NoError(t, err)
	assert.Equal(t, v1, v2)

	// 心跳与瞬态记录持久化但不触发版本号变化
	_, err = svc.Heartbeat(ServiceTimeShift)
	require.NoError(t, err)
	err = svc.AddOpeningTime(models.OpeningRecord{PatientID: 1, DeviceID: 1, TimeOpened: 100})
	require.NoError(t, err)
	v3, err := svc.GetVersion()
	require.NoError(t, err)
	assert.Equal(t, v1, v3)
}

func TestClaimDeviceMovesFromPool(t *testing.T) {
	svc, _, devices := newTestCatalog()

	userID, err := svc.AddUser("mario", "secret", "personal", 0)
	require.NoError(t, err)
	deviceID, err := svc.NewDevice("192.168.1.10", 8081, 4)
	require.NoError(t, err)

	require.NoError(t, svc.ClaimDevice(deviceID, userID))

	// 设备从池中消失，挂到患者名下，阈值取出厂默认
	ids, err := svc.GetDevices(userID)
	require.NoError(t, err)
	assert.Equal(t, []int{deviceID}, ids)

	upper, lower, err := svc.GetTempThresh(userID, deviceID)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultTempUpper, upper)
	assert.Equal(t, models.DefaultTempLower, lower)

	uri, err := svc.GetDeviceURI(userID, deviceID)
	require.NoError(t, err)
	assert.Equal(t, "http://192.168.1.10:8081", uri)

	// 认领时把归属推送给了设备
	assert.Equal(t, []int{userID}, devices.ownerCalls)

	// 再次认领同一台设备失败
	assert.ErrorIs(t, svc.ClaimDevice(deviceID, userID), ErrNotFound)
}

func TestClaimDeviceConcurrentExactlyOneWins(t *testing.T) {
	svc, _, _ := newTestCatalog()

	u1, err := svc.AddUser("mario", "secret", "personal", 0)
	require.NoError(t, err)
	u2, err := svc.AddUser("anna", "secret", "personal", 0)
	require.NoError(t, err)
	deviceID, err := svc.NewDevice("192.168.1.10", 8081, 4)
	require.NoError(t, err)

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, userID := range []int{u1, u2} {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			errs <- svc.ClaimDevice(deviceID, id)
		}(userID)
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrNotFound)
		}
	}
	assert.Equal(t, 1, succeeded)
}

func TestClaimDeviceUnknownPatientLeavesCatalogUntouched(t *testing.T) {
	svc, _, _ := newTestCatalog()

	deviceID, err := svc.NewDevice("192.168.1.10", 8081, 4)
	require.NoError(t, err)
	vBefore, err := svc.GetVersion()
	require.NoError(t, err)

	assert.ErrorIs(t, svc.ClaimDevice(deviceID, 99), ErrNotFound)

	vAfter, err := svc.GetVersion()
	require.NoError(t, err)
	assert.Equal(t, vBefore, vAfter)

	// 设备仍在待认领池中，可以被真实患者认领
	userID, err := svc.AddUser("mario", "secret", "personal", 0)
	require.NoError(t, err)
	assert.NoError(t, svc.ClaimDevice(deviceID, userID))
}

func TestReleaseDeviceReturnsToPool(t *testing.T) {
	svc, _, devices := newTestCatalog()

	userID, err := svc.AddUser("mario", "secret", "personal", 0)
	require.NoError(t, err)
	deviceID, err := svc.NewDevice("192.168.1.10", 8081, 4)
	require.NoError(t, err)
	require.NoError(t, svc.ClaimDevice(deviceID, userID))

	require.NoError(t, svc.ReleaseDevice(userID, deviceID))
	assert.Equal(t, 1, devices.dissociated)

	ids, err := svc.GetDevices(userID)
	require.NoError(t, err)
	assert.Empty(t, ids)

	// 回池后可以被再次认领
	assert.NoError(t, svc.ClaimDevice(deviceID, userID))
}

func TestAddScheduleNormalizesTimeAndKeepsDuplicates(t *testing.T) {
	svc, _, _ := newTestCatalog()

	userID, err := svc.AddUser("mario", "secret", "personal", 0)
	require.NoError(t, err)
	deviceID, err := svc.NewDevice("192.168.1.10", 8081, 2)
	require.NoError(t, err)
	require.NoError(t, svc.ClaimDevice(deviceID, userID))

	entry := models.ScheduleEntry{Alarm: 1, NumPill: 2, Time: "08:30"}
	require.NoError(t, svc.AddSchedule(userID, deviceID, 0, entry))
	require.NoError(t, svc.AddSchedule(userID, deviceID, 0, entry))

	sched, err := svc.GetSchedule(userID, deviceID)
	require.NoError(t, err)
	require.Len(t, sched, 2)
	require.Len(t, sched[0], 2)
	// HH:MM 被补全成 HH:MM:SS，重复计划各自保留
	assert.Equal(t, "08:30:00", sched[0][0].Time)
	assert.Equal(t, "08:30:00", sched[0][1].Time)

	// 越界药槽
	assert.ErrorIs(t, svc.AddSchedule(userID, deviceID, 5, entry), ErrNotFound)

	// 按序号删除其中一条
	require.NoError(t, svc.RemoveAlarm(userID, deviceID, 0, 0))
	sched, err = svc.GetSchedule(userID, deviceID)
	require.NoError(t, err)
	assert.Len(t, sched[0], 1)
	assert.ErrorIs(t, svc.RemoveAlarm(userID, deviceID, 0, 5), ErrNotFound)
}

func TestAssistUser(t *testing.T) {
	svc, _, _ := newTestCatalog()

	patientID, err := svc.AddUser("mario", "secret", "personal", 0)
	require.NoError(t, err)
	assistantID, err := svc.AddAssistant("carla", 0)
	require.NoError(t, err)

	// 密码错误
	assert.ErrorIs(t, svc.AssistUser("mario", "wrong", assistantID), ErrBadCredentials)

	require.NoError(t, svc.AssistUser("mario", "secret", assistantID))

	// 重复关联既不是成功也不是失败
	assert.ErrorIs(t, svc.AssistUser("mario", "secret", assistantID), ErrAlreadyAssociated)

	assistants, err := svc.GetAssistants(patientID)
	require.NoError(t, err)
	require.Len(t, assistants, 1)
	assert.Equal(t, "carla", assistants[0].UserName)

	patients, err := svc.GetAssistedPatients(assistantID)
	require.NoError(t, err)
	require.Len(t, patients, 1)
	assert.Equal(t, patientID, patients[0].UserID)

	// 解除后双侧关系都消失
	require.NoError(t, svc.DissociatePatient(assistantID, patientID))
	assistants, err = svc.GetAssistants(patientID)
	require.NoError(t, err)
	assert.Empty(t, assistants)
	patients, err = svc.GetAssistedPatients(assistantID)
	require.NoError(t, err)
	assert.Empty(t, patients)
}

func TestOpeningPillsConsumedOnce(t *testing.T) {
	svc, _, _ := newTestCatalog()

	record := models.PillCountRecord{PatientID: 1, DeviceID: 2, CountOpened: []int{5, 3, 0}}
	require.NoError(t, svc.AddOpeningPills(record))

	counts, err := svc.ConsumeOpeningPills(1, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 3, 0}, counts)

	// 一次性消费，第二次读取失败
	_, err = svc.ConsumeOpeningPills(1, 2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpeningTimeSingleRecordPerDevice(t *testing.T) {
	svc, _, _ := newTestCatalog()

	require.NoError(t, svc.AddOpeningTime(models.OpeningRecord{PatientID: 1, DeviceID: 1, TimeOpened: 100}))
	// 重复登记被忽略，保留第一条
	require.NoError(t, svc.AddOpeningTime(models.OpeningRecord{PatientID: 1, DeviceID: 1, TimeOpened: 200}))

	payload, err := svc.Heartbeat(ServiceOpeningControl)
	require.NoError(t, err)
	require.Len(t, payload.Times, 1)
	assert.Equal(t, float64(100), payload.Times[0].TimeOpened)

	require.NoError(t, svc.RemoveOpeningTime(1, 1))
	assert.ErrorIs(t, svc.RemoveOpeningTime(1, 1), ErrNotFound)
}

func TestHeartbeatRolePayloads(t *testing.T) {
	svc, _, _ := newTestCatalog()

	userID, err := svc.AddUser("mario", "secret", "personal", 0)
	require.NoError(t, err)
	deviceID, err := svc.NewDevice("192.168.1.10", 8081, 4)
	require.NoError(t, err)
	require.NoError(t, svc.ClaimDevice(deviceID, userID))
	require.NoError(t, svc.AddOpeningTime(models.OpeningRecord{PatientID: userID, DeviceID: deviceID, TimeOpened: 100}))
	require.NoError(t, svc.AddOpeningPills(models.PillCountRecord{PatientID: userID, DeviceID: deviceID, CountOpened: []int{1}}))

	payload, err := svc.Heartbeat(ServiceOpeningControl)
	require.NoError(t, err)
	assert.Len(t, payload.Times, 1)
	assert.Empty(t, payload.Thresholds)
	assert.Empty(t, payload.PillCount)

	payload, err = svc.Heartbeat(ServiceConservationControl)
	require.NoError(t, err)
	assert.Len(t, payload.Thresholds, 1)
	assert.Empty(t, payload.Times)

	payload, err = svc.Heartbeat(ServicePillDifference)
	require.NoError(t, err)
	assert.Len(t, payload.PillCount, 1)

	payload, err = svc.Heartbeat(ServiceTimeShift)
	require.NoError(t, err)
	assert.Empty(t, payload.Times)
	assert.Empty(t, payload.Thresholds)
	assert.Empty(t, payload.PillCount)
}

func TestSweepStaleServices(t *testing.T) {
	svc, _, _ := newTestCatalog()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.Now = func() time.Time { return base }

	_, err := svc.Heartbeat(ServiceTimeShift)
	require.NoError(t, err)
	_, err = svc.Heartbeat(ServiceOpeningControl)
	require.NoError(t, err)

	// timeShift 在55秒后又来了一次心跳
	svc.Now = func() time.Time { return base.Add(55 * time.Second) }
	_, err = svc.Heartbeat(ServiceTimeShift)
	require.NoError(t, err)

	// 65秒时 openingControl 已经超过60秒没有心跳
	svc.Now = func() time.Time { return base.Add(65 * time.Second) }
	removed := svc.SweepStaleServices()
	assert.Equal(t, []string{ServiceOpeningControl}, removed)

	// 保持心跳的服务不会被清除
	removed = svc.SweepStaleServices()
	assert.Empty(t, removed)
}

func TestChangePasswordAndProfile(t *testing.T) {
	svc, _, _ := newTestCatalog()

	userID, err := svc.AddUser("mario", "secret", "hospital", 0)
	require.NoError(t, err)

	profile, err := svc.GetProfileData(userID)
	require.NoError(t, err)
	assert.Equal(t, "mario", profile.UserName)
	assert.Equal(t, "hospital", profile.Usage)
	// 密码只存哈希
	assert.NotEqual(t, "secret", profile.Password)

	require.NoError(t, svc.ChangePassword(userID, "newSecret"))

	assistantID, err := svc.AddAssistant("carla", 0)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.AssistUser("mario", "secret", assistantID), ErrBadCredentials)
	assert.NoError(t, svc.AssistUser("mario", "newSecret", assistantID))
}

// fakeCatalogCache 内存目录缓存，可注入刷新失败
type fakeCatalogCache struct {
	mu          sync.Mutex
	data        []byte
	version     int64
	has         bool
	cacheErr    error
	invalidated int
}

func (f *fakeCatalogCache) CacheCatalog(doc *models.CatalogDocument, version int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cacheErr != nil {
		return f.cacheErr
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	f.data = data
	f.version = version
	f.has = true
	return nil
}

func (f *fakeCatalogCache) GetCachedCatalog() (*models.CatalogDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.has {
		return nil, errors.New("缓存未命中")
	}
	doc := models.EmptyCatalog()
	if err := json.Unmarshal(f.data, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (f *fakeCatalogCache) GetCachedVersion() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.has {
		return 0, errors.New("缓存未命中")
	}
	return f.version, nil
}

func (f *fakeCatalogCache) InvalidateCatalog() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.has = false
	f.invalidated++
	return nil
}

func TestCacheRefreshFailureInvalidatesStaleEntries(t *testing.T) {
	store := newMemorySnapshotStore()
	cache := &fakeCatalogCache{}
	svc := NewCatalogService(store, cache, &fakeDeviceClient{})

	_, err := svc.AddUser("mario", "secret", "personal", 0)
	require.NoError(t, err)

	cached, err := cache.GetCachedVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(1), cached)

	// 写库成功但缓存刷新失败
	cache.cacheErr = errors.New("连接已断开")
	_, err = svc.AddUser("luigi", "secret", "personal", 0)
	require.NoError(t, err)

	// 旧条目被作废，轮询方看到的是库里的新版本号而不是缓存残留的旧值
	assert.Equal(t, 1, cache.invalidated)
	_, err = cache.GetCachedVersion()
	assert.Error(t, err)

	version, err := svc.GetVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)
}
