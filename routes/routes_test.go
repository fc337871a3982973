package routes

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LucaRoldo98/ApPills/config"
	"github.com/LucaRoldo98/ApPills/models"
	"github.com/LucaRoldo98/ApPills/services"
	"github.com/LucaRoldo98/ApPills/services/container"
)

// memorySnapshotStore 内存快照存储。每次Load返回深拷贝，与数据库实现
// 的行为保持一致。
type memorySnapshotStore struct {
	mu      sync.Mutex
	data    []byte
	version int64
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

// stubDeviceClient 吞掉所有控制面调用的设备客户端
type stubDeviceClient struct{}

func (stubDeviceClient) GetCounters(deviceURI string) ([]int, error) { return nil, nil }

func (stubDeviceClient) SetLED(deviceURI string, slotID int, on bool) error { return nil }

func (stubDeviceClient) SetAlarm(deviceURI string, on bool) error { return nil }

func (stubDeviceClient) SetOwner(deviceURI string, userID int) error { return nil }

func (stubDeviceClient) Dissociate(deviceURI string) error { return nil }

// newTestAPI 把完整的HTTP栈架在内存存储上：gin路由在一端，工作进程的
// 目录客户端在另一端，中间走真实的HTTP编解码。
func newTestAPI(t *testing.T) (*container.ServiceContainer, services.InterfaceCatalogClient, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		BaseTopic:      "appPills",
		MQTTBrokerURL:  "tcp://broker:1883",
		MQTTBrokerPort: 1883,
	}
	c := container.NewServiceContainerWithStore(cfg, &memorySnapshotStore{}, stubDeviceClient{})
	srv := httptest.NewServer(SetupRouterWithContainer(c))

	client := &services.CatalogClient{
		BaseURL: srv.URL + "/api",
		Client:  &http.Client{},
	}
	return c, client, srv.Close
}

func TestCatalogAPIRoundTrip(t *testing.T) {
	c, client, done := newTestAPI(t)
	defer done()

	svc := c.GetCatalogService()
	userID, err := svc.AddUser("mario", "secret", "personal", 0)
	require.NoError(t, err)
	deviceID, err := svc.NewDevice("192.168.1.10", 8081, 2)
	require.NoError(t, err)
	require.NoError(t, svc.ClaimDevice(deviceID, userID))
	require.NoError(t, svc.AddSchedule(userID, deviceID, 0, models.ScheduleEntry{
		Alarm:   1,
		NumPill: 1,
		Time:    "08:00:00",
	}))

	// 客户端解出的版本号必须与服务端一致
	version, err := client.GetVersion()
	require.NoError(t, err)
	svcVersion, err := svc.GetVersion()
	require.NoError(t, err)
	assert.Equal(t, svcVersion, version)
	assert.EqualValues(t, 4, version)

	conf, err := client.GetConf()
	require.NoError(t, err)
	assert.Equal(t, "appPills", conf.BaseTopic)
	assert.Equal(t, "tcp://broker:1883", conf.Broker)
	assert.Equal(t, 1883, conf.Port)

	schedules, err := client.GetSchedules()
	require.NoError(t, err)
	require.Contains(t, schedules, "1/1")
	require.Len(t, schedules["1/1"], 2)
	require.Len(t, schedules["1/1"][0], 1)
	assert.Equal(t, "08:00:00", schedules["1/1"][0][0].Time)

	uri, err := client.GetDeviceURI(userID, deviceID)
	require.NoError(t, err)
	assert.Equal(t, "http://192.168.1.10:8081", uri)

	numSlots, err := client.GetSlotsNumber(userID, deviceID)
	require.NoError(t, err)
	assert.Equal(t, 2, numSlots)

	// 不存在的设备：HTTP 404 必须翻译回 ErrNotFound
	_, err = client.GetDeviceURI(9, 9)
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestTransientRecordsOverAPI(t *testing.T) {
	c, client, done := newTestAPI(t)
	defer done()

	svc := c.GetCatalogService()
	userID, err := svc.AddUser("mario", "secret", "personal", 0)
	require.NoError(t, err)
	deviceID, err := svc.NewDevice("192.168.1.10", 8081, 2)
	require.NoError(t, err)
	require.NoError(t, svc.ClaimDevice(deviceID, userID))

	// 开盖记录随 openingControl 的心跳下发
	require.NoError(t, client.AddOpeningTime(models.OpeningRecord{
		PatientID:  userID,
		DeviceID:   deviceID,
		TimeOpened: 1000,
	}))
	payload, err := client.Heartbeat("openingControl")
	require.NoError(t, err)
	require.Len(t, payload.Times, 1)
	assert.Equal(t, float64(1000), payload.Times[0].TimeOpened)

	require.NoError(t, client.RemoveOpeningTime(userID, deviceID))
	assert.ErrorIs(t, client.RemoveOpeningTime(userID, deviceID), services.ErrNotFound)

	// 药量快照是一次性消费的
	require.NoError(t, client.AddOpeningPills(models.PillCountRecord{
		PatientID:   userID,
		DeviceID:    deviceID,
		CountOpened: []int{5, 3},
	}))
	opened, err := client.ConsumeOpeningPills(userID, deviceID)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 3}, opened)
	_, err = client.ConsumeOpeningPills(userID, deviceID)
	assert.ErrorIs(t, err, services.ErrNotFound)

	// 瞬态记录和心跳都不改变版本号
	version, err := client.GetVersion()
	require.NoError(t, err)
	assert.EqualValues(t, 3, version)
}
