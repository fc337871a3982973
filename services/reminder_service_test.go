package services

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LucaRoldo98/ApPills/config"
	"github.com/LucaRoldo98/ApPills/models"
)

// fakeMQTT 记录发布消息的假总线
type fakeMQTT struct {
	mu        sync.Mutex
	published []publishedMessage
	handlers  map[string]mqtt.MessageHandler
	connected bool
}

type publishedMessage struct {
	Topic   string
	Payload interface{}
}

func newFakeMQTT() *fakeMQTT {
	return &fakeMQTT{handlers: make(map[string]mqtt.MessageHandler), connected: true}
}

func (f *fakeMQTT) Connect() error    { f.connected = true; return nil }
func (f *fakeMQTT) Disconnect()       { f.connected = false }
func (f *fakeMQTT) IsConnected() bool { return f.connected }

func (f *fakeMQTT) Publish(topic string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedMessage{Topic: topic, Payload: payload})
	return nil
}

func (f *fakeMQTT) Subscribe(topic string, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *fakeMQTT) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, topic)
	return nil
}

func (f *fakeMQTT) DeviceTopic(patientID, deviceID int, suffix string) string {
	return fmt.Sprintf("appPills/%d/%d/%s", patientID, deviceID, suffix)
}

func (f *fakeMQTT) WildcardTopic(suffix string) string {
	return "appPills/+/+/" + suffix
}

// reminders 筛出指定消息代码的提醒消息
func (f *fakeMQTT) reminders(code int) []publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []publishedMessage
	for _, msg := range f.published {
		if rem, ok := msg.Payload.(models.ReminderMessage); ok && rem.E.Message == code {
			out = append(out, msg)
		}
	}
	return out
}

func (f *fakeMQTT) stats() []publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []publishedMessage
	for _, msg := range f.published {
		if _, ok := msg.Payload.(models.StatMessage); ok {
			out = append(out, msg)
		}
	}
	return out
}

// fakeCatalogClient 返回可控目录投影的假客户端
type fakeCatalogClient struct {
	mu         sync.Mutex
	version    int64
	schedules  map[string][][]models.ScheduleEntry
	uris       map[string]string
	numSlots   map[string]int
	heartbeats []string
	openings   []models.OpeningRecord
	pills      []models.PillCountRecord
}

func newFakeCatalogClient() *fakeCatalogClient {
	return &fakeCatalogClient{
		schedules: make(map[string][][]models.ScheduleEntry),
		uris:      make(map[string]string),
		numSlots:  make(map[string]int),
	}
}

func (f *fakeCatalogClient) GetVersion() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.version, nil
}

func (f *fakeCatalogClient) GetConf() (*models.SystemConf, error) {
	return &models.SystemConf{BaseTopic: "appPills"}, nil
}

func (f *fakeCatalogClient) GetSchedules() (map[string][][]models.ScheduleEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.schedules, nil
}

func (f *fakeCatalogClient) GetDeviceURI(patientID, deviceID int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	uri, ok := f.uris[deviceKey(patientID, deviceID)]
	if !ok {
		return "", ErrNotFound
	}
	return uri, nil
}

func (f *fakeCatalogClient) GetSlotsNumber(patientID, deviceID int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.numSlots[deviceKey(patientID, deviceID)]
	if !ok {
		return 0, ErrNotFound
	}
	return n, nil
}

func (f *fakeCatalogClient) Heartbeat(serviceName string) (*models.HeartbeatPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats = append(f.heartbeats, serviceName)
	return &models.HeartbeatPayload{Times: f.openings, PillCount: f.pills}, nil
}

func (f *fakeCatalogClient) AddOpeningTime(record models.OpeningRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.openings {
		if existing.PatientID == record.PatientID && existing.DeviceID == record.DeviceID {
			return nil
		}
	}
	f.openings = append(f.openings, record)
	return nil
}

func (f *fakeCatalogClient) RemoveOpeningTime(patientID, deviceID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, record := range f.openings {
		if record.PatientID == patientID && record.DeviceID == deviceID {
			f.openings = append(f.openings[:i], f.openings[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeCatalogClient) AddOpeningPills(record models.PillCountRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pills = append(f.pills, record)
	return nil
}

func (f *fakeCatalogClient) ConsumeOpeningPills(patientID, deviceID int) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, record := range f.pills {
		if record.PatientID == patientID && record.DeviceID == deviceID {
			f.pills = append(f.pills[:i], f.pills[i+1:]...)
			return record.CountOpened, nil
		}
	}
	return nil, ErrNotFound
}

// fakeMessage 实现 mqtt.Message 接口，测试回调用
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 2 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

func newDiffMessage(t *testing.T, topic string, diff []int) *fakeMessage {
	t.Helper()
	payload, err := json.Marshal(models.DiffMessage{
		BN: "device",
		E:  models.DiffEvent{Difference: diff, Timestamp: 0},
	})
	require.NoError(t, err)
	return &fakeMessage{topic: topic, payload: payload}
}

func testConfig() *config.Config {
	return &config.Config{
		TickSeconds:          5,
		StatFlushTime:        "23:59:50",
		BaseTopic:            "appPills",
		OpeningThreshSeconds: 300,
	}
}

// newTestReminder 构造提醒服务并直接铺好一条 08:00:00 的计划
func newTestReminder() (*ReminderService, *fakeMQTT, *fakeCatalogClient, *fakeDeviceClient) {
	bus := newFakeMQTT()
	catalog := newFakeCatalogClient()
	devices := &fakeDeviceClient{}
	svc := NewReminderService(testConfig(), bus, catalog, devices)

	key := ScheduleKey{PatientID: 1, DeviceID: 1, Slot: 0, Alarm: 1, Seq: 0}
	svc.Index.Replace(map[ScheduleKey]IndexEntry{
		key: {Key: key, DeviceURI: "http://device", NumPill: 2, Time: "08:00:00"},
	})
	svc.Tally.Register(1, 1, 2)
	catalog.uris["1/1"] = "http://device"
	catalog.numSlots["1/1"] = 2
	return svc, bus, catalog, devices
}

func at(hour, min, sec int) time.Time {
	return time.Date(2024, 5, 1, hour, min, sec, 0, time.UTC)
}

func TestReminderFiresDueOnceInWindow(t *testing.T) {
	svc, bus, _, devices := newTestReminder()

	svc.TickOnce(at(8, 0, 2))

	due := bus.reminders(models.MsgDoseDue)
	require.Len(t, due, 1)
	assert.Equal(t, "appPills/1/1/timeShift", due[0].Topic)
	rem := due[0].Payload.(models.ReminderMessage)
	assert.Equal(t, "0", rem.E.Slot)

	// LED与蜂鸣器都被点亮
	require.Len(t, devices.ledCalls, 1)
	assert.Equal(t, ledCall{URI: "http://device", Slot: 0, On: true}, devices.ledCalls[0])
	require.Len(t, devices.alarmCalls, 1)
	assert.True(t, devices.alarmCalls[0].On)

	// 同一窗口内的下一次扫描不重复触发
	svc.TickOnce(at(8, 0, 4))
	assert.Len(t, bus.reminders(models.MsgDoseDue), 1)
	assert.Equal(t, 1, svc.ActiveCount())
}

func TestReminderOutsideWindowDoesNotFire(t *testing.T) {
	svc, bus, _, _ := newTestReminder()

	svc.TickOnce(at(8, 0, 6))
	assert.Empty(t, bus.reminders(models.MsgDoseDue))
	assert.Zero(t, svc.ActiveCount())
}

func TestReminderSuppressedWhenAlreadyTaken(t *testing.T) {
	svc, bus, _, _ := newTestReminder()

	// 一小时内已经服过药，计划不触发
	svc.Tally.UpdateValue(1, 1, 0, -2, at(7, 30, 0))
	svc.TickOnce(at(8, 0, 2))

	assert.Empty(t, bus.reminders(models.MsgDoseDue))
	assert.Zero(t, svc.ActiveCount())
}

func TestReminderRepeatsEveryTenMinutes(t *testing.T) {
	svc, bus, _, _ := newTestReminder()

	svc.TickOnce(at(8, 0, 2))
	require.Len(t, bus.reminders(models.MsgDoseDue), 1)

	// 一分钟以内不催促
	svc.TickOnce(at(8, 0, 32))
	assert.Empty(t, bus.reminders(models.MsgDoseReminder))

	// 距首次触发10分钟，第一次催促
	svc.TickOnce(at(8, 10, 2))
	assert.Len(t, bus.reminders(models.MsgDoseReminder), 1)

	// 距上次催促不足10分钟，不再催促
	svc.TickOnce(at(8, 15, 2))
	assert.Len(t, bus.reminders(models.MsgDoseReminder), 1)

	// 再过10分钟，第二次催促
	svc.TickOnce(at(8, 20, 2))
	assert.Len(t, bus.reminders(models.MsgDoseReminder), 2)
}

func TestReminderMissedAfterHourPlusGrace(t *testing.T) {
	svc, bus, _, devices := newTestReminder()

	svc.TickOnce(at(8, 0, 2))
	require.Equal(t, 1, svc.ActiveCount())

	// 一小时加宽限之前不算漏服
	svc.TickOnce(at(9, 0, 7))
	assert.Empty(t, bus.reminders(models.MsgDoseMissed))

	svc.TickOnce(at(9, 0, 12))
	missed := bus.reminders(models.MsgDoseMissed)
	require.Len(t, missed, 1)
	assert.Zero(t, svc.ActiveCount())

	// 漏服收尾会熄灭LED
	last := devices.ledCalls[len(devices.ledCalls)-1]
	assert.False(t, last.On)

	// 漏服只记一次
	svc.TickOnce(at(9, 0, 17))
	assert.Len(t, bus.reminders(models.MsgDoseMissed), 1)
}

func TestReminderTakenViaPillDifference(t *testing.T) {
	svc, bus, _, devices := newTestReminder()

	svc.TickOnce(at(8, 0, 2))
	require.Equal(t, 1, svc.ActiveCount())

	svc.Now = func() time.Time { return at(8, 5, 0) }
	svc.HandlePillDifference(nil, newDiffMessage(t, "appPills/1/1/pillDifference", []int{-2, 0}))

	// 服药后计划离开激活集合，药量累计差值绝对值
	assert.Zero(t, svc.ActiveCount())
	assert.True(t, svc.Tally.IsTaken(1, 1, 0))
	assert.Equal(t, []int{2, 0}, svc.Tally.Totals(1, 1))

	last := devices.ledCalls[len(devices.ledCalls)-1]
	assert.Equal(t, ledCall{URI: "http://device", Slot: 0, On: false}, last)

	// 之后的扫描不再催促也不记漏服
	svc.TickOnce(at(8, 10, 2))
	svc.TickOnce(at(9, 0, 12))
	assert.Empty(t, bus.reminders(models.MsgDoseReminder))
	assert.Empty(t, bus.reminders(models.MsgDoseMissed))
}

func TestReminderMidnightWrap(t *testing.T) {
	svc, bus, _, _ := newTestReminder()

	key := ScheduleKey{PatientID: 1, DeviceID: 1, Slot: 1, Alarm: 0, Seq: 0}
	svc.Index.Replace(map[ScheduleKey]IndexEntry{
		key: {Key: key, DeviceURI: "http://device", NumPill: 1, Time: "23:59:58"},
	})

	// 午夜刚过，昨天 23:59:58 的计划仍落在扫描窗口内
	svc.TickOnce(time.Date(2024, 5, 2, 0, 0, 1, 0, time.UTC))
	assert.Len(t, bus.reminders(models.MsgDoseDue), 1)
}

func TestDailyStatFlushPublishesOncePerDay(t *testing.T) {
	svc, bus, _, _ := newTestReminder()

	svc.Tally.UpdateValue(1, 1, 0, -3, at(12, 0, 0))

	// 冲刷时刻窗口内发布统计并清零
	svc.TickOnce(at(23, 59, 52))
	stats := bus.stats()
	require.Len(t, stats, 1)
	assert.Equal(t, "appPills/1/1/timeShift", stats[0].Topic)
	stat := stats[0].Payload.(models.StatMessage)
	assert.Equal(t, models.MsgDailyStat, stat.E.Message)
	assert.Equal(t, map[string]int{"slot0": 3, "slot1": 0}, stat.E.Slot)

	// 下一次扫描已在窗口外，不再发布
	svc.TickOnce(at(23, 59, 57))
	assert.Len(t, bus.stats(), 1)
	assert.Equal(t, []int{0, 0}, svc.Tally.Totals(1, 1))
}

func TestRefreshIndexRebuildsOnlyOnVersionChange(t *testing.T) {
	bus := newFakeMQTT()
	catalog := newFakeCatalogClient()
	devices := &fakeDeviceClient{}
	svc := NewReminderService(testConfig(), bus, catalog, devices)

	catalog.version = 1
	catalog.schedules["1/1"] = [][]models.ScheduleEntry{
		{{Alarm: 1, NumPill: 1, Time: "08:00:00"}},
	}
	catalog.uris["1/1"] = "http://device"
	catalog.numSlots["1/1"] = 1

	require.NoError(t, svc.RefreshIndex())
	assert.Equal(t, 1, svc.Index.Len())
	// 重建时顺带登记了统计槽位
	assert.Equal(t, []int{0}, svc.Tally.Totals(1, 1))

	// 版本未变时内容变化不会被采纳
	catalog.mu.Lock()
	catalog.schedules["1/1"] = [][]models.ScheduleEntry{
		{{Alarm: 1, NumPill: 1, Time: "08:00:00"}, {Alarm: 0, NumPill: 2, Time: "20:00:00"}},
	}
	catalog.mu.Unlock()
	require.NoError(t, svc.RefreshIndex())
	assert.Equal(t, 1, svc.Index.Len())

	// 版本变化后重建
	catalog.mu.Lock()
	catalog.version = 2
	catalog.mu.Unlock()
	require.NoError(t, svc.RefreshIndex())
	assert.Equal(t, 2, svc.Index.Len())
}
