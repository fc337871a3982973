package services

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LucaRoldo98/ApPills/config"
	"github.com/LucaRoldo98/ApPills/models"
)

// activeReminder 一条已到点但尚未服药的计划。
// FiredAt 为首次触发时刻，LastRemind 为最近一次催促时刻。
type activeReminder struct {
	Entry      IndexEntry
	FiredAt    time.Time
	LastRemind time.Time
}

// ReminderService 服药提醒工作进程的核心状态机。
// 周期扫描计划索引，到点的计划发布消息0并点亮对应LED与蜂鸣器；
// 之后每10分钟催促一次（消息1），超过一小时记为漏服（消息2）；
// 合盖产生的药量差值消息把计划转入已服状态。每日在固定时刻
// 冲刷统计并发布消息5。
type ReminderService struct {
	Config  *config.Config
	MQTT    InterfaceMQTTService
	Catalog InterfaceCatalogClient
	Devices InterfaceDeviceClient
	Index   *ScheduleIndex
	Tally   *DailyTally

	// Now 可注入时钟，测试时替换
	Now func() time.Time

	Tick          time.Duration
	ReminderDelay time.Duration
	ReminderEvery time.Duration
	MissedAfter   time.Duration

	BN string

	mu          sync.Mutex
	active      map[ScheduleKey]*activeReminder
	lastVersion int64
	haveVersion bool
	stopChan    chan struct{}
}

// NewReminderService 创建提醒服务，时间参数取默认契约值
func NewReminderService(cfg *config.Config, mqttService InterfaceMQTTService, catalog InterfaceCatalogClient, devices InterfaceDeviceClient) *ReminderService {
	return &ReminderService{
		Config:        cfg,
		MQTT:          mqttService,
		Catalog:       catalog,
		Devices:       devices,
		Index:         NewScheduleIndex(),
		Tally:         NewDailyTally(),
		Now:           time.Now,
		Tick:          time.Duration(cfg.TickSeconds) * time.Second,
		ReminderDelay: time.Minute,
		ReminderEvery: 10 * time.Minute,
		MissedAfter:   time.Hour + 6*time.Second,
		BN:            "timeShift",
		active:        make(map[ScheduleKey]*activeReminder),
		stopChan:      make(chan struct{}),
	}
}

// Start 订阅药量差值主题并启动扫描循环
func (s *ReminderService) Start() error {
	if err := s.MQTT.Subscribe(s.MQTT.WildcardTopic(TopicPillDifference), s.HandlePillDifference); err != nil {
		return err
	}
	if err := s.RefreshIndex(); err != nil {
		config.Warning("[timeShift] 初始索引构建失败: %v", err)
	}
	go s.run()
	return nil
}

// Stop 停止扫描循环
func (s *ReminderService) Stop() {
	close(s.stopChan)
}

func (s *ReminderService) run() {
	ticker := time.NewTicker(s.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			if _, err := s.Catalog.Heartbeat(ServiceTimeShift); err != nil {
				config.Warning("[timeShift] 心跳上报失败: %v", err)
			}
			if err := s.RefreshIndex(); err != nil {
				config.Warning("[timeShift] 索引刷新失败: %v", err)
			}
			s.TickOnce(s.Now())
		}
	}
}

// RefreshIndex 轮询目录版本号，发生变化时重建计划索引。
// 版本未变时直接返回，不触碰现有索引。
func (s *ReminderService) RefreshIndex() error {
	version, err := s.Catalog.GetVersion()
	if err != nil {
		return err
	}
	s.mu.Lock()
	upToDate := s.haveVersion && version == s.lastVersion
	s.mu.Unlock()
	if upToDate {
		return nil
	}

	schedules, err := s.Catalog.GetSchedules()
	if err != nil {
		return err
	}
	uris := make(map[string]string, len(schedules))
	for pairKey := range schedules {
		patientID, deviceID, ok := splitPairKey(pairKey)
		if !ok {
			continue
		}
		uri, err := s.Catalog.GetDeviceURI(patientID, deviceID)
		if err != nil {
			config.Warning("[timeShift] 获取设备端点失败 %s: %v", pairKey, err)
			continue
		}
		uris[pairKey] = uri
		numSlots, err := s.Catalog.GetSlotsNumber(patientID, deviceID)
		if err == nil {
			s.Tally.Register(patientID, deviceID, numSlots)
		}
	}
	entries := BuildIndexEntries(schedules, uris)
	s.Index.Replace(entries)

	s.mu.Lock()
	s.lastVersion = version
	s.haveVersion = true
	s.mu.Unlock()
	config.Info("[timeShift] 索引已重建: %d 条计划 (版本 %d)", len(entries), version)
	return nil
}

// TickOnce 执行一次扫描：清理过期的已服标记、冲刷每日统计、
// 触发到点的计划、推进催促与漏服。
func (s *ReminderService) TickOnce(now time.Time) {
	s.Tally.ClearStale(now)
	s.flushStats(now)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.fireDue(now)
	s.advanceActive(now)
}

// flushStats 在每日冲刷时刻的扫描窗口内导出并发布统计
func (s *ReminderService) flushStats(now time.Time) {
	flushSec, err := parseTimeOfDay(s.Config.StatFlushTime)
	if err != nil {
		return
	}
	if !inDueWindow(now, flushSec, s.Tick) {
		return
	}
	for _, stat := range s.Tally.Flush() {
		msg := models.StatMessage{
			BN: s.BN,
			E: models.StatEvent{
				Message:   models.MsgDailyStat,
				Slot:      stat.Stat,
				Timestamp: float64(now.Unix()),
			},
		}
		topic := s.MQTT.DeviceTopic(stat.PatientID, stat.DeviceID, TopicTimeShift)
		if err := s.MQTT.Publish(topic, msg); err != nil {
			config.Warning("[timeShift] 发布每日统计失败 %s: %v", topic, err)
		}
	}
}

// fireDue 触发扫描窗口内到点且尚未激活、尚未服药的计划。调用方持锁。
func (s *ReminderService) fireDue(now time.Time) {
	for key, entry := range s.Index.Entries() {
		schedSec, err := parseTimeOfDay(entry.Time)
		if err != nil {
			continue
		}
		if !inDueWindow(now, schedSec, s.Tick) {
			continue
		}
		if _, ok := s.active[key]; ok {
			continue
		}
		if s.Tally.IsTaken(key.PatientID, key.DeviceID, key.Slot) {
			continue
		}

		s.publishReminder(key, models.MsgDoseDue, now)
		if entry.DeviceURI != "" {
			if err := s.Devices.SetLED(entry.DeviceURI, key.Slot, true); err != nil {
				config.Warning("[timeShift] 点亮LED失败 %s: %v", entry.DeviceURI, err)
			}
			if err := s.Devices.SetAlarm(entry.DeviceURI, true); err != nil {
				config.Warning("[timeShift] 打开蜂鸣器失败 %s: %v", entry.DeviceURI, err)
			}
		}
		s.active[key] = &activeReminder{Entry: entry, FiredAt: now, LastRemind: now}
	}
}

// advanceActive 推进激活集合：服药则收尾、超时则记漏服、否则按周期催促。调用方持锁。
func (s *ReminderService) advanceActive(now time.Time) {
	for key, rem := range s.active {
		if s.Tally.IsTaken(key.PatientID, key.DeviceID, key.Slot) {
			s.ledOff(rem.Entry)
			delete(s.active, key)
			continue
		}
		elapsed := now.Sub(rem.FiredAt)
		if elapsed >= s.MissedAfter {
			s.publishReminder(key, models.MsgDoseMissed, now)
			s.ledOff(rem.Entry)
			delete(s.active, key)
			continue
		}
		if elapsed >= s.ReminderDelay && now.Sub(rem.LastRemind) >= s.ReminderEvery {
			s.publishReminder(key, models.MsgDoseReminder, now)
			rem.LastRemind = now
		}
	}
}

// HandlePillDifference 处理合盖后的药量差值消息：
// 差值为负的药槽记为已服，累计药量并熄灭对应LED。
func (s *ReminderService) HandlePillDifference(_ mqtt.Client, msg mqtt.Message) {
	patientID, deviceID, err := ParseDeviceTopic(msg.Topic())
	if err != nil {
		config.Warning("[timeShift] %v", err)
		return
	}
	var diff models.DiffMessage
	if err := json.Unmarshal(msg.Payload(), &diff); err != nil {
		config.Warning("[timeShift] 差值消息解析失败: %v", err)
		return
	}

	now := s.Now()
	s.Tally.Register(patientID, deviceID, len(diff.E.Difference))
	uri, uriErr := s.Catalog.GetDeviceURI(patientID, deviceID)

	s.mu.Lock()
	defer s.mu.Unlock()
	for slot, delta := range diff.E.Difference {
		if delta >= 0 {
			continue
		}
		s.Tally.UpdateValue(patientID, deviceID, slot, delta, now)
		if uriErr == nil && uri != "" {
			if err := s.Devices.SetLED(uri, slot, false); err != nil {
				config.Warning("[timeShift] 熄灭LED失败 %s: %v", uri, err)
			}
		}
		for key := range s.active {
			if key.PatientID == patientID && key.DeviceID == deviceID && key.Slot == slot {
				delete(s.active, key)
			}
		}
	}
}

func (s *ReminderService) publishReminder(key ScheduleKey, code int, now time.Time) {
	msg := models.ReminderMessage{
		BN: s.BN,
		E: models.ReminderEvent{
			Message:   code,
			Slot:      strconv.Itoa(key.Slot),
			Timestamp: float64(now.Unix()),
		},
	}
	topic := s.MQTT.DeviceTopic(key.PatientID, key.DeviceID, TopicTimeShift)
	if err := s.MQTT.Publish(topic, msg); err != nil {
		config.Warning("[timeShift] 发布提醒消息失败 %s: %v", topic, err)
	}
}

func (s *ReminderService) ledOff(entry IndexEntry) {
	if entry.DeviceURI == "" {
		return
	}
	if err := s.Devices.SetLED(entry.DeviceURI, entry.Key.Slot, false); err != nil {
		config.Warning("[timeShift] 熄灭LED失败 %s: %v", entry.DeviceURI, err)
	}
}

// ActiveCount 返回当前激活的提醒数量
func (s *ReminderService) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// parseTimeOfDay 把 HH:MM:SS 解析为当天秒数
func parseTimeOfDay(value string) (int, error) {
	t, err := time.Parse("15:04:05", value)
	if err != nil {
		return 0, fmt.Errorf("时间格式无效 %q: %w", value, err)
	}
	return t.Hour()*3600 + t.Minute()*60 + t.Second(), nil
}

// inDueWindow 判断 now 是否落在计划时刻之后的一个扫描周期窗口内。
// 对秒数做模86400的环绕差值，跨午夜的计划不会漏触发。
func inDueWindow(now time.Time, schedSec int, tick time.Duration) bool {
	nowSec := now.Hour()*3600 + now.Minute()*60 + now.Second()
	delta := (nowSec - schedSec + 86400) % 86400
	return delta < int(tick/time.Second)
}
