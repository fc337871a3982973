package services

import (
	"encoding/json"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LucaRoldo98/ApPills/config"
	"github.com/LucaRoldo98/ApPills/models"
)

// OpeningService 开盖监控工作进程。
// 开盖事件向目录登记开盖时刻，合盖事件删除记录；每个周期从心跳
// 应答里取回全部在案记录，开盖超过阈值的设备发布告警，同一设备
// 的告警至少间隔一个阈值周期。
type OpeningService struct {
	Config  *config.Config
	MQTT    InterfaceMQTTService
	Catalog InterfaceCatalogClient

	Now func() time.Time

	Tick        time.Duration
	OpenTooLong time.Duration

	BN string

	mu       sync.Mutex
	lastWarn map[tallyKey]time.Time
	stopChan chan struct{}
}

// NewOpeningService 创建开盖监控服务
func NewOpeningService(cfg *config.Config, mqttService InterfaceMQTTService, catalog InterfaceCatalogClient) *OpeningService {
	return &OpeningService{
		Config:      cfg,
		MQTT:        mqttService,
		Catalog:     catalog,
		Now:         time.Now,
		Tick:        time.Duration(cfg.TickSeconds) * time.Second,
		OpenTooLong: time.Duration(cfg.OpeningThreshSeconds) * time.Second,
		BN:          "openingControl",
		lastWarn:    make(map[tallyKey]time.Time),
		stopChan:    make(chan struct{}),
	}
}

// Start 订阅盖子事件并启动巡检循环
func (s *OpeningService) Start() error {
	if err := s.MQTT.Subscribe(s.MQTT.WildcardTopic(TopicLid), s.HandleLid); err != nil {
		return err
	}
	go s.run()
	return nil
}

// Stop 停止巡检循环
func (s *OpeningService) Stop() {
	close(s.stopChan)
}

func (s *OpeningService) run() {
	ticker := time.NewTicker(s.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			payload, err := s.Catalog.Heartbeat(ServiceOpeningControl)
			if err != nil {
				config.Warning("[openingControl] 心跳上报失败: %v", err)
				continue
			}
			s.CheckRecords(payload.Times, s.Now())
		}
	}
}

// HandleLid 处理盖子事件：开盖登记记录，合盖删除记录
func (s *OpeningService) HandleLid(_ mqtt.Client, msg mqtt.Message) {
	patientID, deviceID, err := ParseDeviceTopic(msg.Topic())
	if err != nil {
		config.Warning("[openingControl] %v", err)
		return
	}
	var lid models.LidMessage
	if err := json.Unmarshal(msg.Payload(), &lid); err != nil {
		config.Warning("[openingControl] 盖子消息解析失败: %v", err)
		return
	}

	if lid.E.Open == 1 {
		record := models.OpeningRecord{
			PatientID:  patientID,
			DeviceID:   deviceID,
			TimeOpened: float64(s.Now().Unix()),
		}
		if err := s.Catalog.AddOpeningTime(record); err != nil {
			config.Warning("[openingControl] 登记开盖记录失败: %v", err)
		}
		return
	}
	if err := s.Catalog.RemoveOpeningTime(patientID, deviceID); err != nil {
		config.Warning("[openingControl] 删除开盖记录失败: %v", err)
	}
	s.mu.Lock()
	delete(s.lastWarn, tallyKey{PatientID: patientID, DeviceID: deviceID})
	s.mu.Unlock()
}

// CheckRecords 巡检在案的开盖记录，超时的设备发布告警。
// 同一设备两次告警之间至少间隔 OpenTooLong。
func (s *OpeningService) CheckRecords(records []models.OpeningRecord, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range records {
		opened := time.Unix(int64(record.TimeOpened), 0)
		if now.Sub(opened) < s.OpenTooLong {
			continue
		}
		key := tallyKey{PatientID: record.PatientID, DeviceID: record.DeviceID}
		if last, ok := s.lastWarn[key]; ok && now.Sub(last) < s.OpenTooLong {
			continue
		}
		msg := models.OpeningWarningMessage{
			BN: s.BN,
			E: models.OpeningEvent{
				OpenedTooMuch: true,
				Timestamp:     float64(now.Unix()),
			},
		}
		topic := s.MQTT.DeviceTopic(record.PatientID, record.DeviceID, TopicOpeningControl)
		if err := s.MQTT.Publish(topic, msg); err != nil {
			config.Warning("[openingControl] 发布开盖告警失败 %s: %v", topic, err)
			continue
		}
		s.lastWarn[key] = now
	}
}
