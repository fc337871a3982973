package services

import (
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LucaRoldo98/ApPills/config"
	"github.com/LucaRoldo98/ApPills/models"
)

// PillDiffService 药量差值工作进程。
// 开盖时读取设备每槽药量并存入目录，合盖时再次读取、取回开盖
// 快照并发布每槽差值。设备不可达时跳过本次事件，只留日志。
type PillDiffService struct {
	Config  *config.Config
	MQTT    InterfaceMQTTService
	Catalog InterfaceCatalogClient
	Devices InterfaceDeviceClient

	Now func() time.Time

	Tick time.Duration

	BN string

	stopChan chan struct{}
}

// NewPillDiffService 创建药量差值服务
func NewPillDiffService(cfg *config.Config, mqttService InterfaceMQTTService, catalog InterfaceCatalogClient, devices InterfaceDeviceClient) *PillDiffService {
	return &PillDiffService{
		Config:   cfg,
		MQTT:     mqttService,
		Catalog:  catalog,
		Devices:  devices,
		Now:      time.Now,
		Tick:     time.Duration(cfg.TickSeconds) * time.Second,
		BN:       "pillDifference",
		stopChan: make(chan struct{}),
	}
}

// Start 订阅盖子事件并启动心跳循环
func (s *PillDiffService) Start() error {
	if err := s.MQTT.Subscribe(s.MQTT.WildcardTopic(TopicLid), s.HandleLid); err != nil {
		return err
	}
	go s.run()
	return nil
}

// Stop 停止心跳循环
func (s *PillDiffService) Stop() {
	close(s.stopChan)
}

func (s *PillDiffService) run() {
	ticker := time.NewTicker(s.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			if _, err := s.Catalog.Heartbeat(ServicePillDifference); err != nil {
				config.Warning("[pillDifference] 心跳上报失败: %v", err)
			}
		}
	}
}

// HandleLid 处理盖子事件。开盖：抓取每槽药量快照并登记；
// 合盖：再抓一次，与开盖快照相减后发布差值。
func (s *PillDiffService) HandleLid(_ mqtt.Client, msg mqtt.Message) {
	patientID, deviceID, err := ParseDeviceTopic(msg.Topic())
	if err != nil {
		config.Warning("[pillDifference] %v", err)
		return
	}
	var lid models.LidMessage
	if err := json.Unmarshal(msg.Payload(), &lid); err != nil {
		config.Warning("[pillDifference] 盖子消息解析失败: %v", err)
		return
	}

	uri, err := s.Catalog.GetDeviceURI(patientID, deviceID)
	if err != nil {
		config.Warning("[pillDifference] 获取设备端点失败 %d/%d: %v", patientID, deviceID, err)
		return
	}
	counters, err := s.Devices.GetCounters(uri)
	if err != nil {
		config.Warning("[pillDifference] 读取药量失败 %s: %v", uri, err)
		return
	}

	if lid.E.Open == 1 {
		record := models.PillCountRecord{
			PatientID:   patientID,
			DeviceID:    deviceID,
			CountOpened: counters,
		}
		if err := s.Catalog.AddOpeningPills(record); err != nil {
			config.Warning("[pillDifference] 登记药量快照失败: %v", err)
		}
		return
	}

	opened, err := s.Catalog.ConsumeOpeningPills(patientID, deviceID)
	if err != nil {
		config.Warning("[pillDifference] 取回药量快照失败 %d/%d: %v", patientID, deviceID, err)
		return
	}
	s.PublishDifference(patientID, deviceID, opened, counters)
}

// PublishDifference 计算并发布每槽差值（合盖值减开盖值，服药为负数）
func (s *PillDiffService) PublishDifference(patientID, deviceID int, opened, closed []int) {
	n := len(opened)
	if len(closed) < n {
		n = len(closed)
	}
	diff := make([]int, n)
	for i := 0; i < n; i++ {
		diff[i] = closed[i] - opened[i]
	}
	msg := models.DiffMessage{
		BN: s.BN,
		E: models.DiffEvent{
			Difference: diff,
			Timestamp:  float64(s.Now().Unix()),
		},
	}
	topic := s.MQTT.DeviceTopic(patientID, deviceID, TopicPillDifference)
	if err := s.MQTT.Publish(topic, msg); err != nil {
		config.Warning("[pillDifference] 发布差值失败 %s: %v", topic, err)
	}
}
