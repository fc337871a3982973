package services

import (
	"encoding/json"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LucaRoldo98/ApPills/config"
	"github.com/LucaRoldo98/ApPills/models"
)

// ConservationService 药品保存环境监控工作进程。
// 订阅全部设备的温湿度遥测，读数越界时在该设备的
// conservationControl 主题上发布告警。阈值表随心跳整表刷新，
// 阈值表里没有的设备按出厂默认阈值判断。
type ConservationService struct {
	Config  *config.Config
	MQTT    InterfaceMQTTService
	Catalog InterfaceCatalogClient

	Now func() time.Time

	Tick time.Duration

	BN string

	mu         sync.RWMutex
	thresholds map[int]models.Thresholds
	stopChan   chan struct{}
}

// NewConservationService 创建保存环境监控服务
func NewConservationService(cfg *config.Config, mqttService InterfaceMQTTService, catalog InterfaceCatalogClient) *ConservationService {
	return &ConservationService{
		Config:     cfg,
		MQTT:       mqttService,
		Catalog:    catalog,
		Now:        time.Now,
		Tick:       time.Duration(cfg.TickSeconds) * time.Second,
		BN:         "conservationControl",
		thresholds: make(map[int]models.Thresholds),
		stopChan:   make(chan struct{}),
	}
}

// Start 订阅温湿度遥测并启动心跳循环
func (s *ConservationService) Start() error {
	if err := s.MQTT.Subscribe(s.MQTT.WildcardTopic(TopicEnv), s.HandleEnvReading); err != nil {
		return err
	}
	go s.run()
	return nil
}

// Stop 停止心跳循环
func (s *ConservationService) Stop() {
	close(s.stopChan)
}

func (s *ConservationService) run() {
	ticker := time.NewTicker(s.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			payload, err := s.Catalog.Heartbeat(ServiceConservationControl)
			if err != nil {
				config.Warning("[conservationControl] 心跳上报失败: %v", err)
				continue
			}
			s.ReplaceThresholds(payload.Thresholds)
		}
	}
}

// ReplaceThresholds 用心跳带回的阈值表整体替换本地表
func (s *ConservationService) ReplaceThresholds(thresholds []models.Thresholds) {
	table := make(map[int]models.Thresholds, len(thresholds))
	for _, t := range thresholds {
		table[t.DeviceID] = t
	}
	s.mu.Lock()
	s.thresholds = table
	s.mu.Unlock()
}

// thresholdsFor 查找设备阈值，查不到时返回出厂默认值
func (s *ConservationService) thresholdsFor(deviceID int) models.Thresholds {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.thresholds[deviceID]; ok {
		return t
	}
	return models.Thresholds{
		DeviceID:        deviceID,
		TempUpperThresh: models.DefaultTempUpper,
		TempLowerThresh: models.DefaultTempLower,
		HumUpperThresh:  models.DefaultHumUpper,
		HumLowerThresh:  models.DefaultHumLower,
	}
}

// HandleEnvReading 处理温湿度遥测：越界的读数汇总成一条告警发布
func (s *ConservationService) HandleEnvReading(_ mqtt.Client, msg mqtt.Message) {
	patientID, deviceID, err := ParseDeviceTopic(msg.Topic())
	if err != nil {
		config.Warning("[conservationControl] %v", err)
		return
	}
	var env models.EnvMessage
	if err := json.Unmarshal(msg.Payload(), &env); err != nil {
		config.Warning("[conservationControl] 遥测消息解析失败: %v", err)
		return
	}

	violations := s.CheckReadings(deviceID, env.E)
	if len(violations) == 0 {
		return
	}
	out := models.ViolationMessage{BN: s.BN, E: violations}
	topic := s.MQTT.DeviceTopic(patientID, deviceID, TopicConservation)
	if err := s.MQTT.Publish(topic, out); err != nil {
		config.Warning("[conservationControl] 发布越界告警失败 %s: %v", topic, err)
	}
}

// CheckReadings 按设备阈值筛出越界的读数
func (s *ConservationService) CheckReadings(deviceID int, readings []models.EnvReading) []models.ViolationReading {
	thresh := s.thresholdsFor(deviceID)
	var violations []models.ViolationReading
	for _, reading := range readings {
		var upper, lower float64
		switch reading.Name {
		case "temperature":
			upper, lower = thresh.TempUpperThresh, thresh.TempLowerThresh
		case "humidity":
			upper, lower = thresh.HumUpperThresh, thresh.HumLowerThresh
		default:
			continue
		}
		if reading.Value > upper || reading.Value < lower {
			violations = append(violations, models.ViolationReading{
				SensorName: reading.Name,
				Value:      reading.Value,
				Unit:       reading.Unit,
				Timestamp:  reading.Timestamp,
			})
		}
	}
	return violations
}
