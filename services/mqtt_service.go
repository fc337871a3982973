package services

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/LucaRoldo98/ApPills/config"
	"github.com/LucaRoldo98/ApPills/utils"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// 总线主题后缀。完整主题是 <baseTopic>/<patientID>/<deviceID>/<suffix>
const (
	TopicLid            = "lid"
	TopicEnv            = "temperatureHumidity"
	TopicPillDifference = "pillDifference"
	TopicTimeShift      = "timeShift"
	TopicOpeningControl = "openingControl"
	TopicConservation   = "conservationControl"
)

// InterfaceMQTTService 定义事件总线适配器接口
type InterfaceMQTTService interface {
	Connect() error
	Disconnect()
	IsConnected() bool
	Publish(topic string, payload interface{}) error
	Subscribe(topic string, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	DeviceTopic(patientID, deviceID int, suffix string) string
	WildcardTopic(suffix string) string
}

// MQTTService 事件总线适配器的实现
type MQTTService struct {
	Config    *config.Config
	ClientID  string
	Client    mqtt.Client
	BaseTopic string

	connected      bool
	connectedMutex sync.RWMutex
	// 连接建立（含重连）后需要恢复的订阅
	subscriptions map[string]mqtt.MessageHandler
	subMutex      sync.Mutex
}

// NewMQTTService 创建一个新的MQTT总线适配器
func NewMQTTService(cfg *config.Config, clientID string) InterfaceMQTTService {
	service := &MQTTService{
		Config:        cfg,
		ClientID:      clientID,
		BaseTopic:     cfg.BaseTopic,
		subscriptions: make(map[string]mqtt.MessageHandler),
	}
	service.setupMQTTClient()
	return service
}

// setupMQTTClient 设置MQTT客户端
func (s *MQTTService) setupMQTTClient() {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.Config.MQTTBrokerURL)
	// 使用唯一的客户端ID，避免同一服务多实例冲突
	opts.SetClientID(fmt.Sprintf("%s-%s-%s", s.ClientID, uuid.New().String()[:8], utils.RandomSuffix()))
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(time.Second * 30)
	opts.SetKeepAlive(time.Second * 60)
	opts.SetPingTimeout(time.Second * 10)
	opts.SetCleanSession(true)
	opts.SetOrderMatters(true)

	// 添加用户名和密码
	if s.Config.MQTTUsername != "" {
		opts.SetUsername(s.Config.MQTTUsername)
		opts.SetPassword(s.Config.MQTTPassword)
	}

	// 添加TLS配置，支持SSL连接
	if strings.HasPrefix(s.Config.MQTTBrokerURL, "ssl://") || strings.HasPrefix(s.Config.MQTTBrokerURL, "tls://") || s.Config.MQTTSSLEnabled {
		config.Info("[MQTT] 使用TLS连接")
		opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: true})
	}

	// 设置连接丢失回调
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		config.Warning("[MQTT] 连接丢失: %v", err)
		s.connectedMutex.Lock()
		s.connected = false
		s.connectedMutex.Unlock()
	})

	// 设置连接建立回调，重连后恢复全部订阅
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		config.Info("[MQTT] 成功连接到 %s", s.Config.MQTTBrokerURL)
		s.connectedMutex.Lock()
		s.connected = true
		s.connectedMutex.Unlock()

		s.subMutex.Lock()
		defer s.subMutex.Unlock()
		for topic, handler := range s.subscriptions {
			if token := client.Subscribe(topic, 2, handler); token.Wait() && token.Error() != nil {
				config.Error("[MQTT] 恢复订阅 %s 失败: %v", topic, token.Error())
			}
		}
	})

	opts.SetReconnectingHandler(func(client mqtt.Client, opts *mqtt.ClientOptions) {
		config.Info("[MQTT] 正在尝试重连...")
	})

	s.Client = mqtt.NewClient(opts)
}

// Connect 连接MQTT服务器
func (s *MQTTService) Connect() error {
	token := s.Client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT连接失败: %w", token.Error())
	}
	return nil
}

// Disconnect 断开MQTT连接
func (s *MQTTService) Disconnect() {
	s.Client.Disconnect(250)
	s.connectedMutex.Lock()
	s.connected = false
	s.connectedMutex.Unlock()
}

// IsConnected 返回当前连接状态
func (s *MQTTService) IsConnected() bool {
	s.connectedMutex.RLock()
	defer s.connectedMutex.RUnlock()
	return s.connected
}

// Publish 序列化负载并发布到指定主题（QoS 2）
func (s *MQTTService) Publish(topic string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化MQTT消息失败: %w", err)
	}

	token := s.Client.Publish(topic, 2, false, data)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("发布到 %s 失败: %w", topic, token.Error())
	}
	return nil
}

// Subscribe 订阅主题并登记处理函数，重连后自动恢复
func (s *MQTTService) Subscribe(topic string, handler mqtt.MessageHandler) error {
	s.subMutex.Lock()
	s.subscriptions[topic] = handler
	s.subMutex.Unlock()

	token := s.Client.Subscribe(topic, 2, handler)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("订阅 %s 失败: %w", topic, token.Error())
	}
	config.Info("[MQTT] 已订阅 %s", topic)
	return nil
}

// Unsubscribe 取消订阅
func (s *MQTTService) Unsubscribe(topic string) error {
	s.subMutex.Lock()
	delete(s.subscriptions, topic)
	s.subMutex.Unlock()

	token := s.Client.Unsubscribe(topic)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("取消订阅 %s 失败: %w", topic, token.Error())
	}
	return nil
}

// DeviceTopic 拼出某台设备的完整主题
func (s *MQTTService) DeviceTopic(patientID, deviceID int, suffix string) string {
	return fmt.Sprintf("%s/%d/%d/%s", s.BaseTopic, patientID, deviceID, suffix)
}

// WildcardTopic 拼出匹配全部患者/设备的通配主题
func (s *MQTTService) WildcardTopic(suffix string) string {
	return fmt.Sprintf("%s/+/+/%s", s.BaseTopic, suffix)
}

// ParseDeviceTopic 从主题中解析出患者ID和设备ID
func ParseDeviceTopic(topic string) (patientID, deviceID int, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 4 {
		return 0, 0, fmt.Errorf("无法解析主题: %s", topic)
	}
	patientID, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("无法解析主题 %s 中的患者ID: %w", topic, err)
	}
	deviceID, err = strconv.Atoi(parts[2])
	if err != nil {
		return 0, 0, fmt.Errorf("无法解析主题 %s 中的设备ID: %w", topic, err)
	}
	return patientID, deviceID, nil
}
