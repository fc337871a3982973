package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/LucaRoldo98/ApPills/config"
	"github.com/LucaRoldo98/ApPills/models"
)

// ErrDeviceUnreachable 设备端点调用失败或超时。调用方记日志后继续，
// 绝不能让一台联系不上的设备卡住轮询循环。
var ErrDeviceUnreachable = errors.New("设备不可达")

// InterfaceDeviceClient 定义设备控制面接口：LED、蜂鸣器、药量计数、
// 归属患者。这些都是直连设备自身HTTP端点，不走消息总线。
type InterfaceDeviceClient interface {
	GetCounters(deviceURI string) ([]int, error)
	SetLED(deviceURI string, slotID int, on bool) error
	SetAlarm(deviceURI string, on bool) error
	SetOwner(deviceURI string, userID int) error
	Dissociate(deviceURI string) error
}

// DeviceClient 设备控制面的HTTP实现
type DeviceClient struct {
	Client *http.Client
	BN     string // 指令里携带的来源标识
}

// NewDeviceClient 创建设备控制客户端，超时必须有界
func NewDeviceClient(cfg *config.Config, sourceName string) InterfaceDeviceClient {
	return &DeviceClient{
		Client: &http.Client{
			Timeout: time.Duration(cfg.DeviceTimeoutSeconds) * time.Second,
		},
		BN: sourceName,
	}
}

// GetCounters 读取设备每个药槽当前的药量
func (c *DeviceClient) GetCounters(deviceURI string) ([]int, error) {
	resp, err := c.Client.Get(deviceURI + "/counters")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnreachable, err)
	}
	defer resp.Body.Close()

	var msg models.CounterMessage
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return nil, fmt.Errorf("%w: 应答解析失败: %v", ErrDeviceUnreachable, err)
	}
	return msg.E.Number, nil
}

// SetLED 点亮或熄灭指定药槽的LED
func (c *DeviceClient) SetLED(deviceURI string, slotID int, on bool) error {
	cmd := models.LEDCommand{BN: c.BN, SlotID: slotID, On: boolToInt(on)}
	return c.put(deviceURI+"/led", cmd)
}

// SetAlarm 打开或关闭设备蜂鸣器
func (c *DeviceClient) SetAlarm(deviceURI string, on bool) error {
	cmd := models.AlarmCommand{BN: c.BN, On: boolToInt(on)}
	return c.put(deviceURI+"/alarm", cmd)
}

// SetOwner 把归属患者ID推送给设备
func (c *DeviceClient) SetOwner(deviceURI string, userID int) error {
	return c.put(deviceURI+"/userID", models.OwnerCommand{UserID: userID})
}

// Dissociate 清除设备上的归属患者
func (c *DeviceClient) Dissociate(deviceURI string) error {
	req, err := http.NewRequest(http.MethodDelete, deviceURI+"/dissociate", nil)
	if err != nil {
		return err
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnreachable, err)
	}
	resp.Body.Close()
	return nil
}

func (c *DeviceClient) put(url string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnreachable, err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: 设备返回 %d", ErrDeviceUnreachable, resp.StatusCode)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
