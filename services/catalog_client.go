package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/LucaRoldo98/ApPills/config"
	"github.com/LucaRoldo98/ApPills/models"
)

// InterfaceCatalogClient 工作进程访问目录服务的客户端接口。
// 工作进程之间没有共享内存，目录API是唯一的协调通道。
type InterfaceCatalogClient interface {
	GetVersion() (int64, error)
	GetConf() (*models.SystemConf, error)
	GetSchedules() (map[string][][]models.ScheduleEntry, error)
	GetDeviceURI(patientID, deviceID int) (string, error)
	GetSlotsNumber(patientID, deviceID int) (int, error)
	Heartbeat(serviceName string) (*models.HeartbeatPayload, error)
	AddOpeningTime(record models.OpeningRecord) error
	RemoveOpeningTime(patientID, deviceID int) error
	AddOpeningPills(record models.PillCountRecord) error
	ConsumeOpeningPills(patientID, deviceID int) ([]int, error)
}

// CatalogClient 目录API的HTTP客户端
type CatalogClient struct {
	BaseURL string
	Client  *http.Client
}

// NewCatalogClient 创建目录客户端
func NewCatalogClient(cfg *config.Config) InterfaceCatalogClient {
	return &CatalogClient{
		BaseURL: cfg.CatalogURL,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// apiEnvelope 目录API的统一应答格式
type apiEnvelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// GetVersion 读取目录当前版本号
func (c *CatalogClient) GetVersion() (int64, error) {
	var data struct {
		Version int64 `json:"version"`
	}
	if err := c.get("/lu", &data); err != nil {
		return 0, err
	}
	return data.Version, nil
}

// GetConf 读取系统配置（broker地址、基础主题）
func (c *CatalogClient) GetConf() (*models.SystemConf, error) {
	var conf models.SystemConf
	if err := c.get("/conf", &conf); err != nil {
		return nil, err
	}
	return &conf, nil
}

// GetSchedules 读取每对 (患者,设备) 的完整计划投影
func (c *CatalogClient) GetSchedules() (map[string][][]models.ScheduleEntry, error) {
	schedules := make(map[string][][]models.ScheduleEntry)
	if err := c.get("/schedules", &schedules); err != nil {
		return nil, err
	}
	return schedules, nil
}

// GetDeviceURI 读取设备HTTP端点
func (c *CatalogClient) GetDeviceURI(patientID, deviceID int) (string, error) {
	var data struct {
		DeviceURI string `json:"deviceURI"`
	}
	path := "/deviceURI/" + strconv.Itoa(patientID) + "/" + strconv.Itoa(deviceID)
	if err := c.get(path, &data); err != nil {
		return "", err
	}
	return data.DeviceURI, nil
}

// GetSlotsNumber 读取设备药槽数量
func (c *CatalogClient) GetSlotsNumber(patientID, deviceID int) (int, error) {
	var data struct {
		NumSlots int `json:"numSlots"`
	}
	path := "/slotsNumber/" + strconv.Itoa(patientID) + "/" + strconv.Itoa(deviceID)
	if err := c.get(path, &data); err != nil {
		return 0, err
	}
	return data.NumSlots, nil
}

// Heartbeat 上报心跳并带回本角色需要的状态切片
func (c *CatalogClient) Heartbeat(serviceName string) (*models.HeartbeatPayload, error) {
	payload := &models.HeartbeatPayload{}
	body := map[string]string{"service": serviceName}
	if err := c.do(http.MethodPut, "/ping", body, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// AddOpeningTime 登记开盖时间记录
func (c *CatalogClient) AddOpeningTime(record models.OpeningRecord) error {
	return c.do(http.MethodPut, "/addOpeningTime", record, nil)
}

// RemoveOpeningTime 删除开盖时间记录
func (c *CatalogClient) RemoveOpeningTime(patientID, deviceID int) error {
	path := "/rmvOpeningTime/" + strconv.Itoa(patientID) + "/" + strconv.Itoa(deviceID)
	return c.do(http.MethodDelete, path, nil, nil)
}

// AddOpeningPills 登记开盖药量快照
func (c *CatalogClient) AddOpeningPills(record models.PillCountRecord) error {
	return c.do(http.MethodPut, "/addOpeningPills", record, nil)
}

// ConsumeOpeningPills 读取并删除开盖药量快照
func (c *CatalogClient) ConsumeOpeningPills(patientID, deviceID int) ([]int, error) {
	var data struct {
		CountOpened []int `json:"countOpened"`
	}
	path := "/rmvOpeningPills/" + strconv.Itoa(patientID) + "/" + strconv.Itoa(deviceID)
	if err := c.do(http.MethodDelete, path, nil, &data); err != nil {
		return nil, err
	}
	return data.CountOpened, nil
}

func (c *CatalogClient) get(path string, out interface{}) error {
	return c.do(http.MethodGet, path, nil, out)
}

// do 发送请求并解开统一应答格式。404翻译成ErrNotFound。
func (c *CatalogClient) do(method, path string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("目录服务请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("目录应答解析失败: %w", err)
	}
	if resp.StatusCode >= 400 {
		return errors.New(envelope.Message)
	}
	if out != nil && len(envelope.Data) > 0 {
		return json.Unmarshal(envelope.Data, out)
	}
	return nil
}
