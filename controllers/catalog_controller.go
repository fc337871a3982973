package controllers

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/LucaRoldo98/ApPills/config"
	"github.com/LucaRoldo98/ApPills/internal/error/code"
	"github.com/LucaRoldo98/ApPills/internal/error/response"
	"github.com/LucaRoldo98/ApPills/models"
	"github.com/LucaRoldo98/ApPills/services"
	"github.com/LucaRoldo98/ApPills/services/container"
)

// InterfaceCatalogController 定义目录读取控制器接口
type InterfaceCatalogController interface {
	GetCatalog()
	GetLastUpdate()
	GetConf()
	GetSchedule()
	GetSchedules()
	GetDeviceURI()
	GetTempThresh()
	GetHumThresh()
	GetSlotsName()
	GetSlotsNumber()
}

// CatalogController 处理目录读取相关的请求
type CatalogController struct {
	Ctx       *gin.Context
	Container *container.ServiceContainer
}

// NewCatalogController 创建一个新的目录读取控制器
func NewCatalogController(ctx *gin.Context, container *container.ServiceContainer) *CatalogController {
	return &CatalogController{
		Ctx:       ctx,
		Container: container,
	}
}

// HandleCatalogFunc 返回一个处理目录读取请求的Gin处理函数
func HandleCatalogFunc(container *container.ServiceContainer, method string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		controller := NewCatalogController(ctx, container)

		switch method {
		case "getCatalog":
			controller.GetCatalog()
		case "getLastUpdate":
			controller.GetLastUpdate()
		case "getConf":
			controller.GetConf()
		case "getSchedule":
			controller.GetSchedule()
		case "getSchedules":
			controller.GetSchedules()
		case "getDeviceURI":
			controller.GetDeviceURI()
		case "getTempThresh":
			controller.GetTempThresh()
		case "getHumThresh":
			controller.GetHumThresh()
		case "getSlotsName":
			controller.GetSlotsName()
		case "getSlotsNumber":
			controller.GetSlotsNumber()
		default:
			response.FailWithMessage(ctx, code.ErrBind, "无效的方法", nil)
		}
	}
}

// intParam 解析路径参数为整数，失败时写参数错误响应并返回false
func intParam(ctx *gin.Context, name string) (int, bool) {
	value, err := strconv.Atoi(ctx.Param(name))
	if err != nil {
		response.ParamError(ctx, "无效的"+name)
		return 0, false
	}
	return value, true
}

// failFromError 把服务层的类型化错误映射成对应的错误响应
func failFromError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		response.NotFound(ctx, err.Error())
	case errors.Is(err, services.ErrUsernameExists):
		response.Fail(ctx, code.ErrUsernameExists, nil)
	case errors.Is(err, services.ErrAlreadyAssociated):
		response.Fail(ctx, code.ErrAlreadyAssociated, nil)
	case errors.Is(err, services.ErrBadCredentials):
		response.Fail(ctx, code.ErrPasswordIncorrect, nil)
	default:
		response.FailWithMessage(ctx, code.ErrUnknown, err.Error(), nil)
	}
}

// 1. GetCatalog 获取完整目录
// @Summary 获取完整目录
// @Description 返回整个目录文档（调试与全量同步用）
// @Tags Catalog
// @Accept json
// @Produce json
// @Success 200 {object} models.CatalogDocument
// @Failure 500 {object} response.Response
// @Router /catalog [get]
func (c *CatalogController) GetCatalog() {
	catalogService := c.Container.GetCatalogService()
	doc, err := catalogService.GetCatalog()
	if err != nil {
		failFromError(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, doc)
}

// 2. GetLastUpdate 获取目录版本号
// @Summary 获取目录版本号
// @Description 工作进程轮询此接口判断是否需要重建投影
// @Tags Catalog
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /lu [get]
func (c *CatalogController) GetLastUpdate() {
	catalogService := c.Container.GetCatalogService()
	version, err := catalogService.GetVersion()
	if err != nil {
		failFromError(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, gin.H{"version": version})
}

// 3. GetConf 获取系统配置
// @Summary 获取系统配置
// @Description 返回broker地址与基础主题，微服务启动时获取
// @Tags Catalog
// @Accept json
// @Produce json
// @Success 200 {object} models.SystemConf
// @Router /conf [get]
func (c *CatalogController) GetConf() {
	cfg := c.Container.GetService("config").(*config.Config)
	response.Success(c.Ctx, models.SystemConf{
		BaseTopic: cfg.BaseTopic,
		Broker:    cfg.MQTTBrokerURL,
		Port:      cfg.MQTTBrokerPort,
	})
}

// 4. GetSchedule 获取某台设备的服药计划
// @Summary 获取服药计划
// @Description 返回某患者某设备每个药槽的服药计划
// @Tags Catalog
// @Accept json
// @Produce json
// @Param userID path int true "患者ID"
// @Param deviceID path int true "设备ID"
// @Success 200 {array} []models.ScheduleEntry
// @Failure 404 {object} response.Response
// @Router /schedule/{userID}/{deviceID} [get]
func (c *CatalogController) GetSchedule() {
	userID, ok := intParam(c.Ctx, "userID")
	if !ok {
		return
	}
	deviceID, ok := intParam(c.Ctx, "deviceID")
	if !ok {
		return
	}
	catalogService := c.Container.GetCatalogService()
	schedule, err := catalogService.GetSchedule(userID, deviceID)
	if err != nil {
		failFromError(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, schedule)
}

// 5. GetSchedules 获取全部服药计划投影
// @Summary 获取全部服药计划
// @Description 返回每对 (患者,设备) 的完整计划，键为 "patientID/deviceID"
// @Tags Catalog
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /schedules [get]
func (c *CatalogController) GetSchedules() {
	catalogService := c.Container.GetCatalogService()
	schedules, err := catalogService.GetSchedules()
	if err != nil {
		failFromError(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, schedules)
}

// 6. GetDeviceURI 获取设备HTTP端点
// @Summary 获取设备端点
// @Tags Catalog
// @Accept json
// @Produce json
// @Param userID path int true "患者ID"
// @Param deviceID path int true "设备ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} response.Response
// @Router /deviceURI/{userID}/{deviceID} [get]
func (c *CatalogController) GetDeviceURI() {
	userID, ok := intParam(c.Ctx, "userID")
	if !ok {
		return
	}
	deviceID, ok := intParam(c.Ctx, "deviceID")
	if !ok {
		return
	}
	catalogService := c.Container.GetCatalogService()
	uri, err := catalogService.GetDeviceURI(userID, deviceID)
	if err != nil {
		failFromError(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, gin.H{"deviceURI": uri})
}

// 7. GetTempThresh 获取温度阈值
// @Summary 获取温度阈值
// @Tags Catalog
// @Accept json
// @Produce json
// @Param userID path int true "患者ID"
// @Param deviceID path int true "设备ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} response.Response
// @Router /tempThresh/{userID}/{deviceID} [get]
func (c *CatalogController) GetTempThresh() {
	userID, ok := intParam(c.Ctx, "userID")
	if !ok {
		return
	}
	deviceID, ok := intParam(c.Ctx, "deviceID")
	if !ok {
		return
	}
	catalogService := c.Container.GetCatalogService()
	upper, lower, err := catalogService.GetTempThresh(userID, deviceID)
	if err != nil {
		failFromError(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, gin.H{"upperThresh": upper, "lowerThresh": lower})
}

// 8. GetHumThresh 获取湿度阈值
// @Summary 获取湿度阈值
// @Tags Catalog
// @Accept json
// @Produce json
// @Param userID path int true "患者ID"
// @Param deviceID path int true "设备ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} response.Response
// @Router /humThresh/{userID}/{deviceID} [get]
func (c *CatalogController) GetHumThresh() {
	userID, ok := intParam(c.Ctx, "userID")
	if !ok {
		return
	}
	deviceID, ok := intParam(c.Ctx, "deviceID")
	if !ok {
		return
	}
	catalogService := c.Container.GetCatalogService()
	upper, lower, err := catalogService.GetHumThresh(userID, deviceID)
	if err != nil {
		failFromError(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, gin.H{"upperThresh": upper, "lowerThresh": lower})
}

// 9. GetSlotsName 获取每个药槽的药名
// @Summary 获取药槽药名
// @Tags Catalog
// @Accept json
// @Produce json
// @Param userID path int true "患者ID"
// @Param deviceID path int true "设备ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} response.Response
// @Router /slotsName/{userID}/{deviceID} [get]
func (c *CatalogController) GetSlotsName() {
	userID, ok := intParam(c.Ctx, "userID")
	if !ok {
		return
	}
	deviceID, ok := intParam(c.Ctx, "deviceID")
	if !ok {
		return
	}
	catalogService := c.Container.GetCatalogService()
	names, err := catalogService.GetSlotsName(userID, deviceID)
	if err != nil {
		failFromError(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, gin.H{"slotsName": names})
}

// 10. GetSlotsNumber 获取药槽数量
// @Summary 获取药槽数量
// @Tags Catalog
// @Accept json
// @Produce json
// @Param userID path int true "患者ID"
// @Param deviceID path int true "设备ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} response.Response
// @Router /slotsNumber/{userID}/{deviceID} [get]
func (c *CatalogController) GetSlotsNumber() {
	userID, ok := intParam(c.Ctx, "userID")
	if !ok {
		return
	}
	deviceID, ok := intParam(c.Ctx, "deviceID")
	if !ok {
		return
	}
	catalogService := c.Container.GetCatalogService()
	numSlots, err := catalogService.GetSlotsNumber(userID, deviceID)
	if err != nil {
		failFromError(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, gin.H{"numSlots": numSlots})
}
