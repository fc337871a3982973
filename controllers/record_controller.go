package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/LucaRoldo98/ApPills/internal/error/code"
	"github.com/LucaRoldo98/ApPills/internal/error/response"
	"github.com/LucaRoldo98/ApPills/models"
	"github.com/LucaRoldo98/ApPills/services/container"
)

// InterfaceRecordController 定义心跳与瞬态记录控制器接口
type InterfaceRecordController interface {
	Ping()
	AddOpeningTime()
	RemoveOpeningTime()
	AddOpeningPills()
	ConsumeOpeningPills()
}

// RecordController 处理心跳与开盖瞬态记录相关的请求
type RecordController struct {
	Ctx       *gin.Context
	Container *container.ServiceContainer
}

// NewRecordController 创建一个新的记录控制器
func NewRecordController(ctx *gin.Context, container *container.ServiceContainer) *RecordController {
	return &RecordController{
		Ctx:       ctx,
		Container: container,
	}
}

// PingRequest 心跳请求，service 为工作进程角色名
type PingRequest struct {
	Service string `json:"service" binding:"required" example:"timeShift"`
}

// HandleRecordFunc 返回一个处理记录请求的Gin处理函数
func HandleRecordFunc(container *container.ServiceContainer, method string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		controller := NewRecordController(ctx, container)

		switch method {
		case "ping":
			controller.Ping()
		case "addOpeningTime":
			controller.AddOpeningTime()
		case "removeOpeningTime":
			controller.RemoveOpeningTime()
		case "addOpeningPills":
			controller.AddOpeningPills()
		case "consumeOpeningPills":
			controller.ConsumeOpeningPills()
		default:
			response.FailWithMessage(ctx, code.ErrBind, "无效的方法", nil)
		}
	}
}

// 1. Ping 工作进程心跳
// @Summary 工作进程心跳
// @Description 刷新进程的存活时间戳，按角色返回该角色需要的状态切片
// @Tags Record
// @Accept json
// @Produce json
// @Param request body PingRequest true "角色名"
// @Success 200 {object} models.HeartbeatPayload
// @Failure 400 {object} response.Response
// @Router /ping [put]
func (c *RecordController) Ping() {
	var req PingRequest
	if err := c.Ctx.ShouldBindJSON(&req); err != nil {
		response.ParamError(c.Ctx, "请求参数无效: "+err.Error())
		return
	}

	catalogService := c.Container.GetCatalogService()
	payload, err := catalogService.Heartbeat(req.Service)
	if err != nil {
		failFromError(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, payload)
}

// 2. AddOpeningTime 登记开盖时刻
// @Summary 登记开盖时刻
// @Description 每对 (患者,设备) 至多一条，重复登记覆盖旧记录
// @Tags Record
// @Accept json
// @Produce json
// @Param request body models.OpeningRecord true "开盖记录"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /addOpeningTime [put]
func (c *RecordController) AddOpeningTime() {
	var record models.OpeningRecord
	if err := c.Ctx.ShouldBindJSON(&record); err != nil {
		response.ParamError(c.Ctx, "请求参数无效: "+err.Error())
		return
	}

	catalogService := c.Container.GetCatalogService()
	if err := catalogService.AddOpeningTime(record); err != nil {
		failFromError(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, nil)
}

// 3. RemoveOpeningTime 删除开盖记录
// @Summary 删除开盖记录
// @Tags Record
// @Accept json
// @Produce json
// @Param patientID path int true "患者ID"
// @Param deviceID path int true "设备ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /rmvOpeningTime/{patientID}/{deviceID} [delete]
func (c *RecordController) RemoveOpeningTime() {
	patientID, ok := intParam(c.Ctx, "patientID")
	if !ok {
		return
	}
	deviceID, ok := intParam(c.Ctx, "deviceID")
	if !ok {
		return
	}

	catalogService := c.Container.GetCatalogService()
	if err := catalogService.RemoveOpeningTime(patientID, deviceID); err != nil {
		failFromError(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, nil)
}

// 4. AddOpeningPills 登记开盖瞬间的药量快照
// @Summary 登记药量快照
// @Tags Record
// @Accept json
// @Produce json
// @Param request body models.PillCountRecord true "药量快照"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /addOpeningPills [put]
func (c *RecordController) AddOpeningPills() {
	var record models.PillCountRecord
	if err := c.Ctx.ShouldBindJSON(&record); err != nil {
		response.ParamError(c.Ctx, "请求参数无效: "+err.Error())
		return
	}

	catalogService := c.Container.GetCatalogService()
	if err := catalogService.AddOpeningPills(record); err != nil {
		failFromError(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, nil)
}

// 5. ConsumeOpeningPills 取回并删除药量快照
// @Summary 取回药量快照
// @Description 读取后立即删除，同一次开盖的快照只能取回一次
// @Tags Record
// @Accept json
// @Produce json
// @Param patientID path int true "患者ID"
// @Param deviceID path int true "设备ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} response.Response
// @Router /rmvOpeningPills/{patientID}/{deviceID} [delete]
func (c *RecordController) ConsumeOpeningPills() {
	patientID, ok := intParam(c.Ctx, "patientID")
	if !ok {
		return
	}
	deviceID, ok := intParam(c.Ctx, "deviceID")
	if !ok {
		return
	}

	catalogService := c.Container.GetCatalogService()
	counts, err := catalogService.ConsumeOpeningPills(patientID, deviceID)
	if err != nil {
		failFromError(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, gin.H{"countOpened": counts})
}
