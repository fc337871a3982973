package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/LucaRoldo98/ApPills/internal/error/code"
	"github.com/LucaRoldo98/ApPills/internal/error/response"
	"github.com/LucaRoldo98/ApPills/models"
	"github.com/LucaRoldo98/ApPills/services/container"
)

// InterfaceDeviceController 定义设备控制器接口
type InterfaceDeviceController interface {
	NewDevice()
	ClaimDevice()
	ReleaseDevice()
	AddPill()
	AddSchedule()
	RemoveAlarm()
	UpdateTempThresh()
	UpdateHumThresh()
	UpdateChannel()
}

// DeviceController 处理药盒设备相关的请求
type DeviceController struct {
	Ctx       *gin.Context
	Container *container.ServiceContainer
}

// NewDeviceController 创建一个新的设备控制器
func NewDeviceController(ctx *gin.Context, container *container.ServiceContainer) *DeviceController {
	return &DeviceController{
		Ctx:       ctx,
		Container: container,
	}
}

// NewDeviceRequest 设备上线自报请求，IP取自请求来源
type NewDeviceRequest struct {
	Port     int `json:"port" binding:"required" example:"8081"`
	NumSlots int `json:"numSlots" binding:"required" example:"4"`
}

// ClaimDeviceRequest 患者认领设备请求
type ClaimDeviceRequest struct {
	DeviceID int `json:"deviceID" binding:"required" example:"1"`
}

// AddPillRequest 设置药槽药名请求
type AddPillRequest struct {
	PillName string `json:"pillName" binding:"required" example:"aspirina"`
}

// AddScheduleRequest 追加服药计划请求
type AddScheduleRequest struct {
	Alarm   int    `json:"alarm" example:"1"`
	NumPill int    `json:"numPill" binding:"required" example:"2"`
	Time    string `json:"time" binding:"required" example:"08:30:00"`
}

// ThresholdRequest 更新阈值请求，上限必须大于下限
type ThresholdRequest struct {
	UpperThresh float64 `json:"upperThresh" example:"28.5"`
	LowerThresh float64 `json:"lowerThresh" example:"12.0"`
}

// ChannelRequest 更新ThingSpeak频道请求
type ChannelRequest struct {
	Channel string `json:"channel" binding:"required" example:"12345"`
}

// HandleDeviceFunc 返回一个处理设备请求的Gin处理函数
func HandleDeviceFunc(container *container.ServiceContainer, method string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		controller := NewDeviceController(ctx, container)

		switch method {
		case "newDevice":
			controller.NewDevice()
		case "claimDevice":
			controller.ClaimDevice()
		case "releaseDevice":
			controller.ReleaseDevice()
		case "addPill":
			controller.AddPill()
		case "addSchedule":
			controller.AddSchedule()
		case "removeAlarm":
			controller.RemoveAlarm()
		case "updateTempThresh":
			controller.UpdateTempThresh()
		case "updateHumThresh":
			controller.UpdateHumThresh()
		case "updateChannel":
			controller.UpdateChannel()
		default:
			response.FailWithMessage(ctx, code.ErrBind, "无效的方法", nil)
		}
	}
}

// 1. NewDevice 设备上线自报
// @Summary 设备上线自报
// @Description 新设备上线时登记自身端口与药槽数量，进入待认领池
// @Tags Device
// @Accept json
// @Produce json
// @Param request body NewDeviceRequest true "设备信息"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} response.Response
// @Router /newDevice [put]
func (c *DeviceController) NewDevice() {
	var req NewDeviceRequest
	if err := c.Ctx.ShouldBindJSON(&req); err != nil {
		response.ParamError(c.Ctx, "请求参数无效: "+err.Error())
		return
	}

	catalogService := c.Container.GetCatalogService()
	deviceID, err := catalogService.NewDevice(c.Ctx.ClientIP(), req.Port, req.NumSlots)
	if err != nil {
		failFromError(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, gin.H{"deviceID": deviceID})
}

// 2. ClaimDevice 患者认领设备
// @Summary 认领设备
// @Description 把待认领池中的设备挂到患者名下，并把归属推送给设备
// @Tags Device
// @Accept json
// @Produce json
// @Param userID path int true "患者ID"
// @Param request body ClaimDeviceRequest true "设备ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /addDevice/{userID} [put]
func (c *DeviceController) ClaimDevice() {
	userID, ok := intParam(c.Ctx, "userID")
	if !ok {
		return
	}
	var req ClaimDeviceRequest
	if err := c.Ctx.ShouldBindJSON(&req); err != nil {
		response.ParamError(c.Ctx, "请求参数无效: "+err.Error())
		return
	}

	catalogService := c.Container.GetCatalogService()
	if err := catalogService.ClaimDevice(req.DeviceID, userID); err != nil {
		failFromError(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, nil)
}

// 3. ReleaseDevice 释放设备回待认领池
// @Summary 释放设备
// @Description 把设备从患者名下摘除放回待认领池，并通知设备解除归属
// @Tags Device
// @Accept json
// @Produce json
// @Param userID path int true "患者ID"
// @Param deviceID path int true "设备ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /rmvDevice/{userID}/{deviceID} [delete]
func (c *DeviceController) ReleaseDevice() {
	userID, ok := intParam(c.Ctx, "userID")
	if !ok {
		return
	}
	deviceID, ok := intParam(c.Ctx, "deviceID")
	if !ok {
		return
	}

	catalogService := c.Container.GetCatalogService()
	if err := catalogService.ReleaseDevice(userID, deviceID); err != nil {
		failFromError(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, nil)
}

// 4. AddPill 设置药槽药名
// @Summary 设置药槽药名
// @Tags Device
// @Accept json
// @Produce json
// @Param userID path int true "患者ID"
// @Param deviceID path int true "设备ID"
// @Param slot path int true "药槽序号"
// @Param request body AddPillRequest true "药名"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /addPill/{userID}/{deviceID}/{slot} [put]
func (c *DeviceController) AddPill() {
	userID, ok := intParam(c.Ctx, "userID")
	if !ok {
		return
	}
	deviceID, ok := intParam(c.Ctx, "deviceID")
	if !ok {
		return
	}
	slot, ok := intParam(c.Ctx, "slot")
	if !ok {
		return
	}
	var req AddPillRequest
	if err := c.Ctx.ShouldBindJSON(&req); err != nil {
		response.ParamError(c.Ctx, "请求参数无效: "+err.Error())
		return
	}

	catalogService := c.Container.GetCatalogService()
	if err := catalogService.AddPill(userID, deviceID, slot, req.PillName); err != nil {
		failFromError(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, nil)
}

// 5. AddSchedule 为药槽追加服药计划
// @Summary 追加服药计划
// @Description 重复的计划合法，各自独立触发
// @Tags Device
// @Accept json
// @Produce json
// @Param userID path int true "患者ID"
// @Param deviceID path int true "设备ID"
// @Param slot path int true "药槽序号"
// @Param request body AddScheduleRequest true "计划条目"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /addSchedule/{userID}/{deviceID}/{slot} [put]
func (c *DeviceController) AddSchedule() {
	userID, ok := intParam(c.Ctx, "userID")
	if !ok {
		return
	}
	deviceID, ok := intParam(c.Ctx, "deviceID")
	if !ok {
		return
	}
	slot, ok := intParam(c.Ctx, "slot")
	if !ok {
		return
	}
	var req AddScheduleRequest
	if err := c.Ctx.ShouldBindJSON(&req); err != nil {
		response.ParamError(c.Ctx, "请求参数无效: "+err.Error())
		return
	}

	entry := models.ScheduleEntry{Alarm: req.Alarm, NumPill: req.NumPill, Time: req.Time}
	catalogService := c.Container.GetCatalogService()
	if err := catalogService.AddSchedule(userID, deviceID, slot, entry); err != nil {
		failFromError(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, nil)
}

// 6. RemoveAlarm 删除一条服药计划
// @Summary 删除服药计划
// @Tags Device
// @Accept json
// @Produce json
// @Param userID path int true "患者ID"
// @Param deviceID path int true "设备ID"
// @Param slot path int true "药槽序号"
// @Param alarm path int true "计划序号"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /rmvAlarm/{userID}/{deviceID}/{slot}/{alarm} [delete]
func (c *DeviceController) RemoveAlarm() {
	userID, ok := intParam(c.Ctx, "userID")
	if !ok {
		return
	}
	deviceID, ok := intParam(c.Ctx, "deviceID")
	if !ok {
		return
	}
	slot, ok := intParam(c.Ctx, "slot")
	if !ok {
		return
	}
	alarm, ok := intParam(c.Ctx, "alarm")
	if !ok {
		return
	}

	catalogService := c.Container.GetCatalogService()
	if err := catalogService.RemoveAlarm(userID, deviceID, slot, alarm); err != nil {
		failFromError(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, nil)
}

// 7. UpdateTempThresh 更新温度阈值
// @Summary 更新温度阈值
// @Tags Device
// @Accept json
// @Produce json
// @Param userID path int true "患者ID"
// @Param deviceID path int true "设备ID"
// @Param request body ThresholdRequest true "上下限"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /updateTempThresh/{userID}/{deviceID} [put]
func (c *DeviceController) UpdateTempThresh() {
	userID, ok := intParam(c.Ctx, "userID")
	if !ok {
		return
	}
	deviceID, ok := intParam(c.Ctx, "deviceID")
	if !ok {
		return
	}
	var req ThresholdRequest
	if err := c.Ctx.ShouldBindJSON(&req); err != nil {
		response.ParamError(c.Ctx, "请求参数无效: "+err.Error())
		return
	}
	if req.UpperThresh <= req.LowerThresh {
		response.ParamError(c.Ctx, "阈值上限必须大于下限")
		return
	}

	catalogService := c.Container.GetCatalogService()
	if err := catalogService.UpdateTempThresh(userID, deviceID, req.UpperThresh, req.LowerThresh); err != nil {
		failFromError(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, nil)
}

// 8. UpdateHumThresh 更新湿度阈值
// @Summary 更新湿度阈值
// @Tags Device
// @Accept json
// @Produce json
// @Param userID path int true "患者ID"
// @Param deviceID path int true "设备ID"
// @Param request body ThresholdRequest true "上下限"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /updateHumThresh/{userID}/{deviceID} [put]
func (c *DeviceController) UpdateHumThresh() {
	userID, ok := intParam(c.Ctx, "userID")
	if !ok {
		return
	}
	deviceID, ok := intParam(c.Ctx, "deviceID")
	if !ok {
		return
	}
	var req ThresholdRequest
	if err := c.Ctx.ShouldBindJSON(&req); err != nil {
		response.ParamError(c.Ctx, "请求参数无效: "+err.Error())
		return
	}
	if req.UpperThresh <= req.LowerThresh {
		response.ParamError(c.Ctx, "阈值上限必须大于下限")
		return
	}

	catalogService := c.Container.GetCatalogService()
	if err := catalogService.UpdateHumThresh(userID, deviceID, req.UpperThresh, req.LowerThresh); err != nil {
		failFromError(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, nil)
}

// 9. UpdateChannel 更新ThingSpeak频道
// @Summary 更新ThingSpeak频道
// @Tags Device
// @Accept json
// @Produce json
// @Param userID path int true "患者ID"
// @Param deviceID path int true "设备ID"
// @Param request body ChannelRequest true "频道标识"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /addChannel/{userID}/{deviceID} [put]
func (c *DeviceController) UpdateChannel() {
	userID, ok := intParam(c.Ctx, "userID")
	if !ok {
		return
	}
	deviceID, ok := intParam(c.Ctx, "deviceID")
	if !ok {
		return
	}
	var req ChannelRequest
	if err := c.Ctx.ShouldBindJSON(&req); err != nil {
		response.ParamError(c.Ctx, "请求参数无效: "+err.Error())
		return
	}

	catalogService := c.Container.GetCatalogService()
	if err := catalogService.UpdateChannel(userID, deviceID, req.Channel); err != nil {
		failFromError(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, nil)
}
