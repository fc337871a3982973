package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/LucaRoldo98/ApPills/internal/error/code"
	"github.com/LucaRoldo98/ApPills/internal/error/response"
	"github.com/LucaRoldo98/ApPills/services/container"
)

// InterfacePatientController 定义用户控制器接口
type InterfacePatientController interface {
	AddUser()
	AddAssistant()
	ChangePassword()
	AssistUser()
	DissociatePatient()
	GetDevices()
	GetProfileData()
	GetAssistants()
	GetAssistedPatients()
}

// PatientController 处理患者与协助者相关的请求
type PatientController struct {
	Ctx       *gin.Context
	Container *container.ServiceContainer
}

// NewPatientController 创建一个新的用户控制器
func NewPatientController(ctx *gin.Context, container *container.ServiceContainer) *PatientController {
	return &PatientController{
		Ctx:       ctx,
		Container: container,
	}
}

// AddUserRequest 注册患者请求
type AddUserRequest struct {
	UserName string `json:"userName" binding:"required" example:"mario.rossi"`
	Password string `json:"password" binding:"required" example:"secret"`
	Usage    string `json:"usage" example:"personal"` // personal, hospital
	ChatID   int64  `json:"chatID" example:"0"`
}

// AddAssistantRequest 注册协助者请求
type AddAssistantRequest struct {
	UserName string `json:"userName" binding:"required" example:"luigi.verdi"`
	ChatID   int64  `json:"chatID" example:"0"`
}

// ChangePasswordRequest 修改密码请求
type ChangePasswordRequest struct {
	Password string `json:"password" binding:"required" example:"newSecret"`
}

// AssistUserRequest 协助者关联患者请求，需要患者的用户名和密码
type AssistUserRequest struct {
	UserName    string `json:"userName" binding:"required" example:"mario.rossi"`
	Password    string `json:"password" binding:"required" example:"secret"`
	AssistantID int    `json:"assistantID" binding:"required" example:"1"`
}

// HandlePatientFunc 返回一个处理用户请求的Gin处理函数
func HandlePatientFunc(container *container.ServiceContainer, method string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		controller := NewPatientController(ctx, container)

		switch method {
		case "addUser":
			controller.AddUser()
		case "addAssistant":
			controller.AddAssistant()
		case "changePassword":
			controller.ChangePassword()
		case "assistUser":
			controller.AssistUser()
		case "dissociatePatient":
			controller.DissociatePatient()
		case "getDevices":
			controller.GetDevices()
		case "getProfileData":
			controller.GetProfileData()
		case "getAssistants":
			controller.GetAssistants()
		case "getAssistedPatients":
			controller.GetAssistedPatients()
		default:
			response.FailWithMessage(ctx, code.ErrBind, "无效的方法", nil)
		}
	}
}

// 1. AddUser 注册患者
// @Summary 注册患者
// @Description 注册一名新患者，返回分配的用户ID
// @Tags Patient
// @Accept json
// @Produce json
// @Param request body AddUserRequest true "注册信息"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} response.Response
// @Router /addUser [put]
func (c *PatientController) AddUser() {
	var req AddUserRequest
	if err := c.Ctx.ShouldBindJSON(&req); err != nil {
		response.ParamError(c.Ctx, "请求参数无效: "+err.Error())
		return
	}
	if req.Usage == "" {
		req.Usage = "personal"
	}

	catalogService := c.Container.GetCatalogService()
	userID, err := catalogService.AddUser(req.UserName, req.Password, req.Usage, req.ChatID)
	if err != nil {
		failFromError(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, gin.H{"userID": userID})
}

// 2. AddAssistant 注册协助者
// @Summary 注册协助者
// @Description 注册一名新协助者，返回分配的用户ID
// @Tags Patient
// @Accept json
// @Produce json
// @Param request body AddAssistantRequest true "注册信息"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} response.Response
// @Router /addAssistant [put]
func (c *PatientController) AddAssistant() {
	var req AddAssistantRequest
	if err := c.Ctx.ShouldBindJSON(&req); err != nil {
		response.ParamError(c.Ctx, "请求参数无效: "+err.Error())
		return
	}

	catalogService := c.Container.GetCatalogService()
	assistantID, err := catalogService.AddAssistant(req.UserName, req.ChatID)
	if err != nil {
		failFromError(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, gin.H{"userID": assistantID})
}

// 3. ChangePassword 修改患者密码
// @Summary 修改密码
// @Tags Patient
// @Accept json
// @Produce json
// @Param userID path int true "患者ID"
// @Param request body ChangePasswordRequest true "新密码"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /changePassword/{userID} [put]
func (c *PatientController) ChangePassword() {
	userID, ok := intParam(c.Ctx, "userID")
	if !ok {
		return
	}
	var req ChangePasswordRequest
	if err := c.Ctx.ShouldBindJSON(&req); err != nil {
		response.ParamError(c.Ctx, "请求参数无效: "+err.Error())
		return
	}

	catalogService := c.Container.GetCatalogService()
	if err := catalogService.ChangePassword(userID, req.Password); err != nil {
		failFromError(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, nil)
}

// 4. AssistUser 协助者关联患者
// @Summary 关联患者
// @Description 提供患者的用户名和密码，把患者挂到协助者名下
// @Tags Patient
// @Accept json
// @Produce json
// @Param request body AssistUserRequest true "患者凭据与协助者ID"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /assistUser [put]
func (c *PatientController) AssistUser() {
	var req AssistUserRequest
	if err := c.Ctx.ShouldBindJSON(&req); err != nil {
		response.ParamError(c.Ctx, "请求参数无效: "+err.Error())
		return
	}

	catalogService := c.Container.GetCatalogService()
	if err := catalogService.AssistUser(req.UserName, req.Password, req.AssistantID); err != nil {
		failFromError(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, nil)
}

// 5. DissociatePatient 解除协助关系
// @Summary 解除协助关系
// @Tags Patient
// @Accept json
// @Produce json
// @Param assistantID path int true "协助者ID"
// @Param patientID path int true "患者ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /dissociatePatient/{assistantID}/{patientID} [delete]
func (c *PatientController) DissociatePatient() {
	assistantID, ok := intParam(c.Ctx, "assistantID")
	if !ok {
		return
	}
	patientID, ok := intParam(c.Ctx, "patientID")
	if !ok {
		return
	}

	catalogService := c.Container.GetCatalogService()
	if err := catalogService.DissociatePatient(assistantID, patientID); err != nil {
		failFromError(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, nil)
}

// 6. GetDevices 获取患者名下的设备ID列表
// @Summary 获取患者设备列表
// @Tags Patient
// @Accept json
// @Produce json
// @Param userID path int true "患者ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} response.Response
// @Router /devices/{userID} [get]
func (c *PatientController) GetDevices() {
	userID, ok := intParam(c.Ctx, "userID")
	if !ok {
		return
	}
	catalogService := c.Container.GetCatalogService()
	devices, err := catalogService.GetDevices(userID)
	if err != nil {
		failFromError(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, gin.H{"devices": devices})
}

// 7. GetProfileData 获取患者概要数据
// @Summary 获取患者概要
// @Description 返回患者的基础信息、设备与协助者概览
// @Tags Patient
// @Accept json
// @Produce json
// @Param userID path int true "患者ID"
// @Success 200 {object} models.ProfileData
// @Failure 404 {object} response.Response
// @Router /profileData/{userID} [get]
func (c *PatientController) GetProfileData() {
	userID, ok := intParam(c.Ctx, "userID")
	if !ok {
		return
	}
	catalogService := c.Container.GetCatalogService()
	profile, err := catalogService.GetProfileData(userID)
	if err != nil {
		failFromError(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, profile)
}

// 8. GetAssistants 获取患者的协助者列表
// @Summary 获取协助者列表
// @Tags Patient
// @Accept json
// @Produce json
// @Param patientID path int true "患者ID"
// @Success 200 {array} models.UserSummary
// @Failure 404 {object} response.Response
// @Router /assistants/{patientID} [get]
func (c *PatientController) GetAssistants() {
	patientID, ok := intParam(c.Ctx, "patientID")
	if !ok {
		return
	}
	catalogService := c.Container.GetCatalogService()
	assistants, err := catalogService.GetAssistants(patientID)
	if err != nil {
		failFromError(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, assistants)
}

// 9. GetAssistedPatients 获取协助者照看的患者列表
// @Summary 获取被协助患者列表
// @Tags Patient
// @Accept json
// @Produce json
// @Param assistantID path int true "协助者ID"
// @Success 200 {array} models.UserSummary
// @Failure 404 {object} response.Response
// @Router /assistedPatients/{assistantID} [get]
func (c *PatientController) GetAssistedPatients() {
	assistantID, ok := intParam(c.Ctx, "assistantID")
	if !ok {
		return
	}
	catalogService := c.Container.GetCatalogService()
	patients, err := catalogService.GetAssistedPatients(assistantID)
	if err != nil {
		failFromError(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, patients)
}
