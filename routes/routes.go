package routes

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/LucaRoldo98/ApPills/controllers"
	_ "github.com/LucaRoldo98/ApPills/docs"
	"github.com/LucaRoldo98/ApPills/services/container"
)

// SetupRouter 初始化并返回配置好的路由
func SetupRouter(serviceContainer *container.ServiceContainer) *gin.Engine {
	// 初始化 Gin
	r := gin.Default()

	// 添加 CORS 中间件
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, Accept, Origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, PATCH")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})
	// 设置正确的Content-Type，确保UTF-8编码
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json; charset=utf-8")
		c.Next()
	})
	// 添加 Swagger 文档路由
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 注册路由
	registerRoutes(r, serviceContainer)
	return r
}

// SetupRouterWithContainer 用已构建的容器初始化路由，测试用
func SetupRouterWithContainer(serviceContainer *container.ServiceContainer) *gin.Engine {
	r := gin.New()
	registerRoutes(r, serviceContainer)
	return r
}

// registerRoutes 配置所有API路由
func registerRoutes(
	r *gin.Engine,
	container *container.ServiceContainer,
) {
	// API 路由根路径
	api := r.Group("/api")

	// 目录读取路由
	api.GET("/catalog", controllers.HandleCatalogFunc(container, "getCatalog"))
	api.GET("/lu", controllers.HandleCatalogFunc(container, "getLastUpdate"))
	api.GET("/conf", controllers.HandleCatalogFunc(container, "getConf"))
	api.GET("/schedule/:userID/:deviceID", controllers.HandleCatalogFunc(container, "getSchedule"))
	api.GET("/schedules", controllers.HandleCatalogFunc(container, "getSchedules"))
	api.GET("/deviceURI/:userID/:deviceID", controllers.HandleCatalogFunc(container, "getDeviceURI"))
	api.GET("/tempThresh/:userID/:deviceID", controllers.HandleCatalogFunc(container, "getTempThresh"))
	api.GET("/humThresh/:userID/:deviceID", controllers.HandleCatalogFunc(container, "getHumThresh"))
	api.GET("/slotsName/:userID/:deviceID", controllers.HandleCatalogFunc(container, "getSlotsName"))
	api.GET("/slotsNumber/:userID/:deviceID", controllers.HandleCatalogFunc(container, "getSlotsNumber"))

	// 患者与协助者路由
	api.PUT("/addUser", controllers.HandlePatientFunc(container, "addUser"))
	api.PUT("/addAssistant", controllers.HandlePatientFunc(container, "addAssistant"))
	api.PUT("/changePassword/:userID", controllers.HandlePatientFunc(container, "changePassword"))
	api.PUT("/assistUser", controllers.HandlePatientFunc(container, "assistUser"))
	api.DELETE("/dissociatePatient/:assistantID/:patientID", controllers.HandlePatientFunc(container, "dissociatePatient"))
	api.GET("/devices/:userID", controllers.HandlePatientFunc(container, "getDevices"))
	api.GET("/profileData/:userID", controllers.HandlePatientFunc(container, "getProfileData"))
	api.GET("/assistants/:patientID", controllers.HandlePatientFunc(container, "getAssistants"))
	api.GET("/assistedPatients/:assistantID", controllers.HandlePatientFunc(container, "getAssistedPatients"))

	// 设备路由
	api.PUT("/newDevice", controllers.HandleDeviceFunc(container, "newDevice"))
	api.PUT("/addDevice/:userID", controllers.HandleDeviceFunc(container, "claimDevice"))
	api.DELETE("/rmvDevice/:userID/:deviceID", controllers.HandleDeviceFunc(container, "releaseDevice"))
	api.PUT("/addPill/:userID/:deviceID/:slot", controllers.HandleDeviceFunc(container, "addPill"))
	api.PUT("/addSchedule/:userID/:deviceID/:slot", controllers.HandleDeviceFunc(container, "addSchedule"))
	api.DELETE("/rmvAlarm/:userID/:deviceID/:slot/:alarm", controllers.HandleDeviceFunc(container, "removeAlarm"))
	api.PUT("/updateTempThresh/:userID/:deviceID", controllers.HandleDeviceFunc(container, "updateTempThresh"))
	api.PUT("/updateHumThresh/:userID/:deviceID", controllers.HandleDeviceFunc(container, "updateHumThresh"))
	api.PUT("/addChannel/:userID/:deviceID", controllers.HandleDeviceFunc(container, "updateChannel"))

	// 心跳与瞬态记录路由
	api.PUT("/ping", controllers.HandleRecordFunc(container, "ping"))
	api.PUT("/addOpeningTime", controllers.HandleRecordFunc(container, "addOpeningTime"))
	api.DELETE("/rmvOpeningTime/:patientID/:deviceID", controllers.HandleRecordFunc(container, "removeOpeningTime"))
	api.PUT("/addOpeningPills", controllers.HandleRecordFunc(container, "addOpeningPills"))
	api.DELETE("/rmvOpeningPills/:patientID/:deviceID", controllers.HandleRecordFunc(container, "consumeOpeningPills"))
}
