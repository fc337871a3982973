package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/LucaRoldo98/ApPills/config"
	"github.com/LucaRoldo98/ApPills/services"
)

// 开盖监控工作进程：药盒开盖过久时发布告警
func main() {
	if err := config.SetupLogger(); err != nil {
		fmt.Printf("初始化日志配置失败: %v\n", err)
		os.Exit(1)
	}
	if err := godotenv.Load(); err != nil {
		config.Warning("无法加载.env文件: %v", err)
	}
	cfg := config.GetConfig()

	catalog := services.NewCatalogClient(cfg)
	// 系统配置以目录为准，取不到时用本地配置
	if conf, err := catalog.GetConf(); err == nil {
		cfg.BaseTopic = conf.BaseTopic
		cfg.MQTTBrokerURL = conf.Broker
	} else {
		config.Warning("[openingControl] 获取系统配置失败，使用本地配置: %v", err)
	}

	mqttService := services.NewMQTTService(cfg, "openingControl")
	if err := mqttService.Connect(); err != nil {
		config.Fatal("[openingControl] MQTT连接失败: %v", err)
	}
	defer mqttService.Disconnect()

	opening := services.NewOpeningService(cfg, mqttService, catalog)
	if err := opening.Start(); err != nil {
		config.Fatal("[openingControl] 启动失败: %v", err)
	}
	defer opening.Stop()
	config.Info("[openingControl] 服务已启动")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	config.Info("[openingControl] 服务退出")
}
