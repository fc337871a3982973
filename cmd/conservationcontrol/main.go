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

// 保存环境监控工作进程：温湿度越界时发布告警
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
		config.Warning("[conservationControl] 获取系统配置失败，使用本地配置: %v", err)
	}

	mqttService := services.NewMQTTService(cfg, "conservationControl")
	if err := mqttService.Connect(); err != nil {
		config.Fatal("[conservationControl] MQTT连接失败: %v", err)
	}
	defer mqttService.Disconnect()

	conservation := services.NewConservationService(cfg, mqttService, catalog)
	if err := conservation.Start(); err != nil {
		config.Fatal("[conservationControl] 启动失败: %v", err)
	}
	defer conservation.Stop()
	config.Info("[conservationControl] 服务已启动")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	config.Info("[conservationControl] 服务退出")
}
