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

// 服药提醒工作进程：扫描服药计划，到点发布提醒并驱动设备LED与蜂鸣器
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
		config.Warning("[timeShift] 获取系统配置失败，使用本地配置: %v", err)
	}

	mqttService := services.NewMQTTService(cfg, "timeShift")
	if err := mqttService.Connect(); err != nil {
		config.Fatal("[timeShift] MQTT连接失败: %v", err)
	}
	defer mqttService.Disconnect()

	devices := services.NewDeviceClient(cfg, "timeShift")
	reminder := services.NewReminderService(cfg, mqttService, catalog, devices)
	if err := reminder.Start(); err != nil {
		config.Fatal("[timeShift] 启动失败: %v", err)
	}
	defer reminder.Stop()
	config.Info("[timeShift] 服务已启动")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	config.Info("[timeShift] 服务退出")
}
