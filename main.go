// @title           ApPills Catalog API
// @version         1.0
// @description     智能药盒系统的目录服务：患者、协助者、设备、服药计划与瞬态记录的唯一权威状态
// @host      localhost:8080
// @BasePath  /api
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/LucaRoldo98/ApPills/config"
	"github.com/LucaRoldo98/ApPills/models"
	"github.com/LucaRoldo98/ApPills/routes"
	"github.com/LucaRoldo98/ApPills/services/container"
)

func main() {
	// 初始化日志配置
	if err := config.SetupLogger(); err != nil {
		fmt.Printf("初始化日志配置失败: %v\n", err)
		os.Exit(1)
	}

	// 加载.env文件
	if err := godotenv.Load(); err != nil {
		config.Warning("无法加载.env文件: %v", err)
		// 即使加载失败也继续执行，可能环境变量已经通过其他方式设置
	} else {
		config.Info("成功加载.env文件")
	}

	// 获取配置
	cfg := config.GetConfig()

	// 连接数据库
	db, err := initDB(cfg)
	if err != nil {
		log.Fatalf("无法连接数据库: %v", err)
	}

	// 迁移目录快照表
	if err := autoMigrate(db); err != nil {
		log.Fatalf("自动迁移失败: %v", err)
	}

	// 创建服务容器并启动心跳清扫器
	serviceContainer := container.NewServiceContainer(db, cfg, nil)
	serviceContainer.GetCatalogService().StartSweeper()

	// 初始化路由
	r := routes.SetupRouter(serviceContainer)

	// 获取端口配置
	port := cfg.ServerPort
	if port == "" {
		port = "8080" // 默认端口
	}

	// 启动服务器
	config.Info("目录服务启动在: http://localhost:%s", port)
	if err := r.Run(":" + port); err != nil {
		config.Error("启动服务器失败: %v", err)
		os.Exit(1)
	}
}

// initDB 初始化数据库连接
func initDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.GetDSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})

	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	fmt.Println("Database connection established")
	return db, nil
}

// autoMigrate 自动迁移目录快照模型
func autoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.CatalogSnapshot{}); err != nil {
		return err
	}

	fmt.Println("Database migration completed")
	return nil
}
