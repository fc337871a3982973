package container

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"github.com/LucaRoldo98/ApPills/config"
	"github.com/LucaRoldo98/ApPills/services"
)

// ServiceContainer 管理目录服务端的依赖注入
type ServiceContainer struct {
	db     *gorm.DB
	config *config.Config
	redis  *redis.Client

	// 数据存储服务
	redisService *services.RedisService

	// 设备控制面客户端
	deviceClient services.InterfaceDeviceClient

	// 目录核心服务
	catalogService services.InterfaceCatalogService

	mu sync.RWMutex
}

// NewServiceContainer 创建新的服务容器
func NewServiceContainer(db *gorm.DB, cfg *config.Config, redisClient *redis.Client) *ServiceContainer {
	if db == nil {
		panic("数据库连接为空")
	}

	if cfg == nil {
		panic("配置为空")
	}

	// 测试Redis连接
	if redisClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("Redis连接测试失败: %v，将不使用Redis缓存", err)
		}
	}

	container := &ServiceContainer{
		db:     db,
		config: cfg,
		redis:  redisClient,
	}
	container.initializeServices()
	return container
}

// NewServiceContainerWithStore 用注入的快照存储和设备客户端构建容器，
// 不依赖MySQL和Redis。API测试用它把整个HTTP栈架在内存存储上。
func NewServiceContainerWithStore(cfg *config.Config, store services.SnapshotStore, deviceClient services.InterfaceDeviceClient) *ServiceContainer {
	if cfg == nil {
		panic("配置为空")
	}
	if store == nil {
		panic("快照存储为空")
	}

	container := &ServiceContainer{
		config:       cfg,
		deviceClient: deviceClient,
	}
	container.catalogService = services.NewCatalogService(store, nil, deviceClient)
	return container
}

// initializeServices 初始化所有服务
func (c *ServiceContainer) initializeServices() {
	c.mu.Lock()
	defer c.mu.Unlock()

	// 初始化Redis缓存服务
	c.redisService = services.NewRedisService(c.config)

	// 初始化设备控制面客户端
	c.deviceClient = services.NewDeviceClient(c.config, "catalog")

	// 初始化目录核心服务
	store := services.NewGormSnapshotStore(c.db)
	c.catalogService = services.NewCatalogService(store, c.redisService, c.deviceClient)
}

// GetService 获取指定名称的服务
func (c *ServiceContainer) GetService(name string) interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch name {
	case "config":
		return c.config
	case "db":
		return c.db
	case "redis":
		return c.redisService
	case "device_client":
		return c.deviceClient
	case "catalog":
		return c.catalogService
	default:
		return nil
	}
}

// GetDB 获取数据库连接
func (c *ServiceContainer) GetDB() *gorm.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}

// GetCatalogService 获取目录核心服务
func (c *ServiceContainer) GetCatalogService() services.InterfaceCatalogService {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.catalogService
}
