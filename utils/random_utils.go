package utils

import (
	"crypto/rand"
	"fmt"
)

// RandomSuffix 生成随机十六进制后缀，用于MQTT客户端ID去重
func RandomSuffix() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("generate random suffix failed")
	}
	return fmt.Sprintf("%x", b)
}
