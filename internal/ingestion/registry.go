package ingestion

import (
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Registry 临时文件登记表
// 每个原始文件带绝对过期时间，管线终态强制删除与后台扫描二者先到先删
// 两条删除路径都幂等：删除不存在的文件是 no-op
type Registry struct {
	mu     sync.Mutex
	files  map[string]time.Time // path -> 过期时间
	logger *zap.Logger
}

// NewRegistry 创建临时文件登记表
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		files:  make(map[string]time.Time),
		logger: logger,
	}
}

// Register 登记文件及其存活时长
func (r *Registry) Register(path string, ttl time.Duration) {
	r.mu.Lock()
	r.files[path] = time.Now().Add(ttl)
	r.mu.Unlock()

	if r.logger != nil {
		r.logger.Info("ephemeral registered",
			zap.String("path", path),
			zap.Duration("ttl", ttl))
	}
}

// DeleteImmediately 立即删除，短路 TTL
// 管线到达终态（成功或失败）时无条件调用
func (r *Registry) DeleteImmediately(path string) {
	if path == "" {
		return
	}
	r.mu.Lock()
	delete(r.files, path)
	r.mu.Unlock()

	r.removeFile(path, "raw deleted immediately")
}

// Sweep 删除所有已过期文件，返回删除数
// 覆盖崩溃或跳过的管线遗留的文件
func (r *Registry) Sweep() int {
	now := time.Now()

	r.mu.Lock()
	var expired []string
	for path, expiry := range r.files {
		if !now.Before(expiry) {
			expired = append(expired, path)
			delete(r.files, path)
		}
	}
	r.mu.Unlock()

	for _, path := range expired {
		r.removeFile(path, "ephemeral expired")
	}
	return len(expired)
}

// Count 当前登记中的文件数
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.files)
}

func (r *Registry) removeFile(path, reason string) {
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return
		}
		if r.logger != nil {
			r.logger.Warn("ephemeral delete failed",
				zap.String("path", path),
				zap.Error(err))
		}
		return
	}
	if r.logger != nil {
		r.logger.Info(reason, zap.String("path", path))
	}
}
