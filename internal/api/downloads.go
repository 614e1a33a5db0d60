package api

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"pensionhub/internal/model"
)

// exportArtifact 已生成、等待下载的汇总工作簿
type exportArtifact struct {
	path       string
	dimensions []model.Dimension // 为空表示全部维度
	createdAt  time.Time
}

// artifactShelf 导出文件的一次性下载令牌；过期或已下载的文件由 onEvict 清理
type artifactShelf struct {
	mu      sync.Mutex
	ttl     time.Duration
	items   map[string]exportArtifact
	now     func() time.Time
	onEvict func(exportArtifact)
}

func newArtifactShelf(ttl time.Duration, onEvict func(exportArtifact)) *artifactShelf {
	return &artifactShelf{
		ttl:     ttl,
		items:   make(map[string]exportArtifact),
		now:     time.Now,
		onEvict: onEvict,
	}
}

// shelve 登记导出文件，返回下载令牌
func (s *artifactShelf) shelve(path string, dims []model.Dimension) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.evictStaleLocked(now)

	token := uuid.NewString()
	s.items[token] = exportArtifact{path: path, dimensions: dims, createdAt: now}
	return token
}

// claim 取出导出文件并作废令牌；调用方负责删除文件
func (s *artifactShelf) claim(token string) (exportArtifact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictStaleLocked(s.now())
	a, ok := s.items[token]
	if ok {
		delete(s.items, token)
	}
	return a, ok
}

func (s *artifactShelf) evictStaleLocked(now time.Time) {
	for token, a := range s.items {
		if now.Sub(a.createdAt) <= s.ttl {
			continue
		}
		delete(s.items, token)
		if s.onEvict != nil {
			s.onEvict(a)
		}
	}
}
