package llm

import (
	"fmt"
	"sync"

	"ppt-gen-api/internal/config"
)

// Factory 管理多个提供商的 Caller 实例。
// 每个提供商独占一个 Key 池，池不跨提供商共享。
type Factory struct {
	config *config.LLMConfig
	caller map[string]*Caller
	mu     sync.RWMutex
}

// NewFactory 创建 LLM 调用器工厂
func NewFactory(cfg *config.Config) *Factory {
	return &Factory{
		config: &cfg.LLM,
		caller: make(map[string]*Caller),
	}
}

// Get 获取指定名称的 Caller，未指定时返回默认提供商
func (f *Factory) Get(name string) (*Caller, error) {
	if name == "" {
		name = f.config.DefaultProvider
	}

	f.mu.RLock()
	c, ok := f.caller[name]
	f.mu.RUnlock()
	if ok {
		return c, nil
	}

	// 惰性加载
	f.mu.Lock()
	defer f.mu.Unlock()

	// 再次检查防止竞态
	if c, ok = f.caller[name]; ok {
		return c, nil
	}

	providerCfg, ok := f.config.Provider(name)
	if !ok {
		return nil, fmt.Errorf("provider %s not found in LLM config", name)
	}

	pool := NewPoolFromConfig(name, providerCfg)
	c, err := NewCaller(name, providerCfg, pool)
	if err != nil {
		return nil, fmt.Errorf("failed to create caller for %s: %w", name, err)
	}

	f.caller[name] = c
	return c, nil
}

// Default 返回默认提供商的 Caller
func (f *Factory) Default() (*Caller, error) {
	return f.Get("")
}

// Match 返回模板推荐提供商的 Caller
func (f *Factory) Match() (*Caller, error) {
	return f.Get(f.config.MatchProvider)
}
