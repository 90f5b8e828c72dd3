// Package prompt 提供提示词模板注册表
package prompt

import (
	"embed"
	"fmt"
	"strings"
	"sync"
)

//go:embed templates/*.txt
var templatesFS embed.FS

// PromptID 提示词标识
type PromptID string

const (
	PromptPaginationStructureV1 PromptID = "pagination_structure_v1"
	PromptPaginationAdjustV1    PromptID = "pagination_adjust_v1"
	PromptTemplateMatchV1       PromptID = "template_match_v1"
	PromptContentAssignV1       PromptID = "content_assign_v1"
)

// Template 一对 system/user 提示词
type Template struct {
	System string
	User   string
}

// Render 渲染 user 提示词，替换 {{name}} 变量
func (t Template) Render(vars map[string]string) (string, string) {
	user := t.User
	system := t.System
	for name, value := range vars {
		token := "{{" + name + "}}"
		user = strings.ReplaceAll(user, token, value)
		system = strings.ReplaceAll(system, token, value)
	}
	return system, user
}

// Registry 提示词注册表，模板按需加载并缓存
type Registry struct {
	mu    sync.RWMutex
	cache map[PromptID]Template
}

// NewRegistry 创建注册表
func NewRegistry() *Registry {
	return &Registry{
		cache: make(map[PromptID]Template),
	}
}

// Get 获取指定提示词模板
func (r *Registry) Get(id PromptID) (Template, error) {
	if r == nil {
		return Template{}, fmt.Errorf("prompt registry is nil")
	}

	r.mu.RLock()
	if tpl, ok := r.cache[id]; ok {
		r.mu.RUnlock()
		return tpl, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if tpl, ok := r.cache[id]; ok {
		return tpl, nil
	}

	systemPath, userPath, err := resolvePromptFiles(id)
	if err != nil {
		return Template{}, err
	}
	system, err := readEmbeddedText(systemPath)
	if err != nil {
		return Template{}, err
	}
	user, err := readEmbeddedText(userPath)
	if err != nil {
		return Template{}, err
	}

	tpl := Template{System: system, User: user}
	r.cache[id] = tpl
	return tpl, nil
}

func resolvePromptFiles(id PromptID) (systemFile string, userFile string, err error) {
	switch id {
	case PromptPaginationStructureV1:
		return "templates/pagination_structure_v1.system.txt", "templates/pagination_structure_v1.user.txt", nil
	case PromptPaginationAdjustV1:
		return "templates/pagination_adjust_v1.system.txt", "templates/pagination_adjust_v1.user.txt", nil
	case PromptTemplateMatchV1:
		return "templates/template_match_v1.system.txt", "templates/template_match_v1.user.txt", nil
	case PromptContentAssignV1:
		return "templates/content_assign_v1.system.txt", "templates/content_assign_v1.user.txt", nil
	default:
		return "", "", fmt.Errorf("unknown prompt id: %s", id)
	}
}

func readEmbeddedText(path string) (string, error) {
	b, err := templatesFS.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
