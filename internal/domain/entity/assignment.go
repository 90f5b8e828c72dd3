package entity

// Assignment LLM 提出的占位符内容分配
// 每个 (slide_index, placeholder_name) 至多被消费一次
type Assignment struct {
	SlideIndex      int    `json:"slide_index"`
	PlaceholderName string `json:"placeholder_name"`
	Content         string `json:"content"`
	Reason          string `json:"reason,omitempty"`
}

// TemplateMatch 模板匹配结果
type TemplateMatch struct {
	PageNumber     int    `json:"page_number"`
	TemplateNumber int    `json:"template_number"`
	TemplatePath   string `json:"template_path"`
}

// PageStatus 单页在合并结果中的状态
type PageStatus struct {
	PageNumber int    `json:"page_number"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}
