package workflow

import (
	"OpsDiagnosis/internal/knowledge"
	"OpsDiagnosis/internal/llm"
)

// Capabilities 捆绑了工作流节点依赖的两个外部能力。
// 两者都以接口形式注入，节点因此可以用假实现进行测试。
type Capabilities struct {
	LLM       llm.LLM
	Retriever knowledge.Retriever
	// TopK 是知识检索返回的最大案例数，非正值时由检索实现取默认值。
	TopK int
}
