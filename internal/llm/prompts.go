package llm

import "fmt"

// Prompt catalog for the memory pipeline. The extraction rules double as
// the content filter: metaphor, hypotheticals, bare emotion and praise are
// rejected at the prompt level, not in code, so the wording here is load
// bearing.

// ExtractionSystemPrompt instructs the oracle to emit only fact-bearing
// quintuples, used with the structured call shape.
const ExtractionSystemPrompt = `
你是一个专业的中文文本信息抽取专家。你的任务是从给定的中文文本中抽取有价值的五元组关系。
五元组格式为：(主体, 主体类型, 动作, 客体, 客体类型)。

## 提取规则
1. 只提取**事实性**信息，包括：
   - 具体的行为和动作
   - 明确的实体关系
   - 实际存在的状态和属性
   - 用户表达的具体需求、偏好、计划

2. 严格过滤以下内容：
   - 比喻、拟人、夸张等修辞手法
   - 虚拟、假设、想象的内容
   - 纯粹的情感表达（如"我很开心"、"你真棒"）
   - 赞美、讽刺、调侃等主观评价
   - 闲聊中的无关信息
   - 重复或冗余的关系

3. 类型包括但不限于：人物、地点、组织、物品、概念、时间、事件、活动等。

## 示例

输入：小明在公园里踢足球。
输出：
- 主体：小明，类型：人物，动作：踢，客体：足球，类型：物品
- 主体：小明，类型：人物，动作：在，客体：公园，类型：地点

输入：你像小太阳一样温暖。
输出：[] （比喻句，不提取）

输入：我喜欢吃苹果和香蕉。
输出：
- 主体：我，类型：人物，动作：喜欢吃，客体：苹果，类型：物品
- 主体：我，类型：人物，动作：喜欢吃，客体：香蕉，类型：物品

输入：如果我是鸟，我会飞到月球。
输出：[] （假设内容，不提取）

请仔细分析文本，只提取有价值的事实性五元组关系。
`

// ExtractionUserPrompt wraps the raw text for the structured call shape.
func ExtractionUserPrompt(text string) string {
	return fmt.Sprintf("请从以下文本中提取五元组：\n\n%s", text)
}

// ExtractionFallbackPrompt is the free-text JSON variant used when the
// structured call shape fails. Same rules and examples, array output.
func ExtractionFallbackPrompt(text string) string {
	return fmt.Sprintf(`
从以下中文文本中抽取有价值的五元组（主语-主语类型-谓语-宾语-宾语类型）关系，以 JSON 数组格式返回。

## 提取规则
1. 只提取**事实性**信息，包括：
   - 具体的行为和动作
   - 明确的实体关系
   - 实际存在的状态和属性
   - 用户表达的具体需求、偏好、计划

2. 严格过滤以下内容：
   - 比喻、拟人、夸张等修辞手法
   - 虚拟、假设、想象的内容
   - 纯粹的情感表达（如"我很开心"、"你真棒"）
   - 赞美、讽刺、调侃等主观评价
   - 闲聊中的无关信息
   - 重复或冗余的关系

3. 类型包括但不限于：人物、地点、组织、物品、概念、时间、事件、活动等。

## 示例

输入：小明在公园里踢足球。
输出：[["小明", "人物", "踢", "足球", "物品"], ["小明", "人物", "在", "公园", "地点"]]

输入：你像小太阳一样温暖。
输出：[] （比喻句，不提取）

输入：我喜欢吃苹果和香蕉。
输出：[["我", "人物", "喜欢吃", "苹果", "物品"], ["我", "人物", "喜欢吃", "香蕉", "物品"]]

输入：如果我是鸟，我会飞到月球。
输出：[] （假设内容，不提取）

请从文本中提取有价值的事实性五元组：
%s

除了JSON数据，请不要输出任何其他数据，例如：`+"```、```json"+`、以下是我提取的数据：。
`, text)
}

// ImportancePrompt asks for the five-factor importance rubric over one
// quintuple, JSON output.
func ImportancePrompt(subject, subjectType, predicate, object, objectType, context string) string {
	return fmt.Sprintf(`
请分析以下五元组记忆的重要性，从多个维度进行评估：

五元组信息：
- 主体：%s (类型：%s)
- 关系：%s
- 客体：%s (类型：%s)

上下文信息：
%s

请从以下5个维度评估重要性（0-1分）：
1. 事实重要性：这个记忆包含的事实信息有多重要？
2. 情感重要性：这个记忆涉及的情感投入有多深？
3. 上下文重要性：这个记忆对理解整体上下文有多重要？
4. 频率重要性：这种类型的记忆出现的频率如何？（罕见=高分）
5. 独特性重要性：这个记忆的内容有多独特？

请以JSON格式返回评估结果，格式如下：
{
    "factual_importance": 数值,
    "emotional_importance": 数值,
    "contextual_importance": 数值,
    "frequency_importance": 数值,
    "uniqueness_importance": 数值,
    "reasoning": "简要说明评估理由"
}
`, subject, subjectType, predicate, object, objectType, context)
}

// QueryDecisionSystemPrompt is the structured-shape instruction for the
// memory-query gate.
const QueryDecisionSystemPrompt = `
你是一个专业的记忆查询决策专家。你的任务是分析用户的问题，判断是否需要查询历史记忆，以及需要查询哪些类型的记忆。

记忆类型包括：
- fact: 事实记忆（人物、地点、物体等基本信息）
- process: 过程记忆（事件、活动、流程等）
- emotion: 情感记忆（情感、态度、偏好等）
- meta: 元记忆（关于记忆本身的记忆）

请仔细分析用户问题，提取关键信息，并做出决策。
`

// QueryDecisionUserPrompt wraps the question for the structured call shape.
func QueryDecisionUserPrompt(question string) string {
	return fmt.Sprintf("请分析以下用户问题，决定是否需要查询记忆：\n\n问题：%s", question)
}

// QueryDecisionFallbackPrompt is the free-text JSON variant of the
// query-gate prompt.
func QueryDecisionFallbackPrompt(question string) string {
	return fmt.Sprintf(`
分析以下用户问题，决定是否需要查询历史记忆，并返回JSON格式的决策结果。

用户问题：%s

请返回以下格式的JSON：
{
    "should_query": true/false,
    "query_keywords": ["关键词1", "关键词2"],
    "memory_types": ["fact", "process"],
    "query_reason": "决策原因",
    "confidence": 0.8
}

记忆类型说明：
- fact: 事实记忆（人物、地点、物体等基本信息）
- process: 过程记忆（事件、活动、流程等）
- emotion: 情感记忆（情感、态度、偏好等）
- meta: 元记忆（关于记忆本身的记忆）
`, question)
}

// GenerationDecisionSystemPrompt is the structured-shape instruction for
// the memory-store gate.
const GenerationDecisionSystemPrompt = `
你是一个专业的记忆生成决策专家。你的任务是分析用户问题和AI回复的对话对，判断是否需要生成记忆，以及生成什么类型的记忆。

记忆类型包括：
- fact: 事实记忆（人物、地点、物体等基本信息）
- process: 过程记忆（事件、活动、流程等）
- emotion: 情感记忆（情感、态度、偏好等）
- meta: 元记忆（关于记忆本身的记忆）

重要性分数范围：0.0-1.0，分数越高表示越重要

请仔细分析对话内容，识别关键信息，并做出决策。
`

// GenerationDecisionUserPrompt wraps the turn for the structured call shape.
func GenerationDecisionUserPrompt(question, answer string) string {
	return fmt.Sprintf("请分析以下对话对，决定是否需要生成记忆：\n\n用户：%s\n\nAI：%s", question, answer)
}

// GenerationDecisionFallbackPrompt is the free-text JSON variant of the
// store-gate prompt.
func GenerationDecisionFallbackPrompt(question, answer string) string {
	return fmt.Sprintf(`
分析以下对话对，决定是否需要生成记忆，并返回JSON格式的决策结果。

用户：%s
AI：%s

请返回以下格式的JSON：
{
    "should_store": true/false,
    "memory_type": "fact",
    "importance_score": 0.8,
    "key_entities": ["实体1", "实体2"],
    "storage_reason": "决策原因",
    "confidence": 0.8
}

记忆类型说明：
- fact: 事实记忆（人物、地点、物体等基本信息）
- process: 过程记忆（事件、活动、流程等）
- emotion: 情感记忆（情感、态度、偏好等）
- meta: 元记忆（关于记忆本身的记忆）
`, question, answer)
}

// QuintupleSchema is the response schema for structured extraction.
func QuintupleSchema() Schema {
	return Schema{
		Name: "quintuple_response",
		Definition: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"quintuples": map[string]interface{}{
					"type": "array",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"subject":      map[string]interface{}{"type": "string"},
							"subject_type": map[string]interface{}{"type": "string"},
							"predicate":    map[string]interface{}{"type": "string"},
							"object":       map[string]interface{}{"type": "string"},
							"object_type":  map[string]interface{}{"type": "string"},
						},
						"required":             []string{"subject", "subject_type", "predicate", "object", "object_type"},
						"additionalProperties": false,
					},
				},
			},
			"required":             []string{"quintuples"},
			"additionalProperties": false,
		},
	}
}

// QueryDecisionSchema is the response schema for the query gate.
func QueryDecisionSchema() Schema {
	return Schema{
		Name: "memory_query_decision",
		Definition: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"should_query":   map[string]interface{}{"type": "boolean"},
				"query_keywords": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
				"memory_types":   map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
				"query_reason":   map[string]interface{}{"type": "string"},
				"confidence":     map[string]interface{}{"type": "number"},
			},
			"required":             []string{"should_query", "query_keywords", "memory_types", "query_reason", "confidence"},
			"additionalProperties": false,
		},
	}
}

// GenerationDecisionSchema is the response schema for the store gate.
func GenerationDecisionSchema() Schema {
	return Schema{
		Name: "memory_generation_decision",
		Definition: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"should_store":     map[string]interface{}{"type": "boolean"},
				"memory_type":      map[string]interface{}{"type": "string"},
				"importance_score": map[string]interface{}{"type": "number"},
				"key_entities":     map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
				"storage_reason":   map[string]interface{}{"type": "string"},
				"confidence":       map[string]interface{}{"type": "number"},
			},
			"required":             []string{"should_store", "memory_type", "importance_score", "key_entities", "storage_reason", "confidence"},
			"additionalProperties": false,
		},
	}
}
