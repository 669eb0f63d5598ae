// Package query implements the two retrieval façades: the intelligent
// extractor, which classifies a question and dispatches one of six
// extraction strategies, and the multi-modal query system with explicit
// search-mode selection.
package query

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/summergraph/grag/pkg/types"
)

// Classification pattern tables. Substring sets over the question text;
// order matters, first hit wins.
var (
	temporalCues   = []string{"什么时候", "何时", "多久", "最近", "今天", "昨天"}
	emotionalCues  = []string{"感觉", "喜欢", "讨厌", "开心", "难过"}
	proceduralCues = []string{"如何", "怎么", "步骤", "过程", "方法"}
	metaCues       = []string{"关于", "是什么", "为什么", "解释", "总结"}
	relationalCues = []string{"关系", "联系", "关联", "和", "与"}

	emotionalTypeCues = []string{
		"喜欢", "讨厌", "爱", "恨", "开心", "难过", "愤怒", "害怕", "满意", "失望",
		"感觉", "觉得", "认为", "以为", "想", "希望",
	}

	stopWords = map[string]bool{
		"的": true, "了": true, "是": true, "在": true, "有": true,
		"和": true, "与": true, "或": true, "但": true, "如果": true,
		"因为": true, "所以": true, "这个": true, "那个": true,
	}

	hoursAgoRe    = regexp.MustCompile(`(\d+)小时前`)
	temporalRegex = []*regexp.Regexp{
		regexp.MustCompile(`最近|今天|昨天|明天|前天|后天|上周|下周|上个月|下个月|去年|今年`),
		regexp.MustCompile(`\d+小时前|\d+天前|\d+周前|\d+月前|\d+年前`),
		regexp.MustCompile(`\d{4}年|\d{1,2}月|\d{1,2}日`),
	}

	chineseRunRe = regexp.MustCompile(`[\x{4e00}-\x{9fff}]{2,}`)
	properNounRe = regexp.MustCompile(`\b[A-Z][a-z]+\b`)
)

// TimeConstraintKind enumerates the recognized time expressions.
type TimeConstraintKind string

const (
	ConstraintRecent    TimeConstraintKind = "recent"
	ConstraintToday     TimeConstraintKind = "today"
	ConstraintYesterday TimeConstraintKind = "yesterday"
	ConstraintHoursAgo  TimeConstraintKind = "hours_ago"
)

// TimeConstraint is a parsed time expression from a question.
type TimeConstraint struct {
	Kind TimeConstraintKind
	// Hours is the window size for recent/hours_ago constraints.
	Hours int
}

// WindowHours resolves the constraint to a lookback window.
func (c *TimeConstraint) WindowHours() int {
	switch c.Kind {
	case ConstraintRecent, ConstraintHoursAgo:
		if c.Hours > 0 {
			return c.Hours
		}
		return 24
	case ConstraintToday:
		return 24
	case ConstraintYesterday:
		return 48
	default:
		return 24
	}
}

// QueryAnalysis is the classification of one question.
type QueryAnalysis struct {
	QueryType           types.QueryType
	Keywords            []string
	Entities            []string
	TimeConstraint      *TimeConstraint
	ImportanceThreshold float64
	MemoryTypes         []types.MemoryType
	Strategy            types.ExtractionStrategy
	Confidence          float64
}

// AnalyzeQuery classifies the question and picks an extraction strategy.
func AnalyzeQuery(question string) QueryAnalysis {
	keywords := ExtractKeywords(question)
	entities := ExtractEntities(question)
	constraint := extractTimeConstraint(question)
	queryType := classifyQueryType(question)

	analysis := QueryAnalysis{
		QueryType:           queryType,
		Keywords:            keywords,
		Entities:            entities,
		TimeConstraint:      constraint,
		ImportanceThreshold: extractImportanceThreshold(question),
		MemoryTypes:         inferMemoryTypes(question),
		Strategy:            determineStrategy(queryType, keywords, constraint),
	}
	analysis.Confidence = analysisConfidence(analysis)
	return analysis
}

// ExtractKeywords lowercases the question, strips punctuation and
// stop words, and returns the remaining tokens in first-seen order.
func ExtractKeywords(question string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, question)

	seen := map[string]bool{}
	var keywords []string
	for _, word := range strings.Fields(cleaned) {
		if stopWords[word] || len([]rune(word)) <= 1 || seen[word] {
			continue
		}
		seen[word] = true
		keywords = append(keywords, word)
	}
	return keywords
}

// ExtractEntities pulls naive entities: runs of 2+ Chinese characters and
// capitalized English words.
func ExtractEntities(question string) []string {
	seen := map[string]bool{}
	var entities []string
	for _, match := range chineseRunRe.FindAllString(question, -1) {
		if !seen[match] {
			seen[match] = true
			entities = append(entities, match)
		}
	}
	for _, match := range properNounRe.FindAllString(question, -1) {
		if !seen[match] {
			seen[match] = true
			entities = append(entities, match)
		}
	}
	return entities
}

func extractTimeConstraint(question string) *TimeConstraint {
	matched := false
	for _, re := range temporalRegex {
		if re.MatchString(question) {
			matched = true
			break
		}
	}
	if !matched {
		return nil
	}

	switch {
	case strings.Contains(question, "最近"):
		return &TimeConstraint{Kind: ConstraintRecent, Hours: 24}
	case strings.Contains(question, "今天"):
		return &TimeConstraint{Kind: ConstraintToday}
	case strings.Contains(question, "昨天"):
		return &TimeConstraint{Kind: ConstraintYesterday}
	case strings.Contains(question, "小时前"):
		if m := hoursAgoRe.FindStringSubmatch(question); m != nil {
			hours, _ := strconv.Atoi(m[1])
			return &TimeConstraint{Kind: ConstraintHoursAgo, Hours: hours}
		}
	}
	return nil
}

func extractImportanceThreshold(question string) float64 {
	switch {
	case containsAny(question, "重要", "关键", "核心"):
		return 0.8
	case containsAny(question, "详细", "具体", "全面"):
		return 0.6
	case containsAny(question, "简单", "大概", "基本"):
		return 0.3
	default:
		return 0.5
	}
}

func inferMemoryTypes(question string) []types.MemoryType {
	memoryTypes := []types.MemoryType{types.MemoryTypeFact}
	if containsAny(question, emotionalTypeCues...) {
		memoryTypes = append(memoryTypes, types.MemoryTypeEmotion)
	}
	if containsAny(question, proceduralCues...) {
		memoryTypes = append(memoryTypes, types.MemoryTypeProcess)
	}
	if containsAny(question, "关于", "是什么", "为什么", "解释") {
		memoryTypes = append(memoryTypes, types.MemoryTypeMeta)
	}
	return memoryTypes
}

func classifyQueryType(question string) types.QueryType {
	lower := strings.ToLower(question)
	switch {
	case containsAny(lower, temporalCues...):
		return types.QueryTypeTemporal
	case containsAny(lower, emotionalCues...):
		return types.QueryTypeEmotional
	case containsAny(lower, proceduralCues...):
		return types.QueryTypeProcedural
	case containsAny(lower, metaCues...):
		return types.QueryTypeMeta
	case containsAny(lower, relationalCues...):
		return types.QueryTypeRelational
	default:
		return types.QueryTypeFactual
	}
}

// determineStrategy is the fixed classification → strategy lookup. The
// switch is exhaustive over the query types.
func determineStrategy(queryType types.QueryType, keywords []string, constraint *TimeConstraint) types.ExtractionStrategy {
	switch queryType {
	case types.QueryTypeTemporal:
		return types.StrategyTimeBased
	case types.QueryTypeEmotional, types.QueryTypeProcedural:
		return types.StrategyTypeBased
	case types.QueryTypeFactual, types.QueryTypeRelational, types.QueryTypeMeta, types.QueryTypeComprehensive:
		switch {
		case constraint != nil:
			return types.StrategyHybrid
		case len(keywords) <= 2:
			return types.StrategySemantic
		default:
			return types.StrategyKeyword
		}
	default:
		return types.StrategyKeyword
	}
}

func analysisConfidence(a QueryAnalysis) float64 {
	confidence := 0.5
	if len(a.Keywords) >= 2 {
		confidence += 0.2
	}
	if len(a.Entities) > 0 {
		confidence += 0.2
	}
	if a.TimeConstraint != nil {
		confidence += 0.1
	}
	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}

func containsAny(s string, cues ...string) bool {
	for _, cue := range cues {
		if strings.Contains(s, cue) {
			return true
		}
	}
	return false
}

// synonymTable is the small semantic-expansion map shared by both
// façades.
var synonymTable = map[string][]string{
	"学习": {"研究", "掌握", "了解"},
	"工作": {"上班", "职业", "事业"},
	"喜欢": {"爱好", "热爱", "感兴趣"},
	"重要": {"关键", "核心", "主要"},
	"系统": {"平台", "框架", "架构"},
}

// ExpandKeywords appends known synonyms to the keyword list.
func ExpandKeywords(keywords []string) []string {
	seen := map[string]bool{}
	var expanded []string
	add := func(word string) {
		if !seen[word] {
			seen[word] = true
			expanded = append(expanded, word)
		}
	}
	for _, kw := range keywords {
		add(kw)
		for _, syn := range synonymTable[kw] {
			add(syn)
		}
	}
	return expanded
}
