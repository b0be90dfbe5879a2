package intent

import "strings"

// Label 表示用户消息的意图类别。
type Label string

const (
	Greeting   Label = "greeting"
	Inquiry    Label = "inquiry"
	HighIntent Label = "high_intent"
)

// Default 分类失败或无法识别时使用的标签。
const Default = Inquiry

// Labels 列出分类器可能产生的全部标签。
var Labels = []Label{Greeting, Inquiry, HighIntent}

// Rule 在 Match 命中时把模型输出映射为标签。
type Rule struct {
	Name  string
	Match func(normalized string) bool
	Label Label
}

func containsAny(subs ...string) func(string) bool {
	return func(text string) bool {
		for _, sub := range subs {
			if strings.Contains(text, sub) {
				return true
			}
		}
		return false
	}
}

// Rules 自上而下匹配，首个命中的规则生效，最后一条总会命中。
// 使用子串匹配，模型多输出几个字也能识别。
var Rules = []Rule{
	{Name: "greeting", Match: containsAny("greeting"), Label: Greeting},
	{Name: "inquiry", Match: containsAny("inquiry"), Label: Inquiry},
	{Name: "high_intent", Match: containsAny("high_intent", "sign up", "details"), Label: HighIntent},
	{Name: "default", Match: func(string) bool { return true }, Label: Default},
}

// Normalize 按 Rules 将模型原始输出归一为标签。
func Normalize(raw string) Label {
	label, _ := Explain(raw)
	return label
}

// Explain 与 Normalize 相同，另外返回命中的规则名。
func Explain(raw string) (Label, string) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	for _, rule := range Rules {
		if rule.Match(normalized) {
			return rule.Label, rule.Name
		}
	}
	return Default, "default"
}

// Valid 判断标签是否为已知类别。
func (l Label) Valid() bool {
	for _, known := range Labels {
		if l == known {
			return true
		}
	}
	return false
}
