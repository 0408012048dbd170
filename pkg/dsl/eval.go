package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/spotlightx/feedkit/core"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvOnce sync.Once
	celEnvErr  error
)

func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("item", cel.DynType),
			cel.Variable("label", cel.DynType),
			cel.Variable("user", cel.DynType),
		)
	})
	return celEnv, celEnvErr
}

// Rule 是一条编译后的 CEL 过滤规则，可在候选间复用（编译一次，逐条求值）。
//
// 表达式语法（CEL 标准语法）：
//   - 标签：label.recall_source == "recall.trending"
//   - 数值：item.score > 0.7
//   - 逻辑：label.recall_source.contains("discovery") && item.score < 0.2
//   - 存在性：label.experiment != null
//
// 注意：CEL 访问不存在的 key 会报错，用 label.key != null 检查存在性。
type Rule struct {
	Expr string
	prg  cel.Program
}

// Compile 编译一条规则表达式。
func Compile(expr string) (*Rule, error) {
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %v", issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program error: %v", err)
	}
	return &Rule{Expr: expr, prg: prg}, nil
}

// Eval 对一条候选求值，返回布尔结果。
func (r *Rule) Eval(item *core.Candidate, uctx *core.UserContext) (bool, error) {
	if r == nil || r.prg == nil {
		return false, nil
	}

	out, _, err := r.prg.Eval(buildInput(item, uctx))
	if err != nil {
		return false, fmt.Errorf("eval error: %v", err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression must return boolean, got %T", out.Value())
	}
	return result, nil
}

// buildInput 构建 CEL 表达式的输入数据。
// label.xxx 直接取 Label 的 Value，item 暴露 id/score/author 等常用字段。
func buildInput(item *core.Candidate, uctx *core.UserContext) map[string]interface{} {
	labelAccessor := make(map[string]interface{}, len(item.Labels))
	for k, v := range item.Labels {
		labelAccessor[k] = v.Value
	}

	itemMap := map[string]interface{}{
		"id":          item.ID,
		"score":       item.Score,
		"author_id":   item.AuthorID,
		"author_type": string(item.AuthorType),
		"topics":      item.Topics,
		"meta":        item.Meta,
	}

	userMap := map[string]interface{}{}
	if uctx != nil {
		userMap["user_id"] = uctx.UserID
		userMap["params"] = uctx.Params
	}

	return map[string]interface{}{
		"item":  itemMap,
		"label": labelAccessor,
		"user":  userMap,
	}
}
