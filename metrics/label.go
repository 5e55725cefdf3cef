package metrics

// Label 指标标签
//
// 标签值应保持低基数：worker_id、route、outcome 可以，单个 ID 不行。
type Label struct {
	Key   string
	Value string
}

// L 创建一个 Label
func L(key, value string) Label {
	return Label{Key: key, Value: value}
}
