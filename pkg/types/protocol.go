package types

import "strings"

// ProtocolID 应用协议标识
//
// 每个子流单独协商，例如 "/tari/messaging/0.1.0"。
type ProtocolID string

// String 返回字符串表示
func (p ProtocolID) String() string {
	return string(p)
}

// IsValid 协议标识必须以 "/" 开头且不含换行
//
// multistream-select 以换行作为消息分隔。
func (p ProtocolID) IsValid() bool {
	s := string(p)
	return len(s) > 1 && strings.HasPrefix(s, "/") && !strings.ContainsAny(s, "\r\n")
}

// ProtocolIDsToStrings 转换为字符串切片
func ProtocolIDsToStrings(ids []ProtocolID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
