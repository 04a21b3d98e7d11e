// Package provider 定义了所有 LLM provider 的统一接口和共享类型。
// 每个 adapter（gemini.go, openai.go, anthropic.go）负责把各家 API 的
// 请求/响应格式归一化为统一的 Complete 调用：一条用户消息进，一条回复文本出。
package provider

import "context"

// ── 消息类型 ──────────────────────────────────────────────────────────────────

type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// Message 是对话历史中的一条消息(原文，渲染前)
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// ── 请求类型 ──────────────────────────────────────────────────────────────────

// Request 是发送给 provider 的统一请求格式：单轮、非流式。
type Request struct {
	// UserText is the raw user message for this turn.
	UserText string

	// SystemPrompt is prepended according to each provider's envelope.
	SystemPrompt string

	// Model overrides the adapter's default model when non-empty.
	Model string
}

// ── Provider 接口 ─────────────────────────────────────────────────────────────

// Provider is the unified adapter interface. Implementations make exactly
// one network call per Complete invocation and never retry; a failure is
// surfaced to the caller.
type Provider interface {
	// Complete sends one user turn and returns the reply text verbatim.
	// Errors are always *TransportError or *ResponseError.
	Complete(ctx context.Context, req *Request) (string, error)

	// Name returns the provider identifier, e.g. "gemini", "deepseek".
	Name() string

	// DefaultModel returns the model used when Request.Model is empty.
	DefaultModel() string
}
