package clog

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

// newBufferLogger 创建一个写入内存缓冲区的 Logger（测试辅助）
func newBufferLogger(t *testing.T, cfg *Config, opts ...Option) (Logger, *bytes.Buffer) {
	t.Helper()

	buf := &bytes.Buffer{}
	opts = append(opts, WithWriter(buf))
	logger, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New 返回错误: %v", err)
	}
	return logger, buf
}

func TestNewDefaultConfig(t *testing.T) {
	// nil 配置应使用默认值
	logger, err := New(nil)
	if err != nil {
		t.Fatalf("New(nil) 返回错误: %v", err)
	}
	if logger == nil {
		t.Fatal("New(nil) 返回 nil Logger")
	}
}

func TestNewInvalidConfig(t *testing.T) {
	// 非法级别应返回错误
	if _, err := New(&Config{Level: "verbose"}); err == nil {
		t.Error("非法 Level 应返回错误")
	}

	// 非法格式应返回错误
	if _, err := New(&Config{Format: "xml"}); err == nil {
		t.Error("非法 Format 应返回错误")
	}
}

func TestLogOutput(t *testing.T) {
	logger, buf := newBufferLogger(t, &Config{Level: "debug", Format: "json"})

	logger.Info("instance registered", String("service", "pay"), Int("port", 8080))

	out := buf.String()
	if !strings.Contains(out, "instance registered") {
		t.Errorf("日志输出缺少消息: %s", out)
	}
	if !strings.Contains(out, `"service":"pay"`) {
		t.Errorf("日志输出缺少字段: %s", out)
	}
}

func TestLevelFilter(t *testing.T) {
	logger, buf := newBufferLogger(t, &Config{Level: "warn", Format: "json"})

	logger.Info("should be dropped")
	logger.Warn("should be kept")

	out := buf.String()
	if strings.Contains(out, "should be dropped") {
		t.Errorf("低于级别的日志应被过滤: %s", out)
	}
	if !strings.Contains(out, "should be kept") {
		t.Errorf("达到级别的日志应被输出: %s", out)
	}
}

func TestSetLevel(t *testing.T) {
	logger, buf := newBufferLogger(t, &Config{Level: "error", Format: "json"})

	logger.Info("dropped before")
	if err := logger.SetLevel(DebugLevel); err != nil {
		t.Fatalf("SetLevel 返回错误: %v", err)
	}
	logger.Info("kept after")

	out := buf.String()
	if strings.Contains(out, "dropped before") {
		t.Error("SetLevel 前的低级别日志应被过滤")
	}
	if !strings.Contains(out, "kept after") {
		t.Error("SetLevel 后的日志应被输出")
	}
}

func TestWithNamespace(t *testing.T) {
	logger, buf := newBufferLogger(t, &Config{Level: "info", Format: "json"})

	child := logger.WithNamespace("breaker").WithNamespace("probe")
	child.Info("namespaced")

	out := buf.String()
	if !strings.Contains(out, `"namespace":"breaker.probe"`) {
		t.Errorf("命名空间未正确拼接: %s", out)
	}

	// 父 Logger 不应受影响
	buf.Reset()
	logger.Info("plain")
	if strings.Contains(buf.String(), "namespace") {
		t.Errorf("父 Logger 不应带命名空间: %s", buf.String())
	}
}

func TestWithFields(t *testing.T) {
	logger, buf := newBufferLogger(t, &Config{Level: "info", Format: "json"})

	child := logger.With(String("component", "balancer"))
	child.Info("selected")

	if !strings.Contains(buf.String(), `"component":"balancer"`) {
		t.Errorf("预设字段未出现在日志中: %s", buf.String())
	}
}

type ctxKey string

func TestContextFieldExtraction(t *testing.T) {
	logger, buf := newBufferLogger(t, &Config{Level: "info", Format: "json"},
		WithContextField(ctxKey("request_id"), "request_id"))

	ctx := context.WithValue(context.Background(), ctxKey("request_id"), "req-123")
	logger.InfoContext(ctx, "routed")

	if !strings.Contains(buf.String(), `"request_id":"req-123"`) {
		t.Errorf("Context 字段未被提取: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug": DebugLevel,
		"INFO":  InfoLevel,
		"Warn":  WarnLevel,
		"error": ErrorLevel,
		"fatal": FatalLevel,
	}
	for input, want := range cases {
		got, err := ParseLevel(input)
		if err != nil {
			t.Errorf("ParseLevel(%q) 返回错误: %v", input, err)
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v，期望 %v", input, got, want)
		}
	}

	if _, err := ParseLevel("trace"); err == nil {
		t.Error("未知级别应返回错误")
	}
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	// 所有操作都应安全且无输出
	logger.Info("ignored")
	logger.With(String("k", "v")).WithNamespace("ns").Error("ignored")
	if err := logger.SetLevel(DebugLevel); err != nil {
		t.Errorf("Discard().SetLevel 返回错误: %v", err)
	}
}
