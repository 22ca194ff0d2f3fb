package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfigFile 在临时目录写入配置文件（测试辅助）
func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "meshkit.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0o644))
	return tmpDir
}

// TestNew 测试创建配置加载器
func TestNew(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{name: "nil config", cfg: nil},
		{name: "default config", cfg: &Config{}},
		{name: "custom config", cfg: &Config{Name: "meshkit", Paths: []string{"./config"}, EnvPrefix: "MESHKIT"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader, err := New(tt.cfg)
			require.NoError(t, err)
			require.NotNil(t, loader)
		})
	}
}

// TestLoadAndGet 测试加载配置文件并读取值
func TestLoadAndGet(t *testing.T) {
	tmpDir := writeConfigFile(t, `
balancer:
  algorithm: "round_robin"
breaker:
  failure_threshold: 5
`)

	loader, err := New(&Config{Name: "meshkit", Paths: []string{tmpDir}})
	require.NoError(t, err)
	require.NoError(t, loader.Load(context.Background()))

	assert.Equal(t, "round_robin", loader.Get("balancer.algorithm"))
	assert.Equal(t, 5, loader.Get("breaker.failure_threshold"))
}

// TestUnmarshalKey 测试将配置段反序列化到结构体
func TestUnmarshalKey(t *testing.T) {
	tmpDir := writeConfigFile(t, `
breaker:
  failure_threshold: 3
  half_open_max: 2
`)

	loader, err := New(&Config{Name: "meshkit", Paths: []string{tmpDir}})
	require.NoError(t, err)
	require.NoError(t, loader.Load(context.Background()))

	var cfg struct {
		FailureThreshold int `mapstructure:"failure_threshold"`
		HalfOpenMax      int `mapstructure:"half_open_max"`
	}
	require.NoError(t, loader.UnmarshalKey("breaker", &cfg))
	assert.Equal(t, 3, cfg.FailureThreshold)
	assert.Equal(t, 2, cfg.HalfOpenMax)
}

// TestLoadMissingFile 测试缺失配置文件时不报错
func TestLoadMissingFile(t *testing.T) {
	loader, err := New(&Config{Name: "nonexistent", Paths: []string{t.TempDir()}})
	require.NoError(t, err)
	require.NoError(t, loader.Load(context.Background()), "找不到配置文件不应是致命错误")
}

// TestValidateEmpty 测试空配置验证失败
func TestValidateEmpty(t *testing.T) {
	loader, err := New(&Config{Name: "nonexistent", Paths: []string{t.TempDir()}})
	require.NoError(t, err)
	require.NoError(t, loader.Load(context.Background()))

	assert.Error(t, loader.Validate(), "空配置应验证失败")
}

// TestWatchCancel 测试取消监听后通道关闭
func TestWatchCancel(t *testing.T) {
	tmpDir := writeConfigFile(t, `balancer: {algorithm: "weighted"}`)

	loader, err := New(&Config{Name: "meshkit", Paths: []string{tmpDir}})
	require.NoError(t, err)
	require.NoError(t, loader.Load(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := loader.Watch(ctx, "balancer.algorithm")
	require.NoError(t, err)

	cancel()

	// 通道最终应被关闭
	for range ch {
	}
}
