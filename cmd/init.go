package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const starterConfig = `# mathchat 配置文件
# 默认 provider(按名称，见下方 providers)
provider: gemini

providers:
  gemini:
    api_key: ""            # 或设置 GEMINI_API_KEY
    model: gemini-2.0-flash
  deepseek:
    api_key: ""            # 或设置 DEEPSEEK_API_KEY
    model: deepseek-chat
  # anthropic:
  #   api_key: ""          # 或设置 ANTHROPIC_API_KEY
  #   model: claude-sonnet-4-20250514

# system_prompt: ""        # 留空使用内置的 LaTeX 数学提示词
# greeting: ""             # 留空使用内置开场消息
# db_path: ""              # 留空使用 ~/.local/share/mathchat/state.db

speech:
  tts_lang: zh-CN
  auto_send_seconds: 3
  max_restarts: 3
`

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfgFile
			if path == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return fmt.Errorf("cannot determine home directory: %w", err)
				}
				path = filepath.Join(home, ".config", "mathchat", "config.yaml")
			}

			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("config file already exists at %s", path)
			}

			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}
			if err := os.WriteFile(path, []byte(starterConfig), 0o600); err != nil {
				return fmt.Errorf("write config file: %w", err)
			}

			fmt.Printf("Wrote %s\nEdit it to add your API keys, then run: mathchat\n", path)
			return nil
		},
	}
}
