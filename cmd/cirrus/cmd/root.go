// Package cmd 实现命令行客户端的各个子命令。
// 客户端通过 HTTP 调用网关 API，凭证与服务器地址保存在
// ~/.cirrus.yaml 中，可被命令行参数覆盖。
package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// requestTimeout 是单次 API 调用的超时时间。
const requestTimeout = 30 * time.Second

var rootCmd = &cobra.Command{
	Use:   "cirrus",
	Short: "Cirrus platform command line client",
	Long:  "Command line client for the Cirrus item service and usage analytics platform.",
}

// Execute 运行根命令。
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().String("server", "http://localhost:8080", "gateway base URL")
	viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
}

// initConfig 加载 ~/.cirrus.yaml，文件不存在时使用默认值。
func initConfig() {
	home, err := os.UserHomeDir()
	if err == nil {
		viper.AddConfigPath(home)
		viper.SetConfigName(".cirrus")
		viper.SetConfigType("yaml")
	}
	viper.SetEnvPrefix("CIRRUS")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()
}

// configPath 返回客户端配置文件路径。
func configPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cirrus.yaml"), nil
}

// apiRequest 调用网关 API 并把 JSON 响应解析到 out。
// 已登录时自动附加 Bearer 令牌；配置了 api_key 时附加 API Key 头。
func apiRequest(method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, viper.GetString("server")+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token := viper.GetString("token"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if key := viper.GetString("api_key"); key != "" {
		req.Header.Set("X-API-Key", key)
	}

	client := &http.Client{Timeout: requestTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		errBody := map[string]any{}
		if json.Unmarshal(data, &errBody) == nil {
			if msg, ok := errBody["error"].(string); ok {
				return fmt.Errorf("request failed (%d): %s", resp.StatusCode, msg)
			}
		}
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	if out != nil {
		return json.Unmarshal(data, out)
	}
	return nil
}

// printJSON 以缩进 JSON 输出结果。
func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	fmt.Println(string(data))
}
