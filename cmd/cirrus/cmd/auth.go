// Package cmd 实现命令行客户端的各个子命令。
// 本文件实现注册与登录命令。登录成功后令牌写入本地配置文件。
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var registerCmd = &cobra.Command{
	Use:   "register <email>",
	Short: "Register a new account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, _ := cmd.Flags().GetString("password")
		name, _ := cmd.Flags().GetString("name")

		var resp map[string]any
		err := apiRequest("POST", "/api/v1/auth/register", map[string]string{
			"email":    args[0],
			"password": password,
			"name":     name,
		}, &resp)
		if err != nil {
			return err
		}
		printJSON(resp)
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login <email>",
	Short: "Log in and store the session token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, _ := cmd.Flags().GetString("password")

		var resp struct {
			Token     string         `json:"token"`
			ExpiresIn int64          `json:"expiresIn"`
			User      map[string]any `json:"user"`
		}
		err := apiRequest("POST", "/api/v1/auth/login", map[string]string{
			"email":    args[0],
			"password": password,
		}, &resp)
		if err != nil {
			return err
		}

		viper.Set("token", resp.Token)
		path, err := configPath()
		if err != nil {
			return err
		}
		if err := viper.WriteConfigAs(path); err != nil {
			return fmt.Errorf("failed to save token: %w", err)
		}

		fmt.Printf("Logged in, token valid for %d seconds\n", resp.ExpiresIn)
		return nil
	},
}

func init() {
	registerCmd.Flags().String("password", "", "account password")
	registerCmd.Flags().String("name", "", "display name")
	registerCmd.MarkFlagRequired("password")

	loginCmd.Flags().String("password", "", "account password")
	loginCmd.MarkFlagRequired("password")

	rootCmd.AddCommand(registerCmd, loginCmd)
}
