// Package cmd 实现命令行客户端的各个子命令。
// 本文件实现 API Key 管理命令。
package cmd

import (
	"github.com/spf13/cobra"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage API keys",
}

var keyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Issue a new API key (shown only once)",
	RunE: func(cmd *cobra.Command, args []string) error {
		label, _ := cmd.Flags().GetString("label")

		var resp map[string]any
		if err := apiRequest("POST", "/api/v1/keys/", map[string]string{"label": label}, &resp); err != nil {
			return err
		}
		printJSON(resp)
		return nil
	},
}

var keyRevokeCmd = &cobra.Command{
	Use:   "revoke <api-key>",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp map[string]any
		if err := apiRequest("POST", "/api/v1/keys/revoke", map[string]string{"apiKey": args[0]}, &resp); err != nil {
			return err
		}
		printJSON(resp)
		return nil
	},
}

func init() {
	keyCreateCmd.Flags().String("label", "", "key label")
	keyCmd.AddCommand(keyCreateCmd, keyRevokeCmd)
	rootCmd.AddCommand(keyCmd)
}
