// Package cmd 实现命令行客户端的各个子命令。
// 本文件实现条目的增删改查命令。
package cmd

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

var itemCmd = &cobra.Command{
	Use:   "item",
	Short: "Manage items",
}

var itemCreateCmd = &cobra.Command{
	Use:   "create <message>",
	Short: "Create a new item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp map[string]any
		if err := apiRequest("POST", "/api/v1/items/", map[string]string{"message": args[0]}, &resp); err != nil {
			return err
		}
		printJSON(resp)
		return nil
	},
}

var itemGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Fetch a single item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp map[string]any
		if err := apiRequest("GET", "/api/v1/items/"+url.PathEscape(args[0]), nil, &resp); err != nil {
			return err
		}
		printJSON(resp)
		return nil
	},
}

var itemListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your items",
	RunE: func(cmd *cobra.Command, args []string) error {
		offset, _ := cmd.Flags().GetInt("offset")
		limit, _ := cmd.Flags().GetInt("limit")

		var resp map[string]any
		path := fmt.Sprintf("/api/v1/items/?offset=%d&limit=%d", offset, limit)
		if err := apiRequest("GET", path, nil, &resp); err != nil {
			return err
		}
		printJSON(resp)
		return nil
	},
}

var itemUpdateCmd = &cobra.Command{
	Use:   "update <id> <message>",
	Short: "Update an item's message",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp map[string]any
		err := apiRequest("PUT", "/api/v1/items/"+url.PathEscape(args[0]),
			map[string]string{"message": args[1]}, &resp)
		if err != nil {
			return err
		}
		printJSON(resp)
		return nil
	},
}

var itemDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp map[string]any
		if err := apiRequest("DELETE", "/api/v1/items/"+url.PathEscape(args[0]), nil, &resp); err != nil {
			return err
		}
		printJSON(resp)
		return nil
	},
}

func init() {
	itemListCmd.Flags().Int("offset", 0, "pagination offset")
	itemListCmd.Flags().Int("limit", 0, "page size (0 uses server default)")

	itemCmd.AddCommand(itemCreateCmd, itemGetCmd, itemListCmd, itemUpdateCmd, itemDeleteCmd)
	rootCmd.AddCommand(itemCmd)
}
