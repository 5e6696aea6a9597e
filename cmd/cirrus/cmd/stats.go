// Package cmd 实现命令行客户端的各个子命令。
// 本文件实现使用分析查询命令。
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show your insight counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp map[string]any
		if err := apiRequest("GET", "/api/v1/usage/stats", nil, &resp); err != nil {
			return err
		}
		printJSON(resp)
		return nil
	},
}

var perfCmd = &cobra.Command{
	Use:   "perf",
	Short: "Show server-side operation performance stats",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp map[string]any
		if err := apiRequest("GET", "/api/v1/usage/perf", nil, &resp); err != nil {
			return err
		}
		printJSON(resp)
		return nil
	},
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Query raw usage metric records",
	RunE: func(cmd *cobra.Command, args []string) error {
		metricType, _ := cmd.Flags().GetString("type")
		from, _ := cmd.Flags().GetInt64("from")
		to, _ := cmd.Flags().GetInt64("to")
		limit, _ := cmd.Flags().GetInt("limit")

		path := fmt.Sprintf("/api/v1/usage/metrics?type=%s&limit=%d", metricType, limit)
		if from > 0 {
			path += fmt.Sprintf("&from=%d", from)
		}
		if to > 0 {
			path += fmt.Sprintf("&to=%d", to)
		}

		var resp map[string]any
		if err := apiRequest("GET", path, nil, &resp); err != nil {
			return err
		}
		printJSON(resp)
		return nil
	},
}

func init() {
	metricsCmd.Flags().String("type", "api_request", "metric type to query")
	metricsCmd.Flags().Int64("from", 0, "start of time range (unix seconds)")
	metricsCmd.Flags().Int64("to", 0, "end of time range (unix seconds)")
	metricsCmd.Flags().Int("limit", 0, "max records (0 uses server default)")

	rootCmd.AddCommand(statsCmd, perfCmd, metricsCmd)
}
