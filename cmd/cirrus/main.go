// cirrus 是平台的命令行客户端。
package main

import (
	"os"

	"github.com/oriys/cirrus/cmd/cirrus/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
