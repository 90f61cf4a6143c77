package main

import (
	"os"
	"runtime/debug"

	"tpucast/cmd"
	"tpucast/logx"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			_ = logx.Errorf("SENDER CRASHED: %v\n%s", r, debug.Stack())
			os.Exit(1)
		}
	}()

	cmd.Execute()
}
