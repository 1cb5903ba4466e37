package main

import (
	"fmt"
	"time"

	"formcapture/pkg/storage"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var storageCheckCmd = &cobra.Command{
	Use:   "storage-check",
	Short: "检查交付存储的连通性",
	Long:  "按当前配置创建存储适配器，执行健康检查与一次写入/读取/删除。",
	RunE:  runStorageCheck,
}

func init() {
	storageCheckCmd.Flags().String("type", "", "存储类型（覆盖配置 storage.type）")
	rootCmd.AddCommand(storageCheckCmd)
}

func runStorageCheck(cmd *cobra.Command, _ []string) error {
	if t, _ := cmd.Flags().GetString("type"); t != "" {
		cfg.Storage.Type = t
	}

	store, err := storage.NewFromConfig(cfg.Storage.Type, cfg.Storage.AsMap(), cfg.Storage.Prefix)
	if err != nil {
		return eris.Wrap(err, "storage-check: init storage")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "存储类型: %s\n", store.Type())

	failed := 0
	for _, step := range store.Probe(cmd.Context()) {
		status := "ok"
		if !step.OK() {
			status = "FAIL"
			failed++
		}
		fmt.Fprintf(out, "  %-10s %-4s %8v %s\n", step.Name, status, step.Duration.Round(time.Millisecond), step.Detail)
		if step.Err != nil {
			fmt.Fprintf(out, "             %v\n", step.Err)
		}
	}
	if failed > 0 {
		return eris.Errorf("storage-check: %d step(s) failed", failed)
	}
	return nil
}
