package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"formcapture/internal/models"
	"formcapture/internal/services/attachment"
	"formcapture/internal/services/capture"
	"formcapture/pkg/imagex"
	"formcapture/pkg/imagex/formats"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const cliField = "cli"

var optimizeCmd = &cobra.Command{
	Use:   "optimize <file>...",
	Short: "本地运行转换与压缩管线",
	Long:  "对本地文件执行 分类 → 旧格式转换 → 自适应压缩，输出处理后的文件与处理记录。",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runOptimize,
}

func init() {
	optimizeCmd.Flags().StringP("out", "o", "optimized", "输出目录（不会覆盖输入文件）")
	optimizeCmd.Flags().Int64("target", 0, "目标字节上限（覆盖配置 capture.target_bytes）")
	optimizeCmd.Flags().Bool("yaml", false, "以 YAML 输出完整处理记录（含压缩尝试）")
	rootCmd.AddCommand(optimizeCmd)
}

func readLocalFile(path string) (*imagex.File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, eris.Wrapf(err, "optimize: stat %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "optimize: read %s", path)
	}
	name := filepath.Base(path)
	return &imagex.File{
		Name:     name,
		MimeType: formats.GetContentType(filepath.Ext(name)),
		Data:     data,
		ModTime:  info.ModTime(),
	}, nil
}

func runOptimize(cmd *cobra.Command, args []string) error {
	outDir, _ := cmd.Flags().GetString("out")
	asYAML, _ := cmd.Flags().GetBool("yaml")
	if target, _ := cmd.Flags().GetInt64("target"); target > 0 {
		cfg.Capture.TargetBytes = target
	}

	files := make([]*imagex.File, 0, len(args))
	for _, p := range args {
		f, err := readLocalFile(p)
		if err != nil {
			return err
		}
		files = append(files, f)
	}

	store := attachment.NewStore()
	store.Register(cliField, attachment.InputControl{Multiple: true})
	manager := attachment.NewManager(store)
	pipeline := capture.NewPipeline(newConverter(cmd.Context(), cfg.Capture), newOptimizer(cfg.Capture), manager, cfg.Capture.TargetBytes)

	sel, err := pipeline.HandleSelection(cmd.Context(), cliField, files, models.CaptureGalleryMulti)
	if err != nil {
		return err
	}

	if err := writeOutputs(outDir, args, manager.Attachments(cliField)); err != nil {
		return err
	}
	return printOutcomes(cmd.OutOrStdout(), sel.Outcomes, asYAML)
}

// writeOutputs 写出处理结果；任何输出路径与输入文件相同时一个都不写
func writeOutputs(outDir string, inputs []string, attachments []*models.Attachment) error {
	protected := make(map[string]bool, len(inputs))
	for _, p := range inputs {
		abs, err := filepath.Abs(p)
		if err != nil {
			return eris.Wrapf(err, "optimize: resolve %s", p)
		}
		protected[abs] = true
	}

	targets := make([]string, 0, len(attachments))
	for _, a := range attachments {
		dst, err := filepath.Abs(filepath.Join(outDir, a.Name))
		if err != nil {
			return eris.Wrapf(err, "optimize: resolve %s", a.Name)
		}
		if protected[dst] {
			return eris.Errorf("optimize: output %s would overwrite an input file, choose another --out", dst)
		}
		targets = append(targets, dst)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return eris.Wrapf(err, "optimize: create %s", outDir)
	}
	for i, a := range attachments {
		if err := os.WriteFile(targets[i], a.Data, 0o644); err != nil {
			return eris.Wrapf(err, "optimize: write %s", targets[i])
		}
	}
	return nil
}

func printOutcomes(w io.Writer, outcomes []capture.Outcome, asYAML bool) error {
	if asYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(outcomes)
	}
	for _, o := range outcomes {
		line := fmt.Sprintf("%-28s %-16s %-11s %10s -> %-10s",
			o.Name, o.Kind, o.Action,
			imagex.FormatFileSize(o.OriginalSize), imagex.FormatFileSize(o.FinalSize))
		if o.Compression != nil {
			line += fmt.Sprintf(" stage=%s q=%.2f %dx%d", o.Compression.Stage, o.Compression.Quality, o.Compression.Width, o.Compression.Height)
		}
		if o.Error != "" {
			line += " error=" + o.Error
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
