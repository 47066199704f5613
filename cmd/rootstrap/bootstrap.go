package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rootstrap/rootstrap/internal/log"
	"github.com/rootstrap/rootstrap/internal/pipeline"
)

const defaultMirror = "https://deb.debian.org/debian"

var (
	bootstrapMirror       string
	bootstrapArches       []string
	bootstrapConfig       string
	bootstrapIncludes     []string
	bootstrapIncludeFiles []string
	bootstrapScripts      []string
	bootstrapDownloadOnly bool
	bootstrapStage1Only   bool
	bootstrapClean        bool
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap BRANCH TARGET",
	Short: "Bootstrap a root filesystem for BRANCH into TARGET",
	Args:  cobra.ExactArgs(2),
	RunE:  runBootstrap,
}

func init() {
	bootstrapCmd.Flags().StringVar(&bootstrapMirror, "mirror", defaultMirror, "package mirror base URL")
	bootstrapCmd.Flags().StringArrayVar(&bootstrapArches, "arch", []string{"all", "amd64"}, "architecture (repeatable)")
	bootstrapCmd.Flags().StringVar(&bootstrapConfig, "config", "", "TOML bootstrap config naming seed packages (required)")
	bootstrapCmd.Flags().StringArrayVar(&bootstrapIncludes, "include", nil, "extra package to install (repeatable)")
	bootstrapCmd.Flags().StringArrayVar(&bootstrapIncludeFiles, "include-files", nil, "file of extra package names, one per line (repeatable)")
	bootstrapCmd.Flags().StringArrayVar(&bootstrapScripts, "scripts", nil, "extra script to run during stage 2 (repeatable)")
	bootstrapCmd.Flags().BoolVar(&bootstrapDownloadOnly, "download-only", false, "stop after downloading packages")
	bootstrapCmd.Flags().BoolVar(&bootstrapStage1Only, "stage1-only", false, "stop after stage 1 filesystem extraction")
	bootstrapCmd.Flags().BoolVar(&bootstrapClean, "clean", false, "purge the archive cache after stage 2 succeeds")

	_ = bootstrapCmd.MarkFlagRequired("config")
}

func runBootstrap(cmd *cobra.Command, args []string) error {
	branch, target := args[0], args[1]

	opts := pipeline.Options{
		Mirror:       bootstrapMirror,
		Branch:       branch,
		Target:       target,
		Arches:       bootstrapArches,
		ConfigPath:   bootstrapConfig,
		Includes:     bootstrapIncludes,
		IncludeFiles: bootstrapIncludeFiles,
		Scripts:      bootstrapScripts,
		DownloadOnly: bootstrapDownloadOnly,
		Stage1Only:   bootstrapStage1Only,
		CleanUp:      bootstrapClean,
	}

	driver := pipeline.New(opts, log.Default())
	if err := driver.Run(globalCtx); err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}
	return nil
}
