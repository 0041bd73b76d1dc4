package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/forgeos/mkbootimg/internal/config"
	"github.com/forgeos/mkbootimg/internal/imagebuild"
)

var (
	configFile  string
	sourceDir   string
	outputPath  string
	sizeMiB     int64
	offsetMiB   int64
	volumeLabel string
	toolchain   string
	liminePath  string
)

var rootCmd = &cobra.Command{
	Use:          "mkbootimg",
	Short:        "Assemble bootable FAT32 disk images from kernel build outputs",
	SilenceUsage: true,
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build a partitioned, formatted, staged disk image",
	RunE:  runBuild,
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	// Flags override the config file only when set explicitly.
	flags := cmd.Flags()
	if flags.Changed("source") {
		cfg.Source.Dir = sourceDir
	}
	if flags.Changed("output") {
		cfg.Image.Path = outputPath
	}
	if flags.Changed("size-mib") {
		cfg.Image.SizeMiB = sizeMiB
	}
	if flags.Changed("offset-mib") {
		cfg.Image.PartitionOffsetMiB = offsetMiB
	}
	if flags.Changed("label") {
		cfg.Image.VolumeLabel = volumeLabel
	}
	if flags.Changed("toolchain") {
		cfg.Image.Toolchain = toolchain
	}
	if flags.Changed("limine") {
		cfg.Bootloader.LiminePath = liminePath
	}

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
	}
	logrus.SetLevel(level)

	spec := imagebuild.Spec{
		TargetPath:     cfg.Image.Path,
		SizeBytes:      cfg.Image.SizeMiB * imagebuild.MiB,
		PartitionStart: cfg.Image.PartitionOffsetMiB * imagebuild.MiB,
		VolumeLabel:    cfg.Image.VolumeLabel,
		Manifest:       imagebuild.Manifest(cfg.Source.RequiredArtifacts),
	}

	tc, err := imagebuild.NewToolchain(cfg.Image.Toolchain)
	if err != nil {
		return err
	}

	builder := imagebuild.NewBuilder(spec, tc)
	builder.LiminePath = cfg.Bootloader.LiminePath

	// An interrupt cancels the build context; the builder still runs
	// its reverse-order teardown before returning.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := builder.Build(ctx, cfg.Source.Dir); err != nil {
		return fmt.Errorf("build failed (reached state %s): %w", builder.State(), err)
	}

	fmt.Printf("Image %s built successfully\n", cfg.Image.Path)
	return nil
}

func main() {
	buildCmd.Flags().StringVarP(&sourceDir, "source", "s", "build", "build-output directory to stage")
	buildCmd.Flags().StringVarP(&outputPath, "output", "o", "boot.img", "output image path")
	buildCmd.Flags().Int64Var(&sizeMiB, "size-mib", 64, "total image size in MiB")
	buildCmd.Flags().Int64Var(&offsetMiB, "offset-mib", 1, "partition start offset in MiB")
	buildCmd.Flags().StringVar(&volumeLabel, "label", "BOOT", "FAT32 volume label")
	buildCmd.Flags().StringVar(&toolchain, "toolchain", "", "toolchain to use: host or embedded (default: platform)")
	buildCmd.Flags().StringVar(&liminePath, "limine", "", "limine executable for BIOS boot stage install")

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "mkbootimg.json", "configuration file")
	rootCmd.AddCommand(buildCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
