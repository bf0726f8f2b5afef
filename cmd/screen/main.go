package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/xtalpipe/screen/internal/log"
	"github.com/xtalpipe/screen/internal/model"
	"github.com/xtalpipe/screen/internal/procrunner"
	"github.com/xtalpipe/screen/internal/screen"
)

const helpMessage = `
This program processes diffraction screening data obtained at a
synchrotron beamline.

Examples:

  screen run datablock.json

  screen run *.cbf

  screen run /path/to/data/
`

var (
	userConfigPath string // default config directory for screen on given OS
	configPath     string // actual config file used (if loaded)
	config         model.Config
	closeLogs      func() error

	flagConfigFilePath string // value of --config flag
	flagVerbose        bool   // value of --verbose flag
)

func init() {
	d, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	userConfigPath = filepath.Join(d, "screen")
}

func main() {
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "",
		"Config file to load - default is screen.yaml in current directory or in "+userConfigPath)
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")

	rootCmd.SilenceErrors = true
	rootCmd.PersistentPreRunE = initScreen

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)

	err := rootCmd.Execute()
	if closeLogs != nil {
		_ = closeLogs()
	}
	if err != nil {
		slog.Error("screen failed", "err", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "screen",
	Short:        "Orchestrates the screening of diffraction data sets",
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run [paths...]",
	Short: "run sequences the full screening workflow over the given images",
	RunE:  doRun,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provides version of screen",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(versionInfo())
		if configPath != "" {
			fmt.Printf("config: %s\n", configPath)
		}
	},
}

func versionInfo() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "screen: version info not available"
	}
	return fmt.Sprintf("screen %s (%s)", info.Main.Version, info.GoVersion)
}

func doRun(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		fmt.Print(helpMessage + "\n")
		fmt.Println(versionInfo())
		return nil
	}

	ctx := log.ContextAttrs(cmd.Context(),
		slog.String("session", uuid.NewString()),
		slog.Int("pid", os.Getpid()),
	)

	slog.InfoContext(ctx, versionInfo())

	session := screen.New(config, procrunner.New())
	return session.Run(ctx, args)
}

func initScreen(cmd *cobra.Command, _ []string) error {
	if envConfig, ok := os.LookupEnv("SCREENCONFIG"); ok {
		configPath = envConfig
	} else if flagConfigFilePath != "" {
		configPath = flagConfigFilePath
	} else {
		for _, d := range []string{userConfigPath, "."} {
			path := filepath.Join(d, "screen.yaml")
			if exists(path) {
				configPath = path
				break
			}
		}
	}

	if configPath == "" {
		config = model.DefaultConfig()
	} else {
		f, err := os.Open(configPath)
		if err != nil {
			return fmt.Errorf("opening config file: %w", err)
		}
		defer func() {
			_ = f.Close()
		}()
		config, err = model.LoadConfig(f)
		if err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	}

	// --verbose has a precedence over config file
	if flagVerbose {
		config.Verbose = true
	}

	var err error
	closeLogs, err = log.Setup(".", config.Verbose)
	if err != nil {
		return err
	}

	slog.Debug("screen run", "configPath", configPath)
	return nil
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
