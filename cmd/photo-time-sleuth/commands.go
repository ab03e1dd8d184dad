package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"github.com/spf13/cobra"
	"github.com/tartampluch/photo-time-sleuth/internal/ai"
	"github.com/tartampluch/photo-time-sleuth/internal/config"
	"github.com/tartampluch/photo-time-sleuth/internal/engine"
	"github.com/tartampluch/photo-time-sleuth/internal/locale"
	"github.com/tartampluch/photo-time-sleuth/internal/photo"
	"github.com/tartampluch/photo-time-sleuth/internal/secret"
	"github.com/tartampluch/photo-time-sleuth/internal/server"
	"github.com/tartampluch/photo-time-sleuth/internal/ui"
)

type options struct {
	configPath string
	directory  string
	bdayFile   string
	port       int
	debug      bool
	headless   bool
	version    bool
}

func newRootCmd() *cobra.Command {
	o := &options{}

	cmd := &cobra.Command{
		Use:          config.CmdRootUse,
		Short:        config.CmdRootShort,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if o.version {
				printVersion(cmd.OutOrStdout())
				return nil
			}
			return runServe(cmd, o)
		},
	}

	cmd.PersistentFlags().BoolVar(&o.debug, config.FlagDebug, false, config.FlagDescDebug)
	cmd.PersistentFlags().StringVar(&o.configPath, config.FlagConfig, config.DefaultConfigPath, config.FlagDescConfig)
	cmd.Flags().BoolVar(&o.version, config.FlagVersion, false, config.FlagDescVersion)
	addServeFlags(cmd, o)

	cmd.AddCommand(serveCmd(o), estimateCmd(), checkRegistryCmd())
	return cmd
}

func addServeFlags(cmd *cobra.Command, o *options) {
	cmd.Flags().StringVarP(&o.directory, config.FlagDirectory, "d", "", config.FlagDescDirectory)
	cmd.Flags().StringVarP(&o.bdayFile, config.FlagBdayFile, "b", "", config.FlagDescBdayFile)
	cmd.Flags().IntVarP(&o.port, config.FlagPort, "p", config.DefaultPort, config.FlagDescPort)
	cmd.Flags().BoolVar(&o.headless, config.FlagHeadless, false, config.FlagDescHeadless)
}

func serveCmd(o *options) *cobra.Command {
	c := &cobra.Command{
		Use:   config.CmdServeUse,
		Short: config.CmdServeShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, o)
		},
	}
	addServeFlags(c, o)
	return c
}

func estimateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   config.CmdEstimateUse,
		Short: config.CmdEstimateShort,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			age, err := strconv.Atoi(args[1])
			if err != nil || age < 0 || age > config.MaxAgeYears {
				return fmt.Errorf("%s: %q", config.ErrAgeArg, args[1])
			}
			anchor, err := engine.ParseAnchor(args[2])
			if err != nil {
				return err
			}

			date, err := engine.EstimateString(args[0], age, anchor)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), date)
			return err
		},
	}
}

func checkRegistryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   config.CmdCheckUse,
		Short: config.CmdCheckShort,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			// A missing file loads as an empty registry; here it is an error.
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("%s: %w", config.ErrRegistryRead, err)
			}

			records, err := engine.LoadRegistry(path)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), config.MsgRegistryOK, path, len(records))
			return err
		},
	}
}

// settings layers the TOML file, the command line and the derived defaults.
func (o *options) settings(cmd *cobra.Command, workDir string) (config.Settings, error) {
	s, err := config.LoadSettings(o.configPath)
	if err != nil {
		return config.Settings{}, err
	}

	if o.directory != "" {
		s.PhotoDir = o.directory
	}
	if o.bdayFile != "" {
		s.BdayFile = o.bdayFile
	}
	if cmd.Flags().Changed(config.FlagPort) {
		s.Port = o.port
	}

	if err := s.Resolve(workDir); err != nil {
		return config.Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return config.Settings{}, err
	}
	return s, nil
}

// runServe starts the web application, with the desktop window unless headless.
func runServe(cmd *cobra.Command, o *options) error {
	closeLog := setupLogging(o.debug, os.Stdout)
	defer closeLog()
	logStartupInfo()

	workDir, err := os.Getwd()
	if err != nil {
		return err
	}
	s, err := o.settings(cmd, workDir)
	if err != nil {
		return err
	}

	slog.Info(config.MsgSettingsReady,
		config.LogKeyComponent, config.CompConfig,
		config.LogKeyDir, s.PhotoDir,
		config.LogKeyFile, s.BdayFile,
		config.LogKeyPort, s.Port,
		config.LogKeyBackend, s.KeyBackend,
	)

	if _, err := engine.EnsureRegistry(s.BdayFile); err != nil {
		return err
	}

	cat, err := locale.Load(s.Language)
	if err != nil {
		return err
	}

	srv := server.New(s,
		photo.NewDirStore(s.PhotoDir),
		secret.New(s),
		ai.NewClient(s.OpenAIBaseURL, s.OpenAIModel),
		cat,
		engine.RealClock{},
	)

	ctx := cmd.Context()
	if o.headless {
		fmt.Fprintf(cmd.OutOrStdout(), config.MsgServingOn, s.PhotoDir, server.ServeURL(s.Port))
		err = srv.Start(ctx)
	} else {
		err = runDesktop(ctx, s, srv, cat)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	slog.Info(config.MsgAppStop, config.LogKeyComponent, config.CompMain)
	return nil
}

// runDesktop blocks on the fyne event loop; the server stops when it returns.
func runDesktop(ctx context.Context, s config.Settings, srv *server.Server, cat *locale.Catalog) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a := app.NewWithID(config.AppID)
	gui := ui.NewSleuthApp(a, ctx, s, srv, cat)

	go func() {
		<-ctx.Done()
		slog.Info(config.MsgCtxCancel, config.LogKeyComponent, config.CompMain)
		fyne.Do(a.Quit)
	}()

	gui.Run()
	return nil
}
