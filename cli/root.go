// Package cli wires configuration, logging and the catalog server
// together behind a cobra command, grounded on the teacher's
// cli/root.go startup sequence (config discovery, echo server,
// signal-driven graceful shutdown) adapted from flow-message serving
// to catalog record serving.
package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"catalogd.dev/catalog"
	"catalogd.dev/catalog/api"
	"catalogd.dev/catalog/metrics"
	"catalogd.dev/common"
	"catalogd.dev/config"
)

var cfgFile string

// RootCmd is the catalogd entry point: it serves updates over UDP/TCP
// and queries over HTTP until interrupted.
var RootCmd = &cobra.Command{
	Use:   "catalogd",
	Short: "a distributed catalog and historical key-value store",
	Long: `catalogd

Accepts periodic catalog updates over UDP (fast path) and TCP (slow
path), maintains a live in-memory table, persists the update history
as a day-sharded delta log, and serves snapshot/historical queries
over HTTP.`,
	Run: runServer,
}

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.catalogd.yaml)")
	RootCmd.PersistentFlags().Int("port", 0, "update/query port (TCP updates bind port+1)")
	RootCmd.PersistentFlags().String("interface", "", "interface address to bind")
	RootCmd.PersistentFlags().Duration("lifetime", 0, "record expiry lifetime")
	RootCmd.PersistentFlags().Duration("clean-interval", 0, "expiry sweep interval")
	RootCmd.PersistentFlags().String("history-dir", "", "delta log directory")

	viper.BindPFlag("port", RootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("interface", RootCmd.PersistentFlags().Lookup("interface"))
	viper.BindPFlag("lifetime", RootCmd.PersistentFlags().Lookup("lifetime"))
	viper.BindPFlag("clean_interval", RootCmd.PersistentFlags().Lookup("clean-interval"))
	viper.BindPFlag("history_dir", RootCmd.PersistentFlags().Lookup("history-dir"))

	config.BindDefaults(viper.GetViper())
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		cobra.CheckErr(err)
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".catalogd")
	}

	viper.SetEnvPrefix("CATALOGD")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		common.Logger.WithField("file", viper.ConfigFileUsed()).Info("cli: using config file")
	}
}

func runServer(cmd *cobra.Command, args []string) {
	cfg := config.FromViper(viper.GetViper())
	log := common.Component("catalog")

	m := metrics.New("catalogd")
	srv, err := catalog.NewServer(cfg, log, m)
	if err != nil {
		log.WithError(err).Fatal("cli: failed to initialize catalog server")
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	api.RegisterRoutes(e, srv)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		if err := srv.Run(ctx); err != nil {
			log.WithError(err).Error("cli: catalog server stopped with error")
		}
	}()

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Interface, cfg.Port)
		log.WithField("addr", addr).Info("cli: http query server starting")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("cli: http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	<-quit

	log.Info("cli: shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("cli: http shutdown failed")
	}
}
