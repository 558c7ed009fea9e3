package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/cihub/seelog"

	"github.com/sundy-li/offsetmon/api"
	. "github.com/sundy-li/offsetmon/config"
	logger "github.com/sundy-li/offsetmon/log"
	"github.com/sundy-li/offsetmon/monitor"
	"github.com/sundy-li/offsetmon/outputs"
)

var (
	cfgFile string
)

func init() {
	flag.StringVar(&cfgFile, "config", "config/server.json", "config file path")
	flag.Parse()
}

func main() {
	cfg, err := ReadConfig(cfgFile)
	exitOnErr(err)
	exitOnErr(logger.InitLogger(cfg.General.Logconfig))
	defer logger.Flush()

	log.Infof("offsetmon started, using server config:%s, storage:%s", cfgFile, cfg.General.Storage)

	engine, err := monitor.New(cfg)
	exitOnErr(err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	outs, err := outputs.StartAll(ctx, cfg.Outputs)
	exitOnErr(err)
	engine.SetOutputs(outs, cfg.ReportInterval())
	engine.Instance()

	server := api.NewServer(cfg.General.Listen, func() api.Reader { return engine.Instance() })
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Criticalf("http server: %v", err)
			logger.Flush()
			os.Exit(1)
		}
	}()
	log.Infof("serving read API on %s", cfg.General.Listen)

	log.Infof("You could press [Ctrl+c] to stop offsetmon\n")

	WaitForExitSign()
	log.Info("signal catched, offsetmon will be shutdown")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
	engine.Stop()
	log.Info("goodbye")
}

func WaitForExitSign() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	<-c
}

func exitOnErr(err error) {
	if err != nil {
		log.Criticalf("offsetmon cannot start: %v", err)
		logger.Flush()
		os.Exit(1)
	}
}
