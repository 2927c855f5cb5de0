// Command microrpc-service boots one service instance from a config
// file and runs it until stopped or signaled.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"microrpc/config"
	"microrpc/logging"
	"microrpc/registry"
	"microrpc/svc"
)

func main() {
	flags := config.ParseFlags(os.Args[1:])
	if flags.ConfigFile == "" {
		os.Stderr.WriteString("microrpc-service: -c/--config_file is required\n")
		os.Exit(2)
	}

	cfg, err := config.Load(flags.ConfigFile)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	if err := config.SetTimeZone(cfg.Global.TimeZone); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
	}

	log := logging.New(logging.Options{Level: "info"})

	reg := registry.NewRedisRegistry(registry.Options{
		Host: cfg.RedisServiceRegistry.Host,
		Port: cfg.RedisServiceRegistry.Port,
		DB:   cfg.RedisServiceRegistry.DB,
	})

	rt := svc.New(svc.Config{
		Name:          cfg.Global.Name,
		Env:           cfg.Global.Env,
		Host:          cfg.Global.Host,
		SocketType:    registry.SocketType(cfg.Global.SocketType),
		ConnectMethod: registry.ConnectMethod(cfg.Global.ConnectMethod),
		PIDDir:        cfg.Global.PIDDir,
	}, reg, log,
		svc.LoggingMiddleware(log),
		svc.TimeoutMiddleware(svc.DefaultHandlerTimeout),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rt.Bootstrap(ctx); err != nil {
		log.WithError(err).Fatal("bootstrap failed")
	}

	go func() {
		<-ctx.Done()
		_ = rt.Shutdown(context.Background())
	}()

	if err := rt.Run(ctx); err != nil {
		log.WithError(err).Error("dispatch loop exited with error")
	}
	_ = rt.Shutdown(context.Background())
}
