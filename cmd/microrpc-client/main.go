// Command microrpc-client is a small manual test harness: it discovers
// a named service and calls one of its built-in functions, printing
// the raw reply.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"microrpc/config"
	"microrpc/registry"
	"microrpc/svcclient"
)

func main() {
	fs := pflag.NewFlagSet("microrpc-client", pflag.ExitOnError)
	configFile := fs.StringP("config_file", "c", "", "path to the client's registry config file")
	service := fs.String("service", "", "service name to call")
	function := fs.String("function", "heartbeat", "function to invoke")
	fs.AddGoFlagSet(flag.CommandLine)
	_ = fs.Parse(os.Args[1:])

	if *configFile == "" || *service == "" {
		fmt.Fprintln(os.Stderr, "microrpc-client: --config_file and --service are required")
		os.Exit(2)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	reg := registry.NewRedisRegistry(registry.Options{
		Host: cfg.RedisServiceRegistry.Host,
		Port: cfg.RedisServiceRegistry.Port,
		DB:   cfg.RedisServiceRegistry.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	instances, err := reg.DiscoverService(ctx, *service, 1)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if len(instances) == 0 {
		fmt.Fprintf(os.Stderr, "microrpc-client: no live instances of %s\n", *service)
		os.Exit(1)
	}

	client, err := svcclient.NewClient(*service, instances[0], svcclient.Options{StartHeartbeat: false})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer client.Shutdown()

	resp, err := client.Request(ctx, *function, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(string(resp))
}
