package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"

	"google.golang.org/grpc"

	"github.com/weftml/weft/internal/device"
	"github.com/weftml/weft/internal/eventbus"
	"github.com/weftml/weft/internal/executor"
	"github.com/weftml/weft/internal/otel"
	"github.com/weftml/weft/internal/service"
)

const rootUsage = `weft — eager executor for serialized dataflow computations

USAGE:
  weft <command> [flags]

COMMANDS:
  serve            Run the executor gRPC service
  devices          List the configured logical devices
  help             Show help for any command
`

const serveUsage = `serve FLAGS:
  -server.addr <addr>     gRPC listen address (default: :7070)
  -device.name <name>     Logical device to pin the executor to (default: CPU:0)
  -device.gpus <n>        Register n logical GPU devices (default: 0)
  -otel.endpoint <addr>   OTLP collector endpoint
  -otel.service <name>    OpenTelemetry service name (default: weft)
`

const devicesUsage = `devices FLAGS:
  -device.gpus <n>        Register n logical GPU devices before listing
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("weft", flag.ContinueOnError)
	global.SetOutput(new(bytes.Buffer)) // silence automatic output
	if err := global.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, rootUsage)
		return err
	}
	remaining := global.Args()
	if len(remaining) == 0 {
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd := remaining[0]
	cmdArgs := remaining[1:]
	switch cmd {
	case "serve":
		return cmdServe(cmdArgs)
	case "devices":
		return cmdDevices(cmdArgs)
	case "help":
		return cmdHelp(cmdArgs)
	default:
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string) error {
	if len(args) == 0 {
		fmt.Print(rootUsage)
		return nil
	}
	switch args[0] {
	case "serve":
		fmt.Print(serveUsage)
	case "devices":
		fmt.Print(devicesUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

func configureGPUs(n int) {
	if n <= 0 {
		return
	}
	devs := []device.Device{{Name: "CPU:0", Kind: device.CPU}}
	for i := 0; i < n; i++ {
		devs = append(devs, device.Device{Name: fmt.Sprintf("GPU:%d", i), Kind: device.GPU})
	}
	device.Configure(devs...)
}

func cmdServe(args []string) error {
	addr := ":7070"
	deviceName := ""
	gpus := 0
	otelEndpoint := ""
	otelService := "weft"

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&addr, "server.addr", addr, "gRPC listen address")
	fs.StringVar(&deviceName, "device.name", deviceName, "Logical device to pin the executor to")
	fs.IntVar(&gpus, "device.gpus", gpus, "Register n logical GPU devices")
	fs.StringVar(&otelEndpoint, "otel.endpoint", otelEndpoint, "OTLP collector endpoint")
	fs.StringVar(&otelService, "otel.service", otelService, "OpenTelemetry service name")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, serveUsage)
		return err
	}
	configureGPUs(gpus)

	eventbus.Use(eventbus.New())
	shutdown, err := otel.Setup(otelEndpoint, otelService)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	var opts []executor.Option
	if deviceName != "" {
		opts = append(opts, executor.WithDevice(deviceName))
	}
	exec, err := executor.New(opts...)
	if err != nil {
		return fmt.Errorf("executor init: %w", err)
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	gs := grpc.NewServer()
	service.NewServer(exec).Register(gs)

	log.Printf("executor service on %s (device %s)", addr, exec.Device().Name)
	return gs.Serve(lis)
}

func cmdDevices(args []string) error {
	gpus := 0
	fs := flag.NewFlagSet("devices", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.IntVar(&gpus, "device.gpus", gpus, "Register n logical GPU devices")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, devicesUsage)
		return err
	}
	configureGPUs(gpus)
	for _, d := range device.All() {
		fmt.Printf("%-8s %s\n", d.Kind, d.Name)
	}
	return nil
}
