// Command rfstick controls RF power switches and dimmers through the
// rfstickd background service.
//
// Usage:
//
//	rfstick [-config path] <command> [arguments]
//
// Commands:
//
//	list                 print all registered devices
//	on <id>              turn a device on
//	off <id>             turn a device off
//	dim <id> <level>     dim a device to level 0-255
//	bell <id>            ring a bell device
//	learn <id>           send a learn command to a self-learning device
//	add                  register a new device, printing its id
//	remove <id>          unregister a device
//	set-name <id> <name> rename a device
//	raw <command>        send a raw protocol command string
//	listen               print service events until interrupted
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nerrad567/rfstick/client"
	"github.com/nerrad567/rfstick/internal/config"
	"github.com/nerrad567/rfstick/internal/logging"
	"github.com/nerrad567/rfstick/mqttpub"
	"github.com/nerrad567/rfstick/statelog"
	"github.com/nerrad567/rfstick/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("rfstick", flag.ContinueOnError)
	configPath := flags.String("config", "", "path to config.yaml (default: RFSTICK_CONFIG or built-in defaults)")
	showVersion := flags.Bool("version", false, "print version and exit")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if *showVersion {
		fmt.Printf("rfstick %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	if flags.NArg() == 0 {
		flags.Usage()
		return errors.New("no command given")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	log := logging.New(cfg.Logging, version)

	c, err := client.New(ctx, client.Config{
		CommandAddress: cfg.Service.CommandAddress,
		EventAddress:   cfg.Service.EventAddress,
		ConnectTimeout: time.Duration(cfg.Service.ConnectTimeout) * time.Second,
		ReadTimeout:    time.Duration(cfg.Service.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Service.WriteTimeout) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("connecting to rfstickd: %w", err)
	}
	defer func() {
		if closeErr := c.Close(); closeErr != nil {
			log.Error("error closing client", "error", closeErr)
		}
	}()
	c.SetLogger(log.With("component", "client"))

	command, cmdArgs := flags.Arg(0), flags.Args()[1:]
	switch command {
	case "list":
		return listDevices(c)
	case "on":
		return deviceCommand(c, cmdArgs, c.TurnOn)
	case "off":
		return deviceCommand(c, cmdArgs, c.TurnOff)
	case "bell":
		return deviceCommand(c, cmdArgs, c.Bell)
	case "learn":
		return deviceCommand(c, cmdArgs, c.Learn)
	case "dim":
		return dimDevice(c, cmdArgs)
	case "add":
		return addDevice(c)
	case "remove":
		return removeDevice(c, cmdArgs)
	case "set-name":
		return setName(c, cmdArgs)
	case "raw":
		return sendRaw(c, cmdArgs)
	case "listen":
		return listen(ctx, c, cfg, log)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// loadConfig resolves the config file path and loads it. With no path
// and no RFSTICK_CONFIG variable, the built-in defaults are used so the
// tool works out of the box against a local service.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv("RFSTICK_CONFIG")
	}
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func listDevices(c *client.Client) error {
	count := c.NumDevices()
	if count < 0 {
		return fmt.Errorf("listing devices: %s", client.Status(count))
	}

	fmt.Printf("Number of devices: %d\n", count)
	for i := 0; i < count; i++ {
		id := c.DeviceID(i)
		if id < 0 {
			continue
		}

		state := c.LastSentCommand(id, client.MethodAll)
		stateText := "OFF"
		switch state {
		case client.MethodTurnOn:
			stateText = "ON"
		case client.MethodDim:
			stateText = fmt.Sprintf("DIMMED:%s", c.LastSentValue(id))
		}
		fmt.Printf("%d\t%s\t%s\n", id, c.Name(id), stateText)
	}
	return nil
}

// deviceCommand runs a single-argument state change like on, off, bell,
// or learn.
func deviceCommand(c *client.Client, args []string, fn func(int) client.Status) error {
	id, err := parseDeviceID(c, args)
	if err != nil {
		return err
	}

	if status := fn(id); status != client.Success {
		return fmt.Errorf("%s: %s", c.Name(id), status)
	}
	return nil
}

func dimDevice(c *client.Client, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: rfstick dim <id> <level>")
	}
	id, err := parseDeviceID(c, args[:1])
	if err != nil {
		return err
	}
	level, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid dim level %q", args[1])
	}

	if status := c.Dim(id, level); status != client.Success {
		return fmt.Errorf("%s: %s", c.Name(id), status)
	}
	return nil
}

func addDevice(c *client.Client) error {
	id := c.AddDevice()
	if id < 0 {
		return fmt.Errorf("adding device: %s", client.Status(id))
	}
	fmt.Printf("Device added with id %d\n", id)
	return nil
}

func removeDevice(c *client.Client, args []string) error {
	id, err := parseDeviceID(c, args)
	if err != nil {
		return err
	}
	if !c.RemoveDevice(id) {
		return fmt.Errorf("removing device %d failed", id)
	}
	return nil
}

func setName(c *client.Client, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: rfstick set-name <id> <name>")
	}
	id, err := parseDeviceID(c, args[:1])
	if err != nil {
		return err
	}
	if !c.SetName(id, args[1]) {
		return fmt.Errorf("renaming device %d failed", id)
	}
	return nil
}

func sendRaw(c *client.Client, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: rfstick raw <command>")
	}
	if status := c.SendRawCommand(args[0]); status != client.Success {
		return fmt.Errorf("raw command: %s", status)
	}
	return nil
}

// listen prints service events until the context is cancelled, wiring
// up the optional journal, MQTT forwarder, and telemetry sink.
func listen(ctx context.Context, c *client.Client, cfg *config.Config, log *logging.Logger) error {
	if cfg.StateLog.Enabled {
		journal, err := statelog.Open(statelog.Config{
			Path:        cfg.StateLog.Path,
			WALMode:     cfg.StateLog.WALMode,
			BusyTimeout: cfg.StateLog.BusyTimeout,
		})
		if err != nil {
			return fmt.Errorf("opening state journal: %w", err)
		}
		defer func() {
			if closeErr := journal.Close(); closeErr != nil {
				log.Error("error closing journal", "error", closeErr)
			}
		}()
		defer journal.Attach(c)()
		log.Info("state journal enabled", "path", journal.Path())

		if cfg.StateLog.RetentionDays > 0 {
			retention := time.Duration(cfg.StateLog.RetentionDays) * 24 * time.Hour
			if pruned, pruneErr := journal.Prune(ctx, retention); pruneErr != nil {
				log.Warn("journal prune failed", "error", pruneErr)
			} else if pruned > 0 {
				log.Info("journal pruned", "entries", pruned)
			}
		}
	}

	if cfg.MQTT.Enabled {
		pub, err := mqttpub.Connect(mqttpub.Config{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			QoS:         cfg.MQTT.QoS,
			TopicPrefix: cfg.MQTT.TopicPrefix,
		})
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			if closeErr := pub.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		pub.SetLogger(log.With("component", "mqtt"))
		defer pub.Attach(c)()
		log.Info("MQTT forwarding enabled", "broker", cfg.MQTT.Broker)
	}

	if cfg.InfluxDB.Enabled {
		sink, err := telemetry.Connect(telemetry.Config{
			Enabled:       true,
			URL:           cfg.InfluxDB.URL,
			Token:         cfg.InfluxDB.Token,
			Org:           cfg.InfluxDB.Org,
			Bucket:        cfg.InfluxDB.Bucket,
			BatchSize:     cfg.InfluxDB.BatchSize,
			FlushInterval: cfg.InfluxDB.FlushInterval,
		})
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			if closeErr := sink.Close(); closeErr != nil {
				log.Error("error closing telemetry", "error", closeErr)
			}
		}()
		sink.SetOnError(func(err error) {
			log.Error("telemetry write error", "error", err)
		})
		defer sink.Attach(c)()
		log.Info("telemetry enabled", "url", cfg.InfluxDB.URL)
	}

	c.RegisterDeviceEvent(func(deviceID int, method client.Method, value string) {
		if value != "" {
			fmt.Printf("device %d: method %d value %s\n", deviceID, method, value)
			return
		}
		fmt.Printf("device %d: method %d\n", deviceID, method)
	})
	c.RegisterRawDeviceEvent(func(data string, controllerID int) {
		fmt.Printf("raw [controller %d]: %s\n", controllerID, data)
	})
	c.RegisterDeviceChangeEvent(func(deviceID, changeEvent, changeType int) {
		fmt.Printf("device %d changed: event %d type %d\n", deviceID, changeEvent, changeType)
	})

	fmt.Println("Listening for events, press Ctrl+C to stop")
	<-ctx.Done()
	return nil
}

// parseDeviceID reads a device id argument and verifies the device
// exists so command errors name the device instead of a bare id.
func parseDeviceID(c *client.Client, args []string) (int, error) {
	if len(args) != 1 {
		return 0, errors.New("expected a device id argument")
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid device id %q", args[0])
	}
	if _, ok := c.GetDevice(id); !ok {
		return 0, fmt.Errorf("device %d not found", id)
	}
	return id, nil
}
