package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/common/version"
	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c"

	"github.com/alepar/weatherstation/metrics"
	"github.com/alepar/weatherstation/mqttrelay"
	"github.com/alepar/weatherstation/sensors/i2csensors"
	"github.com/alepar/weatherstation/station"
	"github.com/alepar/weatherstation/wunderground"
)

const program = "weatherstation"

// CLI args
var (
	listenAddr  = flag.String("listen-address", ":9000", "The address to listen on for HTTP requests.")
	busPath     = flag.String("bus", "/dev/i2c-1", "i2c bus shared by all sensors")
	settle      = flag.Duration("settle", station.DefaultSettle, "wait between triggering the sht31 and reading all sensors")
	bme280Addr  = flag.Uint("bme280-addr", uint(i2csensors.BME280Addr), "bme280 i2c address")
	mcp9808Addr = flag.Uint("mcp9808-addr", uint(i2csensors.MCP9808Addr), "mcp9808 i2c address")
	sht31Addr   = flag.Uint("sht31-addr", uint(i2csensors.SHT31Addr), "sht31 i2c address")
	sht31Settle = flag.Duration("sht31-settle", i2csensors.SHT31Settle, "sht31 single shot conversion time")
	failFast    = flag.Bool("fail-fast", false, "exit on the first sensor read or relay error")
	logLevel    = flag.String("log-level", "info", "log level: debug, info, warn, error")
	showVersion = flag.Bool("version", false, "print version and exit")

	wuEnabled = flag.Bool("wunderground", false, "relay readings to Weather Underground")
	wuURL     = flag.String("wunderground-url", wunderground.DefaultURL, "Weather Underground upload endpoint")

	mqttBroker   = flag.String("mqtt-broker", "", "relay readings to this MQTT broker, e.g. tcp://localhost:1883")
	mqttTopic    = flag.String("mqtt-topic", mqttrelay.DefaultTopic, "MQTT topic for relayed readings")
	mqttClientID = flag.String("mqtt-client-id", "", "MQTT client id, random if empty")
)

func init() {
	//logging
	formatter := &log.TextFormatter{
		FullTimestamp: true,
	}
	log.SetFormatter(formatter)
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Print(program))
		return
	}

	level, err := log.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("invalid log level: %s", err)
	}
	log.SetLevel(level)
	log.Infof("starting %s %s", program, version.Info())

	// Relays come first so a missing secret fails before any device or
	// network is touched.
	var relays []station.Relay
	if *wuEnabled {
		secret, path, err := wunderground.FindSecret(wunderground.SearchDirs()...)
		if err != nil {
			log.Fatalf("failed to load weather underground secret: %s", err)
		}
		log.Infof("loaded weather underground secret for station %s from %s", secret.ID, path)
		relays = append(relays, wunderground.NewClient(secret, wunderground.WithURL(*wuURL)))
	}
	if *mqttBroker != "" {
		clientID := *mqttClientID
		if clientID == "" {
			clientID = mqttrelay.DefaultClientID()
		}
		publisher, err := mqttrelay.NewPublisher(*mqttBroker, clientID, *mqttTopic)
		if err != nil {
			log.Fatalf("failed to set up mqtt relay: %s", err)
		}
		defer publisher.Close()
		relays = append(relays, publisher)
	}

	var buses []i2c.BusCloser
	openBus := func() i2c.Bus {
		bus, err := i2csensors.OpenBus(*busPath)
		if err != nil {
			log.Fatalf("failed to open i2c bus: %s", err)
		}
		buses = append(buses, bus)
		return bus
	}
	defer func() {
		for _, bus := range buses {
			_ = bus.Close()
		}
	}()

	bme280, err := i2csensors.NewBME280(openBus(), uint16(*bme280Addr))
	if err != nil {
		log.Fatalf("failed to initialize bme280: %s", err)
	}
	defer func() {
		_ = bme280.Halt()
	}()

	mcp9808, err := i2csensors.NewMCP9808(openBus(), uint16(*mcp9808Addr))
	if err != nil {
		log.Fatalf("failed to initialize mcp9808: %s", err)
	}

	sht31, err := i2csensors.NewSHT31(openBus(), uint16(*sht31Addr), *sht31Settle)
	if err != nil {
		log.Fatalf("failed to initialize sht31: %s", err)
	}

	sink := metrics.NewSink()
	st := station.New(sink, bme280, mcp9808, sht31, station.Options{
		Settle:   *settle,
		FailFast: *failFast,
		Relays:   relays,
	})

	go func() {
		// Expose the registered metrics via HTTP.
		srv := &http.Server{
			Addr:              *listenAddr,
			Handler:           metrics.NewRouter(program, sink),
			ReadHeaderTimeout: 10 * time.Second,
		}
		log.Infof("serving metrics on %s", *listenAddr)
		log.Panic(srv.ListenAndServe())
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := st.Run(ctx); err != nil {
		log.Fatalf("polling stopped: %s", err)
	}
	log.Infof("shutting down")
}
