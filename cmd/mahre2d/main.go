/*
mahre2d - Battery capacity monitoring daemon
Copyright (C) 2026, the mahRe2 project

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"

	"github.com/fdm225/mahRe2/audio"
	"github.com/fdm225/mahRe2/battery"
	"github.com/fdm225/mahRe2/config"
	"github.com/fdm225/mahRe2/flightlog"
	"github.com/fdm225/mahRe2/groundlink"
	"github.com/fdm225/mahRe2/sensors"
)

var version = "<not set>"
var log = logrus.New()

type Args struct {
	ConfigFile string `arg:"-c,--config" help:"configuration file"`
	LogLevel   string `arg:"-l,--loglevel" default:"info" help:"Set the logging level (debug, info, warn, error)"`
}

func (Args) Version() string {
	return version
}

func procArgs() Args {
	args := Args{
		ConfigFile: config.DefaultConfigFile,
	}
	arg.MustParse(&args)
	return args
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "info":
		log.SetLevel(logrus.InfoLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
		log.Warn("Unknown log level, defaulting to info")
	}
}

// customFormatter defines a new logrus formatter.
type customFormatter struct{}

// Format builds the log message string from the log entry.
func (f *customFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	return []byte(fmt.Sprintf("[%s] %s\n", strings.ToUpper(entry.Level.String()), entry.Message)), nil
}

func main() {
	err := runMain()
	if err != nil {
		log.Fatal(err)
	}
}

func runMain() error {
	log.SetFormatter(new(customFormatter))
	args := procArgs()
	setLogLevel(args.LogLevel)

	log.Infof("Running version: %s", version)

	cfg, v, err := config.Load(args.ConfigFile)
	if err != nil {
		return err
	}

	ids, err := cfg.SensorIDs()
	if err != nil {
		return err
	}
	if cfg.Serial.Port == "" {
		return fmt.Errorf("no serial port configured")
	}
	src, err := sensors.OpenSerial(cfg.Serial.Port, cfg.Serial.Baud, ids, log)
	if err != nil {
		return err
	}
	defer src.Close()

	store, err := flightlog.Open(cfg.FlightLog)
	if err != nil {
		return err
	}
	defer store.Close()

	var sink battery.RecordSink = store
	if cfg.MQTT.Broker != "" {
		pub, err := groundlink.Connect(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.Topic, log)
		if err != nil {
			log.Errorf("ground link unavailable, flight log only: %v", err)
		} else {
			defer pub.Close()
			sink = &groundlink.Sink{Next: store, Publisher: pub, Log: log}
		}
	}

	var player battery.Player = audio.NullPlayer{}
	if cfg.Sound.Dir != "" {
		player = audio.NewExecPlayer(cfg.Sound.Dir, cfg.Sound.Player, log)
	}

	model := config.NewModelStore(cfg)
	monitor := battery.NewMonitor(cfg.Options(), model, src, player, sink, time.Now, log)

	config.Watch(v, log, func(next *config.Config) {
		model.Update(next)
		monitor.SetOptions(next.Options())
	})

	if err := startService(monitor); err != nil {
		return err
	}

	interval := time.Duration(cfg.TickIntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	log.Infof("Monitoring battery on %s every %s", cfg.Serial.Port, interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		monitor.Tick()
	}
	return nil
}
