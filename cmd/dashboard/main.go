// The dashboard command wires the polling core to a serial bus gateway (or
// the built-in fake for demo use) and runs the terminal dashboard over it.
package main

import (
	"os"
	"time"

	"github.com/benbjohnson/clock"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/edaniels/golog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"github.com/grovedash/grovedash/channel"
	"github.com/grovedash/grovedash/gateway"
	"github.com/grovedash/grovedash/health"
	"github.com/grovedash/grovedash/metrics"
	"github.com/grovedash/grovedash/scheduler"
	"github.com/grovedash/grovedash/state"
	"github.com/grovedash/grovedash/tui"
)

func main() {
	logger := golog.NewDevelopmentLogger("dashboard")
	app := &cli.App{
		Name:  "dashboard",
		Usage: "live sensor dashboard over a shared GrovePi-class bus",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "channel table config file (JSON5); defaults to the stock starter kit wiring",
			},
			&cli.StringFlag{
				Name:  "port",
				Usage: "serial port of the bus firmware",
				Value: "/dev/ttyACM0",
			},
			&cli.BoolFlag{
				Name:  "fake",
				Usage: "use the built-in fake gateway instead of real hardware",
			},
		},
		Action: func(c *cli.Context) error {
			return run(c, logger)
		},
	}
	if err := app.Run(os.Args); err != nil {
		logger.Fatal(err)
	}
}

func run(c *cli.Context, logger golog.Logger) (err error) {
	cfg := channel.DefaultConfig()
	if path := c.String("config"); path != "" {
		if cfg, err = channel.ReadConfig(path); err != nil {
			return err
		}
	}
	reg, err := channel.NewRegistry(cfg.Descriptors())
	if err != nil {
		return err
	}

	var gw gateway.Gateway
	if c.Bool("fake") {
		gw = demoGateway(reg)
	} else {
		if gw, err = gateway.NewSerialGateway(c.String("port"), logger); err != nil {
			return err
		}
	}
	defer func() {
		err = multierr.Combine(err, gw.Close())
	}()

	clk := clock.New()
	store := state.NewStore(cfg.HistoryCapacity, logger)
	tracker := health.NewTracker(policyFromConfig(cfg.Health), clk, logger)
	m := metrics.New(prometheus.DefaultRegisterer)

	sched := scheduler.New(gw, reg, store, tracker, m, clk, scheduler.Config{}, logger)
	sched.Start()
	defer func() {
		err = multierr.Combine(err, sched.Close())
	}()

	p := tea.NewProgram(tui.New(store, sched, reg, tracker))
	goutils.PanicCapturingGo(func() {
		<-sched.Fatal()
		p.Send(tui.FatalMsg{})
	})
	_, err = p.Run()
	return err
}

func policyFromConfig(hc channel.HealthConfig) health.Policy {
	p := health.DefaultPolicy()
	if hc.FailureThreshold > 0 {
		p.FailureThreshold = hc.FailureThreshold
	}
	if hc.BackoffCapMs > 0 {
		p.BackoffCap = time.Duration(hc.BackoffCapMs) * time.Millisecond
	}
	if hc.CooldownMs > 0 {
		p.Cooldown = time.Duration(hc.CooldownMs) * time.Millisecond
	}
	return p
}

// demoGateway seeds the fake with plausible bench values.
func demoGateway(reg *channel.Registry) *gateway.FakeGateway {
	gw := gateway.NewFakeGateway()
	for _, d := range reg.All() {
		switch d.Kind {
		case channel.KindDHT:
			gw.SetDHT(d.Port(), 23.5, 48)
		case channel.KindAnalogIn:
			gw.SetAnalog(d.Port(), 512)
		case channel.KindUltrasonic:
			gw.SetUltrasonic(d.Port(), 5800) // ~100cm
		}
	}
	return gw
}
