package main

import (
	"github.com/baderanaas/hushmesh/pkg/httpapi"
	"github.com/baderanaas/hushmesh/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"
)

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "run a node behind the HTTP API",
	Flags: append([]cli.Flag{httpAddrFlag}, nodeFlags...),
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext(c.Context)
		defer cancel()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m, err := metrics.NewPrometheus(metrics.DefaultNamespace, reg)
		if err != nil {
			return err
		}

		node, _, err := startNode(ctx, cfg, m)
		if err != nil {
			return err
		}
		defer func() {
			if err := node.Close(); err != nil {
				log.Warnw("error closing node", "error", err)
			}
		}()

		return httpapi.New(node, reg).ListenAndServe(ctx, cfg.HTTPAddr)
	},
}
