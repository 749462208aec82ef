// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/tankcore/internal/app"
	"github.com/relabs-tech/tankcore/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to a KEY=VALUE config file (defaults applied if omitted)")
	flag.Parse()

	log.Println("starting tankcore control server")

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunTank(config.Get()); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
