package main

import (
	"log"

	corecmd "github.com/m3rciful/groupbot/core/cmd"
	"github.com/m3rciful/groupbot/internal/app"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yaml",
		LoadConfig:        app.LoadConfig,
		Bootstrap:         app.Bootstrap,
	})
	if err != nil {
		log.Fatalf("groupbot: %v", err)
	}
}
