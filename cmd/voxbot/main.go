package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/pflag"

	"github.com/m3rciful/voxbot/core/app"
	"github.com/m3rciful/voxbot/core/bootstrap"
	"github.com/m3rciful/voxbot/core/buildinfo"
	corecmd "github.com/m3rciful/voxbot/core/cmd"
	coreconfig "github.com/m3rciful/voxbot/core/config"
)

func main() {
	fs := pflag.NewFlagSet("voxbot", pflag.ExitOnError)
	configPath := fs.StringP("config", "c", "", "path to the YAML config (overrides CONFIG_PATH)")
	envFile := fs.String("env-file", ".env", "optional dotenv file loaded before the config")
	showVersion := fs.BoolP("version", "v", false, "print version and exit")
	_ = fs.Parse(os.Args[1:])

	if *showVersion {
		fmt.Println(buildinfo.Version)
		return
	}

	err := corecmd.Run(corecmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config/config.yaml",
		ConfigPath:        *configPath,
		EnvFile:           *envFile,
		LoadConfig:        coreconfig.Load,
		Bootstrap:         bootstrapApp,
	})
	if err != nil {
		log.Fatal(err)
	}
}

func bootstrapApp(ctx context.Context, cfg *coreconfig.Config) (corecmd.TelegramApp, error) {
	res, err := bootstrap.Run(ctx, bootstrap.Options{
		Config:  cfg,
		Seeders: []bootstrap.Seeder{bootstrap.CredentialSeeder(cfg.Speech.APIKeys)},
	})
	if err != nil {
		return nil, err
	}
	return app.New(cfg, res.Store, app.WithCloser(res.Close)), nil
}
