package main

import (
	"fmt"
	"os"

	"github.com/danmuck/convoctl/internal/config"
	"github.com/danmuck/convoctl/internal/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func defaultPath(kind string) (string, error) {
	switch kind {
	case config.KindRuntime:
		return "convoctl.toml", nil
	case config.KindProfile:
		return "profile.toml", nil
	default:
		return "", fmt.Errorf("unknown kind: %s", kind)
	}
}

func main() {
	logging.ConfigureRuntime()

	fs := pflag.NewFlagSet("configgen", pflag.ExitOnError)
	kind := fs.String("kind", config.KindRuntime, "config kind: runtime|profile")
	output := fs.String("output", "", "output path for config template")
	validate := fs.Bool("validate", false, "validate an existing config file")
	input := fs.String("input", "", "config path for validation (defaults to per-kind path)")
	force := fs.Bool("force", false, "overwrite existing config file")
	_ = fs.Parse(os.Args[1:])

	if *validate {
		path := *input
		if path == "" {
			p, err := defaultPath(*kind)
			if err != nil {
				log.Fatal().Err(err).Send()
			}
			path = p
		}
		if err := config.Validate(path, *kind); err != nil {
			log.Fatal().Err(err).Str("kind", *kind).Str("path", path).Msg("config invalid")
		}
		log.Info().Str("kind", *kind).Str("path", path).Msg("validated config")
		return
	}

	target := *output
	if target == "" {
		p, err := defaultPath(*kind)
		if err != nil {
			log.Fatal().Err(err).Send()
		}
		target = p
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal().Err(err).Send()
	}
	log.Info().Str("kind", *kind).Str("path", target).Msg("wrote config template")
}
