package main

import (
	"flag"
	"log"

	"github.com/rs/zerolog"

	"github.com/danmuck/emvtap/internal/config"
	"github.com/danmuck/emvtap/internal/transport"
)

func main() {
	kind := flag.String("kind", config.KindEmvtap, "config kind: emvtap|script")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind cmd path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		path := *input
		if path == "" {
			path = defaultPath(*kind)
		}

		switch *kind {
		case config.KindEmvtap:
			if _, err := config.Load(path); err != nil {
				log.Fatal(err)
			}
		case config.KindScript:
			s, err := transport.LoadScript(path, zerolog.Nop())
			if err != nil {
				log.Fatal(err)
			}
			log.Printf("%d scripted exchanges", len(s.Exchanges()))
		default:
			log.Fatalf("unknown kind: %s", *kind)
		}
		log.Printf("Validated %s config at %s", *kind, path)
		return
	}

	target := *output
	if target == "" {
		target = defaultPath(*kind)
	}

	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}

func defaultPath(kind string) string {
	switch kind {
	case config.KindEmvtap:
		return "cmd/emvtap/config.toml"
	case config.KindScript:
		return "cmd/emvtap/card.toml"
	default:
		log.Fatalf("unknown kind: %s", kind)
		return ""
	}
}
