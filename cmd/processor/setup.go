package main

import (
	"strings"

	"github.com/marcazamora/corpusdex/pkg/config"
)

func loadConfig(path string) (*config.Config, error) {
	return config.Load(path)
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
