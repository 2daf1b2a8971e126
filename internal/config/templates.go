package config

import (
	"fmt"
	"os"
	"strings"
)

const (
	KindEmvtap = "emvtap"
	KindScript = "script"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindEmvtap:
		return emvtapTemplate, nil
	case KindScript:
		return scriptTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const emvtapTemplate = `[reader]
driver = "pcsc"
name = ""
poll_interval = "200ms"
exchange_timeout = "2s"

# Overrides of the default terminal data, tag = value in hex.
[terminal]
9F1A = "0840"
5F2A = "0840"

[log]
level = "info"
json = false

[metrics]
addr = ":9464"
# Browser origins allowed to read the HTTP surface. Empty disables CORS.
cors_origins = []

# Span export: "none", "stdout" or "file" (requires path).
[tracing]
exporter = "none"
path = ""
pretty = false
`

// scriptTemplate is a single Visa style card answering one tap.
const scriptTemplate = `present = true
taps = 1

[[exchange]]
command = "00A404000E325041592E5359532E444446303100"
response = "6F29840E325041592E5359532E4444463031A517BF0C1461124F07A0000000031010500456495341870101 9000"

[[exchange]]
command = "00A4040007A000000003101000"
response = "6F178407A0000000031010A50C5004564953419F38039F6604 9000"

[[exchange]]
command = "80A80000068304*"
response = "770A82022000940418010100 9000"

[[exchange]]
command = "00B2011C00"
response = "701057084761739001010010 5F2403251231 9000"
`
