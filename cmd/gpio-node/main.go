// Command gpio-node exposes GPIO outputs and buttons as cloud-managed device
// params over MQTT.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
