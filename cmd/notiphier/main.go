// notiphier relays Phabricator firehose webhooks to Slack.
//
// Usage:
//
//	notiphier serve --config /etc/notiphier/config.yaml
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "notiphier",
		Short:   "Phabricator to Slack notifier",
		Long:    "notiphier receives Phabricator firehose webhooks and relays human-readable notifications to Slack channels.",
		Version: version,
	}

	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
