package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var hardenCmd = &cobra.Command{
	Use:   "harden",
	Short: "Apply the configured SSH posture",
	Long: `Harden transitions the SSH daemon to the posture in bastion.yaml.

The live configuration is snapshotted first and the staged one is
validated with sshd -t before anything changes. When the posture moves
the listening port, both the old and the new port stay open in the
firewall until a real handshake against the new port succeeds; only
then is the old port retired. Any failure restores the snapshot.

Examples:
  bastion harden              # apply the posture, confirm interactively
  bastion harden --yes        # retire the old access path without asking`,
	RunE: runHarden,
}

func init() {
	rootCmd.AddCommand(hardenCmd)
}

func runHarden(cmd *cobra.Command, _ []string) error {
	engine, err := newEngine()
	if err != nil {
		return err
	}

	result, err := engine.HardenSSH(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("%s ssh posture committed (snapshot %s destroyed)\n",
		statusMark(true), result.Snapshot.ID)
	return nil
}

var firewallCmd = &cobra.Command{
	Use:   "firewall",
	Short: "Converge the firewall to the configured services",
	Long: `Firewall computes the target ruleset from the configured services plus
the SSH port and converges the live rules to it. The SSH port can never
be removed by this command; a snapshot of the prior ruleset is restored
if the access path stops answering afterwards.`,
	RunE: runFirewall,
}

func init() {
	rootCmd.AddCommand(firewallCmd)
}

func runFirewall(cmd *cobra.Command, _ []string) error {
	engine, err := newEngine()
	if err != nil {
		return err
	}

	result, err := engine.ConvergeFirewall(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("%s firewall ruleset committed (snapshot %s destroyed)\n",
		statusMark(true), result.Snapshot.ID)
	return nil
}
