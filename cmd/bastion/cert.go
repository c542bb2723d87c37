package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var certCmd = &cobra.Command{
	Use:   "cert",
	Short: "Manage certificate material for the configured domain",
}

var certPublicIP string

var certIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Obtain a certificate through the system ACME client",
	Long: `Issue verifies that the configured domain resolves to this host's own
public address, then serves the ACME challenge behind a firewall rule
that exists only for the duration of the challenge. A domain that
points elsewhere fails before any port is opened.

Examples:
  bastion cert issue
  bastion cert issue --public-ip 203.0.113.7   # skip address discovery`,
	RunE: runCertIssue,
}

var certRenewCmd = &cobra.Command{
	Use:   "renew",
	Short: "Renew the certificate if it is close to expiry",
	RunE:  runCertRenew,
}

var certStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current certificate material",
	RunE:  runCertStatus,
}

func init() {
	certIssueCmd.Flags().StringVar(&certPublicIP, "public-ip", "",
		"this host's public address (skips discovery)")

	certCmd.AddCommand(certIssueCmd)
	certCmd.AddCommand(certRenewCmd)
	certCmd.AddCommand(certStatusCmd)
	rootCmd.AddCommand(certCmd)
}

func runCertIssue(cmd *cobra.Command, _ []string) error {
	engine, err := newEngine()
	if err != nil {
		return err
	}

	record, err := engine.IssueCertificate(cmd.Context(), certPublicIP)
	if err != nil {
		return err
	}

	fmt.Printf("%s certificate issued for %s\n", statusMark(true), record.Domain)
	fmt.Printf("  valid until: %s\n", record.NotAfter.Format("2006-01-02"))
	fmt.Printf("  fullchain:   %s\n", record.FullchainPath)
	return nil
}

func runCertRenew(cmd *cobra.Command, _ []string) error {
	engine, err := newEngine()
	if err != nil {
		return err
	}

	renewed, err := engine.RenewCertificate(cmd.Context())
	if err != nil {
		return err
	}

	if renewed {
		fmt.Printf("%s certificate renewed\n", statusMark(true))
	} else {
		fmt.Println(styleMuted.Render("certificate not yet due for renewal"))
	}
	return nil
}

func runCertStatus(cmd *cobra.Command, _ []string) error {
	engine, err := newEngine()
	if err != nil {
		return err
	}

	record, err := engine.CertificateStatus(cmd.Context())
	if err != nil {
		return err
	}

	remaining := time.Until(record.NotAfter).Round(time.Hour)
	fmt.Printf("%s  %s\n", styleTitle.Render("Certificate"), record.Domain)
	fmt.Printf("  issued:     %s\n", record.IssuedAt.Format("2006-01-02"))
	fmt.Printf("  expires:    %s (%s left)\n", record.NotAfter.Format("2006-01-02"), remaining)
	fmt.Printf("  fullchain:  %s\n", record.FullchainPath)
	fmt.Printf("  privkey:    %s\n", record.PrivkeyPath)
	return nil
}
