package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alwitt/visitsync/encryption"
	"github.com/spf13/cobra"
)

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Device key pair management",
}

var (
	deviceCommonName string
	deviceValidFor   time.Duration
)

var deviceInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the device key pair",
	Long: `Generate the device RSA key pair protecting the local encryption key, writing the
certificate to crypto.certFile and the private key to crypto.keyFile.

Existing files are never overwritten: losing the key pair makes the stored visits
unreadable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		certFile := appConfig.Crypto.CertFile
		keyFile := appConfig.Crypto.KeyFile

		for _, dir := range []string{filepath.Dir(certFile), filepath.Dir(keyFile)} {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return fmt.Errorf("failed to create %s [%w]", dir, err)
			}
		}

		if err := encryption.GenerateDeviceRSAKeyPair(
			certFile, keyFile, deviceCommonName, deviceValidFor,
		); err != nil {
			return err
		}

		fmt.Printf("%s Device key pair written\n", passStyle.Render("✓"))
		fmt.Printf("   Certificate: %s\n", certFile)
		fmt.Printf("   Private key: %s\n", keyFile)
		return nil
	},
}

func init() {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "visitsync-device"
	}
	deviceInitCmd.Flags().StringVar(&deviceCommonName, "cn", hostname, "certificate common name")
	deviceInitCmd.Flags().DurationVar(
		&deviceValidFor, "valid-for", time.Hour*24*365*10, "certificate validity",
	)
	deviceCmd.AddCommand(deviceInitCmd)
	rootCmd.AddCommand(deviceCmd)
}
