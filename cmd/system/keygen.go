package system

import (
	"fmt"

	paseto "aidanwoods.dev/go-paseto"
	"github.com/spf13/cobra"
)

func NewKeygenCommand() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate PASETO key material for the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch mode {
			case "local":
				k := paseto.NewV4SymmetricKey()
				fmt.Println("local_key_hex:", k.ExportHex())
			case "public":
				sk := paseto.NewV4AsymmetricSecretKey()
				fmt.Println("secret_key_hex:", sk.ExportHex())
				fmt.Println("public_key_hex:", sk.Public().ExportHex())
			default:
				return fmt.Errorf("unknown mode %q (use local|public)", mode)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "local", "key mode: local (symmetric) or public (Ed25519)")

	return cmd
}
