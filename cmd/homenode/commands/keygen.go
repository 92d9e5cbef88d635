package commands

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/mosaicnetworks/homenode/src/crypto/keys"
	"github.com/mosaicnetworks/homenode/src/homenode"
	"github.com/mosaicnetworks/homenode/src/signer"
	"github.com/spf13/cobra"
)

var (
	privKeyFile           string
	pubKeyFile            string
	keyType               string
	defaultPrivateKeyFile = filepath.Join(_config.Home.DataDir, "priv_key")
	defaultPublicKeyFile  = filepath.Join(_config.Home.DataDir, "key.pub")
)

// NewKeygenCmd produces a KeygenCmd which create a key pair
func NewKeygenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create new key pair",
		RunE:  keygen,
	}

	AddKeygenFlags(cmd)

	return cmd
}

//AddKeygenFlags adds flags to the keygen command
func AddKeygenFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&privKeyFile, "priv", defaultPrivateKeyFile, "File where the private key will be written")
	cmd.Flags().StringVar(&pubKeyFile, "pub", defaultPublicKeyFile, "File where the profile id will be written")
	cmd.Flags().StringVar(&keyType, "type", _config.Home.KeyType, "Key type: ed25519, secp256k1 or dilithium3")
}

func keygen(cmd *cobra.Command, args []string) error {
	t, err := keys.ParseType(keyType)
	if err != nil {
		return err
	}

	key, err := homenode.Keygen(privKeyFile, t)
	if err != nil {
		return fmt.Errorf("Writing private key: %s", err)
	}

	fmt.Printf("Your private key has been saved to: %s\n", privKeyFile)

	s, err := signer.New(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(path.Dir(pubKeyFile), 0700); err != nil {
		return fmt.Errorf("Writing profile id: %s", err)
	}

	if err := os.WriteFile(pubKeyFile, []byte(s.ProfileID().String()), 0600); err != nil {
		return fmt.Errorf("Writing profile id: %s", err)
	}

	fmt.Printf("Your profile id, %s, has been saved to: %s\n", s.ProfileID(), pubKeyFile)

	return nil
}
