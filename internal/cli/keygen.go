package cli

import (
	"flag"
	"fmt"
	"ipdrexporter/internal/global"
	"ipdrexporter/internal/seal"
	"os"
)

// Prints a new key pair. The private key can also be written to a file.
func KeygenMode(commandname string, args []string) {
	var privateKeyFile string
	commandFlags := flag.NewFlagSet(commandname, flag.ExitOnError)
	commandFlags.StringVar(&privateKeyFile, "o", "", "Write the private key to this file instead of stdout")
	commandFlags.StringVar(&privateKeyFile, "output", "", "Write the private key to this file instead of stdout")

	commandFlags.Usage = func() {
		PrintHelpMenu(commandFlags, commandname, global.CmdOpts)
	}
	commandFlags.Parse(args)

	err := writeKeyPair(privateKeyFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func writeKeyPair(privateKeyFile string) (err error) {
	private, public, err := seal.GenerateKey()
	if err != nil {
		return
	}

	if privateKeyFile == "" {
		fmt.Printf("Private Key: %s\n", seal.EncodeKey(private))
	} else {
		err = os.WriteFile(privateKeyFile, []byte(seal.EncodeKey(private)+"\n"), 0o600)
		if err != nil {
			err = fmt.Errorf("failed writing private key: %w", err)
			return
		}
	}
	fmt.Printf("Public Key:  %s\n", seal.EncodeKey(public))
	return
}
