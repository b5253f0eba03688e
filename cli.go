package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cardium/cardium/pkg/card"
	"github.com/cardium/cardium/pkg/globalplatform"
	"github.com/cardium/cardium/pkg/keycard"
	"github.com/cardium/cardium/pkg/transport"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "cardium",
		Short:         "smart card management over PC/SC",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions = cobra.CompletionOptions{DisableDefaultCmd: true}
	root.PersistentFlags().StringP("reader", "r", "", "PC/SC reader name (default: first with a card)")

	root.AddCommand(newReadersCommand())
	root.AddCommand(newGPCommand())
	root.AddCommand(newKeycardCommand())
	return root
}

// withExecutor connects to the selected reader, runs fn and tears the
// card session down afterwards.
func withExecutor(cmd *cobra.Command, fn func(*card.Executor) error) error {
	reader, _ := cmd.Flags().GetString("reader")
	if reader == "" {
		readers, err := transport.ListReaders()
		if err != nil {
			return err
		}
		if len(readers) == 0 {
			return fmt.Errorf("no PC/SC readers found")
		}
		reader = readers[0]
	}

	tr, err := transport.Connect(reader, transport.DefaultConfig())
	if err != nil {
		return fmt.Errorf("connecting to %q: %w", reader, err)
	}

	exec := card.NewExecutor(tr)
	defer exec.Close()
	return fn(exec)
}

func newReadersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "readers",
		Short: "list PC/SC readers",
		RunE: func(cmd *cobra.Command, args []string) error {
			readers, err := transport.ListReaders()
			if err != nil {
				return err
			}
			for _, r := range readers {
				cmd.Println(r)
			}
			return nil
		},
	}
}

// --- GlobalPlatform card management ---

func newGPCommand() *cobra.Command {
	gp := &cobra.Command{
		Use:   "gp",
		Short: "GlobalPlatform card content management",
	}
	gp.PersistentFlags().String("key", "404142434445464748494a4b4c4d4e4f", "SCP02 static key (hex, used for ENC and MAC)")

	gp.AddCommand(newGPListCommand())
	gp.AddCommand(newGPInstallCommand())
	gp.AddCommand(newGPDeleteCommand())
	return gp
}

func gpKeys(cmd *cobra.Command) (globalplatform.Keys, error) {
	raw, _ := cmd.Flags().GetString("key")
	b, err := hex.DecodeString(raw)
	if err != nil || len(b) != 16 {
		return globalplatform.Keys{}, fmt.Errorf("key must be 16 hex-encoded bytes")
	}
	var key globalplatform.Key
	copy(key[:], b)
	return globalplatform.KeysFromSingleKey(key), nil
}

func openCardManager(cmd *cobra.Command, exec *card.Executor) (*globalplatform.GlobalPlatform, error) {
	keys, err := gpKeys(cmd)
	if err != nil {
		return nil, err
	}
	gp := globalplatform.New(exec, keys)
	if _, err := gp.SelectCardManager(); err != nil {
		return nil, fmt.Errorf("selecting card manager: %w", err)
	}
	return gp, nil
}

func newGPListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list applications and load files in the card registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withExecutor(cmd, func(exec *card.Executor) error {
				gp, err := openCardManager(cmd, exec)
				if err != nil {
					return err
				}

				apps, err := gp.ListApplications()
				if err != nil {
					return err
				}
				cmd.Println("Applications:")
				for _, app := range apps {
					cmd.Printf("  %X  lifecycle %X  privileges %X\n", app.AID, app.Lifecycle, app.Privileges)
				}

				files, err := gp.ListLoadFiles()
				if err != nil {
					return err
				}
				cmd.Println("Load files:")
				for _, f := range files {
					cmd.Printf("  %X  lifecycle %X\n", f.AID, f.Lifecycle)
					for _, mod := range f.Modules {
						cmd.Printf("    module %X\n", mod)
					}
				}
				return nil
			})
		},
	}
}

func newGPInstallCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install <file.cap>",
		Short: "load a CAP file and instantiate its first applet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			instantiate, _ := cmd.Flags().GetBool("instantiate")

			return withExecutor(cmd, func(exec *card.Executor) error {
				gp, err := openCardManager(cmd, exec)
				if err != nil {
					return err
				}

				progress := func(done, total int) {
					cmd.Printf("\rloading block %d/%d", done, total)
					if done == total {
						cmd.Println()
					}
				}
				if err := gp.LoadCAP(args[0], nil, progress); err != nil {
					return err
				}

				if !instantiate {
					return nil
				}
				info, err := readCAPInfo(args[0])
				if err != nil {
					return err
				}
				if len(info.AppletAIDs) == 0 {
					return fmt.Errorf("CAP file declares no applets")
				}
				applet := info.AppletAIDs[0]
				if err := gp.InstallForInstall(info.PackageAID, applet, applet, nil); err != nil {
					return err
				}
				cmd.Printf("installed %X\n", applet)
				return nil
			})
		},
	}
	cmd.Flags().Bool("instantiate", true, "run INSTALL [for install] for the first applet in the CAP")
	return cmd
}

func readCAPInfo(path string) (*globalplatform.CAPInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return globalplatform.ExtractCAPInfo(f, stat.Size())
}

func newGPDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <aid-hex>",
		Short: "delete an object and everything related to it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			aid, err := hex.DecodeString(args[0])
			if err != nil {
				return fmt.Errorf("AID must be hex encoded")
			}
			return withExecutor(cmd, func(exec *card.Executor) error {
				gp, err := openCardManager(cmd, exec)
				if err != nil {
					return err
				}
				return gp.DeleteAndRelated(aid)
			})
		},
	}
}

// --- Keycard applet ---

func newKeycardCommand() *cobra.Command {
	kc := &cobra.Command{
		Use:   "keycard",
		Short: "Keycard applet operations",
	}
	kc.PersistentFlags().String("pairing-key", "", "persisted pairing key (hex)")
	kc.PersistentFlags().Uint8("pairing-index", 0, "persisted pairing slot index")
	kc.PersistentFlags().String("pin", "", "PIN for protected operations")

	kc.AddCommand(newKeycardInfoCommand())
	kc.AddCommand(newKeycardInitCommand())
	kc.AddCommand(newKeycardPairCommand())
	kc.AddCommand(newKeycardUnpairCommand())
	kc.AddCommand(newKeycardStatusCommand())
	kc.AddCommand(newKeycardSignCommand())
	return kc
}

// openKeycard selects the applet and, when pairing credentials were
// given, installs them so protected commands can open the channel.
func openKeycard(cmd *cobra.Command, exec *card.Executor) (*keycard.Keycard, error) {
	k := keycard.New(exec)
	if _, err := k.Select(); err != nil {
		return nil, fmt.Errorf("selecting Keycard applet: %w", err)
	}

	rawKey, _ := cmd.Flags().GetString("pairing-key")
	if rawKey == "" {
		return k, nil
	}
	b, err := hex.DecodeString(rawKey)
	if err != nil || len(b) != 32 {
		return nil, fmt.Errorf("pairing key must be 32 hex-encoded bytes")
	}

	index, _ := cmd.Flags().GetUint8("pairing-index")
	pairing := keycard.PairingInfo{Index: index}
	copy(pairing.Key[:], b)
	k.SetPairing(pairing)
	return k, nil
}

// verifyPIN runs VERIFY PIN when a --pin was given, upgrading the
// channel for commands that need an authenticated session.
func verifyPIN(cmd *cobra.Command, k *keycard.Keycard) error {
	pin, _ := cmd.Flags().GetString("pin")
	if pin == "" {
		return nil
	}
	return k.VerifyPIN(pin)
}

func newKeycardInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "print applet information",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withExecutor(cmd, func(exec *card.Executor) error {
				k := keycard.New(exec)
				result, err := k.Select()
				if err != nil {
					return err
				}
				if !result.Initialized() {
					cmd.Println("card is not initialized")
					return nil
				}
				cmd.Println(result.Info.Verbose())
				return nil
			})
		},
	}
}

func newKeycardInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "initialize a factory-fresh card",
		RunE: func(cmd *cobra.Command, args []string) error {
			pin, _ := cmd.Flags().GetString("new-pin")
			puk, _ := cmd.Flags().GetString("new-puk")
			password, _ := cmd.Flags().GetString("pairing-password")
			if pin == "" || puk == "" || password == "" {
				return fmt.Errorf("--new-pin, --new-puk and --pairing-password are required")
			}

			return withExecutor(cmd, func(exec *card.Executor) error {
				k := keycard.New(exec)
				if _, err := k.Select(); err != nil {
					return err
				}
				return k.Init(pin, puk, password)
			})
		},
	}
	cmd.Flags().String("new-pin", "", "initial PIN")
	cmd.Flags().String("new-puk", "", "initial PUK")
	cmd.Flags().String("pairing-password", "", "initial pairing password")
	return cmd
}

func newKeycardPairCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pair",
		Short: "claim a pairing slot",
		RunE: func(cmd *cobra.Command, args []string) error {
			password, _ := cmd.Flags().GetString("pairing-password")
			if password == "" {
				return fmt.Errorf("--pairing-password is required")
			}

			return withExecutor(cmd, func(exec *card.Executor) error {
				k := keycard.New(exec)
				if _, err := k.Select(); err != nil {
					return err
				}
				pairing, err := k.Pair(password)
				if err != nil {
					return err
				}
				cmd.Printf("pairing key: %x\n", pairing.Key[:])
				cmd.Printf("pairing index: %d\n", pairing.Index)
				return nil
			})
		},
	}
	cmd.Flags().String("pairing-password", "", "pairing password")
	return cmd
}

func newKeycardUnpairCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unpair",
		Short: "release the pairing slot given by --pairing-index",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withExecutor(cmd, func(exec *card.Executor) error {
				k, err := openKeycard(cmd, exec)
				if err != nil {
					return err
				}
				if err := verifyPIN(cmd, k); err != nil {
					return err
				}
				index, _ := cmd.Flags().GetUint8("pairing-index")
				return k.Unpair(index)
			})
		},
	}
}

func newKeycardStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "print retry counters and key state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withExecutor(cmd, func(exec *card.Executor) error {
				k, err := openKeycard(cmd, exec)
				if err != nil {
					return err
				}
				status, err := k.GetStatus()
				if err != nil {
					return err
				}
				cmd.Printf("PIN retries: %d\n", status.PINRetryCount)
				cmd.Printf("PUK retries: %d\n", status.PUKRetryCount)
				cmd.Printf("key initialized: %t\n", status.KeyInitialized)
				return nil
			})
		},
	}
}

func newKeycardSignCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign <hash-hex>",
		Short: "sign a 32-byte hash with the active key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := hex.DecodeString(args[0])
			if err != nil || len(raw) != 32 {
				return fmt.Errorf("hash must be 32 hex-encoded bytes")
			}
			var hash [32]byte
			copy(hash[:], raw)

			path, _ := cmd.Flags().GetString("path")

			return withExecutor(cmd, func(exec *card.Executor) error {
				k, err := openKeycard(cmd, exec)
				if err != nil {
					return err
				}
				if err := verifyPIN(cmd, k); err != nil {
					return err
				}

				var sig *keycard.Signature
				if path == "" {
					sig, err = k.Sign(hash)
				} else {
					sig, err = k.SignWithPath(hash, path, false)
				}
				if err != nil {
					return err
				}
				cmd.Printf("r: %x\ns: %x\npublic key: %x\n", sig.R[:], sig.S[:], sig.PublicKey)
				return nil
			})
		},
	}
	cmd.Flags().String("path", "", "derivation path to sign with (default: active key)")
	return cmd
}
