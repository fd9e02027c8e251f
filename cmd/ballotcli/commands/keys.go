package commands

import (
	"bufio"
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	ethkeystore "github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.vocdoni.io/zkballot/crypto/ethereum"
)

const keyExt = ".key"

var (
	scryptN = ethkeystore.StandardScryptN
	scryptP = ethkeystore.StandardScryptP
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Create, import and list keys.",
	Long: `Keys identify voters and the election admin. They are stored on disk
	encrypted, in go-ethereum's JSON format.`,
}

var keysNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Generate a new key and save it in go-ethereum's JSON format.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pass, err := PromptPassword("Your new key file will be locked with a password. Please give a password: ")
		if err != nil {
			return err
		}
		privKey, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
		if err != nil {
			return err
		}
		keyPath, err := storeKey(privKey, pass)
		if err != nil {
			return fmt.Errorf("couldn't store the new key: %w", err)
		}
		fmt.Fprintf(Stdout, "Public address of the key:   %s\n", crypto.PubkeyToAddress(privKey.PublicKey).Hex())
		fmt.Fprintf(Stdout, "Path of the secret key file: %s\n", keyPath)
		fmt.Fprintf(Stdout, "- As usual, please BACKUP your key file and REMEMBER your password!\n")
		return nil
	},
}

var keysImportCmd = &cobra.Command{
	Use:   "import <keyfile>",
	Short: "Reads a plain file containing a private key (hexstring) and stores it encrypted.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		privKey, err := crypto.LoadECDSA(args[0])
		if err != nil {
			return fmt.Errorf("failed to load the private key: %w", err)
		}
		pass, err := PromptPassword("Your imported key will be locked with a password. Please give a password: ")
		if err != nil {
			return err
		}
		keyPath, err := storeKey(privKey, pass)
		if err != nil {
			return err
		}
		fmt.Fprintf(Stdout, "Key for %s imported to %s\n", crypto.PubkeyToAddress(privKey.PublicKey).Hex(), keyPath)
		return nil
	},
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the key files in the keys directory.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := filepath.Glob(filepath.Join(keysDir(), "*"+keyExt))
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Fprintf(Stdout, "%s\t%s\n", strings.TrimSuffix(filepath.Base(f), keyExt), f)
		}
		return nil
	},
}

func keysDir() string {
	return filepath.Join(home, "keys")
}

func storeKey(privKey *ecdsa.PrivateKey, pass string) (string, error) {
	k := &ethkeystore.Key{
		Id:         uuid.New(),
		Address:    crypto.PubkeyToAddress(privKey.PublicKey),
		PrivateKey: privKey,
	}
	keyJSON, err := ethkeystore.EncryptKey(k, pass, scryptN, scryptP)
	if err != nil {
		return "", err
	}
	keyPath := filepath.Join(keysDir(), k.Address.Hex()+keyExt)
	return keyPath, writeKeyFile(keyPath, keyJSON)
}

func writeKeyFile(filename string, k []byte) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o700); err != nil {
		return err
	}
	return os.WriteFile(filename, k, 0o600)
}

// openKeyfile decrypts a key file. A bare address is looked up in the keys
// directory.
func openKeyfile(path, prompt string) (*ethereum.SignKeys, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path = filepath.Join(keysDir(), path+keyExt)
	}
	keyJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pass, err := PromptPassword(prompt)
	if err != nil {
		return nil, err
	}
	k, err := ethkeystore.DecryptKey(keyJSON, pass)
	if err != nil {
		return nil, fmt.Errorf("couldn't decrypt the key with given password: %w", err)
	}
	signer := ethereum.NewSignKeys()
	signer.Private = *k.PrivateKey
	signer.Public = k.PrivateKey.PublicKey
	return signer, nil
}

// PromptPassword asks the user for a password, but if one was specified through
// the --password argument, it simply returns that variable without printing
// anything
func PromptPassword(prompt string) (string, error) {
	if password != "" {
		return password, nil
	}
	fmt.Fprint(Stdout, prompt)
	p, err := bufio.NewReader(Stdin).ReadString('\n')
	fmt.Fprintln(Stdout, "")
	if err != nil {
		return "", err
	}
	return strings.TrimRight(p, "\r\n"), nil
}
