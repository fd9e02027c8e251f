package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.vocdoni.io/zkballot/crypto/zk/verifier"
	"go.vocdoni.io/zkballot/crypto/zk/witness"
	"go.vocdoni.io/zkballot/transaction"
	"go.vocdoni.io/zkballot/types"
	"go.vocdoni.io/zkballot/util"
)

var secretCmd = &cobra.Command{
	Use:   "secret <keyfile>",
	Short: "Print the voting secret derived from a key, with its commitment and nullifier hash.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		signer, err := openKeyfile(args[0], "Please unlock your key: ")
		if err != nil {
			return err
		}
		in, err := witness.NewCircuitInputs(witness.SecretFromSignKeys(signer), 0)
		if err != nil {
			return err
		}
		return printJSON(map[string]*types.BigInt{
			"secret":        in.Secret,
			"commitment":    in.Commitment,
			"nullifierHash": in.NullifierHash,
		})
	},
}

var inputsCmd = &cobra.Command{
	Use:   "inputs <keyfile> <candidate>",
	Short: "Print the circuit inputs to prove a vote for candidate.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		candidate, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid candidate %q: %w", args[1], err)
		}
		signer, err := openKeyfile(args[0], "Please unlock your key: ")
		if err != nil {
			return err
		}
		data, err := witness.Inputs(witness.SecretFromSignKeys(signer), uint32(candidate))
		if err != nil {
			return err
		}
		fmt.Fprintln(Stdout, string(data))
		return nil
	},
}

var registerCmd = &cobra.Command{
	Use:   "register <keyfile>",
	Short: "Register the commitment of the voting secret derived from a key.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		signer, err := openKeyfile(args[0], "Please unlock your key: ")
		if err != nil {
			return err
		}
		commitment, err := witness.Commitment(witness.SecretFromSignKeys(signer))
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		c.SetAccount(signer)
		res, err := c.SubmitTx(&transaction.Tx{
			Type:          transaction.TxRegisterVoter,
			Nonce:         util.RandomBytes(8),
			RegisterVoter: &transaction.RegisterVoterTx{Commitment: commitment.FieldBytes()},
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(Stdout, "voter %s registered at block %d\n", signer.Address().Hex(), res.Height)
		return nil
	},
}

var voteCmd = &cobra.Command{
	Use:   "vote <proof.json> <public.json>",
	Short: "Cast an anonymous vote with a snarkjs proof and its public signals.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		proofData, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		proof, err := verifier.ParseProof(proofData)
		if err != nil {
			return err
		}
		signalsData, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}
		signals, err := verifier.ParsePubSignals(signalsData)
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		res, err := c.SubmitTx(&transaction.Tx{
			Type:     transaction.TxCastVote,
			CastVote: &transaction.CastVoteTx{Proof: proof, PubSignals: signals},
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(Stdout, "vote for candidate %d accepted at block %d\n", res.Response.Vote.CandidateID, res.Height)
		return nil
	},
}

var candidatesCmd = &cobra.Command{
	Use:   "candidates",
	Short: "List the candidates and their votes.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		cands, err := c.Candidates()
		if err != nil {
			return err
		}
		for _, cand := range cands.Candidates {
			fmt.Fprintf(Stdout, "%d\t%s\t%d\t%s\n", cand.ID, cand.Name, cand.VoteCount, cand.Description)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the election summary and its current phase.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		info, err := c.Info()
		if err != nil {
			return err
		}
		p, err := c.Phase()
		if err != nil {
			return err
		}
		return printJSON(map[string]any{"info": info, "phase": p})
	},
}

var txCmd = &cobra.Command{
	Use:   "tx <hash>",
	Short: "Show a delivered transaction.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := types.HexStringToHexBytes(args[0])
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		tx, err := c.Transaction(hash)
		if err != nil {
			return err
		}
		return printJSON(tx)
	},
}
