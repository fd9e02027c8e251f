package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.vocdoni.io/zkballot/config"
	"go.vocdoni.io/zkballot/transaction"
	"go.vocdoni.io/zkballot/util"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Election admin operations.",
}

var addCandidateCmd = &cobra.Command{
	Use:   "add-candidate <admin keyfile> <name> [description]",
	Short: "Add a candidate. Only allowed before voting starts.",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		signer, err := openKeyfile(args[0], "Please unlock the admin key: ")
		if err != nil {
			return err
		}
		tx := &transaction.AddCandidateTx{Name: args[1]}
		if len(args) == 3 {
			tx.Description = args[2]
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		c.SetAccount(signer)
		res, err := c.SubmitTx(&transaction.Tx{
			Type:         transaction.TxAddCandidate,
			Nonce:        util.RandomBytes(8),
			AddCandidate: tx,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(Stdout, "candidate %d added at block %d\n", *res.Response.CandidateID, res.Height)
		return nil
	},
}

var setPeriodCmd = &cobra.Command{
	Use:   "set-period <admin keyfile> <registrationStart> <registrationEnd> <votingStart> <votingEnd>",
	Short: "Set the registration and voting periods, as RFC 3339 dates.",
	Args:  cobra.ExactArgs(5),
	RunE: func(cmd *cobra.Command, args []string) error {
		periods := &config.GenesisPeriods{
			RegistrationStart: args[1],
			RegistrationEnd:   args[2],
			VotingStart:       args[3],
			VotingEnd:         args[4],
		}
		w, err := periods.Window()
		if err != nil {
			return err
		}
		signer, err := openKeyfile(args[0], "Please unlock the admin key: ")
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		c.SetAccount(signer)
		res, err := c.SubmitTx(&transaction.Tx{
			Type:            transaction.TxSetVotingPeriod,
			Nonce:           util.RandomBytes(8),
			SetVotingPeriod: transaction.NewSetVotingPeriodTx(w),
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(Stdout, "voting period %s set at block %d\n", w, res.Height)
		return nil
	},
}
