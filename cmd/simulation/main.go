package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/database"
	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/engine"
	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/export"
	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/ledger"
	"github.com/MatthiasCiers/Agent-Based-Simulator/internal/types"
)

const (
	numInstitutions = 4
	securityType    = "BOND"

	initiationProbability = 0.10
	cancelProbability     = 0.05
	policyFlipProbability = 0.02
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// institutionAgent emits random transactions, cancellations and policy flips
// for one institution. It participates in the per-tick scheduling alongside
// the pipeline stages.
type institutionAgent struct {
	id        string
	accountID string
	engine    *engine.Engine
	rng       *rand.Rand
	peers     []*institutionAgent

	submitted []string
}

func (a *institutionAgent) Name() string { return a.id }

func (a *institutionAgent) Step(tick int) {
	// Occasionally flip the partial-settlement policy mid-run.
	if a.rng.Float64() < policyFlipProbability {
		inst, err := a.engine.Registry().Get(a.id)
		if err == nil {
			if inst.AllowPartial {
				_ = a.engine.Registry().OptOutPartial(a.id)
			} else {
				_ = a.engine.Registry().OptInPartial(a.id)
			}
		}
	}

	// Occasionally cancel one of our still-live transactions.
	if a.rng.Float64() < cancelProbability {
		if transactionID := a.pickPending(); transactionID != "" {
			if _, err := a.engine.SubmitCancellation(transactionID, a.id); err == nil {
				log.Info().
					Str("institution", a.id).
					Str("transaction_id", transactionID).
					Int("tick", tick).
					Msg("cancellation issued")
			}
		}
	}

	if a.rng.Float64() >= initiationProbability {
		return
	}

	counterparty := a.peers[a.rng.Intn(len(a.peers))]
	quantity := float64(a.rng.Intn(100) + 1)
	price := float64(a.rng.Intn(90)+10) + a.rng.Float64()

	transactionID, err := a.engine.SubmitTransaction(engine.TransactionRequest{
		SecurityType: securityType,
		Quantity:     quantity,
		Price:        price,
		Buyer:        engine.PartyRef{Institution: a.id, Account: a.accountID},
		Seller:       engine.PartyRef{Institution: counterparty.id, Account: counterparty.accountID},
	})
	if err != nil {
		log.Error().Err(err).Str("institution", a.id).Msg("failed to submit transaction")
		return
	}
	a.submitted = append(a.submitted, transactionID)

	log.Info().
		Str("institution", a.id).
		Str("counterparty", counterparty.id).
		Str("transaction_id", transactionID).
		Float64("quantity", quantity).
		Float64("price", price).
		Int("tick", tick).
		Msg("transaction initiated")
}

// pickPending returns one of the agent's transactions that is still live, or
// empty.
func (a *institutionAgent) pickPending() string {
	var pending []string
	for _, transactionID := range a.submitted {
		for _, instr := range a.engine.Store().TransactionInstructions(transactionID) {
			if !instr.Terminal() {
				pending = append(pending, transactionID)
				break
			}
		}
	}
	if len(pending) == 0 {
		return ""
	}
	return pending[a.rng.Intn(len(pending))]
}

// main runs the settlement simulation end to end: random institutions and
// account balances, a randomized per-tick stage order, and a final summary
// plus sqlite snapshot export.
func main() {
	ticks := flag.Int("ticks", 50, "number of simulation ticks")
	seed := flag.Int64("seed", time.Now().UnixNano(), "random seed")
	riskFactor := flag.Float64("risk", 0, "risk factor (0 uses the default)")
	exportPath := flag.String("export", "simulation.db", "export database path")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))

	sim := engine.New(engine.Config{
		Ticks:               *ticks,
		RiskFactor:          *riskFactor,
		AllowPartialDefault: true,
		Shuffle:             true,
		Seed:                *seed,
	})

	agents := make([]*institutionAgent, 0, numInstitutions)
	for i := 1; i <= numInstitutions; i++ {
		institutionID := fmt.Sprintf("INST_%d", i)
		accountID := fmt.Sprintf("ACC_%d", i)

		if _, err := sim.Registry().Register(institutionID, fmt.Sprintf("Institution %d", i), true); err != nil {
			log.Fatal().Err(err).Msg("failed to register institution")
		}
		account := &ledger.Account{
			AccountID:     accountID,
			InstitutionID: institutionID,
			CashBalance:   float64(rng.Intn(5000) + 1000),
			CreditLimit:   float64(rng.Intn(1000)),
			Holdings:      map[string]float64{securityType: float64(rng.Intn(500) + 100)},
		}
		if err := sim.Ledger().Register(account); err != nil {
			log.Fatal().Err(err).Msg("failed to register account")
		}
		if err := sim.Registry().AddAccount(institutionID, accountID); err != nil {
			log.Fatal().Err(err).Msg("failed to link account")
		}

		agents = append(agents, &institutionAgent{
			id:        institutionID,
			accountID: accountID,
			engine:    sim,
			rng:       rand.New(rand.NewSource(rng.Int63())),
		})
	}
	for _, agent := range agents {
		for _, peer := range agents {
			if peer != agent {
				agent.peers = append(agent.peers, peer)
			}
		}
		sim.AddStage(agent)
	}

	startingCash := sim.Ledger().TotalCash()
	startingHoldings := sim.Ledger().TotalHoldings(securityType)
	started := time.Now()

	log.Info().
		Int("ticks", *ticks).
		Int64("seed", *seed).
		Int("institutions", numInstitutions).
		Msg("starting simulation")

	sim.Run()

	printSummary(sim, started, startingCash, startingHoldings)

	// Export the final snapshot for downstream consumers.
	db, err := database.NewDatabase(*exportPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open export database")
	}
	if err := export.NewService(db).SaveSnapshot(sim); err != nil {
		log.Fatal().Err(err).Msg("failed to export snapshot")
	}
	log.Info().Str("path", *exportPath).Msg("snapshot exported")
}

// printSummary renders the end-of-run statistics tables.
func printSummary(sim *engine.Engine, started time.Time, startingCash, startingHoldings float64) {
	statusCounts := make(map[string]int)
	for _, instr := range sim.Store().Instructions() {
		statusCounts[instr.Status]++
	}

	full, partial := 0, 0
	for _, confirmation := range sim.Store().Confirmations() {
		if confirmation.SettlementStatus == types.SettlementFull {
			full++
		} else {
			partial++
		}
	}

	fmt.Println("\nSETTLEMENT SIMULATION SUMMARY")

	statusTable := tablewriter.NewWriter(os.Stdout)
	statusTable.SetHeader([]string{"Instruction Status", "Count"})
	for _, status := range []string{
		types.StatusNew, types.StatusValidated, types.StatusMatched,
		types.StatusSettled, types.StatusPartiallySettled,
		types.StatusFailed, types.StatusCanceled,
	} {
		statusTable.Append([]string{status, fmt.Sprintf("%d", statusCounts[status])})
	}
	statusTable.Render()

	accountTable := tablewriter.NewWriter(os.Stdout)
	accountTable.SetHeader([]string{"Account", "Institution", "Cash", "Credit", securityType})
	for _, account := range sim.Ledger().Accounts() {
		accountTable.Append([]string{
			account.AccountID,
			account.InstitutionID,
			fmt.Sprintf("%.2f", account.CashBalance),
			fmt.Sprintf("%.2f", account.CreditLimit),
			fmt.Sprintf("%.2f", account.Holding(securityType)),
		})
	}
	accountTable.Render()

	log.Info().
		Int("transactions_settled_full", full).
		Int("transactions_settled_partial", partial).
		Int("audit_events", len(sim.Audit().Activity())).
		Float64("settlement_efficiency", sim.SettlementEfficiency()).
		Float64("starting_cash", startingCash).
		Float64("final_cash", sim.Ledger().TotalCash()).
		Float64("starting_holdings", startingHoldings).
		Float64("final_holdings", sim.Ledger().TotalHoldings(securityType)).
		Dur("duration", time.Since(started)).
		Msg("simulation completed")
}
