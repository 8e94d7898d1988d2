package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/mwork/credits-api/internal/config"
	"github.com/mwork/credits-api/internal/domain/credit"
	"github.com/mwork/credits-api/internal/pkg/database"
)

// eventFile is the replay input: grants and deductions in insertion order
type eventFile struct {
	Grants     []credit.Grant     `json:"grants"`
	Deductions []credit.Deduction `json:"deductions"`
}

// result is one output line
type result struct {
	At        int64             `json:"at"`
	Balance   int64             `json:"balance"`
	Statement *credit.Statement `json:"statement,omitempty"`
}

func main() {
	file := flag.String("file", "", "JSON event file ({\"grants\": [...], \"deductions\": [...]}), - for stdin")
	account := flag.String("account", "", "replay a stored account from DATABASE_URL instead of a file")
	atList := flag.String("at", "", "comma-separated timestamps to query, e.g. 2,4,6")
	statement := flag.Bool("statement", false, "print the full allocation breakdown for each timestamp")
	flag.Parse()

	ats, err := parseTimestamps(*atList)
	if err != nil {
		log.Fatalf("Invalid -at: %v", err)
	}

	var ledger *credit.Ledger
	switch {
	case *account != "":
		ledger, err = loadAccount(*account)
	case *file != "":
		ledger, err = loadFile(*file)
	default:
		err = errors.New("one of -file or -account is required")
	}
	if err != nil {
		log.Fatalf("Failed to load events: %v", err)
	}

	if err := replay(os.Stdout, ledger, ats, *statement); err != nil {
		log.Fatalf("Failed to write results: %v", err)
	}
}

func parseTimestamps(s string) ([]int64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, errors.New("at least one timestamp is required")
	}
	var ats []int64
	for _, part := range strings.Split(s, ",") {
		at, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("timestamp %q: %w", part, err)
		}
		ats = append(ats, at)
	}
	return ats, nil
}

func loadFile(path string) (*credit.Ledger, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	return decodeEvents(r)
}

// decodeEvents builds a ledger from an event file; the first invalid event aborts.
func decodeEvents(r io.Reader) (*credit.Ledger, error) {
	var events eventFile
	if err := json.NewDecoder(r).Decode(&events); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}

	ledger := credit.NewLedger()
	for i, g := range events.Grants {
		if err := ledger.AddGrant(g.Amount, g.EffectiveAt, g.ExpiresAt); err != nil {
			return nil, fmt.Errorf("grant %d: %w", i, err)
		}
	}
	for i, d := range events.Deductions {
		if err := ledger.AddDeduction(d.Amount, d.EffectiveAt); err != nil {
			return nil, fmt.Errorf("deduction %d: %w", i, err)
		}
	}
	return ledger, nil
}

func loadAccount(raw string) (*credit.Ledger, error) {
	accountID, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("account id: %w", err)
	}

	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}

	ctx := context.Background()
	db, err := database.NewPostgres(ctx, cfg.DatabaseURL, database.DefaultPool)
	if err != nil {
		return nil, err
	}
	defer database.ClosePostgres(db)

	set, err := credit.NewRepository(db).ListEvents(ctx, accountID)
	if err != nil {
		return nil, err
	}

	return credit.ReplayEvents(set)
}

// replay writes one JSON line per timestamp
func replay(w io.Writer, ledger *credit.Ledger, ats []int64, withStatement bool) error {
	enc := json.NewEncoder(w)
	for _, at := range ats {
		res := result{At: at}
		if withStatement {
			stmt := ledger.StatementAt(at)
			res.Balance = stmt.Balance
			res.Statement = &stmt
		} else {
			res.Balance = ledger.BalanceAt(at)
		}
		if err := enc.Encode(res); err != nil {
			return err
		}
	}
	return nil
}
