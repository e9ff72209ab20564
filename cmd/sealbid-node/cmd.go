package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/clearmarket/sealbid-node/bidsaggregator"
	"github.com/clearmarket/sealbid-node/comtree"
	"github.com/clearmarket/sealbid-node/db"
	"github.com/clearmarket/sealbid-node/nullifier"
	"github.com/clearmarket/sealbid-node/types"
	_ "github.com/mattn/go-sqlite3"
	flag "github.com/spf13/pflag"
	kvdb "go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/pebbledb"
	"go.vocdoni.io/dvote/log"
)

// Config contains the main configuration parameters of the node
type Config struct {
	dir, logLevel string
}

const usage = `usage: sealbid-node [flags] <command> [args]

commands:
  auction-new <auctionID>                        record a new auction
  auction-status <auctionID> <status>            update an auction status
  seal <bidder> <auctionID> <amount> <price>     seal and submit a bid
  reveal <nullifier> <amount> <price> <salt>     reveal a stored bid
  close <auctionID>                              close the commitment tree
  root <auctionID>                               print the commitment tree root
  bids <auctionID>                               list the stored bids
  settle <auctionID>                             settle an ended auction
  report <auctionID> <pattern>                   print the concentration report
`

func main() {
	config := Config{}

	home, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}
	flag.StringVarP(&config.dir, "dir", "d", filepath.Join(home, ".sealbid-node"),
		"storage data directory")
	flag.StringVarP(&config.logLevel, "logLevel", "l", "info",
		"log level (info, debug, warn, error)")

	flag.CommandLine.SortFlags = false
	flag.Parse()

	log.Init(config.logLevel, "stdout")

	args := flag.Args()
	if len(args) < 1 {
		fmt.Print(usage)
		os.Exit(1)
	}

	ba := newAggregator(config)
	if err := run(ba, args); err != nil {
		log.Fatal(err)
	}
}

func newAggregator(config Config) *bidsaggregator.BidsAggregator {
	sqlDB, err := sql.Open("sqlite3",
		filepath.Join(config.dir, "bids.sqlite3")+"?_foreign_keys=on")
	if err != nil {
		log.Fatal(err)
	}
	sqlite := db.NewSQLite(sqlDB)
	if err := sqlite.Migrate(); err != nil {
		log.Fatal(err)
	}

	regDB, err := pebbledb.New(kvdb.Options{
		Path: filepath.Join(config.dir, "nullifiers")})
	if err != nil {
		log.Fatal(err)
	}
	registry, err := nullifier.New(nullifier.Options{DB: regDB})
	if err != nil {
		log.Fatal(err)
	}

	builderDB, err := pebbledb.New(kvdb.Options{
		Path: filepath.Join(config.dir, "comtrees")})
	if err != nil {
		log.Fatal(err)
	}
	trees, err := comtree.NewBuilder(builderDB,
		filepath.Join(config.dir, "comtrees-sub"))
	if err != nil {
		log.Fatal(err)
	}

	ba, err := bidsaggregator.New(sqlite, registry, trees)
	if err != nil {
		log.Fatal(err)
	}
	return ba
}

func run(ba *bidsaggregator.BidsAggregator, args []string) error {
	switch args[0] {
	case "auction-new":
		if len(args) != 2 {
			return fmt.Errorf("auction-new expects <auctionID>")
		}
		auctionID, err := types.HexToAddress(args[1])
		if err != nil {
			return err
		}
		return ba.StoreAuction(auctionID)
	case "auction-status":
		if len(args) != 3 {
			return fmt.Errorf("auction-status expects <auctionID> <status>")
		}
		auctionID, err := types.HexToAddress(args[1])
		if err != nil {
			return err
		}
		status, err := types.AuctionStatusFromString(args[2])
		if err != nil {
			return err
		}
		return ba.UpdateAuctionStatus(auctionID, status)
	case "seal":
		if len(args) != 5 {
			return fmt.Errorf("seal expects <bidder> <auctionID> <amount> <price>")
		}
		bidder, err := types.HexToAddress(args[1])
		if err != nil {
			return err
		}
		auctionID, err := types.HexToAddress(args[2])
		if err != nil {
			return err
		}
		amount, err := types.ParseUint256(args[3])
		if err != nil {
			return err
		}
		price, err := types.ParseUint256(args[4])
		if err != nil {
			return err
		}
		bid, err := ba.SealBid(bidder, auctionID, amount, price)
		if err != nil {
			return err
		}
		if err := ba.SubmitBid(bid); err != nil {
			return err
		}
		return printJSON(map[string]string{
			"commitment": bid.Commitment.Hex(),
			"nullifier":  bid.Nullifier.Hex(),
			"salt":       bid.Salt.Hex(),
		})
	case "reveal":
		if len(args) != 5 {
			return fmt.Errorf("reveal expects <nullifier> <amount> <price> <salt>")
		}
		nullif, err := types.HexToHash(args[1])
		if err != nil {
			return err
		}
		amount, err := types.ParseUint256(args[2])
		if err != nil {
			return err
		}
		price, err := types.ParseUint256(args[3])
		if err != nil {
			return err
		}
		salt, err := types.HexToHash(args[4])
		if err != nil {
			return err
		}
		return ba.Reveal(nullif, amount, price, salt)
	case "close":
		if len(args) != 2 {
			return fmt.Errorf("close expects <auctionID>")
		}
		auctionID, err := types.HexToAddress(args[1])
		if err != nil {
			return err
		}
		return ba.CloseTree(auctionID)
	case "root":
		if len(args) != 2 {
			return fmt.Errorf("root expects <auctionID>")
		}
		auctionID, err := types.HexToAddress(args[1])
		if err != nil {
			return err
		}
		root, err := ba.TreeRoot(auctionID)
		if err != nil {
			return err
		}
		fmt.Printf("%x\n", root)
		return nil
	case "bids":
		if len(args) != 2 {
			return fmt.Errorf("bids expects <auctionID>")
		}
		auctionID, err := types.HexToAddress(args[1])
		if err != nil {
			return err
		}
		bids, err := ba.Bids(auctionID)
		if err != nil {
			return err
		}
		for _, b := range bids {
			fmt.Printf("%s revealed=%v\n", b.Nullifier.Hex(), b.Revealed)
		}
		return nil
	case "settle":
		if len(args) != 2 {
			return fmt.Errorf("settle expects <auctionID>")
		}
		auctionID, err := types.HexToAddress(args[1])
		if err != nil {
			return err
		}
		result, err := ba.Settle(auctionID)
		if err != nil {
			return err
		}
		return printJSON(result)
	case "report":
		if len(args) != 3 {
			return fmt.Errorf("report expects <auctionID> <pattern>")
		}
		auctionID, err := types.HexToAddress(args[1])
		if err != nil {
			return err
		}
		pattern, err := types.PatternFromString(args[2])
		if err != nil {
			return err
		}
		report, err := ba.Concentration(auctionID, pattern)
		if err != nil {
			return err
		}
		return printJSON(report)
	}
	fmt.Print(usage)
	return fmt.Errorf("unknown command %q", args[0])
}

func printJSON(v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
