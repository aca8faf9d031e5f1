package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"lottery/cmd"
	"lottery/config"
	"lottery/database"
	"lottery/events"
	"lottery/repository"
	"lottery/service"

	log "github.com/sirupsen/logrus"
)

func main() {
	if len(os.Args) > 1 {
		var err error
		switch os.Args[1] {
		case "migrate":
			err = handleMigrationCommand()
		case "fund":
			err = handleFundCommand()
		case "audit":
			err = handleAuditCommand()
		default:
			err = fmt.Errorf("unknown command: %s (expected migrate, fund or audit)", os.Args[1])
		}
		if err != nil {
			log.Fatalf("%s error: %v", os.Args[1], err)
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, shutting down gracefully...")
		cancel()
	}()

	if err := cmd.Run(ctx); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func handleMigrationCommand() error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: lottery migrate [up|down|status] [args...]")
	}

	command := os.Args[2]
	switch command {
	case "up":
		return database.MigrateUp()
	case "down":
		steps := "1"
		if len(os.Args) > 3 {
			steps = os.Args[3]
		}
		return database.MigrateDown(steps)
	case "status":
		return database.MigrateStatus()
	default:
		return fmt.Errorf("unknown migration command: %s", command)
	}
}

// handleFundCommand credits an account from the operator's shell
func handleFundCommand() error {
	if len(os.Args) < 4 {
		return fmt.Errorf("usage: lottery fund <account> <amount>")
	}
	accountID := os.Args[2]
	amount, err := strconv.ParseUint(os.Args[3], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", os.Args[3], err)
	}

	ctx := context.Background()
	cfg := config.Get()
	db, err := database.NewConnection(ctx, cfg.GetDatabaseURL())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	accounts := service.NewAccountService(repository.NewUnitOfWorkFactory(db, events.NewBus()))
	account, err := accounts.Deposit(ctx, accountID, amount)
	if err != nil {
		return err
	}

	fmt.Printf("%s balance: %s\n", account.ID, cmd.FormatAmount(account.Balance))
	return nil
}

// handleAuditCommand reports rounds whose pool differs from their pool account
func handleAuditCommand() error {
	ctx := context.Background()
	cfg := config.Get()
	db, err := database.NewConnection(ctx, cfg.GetDatabaseURL())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	mismatches, err := repository.AuditPools(ctx, db)
	if err != nil {
		return err
	}
	for _, m := range mismatches {
		fmt.Printf("round %s: total_pool=%s pool_balance=%s\n", m.RoundID, cmd.FormatAmount(m.TotalPool), cmd.FormatAmount(m.PoolBalance))
	}
	if len(mismatches) > 0 {
		return fmt.Errorf("%d rounds out of balance", len(mismatches))
	}
	fmt.Println("all pools balanced")
	return nil
}
