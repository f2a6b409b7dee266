// Command createuser registers a user directly in the database, prompting
// for the password without echo. It reads the same configuration as the
// server (-c, -d and the environment).
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/dmitrijs2005/gophauth/internal/admincli"
	"github.com/dmitrijs2005/gophauth/internal/flagx"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
)

func main() {

	ctx := context.Background()

	fs := flag.NewFlagSet("createuser", flag.ContinueOnError)
	username := fs.String("u", "", "user name (prompted when empty)")
	if err := fs.Parse(flagx.FilterArgs(os.Args[1:], []string{"-u"})); err != nil {
		log.Fatalf("flags: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, syncLog, err := logging.New(logging.Config{Level: "warn", DevMode: true})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer syncLog()

	db, err := repomanager.OpenDB(ctx, cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer db.Close()

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	us := services.NewUserService(db, rm, auth.NewBcryptHasher(0), cfg, logger)

	u, err := admincli.CreateUser(ctx, us, *username, "createuser", bufio.NewReader(os.Stdin), int(os.Stdin.Fd()), os.Stdout)
	if err != nil {
		log.Fatalf("%v", err)
	}

	fmt.Printf("User %s created with id %s\n", u.Username, u.ID)

}
