// Command apikey manages service credentials from the operator's shell.
// A generated secret is printed exactly once; only its hash is stored.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"golang.org/x/crypto/bcrypt"

	"membercheck/internal/engine/apikeys"
	"membercheck/internal/platform/config"
	"membercheck/internal/platform/database"
	"membercheck/internal/platform/models"
	"membercheck/internal/platform/repositories"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	switch os.Args[1] {
	case "create":
		cmdCreate(os.Args[2:])
	case "list":
		cmdList(os.Args[2:])
	case "revoke":
		cmdRevoke(os.Args[2:])
	case "create-account":
		cmdCreateAccount(os.Args[2:])
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: apikey <command> [flags]

Commands:
  create          Create a new API key (prints the secret once)
  list            List all API keys
  revoke          Deactivate an API key
  create-account  Create an admin login account`)
	os.Exit(2)
}

func openRepos(configPath string) (*repositories.APIKeyRepository, *repositories.AccountRepository) {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	return repositories.NewAPIKeyRepository(db), repositories.NewAccountRepository(db)
}

func cmdCreate(args []string) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	configPath := fs.String("config", "configs/config.yaml", "Path to config file")
	name := fs.String("name", "", "Key name (required)")
	expiresIn := fs.Duration("expires-in", 0, "Validity window, e.g. 8760h (0 = never expires)")
	fs.Parse(args)

	if *name == "" {
		log.Fatal("--name is required")
	}

	keyRepo, _ := openRepos(*configPath)
	svc := apikeys.NewService(keyRepo)

	var expiresAt *time.Time
	if *expiresIn > 0 {
		t := time.Now().Add(*expiresIn)
		expiresAt = &t
	}

	key, secret, err := svc.Generate(context.Background(), *name, expiresAt, "cli")
	if err != nil {
		log.Fatalf("Failed to create key: %v", err)
	}

	fmt.Printf("Created key %s (%s)\n", key.ID, key.Name)
	fmt.Printf("Secret (shown once, store it now):\n\n  %s\n", secret)
}

func cmdList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath := fs.String("config", "configs/config.yaml", "Path to config file")
	fs.Parse(args)

	keyRepo, _ := openRepos(*configPath)
	keys, err := keyRepo.List(context.Background())
	if err != nil {
		log.Fatalf("Failed to list keys: %v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPREFIX\tACTIVE\tUSAGE\tEXPIRES")
	for _, k := range keys {
		expires := "never"
		if k.ExpiresAt != nil {
			expires = time.Unix(*k.ExpiresAt, 0).Format("2006-01-02")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%d\t%s\n", k.ID, k.Name, k.KeyPrefix, k.IsActive, k.UsageCount, expires)
	}
	w.Flush()
}

func cmdRevoke(args []string) {
	fs := flag.NewFlagSet("revoke", flag.ExitOnError)
	configPath := fs.String("config", "configs/config.yaml", "Path to config file")
	id := fs.String("id", "", "Key ID (required)")
	fs.Parse(args)

	if *id == "" {
		log.Fatal("--id is required")
	}

	keyRepo, _ := openRepos(*configPath)
	if err := keyRepo.SetActive(context.Background(), *id, false); err != nil {
		log.Fatalf("Failed to revoke key: %v", err)
	}
	fmt.Printf("Revoked key %s\n", *id)
}

func cmdCreateAccount(args []string) {
	fs := flag.NewFlagSet("create-account", flag.ExitOnError)
	configPath := fs.String("config", "configs/config.yaml", "Path to config file")
	username := fs.String("username", "", "Login username (required)")
	password := fs.String("password", "", "Login password (required)")
	role := fs.String("role", "admin", "Account role: admin or org")
	orgID := fs.Int64("org", 0, "Organisation ID (required when role is org)")
	fs.Parse(args)

	if *username == "" || *password == "" {
		log.Fatal("--username and --password are required")
	}
	if *role != "admin" && *role != "org" {
		log.Fatal("--role must be admin or org")
	}
	if *role == "org" && *orgID == 0 {
		log.Fatal("--org is required when role is org")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	acc := &models.Account{
		Username:     *username,
		PasswordHash: string(hash),
		Role:         *role,
	}
	if *role == "org" {
		acc.OrganisationID = orgID
	}

	_, accountRepo := openRepos(*configPath)
	if err := accountRepo.Create(context.Background(), acc); err != nil {
		log.Fatalf("Failed to create account: %v", err)
	}
	fmt.Printf("Created %s account %s (%s)\n", acc.Role, acc.Username, acc.ID)
}
