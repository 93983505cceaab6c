// Command doorctl is the door staff console: it validates tickets by id or QR payload, runs a
// scanner loop on stdin, prints sales stats and hashes staff secrets.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/angelmondragon/maskball-tickets/internal/bootstrap"
	"github.com/angelmondragon/maskball-tickets/pkg/config"
	"github.com/angelmondragon/maskball-tickets/pkg/db"
	"github.com/angelmondragon/maskball-tickets/pkg/logger"
	"github.com/angelmondragon/maskball-tickets/pkg/security"
)

const usage = `usage: doorctl <command> [flags]

commands:
  validate --order MASK-XXXXXXXX --ticket TKT-MASK-XXXXXXXX-01
  qr <payload>
  scan                 read one QR payload per line from stdin
  stats                sales and inventory totals
  hash-secret          read a secret from stdin (or --generate one) and print its argon2id hash
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	command, rest := args[0], args[1:]

	fs := flag.NewFlagSet("doorctl "+command, flag.ContinueOnError)
	fs.SetOutput(stderr)
	staff := fs.StringP("staff", "s", "doorctl", "name recorded as the scanner")
	asJSON := fs.Bool("json", false, "print machine readable output")
	orderNumber := fs.StringP("order", "o", "", "order number (validate)")
	ticketID := fs.StringP("ticket", "t", "", "ticket id (validate)")
	generate := fs.Bool("generate", false, "mint a random secret instead of reading stdin (hash-secret)")
	if err := fs.Parse(rest); err != nil {
		return 2
	}

	_ = godotenv.Load()

	if command == "hash-secret" {
		pw, err := config.LoadPassword()
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		var secret string
		if *generate {
			if secret, err = security.GenerateSecret(24); err != nil {
				fmt.Fprintln(stderr, err)
				return 1
			}
			// the plain secret goes to stderr so stdout stays a pipeable hash
			fmt.Fprintf(stderr, "secret: %s\n", secret)
		} else if secret, err = bufio.NewReader(stdin).ReadString('\n'); err != nil && err != io.EOF {
			fmt.Fprintln(stderr, err)
			return 1
		}
		if err := hashSecret(stdout, secret, pw); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		return 0
	}

	switch command {
	case "validate", "qr", "scan", "stats":
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", command, usage)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	logg := logger.New(logger.Options{
		ServiceName: "doorctl",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      logger.FormatConsole,
		Output:      stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		return 1
	}
	defer dbClient.Close()

	services, err := bootstrap.Build(ctx, bootstrap.Params{Config: cfg, Logger: logg, DB: dbClient})
	if err != nil {
		logg.Error(ctx, "failed to build services", err)
		return 1
	}

	c := &cli{
		door:      services.Door,
		inventory: services.Inventory,
		orders:    services.Orders,
		out:       stdout,
		staff:     *staff,
		asJSON:    *asJSON,
	}
	return dispatch(ctx, c, command, fs.Args(), *orderNumber, *ticketID, stdin, stderr)
}

// dispatch runs one command. Exit code 3 signals a refused ticket so scripts can branch on it.
func dispatch(ctx context.Context, c *cli, command string, args []string, orderNumber, ticketID string, stdin io.Reader, stderr io.Writer) int {
	var (
		admitted bool
		err      error
	)
	switch command {
	case "validate":
		if orderNumber == "" || ticketID == "" {
			fmt.Fprintln(stderr, "validate needs --order and --ticket")
			return 2
		}
		admitted, err = c.validate(ctx, orderNumber, ticketID)
	case "qr":
		if len(args) != 1 {
			fmt.Fprintln(stderr, "qr needs exactly one payload argument")
			return 2
		}
		admitted, err = c.qr(ctx, args[0])
	case "scan":
		if err := c.scan(ctx, stdin); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		return 0
	case "stats":
		if err := c.stats(ctx); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", command)
		return 2
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if !admitted {
		return 3
	}
	return 0
}
