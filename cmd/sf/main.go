// sf is the storefront buyer CLI: a persistent multi-store cart, checkout
// for signed-in buyers and guests, guest sessions, and storefront URL
// resolution.
//
// Usage:
//
//	sf cart add <product-id> [qty]      Add a product to the cart
//	sf cart rm <product-id>...          Remove products
//	sf cart qty <product-id> <n>        Set a quantity (0 removes)
//	sf cart inc|dec <product-id>        Step a quantity
//	sf cart list                        Show the cart grouped by store
//	sf cart clear                       Empty the cart
//	sf checkout [flags]                 Pay for the cart
//	sf guest otp --email|--phone <id>   Send a sign-in code
//	sf guest verify --email|--phone <id> <code>
//	sf guest status                     Re-validate the saved guest session
//	sf guest logout                     Forget the guest session
//	sf guest downloads                  List purchased downloads
//	sf tenant resolve [url]             Show the storefront for a URL
//	sf tenant storefront-url <slug> [path]
//	sf tenant main-url [path]
//	sf tenant check <slug>              Check a subdomain candidate
//	sf twin health|reset|state          Control the local twin
//	sf twin seed <file>
//	sf twin otp <email-or-phone>        Peek at the last sign-in code
//	sf twin fault <path> <status>
//	sf twin unfault <path>
//	sf twin advance <duration>
//	sf version
package main

import (
	"fmt"
	"io"
	"os"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "sf: %v\n", err)
		os.Exit(1)
	}
}

func run(argv []string, out io.Writer) error {
	cmd, args, cfgPath := parseArgs(argv)

	switch cmd {
	case "", "help", "--help", "-h":
		printUsage(out)
		if cmd == "" {
			return fmt.Errorf("no command given")
		}
		return nil
	case "version", "--version", "-v":
		fmt.Fprintf(out, "sf version %s\n", version)
		return nil
	}

	a, err := newApp(cfgPath, out)
	if err != nil {
		return err
	}
	defer a.close()

	switch cmd {
	case "cart":
		return a.cmdCart(args)
	case "checkout":
		return a.cmdCheckout(args)
	case "guest":
		return a.cmdGuest(args)
	case "tenant":
		return a.cmdTenant(args)
	case "twin":
		return a.cmdTwin(args)
	default:
		printUsage(out)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// parseArgs extracts the subcommand, positional args, and --config path.
func parseArgs(argv []string) (command string, args []string, cfgPath string) {
	cfgPath = os.Getenv("SF_CONFIG")

	var filtered []string
	for i := 0; i < len(argv); i++ {
		if argv[i] == "--config" && i+1 < len(argv) {
			cfgPath = argv[i+1]
			i++
			continue
		}
		filtered = append(filtered, argv[i])
	}

	if len(filtered) == 0 {
		return "", nil, cfgPath
	}
	return filtered[0], filtered[1:], cfgPath
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Usage: sf [--config <path>] <command> [args]

Cart:
  cart add <product-id> [qty]        Add a product to the cart
  cart rm <product-id>...            Remove products
  cart qty <product-id> <n>          Set a quantity (0 removes)
  cart inc <product-id>              Increase a quantity by one
  cart dec <product-id>              Decrease a quantity by one
  cart list                          Show the cart grouped by store
  cart clear                         Empty the cart

Checkout:
  checkout [--guest --email <e> --phone <p>] [--name <n>]
           [--amount <major units>] [--action pay|dismiss|fail]
           [--remove-invalid]

Guest:
  guest otp --email <e> | --phone <p>
  guest verify --email <e> | --phone <p> <code>
  guest status                       Re-validate the saved session
  guest logout
  guest downloads

Tenant:
  tenant resolve [url]
  tenant storefront-url <slug> [path]
  tenant main-url [path]
  tenant check <slug>

Twin (local development):
  twin health | reset | state
  twin seed <file>
  twin otp <email-or-phone>
  twin fault <path> <status>
  twin unfault <path>
  twin advance <duration>

  version
`)
}
