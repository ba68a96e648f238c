package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/kozaktomas/facegate/internal/config"
	"github.com/kozaktomas/facegate/internal/registry"
	"github.com/spf13/cobra"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <identity|name>",
	Short: "Look up a person in the registry",
	Long: `Look up a person in the external registry by identity key or by
name. Name matching ignores case and diacritics, so "jiri" matches
"Jiří".

Example:
  facegate lookup 42
  facegate lookup "jan novak"`,
	Args: cobra.ExactArgs(1),
	RunE: runLookup,
}

func init() {
	rootCmd.AddCommand(lookupCmd)
}

func printPerson(p *registry.Person) {
	fmt.Printf("%d\t%s\t%s\t%s\n", p.Identity, p.Name, p.DOB, p.Address)
}

func runLookup(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.Registry.DatabaseURL == "" {
		return errors.New("REGISTRY_DATABASE_URL environment variable is required")
	}

	client, err := registry.NewClient(cfg.Registry.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to registry: %w", err)
	}
	defer client.Close()

	ctx := context.Background()

	if identity, err := strconv.ParseInt(args[0], 10, 64); err == nil && identity > 0 {
		p, err := client.Lookup(ctx, identity)
		if errors.Is(err, registry.ErrNotFound) {
			fmt.Printf("No person registered under identity %d\n", identity)
			return nil
		}
		if err != nil {
			return err
		}
		printPerson(p)
		return nil
	}

	persons, err := client.FindByName(ctx, args[0])
	if err != nil {
		return err
	}
	if len(persons) == 0 {
		fmt.Printf("No person named %q in the registry\n", args[0])
		return nil
	}
	for i := range persons {
		printPerson(&persons[i])
	}
	return nil
}
