package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"gopkg.in/urfave/cli.v1"

	"github.com/elastos/Elastos.ELA.CrossBorrow/chains/evm"
	"github.com/elastos/Elastos.ELA.CrossBorrow/config"
	"github.com/elastos/Elastos.ELA.CrossBorrow/domain"
	"github.com/elastos/Elastos.ELA.CrossBorrow/engine"
	"github.com/elastos/Elastos.ELA.CrossBorrow/keystore"
	"github.com/elastos/Elastos.ELA.CrossBorrow/registry"
	"github.com/elastos/Elastos.ELA.CrossBorrow/relayer"
	"github.com/elastos/Elastos.ELA.CrossBorrow/resolver"
	"github.com/elastos/Elastos.ELA.CrossBorrow/sender"
)

var (
	TagFlag = cli.StringFlag{
		Name:  "tag",
		Usage: "Release tag of the deployments, prompted for when empty",
	}
	ChainFlag = cli.StringFlag{
		Name:  "chain",
		Usage: "Domain name or chain id, the configured destination when empty",
	}

	borrowCommand = cli.Command{
		Action: borrow,
		Name:   "borrow",
		Usage:  "Deposit collateral on the origin and borrow on the destination",
		Description: `
Prompts for the release tag, the collateral to deposit and the amount to
borrow, then sends one sendToYBAndBorrow transaction on the origin domain.`,
	}
	marketsCommand = cli.Command{
		Action: markets,
		Name:   "markets",
		Usage:  "List the Singularity markets registered in Penrose",
		Flags:  []cli.Flag{TagFlag, ChainFlag},
	}
	domainsCommand = cli.Command{
		Action: domains,
		Name:   "domains",
		Usage:  "List the supported domains",
	}
	registryCommand = cli.Command{
		Name:  "registry",
		Usage: "Manage the deployment registry",
		Subcommands: []cli.Command{
			{
				Action:    importDeployments,
				Name:      "import",
				Usage:     "Import a JSON deployment file into a LevelDB registry",
				ArgsUsage: "<deployments.json> <registry dir>",
			},
		},
	}
)

// reporter prints "[+] " progress lines.
func reporter(out io.Writer) engine.Reporter {
	plus := color.New(color.FgGreen, color.Bold)
	return engine.ReporterFunc(func(format string, args ...interface{}) {
		plus.Fprint(out, "[+] ")
		fmt.Fprintf(out, format+"\n", args...)
	})
}

func openRegistry(cfg config.RegistryConfig) (registry.Registry, func(), error) {
	switch cfg.Kind {
	case config.RegistryLevelDB:
		db, err := registry.NewLevelDB(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return db, func() { db.Close() }, nil
	case config.RegistryJSON, "":
		return registry.NewJSONFile(cfg.Path), func() {}, nil
	}
	return nil, nil, errors.Errorf("unknown registry kind %q", cfg.Kind)
}

// keys loads the configured key of each chain, asking for the keystore
// password at most once.
type keys struct {
	password string
	prompter Prompter
}

func (k *keys) load(cfg config.GeneralChainConfig) (sender.Sender, error) {
	if cfg.From == "" && !cfg.Insecure {
		return nil, errors.Errorf("no key configured for chain %d", cfg.Id)
	}
	if cfg.Insecure {
		return keystore.KeypairFromAddress(cfg.From, "", nil, true)
	}
	if k.password == "" {
		pw, err := k.prompter.PromptPassword(fmt.Sprintf("Password for %s: ", cfg.From))
		if err != nil {
			return nil, err
		}
		k.password = pw
	}
	return keystore.KeypairFromAddress(cfg.From, cfg.KeystorePath, []byte(k.password), false)
}

// connect dials the given domains with their configured keys.
func connect(ctx context.Context, cfg *config.Config, k *keys, ds ...domain.Domain) (*relayer.Relayer, error) {
	var chains []*evm.EVMChain
	for _, d := range ds {
		chainCfg, _ := cfg.Chain(d.ChainID)
		s, err := k.load(chainCfg)
		if err != nil {
			return nil, err
		}
		chain, err := evm.SetupEVMChain(ctx, d, &chainCfg, s)
		if err != nil {
			relayer.NewRelayer(chains...).Close()
			return nil, err
		}
		chains = append(chains, chain)
	}
	return relayer.NewRelayer(chains...), nil
}

// newEngine loads the configuration and connects origin and destination.
func newEngine(ctx *cli.Context, p Prompter, out io.Writer) (*engine.Engine, *config.Config, func(), error) {
	cfg, err := config.Load(ctx.GlobalString(ConfigFlag.Name))
	if err != nil {
		return nil, nil, nil, err
	}
	origin, err := domain.Lookup(cfg.Origin)
	if err != nil {
		return nil, nil, nil, err
	}
	destination, err := domain.Lookup(cfg.Destination)
	if err != nil {
		return nil, nil, nil, err
	}
	reg, closeRegistry, err := openRegistry(cfg.Registry)
	if err != nil {
		return nil, nil, nil, err
	}
	k := &keys{password: ctx.GlobalString(PasswordFlag.Name), prompter: p}
	r, err := connect(context.Background(), cfg, k, origin, destination)
	if err != nil {
		closeRegistry()
		return nil, nil, nil, err
	}
	res := resolver.New(reg, tableChooser(p, out), cfg.Registry)
	e, err := engine.New(cfg, res, r, reporter(out))
	if err != nil {
		r.Close()
		closeRegistry()
		return nil, nil, nil, err
	}
	return e, cfg, func() { r.Close(); closeRegistry() }, nil
}

func borrow(ctx *cli.Context) error {
	p := prompter()
	e, cfg, closer, err := newEngine(ctx, p, os.Stdout)
	if err != nil {
		return err
	}
	defer closer()

	tag, err := askForTag(p, cfg.Tag)
	if err != nil {
		return err
	}
	collateral, err := askAmount(p, "Collateral to deposit: ")
	if err != nil {
		return err
	}
	amount, err := askAmount(p, "Amount to borrow: ")
	if err != nil {
		return err
	}
	_, err = e.Borrow(context.Background(), engine.Request{Tag: tag, Collateral: collateral, Borrow: amount})
	return err
}

func markets(ctx *cli.Context) error {
	p := prompter()
	e, cfg, closer, err := newEngine(ctx, p, os.Stdout)
	if err != nil {
		return err
	}
	defer closer()

	target := e.Destination()
	if ref := ctx.String(ChainFlag.Name); ref != "" {
		if target, err = domain.Lookup(ref); err != nil {
			return err
		}
	}
	tag := ctx.String(TagFlag.Name)
	if tag == "" {
		if tag, err = askForTag(p, cfg.Tag); err != nil {
			return err
		}
	}
	list, err := e.Markets(context.Background(), tag, target.ChainID)
	if err != nil {
		return err
	}
	printMarkets(os.Stdout, list)
	return nil
}

func printMarkets(out io.Writer, list []engine.Market) {
	table := tablewriter.NewWriter(out)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Market", "Address"})
	for _, m := range list {
		table.Append([]string{m.Name, m.Address.Hex()})
	}
	table.Render()
}

func domains(ctx *cli.Context) error {
	printDomains(os.Stdout, domain.All())
	return nil
}

func printDomains(out io.Writer, list []domain.Domain) {
	table := tablewriter.NewWriter(out)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Name", "Chain ID", "LayerZero ID", "Testnet", "RPC"})
	for _, d := range list {
		table.Append([]string{
			d.Name,
			strconv.FormatUint(d.ChainID, 10),
			strconv.FormatUint(uint64(d.MessagingID), 10),
			strconv.FormatBool(d.Testnet),
			d.RPC,
		})
	}
	table.Render()
}

func importDeployments(ctx *cli.Context) error {
	if len(ctx.Args()) != 2 {
		return errors.New("usage: registry import <deployments.json> <registry dir>")
	}
	n, err := importRegistry(ctx.Args().Get(0), ctx.Args().Get(1))
	if err != nil {
		return err
	}
	reporter(os.Stdout).Report("Imported %d deployments", n)
	return nil
}

func importRegistry(src, dst string) (int, error) {
	db, err := registry.NewLevelDB(dst)
	if err != nil {
		return 0, err
	}
	defer db.Close()
	return db.Import(registry.NewJSONFile(src))
}
